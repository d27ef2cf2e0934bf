package rtc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/events"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/ports"
	apperrors "github.com/DiagVN/diag-video-call-ui-kit/pkg/errors"
	"github.com/DiagVN/diag-video-call-ui-kit/pkg/validation"

	"github.com/google/uuid"
)

// Data channel message types.
const (
	msgChat       = "chat"
	msgChatDelete = "chat-delete"
	msgChatState  = "chat-state"
	msgHand       = "hand"
	msgHandsLower = "hands-lower-all"
)

// streamEnvelope is the JSON payload carried over the engine's stream
// message channel.
type streamEnvelope struct {
	Type     string `json:"type"`
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	Content  string `json:"content,omitempty"`
	ReplyTo  string `json:"replyTo,omitempty"`
	Raised   bool   `json:"raised,omitempty"`
	Enabled  bool   `json:"enabled,omitempty"`
	HostOnly bool   `json:"hostOnly,omitempty"`
	TS       int64  `json:"ts"`
}

var (
	_ ports.ChatActions      = (*Adapter)(nil)
	_ ports.HandRaiseActions = (*Adapter)(nil)
)

func (a *Adapter) send(ctx context.Context, env streamEnvelope) error {
	client := a.currentClient()
	if client == nil {
		return domain.ErrNotInCall
	}
	env.TS = a.clock.Now().UnixMilli()
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", env.Type, err)
	}
	return client.SendStreamMessage(ctx, data)
}

func (a *Adapter) SendChatMessage(ctx context.Context, content, replyTo string) error {
	if err := validation.ValidateChatMessage(content); err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}

	a.mu.Lock()
	enabled, hostOnly, isHost := a.chatEnabled, a.chatHostOnly, a.isHost
	uid, name := a.localUID, a.displayName
	a.mu.Unlock()

	if !enabled {
		return apperrors.NewConflictError("chat is disabled")
	}
	if hostOnly && !isHost {
		return apperrors.NewConflictError("only hosts can send messages")
	}

	msg := domain.ChatMessage{
		ID:         uuid.NewString(),
		SenderID:   uid,
		SenderName: name,
		Content:    content,
		Timestamp:  a.clock.Now(),
		IsLocal:    true,
		ReplyTo:    replyTo,
	}
	err := a.send(ctx, streamEnvelope{Type: msgChat, ID: msg.ID, Name: name, Content: content, ReplyTo: replyTo})
	if err != nil {
		a.emitError(apperrors.ErrCodeMessageFailed, true, err)
		return nil
	}
	a.emit(events.ChatMessageSent{Message: msg})
	return nil
}

func (a *Adapter) DeleteChatMessage(ctx context.Context, messageID string) error {
	if messageID == "" {
		return apperrors.NewInvalidInputError("message id is required")
	}
	if err := a.send(ctx, streamEnvelope{Type: msgChatDelete, ID: messageID}); err != nil {
		a.emitError(apperrors.ErrCodeMessageFailed, true, err)
		return nil
	}
	a.emit(events.ChatMessageDeleted{MessageID: messageID})
	return nil
}

func (a *Adapter) SetChatEnabled(ctx context.Context, enabled bool) error {
	a.mu.Lock()
	a.chatEnabled = enabled
	hostOnly := a.chatHostOnly
	a.mu.Unlock()
	return a.broadcastChatState(ctx, enabled, hostOnly)
}

func (a *Adapter) SetChatHostOnly(ctx context.Context, hostOnly bool) error {
	a.mu.Lock()
	a.chatHostOnly = hostOnly
	enabled := a.chatEnabled
	a.mu.Unlock()
	return a.broadcastChatState(ctx, enabled, hostOnly)
}

func (a *Adapter) broadcastChatState(ctx context.Context, enabled, hostOnly bool) error {
	if a.currentClient() != nil {
		if err := a.send(ctx, streamEnvelope{Type: msgChatState, Enabled: enabled, HostOnly: hostOnly}); err != nil {
			a.emitError(apperrors.ErrCodeMessageFailed, true, err)
		}
	}
	a.emit(events.ChatStateChanged{Enabled: enabled, HostOnlyMode: hostOnly})
	return nil
}

func (a *Adapter) SetHandRaised(ctx context.Context, raised bool) error {
	a.mu.Lock()
	uid := a.localUID
	if uid.Unassigned() {
		a.mu.Unlock()
		return domain.ErrNotInCall
	}
	a.raisedHands[uid] = raised
	a.mu.Unlock()

	if err := a.send(ctx, streamEnvelope{Type: msgHand, Raised: raised}); err != nil {
		a.emitError(apperrors.ErrCodeMessageFailed, true, err)
	}
	a.emit(events.HandRaisedChanged{UID: uid, IsRaised: raised})
	a.emitLocalUpdated()
	return nil
}

func (a *Adapter) LowerAllHands(ctx context.Context) error {
	if err := a.send(ctx, streamEnvelope{Type: msgHandsLower}); err != nil {
		a.emitError(apperrors.ErrCodeMessageFailed, true, err)
		return nil
	}
	a.lowerAllHands()
	return nil
}

func (a *Adapter) lowerAllHands() {
	a.mu.Lock()
	var lowered []domain.UID
	for uid, raised := range a.raisedHands {
		if raised {
			lowered = append(lowered, uid)
		}
	}
	a.raisedHands = make(map[domain.UID]bool)
	for _, p := range a.remote {
		p.IsHandRaised = false
	}
	a.mu.Unlock()

	for _, uid := range lowered {
		a.emit(events.HandRaisedChanged{UID: uid, IsRaised: false})
	}
	a.emitLocalUpdated()
}

func (a *Adapter) handleStreamMessage(from domain.UID, data []byte) {
	var env streamEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		a.logger.Debugw("Ignoring undecodable stream message", "uid", from, "error", err)
		return
	}

	switch env.Type {
	case msgChat:
		ts := time.UnixMilli(env.TS)
		if env.TS == 0 {
			ts = a.clock.Now()
		}
		name := env.Name
		if name == "" {
			name = domain.DefaultDisplayName(from)
		}
		a.emit(events.ChatMessageReceived{Message: domain.ChatMessage{
			ID:         env.ID,
			SenderID:   from,
			SenderName: name,
			Content:    env.Content,
			Timestamp:  ts,
			ReplyTo:    env.ReplyTo,
		}})
	case msgChatDelete:
		a.emit(events.ChatMessageDeleted{MessageID: env.ID})
	case msgChatState:
		a.mu.Lock()
		a.chatEnabled, a.chatHostOnly = env.Enabled, env.HostOnly
		a.mu.Unlock()
		a.emit(events.ChatStateChanged{Enabled: env.Enabled, HostOnlyMode: env.HostOnly})
	case msgHand:
		a.mu.Lock()
		p, ok := a.remote[from]
		if ok {
			p.IsHandRaised = env.Raised
			a.raisedHands[from] = env.Raised
		}
		a.mu.Unlock()
		if ok {
			a.emit(events.HandRaisedChanged{UID: from, IsRaised: env.Raised})
		}
	case msgHandsLower:
		a.lowerAllHands()
	default:
		a.logger.Debugw("Unknown stream message type", "uid", from, "type", env.Type)
	}
}
