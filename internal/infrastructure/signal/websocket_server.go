package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/events"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/ports"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/services"
	apperrors "github.com/DiagVN/diag-video-call-ui-kit/pkg/errors"
	"github.com/DiagVN/diag-video-call-ui-kit/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // UI runs on localhost next to the daemon
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// Controller is the part of the call store the bridge drives.
type Controller interface {
	Snapshot() services.State
	ToggleMic(ctx context.Context) (bool, error)
	ToggleCam(ctx context.Context) (bool, error)
	StartScreenShare(ctx context.Context, opts domain.ScreenShareOptions) error
	StopScreenShare(ctx context.Context) error
	Leave(ctx context.Context) error
	SendChatMessage(ctx context.Context, content, replyTo string) error
	RaiseHand(ctx context.Context) error
	LowerHand(ctx context.Context) error
	SetLayoutMode(mode domain.LayoutMode) error
	PinParticipant(uid domain.UID)
	OpenChat()
	CloseChat()
}

type Options struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	SendBufferSize    int
	MessagesPerSecond float64
	Burst             int
	MaxMessageSize    int64
}

func DefaultOptions() Options {
	return Options{
		PingInterval:      30 * time.Second,
		PongTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SendBufferSize:    256,
		MessagesPerSecond: 10,
		Burst:             20,
		MaxMessageSize:    16 * 1024,
	}
}

// Message is a command from the UI.
type Message struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound is everything the bridge writes: the initial state, bus events,
// command acks and errors.
type Outbound struct {
	Type    string              `json:"type"`
	ID      string              `json:"id,omitempty"`
	Payload interface{}         `json:"payload,omitempty"`
	Code    apperrors.ErrorCode `json:"code,omitempty"`
	Message string              `json:"message,omitempty"`
}

type ScreenSharePayload struct {
	WithAudio bool `json:"with_audio"`
}

type ChatPayload struct {
	Content string `json:"content"`
	ReplyTo string `json:"reply_to,omitempty"`
}

type LayoutPayload struct {
	Mode domain.LayoutMode `json:"mode"`
}

type PinPayload struct {
	UID domain.UID `json:"uid"`
}

type client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	done    chan struct{}
	once    sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// EventBridge streams bus events to websocket clients and turns their
// messages into store actions.
type EventBridge struct {
	bus     *events.Bus
	store   Controller
	opts    Options
	logger  *zap.SugaredLogger
	handler map[string]func(ctx context.Context, msg Message) error

	mu      sync.RWMutex
	clients map[string]*client
	unsubs  []events.Unsubscribe
}

func NewEventBridge(bus *events.Bus, store Controller, opts Options, logger *zap.SugaredLogger) *EventBridge {
	if opts.SendBufferSize < 1 {
		opts.SendBufferSize = 1
	}
	b := &EventBridge{
		bus:     bus,
		store:   store,
		opts:    opts,
		logger:  logger,
		clients: make(map[string]*client),
	}
	b.handler = map[string]func(context.Context, Message) error{
		"toggle_mic":         b.handleToggleMic,
		"toggle_cam":         b.handleToggleCam,
		"start_screen_share": b.handleStartScreenShare,
		"stop_screen_share":  func(ctx context.Context, _ Message) error { return store.StopScreenShare(ctx) },
		"leave":              func(ctx context.Context, _ Message) error { return store.Leave(ctx) },
		"send_chat":          b.handleSendChat,
		"raise_hand":         func(ctx context.Context, _ Message) error { return store.RaiseHand(ctx) },
		"lower_hand":         func(ctx context.Context, _ Message) error { return store.LowerHand(ctx) },
		"set_layout":         b.handleSetLayout,
		"pin":                b.handlePin,
		"open_chat":          func(context.Context, Message) error { store.OpenChat(); return nil },
		"close_chat":         func(context.Context, Message) error { store.CloseChat(); return nil },
	}

	for _, name := range events.Names() {
		b.unsubs = append(b.unsubs, bus.On(name, b.broadcast))
	}
	return b
}

// Close detaches from the bus and drops every connection.
func (b *EventBridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, u := range b.unsubs {
		u()
	}
	b.unsubs = nil
	for id, c := range b.clients {
		c.close()
		delete(b.clients, id)
	}
}

func (b *EventBridge) ConnectionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *EventBridge) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		b.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	cl := &client{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan []byte, b.opts.SendBufferSize),
		limiter: rate.NewLimiter(rate.Limit(b.opts.MessagesPerSecond), b.opts.Burst),
		done:    make(chan struct{}),
	}

	// The snapshot is queued before the client can see any event.
	state, err := json.Marshal(Outbound{Type: "state", Payload: b.store.Snapshot()})
	if err != nil {
		b.logger.Errorw("failed to marshal state", "error", err)
		conn.Close()
		return
	}
	b.mu.Lock()
	cl.send <- state
	b.clients[cl.id] = cl
	b.mu.Unlock()

	b.logger.Infow("UI connected", "conn_id", cl.id)

	go b.writePump(cl)
	b.readPump(c.Request.Context(), cl)

	b.mu.Lock()
	delete(b.clients, cl.id)
	b.mu.Unlock()
	cl.close()

	b.logger.Infow("UI disconnected", "conn_id", cl.id)
}

func (b *EventBridge) readPump(ctx context.Context, cl *client) {
	conn := cl.conn
	conn.SetReadLimit(b.opts.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(b.opts.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(b.opts.PongTimeout))
		return nil
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.logger.Infow("error reading message from UI", "conn_id", cl.id, "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(b.opts.PongTimeout))

		if !cl.limiter.Allow() {
			b.reply(cl, failure(msg.ID, apperrors.NewRateLimitError()))
			continue
		}
		b.reply(cl, b.dispatch(ctx, cl.id, msg))
	}
}

func (b *EventBridge) writePump(cl *client) {
	ping := time.NewTicker(b.opts.PingInterval)
	defer func() {
		ping.Stop()
		cl.conn.Close()
	}()

	for {
		select {
		case <-cl.done:
			cl.conn.SetWriteDeadline(time.Now().Add(b.opts.WriteTimeout))
			cl.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case data := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(b.opts.WriteTimeout))
			if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				b.logger.Infow("error writing to UI", "conn_id", cl.id, "error", err)
				return
			}
		case <-ping.C:
			cl.conn.SetWriteDeadline(time.Now().Add(b.opts.WriteTimeout))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				b.logger.Infow("error sending ping", "conn_id", cl.id, "error", err)
				return
			}
		}
	}
}

func (b *EventBridge) dispatch(ctx context.Context, connID string, msg Message) Outbound {
	ctx, span := tracing.TraceWebSocketMessage(ctx, msg.Type, connID)
	defer span.End()

	h, ok := b.handler[msg.Type]
	if !ok {
		return failure(msg.ID, apperrors.NewInvalidInputError(fmt.Sprintf("unknown message type: %s", msg.Type)))
	}
	if err := h(ctx, msg); err != nil {
		tracing.RecordError(ctx, err)
		b.logger.Infow("command failed", "conn_id", connID, "type", msg.Type, "error", err)
		return failure(msg.ID, err)
	}
	return Outbound{Type: "ack", ID: msg.ID}
}

func failure(id string, err error) Outbound {
	return Outbound{Type: "error", ID: id, Code: apperrors.CodeOf(err), Message: err.Error()}
}

func (b *EventBridge) reply(cl *client, out Outbound) {
	data, err := json.Marshal(out)
	if err != nil {
		b.logger.Errorw("failed to marshal reply", "error", err)
		return
	}
	b.enqueue(cl, data)
}

func (b *EventBridge) enqueue(cl *client, data []byte) {
	select {
	case cl.send <- data:
	case <-cl.done:
	default:
		b.logger.Warnw("UI send buffer full, dropping message", "conn_id", cl.id)
	}
}

func (b *EventBridge) broadcast(e events.Event) {
	data, err := json.Marshal(Outbound{Type: string(e.EventName()), Payload: e})
	if err != nil {
		b.logger.Errorw("failed to marshal event", "event", e.EventName(), "error", err)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, cl := range b.clients {
		b.enqueue(cl, data)
	}
}

func decode(msg Message, v interface{}) error {
	if len(msg.Payload) == 0 {
		return apperrors.NewInvalidInputError(msg.Type + " requires a payload")
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return apperrors.NewInvalidInputError(fmt.Sprintf("invalid %s payload: %v", msg.Type, err))
	}
	return nil
}

func (b *EventBridge) handleToggleMic(ctx context.Context, _ Message) error {
	_, err := b.store.ToggleMic(ctx)
	return err
}

func (b *EventBridge) handleToggleCam(ctx context.Context, _ Message) error {
	_, err := b.store.ToggleCam(ctx)
	return err
}

func (b *EventBridge) handleStartScreenShare(ctx context.Context, msg Message) error {
	var p ScreenSharePayload
	if len(msg.Payload) > 0 {
		if err := decode(msg, &p); err != nil {
			return err
		}
	}
	return b.store.StartScreenShare(ctx, domain.ScreenShareOptions{WithAudio: p.WithAudio})
}

func (b *EventBridge) handleSendChat(ctx context.Context, msg Message) error {
	var p ChatPayload
	if err := decode(msg, &p); err != nil {
		return err
	}
	if p.Content == "" {
		return apperrors.NewInvalidInputError("content is required")
	}
	return b.store.SendChatMessage(ctx, p.Content, p.ReplyTo)
}

func (b *EventBridge) handleSetLayout(_ context.Context, msg Message) error {
	var p LayoutPayload
	if err := decode(msg, &p); err != nil {
		return err
	}
	return b.store.SetLayoutMode(p.Mode)
}

func (b *EventBridge) handlePin(_ context.Context, msg Message) error {
	var p PinPayload
	if err := decode(msg, &p); err != nil {
		return err
	}
	b.store.PinParticipant(p.UID)
	return nil
}

var _ ports.EventStreamHandler = (*EventBridge)(nil)
