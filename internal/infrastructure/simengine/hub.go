package simengine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
)

type HubEventType string

const (
	HubUserJoined      HubEventType = "user.joined"
	HubUserLeft        HubEventType = "user.left"
	HubUserPublished   HubEventType = "user.published"
	HubUserUnpublished HubEventType = "user.unpublished"
	HubStreamMessage   HubEventType = "stream.message"
)

// HubEvent is what one channel member tells the others.
type HubEvent struct {
	Type    HubEventType     `json:"type"`
	Channel string           `json:"channel"`
	UID     domain.UID       `json:"uid"`
	Kind    domain.MediaKind `json:"kind,omitempty"`
	Reason  string           `json:"reason,omitempty"`
	Data    []byte           `json:"data,omitempty"`
}

// Member is a channel member as seen by the hub.
type Member struct {
	UID      domain.UID `json:"uid"`
	HasAudio bool       `json:"has_audio"`
	HasVideo bool       `json:"has_video"`
}

// Sink receives events for one member. It must not block.
type Sink func(HubEvent)

// Hub connects simulated clients that share a channel. Events are never
// delivered back to the member that caused them.
type Hub interface {
	NextUID(ctx context.Context) (domain.UID, error)
	Join(ctx context.Context, channel string, uid domain.UID, sink Sink) error
	Leave(ctx context.Context, channel string, uid domain.UID, reason string) error
	SetPublished(ctx context.Context, channel string, uid domain.UID, kind domain.MediaKind, published bool) error
	Broadcast(ctx context.Context, channel string, from domain.UID, data []byte) error
	Members(ctx context.Context, channel string) ([]Member, error)
}

type memoryMember struct {
	Member
	sink Sink
}

// MemoryHub is an in-process Hub.
type MemoryHub struct {
	uidSeq atomic.Uint64

	mu       sync.RWMutex
	channels map[string]map[domain.UID]*memoryMember
}

func NewMemoryHub() *MemoryHub {
	h := &MemoryHub{channels: make(map[string]map[domain.UID]*memoryMember)}
	h.uidSeq.Store(10000)
	return h
}

func (h *MemoryHub) NextUID(ctx context.Context) (domain.UID, error) {
	return domain.UID(fmt.Sprintf("%d", h.uidSeq.Add(1))), nil
}

func (h *MemoryHub) Join(ctx context.Context, channel string, uid domain.UID, sink Sink) error {
	h.mu.Lock()
	members, ok := h.channels[channel]
	if !ok {
		members = make(map[domain.UID]*memoryMember)
		h.channels[channel] = members
	}
	if _, exists := members[uid]; exists {
		h.mu.Unlock()
		return fmt.Errorf("uid %s already in channel %s", uid, channel)
	}
	members[uid] = &memoryMember{Member: Member{UID: uid}, sink: sink}
	h.mu.Unlock()

	h.fanOut(HubEvent{Type: HubUserJoined, Channel: channel, UID: uid})
	return nil
}

func (h *MemoryHub) Leave(ctx context.Context, channel string, uid domain.UID, reason string) error {
	h.mu.Lock()
	members := h.channels[channel]
	if _, ok := members[uid]; !ok {
		h.mu.Unlock()
		return nil
	}
	delete(members, uid)
	if len(members) == 0 {
		delete(h.channels, channel)
	}
	h.mu.Unlock()

	h.fanOut(HubEvent{Type: HubUserLeft, Channel: channel, UID: uid, Reason: reason})
	return nil
}

func (h *MemoryHub) SetPublished(ctx context.Context, channel string, uid domain.UID, kind domain.MediaKind, published bool) error {
	h.mu.Lock()
	m, ok := h.channels[channel][uid]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("uid %s not in channel %s", uid, channel)
	}
	if kind == domain.MediaAudio {
		m.HasAudio = published
	} else {
		m.HasVideo = published
	}
	h.mu.Unlock()

	typ := HubUserPublished
	if !published {
		typ = HubUserUnpublished
	}
	h.fanOut(HubEvent{Type: typ, Channel: channel, UID: uid, Kind: kind})
	return nil
}

func (h *MemoryHub) Broadcast(ctx context.Context, channel string, from domain.UID, data []byte) error {
	h.fanOut(HubEvent{Type: HubStreamMessage, Channel: channel, UID: from, Data: data})
	return nil
}

func (h *MemoryHub) Members(ctx context.Context, channel string) ([]Member, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Member, 0, len(h.channels[channel]))
	for _, m := range h.channels[channel] {
		out = append(out, m.Member)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

// Deliver fans an event that originated elsewhere out to local members.
func (h *MemoryHub) Deliver(ev HubEvent) {
	h.fanOut(ev)
}

func (h *MemoryHub) fanOut(ev HubEvent) {
	h.mu.RLock()
	sinks := make([]Sink, 0, len(h.channels[ev.Channel]))
	for uid, m := range h.channels[ev.Channel] {
		if uid == ev.UID || m.sink == nil {
			continue
		}
		sinks = append(sinks, m.sink)
	}
	h.mu.RUnlock()

	for _, sink := range sinks {
		sink(ev)
	}
}
