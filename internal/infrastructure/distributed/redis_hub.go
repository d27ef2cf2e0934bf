package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/infrastructure/simengine"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	hubPrefix     = "callkit:hub:"
	membersPrefix = "callkit:members:"
	uidKey        = "callkit:uid"
	uidBase       = 10000
)

// envelope is what travels over pub/sub.
type envelope struct {
	InstanceID string             `json:"instance_id"`
	Event      simengine.HubEvent `json:"event"`
	Member     *simengine.Member  `json:"member,omitempty"`
}

// RedisHub shares simulated channels between processes. Local members are
// served by an in-process hub; everything they do is also published on
// callkit:hub:<channel> and mirrored into the callkit:members:<channel> hash.
type RedisHub struct {
	client     *redis.Client
	local      *simengine.MemoryHub
	instanceID string
	logger     *zap.SugaredLogger

	mu     sync.Mutex
	pubsub *redis.PubSub
}

func NewRedisHub(client *redis.Client, logger *zap.SugaredLogger) *RedisHub {
	return &RedisHub{
		client:     client,
		local:      simengine.NewMemoryHub(),
		instanceID: uuid.NewString(),
		logger:     logger,
	}
}

func (h *RedisHub) InstanceID() string { return h.instanceID }

func channelKey(channel string) string { return hubPrefix + channel }

func membersKey(channel string) string { return membersPrefix + channel }

// NextUID allocates a uid that is unique across every instance.
func (h *RedisHub) NextUID(ctx context.Context) (domain.UID, error) {
	n, err := h.client.Incr(ctx, uidKey).Result()
	if err != nil {
		return "", fmt.Errorf("failed to allocate uid: %w", err)
	}
	return domain.UID(strconv.FormatInt(uidBase+n, 10)), nil
}

func (h *RedisHub) Join(ctx context.Context, channel string, uid domain.UID, sink simengine.Sink) error {
	member := simengine.Member{UID: uid}
	data, err := json.Marshal(member)
	if err != nil {
		return fmt.Errorf("failed to marshal member: %w", err)
	}
	added, err := h.client.HSetNX(ctx, membersKey(channel), string(uid), data).Result()
	if err != nil {
		return fmt.Errorf("failed to register member: %w", err)
	}
	if !added {
		return fmt.Errorf("uid %s already in channel %s", uid, channel)
	}
	if err := h.local.Join(ctx, channel, uid, sink); err != nil {
		h.client.HDel(ctx, membersKey(channel), string(uid))
		return err
	}

	return h.publish(ctx, simengine.HubEvent{Type: simengine.HubUserJoined, Channel: channel, UID: uid}, &member)
}

func (h *RedisHub) Leave(ctx context.Context, channel string, uid domain.UID, reason string) error {
	if err := h.local.Leave(ctx, channel, uid, reason); err != nil {
		return err
	}
	removed, err := h.client.HDel(ctx, membersKey(channel), string(uid)).Result()
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	if removed == 0 {
		return nil
	}

	return h.publish(ctx, simengine.HubEvent{Type: simengine.HubUserLeft, Channel: channel, UID: uid, Reason: reason}, nil)
}

func (h *RedisHub) SetPublished(ctx context.Context, channel string, uid domain.UID, kind domain.MediaKind, published bool) error {
	if err := h.local.SetPublished(ctx, channel, uid, kind, published); err != nil {
		return err
	}

	member, err := h.member(ctx, channel, uid)
	if err != nil {
		return err
	}
	if kind == domain.MediaAudio {
		member.HasAudio = published
	} else {
		member.HasVideo = published
	}
	data, err := json.Marshal(member)
	if err != nil {
		return fmt.Errorf("failed to marshal member: %w", err)
	}
	if err := h.client.HSet(ctx, membersKey(channel), string(uid), data).Err(); err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}

	typ := simengine.HubUserPublished
	if !published {
		typ = simengine.HubUserUnpublished
	}
	return h.publish(ctx, simengine.HubEvent{Type: typ, Channel: channel, UID: uid, Kind: kind}, &member)
}

func (h *RedisHub) Broadcast(ctx context.Context, channel string, from domain.UID, data []byte) error {
	if err := h.local.Broadcast(ctx, channel, from, data); err != nil {
		return err
	}
	return h.publish(ctx, simengine.HubEvent{Type: simengine.HubStreamMessage, Channel: channel, UID: from, Data: data}, nil)
}

func (h *RedisHub) Members(ctx context.Context, channel string) ([]simengine.Member, error) {
	raw, err := h.client.HGetAll(ctx, membersKey(channel)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	out := make([]simengine.Member, 0, len(raw))
	for uid, data := range raw {
		var m simengine.Member
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			h.logger.Warnw("Skipping unreadable member", "channel", channel, "uid", uid, "error", err)
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

func (h *RedisHub) member(ctx context.Context, channel string, uid domain.UID) (simengine.Member, error) {
	data, err := h.client.HGet(ctx, membersKey(channel), string(uid)).Result()
	if err == redis.Nil {
		return simengine.Member{UID: uid}, nil
	}
	if err != nil {
		return simengine.Member{}, fmt.Errorf("failed to read member: %w", err)
	}
	var m simengine.Member
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return simengine.Member{}, fmt.Errorf("failed to unmarshal member: %w", err)
	}
	return m, nil
}

func (h *RedisHub) publish(ctx context.Context, ev simengine.HubEvent, member *simengine.Member) error {
	data, err := json.Marshal(envelope{InstanceID: h.instanceID, Event: ev, Member: member})
	if err != nil {
		return fmt.Errorf("failed to marshal hub event: %w", err)
	}
	if err := h.client.Publish(ctx, channelKey(ev.Channel), data).Err(); err != nil {
		return fmt.Errorf("failed to publish hub event: %w", err)
	}

	h.logger.Debugw("Published hub event", "type", ev.Type, "channel", ev.Channel, "uid", ev.UID)
	return nil
}

// Run relays events published by other instances to local members until ctx
// is done.
func (h *RedisHub) Run(ctx context.Context) error {
	h.mu.Lock()
	if h.pubsub != nil {
		h.mu.Unlock()
		return fmt.Errorf("already running")
	}
	h.pubsub = h.client.PSubscribe(ctx, hubPrefix+"*")
	pubsub := h.pubsub
	h.mu.Unlock()

	defer pubsub.Close()
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			ev, ok := h.decode(msg.Channel, msg.Payload)
			if ok {
				h.local.Deliver(ev)
			}
		}
	}
}

// decode reports false for unreadable payloads and for this instance's own events.
func (h *RedisHub) decode(channel, payload string) (simengine.HubEvent, bool) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		h.logger.Warnw("Failed to unmarshal hub event", "channel", channel, "error", err)
		return simengine.HubEvent{}, false
	}
	if env.InstanceID == h.instanceID {
		return simengine.HubEvent{}, false
	}
	if env.Event.Channel == "" {
		env.Event.Channel = strings.TrimPrefix(channel, hubPrefix)
	}
	return env.Event, true
}

func (h *RedisHub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pubsub != nil {
		return h.pubsub.Close()
	}
	return nil
}

var _ simengine.Hub = (*RedisHub)(nil)
