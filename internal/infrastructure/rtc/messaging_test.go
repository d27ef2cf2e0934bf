package rtc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/events"
	apperrors "github.com/DiagVN/diag-video-call-ui-kit/pkg/errors"
)

// pair joins a host adapter and a guest adapter to the same channel.
func pair(t *testing.T) (host, guest *harness) {
	t.Helper()
	host = newHarness(t)
	guest = newHarness(t, withHub(host.engine.Hub()))
	host.join(t, "room", "1", func(o *domain.JoinOptions) { o.IsHost = true })
	guest.join(t, "room", "2")
	host.idle(t)
	guest.idle(t)
	return host, guest
}

func TestChat_DeliveredToOtherParticipants(t *testing.T) {
	host, guest := pair(t)

	require.NoError(t, host.adapter.SendChatMessage(context.Background(), "hello", ""))

	sent := eventsOf[events.ChatMessageSent](host.log)
	require.Len(t, sent, 1)
	assert.Equal(t, "hello", sent[0].Message.Content)
	assert.True(t, sent[0].Message.IsLocal)
	assert.Equal(t, "Local 1", sent[0].Message.SenderName)
	assert.NotEmpty(t, sent[0].Message.ID)

	guest.idle(t)
	require.Eventually(t, func() bool {
		return len(eventsOf[events.ChatMessageReceived](guest.log)) == 1
	}, waitFor, 5*time.Millisecond)
	got := eventsOf[events.ChatMessageReceived](guest.log)[0].Message
	assert.Equal(t, sent[0].Message.ID, got.ID)
	assert.Equal(t, domain.UID("1"), got.SenderID)
	assert.Equal(t, "Local 1", got.SenderName)
	assert.False(t, got.IsLocal)
	assert.Empty(t, eventsOf[events.ChatMessageReceived](host.log), "no echo to the sender")
}

func TestChat_ReplyAndDelete(t *testing.T) {
	host, guest := pair(t)
	ctx := context.Background()

	require.NoError(t, guest.adapter.SendChatMessage(ctx, "answer", "msg-1"))
	require.NoError(t, guest.adapter.DeleteChatMessage(ctx, "msg-1"))
	host.idle(t)

	require.Eventually(t, func() bool {
		return len(eventsOf[events.ChatMessageDeleted](host.log)) == 1
	}, waitFor, 5*time.Millisecond)
	received := eventsOf[events.ChatMessageReceived](host.log)
	require.Len(t, received, 1)
	assert.Equal(t, "msg-1", received[0].Message.ReplyTo)
	assert.Equal(t, "msg-1", eventsOf[events.ChatMessageDeleted](host.log)[0].MessageID)

	err := guest.adapter.DeleteChatMessage(ctx, "")
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.CodeOf(err))
}

func TestChat_Validation(t *testing.T) {
	host, _ := pair(t)

	err := host.adapter.SendChatMessage(context.Background(), "   ", "")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.CodeOf(err))
	assert.Empty(t, eventsOf[events.ChatMessageSent](host.log))
}

func TestChat_HostOnlyModeIsShared(t *testing.T) {
	host, guest := pair(t)
	ctx := context.Background()

	require.NoError(t, host.adapter.SetChatHostOnly(ctx, true))
	guest.idle(t)
	require.Eventually(t, func() bool {
		return len(eventsOf[events.ChatStateChanged](guest.log)) == 1
	}, waitFor, 5*time.Millisecond)
	state := eventsOf[events.ChatStateChanged](guest.log)[0]
	assert.True(t, state.Enabled)
	assert.True(t, state.HostOnlyMode)

	err := guest.adapter.SendChatMessage(ctx, "can I speak?", "")
	assert.Equal(t, apperrors.ErrCodeConflict, apperrors.CodeOf(err))
	require.NoError(t, host.adapter.SendChatMessage(ctx, "hosts only", ""))

	require.NoError(t, host.adapter.SetChatEnabled(ctx, false))
	guest.idle(t)
	require.Eventually(t, func() bool {
		return len(eventsOf[events.ChatStateChanged](guest.log)) == 2
	}, waitFor, 5*time.Millisecond)
	err = host.adapter.SendChatMessage(ctx, "nobody", "")
	assert.Equal(t, apperrors.ErrCodeConflict, apperrors.CodeOf(err))
}

func TestChat_NotInCall(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.adapter.SendChatMessage(context.Background(), "hello", ""))

	assert.Equal(t, []apperrors.ErrorCode{apperrors.ErrCodeMessageFailed}, errorCodes(h.log))
	assert.Empty(t, eventsOf[events.ChatMessageSent](h.log))
}

func TestHandRaise_RoundTrip(t *testing.T) {
	host, guest := pair(t)
	ctx := context.Background()

	require.NoError(t, guest.adapter.SetHandRaised(ctx, true))
	assert.True(t, guest.local(t).IsHandRaised)
	local := eventsOf[events.HandRaisedChanged](guest.log)
	require.Len(t, local, 1)
	assert.Equal(t, events.HandRaisedChanged{UID: "2", IsRaised: true}, local[0])

	host.idle(t)
	require.Eventually(t, func() bool {
		return len(eventsOf[events.HandRaisedChanged](host.log)) == 1
	}, waitFor, 5*time.Millisecond)
	for _, p := range host.adapter.GetParticipants() {
		if p.ID == "2" {
			assert.True(t, p.IsHandRaised)
		}
	}

	require.NoError(t, host.adapter.LowerAllHands(ctx))
	for _, p := range host.adapter.GetParticipants() {
		assert.False(t, p.IsHandRaised)
	}

	guest.idle(t)
	require.Eventually(t, func() bool { return !guest.local(t).IsHandRaised }, waitFor, 5*time.Millisecond)
	lowered := eventsOf[events.HandRaisedChanged](guest.log)
	assert.Equal(t, events.HandRaisedChanged{UID: "2", IsRaised: false}, lowered[len(lowered)-1])
}

func TestHandRaise_NotInCall(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.adapter.SetHandRaised(context.Background(), true), domain.ErrNotInCall)

	require.NoError(t, h.adapter.LowerAllHands(context.Background()))
	assert.Equal(t, []apperrors.ErrorCode{apperrors.ErrCodeMessageFailed}, errorCodes(h.log))
}

func TestStreamMessages_UnknownAndMalformedAreIgnored(t *testing.T) {
	host, guest := pair(t)
	guestClient := guest.mainClient(t)

	require.NoError(t, guestClient.SendStreamMessage(context.Background(), []byte("not json")))
	data, err := json.Marshal(streamEnvelope{Type: "poll"})
	require.NoError(t, err)
	require.NoError(t, guestClient.SendStreamMessage(context.Background(), data))
	host.idle(t)

	assert.Empty(t, eventsOf[events.ChatMessageReceived](host.log))
	assert.Empty(t, errorCodes(host.log))
	assert.Equal(t, 1, host.logs.FilterMessage("Ignoring undecodable stream message").Len())
	assert.Equal(t, 1, host.logs.FilterMessage("Unknown stream message type").Len())
}
