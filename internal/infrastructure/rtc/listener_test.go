package rtc

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/events"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/ports"
	apperrors "github.com/DiagVN/diag-video-call-ui-kit/pkg/errors"
)

func remoteVideoOn(l *eventLog, uid domain.UID) int {
	var n int
	for _, e := range eventsOf[events.RemoteVideoChanged](l) {
		if e.UID == uid && e.Enabled {
			n++
		}
	}
	return n
}

func TestSubscribe_RetriesUntilUserIsQueryable(t *testing.T) {
	h := newHarness(t)
	h.join(t, "demo", "1")
	peer := joinPeer(t, h.engine.Hub(), "demo", "7")
	h.idle(t)

	h.engine.HideUser("7", 2)
	peer.publishVideo(t)
	h.idle(t)

	require.Eventually(t, func() bool { return len(h.observer.Subscribes()) == 1 }, waitFor, 5*time.Millisecond)
	rec := h.observer.Subscribes()[0]
	assert.Equal(t, subscribeRecord{kind: domain.MediaVideo, outcome: "succeeded", attempts: 3}, rec)

	require.Eventually(t, func() bool { return remoteVideoOn(h.log, "7") == 1 }, waitFor, 5*time.Millisecond)
	assert.True(t, h.mainClient(t).Subscribed("7", domain.MediaVideo))

	// Late catch-up passes must not announce the same track again.
	h.clock.Add(time.Second)
	assert.Never(t, func() bool { return remoteVideoOn(h.log, "7") > 1 }, 100*time.Millisecond, 10*time.Millisecond)

	for _, p := range h.adapter.GetParticipants() {
		if p.ID == "7" {
			assert.True(t, p.VideoEnabled)
		}
	}
}

func TestSubscribe_StopsAtMaxAttempts(t *testing.T) {
	h := newHarness(t)
	h.join(t, "demo", "1")
	peer := joinPeer(t, h.engine.Hub(), "demo", "7")
	h.idle(t)

	h.engine.HideUser("7", 1000)
	peer.publishVideo(t)
	h.idle(t)

	require.Eventually(t, func() bool { return len(h.observer.Subscribes()) == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, subscribeRecord{kind: domain.MediaVideo, outcome: "exhausted", attempts: 5}, h.observer.Subscribes()[0])

	assert.Equal(t, []apperrors.ErrorCode{apperrors.ErrCodeSubscribeFailed}, errorCodes(h.log))
	assert.Equal(t, 1, h.logs.FilterMessage("Subscribe retries exhausted").Len())
	assert.Zero(t, remoteVideoOn(h.log, "7"))
}

func TestSubscribe_UntrackedUserIsRetried(t *testing.T) {
	h := newHarness(t)
	h.join(t, "demo", "1")
	h.idle(t)

	// The join for a user the adapter has not tracked yet may still be in
	// flight, so its publication is retried rather than dropped.
	client := h.mainClient(t)
	l := &clientListener{a: h.adapter, client: client}
	l.OnUserPublished("55", domain.MediaVideo)

	require.Eventually(t, func() bool { return len(h.observer.Subscribes()) == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, subscribeRecord{kind: domain.MediaVideo, outcome: "exhausted", attempts: 5}, h.observer.Subscribes()[0])
	assert.Equal(t, []apperrors.ErrorCode{apperrors.ErrCodeSubscribeFailed}, errorCodes(h.log))
}

func TestSubscribe_AbortsWhenTrackedUserLeft(t *testing.T) {
	gate := make(chan struct{})
	var sleeps atomic.Int32
	// The first wait passes so one attempt runs while the user is present.
	sleep := func(ctx context.Context, d time.Duration) error {
		if sleeps.Add(1) == 1 {
			return nil
		}
		select {
		case <-gate:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h := newHarness(t, withSleep(sleep))
	h.join(t, "demo", "1")
	peer := joinPeer(t, h.engine.Hub(), "demo", "7")
	h.idle(t)
	require.True(t, h.adapter.tracked("7"))

	h.engine.HideUser("7", 1000)
	peer.publishVideo(t)
	h.idle(t)
	require.Eventually(t, func() bool { return sleeps.Load() == 2 }, waitFor, 5*time.Millisecond)

	require.NoError(t, peer.client.Leave(context.Background()))
	h.idle(t)
	require.Eventually(t, func() bool { return !h.adapter.tracked("7") }, waitFor, 5*time.Millisecond)
	close(gate)

	require.Eventually(t, func() bool { return len(h.observer.Subscribes()) == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, subscribeRecord{kind: domain.MediaVideo, outcome: "aborted", attempts: 2}, h.observer.Subscribes()[0])
	assert.Empty(t, errorCodes(h.log))
}

func TestSubscribe_GuardStopsAfterLeave(t *testing.T) {
	gate := make(chan struct{})
	sleep := func(ctx context.Context, d time.Duration) error {
		select {
		case <-gate:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h := newHarness(t, withSleep(sleep))
	h.join(t, "demo", "1")
	peer := joinPeer(t, h.engine.Hub(), "demo", "7")
	h.idle(t)

	peer.publishVideo(t)
	h.idle(t)
	require.NoError(t, h.adapter.Leave(context.Background()))
	close(gate)

	require.Eventually(t, func() bool { return len(h.observer.Subscribes()) == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, "aborted", h.observer.Subscribes()[0].outcome)
	assert.Zero(t, h.observer.Subscribes()[0].attempts)
	assert.Empty(t, errorCodes(h.log))
}

func TestSubscribe_AudioIsPlayedOnSelectedSpeaker(t *testing.T) {
	h := newHarness(t)
	h.join(t, "demo", "1")
	require.NoError(t, h.adapter.SetOutputDevice(context.Background(), "default"))

	peer := joinPeer(t, h.engine.Hub(), "demo", "7")
	peer.publishAudio(t)
	h.idle(t)

	main := h.mainClient(t)
	require.Eventually(t, func() bool { return main.RemoteAudioPlaying("7") }, waitFor, 5*time.Millisecond)
	assert.Equal(t, "default", main.RemoteAudioDevice("7"))

	changes := eventsOf[events.DeviceChanged](h.log)
	require.Len(t, changes, 1)
	assert.Equal(t, domain.DeviceKindAudioOutput, changes[0].Kind)
}

func TestUnpublish_ClearsSubscription(t *testing.T) {
	h := newHarness(t)
	h.join(t, "demo", "1")
	peer := joinPeer(t, h.engine.Hub(), "demo", "7")
	cam, err := peer.engine.CreateCameraTrack(context.Background(), ports.CameraConfig{})
	require.NoError(t, err)
	require.NoError(t, peer.client.Publish(context.Background(), cam))
	h.idle(t)
	require.Eventually(t, func() bool { return remoteVideoOn(h.log, "7") == 1 }, waitFor, 5*time.Millisecond)

	require.NoError(t, peer.client.Unpublish(context.Background(), cam))
	h.idle(t)

	video := eventsOf[events.RemoteVideoChanged](h.log)
	require.Len(t, video, 2)
	assert.False(t, video[1].Enabled)
	assert.False(t, h.adapter.isSubscribed("7", domain.MediaVideo))

	require.NoError(t, peer.client.Publish(context.Background(), cam))
	h.idle(t)
	require.Eventually(t, func() bool { return remoteVideoOn(h.log, "7") == 2 }, waitFor, 5*time.Millisecond)
}
