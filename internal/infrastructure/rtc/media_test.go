package rtc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/events"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/infrastructure/simengine"
	apperrors "github.com/DiagVN/diag-video-call-ui-kit/pkg/errors"
)

func TestMedia_ToggleMicAfterMutedJoin(t *testing.T) {
	h := newHarness(t)
	h.join(t, "demo", "1", func(o *domain.JoinOptions) { o.JoinMuted = true })
	main := h.mainClient(t)
	require.Len(t, main.Published(), 1)

	on, err := h.adapter.ToggleMic(context.Background())
	require.NoError(t, err)
	assert.True(t, on)
	assert.Len(t, main.Published(), 2)
	assert.True(t, h.local(t).AudioEnabled)

	on, err = h.adapter.ToggleMic(context.Background())
	require.NoError(t, err)
	assert.False(t, on)
	assert.Len(t, main.Published(), 2, "muting keeps the track published")
	assert.False(t, h.local(t).AudioEnabled)

	audio := eventsOf[events.LocalAudioChanged](h.log)
	require.GreaterOrEqual(t, len(audio), 2)
	assert.True(t, audio[len(audio)-2].Enabled)
	assert.False(t, audio[len(audio)-1].Enabled)
}

func TestMedia_ToggleCamCreatesTrackLazily(t *testing.T) {
	h := newHarness(t)
	h.join(t, "demo", "1", func(o *domain.JoinOptions) { o.JoinVideoOff = true })
	main := h.mainClient(t)
	before := len(main.Published())

	on, err := h.adapter.ToggleCam(context.Background())
	require.NoError(t, err)
	assert.True(t, on)
	assert.Len(t, main.Published(), before+1)

	video := eventsOf[events.LocalVideoChanged](h.log)
	require.NotEmpty(t, video)
	last := video[len(video)-1]
	assert.True(t, last.Enabled)
	assert.Equal(t, "cam-front-0001", last.DeviceID)
}

func TestMedia_TrackFailureReportsDeviceError(t *testing.T) {
	h := newHarness(t)
	h.engine.FailTracks(simengine.SourceMicrophone, errors.New("NotAllowedError"))
	h.join(t, "demo", "1", func(o *domain.JoinOptions) { o.JoinMuted = true })

	on, err := h.adapter.ToggleMic(context.Background())
	require.NoError(t, err)
	assert.False(t, on)
	assert.Equal(t, []apperrors.ErrorCode{apperrors.ErrCodeDeviceError}, errorCodes(h.log))
	assert.Equal(t, domain.CallStateInCall, h.adapter.GetCallState())

	h.engine.FailTracks(simengine.SourceMicrophone, nil)
	on, err = h.adapter.ToggleMic(context.Background())
	require.NoError(t, err)
	assert.True(t, on)
}

func TestMedia_SetInputDeviceKeepsPublication(t *testing.T) {
	h := newHarness(t)
	h.join(t, "demo", "1")
	main := h.mainClient(t)
	before := sortedPublished(main)

	require.NoError(t, h.adapter.SetInputDevice(context.Background(), domain.DeviceSelection{
		MicrophoneID: "mic-usb-0001",
		CameraID:     "cam-back-0002",
	}))

	assert.Equal(t, before, sortedPublished(main))
	devices, err := h.adapter.GetDevices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "mic-usb-0001", devices.SelectedMicID)
	assert.Equal(t, "cam-back-0002", devices.SelectedCameraID)

	changes := eventsOf[events.DeviceChanged](h.log)
	require.Len(t, changes, 2)
	assert.Equal(t, domain.DeviceKindAudioInput, changes[0].Kind)
	assert.Equal(t, domain.DeviceKindVideoInput, changes[1].Kind)
}

func TestMedia_SetInputDeviceUnknownDevice(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.adapter.Init(context.Background()))

	require.NoError(t, h.adapter.SetInputDevice(context.Background(), domain.DeviceSelection{CameraID: "cam-missing"}))

	assert.Equal(t, []apperrors.ErrorCode{apperrors.ErrCodeDeviceError}, errorCodes(h.log))
	assert.Empty(t, eventsOf[events.DeviceChanged](h.log))
	devices, err := h.adapter.GetDevices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cam-front-0001", devices.SelectedCameraID)
}

func TestMedia_SwitchCameraCycles(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.adapter.Init(context.Background()))
	ctx := context.Background()

	require.NoError(t, h.adapter.SwitchCamera(ctx))
	devices, err := h.adapter.GetDevices(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cam-back-0002", devices.SelectedCameraID)

	require.NoError(t, h.adapter.SwitchCamera(ctx))
	devices, err = h.adapter.GetDevices(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cam-front-0001", devices.SelectedCameraID)
}

func TestMedia_SwitchCameraWithoutCameras(t *testing.T) {
	h := newHarness(t)
	h.engine.SetDevices([]domain.DeviceInfo{{ID: "default", Label: "Mic", Kind: domain.DeviceKindAudioInput}})

	require.NoError(t, h.adapter.SwitchCamera(context.Background()))
	assert.Equal(t, []apperrors.ErrorCode{apperrors.ErrCodeDeviceError}, errorCodes(h.log))
}

func TestMedia_HotUnplugMovesToRemainingDevice(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.adapter.Init(context.Background()))
	ctx := context.Background()
	require.NoError(t, h.adapter.SetInputDevice(ctx, domain.DeviceSelection{CameraID: "cam-back-0002"}))
	h.log.reset()

	h.engine.RemoveDevice(domain.DeviceKindVideoInput, "cam-back-0002")

	require.Eventually(t, func() bool {
		for _, c := range eventsOf[events.DeviceChanged](h.log) {
			if c.Kind == domain.DeviceKindVideoInput && c.DeviceID == "cam-front-0001" {
				return true
			}
		}
		return false
	}, waitFor, 5*time.Millisecond)

	updated := eventsOf[events.DevicesUpdated](h.log)
	require.NotEmpty(t, updated)
	assert.Len(t, updated[0].Devices.Cameras, 1)
	h.adapter.mu.Lock()
	camID := h.adapter.cam.DeviceID()
	h.adapter.mu.Unlock()
	assert.Equal(t, "cam-front-0001", camID)
}

func TestMedia_SetVideoQuality(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Stored before a camera exists and used when one is created.
	require.NoError(t, h.adapter.SetVideoQuality(ctx, domain.Quality360p))
	require.NoError(t, h.adapter.Init(ctx))
	h.adapter.mu.Lock()
	cam := h.adapter.cam.(*simengine.LocalTrack)
	h.adapter.mu.Unlock()
	want, ok := domain.Quality360p.EncoderProfile()
	require.True(t, ok)
	assert.Equal(t, want, cam.Encoder())

	require.NoError(t, h.adapter.SetVideoQuality(ctx, domain.Quality720p))
	want, _ = domain.Quality720p.EncoderProfile()
	assert.Equal(t, want, cam.Encoder())

	require.NoError(t, h.adapter.SetVideoQuality(ctx, domain.QualityAuto))
	assert.Equal(t, want, cam.Encoder(), "auto leaves the encoder alone")

	h.engine.FailEncoderConfig(errors.New("encoder busy"))
	require.NoError(t, h.adapter.SetVideoQuality(ctx, domain.Quality1080p))
	assert.Equal(t, []apperrors.ErrorCode{apperrors.ErrCodeQualityError}, errorCodes(h.log))
}

func TestMedia_AudioOnly(t *testing.T) {
	h := newHarness(t)
	h.join(t, "demo", "1")

	require.NoError(t, h.adapter.SetAudioOnly(context.Background(), true))
	assert.False(t, h.local(t).VideoEnabled)

	on, err := h.adapter.ToggleCam(context.Background())
	require.NoError(t, err)
	assert.True(t, on)
	assert.True(t, h.local(t).VideoEnabled)
}

func TestMedia_DualStreamAndRemoteStreamType(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.adapter.SetDualStream(ctx, true))
	h.join(t, "demo", "1")
	joinPeer(t, h.engine.Hub(), "demo", "2")
	h.idle(t)
	main := h.mainClient(t)

	assert.True(t, main.DualStream())
	require.NoError(t, h.adapter.SetDualStream(ctx, false))
	assert.False(t, main.DualStream())

	require.NoError(t, h.adapter.SetRemoteVideoStreamType(ctx, "2", domain.StreamLow))
	got, ok := main.RemoteStreamType("2")
	require.True(t, ok)
	assert.Equal(t, domain.StreamLow, got)
}

func TestMedia_Encryption(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.adapter.SetEncryption(ctx, domain.EncryptionConfig{Enabled: true, Mode: domain.EncryptionAES128GCM2}))
	assert.Equal(t, []apperrors.ErrorCode{apperrors.ErrCodeEncryptionFailed}, errorCodes(h.log))

	cfg := domain.EncryptionConfig{Enabled: true, Mode: domain.EncryptionAES128GCM2, Key: "secret", Salt: "c2FsdA=="}
	require.NoError(t, h.adapter.SetEncryption(ctx, cfg))
	h.join(t, "demo", "1")
	assert.Equal(t, cfg, h.mainClient(t).Encryption())
}

func TestMedia_SetClientRole(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.adapter.SetClientRole(ctx, "director")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.CodeOf(err))

	require.NoError(t, h.adapter.SetClientRole(ctx, domain.ClientRoleAudience))
	h.join(t, "demo", "1")
	assert.Equal(t, domain.RoleAudience, h.local(t).Role)
}

func TestMedia_RefreshToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.adapter.RefreshToken(ctx, "ignored"))
	assert.Empty(t, h.log.all())

	h.join(t, "demo", "1")
	require.NoError(t, h.adapter.RefreshToken(ctx, ""))
	assert.Equal(t, []apperrors.ErrorCode{apperrors.ErrCodeTokenFailed}, errorCodes(h.log))
	assert.Empty(t, eventsOf[events.TokenRefreshed](h.log))

	require.NoError(t, h.adapter.RefreshToken(ctx, "fresh-token"))
	assert.Len(t, eventsOf[events.TokenRefreshed](h.log), 1)
}
