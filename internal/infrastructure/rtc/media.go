package rtc

import (
	"context"
	"fmt"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/events"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/ports"
	apperrors "github.com/DiagVN/diag-video-call-ui-kit/pkg/errors"
)

// deviceCandidates is the fallback chain for opening a capture device:
// the selected device, the engine default, then the first enumerated one.
func deviceCandidates(selected string, list []domain.DeviceInfo) []string {
	out := []string{selected}
	if selected != "" {
		out = append(out, "")
	}
	if len(list) > 0 && list[0].ID != selected {
		out = append(out, list[0].ID)
	}
	return out
}

func (a *Adapter) createMicrophone(ctx context.Context) (ports.LocalAudioTrack, error) {
	a.mu.Lock()
	selected, list := a.devices.SelectedMicID, a.devices.Microphones
	a.mu.Unlock()

	var lastErr error
	for _, id := range deviceCandidates(selected, list) {
		track, err := a.engine.CreateMicrophoneTrack(ctx, ports.MicrophoneConfig{DeviceID: id})
		if err == nil {
			a.noteSelected(domain.DeviceKindAudioInput, track.DeviceID())
			return track, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("create microphone track: %w", lastErr)
}

func (a *Adapter) encoderConfig() domain.EncoderConfig {
	a.mu.Lock()
	preset := a.quality
	a.mu.Unlock()
	if cfg, ok := preset.EncoderProfile(); ok {
		return cfg
	}
	enc := a.cfg.VideoEncoder
	return domain.EncoderConfig{
		Width:      enc.Width,
		Height:     enc.Height,
		FrameRate:  enc.FrameRate,
		BitrateMin: enc.BitrateMin,
		BitrateMax: enc.BitrateMax,
	}
}

func (a *Adapter) createCamera(ctx context.Context) (ports.LocalVideoTrack, error) {
	a.mu.Lock()
	selected, list := a.devices.SelectedCameraID, a.devices.Cameras
	a.mu.Unlock()

	enc := a.encoderConfig()
	var lastErr error
	for _, id := range deviceCandidates(selected, list) {
		track, err := a.engine.CreateCameraTrack(ctx, ports.CameraConfig{DeviceID: id, Encoder: enc})
		if err == nil {
			a.noteSelected(domain.DeviceKindVideoInput, track.DeviceID())
			return track, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("create camera track: %w", lastErr)
}

func (a *Adapter) noteSelected(kind domain.DeviceKind, id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch kind {
	case domain.DeviceKindAudioInput:
		a.devices.SelectedMicID = id
	case domain.DeviceKindVideoInput:
		a.devices.SelectedCameraID = id
	case domain.DeviceKindAudioOutput:
		a.devices.SelectedSpeakerID = id
	}
}

func (a *Adapter) ToggleMic(ctx context.Context) (bool, error) {
	a.mediaMu.Lock()
	defer a.mediaMu.Unlock()

	a.mu.Lock()
	next := !a.micOn
	a.mu.Unlock()
	return a.setMicLocked(ctx, next), nil
}

func (a *Adapter) SetMicEnabled(ctx context.Context, enabled bool) error {
	a.mediaMu.Lock()
	defer a.mediaMu.Unlock()
	a.setMicLocked(ctx, enabled)
	return nil
}

// setMicLocked creates the mic on first enable and publishes it when joined.
// Failures emit DEVICE_ERROR and report false. Callers hold mediaMu.
func (a *Adapter) setMicLocked(ctx context.Context, enabled bool) bool {
	a.mu.Lock()
	mic, client, published := a.mic, a.client, a.micPublished
	a.mu.Unlock()

	if mic == nil {
		if !enabled {
			a.emit(events.LocalAudioChanged{Enabled: false})
			return false
		}
		var err error
		if mic, err = a.createMicrophone(ctx); err != nil {
			a.emitError(apperrors.ErrCodeDeviceError, true, err)
			return false
		}
		a.mu.Lock()
		a.mic = mic
		a.mu.Unlock()
		a.rebindEffects(ctx)
	}

	if err := mic.SetEnabled(ctx, enabled); err != nil {
		a.emitError(apperrors.ErrCodeDeviceError, true, err)
		return false
	}
	if enabled && client != nil && !published {
		if err := client.Publish(ctx, mic); err != nil {
			a.emitError(apperrors.ErrCodeDeviceError, true, fmt.Errorf("publish microphone: %w", err))
			return false
		}
		a.mu.Lock()
		a.micPublished = true
		a.mu.Unlock()
	}

	a.mu.Lock()
	a.micOn = enabled
	a.mu.Unlock()

	a.emit(events.LocalAudioChanged{Enabled: enabled, DeviceID: mic.DeviceID()})
	a.emitLocalUpdated()
	return enabled
}

func (a *Adapter) ToggleCam(ctx context.Context) (bool, error) {
	a.mediaMu.Lock()
	defer a.mediaMu.Unlock()

	a.mu.Lock()
	next := !a.camOn
	a.mu.Unlock()
	return a.setCamLocked(ctx, next), nil
}

func (a *Adapter) SetCamEnabled(ctx context.Context, enabled bool) error {
	a.mediaMu.Lock()
	defer a.mediaMu.Unlock()
	a.setCamLocked(ctx, enabled)
	return nil
}

func (a *Adapter) setCamLocked(ctx context.Context, enabled bool) bool {
	a.mu.Lock()
	cam, client, published := a.cam, a.client, a.camPublished
	a.mu.Unlock()

	if cam == nil {
		if !enabled {
			a.emit(events.LocalVideoChanged{Enabled: false})
			return false
		}
		var err error
		if cam, err = a.createCamera(ctx); err != nil {
			a.emitError(apperrors.ErrCodeDeviceError, true, err)
			return false
		}
		a.mu.Lock()
		a.cam = cam
		a.mu.Unlock()
		a.rebindEffects(ctx)
	}

	if err := cam.SetEnabled(ctx, enabled); err != nil {
		a.emitError(apperrors.ErrCodeDeviceError, true, err)
		return false
	}
	if enabled && client != nil && !published {
		if err := client.Publish(ctx, cam); err != nil {
			a.emitError(apperrors.ErrCodeDeviceError, true, fmt.Errorf("publish camera: %w", err))
			return false
		}
		a.mu.Lock()
		a.camPublished = true
		a.mu.Unlock()
	}

	a.mu.Lock()
	a.camOn = enabled
	if enabled {
		a.audioOnly = false
	}
	a.mu.Unlock()

	a.emit(events.LocalVideoChanged{Enabled: enabled, DeviceID: cam.DeviceID()})
	a.emitLocalUpdated()
	return enabled
}

// SwitchCamera cycles to the next enumerated camera.
func (a *Adapter) SwitchCamera(ctx context.Context) error {
	devices, err := a.GetDevices(ctx)
	if err != nil {
		a.emitError(apperrors.ErrCodeDeviceError, true, err)
		return nil
	}
	if len(devices.Cameras) == 0 {
		a.emitError(apperrors.ErrCodeDeviceError, true, domain.ErrNoCamera)
		return nil
	}
	if len(devices.Cameras) == 1 {
		return nil
	}

	current := 0
	for i, d := range devices.Cameras {
		if d.ID == devices.SelectedCameraID {
			current = i
			break
		}
	}
	next := devices.Cameras[(current+1)%len(devices.Cameras)]
	return a.SetInputDevice(ctx, domain.DeviceSelection{CameraID: next.ID})
}

// SetInputDevice swaps capture devices in place. Piped processors and
// publish state survive the swap.
func (a *Adapter) SetInputDevice(ctx context.Context, sel domain.DeviceSelection) error {
	a.mediaMu.Lock()
	a.mu.Lock()
	mic, cam := a.mic, a.cam
	a.mu.Unlock()

	if sel.MicrophoneID != "" {
		if a.swapDevice(ctx, mic, domain.DeviceKindAudioInput, sel.MicrophoneID) {
			a.emit(events.DeviceChanged{Kind: domain.DeviceKindAudioInput, DeviceID: sel.MicrophoneID})
		}
	}
	if sel.CameraID != "" {
		if a.swapDevice(ctx, cam, domain.DeviceKindVideoInput, sel.CameraID) {
			a.emit(events.DeviceChanged{Kind: domain.DeviceKindVideoInput, DeviceID: sel.CameraID})
		}
	}
	a.mediaMu.Unlock()

	if sel.SpeakerID != "" {
		return a.SetOutputDevice(ctx, sel.SpeakerID)
	}
	return nil
}

type deviceSetter interface {
	SetDevice(ctx context.Context, deviceID string) error
}

// swapDevice records id as selected and moves track onto it when the track
// exists. Callers hold mediaMu.
func (a *Adapter) swapDevice(ctx context.Context, track deviceSetter, kind domain.DeviceKind, id string) bool {
	if track != nil {
		if err := track.SetDevice(ctx, id); err != nil {
			a.emitError(apperrors.ErrCodeDeviceError, true, fmt.Errorf("switch %s to %s: %w", kind, id, err))
			return false
		}
	}
	a.noteSelected(kind, id)
	a.logger.Infow("Input device changed", "kind", kind, "device_id", id)
	return true
}

// SetOutputDevice routes every subscribed remote audio track to speakerID.
func (a *Adapter) SetOutputDevice(ctx context.Context, speakerID string) error {
	if client := a.currentClient(); client != nil {
		for _, u := range client.RemoteUsers() {
			if u.AudioTrack == nil {
				continue
			}
			if err := u.AudioTrack.SetPlaybackDevice(ctx, speakerID); err != nil {
				a.emitError(apperrors.ErrCodeDeviceError, true, fmt.Errorf("set playback device: %w", err))
				return nil
			}
		}
	}
	a.noteSelected(domain.DeviceKindAudioOutput, speakerID)
	a.emit(events.DeviceChanged{Kind: domain.DeviceKindAudioOutput, DeviceID: speakerID})
	return nil
}

// SetVideoQuality applies preset to the camera encoder. Auto leaves the
// encoder as it is.
func (a *Adapter) SetVideoQuality(ctx context.Context, preset domain.VideoQualityPreset) error {
	a.mediaMu.Lock()
	defer a.mediaMu.Unlock()

	a.mu.Lock()
	a.quality = preset
	cam := a.cam
	a.mu.Unlock()

	if cam == nil {
		a.logger.Infow("No camera track, quality stored for later", "preset", preset)
		return nil
	}
	profile, ok := preset.EncoderProfile()
	if !ok {
		return nil
	}
	if err := cam.SetEncoderConfig(ctx, profile); err != nil {
		a.emitError(apperrors.ErrCodeQualityError, true, err)
		return nil
	}
	a.logger.Infow("Video quality changed", "preset", preset)
	return nil
}

func (a *Adapter) SetAudioOnly(ctx context.Context, audioOnly bool) error {
	a.mediaMu.Lock()
	defer a.mediaMu.Unlock()

	a.mu.Lock()
	a.audioOnly = audioOnly
	cam := a.cam
	a.mu.Unlock()

	if cam == nil {
		return nil
	}
	if err := cam.SetEnabled(ctx, !audioOnly); err != nil {
		a.emitError(apperrors.ErrCodeDeviceError, true, err)
		return nil
	}

	a.mu.Lock()
	a.camOn = !audioOnly
	a.mu.Unlock()

	a.emit(events.LocalVideoChanged{Enabled: !audioOnly, DeviceID: cam.DeviceID()})
	a.emitLocalUpdated()
	return nil
}

func (a *Adapter) SetDualStream(ctx context.Context, enabled bool) error {
	a.mu.Lock()
	a.dualStream = enabled
	client := a.client
	a.mu.Unlock()

	if client == nil {
		return nil
	}
	var err error
	if enabled {
		err = client.EnableDualStream(ctx)
	} else {
		err = client.DisableDualStream(ctx)
	}
	if err != nil {
		a.emitError(apperrors.ErrCodeQualityError, true, err)
	}
	return nil
}

func (a *Adapter) SetRemoteVideoStreamType(ctx context.Context, uid domain.UID, t domain.RemoteStreamType) error {
	client := a.currentClient()
	if client == nil {
		return nil
	}
	if err := client.SetRemoteVideoStreamType(ctx, uid, t); err != nil {
		a.emitError(apperrors.ErrCodeQualityError, true, err)
	}
	return nil
}

// SetEncryption takes effect on the next join.
func (a *Adapter) SetEncryption(ctx context.Context, cfg domain.EncryptionConfig) error {
	if cfg.Enabled && cfg.Mode != domain.EncryptionNone && cfg.Key == "" {
		a.emitError(apperrors.ErrCodeEncryptionFailed, true, fmt.Errorf("encryption mode %s needs a key", cfg.Mode))
		return nil
	}
	a.mu.Lock()
	a.encryption = cfg
	joined := a.client != nil
	a.mu.Unlock()
	if joined {
		a.logger.Warnw("Encryption change applies to the next join", "mode", cfg.Mode)
	}
	return nil
}

func (a *Adapter) SetClientRole(ctx context.Context, role domain.ClientRole) error {
	if role != domain.ClientRoleBroadcaster && role != domain.ClientRoleAudience {
		return apperrors.NewInvalidInputError(fmt.Sprintf("unknown client role %q", role))
	}

	a.mu.Lock()
	client := a.client
	a.mu.Unlock()

	live := domain.ChannelProfile(a.cfg.ChannelProfile).Mode() == domain.ModeLive
	if client != nil && live {
		if err := client.SetClientRole(ctx, role); err != nil {
			a.emitError(apperrors.ErrCodeRoleChangeFailed, true, err)
			return nil
		}
	}

	a.mu.Lock()
	a.role = role
	a.mu.Unlock()
	a.logger.Infow("Client role changed", "role", role)
	a.emitLocalUpdated()
	return nil
}

func (a *Adapter) RefreshToken(ctx context.Context, token string) error {
	client := a.currentClient()
	if client == nil {
		return nil
	}
	if err := client.RenewToken(ctx, token); err != nil {
		a.emitError(apperrors.ErrCodeTokenFailed, true, err)
		return nil
	}
	a.logger.Infow("Token renewed")
	a.emit(events.TokenRefreshed{})
	return nil
}
