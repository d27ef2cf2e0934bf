package rtc

import (
	"context"
	"fmt"
	"time"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/events"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/ports"
	apperrors "github.com/DiagVN/diag-video-call-ui-kit/pkg/errors"
	"github.com/DiagVN/diag-video-call-ui-kit/pkg/tracing"
	"github.com/DiagVN/diag-video-call-ui-kit/pkg/utils"
	"github.com/DiagVN/diag-video-call-ui-kit/pkg/validation"
)

// Init enumerates devices, subscribes to hot-plug and opens preview tracks.
// Only a missing app id is fatal.
func (a *Adapter) Init(ctx context.Context) error {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()

	a.setState(domain.CallStateInitializing, "")

	if a.cfg.AppID == "" {
		err := fmt.Errorf("rtc: app id is required")
		a.emitError(apperrors.ErrCodeInitFailed, false, err)
		a.setState(domain.CallStateError, "")
		return err
	}

	if _, err := a.refreshDevices(ctx); err != nil {
		a.logger.Warnw("Failed to enumerate devices", "error", err)
	}
	a.watchDevices()

	a.mediaMu.Lock()
	a.openPreviewTracks(ctx)
	a.mediaMu.Unlock()

	a.mu.Lock()
	devices := a.devices.Clone()
	a.mu.Unlock()
	a.emit(events.DevicesUpdated{Devices: devices})

	a.setState(domain.CallStatePrejoin, "")
	a.logger.Infow("RTC adapter initialized", "extensions", a.registry.Available())
	return nil
}

// openPreviewTracks creates the mic and camera tracks used before joining.
// Failures leave the track absent. Callers hold mediaMu.
func (a *Adapter) openPreviewTracks(ctx context.Context) {
	a.mu.Lock()
	haveMic, haveCam := a.mic != nil, a.cam != nil
	a.mu.Unlock()

	if !haveMic {
		if mic, err := a.createMicrophone(ctx); err != nil {
			a.logger.Warnw("Preview microphone unavailable", "error", err)
		} else {
			a.mu.Lock()
			a.mic, a.micOn = mic, true
			a.mu.Unlock()
		}
	}
	if !haveCam {
		if cam, err := a.createCamera(ctx); err != nil {
			a.logger.Warnw("Preview camera unavailable", "error", err)
		} else {
			a.mu.Lock()
			a.cam, a.camOn = cam, true
			a.mu.Unlock()
		}
	}
	a.rebindEffects(ctx)
}

// Join connects to opts.Channel. A second Join before Leave is rejected.
func (a *Adapter) Join(ctx context.Context, opts domain.JoinOptions) error {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()

	if a.currentClient() != nil {
		return domain.ErrAlreadyJoined
	}
	if err := validateJoin(opts); err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}

	ctx, span := tracing.TraceCallOperation(ctx, "join", opts.Channel)
	defer span.End()

	start := a.clock.Now()
	a.setState(domain.CallStateConnecting, "")

	client, uid, err := a.connect(ctx, opts)
	a.observer.ObserveJoin(a.clock.Since(start), err)
	if err != nil {
		tracing.RecordError(ctx, err)
		a.emitError(apperrors.ErrCodeJoinFailed, true, err)
		a.setState(domain.CallStateError, "")
		return apperrors.NewCallError(apperrors.ErrCodeJoinFailed, true, err)
	}
	tracing.AddSpanAttributes(ctx, tracing.UIDKey.String(string(uid)))

	a.mu.Lock()
	dual := a.dualStream
	a.mu.Unlock()
	if dual {
		if err := client.EnableDualStream(ctx); err != nil {
			a.logger.Warnw("Failed to enable dual stream", "error", err)
		}
	}
	client.EnableAudioVolumeIndicator()

	a.mu.Lock()
	role := a.role
	a.mu.Unlock()
	if domain.ChannelProfile(a.cfg.ChannelProfile).Mode() == domain.ModeRTC || role == domain.ClientRoleBroadcaster || opts.IsHost {
		a.publishJoinTracks(ctx, client, opts)
	}

	a.setState(domain.CallStateInCall, "")
	a.emit(events.CallConnected{Channel: opts.Channel, UID: uid})

	a.mu.Lock()
	local := a.localParticipantLocked()
	a.mu.Unlock()
	a.emit(events.ParticipantJoined{Participant: local})

	a.afterFunc(a.cfg.ReconcileDelay, func() { a.reconcile(client) })

	a.logger.Infow("Joined channel", "channel", opts.Channel, "uid", uid, "host", opts.IsHost)
	return nil
}

func validateJoin(opts domain.JoinOptions) error {
	if err := validation.ValidateChannelName(opts.Channel); err != nil {
		return err
	}
	if err := validation.ValidateUID(string(opts.UID)); err != nil {
		return err
	}
	return validation.ValidateDisplayName(opts.DisplayName)
}

// connect creates the main client and joins. a.client is set before the
// engine join so callbacks for members already in the channel are accepted.
func (a *Adapter) connect(ctx context.Context, opts domain.JoinOptions) (ports.Client, domain.UID, error) {
	mode := domain.ChannelProfile(a.cfg.ChannelProfile).Mode()
	client, err := a.engine.CreateClient(a.clientConfig(mode))
	if err != nil {
		return nil, "", fmt.Errorf("create client: %w", err)
	}

	a.mu.Lock()
	role, enc := a.role, a.encryption
	a.mu.Unlock()
	if opts.IsHost {
		role = domain.ClientRoleBroadcaster
	}

	if mode == domain.ModeLive {
		if err := client.SetClientRole(ctx, role); err != nil {
			return nil, "", fmt.Errorf("set client role: %w", err)
		}
	}
	if enc.Active() {
		if err := client.SetEncryption(enc); err != nil {
			return nil, "", fmt.Errorf("set encryption: %w", err)
		}
	}

	client.SetListener(&clientListener{a: a, client: client})

	session, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.client = client
	a.session = session
	a.cancelSession = cancel
	a.role = role
	a.mu.Unlock()

	uid, err := client.Join(ctx, a.cfg.AppID, opts.Channel, opts.Token, opts.UID)
	if err != nil {
		a.mu.Lock()
		a.client = nil
		a.session = nil
		a.cancelSession = nil
		a.mu.Unlock()
		cancel()
		return nil, "", err
	}

	name := opts.DisplayName
	if name == "" {
		name = domain.DefaultDisplayName(uid)
	}

	a.mu.Lock()
	a.channel = opts.Channel
	a.localUID = uid
	a.displayName = name
	a.isHost = opts.IsHost
	a.joinedAt = a.clock.Now()
	a.localQuality = domain.NetworkUnknown
	a.mu.Unlock()
	return client, uid, nil
}

func (a *Adapter) clientConfig(mode domain.ChannelMode) ports.ClientConfig {
	regions := make([]domain.GeoRegion, 0, len(a.cfg.GeoFencing))
	for _, r := range a.cfg.GeoFencing {
		regions = append(regions, domain.GeoRegion(r))
	}
	codec := domain.Codec(a.cfg.Codec)
	if codec == "" {
		codec = domain.CodecVP8
	}
	return ports.ClientConfig{Mode: mode, Codec: codec, GeoRegions: regions}
}

// publishJoinTracks enables and publishes the local tracks the join options
// ask for. A muted track stays unpublished until it is first enabled.
func (a *Adapter) publishJoinTracks(ctx context.Context, client ports.Client, opts domain.JoinOptions) {
	a.mediaMu.Lock()
	defer a.mediaMu.Unlock()

	a.mu.Lock()
	mic, cam, audioOnly := a.mic, a.cam, a.audioOnly
	a.mu.Unlock()

	var publish []ports.LocalTrack
	micOn, camOn := false, false

	if !opts.JoinMuted {
		if mic == nil {
			var err error
			if mic, err = a.createMicrophone(ctx); err != nil {
				a.emitError(apperrors.ErrCodeDeviceError, true, err)
			}
		}
		if mic != nil {
			if err := mic.SetEnabled(ctx, true); err != nil {
				a.emitError(apperrors.ErrCodeDeviceError, true, err)
			} else {
				micOn = true
				publish = append(publish, mic)
			}
		}
	} else if mic != nil {
		if err := mic.SetEnabled(ctx, false); err != nil {
			a.logger.Warnw("Failed to mute microphone", "error", err)
		}
	}

	if !opts.JoinVideoOff && !audioOnly {
		if cam == nil {
			var err error
			if cam, err = a.createCamera(ctx); err != nil {
				a.emitError(apperrors.ErrCodeDeviceError, true, err)
			}
		}
		if cam != nil {
			if err := cam.SetEnabled(ctx, true); err != nil {
				a.emitError(apperrors.ErrCodeDeviceError, true, err)
			} else {
				camOn = true
				publish = append(publish, cam)
			}
		}
	} else if cam != nil {
		if err := cam.SetEnabled(ctx, false); err != nil {
			a.logger.Warnw("Failed to turn camera off", "error", err)
		}
	}

	a.mu.Lock()
	a.mic, a.cam = mic, cam
	a.micOn, a.camOn = micOn, camOn
	a.mu.Unlock()
	a.rebindEffects(ctx)

	if len(publish) == 0 {
		return
	}
	if err := client.Publish(ctx, publish...); err != nil {
		a.emitError(apperrors.ErrCodeDeviceError, true, fmt.Errorf("publish local tracks: %w", err))
		return
	}
	a.mu.Lock()
	a.micPublished = micOn
	a.camPublished = camOn
	a.mu.Unlock()
}

// Leave tears the call down. It is a no-op when not joined.
func (a *Adapter) Leave(ctx context.Context) error {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()
	return a.leaveLocked(ctx, domain.ReasonUser)
}

func (a *Adapter) leaveLocked(ctx context.Context, reason string) error {
	a.mu.Lock()
	client := a.client
	if client == nil {
		a.mu.Unlock()
		return nil
	}
	channel := a.channel
	cancel := a.cancelSession
	a.cancelSession = nil
	a.stopTimersLocked()
	a.mu.Unlock()

	ctx, span := tracing.TraceCallOperation(ctx, "leave", channel)
	defer span.End()

	if err := a.stopScreenShare(ctx, reason); err != nil {
		a.logger.Warnw("Failed to stop screen share on leave", "error", err)
	}

	a.mu.Lock()
	a.client = nil
	a.session = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	a.mediaMu.Lock()
	a.vbMain.Unbind()
	a.beauty.Unbind()
	a.denoiser.Unbind()
	a.mu.Lock()
	mic, cam := a.mic, a.cam
	a.mic, a.cam = nil, nil
	a.micOn, a.camOn = false, false
	a.micPublished, a.camPublished = false, false
	a.mu.Unlock()
	if mic != nil {
		mic.Stop()
		mic.Close()
	}
	if cam != nil {
		cam.Stop()
		cam.Close()
	}
	a.mediaMu.Unlock()

	if err := client.Leave(ctx); err != nil {
		tracing.RecordError(ctx, err)
		a.logger.Warnw("Engine leave failed", "channel", channel, "error", err)
	}

	a.mu.Lock()
	duration := utils.WholeSeconds(a.joinedAt, a.clock.Now())
	a.remote = make(map[domain.UID]*domain.Participant)
	a.subscribed = make(map[subKey]bool)
	a.speaking = make(map[domain.UID]bool)
	a.raisedHands = make(map[domain.UID]bool)
	a.activeSpeaker = ""
	a.channel = ""
	a.localUID = ""
	a.isHost = false
	a.joinedAt = time.Time{}
	a.mu.Unlock()

	a.setState(domain.CallStateEnded, reason)
	a.emit(events.CallEnded{Reason: reason, Duration: duration})
	a.logger.Infow("Left channel", "channel", channel, "duration", duration)
	return nil
}

// Destroy leaves and releases everything Init acquired.
func (a *Adapter) Destroy(ctx context.Context) error {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()

	if err := a.leaveLocked(ctx, domain.ReasonUser); err != nil {
		a.logger.Warnw("Leave during destroy failed", "error", err)
	}

	a.mu.Lock()
	remove := a.removeDevices
	a.removeDevices = nil
	a.mu.Unlock()
	if remove != nil {
		remove()
	}

	a.renderer.cancelAll()

	a.mediaMu.Lock()
	a.vbPreview.Unbind()
	a.mu.Lock()
	tracks := []ports.LocalTrack{}
	if a.mic != nil {
		tracks = append(tracks, a.mic)
	}
	if a.cam != nil {
		tracks = append(tracks, a.cam)
	}
	if a.previewCam != nil {
		tracks = append(tracks, a.previewCam)
	}
	a.mic, a.cam, a.previewCam = nil, nil, nil
	a.micOn, a.camOn = false, false
	a.mu.Unlock()
	for _, t := range tracks {
		t.Stop()
		t.Close()
	}
	a.mediaMu.Unlock()

	a.setState(domain.CallStateIdle, "")
	a.logger.Infow("RTC adapter destroyed")
	return nil
}
