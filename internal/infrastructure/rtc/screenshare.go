package rtc

import (
	"context"
	"errors"
	"fmt"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/events"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/ports"
	apperrors "github.com/DiagVN/diag-video-call-ui-kit/pkg/errors"
	"github.com/DiagVN/diag-video-call-ui-kit/pkg/tracing"
)

type screenState string

const (
	screenIdle     screenState = "idle"
	screenStarting screenState = "starting"
	screenActive   screenState = "active"
	screenStopping screenState = "stopping"
)

// screenShare is the secondary connection that carries the shared screen.
// It never touches the main client's publications.
type screenShare struct {
	state  screenState
	client ports.Client
	video  ports.LocalVideoTrack
	audio  ports.LocalAudioTrack
	uid    domain.UID
}

func (a *Adapter) setScreenState(s screenState) {
	a.mu.Lock()
	a.screen.state = s
	a.mu.Unlock()
	a.observer.ObserveScreenShare(string(s))
}

// ScreenShareUID is empty unless a share is active.
func (a *Adapter) ScreenShareUID() domain.UID {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.screen.state != screenActive {
		return ""
	}
	return a.screen.uid
}

// StartScreenShare joins the current channel with a second client that
// publishes only the screen tracks. Failures are reported on the bus.
func (a *Adapter) StartScreenShare(ctx context.Context, opts domain.ScreenShareOptions) error {
	a.screenMu.Lock()
	defer a.screenMu.Unlock()

	a.mu.Lock()
	main, channel, state := a.client, a.channel, a.screen.state
	enc := a.encryption
	a.mu.Unlock()

	if main == nil {
		a.emitError(apperrors.ErrCodeScreenShareError, true, domain.ErrNotInCall)
		a.emit(events.ScreenShareError{Code: events.ScreenShareNotInCall, Message: "not in a call"})
		return nil
	}
	if state == screenActive || state == screenStarting {
		a.logger.Debugw("Screen share already active")
		return nil
	}

	ctx, span := tracing.TraceCallOperation(ctx, "screen_share", channel)
	defer span.End()

	a.setScreenState(screenStarting)

	s, err := a.openScreenShare(ctx, channel, enc, opts)
	if err != nil {
		tracing.RecordError(ctx, err)
		a.setScreenState(screenIdle)
		if errors.Is(err, ports.ErrPermissionDenied) {
			a.emitError(apperrors.ErrCodeScreenShareDenied, true, err)
			a.emit(events.ScreenShareError{Code: events.ScreenSharePermissionDenied, Message: "screen capture permission denied"})
		} else {
			a.emitError(apperrors.ErrCodeScreenShareError, true, err)
			a.emit(events.ScreenShareError{Code: events.ScreenShareUnknown, Message: err.Error()})
		}
		return nil
	}

	var screenParticipant *domain.Participant
	a.mu.Lock()
	s.state = screenActive
	a.screen = s
	localUID, name := a.localUID, a.displayName
	if p, ok := a.remote[s.uid]; ok && !p.IsScreenShare {
		p.IsScreenShare = true
		p.DisplayName = name + " (screen)"
		cp := *p
		screenParticipant = &cp
	}
	a.mu.Unlock()
	a.observer.ObserveScreenShare(string(screenActive))

	video := s.video
	video.OnEnded(func() {
		if err := a.stopScreenShareTrack(context.Background(), video, domain.ReasonBrowser); err != nil {
			a.logger.Warnw("Failed to stop ended screen share", "error", err)
		}
	})

	a.logger.Infow("Screen share started", "screen_uid", s.uid, "with_audio", s.audio != nil)
	if screenParticipant != nil {
		a.emit(events.ParticipantUpdated{Participant: *screenParticipant})
	}
	a.emit(events.ScreenShareStarted{UID: localUID, ScreenUID: s.uid})
	a.emitLocalUpdated()
	return nil
}

func (a *Adapter) openScreenShare(ctx context.Context, channel string, enc domain.EncryptionConfig, opts domain.ScreenShareOptions) (screenShare, error) {
	var s screenShare
	mode := domain.ChannelProfile(a.cfg.ChannelProfile).Mode()

	client, err := a.engine.CreateClient(a.clientConfig(mode))
	if err != nil {
		return s, fmt.Errorf("create screen client: %w", err)
	}
	if mode == domain.ModeLive {
		if err := client.SetClientRole(ctx, domain.ClientRoleBroadcaster); err != nil {
			return s, fmt.Errorf("set screen client role: %w", err)
		}
	}
	if enc.Active() {
		if err := client.SetEncryption(enc); err != nil {
			return s, fmt.Errorf("set screen encryption: %w", err)
		}
	}

	video, audio, err := a.engine.CreateScreenTrack(ctx, ports.ScreenConfig{
		Encoder:   opts.Quality.EncoderProfile(),
		WithAudio: opts.WithAudio,
	})
	if err != nil {
		return s, fmt.Errorf("create screen track: %w", err)
	}
	s.video, s.audio = video, audio

	uid, err := client.Join(ctx, a.cfg.AppID, channel, opts.Token, "")
	if err != nil {
		closeScreenTracks(s)
		return s, fmt.Errorf("join screen client: %w", err)
	}
	s.client, s.uid = client, uid

	tracks := []ports.LocalTrack{video}
	if audio != nil {
		tracks = append(tracks, audio)
	}
	if err := client.Publish(ctx, tracks...); err != nil {
		closeScreenTracks(s)
		_ = client.Leave(ctx)
		return s, fmt.Errorf("publish screen: %w", err)
	}
	return s, nil
}

func closeScreenTracks(s screenShare) {
	if s.video != nil {
		s.video.Stop()
		s.video.Close()
	}
	if s.audio != nil {
		s.audio.Stop()
		s.audio.Close()
	}
}

func (a *Adapter) StopScreenShare(ctx context.Context) error {
	return a.stopScreenShare(ctx, domain.ReasonUser)
}

func (a *Adapter) stopScreenShare(ctx context.Context, reason string) error {
	return a.stopScreenShareTrack(ctx, nil, reason)
}

// stopScreenShareTrack tears the active share down. With a non-nil video it
// only acts if that track still belongs to the active share.
func (a *Adapter) stopScreenShareTrack(ctx context.Context, video ports.LocalVideoTrack, reason string) error {
	a.screenMu.Lock()
	defer a.screenMu.Unlock()

	a.mu.Lock()
	s := a.screen
	if s.state != screenActive || (video != nil && s.video != video) {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()
	a.setScreenState(screenStopping)

	a.untrackRemote(s.uid, domain.ReasonQuit)

	closeScreenTracks(s)
	var leaveErr error
	if s.client != nil {
		if err := s.client.Leave(ctx); err != nil {
			leaveErr = fmt.Errorf("leave screen client: %w", err)
		}
	}

	a.mu.Lock()
	a.screen = screenShare{state: screenIdle}
	localUID := a.localUID
	a.mu.Unlock()
	a.observer.ObserveScreenShare(string(screenIdle))

	a.logger.Infow("Screen share stopped", "screen_uid", s.uid, "reason", reason)
	a.emit(events.ScreenShareStopped{UID: localUID, Reason: reason})
	a.emitLocalUpdated()
	return leaveErr
}
