package services

import (
	"context"
	"fmt"
	"time"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/events"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/ports"
	apperrors "github.com/DiagVN/diag-video-call-ui-kit/pkg/errors"

	"github.com/google/uuid"
)

// capable returns the optional interface T when the adapter both implements
// it and advertises feature.
func capable[T any](s *CallStore, feature domain.Capability) (T, error) {
	impl, ok := s.actions.(T)
	if !ok || !s.caps.Has(feature) {
		var zero T
		return zero, apperrors.NewNotSupportedError(string(feature))
	}
	return impl, nil
}

// Lifecycle

// Init prepares the adapter and loads the device list.
func (s *CallStore) Init(ctx context.Context) error {
	if err := s.actions.Init(ctx); err != nil {
		return err
	}
	devices, err := s.actions.GetDevices(ctx)
	if err != nil {
		s.logger.Warnw("Failed to load devices after init", "error", err)
		return nil
	}
	s.update(func(st *State) bool {
		st.Devices = devices.Clone()
		return true
	})
	return nil
}

func (s *CallStore) Join(ctx context.Context, opts domain.JoinOptions) error {
	if err := s.actions.Join(ctx, opts); err != nil {
		return err
	}
	s.update(func(st *State) bool {
		st.IsHost = opts.IsHost
		return true
	})
	return nil
}

// Leave leaves the call and clears per-call state. The call state itself
// follows the adapter's events.
func (s *CallStore) Leave(ctx context.Context) error {
	if err := s.actions.Leave(ctx); err != nil {
		return err
	}
	s.resetState()
	return nil
}

func (s *CallStore) resetState() {
	s.update(func(st *State) bool {
		st.Participants = nil
		st.ActiveSpeakerID = ""
		st.IsScreenSharing = false
		st.PinnedID = ""
		st.SpotlightID = ""
		st.Chat.Messages = nil
		st.Chat.UnreadCount = 0
		st.Transcript.Entries = nil
		st.Transcript.Enabled = false
		s.stopTickersLocked()
		return true
	})
}

// Destroy tears the adapter down and closes the store.
func (s *CallStore) Destroy(ctx context.Context) error {
	err := s.actions.Destroy(ctx)
	s.Close()
	return err
}

// Media

func (s *CallStore) ToggleMic(ctx context.Context) (bool, error) { return s.actions.ToggleMic(ctx) }

func (s *CallStore) ToggleCam(ctx context.Context) (bool, error) { return s.actions.ToggleCam(ctx) }

func (s *CallStore) SetMicEnabled(ctx context.Context, enabled bool) error {
	return s.actions.SetMicEnabled(ctx, enabled)
}

func (s *CallStore) SetCamEnabled(ctx context.Context, enabled bool) error {
	return s.actions.SetCamEnabled(ctx, enabled)
}

func (s *CallStore) SwitchCamera(ctx context.Context) error { return s.actions.SwitchCamera(ctx) }

func (s *CallStore) SetInputDevice(ctx context.Context, sel domain.DeviceSelection) error {
	return s.actions.SetInputDevice(ctx, sel)
}

func (s *CallStore) SetOutputDevice(ctx context.Context, speakerID string) error {
	return s.actions.SetOutputDevice(ctx, speakerID)
}

func (s *CallStore) StartScreenShare(ctx context.Context, opts domain.ScreenShareOptions) error {
	return s.actions.StartScreenShare(ctx, opts)
}

func (s *CallStore) StopScreenShare(ctx context.Context) error { return s.actions.StopScreenShare(ctx) }

func (s *CallStore) ToggleScreenShare(ctx context.Context, opts domain.ScreenShareOptions) error {
	if s.Snapshot().IsScreenSharing {
		return s.StopScreenShare(ctx)
	}
	return s.StartScreenShare(ctx, opts)
}

func (s *CallStore) SetVideoQuality(ctx context.Context, preset domain.VideoQualityPreset) error {
	if err := s.actions.SetVideoQuality(ctx, preset); err != nil {
		return err
	}
	s.update(func(st *State) bool {
		st.VideoQuality = preset
		return true
	})
	return nil
}

func (s *CallStore) SetAudioOnly(ctx context.Context, audioOnly bool) error {
	if err := s.actions.SetAudioOnly(ctx, audioOnly); err != nil {
		return err
	}
	s.update(func(st *State) bool {
		st.IsAudioOnly = audioOnly
		return true
	})
	return nil
}

func (s *CallStore) SetDualStream(ctx context.Context, enabled bool) error {
	return s.actions.SetDualStream(ctx, enabled)
}

func (s *CallStore) SetRemoteVideoStreamType(ctx context.Context, uid domain.UID, t domain.RemoteStreamType) error {
	return s.actions.SetRemoteVideoStreamType(ctx, uid, t)
}

func (s *CallStore) SetEncryption(ctx context.Context, cfg domain.EncryptionConfig) error {
	return s.actions.SetEncryption(ctx, cfg)
}

func (s *CallStore) SetClientRole(ctx context.Context, role domain.ClientRole) error {
	return s.actions.SetClientRole(ctx, role)
}

func (s *CallStore) RefreshToken(ctx context.Context, token string) error {
	return s.actions.RefreshToken(ctx, token)
}

// Effects

// SetVirtualBackground updates the preview pipeline; ApplyVirtualBackground
// moves it onto the published track.
func (s *CallStore) SetVirtualBackground(ctx context.Context, cfg domain.VirtualBackgroundConfig) error {
	if err := s.actions.SetVirtualBackground(ctx, cfg); err != nil {
		return err
	}
	s.update(func(st *State) bool {
		st.VirtualBackgroundEnabled = cfg.Type != domain.BackgroundNone && cfg.Type != ""
		st.VirtualBackground = cfg
		return true
	})
	return nil
}

func (s *CallStore) ApplyVirtualBackground(ctx context.Context) error {
	return s.actions.ApplyVirtualBackground(ctx)
}

func (s *CallStore) DisableVirtualBackground(ctx context.Context) error {
	if err := s.actions.DisableVirtualBackground(ctx); err != nil {
		return err
	}
	s.update(func(st *State) bool {
		st.VirtualBackgroundEnabled = false
		st.VirtualBackground = domain.VirtualBackgroundConfig{Type: domain.BackgroundNone}
		return true
	})
	return nil
}

func (s *CallStore) SetBeautyEffect(ctx context.Context, opts domain.BeautyOptions) error {
	return s.actions.SetBeautyEffect(ctx, opts)
}

func (s *CallStore) DisableBeautyEffect(ctx context.Context) error {
	return s.actions.DisableBeautyEffect(ctx)
}

func (s *CallStore) SetNoiseSuppression(ctx context.Context, level domain.NoiseSuppressionLevel) error {
	return s.actions.SetNoiseSuppression(ctx, level)
}

func (s *CallStore) DisableNoiseSuppression(ctx context.Context) error {
	return s.actions.DisableNoiseSuppression(ctx)
}

func (s *CallStore) StartRecording(ctx context.Context, cfg domain.RecordingConfig) error {
	return s.actions.StartRecording(ctx, cfg)
}

func (s *CallStore) StopRecording(ctx context.Context) error { return s.actions.StopRecording(ctx) }

func (s *CallStore) ToggleRecording(ctx context.Context, cfg domain.RecordingConfig) error {
	if s.Snapshot().IsRecording() {
		return s.StopRecording(ctx)
	}
	return s.StartRecording(ctx, cfg)
}

// Reads

func (s *CallStore) GetDevices(ctx context.Context) (domain.Devices, error) {
	return s.actions.GetDevices(ctx)
}

// RefreshStats pulls stats now instead of waiting for the next tick.
func (s *CallStore) RefreshStats(ctx context.Context) domain.CallStats {
	stats := s.actions.GetStats(ctx)
	s.update(func(st *State) bool {
		if s.durationTicker != nil {
			stats.Duration = st.Stats.Duration
		}
		st.Stats = stats.Clone()
		return true
	})
	return stats
}

func (s *CallStore) CreateRenderer() ports.VideoRenderer { return s.actions.CreateRenderer() }

// Chat

func (s *CallStore) SendChatMessage(ctx context.Context, content, replyTo string) error {
	chat, err := capable[ports.ChatActions](s, domain.CapChat)
	if err != nil {
		return err
	}
	return chat.SendChatMessage(ctx, content, replyTo)
}

func (s *CallStore) DeleteChatMessage(ctx context.Context, messageID string) error {
	chat, err := capable[ports.ChatActions](s, domain.CapChat)
	if err != nil {
		return err
	}
	return chat.DeleteChatMessage(ctx, messageID)
}

func (s *CallStore) SetChatEnabled(ctx context.Context, enabled bool) error {
	chat, err := capable[ports.ChatActions](s, domain.CapChat)
	if err != nil {
		return err
	}
	return chat.SetChatEnabled(ctx, enabled)
}

func (s *CallStore) SetChatHostOnly(ctx context.Context, hostOnly bool) error {
	chat, err := capable[ports.ChatActions](s, domain.CapChat)
	if err != nil {
		return err
	}
	return chat.SetChatHostOnly(ctx, hostOnly)
}

// Hand raise

func (s *CallStore) RaiseHand(ctx context.Context) error { return s.setHandRaised(ctx, true) }

func (s *CallStore) LowerHand(ctx context.Context) error { return s.setHandRaised(ctx, false) }

func (s *CallStore) ToggleHandRaised(ctx context.Context) error {
	local, _ := s.Snapshot().LocalParticipant()
	return s.setHandRaised(ctx, !local.IsHandRaised)
}

func (s *CallStore) setHandRaised(ctx context.Context, raised bool) error {
	hands, err := capable[ports.HandRaiseActions](s, domain.CapHandRaise)
	if err != nil {
		return err
	}
	return hands.SetHandRaised(ctx, raised)
}

func (s *CallStore) LowerAllHands(ctx context.Context) error {
	hands, err := capable[ports.HandRaiseActions](s, domain.CapHandRaise)
	if err != nil {
		return err
	}
	return hands.LowerAllHands(ctx)
}

// Live stream

func (s *CallStore) StartLiveStream(ctx context.Context, cfg domain.LiveStreamConfig) error {
	live, err := capable[ports.LiveStreamActions](s, domain.CapLiveStream)
	if err != nil {
		return err
	}
	return live.StartLiveStream(ctx, cfg)
}

func (s *CallStore) StopLiveStream(ctx context.Context) error {
	live, err := capable[ports.LiveStreamActions](s, domain.CapLiveStream)
	if err != nil {
		return err
	}
	return live.StopLiveStream(ctx)
}

// Waiting room

func (s *CallStore) AdmitFromWaitingRoom(ctx context.Context, uid domain.UID) error {
	room, err := capable[ports.WaitingRoomActions](s, domain.CapWaitingRoom)
	if err != nil {
		return err
	}
	return room.AdmitFromWaitingRoom(ctx, uid)
}

func (s *CallStore) RejectFromWaitingRoom(ctx context.Context, uid domain.UID) error {
	room, err := capable[ports.WaitingRoomActions](s, domain.CapWaitingRoom)
	if err != nil {
		return err
	}
	return room.RejectFromWaitingRoom(ctx, uid)
}

func (s *CallStore) AdmitAllFromWaitingRoom(ctx context.Context) error {
	room, err := capable[ports.WaitingRoomActions](s, domain.CapWaitingRoom)
	if err != nil {
		return err
	}
	return room.AdmitAllFromWaitingRoom(ctx)
}

// Transcript

func (s *CallStore) StartTranscript(ctx context.Context, language string) error {
	tr, err := capable[ports.TranscriptActions](s, domain.CapTranscript)
	if err != nil {
		return err
	}
	started, err := tr.StartTranscript(ctx, language)
	if err != nil {
		return err
	}
	if !started {
		s.logger.Infow("Transcript did not start", "language", language)
	}
	return nil
}

func (s *CallStore) StopTranscript(ctx context.Context) error {
	tr, err := capable[ports.TranscriptActions](s, domain.CapTranscript)
	if err != nil {
		return err
	}
	return tr.StopTranscript(ctx)
}

func (s *CallStore) ToggleTranscript(ctx context.Context, language string) error {
	if s.Snapshot().Transcript.Enabled {
		return s.StopTranscript(ctx)
	}
	return s.StartTranscript(ctx, language)
}

// SetTranscriptLanguage forwards to the adapter when transcription is
// supported; otherwise it only records the language for the next start.
func (s *CallStore) SetTranscriptLanguage(ctx context.Context, language string) error {
	if language == "" {
		return apperrors.NewInvalidInputError("language is required")
	}
	tr, err := capable[ports.TranscriptActions](s, domain.CapTranscript)
	if err != nil {
		s.emit(events.TranscriptLanguageChanged{Language: language})
		return nil
	}
	return tr.SetTranscriptLanguage(ctx, language)
}

func (s *CallStore) ClearTranscript() {
	s.update(func(st *State) bool {
		st.Transcript.Entries = nil
		return true
	})
}

// Moderation

func (s *CallStore) MuteParticipant(ctx context.Context, uid domain.UID, kind domain.MediaKind) error {
	mod, err := capable[ports.ModerationActions](s, domain.CapModeration)
	if err != nil {
		return err
	}
	return mod.MuteParticipant(ctx, uid, kind)
}

func (s *CallStore) RemoveParticipant(ctx context.Context, uid domain.UID) error {
	mod, err := capable[ports.ModerationActions](s, domain.CapModeration)
	if err != nil {
		return err
	}
	return mod.RemoveParticipant(ctx, uid)
}

func (s *CallStore) PromoteToCoHost(ctx context.Context, uid domain.UID) error {
	mod, err := capable[ports.ModerationActions](s, domain.CapModeration)
	if err != nil {
		return err
	}
	return mod.PromoteToCoHost(ctx, uid)
}

func (s *CallStore) DemoteFromCoHost(ctx context.Context, uid domain.UID) error {
	mod, err := capable[ports.ModerationActions](s, domain.CapModeration)
	if err != nil {
		return err
	}
	return mod.DemoteFromCoHost(ctx, uid)
}

// SpotlightParticipant spotlights uid for everyone when the adapter supports
// moderation, and locally otherwise. An empty uid clears the spotlight.
func (s *CallStore) SpotlightParticipant(ctx context.Context, uid domain.UID) error {
	if mod, err := capable[ports.ModerationActions](s, domain.CapModeration); err == nil {
		if err := mod.SpotlightParticipant(ctx, uid); err != nil {
			return err
		}
	}
	s.emit(events.ParticipantSpotlight{UID: uid})
	return nil
}

// Layout and UI. None of these touch the adapter.

var layoutModes = map[domain.LayoutMode]bool{
	domain.LayoutGrid:         true,
	domain.LayoutSpotlight:    true,
	domain.LayoutSidebar:      true,
	domain.LayoutPresentation: true,
}

func (s *CallStore) SetLayoutMode(mode domain.LayoutMode) error {
	if !layoutModes[mode] {
		return apperrors.NewInvalidInputError(fmt.Sprintf("unknown layout mode %q", mode))
	}
	s.emit(events.LayoutChanged{Mode: mode})
	return nil
}

// PinParticipant pins uid to the main stage and switches to the spotlight
// layout. An empty uid unpins.
func (s *CallStore) PinParticipant(uid domain.UID) {
	if uid != "" {
		s.update(func(st *State) bool {
			st.Layout = domain.LayoutSpotlight
			return true
		})
	}
	s.emit(events.ParticipantPinned{UID: uid})
}

func (s *CallStore) OpenChat() {
	s.update(func(st *State) bool {
		st.IsChatOpen = true
		st.Chat.UnreadCount = 0
		return true
	})
}

func (s *CallStore) CloseChat() {
	s.update(func(st *State) bool {
		st.IsChatOpen = false
		return true
	})
}

func (s *CallStore) ToggleChat() {
	if s.Snapshot().IsChatOpen {
		s.CloseChat()
		return
	}
	s.OpenChat()
}

func (s *CallStore) SetTranscriptOpen(open bool) {
	s.update(func(st *State) bool {
		st.IsTranscriptOpen = open
		return true
	})
}

func (s *CallStore) ToggleTranscriptPanel() {
	s.update(func(st *State) bool {
		st.IsTranscriptOpen = !st.IsTranscriptOpen
		return true
	})
}

// OpenSettings opens the settings panel, switching tab when one is given.
func (s *CallStore) OpenSettings(tab SettingsTab) {
	s.update(func(st *State) bool {
		if tab != "" {
			st.UI.SettingsTab = tab
		}
		st.UI.SettingsOpen = true
		return true
	})
}

func (s *CallStore) CloseSettings() {
	s.update(func(st *State) bool {
		st.UI.SettingsOpen = false
		return true
	})
}

func (s *CallStore) ToggleSettings() {
	s.update(func(st *State) bool {
		st.UI.SettingsOpen = !st.UI.SettingsOpen
		return true
	})
}

func (s *CallStore) ToggleParticipants() {
	s.update(func(st *State) bool {
		st.UI.ParticipantsOpen = !st.UI.ParticipantsOpen
		return true
	})
}

func (s *CallStore) ToggleMoreMenu() {
	s.update(func(st *State) bool {
		st.UI.MoreMenuOpen = !st.UI.MoreMenuOpen
		return true
	})
}

func (s *CallStore) ToggleFullscreen() {
	s.update(func(st *State) bool {
		st.UI.Fullscreen = !st.UI.Fullscreen
		return true
	})
}

func (s *CallStore) SetShowControls(show bool) {
	s.update(func(st *State) bool {
		st.UI.ShowControls = show
		return true
	})
}

// AddToast publishes a toast on the bus. A zero duration keeps it until dismissed.
func (s *CallStore) AddToast(kind domain.ToastType, message string, duration time.Duration) string {
	toast := domain.ToastMessage{
		ID:        uuid.NewString(),
		Type:      kind,
		Message:   message,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	s.emit(events.Toast{Toast: toast})
	return toast.ID
}

func (s *CallStore) DismissToast(id string) {
	s.update(func(st *State) bool { return removeToast(st, id) })
}

// DismissError removes the oldest listed error with code.
func (s *CallStore) DismissError(code apperrors.ErrorCode) {
	s.update(func(st *State) bool { return removeError(st, domain.CallError{Code: code}) })
}

func (s *CallStore) SetFeatureFlags(flags domain.FeatureFlags) {
	s.update(func(st *State) bool {
		st.Features = flags
		return true
	})
}
