package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/ports"
)

// MockActions implements only the required ports.Actions surface.
type MockActions struct {
	mock.Mock
}

func (m *MockActions) Init(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockActions) Join(ctx context.Context, opts domain.JoinOptions) error {
	return m.Called(ctx, opts).Error(0)
}

func (m *MockActions) Leave(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockActions) Destroy(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockActions) ToggleMic(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockActions) ToggleCam(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockActions) SetMicEnabled(ctx context.Context, enabled bool) error {
	return m.Called(ctx, enabled).Error(0)
}

func (m *MockActions) SetCamEnabled(ctx context.Context, enabled bool) error {
	return m.Called(ctx, enabled).Error(0)
}

func (m *MockActions) SwitchCamera(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockActions) SetInputDevice(ctx context.Context, sel domain.DeviceSelection) error {
	return m.Called(ctx, sel).Error(0)
}

func (m *MockActions) SetOutputDevice(ctx context.Context, speakerID string) error {
	return m.Called(ctx, speakerID).Error(0)
}

func (m *MockActions) StartScreenShare(ctx context.Context, opts domain.ScreenShareOptions) error {
	return m.Called(ctx, opts).Error(0)
}

func (m *MockActions) StopScreenShare(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockActions) SetVideoQuality(ctx context.Context, preset domain.VideoQualityPreset) error {
	return m.Called(ctx, preset).Error(0)
}

func (m *MockActions) SetAudioOnly(ctx context.Context, audioOnly bool) error {
	return m.Called(ctx, audioOnly).Error(0)
}

func (m *MockActions) SetDualStream(ctx context.Context, enabled bool) error {
	return m.Called(ctx, enabled).Error(0)
}

func (m *MockActions) SetRemoteVideoStreamType(ctx context.Context, uid domain.UID, t domain.RemoteStreamType) error {
	return m.Called(ctx, uid, t).Error(0)
}

func (m *MockActions) SetEncryption(ctx context.Context, cfg domain.EncryptionConfig) error {
	return m.Called(ctx, cfg).Error(0)
}

func (m *MockActions) SetClientRole(ctx context.Context, role domain.ClientRole) error {
	return m.Called(ctx, role).Error(0)
}

func (m *MockActions) RefreshToken(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

func (m *MockActions) SetVirtualBackground(ctx context.Context, cfg domain.VirtualBackgroundConfig) error {
	return m.Called(ctx, cfg).Error(0)
}

func (m *MockActions) ApplyVirtualBackground(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockActions) DisableVirtualBackground(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockActions) SetBeautyEffect(ctx context.Context, opts domain.BeautyOptions) error {
	return m.Called(ctx, opts).Error(0)
}

func (m *MockActions) DisableBeautyEffect(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockActions) SetNoiseSuppression(ctx context.Context, level domain.NoiseSuppressionLevel) error {
	return m.Called(ctx, level).Error(0)
}

func (m *MockActions) DisableNoiseSuppression(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockActions) StartRecording(ctx context.Context, cfg domain.RecordingConfig) error {
	return m.Called(ctx, cfg).Error(0)
}

func (m *MockActions) StopRecording(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockActions) GetDevices(ctx context.Context) (domain.Devices, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.Devices), args.Error(1)
}

func (m *MockActions) GetParticipants() []domain.Participant {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]domain.Participant)
}

func (m *MockActions) GetCallState() domain.CallState {
	return m.Called().Get(0).(domain.CallState)
}

func (m *MockActions) GetStats(ctx context.Context) domain.CallStats {
	return m.Called(ctx).Get(0).(domain.CallStats)
}

func (m *MockActions) CreateRenderer() ports.VideoRenderer {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(ports.VideoRenderer)
}

func (m *MockActions) Capabilities() domain.Capabilities {
	return m.Called().Get(0).(domain.Capabilities)
}

// MockFullActions adds every optional capability interface.
type MockFullActions struct {
	MockActions
}

func (m *MockFullActions) SendChatMessage(ctx context.Context, content, replyTo string) error {
	return m.Called(ctx, content, replyTo).Error(0)
}

func (m *MockFullActions) DeleteChatMessage(ctx context.Context, messageID string) error {
	return m.Called(ctx, messageID).Error(0)
}

func (m *MockFullActions) SetChatEnabled(ctx context.Context, enabled bool) error {
	return m.Called(ctx, enabled).Error(0)
}

func (m *MockFullActions) SetChatHostOnly(ctx context.Context, hostOnly bool) error {
	return m.Called(ctx, hostOnly).Error(0)
}

func (m *MockFullActions) SetHandRaised(ctx context.Context, raised bool) error {
	return m.Called(ctx, raised).Error(0)
}

func (m *MockFullActions) LowerAllHands(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockFullActions) StartLiveStream(ctx context.Context, cfg domain.LiveStreamConfig) error {
	return m.Called(ctx, cfg).Error(0)
}

func (m *MockFullActions) StopLiveStream(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockFullActions) LiveStreamInfo() domain.LiveStreamInfo {
	return m.Called().Get(0).(domain.LiveStreamInfo)
}

func (m *MockFullActions) WaitingRoomAttendees() []domain.WaitingRoomAttendee {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]domain.WaitingRoomAttendee)
}

func (m *MockFullActions) AdmitFromWaitingRoom(ctx context.Context, uid domain.UID) error {
	return m.Called(ctx, uid).Error(0)
}

func (m *MockFullActions) RejectFromWaitingRoom(ctx context.Context, uid domain.UID) error {
	return m.Called(ctx, uid).Error(0)
}

func (m *MockFullActions) AdmitAllFromWaitingRoom(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockFullActions) StartTranscript(ctx context.Context, language string) (bool, error) {
	args := m.Called(ctx, language)
	return args.Bool(0), args.Error(1)
}

func (m *MockFullActions) StopTranscript(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockFullActions) SetTranscriptLanguage(ctx context.Context, language string) error {
	return m.Called(ctx, language).Error(0)
}

func (m *MockFullActions) MuteParticipant(ctx context.Context, uid domain.UID, kind domain.MediaKind) error {
	return m.Called(ctx, uid, kind).Error(0)
}

func (m *MockFullActions) RemoveParticipant(ctx context.Context, uid domain.UID) error {
	return m.Called(ctx, uid).Error(0)
}

func (m *MockFullActions) PromoteToCoHost(ctx context.Context, uid domain.UID) error {
	return m.Called(ctx, uid).Error(0)
}

func (m *MockFullActions) DemoteFromCoHost(ctx context.Context, uid domain.UID) error {
	return m.Called(ctx, uid).Error(0)
}

func (m *MockFullActions) SpotlightParticipant(ctx context.Context, uid domain.UID) error {
	return m.Called(ctx, uid).Error(0)
}

var (
	_ ports.Actions            = (*MockActions)(nil)
	_ ports.ChatActions        = (*MockFullActions)(nil)
	_ ports.HandRaiseActions   = (*MockFullActions)(nil)
	_ ports.LiveStreamActions  = (*MockFullActions)(nil)
	_ ports.WaitingRoomActions = (*MockFullActions)(nil)
	_ ports.TranscriptActions  = (*MockFullActions)(nil)
	_ ports.ModerationActions  = (*MockFullActions)(nil)
)
