package ports

import (
	"context"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
)

type LifecycleActions interface {
	Init(ctx context.Context) error
	Join(ctx context.Context, opts domain.JoinOptions) error
	Leave(ctx context.Context) error
	Destroy(ctx context.Context) error
}

type MediaActions interface {
	ToggleMic(ctx context.Context) (bool, error)
	ToggleCam(ctx context.Context) (bool, error)
	SetMicEnabled(ctx context.Context, enabled bool) error
	SetCamEnabled(ctx context.Context, enabled bool) error
	SwitchCamera(ctx context.Context) error
	SetInputDevice(ctx context.Context, sel domain.DeviceSelection) error
	SetOutputDevice(ctx context.Context, speakerID string) error

	StartScreenShare(ctx context.Context, opts domain.ScreenShareOptions) error
	StopScreenShare(ctx context.Context) error

	SetVideoQuality(ctx context.Context, preset domain.VideoQualityPreset) error
	SetAudioOnly(ctx context.Context, audioOnly bool) error
	SetDualStream(ctx context.Context, enabled bool) error
	SetRemoteVideoStreamType(ctx context.Context, uid domain.UID, t domain.RemoteStreamType) error
	SetEncryption(ctx context.Context, cfg domain.EncryptionConfig) error
	SetClientRole(ctx context.Context, role domain.ClientRole) error
	RefreshToken(ctx context.Context, token string) error
}

type EffectActions interface {
	SetVirtualBackground(ctx context.Context, cfg domain.VirtualBackgroundConfig) error
	ApplyVirtualBackground(ctx context.Context) error
	DisableVirtualBackground(ctx context.Context) error
	SetBeautyEffect(ctx context.Context, opts domain.BeautyOptions) error
	DisableBeautyEffect(ctx context.Context) error
	SetNoiseSuppression(ctx context.Context, level domain.NoiseSuppressionLevel) error
	DisableNoiseSuppression(ctx context.Context) error
	StartRecording(ctx context.Context, cfg domain.RecordingConfig) error
	StopRecording(ctx context.Context) error
}

type ReadActions interface {
	GetDevices(ctx context.Context) (domain.Devices, error)
	GetParticipants() []domain.Participant
	GetCallState() domain.CallState
	GetStats(ctx context.Context) domain.CallStats
	CreateRenderer() VideoRenderer
	// Capabilities is fixed for the lifetime of the implementation.
	Capabilities() domain.Capabilities
}

// Actions is what the call store drives. Optional features are exposed by
// the interfaces below and advertised through Capabilities.
type Actions interface {
	LifecycleActions
	MediaActions
	EffectActions
	ReadActions
}

type ChatActions interface {
	SendChatMessage(ctx context.Context, content, replyTo string) error
	DeleteChatMessage(ctx context.Context, messageID string) error
	SetChatEnabled(ctx context.Context, enabled bool) error
	SetChatHostOnly(ctx context.Context, hostOnly bool) error
}

type HandRaiseActions interface {
	SetHandRaised(ctx context.Context, raised bool) error
	LowerAllHands(ctx context.Context) error
}

type LiveStreamActions interface {
	StartLiveStream(ctx context.Context, cfg domain.LiveStreamConfig) error
	StopLiveStream(ctx context.Context) error
	LiveStreamInfo() domain.LiveStreamInfo
}

type WaitingRoomActions interface {
	WaitingRoomAttendees() []domain.WaitingRoomAttendee
	AdmitFromWaitingRoom(ctx context.Context, uid domain.UID) error
	RejectFromWaitingRoom(ctx context.Context, uid domain.UID) error
	AdmitAllFromWaitingRoom(ctx context.Context) error
}

type TranscriptActions interface {
	StartTranscript(ctx context.Context, language string) (bool, error)
	StopTranscript(ctx context.Context) error
	SetTranscriptLanguage(ctx context.Context, language string) error
}

type ModerationActions interface {
	MuteParticipant(ctx context.Context, uid domain.UID, kind domain.MediaKind) error
	RemoveParticipant(ctx context.Context, uid domain.UID) error
	PromoteToCoHost(ctx context.Context, uid domain.UID) error
	DemoteFromCoHost(ctx context.Context, uid domain.UID) error
	SpotlightParticipant(ctx context.Context, uid domain.UID) error
}

// VideoRenderer mounts live video onto host surfaces.
type VideoRenderer interface {
	AttachVideo(ctx context.Context, s Surface, uid domain.UID, kind domain.VideoKind) error
	DetachVideo(s Surface)
	AttachPreview(ctx context.Context, s Surface) error
	DetachPreview(s Surface)
}
