package ports

import (
	"context"
	"errors"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
)

// Engine errors. Implementations wrap or return these so the adapter can
// branch on them with errors.Is.
var (
	ErrUserNotInChannel = errors.New("user is not in channel")
	ErrNotPublished     = errors.New("remote user has not published this media")
	ErrPermissionDenied = errors.New("permission denied")
	ErrDeviceNotFound   = errors.New("device not found")
	ErrInvalidToken     = errors.New("invalid token")
	ErrClientNotJoined  = errors.New("client has not joined a channel")
)

type ClientConfig struct {
	Mode       domain.ChannelMode
	Codec      domain.Codec
	GeoRegions []domain.GeoRegion
}

type MicrophoneConfig struct {
	DeviceID string
}

type CameraConfig struct {
	DeviceID string
	Encoder  domain.EncoderConfig
}

type ScreenConfig struct {
	Encoder   domain.EncoderConfig
	WithAudio bool
}

// Image is a decoded background image.
type Image struct {
	URL    string
	Width  int
	Height int
}

// Engine is the RTC SDK entry point.
type Engine interface {
	CreateClient(cfg ClientConfig) (Client, error)
	EnumerateDevices(ctx context.Context) ([]domain.DeviceInfo, error)
	CreateMicrophoneTrack(ctx context.Context, cfg MicrophoneConfig) (LocalAudioTrack, error)
	CreateCameraTrack(ctx context.Context, cfg CameraConfig) (LocalVideoTrack, error)
	// CreateScreenTrack returns a nil audio track unless cfg.WithAudio is set
	// and the capture source offers audio.
	CreateScreenTrack(ctx context.Context, cfg ScreenConfig) (LocalVideoTrack, LocalAudioTrack, error)
	RegisterExtension(ext Extension) error
	// OnDeviceChange registers fn for hot-plug notifications and returns its remover.
	OnDeviceChange(fn func()) (remove func())
	LoadImage(ctx context.Context, url string) (*Image, error)
}

// RemoteUser is a point-in-time view of a remote participant. Tracks are set
// only once the local client has subscribed to them.
type RemoteUser struct {
	UID        domain.UID
	HasAudio   bool
	HasVideo   bool
	AudioTrack RemoteAudioTrack
	VideoTrack RemoteVideoTrack
}

type VolumeLevel struct {
	UID   domain.UID
	Level int // 0-100
}

type NetworkQualityReport struct {
	Uplink   domain.NetworkQuality
	Downlink domain.NetworkQuality
}

type ClientStats struct {
	SendBitrate    int
	ReceiveBitrate int
	RTT            int
	PacketLoss     float64
	UserCount      int
	LocalAudio     domain.TrackStats
	LocalVideo     domain.TrackStats
	Remote         map[domain.UID]domain.RemoteStats
}

// Client is one connection to a channel.
type Client interface {
	SetListener(l ClientListener)
	Join(ctx context.Context, appID, channel, token string, uid domain.UID) (domain.UID, error)
	Leave(ctx context.Context) error

	Publish(ctx context.Context, tracks ...LocalTrack) error
	Unpublish(ctx context.Context, tracks ...LocalTrack) error
	Subscribe(ctx context.Context, uid domain.UID, kind domain.MediaKind) error
	// RemoteUsers returns fresh values on every call.
	RemoteUsers() []RemoteUser
	ConnectionState() domain.ConnectionState

	SetClientRole(ctx context.Context, role domain.ClientRole) error
	SetEncryption(cfg domain.EncryptionConfig) error
	EnableDualStream(ctx context.Context) error
	DisableDualStream(ctx context.Context) error
	SetRemoteVideoStreamType(ctx context.Context, uid domain.UID, t domain.RemoteStreamType) error
	RenewToken(ctx context.Context, token string) error
	EnableAudioVolumeIndicator()
	SendStreamMessage(ctx context.Context, data []byte) error
	Stats(ctx context.Context) (ClientStats, error)
}

// ClientListener receives engine callbacks. Callbacks arrive on an engine
// goroutine, never on the goroutine that made the triggering call.
type ClientListener interface {
	OnUserJoined(uid domain.UID)
	OnUserLeft(uid domain.UID, reason string)
	OnUserPublished(uid domain.UID, kind domain.MediaKind)
	OnUserUnpublished(uid domain.UID, kind domain.MediaKind)
	OnVolumeIndicator(levels []VolumeLevel)
	OnNetworkQuality(report NetworkQualityReport)
	OnConnectionStateChange(cur, prev domain.ConnectionState, reason string)
	OnTokenWillExpire()
	OnTokenExpired()
	OnStreamMessage(uid domain.UID, data []byte)
}

type PlayOptions struct {
	Mirror bool
	Fit    string // cover or contain
}

// Surface is a host-supplied place a video track renders into.
type Surface interface {
	ID() string
	Render(trackID string, opts PlayOptions)
	Clear()
}

type LocalTrack interface {
	ID() string
	Kind() domain.MediaKind
	Enabled() bool
	SetEnabled(ctx context.Context, enabled bool) error
	DeviceID() string
	Stop()
	Close()
}

type LocalAudioTrack interface {
	LocalTrack
	// SetDevice swaps the capture device in place; piped processors stay attached.
	SetDevice(ctx context.Context, deviceID string) error
	Pipe(p Processor) error
	Unpipe(p Processor) error
}

type LocalVideoTrack interface {
	LocalTrack
	SetDevice(ctx context.Context, deviceID string) error
	Pipe(p Processor) error
	Unpipe(p Processor) error
	Play(s Surface, opts PlayOptions) error
	SetEncoderConfig(ctx context.Context, cfg domain.EncoderConfig) error
	// OnEnded fires when the capture source goes away, e.g. the OS
	// "stop sharing" control.
	OnEnded(fn func())
}

type RemoteAudioTrack interface {
	ID() string
	Play() error
	Stop()
	SetPlaybackDevice(ctx context.Context, deviceID string) error
}

type RemoteVideoTrack interface {
	ID() string
	Play(s Surface, opts PlayOptions) error
	Stop()
}

type ExtensionKind string

const (
	ExtensionVirtualBackground ExtensionKind = "virtual-background"
	ExtensionBeauty            ExtensionKind = "beauty"
	ExtensionDenoiser          ExtensionKind = "denoiser"
)

// Extension is a processor plugin registered with the engine.
type Extension interface {
	Kind() ExtensionKind
	CheckCompatibility() bool
	CreateProcessor() (Processor, error)
}

// Processor transforms media between a raw track and its publish sink.
type Processor interface {
	Kind() ExtensionKind
	Init(ctx context.Context, assetDir string) error
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	Enabled() bool
}

type VirtualBackgroundOptions struct {
	Type       domain.BackgroundType
	BlurDegree int
	Color      string
	Source     *Image
}

type VirtualBackgroundProcessor interface {
	Processor
	SetOptions(opts VirtualBackgroundOptions) error
}

type BeautyProcessor interface {
	Processor
	SetOptions(opts domain.NormalizedBeauty) error
}

type DenoiserMode string

const (
	DenoiserNSNG       DenoiserMode = "NSNG"
	DenoiserStationary DenoiserMode = "STATIONARY_NS"
)

type DenoiserProcessor interface {
	Processor
	SetMode(mode DenoiserMode) error
}
