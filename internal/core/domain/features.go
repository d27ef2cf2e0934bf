package domain

import "time"

type RecordingState string

const (
	RecordingIdle      RecordingState = "idle"
	RecordingStarting  RecordingState = "starting"
	RecordingRecording RecordingState = "recording"
	RecordingStopping  RecordingState = "stopping"
	RecordingError     RecordingState = "error"
)

type RecordingInfo struct {
	State     RecordingState `json:"state"`
	StartTime time.Time      `json:"startTime,omitempty"`
	Duration  int            `json:"duration"`
	Error     string         `json:"error,omitempty"`
}

type RecordingConfig struct {
	Layout string `json:"layout,omitempty"`
}

type LiveStreamState string

const (
	LiveStreamIdle     LiveStreamState = "idle"
	LiveStreamStarting LiveStreamState = "starting"
	LiveStreamLive     LiveStreamState = "live"
	LiveStreamStopping LiveStreamState = "stopping"
	LiveStreamError    LiveStreamState = "error"
)

type LiveStreamInfo struct {
	State       LiveStreamState `json:"state"`
	URL         string          `json:"url,omitempty"`
	StartTime   time.Time       `json:"startTime,omitempty"`
	Duration    int             `json:"duration"`
	ViewerCount int             `json:"viewerCount"`
	Error       string          `json:"error,omitempty"`
}

type LiveStreamConfig struct {
	URL string `json:"url"`
	Key string `json:"key,omitempty"`
}

type WaitingRoomStatus string

const (
	WaitingNone     WaitingRoomStatus = "none"
	WaitingWaiting  WaitingRoomStatus = "waiting"
	WaitingApproved WaitingRoomStatus = "approved"
	WaitingRejected WaitingRoomStatus = "rejected"
)

type WaitingRoomAttendee struct {
	ID          UID       `json:"id"`
	DisplayName string    `json:"displayName"`
	JoinedAt    time.Time `json:"joinedAt"`
}

type WaitingRoomState struct {
	Status    WaitingRoomStatus     `json:"status"`
	Message   string                `json:"message,omitempty"`
	Attendees []WaitingRoomAttendee `json:"attendees"`
}

type ChatMessage struct {
	ID         string    `json:"id"`
	SenderID   UID       `json:"senderId"`
	SenderName string    `json:"senderName"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	IsLocal    bool      `json:"isLocal"`
	ReplyTo    string    `json:"replyTo,omitempty"`
}

type ChatState struct {
	Messages     []ChatMessage `json:"messages"`
	UnreadCount  int           `json:"unreadCount"`
	Enabled      bool          `json:"enabled"`
	HostOnlyMode bool          `json:"hostOnlyMode"`
}

type TranscriptEntry struct {
	ID              string    `json:"id"`
	ParticipantID   UID       `json:"participantId"`
	ParticipantName string    `json:"participantName"`
	Text            string    `json:"text"`
	IsFinal         bool      `json:"isFinal"`
	Timestamp       time.Time `json:"timestamp"`
	Language        string    `json:"language,omitempty"`
}

type TranscriptState struct {
	Enabled  bool              `json:"enabled"`
	Language string            `json:"language"`
	Entries  []TranscriptEntry `json:"entries"`
}

type LayoutMode string

const (
	LayoutGrid         LayoutMode = "grid"
	LayoutSpotlight    LayoutMode = "spotlight"
	LayoutSidebar      LayoutMode = "sidebar"
	LayoutPresentation LayoutMode = "presentation"
)

type ToastType string

const (
	ToastInfo    ToastType = "info"
	ToastSuccess ToastType = "success"
	ToastWarning ToastType = "warning"
	ToastError   ToastType = "error"
)

type ToastMessage struct {
	ID        string        `json:"id"`
	Type      ToastType     `json:"type"`
	Message   string        `json:"message"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// FeatureFlags toggle optional UI surfaces.
type FeatureFlags struct {
	Chat              bool `json:"chat"`
	ScreenShare       bool `json:"screenShare"`
	VirtualBackground bool `json:"virtualBackground"`
	BeautyEffect      bool `json:"beautyEffect"`
	NoiseSuppression  bool `json:"noiseSuppression"`
	Recording         bool `json:"recording"`
	LiveStream        bool `json:"liveStream"`
	Transcript        bool `json:"transcript"`
	WaitingRoom       bool `json:"waitingRoom"`
	HandRaise         bool `json:"handRaise"`
}

func DefaultFeatureFlags() FeatureFlags {
	return FeatureFlags{
		Chat:              true,
		ScreenShare:       true,
		VirtualBackground: true,
		BeautyEffect:      true,
		NoiseSuppression:  true,
		HandRaise:         true,
	}
}

type Capability string

const (
	CapVirtualBackground Capability = "virtual-background"
	CapBeauty            Capability = "beauty"
	CapNoiseSuppression  Capability = "noise-suppression"
	CapScreenShare       Capability = "screen-share"
	CapDualStream        Capability = "dual-stream"
	CapEncryption        Capability = "encryption"
	CapRecording         Capability = "recording"
	CapLiveStream        Capability = "live-stream"
	CapChat              Capability = "chat"
	CapHandRaise         Capability = "hand-raise"
	CapTranscript        Capability = "transcript"
	CapWaitingRoom       Capability = "waiting-room"
	CapModeration        Capability = "moderation"
)

// Capabilities is the set of optional features an Actions implementation supports.
type Capabilities map[Capability]struct{}

func NewCapabilities(caps ...Capability) Capabilities {
	set := make(Capabilities, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

func (c Capabilities) Has(cap Capability) bool {
	_, ok := c[cap]
	return ok
}

// List returns the capabilities in no particular order.
func (c Capabilities) List() []Capability {
	out := make([]Capability, 0, len(c))
	for cap := range c {
		out = append(out, cap)
	}
	return out
}
