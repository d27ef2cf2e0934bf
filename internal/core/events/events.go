package events

import (
	"time"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	apperrors "github.com/DiagVN/diag-video-call-ui-kit/pkg/errors"
)

// Name identifies an event on the bus and on the websocket wire.
type Name string

const (
	NameCallStateChanged          Name = "call-state-changed"
	NameCallConnected             Name = "call-connected"
	NameCallEnded                 Name = "call-ended"
	NameConnectionStateChanged    Name = "connection-state-changed"
	NameParticipantJoined         Name = "participant-joined"
	NameParticipantLeft           Name = "participant-left"
	NameParticipantUpdated        Name = "participant-updated"
	NameLocalAudioChanged         Name = "local-audio-changed"
	NameLocalVideoChanged         Name = "local-video-changed"
	NameRemoteAudioChanged        Name = "remote-audio-changed"
	NameRemoteVideoChanged        Name = "remote-video-changed"
	NameScreenShareStarted        Name = "screen-share-started"
	NameScreenShareStopped        Name = "screen-share-stopped"
	NameScreenShareError          Name = "screen-share-error"
	NameNetworkQualityChanged     Name = "network-quality-changed"
	NameSpeakingChanged           Name = "speaking-changed"
	NameActiveSpeakerChanged      Name = "active-speaker-changed"
	NameTokenWillExpire           Name = "token-will-expire"
	NameTokenExpired              Name = "token-expired"
	NameTokenRefreshed            Name = "token-refreshed"
	NameVirtualBackgroundChanged  Name = "virtual-background-changed"
	NameBeautyEffectChanged       Name = "beauty-effect-changed"
	NameNoiseSuppressionChanged   Name = "noise-suppression-changed"
	NameDevicesUpdated            Name = "devices-updated"
	NameDeviceChanged             Name = "device-changed"
	NameRecordingStateChanged     Name = "recording-state-changed"
	NameLiveStreamStateChanged    Name = "live-stream-state-changed"
	NameLiveStreamViewerCount     Name = "live-stream-viewer-count"
	NameWaitingRoomStatusChanged  Name = "waiting-room-status-changed"
	NameWaitingRoomAttendeeJoined Name = "waiting-room-attendee-joined"
	NameWaitingRoomAttendeeLeft   Name = "waiting-room-attendee-left"
	NameChatMessageReceived       Name = "chat-message-received"
	NameChatMessageSent           Name = "chat-message-sent"
	NameChatMessageDeleted        Name = "chat-message-deleted"
	NameChatStateChanged          Name = "chat-state-changed"
	NameTranscriptEntry           Name = "transcript-entry"
	NameTranscriptStarted         Name = "transcript-started"
	NameTranscriptStopped         Name = "transcript-stopped"
	NameTranscriptLanguageChanged Name = "transcript-language-changed"
	NameLayoutChanged             Name = "layout-changed"
	NameParticipantPinned         Name = "participant-pinned"
	NameParticipantSpotlight      Name = "participant-spotlight"
	NameHandRaisedChanged         Name = "hand-raised-changed"
	NameStatsUpdated              Name = "stats-updated"
	NameError                     Name = "error"
	NameToast                     Name = "toast"
)

var vocabulary = []Name{
	NameCallStateChanged, NameCallConnected, NameCallEnded, NameConnectionStateChanged,
	NameParticipantJoined, NameParticipantLeft, NameParticipantUpdated,
	NameLocalAudioChanged, NameLocalVideoChanged, NameRemoteAudioChanged, NameRemoteVideoChanged,
	NameScreenShareStarted, NameScreenShareStopped, NameScreenShareError,
	NameNetworkQualityChanged, NameSpeakingChanged, NameActiveSpeakerChanged,
	NameTokenWillExpire, NameTokenExpired, NameTokenRefreshed,
	NameVirtualBackgroundChanged, NameBeautyEffectChanged, NameNoiseSuppressionChanged,
	NameDevicesUpdated, NameDeviceChanged,
	NameRecordingStateChanged, NameLiveStreamStateChanged, NameLiveStreamViewerCount,
	NameWaitingRoomStatusChanged, NameWaitingRoomAttendeeJoined, NameWaitingRoomAttendeeLeft,
	NameChatMessageReceived, NameChatMessageSent, NameChatMessageDeleted, NameChatStateChanged,
	NameTranscriptEntry, NameTranscriptStarted, NameTranscriptStopped, NameTranscriptLanguageChanged,
	NameLayoutChanged, NameParticipantPinned, NameParticipantSpotlight, NameHandRaisedChanged,
	NameStatsUpdated, NameError, NameToast,
}

// Names returns every event name in the vocabulary.
func Names() []Name {
	return append([]Name(nil), vocabulary...)
}

// Event is implemented only by the payload types in this package.
type Event interface {
	EventName() Name
	isEvent()
}

type CallStateChanged struct {
	From   domain.CallState `json:"from"`
	To     domain.CallState `json:"to"`
	Reason string           `json:"reason,omitempty"`
}

type CallConnected struct {
	Channel string     `json:"channelId"`
	UID     domain.UID `json:"uid"`
}

type CallEnded struct {
	Reason   string `json:"reason"`
	Duration int    `json:"duration"`
}

type ConnectionStateChanged struct {
	State     domain.ConnectionState `json:"state"`
	PrevState domain.ConnectionState `json:"prevState"`
	Reason    string                 `json:"reason,omitempty"`
}

type ParticipantJoined struct {
	Participant domain.Participant `json:"participant"`
}

type ParticipantLeft struct {
	UID    domain.UID `json:"uid"`
	Reason string     `json:"reason"`
}

type ParticipantUpdated struct {
	Participant domain.Participant `json:"participant"`
}

type LocalAudioChanged struct {
	Enabled  bool   `json:"enabled"`
	DeviceID string `json:"deviceId,omitempty"`
}

type LocalVideoChanged struct {
	Enabled  bool   `json:"enabled"`
	DeviceID string `json:"deviceId,omitempty"`
}

type RemoteAudioChanged struct {
	UID     domain.UID `json:"uid"`
	Enabled bool       `json:"enabled"`
}

type RemoteVideoChanged struct {
	UID     domain.UID `json:"uid"`
	Enabled bool       `json:"enabled"`
}

type ScreenShareStarted struct {
	UID       domain.UID `json:"uid"`
	ScreenUID domain.UID `json:"screenUid"`
}

type ScreenShareStopped struct {
	UID    domain.UID `json:"uid"`
	Reason string     `json:"reason,omitempty"`
}

type ScreenShareErrorCode string

const (
	ScreenSharePermissionDenied ScreenShareErrorCode = "PERMISSION_DENIED"
	ScreenShareNotInCall        ScreenShareErrorCode = "NOT_IN_CALL"
	ScreenShareUnknown          ScreenShareErrorCode = "UNKNOWN"
)

type ScreenShareError struct {
	Code    ScreenShareErrorCode `json:"code"`
	Message string               `json:"message"`
}

type NetworkQualityChanged struct {
	UID      domain.UID            `json:"uid"`
	Quality  domain.NetworkQuality `json:"quality"`
	Uplink   domain.NetworkQuality `json:"uplink"`
	Downlink domain.NetworkQuality `json:"downlink"`
}

type SpeakingChanged struct {
	UID        domain.UID `json:"uid"`
	IsSpeaking bool       `json:"isSpeaking"`
	Volume     int        `json:"volume"`
}

type ActiveSpeakerChanged struct {
	UID domain.UID `json:"uid"`
}

type TokenWillExpire struct {
	ExpiresIn int `json:"expiresIn"`
}

type TokenExpired struct{}

type TokenRefreshed struct{}

type VirtualBackgroundChanged struct {
	Enabled bool                           `json:"enabled"`
	Config  domain.VirtualBackgroundConfig `json:"config"`
	Applied bool                           `json:"applied"`
}

type BeautyEffectChanged struct {
	Enabled bool                 `json:"enabled"`
	Options domain.BeautyOptions `json:"options"`
}

type NoiseSuppressionChanged struct {
	Level domain.NoiseSuppressionLevel `json:"level"`
}

type DevicesUpdated struct {
	Devices domain.Devices `json:"devices"`
}

type DeviceChanged struct {
	Kind     domain.DeviceKind `json:"kind"`
	DeviceID string            `json:"deviceId"`
}

type RecordingStateChanged struct {
	Info domain.RecordingInfo `json:"info"`
}

type LiveStreamStateChanged struct {
	Info domain.LiveStreamInfo `json:"info"`
}

type LiveStreamViewerCount struct {
	Count int `json:"count"`
}

type WaitingRoomStatusChanged struct {
	Status  domain.WaitingRoomStatus `json:"status"`
	Message string                   `json:"message,omitempty"`
}

type WaitingRoomAttendeeJoined struct {
	Attendee domain.WaitingRoomAttendee `json:"attendee"`
}

type WaitingRoomAttendeeLeft struct {
	UID domain.UID `json:"uid"`
}

type ChatMessageReceived struct {
	Message domain.ChatMessage `json:"message"`
}

type ChatMessageSent struct {
	Message domain.ChatMessage `json:"message"`
}

type ChatMessageDeleted struct {
	MessageID string `json:"messageId"`
}

type ChatStateChanged struct {
	Enabled      bool `json:"enabled"`
	HostOnlyMode bool `json:"hostOnlyMode"`
}

type TranscriptEntryReceived struct {
	Entry domain.TranscriptEntry `json:"entry"`
}

type TranscriptStarted struct {
	Language string `json:"language"`
}

type TranscriptStopped struct{}

type TranscriptLanguageChanged struct {
	Language string `json:"language"`
}

type LayoutChanged struct {
	Mode domain.LayoutMode `json:"mode"`
}

// ParticipantPinned with an empty UID clears the pin.
type ParticipantPinned struct {
	UID domain.UID `json:"uid"`
}

// ParticipantSpotlight with an empty UID clears the spotlight.
type ParticipantSpotlight struct {
	UID domain.UID `json:"uid"`
}

type HandRaisedChanged struct {
	UID      domain.UID `json:"uid"`
	IsRaised bool       `json:"isRaised"`
}

type StatsUpdated struct {
	Stats domain.CallStats `json:"stats"`
}

type Error struct {
	Err domain.CallError `json:"error"`
}

// NewError flattens an AppError for the bus.
func NewError(id string, err *apperrors.AppError, at time.Time) Error {
	return Error{Err: domain.CallError{
		ID:          id,
		Code:        err.Code,
		Message:     err.Message,
		Detail:      err.Detail,
		Recoverable: err.Recoverable,
		Timestamp:   at,
	}}
}

type Toast struct {
	Toast domain.ToastMessage `json:"toast"`
}

func (CallStateChanged) EventName() Name          { return NameCallStateChanged }
func (CallConnected) EventName() Name             { return NameCallConnected }
func (CallEnded) EventName() Name                 { return NameCallEnded }
func (ConnectionStateChanged) EventName() Name    { return NameConnectionStateChanged }
func (ParticipantJoined) EventName() Name         { return NameParticipantJoined }
func (ParticipantLeft) EventName() Name           { return NameParticipantLeft }
func (ParticipantUpdated) EventName() Name        { return NameParticipantUpdated }
func (LocalAudioChanged) EventName() Name         { return NameLocalAudioChanged }
func (LocalVideoChanged) EventName() Name         { return NameLocalVideoChanged }
func (RemoteAudioChanged) EventName() Name        { return NameRemoteAudioChanged }
func (RemoteVideoChanged) EventName() Name        { return NameRemoteVideoChanged }
func (ScreenShareStarted) EventName() Name        { return NameScreenShareStarted }
func (ScreenShareStopped) EventName() Name        { return NameScreenShareStopped }
func (ScreenShareError) EventName() Name          { return NameScreenShareError }
func (NetworkQualityChanged) EventName() Name     { return NameNetworkQualityChanged }
func (SpeakingChanged) EventName() Name           { return NameSpeakingChanged }
func (ActiveSpeakerChanged) EventName() Name      { return NameActiveSpeakerChanged }
func (TokenWillExpire) EventName() Name           { return NameTokenWillExpire }
func (TokenExpired) EventName() Name              { return NameTokenExpired }
func (TokenRefreshed) EventName() Name            { return NameTokenRefreshed }
func (VirtualBackgroundChanged) EventName() Name  { return NameVirtualBackgroundChanged }
func (BeautyEffectChanged) EventName() Name       { return NameBeautyEffectChanged }
func (NoiseSuppressionChanged) EventName() Name   { return NameNoiseSuppressionChanged }
func (DevicesUpdated) EventName() Name            { return NameDevicesUpdated }
func (DeviceChanged) EventName() Name             { return NameDeviceChanged }
func (RecordingStateChanged) EventName() Name     { return NameRecordingStateChanged }
func (LiveStreamStateChanged) EventName() Name    { return NameLiveStreamStateChanged }
func (LiveStreamViewerCount) EventName() Name     { return NameLiveStreamViewerCount }
func (WaitingRoomStatusChanged) EventName() Name  { return NameWaitingRoomStatusChanged }
func (WaitingRoomAttendeeJoined) EventName() Name { return NameWaitingRoomAttendeeJoined }
func (WaitingRoomAttendeeLeft) EventName() Name   { return NameWaitingRoomAttendeeLeft }
func (ChatMessageReceived) EventName() Name       { return NameChatMessageReceived }
func (ChatMessageSent) EventName() Name           { return NameChatMessageSent }
func (ChatMessageDeleted) EventName() Name        { return NameChatMessageDeleted }
func (ChatStateChanged) EventName() Name          { return NameChatStateChanged }
func (TranscriptEntryReceived) EventName() Name   { return NameTranscriptEntry }
func (TranscriptStarted) EventName() Name         { return NameTranscriptStarted }
func (TranscriptStopped) EventName() Name         { return NameTranscriptStopped }
func (TranscriptLanguageChanged) EventName() Name { return NameTranscriptLanguageChanged }
func (LayoutChanged) EventName() Name             { return NameLayoutChanged }
func (ParticipantPinned) EventName() Name         { return NameParticipantPinned }
func (ParticipantSpotlight) EventName() Name      { return NameParticipantSpotlight }
func (HandRaisedChanged) EventName() Name         { return NameHandRaisedChanged }
func (StatsUpdated) EventName() Name              { return NameStatsUpdated }
func (Error) EventName() Name                     { return NameError }
func (Toast) EventName() Name                     { return NameToast }

func (CallStateChanged) isEvent()          {}
func (CallConnected) isEvent()             {}
func (CallEnded) isEvent()                 {}
func (ConnectionStateChanged) isEvent()    {}
func (ParticipantJoined) isEvent()         {}
func (ParticipantLeft) isEvent()           {}
func (ParticipantUpdated) isEvent()        {}
func (LocalAudioChanged) isEvent()         {}
func (LocalVideoChanged) isEvent()         {}
func (RemoteAudioChanged) isEvent()        {}
func (RemoteVideoChanged) isEvent()        {}
func (ScreenShareStarted) isEvent()        {}
func (ScreenShareStopped) isEvent()        {}
func (ScreenShareError) isEvent()          {}
func (NetworkQualityChanged) isEvent()     {}
func (SpeakingChanged) isEvent()           {}
func (ActiveSpeakerChanged) isEvent()      {}
func (TokenWillExpire) isEvent()           {}
func (TokenExpired) isEvent()              {}
func (TokenRefreshed) isEvent()            {}
func (VirtualBackgroundChanged) isEvent()  {}
func (BeautyEffectChanged) isEvent()       {}
func (NoiseSuppressionChanged) isEvent()   {}
func (DevicesUpdated) isEvent()            {}
func (DeviceChanged) isEvent()             {}
func (RecordingStateChanged) isEvent()     {}
func (LiveStreamStateChanged) isEvent()    {}
func (LiveStreamViewerCount) isEvent()     {}
func (WaitingRoomStatusChanged) isEvent()  {}
func (WaitingRoomAttendeeJoined) isEvent() {}
func (WaitingRoomAttendeeLeft) isEvent()   {}
func (ChatMessageReceived) isEvent()       {}
func (ChatMessageSent) isEvent()           {}
func (ChatMessageDeleted) isEvent()        {}
func (ChatStateChanged) isEvent()          {}
func (TranscriptEntryReceived) isEvent()   {}
func (TranscriptStarted) isEvent()         {}
func (TranscriptStopped) isEvent()         {}
func (TranscriptLanguageChanged) isEvent() {}
func (LayoutChanged) isEvent()             {}
func (ParticipantPinned) isEvent()         {}
func (ParticipantSpotlight) isEvent()      {}
func (HandRaisedChanged) isEvent()         {}
func (StatsUpdated) isEvent()              {}
func (Error) isEvent()                     {}
func (Toast) isEvent()                     {}
