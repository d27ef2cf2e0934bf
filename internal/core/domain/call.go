package domain

import (
	"time"

	apperrors "github.com/DiagVN/diag-video-call-ui-kit/pkg/errors"
)

type CallState string

const (
	CallStateIdle         CallState = "idle"
	CallStateInitializing CallState = "initializing"
	CallStatePrejoin      CallState = "prejoin"
	CallStateWaitingRoom  CallState = "waiting_room"
	CallStateConnecting   CallState = "connecting"
	CallStateInCall       CallState = "in_call"
	CallStateReconnecting CallState = "reconnecting"
	CallStateEnded        CallState = "ended"
	CallStateError        CallState = "error"
)

// IsActive reports whether media is flowing or about to resume.
func (s CallState) IsActive() bool {
	return s == CallStateInCall || s == CallStateReconnecting
}

// CanTransition reports whether from → to is a legal lifecycle move.
// reconnecting is entered only from in_call and resolves to in_call or ended
// (error is allowed as a terminal escape).
func CanTransition(from, to CallState) bool {
	if from == to {
		return false
	}
	switch to {
	case CallStateReconnecting:
		return from == CallStateInCall
	case CallStateInCall:
		return from == CallStateConnecting || from == CallStateReconnecting
	}
	if from == CallStateReconnecting {
		return to == CallStateEnded || to == CallStateError
	}
	return true
}

type ConnectionState string

const (
	ConnectionDisconnected  ConnectionState = "DISCONNECTED"
	ConnectionConnecting    ConnectionState = "CONNECTING"
	ConnectionConnected     ConnectionState = "CONNECTED"
	ConnectionReconnecting  ConnectionState = "RECONNECTING"
	ConnectionDisconnecting ConnectionState = "DISCONNECTING"
)

// Reasons carried by call-ended and participant-left.
const (
	ReasonUser         = "user"
	ReasonDisconnected = "disconnected"
	ReasonQuit         = "quit"
	ReasonDropped      = "dropped"
	ReasonBrowser      = "browser"
)

type JoinOptions struct {
	Channel      string `json:"channel"`
	UID          UID    `json:"uid,omitempty"`
	Token        string `json:"token,omitempty"`
	DisplayName  string `json:"displayName,omitempty"`
	JoinMuted    bool   `json:"joinMuted"`
	JoinVideoOff bool   `json:"joinVideoOff"`
	IsHost       bool   `json:"isHost"`
}

type TrackStats struct {
	Codec      string  `json:"codec,omitempty"`
	Bitrate    int     `json:"bitrate"`
	PacketLoss float64 `json:"packetLoss"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	FrameRate  int     `json:"frameRate,omitempty"`
	FramesSent int     `json:"framesSent,omitempty"`
}

type RemoteStats struct {
	Audio TrackStats `json:"audio"`
	Video TrackStats `json:"video"`
	// Delay is the end-to-end delay in milliseconds.
	Delay int `json:"delay"`
}

type CallStats struct {
	Duration       int                 `json:"duration"` // seconds
	SendBitrate    int                 `json:"sendBitrate"`
	ReceiveBitrate int                 `json:"receiveBitrate"`
	RTT            int                 `json:"rtt"`
	PacketLoss     float64             `json:"packetLoss"`
	UserCount      int                 `json:"userCount"`
	LocalAudio     TrackStats          `json:"localAudio"`
	LocalVideo     TrackStats          `json:"localVideo"`
	Remote         map[UID]RemoteStats `json:"remote,omitempty"`
}

// Clone copies the per-remote map.
func (s CallStats) Clone() CallStats {
	if s.Remote != nil {
		remote := make(map[UID]RemoteStats, len(s.Remote))
		for k, v := range s.Remote {
			remote[k] = v
		}
		s.Remote = remote
	}
	return s
}

// CallError is the flat error record carried on the bus and kept in the store.
type CallError struct {
	ID          string              `json:"id"`
	Code        apperrors.ErrorCode `json:"code"`
	Message     string              `json:"message"`
	Detail      string              `json:"detail,omitempty"`
	Recoverable bool                `json:"recoverable"`
	Timestamp   time.Time           `json:"timestamp"`
}
