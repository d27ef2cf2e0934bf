package domain

import "time"

type UID string

// Unassigned reports whether the engine should pick the uid.
func (u UID) Unassigned() bool {
	return u == "" || u == "0"
}

type ParticipantRole string

const (
	RoleHost     ParticipantRole = "host"
	RoleCoHost   ParticipantRole = "co-host"
	RoleSpeaker  ParticipantRole = "speaker"
	RoleAudience ParticipantRole = "audience"
)

// NetworkQuality is the engine's ordinal estimate: 0 unknown, 1 excellent ... 6 down.
type NetworkQuality int

const (
	NetworkUnknown NetworkQuality = iota
	NetworkExcellent
	NetworkGood
	NetworkPoor
	NetworkBad
	NetworkVeryBad
	NetworkDown
)

type Participant struct {
	ID              UID             `json:"id"`
	DisplayName     string          `json:"displayName"`
	Role            ParticipantRole `json:"role"`
	IsLocal         bool            `json:"isLocal"`
	IsHost          bool            `json:"isHost"`
	AudioEnabled    bool            `json:"audioEnabled"`
	VideoEnabled    bool            `json:"videoEnabled"`
	IsScreenShare   bool            `json:"isScreenShare"`
	IsScreenSharing bool            `json:"isScreenSharing"`
	IsSpeaking      bool            `json:"isSpeaking"`
	SpeakingVolume  int             `json:"speakingVolume"`
	NetworkQuality  NetworkQuality  `json:"networkQuality"`
	IsHandRaised    bool            `json:"isHandRaised"`
	IsPinned        bool            `json:"isPinned"`
	IsSpotlight     bool            `json:"isSpotlight"`
	JoinedAt        time.Time       `json:"joinedAt"`

	HasVirtualBackground bool `json:"hasVirtualBackground"`
	HasBeautyEffect      bool `json:"hasBeautyEffect"`
	HasNoiseSuppression  bool `json:"hasNoiseSuppression"`
}

// DefaultDisplayName is used when a participant joins without a name.
func DefaultDisplayName(uid UID) string {
	return "User-" + string(uid)
}
