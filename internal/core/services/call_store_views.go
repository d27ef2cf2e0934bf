package services

import (
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/pkg/utils"
)

// Views over State. They scan the roster on every call.

func (s State) LocalParticipant() (domain.Participant, bool) {
	if i := localIndex(s.Participants); i >= 0 {
		return s.Participants[i], true
	}
	return domain.Participant{}, false
}

func (s State) RemoteParticipants() []domain.Participant {
	return s.filter(func(p domain.Participant) bool { return !p.IsLocal })
}

func (s State) ParticipantCount() int { return len(s.Participants) }

func (s State) SpeakingParticipants() []domain.Participant {
	return s.filter(func(p domain.Participant) bool { return p.IsSpeaking })
}

func (s State) VideoParticipants() []domain.Participant {
	return s.filter(func(p domain.Participant) bool { return p.VideoEnabled })
}

func (s State) HandRaisedParticipants() []domain.Participant {
	return s.filter(func(p domain.Participant) bool { return p.IsHandRaised })
}

func (s State) ScreenSharingParticipant() (domain.Participant, bool) {
	for _, p := range s.Participants {
		if p.IsScreenSharing {
			return p, true
		}
	}
	return domain.Participant{}, false
}

// DisplayedParticipant picks the main-stage participant: pinned, then
// spotlight, then active speaker, then the first with video, then the first.
// A reference to someone no longer in the roster is skipped.
func (s State) DisplayedParticipant() (domain.Participant, bool) {
	for _, uid := range []domain.UID{s.PinnedID, s.SpotlightID, s.ActiveSpeakerID} {
		if uid == "" {
			continue
		}
		if i := indexOf(s.Participants, uid); i >= 0 {
			return s.Participants[i], true
		}
	}
	for _, p := range s.Participants {
		if p.VideoEnabled {
			return p, true
		}
	}
	if len(s.Participants) > 0 {
		return s.Participants[0], true
	}
	return domain.Participant{}, false
}

func (s State) IsInCall() bool { return s.CallState == domain.CallStateInCall }

func (s State) IsRecording() bool { return s.Recording.State == domain.RecordingRecording }

func (s State) IsLive() bool { return s.LiveStream.State == domain.LiveStreamLive }

func (s State) WaitingRoomCount() int { return len(s.WaitingRoom.Attendees) }

func (s State) CanRecord() bool { return s.Features.Recording && s.moderator() }

func (s State) CanLiveStream() bool { return s.Features.LiveStream && s.IsHost }

func (s State) CanManageWaitingRoom() bool { return s.Features.WaitingRoom && s.moderator() }

func (s State) moderator() bool {
	if s.IsHost {
		return true
	}
	local, ok := s.LocalParticipant()
	return ok && local.Role == domain.RoleCoHost
}

// DurationLabel renders the call duration as MM:SS or H:MM:SS.
func (s State) DurationLabel() string {
	return utils.FormatCallDuration(s.Stats.Duration)
}

func (s State) filter(keep func(domain.Participant) bool) []domain.Participant {
	var out []domain.Participant
	for _, p := range s.Participants {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}
