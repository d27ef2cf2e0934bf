package services

import (
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/events"
	"github.com/DiagVN/diag-video-call-ui-kit/pkg/utils"
)

func (s *CallStore) subscribe() {
	bus := s.bus
	if bus == nil {
		return
	}
	s.unsubs = []events.Unsubscribe{
		events.Subscribe(bus, s.onCallStateChanged),
		events.Subscribe(bus, s.onParticipantJoined),
		events.Subscribe(bus, s.onParticipantLeft),
		events.Subscribe(bus, s.onParticipantUpdated),
		events.Subscribe(bus, s.onSpeakingChanged),
		events.Subscribe(bus, s.onActiveSpeakerChanged),
		events.Subscribe(bus, s.onNetworkQualityChanged),
		events.Subscribe(bus, s.onLocalAudioChanged),
		events.Subscribe(bus, s.onLocalVideoChanged),
		events.Subscribe(bus, s.onRemoteAudioChanged),
		events.Subscribe(bus, s.onRemoteVideoChanged),
		events.Subscribe(bus, s.onScreenShareStarted),
		events.Subscribe(bus, s.onScreenShareStopped),
		events.Subscribe(bus, s.onDevicesUpdated),
		events.Subscribe(bus, s.onDeviceChanged),
		events.Subscribe(bus, s.onVirtualBackgroundChanged),
		events.Subscribe(bus, s.onBeautyEffectChanged),
		events.Subscribe(bus, s.onNoiseSuppressionChanged),
		events.Subscribe(bus, s.onRecordingStateChanged),
		events.Subscribe(bus, s.onLiveStreamStateChanged),
		events.Subscribe(bus, s.onLiveStreamViewerCount),
		events.Subscribe(bus, s.onWaitingRoomStatusChanged),
		events.Subscribe(bus, s.onWaitingRoomAttendeeJoined),
		events.Subscribe(bus, s.onWaitingRoomAttendeeLeft),
		events.Subscribe(bus, s.onChatMessageReceived),
		events.Subscribe(bus, s.onChatMessageSent),
		events.Subscribe(bus, s.onChatMessageDeleted),
		events.Subscribe(bus, s.onChatStateChanged),
		events.Subscribe(bus, s.onTranscriptEntry),
		events.Subscribe(bus, s.onTranscriptStarted),
		events.Subscribe(bus, s.onTranscriptStopped),
		events.Subscribe(bus, s.onTranscriptLanguageChanged),
		events.Subscribe(bus, s.onStatsUpdated),
		events.Subscribe(bus, s.onLayoutChanged),
		events.Subscribe(bus, s.onParticipantPinned),
		events.Subscribe(bus, s.onParticipantSpotlight),
		events.Subscribe(bus, s.onHandRaisedChanged),
		events.Subscribe(bus, s.onError),
		events.Subscribe(bus, s.onToast),
	}
}

func indexOf(ps []domain.Participant, uid domain.UID) int {
	for i := range ps {
		if ps[i].ID == uid {
			return i
		}
	}
	return -1
}

// withParticipant applies fn to the roster entry for uid, if present.
func withParticipant(st *State, uid domain.UID, fn func(p *domain.Participant)) bool {
	i := indexOf(st.Participants, uid)
	if i < 0 {
		return false
	}
	fn(&st.Participants[i])
	return true
}

func localIndex(ps []domain.Participant) int {
	for i := range ps {
		if ps[i].IsLocal {
			return i
		}
	}
	return -1
}

func (s *CallStore) onCallStateChanged(e events.CallStateChanged) {
	s.logger.Debugw("Call state changed", "from", e.From, "to", e.To, "reason", e.Reason)
	s.update(func(st *State) bool {
		st.CallState = e.To
		switch e.To {
		case domain.CallStateInCall:
			if s.durationTicker == nil {
				s.callStart = s.clock.Now()
				st.Stats.Duration = 0
				s.durationTicker = s.startTickerLocked(s.tickDuration)
			}
		case domain.CallStateEnded, domain.CallStateError:
			s.durationTicker.stop()
			s.durationTicker = nil
		}
		return true
	})
}

// tickDuration advances the call duration and pulls fresh engine stats.
func (s *CallStore) tickDuration(tk *ticker) {
	stats := s.actions.GetStats(s.ctx)
	s.update(func(st *State) bool {
		if s.durationTicker != tk {
			return false
		}
		stats = stats.Clone()
		stats.Duration = utils.WholeSeconds(s.callStart, s.clock.Now())
		st.Stats = stats
		return true
	})
}

func (s *CallStore) onParticipantJoined(e events.ParticipantJoined) {
	p := e.Participant
	s.update(func(st *State) bool {
		if p.IsLocal {
			// At most one local entry: a new local identity replaces the old one.
			if i := localIndex(st.Participants); i >= 0 && st.Participants[i].ID != p.ID {
				st.Participants = append(st.Participants[:i:i], st.Participants[i+1:]...)
			}
			st.IsHost = p.IsHost
			st.IsMuted = !p.AudioEnabled
			st.IsVideoOff = !p.VideoEnabled
		}
		if i := indexOf(st.Participants, p.ID); i >= 0 {
			st.Participants[i] = p
		} else {
			st.Participants = append(st.Participants, p)
		}
		return true
	})
}

func (s *CallStore) onParticipantLeft(e events.ParticipantLeft) {
	s.update(func(st *State) bool {
		i := indexOf(st.Participants, e.UID)
		if i < 0 {
			return false
		}
		st.Participants = append(st.Participants[:i:i], st.Participants[i+1:]...)
		if st.PinnedID == e.UID {
			st.PinnedID = ""
		}
		if st.SpotlightID == e.UID {
			st.SpotlightID = ""
		}
		if st.ActiveSpeakerID == e.UID {
			st.ActiveSpeakerID = ""
		}
		return true
	})
}

func (s *CallStore) onParticipantUpdated(e events.ParticipantUpdated) {
	p := e.Participant
	s.update(func(st *State) bool {
		i := indexOf(st.Participants, p.ID)
		if i < 0 {
			return false
		}
		st.Participants[i] = p
		if p.IsLocal {
			st.IsMuted = !p.AudioEnabled
			st.IsVideoOff = !p.VideoEnabled
		}
		return true
	})
}

func (s *CallStore) onSpeakingChanged(e events.SpeakingChanged) {
	s.update(func(st *State) bool {
		return withParticipant(st, e.UID, func(p *domain.Participant) {
			p.IsSpeaking = e.IsSpeaking
			p.SpeakingVolume = e.Volume
		})
	})
}

func (s *CallStore) onActiveSpeakerChanged(e events.ActiveSpeakerChanged) {
	s.update(func(st *State) bool {
		st.ActiveSpeakerID = e.UID
		return true
	})
}

func (s *CallStore) onNetworkQualityChanged(e events.NetworkQualityChanged) {
	s.update(func(st *State) bool {
		return withParticipant(st, e.UID, func(p *domain.Participant) { p.NetworkQuality = e.Quality })
	})
}

func (s *CallStore) onLocalAudioChanged(e events.LocalAudioChanged) {
	s.update(func(st *State) bool {
		st.IsMuted = !e.Enabled
		if i := localIndex(st.Participants); i >= 0 {
			st.Participants[i].AudioEnabled = e.Enabled
		}
		return true
	})
}

func (s *CallStore) onLocalVideoChanged(e events.LocalVideoChanged) {
	s.update(func(st *State) bool {
		st.IsVideoOff = !e.Enabled
		if i := localIndex(st.Participants); i >= 0 {
			st.Participants[i].VideoEnabled = e.Enabled
		}
		return true
	})
}

func (s *CallStore) onRemoteAudioChanged(e events.RemoteAudioChanged) {
	s.update(func(st *State) bool {
		return withParticipant(st, e.UID, func(p *domain.Participant) { p.AudioEnabled = e.Enabled })
	})
}

func (s *CallStore) onRemoteVideoChanged(e events.RemoteVideoChanged) {
	s.update(func(st *State) bool {
		return withParticipant(st, e.UID, func(p *domain.Participant) { p.VideoEnabled = e.Enabled })
	})
}

func (s *CallStore) setScreenSharing(uid domain.UID, on bool) {
	s.update(func(st *State) bool {
		withParticipant(st, uid, func(p *domain.Participant) { p.IsScreenSharing = on })
		if i := localIndex(st.Participants); i >= 0 && st.Participants[i].ID == uid {
			st.IsScreenSharing = on
		}
		return true
	})
}

func (s *CallStore) onScreenShareStarted(e events.ScreenShareStarted) {
	s.setScreenSharing(e.UID, true)
}

func (s *CallStore) onScreenShareStopped(e events.ScreenShareStopped) {
	s.setScreenSharing(e.UID, false)
}

func (s *CallStore) onDevicesUpdated(e events.DevicesUpdated) {
	devices := e.Devices.Clone()
	s.update(func(st *State) bool {
		st.Devices = devices
		return true
	})
}

// onDeviceChanged refetches the whole device list; the selection moved.
func (s *CallStore) onDeviceChanged(events.DeviceChanged) {
	devices, err := s.actions.GetDevices(s.ctx)
	if err != nil {
		s.logger.Warnw("Failed to refresh devices", "error", err)
		return
	}
	s.update(func(st *State) bool {
		st.Devices = devices.Clone()
		return true
	})
}

func (s *CallStore) onVirtualBackgroundChanged(e events.VirtualBackgroundChanged) {
	s.update(func(st *State) bool {
		st.VirtualBackgroundEnabled = e.Enabled
		if e.Config.Type != "" {
			st.VirtualBackground = e.Config
		}
		return true
	})
}

func (s *CallStore) onBeautyEffectChanged(e events.BeautyEffectChanged) {
	s.update(func(st *State) bool {
		st.BeautyEnabled = e.Enabled
		if e.Enabled {
			st.Beauty = e.Options
		}
		return true
	})
}

func (s *CallStore) onNoiseSuppressionChanged(e events.NoiseSuppressionChanged) {
	s.update(func(st *State) bool {
		st.NoiseSuppression = e.Level
		return true
	})
}

func (s *CallStore) onRecordingStateChanged(e events.RecordingStateChanged) {
	s.update(func(st *State) bool {
		st.Recording = e.Info
		switch {
		case e.Info.State == domain.RecordingRecording && s.recordTicker == nil:
			s.recordingStart = e.Info.StartTime
			if s.recordingStart.IsZero() {
				s.recordingStart = s.clock.Now()
			}
			s.recordTicker = s.startTickerLocked(s.tickRecording)
		case e.Info.State != domain.RecordingRecording && s.recordTicker != nil:
			s.recordTicker.stop()
			s.recordTicker = nil
		}
		return true
	})
}

func (s *CallStore) tickRecording(tk *ticker) {
	s.update(func(st *State) bool {
		if s.recordTicker != tk {
			return false
		}
		st.Recording.Duration = utils.WholeSeconds(s.recordingStart, s.clock.Now())
		return true
	})
}

func (s *CallStore) onLiveStreamStateChanged(e events.LiveStreamStateChanged) {
	s.update(func(st *State) bool {
		st.LiveStream = e.Info
		switch {
		case e.Info.State == domain.LiveStreamLive && s.liveTicker == nil:
			s.liveStart = e.Info.StartTime
			if s.liveStart.IsZero() {
				s.liveStart = s.clock.Now()
			}
			s.liveTicker = s.startTickerLocked(s.tickLive)
		case e.Info.State != domain.LiveStreamLive && s.liveTicker != nil:
			s.liveTicker.stop()
			s.liveTicker = nil
		}
		return true
	})
}

func (s *CallStore) tickLive(tk *ticker) {
	s.update(func(st *State) bool {
		if s.liveTicker != tk {
			return false
		}
		st.LiveStream.Duration = utils.WholeSeconds(s.liveStart, s.clock.Now())
		return true
	})
}

func (s *CallStore) onLiveStreamViewerCount(e events.LiveStreamViewerCount) {
	s.update(func(st *State) bool {
		st.LiveStream.ViewerCount = e.Count
		return true
	})
}

func (s *CallStore) onWaitingRoomStatusChanged(e events.WaitingRoomStatusChanged) {
	s.update(func(st *State) bool {
		st.WaitingRoom.Status = e.Status
		st.WaitingRoom.Message = e.Message
		switch e.Status {
		case domain.WaitingApproved:
			st.CallState = domain.CallStateConnecting
		case domain.WaitingRejected:
			st.CallState = domain.CallStateEnded
		}
		return true
	})
}

func (s *CallStore) onWaitingRoomAttendeeJoined(e events.WaitingRoomAttendeeJoined) {
	s.update(func(st *State) bool {
		for _, a := range st.WaitingRoom.Attendees {
			if a.ID == e.Attendee.ID {
				return false
			}
		}
		st.WaitingRoom.Attendees = append(st.WaitingRoom.Attendees, e.Attendee)
		return true
	})
}

func (s *CallStore) onWaitingRoomAttendeeLeft(e events.WaitingRoomAttendeeLeft) {
	s.update(func(st *State) bool {
		for i, a := range st.WaitingRoom.Attendees {
			if a.ID == e.UID {
				st.WaitingRoom.Attendees = append(st.WaitingRoom.Attendees[:i:i], st.WaitingRoom.Attendees[i+1:]...)
				return true
			}
		}
		return false
	})
}

func (s *CallStore) onChatMessageReceived(e events.ChatMessageReceived) {
	s.update(func(st *State) bool {
		st.Chat.Messages = append(st.Chat.Messages, e.Message)
		if !st.IsChatOpen && !e.Message.IsLocal {
			st.Chat.UnreadCount++
		}
		return true
	})
}

func (s *CallStore) onChatMessageSent(e events.ChatMessageSent) {
	s.update(func(st *State) bool {
		st.Chat.Messages = append(st.Chat.Messages, e.Message)
		return true
	})
}

func (s *CallStore) onChatMessageDeleted(e events.ChatMessageDeleted) {
	s.update(func(st *State) bool {
		for i, m := range st.Chat.Messages {
			if m.ID == e.MessageID {
				st.Chat.Messages = append(st.Chat.Messages[:i:i], st.Chat.Messages[i+1:]...)
				return true
			}
		}
		return false
	})
}

func (s *CallStore) onChatStateChanged(e events.ChatStateChanged) {
	s.update(func(st *State) bool {
		st.Chat.Enabled = e.Enabled
		st.Chat.HostOnlyMode = e.HostOnlyMode
		return true
	})
}

// onTranscriptEntry keeps at most one interim entry per speaker. A final
// entry replaces the speaker's interim one and is appended at the end.
func (s *CallStore) onTranscriptEntry(e events.TranscriptEntryReceived) {
	entry := e.Entry
	s.update(func(st *State) bool {
		interim := -1
		for i, existing := range st.Transcript.Entries {
			if existing.ParticipantID == entry.ParticipantID && !existing.IsFinal {
				interim = i
				break
			}
		}
		entries := st.Transcript.Entries
		if !entry.IsFinal {
			if interim >= 0 {
				entries[interim] = entry
			} else {
				entries = append(entries, entry)
			}
			st.Transcript.Entries = entries
			return true
		}
		if interim >= 0 {
			entries = append(entries[:interim:interim], entries[interim+1:]...)
		}
		entries = append(entries, entry)
		if limit := s.transcriptLimit; limit > 0 && len(entries) > limit {
			entries = append([]domain.TranscriptEntry(nil), entries[len(entries)-limit:]...)
		}
		st.Transcript.Entries = entries
		return true
	})
}

func (s *CallStore) onTranscriptStarted(e events.TranscriptStarted) {
	s.update(func(st *State) bool {
		st.Transcript.Enabled = true
		if e.Language != "" {
			st.Transcript.Language = e.Language
		}
		return true
	})
}

func (s *CallStore) onTranscriptStopped(events.TranscriptStopped) {
	s.update(func(st *State) bool {
		st.Transcript.Enabled = false
		return true
	})
}

func (s *CallStore) onTranscriptLanguageChanged(e events.TranscriptLanguageChanged) {
	s.update(func(st *State) bool {
		st.Transcript.Language = e.Language
		return true
	})
}

// onStatsUpdated takes engine figures; the duration stays owned by the ticker.
func (s *CallStore) onStatsUpdated(e events.StatsUpdated) {
	stats := e.Stats.Clone()
	s.update(func(st *State) bool {
		if s.durationTicker != nil || stats.Duration == 0 {
			stats.Duration = st.Stats.Duration
		}
		st.Stats = stats
		return true
	})
}

func (s *CallStore) onLayoutChanged(e events.LayoutChanged) {
	s.update(func(st *State) bool {
		st.Layout = e.Mode
		return true
	})
}

func (s *CallStore) onParticipantPinned(e events.ParticipantPinned) {
	s.update(func(st *State) bool {
		st.PinnedID = e.UID
		return true
	})
}

func (s *CallStore) onParticipantSpotlight(e events.ParticipantSpotlight) {
	s.update(func(st *State) bool {
		st.SpotlightID = e.UID
		return true
	})
}

func (s *CallStore) onHandRaisedChanged(e events.HandRaisedChanged) {
	s.update(func(st *State) bool {
		return withParticipant(st, e.UID, func(p *domain.Participant) { p.IsHandRaised = e.IsRaised })
	})
}

// onError lists the error; non-recoverable ones drop off after errorExpiry.
func (s *CallStore) onError(e events.Error) {
	callErr := e.Err
	s.update(func(st *State) bool {
		st.Errors = append(st.Errors, callErr)
		if !callErr.Recoverable && s.errorExpiry > 0 {
			s.scheduleLocked(s.errorExpiry, func(st *State) bool {
				return removeError(st, callErr)
			})
		}
		return true
	})
}

func removeError(st *State, target domain.CallError) bool {
	for i, ce := range st.Errors {
		if (target.ID != "" && ce.ID == target.ID) || (target.ID == "" && ce.Code == target.Code) {
			st.Errors = append(st.Errors[:i:i], st.Errors[i+1:]...)
			return true
		}
	}
	return false
}

func (s *CallStore) onToast(e events.Toast) {
	toast := e.Toast
	s.update(func(st *State) bool {
		st.Toasts = append(st.Toasts, toast)
		if toast.Duration > 0 {
			s.scheduleLocked(toast.Duration, func(st *State) bool {
				return removeToast(st, toast.ID)
			})
		}
		return true
	})
}

func removeToast(st *State, id string) bool {
	for i, t := range st.Toasts {
		if t.ID == id {
			st.Toasts = append(st.Toasts[:i:i], st.Toasts[i+1:]...)
			return true
		}
	}
	return false
}
