package services

import (
	"context"
	"sync"
	"time"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/events"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/ports"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

type SettingsTab string

const (
	SettingsAudio      SettingsTab = "audio"
	SettingsVideo      SettingsTab = "video"
	SettingsBackground SettingsTab = "background"
	SettingsBeauty     SettingsTab = "beauty"
	SettingsGeneral    SettingsTab = "general"
)

// UIState holds panel and chrome toggles that never reach the adapter.
type UIState struct {
	SettingsOpen     bool        `json:"settingsOpen"`
	SettingsTab      SettingsTab `json:"settingsTab"`
	ParticipantsOpen bool        `json:"participantsOpen"`
	MoreMenuOpen     bool        `json:"moreMenuOpen"`
	Fullscreen       bool        `json:"fullscreen"`
	ShowControls     bool        `json:"showControls"`
}

// State is the observable call state. Values handed out by the store are
// deep copies and may be kept or modified by the caller.
type State struct {
	CallState       domain.CallState     `json:"callState"`
	Participants    []domain.Participant `json:"participants"`
	ActiveSpeakerID domain.UID           `json:"activeSpeakerId,omitempty"`
	IsHost          bool                 `json:"isHost"`

	Devices domain.Devices `json:"devices"`

	IsMuted         bool                      `json:"isMuted"`
	IsVideoOff      bool                      `json:"isVideoOff"`
	IsScreenSharing bool                      `json:"isScreenSharing"`
	IsAudioOnly     bool                      `json:"isAudioOnly"`
	VideoQuality    domain.VideoQualityPreset `json:"videoQuality"`

	VirtualBackgroundEnabled bool                           `json:"virtualBackgroundEnabled"`
	VirtualBackground        domain.VirtualBackgroundConfig `json:"virtualBackground"`
	BeautyEnabled            bool                           `json:"beautyEnabled"`
	Beauty                   domain.BeautyOptions           `json:"beauty"`
	NoiseSuppression         domain.NoiseSuppressionLevel   `json:"noiseSuppression"`

	Recording   domain.RecordingInfo    `json:"recording"`
	LiveStream  domain.LiveStreamInfo   `json:"liveStream"`
	WaitingRoom domain.WaitingRoomState `json:"waitingRoom"`

	Chat             domain.ChatState       `json:"chat"`
	IsChatOpen       bool                   `json:"isChatOpen"`
	Transcript       domain.TranscriptState `json:"transcript"`
	IsTranscriptOpen bool                   `json:"isTranscriptOpen"`

	Layout      domain.LayoutMode `json:"layout"`
	PinnedID    domain.UID        `json:"pinnedId,omitempty"`
	SpotlightID domain.UID        `json:"spotlightId,omitempty"`

	UI UIState `json:"ui"`

	Errors []domain.CallError    `json:"errors"`
	Toasts []domain.ToastMessage `json:"toasts"`
	Stats  domain.CallStats      `json:"stats"`

	Features domain.FeatureFlags `json:"features"`
}

func initialState(flags domain.FeatureFlags) State {
	return State{
		CallState:         domain.CallStateIdle,
		IsMuted:           true,
		IsVideoOff:        true,
		VideoQuality:      domain.QualityAuto,
		VirtualBackground: domain.VirtualBackgroundConfig{Type: domain.BackgroundNone},
		Beauty:            domain.DefaultBeautyOptions(),
		NoiseSuppression:  domain.NoiseMedium,
		Recording:         domain.RecordingInfo{State: domain.RecordingIdle},
		LiveStream:        domain.LiveStreamInfo{State: domain.LiveStreamIdle},
		WaitingRoom:       domain.WaitingRoomState{Status: domain.WaitingNone},
		Chat:              domain.ChatState{Enabled: true},
		Transcript:        domain.TranscriptState{Language: "en-US"},
		Layout:            domain.LayoutGrid,
		UI:                UIState{SettingsTab: SettingsAudio, ShowControls: true},
		Features:          flags,
	}
}

// Clone returns a copy that shares no slices or maps with s.
func (s State) Clone() State {
	s.Participants = append([]domain.Participant(nil), s.Participants...)
	s.Devices = s.Devices.Clone()
	s.WaitingRoom.Attendees = append([]domain.WaitingRoomAttendee(nil), s.WaitingRoom.Attendees...)
	s.Chat.Messages = append([]domain.ChatMessage(nil), s.Chat.Messages...)
	s.Transcript.Entries = append([]domain.TranscriptEntry(nil), s.Transcript.Entries...)
	s.Errors = append([]domain.CallError(nil), s.Errors...)
	s.Toasts = append([]domain.ToastMessage(nil), s.Toasts...)
	s.Stats = s.Stats.Clone()
	return s
}

type StoreOption func(*CallStore)

func WithStoreClock(c clock.Clock) StoreOption { return func(s *CallStore) { s.clock = c } }

// WithErrorExpiry sets how long non-recoverable errors stay listed.
func WithErrorExpiry(d time.Duration) StoreOption { return func(s *CallStore) { s.errorExpiry = d } }

// WithTickInterval sets the period of the duration, recording and live tickers.
func WithTickInterval(d time.Duration) StoreOption { return func(s *CallStore) { s.tickInterval = d } }

func WithTranscriptLimit(n int) StoreOption { return func(s *CallStore) { s.transcriptLimit = n } }

func WithFeatureFlags(f domain.FeatureFlags) StoreOption {
	return func(s *CallStore) { s.state.Features = f }
}

// CallStore is the single writer of application-visible call state. Engine
// driven changes arrive as bus events; action methods delegate to the
// adapter and let the resulting events update the state.
type CallStore struct {
	bus     *events.Bus
	actions ports.Actions
	caps    domain.Capabilities
	logger  *zap.SugaredLogger
	clock   clock.Clock

	errorExpiry     time.Duration
	tickInterval    time.Duration
	transcriptLimit int

	ctx    context.Context
	cancel context.CancelFunc
	unsubs []events.Unsubscribe

	mu             sync.Mutex
	state          State
	version        uint64
	closed         bool
	callStart      time.Time
	recordingStart time.Time
	liveStart      time.Time
	durationTicker *ticker
	recordTicker   *ticker
	liveTicker     *ticker
	nextTimer      uint64
	timers         map[uint64]*clock.Timer
	nextWatcher    uint64
	watchers       map[uint64]func(State)

	notifyMu  sync.Mutex
	delivered uint64
}

// NewCallStore subscribes to bus and reads the adapter capabilities once.
func NewCallStore(bus *events.Bus, actions ports.Actions, logger *zap.SugaredLogger, opts ...StoreOption) *CallStore {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &CallStore{
		bus:             bus,
		actions:         actions,
		caps:            actions.Capabilities(),
		logger:          logger,
		clock:           clock.New(),
		errorExpiry:     10 * time.Second,
		tickInterval:    time.Second,
		transcriptLimit: 200,
		ctx:             ctx,
		cancel:          cancel,
		state:           initialState(domain.DefaultFeatureFlags()),
		timers:          make(map[uint64]*clock.Timer),
		watchers:        make(map[uint64]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.subscribe()
	return s
}

// Close unsubscribes from the bus and stops every timer. The state stays
// readable.
func (s *CallStore) Close() {
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.stopTickersLocked()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.watchers = make(map[uint64]func(State))
}

// Snapshot returns a deep copy of the current state.
func (s *CallStore) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Capabilities reports the optional features of the underlying adapter.
func (s *CallStore) Capabilities() domain.Capabilities {
	return s.caps
}

// Watch calls fn with a fresh snapshot after every mutation. Snapshots are
// delivered in mutation order; a snapshot superseded before delivery is
// skipped. fn runs outside the store lock and must not call store actions.
func (s *CallStore) Watch(fn func(State)) func() {
	s.mu.Lock()
	s.nextWatcher++
	id := s.nextWatcher
	s.watchers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}
}

// update applies fn under the store lock and notifies watchers when fn
// reports a change.
func (s *CallStore) update(fn func(st *State) bool) {
	s.mu.Lock()
	if s.closed || !fn(&s.state) {
		s.mu.Unlock()
		return
	}
	s.version++
	version := s.version
	var watchers []func(State)
	var snap State
	if len(s.watchers) > 0 {
		watchers = make([]func(State), 0, len(s.watchers))
		for _, w := range s.watchers {
			watchers = append(watchers, w)
		}
		snap = s.state.Clone()
	}
	s.mu.Unlock()

	if len(watchers) == 0 {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if version <= s.delivered {
		return
	}
	s.delivered = version
	for _, w := range watchers {
		w(snap)
	}
}

// scheduleLocked runs fn once after d on the store clock. Callers hold s.mu.
func (s *CallStore) scheduleLocked(d time.Duration, fn func(st *State) bool) {
	s.nextTimer++
	id := s.nextTimer
	s.timers[id] = s.clock.AfterFunc(d, func() {
		s.update(func(st *State) bool {
			if _, ok := s.timers[id]; !ok {
				return false
			}
			delete(s.timers, id)
			return fn(st)
		})
	})
}

type ticker struct {
	t    *clock.Ticker
	done chan struct{}
}

func (s *CallStore) startTickerLocked(fn func(tk *ticker)) *ticker {
	tk := &ticker{t: s.clock.Ticker(s.tickInterval), done: make(chan struct{})}
	go func() {
		for {
			select {
			case <-tk.done:
				return
			case <-tk.t.C:
				fn(tk)
			}
		}
	}()
	return tk
}

func (tk *ticker) stop() {
	if tk == nil {
		return
	}
	tk.t.Stop()
	close(tk.done)
}

func (s *CallStore) stopTickersLocked() {
	s.durationTicker.stop()
	s.recordTicker.stop()
	s.liveTicker.stop()
	s.durationTicker, s.recordTicker, s.liveTicker = nil, nil, nil
}

// emit publishes a store-originated event. Never call with s.mu held.
func (s *CallStore) emit(e events.Event) {
	if s.bus != nil {
		s.bus.Emit(e)
	}
}
