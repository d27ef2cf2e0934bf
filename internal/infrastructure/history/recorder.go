package history

import (
	"context"
	"sync"
	"time"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/events"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/ports"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const saveTimeout = 5 * time.Second

// Recorder turns the event stream of one call into a CallRecord and saves
// it when the call ends.
type Recorder struct {
	repo   ports.CallHistoryRepository
	clock  clock.Clock
	logger *zap.SugaredLogger

	mu      sync.Mutex
	current *ports.CallRecord
	roster  map[domain.UID]struct{}
	unsubs  []events.Unsubscribe
}

func NewRecorder(repo ports.CallHistoryRepository, clk clock.Clock, logger *zap.SugaredLogger) *Recorder {
	if clk == nil {
		clk = clock.New()
	}
	return &Recorder{repo: repo, clock: clk, logger: logger}
}

// Attach starts recording calls announced on bus.
func (r *Recorder) Attach(bus *events.Bus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubs = append(r.unsubs,
		events.Subscribe(bus, r.onConnected),
		events.Subscribe(bus, r.onJoined),
		events.Subscribe(bus, r.onLeft),
		events.Subscribe(bus, r.onError),
		events.Subscribe(bus, r.onEnded),
	)
}

// Detach stops recording. A call in progress is discarded.
func (r *Recorder) Detach() {
	r.mu.Lock()
	unsubs := r.unsubs
	r.unsubs = nil
	r.current = nil
	r.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
}

// Current returns a copy of the call being recorded.
func (r *Recorder) Current() (ports.CallRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return ports.CallRecord{}, false
	}
	return *r.current, true
}

func (r *Recorder) onConnected(e events.CallConnected) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = &ports.CallRecord{
		ID:        uuid.New().String(),
		Channel:   e.Channel,
		LocalUID:  string(e.UID),
		StartedAt: r.clock.Now(),
	}
	r.roster = map[domain.UID]struct{}{e.UID: {}}
	r.current.PeakParticipants = 1
}

func (r *Recorder) onJoined(e events.ParticipantJoined) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return
	}
	p := e.Participant
	if p.IsLocal {
		r.current.DisplayName = p.DisplayName
		if r.current.LocalUID != string(p.ID) {
			delete(r.roster, domain.UID(r.current.LocalUID))
			r.current.LocalUID = string(p.ID)
		}
	}
	r.roster[p.ID] = struct{}{}
	if n := len(r.roster); n > r.current.PeakParticipants {
		r.current.PeakParticipants = n
	}
}

func (r *Recorder) onLeft(e events.ParticipantLeft) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		delete(r.roster, e.UID)
	}
}

func (r *Recorder) onError(events.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		r.current.ErrorCount++
	}
}

func (r *Recorder) onEnded(e events.CallEnded) {
	r.mu.Lock()
	rec := r.current
	r.current = nil
	r.roster = nil
	r.mu.Unlock()

	if rec == nil {
		return
	}
	rec.EndedAt = r.clock.Now()
	rec.DurationSeconds = e.Duration
	rec.EndReason = e.Reason

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := r.repo.Save(ctx, rec); err != nil {
		r.logger.Errorw("Failed to save call record", "channel", rec.Channel, "error", err)
		return
	}
	r.logger.Infow("Call recorded",
		"id", rec.ID,
		"channel", rec.Channel,
		"duration", rec.DurationSeconds,
		"reason", rec.EndReason,
		"peak_participants", rec.PeakParticipants,
	)
}
