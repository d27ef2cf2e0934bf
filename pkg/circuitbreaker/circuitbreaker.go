package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned without calling the wrapped function while the breaker
// rejects requests.
var ErrOpen = errors.New("circuit breaker open")

type Config struct {
	FailureThreshold    int           // consecutive failures that open a closed breaker
	SuccessThreshold    int           // consecutive half-open successes that close it
	Timeout             time.Duration // time spent open before trial requests
	MaxRequestsHalfOpen int           // concurrent trial requests while half-open
}

// DefaultConfig suits polling an engine once per second: five bad polls open
// the breaker for ten seconds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             10 * time.Second,
		MaxRequestsHalfOpen: 1,
	}
}

// Counts tracks the current generation. A generation starts on every state
// change, so results from requests admitted in an older state are dropped.
type Counts struct {
	Requests             int
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastFailure          time.Time
}

type Breaker struct {
	config Config
	clock  clock.Clock

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	openedAt   time.Time

	onStateChange func(from, to State)
}

func New(config Config) *Breaker {
	return NewWithClock(config, clock.New())
}

// NewWithClock creates a breaker whose open timeout runs on c.
func NewWithClock(config Config, c clock.Clock) *Breaker {
	if config.MaxRequestsHalfOpen <= 0 {
		config.MaxRequestsHalfOpen = 1
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 1
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &Breaker{config: config, clock: c}
}

// OnStateChange registers fn, called after every transition once the breaker
// lock is released.
func (cb *Breaker) OnStateChange(fn func(from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

func (cb *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Call runs fn through cb and returns its result. A cancelled context does
// not count against the engine.
func Call[T any](ctx context.Context, cb *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	gen, err := cb.before()
	if err != nil {
		return zero, err
	}

	result, err := fn(ctx)
	cb.after(gen, err == nil || errors.Is(err, context.Canceled))
	if err != nil {
		return zero, err
	}
	return result, nil
}

func (cb *Breaker) before() (uint64, error) {
	cb.mu.Lock()
	state, notify := cb.currentState()
	if state == StateOpen || (state == StateHalfOpen && cb.counts.Requests >= cb.config.MaxRequestsHalfOpen) {
		cb.mu.Unlock()
		notify()
		return 0, fmt.Errorf("%w (state %s)", ErrOpen, state)
	}
	cb.counts.Requests++
	gen := cb.generation
	cb.mu.Unlock()
	notify()
	return gen, nil
}

func (cb *Breaker) after(gen uint64, ok bool) {
	cb.mu.Lock()
	if gen != cb.generation {
		cb.mu.Unlock()
		return
	}

	notify := func() {}
	if ok {
		cb.counts.ConsecutiveSuccesses++
		cb.counts.ConsecutiveFailures = 0
		if cb.state == StateHalfOpen && cb.counts.ConsecutiveSuccesses >= cb.config.SuccessThreshold {
			notify = cb.setState(StateClosed)
		} else if cb.state == StateHalfOpen {
			cb.counts.Requests--
		}
	} else {
		cb.counts.ConsecutiveFailures++
		cb.counts.ConsecutiveSuccesses = 0
		cb.counts.LastFailure = cb.clock.Now()
		if cb.state == StateHalfOpen || cb.counts.ConsecutiveFailures >= cb.config.FailureThreshold {
			notify = cb.setState(StateOpen)
		}
	}
	cb.mu.Unlock()
	notify()
}

// currentState moves an expired open breaker to half-open. Callers hold mu
// and run the returned notifier after releasing it.
func (cb *Breaker) currentState() (State, func()) {
	if cb.state == StateOpen && cb.clock.Since(cb.openedAt) >= cb.config.Timeout {
		return StateHalfOpen, cb.setState(StateHalfOpen)
	}
	return cb.state, func() {}
}

func (cb *Breaker) setState(to State) func() {
	from := cb.state
	if from == to {
		return func() {}
	}
	cb.state = to
	cb.generation++
	cb.counts = Counts{}
	if to == StateOpen {
		cb.openedAt = cb.clock.Now()
	}

	fn := cb.onStateChange
	if fn == nil {
		return func() {}
	}
	return func() { fn(from, to) }
}

func (cb *Breaker) State() State {
	cb.mu.Lock()
	state, notify := cb.currentState()
	cb.mu.Unlock()
	notify()
	return state
}

// Counts returns a copy of the current generation's counters.
func (cb *Breaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

// Reset closes the breaker and starts a new generation.
func (cb *Breaker) Reset() {
	cb.mu.Lock()
	notify := cb.setState(StateClosed)
	cb.generation++
	cb.counts = Counts{}
	cb.mu.Unlock()
	notify()
}
