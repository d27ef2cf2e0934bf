package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/benbjohnson/clock"
)

// Outcome is the terminal state of a retry run.
type Outcome int

const (
	Succeeded Outcome = iota
	Aborted
	Exhausted
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Aborted:
		return "aborted"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Backoff returns the wait before the given zero-based attempt.
type Backoff func(attempt int) time.Duration

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Attempt is one try. Returning nil ends the run with Succeeded; returning an
// error wrapped by Abort ends it with Aborted; any other error retries.
type Attempt func(ctx context.Context, attempt int) error

// Policy bounds a retry run.
type Policy struct {
	MaxAttempts int
	Backoff     Backoff
	// Guard is checked before and after every wait. A false result aborts
	// the run without an error.
	Guard func() bool
}

// Result describes how a run ended.
type Result struct {
	Outcome  Outcome
	Attempts int
	Err      error
}

type abortError struct {
	err error
}

func (e *abortError) Error() string { return e.err.Error() }
func (e *abortError) Unwrap() error { return e.err }

// Abort marks err as terminal: the run stops without further attempts.
func Abort(err error) error {
	if err == nil {
		err = errors.New("aborted")
	}
	return &abortError{err: err}
}

// ErrGuard is reported when the policy guard stopped the run.
var ErrGuard = errors.New("retry guard rejected attempt")

// Run executes fn until it succeeds, aborts, or MaxAttempts is reached.
// Every attempt is preceded by the wait Backoff(attempt) returns.
func Run(ctx context.Context, p Policy, sleep Sleeper, fn Attempt) Result {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if sleep == nil {
		sleep = ContextSleeper
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if p.Guard != nil && !p.Guard() {
			return Result{Outcome: Aborted, Attempts: attempt, Err: ErrGuard}
		}

		if p.Backoff != nil {
			if d := p.Backoff(attempt); d > 0 {
				if err := sleep(ctx, d); err != nil {
					return Result{Outcome: Aborted, Attempts: attempt, Err: fmt.Errorf("retry cancelled during wait: %w", err)}
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return Result{Outcome: Aborted, Attempts: attempt, Err: fmt.Errorf("retry cancelled: %w", err)}
		}
		if p.Guard != nil && !p.Guard() {
			return Result{Outcome: Aborted, Attempts: attempt, Err: ErrGuard}
		}

		err := fn(ctx, attempt)
		if err == nil {
			return Result{Outcome: Succeeded, Attempts: attempt + 1}
		}

		var abort *abortError
		if errors.As(err, &abort) {
			return Result{Outcome: Aborted, Attempts: attempt + 1, Err: abort.err}
		}
		lastErr = err
	}

	return Result{
		Outcome:  Exhausted,
		Attempts: p.MaxAttempts,
		Err:      fmt.Errorf("max attempts (%d) exceeded: %w", p.MaxAttempts, lastErr),
	}
}

// Stepped waits first before attempt 0 and step*attempt before later attempts.
func Stepped(first, step time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt == 0 {
			return first
		}
		return step * time.Duration(attempt)
	}
}

// Linear waits step*(attempt+1).
func Linear(step time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return step * time.Duration(attempt+1)
	}
}

// Exponential waits 0 before the first attempt and initial*multiplier^(attempt-1)
// afterwards, capped at max.
func Exponential(initial, max time.Duration, multiplier float64) Backoff {
	return func(attempt int) time.Duration {
		if attempt == 0 {
			return 0
		}
		delay := float64(initial) * math.Pow(multiplier, float64(attempt-1))
		if delay > float64(max) {
			delay = float64(max)
		}
		return time.Duration(delay)
	}
}

// ContextSleeper waits on the wall clock.
func ContextSleeper(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ClockSleeper waits on c, so a mock clock can drive the run.
func ClockSleeper(c clock.Clock) Sleeper {
	return func(ctx context.Context, d time.Duration) error {
		t := c.Timer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}
}
