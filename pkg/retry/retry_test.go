package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errNotReady = errors.New("not ready")

// recorder is a Sleeper that never blocks and keeps every requested delay.
type recorder struct {
	delays []time.Duration
}

func (r *recorder) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func TestRun_SuccessOnFirstAttempt(t *testing.T) {
	rec := &recorder{}
	calls := 0
	res := Run(context.Background(), Policy{MaxAttempts: 5, Backoff: Stepped(300*time.Millisecond, 500*time.Millisecond)}, rec.sleep,
		func(ctx context.Context, attempt int) error {
			calls++
			return nil
		})

	if res.Outcome != Succeeded {
		t.Errorf("Outcome = %v, want succeeded", res.Outcome)
	}
	if calls != 1 || res.Attempts != 1 {
		t.Errorf("calls = %d, attempts = %d, want 1/1", calls, res.Attempts)
	}
	if len(rec.delays) != 1 || rec.delays[0] != 300*time.Millisecond {
		t.Errorf("delays = %v, want [300ms]", rec.delays)
	}
}

func TestRun_SuccessAfterRetries(t *testing.T) {
	rec := &recorder{}
	res := Run(context.Background(), Policy{MaxAttempts: 5, Backoff: Stepped(300*time.Millisecond, 500*time.Millisecond)}, rec.sleep,
		func(ctx context.Context, attempt int) error {
			if attempt < 2 {
				return errNotReady
			}
			return nil
		})

	if res.Outcome != Succeeded || res.Attempts != 3 {
		t.Fatalf("got %v after %d attempts, want succeeded after 3", res.Outcome, res.Attempts)
	}
	want := []time.Duration{300 * time.Millisecond, 500 * time.Millisecond, time.Second}
	for i, d := range want {
		if rec.delays[i] != d {
			t.Errorf("delay[%d] = %v, want %v", i, rec.delays[i], d)
		}
	}
}

func TestRun_ExhaustsAtMaxAttempts(t *testing.T) {
	calls := 0
	res := Run(context.Background(), Policy{MaxAttempts: 5, Backoff: Linear(300 * time.Millisecond)}, (&recorder{}).sleep,
		func(ctx context.Context, attempt int) error {
			calls++
			return errNotReady
		})

	if res.Outcome != Exhausted {
		t.Errorf("Outcome = %v, want exhausted", res.Outcome)
	}
	if calls != 5 || res.Attempts != 5 {
		t.Errorf("calls = %d, attempts = %d, want 5", calls, res.Attempts)
	}
	if !errors.Is(res.Err, errNotReady) {
		t.Errorf("Err = %v, want wrapped errNotReady", res.Err)
	}
}

func TestRun_Abort(t *testing.T) {
	calls := 0
	res := Run(context.Background(), Policy{MaxAttempts: 5}, (&recorder{}).sleep,
		func(ctx context.Context, attempt int) error {
			calls++
			return Abort(errNotReady)
		})

	if res.Outcome != Aborted || calls != 1 {
		t.Errorf("got %v after %d calls, want aborted after 1", res.Outcome, calls)
	}
	if !errors.Is(res.Err, errNotReady) {
		t.Errorf("Err = %v, want errNotReady", res.Err)
	}
}

func TestRun_GuardStopsRun(t *testing.T) {
	connected := true
	calls := 0
	rec := &recorder{}
	res := Run(context.Background(), Policy{
		MaxAttempts: 5,
		Backoff:     Linear(time.Millisecond),
		Guard:       func() bool { return connected },
	}, rec.sleep, func(ctx context.Context, attempt int) error {
		calls++
		connected = false
		return errNotReady
	})

	if res.Outcome != Aborted || !errors.Is(res.Err, ErrGuard) {
		t.Errorf("got %v / %v, want aborted by guard", res.Outcome, res.Err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	res := Run(ctx, Policy{MaxAttempts: 3, Backoff: Linear(time.Millisecond)}, (&recorder{}).sleep,
		func(ctx context.Context, attempt int) error {
			calls++
			return nil
		})

	if res.Outcome != Aborted || calls != 0 {
		t.Errorf("got %v after %d calls, want aborted before any call", res.Outcome, calls)
	}
}

func TestExponential(t *testing.T) {
	b := Exponential(100*time.Millisecond, time.Second, 2.0)
	want := []time.Duration{0, 100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second}
	for attempt, d := range want {
		if got := b(attempt); got != d {
			t.Errorf("Exponential(%d) = %v, want %v", attempt, got, d)
		}
	}
}

func TestLinear(t *testing.T) {
	b := Linear(300 * time.Millisecond)
	if b(0) != 300*time.Millisecond || b(4) != 1500*time.Millisecond {
		t.Errorf("Linear = %v, %v", b(0), b(4))
	}
}
