package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTestError = errors.New("test error")

func failing(context.Context) error { return errTestError }
func passing(context.Context) error { return nil }

func testConfig() Config {
	return Config{
		FailureThreshold:    2,
		SuccessThreshold:    2,
		Timeout:             5 * time.Second,
		MaxRequestsHalfOpen: 2,
	}
}

func TestBreaker_ClosedState(t *testing.T) {
	cb := New(DefaultConfig())
	ctx := context.Background()

	assert.NoError(t, cb.Execute(ctx, passing))
	assert.ErrorIs(t, cb.Execute(ctx, failing), errTestError)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 1, cb.Counts().ConsecutiveFailures)
}

func TestBreaker_OpensAndRejects(t *testing.T) {
	mock := clock.NewMock()
	cb := NewWithClock(testConfig(), mock)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_ = cb.Execute(ctx, failing)
	}
	require.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	mock := clock.NewMock()
	cb := NewWithClock(testConfig(), mock)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_ = cb.Execute(ctx, failing)
	}
	mock.Add(5 * time.Second)

	require.NoError(t, cb.Execute(ctx, passing))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(ctx, passing))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	mock := clock.NewMock()
	cb := NewWithClock(testConfig(), mock)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_ = cb.Execute(ctx, failing)
	}
	mock.Add(5 * time.Second)

	_ = cb.Execute(ctx, failing)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCall_ReturnsResult(t *testing.T) {
	cb := New(DefaultConfig())
	got, err := Call(context.Background(), cb, func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestBreaker_StateChangeCallback(t *testing.T) {
	mock := clock.NewMock()
	cb := NewWithClock(testConfig(), mock)
	var changes []string
	cb.OnStateChange(func(from, to State) {
		// Runs outside the lock.
		_ = cb.State()
		changes = append(changes, from.String()+">"+to.String())
	})

	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), failing)
	}
	mock.Add(5 * time.Second)
	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), passing)
	}

	assert.Equal(t, []string{"closed>open", "open>half-open", "half-open>closed"}, changes)
}

func TestBreaker_HalfOpenLimitsTrialRequests(t *testing.T) {
	mock := clock.NewMock()
	cfg := testConfig()
	cfg.MaxRequestsHalfOpen = 1
	cb := NewWithClock(cfg, mock)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_ = cb.Execute(ctx, failing)
	}
	mock.Add(5 * time.Second)

	err := cb.Execute(ctx, func(ctx context.Context) error {
		assert.ErrorIs(t, cb.Execute(ctx, passing), ErrOpen)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestBreaker_IgnoresResultsFromEarlierState(t *testing.T) {
	cb := New(testConfig())
	ctx := context.Background()

	err := cb.Execute(ctx, func(context.Context) error {
		cb.Reset()
		return errTestError
	})
	assert.ErrorIs(t, err, errTestError)
	assert.Zero(t, cb.Counts().ConsecutiveFailures)
}

func TestBreaker_CancelledCallsDoNotCount(t *testing.T) {
	cb := New(testConfig())
	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_Reset(t *testing.T) {
	cb := New(testConfig())
	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), failing)
	}
	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
}
