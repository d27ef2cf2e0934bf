package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	apperrors "github.com/DiagVN/diag-video-call-ui-kit/pkg/errors"
)

func TestBus_DeliversInRegistrationOrder(t *testing.T) {
	bus := NewBus(nil)
	var order []int

	bus.On(NameLayoutChanged, func(Event) { order = append(order, 1) })
	bus.On(NameLayoutChanged, func(Event) { order = append(order, 2) })
	bus.On(NameLayoutChanged, func(Event) { order = append(order, 3) })

	bus.Emit(LayoutChanged{Mode: domain.LayoutGrid})

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestBus_OnlyMatchingName(t *testing.T) {
	bus := NewBus(nil)
	calls := 0
	bus.On(NameTokenExpired, func(Event) { calls++ })

	bus.Emit(TokenRefreshed{})
	assert.Equal(t, 0, calls)

	bus.Emit(TokenExpired{})
	assert.Equal(t, 1, calls)
}

func TestBus_Once(t *testing.T) {
	bus := NewBus(nil)
	calls := 0
	bus.Once(NameTokenExpired, func(Event) { calls++ })

	bus.Emit(TokenExpired{})
	bus.Emit(TokenExpired{})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.ListenerCount(NameTokenExpired))
}

func TestBus_UnsubscribeIsIdempotent(t *testing.T) {
	bus := NewBus(nil)
	a, b := 0, 0
	offA := bus.On(NameTokenExpired, func(Event) { a++ })
	bus.On(NameTokenExpired, func(Event) { b++ })

	offA()
	offA()
	bus.Emit(TokenExpired{})

	assert.Equal(t, 0, a)
	assert.Equal(t, 1, b)
	assert.Equal(t, 1, bus.ListenerCount(NameTokenExpired))
}

func TestBus_UnsubscribeDuringEmitSkipsLaterHandler(t *testing.T) {
	bus := NewBus(nil)
	var offSecond Unsubscribe
	second := 0

	bus.On(NameTokenExpired, func(Event) { offSecond() })
	offSecond = bus.On(NameTokenExpired, func(Event) { second++ })

	bus.Emit(TokenExpired{})
	assert.Equal(t, 0, second)
}

func TestBus_HandlerAddedDuringEmitWaitsForNextEmit(t *testing.T) {
	bus := NewBus(nil)
	late := 0
	added := false

	bus.On(NameTokenExpired, func(Event) {
		if !added {
			added = true
			bus.On(NameTokenExpired, func(Event) { late++ })
		}
	})

	bus.Emit(TokenExpired{})
	assert.Equal(t, 0, late)

	bus.Emit(TokenExpired{})
	assert.Equal(t, 1, late)
}

func TestBus_PanickingHandlerIsIsolated(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	bus := NewBus(zap.New(core).Sugar())
	after := 0

	bus.On(NameTokenExpired, func(Event) { panic("boom") })
	bus.On(NameTokenExpired, func(Event) { after++ })

	require.NotPanics(t, func() { bus.Emit(TokenExpired{}) })
	assert.Equal(t, 1, after)
	assert.Equal(t, 1, logs.FilterMessage("event handler panicked").Len())
}

func TestBus_NestedEmitIsSynchronous(t *testing.T) {
	bus := NewBus(nil)
	var seen []Name

	bus.On(NameCallConnected, func(Event) {
		seen = append(seen, NameCallConnected)
		bus.Emit(CallStateChanged{From: domain.CallStateConnecting, To: domain.CallStateInCall})
		seen = append(seen, "after-nested")
	})
	bus.On(NameCallStateChanged, func(Event) { seen = append(seen, NameCallStateChanged) })

	bus.Emit(CallConnected{Channel: "demo", UID: "1"})

	assert.Equal(t, []Name{NameCallConnected, NameCallStateChanged, "after-nested"}, seen)
}

func TestBus_ClearAndClearEvent(t *testing.T) {
	bus := NewBus(nil)
	a, b := 0, 0
	offA := bus.On(NameTokenExpired, func(Event) { a++ })
	bus.On(NameTokenRefreshed, func(Event) { b++ })

	bus.ClearEvent(NameTokenExpired)
	bus.Emit(TokenExpired{})
	bus.Emit(TokenRefreshed{})
	assert.Equal(t, 0, a)
	assert.Equal(t, 1, b)

	offA()

	bus.Clear()
	bus.Emit(TokenRefreshed{})
	assert.Equal(t, 1, b)
	assert.Equal(t, 0, bus.ListenerCount(NameTokenRefreshed))
}

func TestBus_NilInputs(t *testing.T) {
	bus := NewBus(nil)
	off := bus.On(NameToast, nil)
	off()
	assert.Equal(t, 0, bus.ListenerCount(NameToast))
	assert.NotPanics(t, func() { bus.Emit(nil) })
}

func TestSubscribe_Typed(t *testing.T) {
	bus := NewBus(nil)
	var got ParticipantLeft
	off := Subscribe(bus, func(e ParticipantLeft) { got = e })

	bus.Emit(ParticipantLeft{UID: "7", Reason: domain.ReasonQuit})
	assert.Equal(t, domain.UID("7"), got.UID)
	assert.Equal(t, domain.ReasonQuit, got.Reason)

	off()
	bus.Emit(ParticipantLeft{UID: "8"})
	assert.Equal(t, domain.UID("7"), got.UID)
}

func TestSubscribeOnce_Typed(t *testing.T) {
	bus := NewBus(nil)
	count := 0
	SubscribeOnce(bus, func(TokenWillExpire) { count++ })

	bus.Emit(TokenWillExpire{ExpiresIn: 30})
	bus.Emit(TokenWillExpire{ExpiresIn: 30})
	assert.Equal(t, 1, count)
}

func TestBus_ConcurrentEmit(t *testing.T) {
	bus := NewBus(nil)
	var mu sync.Mutex
	total := 0
	bus.On(NameStatsUpdated, func(Event) {
		mu.Lock()
		total++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				bus.Emit(StatsUpdated{})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1000, total)
}

func TestNames_CoverVocabulary(t *testing.T) {
	names := Names()
	seen := make(map[Name]bool, len(names))
	for _, n := range names {
		assert.False(t, seen[n], "duplicate name %s", n)
		seen[n] = true
	}
	for _, e := range []Event{
		CallStateChanged{}, ParticipantJoined{}, ScreenShareError{}, VirtualBackgroundChanged{},
		ChatMessageReceived{}, TranscriptEntryReceived{}, HandRaisedChanged{}, Error{}, Toast{},
	} {
		assert.True(t, seen[e.EventName()], "missing %s", e.EventName())
	}

	names[0] = "mutated"
	assert.Equal(t, NameCallStateChanged, Names()[0])
}

func TestNewError(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	appErr := apperrors.NewCallError(apperrors.ErrCodeDeviceError, true, assert.AnError)

	e := NewError("err-1", appErr, at)

	assert.Equal(t, NameError, e.EventName())
	assert.Equal(t, "err-1", e.Err.ID)
	assert.Equal(t, apperrors.ErrCodeDeviceError, e.Err.Code)
	assert.Equal(t, "vc.err.deviceError", e.Err.Message)
	assert.Equal(t, assert.AnError.Error(), e.Err.Detail)
	assert.True(t, e.Err.Recoverable)
	assert.Equal(t, at, e.Err.Timestamp)
}
