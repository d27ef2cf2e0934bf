package monitoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/events"
	apperrors "github.com/DiagVN/diag-video-call-ui-kit/pkg/errors"
)

func newAttached(t *testing.T) (*Collector, *events.Bus) {
	t.Helper()
	c := NewCollector(prometheus.NewRegistry())
	bus := events.NewBus(zaptest.NewLogger(t).Sugar())
	t.Cleanup(c.Attach(bus))
	return c, bus
}

func TestCollector_CallStateGauge(t *testing.T) {
	c, bus := newAttached(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.callState.WithLabelValues("idle")))

	bus.Emit(events.CallStateChanged{From: domain.CallStateConnecting, To: domain.CallStateInCall})

	assert.Equal(t, 0.0, testutil.ToFloat64(c.callState.WithLabelValues("idle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.callState.WithLabelValues("in_call")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.eventsTotal.WithLabelValues(string(events.NameCallStateChanged))))
}

func TestCollector_ParticipantsFollowRoster(t *testing.T) {
	c, bus := newAttached(t)

	bus.Emit(events.ParticipantJoined{Participant: domain.Participant{ID: "1", IsLocal: true}})
	bus.Emit(events.ParticipantJoined{Participant: domain.Participant{ID: "2"}})
	bus.Emit(events.ParticipantJoined{Participant: domain.Participant{ID: "2"}})
	assert.Equal(t, 2.0, testutil.ToFloat64(c.participants))

	bus.Emit(events.ParticipantLeft{UID: "2", Reason: domain.ReasonQuit})
	assert.Equal(t, 1.0, testutil.ToFloat64(c.participants))

	bus.Emit(events.CallStateChanged{From: domain.CallStateInCall, To: domain.CallStateEnded})
	assert.Zero(t, testutil.ToFloat64(c.participants))
}

func TestCollector_ErrorsAndDuration(t *testing.T) {
	c, bus := newAttached(t)

	bus.Emit(events.Error{Err: domain.CallError{Code: apperrors.ErrCodeSubscribeFailed}})
	bus.Emit(events.Error{Err: domain.CallError{Code: apperrors.ErrCodeSubscribeFailed}})
	bus.Emit(events.CallEnded{Reason: domain.ReasonUser, Duration: 90})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.errorsTotal.WithLabelValues(string(apperrors.ErrCodeSubscribeFailed))))
	assert.Equal(t, 1, testutil.CollectAndCount(c.callDuration))
}

func TestCollector_DetachStopsCounting(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())
	bus := events.NewBus(zaptest.NewLogger(t).Sugar())
	detach := c.Attach(bus)
	detach()

	bus.Emit(events.Toast{})
	assert.Zero(t, testutil.ToFloat64(c.eventsTotal.WithLabelValues(string(events.NameToast))))
	assert.Zero(t, bus.ListenerCount(events.NameToast))
}

func TestCollector_ObserverHooks(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.ObserveJoin(300*time.Millisecond, nil)
	c.ObserveJoin(time.Second, errors.New("timeout"))
	c.ObserveSubscribe(domain.MediaVideo, "ok", 3)
	c.ObserveSubscribe(domain.MediaVideo, "aborted", 0)
	c.ObserveScreenShare("starting")
	c.ObserveScreenShare("active")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.joinFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.subscribeTotal.WithLabelValues("video", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.subscribeTotal.WithLabelValues("video", "aborted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.screenShareActive))

	c.ObserveScreenShare("idle")
	assert.Zero(t, testutil.ToFloat64(c.screenShareActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.screenShareTotal.WithLabelValues("idle")))
}

func TestHealthChecker_CheckAll(t *testing.T) {
	h := NewHealthChecker(clock.NewMock())
	h.AddCheck("ok", func(context.Context) (bool, error) { return true, nil }, time.Second, time.Second)
	assert.Equal(t, StatusHealthy, h.CheckAll(context.Background()).Status)

	h.AddCheck("broken", func(context.Context) (bool, error) { return false, errors.New("redis down") }, time.Second, time.Second)
	status := h.CheckAll(context.Background())
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, "redis down", status.Checks["broken"])
	assert.Equal(t, StatusHealthy, status.Checks["ok"])
	assert.False(t, h.IsReady(context.Background()))
}

func TestHealthChecker_CallCheck(t *testing.T) {
	h := NewHealthChecker(clock.NewMock())
	state := domain.CallStateInCall
	h.AddCallCheck(func() domain.CallState { return state }, time.Second, time.Second)
	assert.True(t, h.IsReady(context.Background()))

	state = domain.CallStateError
	assert.False(t, h.IsReady(context.Background()))
}

func TestHealthChecker_BackgroundChecksRunOnTicker(t *testing.T) {
	clk := clock.NewMock()
	h := NewHealthChecker(clk)
	h.AddCheck("flaky", func(context.Context) (bool, error) { return false, nil }, 5*time.Second, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.StartBackgroundChecks(ctx)

	require.Eventually(t, func() bool {
		clk.Add(5 * time.Second)
		return h.LastResults()["flaky"] == "check failed"
	}, time.Second, 10*time.Millisecond)
}

func TestHealthChecker_Handler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHealthChecker(clock.NewMock())
	r := gin.New()
	r.GET("/health", h.Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)

	h.AddCheck("down", func(context.Context) (bool, error) { return false, nil }, time.Second, time.Second)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
