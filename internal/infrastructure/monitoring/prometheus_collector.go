package monitoring

import (
	"sync"
	"time"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/events"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var callStates = []domain.CallState{
	domain.CallStateIdle,
	domain.CallStateInitializing,
	domain.CallStatePrejoin,
	domain.CallStateWaitingRoom,
	domain.CallStateConnecting,
	domain.CallStateInCall,
	domain.CallStateReconnecting,
	domain.CallStateEnded,
	domain.CallStateError,
}

// Collector turns bus events and adapter outcomes into callkit_* metrics.
type Collector struct {
	// Gauges
	callState         *prometheus.GaugeVec
	participants      prometheus.Gauge
	screenShareActive prometheus.Gauge

	// Counters
	eventsTotal      *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	subscribeTotal   *prometheus.CounterVec
	joinFailures     prometheus.Counter
	screenShareTotal *prometheus.CounterVec

	// Histograms
	joinDuration      prometheus.Histogram
	callDuration      prometheus.Histogram
	subscribeAttempts *prometheus.HistogramVec

	mu     sync.Mutex
	roster map[domain.UID]struct{}
	unsubs []events.Unsubscribe
}

// NewCollector registers the metrics on reg. A nil reg uses the default registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		callState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "callkit_call_state",
			Help: "Current call state (1 for the active state)",
		}, []string{"state"}),

		participants: factory.NewGauge(prometheus.GaugeOpts{
			Name: "callkit_participants",
			Help: "Participants in the current call, local included",
		}),

		screenShareActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "callkit_screen_share_active",
			Help: "1 while the local screen share is active",
		}),

		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "callkit_events_total",
			Help: "Events published on the bus",
		}, []string{"event"}),

		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "callkit_errors_total",
			Help: "Call errors by code",
		}, []string{"code"}),

		subscribeTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "callkit_subscribe_total",
			Help: "Remote subscribe outcomes",
		}, []string{"kind", "outcome"}),

		joinFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "callkit_join_failures_total",
			Help: "Joins that returned an error",
		}),

		screenShareTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "callkit_screen_share_transitions_total",
			Help: "Local screen share state transitions",
		}, []string{"state"}),

		joinDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "callkit_join_duration_seconds",
			Help:    "Time spent in join",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),

		callDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "callkit_call_duration_seconds",
			Help:    "Length of finished calls",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		}),

		subscribeAttempts: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "callkit_subscribe_attempts",
			Help:    "Attempts used per subscribe",
			Buckets: []float64{1, 2, 3, 4, 5},
		}, []string{"kind"}),

		roster: make(map[domain.UID]struct{}),
	}
}

// Attach starts counting bus events. The returned function detaches.
func (c *Collector) Attach(bus *events.Bus) func() {
	c.setCallState(domain.CallStateIdle)

	c.mu.Lock()
	for _, name := range events.Names() {
		c.unsubs = append(c.unsubs, bus.On(name, c.observe))
	}
	c.mu.Unlock()

	return c.Detach
}

func (c *Collector) Detach() {
	c.mu.Lock()
	unsubs := c.unsubs
	c.unsubs = nil
	c.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
}

func (c *Collector) observe(e events.Event) {
	c.eventsTotal.WithLabelValues(string(e.EventName())).Inc()

	switch ev := e.(type) {
	case events.CallStateChanged:
		c.setCallState(ev.To)
		if ev.To == domain.CallStateEnded || ev.To == domain.CallStateIdle {
			c.resetRoster()
		}
	case events.CallEnded:
		c.callDuration.Observe(float64(ev.Duration))
	case events.ParticipantJoined:
		c.mu.Lock()
		c.roster[ev.Participant.ID] = struct{}{}
		c.participants.Set(float64(len(c.roster)))
		c.mu.Unlock()
	case events.ParticipantLeft:
		c.mu.Lock()
		delete(c.roster, ev.UID)
		c.participants.Set(float64(len(c.roster)))
		c.mu.Unlock()
	case events.Error:
		c.errorsTotal.WithLabelValues(string(ev.Err.Code)).Inc()
	}
}

func (c *Collector) setCallState(current domain.CallState) {
	for _, s := range callStates {
		v := 0.0
		if s == current {
			v = 1
		}
		c.callState.WithLabelValues(string(s)).Set(v)
	}
}

func (c *Collector) resetRoster() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roster = make(map[domain.UID]struct{})
	c.participants.Set(0)
}

// ObserveJoin, ObserveSubscribe and ObserveScreenShare satisfy rtc.Observer.

func (c *Collector) ObserveJoin(d time.Duration, err error) {
	c.joinDuration.Observe(d.Seconds())
	if err != nil {
		c.joinFailures.Inc()
	}
}

func (c *Collector) ObserveSubscribe(kind domain.MediaKind, outcome string, attempts int) {
	c.subscribeTotal.WithLabelValues(string(kind), outcome).Inc()
	if attempts > 0 {
		c.subscribeAttempts.WithLabelValues(string(kind)).Observe(float64(attempts))
	}
}

func (c *Collector) ObserveScreenShare(state string) {
	c.screenShareTotal.WithLabelValues(state).Inc()
	if state == "active" {
		c.screenShareActive.Set(1)
	} else {
		c.screenShareActive.Set(0)
	}
}
