package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "timeplanner"

// Metrics holds Prometheus metrics for the schedule engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// PropagationOps counts committed mutations by operation.
	PropagationOps *prometheus.CounterVec

	// ValidationErrors counts field errors reported after a mutation.
	ValidationErrors *prometheus.CounterVec

	// QueueChecks counts oracle outcomes: available, unavailable, error, stale.
	QueueChecks *prometheus.CounterVec

	// QueueCheckDuration is the oracle round trip time.
	QueueCheckDuration prometheus.Histogram

	// OracleCacheHits counts availability answers served from Redis.
	OracleCacheHits prometheus.Counter

	// HTTPRequests counts API calls by route.
	HTTPRequests *prometheus.CounterVec

	// SessionsActive is the number of open editing sessions.
	SessionsActive prometheus.Gauge
}

// NewMetrics creates metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PropagationOps: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "propagation_ops_total",
				Help:      "Committed schedule mutations by operation",
			},
			[]string{"op"},
		),

		ValidationErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "validation_errors_total",
				Help:      "Field errors reported after a mutation, by kind",
			},
			[]string{"kind"},
		),

		QueueChecks: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "queue_checks_total",
				Help:      "Queue availability checks by outcome",
			},
			[]string{"outcome"},
		),

		QueueCheckDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "queue_check_duration_seconds",
				Help:      "Time to get an answer from the availability oracle",
				Buckets:   []float64{.01, .05, .1, .5, 1, 2, 5},
			},
		),

		OracleCacheHits: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "oracle_cache_hits_total",
				Help:      "Availability answers served from cache",
			},
		),

		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "http_requests_total",
				Help:      "API requests by route",
			},
			[]string{"route"},
		),

		SessionsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "sessions_active",
				Help:      "Open editing sessions",
			},
		),
	}
}

func (m *Metrics) IncPropagation(op string) {
	if m == nil {
		return
	}
	m.PropagationOps.WithLabelValues(op).Inc()
}

func (m *Metrics) AddValidationError(kind string) {
	if m == nil {
		return
	}
	m.ValidationErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncQueueCheck(outcome string) {
	if m == nil {
		return
	}
	m.QueueChecks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveQueueCheck(seconds float64) {
	if m == nil {
		return
	}
	m.QueueCheckDuration.Observe(seconds)
}

func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.OracleCacheHits.Inc()
}

func (m *Metrics) IncHTTP(route string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route).Inc()
}

func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(n))
}
