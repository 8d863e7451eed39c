package orchestrator

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes orchestrator counters. Nil receivers are safe so callers
// can run without a registry in tests.
type Metrics struct {
	requests    *prometheus.CounterVec
	retries     *prometheus.CounterVec
	rateLimited *prometheus.CounterVec
	deduped     *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewMetrics builds and registers the orchestrator metric set.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "driveline",
			Subsystem: "orchestrator",
			Name:      "requests_total",
			Help:      "Orchestrated requests by route and outcome.",
		}, []string{"route", "outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "driveline",
			Subsystem: "orchestrator",
			Name:      "retries_total",
			Help:      "Handler retries after transient failures.",
		}, []string{"route"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "driveline",
			Subsystem: "orchestrator",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-route rate limit.",
		}, []string{"route"}),
		deduped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "driveline",
			Subsystem: "orchestrator",
			Name:      "deduped_total",
			Help:      "Requests that shared an in-flight execution.",
		}, []string{"route"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "driveline",
			Subsystem: "orchestrator",
			Name:      "request_duration_seconds",
			Help:      "Orchestrated request duration including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	reg.MustRegister(m.requests, m.retries, m.rateLimited, m.deduped, m.duration)
	return m
}

func (m *Metrics) observeOutcome(route, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, outcome).Inc()
	m.duration.WithLabelValues(route).Observe(seconds)
}

func (m *Metrics) observeRetry(route string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(route).Inc()
}

func (m *Metrics) observeRateLimited(route string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(route).Inc()
}

func (m *Metrics) observeDeduped(route string) {
	if m == nil {
		return
	}
	m.deduped.WithLabelValues(route).Inc()
}
