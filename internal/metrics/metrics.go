// Package metrics defines the Prometheus collectors of the service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pgn_typist"

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	edits           *prometheus.CounterVec
	persistFailures prometheus.Counter
	persistDropped  prometheus.Counter
	persistLatency  prometheus.Histogram
	exports         *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New registers the collectors on reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		edits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edits_total",
			Help:      "Engine operations by kind and outcome (applied, noop, rejected).",
		}, []string{"op", "outcome"}),
		persistFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Session writes that failed and were dropped.",
		}),
		persistDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_dropped_total",
			Help:      "Session writes skipped because the queue was full.",
		}),
		persistLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "persist_duration_seconds",
			Help:      "Latency of session writes.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		exports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "PGN exports by archive outcome.",
		}, []string{"archive"}),
		activeSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions held in memory.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP handler latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Edit outcomes.
const (
	OutcomeApplied  = "applied"
	OutcomeNoop     = "noop"
	OutcomeRejected = "rejected"
)

func (m *Metrics) Edit(op, outcome string) {
	if m == nil {
		return
	}
	m.edits.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) PersistFailed() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

func (m *Metrics) PersistDropped() {
	if m == nil {
		return
	}
	m.persistDropped.Inc()
}

func (m *Metrics) PersistObserved(d time.Duration) {
	if m == nil {
		return
	}
	m.persistLatency.Observe(d.Seconds())
}

func (m *Metrics) Exported(archive string) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(archive).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

func (m *Metrics) HTTPObserved(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}
