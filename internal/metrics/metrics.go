// Package metrics provides Prometheus instrumentation for the remote-call
// layer.
//
// All methods on *Metrics are nil-safe; pass nil when no instrumentation is
// desired.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metric descriptors.
type Metrics struct {
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	retriesTotal       *prometheus.CounterVec
	failuresTotal      *prometheus.CounterVec
	credentialRefresh  *prometheus.CounterVec
	credentialDuration prometheus.Histogram
	tasksCurrent       *prometheus.GaugeVec
}

// New creates a Metrics instance and registers all descriptors with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperscout_requests_total",
				Help: "Total number of backend calls by endpoint and outcome.",
			},
			[]string{"endpoint", "outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "paperscout_request_duration_seconds",
				Help:    "Duration of backend calls in seconds, retries included.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperscout_request_retries_total",
				Help: "Total number of retried attempts by endpoint.",
			},
			[]string{"endpoint"},
		),
		failuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperscout_failures_total",
				Help: "Total number of recorded failures by category.",
			},
			[]string{"category"},
		),
		credentialRefresh: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperscout_credential_refreshes_total",
				Help: "Total number of storage credential refreshes by outcome.",
			},
			[]string{"outcome"},
		),
		credentialDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "paperscout_credential_refresh_duration_seconds",
			Help:    "Duration of storage credential refreshes in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		tasksCurrent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "paperscout_tasks_current",
				Help: "Number of search tasks by status at the last sweep.",
			},
			[]string{"status"},
		),
	}
	reg.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.retriesTotal,
		m.failuresTotal,
		m.credentialRefresh,
		m.credentialDuration,
		m.tasksCurrent,
	)
	return m
}

// RecordRequest records the outcome and total duration of a backend call.
// outcome should be "ok" or a failure kind.
func (m *Metrics) RecordRequest(endpoint, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(endpoint, outcome).Inc()
	m.requestDuration.WithLabelValues(endpoint).Observe(dur.Seconds())
}

// RecordRetry counts one retried attempt.
func (m *Metrics) RecordRetry(endpoint string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(endpoint).Inc()
}

// RecordFailure counts one entry appended to the failure log.
func (m *Metrics) RecordFailure(category string) {
	if m == nil {
		return
	}
	m.failuresTotal.WithLabelValues(category).Inc()
}

// ObserveCredentialRefresh records a credential refresh.
// outcome should be "success" or "failure".
func (m *Metrics) ObserveCredentialRefresh(outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.credentialRefresh.WithLabelValues(outcome).Inc()
	m.credentialDuration.Observe(dur.Seconds())
}

// SetTaskCounts replaces the per-status task gauge.
func (m *Metrics) SetTaskCounts(counts map[string]int) {
	if m == nil {
		return
	}
	m.tasksCurrent.Reset()
	for status, n := range counts {
		m.tasksCurrent.WithLabelValues(status).Set(float64(n))
	}
}
