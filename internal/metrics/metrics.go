// Package metrics exposes Prometheus instrumentation for the scoring pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the scoring pipeline collectors.
type Metrics struct {
	registry *prometheus.Registry

	Evaluations *prometheus.CounterVec
	Duration    prometheus.Histogram
	Alerts      prometheus.Counter
	Failures    *prometheus.CounterVec
}

// New creates and registers the pipeline collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinelstream_evaluations_total",
			Help: "Transactions evaluated, by classification.",
		}, []string{"classification"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sentinelstream_evaluation_duration_seconds",
			Help:    "End-to-end evaluation latency.",
			Buckets: prometheus.DefBuckets,
		}),
		Alerts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinelstream_alerts_total",
			Help: "Alerts dispatched for review/reject outcomes.",
		}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinelstream_evaluation_failures_total",
			Help: "Failed evaluations, by error kind.",
		}, []string{"kind"}),
	}

	registry.MustRegister(m.Evaluations, m.Duration, m.Alerts, m.Failures)
	return m
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
