// Package metrics exposes Prometheus metrics for validation executions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sage"

// Metrics holds the collectors of one process on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	executions  *prometheus.CounterVec
	duration    prometheus.Histogram
	records     prometheus.Counter
	diagnostics *prometheus.CounterVec
	inFlight    prometheus.Gauge
	purged      prometheus.Counter
}

// New creates the collectors and registers them, plus the Go and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Validation executions by final status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Wall time of validation executions.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Records loaded across all executions.",
		}),
		diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_total",
			Help:      "Counted errors and warnings.",
		}, []string{"level"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executions_in_flight",
			Help:      "Executions currently running.",
		}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_purged_total",
			Help:      "Execution directories removed by the janitor.",
		}),
	}

	m.registry.MustRegister(
		m.executions, m.duration, m.records, m.diagnostics, m.inFlight, m.purged,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Started marks an execution as running. The returned func marks it done.
func (m *Metrics) Started() func() {
	m.inFlight.Inc()
	return m.inFlight.Dec
}

// Finished records a completed execution.
func (m *Metrics) Finished(status string, d time.Duration, records, errors, warnings int) {
	m.executions.WithLabelValues(status).Inc()
	m.duration.Observe(d.Seconds())
	m.records.Add(float64(records))
	m.diagnostics.WithLabelValues("error").Add(float64(errors))
	m.diagnostics.WithLabelValues("warning").Add(float64(warnings))
}

// Purged counts execution directories removed by the janitor.
func (m *Metrics) Purged(n int) {
	m.purged.Add(float64(n))
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
