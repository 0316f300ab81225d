// Package telemetry exposes Prometheus metrics for forecasting runs.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kartoza/decision-forecast/internal/apperr"
)

// Run kinds
const (
	KindForecast   = "forecast"
	KindEnsemble   = "ensemble"
	KindProjection = "projection"
	KindTraining   = "training"
	KindEvaluation = "evaluation"
	KindIndicators = "indicators"
)

// Metrics holds the run metrics in a private registry
type Metrics struct {
	registry *prometheus.Registry

	runs     *prometheus.CounterVec
	skipped  *prometheus.CounterVec
	diverged *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New creates and registers the metric set
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forecast_runs_total",
			Help: "Completed runs by kind.",
		}, []string{"kind"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forecast_skipped_total",
			Help: "Algorithms or methods skipped after a failure.",
		}, []string{"component", "name"}),
		diverged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forecast_scenarios_diverged_total",
			Help: "Scenario projections stopped by divergence.",
		}, []string{"scenario"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "forecast_run_duration_seconds",
			Help:    "Run duration by kind.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		m.runs, m.skipped, m.diverged, m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveRun records one completed run and its duration
func (m *Metrics) ObserveRun(kind string, started time.Time) {
	m.runs.WithLabelValues(kind).Inc()
	m.duration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

// ObserveSkipped counts each skipped entry for a component
func (m *Metrics) ObserveSkipped(component string, skipped []apperr.Skip) {
	for _, s := range skipped {
		m.skipped.WithLabelValues(component, s.Name).Inc()
	}
}

// ObserveDiverged counts each diverged scenario
func (m *Metrics) ObserveDiverged(diverged []apperr.Skip) {
	for _, s := range diverged {
		m.diverged.WithLabelValues(s.Name).Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
