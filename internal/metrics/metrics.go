// Package metrics provides Prometheus metrics for the stop monitor.
package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Registry is the Prometheus registry for this metrics instance
	Registry *prometheus.Registry

	// Poll cycle metrics
	RefreshCyclesTotal *prometheus.CounterVec // labels: stop, outcome
	RefreshDuration    *prometheus.HistogramVec
	CoordinatorState   *prometheus.GaugeVec
	LastSuccessTime    *prometheus.GaugeVec

	// Upstream fetch metrics
	FetchErrorsTotal *prometheus.CounterVec // labels: source, kind

	// Static cache metrics
	StaticSnapshotAge prometheus.Gauge

	logger *slog.Logger
}

// New creates and registers all application metrics with a new registry.
func New() *Metrics {
	return NewWithLogger(nil)
}

// NewWithLogger creates metrics with a logger for error reporting.
func NewWithLogger(logger *slog.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	refreshCyclesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tranzymon_refresh_cycles_total",
			Help: "Total refresh cycles by outcome",
		},
		[]string{"stop", "outcome"},
	)

	refreshDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tranzymon_refresh_duration_seconds",
			Help:    "Refresh cycle latency distribution",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stop"},
	)

	coordinatorState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tranzymon_coordinator_state",
		Help: "Coordinator state (0=idle 1=refreshing 2=degraded 3=failed)",
	}, []string{"stop"})

	lastSuccessTime := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tranzymon_last_success_timestamp_seconds",
		Help: "Unix time of the last successfully published arrival list",
	}, []string{"stop"})

	fetchErrorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tranzymon_fetch_errors_total",
			Help: "Upstream fetch failures by source and kind",
		},
		[]string{"source", "kind"},
	)

	staticSnapshotAge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tranzymon_static_snapshot_age_seconds",
		Help: "Age of the static schedule snapshot in use",
	})

	registry.MustRegister(
		refreshCyclesTotal,
		refreshDuration,
		coordinatorState,
		lastSuccessTime,
		fetchErrorsTotal,
		staticSnapshotAge,
	)

	return &Metrics{
		Registry:           registry,
		RefreshCyclesTotal: refreshCyclesTotal,
		RefreshDuration:    refreshDuration,
		CoordinatorState:   coordinatorState,
		LastSuccessTime:    lastSuccessTime,
		FetchErrorsTotal:   fetchErrorsTotal,
		StaticSnapshotAge:  staticSnapshotAge,
		logger:             logger,
	}
}

// ObserveCycle records one completed refresh cycle.
func (m *Metrics) ObserveCycle(stop, outcome string, elapsed time.Duration) {
	m.RefreshCyclesTotal.WithLabelValues(stop, outcome).Inc()
	m.RefreshDuration.WithLabelValues(stop).Observe(elapsed.Seconds())
}

// RecordFetchError counts an upstream failure.
func (m *Metrics) RecordFetchError(source, kind string) {
	m.FetchErrorsTotal.WithLabelValues(source, kind).Inc()
}

// SetState publishes the coordinator state gauge.
func (m *Metrics) SetState(stop string, state int) {
	m.CoordinatorState.WithLabelValues(stop).Set(float64(state))
}

// SetLastSuccess records when the stop's arrival list last refreshed.
func (m *Metrics) SetLastSuccess(stop string, t time.Time) {
	m.LastSuccessTime.WithLabelValues(stop).Set(float64(t.Unix()))
}

// SetSnapshotAge publishes the static snapshot's age.
func (m *Metrics) SetSnapshotAge(age time.Duration) {
	m.StaticSnapshotAge.Set(age.Seconds())
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
