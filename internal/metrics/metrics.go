// Package metrics exposes Prometheus instrumentation for the harvest
// pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's Prometheus collectors, registered against a
// dedicated registry so tests never collide on default-registry state.
type Metrics struct {
	registry *prometheus.Registry

	fetchesInFlight prometheus.Gauge
	fetchesTotal    *prometheus.CounterVec
	fetchDuration   prometheus.Histogram
	retriesTotal    *prometheus.CounterVec
	parseErrors     *prometheus.CounterVec
	recordsTotal    *prometheus.CounterVec
	edgesTotal      *prometheus.CounterVec
	runsTotal       *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	return &Metrics{
		registry: reg,
		fetchesInFlight: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "harvester_fetches_in_flight",
			Help: "Number of page fetches currently executing.",
		}),
		fetchesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_fetches_total",
			Help: "Page fetches by component and outcome.",
		}, []string{"component", "outcome"}),
		fetchDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "harvester_fetch_duration_seconds",
			Help:    "Wall time of page fetches including retries.",
			Buckets: prometheus.DefBuckets,
		}),
		retriesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_fetch_retries_total",
			Help: "Fetch retry attempts by component.",
		}, []string{"component"}),
		parseErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_parse_errors_total",
			Help: "Row-level parse failures by component.",
		}, []string{"component"}),
		recordsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_records_persisted_total",
			Help: "Entity records persisted by variant.",
		}, []string{"variant"}),
		edgesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_edges_persisted_total",
			Help: "Relationship records persisted by type.",
		}, []string{"type"}),
		runsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_runs_total",
			Help: "Harvest runs by terminal status.",
		}, []string{"status"}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// FetchStarted marks a fetch in flight.
func (m *Metrics) FetchStarted() { m.fetchesInFlight.Inc() }

// FetchFinished records a completed fetch with its total duration.
func (m *Metrics) FetchFinished(component string, err error, elapsed time.Duration) {
	m.fetchesInFlight.Dec()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.fetchesTotal.WithLabelValues(component, outcome).Inc()
	m.fetchDuration.Observe(elapsed.Seconds())
}

// RetryObserved counts one retry attempt for a component.
func (m *Metrics) RetryObserved(component string) {
	m.retriesTotal.WithLabelValues(component).Inc()
}

// ParseErrorObserved counts one row-level parse failure.
func (m *Metrics) ParseErrorObserved(component string) {
	m.parseErrors.WithLabelValues(component).Inc()
}

// RecordPersisted counts one persisted entity.
func (m *Metrics) RecordPersisted(variant string) {
	m.recordsTotal.WithLabelValues(variant).Inc()
}

// EdgePersisted counts one persisted relationship.
func (m *Metrics) EdgePersisted(relType string) {
	m.edgesTotal.WithLabelValues(relType).Inc()
}

// RunFinished counts one finalized run.
func (m *Metrics) RunFinished(status string) {
	m.runsTotal.WithLabelValues(status).Inc()
}
