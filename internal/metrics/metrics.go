// Package metrics exposes Prometheus collectors for backend calls, enrichment
// outcomes, history loads and model completions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "soundify"

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics holds the application's collectors on a private registry.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	backendRequests *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec
	enrichments     *prometheus.CounterVec
	historyLoads    *prometheus.CounterVec
	completions     *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		backendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Recommendation backend requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Recommendation backend request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		enrichments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichments_total",
			Help:      "Catalog enrichment results by outcome.",
		}, []string{"outcome"}),
		historyLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_loads_total",
			Help:      "Listening history loads by outcome.",
		}, []string{"outcome"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Model completions served by the recommender, by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.backendRequests,
		m.backendLatency,
		m.enrichments,
		m.historyLoads,
		m.completions,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveBackend records one recommendation backend call.
func (m *Metrics) ObserveBackend(endpoint string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.backendRequests.WithLabelValues(endpoint, outcome(err)).Inc()
	m.backendLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

// ObserveEnrichment records one enrichment result.
func (m *Metrics) ObserveEnrichment(result string) {
	if m == nil {
		return
	}
	m.enrichments.WithLabelValues(result).Inc()
}

// ObserveHistoryLoad records one history load.
func (m *Metrics) ObserveHistoryLoad(err error) {
	if m == nil {
		return
	}
	m.historyLoads.WithLabelValues(outcome(err)).Inc()
}

// ObserveCompletion records one model completion served by the recommender.
func (m *Metrics) ObserveCompletion(endpoint string, err error) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(endpoint, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
