package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/legal-code-search/internal/core/domain"
	"github.com/kirillkom/legal-code-search/internal/core/ports"
)

// SearchMetrics records routing decisions, backend calls and answer
// generation outcomes.
type SearchMetrics struct {
	service string

	classifications *prometheus.CounterVec
	backendCalls    *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	searches        *prometheus.CounterVec
	results         *prometheus.HistogramVec
	degraded        *prometheus.CounterVec
	generations     *prometheus.CounterVec
}

func NewSearchMetrics(service string, registerer prometheus.Registerer) *SearchMetrics {
	m := &SearchMetrics{
		service: service,
		classifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "classifications_total",
				Help:      "Query classifications by label and deciding rule.",
			},
			[]string{"service", "label", "rule"},
		),
		backendCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "backend_requests_total",
				Help:      "Retrieval backend calls by source and outcome.",
			},
			[]string{"service", "source", "status"},
		),
		backendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "backend_duration_seconds",
				Help:      "Retrieval backend call duration in seconds.",
				Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"service", "source"},
		),
		searches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "requests_total",
				Help:      "Completed searches by mode.",
			},
			[]string{"service", "mode"},
		),
		results: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "results",
				Help:      "Results returned per search.",
				Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
			},
			[]string{"service", "mode"},
		),
		degraded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "degraded_total",
				Help:      "Searches answered without one of the called backends.",
			},
			[]string{"service", "source"},
		),
		generations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rag",
				Name:      "generations_total",
				Help:      "Answer summaries by generation method.",
			},
			[]string{"service", "method"},
		),
	}
	registerer.MustRegister(
		m.classifications,
		m.backendCalls,
		m.backendDuration,
		m.searches,
		m.results,
		m.degraded,
		m.generations,
	)
	return m
}

var _ ports.SearchObserver = (*SearchMetrics)(nil)

func (m *SearchMetrics) ObserveClassification(decision domain.ClassificationDecision) {
	m.classifications.WithLabelValues(m.service, string(decision.Label), decision.Rule).Inc()
}

func (m *SearchMetrics) ObserveBackendCall(source domain.Source, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.backendCalls.WithLabelValues(m.service, string(source), status).Inc()
	m.backendDuration.WithLabelValues(m.service, string(source)).Observe(duration.Seconds())
}

func (m *SearchMetrics) ObserveSearch(mode domain.SearchMode, resultCount int, degraded []domain.Source) {
	m.searches.WithLabelValues(m.service, string(mode)).Inc()
	m.results.WithLabelValues(m.service, string(mode)).Observe(float64(resultCount))
	for _, src := range degraded {
		m.degraded.WithLabelValues(m.service, string(src)).Inc()
	}
}

func (m *SearchMetrics) ObserveGeneration(method domain.GenerationMethod) {
	m.generations.WithLabelValues(m.service, string(method)).Inc()
}
