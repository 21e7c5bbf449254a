package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ResilienceMetrics exposes circuit breaker states and embedding cache
// effectiveness.
type ResilienceMetrics struct {
	service      string
	breakerState *prometheus.GaugeVec
}

func NewResilienceMetrics(service string, registerer prometheus.Registerer) *ResilienceMetrics {
	m := &ResilienceMetrics{
		service: service,
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "backend",
				Name:      "breaker_state",
				Help:      "Circuit breaker state per operation (0 closed, 1 half-open, 2 open).",
			},
			[]string{"service", "operation"},
		),
	}
	registerer.MustRegister(m.breakerState)
	return m
}

func (m *ResilienceMetrics) SetBreakerState(operation string, state int) {
	m.breakerState.WithLabelValues(m.service, operation).Set(float64(state))
}

// RegisterEmbeddingCache publishes cache counters read on every scrape.
func RegisterEmbeddingCache(
	service string,
	registerer prometheus.Registerer,
	stats func() (hits, misses int64),
	size func() int,
) {
	labels := prometheus.Labels{"service": service}
	registerer.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "embedding_cache",
			Name:        "hits_total",
			Help:        "Query embeddings served from cache.",
			ConstLabels: labels,
		}, func() float64 {
			hits, _ := stats()
			return float64(hits)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "embedding_cache",
			Name:        "misses_total",
			Help:        "Query embeddings computed by the provider.",
			ConstLabels: labels,
		}, func() float64 {
			_, misses := stats()
			return float64(misses)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "embedding_cache",
			Name:        "entries",
			Help:        "Query embeddings currently cached.",
			ConstLabels: labels,
		}, func() float64 {
			return float64(size())
		}),
	)
}
