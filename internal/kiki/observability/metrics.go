// Package observability defines Kiki's Prometheus instruments.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	Requests            *prometheus.CounterVec
	RelevanceTiers      *prometheus.CounterVec
	Compressions        *prometheus.CounterVec
	SummarizerFallbacks *prometheus.CounterVec
	MemoryTokens        *prometheus.GaugeVec
	MemoryTurns         *prometheus.GaugeVec
	GenerationLatency   prometheus.Histogram
	InFlight            prometheus.Gauge
	RateLimited         prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewMetrics registers the instruments on a fresh registry, so that several
// instances (one per test) can coexist.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Questions handled by mode and outcome.",
		}, []string{"mode", "outcome"}),
		RelevanceTiers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relevance_decisions_total",
			Help:      "Retrieval relevance decisions by the threshold tier that produced them.",
		}, []string{"tier"}),
		Compressions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_compressions_total",
			Help:      "Memory compression passes by mode and kind.",
		}, []string{"mode", "kind"}),
		SummarizerFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summarizer_fallbacks_total",
			Help:      "Summarizer downgrades and per-call fallbacks by reason.",
		}, []string{"reason"}),
		MemoryTokens: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_tokens",
			Help:      "Estimated token cost of each memory store.",
		}, []string{"mode"}),
		MemoryTurns: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_turns",
			Help:      "Verbatim turns held by each memory store.",
		}, []string{"mode"}),
		GenerationLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_seconds",
			Help:      "Latency of answer generation calls.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 120},
		}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_flight_requests",
			Help:      "Questions currently being answered.",
		}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Chat requests rejected by the per-client rate limiter.",
		}),
		gatherer: reg,
	}
}

// ObserveGeneration records one generation call.
func (m *Metrics) ObserveGeneration(d time.Duration) {
	m.GenerationLatency.Observe(d.Seconds())
}

// ObserveMemory publishes a store's size.
func (m *Metrics) ObserveMemory(mode string, tokens, turns int) {
	m.MemoryTokens.WithLabelValues(mode).Set(float64(tokens))
	m.MemoryTurns.WithLabelValues(mode).Set(float64(turns))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
