// Package metrics defines the Prometheus collectors for the search service
// and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchesTotal        *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchMatches        prometheus.Histogram
	SearchWorkers        prometheus.Histogram
	BlockDuration        *prometheus.HistogramVec
	DegenerateSearches   prometheus.Counter
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	CorpusBytes          prometheus.Gauge
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. A nil reg means
// the default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searches_total",
				Help: "Total searches by strategy and outcome (ok, empty, error).",
			},
			[]string{"strategy", "outcome"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Wall time of a full search including the join barrier.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
			},
			[]string{"strategy"},
		),
		SearchMatches: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_matches",
				Help:    "Number of unique matches per search.",
				Buckets: []float64{0, 1, 10, 100, 1000, 10000, 100000, 1000000},
			},
		),
		SearchWorkers: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_workers",
				Help:    "Worker count requested per search.",
				Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
			},
		),
		BlockDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_block_duration_seconds",
				Help:    "Time a single worker spent matching its block.",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 18),
			},
			[]string{"strategy"},
		),
		DegenerateSearches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_degenerate_partitions_total",
				Help: "Searches whose block size was smaller than the pattern.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of result cache misses.",
			},
		),
		CorpusBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "corpus_bytes",
				Help: "Size of the loaded corpus in bytes.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchesTotal,
		m.SearchLatency,
		m.SearchMatches,
		m.SearchWorkers,
		m.BlockDuration,
		m.DegenerateSearches,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CorpusBytes,
		m.CircuitBreakerState,
	)

	return m
}

// ObserveSearch records one completed search.
func (m *Metrics) ObserveSearch(strategy string, workers, matches int, degenerate bool, elapsed time.Duration) {
	outcome := "ok"
	if matches == 0 {
		outcome = "empty"
	}
	m.SearchesTotal.WithLabelValues(strategy, outcome).Inc()
	m.SearchLatency.WithLabelValues(strategy).Observe(elapsed.Seconds())
	m.SearchMatches.Observe(float64(matches))
	m.SearchWorkers.Observe(float64(workers))
	if degenerate {
		m.DegenerateSearches.Inc()
	}
}

// ObserveSearchError records a search that failed validation or execution.
func (m *Metrics) ObserveSearchError(strategy string) {
	m.SearchesTotal.WithLabelValues(strategy, "error").Inc()
}

// ObserveBlock records the time one worker spent on its block.
func (m *Metrics) ObserveBlock(strategy string, elapsed time.Duration) {
	m.BlockDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

// ObserveCache records a cache lookup outcome.
func (m *Metrics) ObserveCache(hit bool) {
	if hit {
		m.CacheHitsTotal.Inc()
	} else {
		m.CacheMissesTotal.Inc()
	}
}

// SetBreakerState exports a circuit breaker state.
func (m *Metrics) SetBreakerState(name string, state int) {
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// Handler returns the Prometheus scrape HTTP handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
