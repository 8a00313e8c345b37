package analytics

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/kafka"
)

const maxLatencySamples = 10000

// AggregatedStats is a point-in-time summary of everything consumed so far.
type AggregatedStats struct {
	TotalSearches      int64            `json:"total_searches"`
	CacheHits          int64            `json:"cache_hits"`
	CacheMisses        int64            `json:"cache_misses"`
	ZeroResultCount    int64            `json:"zero_result_count"`
	DegenerateCount    int64            `json:"degenerate_count"`
	TotalMatches       int64            `json:"total_matches"`
	SearchesByStrategy map[string]int64 `json:"searches_by_strategy"`
	AvgLatencyMs       float64          `json:"avg_latency_ms"`
	P50LatencyMs       int64            `json:"p50_latency_ms"`
	P95LatencyMs       int64            `json:"p95_latency_ms"`
	P99LatencyMs       int64            `json:"p99_latency_ms"`
	BlocksProcessed    int64            `json:"blocks_processed"`
	AvgBlockMicros     float64          `json:"avg_block_us"`
	TopPatterns        []PatternCount   `json:"top_patterns"`
	ZeroResultPatterns []PatternCount   `json:"zero_result_patterns"`
	SearchesPerMinute  float64          `json:"searches_per_minute"`
	CapturedAt         time.Time        `json:"captured_at"`
}

type PatternCount struct {
	Pattern string `json:"pattern"`
	Count   int64  `json:"count"`
}

// Aggregator folds search and block events into running statistics. The
// latency window keeps the most recent maxLatencySamples searches.
type Aggregator struct {
	mu                 sync.RWMutex
	totalSearches      int64
	cacheHits          int64
	zeroResults        int64
	degenerate         int64
	totalMatches       int64
	byStrategy         map[string]int64
	latencies          []int64
	latencyNext        int
	patternCounts      map[string]int64
	zeroResultPatterns map[string]int64
	blocks             int64
	blockMicros        int64
	startTime          time.Time
	now                func() time.Time
	logger             *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		byStrategy:         make(map[string]int64),
		latencies:          make([]int64, 0, 1024),
		patternCounts:      make(map[string]int64),
		zeroResultPatterns: make(map[string]int64),
		startTime:          time.Now(),
		now:                time.Now,
		logger:             slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent returns a kafka.MessageHandler feeding agg. Messages that are
// not valid events are logged and acknowledged so they do not block the
// partition.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key, value []byte) error {
		if err := agg.Ingest(value); err != nil {
			agg.logger.Error("failed to decode analytics event", "key", string(key), "error", err)
		}
		return nil
	}
}

// Ingest decodes one JSON event, dispatching on its type field.
func (a *Aggregator) Ingest(value []byte) error {
	var envelope struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(value, &envelope); err != nil {
		return fmt.Errorf("decoding event type: %w", err)
	}
	switch envelope.Type {
	case EventSearch:
		event, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			return err
		}
		a.RecordSearch(event)
	case EventBlock:
		event, err := kafka.DecodeJSON[BlockEvent](value)
		if err != nil {
			return err
		}
		a.RecordBlock(event)
	default:
		return fmt.Errorf("unknown event type %q", envelope.Type)
	}
	return nil
}

func (a *Aggregator) RecordSearch(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalSearches++
	if event.CacheHit {
		a.cacheHits++
	}
	if event.Degenerate {
		a.degenerate++
	}
	a.totalMatches += int64(event.TotalMatches)
	a.byStrategy[event.Strategy]++
	a.patternCounts[event.Pattern]++
	if event.TotalMatches == 0 {
		a.zeroResults++
		a.zeroResultPatterns[event.Pattern]++
	}

	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.latencyNext] = event.LatencyMs
		a.latencyNext = (a.latencyNext + 1) % maxLatencySamples
	}
}

func (a *Aggregator) RecordBlock(event BlockEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.blocks++
	a.blockMicros += event.DurationMicros
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	now := a.now()
	stats := AggregatedStats{
		TotalSearches:      a.totalSearches,
		CacheHits:          a.cacheHits,
		CacheMisses:        a.totalSearches - a.cacheHits,
		ZeroResultCount:    a.zeroResults,
		DegenerateCount:    a.degenerate,
		TotalMatches:       a.totalMatches,
		SearchesByStrategy: make(map[string]int64, len(a.byStrategy)),
		BlocksProcessed:    a.blocks,
		TopPatterns:        topN(a.patternCounts, 10),
		ZeroResultPatterns: topN(a.zeroResultPatterns, 10),
		CapturedAt:         now.UTC(),
	}
	for s, n := range a.byStrategy {
		stats.SearchesByStrategy[s] = n
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	if a.blocks > 0 {
		stats.AvgBlockMicros = float64(a.blockMicros) / float64(a.blocks)
	}
	if elapsed := now.Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.SearchesPerMinute = float64(a.totalSearches) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count descending, then pattern ascending.
func topN(counts map[string]int64, n int) []PatternCount {
	result := make([]PatternCount, 0, len(counts))
	for pattern, count := range counts {
		result = append(result, PatternCount{Pattern: pattern, Count: count})
	}
	slices.SortFunc(result, func(a, b PatternCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Pattern, b.Pattern)
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
