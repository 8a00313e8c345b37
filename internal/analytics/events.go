// Package analytics turns searches into events, ships them to Kafka and
// aggregates them on the consuming side.
package analytics

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/executor"
)

type EventType string

const (
	EventSearch EventType = "search"
	EventBlock  EventType = "block"
)

// SearchEvent describes one answered search request.
type SearchEvent struct {
	Type         EventType `json:"type"`
	Pattern      string    `json:"pattern"`
	Strategy     string    `json:"strategy"`
	Workers      int       `json:"workers"`
	TotalMatches int       `json:"total_matches"`
	Returned     int       `json:"returned"`
	Degenerate   bool      `json:"degenerate"`
	LatencyMs    int64     `json:"latency_ms"`
	CacheHit     bool      `json:"cache_hit"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id,omitempty"`
}

// BlockEvent describes the work done on one block of a computed search.
type BlockEvent struct {
	Type           EventType `json:"type"`
	Pattern        string    `json:"pattern"`
	Strategy       string    `json:"strategy"`
	BlockIndex     int       `json:"block_index"`
	Start          int       `json:"start"`
	End            int       `json:"end"`
	Matches        int       `json:"matches"`
	DurationMicros int64     `json:"duration_us"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewSearchEvent builds the event for result as returned to a client.
func NewSearchEvent(result *executor.SearchResult, returned int, cacheHit bool, latency time.Duration, requestID string) SearchEvent {
	return SearchEvent{
		Type:         EventSearch,
		Pattern:      result.Pattern,
		Strategy:     string(result.Strategy),
		Workers:      result.Workers,
		TotalMatches: result.TotalMatches(),
		Returned:     returned,
		Degenerate:   result.Degenerate,
		LatencyMs:    latency.Milliseconds(),
		CacheHit:     cacheHit,
		Timestamp:    time.Now().UTC(),
		RequestID:    requestID,
	}
}

// NewBlockEvents returns one BlockEvent per block of result.
func NewBlockEvents(result *executor.SearchResult) []BlockEvent {
	now := time.Now().UTC()
	events := make([]BlockEvent, 0, len(result.Blocks))
	for _, b := range result.Blocks {
		events = append(events, BlockEvent{
			Type:           EventBlock,
			Pattern:        result.Pattern,
			Strategy:       string(result.Strategy),
			BlockIndex:     b.Block.Index,
			Start:          b.Block.Start,
			End:            b.Block.End,
			Matches:        b.Matches,
			DurationMicros: b.Duration.Microseconds(),
			Timestamp:      now,
		})
	}
	return events
}
