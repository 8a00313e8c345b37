// Package executor runs a parallel substring search: it partitions the
// corpus into overlapping blocks, matches every block on its own goroutine
// and merges the per-block offsets into one MatchSet once all workers have
// joined.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/matcher"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/partition"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/merger"
	apperrors "github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/tracing"
)

// Observer receives timing data for completed searches and blocks.
// *metrics.Metrics satisfies it.
type Observer interface {
	ObserveSearch(strategy string, workers, matches int, degenerate bool, elapsed time.Duration)
	ObserveSearchError(strategy string)
	ObserveBlock(strategy string, elapsed time.Duration)
}

// BlockStat reports what one worker did.
type BlockStat struct {
	Block    partition.Block `json:"block"`
	Matches  int             `json:"matches"`
	Duration time.Duration   `json:"duration_ns"`
}

// SearchResult is the outcome of one search.
type SearchResult struct {
	Pattern    string           `json:"pattern"`
	Strategy   matcher.Strategy `json:"strategy"`
	Workers    int              `json:"workers"`
	Matches    *merger.MatchSet `json:"matches"`
	Blocks     []BlockStat      `json:"blocks"`
	Degenerate bool             `json:"degenerate"`
	Elapsed    time.Duration    `json:"elapsed_ns"`
}

// TotalMatches returns the number of unique matches.
func (r *SearchResult) TotalMatches() int {
	return r.Matches.Len()
}

// Positions returns the first k matches as 1-based positions; k < 0 means
// all of them.
func (r *SearchResult) Positions(k int) []int {
	return merger.OneBased(r.Matches.Take(k))
}

// Executor owns the corpus reference and runs searches against it. It keeps
// no state between searches and is safe for concurrent use.
type Executor struct {
	corpus   *corpus.Corpus
	observer Observer
	trace    bool
	logger   *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithObserver reports search and block timings to o.
func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observer = o }
}

// WithTracing logs a span tree (search, partition, block-N) for every search.
func WithTracing(enabled bool) Option {
	return func(e *Executor) { e.trace = enabled }
}

func New(c *corpus.Corpus, opts ...Option) *Executor {
	e := &Executor{
		corpus: c,
		logger: slog.Default().With("component", "search-executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Corpus returns the corpus searched by e.
func (e *Executor) Corpus() *corpus.Corpus {
	return e.corpus
}

// Slice reads a window of the corpus; see corpus.Corpus.Slice.
func (e *Executor) Slice(position, count int) ([]byte, error) {
	return e.corpus.Slice(position, count)
}

// Search finds every occurrence of pattern using exactly workers goroutines,
// one per block. It returns only after all workers finished. An empty
// pattern or one longer than the corpus yields an empty result, not an error.
func (e *Executor) Search(ctx context.Context, pattern []byte, workers int, strategy matcher.Strategy) (*SearchResult, error) {
	start := time.Now()
	result, err := e.search(ctx, pattern, workers, strategy)
	if err != nil {
		if e.observer != nil {
			e.observer.ObserveSearchError(string(strategy))
		}
		return nil, err
	}
	result.Elapsed = time.Since(start)
	if e.observer != nil {
		e.observer.ObserveSearch(string(strategy), workers, result.TotalMatches(), result.Degenerate, result.Elapsed)
	}
	return result, nil
}

func (e *Executor) search(ctx context.Context, pattern []byte, workers int, strategy matcher.Strategy) (*SearchResult, error) {
	if workers < 1 {
		return nil, fmt.Errorf("%w: %d", apperrors.ErrInvalidWorkerCount, workers)
	}
	m, err := matcher.New(strategy)
	if err != nil {
		return nil, err
	}
	result := &SearchResult{
		Pattern:  string(pattern),
		Strategy: strategy,
		Workers:  workers,
		Matches:  merger.Empty(),
		Blocks:   []BlockStat{},
	}
	if len(pattern) == 0 || len(pattern) > e.corpus.Len() {
		return result, nil
	}

	ctx, span := tracing.Start(ctx, "search")
	span.SetAttr("strategy", string(strategy))
	span.SetAttr("workers", workers)

	_, partSpan := tracing.Start(ctx, "partition")
	plan, err := partition.Partition(e.corpus.Len(), len(pattern), workers)
	partSpan.End()
	if err != nil {
		return nil, fmt.Errorf("partitioning corpus: %w", err)
	}
	partSpan.SetAttr("blocks", len(plan.Blocks))
	e.logPlan(ctx, plan, len(pattern))

	data := e.corpus.Bytes()
	sink := newSink(len(plan.Blocks))
	stats := make([]BlockStat, len(plan.Blocks))

	var g errgroup.Group
	for _, b := range plan.Blocks {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: worker for block %d panicked: %v", apperrors.ErrInternal, b.Index, r)
				}
			}()
			_, blockSpan := tracing.Start(ctx, fmt.Sprintf("block-%d", b.Index))
			found := m.FindAll(data[b.Start:b.End], b.Start, pattern)
			blockSpan.End()
			blockSpan.SetAttr("matches", len(found))

			sink.add(found)
			stats[b.Index] = BlockStat{Block: b, Matches: len(found), Duration: blockSpan.Duration}
			if e.observer != nil {
				e.observer.ObserveBlock(string(strategy), blockSpan.Duration)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.Matches = merger.MergeRuns(sink.runs())
	result.Blocks = stats
	result.Degenerate = plan.Degenerate

	span.SetAttr("raw_matches", sink.total())
	span.SetAttr("matches", result.Matches.Len())
	span.End()
	if e.trace {
		span.Log(e.logger)
	}
	return result, nil
}

func (e *Executor) logPlan(ctx context.Context, plan *partition.Plan, wordSize int) {
	if plan.Degenerate {
		e.logger.WarnContext(ctx, "degenerate partition: block size smaller than pattern",
			"base_size", plan.BaseSize,
			"pattern_len", wordSize,
			"blocks", len(plan.Blocks),
		)
	}
	if !e.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	for _, b := range plan.Blocks {
		e.logger.DebugContext(ctx, b.String())
	}
	e.logger.DebugContext(ctx, "running search", "workers", len(plan.Blocks))
}
