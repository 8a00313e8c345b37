// Package collector batches per-block analytics events and flushes them to
// Kafka in bulk.
package collector

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/kafka"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 5 * time.Second
	shutdownFlushTimeout = 5 * time.Second

	// A failing broker may hold back at most this many batches.
	maxPendingBatches = 3
)

// BatchPublisher writes many events in one call.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// BatchCollector buffers block events and hands them to a BatchPublisher
// from a single flush loop. The loop wakes on its interval or as soon as
// the buffer holds a full batch.
type BatchCollector struct {
	pub      BatchPublisher
	size     int
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending []kafka.Event

	flushMu sync.Mutex
	kick    chan struct{}
	started atomic.Bool
	done    chan struct{}
}

func NewBatchCollector(pub BatchPublisher, batchSize int, flushInterval time.Duration) *BatchCollector {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	return &BatchCollector{
		pub:      pub,
		size:     batchSize,
		interval: flushInterval,
		logger:   slog.Default().With("component", "block-batcher"),
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start runs the flush loop until ctx is cancelled, then drains the buffer
// one last time on a fresh deadline. Calls after the first are no-ops.
func (bc *BatchCollector) Start(ctx context.Context) {
	if !bc.started.CompareAndSwap(false, true) {
		return
	}
	bc.logger.Info("block batcher started", "batch_size", bc.size, "flush_interval", bc.interval)
	go bc.loop(ctx)
}

func (bc *BatchCollector) loop(ctx context.Context) {
	defer close(bc.done)
	ticker := time.NewTicker(bc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
			defer cancel()
			bc.Flush(drainCtx)
			return
		case <-bc.kick:
			bc.Flush(ctx)
		case <-ticker.C:
			bc.Flush(ctx)
		}
	}
}

// TrackBlocks buffers one event per block, keyed by pattern.
func (bc *BatchCollector) TrackBlocks(events []analytics.BlockEvent) {
	if len(events) == 0 {
		return
	}
	bc.mu.Lock()
	for _, e := range events {
		bc.pending = append(bc.pending, kafka.Event{Key: e.Pattern, Value: e})
	}
	full := len(bc.pending) >= bc.size
	bc.mu.Unlock()

	if full {
		select {
		case bc.kick <- struct{}{}:
		default:
		}
	}
}

// Close waits for the loop started by Start to finish its final flush. It
// returns immediately if Start was never called.
func (bc *BatchCollector) Close() {
	if !bc.started.Load() {
		return
	}
	<-bc.done
}

func (bc *BatchCollector) BufferLen() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.pending)
}

// Flush publishes everything buffered so far. A failed batch goes back to
// the front of the buffer; once the buffer exceeds maxPendingBatches the
// oldest events are discarded.
func (bc *BatchCollector) Flush(ctx context.Context) {
	bc.flushMu.Lock()
	defer bc.flushMu.Unlock()

	batch := bc.take()
	if len(batch) == 0 {
		return
	}
	err := bc.pub.PublishBatch(ctx, batch)
	if err == nil {
		bc.logger.Debug("block batch published", "events", len(batch))
		return
	}
	bc.logger.Error("block batch publish failed", "events", len(batch), "error", err)
	if dropped := bc.requeue(batch); dropped > 0 {
		bc.logger.Warn("block batch buffer full, oldest events discarded", "dropped", dropped)
	}
}

func (bc *BatchCollector) take() []kafka.Event {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	batch := bc.pending
	bc.pending = nil
	return batch
}

func (bc *BatchCollector) requeue(batch []kafka.Event) int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.pending = append(batch, bc.pending...)
	limit := bc.size * maxPendingBatches
	if len(bc.pending) <= limit {
		return 0
	}
	dropped := len(bc.pending) - limit
	bc.pending = bc.pending[dropped:]
	return dropped
}
