package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/analytics"
)

type recordingSaver struct {
	mu    sync.Mutex
	saved []analytics.AggregatedStats
}

func (r *recordingSaver) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, stats)
	return nil
}

func (r *recordingSaver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saved)
}

func TestRunPeriodicSavesOnTickAndShutdown(t *testing.T) {
	agg := analytics.NewAggregator()
	agg.RecordSearch(analytics.SearchEvent{Pattern: "14", Strategy: "kmp", TotalMatches: 2})
	saver := &recordingSaver{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunPeriodic(ctx, saver, agg, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return saver.count() >= 2 }, time.Second, time.Millisecond)
	cancel()
	<-done

	n := saver.count()
	assert.GreaterOrEqual(t, n, 3)
	assert.Equal(t, int64(1), saver.saved[n-1].TotalSearches)
}
