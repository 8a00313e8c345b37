package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/matcher"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/resilience"
)

var errMissing = errors.New("missing")

type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	failGet bool
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, errors.New("connection refused")
	}
	v, ok := m.data[key]
	if !ok {
		return nil, errMissing
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func isMissing(err error) bool { return errors.Is(err, errMissing) }

func testConfig() config.RedisConfig {
	return config.RedisConfig{CacheTTL: time.Minute, MaxCachedOffsets: 100, OpTimeout: time.Second}
}

func search(t *testing.T, e *executor.Executor, pattern string) *executor.SearchResult {
	t.Helper()
	res, err := e.Search(context.Background(), []byte(pattern), 2, matcher.StrategyKMP)
	require.NoError(t, err)
	return res
}

func TestGetOrComputeCachesResult(t *testing.T) {
	c := corpus.New([]byte("ababcababcabab"), "test")
	e := executor.New(c)
	store := newMemStore()
	qc := New(store, isMissing, c.Fingerprint(), testConfig(), nil, nil)

	var computed atomic.Int32
	compute := func() (*executor.SearchResult, error) {
		computed.Add(1)
		return search(t, e, "abab"), nil
	}

	first, hit, err := qc.GetOrCompute(context.Background(), []byte("abab"), matcher.StrategyKMP, compute)
	require.NoError(t, err)
	assert.False(t, hit)

	second, hit, err := qc.GetOrCompute(context.Background(), []byte("abab"), matcher.StrategyKMP, compute)
	require.NoError(t, err)
	assert.True(t, hit)

	assert.Equal(t, int32(1), computed.Load())
	assert.Equal(t, []int{0, 5, 10}, second.Matches.Offsets())
	assert.True(t, first.Matches.Equal(second.Matches))

	hits, misses := qc.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestKeysSeparateCorpora(t *testing.T) {
	store := newMemStore()
	a := New(store, isMissing, "aaaa", testConfig(), nil, nil)
	b := New(store, isMissing, "bbbb", testConfig(), nil, nil)

	e := executor.New(corpus.New([]byte("xyxy"), "test"))
	a.Set(context.Background(), search(t, e, "xy"))

	_, ok := b.Get(context.Background(), []byte("xy"), matcher.StrategyKMP)
	assert.False(t, ok)
	_, ok = a.Get(context.Background(), []byte("xy"), matcher.StrategyKMP)
	assert.True(t, ok)
}

func TestSetSkipsLargeResults(t *testing.T) {
	store := newMemStore()
	cfg := testConfig()
	cfg.MaxCachedOffsets = 2
	qc := New(store, isMissing, "fp", cfg, nil, nil)

	e := executor.New(corpus.New([]byte("aaaaaa"), "test"))
	qc.Set(context.Background(), search(t, e, "a"))
	assert.Empty(t, store.data)
}

func TestStoreFailureTripsBreaker(t *testing.T) {
	store := newMemStore()
	store.failGet = true
	breaker := resilience.NewCircuitBreaker("redis", resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour})
	qc := New(store, isMissing, "fp", testConfig(), breaker, nil)

	for i := 0; i < 3; i++ {
		_, ok := qc.Get(context.Background(), []byte("a"), matcher.StrategyNaive)
		assert.False(t, ok)
	}
	assert.Equal(t, resilience.StateOpen, breaker.State())
}

func TestInvalidate(t *testing.T) {
	store := newMemStore()
	qc := New(store, isMissing, "fp", testConfig(), nil, nil)
	e := executor.New(corpus.New([]byte("abcabc"), "test"))
	qc.Set(context.Background(), search(t, e, "abc"))
	qc.Set(context.Background(), search(t, e, "bc"))
	store.data["unrelated"] = []byte("x")

	n, err := qc.Invalidate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Contains(t, store.data, "unrelated")
}
