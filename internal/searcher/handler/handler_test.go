package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/config"
)

type recorder struct {
	mu       sync.Mutex
	searches []analytics.SearchEvent
	blocks   []analytics.BlockEvent
}

func (r *recorder) Track(e analytics.SearchEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searches = append(r.searches, e)
}

func (r *recorder) TrackBlocks(es []analytics.BlockEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks = append(r.blocks, es...)
}

var errMissing = errors.New("missing")

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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

func (m *memStore) FlushByPattern(context.Context, string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.data))
	m.data = map[string][]byte{}
	return n, nil
}

func searchConfig() config.SearchConfig {
	return config.SearchConfig{
		DefaultWorkers:   2,
		MaxWorkers:       8,
		DefaultStrategy:  "kmp",
		DefaultLimit:     100,
		MaxResults:       1000,
		MaxPatternLength: 16,
	}
}

func newTestServer(t *testing.T, withCache bool) (*http.ServeMux, *recorder) {
	t.Helper()
	c := corpus.New([]byte("ababcababcabab"), "test")
	var qc *cache.QueryCache
	if withCache {
		qc = cache.New(&memStore{data: map[string][]byte{}}, func(err error) bool { return errors.Is(err, errMissing) },
			c.Fingerprint(), config.RedisConfig{CacheTTL: time.Minute, MaxCachedOffsets: 100, OpTimeout: time.Second}, nil, nil)
	}
	rec := &recorder{}
	mux := http.NewServeMux()
	New(executor.New(c), qc, rec, rec, searchConfig()).Register(mux)
	return mux, rec
}

func get(t *testing.T, mux http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestSearch(t *testing.T) {
	mux, events := newTestServer(t, false)

	rec := get(t, mux, http.MethodGet, "/api/v1/search?pattern=abab&workers=3")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[SearchResponse](t, rec)

	assert.Equal(t, "abab", resp.Pattern)
	assert.Equal(t, "kmp", string(resp.Strategy))
	assert.Equal(t, 3, resp.Workers)
	assert.Equal(t, 3, resp.TotalMatches)
	assert.Equal(t, []int{1, 6, 11}, resp.Offsets)
	assert.Len(t, resp.Blocks, 3)
	assert.False(t, resp.CacheHit)

	require.Len(t, events.searches, 1)
	assert.Equal(t, 3, events.searches[0].TotalMatches)
	assert.Len(t, events.blocks, 3)
}

func TestSearchPagination(t *testing.T) {
	mux, _ := newTestServer(t, false)

	resp := decode[SearchResponse](t, get(t, mux, http.MethodGet, "/api/v1/search?pattern=ab&strategy=naive&limit=2&offset=1"))
	assert.Equal(t, 6, resp.TotalMatches)
	assert.Equal(t, []int{3, 6}, resp.Offsets)

	resp = decode[SearchResponse](t, get(t, mux, http.MethodGet, "/api/v1/search?pattern=ab&offset=100"))
	assert.Equal(t, 6, resp.TotalMatches)
	assert.Empty(t, resp.Offsets)
}

func TestSearchEmptyAndLongPatterns(t *testing.T) {
	mux, _ := newTestServer(t, false)

	resp := decode[SearchResponse](t, get(t, mux, http.MethodGet, "/api/v1/search?pattern="))
	assert.Zero(t, resp.TotalMatches)
	assert.Empty(t, resp.Offsets)

	resp = decode[SearchResponse](t, get(t, mux, http.MethodGet, "/api/v1/search?pattern=ababcababcababab"))
	assert.Zero(t, resp.TotalMatches)
}

func TestSearchRejectsBadInput(t *testing.T) {
	for _, withCache := range []bool{false, true} {
		t.Run(fmt.Sprintf("cache=%v", withCache), func(t *testing.T) {
			mux, _ := newTestServer(t, withCache)
			// Warm the cache so rejected requests cannot be served from it.
			require.Equal(t, http.StatusOK, get(t, mux, http.MethodGet, "/api/v1/search?pattern=ab&workers=2").Code)
			assertBadInput(t, mux)
		})
	}
}

func assertBadInput(t *testing.T, mux http.Handler) {
	t.Helper()
	tests := []struct {
		name   string
		target string
		status int
	}{
		{"missing pattern", "/api/v1/search", http.StatusBadRequest},
		{"zero workers", "/api/v1/search?pattern=ab&workers=0", http.StatusBadRequest},
		{"negative workers", "/api/v1/search?pattern=ab&workers=-3", http.StatusBadRequest},
		{"too many workers", "/api/v1/search?pattern=ab&workers=9", http.StatusBadRequest},
		{"non-numeric workers", "/api/v1/search?pattern=ab&workers=x", http.StatusBadRequest},
		{"unknown strategy", "/api/v1/search?pattern=ab&strategy=regex", http.StatusBadRequest},
		{"negative offset", "/api/v1/search?pattern=ab&offset=-1", http.StatusBadRequest},
		{"pattern too long", "/api/v1/search?pattern=aaaaaaaaaaaaaaaaa", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, mux, http.MethodGet, tt.target)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), "error")
		})
	}
}

func TestSearchUsesCache(t *testing.T) {
	mux, events := newTestServer(t, true)

	first := decode[SearchResponse](t, get(t, mux, http.MethodGet, "/api/v1/search?pattern=abab&workers=2"))
	second := decode[SearchResponse](t, get(t, mux, http.MethodGet, "/api/v1/search?pattern=abab&workers=5"))

	assert.False(t, first.CacheHit)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Offsets, second.Offsets)
	assert.Len(t, events.searches, 2)
	assert.Len(t, events.blocks, 2)

	stats := decode[map[string]any](t, get(t, mux, http.MethodGet, "/api/v1/cache/stats"))
	assert.EqualValues(t, 1, stats["hits"])

	rec := get(t, mux, http.MethodDelete, "/api/v1/cache")
	assert.Equal(t, http.StatusOK, rec.Code)
	third := decode[SearchResponse](t, get(t, mux, http.MethodGet, "/api/v1/search?pattern=abab"))
	assert.False(t, third.CacheHit)
}

func TestCacheEndpointsWhenDisabled(t *testing.T) {
	mux, _ := newTestServer(t, false)
	assert.Contains(t, get(t, mux, http.MethodGet, "/api/v1/cache/stats").Body.String(), "disabled")
	assert.Equal(t, http.StatusServiceUnavailable, get(t, mux, http.MethodDelete, "/api/v1/cache").Code)
}

func TestSlice(t *testing.T) {
	mux, _ := newTestServer(t, false)

	rec := get(t, mux, http.MethodGet, "/api/v1/slice?position=6&count=4")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abab", decode[SliceResponse](t, rec).Data)

	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, get(t, mux, http.MethodGet, "/api/v1/slice?position=12&count=4").Code)
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, get(t, mux, http.MethodGet, "/api/v1/slice?position=0&count=1").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, mux, http.MethodGet, "/api/v1/slice?position=x&count=1").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, mux, http.MethodGet, "/api/v1/slice?position=1&count=5000").Code)
}

func TestCorpusInfo(t *testing.T) {
	mux, _ := newTestServer(t, false)
	info := decode[map[string]any](t, get(t, mux, http.MethodGet, "/api/v1/corpus"))
	assert.EqualValues(t, 14, info["length"])
	assert.Equal(t, "test", info["source"])
	assert.NotEmpty(t, info["fingerprint"])
}
