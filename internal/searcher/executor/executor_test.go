package executor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/matcher"
	apperrors "github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/errors"
)

func newExecutor(text string, opts ...Option) *Executor {
	return New(corpus.New([]byte(text), "test"), opts...)
}

func TestSearchScenarios(t *testing.T) {
	tests := []struct {
		name    string
		corpus  string
		pattern string
		workers int
		want    []int
	}{
		{"periodic single worker", "ababcababcabab", "abab", 1, []int{0, 5, 10}},
		{"periodic three workers", "ababcababcabab", "abab", 3, []int{0, 5, 10}},
		{"overlapping two workers", "aaaa", "aa", 2, []int{0, 1, 2}},
		{"more workers than bytes", "aaaa", "aa", 9, []int{0, 1, 2}},
		{"single byte pattern", "31415926535", "5", 4, []int{4, 8, 10}},
		{"match at corpus end", "xxxxxxxab", "ab", 3, []int{7}},
	}
	for _, tt := range tests {
		for _, s := range matcher.Strategies {
			t.Run(tt.name+"/"+string(s), func(t *testing.T) {
				res, err := newExecutor(tt.corpus).Search(context.Background(), []byte(tt.pattern), tt.workers, s)
				require.NoError(t, err)
				assert.Equal(t, tt.want, res.Matches.Offsets())
				assert.Equal(t, len(tt.want), res.TotalMatches())
				assert.Len(t, res.Blocks, tt.workers)
			})
		}
	}
}

func TestSearchInvalidWorkerCount(t *testing.T) {
	for _, n := range []int{0, -1} {
		res, err := newExecutor("abc").Search(context.Background(), []byte("a"), n, matcher.StrategyKMP)
		assert.Nil(t, res)
		assert.True(t, errors.Is(err, apperrors.ErrInvalidWorkerCount), "got %v", err)
	}
}

func TestSearchUnknownStrategy(t *testing.T) {
	_, err := newExecutor("abc").Search(context.Background(), []byte("a"), 1, "regex")
	assert.True(t, errors.Is(err, apperrors.ErrUnknownStrategy))
}

func TestSearchEmptyResults(t *testing.T) {
	tests := []struct {
		name, corpus, pattern string
	}{
		{"empty pattern", "abc", ""},
		{"pattern longer than corpus", "abc", "abcd"},
		{"empty corpus", "", "a"},
		{"no occurrence", "abcabc", "cba"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newExecutor(tt.corpus).Search(context.Background(), []byte(tt.pattern), 3, matcher.StrategyNaive)
			require.NoError(t, err)
			assert.Equal(t, 0, res.TotalMatches())
			assert.Empty(t, res.Positions(-1))
		})
	}
}

func TestSearchPartitionCountInvariance(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for iter := 0; iter < 150; iter++ {
		text := randomText(rng, "0123", 1+rng.Intn(300))
		pattern := randomText(rng, "0123", 1+rng.Intn(5))
		e := newExecutor(text)

		base, err := e.Search(context.Background(), []byte(pattern), 1, matcher.StrategyNaive)
		require.NoError(t, err)
		for _, n := range []int{2, 3, 7, 16, 64} {
			for _, s := range matcher.Strategies {
				got, err := e.Search(context.Background(), []byte(pattern), n, s)
				require.NoError(t, err)
				require.True(t, base.Matches.Equal(got.Matches),
					"corpus=%q pattern=%q N=%d strategy=%s: want %v got %v",
					text, pattern, n, s, base.Matches.Offsets(), got.Matches.Offsets())
			}
		}
	}
}

func TestSearchIdempotent(t *testing.T) {
	e := newExecutor("3.14159265358979323846264338327950288419716939937510")
	first, err := e.Search(context.Background(), []byte("9"), 5, matcher.StrategyKMP)
	require.NoError(t, err)
	second, err := e.Search(context.Background(), []byte("9"), 5, matcher.StrategyKMP)
	require.NoError(t, err)
	assert.True(t, first.Matches.Equal(second.Matches))
}

func TestSearchConcurrentCallers(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	e := newExecutor(randomText(rng, "01", 50000))
	want, err := e.Search(context.Background(), []byte("0110"), 1, matcher.StrategyNaive)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(workers int) {
			defer wg.Done()
			got, err := e.Search(context.Background(), []byte("0110"), workers, matcher.StrategyKMP)
			assert.NoError(t, err)
			assert.True(t, want.Matches.Equal(got.Matches))
		}(i + 1)
	}
	wg.Wait()
}

func TestSearchReportsBlocks(t *testing.T) {
	res, err := newExecutor("ababcababcabab").Search(context.Background(), []byte("abab"), 3, matcher.StrategyKMP)
	require.NoError(t, err)

	require.Len(t, res.Blocks, 3)
	raw := 0
	for i, b := range res.Blocks {
		assert.Equal(t, i, b.Block.Index)
		raw += b.Matches
	}
	assert.GreaterOrEqual(t, raw, res.TotalMatches())
	assert.False(t, res.Degenerate)
	assert.Equal(t, []int{1, 6}, res.Positions(2))
}

func TestSearchDegenerateFlag(t *testing.T) {
	res, err := newExecutor("abcabc").Search(context.Background(), []byte("abc"), 4, matcher.StrategyKMP)
	require.NoError(t, err)
	assert.True(t, res.Degenerate)
	assert.Equal(t, []int{0, 3}, res.Matches.Offsets())
}

type recordingObserver struct {
	mu       sync.Mutex
	searches int
	errors   int
	blocks   int
}

func (r *recordingObserver) ObserveSearch(string, int, int, bool, time.Duration) {
	r.mu.Lock()
	r.searches++
	r.mu.Unlock()
}

func (r *recordingObserver) ObserveSearchError(string) {
	r.mu.Lock()
	r.errors++
	r.mu.Unlock()
}

func (r *recordingObserver) ObserveBlock(string, time.Duration) {
	r.mu.Lock()
	r.blocks++
	r.mu.Unlock()
}

func TestSearchObserver(t *testing.T) {
	obs := &recordingObserver{}
	e := newExecutor("hello world", WithObserver(obs), WithTracing(true))

	_, err := e.Search(context.Background(), []byte("o"), 4, matcher.StrategyNaive)
	require.NoError(t, err)
	_, err = e.Search(context.Background(), []byte("o"), 0, matcher.StrategyNaive)
	require.Error(t, err)

	assert.Equal(t, 1, obs.searches)
	assert.Equal(t, 1, obs.errors)
	assert.Equal(t, 4, obs.blocks)
}

func TestSlice(t *testing.T) {
	e := newExecutor("hello world")
	got, err := e.Slice(1, 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	_, err = e.Slice(7, 100)
	assert.True(t, errors.Is(err, apperrors.ErrOutOfBoundsSlice))
}

func randomText(rng *rand.Rand, alphabet string, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return string(b)
}

func BenchmarkSearch(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	e := newExecutor(randomText(rng, "0123456789", 8<<20))
	for _, workers := range []int{1, 4, 8} {
		for _, s := range matcher.Strategies {
			b.Run(fmt.Sprintf("%s/workers=%d", s, workers), func(b *testing.B) {
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					_, _ = e.Search(context.Background(), []byte("14159"), workers, s)
				}
			})
		}
	}
}
