// Package cache stores search results in Redis. Results depend only on the
// corpus contents, the pattern and the strategy (never on the worker count),
// so keys are built from those three and one cached entry serves every
// worker count.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/matcher"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/resilience"
)

const keyPrefix = "blocksearch:"

// Store is the subset of the Redis client the cache uses.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Observer is notified of every lookup outcome.
type Observer interface {
	ObserveCache(hit bool)
}

type QueryCache struct {
	store       Store
	isMiss      func(error) bool
	fingerprint string
	cfg         config.RedisConfig
	breaker     *resilience.CircuitBreaker
	observer    Observer
	group       singleflight.Group
	logger      *slog.Logger
	hits        atomic.Int64
	misses      atomic.Int64
}

// New creates a cache for results over the corpus identified by
// fingerprint. isMiss distinguishes a missing key from a Redis failure.
func New(store Store, isMiss func(error) bool, fingerprint string, cfg config.RedisConfig, breaker *resilience.CircuitBreaker, observer Observer) *QueryCache {
	return &QueryCache{
		store:       store,
		isMiss:      isMiss,
		fingerprint: fingerprint,
		cfg:         cfg,
		breaker:     breaker,
		observer:    observer,
		logger:      slog.Default().With("component", "result-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, pattern []byte, strategy matcher.Strategy) (*executor.SearchResult, bool) {
	key := c.buildKey(pattern, strategy)
	var data []byte
	err := c.call(ctx, "cache-get", func(ctx context.Context) error {
		var err error
		data, err = c.store.Get(ctx, key)
		if err != nil && c.isMiss(err) {
			data = nil
			return nil
		}
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		c.recordMiss()
		return nil, false
	}
	if data == nil {
		c.recordMiss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.recordMiss()
		return nil, false
	}
	c.hits.Add(1)
	if c.observer != nil {
		c.observer.ObserveCache(true)
	}
	c.logger.Debug("cache hit", "key", key, "matches", result.TotalMatches())
	return &result, true
}

// Set stores result unless it holds more offsets than MaxCachedOffsets.
func (c *QueryCache) Set(ctx context.Context, result *executor.SearchResult) {
	if c.cfg.MaxCachedOffsets > 0 && result.TotalMatches() > c.cfg.MaxCachedOffsets {
		c.logger.Debug("result too large to cache", "matches", result.TotalMatches())
		return
	}
	key := c.buildKey([]byte(result.Pattern), result.Strategy)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.call(ctx, "cache-set", func(ctx context.Context) error {
		return c.store.Set(ctx, key, data, c.cfg.CacheTTL)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns a cached result or runs computeFn, sharing one
// computation between concurrent identical requests.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	pattern []byte,
	strategy matcher.Strategy,
	computeFn func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, pattern, strategy); ok {
		return result, true, nil
	}
	key := c.buildKey(pattern, strategy)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(context.WithoutCancel(ctx), result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

// Invalidate removes every cached result, for all corpora.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) call(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	run := func() error {
		return resilience.WithTimeout(ctx, c.cfg.OpTimeout, name, fn)
	}
	if c.breaker == nil {
		return run()
	}
	return c.breaker.Execute(run)
}

func (c *QueryCache) recordMiss() {
	c.misses.Add(1)
	if c.observer != nil {
		c.observer.ObserveCache(false)
	}
}

func (c *QueryCache) buildKey(pattern []byte, strategy matcher.Strategy) string {
	h := sha256.New()
	h.Write(pattern)
	sum := h.Sum(nil)
	return fmt.Sprintf("%s%s:%s:%s", keyPrefix, c.fingerprint, strategy, hex.EncodeToString(sum[:16]))
}
