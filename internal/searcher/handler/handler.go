// Package handler exposes search, slice and cache operations over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/matcher"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/middleware"
)

type SearchExecutor interface {
	Search(ctx context.Context, pattern []byte, workers int, strategy matcher.Strategy) (*executor.SearchResult, error)
	Slice(position, count int) ([]byte, error)
	Corpus() *corpus.Corpus
}

type SearchTracker interface {
	Track(event analytics.SearchEvent)
}

type BlockTracker interface {
	TrackBlocks(events []analytics.BlockEvent)
}

// SearchResponse is the body of a successful search. Offsets holds the
// requested page of 1-based positions.
type SearchResponse struct {
	Pattern      string               `json:"pattern"`
	Strategy     matcher.Strategy     `json:"strategy"`
	Workers      int                  `json:"workers"`
	TotalMatches int                  `json:"total_matches"`
	Offset       int                  `json:"offset"`
	Limit        int                  `json:"limit"`
	Offsets      []int                `json:"offsets"`
	Blocks       []executor.BlockStat `json:"blocks"`
	Degenerate   bool                 `json:"degenerate"`
	CacheHit     bool                 `json:"cache_hit"`
	ElapsedMs    float64              `json:"elapsed_ms"`
}

type SliceResponse struct {
	Position int    `json:"position"`
	Count    int    `json:"count"`
	Data     string `json:"data"`
}

type Handler struct {
	executor SearchExecutor
	cache    *cache.QueryCache
	searches SearchTracker
	blocks   BlockTracker
	cfg      config.SearchConfig
	logger   *slog.Logger
}

// New builds a Handler. queryCache, searches and blocks may be nil.
func New(exec SearchExecutor, queryCache *cache.QueryCache, searches SearchTracker, blocks BlockTracker, cfg config.SearchConfig) *Handler {
	return &Handler{
		executor: exec,
		cache:    queryCache,
		searches: searches,
		blocks:   blocks,
		cfg:      cfg,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Register mounts every endpoint on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/slice", h.Slice)
	mux.HandleFunc("GET /api/v1/corpus", h.CorpusInfo)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("DELETE /api/v1/cache", h.CacheInvalidate)
}

// Search serves GET /api/v1/search?pattern=&workers=&strategy=&limit=&offset=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)
	q := r.URL.Query()

	if !q.Has("pattern") {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'pattern' is required"))
		return
	}
	pattern := []byte(q.Get("pattern"))
	if h.cfg.MaxPatternLength > 0 && len(pattern) > h.cfg.MaxPatternLength {
		h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"pattern length %d exceeds %d", len(pattern), h.cfg.MaxPatternLength))
		return
	}

	workers, err := intParam(q.Get("workers"), h.cfg.DefaultWorkers)
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: workers: %v", apperrors.ErrInvalidWorkerCount, err))
		return
	}
	if workers < 1 {
		h.writeError(w, fmt.Errorf("%w: must be >= 1, got %d", apperrors.ErrInvalidWorkerCount, workers))
		return
	}
	if workers > h.cfg.MaxWorkers {
		h.writeError(w, fmt.Errorf("%w: %d exceeds maximum %d", apperrors.ErrInvalidWorkerCount, workers, h.cfg.MaxWorkers))
		return
	}

	strategyName := q.Get("strategy")
	if strategyName == "" {
		strategyName = h.cfg.DefaultStrategy
	}
	strategy, err := matcher.ParseStrategy(strategyName)
	if err != nil {
		h.writeError(w, err)
		return
	}

	limit, err := intParam(q.Get("limit"), h.cfg.DefaultLimit)
	if err != nil || limit < 0 {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a non-negative integer"))
		return
	}
	limit = min(limit, h.cfg.MaxResults)
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "offset must be a non-negative integer"))
		return
	}

	compute := func() (*executor.SearchResult, error) {
		return h.executor.Search(ctx, pattern, workers, strategy)
	}
	var (
		result   *executor.SearchResult
		cacheHit bool
	)
	if h.cache != nil && len(pattern) > 0 {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, pattern, strategy, compute)
	} else {
		result, err = compute()
	}
	if err != nil {
		log.Error("search failed", "pattern_len", len(pattern), "workers", workers, "error", err)
		h.writeError(w, err)
		return
	}

	page := merger.OneBased(result.Matches.Page(offset, limit))
	latency := time.Since(start)
	log.Info("search completed",
		"pattern_len", len(pattern),
		"strategy", strategy,
		"workers", result.Workers,
		"total_matches", result.TotalMatches(),
		"returned", len(page),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)

	if h.searches != nil {
		h.searches.Track(analytics.NewSearchEvent(result, len(page), cacheHit, latency, middleware.GetRequestID(ctx)))
	}
	if h.blocks != nil && !cacheHit {
		h.blocks.TrackBlocks(analytics.NewBlockEvents(result))
	}

	h.writeJSON(w, http.StatusOK, SearchResponse{
		Pattern:      result.Pattern,
		Strategy:     result.Strategy,
		Workers:      result.Workers,
		TotalMatches: result.TotalMatches(),
		Offset:       offset,
		Limit:        limit,
		Offsets:      page,
		Blocks:       result.Blocks,
		Degenerate:   result.Degenerate,
		CacheHit:     cacheHit,
		ElapsedMs:    float64(result.Elapsed.Microseconds()) / 1000,
	})
}

// Slice serves GET /api/v1/slice?position=&count= with a 1-based position.
func (h *Handler) Slice(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	position, err := strconv.Atoi(q.Get("position"))
	if err != nil {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "position must be an integer"))
		return
	}
	count, err := strconv.Atoi(q.Get("count"))
	if err != nil {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "count must be an integer"))
		return
	}
	if count > h.cfg.MaxResults {
		h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "count exceeds %d", h.cfg.MaxResults))
		return
	}
	data, err := h.executor.Slice(position, count)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, SliceResponse{Position: position, Count: count, Data: string(data)})
}

func (h *Handler) CorpusInfo(w http.ResponseWriter, r *http.Request) {
	c := h.executor.Corpus()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"source":      c.Source(),
		"length":      c.Len(),
		"fingerprint": c.Fingerprint(),
		"strategies":  matcher.Strategies,
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cache invalidation failed"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err onto a status code. Internal errors are not echoed to
// the client.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	if status == http.StatusInternalServerError {
		msg = "search failed"
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}
