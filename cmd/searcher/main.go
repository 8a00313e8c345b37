package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	corpusPath := flag.String("corpus", "", "corpus file (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *corpusPath != "" {
		cfg.Corpus.Path = *corpusPath
	}
	logger.Setup(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting search service", "port", cfg.Server.Port, "corpus", cfg.Corpus.Path)

	c, err := corpus.Load(ctx, cfg.Corpus)
	if err != nil {
		return err
	}

	m := metrics.New(nil)
	m.CorpusBytes.Set(float64(c.Len()))
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	exec := executor.New(c, executor.WithObserver(m), executor.WithTracing(cfg.Tracing.Enabled))
	checker := health.NewChecker()
	checker.Register("corpus", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d bytes", c.Len())}
	})

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, result caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			breaker := resilience.NewCircuitBreaker("redis", resilience.CircuitBreakerConfig{
				FailureThreshold: 5,
				ResetTimeout:     30 * time.Second,
				OnStateChange: func(name string, to resilience.State) {
					m.SetBreakerState(name, int(to))
				},
			})
			queryCache = cache.New(redisClient, pkgredis.IsNilError, c.Fingerprint(), cfg.Redis, breaker, m)
			checker.Register("redis", health.Ping(health.StatusDegraded, redisClient.Ping))
			slog.Info("result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var (
		searches *analytics.Collector
		blocks   *collector.BatchCollector
	)
	if cfg.Kafka.Enabled {
		searchProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		defer searchProducer.Close()
		blockProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.BlockEvents)
		defer blockProducer.Close()

		collectorCtx, cancelCollectors := context.WithCancel(context.Background())
		searches = analytics.NewCollector(searchProducer, 10000)
		searches.Start(collectorCtx)
		blocks = collector.NewBatchCollector(blockProducer, 500, 2*time.Second)
		blocks.Start(collectorCtx)
		defer func() {
			cancelCollectors()
			searches.Close()
			blocks.Close()
		}()
	}

	h := handler.New(exec, queryCache, trackerOrNil(searches), blockTrackerOrNil(blocks), cfg.Search)
	var limiter *middleware.ClientLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewClientLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		go pruneLimiter(ctx, limiter)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      newRouter(cfg, h, checker, m, limiter),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr, "corpus_bytes", c.Len())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newRouter mounts the API and health endpoints behind the middleware chain.
// limiter may be nil.
func newRouter(cfg *config.Config, h *handler.Handler, checker *health.Checker, m *metrics.Metrics, limiter *middleware.ClientLimiter) http.Handler {
	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mws := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.Metrics(m),
		middleware.CORS(middleware.DefaultCORSConfig()),
	}
	if limiter != nil {
		mws = append(mws, middleware.RateLimit(limiter))
	}
	mws = append(mws, middleware.Timeout(cfg.Search.Timeout))
	return middleware.Chain(mux, mws...)
}

// The handler checks its trackers against nil; a typed nil pointer would not
// compare equal.
func trackerOrNil(c *analytics.Collector) handler.SearchTracker {
	if c == nil {
		return nil
	}
	return c
}

func blockTrackerOrNil(bc *collector.BatchCollector) handler.BlockTracker {
	if bc == nil {
		return nil
	}
	return bc
}

func pruneLimiter(ctx context.Context, l *middleware.ClientLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := l.Prune(10 * time.Minute); n > 0 {
				slog.Debug("pruned idle rate limit clients", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
