// Command analytics consumes search and block events from Kafka, aggregates
// them in memory, snapshots the aggregate to PostgreSQL and serves it at
// GET /api/v1/analytics.
//
// Usage:
//
//	go run ./cmd/analytics [-config blocksearch.yaml] [-port 8081]
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

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/analytics/store"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	port := flag.Int("port", 8081, "HTTP port for the analytics API")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *port); err != nil {
		slog.Error("analytics service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}

func run(ctx context.Context, cfg *config.Config, port int) error {
	slog.Info("starting analytics service", "port", port, "brokers", cfg.Kafka.Brokers)

	aggregator := analytics.NewAggregator()
	checker := health.NewChecker()

	var snapshots analytics.SnapshotLister
	pg, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, snapshots disabled", "error", err)
	} else {
		defer pg.Close()
		st := store.New(pg.DB)
		if err := st.Migrate(ctx); err != nil {
			return err
		}
		if latest, err := st.LatestSnapshot(ctx); err != nil {
			slog.Warn("reading latest snapshot failed", "error", err)
		} else if latest != nil {
			slog.Info("previous snapshot found",
				"captured_at", latest.CapturedAt,
				"total_searches", latest.TotalSearches,
			)
		}
		snapshots = st
		checker.Register("postgres", health.Ping(health.StatusDegraded, pg.Ping))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range []string{cfg.Kafka.Topics.SearchEvents, cfg.Kafka.Topics.BlockEvents} {
		consumer := kafka.NewConsumer(cfg.Kafka, topic, analytics.HandleEvent(aggregator))
		g.Go(func() error { return consumer.Start(gctx) })
	}
	if st, ok := snapshots.(*store.Store); ok {
		g.Go(func() error {
			store.RunPeriodic(gctx, st, aggregator, cfg.Postgres.SnapshotInterval)
			return nil
		})
	}

	h := analytics.NewHandler(aggregator, snapshots)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", h.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", h.Snapshots)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      middleware.Chain(mux, middleware.RequestID, middleware.CORS(middleware.DefaultCORSConfig())),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		slog.Info("analytics service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	return g.Wait()
}
