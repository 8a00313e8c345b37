package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/matcher"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/shell"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	corpusPath := flag.String("corpus", "", "corpus file (overrides config)")
	strategy := flag.String("strategy", "", "match strategy: naive or kmp (overrides config)")
	logLevel := flag.String("log-level", "warn", "log level; debug prints block boundaries and timings")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *corpusPath != "" {
		cfg.Corpus.Path = *corpusPath
	}
	if *strategy != "" {
		cfg.Search.DefaultStrategy = *strategy
	}
	logger.Setup(os.Stderr, *logLevel, "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "blocksearch: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	s, err := matcher.ParseStrategy(cfg.Search.DefaultStrategy)
	if err != nil {
		return err
	}
	c, err := corpus.Load(ctx, cfg.Corpus)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Loaded %d bytes from %s\n", c.Len(), c.Source())

	exec := executor.New(c, executor.WithTracing(cfg.Tracing.Enabled))
	return shell.New(exec, os.Stdin, os.Stdout, shell.DetectTerminal(os.Stdin, os.Stdout, s)).Run(ctx)
}
