package corpus

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/config"
)

const readChunk = 4 << 20

// Load reads the file named in cfg.Path into memory, keeping at most
// cfg.MaxBytes bytes. Progress is logged cfg.ProgressSteps times.
func Load(ctx context.Context, cfg config.CorpusConfig) (*Corpus, error) {
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus %s: %w", cfg.Path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat corpus %s: %w", cfg.Path, err)
	}
	size := info.Size()
	if size > cfg.MaxBytes {
		slog.Warn("corpus larger than configured maximum, truncating",
			"path", cfg.Path,
			"file_bytes", size,
			"max_bytes", cfg.MaxBytes,
		)
		size = cfg.MaxBytes
	}

	data, err := ReadAll(ctx, f, size, cfg.ProgressSteps)
	if err != nil {
		return nil, fmt.Errorf("reading corpus %s: %w", cfg.Path, err)
	}
	return New(data, cfg.Path), nil
}

// ReadAll reads exactly size bytes from r (fewer if r ends first) into a
// buffer allocated once. steps controls how many progress lines are logged;
// zero disables them.
func ReadAll(ctx context.Context, r io.Reader, size int64, steps int) ([]byte, error) {
	logger := slog.Default().With("component", "corpus-loader")
	start := time.Now()

	buf := make([]byte, size)
	var (
		read     int64
		nextStep int64
		stepSize int64
	)
	if steps > 0 && size > 0 {
		stepSize = max(size/int64(steps), 1)
	}

	for read < size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if stepSize > 0 && read >= nextStep {
			logger.Info("loading corpus", "percent", fmt.Sprintf("%.2f", 100*float64(read)/float64(size)))
			nextStep += stepSize
		}
		end := min(read+readChunk, size)
		n, err := io.ReadFull(r, buf[read:end])
		read += int64(n)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	logger.Info("corpus loaded", "bytes", read, "duration", time.Since(start))
	return buf[:read], nil
}
