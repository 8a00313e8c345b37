package corpus

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/errors"
)

func TestSlice(t *testing.T) {
	c := New([]byte("hello world"), "test")

	got, err := c.Slice(1, 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	got, err = c.Slice(7, 5)
	require.NoError(t, err)
	assert.Equal(t, "world", string(got))

	got, err = c.Slice(12, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSliceOutOfBounds(t *testing.T) {
	c := New([]byte("hello world"), "test")
	tests := []struct {
		name            string
		position, count int
	}{
		{"past end", 7, 100},
		{"zero position", 0, 1},
		{"negative count", 1, -1},
		{"start beyond end", 13, 0},
		{"one byte too many", 1, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Slice(tt.position, tt.count)
			assert.True(t, errors.Is(err, apperrors.ErrOutOfBoundsSlice), "got %v", err)
		})
	}
}

func TestSliceIsReadOnlyView(t *testing.T) {
	c := New([]byte("abcdef"), "test")
	window, err := c.Slice(1, 2)
	require.NoError(t, err)
	_ = append(window, 'Z')
	assert.Equal(t, "abcdef", string(c.Bytes()))
}

func TestFingerprint(t *testing.T) {
	a := New([]byte("314159"), "a")
	b := New([]byte("314159"), "b")
	c := New([]byte("314158"), "c")
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestReadAll(t *testing.T) {
	data := strings.Repeat("0123456789", 1000)
	got, err := ReadAll(context.Background(), strings.NewReader(data), int64(len(data)), 4)
	require.NoError(t, err)
	assert.Equal(t, data, string(got))
}

func TestReadAllShortReader(t *testing.T) {
	got, err := ReadAll(context.Background(), strings.NewReader("abc"), 10, 0)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestReadAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadAll(ctx, bytes.NewReader(make([]byte, 10)), 10, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadTruncatesToMaxBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pi.txt")
	require.NoError(t, os.WriteFile(path, []byte("3.14159265358979"), 0o644))

	c, err := Load(context.Background(), config.CorpusConfig{Path: path, MaxBytes: 6, ProgressSteps: 25})
	require.NoError(t, err)
	assert.Equal(t, "3.1415", string(c.Bytes()))
	assert.Equal(t, path, c.Source())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), config.CorpusConfig{Path: filepath.Join(t.TempDir(), "missing"), MaxBytes: 10})
	assert.Error(t, err)
}
