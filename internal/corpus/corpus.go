// Package corpus holds the immutable text buffer every search runs against
// and the loader that fills it from disk.
package corpus

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"

	apperrors "github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/errors"
)

// Corpus is a read-only byte buffer shared by all searches. It is safe for
// concurrent use because nothing mutates it after New.
type Corpus struct {
	data   []byte
	source string

	fpOnce      sync.Once
	fingerprint string
}

// New wraps data. The caller hands over ownership and must not modify data
// afterwards.
func New(data []byte, source string) *Corpus {
	return &Corpus{data: data, source: source}
}

// Len returns the corpus length in bytes.
func (c *Corpus) Len() int {
	return len(c.data)
}

// Source describes where the corpus was loaded from.
func (c *Corpus) Source() string {
	return c.source
}

// Bytes returns the whole buffer. Callers must treat it as read-only.
func (c *Corpus) Bytes() []byte {
	return c.data[:len(c.data):len(c.data)]
}

// Slice returns count bytes starting at the 1-based position. The window
// must lie inside the corpus: position >= 1, count >= 0 and
// position-1+count <= Len. A zero count at position Len+1 is allowed.
func (c *Corpus) Slice(position, count int) ([]byte, error) {
	if position < 1 || count < 0 {
		return nil, fmt.Errorf("%w: position=%d count=%d", apperrors.ErrOutOfBoundsSlice, position, count)
	}
	start := position - 1
	if start > len(c.data) || count > len(c.data)-start {
		return nil, fmt.Errorf("%w: position=%d count=%d exceeds corpus length %d",
			apperrors.ErrOutOfBoundsSlice, position, count, len(c.data))
	}
	end := start + count
	return c.data[start:end:end], nil
}

// Fingerprint is a stable hex digest of the contents, used to namespace
// cached results so a reloaded corpus never serves stale matches.
func (c *Corpus) Fingerprint() string {
	c.fpOnce.Do(func() {
		c.fingerprint = strconv.FormatUint(xxhash.Sum64(c.data), 16)
	})
	return c.fingerprint
}
