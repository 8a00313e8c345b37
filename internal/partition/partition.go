// Package partition splits a corpus index range into contiguous blocks that
// overlap by len(pattern)-1 bytes, so every occurrence is fully contained in
// at least one block.
package partition

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/errors"
)

// Block is a half-open range [Start, End) of corpus offsets.
type Block struct {
	Index int `json:"index"`
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bytes covered by the block.
func (b Block) Len() int {
	return b.End - b.Start
}

// String renders the block with 1-based bounds, the way it is shown to users.
func (b Block) String() string {
	return fmt.Sprintf("Block #%d: [%d, %d)", b.Index, b.Start+1, b.End+1)
}

// Plan is the result of partitioning a range.
type Plan struct {
	Blocks   []Block
	BaseSize int
	// Degenerate is set when the base block size is smaller than the word
	// size. Results stay correct but neighbouring blocks overlap heavily.
	// When blockCount exceeds the range length BaseSize is 0, and with a
	// one-byte word every block but the last is the empty range [0, 0).
	Degenerate bool
}

// Partition divides [0, length) into blockCount blocks. Every block except
// the last extends wordSize-1 bytes past its nominal end, clamped to length;
// the last block always ends at length. Blocks may be empty only in a
// degenerate plan; the last block is never empty.
func Partition(length, wordSize, blockCount int) (*Plan, error) {
	if length <= 0 {
		return nil, fmt.Errorf("%w: empty range (length=%d)", apperrors.ErrInvalidPartition, length)
	}
	if wordSize <= 0 {
		return nil, fmt.Errorf("%w: word size must be positive, got %d", apperrors.ErrInvalidPartition, wordSize)
	}
	if blockCount <= 0 {
		return nil, fmt.Errorf("%w: block count must be positive, got %d", apperrors.ErrInvalidPartition, blockCount)
	}

	baseSize := length / blockCount
	blocks := make([]Block, 0, blockCount)
	for i := 0; i < blockCount-1; i++ {
		start := i * baseSize
		end := min((i+1)*baseSize+wordSize-1, length)
		blocks = append(blocks, Block{Index: i, Start: start, End: end})
	}
	blocks = append(blocks, Block{
		Index: blockCount - 1,
		Start: (blockCount - 1) * baseSize,
		End:   length,
	})

	return &Plan{
		Blocks:     blocks,
		BaseSize:   baseSize,
		Degenerate: baseSize < wordSize,
	}, nil
}
