package matcher

import "bytes"

// Naive compares the pattern against every window of the block.
// Worst case O(len(block) * len(pattern)).
type Naive struct{}

func (Naive) Strategy() Strategy { return StrategyNaive }

func (Naive) FindAll(block []byte, offset int, pattern []byte) []int {
	m := len(pattern)
	if m == 0 || m > len(block) {
		return nil
	}
	var matches []int
	for i := 0; i+m <= len(block); i++ {
		if block[i] == pattern[0] && bytes.Equal(block[i:i+m], pattern) {
			matches = append(matches, offset+i)
		}
	}
	return matches
}
