// Package matcher finds every exact occurrence of a pattern inside a block of
// the corpus. Two interchangeable strategies are provided: a naive window
// comparison and a linear-time prefix-function (KMP) scan. Both report
// offsets in corpus coordinates and always agree on their output.
package matcher

import (
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/errors"
)

// Strategy names a matching algorithm.
type Strategy string

const (
	StrategyNaive Strategy = "naive"
	StrategyKMP   Strategy = "kmp"
)

// Strategies lists every supported strategy.
var Strategies = []Strategy{StrategyNaive, StrategyKMP}

// Matcher reports the starting offsets of all occurrences of pattern within
// block. offset is the position of block[0] in the corpus and is added to
// every reported match. Offsets are returned in ascending order.
type Matcher interface {
	Strategy() Strategy
	FindAll(block []byte, offset int, pattern []byte) []int
}

// ParseStrategy maps a user supplied name onto a Strategy. Matching is case
// insensitive and accepts "prefix" as an alias for kmp.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "naive":
		return StrategyNaive, nil
	case "kmp", "prefix", "prefix-function":
		return StrategyKMP, nil
	default:
		return "", fmt.Errorf("%w: %q", apperrors.ErrUnknownStrategy, name)
	}
}

// New returns the Matcher implementing s.
func New(s Strategy) (Matcher, error) {
	switch s {
	case StrategyNaive:
		return Naive{}, nil
	case StrategyKMP:
		return PrefixFunction{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownStrategy, string(s))
	}
}
