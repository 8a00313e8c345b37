// Package merger turns the raw offsets reported by block workers into a
// MatchSet: unique, ascending and safe to share between readers.
package merger

import (
	"container/heap"
	"encoding/json"
	"slices"
)

// MatchSet is the deduplicated, ascending set of zero-based match offsets
// produced by one search. It is never mutated after construction.
type MatchSet struct {
	offsets []int
}

// Empty returns a MatchSet with no matches.
func Empty() *MatchSet {
	return &MatchSet{offsets: []int{}}
}

// Aggregate sorts and deduplicates raw offsets. raw is not modified.
func Aggregate(raw []int) *MatchSet {
	offsets := slices.Clone(raw)
	slices.Sort(offsets)
	offsets = slices.Compact(offsets)
	if offsets == nil {
		offsets = []int{}
	}
	return &MatchSet{offsets: offsets}
}

// MergeRuns k-way merges runs that are each already ascending, dropping
// offsets reported by more than one run. Overlapping blocks only ever
// produce duplicates at their shared boundary, so the merge avoids a full
// re-sort of the combined output.
func MergeRuns(runs [][]int) *MatchSet {
	total := 0
	h := make(runHeap, 0, len(runs))
	for _, r := range runs {
		if len(r) > 0 {
			h = append(h, run{values: r})
			total += len(r)
		}
	}
	heap.Init(&h)

	offsets := make([]int, 0, total)
	for h.Len() > 0 {
		top := &h[0]
		v := top.values[top.pos]
		if n := len(offsets); n == 0 || offsets[n-1] != v {
			offsets = append(offsets, v)
		}
		top.pos++
		if top.pos == len(top.values) {
			heap.Pop(&h)
		} else {
			heap.Fix(&h, 0)
		}
	}
	return &MatchSet{offsets: offsets}
}

// Len returns the number of matches.
func (s *MatchSet) Len() int {
	return len(s.offsets)
}

// Offsets returns all zero-based offsets. The returned slice must not be
// modified.
func (s *MatchSet) Offsets() []int {
	return s.offsets[:len(s.offsets):len(s.offsets)]
}

// Take returns the first n offsets (all of them if n exceeds Len or is
// negative) without copying.
func (s *MatchSet) Take(n int) []int {
	if n < 0 || n > len(s.offsets) {
		n = len(s.offsets)
	}
	return s.offsets[:n:n]
}

// Page returns up to limit offsets starting at index from. Out of range
// requests yield an empty page.
func (s *MatchSet) Page(from, limit int) []int {
	if from < 0 || from >= len(s.offsets) || limit <= 0 {
		return []int{}
	}
	end := min(from+limit, len(s.offsets))
	return s.offsets[from:end:end]
}

// Contains reports whether offset is in the set.
func (s *MatchSet) Contains(offset int) bool {
	_, found := slices.BinarySearch(s.offsets, offset)
	return found
}

// Equal reports whether both sets hold the same offsets.
func (s *MatchSet) Equal(other *MatchSet) bool {
	return slices.Equal(s.offsets, other.offsets)
}

// OneBased converts zero-based offsets into the 1-based positions shown to
// users.
func OneBased(offsets []int) []int {
	out := make([]int, len(offsets))
	for i, o := range offsets {
		out[i] = o + 1
	}
	return out
}

func (s *MatchSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.offsets)
}

func (s *MatchSet) UnmarshalJSON(data []byte) error {
	var raw []int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = *Aggregate(raw)
	return nil
}

type run struct {
	values []int
	pos    int
}

type runHeap []run

func (h runHeap) Len() int { return len(h) }

func (h runHeap) Less(i, j int) bool {
	return h[i].values[h[i].pos] < h[j].values[h[j].pos]
}

func (h runHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *runHeap) Push(x interface{}) {
	*h = append(*h, x.(run))
}

func (h *runHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
