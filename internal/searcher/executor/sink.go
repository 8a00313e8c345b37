package executor

import "sync"

// sink is the only mutable state shared by the workers of one search. Each
// worker appends its ascending run of offsets once, under the lock.
type sink struct {
	mu    sync.Mutex
	found [][]int
	n     int
}

func newSink(blocks int) *sink {
	return &sink{found: make([][]int, 0, blocks)}
}

func (s *sink) add(run []int) {
	if len(run) == 0 {
		return
	}
	s.mu.Lock()
	s.found = append(s.found, run)
	s.n += len(run)
	s.mu.Unlock()
}

func (s *sink) runs() [][]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.found
}

func (s *sink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}
