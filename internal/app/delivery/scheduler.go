package delivery

import (
	"sync"
	"time"
)

// Scheduler runs delayed tasks grouped by key (a session id). Tasks under a
// key can be cancelled together, which is how a reset drops replies that are
// still "typing".
type Scheduler struct {
	mu      sync.Mutex
	pending map[string]map[uint64]*time.Timer
	seq     uint64
	stopped bool
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		pending: make(map[string]map[uint64]*time.Timer),
	}
}

// Schedule runs fn after delay. A non-positive delay runs fn before Schedule
// returns. Tasks under the same key are independent: two tasks scheduled
// back to back fire in timer order.
func (s *Scheduler) Schedule(key string, delay time.Duration, fn func()) {
	if delay <= 0 {
		fn()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	s.seq++
	id := s.seq

	tasks, ok := s.pending[key]
	if !ok {
		tasks = make(map[uint64]*time.Timer)
		s.pending[key] = tasks
	}

	tasks[id] = time.AfterFunc(delay, func() {
		if !s.take(key, id) {
			return
		}
		fn()
	})
}

// take removes a fired task; false means it was cancelled in the meantime.
func (s *Scheduler) take(key string, id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, ok := s.pending[key]
	if !ok {
		return false
	}
	if _, ok := tasks[id]; !ok {
		return false
	}
	delete(tasks, id)
	if len(tasks) == 0 {
		delete(s.pending, key)
	}
	return true
}

// Cancel stops every pending task for key and returns how many were dropped.
func (s *Scheduler) Cancel(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := s.pending[key]
	for _, t := range tasks {
		t.Stop()
	}
	delete(s.pending, key)
	return len(tasks)
}

// Pending returns the number of tasks waiting under key.
func (s *Scheduler) Pending(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending[key])
}

// Stop cancels everything and refuses new tasks.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, tasks := range s.pending {
		for _, t := range tasks {
			t.Stop()
		}
		delete(s.pending, key)
	}
	s.stopped = true
}
