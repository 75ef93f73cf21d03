package sync

import (
	"sync"
	"time"
)

// retryScheduler owns the per-record retry timers. Each handle is
// cancellable so a conflict resolution or manual requeue can supersede a
// pending retry instead of racing it.
type retryScheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newRetryScheduler() *retryScheduler {
	return &retryScheduler{
		timers: make(map[string]*time.Timer),
	}
}

// Schedule arms (or re-arms) the retry timer for one record
func (s *retryScheduler) Schedule(id string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[id]; ok {
		t.Stop()
	}
	s.timers[id] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		fn()
	})
}

// Cancel stops a record's pending retry, if any
func (s *retryScheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

// Pending reports whether a record is waiting out its retry delay
func (s *retryScheduler) Pending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[id]
	return ok
}

// CancelAll stops every pending retry (engine shutdown)
func (s *retryScheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
