package services

import (
	"sync"
	"time"
)

const (
	// DefaultRunTTL is how long a run stays retrievable when no TTL is configured
	DefaultRunTTL = 1 * time.Hour

	// DefaultCleanupInterval is the interval for removing expired runs
	DefaultCleanupInterval = time.Minute
)

// ResultStore keeps finished runs in memory. Runs expire after the TTL and
// the oldest runs are evicted once more than maxRuns are stored.
type ResultStore struct {
	mu      sync.RWMutex
	runs    map[string]*Run
	order   []string // insertion order, oldest first
	ttl     time.Duration
	maxRuns int
	now     func() time.Time
	stopCh  chan struct{}
	stopped sync.Once
}

// NewResultStore creates a store and starts its cleanup goroutine.
// maxRuns <= 0 means unbounded.
func NewResultStore(ttl time.Duration, maxRuns int) *ResultStore {
	s := newResultStore(ttl, maxRuns, time.Now)
	go s.cleanupLoop(DefaultCleanupInterval)
	return s
}

func newResultStore(ttl time.Duration, maxRuns int, now func() time.Time) *ResultStore {
	if ttl <= 0 {
		ttl = DefaultRunTTL
	}
	return &ResultStore{
		runs:    make(map[string]*Run),
		ttl:     ttl,
		maxRuns: maxRuns,
		now:     now,
		stopCh:  make(chan struct{}),
	}
}

// Put stores run, stamping its expiry, and returns the ids evicted to stay
// within maxRuns.
func (s *ResultStore) Put(run *Run) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	run.ExpiresAt = s.now().Add(s.ttl)
	if _, exists := s.runs[run.ID]; !exists {
		s.order = append(s.order, run.ID)
	}
	s.runs[run.ID] = run

	var evicted []string
	for s.maxRuns > 0 && len(s.order) > s.maxRuns {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.runs, oldest)
		evicted = append(evicted, oldest)
	}
	return evicted
}

// Get returns an unexpired run
func (s *ResultStore) Get(id string) (*Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok || s.now().After(run.ExpiresAt) {
		return nil, false
	}
	return run, true
}

// List returns unexpired runs, newest first
func (s *ResultStore) List() []*Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	out := make([]*Run, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		run := s.runs[s.order[i]]
		if !now.After(run.ExpiresAt) {
			out = append(out, run)
		}
	}
	return out
}

// Delete removes a run
func (s *ResultStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[id]; !ok {
		return false
	}
	delete(s.runs, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of stored runs, expired ones included
func (s *ResultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

// removeExpired drops expired runs and returns how many were dropped
func (s *ResultStore) removeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	kept := s.order[:0]
	removed := 0
	for _, id := range s.order {
		if now.After(s.runs[id].ExpiresAt) {
			delete(s.runs, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed
}

// cleanupLoop periodically removes expired runs
func (s *ResultStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.removeExpired()
		case <-s.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine
func (s *ResultStore) Stop() {
	s.stopped.Do(func() { close(s.stopCh) })
}

// Stats returns store statistics
func (s *ResultStore) Stats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expired := 0
	now := s.now()
	for _, run := range s.runs {
		if now.After(run.ExpiresAt) {
			expired++
		}
	}

	return map[string]interface{}{
		"total_runs":   len(s.runs),
		"expired_runs": expired,
		"active_runs":  len(s.runs) - expired,
		"max_runs":     s.maxRuns,
		"ttl_seconds":  s.ttl.Seconds(),
	}
}
