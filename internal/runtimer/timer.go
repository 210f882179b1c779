// Package runtimer correlates invocation start and end events by run ID.
//
// DESIGN: A mutex-guarded map from run ID to start time.
//   - RecordStart: store the current clock reading (last write wins)
//   - TakeElapsed: pop the entry and return now - start, at most once
//
// Entries whose end event never arrives stay forever unless a TTL is set,
// in which case a background sweeper drops them.
package runtimer

import (
	"sync"
	"time"
)

const maxSweepInterval = time.Minute

// Timer tracks pending invocation start times. Safe for concurrent use.
type Timer struct {
	mu       sync.Mutex
	starts   map[string]time.Time
	now      func() time.Time
	ttl      time.Duration
	onEvict  func(n int)
	stopChan chan struct{}
	stopped  bool
}

// Option configures a Timer.
type Option func(*Timer)

// WithClock replaces time.Now. Used by tests to control elapsed time.
func WithClock(now func() time.Time) Option {
	return func(t *Timer) { t.now = now }
}

// WithTTL enables eviction of entries older than ttl. Zero disables it.
func WithTTL(ttl time.Duration) Option {
	return func(t *Timer) { t.ttl = ttl }
}

// WithEvictHook is called with the number of entries each sweep removed.
func WithEvictHook(fn func(n int)) Option {
	return func(t *Timer) { t.onEvict = fn }
}

// New creates a Timer. A sweeper goroutine runs only when a TTL is set.
func New(opts ...Option) *Timer {
	t := &Timer{
		starts:   make(map[string]time.Time),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.ttl > 0 {
		go t.cleanup()
	}

	return t
}

// RecordStart stores the current time for runID. Empty IDs are ignored.
func (t *Timer) RecordStart(runID string) {
	if runID == "" {
		return
	}

	start := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	t.starts[runID] = start
}

// TakeElapsed removes the entry for runID and returns the time since its start.
// Returns false when no start was recorded or it was already taken.
func (t *Timer) TakeElapsed(runID string) (time.Duration, bool) {
	t.mu.Lock()
	start, ok := t.starts[runID]
	if ok {
		delete(t.starts, runID)
	}
	t.mu.Unlock()

	if !ok {
		return 0, false
	}

	elapsed := t.now().Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed, true
}

// Len returns the number of pending entries.
func (t *Timer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.starts)
}

// Sweep removes entries older than the TTL and returns how many were dropped.
// Without a TTL it does nothing.
func (t *Timer) Sweep() int {
	if t.ttl <= 0 {
		return 0
	}

	cutoff := t.now().Add(-t.ttl)

	t.mu.Lock()
	removed := 0
	for id, start := range t.starts {
		if start.Before(cutoff) {
			delete(t.starts, id)
			removed++
		}
	}
	t.mu.Unlock()

	if removed > 0 && t.onEvict != nil {
		t.onEvict(removed)
	}
	return removed
}

// Close stops the sweeper and clears pending entries.
func (t *Timer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.stopped {
		t.stopped = true
		close(t.stopChan)
		t.starts = make(map[string]time.Time)
	}
	return nil
}

// cleanup periodically removes expired entries.
func (t *Timer) cleanup() {
	interval := t.ttl
	if interval > maxSweepInterval {
		interval = maxSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.Sweep()
		case <-t.stopChan:
			return
		}
	}
}
