// Package candlesignal provides the per-instrument "new candle available"
// notification: a single-slot, latest-wins broadcast with set/clear/wait
// semantics. It is not a queue — a consumer that misses intermediate updates
// only ever observes "at least one candle closed since I last cleared".
package candlesignal

import (
	"context"
	"sync"
)

// closedCh is a shared pre-closed channel returned by Waiter while the
// signal is set.
var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Signal is safe for one setter and any number of concurrent waiters.
type Signal struct {
	mu  sync.Mutex
	set bool
	ch  chan struct{} // closed on Set, replaced on Clear
}

// New returns a cleared Signal.
func New() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Set marks the signal. Repeated sets before a clear coalesce into one
// observable set state.
func (s *Signal) Set() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		s.set = true
		close(s.ch)
	}
}

// Clear resets the signal. Waiters blocked after this point sleep until the
// next Set.
func (s *Signal) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		s.set = false
		s.ch = make(chan struct{})
	}
}

// IsSet reports whether the signal is currently set.
func (s *Signal) IsSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// Wait blocks until the signal is set or ctx is done. Returns nil when the
// set state was observed; the caller must Clear after acting on it.
func (s *Signal) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.set {
			s.mu.Unlock()
			return nil
		}
		ch := s.ch
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
			// Re-check: a Clear may have raced the wakeup.
		}
	}
}

// Waiter returns a channel that is closed while the signal is set. Useful in
// select loops that also watch timers and cancellation.
func (s *Signal) Waiter() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		return closedCh
	}
	return s.ch
}
