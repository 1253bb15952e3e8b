package resource

import (
	"context"
	"fmt"
)

// Name returns the resource type.
func (s *semaphore) Name() string {
	return s.name
}

// Acquire blocks until a unit is available.
func (s *semaphore) Acquire(ctx context.Context) error {
	// Check if context is already canceled
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()

	// Fast path: only when nobody is queued ahead of us
	if s.available > 0 && len(s.waiters) == 0 {
		s.takeLocked()
		s.mu.Unlock()
		return nil
	}

	w := &waiter{ready: make(chan struct{})}
	s.waiters = append(s.waiters, w)
	s.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.removeWaiterLocked(w) {
			// A release handed us a unit while ctx was ending; give it back.
			s.released++
			s.releaseLocked()
		}
		return ctx.Err()
	}
}

// TryAcquire takes a unit without blocking.
func (s *semaphore) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.available > 0 && len(s.waiters) == 0 {
		s.takeLocked()
		return true
	}
	return false
}

// Release returns a unit to the pool.
func (s *semaphore) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.available >= s.capacity {
		panic(fmt.Sprintf("resource: %s released more units than acquired", s.name))
	}
	s.released++
	s.releaseLocked()
}

// Capacity returns the fixed number of units.
func (s *semaphore) Capacity() int {
	return s.capacity
}

// Available returns the number of free units.
func (s *semaphore) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available
}

// InUse returns the number of acquired units.
func (s *semaphore) InUse() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capacity - s.available
}

// Stats returns a snapshot of the pool counters.
func (s *semaphore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Name:      s.name,
		Capacity:  s.capacity,
		Available: s.available,
		InUse:     s.capacity - s.available,
		Waiting:   len(s.waiters),
		Peak:      s.peak,
		Acquired:  s.acquired,
		Released:  s.released,
	}
}

// takeLocked moves one unit from available to in use.
// Must be called with s.mu held.
func (s *semaphore) takeLocked() {
	s.available--
	s.acquired++
	if inUse := s.capacity - s.available; inUse > s.peak {
		s.peak = inUse
	}
}

// releaseLocked frees one unit and passes it straight to the oldest waiter, if any.
// Must be called with s.mu held.
func (s *semaphore) releaseLocked() {
	s.available++
	if len(s.waiters) == 0 {
		return
	}

	w := s.waiters[0]
	s.waiters[0] = nil
	s.waiters = s.waiters[1:]
	s.takeLocked()
	close(w.ready)
}

// removeWaiterLocked drops w from the queue and reports whether it was still queued.
// Must be called with s.mu held.
func (s *semaphore) removeWaiterLocked(w *waiter) bool {
	for i, q := range s.waiters {
		if q == w {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return true
		}
	}
	return false
}
