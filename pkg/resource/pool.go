package resource

import (
	"context"
	"sync"

	"github.com/vnykmshr/patientflow/pkg/common/errors"
)

// Pool is a bounded set of interchangeable resource units.
type Pool interface {
	// Name identifies the resource type, e.g. "doctors".
	Name() string

	// Acquire blocks until a unit is available or ctx is done.
	// It returns ctx.Err() if the context ends first; no unit is held in that case.
	Acquire(ctx context.Context) error

	// TryAcquire takes a unit if one is free and reports whether it did.
	TryAcquire() bool

	// Release returns one unit to the pool.
	// It panics if more units are released than were acquired.
	Release()

	// Capacity returns the fixed number of units.
	Capacity() int

	// Available returns the number of units currently free.
	Available() int

	// InUse returns the number of units currently acquired.
	InUse() int

	// Stats returns a consistent snapshot of the pool counters.
	Stats() Stats
}

// Stats is a point-in-time view of a Pool.
type Stats struct {
	Name      string
	Capacity  int
	Available int
	InUse     int
	Waiting   int

	// Peak is the highest InUse value ever observed.
	Peak int

	// Acquired and Released count every successful acquisition and release.
	Acquired int64
	Released int64
}

// Config holds configuration options for creating a Pool.
type Config struct {
	// Name identifies the resource type in logs and metrics.
	Name string

	// Capacity is the number of units. Must be positive.
	Capacity int
}

// semaphore implements Pool with a mutex and a FIFO waiter list.
type semaphore struct {
	name     string
	capacity int

	mu        sync.Mutex
	available int
	peak      int
	acquired  int64
	released  int64
	waiters   []*waiter
}

// waiter represents a goroutine parked in Acquire.
type waiter struct {
	ready chan struct{} // closed when a unit has been handed to this waiter
}

// New creates a pool named name with capacity units.
func New(name string, capacity int) (Pool, error) {
	return NewWithConfig(Config{Name: name, Capacity: capacity})
}

// NewWithConfig creates a pool from config, returning a validation error for
// non-positive capacity.
func NewWithConfig(config Config) (Pool, error) {
	if config.Capacity <= 0 {
		return nil, errors.NewValidationError("resource", "capacity", config.Capacity, "capacity must be positive").
			WithHint("a pool needs at least one unit")
	}

	return &semaphore{
		name:      config.Name,
		capacity:  config.Capacity,
		available: config.Capacity,
	}, nil
}

// MustNew is like New but panics on invalid capacity.
func MustNew(name string, capacity int) Pool {
	p, err := New(name, capacity)
	if err != nil {
		panic(err)
	}
	return p
}
