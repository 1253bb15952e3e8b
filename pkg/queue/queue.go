package queue

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pferrors "github.com/vnykmshr/patientflow/pkg/common/errors"
	"github.com/vnykmshr/patientflow/pkg/metrics"
)

var (
	// ErrClosed is returned when putting to a closed queue, or getting from a closed, empty one.
	ErrClosed = fmt.Errorf("queue: %w", pferrors.ErrClosed)

	// ErrFull is returned by TryPut when a bounded queue is at capacity.
	ErrFull = fmt.Errorf("queue: %w", pferrors.ErrCapacityExceeded)

	// ErrTimeout is returned by GetTimeout when no item arrived in time.
	ErrTimeout = fmt.Errorf("queue: %w", pferrors.ErrTimeout)
)

// Config holds configuration for a Queue.
type Config[T any] struct {
	// Name identifies the queue in logs and metrics.
	Name string

	// Capacity bounds the number of queued items. Zero means unbounded.
	Capacity int

	// Less orders items; the item for which Less reports true is served first.
	// Items that compare equal are served in insertion order.
	// If nil, the queue is a plain FIFO.
	Less func(a, b T) bool

	// Metrics receives the queue depth after every change. Optional.
	Metrics *metrics.Registry
}

// Queue is a context-aware work queue. The zero value is not usable; use New.
type Queue[T any] struct {
	name     string
	capacity int
	metrics  *metrics.Registry

	mu         sync.Mutex
	items      entries[T]
	seq        uint64
	unfinished int
	closed     bool

	// changed is closed and replaced whenever the queue state changes,
	// waking every goroutine parked on the previous instance.
	changed chan struct{}
}

// New creates a queue from config. It panics on a negative capacity.
func New[T any](config Config[T]) *Queue[T] {
	if config.Capacity < 0 {
		panic("queue: capacity must be >= 0")
	}

	return &Queue[T]{
		name:     config.Name,
		capacity: config.Capacity,
		metrics:  config.Metrics,
		items:    entries[T]{less: config.Less},
		changed:  make(chan struct{}),
	}
}

// Name returns the queue name.
func (q *Queue[T]) Name() string {
	return q.name
}

// Cap returns the capacity, zero for unbounded queues.
func (q *Queue[T]) Cap() int {
	return q.capacity
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Unfinished returns the number of items put but not yet acknowledged with TaskDone.
func (q *Queue[T]) Unfinished() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unfinished
}

// Put adds value, blocking while a bounded queue is full.
func (q *Queue[T]) Put(ctx context.Context, value T) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrClosed
		}
		if q.hasRoomLocked() {
			q.pushLocked(value)
			q.mu.Unlock()
			return nil
		}
		changed := q.changed
		q.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// TryPut adds value without blocking, returning ErrFull if there is no room.
func (q *Queue[T]) TryPut(value T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if !q.hasRoomLocked() {
		return ErrFull
	}
	q.pushLocked(value)
	return nil
}

// Get removes and returns the next item, blocking while the queue is empty.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if q.items.Len() > 0 {
			value := q.popLocked()
			q.mu.Unlock()
			return value, nil
		}
		if q.closed {
			q.mu.Unlock()
			var zero T
			return zero, ErrClosed
		}
		changed := q.changed
		q.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// GetTimeout is like Get but gives up with ErrTimeout once timeout elapses.
// If ctx itself ends first, its error is returned instead.
func (q *Queue[T]) GetTimeout(ctx context.Context, timeout time.Duration) (T, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	value, err := q.Get(tctx)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return value, ErrTimeout
	}
	return value, err
}

// TryGet removes and returns the next item if one is queued.
func (q *Queue[T]) TryGet() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() == 0 {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

// TaskDone acknowledges that an item obtained from the queue has been fully processed.
// It panics if called more times than items were put.
func (q *Queue[T]) TaskDone() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.unfinished <= 0 {
		panic("queue: TaskDone called more times than items were put")
	}
	q.unfinished--
	if q.unfinished == 0 {
		q.broadcastLocked()
	}
}

// Join blocks until every item put has been acknowledged with TaskDone.
func (q *Queue[T]) Join(ctx context.Context) error {
	for {
		q.mu.Lock()
		if q.unfinished == 0 {
			q.mu.Unlock()
			return nil
		}
		changed := q.changed
		q.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close marks the queue closed for Put. Closing twice is a no-op.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.broadcastLocked()
}

// IsClosed reports whether Close was called.
func (q *Queue[T]) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// hasRoomLocked must be called with q.mu held.
func (q *Queue[T]) hasRoomLocked() bool {
	return q.capacity == 0 || q.items.Len() < q.capacity
}

// pushLocked must be called with q.mu held.
func (q *Queue[T]) pushLocked(value T) {
	q.seq++
	heap.Push(&q.items, entry[T]{value: value, seq: q.seq})
	q.unfinished++
	q.broadcastLocked()
}

// popLocked must be called with q.mu held and a non-empty queue.
func (q *Queue[T]) popLocked() T {
	e := heap.Pop(&q.items).(entry[T])
	q.broadcastLocked()
	return e.value
}

// broadcastLocked wakes every parked goroutine and publishes the depth.
// Must be called with q.mu held.
func (q *Queue[T]) broadcastLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
	q.metrics.SetQueueDepth(q.name, q.items.Len())
}

type entry[T any] struct {
	value T
	seq   uint64
}

// entries implements heap.Interface ordered by less, then by insertion sequence.
type entries[T any] struct {
	items []entry[T]
	less  func(a, b T) bool
}

func (e entries[T]) Len() int { return len(e.items) }

func (e entries[T]) Less(i, j int) bool {
	a, b := e.items[i], e.items[j]
	if e.less != nil {
		if e.less(a.value, b.value) {
			return true
		}
		if e.less(b.value, a.value) {
			return false
		}
	}
	return a.seq < b.seq
}

func (e entries[T]) Swap(i, j int) { e.items[i], e.items[j] = e.items[j], e.items[i] }

func (e *entries[T]) Push(x any) { e.items = append(e.items, x.(entry[T])) }

func (e *entries[T]) Pop() any {
	n := len(e.items)
	last := e.items[n-1]
	e.items[n-1] = entry[T]{}
	e.items = e.items[:n-1]
	return last
}
