package resource

import (
	"context"
	"time"

	"github.com/vnykmshr/patientflow/pkg/metrics"
)

// MetricsPool wraps a Pool with Prometheus metrics collection.
type MetricsPool struct {
	pool     Pool
	registry *metrics.Registry
}

// WithMetrics wraps pool so that usage and wait times are exported to registry.
// A nil registry returns pool unchanged.
func WithMetrics(pool Pool, registry *metrics.Registry) Pool {
	if registry == nil {
		return pool
	}

	mp := &MetricsPool{
		pool:     pool,
		registry: registry,
	}
	mp.updateMetrics()
	return mp
}

// updateMetrics updates the current state metrics.
func (mp *MetricsPool) updateMetrics() {
	mp.registry.SetResourceInUse(mp.pool.Name(), mp.pool.InUse())
}

// Name returns the resource type.
func (mp *MetricsPool) Name() string {
	return mp.pool.Name()
}

// Acquire blocks until a unit is available and records the wait.
func (mp *MetricsPool) Acquire(ctx context.Context) error {
	start := time.Now()
	mp.registry.ResourceWaitStarted(mp.pool.Name())

	err := mp.pool.Acquire(ctx)

	mp.registry.ResourceWaitFinished(mp.pool.Name(), time.Since(start))
	mp.updateMetrics()
	return err
}

// TryAcquire takes a unit without blocking.
func (mp *MetricsPool) TryAcquire() bool {
	ok := mp.pool.TryAcquire()
	mp.updateMetrics()
	return ok
}

// Release returns a unit to the pool.
func (mp *MetricsPool) Release() {
	mp.pool.Release()
	mp.updateMetrics()
}

// Capacity returns the fixed number of units.
func (mp *MetricsPool) Capacity() int {
	return mp.pool.Capacity()
}

// Available returns the number of free units.
func (mp *MetricsPool) Available() int {
	return mp.pool.Available()
}

// InUse returns the number of acquired units.
func (mp *MetricsPool) InUse() int {
	return mp.pool.InUse()
}

// Stats returns a snapshot of the wrapped pool.
func (mp *MetricsPool) Stats() Stats {
	return mp.pool.Stats()
}
