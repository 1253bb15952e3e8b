// Package stats keeps the running counters shared by the registration and
// discharge stages.
package stats

import (
	"sync"
	"time"
)

// Snapshot is a read-only copy of the aggregate counters.
type Snapshot struct {
	TotalRegistered   int64         `json:"total_registered"`
	TotalProcessed    int64         `json:"total_processed"`
	AverageSystemTime time.Duration `json:"average_system_time"`
}

// Aggregator is safe for concurrent use. The zero value is ready to use.
type Aggregator struct {
	mu         sync.Mutex
	registered int64
	processed  int64
	avgSeconds float64
}

// New returns an empty aggregator.
func New() *Aggregator {
	return &Aggregator{}
}

// IncRegistered counts one registration and returns the new total.
func (a *Aggregator) IncRegistered() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.registered++
	return a.registered
}

// RecordDischarge counts one discharged patient and folds systemTime into the
// running mean without retaining individual samples.
func (a *Aggregator) RecordDischarge(systemTime time.Duration) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.processed++
	k := float64(a.processed)
	a.avgSeconds = (a.avgSeconds*(k-1) + systemTime.Seconds()) / k

	return a.snapshotLocked()
}

// Snapshot returns the current counters.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Aggregator) snapshotLocked() Snapshot {
	return Snapshot{
		TotalRegistered:   a.registered,
		TotalProcessed:    a.processed,
		AverageSystemTime: time.Duration(a.avgSeconds * float64(time.Second)),
	}
}

// AverageSeconds returns the running mean system time in seconds at full precision.
func (a *Aggregator) AverageSeconds() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.avgSeconds
}
