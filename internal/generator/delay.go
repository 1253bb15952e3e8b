package generator

import (
	"context"
	"time"
)

// Range is a closed-open interval of simulated delay.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// Scale multiplies both bounds by factor.
func (r Range) Scale(factor float64) Range {
	return Range{
		Min: time.Duration(float64(r.Min) * factor),
		Max: time.Duration(float64(r.Max) * factor),
	}
}

// Delays holds the simulated processing time of every stage step.
type Delays struct {
	Registration      Range
	Diagnosis         Range
	AvailabilityCheck Range
	Treatment         Range
	Discharge         Range
}

// DefaultDelays returns the stage timings at real-time scale.
func DefaultDelays() Delays {
	return Delays{
		Registration:      Range{Min: 500 * time.Millisecond, Max: 1500 * time.Millisecond},
		Diagnosis:         Range{Min: time.Second, Max: 3 * time.Second},
		AvailabilityCheck: Range{Min: 200 * time.Millisecond, Max: 800 * time.Millisecond},
		Treatment:         Range{Min: 2 * time.Second, Max: 5 * time.Second},
		Discharge:         Range{Min: 500 * time.Millisecond, Max: time.Second},
	}
}

// Scale returns d with every range multiplied by factor. A factor of zero
// removes all simulated delay.
func (d Delays) Scale(factor float64) Delays {
	return Delays{
		Registration:      d.Registration.Scale(factor),
		Diagnosis:         d.Diagnosis.Scale(factor),
		AvailabilityCheck: d.AvailabilityCheck.Scale(factor),
		Treatment:         d.Treatment.Scale(factor),
		Discharge:         d.Discharge.Scale(factor),
	}
}

// Sleep pauses for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
