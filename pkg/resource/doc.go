/*
Package resource provides counting-semaphore pools over scarce hospital resources
such as doctors and beds.

A Pool has a fixed capacity. Acquire blocks until a unit is free or the context
ends; Release hands a unit back and wakes the longest-waiting caller. Waiters are
served in arrival order, so no caller starves while others keep cycling units.

Basic usage:

	doctors, err := resource.New("doctors", 5)
	if err != nil {
		log.Fatal(err)
	}

	if err := doctors.Acquire(ctx); err != nil {
		return err // context canceled or deadline exceeded
	}
	defer doctors.Release()

Lock ordering:

Callers that need more than one pool must always acquire them in the same global
order. The allocation stage takes a doctor before a bed and never holds a bed
while waiting for a doctor, which rules out circular waits.

Over-release:

Release without a matching Acquire is a programming error and panics, the same
way sync.Mutex panics on unlock of an unlocked mutex.

Instrumentation:

WithMetrics wraps a Pool and exports usage, waiters and wait time through a
metrics.Registry.
*/
package resource
