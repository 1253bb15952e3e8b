/*
Package queue provides the typed work queues that connect pipeline stages.

A Queue is a bounded or unbounded FIFO, optionally ordered by a caller supplied
priority function with FIFO tie-breaking. Every blocking operation takes a
context, and GetTimeout offers the bounded wait a polling worker needs to
re-check its shutdown conditions.

Queues also track unfinished work in the style of a join counter: every Put
increments it, every TaskDone decrements it, and Join blocks until it reaches
zero. A consumer calls TaskDone only after it has fully processed the item it
took, so Join means "everything enqueued has been dequeued and acknowledged".

	q := queue.New[*patient.Patient](queue.Config{Name: "discharge"})

	go func() {
		for {
			p, err := q.Get(ctx)
			if err != nil {
				return
			}
			process(p)
			q.TaskDone()
		}
	}()

	_ = q.Put(ctx, p)
	_ = q.Join(ctx) // returns once process(p) finished

Close stops further Puts. Items already queued can still be taken; once the
queue is empty, Get returns ErrClosed.
*/
package queue
