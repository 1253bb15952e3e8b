/*
Package workerpool provides a fixed-size set of worker goroutines that execute
submitted tasks concurrently.

The pipeline uses it for the registration stage: the worker count is fixed and
independent of how many patients arrive, and tasks share memory with the rest of
the process, so any shared state they touch must be protected by the caller.

Basic usage:

	pool := workerpool.New(5, 0) // 5 workers, unbuffered hand-off

	for _, p := range patients {
		p := p
		_ = pool.Submit(workerpool.TaskFunc(func(ctx context.Context) error {
			return registrar.Register(ctx, p)
		}))
	}

	<-pool.Shutdown() // every submitted task has finished

Shutdown is graceful: no new tasks are accepted, tasks already queued still run,
and the returned channel closes once every worker has exited.

Completion callbacks:

Results are delivered through Config.OnTaskComplete rather than a channel, so a
caller that does not care about results cannot stall the workers:

	pool := workerpool.NewWithConfig(workerpool.Config{
		Name:        "registration",
		WorkerCount: 5,
		OnTaskComplete: func(workerID int, r workerpool.Result) {
			if r.Error != nil {
				log.Printf("task failed: %v", r.Error)
			}
		},
	})

Panics inside a task are recovered and reported as the task's error, including a
stack trace, unless Config.PanicHandler is set.
*/
package workerpool
