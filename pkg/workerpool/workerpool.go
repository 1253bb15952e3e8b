package workerpool

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// Submit adds a task to the pool for execution.
// The task will be executed with context.Background().
// Use SubmitWithContext to provide a custom context.
func (p *workerPool) Submit(task Task) error {
	return p.SubmitWithContext(context.Background(), task)
}

// SubmitWithContext adds a task to the pool for execution with the given context.
func (p *workerPool) SubmitWithContext(ctx context.Context, task Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	// Check if context is already canceled before attempting to queue
	select {
	case <-ctx.Done():
		return fmt.Errorf("cannot submit task: context canceled: %w", ctx.Err())
	default:
	}

	// Holding the read lock keeps Shutdown from closing taskQueue mid-send.
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.isShutdown {
		return fmt.Errorf("cannot submit task: worker pool has been shut down")
	}

	select {
	case p.taskQueue <- taskWithContext{task: task, ctx: ctx}:
		p.totalSubmitted.Add(1)
		return nil
	case <-p.shutdownCh:
		return fmt.Errorf("cannot submit task: worker pool has been shut down")
	case <-ctx.Done():
		return fmt.Errorf("cannot submit task: context canceled: %w", ctx.Err())
	}
}

// Shutdown initiates a graceful shutdown of the pool.
func (p *workerPool) Shutdown() <-chan struct{} {
	p.shutdownOnce.Do(func() {
		// Unblock submitters waiting for a slot before taking the write lock.
		close(p.shutdownCh)

		p.mu.Lock()
		p.isShutdown = true
		close(p.taskQueue)
		p.mu.Unlock()

		go func() {
			p.workerWg.Wait()
			close(p.shutdownDone)
		}()
	})

	return p.shutdownDone
}

// Size returns the number of workers in the pool.
func (p *workerPool) Size() int {
	return p.config.WorkerCount
}

// QueueSize returns the current number of queued tasks waiting for execution.
func (p *workerPool) QueueSize() int {
	return len(p.taskQueue)
}

// ActiveWorkers returns the number of workers currently executing tasks.
func (p *workerPool) ActiveWorkers() int {
	return int(p.activeWorkers.Load())
}

// TotalSubmitted returns the total number of tasks accepted by the pool.
func (p *workerPool) TotalSubmitted() int64 {
	return p.totalSubmitted.Load()
}

// TotalCompleted returns the total number of tasks that finished executing.
func (p *workerPool) TotalCompleted() int64 {
	return p.totalCompleted.Load()
}

// run is the main loop for a worker. It drains the queue until Shutdown closes it.
func (p *workerPool) run(id int) {
	defer p.workerWg.Done()

	if p.config.OnWorkerStart != nil {
		p.config.OnWorkerStart(id)
	}
	if p.config.OnWorkerStop != nil {
		defer p.config.OnWorkerStop(id)
	}

	for twc := range p.taskQueue {
		p.executeTask(id, twc)
	}
}

// executeTask executes a single task with the provided context.
func (p *workerPool) executeTask(workerID int, twc taskWithContext) {
	start := time.Now()
	var err error

	p.config.Metrics.SetActiveWorkers(p.config.Name, int(p.activeWorkers.Add(1)))
	if p.config.OnTaskStart != nil {
		p.config.OnTaskStart(workerID, twc.task)
	}

	// Handle panics during task execution
	defer func() {
		if r := recover(); r != nil {
			if p.config.PanicHandler != nil {
				p.config.PanicHandler(twc.task, r)
			} else {
				err = fmt.Errorf("task panicked: %v\nStack trace:\n%s", r, debug.Stack())
			}
		}

		p.config.Metrics.SetActiveWorkers(p.config.Name, int(p.activeWorkers.Add(-1)))
		p.totalCompleted.Add(1)

		if p.config.OnTaskComplete != nil {
			p.config.OnTaskComplete(workerID, Result{
				Task:     twc.task,
				Error:    err,
				Duration: time.Since(start),
				WorkerID: workerID,
			})
		}
	}()

	ctx := twc.ctx
	if p.config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.TaskTimeout)
		defer cancel()
	}

	err = twc.task.Execute(ctx)
}
