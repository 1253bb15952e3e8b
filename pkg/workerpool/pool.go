package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vnykmshr/patientflow/pkg/metrics"
)

// Task represents a unit of work that can be executed by a worker.
type Task interface {
	// Execute runs the task with the given context.
	// It should respect context cancellation and return any error encountered.
	Execute(ctx context.Context) error
}

// TaskFunc is a function type that implements the Task interface.
type TaskFunc func(ctx context.Context) error

// Execute implements the Task interface for TaskFunc.
func (f TaskFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// Result represents the result of a task execution.
type Result struct {
	// Task is the original task that was executed
	Task Task

	// Error is any error that occurred during task execution
	Error error

	// Duration is how long the task took to execute
	Duration time.Duration

	// WorkerID identifies which worker executed the task
	WorkerID int
}

// Pool represents a worker pool that can execute tasks concurrently.
type Pool interface {
	// Submit adds a task to the pool for execution.
	// Returns an error if the pool is shut down.
	Submit(task Task) error

	// SubmitWithContext submits a task with a context. The context bounds the
	// wait for a free slot and is passed to the task's Execute method.
	SubmitWithContext(ctx context.Context, task Task) error

	// Shutdown stops accepting tasks, lets queued tasks finish, and returns a
	// channel that closes once every worker has exited.
	Shutdown() <-chan struct{}

	// Size returns the number of workers in the pool.
	Size() int

	// QueueSize returns the current number of queued tasks waiting for execution.
	QueueSize() int

	// ActiveWorkers returns the number of workers currently executing tasks.
	ActiveWorkers() int

	// TotalSubmitted returns the total number of tasks submitted to the pool.
	TotalSubmitted() int64

	// TotalCompleted returns the total number of tasks completed by the pool.
	TotalCompleted() int64
}

// Config holds configuration options for creating a worker pool.
type Config struct {
	// Name identifies the pool in metrics.
	Name string

	// WorkerCount is the number of workers in the pool.
	// Must be greater than 0.
	WorkerCount int

	// QueueSize is the number of tasks that can wait for a worker.
	// Zero means Submit hands the task directly to an idle worker.
	QueueSize int

	// TaskTimeout is the default timeout for individual task execution.
	// Zero means no timeout.
	TaskTimeout time.Duration

	// PanicHandler is called when a task panics.
	// If nil, panics are recovered and reported as the task's error.
	PanicHandler func(task Task, recovered interface{})

	// OnWorkerStart is called when a worker starts.
	OnWorkerStart func(workerID int)

	// OnWorkerStop is called when a worker stops.
	OnWorkerStop func(workerID int)

	// OnTaskStart is called before a task begins execution.
	OnTaskStart func(workerID int, task Task)

	// OnTaskComplete is called after a task completes (success or failure).
	OnTaskComplete func(workerID int, result Result)

	// Metrics receives the active worker count. Optional.
	Metrics *metrics.Registry
}

// workerPool implements the Pool interface.
type workerPool struct {
	config Config

	taskQueue    chan taskWithContext
	shutdownCh   chan struct{}
	shutdownDone chan struct{}
	shutdownOnce sync.Once

	mu         sync.RWMutex
	isShutdown bool

	activeWorkers  atomic.Int32
	totalSubmitted atomic.Int64
	totalCompleted atomic.Int64

	workerWg sync.WaitGroup
}

// taskWithContext carries the submitter's context to the worker.
type taskWithContext struct {
	task Task
	ctx  context.Context
}

// New creates a new worker pool with the specified number of workers and queue size.
func New(workerCount, queueSize int) Pool {
	return NewWithConfig(Config{
		WorkerCount: workerCount,
		QueueSize:   queueSize,
	})
}

// NewWithConfig creates a new worker pool with the specified configuration.
func NewWithConfig(config Config) Pool {
	if config.WorkerCount <= 0 {
		panic("worker count must be positive")
	}
	if config.QueueSize < 0 {
		panic("queue size must be >= 0")
	}

	pool := &workerPool{
		config:       config,
		taskQueue:    make(chan taskWithContext, config.QueueSize),
		shutdownCh:   make(chan struct{}),
		shutdownDone: make(chan struct{}),
	}

	for i := 0; i < config.WorkerCount; i++ {
		pool.workerWg.Add(1)
		go pool.run(i)
	}

	return pool
}
