package workerpool

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vnykmshr/patientflow/internal/testutil"
	"github.com/vnykmshr/patientflow/pkg/metrics"
)

// TestTask is a simple task for testing.
type TestTask struct {
	ID          int
	Duration    time.Duration
	ShouldErr   bool
	ShouldPanic bool
	Executed    *int32 // Atomic counter
}

func (t *TestTask) Execute(ctx context.Context) error {
	atomic.AddInt32(t.Executed, 1)

	if t.ShouldPanic {
		panic("test panic")
	}

	if t.Duration > 0 {
		select {
		case <-time.After(t.Duration):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if t.ShouldErr {
		return errors.New("test error")
	}

	return nil
}

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		workerCount int
		queueSize   int
		expectPanic bool
	}{
		{"valid params", 2, 10, false},
		{"single worker", 1, 5, false},
		{"unbuffered hand-off", 3, 0, false},
		{"zero workers", 0, 10, true},
		{"negative workers", -1, 10, true},
		{"invalid queue size", 2, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.expectPanic {
				defer func() {
					if r := recover(); r == nil {
						t.Error("expected panic")
					}
				}()
			}

			pool := New(tt.workerCount, tt.queueSize)
			if !tt.expectPanic {
				testutil.AssertEqual(t, pool.Size(), tt.workerCount)
				<-pool.Shutdown()
			}
		})
	}
}

func TestShutdownRunsQueuedTasks(t *testing.T) {
	pool := New(2, 10)

	const numTasks = 10
	var executed int32
	for i := 0; i < numTasks; i++ {
		err := pool.Submit(&TestTask{ID: i, Duration: 2 * time.Millisecond, Executed: &executed})
		testutil.AssertNoError(t, err)
	}

	select {
	case <-pool.Shutdown():
	case <-time.After(testutil.TestTimeout):
		t.Fatal("shutdown did not complete")
	}

	testutil.AssertEqual(t, atomic.LoadInt32(&executed), int32(numTasks))
	testutil.AssertEqual(t, pool.TotalSubmitted(), int64(numTasks))
	testutil.AssertEqual(t, pool.TotalCompleted(), int64(numTasks))
}

func TestSubmitAfterShutdown(t *testing.T) {
	pool := New(1, 1)
	<-pool.Shutdown()

	err := pool.Submit(TaskFunc(func(ctx context.Context) error { return nil }))
	testutil.AssertError(t, err)

	// A second Shutdown returns the same closed channel.
	<-pool.Shutdown()
}

func TestSubmitNilTask(t *testing.T) {
	pool := New(1, 1)
	defer func() { <-pool.Shutdown() }()

	testutil.AssertError(t, pool.Submit(nil))
}

func TestSubmitWithContextCanceled(t *testing.T) {
	pool := New(1, 0)
	defer func() { <-pool.Shutdown() }()

	block := make(chan struct{})
	testutil.AssertNoError(t, pool.Submit(TaskFunc(func(ctx context.Context) error {
		<-block
		return nil
	})))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := pool.SubmitWithContext(ctx, TaskFunc(func(ctx context.Context) error { return nil }))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	close(block)
}

func TestOnTaskComplete(t *testing.T) {
	var mu sync.Mutex
	var results []Result

	pool := NewWithConfig(Config{
		WorkerCount: 2,
		OnTaskComplete: func(workerID int, r Result) {
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		},
	})

	var executed int32
	failing := &TestTask{ID: 1, ShouldErr: true, Executed: &executed}
	testutil.AssertNoError(t, pool.Submit(failing))
	testutil.AssertNoError(t, pool.Submit(&TestTask{ID: 2, Executed: &executed}))
	<-pool.Shutdown()

	testutil.AssertEqual(t, len(results), 2)
	var failed int
	for _, r := range results {
		if r.Error != nil {
			failed++
			testutil.AssertEqual(t, r.Task == Task(failing), true)
			testutil.AssertEqual(t, r.Error.Error(), "test error")
		}
		testutil.AssertEqual(t, r.WorkerID >= 0 && r.WorkerID < 2, true)
	}
	testutil.AssertEqual(t, failed, 1)
}

func TestTaskPanicDefaultHandler(t *testing.T) {
	var got Result
	pool := NewWithConfig(Config{
		WorkerCount:    1,
		OnTaskComplete: func(_ int, r Result) { got = r },
	})

	var executed int32
	testutil.AssertNoError(t, pool.Submit(&TestTask{ShouldPanic: true, Executed: &executed}))
	<-pool.Shutdown()

	testutil.AssertNotEqual(t, got.Error, nil)
	if !strings.Contains(got.Error.Error(), "test panic") {
		t.Errorf("error should mention the panic value, got %q", got.Error)
	}
}

func TestTaskPanicCustomHandler(t *testing.T) {
	var recovered interface{}
	var got Result
	pool := NewWithConfig(Config{
		WorkerCount:    1,
		PanicHandler:   func(_ Task, r interface{}) { recovered = r },
		OnTaskComplete: func(_ int, r Result) { got = r },
	})

	var executed int32
	testutil.AssertNoError(t, pool.Submit(&TestTask{ShouldPanic: true, Executed: &executed}))
	<-pool.Shutdown()

	testutil.AssertEqual(t, recovered, interface{}("test panic"))
	// Error should be nil when custom panic handler is provided
	testutil.AssertEqual(t, got.Error, nil)
}

func TestTaskTimeout(t *testing.T) {
	var got Result
	pool := NewWithConfig(Config{
		WorkerCount:    1,
		TaskTimeout:    10 * time.Millisecond,
		OnTaskComplete: func(_ int, r Result) { got = r },
	})

	var executed int32
	testutil.AssertNoError(t, pool.Submit(&TestTask{Duration: time.Second, Executed: &executed}))
	<-pool.Shutdown()

	if !errors.Is(got.Error, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", got.Error)
	}
}

func TestConcurrencyBoundedByWorkerCount(t *testing.T) {
	const workers = 3
	var current, peak int32

	pool := New(workers, 0)
	for i := 0; i < 20; i++ {
		testutil.AssertNoError(t, pool.Submit(TaskFunc(func(ctx context.Context) error {
			n := atomic.AddInt32(&current, 1)
			for {
				m := atomic.LoadInt32(&peak)
				if n <= m || atomic.CompareAndSwapInt32(&peak, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&current, -1)
			return nil
		})))
	}
	<-pool.Shutdown()

	if peak > workers {
		t.Errorf("peak concurrency %d exceeds worker count %d", peak, workers)
	}
	testutil.AssertEqual(t, pool.ActiveWorkers(), 0)
}

func TestLifecycleHooksAndMetrics(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	var started, stopped, taskStarts int32

	pool := NewWithConfig(Config{
		Name:          "registration",
		WorkerCount:   2,
		Metrics:       reg,
		OnWorkerStart: func(int) { atomic.AddInt32(&started, 1) },
		OnWorkerStop:  func(int) { atomic.AddInt32(&stopped, 1) },
		OnTaskStart:   func(int, Task) { atomic.AddInt32(&taskStarts, 1) },
	})

	var executed int32
	for i := 0; i < 4; i++ {
		testutil.AssertNoError(t, pool.Submit(&TestTask{ID: i, Executed: &executed}))
	}
	<-pool.Shutdown()

	testutil.AssertEqual(t, atomic.LoadInt32(&started), int32(2))
	testutil.AssertEqual(t, atomic.LoadInt32(&stopped), int32(2))
	testutil.AssertEqual(t, atomic.LoadInt32(&taskStarts), int32(4))
	if got := promtest.ToFloat64(reg.WorkerPoolActive.WithLabelValues("registration")); got != 0 {
		t.Errorf("active workers gauge = %v, want 0", got)
	}
}
