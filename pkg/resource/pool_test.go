package resource

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vnykmshr/patientflow/internal/testutil"
	pferrors "github.com/vnykmshr/patientflow/pkg/common/errors"
	"github.com/vnykmshr/patientflow/pkg/metrics"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		wantErr  bool
	}{
		{"valid capacity", 10, false},
		{"capacity one", 1, false},
		{"zero capacity", 0, true},
		{"negative capacity", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := New("doctors", tt.capacity)
			if tt.wantErr {
				if !errors.Is(err, pferrors.ErrInvalidConfiguration) {
					t.Fatalf("expected invalid configuration, got %v", err)
				}
				if pool != nil {
					t.Error("expected nil pool on error")
				}
				return
			}
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, pool.Name(), "doctors")
			testutil.AssertEqual(t, pool.Capacity(), tt.capacity)
			testutil.AssertEqual(t, pool.Available(), tt.capacity)
			testutil.AssertEqual(t, pool.InUse(), 0)
		})
	}
}

func TestMustNewPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic")
		}
	}()
	MustNew("beds", 0)
}

func TestAcquireRelease(t *testing.T) {
	pool := MustNew("beds", 2)
	ctx := context.Background()

	testutil.AssertNoError(t, pool.Acquire(ctx))
	testutil.AssertNoError(t, pool.Acquire(ctx))
	testutil.AssertEqual(t, pool.Available(), 0)
	testutil.AssertEqual(t, pool.InUse(), 2)
	testutil.AssertEqual(t, pool.TryAcquire(), false)

	pool.Release()
	testutil.AssertEqual(t, pool.Available(), 1)
	testutil.AssertEqual(t, pool.TryAcquire(), true)

	pool.Release()
	pool.Release()

	stats := pool.Stats()
	testutil.AssertEqual(t, stats.Acquired, int64(3))
	testutil.AssertEqual(t, stats.Released, int64(3))
	testutil.AssertEqual(t, stats.Peak, 2)
	testutil.AssertEqual(t, stats.Available, 2)
}

func TestReleaseWithoutAcquirePanics(t *testing.T) {
	pool := MustNew("doctors", 1)

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic on over-release")
		}
	}()
	pool.Release()
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	pool := MustNew("doctors", 1)
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	testutil.AssertNoError(t, pool.Acquire(ctx))

	acquired := make(chan struct{})
	go func() {
		if err := pool.Acquire(ctx); err == nil {
			close(acquired)
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should block while the unit is held")
	case <-time.After(20 * time.Millisecond):
	}

	testutil.WaitFor(t, func() bool { return pool.Stats().Waiting == 1 }, time.Second)
	pool.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by release")
	}
	testutil.AssertEqual(t, pool.InUse(), 1)
	pool.Release()
}

func TestAcquireContextCancel(t *testing.T) {
	pool := MustNew("beds", 1)
	testutil.AssertNoError(t, pool.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := pool.Acquire(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	stats := pool.Stats()
	testutil.AssertEqual(t, stats.Waiting, 0)
	testutil.AssertEqual(t, stats.InUse, 1)

	pool.Release()
	testutil.AssertEqual(t, pool.Available(), 1)
}

func TestAcquirePreCanceled(t *testing.T) {
	pool := MustNew("beds", 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := pool.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	testutil.AssertEqual(t, pool.Available(), 3)
}

func TestWaitersServedInOrder(t *testing.T) {
	pool := MustNew("doctors", 1)
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()
	testutil.AssertNoError(t, pool.Acquire(ctx))

	const n = 5
	order := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := pool.Acquire(ctx); err != nil {
				return
			}
			order <- i
			pool.Release()
		}()
		// Queue the waiters one at a time so arrival order is known.
		testutil.WaitFor(t, func() bool { return pool.Stats().Waiting == i+1 }, time.Second)
	}

	pool.Release()
	wg.Wait()
	close(order)

	want := 0
	for got := range order {
		testutil.AssertEqual(t, got, want)
		want++
	}
	testutil.AssertEqual(t, want, n)
}

func TestConcurrentUsageNeverExceedsCapacity(t *testing.T) {
	const capacity = 3
	pool := MustNew("beds", capacity)
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	var current, maxSeen int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := pool.Acquire(ctx); err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			n := atomic.AddInt32(&current, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&current, -1)
			pool.Release()
		}()
	}
	wg.Wait()

	if maxSeen > capacity {
		t.Errorf("observed %d concurrent holders, capacity %d", maxSeen, capacity)
	}
	stats := pool.Stats()
	testutil.AssertEqual(t, stats.Peak <= capacity, true)
	testutil.AssertEqual(t, stats.Acquired, int64(50))
	testutil.AssertEqual(t, stats.Released, int64(50))
	testutil.AssertEqual(t, stats.Available, capacity)
}

func TestWithMetrics(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	pool := WithMetrics(MustNew("doctors", 2), reg)

	ctx := context.Background()
	testutil.AssertNoError(t, pool.Acquire(ctx))
	testutil.AssertEqual(t, pool.TryAcquire(), true)

	if got := promtest.ToFloat64(reg.ResourceInUse.WithLabelValues("doctors")); got != 2 {
		t.Errorf("in use gauge = %v, want 2", got)
	}
	if got := promtest.ToFloat64(reg.ResourceWaiting.WithLabelValues("doctors")); got != 0 {
		t.Errorf("waiting gauge = %v, want 0", got)
	}

	pool.Release()
	pool.Release()
	if got := promtest.ToFloat64(reg.ResourceInUse.WithLabelValues("doctors")); got != 0 {
		t.Errorf("in use gauge = %v, want 0", got)
	}
	testutil.AssertEqual(t, pool.Stats().Acquired, int64(2))
}

func TestWithMetricsNilRegistry(t *testing.T) {
	base := MustNew("beds", 1)
	if WithMetrics(base, nil) != base {
		t.Error("nil registry should return the pool unchanged")
	}
}
