package stage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vnykmshr/patientflow/internal/generator"
	"github.com/vnykmshr/patientflow/internal/patient"
	"github.com/vnykmshr/patientflow/internal/stats"
	"github.com/vnykmshr/patientflow/internal/testutil"
	"github.com/vnykmshr/patientflow/pkg/resource"
)

type allocFixture struct {
	alloc   *Allocator
	doctors resource.Pool
	beds    resource.Pool
}

func newAllocFixture(t *testing.T, doctors, beds int, treatment generator.Range, hook CheckpointFunc) allocFixture {
	t.Helper()
	d, b := newPools(doctors, beds)
	a, err := NewAllocator(AllocatorConfig{
		Doctors:    d,
		Beds:       b,
		Treatment:  treatment,
		Source:     newSource(),
		Discharge:  newDischargeQueue(),
		Checkpoint: hook,
		Clock:      testutil.NewMockClock(epoch),
	})
	testutil.AssertNoError(t, err)
	return allocFixture{alloc: a, doctors: d, beds: b}
}

func failAt(id int, at Checkpoint) CheckpointFunc {
	return func(p *patient.Patient, cp Checkpoint) error {
		if p.ID == id && cp == at {
			return errors.New("injected failure")
		}
		return nil
	}
}

func TestNewAllocatorValidation(t *testing.T) {
	_, err := NewAllocator(AllocatorConfig{})
	testutil.AssertError(t, err)
}

func TestCheckpointString(t *testing.T) {
	testutil.AssertEqual(t, DoctorAcquired.String(), "doctor_acquired")
	testutil.AssertEqual(t, BedAcquired.String(), "bed_acquired")
	testutil.AssertEqual(t, Treated.String(), "treated")
	testutil.AssertEqual(t, Checkpoint(7).String(), "Checkpoint(7)")
}

func TestAllocateSuccess(t *testing.T) {
	f := newAllocFixture(t, 1, 1, generator.Range{}, nil)
	p := newPatientAt(t, 1, patient.Diagnosed)

	testutil.AssertNoError(t, f.alloc.Allocate(context.Background(), p))

	got, ok := f.alloc.config.Discharge.TryGet()
	testutil.AssertEqual(t, ok, true)
	testutil.AssertEqual(t, got, p)
	testutil.AssertEqual(t, p.Status, patient.ReadyForDischarge)
	testutil.AssertNotEqual(t, p.Assignment.Doctor, (*patient.Doctor)(nil))
	testutil.AssertNotEqual(t, p.Assignment.Bed, (*patient.Bed)(nil))
	testutil.AssertEqual(t, p.Assignment.AssignedAt, epoch)

	// Units stay held until discharge.
	testutil.AssertEqual(t, f.doctors.InUse(), 1)
	testutil.AssertEqual(t, f.beds.InUse(), 1)
	testutil.AssertEqual(t, f.alloc.InTreatment(), 0)
	testutil.AssertEqual(t, f.alloc.PeakInTreatment(), 1)
}

func TestAllocateRollback(t *testing.T) {
	tests := []struct {
		name     string
		at       Checkpoint
		released []string
	}{
		{"after doctor", DoctorAcquired, []string{"doctors"}},
		{"after bed", BedAcquired, []string{"doctors", "beds"}},
		{"after treatment", Treated, []string{"doctors", "beds"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAllocFixture(t, 2, 2, generator.Range{}, failAt(1, tt.at))
			p := newPatientAt(t, 1, patient.Diagnosed)

			err := f.alloc.Allocate(context.Background(), p)
			if !errors.Is(err, ErrAllocationFailed) {
				t.Fatalf("expected ErrAllocationFailed, got %v", err)
			}
			var ae *AllocationError
			if !errors.As(err, &ae) {
				t.Fatalf("expected *AllocationError, got %T", err)
			}
			testutil.AssertEqual(t, ae.PatientID, 1)
			testutil.AssertEqual(t, ae.Step, tt.at.String())
			testutil.AssertEqual(t, len(ae.Released), len(tt.released))
			for i := range tt.released {
				testutil.AssertEqual(t, ae.Released[i], tt.released[i])
			}

			testutil.AssertEqual(t, f.doctors.Available(), 2)
			testutil.AssertEqual(t, f.beds.Available(), 2)
			ds, bs := f.doctors.Stats(), f.beds.Stats()
			testutil.AssertEqual(t, ds.Acquired, ds.Released)
			testutil.AssertEqual(t, bs.Acquired, bs.Released)
			if tt.at == DoctorAcquired {
				testutil.AssertEqual(t, bs.Acquired, int64(0))
			}

			testutil.AssertEqual(t, f.alloc.config.Discharge.Len(), 0)
			testutil.AssertEqual(t, f.alloc.InTreatment(), 0)
			testutil.AssertEqual(t, p.Assignment, patient.Assignment{})
		})
	}
}

func TestAllocatePanicRollsBack(t *testing.T) {
	hook := func(p *patient.Patient, cp Checkpoint) error {
		if cp == BedAcquired {
			panic("monitor fault")
		}
		return nil
	}
	f := newAllocFixture(t, 1, 1, generator.Range{}, hook)

	err := f.alloc.Allocate(context.Background(), newPatientAt(t, 5, patient.Diagnosed))
	testutil.AssertError(t, err)
	testutil.AssertEqual(t, f.doctors.Available(), 1)
	testutil.AssertEqual(t, f.beds.Available(), 1)
}

func TestAllocateCanceledWhileWaitingForBed(t *testing.T) {
	f := newAllocFixture(t, 1, 1, generator.Range{}, nil)
	testutil.AssertEqual(t, f.beds.TryAcquire(), true)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := f.alloc.Allocate(ctx, newPatientAt(t, 1, patient.Diagnosed))
	var ae *AllocationError
	if !errors.As(err, &ae) {
		t.Fatalf("expected *AllocationError, got %v", err)
	}
	testutil.AssertEqual(t, ae.Step, "acquire_bed")
	testutil.AssertEqual(t, errors.Is(err, context.DeadlineExceeded), true)
	testutil.AssertEqual(t, len(ae.Released), 1)
	testutil.AssertEqual(t, f.doctors.Available(), 1)

	f.beds.Release()
}

func TestAllocateRejectsWrongStatus(t *testing.T) {
	f := newAllocFixture(t, 1, 1, generator.Range{}, nil)

	err := f.alloc.Allocate(context.Background(), newPatientAt(t, 1, patient.Registered))
	var ae *AllocationError
	if !errors.As(err, &ae) {
		t.Fatalf("expected *AllocationError, got %v", err)
	}
	testutil.AssertEqual(t, len(ae.Released), 0)
	testutil.AssertEqual(t, errors.Is(err, patient.ErrInvalidTransition), true)
	testutil.AssertEqual(t, f.doctors.Stats().Acquired, int64(0))
}

func TestSingleDoctorAndBedTreatOneAtATime(t *testing.T) {
	f := newAllocFixture(t, 1, 1, generator.Range{Min: 5 * time.Millisecond, Max: 10 * time.Millisecond}, nil)
	agg := stats.New()
	d, err := NewDischarger(DischargerConfig{
		Doctors: f.doctors,
		Beds:    f.beds,
		Queue:   f.alloc.config.Discharge,
		Stats:   agg,
		Source:  newSource(),
	})
	testutil.AssertNoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	var wg sync.WaitGroup
	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := f.alloc.Allocate(context.Background(), newPatientAt(t, id, patient.Diagnosed)); err != nil {
				t.Errorf("allocate %d: %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	jctx, jcancel := testutil.WithTimeout(t)
	defer jcancel()
	testutil.AssertNoError(t, f.alloc.config.Discharge.Join(jctx))
	cancel()
	testutil.AssertNoError(t, <-done)

	testutil.AssertEqual(t, f.alloc.PeakInTreatment(), 1)
	testutil.AssertEqual(t, agg.Snapshot().TotalProcessed, int64(3))
	testutil.AssertEqual(t, f.doctors.Stats().Peak, 1)
	testutil.AssertEqual(t, f.doctors.Stats().Released, int64(3))
	testutil.AssertEqual(t, f.beds.Stats().Released, int64(3))
	testutil.AssertEqual(t, f.doctors.InUse(), 0)
}
