package stage

import (
	"context"
	"testing"
	"time"

	"github.com/vnykmshr/patientflow/internal/generator"
	"github.com/vnykmshr/patientflow/internal/ipc"
	"github.com/vnykmshr/patientflow/internal/patient"
	"github.com/vnykmshr/patientflow/internal/stats"
	"github.com/vnykmshr/patientflow/internal/testutil"
	pferrors "github.com/vnykmshr/patientflow/pkg/common/errors"
)

func newRegistrar(t *testing.T, workers int) (*Registrar, *stats.Aggregator, *testutil.MockClock) {
	t.Helper()
	agg := stats.New()
	clock := testutil.NewMockClock(epoch)
	r, err := NewRegistrar(RegistrarConfig{
		Workers: workers,
		Delay:   generator.Range{},
		Source:  newSource(),
		Stats:   agg,
		Queue:   newWorkQueue(),
		Clock:   clock,
	})
	testutil.AssertNoError(t, err)
	return r, agg, clock
}

func TestNewRegistrarValidation(t *testing.T) {
	_, err := NewRegistrar(RegistrarConfig{Workers: 0})
	if !pferrors.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err = NewRegistrar(RegistrarConfig{Workers: 2})
	testutil.AssertError(t, err)
}

func TestRegisterStampsAndEnqueues(t *testing.T) {
	r, agg, clock := newRegistrar(t, 1)
	p := patient.New(1, []string{"Cough"}, epoch)
	clock.Advance(time.Minute)

	testutil.AssertNoError(t, r.Register(context.Background(), p))

	testutil.AssertEqual(t, agg.Snapshot().TotalRegistered, int64(1))
	testutil.AssertEqual(t, p.Status, patient.Registered)
	// The registration timestamp is the intake time, not the time registration finished.
	testutil.AssertEqual(t, p.RegisteredAt, epoch)
	testutil.AssertEqual(t, p.History[1].At, epoch.Add(time.Minute))

	msg, ok := r.config.Queue.TryGet()
	testutil.AssertEqual(t, ok, true)
	testutil.AssertEqual(t, msg.Kind, ipc.Work)
	testutil.AssertEqual(t, msg.Priority, p.Priority)

	got, err := ipc.Decode(msg.Payload)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got.ID, 1)
	testutil.AssertEqual(t, got.Status, patient.Registered)
}

func TestRegisterAll(t *testing.T) {
	tests := []struct {
		name     string
		patients int
		workers  int
	}{
		{"none", 0, 5},
		{"fewer than workers", 3, 5},
		{"many", 40, 5},
		{"single worker", 10, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, agg, _ := newRegistrar(t, tt.workers)
			patients := make([]*patient.Patient, tt.patients)
			for i := range patients {
				patients[i] = patient.New(i+1, nil, epoch)
			}

			testutil.AssertNoError(t, r.RegisterAll(context.Background(), patients))
			testutil.AssertEqual(t, agg.Snapshot().TotalRegistered, int64(tt.patients))
			testutil.AssertEqual(t, r.config.Queue.Len(), tt.patients)

			seen := make(map[int]bool)
			for {
				msg, ok := r.config.Queue.TryGet()
				if !ok {
					break
				}
				seen[msg.PatientID] = true
			}
			testutil.AssertEqual(t, len(seen), tt.patients)
		})
	}
}

func TestRegisterAllCanceled(t *testing.T) {
	r, agg, _ := newRegistrar(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	patients := []*patient.Patient{patient.New(1, nil, epoch), patient.New(2, nil, epoch)}
	testutil.AssertError(t, r.RegisterAll(ctx, patients))
	testutil.AssertEqual(t, agg.Snapshot().TotalRegistered, int64(0))
}

func TestRegisterRejectsAlreadyRegistered(t *testing.T) {
	r, _, _ := newRegistrar(t, 1)
	p := newPatientAt(t, 1, patient.Registered)

	testutil.AssertError(t, r.Register(context.Background(), p))
	testutil.AssertEqual(t, r.config.Queue.Len(), 0)
}
