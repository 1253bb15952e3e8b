package stage

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vnykmshr/patientflow/internal/generator"
	"github.com/vnykmshr/patientflow/internal/patient"
	"github.com/vnykmshr/patientflow/pkg/metrics"
	"github.com/vnykmshr/patientflow/pkg/queue"
	"github.com/vnykmshr/patientflow/pkg/resource"
)

// Checkpoint names a point in the allocation sequence where a hook runs.
type Checkpoint int

const (
	DoctorAcquired Checkpoint = iota
	BedAcquired
	Treated
)

func (c Checkpoint) String() string {
	switch c {
	case DoctorAcquired:
		return "doctor_acquired"
	case BedAcquired:
		return "bed_acquired"
	case Treated:
		return "treated"
	default:
		return fmt.Sprintf("Checkpoint(%d)", int(c))
	}
}

// CheckpointFunc is called at every checkpoint. A non-nil error fails the
// allocation and triggers the rollback.
type CheckpointFunc func(p *patient.Patient, cp Checkpoint) error

// AllocatorConfig holds the collaborators of the allocation stage.
type AllocatorConfig struct {
	Doctors resource.Pool
	Beds    resource.Pool

	// AvailabilityCheck is the simulated external lookup before acquiring.
	AvailabilityCheck generator.Range

	// Treatment is the simulated treatment time.
	Treatment generator.Range

	Source     generator.Source
	Discharge  *queue.Queue[*patient.Patient]
	Checkpoint CheckpointFunc
	Clock      Clock
	Logger     *zap.Logger
	Metrics    *metrics.Registry
}

// Allocator assigns a doctor and a bed to diagnosed patients, runs the
// treatment and hands them to discharge.
type Allocator struct {
	config AllocatorConfig
	logger *zap.Logger
	clock  Clock

	// mu guards the assignment critical section and the treatment counters.
	mu              sync.Mutex
	inTreatment     int
	peakInTreatment int
}

// NewAllocator validates config and returns an Allocator.
func NewAllocator(config AllocatorConfig) (*Allocator, error) {
	if config.Doctors == nil || config.Beds == nil || config.Source == nil || config.Discharge == nil {
		return nil, errors.New("allocation: doctors, beds, source and discharge queue are required")
	}

	return &Allocator{
		config: config,
		logger: loggerOrNop(config.Logger, "allocation"),
		clock:  clockOrDefault(config.Clock),
	}, nil
}

// InTreatment returns the number of patients currently in treatment.
func (a *Allocator) InTreatment() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inTreatment
}

// PeakInTreatment returns the highest number of patients ever in treatment at once.
func (a *Allocator) PeakInTreatment() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.peakInTreatment
}

// held tracks the units acquired by one allocation so a failure releases
// exactly those.
type held struct {
	doctor, bed bool
	treating    bool
}

// Allocate runs the allocation sequence for p. Resources are acquired doctor
// first, then bed. If any step fails before p is on the discharge queue, the
// units already acquired are released and an *AllocationError is returned.
// Allocate never retries.
func (a *Allocator) Allocate(ctx context.Context, p *patient.Patient) (err error) {
	start := time.Now()
	step := "availability_check"
	var h held

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("allocation panicked: %v\nStack trace:\n%s", r, debug.Stack())
		}
		if err == nil {
			return
		}
		released := a.rollback(p, &h)
		err = &AllocationError{PatientID: p.ID, Step: step, Released: released, Err: err}
		a.logger.Warn("Allocation failed",
			zap.Int("patient_id", p.ID),
			zap.String("step", step),
			zap.Strings("released", released),
			zap.Error(err),
		)
	}()

	if err := p.Advance(patient.WaitingResource, a.clock.Now()); err != nil {
		return err
	}
	if err := generator.Sleep(ctx, a.config.Source.Between(a.config.AvailabilityCheck)); err != nil {
		return err
	}

	step = "acquire_doctor"
	a.logger.Debug("Waiting for doctor", zap.Int("patient_id", p.ID), zap.Stringer("priority", p.Priority))
	if err := a.config.Doctors.Acquire(ctx); err != nil {
		return err
	}
	h.doctor = true
	doctor := a.config.Source.Doctor()
	a.logger.Debug("Doctor assigned", zap.Int("patient_id", p.ID), zap.Int("doctor_id", doctor.ID))

	step = DoctorAcquired.String()
	if err := a.checkpoint(p, DoctorAcquired); err != nil {
		return err
	}

	step = "acquire_bed"
	if err := a.config.Beds.Acquire(ctx); err != nil {
		return err
	}
	h.bed = true
	bed := a.config.Source.Bed()
	a.logger.Debug("Bed assigned", zap.Int("patient_id", p.ID), zap.Int("bed_id", bed.ID))

	step = BedAcquired.String()
	if err := a.checkpoint(p, BedAcquired); err != nil {
		return err
	}

	step = "assignment"
	if err := a.assign(p, &h, doctor, bed); err != nil {
		return err
	}

	step = "treatment"
	treatment := a.config.Source.Between(a.config.Treatment)
	a.logger.Debug("Treatment started", zap.Int("patient_id", p.ID), zap.Duration("duration", treatment))
	if err := generator.Sleep(ctx, treatment); err != nil {
		return err
	}

	step = Treated.String()
	if err := a.checkpoint(p, Treated); err != nil {
		return err
	}

	step = "ready_for_discharge"
	if err := a.finishTreatment(p, &h); err != nil {
		return err
	}

	step = "discharge_enqueue"
	if err := a.config.Discharge.Put(ctx, p); err != nil {
		return err
	}

	a.config.Metrics.ObserveStage("allocation", time.Since(start))
	a.logger.Debug("Patient ready for discharge",
		zap.Int("patient_id", p.ID),
		zap.Int("doctor_id", doctor.ID),
		zap.Int("bed_id", bed.ID),
	)
	return nil
}

func (a *Allocator) assign(p *patient.Patient, h *held, doctor patient.Doctor, bed patient.Bed) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	if err := p.Advance(patient.InTreatment, now); err != nil {
		return err
	}
	p.Assignment = patient.Assignment{Doctor: &doctor, Bed: &bed, AssignedAt: now}

	h.treating = true
	a.inTreatment++
	if a.inTreatment > a.peakInTreatment {
		a.peakInTreatment = a.inTreatment
	}
	return nil
}

func (a *Allocator) finishTreatment(p *patient.Patient, h *held) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := p.Advance(patient.ReadyForDischarge, a.clock.Now()); err != nil {
		return err
	}
	h.treating = false
	a.inTreatment--
	return nil
}

func (a *Allocator) checkpoint(p *patient.Patient, cp Checkpoint) error {
	if a.config.Checkpoint == nil {
		return nil
	}
	return a.config.Checkpoint(p, cp)
}

// rollback releases the units recorded in h and returns their names.
func (a *Allocator) rollback(p *patient.Patient, h *held) []string {
	var released []string

	a.mu.Lock()
	if h.treating {
		h.treating = false
		a.inTreatment--
	}
	p.Assignment = patient.Assignment{}
	a.mu.Unlock()

	if h.doctor {
		a.config.Doctors.Release()
		a.config.Metrics.ResourceRolledBack(a.config.Doctors.Name())
		released = append(released, a.config.Doctors.Name())
		h.doctor = false
	}
	if h.bed {
		a.config.Beds.Release()
		a.config.Metrics.ResourceRolledBack(a.config.Beds.Name())
		released = append(released, a.config.Beds.Name())
		h.bed = false
	}
	return released
}
