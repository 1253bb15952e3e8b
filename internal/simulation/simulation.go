package simulation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vnykmshr/patientflow/internal/generator"
	"github.com/vnykmshr/patientflow/internal/ipc"
	"github.com/vnykmshr/patientflow/internal/patient"
	"github.com/vnykmshr/patientflow/internal/stage"
	"github.com/vnykmshr/patientflow/internal/stats"
	"github.com/vnykmshr/patientflow/pkg/queue"
	"github.com/vnykmshr/patientflow/pkg/resource"
)

// Failure describes a patient that left the pipeline before discharge.
type Failure struct {
	PatientID int    `json:"patient_id"`
	Stage     string `json:"stage"`
	Error     string `json:"error"`
}

// Report is the outcome of a run.
type Report struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`

	Snapshot stats.Snapshot `json:"snapshot"`

	Lost               []Failure `json:"lost"`
	AllocationFailures []Failure `json:"allocation_failures"`

	ForcedTerminations int `json:"forced_terminations"`
	AbandonedWorkers   int `json:"abandoned_workers"`

	Doctors         resource.Stats `json:"doctors"`
	Beds            resource.Stats `json:"beds"`
	PeakInTreatment int            `json:"peak_in_treatment"`

	Elapsed time.Duration `json:"elapsed"`
}

// Status is a live view of a run, for progress reporting.
type Status struct {
	Snapshot     stats.Snapshot
	DoctorsInUse int
	BedsInUse    int
	InTreatment  int
}

// Orchestrator owns the shared state of one run and drives the stages.
type Orchestrator struct {
	config Config
	runID  string
	logger *zap.Logger
	clock  stage.Clock
	source *generator.Random

	stats   *stats.Aggregator
	doctors resource.Pool
	beds    resource.Pool

	work      *queue.Queue[ipc.Message]
	results   *queue.Queue[ipc.Outcome]
	discharge *queue.Queue[*patient.Patient]

	registrar  *stage.Registrar
	diagnosis  *stage.DiagnosisPool
	allocator  *stage.Allocator
	discharger *stage.Discharger

	ran atomic.Bool
}

// New validates config and builds the stages of a run.
func New(config Config) (*Orchestrator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.DiagnosisWorkers == 0 {
		config.DiagnosisWorkers = stage.DefaultDiagnosisWorkers()
	}
	if config.Clock == nil {
		config.Clock = stage.SystemClock()
	}

	o := &Orchestrator{
		config: config,
		runID:  uuid.NewString(),
		clock:  config.Clock,
		source: generator.NewRandom(config.Seed),
		stats:  stats.New(),
	}
	if config.Logger == nil {
		o.logger = zap.NewNop()
	} else {
		o.logger = config.Logger.With(zap.String("run_id", o.runID))
	}

	doctors, err := resource.New("doctors", config.Doctors)
	if err != nil {
		return nil, err
	}
	beds, err := resource.New("beds", config.Beds)
	if err != nil {
		return nil, err
	}
	o.doctors = resource.WithMetrics(doctors, config.Metrics)
	o.beds = resource.WithMetrics(beds, config.Metrics)

	workConfig := queue.Config[ipc.Message]{Name: "diagnosis", Metrics: config.Metrics}
	if config.PriorityOrdering {
		workConfig.Less = ipc.ByPriority
	}
	o.work = queue.New(workConfig)
	o.results = queue.New(queue.Config[ipc.Outcome]{Name: "diagnosis_results", Metrics: config.Metrics})
	o.discharge = queue.New(queue.Config[*patient.Patient]{Name: "discharge", Metrics: config.Metrics})

	diagnosers := config.Diagnosers
	if diagnosers == nil {
		diagnosers = stage.SimulatedDiagnosers(o.source, config.Delays.Diagnosis)
	}

	if o.registrar, err = stage.NewRegistrar(stage.RegistrarConfig{
		Workers: config.RegistrationWorkers,
		Delay:   config.Delays.Registration,
		Source:  o.source,
		Stats:   o.stats,
		Queue:   o.work,
		Clock:   o.clock,
		Logger:  o.logger,
		Metrics: config.Metrics,
	}); err != nil {
		return nil, err
	}

	if o.diagnosis, err = stage.NewDiagnosisPool(stage.DiagnosisConfig{
		Workers:    config.DiagnosisWorkers,
		Poll:       config.DiagnosisPoll,
		Diagnosers: diagnosers,
		Work:       o.work,
		Results:    o.results,
		Clock:      o.clock,
		Logger:     o.logger,
		Metrics:    config.Metrics,
	}); err != nil {
		return nil, err
	}

	if o.allocator, err = stage.NewAllocator(stage.AllocatorConfig{
		Doctors:           o.doctors,
		Beds:              o.beds,
		AvailabilityCheck: config.Delays.AvailabilityCheck,
		Treatment:         config.Delays.Treatment,
		Source:            o.source,
		Discharge:         o.discharge,
		Checkpoint:        config.Checkpoint,
		Clock:             o.clock,
		Logger:            o.logger,
		Metrics:           config.Metrics,
	}); err != nil {
		return nil, err
	}

	if o.discharger, err = stage.NewDischarger(stage.DischargerConfig{
		Doctors:     o.doctors,
		Beds:        o.beds,
		Queue:       o.discharge,
		Stats:       o.stats,
		Delay:       config.Delays.Discharge,
		Source:      o.source,
		OnDischarge: config.OnDischarge,
		Clock:       o.clock,
		Logger:      o.logger,
		Metrics:     config.Metrics,
	}); err != nil {
		return nil, err
	}

	return o, nil
}

// RunID returns the identifier of the run.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Status returns the live counters of the run. It is safe to call while Run is executing.
func (o *Orchestrator) Status() Status {
	return Status{
		Snapshot:     o.stats.Snapshot(),
		DoctorsInUse: o.doctors.InUse(),
		BedsInUse:    o.beds.InUse(),
		InTreatment:  o.allocator.InTreatment(),
	}
}

// runState collects the patients that dropped out of a run.
type runState struct {
	mu       sync.Mutex
	lost     []Failure
	failures []Failure
}

func (r *runState) lose(id int, stageName string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lost = append(r.lost, Failure{PatientID: id, Stage: stageName, Error: err.Error()})
}

func (r *runState) fail(id int, err error) {
	step := "allocation"
	var ae *stage.AllocationError
	if errors.As(err, &ae) {
		step = ae.Step
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, Failure{PatientID: id, Stage: step, Error: err.Error()})
}

// Run executes the simulation once. Canceling ctx aborts registration and
// collection; allocation tasks already started and the discharge of their
// patients still complete before Run returns. The report is valid even when
// an error is returned: patients left on the diagnosis queue or whose
// outcome was never collected are listed in Lost with stage "canceled".
// Patients held by a diagnosis worker that had to be abandoned, or whose
// registration did not finish, are not listed.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	if !o.ran.CompareAndSwap(false, true) {
		return Report{}, errors.New("simulation: Run may only be called once")
	}

	startedAt := o.clock.Now()
	start := time.Now()
	o.logger.Info("Simulation started",
		zap.Int("patients", o.config.Patients),
		zap.Int("doctors", o.config.Doctors),
		zap.Int("beds", o.config.Beds),
		zap.Int("registration_workers", o.config.RegistrationWorkers),
		zap.Int("diagnosis_workers", o.config.DiagnosisWorkers),
		zap.Bool("priority_ordering", o.config.PriorityOrdering),
	)

	// Allocation, discharge and teardown must not be cut short by the caller.
	bg := context.WithoutCancel(ctx)

	o.diagnosis.Start(ctx)

	dischargeCtx, stopDischarge := context.WithCancel(bg)
	defer stopDischarge()
	dischargeDone := make(chan error, 1)
	go func() {
		dischargeDone <- o.discharger.Run(dischargeCtx)
	}()

	var (
		state  runState
		allocs sync.WaitGroup
	)
	patients := Intake(o.config.Patients, o.source, o.clock.Now())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return o.registrar.RegisterAll(gctx, patients)
	})
	g.Go(func() error {
		return o.collect(gctx, bg, &allocs, &state)
	})
	runErr := g.Wait()

	allocs.Wait()
	o.logger.Info("All allocation tasks completed")

	if err := o.discharge.Join(bg); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("drain discharge queue: %w", err))
	}
	o.logger.Info("Discharge queue drained", zap.Int64("processed", o.stats.Snapshot().TotalProcessed))

	stopDischarge()
	if err := <-dischargeDone; err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("discharge loop: %w", err))
	}

	shutdown := o.diagnosis.Shutdown(bg, o.config.JoinTimeout, o.config.KillGrace)
	o.drainLeftovers(ctx, &state)
	o.work.Close()
	o.results.Close()
	o.discharge.Close()

	state.mu.Lock()
	report := Report{
		RunID:              o.runID,
		StartedAt:          startedAt,
		Snapshot:           o.stats.Snapshot(),
		Lost:               state.lost,
		AllocationFailures: state.failures,
		ForcedTerminations: shutdown.Forced,
		AbandonedWorkers:   shutdown.Abandoned,
		Doctors:            o.doctors.Stats(),
		Beds:               o.beds.Stats(),
		PeakInTreatment:    o.allocator.PeakInTreatment(),
		Elapsed:            time.Since(start),
	}
	state.mu.Unlock()

	fields := []zap.Field{
		zap.Int64("registered", report.Snapshot.TotalRegistered),
		zap.Int64("processed", report.Snapshot.TotalProcessed),
		zap.Duration("avg_system_time", report.Snapshot.AverageSystemTime),
		zap.Int("lost", len(report.Lost)),
		zap.Int("allocation_failures", len(report.AllocationFailures)),
		zap.Int("forced_terminations", report.ForcedTerminations),
		zap.Duration("elapsed", report.Elapsed),
	}
	if runErr != nil {
		o.logger.Error("Simulation aborted", append(fields, zap.Error(runErr))...)
		return report, runErr
	}
	o.logger.Info("Simulation completed", fields...)
	return report, nil
}

// drainLeftovers records every patient still on the diagnosis or result
// queue as lost. Both are empty unless the run was cut short.
func (o *Orchestrator) drainLeftovers(ctx context.Context, state *runState) {
	cause := ctx.Err()
	if cause == nil {
		cause = errors.New("collection stopped")
	}

	for {
		msg, ok := o.work.TryGet()
		if !ok {
			break
		}
		o.work.TaskDone()
		if msg.Kind != ipc.Work {
			continue
		}
		o.leftover(state, msg.PatientID, cause)
	}

	for {
		out, ok := o.results.TryGet()
		if !ok {
			break
		}
		err := cause
		if !out.OK() {
			err = fmt.Errorf("%w: %w", cause, out.Err())
		}
		o.leftover(state, out.PatientID, err)
	}
}

func (o *Orchestrator) leftover(state *runState, id int, err error) {
	o.config.Metrics.PatientLost("canceled")
	state.lose(id, "canceled", err)
	o.logger.Warn("Patient left in pipeline", zap.Int("patient_id", id), zap.Error(err))
}

// collect waits for exactly one diagnosis outcome per patient and starts an
// allocation task for every diagnosed one. Allocation tasks run under allocCtx.
func (o *Orchestrator) collect(ctx, allocCtx context.Context, allocs *sync.WaitGroup, state *runState) error {
	total := o.config.Patients
	for collected := 1; collected <= total; collected++ {
		out, err := o.results.Get(ctx)
		if err != nil {
			return fmt.Errorf("collect diagnosis outcome %d/%d: %w", collected, total, err)
		}

		if !out.OK() {
			state.lose(out.PatientID, "diagnosis", fmt.Errorf("%w: %w", stage.ErrDiagnosisFailed, out.Err()))
			continue
		}
		p, err := out.Patient()
		if err != nil {
			o.config.Metrics.PatientLost("collection")
			state.lose(out.PatientID, "collection", err)
			continue
		}

		o.logger.Debug("Collected diagnosed patient",
			zap.Int("patient_id", p.ID),
			zap.Int("collected", collected),
			zap.Int("total", total),
		)

		allocs.Add(1)
		go func() {
			defer allocs.Done()
			if err := o.allocator.Allocate(allocCtx, p); err != nil {
				o.config.Metrics.PatientLost("allocation")
				state.fail(p.ID, err)
			}
		}()
	}

	o.logger.Info("All diagnosis outcomes collected", zap.Int("total", total))
	return nil
}
