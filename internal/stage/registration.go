package stage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vnykmshr/patientflow/internal/generator"
	"github.com/vnykmshr/patientflow/internal/ipc"
	"github.com/vnykmshr/patientflow/internal/patient"
	"github.com/vnykmshr/patientflow/internal/stats"
	"github.com/vnykmshr/patientflow/pkg/common/validation"
	"github.com/vnykmshr/patientflow/pkg/metrics"
	"github.com/vnykmshr/patientflow/pkg/queue"
	"github.com/vnykmshr/patientflow/pkg/workerpool"
)

// RegistrarConfig holds the collaborators of the registration stage.
type RegistrarConfig struct {
	// Workers bounds how many patients are registered at once. Must be positive.
	Workers int

	// Delay is the simulated registration time.
	Delay generator.Range

	Source  generator.Source
	Stats   *stats.Aggregator
	Queue   *queue.Queue[ipc.Message]
	Clock   Clock
	Logger  *zap.Logger
	Metrics *metrics.Registry
}

// Registrar stamps patients and hands them to diagnosis.
type Registrar struct {
	config RegistrarConfig
	logger *zap.Logger
	clock  Clock

	// mu guards the status change, counter and priority assignment.
	mu sync.Mutex
}

// NewRegistrar validates config and returns a Registrar.
func NewRegistrar(config RegistrarConfig) (*Registrar, error) {
	if err := validation.ValidatePositive("registration", "workers", config.Workers); err != nil {
		return nil, err
	}
	if config.Source == nil || config.Stats == nil || config.Queue == nil {
		return nil, errors.New("registration: source, stats and queue are required")
	}

	return &Registrar{
		config: config,
		logger: loggerOrNop(config.Logger, "registration"),
		clock:  clockOrDefault(config.Clock),
	}, nil
}

// Register simulates the registration delay, assigns a priority and puts the
// patient on the diagnosis queue. The record belongs to the queue afterwards.
func (r *Registrar) Register(ctx context.Context, p *patient.Patient) error {
	start := time.Now()
	delay := r.config.Source.Between(r.config.Delay)
	if err := generator.Sleep(ctx, delay); err != nil {
		return fmt.Errorf("register patient %d: %w", p.ID, err)
	}

	r.mu.Lock()
	now := r.clock.Now()
	if err := p.Advance(patient.Registered, now); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("register patient %d: %w", p.ID, err)
	}
	p.Priority = r.config.Source.Priority()
	r.config.Stats.IncRegistered()
	r.mu.Unlock()

	msg, err := ipc.NewWork(p)
	if err != nil {
		return fmt.Errorf("register patient %d: %w", p.ID, err)
	}
	if err := r.config.Queue.Put(ctx, msg); err != nil {
		return fmt.Errorf("register patient %d: enqueue for diagnosis: %w", p.ID, err)
	}

	r.config.Metrics.PatientRegistered(p.Priority.String())
	r.config.Metrics.ObserveStage("registration", time.Since(start))
	r.logger.Debug("Patient registered",
		zap.Int("patient_id", p.ID),
		zap.Stringer("priority", p.Priority),
		zap.Duration("took", delay),
	)
	return nil
}

// RegisterAll registers every patient on a pool of config.Workers workers and
// returns once all of them have been handled. Individual failures are joined
// into the returned error.
func (r *Registrar) RegisterAll(ctx context.Context, patients []*patient.Patient) error {
	var (
		mu   sync.Mutex
		errs []error
	)

	pool := workerpool.NewWithConfig(workerpool.Config{
		Name:        "registration",
		WorkerCount: r.config.Workers,
		Metrics:     r.config.Metrics,
		OnTaskComplete: func(_ int, result workerpool.Result) {
			if result.Error == nil {
				return
			}
			mu.Lock()
			errs = append(errs, result.Error)
			mu.Unlock()
		},
	})

	r.logger.Info("Registering patients",
		zap.Int("count", len(patients)),
		zap.Int("workers", r.config.Workers),
	)

	for _, p := range patients {
		p := p
		task := workerpool.TaskFunc(func(ctx context.Context) error {
			return r.Register(ctx, p)
		})
		if err := pool.SubmitWithContext(ctx, task); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("register patient %d: %w", p.ID, err))
			mu.Unlock()
			break
		}
	}

	<-pool.Shutdown()

	if len(errs) > 0 {
		r.logger.Error("Registration incomplete", zap.Int("failed", len(errs)))
		return errors.Join(errs...)
	}
	r.logger.Info("All patients registered", zap.Int("count", len(patients)))
	return nil
}
