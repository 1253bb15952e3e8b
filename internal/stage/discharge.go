package stage

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/vnykmshr/patientflow/internal/generator"
	"github.com/vnykmshr/patientflow/internal/patient"
	"github.com/vnykmshr/patientflow/internal/stats"
	"github.com/vnykmshr/patientflow/pkg/metrics"
	"github.com/vnykmshr/patientflow/pkg/queue"
	"github.com/vnykmshr/patientflow/pkg/resource"
)

// DischargerConfig holds the collaborators of the discharge stage.
type DischargerConfig struct {
	Doctors resource.Pool
	Beds    resource.Pool
	Queue   *queue.Queue[*patient.Patient]
	Stats   *stats.Aggregator

	// Delay is the simulated discharge paperwork time.
	Delay generator.Range

	Source generator.Source

	// OnDischarge, if set, receives a copy of every discharged record.
	OnDischarge func(p *patient.Patient)

	Clock   Clock
	Logger  *zap.Logger
	Metrics *metrics.Registry
}

// Discharger is the single consumer of the discharge queue.
type Discharger struct {
	config DischargerConfig
	logger *zap.Logger
	clock  Clock
}

// NewDischarger validates config and returns a Discharger.
func NewDischarger(config DischargerConfig) (*Discharger, error) {
	if config.Doctors == nil || config.Beds == nil || config.Queue == nil || config.Stats == nil || config.Source == nil {
		return nil, errors.New("discharge: doctors, beds, queue, stats and source are required")
	}

	return &Discharger{
		config: config,
		logger: loggerOrNop(config.Logger, "discharge"),
		clock:  clockOrDefault(config.Clock),
	}, nil
}

// Run consumes the discharge queue until ctx is canceled or the queue is
// closed and empty. A record already taken from the queue is always finished
// before Run honors cancellation. Cancellation is not an error: Run returns nil.
func (d *Discharger) Run(ctx context.Context) error {
	d.logger.Info("Discharge loop started")
	for {
		if err := ctx.Err(); err != nil {
			d.logger.Info("Discharge loop stopped", zap.String("reason", err.Error()))
			return nil
		}

		p, err := d.config.Queue.Get(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, queue.ErrClosed) {
				d.logger.Info("Discharge loop stopped", zap.String("reason", err.Error()))
				return nil
			}
			return err
		}

		if err := d.Discharge(context.WithoutCancel(ctx), p); err != nil {
			d.logger.Error("Discharge failed", zap.Int("patient_id", p.ID), zap.Error(err))
		}
		d.config.Queue.TaskDone()
	}
}

// Discharge releases the resources recorded on p, marks it discharged and
// records its system time.
func (d *Discharger) Discharge(ctx context.Context, p *patient.Patient) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("discharge panicked: %v\nStack trace:\n%s", r, debug.Stack())
		}
	}()

	start := time.Now()
	if err := generator.Sleep(ctx, d.config.Source.Between(d.config.Delay)); err != nil {
		return err
	}

	if p.Assignment.Doctor != nil {
		d.config.Doctors.Release()
	}
	if p.Assignment.Bed != nil {
		d.config.Beds.Release()
	}

	now := d.clock.Now()
	if err := p.Advance(patient.Discharged, now); err != nil {
		return err
	}

	systemTime := p.SystemTime(now)
	snap := d.config.Stats.RecordDischarge(systemTime)
	d.config.Metrics.PatientDischarged(systemTime)
	d.config.Metrics.ObserveStage("discharge", time.Since(start))

	d.logger.Info("Patient discharged",
		zap.Int("patient_id", p.ID),
		zap.Duration("system_time", systemTime),
		zap.Int64("processed", snap.TotalProcessed),
		zap.Int64("registered", snap.TotalRegistered),
		zap.Duration("avg_system_time", snap.AverageSystemTime),
	)

	if d.config.OnDischarge != nil {
		d.config.OnDischarge(p.Clone())
	}
	return nil
}
