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
	"github.com/vnykmshr/patientflow/internal/ipc"
	"github.com/vnykmshr/patientflow/internal/patient"
	"github.com/vnykmshr/patientflow/pkg/common/validation"
	"github.com/vnykmshr/patientflow/pkg/metrics"
	"github.com/vnykmshr/patientflow/pkg/queue"
)

// Diagnoser produces the diagnosis for one patient.
type Diagnoser interface {
	Diagnose(ctx context.Context, p *patient.Patient) (patient.Diagnosis, error)
}

// DiagnoserFunc adapts a function to the Diagnoser interface.
type DiagnoserFunc func(ctx context.Context, p *patient.Patient) (patient.Diagnosis, error)

// Diagnose implements Diagnoser.
func (f DiagnoserFunc) Diagnose(ctx context.Context, p *patient.Patient) (patient.Diagnosis, error) {
	return f(ctx, p)
}

// DiagnoserFactory builds the Diagnoser owned by one worker.
type DiagnoserFactory func(workerID int) Diagnoser

// SimulatedDiagnoser sleeps for a random time and returns a random diagnosis.
type SimulatedDiagnoser struct {
	Source generator.Source
	Delay  generator.Range
}

// Diagnose implements Diagnoser.
func (d *SimulatedDiagnoser) Diagnose(ctx context.Context, _ *patient.Patient) (patient.Diagnosis, error) {
	elapsed := d.Source.Between(d.Delay)
	if err := generator.Sleep(ctx, elapsed); err != nil {
		return patient.Diagnosis{}, err
	}
	return d.Source.Diagnosis(elapsed), nil
}

// SimulatedDiagnosers returns a factory giving every worker its own generator
// forked from source.
func SimulatedDiagnosers(source *generator.Random, delay generator.Range) DiagnoserFactory {
	return func(int) Diagnoser {
		return &SimulatedDiagnoser{Source: source.Fork(), Delay: delay}
	}
}

// DefaultDiagnosisPoll is the bounded wait used when DiagnosisConfig.Poll is zero.
const DefaultDiagnosisPoll = time.Second

// DiagnosisConfig holds the collaborators of the diagnosis stage.
type DiagnosisConfig struct {
	// Workers is the number of isolated workers. Must be positive.
	Workers int

	// Poll bounds each wait on the work queue so workers can notice cancellation.
	Poll time.Duration

	Diagnosers DiagnoserFactory
	Work       *queue.Queue[ipc.Message]
	Results    *queue.Queue[ipc.Outcome]
	Clock      Clock
	Logger     *zap.Logger
	Metrics    *metrics.Registry
}

// ShutdownResult describes how the diagnosis workers ended.
type ShutdownResult struct {
	// Stopped workers exited after reading their stop message.
	Stopped int

	// Forced workers were still running at the join deadline and had their
	// context canceled.
	Forced int

	// Abandoned workers did not exit within the kill grace period either.
	Abandoned int
}

// DiagnosisPool runs the diagnosis workers.
type DiagnosisPool struct {
	config DiagnosisConfig
	logger *zap.Logger
	clock  Clock

	startOnce sync.Once
	workers   []*diagnosisWorker
	wg        sync.WaitGroup
}

type diagnosisWorker struct {
	id        int
	diagnoser Diagnoser
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewDiagnosisPool validates config and returns a pool that has not started yet.
func NewDiagnosisPool(config DiagnosisConfig) (*DiagnosisPool, error) {
	if err := validation.ValidatePositive("diagnosis", "workers", config.Workers); err != nil {
		return nil, err
	}
	if config.Poll <= 0 {
		config.Poll = DefaultDiagnosisPoll
	}
	if config.Diagnosers == nil || config.Work == nil || config.Results == nil {
		return nil, errors.New("diagnosis: diagnosers, work and results are required")
	}

	return &DiagnosisPool{
		config: config,
		logger: loggerOrNop(config.Logger, "diagnosis"),
		clock:  clockOrDefault(config.Clock),
	}, nil
}

// Size returns the number of workers.
func (p *DiagnosisPool) Size() int {
	return p.config.Workers
}

// Start launches the workers. Canceling ctx stops all of them. Start is a no-op
// after the first call.
func (p *DiagnosisPool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.logger.Info("Starting diagnosis workers", zap.Int("workers", p.config.Workers))
		for i := 0; i < p.config.Workers; i++ {
			wctx, cancel := context.WithCancel(ctx)
			w := &diagnosisWorker{
				id:        i,
				diagnoser: p.config.Diagnosers(i),
				cancel:    cancel,
				done:      make(chan struct{}),
			}
			p.workers = append(p.workers, w)

			p.wg.Add(1)
			go p.run(wctx, w)
		}
	})
}

// Wait blocks until every worker goroutine has returned.
func (p *DiagnosisPool) Wait() {
	p.wg.Wait()
}

// Shutdown puts one stop message per worker on the work queue and waits up to
// joinTimeout, shared by all workers, for them to exit. Workers still running
// then have their context canceled and get killGrace to return.
func (p *DiagnosisPool) Shutdown(ctx context.Context, joinTimeout, killGrace time.Duration) ShutdownResult {
	var result ShutdownResult

	for range p.workers {
		if err := p.config.Work.Put(ctx, ipc.NewStop()); err != nil {
			p.logger.Warn("Failed to send stop message", zap.Error(err))
		}
	}

	deadline := time.NewTimer(joinTimeout)
	defer deadline.Stop()

	var stuck []*diagnosisWorker
	expired := false
	for _, w := range p.workers {
		if !expired {
			select {
			case <-w.done:
				result.Stopped++
				continue
			case <-deadline.C:
				expired = true
			}
		}
		select {
		case <-w.done:
			result.Stopped++
		default:
			stuck = append(stuck, w)
		}
	}

	for _, w := range stuck {
		p.logger.Warn("Diagnosis worker did not stop, forcing termination", zap.Int("worker", w.id))
		w.cancel()
		p.config.Metrics.WorkerForced()
		result.Forced++
	}

	if len(stuck) > 0 {
		grace := time.NewTimer(killGrace)
		defer grace.Stop()
		expired = false
		for _, w := range stuck {
			if !expired {
				select {
				case <-w.done:
					continue
				case <-grace.C:
					expired = true
				}
			}
			select {
			case <-w.done:
			default:
				p.logger.Error("Diagnosis worker abandoned", zap.Int("worker", w.id))
				result.Abandoned++
			}
		}
	}

	for _, w := range p.workers {
		w.cancel()
	}

	p.logger.Info("Diagnosis workers shut down",
		zap.Int("stopped", result.Stopped),
		zap.Int("forced", result.Forced),
		zap.Int("abandoned", result.Abandoned),
	)
	return result
}

func (p *DiagnosisPool) run(ctx context.Context, w *diagnosisWorker) {
	defer p.wg.Done()
	defer close(w.done)

	logger := p.logger.With(zap.Int("worker", w.id))
	logger.Debug("Diagnosis worker started")

	for {
		msg, err := p.config.Work.GetTimeout(ctx, p.config.Poll)
		if errors.Is(err, queue.ErrTimeout) {
			continue
		}
		if err != nil {
			logger.Debug("Diagnosis worker exiting", zap.Error(err))
			return
		}

		if msg.Kind == ipc.Stop {
			p.config.Work.TaskDone()
			logger.Debug("Diagnosis worker received stop message")
			return
		}

		outcome := p.process(ctx, w, msg)
		p.config.Work.TaskDone()

		if !outcome.OK() {
			p.config.Metrics.PatientLost("diagnosis")
			logger.Warn("Patient lost in diagnosis",
				zap.Int("patient_id", outcome.PatientID),
				zap.String("error", outcome.Error),
			)
		}
		if err := p.config.Results.Put(ctx, outcome); err != nil {
			logger.Error("Failed to publish diagnosis outcome",
				zap.Int("patient_id", outcome.PatientID),
				zap.Error(err),
			)
		}
	}
}

// process turns one work message into exactly one outcome. Failures of any
// kind, panics included, become a lost outcome.
func (p *DiagnosisPool) process(ctx context.Context, w *diagnosisWorker, msg ipc.Message) (outcome ipc.Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			outcome = ipc.Lost(msg.PatientID, fmt.Errorf("diagnosis panicked: %v\nStack trace:\n%s", r, debug.Stack()))
		}
	}()

	rec, err := ipc.Decode(msg.Payload)
	if err != nil {
		return ipc.Lost(msg.PatientID, err)
	}
	if err := rec.Advance(patient.WaitingDiagnosis, p.clock.Now()); err != nil {
		return ipc.Lost(rec.ID, err)
	}

	diagnosis, err := w.diagnoser.Diagnose(ctx, rec)
	if err != nil {
		return ipc.Lost(rec.ID, err)
	}
	rec.Diagnosis = &diagnosis
	if err := rec.Advance(patient.Diagnosed, p.clock.Now()); err != nil {
		return ipc.Lost(rec.ID, err)
	}

	out, err := ipc.Diagnosed(rec)
	if err != nil {
		return ipc.Lost(rec.ID, err)
	}

	p.config.Metrics.ObserveStage("diagnosis", time.Since(start))
	p.logger.Debug("Diagnosis completed",
		zap.Int("worker", w.id),
		zap.Int("patient_id", rec.ID),
		zap.String("condition", diagnosis.Condition),
		zap.Int("severity", diagnosis.Severity),
	)
	return out
}
