// Package progress periodically logs the live counters of a running simulation
// on a cron schedule.
package progress

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/vnykmshr/patientflow/internal/simulation"
)

// StatusFunc returns the current status of the run being observed.
type StatusFunc func() simulation.Status

// Reporter logs a status line on every tick of its schedule.
type Reporter struct {
	cron   *cron.Cron
	status StatusFunc
	logger *zap.Logger
	ticks  atomic.Int64
}

// parser accepts optional seconds and descriptors such as "@every 1s".
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New creates a reporter for spec. It does not start until Start is called.
func New(spec string, status StatusFunc, logger *zap.Logger) (*Reporter, error) {
	if status == nil {
		return nil, errors.New("progress: status function is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid progress schedule '%s': %w", spec, err)
	}

	r := &Reporter{
		status: status,
		logger: logger.Named("progress"),
	}
	cronLogger := cronLogger{r.logger.Sugar()}
	r.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	r.cron.Schedule(schedule, cron.FuncJob(r.Report))
	return r, nil
}

// Start begins reporting in the background.
func (r *Reporter) Start() {
	r.cron.Start()
}

// Stop ends the schedule and waits for a report in progress, or for ctx.
func (r *Reporter) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ticks returns the number of reports written so far.
func (r *Reporter) Ticks() int64 {
	return r.ticks.Load()
}

// Report logs one status line immediately.
func (r *Reporter) Report() {
	s := r.status()
	r.ticks.Add(1)
	r.logger.Info("Simulation progress",
		zap.Int64("registered", s.Snapshot.TotalRegistered),
		zap.Int64("processed", s.Snapshot.TotalProcessed),
		zap.Duration("avg_system_time", s.Snapshot.AverageSystemTime),
		zap.Int("doctors_in_use", s.DoctorsInUse),
		zap.Int("beds_in_use", s.BedsInUse),
		zap.Int("in_treatment", s.InTreatment),
	)
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
