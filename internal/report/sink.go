// Package report publishes the final report of a simulation run.
package report

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/vnykmshr/patientflow/internal/simulation"
)

// Sink receives the report of a finished run.
type Sink interface {
	Publish(ctx context.Context, r simulation.Report) error
}

// MultiSink publishes to every sink in order and joins their errors.
type MultiSink []Sink

// Publish implements Sink. A failing sink does not stop the others.
func (m MultiSink) Publish(ctx context.Context, r simulation.Report) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes the report as a structured log entry.
type LogSink struct {
	Logger *zap.Logger
}

// NewLogSink returns a sink logging through logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{Logger: logger}
}

// Publish implements Sink.
func (s *LogSink) Publish(_ context.Context, r simulation.Report) error {
	fields := []zap.Field{
		zap.String("run_id", r.RunID),
		zap.Int64("total_registered", r.Snapshot.TotalRegistered),
		zap.Int64("total_processed", r.Snapshot.TotalProcessed),
		zap.Duration("average_system_time", r.Snapshot.AverageSystemTime),
		zap.Int("lost", len(r.Lost)),
		zap.Int("allocation_failures", len(r.AllocationFailures)),
		zap.Int("forced_terminations", r.ForcedTerminations),
		zap.Int("doctors_peak", r.Doctors.Peak),
		zap.Int("beds_peak", r.Beds.Peak),
		zap.Duration("elapsed", r.Elapsed),
	}
	if r.Snapshot.TotalProcessed == 0 {
		fields = append(fields, zap.String("note", "no patients discharged, average system time unavailable"))
	}
	s.Logger.Info("Final hospital statistics", fields...)

	for _, f := range r.Lost {
		s.Logger.Warn("Patient lost", zap.Int("patient_id", f.PatientID), zap.String("stage", f.Stage), zap.String("error", f.Error))
	}
	for _, f := range r.AllocationFailures {
		s.Logger.Warn("Allocation failed", zap.Int("patient_id", f.PatientID), zap.String("step", f.Stage), zap.String("error", f.Error))
	}
	return nil
}
