package simulation

import (
	"time"

	"go.uber.org/zap"

	"github.com/vnykmshr/patientflow/internal/generator"
	"github.com/vnykmshr/patientflow/internal/patient"
	"github.com/vnykmshr/patientflow/internal/stage"
	"github.com/vnykmshr/patientflow/pkg/common/validation"
	"github.com/vnykmshr/patientflow/pkg/metrics"
)

// Default run parameters.
const (
	DefaultPatients            = 30
	DefaultDoctors             = 5
	DefaultBeds                = 10
	DefaultRegistrationWorkers = 5
	DefaultJoinTimeout         = 5 * time.Second
	DefaultKillGrace           = 500 * time.Millisecond
)

// Config holds the parameters and collaborators of one simulation run.
type Config struct {
	Patients            int
	Doctors             int
	Beds                int
	RegistrationWorkers int

	// DiagnosisWorkers defaults to stage.DefaultDiagnosisWorkers when zero.
	DiagnosisWorkers int

	Delays        generator.Delays
	DiagnosisPoll time.Duration

	// JoinTimeout is shared by all diagnosis workers after their stop messages
	// are sent. KillGrace bounds the wait after forced termination.
	JoinTimeout time.Duration
	KillGrace   time.Duration

	// PriorityOrdering serves the diagnosis queue by triage level instead of FIFO.
	PriorityOrdering bool

	// Seed seeds the content generator. Zero uses the current time.
	Seed int64

	// Diagnosers overrides the simulated diagnosis. Optional.
	Diagnosers stage.DiagnoserFactory

	// Checkpoint is called at every allocation checkpoint. Optional.
	Checkpoint stage.CheckpointFunc

	// OnDischarge observes every discharged record. Optional.
	OnDischarge func(p *patient.Patient)

	Clock   stage.Clock
	Logger  *zap.Logger
	Metrics *metrics.Registry
}

// DefaultConfig returns the default run at real-time scale.
func DefaultConfig() Config {
	return Config{
		Patients:            DefaultPatients,
		Doctors:             DefaultDoctors,
		Beds:                DefaultBeds,
		RegistrationWorkers: DefaultRegistrationWorkers,
		Delays:              generator.DefaultDelays(),
		DiagnosisPoll:       stage.DefaultDiagnosisPoll,
		JoinTimeout:         DefaultJoinTimeout,
		KillGrace:           DefaultKillGrace,
	}
}

// Validate checks the numeric parameters.
func (c Config) Validate() error {
	checks := []error{
		validation.ValidateNonNegativeInt("simulation", "patients", c.Patients),
		validation.ValidatePositive("simulation", "doctors", c.Doctors),
		validation.ValidatePositive("simulation", "beds", c.Beds),
		validation.ValidatePositive("simulation", "registration_workers", c.RegistrationWorkers),
		validation.ValidateNonNegativeInt("simulation", "diagnosis_workers", c.DiagnosisWorkers),
		validation.ValidateNonNegativeDuration("simulation", "diagnosis_poll", c.DiagnosisPoll),
		validation.ValidateNonNegativeDuration("simulation", "join_timeout", c.JoinTimeout),
		validation.ValidateNonNegativeDuration("simulation", "kill_grace", c.KillGrace),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}
