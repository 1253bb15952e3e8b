// Package config loads the simulator configuration from HOSPITAL_* environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/vnykmshr/patientflow/internal/generator"
	"github.com/vnykmshr/patientflow/internal/simulation"
	"github.com/vnykmshr/patientflow/pkg/common/validation"
)

// Prefix is prepended to every environment variable name.
const Prefix = "HOSPITAL"

// Queue orderings accepted by QUEUE_ORDERING.
const (
	OrderingFIFO     = "fifo"
	OrderingPriority = "priority"
)

// Config holds all simulator configuration.
type Config struct {
	Patients            int `envconfig:"PATIENTS" default:"30"`
	Doctors             int `envconfig:"DOCTORS" default:"5"`
	Beds                int `envconfig:"BEDS" default:"10"`
	RegistrationWorkers int `envconfig:"REGISTRATION_WORKERS" default:"5"`
	DiagnosisWorkers    int `envconfig:"DIAGNOSIS_WORKERS" default:"0"`

	TimeScale     float64       `envconfig:"TIME_SCALE" default:"1.0"`
	DiagnosisPoll time.Duration `envconfig:"DIAGNOSIS_POLL" default:"1s"`
	JoinTimeout   time.Duration `envconfig:"JOIN_TIMEOUT" default:"5s"`
	KillGrace     time.Duration `envconfig:"KILL_GRACE" default:"500ms"`
	QueueOrdering string        `envconfig:"QUEUE_ORDERING" default:"fifo"`
	Seed          int64         `envconfig:"SEED" default:"0"`

	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogDevelopment bool   `envconfig:"LOG_DEV" default:"false"`

	// MetricsAddr is the listen address of the metrics endpoint. Empty disables it.
	MetricsAddr string `envconfig:"METRICS_ADDR"`

	// RedisAddr is the report sink server. Empty disables the Redis sink.
	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	RedisKeyPrefix string        `envconfig:"REDIS_KEY_PREFIX" default:"hospital:run"`
	RedisTTL       time.Duration `envconfig:"REDIS_TTL" default:"24h"`

	// ProgressSpec is a cron schedule for progress reports. Empty disables them.
	ProgressSpec string `envconfig:"PROGRESS_SPEC" default:"@every 1s"`
}

// Load loads configuration from environment variables and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Patients:            simulation.DefaultPatients,
		Doctors:             simulation.DefaultDoctors,
		Beds:                simulation.DefaultBeds,
		RegistrationWorkers: simulation.DefaultRegistrationWorkers,
		TimeScale:           1.0,
		DiagnosisPoll:       time.Second,
		JoinTimeout:         simulation.DefaultJoinTimeout,
		KillGrace:           simulation.DefaultKillGrace,
		QueueOrdering:       OrderingFIFO,
		LogLevel:            "info",
		RedisKeyPrefix:      "hospital:run",
		RedisTTL:            24 * time.Hour,
		ProgressSpec:        "@every 1s",
	}
}

// Validate checks every field and returns the first problem found.
func (c *Config) Validate() error {
	checks := []error{
		validation.ValidateNonNegativeInt("config", "patients", c.Patients),
		validation.ValidatePositive("config", "doctors", c.Doctors),
		validation.ValidatePositive("config", "beds", c.Beds),
		validation.ValidatePositive("config", "registration_workers", c.RegistrationWorkers),
		validation.ValidateNonNegativeInt("config", "diagnosis_workers", c.DiagnosisWorkers),
		validation.ValidateNonNegative("config", "time_scale", c.TimeScale),
		validation.ValidateNonNegativeDuration("config", "diagnosis_poll", c.DiagnosisPoll),
		validation.ValidateNonNegativeDuration("config", "join_timeout", c.JoinTimeout),
		validation.ValidateNonNegativeDuration("config", "kill_grace", c.KillGrace),
		validation.ValidateNonNegativeDuration("config", "redis_ttl", c.RedisTTL),
		validation.ValidateOneOf("config", "queue_ordering", c.QueueOrdering, OrderingFIFO, OrderingPriority),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}

// Simulation converts the configuration into simulation parameters. Callers
// add the logger, metrics and optional hooks.
func (c *Config) Simulation() simulation.Config {
	return simulation.Config{
		Patients:            c.Patients,
		Doctors:             c.Doctors,
		Beds:                c.Beds,
		RegistrationWorkers: c.RegistrationWorkers,
		DiagnosisWorkers:    c.DiagnosisWorkers,
		Delays:              generator.DefaultDelays().Scale(c.TimeScale),
		DiagnosisPoll:       c.DiagnosisPoll,
		JoinTimeout:         c.JoinTimeout,
		KillGrace:           c.KillGrace,
		PriorityOrdering:    c.QueueOrdering == OrderingPriority,
		Seed:                c.Seed,
	}
}
