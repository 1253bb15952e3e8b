package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/patientflow/internal/generator"
	pferrors "github.com/vnykmshr/patientflow/pkg/common/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("HOSPITAL_PATIENTS", "12")
	t.Setenv("HOSPITAL_DOCTORS", "2")
	t.Setenv("HOSPITAL_BEDS", "3")
	t.Setenv("HOSPITAL_DIAGNOSIS_WORKERS", "4")
	t.Setenv("HOSPITAL_TIME_SCALE", "0.5")
	t.Setenv("HOSPITAL_JOIN_TIMEOUT", "2s")
	t.Setenv("HOSPITAL_QUEUE_ORDERING", "priority")
	t.Setenv("HOSPITAL_SEED", "77")
	t.Setenv("HOSPITAL_LOG_LEVEL", "debug")
	t.Setenv("HOSPITAL_LOG_DEV", "true")
	t.Setenv("HOSPITAL_METRICS_ADDR", ":9090")
	t.Setenv("HOSPITAL_REDIS_ADDR", "localhost:6379")
	t.Setenv("HOSPITAL_REDIS_TTL", "1h")
	t.Setenv("HOSPITAL_PROGRESS_SPEC", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Patients)
	assert.Equal(t, 2, cfg.Doctors)
	assert.Equal(t, 3, cfg.Beds)
	assert.Equal(t, 4, cfg.DiagnosisWorkers)
	assert.Equal(t, 0.5, cfg.TimeScale)
	assert.Equal(t, 2*time.Second, cfg.JoinTimeout)
	assert.Equal(t, OrderingPriority, cfg.QueueOrdering)
	assert.Equal(t, int64(77), cfg.Seed)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.LogDevelopment)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "hospital:run", cfg.RedisKeyPrefix)
	assert.Equal(t, time.Hour, cfg.RedisTTL)
	assert.Empty(t, cfg.ProgressSpec)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"not a number", "HOSPITAL_PATIENTS", "many"},
		{"zero doctors", "HOSPITAL_DOCTORS", "0"},
		{"negative scale", "HOSPITAL_TIME_SCALE", "-1"},
		{"unknown ordering", "HOSPITAL_QUEUE_ORDERING", "random"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestValidateReturnsValidationError(t *testing.T) {
	cfg := Default()
	cfg.Beds = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, pferrors.IsValidationError(err))
	assert.Contains(t, err.Error(), "beds")
}

func TestSimulation(t *testing.T) {
	cfg := Default()
	cfg.TimeScale = 0.5
	cfg.QueueOrdering = OrderingPriority

	sim := cfg.Simulation()
	assert.Equal(t, cfg.Patients, sim.Patients)
	assert.Equal(t, cfg.RegistrationWorkers, sim.RegistrationWorkers)
	assert.True(t, sim.PriorityOrdering)
	assert.Equal(t, generator.DefaultDelays().Scale(0.5), sim.Delays)
	require.NoError(t, sim.Validate())
}
