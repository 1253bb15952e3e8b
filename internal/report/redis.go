package report

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/patientflow/internal/simulation"
	pferrors "github.com/vnykmshr/patientflow/pkg/common/errors"
)

// RedisConfig holds configuration for the Redis sink.
type RedisConfig struct {
	// Redis client to publish with.
	Redis redis.UniversalClient

	// KeyPrefix is prepended to every key written.
	KeyPrefix string

	// KeyTTL is how long a run hash lives (defaults to 24 hours).
	KeyTTL time.Duration

	// RedisTimeout bounds one publish (defaults to 2 seconds).
	RedisTimeout time.Duration
}

// RedisSink stores each report as a hash at <prefix>:<run id> and indexes
// runs by start time in the sorted set <prefix>:index.
type RedisSink struct {
	config RedisConfig
}

// NewRedisSink validates config and returns a sink.
func NewRedisSink(config RedisConfig) (*RedisSink, error) {
	if config.Redis == nil {
		return nil, pferrors.NewValidationError("report", "redis", nil, "redis client is required")
	}
	if config.KeyPrefix == "" {
		return nil, pferrors.NewValidationError("report", "key_prefix", config.KeyPrefix, "key prefix is required").
			WithHint("e.g. hospital:run")
	}
	if config.KeyTTL == 0 {
		config.KeyTTL = 24 * time.Hour
	}
	if config.RedisTimeout == 0 {
		config.RedisTimeout = 2 * time.Second
	}
	return &RedisSink{config: config}, nil
}

// RunKey returns the hash key for runID.
func (s *RedisSink) RunKey(runID string) string {
	return s.config.KeyPrefix + ":" + runID
}

// IndexKey returns the key of the run index.
func (s *RedisSink) IndexKey() string {
	return s.config.KeyPrefix + ":index"
}

// Publish implements Sink.
func (s *RedisSink) Publish(ctx context.Context, r simulation.Report) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.RedisTimeout)
	defer cancel()

	lost, err := json.Marshal(r.Lost)
	if err != nil {
		return pferrors.NewOperationError("report", "encode", err)
	}
	failures, err := json.Marshal(r.AllocationFailures)
	if err != nil {
		return pferrors.NewOperationError("report", "encode", err)
	}

	key := s.RunKey(r.RunID)
	pipe := s.config.Redis.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"run_id":                      r.RunID,
		"started_at":                  r.StartedAt.UTC().Format(time.RFC3339Nano),
		"total_registered":            r.Snapshot.TotalRegistered,
		"total_processed":             r.Snapshot.TotalProcessed,
		"average_system_time_seconds": r.Snapshot.AverageSystemTime.Seconds(),
		"lost":                        string(lost),
		"allocation_failures":         string(failures),
		"forced_terminations":         r.ForcedTerminations,
		"abandoned_workers":           r.AbandonedWorkers,
		"doctors_peak":                r.Doctors.Peak,
		"beds_peak":                   r.Beds.Peak,
		"peak_in_treatment":           r.PeakInTreatment,
		"elapsed_seconds":             r.Elapsed.Seconds(),
	})
	pipe.Expire(ctx, key, s.config.KeyTTL)
	pipe.ZAdd(ctx, s.IndexKey(), redis.Z{Score: float64(r.StartedAt.Unix()), Member: r.RunID})

	if _, err := pipe.Exec(ctx); err != nil {
		return pferrors.NewOperationError("report", "publish", err).WithContext(fmt.Sprintf("key=%s", key))
	}
	return nil
}
