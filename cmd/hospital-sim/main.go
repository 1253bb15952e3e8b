// Command hospital-sim runs one patient-flow simulation configured from
// HOSPITAL_* environment variables and publishes its final report.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vnykmshr/patientflow/internal/config"
	"github.com/vnykmshr/patientflow/internal/logging"
	"github.com/vnykmshr/patientflow/internal/progress"
	"github.com/vnykmshr/patientflow/internal/report"
	"github.com/vnykmshr/patientflow/internal/simulation"
	"github.com/vnykmshr/patientflow/pkg/metrics"
)

const shutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		// No logger yet.
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		return 2
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		return 2
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	simConfig := cfg.Simulation()
	simConfig.Logger = logger
	simConfig.Metrics = metrics.NewRegistry(registry)

	orch, err := simulation.New(simConfig)
	if err != nil {
		logger.Error("Invalid simulation configuration", zap.Error(err))
		return 2
	}

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, registry, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Metrics server shutdown failed", zap.Error(err))
			}
		}()
	}

	if cfg.ProgressSpec != "" {
		reporter, err := progress.New(cfg.ProgressSpec, orch.Status, logger)
		if err != nil {
			logger.Error("Invalid progress schedule", zap.Error(err))
			return 2
		}
		reporter.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = reporter.Stop(stopCtx)
		}()
	}

	sinks := report.MultiSink{report.NewLogSink(logger)}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()

		sink, err := report.NewRedisSink(report.RedisConfig{
			Redis:     client,
			KeyPrefix: cfg.RedisKeyPrefix,
			KeyTTL:    cfg.RedisTTL,
		})
		if err != nil {
			logger.Error("Invalid redis sink configuration", zap.Error(err))
			return 2
		}
		sinks = append(sinks, sink)
	}

	logger.Info("Starting hospital simulation",
		zap.String("run_id", orch.RunID()),
		zap.Int("patients", cfg.Patients),
		zap.Int("doctors", cfg.Doctors),
		zap.Int("beds", cfg.Beds),
		zap.String("queue_ordering", cfg.QueueOrdering),
	)

	result, runErr := orch.Run(ctx)
	if runErr != nil {
		logger.Error("Simulation did not complete", zap.Error(runErr))
	}

	publishCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sinks.Publish(publishCtx, result); err != nil {
		logger.Error("Failed to publish report", zap.Error(err))
		return 1
	}
	if runErr != nil {
		return 1
	}
	return 0
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Metrics server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
