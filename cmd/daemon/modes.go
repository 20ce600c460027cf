// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/ManuGH/hdhr-xmltv/internal/config"
	"github.com/ManuGH/hdhr-xmltv/internal/daemon"
	"github.com/ManuGH/hdhr-xmltv/internal/health"
	"github.com/ManuGH/hdhr-xmltv/internal/jobs"
	xglog "github.com/ManuGH/hdhr-xmltv/internal/log"
	"github.com/ManuGH/hdhr-xmltv/internal/scheduler"
	"github.com/ManuGH/hdhr-xmltv/internal/state"
	"github.com/ManuGH/hdhr-xmltv/internal/version"
)

// openStore opens the run-outcome database. With readOnly set the database
// is neither created nor migrated, and a missing file yields an empty
// in-memory store.
func openStore(path string, readOnly bool) (state.Store, error) {
	if readOnly {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return state.NewMemory(), nil
		}
		s, err := state.OpenReadOnly(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := state.Open(path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newEvaluator(cfg config.AppConfig, sched *scheduler.Scheduler, store state.Store) *health.Evaluator {
	return &health.Evaluator{
		ArtifactPath: cfg.OutputPath(),
		MaxAge:       cfg.HealthMaxAge(sched.Interval(time.Now())),
		Store:        store,
		Version:      version.String(),
	}
}

func runOnce(ctx context.Context, cfg config.AppConfig) int {
	logger := xglog.WithComponent("daemon")

	store, err := openStore(cfg.StatePath(), false)
	if err != nil {
		logger.Warn().Err(err).Str(xglog.FieldEvent, "state.unavailable").Str(xglog.FieldPath, cfg.StatePath()).Msg("run state unavailable, not recording outcome")
		store = state.NewMemory()
	}
	defer func() { _ = store.Close() }()

	runner, err := jobs.NewRunner(cfg, store)
	if err != nil {
		logger.Error().Err(err).Str(xglog.FieldEvent, "pipeline.build_failed").Msg("failed to build pipeline")
		return 1
	}
	if outcome := runner.Run(ctx); !outcome.Success {
		return 1
	}
	return 0
}

func runHealth(ctx context.Context, cfg config.AppConfig, stdout io.Writer) int {
	logger := xglog.WithComponent("health")

	sched, err := scheduler.New(cfg.Schedule.Cron, cfg.Schedule.Timezone)
	if err != nil {
		logger.Error().Err(err).Str(xglog.FieldEvent, "schedule.invalid").Msg("invalid schedule")
		return 1
	}
	store, err := openStore(cfg.StatePath(), true)
	if err != nil {
		logger.Warn().Err(err).Str(xglog.FieldEvent, "state.unavailable").Msg("run state unavailable, skipping last-run check")
		store = nil
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}

	report := newEvaluator(cfg, sched, store).Evaluate(ctx)
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.Error().Err(err).Str(xglog.FieldEvent, "health.encode_error").Msg("failed to write health report")
		return 1
	}
	if !report.Healthy() {
		return 1
	}
	return 0
}

func runScheduled(ctx context.Context, cfg config.AppConfig) int {
	logger := xglog.WithComponent("daemon")

	sched, err := scheduler.New(cfg.Schedule.Cron, cfg.Schedule.Timezone)
	if err != nil {
		logger.Error().Err(err).Str(xglog.FieldEvent, "schedule.invalid").Msg("invalid schedule")
		return 1
	}
	sched.InitialRun = cfg.Schedule.InitialRun

	store, err := openStore(cfg.StatePath(), false)
	if err != nil {
		logger.Warn().Err(err).Str(xglog.FieldEvent, "state.unavailable").Str(xglog.FieldPath, cfg.StatePath()).Msg("run state unavailable, keeping outcomes in memory")
		store = state.NewMemory()
	}

	runner, err := jobs.NewRunner(cfg, store)
	if err != nil {
		_ = store.Close()
		logger.Error().Err(err).Str(xglog.FieldEvent, "pipeline.build_failed").Msg("failed to build pipeline")
		return 1
	}

	deps := daemon.Deps{
		Logger:     logger,
		Scheduler:  sched,
		Job:        func(ctx context.Context) { runner.Run(ctx) },
		StatusAddr: cfg.Health.StatusAddr,
	}
	if deps.StatusAddr != "" {
		deps.StatusHandler = daemon.NewRouter(newEvaluator(cfg, sched, store))
	}
	mgr, err := daemon.NewManager(deps)
	if err != nil {
		_ = store.Close()
		logger.Error().Err(err).Str(xglog.FieldEvent, "daemon.init_failed").Msg("failed to create daemon manager")
		return 1
	}
	mgr.RegisterShutdownHook("state_store", func(context.Context) error { return store.Close() })

	if err := mgr.Start(ctx); err != nil {
		logger.Error().Err(err).Str(xglog.FieldEvent, "daemon.failed").Msg("daemon stopped with error")
		return 1
	}
	return 0
}
