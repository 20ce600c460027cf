// SPDX-License-Identifier: MIT

// Package scheduler runs the guide pipeline on a cron schedule. At most one
// run is active at a time; ticks that arrive during a run are skipped.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/hdhr-xmltv/internal/config"
	xglog "github.com/ManuGH/hdhr-xmltv/internal/log"
	"github.com/ManuGH/hdhr-xmltv/internal/metrics"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one scheduled unit of work. It must return promptly once ctx is
// cancelled.
type Job func(ctx context.Context)

// Scheduler invokes a Job at each tick of a cron expression.
type Scheduler struct {
	Expr       string
	InitialRun bool // run once immediately on start
	Logger     zerolog.Logger

	loc      *time.Location
	schedule cron.Schedule

	running sync.Mutex
	skipped atomic.Int64
}

// New parses expr in the given IANA timezone.
func New(expr, timezone string) (*Scheduler, error) {
	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid timezone %q: %w", timezone, err)
	}
	schedule, err := config.CronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid cron expression %q: %w", expr, err)
	}
	return &Scheduler{
		Expr:     expr,
		Logger:   xglog.WithComponent("scheduler"),
		loc:      loc,
		schedule: schedule,
	}, nil
}

// Location is the zone ticks are computed in.
func (s *Scheduler) Location() *time.Location { return s.loc }

// Next returns the first tick after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.loc))
}

// Interval returns the spacing between the two ticks following from.
func (s *Scheduler) Interval(from time.Time) time.Duration {
	first := s.Next(from)
	return s.Next(first).Sub(first)
}

// Skipped returns the number of ticks skipped so far.
func (s *Scheduler) Skipped() int64 { return s.skipped.Load() }

// Run blocks until ctx is cancelled, invoking job at each tick. On return
// no job is running.
func (s *Scheduler) Run(ctx context.Context, job Job) error {
	logger := cronLogger{s.Logger}
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger)),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() { s.tick(ctx, job) }))

	var initial sync.WaitGroup
	if s.InitialRun {
		initial.Add(1)
		go func() {
			defer initial.Done()
			s.tick(ctx, job)
		}()
	}

	c.Start()
	s.Logger.Info().
		Str(xglog.FieldEvent, "scheduler.started").
		Str("cron", s.Expr).
		Str("timezone", s.loc.String()).
		Bool("initial_run", s.InitialRun).
		Time("next_run", s.Next(time.Now())).
		Msg("scheduler started")

	<-ctx.Done()
	<-c.Stop().Done()
	initial.Wait()

	s.Logger.Info().Str(xglog.FieldEvent, "scheduler.stopped").Msg("scheduler stopped")
	return nil
}

func (s *Scheduler) tick(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	if !s.running.TryLock() {
		s.skipped.Add(1)
		metrics.IncTicksSkipped()
		s.Logger.Warn().
			Str(xglog.FieldEvent, "scheduler.tick_skipped").
			Msg("previous run still active, skipping tick")
		return
	}
	defer s.running.Unlock()

	job(ctx)
	if ctx.Err() == nil {
		s.Logger.Info().
			Str(xglog.FieldEvent, "scheduler.next").
			Time("next_run", s.Next(time.Now())).
			Msg("waiting for next run")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug().Str(xglog.FieldEvent, "scheduler.cron").Fields(keysAndValues).Msg("cron: " + msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error().Err(err).Str(xglog.FieldEvent, "scheduler.cron_error").Fields(keysAndValues).Msg("cron: " + msg)
}
