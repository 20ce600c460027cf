// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon runs the scheduled mode: the cron loop plus an optional
// status server exposing health and metrics.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	xglog "github.com/ManuGH/hdhr-xmltv/internal/log"
	"github.com/ManuGH/hdhr-xmltv/internal/scheduler"
	"github.com/rs/zerolog"
)

const defaultShutdownTimeout = 30 * time.Second

// ErrManagerNotStarted is returned by Shutdown before Start.
var ErrManagerNotStarted = errors.New("daemon manager not started")

// ShutdownHook is a function that performs cleanup during graceful shutdown.
// Hooks are executed in reverse registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

// Deps are the collaborators a Manager drives.
type Deps struct {
	Logger    zerolog.Logger
	Scheduler *scheduler.Scheduler
	Job       scheduler.Job

	// StatusAddr enables the status server when set.
	StatusAddr      string
	StatusHandler   http.Handler
	ShutdownTimeout time.Duration
}

type namedHook struct {
	name string
	hook ShutdownHook
}

// Manager owns the daemon lifecycle.
type Manager struct {
	deps   Deps
	logger zerolog.Logger

	status   *http.Server
	listener net.Listener

	hooks    []namedHook
	started  bool
	stopping bool
	mu       sync.Mutex
}

// NewManager validates deps and returns a Manager.
func NewManager(deps Deps) (*Manager, error) {
	if deps.Logger.GetLevel() == zerolog.Disabled {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Scheduler == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if deps.Job == nil {
		return nil, fmt.Errorf("job is required")
	}
	if deps.StatusAddr != "" && deps.StatusHandler == nil {
		return nil, fmt.Errorf("status handler is required when a status address is set")
	}
	if deps.ShutdownTimeout <= 0 {
		deps.ShutdownTimeout = defaultShutdownTimeout
	}
	return &Manager{deps: deps, logger: deps.Logger}, nil
}

// Addr returns the bound status server address, or "" when disabled.
func (m *Manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// Start runs the scheduler and status server and blocks until ctx is
// canceled or a component fails. Shutdown runs before Start returns.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("daemon manager already started")
	}
	m.started = true
	m.mu.Unlock()

	errChan := make(chan error, 2)

	if err := m.startStatusServer(errChan); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if err := m.deps.Scheduler.Run(runCtx, m.deps.Job); err != nil {
			errChan <- fmt.Errorf("scheduler: %w", err)
		}
	}()

	m.logger.Info().
		Str(xglog.FieldEvent, "daemon.started").
		Str("cron", m.deps.Scheduler.Expr).
		Str("status_addr", m.Addr()).
		Msg("daemon started")

	var runErr error
	select {
	case runErr = <-errChan:
		m.logger.Error().Err(runErr).Str(xglog.FieldEvent, "daemon.component_failed").Msg("daemon component failed")
	case <-ctx.Done():
		m.logger.Info().Str(xglog.FieldEvent, "daemon.signal").Msg("shutdown signal received")
	}

	// The scheduler waits for an in-flight run before returning.
	cancel()
	<-schedDone

	if err := m.Shutdown(ctx); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

func (m *Manager) startStatusServer(errChan chan<- error) error {
	if m.deps.StatusAddr == "" {
		return nil
	}

	ln, err := net.Listen("tcp", m.deps.StatusAddr)
	if err != nil {
		return fmt.Errorf("status server listen: %w", err)
	}

	m.mu.Lock()
	m.listener = ln
	m.status = &http.Server{
		Handler:           m.deps.StatusHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	srv := m.status
	m.mu.Unlock()

	go func() {
		m.logger.Info().Str(xglog.FieldEvent, "status.server_listening").Str("addr", ln.Addr().String()).Msg("status server listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().
				Err(err).
				Str(xglog.FieldEvent, "status.server_failed").
				Msg("status server failed")
			errChan <- fmt.Errorf("status server: %w", err)
		}
	}()
	return nil
}

// Shutdown stops the status server and runs the shutdown hooks. It is safe
// to call more than once.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	if !m.started {
		m.mu.Unlock()
		return ErrManagerNotStarted
	}
	m.stopping = true
	hooks := append([]namedHook(nil), m.hooks...)
	srv := m.status
	m.mu.Unlock()

	// Bounded and independent from the caller's cancellation.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.deps.ShutdownTimeout)
	defer cancel()

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("status server shutdown: %w", err))
		}
	}

	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		start := time.Now()
		if err := h.hook(shutdownCtx); err != nil {
			m.logger.Error().
				Err(err).
				Str(xglog.FieldEvent, "daemon.hook_failed").
				Str("hook", h.name).
				Dur("duration", time.Since(start)).
				Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
			continue
		}
		m.logger.Debug().Str(xglog.FieldEvent, "daemon.hook_done").Str("hook", h.name).Dur("duration", time.Since(start)).Msg("shutdown hook completed")
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	m.logger.Info().Str(xglog.FieldEvent, "daemon.stopped").Msg("daemon stopped cleanly")
	return nil
}

// RegisterShutdownHook registers a cleanup function. Hooks run in reverse
// registration order.
func (m *Manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, namedHook{name: name, hook: hook})
}
