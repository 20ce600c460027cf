// SPDX-License-Identifier: MIT

// Package health decides whether the XMLTV artifact is fit for consumers.
// It serves the container health probe and the status endpoint.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ManuGH/hdhr-xmltv/internal/log"
	"github.com/ManuGH/hdhr-xmltv/internal/state"
)

// Status is the overall or per-check verdict.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the result of one check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Report is the full health report.
type Report struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks"`
	Details   map[string]any         `json:"details,omitempty"`
}

// Healthy reports whether every check passed.
func (r Report) Healthy() bool {
	return r.Status == StatusHealthy
}

// Checker is one health check. Check may add entries to details.
type Checker interface {
	Name() string
	Check(ctx context.Context, now time.Time, details map[string]any) CheckResult
}

// Evaluator combines the artifact and last-run checks. It only reads.
type Evaluator struct {
	ArtifactPath string
	MaxAge       time.Duration
	Store        state.Store // nil skips the last-run check
	Version      string
	Now          func() time.Time
}

// Evaluate runs every check. The report is healthy only when all checks
// are healthy.
func (e *Evaluator) Evaluate(ctx context.Context) Report {
	now := time.Now()
	if e.Now != nil {
		now = e.Now()
	}

	report := Report{
		Status:    StatusHealthy,
		Timestamp: now.UTC(),
		Version:   e.Version,
		Checks:    make(map[string]CheckResult),
		Details:   make(map[string]any),
	}
	for _, c := range e.checkers() {
		res := c.Check(ctx, now, report.Details)
		report.Checks[c.Name()] = res
		if res.Status != StatusHealthy {
			report.Status = StatusUnhealthy
		}
	}
	return report
}

func (e *Evaluator) checkers() []Checker {
	return []Checker{
		&ArtifactChecker{Path: e.ArtifactPath, MaxAge: e.MaxAge},
		&LastRunChecker{Store: e.Store},
	}
}

// ServeHTTP writes the report as JSON with 200 when healthy and 503
// otherwise.
func (e *Evaluator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "health")
	report := e.Evaluate(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if report.Healthy() {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(report); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "health.encode_error").Msg("failed to encode health report")
	}

	logger.Debug().
		Str(log.FieldEvent, "health.checked").
		Str("status", string(report.Status)).
		Msg("health check performed")
}
