// SPDX-License-Identifier: MIT
package health

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ManuGH/hdhr-xmltv/internal/failure"
	"github.com/ManuGH/hdhr-xmltv/internal/state"
)

// ArtifactChecker requires a non-empty artifact modified within MaxAge.
type ArtifactChecker struct {
	Path   string
	MaxAge time.Duration // 0 disables the freshness check
}

func (c *ArtifactChecker) Name() string { return "artifact" }

func (c *ArtifactChecker) Check(_ context.Context, now time.Time, details map[string]any) CheckResult {
	details["artifact_path"] = c.Path
	info, err := os.Stat(c.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return CheckResult{Status: StatusUnhealthy, Error: "file not found", Message: c.Path}
		}
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	if info.IsDir() {
		return CheckResult{Status: StatusUnhealthy, Error: "expected file, got directory"}
	}

	age := now.Sub(info.ModTime())
	details["artifact_bytes"] = info.Size()
	details["artifact_modified"] = info.ModTime().UTC()
	details["artifact_age_seconds"] = int64(age.Seconds())

	if info.Size() == 0 {
		return CheckResult{Status: StatusUnhealthy, Error: "file is empty"}
	}
	if c.MaxAge > 0 {
		details["max_age_seconds"] = int64(c.MaxAge.Seconds())
		if age > c.MaxAge {
			return CheckResult{
				Status: StatusUnhealthy,
				Error:  "artifact is stale",
				Message: fmt.Sprintf("last modified %s ago, threshold %s",
					age.Truncate(time.Second), c.MaxAge),
			}
		}
	}
	return CheckResult{Status: StatusHealthy, Message: "artifact present and fresh"}
}

// LastRunChecker requires the most recent run to have succeeded. No
// recorded run and a run interrupted by shutdown are healthy; the artifact
// check covers freshness in both cases.
type LastRunChecker struct {
	Store state.Store
}

func (c *LastRunChecker) Name() string { return "last_run" }

func (c *LastRunChecker) Check(ctx context.Context, _ time.Time, details map[string]any) CheckResult {
	if c.Store == nil {
		return CheckResult{Status: StatusHealthy, Message: "not tracked"}
	}
	last, ok, err := c.Store.Last(ctx)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	if !ok {
		return CheckResult{Status: StatusHealthy, Message: "no run recorded yet"}
	}

	details["last_run_id"] = last.RunID
	details["last_run_finished"] = last.Finished.UTC()
	details["last_run_strategy"] = last.Strategy
	if last.Success {
		details["last_run_entries"] = last.EntryCount
		return CheckResult{Status: StatusHealthy, Message: "last run successful"}
	}

	details["last_error_kind"] = last.ErrorKind
	if failure.Kind(last.ErrorKind) == failure.Canceled {
		return CheckResult{Status: StatusHealthy, Message: "last run interrupted by shutdown"}
	}
	if hint := failure.Kind(last.ErrorKind).DefaultHint(); hint != "" {
		details["hint"] = hint
	}
	return CheckResult{Status: StatusUnhealthy, Error: last.ErrorMessage, Message: "last run failed"}
}
