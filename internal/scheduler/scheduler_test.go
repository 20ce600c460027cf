// SPDX-License-Identifier: MIT
package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// every ticks at a fixed sub-second period.
type every time.Duration

func (e every) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }

func newTestScheduler(t *testing.T, period time.Duration) *Scheduler {
	t.Helper()
	s, err := New("@hourly", "UTC")
	require.NoError(t, err)
	s.schedule = every(period)
	s.Logger = zerolog.Nop()
	return s
}

func TestNewRejectsInvalidInput(t *testing.T) {
	_, err := New("61 * * * *", "UTC")
	assert.ErrorContains(t, err, "invalid cron expression")

	_, err = New("0 1 * * *", "Mars/Olympus")
	assert.ErrorContains(t, err, "invalid timezone")
}

func TestIntervalAndNext(t *testing.T) {
	from := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		expr     string
		tz       string
		interval time.Duration
	}{
		{"0 1 * * *", "UTC", 24 * time.Hour},
		{"*/15 * * * *", "UTC", 15 * time.Minute},
		{"@every 6h", "UTC", 6 * time.Hour},
		{"0 1 * * 1", "Europe/Berlin", 7 * 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			s, err := New(tt.expr, tt.tz)
			require.NoError(t, err)
			assert.Equal(t, tt.interval, s.Interval(from))
		})
	}

	s, err := New("0 1 * * *", "America/New_York")
	require.NoError(t, err)
	next := s.Next(from)
	assert.Equal(t, 1, next.Hour())
	assert.Equal(t, "America/New_York", next.Location().String())
}

func TestRunInvokesJobUntilCanceled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newTestScheduler(t, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	var runs atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context) {
			if runs.Add(1) == 3 {
				cancel()
			}
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.GreaterOrEqual(t, runs.Load(), int32(3))
}

func TestRunSkipsTicksWhileJobActive(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newTestScheduler(t, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	var runs atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context) {
			runs.Add(1)
			time.Sleep(100 * time.Millisecond)
		})
	}()

	require.Eventually(t, func() bool { return s.Skipped() >= 3 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	// Ticks during the 100ms run were skipped, not queued.
	assert.Less(t, runs.Load(), int32(10))
}

func TestRunWaitsForActiveJob(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newTestScheduler(t, time.Hour)
	s.InitialRun = true
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	var finished atomic.Bool
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(jobCtx context.Context) {
			close(started)
			<-jobCtx.Done()
			time.Sleep(50 * time.Millisecond)
			finished.Store(true)
		})
	}()

	<-started
	cancel()
	require.NoError(t, <-done)
	assert.True(t, finished.Load(), "Run returned before the active job finished")
}

func TestRunInitialRunDisabled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newTestScheduler(t, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var runs atomic.Int32
	require.NoError(t, s.Run(ctx, func(context.Context) { runs.Add(1) }))
	assert.Zero(t, runs.Load())
}
