// SPDX-License-Identifier: MIT
package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func outcome(i int, success bool) Outcome {
	started := time.Date(2025, 1, 2, 1, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour)
	o := Outcome{
		RunID:       fmt.Sprintf("run-%03d", i),
		Started:     started,
		Finished:    started.Add(42 * time.Second),
		Success:     success,
		Strategy:    "official",
		DeviceCount: 2,
	}
	if success {
		o.EntryCount = 1200
		o.ArtifactBytes = 345678
	} else {
		o.ErrorKind = "subscription_required"
		o.ErrorMessage = "guide.official: guide: subscription required (HTTP 403)"
	}
	return o
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := Open(filepath.Join(t.TempDir(), "state", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{"memory": NewMemory(), "sqlite": sq}
}

func TestStoreLast(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, ok, err := s.Last(ctx)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Record(ctx, outcome(1, true)))
			require.NoError(t, s.Record(ctx, outcome(2, false)))

			got, ok, err := s.Last(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, outcome(2, false), got)
			assert.Equal(t, 42*time.Second, got.Duration())
		})
	}
}

func TestSQLiteStorePrunesHistory(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	for i := 0; i < HistoryLimit+7; i++ {
		require.NoError(t, s.Record(ctx, outcome(i, i%2 == 0)))
	}

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, HistoryLimit, n)

	last, ok, err := s.Last(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, fmt.Sprintf("run-%03d", HistoryLimit+6), last.RunID)
}

func TestSQLiteStoreSharedBetweenHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	writer, err := Open(path)
	require.NoError(t, err)
	defer writer.Close()
	reader, err := Open(path)
	require.NoError(t, err)
	defer reader.Close()

	require.NoError(t, writer.Record(context.Background(), outcome(7, true)))

	got, ok, err := reader.Last(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "run-007", got.RunID)
	assert.True(t, got.Success)
}

func TestMemoryStorePrunesHistory(t *testing.T) {
	m := NewMemory()
	for i := 0; i < HistoryLimit+3; i++ {
		require.NoError(t, m.Record(context.Background(), outcome(i, true)))
	}
	assert.Len(t, m.history, HistoryLimit)
	assert.Equal(t, "run-003", m.history[0].RunID)
}

func TestOpenReadOnly(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "runs.db")

	_, err := OpenReadOnly(filepath.Join(dir, "missing", "runs.db"))
	require.Error(t, err)
	assert.NoDirExists(t, filepath.Join(dir, "missing"))

	w, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, w.Record(ctx, outcome(1, true)))
	require.NoError(t, w.Close())
	before, err := os.Stat(path)
	require.NoError(t, err)

	r, err := OpenReadOnly(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	last, ok, err := r.Last(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "run-001", last.RunID)
	assert.Error(t, r.Record(ctx, outcome(2, false)))

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.Size(), after.Size())
	assert.Equal(t, before.ModTime(), after.ModTime())
}
