// SPDX-License-Identifier: MIT

// Package state keeps the outcome of recent pipeline runs so the health
// probe, which runs as a separate process, can report on the last one.
package state

import (
	"context"
	"sync"
	"time"
)

// HistoryLimit is the number of outcomes retained.
const HistoryLimit = 50

// Outcome is the result of one pipeline execution.
type Outcome struct {
	RunID         string
	Started       time.Time
	Finished      time.Time
	Success       bool
	ErrorKind     string
	ErrorMessage  string
	Strategy      string
	DeviceCount   int
	EntryCount    int
	ArtifactBytes int
}

// Duration is the wall time of the run.
func (o Outcome) Duration() time.Duration {
	return o.Finished.Sub(o.Started)
}

// Store persists run outcomes.
type Store interface {
	Record(ctx context.Context, o Outcome) error
	// Last returns the most recent outcome; ok is false when none exists.
	Last(ctx context.Context) (o Outcome, ok bool, err error)
	Close() error
}

// MemoryStore is a Store for a single process.
type MemoryStore struct {
	mu      sync.RWMutex
	history []Outcome
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Record(_ context.Context, o Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, o)
	if n := len(m.history) - HistoryLimit; n > 0 {
		m.history = append([]Outcome(nil), m.history[n:]...)
	}
	return nil
}

func (m *MemoryStore) Last(_ context.Context) (Outcome, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.history) == 0 {
		return Outcome{}, false, nil
	}
	return m.history[len(m.history)-1], true, nil
}

func (m *MemoryStore) Close() error { return nil }
