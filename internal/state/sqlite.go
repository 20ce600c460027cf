// SPDX-License-Identifier: MIT
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver
)

const busyTimeout = 5 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS run_outcomes (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id         TEXT    NOT NULL,
	started_ns     INTEGER NOT NULL,
	finished_ns    INTEGER NOT NULL,
	success        INTEGER NOT NULL,
	error_kind     TEXT    NOT NULL DEFAULT '',
	error_message  TEXT    NOT NULL DEFAULT '',
	strategy       TEXT    NOT NULL DEFAULT '',
	device_count   INTEGER NOT NULL DEFAULT 0,
	entry_count    INTEGER NOT NULL DEFAULT 0,
	artifact_bytes INTEGER NOT NULL DEFAULT 0
);`

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens or creates the database at path. Every pooled connection gets
// WAL journaling and a busy timeout so the scheduler and the health probe
// can share the file.
func Open(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("state: create directory: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		path, busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("state: open failed: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("state: ping failed: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("state: migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// OpenReadOnly opens an existing database without creating, migrating or
// changing its journal mode. Record fails on the returned store.
func OpenReadOnly(path string) (*SQLiteStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("state: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(%d)", path, busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("state: open failed: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("state: ping failed: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Record inserts o and prunes history beyond HistoryLimit.
func (s *SQLiteStore) Record(ctx context.Context, o Outcome) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("state: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO run_outcomes (run_id, started_ns, finished_ns, success, error_kind, error_message,
			strategy, device_count, entry_count, artifact_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.RunID, o.Started.UnixNano(), o.Finished.UnixNano(), boolToInt(o.Success), o.ErrorKind,
		o.ErrorMessage, o.Strategy, o.DeviceCount, o.EntryCount, o.ArtifactBytes)
	if err != nil {
		return fmt.Errorf("state: insert outcome: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		DELETE FROM run_outcomes
		WHERE id NOT IN (SELECT id FROM run_outcomes ORDER BY id DESC LIMIT ?)`, HistoryLimit)
	if err != nil {
		return fmt.Errorf("state: prune outcomes: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	return nil
}

// Last returns the most recently recorded outcome.
func (s *SQLiteStore) Last(ctx context.Context) (Outcome, bool, error) {
	var (
		o                 Outcome
		started, finished int64
		success           int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, started_ns, finished_ns, success, error_kind, error_message,
			strategy, device_count, entry_count, artifact_bytes
		FROM run_outcomes ORDER BY id DESC LIMIT 1`).Scan(
		&o.RunID, &started, &finished, &success, &o.ErrorKind, &o.ErrorMessage,
		&o.Strategy, &o.DeviceCount, &o.EntryCount, &o.ArtifactBytes)
	if errors.Is(err, sql.ErrNoRows) {
		return Outcome{}, false, nil
	}
	if err != nil {
		return Outcome{}, false, fmt.Errorf("state: query last outcome: %w", err)
	}
	o.Started = time.Unix(0, started).UTC()
	o.Finished = time.Unix(0, finished).UTC()
	o.Success = success != 0
	return o, true, nil
}

// Count returns the number of retained outcomes.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM run_outcomes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("state: count outcomes: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
