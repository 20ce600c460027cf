// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package artifact persists the rendered XMLTV document. A reader of the
// destination path sees either the previous complete artifact or the new
// complete artifact, never a partial one.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ManuGH/hdhr-xmltv/internal/failure"
	xglog "github.com/ManuGH/hdhr-xmltv/internal/log"
	"github.com/rs/zerolog"
)

const (
	defaultPerm  fs.FileMode = 0o644
	backupSuffix             = ".bak"
)

// Writer commits artifacts atomically.
type Writer struct {
	Backup bool // keep the previous artifact as <path>.bak
	Perm   fs.FileMode
	Logger zerolog.Logger

	// beforeCommit runs after the data is written and synced to the
	// pending file and before the rename.
	beforeCommit func(pending string) error
}

// NewWriter returns a Writer with default permissions.
func NewWriter(backup bool) *Writer {
	return &Writer{
		Backup: backup,
		Perm:   defaultPerm,
		Logger: xglog.WithComponent("artifact"),
	}
}

// BackupPath returns where the previous generation of path is kept.
func BackupPath(path string) string {
	return path + backupSuffix
}

// Persist atomically replaces path with data. Every error is a
// WriteFailure and leaves the previous artifact untouched.
func (w *Writer) Persist(ctx context.Context, data []byte, path string) error {
	const op = "artifact.persist"
	if len(data) == 0 {
		return failure.Newf(failure.WriteFailure, op, "refusing to write an empty artifact to %s", path)
	}
	if err := ctx.Err(); err != nil {
		return failure.New(failure.Canceled, op, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return failure.New(failure.WriteFailure, op, fmt.Errorf("create output directory: %w", err))
	}

	if w.Backup {
		if err := w.backup(path); err != nil {
			return failure.New(failure.WriteFailure, op, err)
		}
	}

	if err := writeAtomic(path, data, w.perm(), w.beforeCommit); err != nil {
		return failure.New(failure.WriteFailure, op, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return failure.New(failure.WriteFailure, op, fmt.Errorf("verify artifact: %w", err))
	}
	if info.Size() != int64(len(data)) {
		return failure.Newf(failure.WriteFailure, op, "verify artifact: size %d, expected %d", info.Size(), len(data))
	}

	w.Logger.Debug().
		Str(xglog.FieldEvent, "artifact.committed").
		Str(xglog.FieldPath, path).
		Int(xglog.FieldBytes, len(data)).
		Bool("backup", w.Backup).
		Msg("artifact committed")
	return nil
}

// backup copies the current artifact, if any, to its backup path.
func (w *Writer) backup(path string) error {
	prev, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read previous artifact: %w", err)
	}
	if len(prev) == 0 {
		return nil
	}
	if err := writeAtomic(BackupPath(path), prev, w.perm(), nil); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	return nil
}

func (w *Writer) perm() fs.FileMode {
	if w.Perm == 0 {
		return defaultPerm
	}
	return w.Perm
}
