// SPDX-License-Identifier: MIT

//go:build windows

package artifact

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// writeAtomic uses a temp file and rename; Windows offers no durable
// rename so this is best effort.
func writeAtomic(path string, data []byte, perm fs.FileMode, beforeCommit func(string) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".hdhr-xmltv-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			_ = tmp.Close()
		}
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	tmp = nil
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if beforeCommit != nil {
		if err := beforeCommit(tmpPath); err != nil {
			return err
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
