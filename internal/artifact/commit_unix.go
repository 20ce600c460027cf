// SPDX-License-Identifier: MIT

//go:build !windows

package artifact

import (
	"fmt"
	"io/fs"

	"github.com/google/renameio/v2"
)

// writeAtomic writes data through a renameio pending file: the data is
// synced before the rename so a crash leaves the old or the new file.
func writeAtomic(path string, data []byte, perm fs.FileMode, beforeCommit func(string) error) error {
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(perm))
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write pending file: %w", err)
	}
	if err := pending.Sync(); err != nil {
		return fmt.Errorf("sync pending file: %w", err)
	}
	if beforeCommit != nil {
		if err := beforeCommit(pending.Name()); err != nil {
			return err
		}
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace %s: %w", path, err)
	}
	return nil
}
