// Package lock provides an advisory, cross-process lock file guarding
// one orchestrated add/reset operation at a time (spec.md §5's
// hardening hint).
package lock

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/crystalphantom/pgit-cli/internal/pgiterr"
)

// FileName is the lock file's fixed location under the working directory.
const FileName = ".pgit.lock"

// Handle represents a held lock. Release drops it; calls after the first
// are no-ops.
type Handle struct {
	file *os.File
	path string
}

// Acquire takes an exclusive, non-blocking advisory lock on
// workingDir/FileName. It returns a pgiterr LockHeld error if another
// process already holds it.
func Acquire(workingDir string) (*Handle, error) {
	path := filepath.Join(workingDir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, pgiterr.NewFilesystemOperationError("open_lock", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, pgiterr.NewLockHeldError(path)
		}
		return nil, pgiterr.NewFilesystemOperationError("flock", path, err)
	}

	return &Handle{file: f, path: path}, nil
}

// Release drops the lock and removes the lock file. Calling it again
// afterwards is a no-op.
func (h *Handle) Release() error {
	if h == nil || h.file == nil {
		return nil
	}
	unix.Flock(int(h.file.Fd()), unix.LOCK_UN)
	err := h.file.Close()
	h.file = nil
	os.Remove(h.path)
	return err
}
