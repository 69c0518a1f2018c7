// Package symlink creates, removes, and validates the symlinks that
// replace a tracked path's original location, grounded on the
// FileManager shape used by the closest domain analogue in the
// retrieval pack (a dotfile/symlink git-tracking tool).
package symlink

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/crystalphantom/pgit-cli/internal/pgiterr"
)

// CreateOptions configures Create.
type CreateOptions struct {
	Force         bool
	CreateParents bool
	IsDirectory   bool
}

// Status is the result of Validate.
type Status struct {
	Exists     bool
	IsValid    bool
	IsHealthy  bool
	LinkPath   string
	TargetPath string
	Issues     []string
}

// Create makes a symlink at link pointing to target.
func Create(target, link string, opts CreateOptions) error {
	if opts.CreateParents {
		if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
			return pgiterr.NewFilesystemOperationError("mkdir", filepath.Dir(link), err)
		}
	}
	if opts.Force {
		if _, err := os.Lstat(link); err == nil {
			if err := os.Remove(link); err != nil {
				return pgiterr.NewFilesystemOperationError("remove_existing_link", link, err)
			}
		}
	}
	if err := os.Symlink(target, link); err != nil {
		return pgiterr.NewFilesystemOperationError("symlink", link, err)
	}
	return nil
}

// Remove deletes link only if it is itself a symlink; it never follows
// the link to operate on the target.
func Remove(link string) error {
	info, err := os.Lstat(link)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return pgiterr.NewFilesystemOperationError("lstat", link, err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return pgiterr.NewInvalidInputError(link, "refusing to remove a non-symlink")
	}
	if err := os.Remove(link); err != nil {
		return pgiterr.NewFilesystemOperationError("remove", link, err)
	}
	return nil
}

// Validate reports whether link resolves and whether its target lives
// inside storageRoot.
func Validate(link, storageRoot string) Status {
	status := Status{LinkPath: link}

	info, err := os.Lstat(link)
	if err != nil {
		status.Issues = append(status.Issues, "link does not exist")
		return status
	}
	status.Exists = true

	if info.Mode()&os.ModeSymlink == 0 {
		status.Issues = append(status.Issues, "path exists but is not a symlink")
		return status
	}

	target, err := os.Readlink(link)
	if err != nil {
		status.Issues = append(status.Issues, "symlink target is unreadable")
		return status
	}
	status.TargetPath = target

	absTarget := target
	if !filepath.IsAbs(absTarget) {
		absTarget = filepath.Join(filepath.Dir(link), target)
	}

	if _, err := os.Stat(absTarget); err != nil {
		status.Issues = append(status.Issues, "symlink target does not resolve")
		return status
	}
	status.IsValid = true

	absStorageRoot, err := filepath.Abs(storageRoot)
	if err == nil {
		cleanTarget := filepath.Clean(absTarget)
		cleanRoot := filepath.Clean(absStorageRoot)
		if cleanTarget == cleanRoot || strings.HasPrefix(cleanTarget, cleanRoot+string(filepath.Separator)) {
			status.IsHealthy = true
		} else {
			status.Issues = append(status.Issues, "symlink target is outside the storage root")
		}
	}

	return status
}

// SupportsSymlinks probes once whether the filesystem under dir honors
// symbolic links, since add must fail fast (without rolling anything
// back — nothing was done yet) on filesystems that don't.
func SupportsSymlinks(dir string) bool {
	probe, err := os.CreateTemp(dir, ".pgit-symlink-probe-*")
	if err != nil {
		return false
	}
	target := probe.Name()
	probe.Close()
	defer os.Remove(target)

	link := target + ".link"
	defer os.Remove(link)

	if err := os.Symlink(target, link); err != nil {
		return false
	}
	info, err := os.Lstat(link)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}
