package config

import (
	"strings"

	"github.com/crystalphantom/pgit-cli/internal/pgiterr"
)

// Validate checks the manifest invariants from spec.md 3: storage root
// and secondary repository root live inside the working directory, and
// every tracked path resolves inside the working directory and outside
// both of those roots.
func Validate(cfg *Manifest) error {
	if cfg.Version == "" {
		return pgiterr.NewConfigValidationError("manifest is missing a schema version")
	}
	if cfg.PrivateRepoPath == "" || cfg.StoragePath == "" {
		return pgiterr.NewConfigValidationError("manifest is missing privateRepoPath or storagePath")
	}
	if isOutsideWorkingDir(cfg.PrivateRepoPath) {
		return pgiterr.NewConfigValidationError("privateRepoPath must live inside the working directory")
	}
	if isOutsideWorkingDir(cfg.StoragePath) {
		return pgiterr.NewConfigValidationError("storagePath must live inside the working directory")
	}

	seen := make(map[string]bool, len(cfg.TrackedPaths))
	for _, p := range cfg.TrackedPaths {
		if seen[p] {
			return pgiterr.NewConfigValidationError("duplicate tracked path: " + p)
		}
		seen[p] = true
		if isOutsideWorkingDir(p) {
			return pgiterr.NewConfigValidationError("tracked path escapes the working directory: " + p)
		}
		if isUnderRoot(p, cfg.PrivateRepoPath) || isUnderRoot(p, cfg.StoragePath) {
			return pgiterr.NewConfigValidationError("tracked path collides with a reserved root: " + p)
		}
	}

	switch cfg.Settings.GitExclude.FallbackBehavior {
	case FallbackSilent, FallbackWarn, FallbackError, "":
	default:
		return pgiterr.NewConfigValidationError("unknown gitExclude.fallbackBehavior: " + string(cfg.Settings.GitExclude.FallbackBehavior))
	}

	return nil
}

func isOutsideWorkingDir(p string) bool {
	clean := strings.TrimPrefix(p, "./")
	return strings.HasPrefix(clean, "/") || strings.HasPrefix(clean, "..")
}

func isUnderRoot(p, root string) bool {
	root = strings.TrimSuffix(strings.TrimPrefix(root, "./"), "/")
	p = strings.TrimPrefix(p, "./")
	return p == root || strings.HasPrefix(p, root+"/")
}
