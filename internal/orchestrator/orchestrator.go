// Package orchestrator implements the Add/Reset Orchestrator (spec.md
// 4.F): the staged mutation protocol that moves a path into private
// storage and links it back, its inverse, the rollback journal that
// makes both operations atomic, and the chunking that bounds how much
// of a batch one transaction covers.
package orchestrator

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/crystalphantom/pgit-cli/internal/config"
	"github.com/crystalphantom/pgit-cli/internal/fsops"
	"github.com/crystalphantom/pgit-cli/internal/lock"
	"github.com/crystalphantom/pgit-cli/internal/pathvalidator"
	"github.com/crystalphantom/pgit-cli/internal/pgiterr"
	"github.com/crystalphantom/pgit-cli/internal/symlink"
	"github.com/crystalphantom/pgit-cli/internal/vcsadapter"
)

// MaxBatchSize is the hard ceiling on a single add invocation.
const MaxBatchSize = 100

// ChunkSize is the largest transaction the orchestrator will attempt in
// one pass; batches above MaxBatchSize are rejected outright, batches
// above ChunkSize are split into independent chunks.
const ChunkSize = 50

// Engine binds the orchestrator to one working directory and lazily
// opens the primary and secondary repositories and the config manager
// it coordinates.
type Engine struct {
	workingDir string
	fs         *fsops.Service
	cfg        *config.Manager
	primary    *vcsadapter.Adapter
	secondary  *vcsadapter.Adapter
}

// New returns an Engine rooted at workingDir.
func New(workingDir string) *Engine {
	return &Engine{
		workingDir: workingDir,
		fs:         fsops.New(),
		cfg:        config.New(workingDir),
	}
}

// AddResult summarizes a (possibly multi-chunk) add invocation.
type AddResult struct {
	Tracked      []string
	CommitHashes []string
	Warnings     []string
}

// addChunkResult is the per-chunk equivalent, folded into AddResult by Add.
type addChunkResult struct {
	Tracked    []string
	CommitHash string
	Warnings   []string
}

// Add validates paths, then processes them in chunks of at most
// ChunkSize, each chunk its own independent transaction: a failure in
// chunk k does not roll back chunks already committed.
func (e *Engine) Add(paths []string) (*AddResult, error) {
	if len(paths) > MaxBatchSize {
		return nil, pgiterr.NewInvalidBatchError(
			[]pgiterr.PathError{{Path: "", Err: fmt.Errorf("batch of %d paths exceeds the %d-path maximum", len(paths), MaxBatchSize)}},
			nil,
		)
	}

	handle, err := lock.Acquire(e.workingDir)
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	if !symlink.SupportsSymlinks(e.workingDir) {
		return nil, pgiterr.NewFilesystemOperationError("supports_symlinks", e.workingDir,
			errors.New("this filesystem does not support symbolic links"))
	}

	cfg, warnings, err := e.loadManifestForAdd()
	if err != nil {
		return nil, err
	}

	if e.primary == nil {
		if !vcsadapter.IsRepository(e.workingDir) {
			return nil, pgiterr.NewRepositoryNotFoundError(e.workingDir)
		}
		e.primary, err = vcsadapter.Open(e.workingDir)
		if err != nil {
			return nil, err
		}
	}

	validated, err := e.validateBatch(cfg, paths)
	if err != nil {
		return nil, err
	}

	result := &AddResult{Warnings: warnings}
	for start := 0; start < len(validated); start += ChunkSize {
		end := start + ChunkSize
		if end > len(validated) {
			end = len(validated)
		}
		chunkResult, err := e.addChunk(cfg, validated[start:end])
		if chunkResult != nil {
			result.Tracked = append(result.Tracked, chunkResult.Tracked...)
			result.Warnings = append(result.Warnings, chunkResult.Warnings...)
			if chunkResult.CommitHash != "" {
				result.CommitHashes = append(result.CommitHashes, chunkResult.CommitHash)
			}
		}
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

// loadManifestForAdd implements spec.md 4.F's environment check: either
// the manifest or the storage directory must exist. A present-but-
// corrupt manifest is non-fatal as long as the storage directory is
// there — the engine proceeds on a transient default and never
// overwrites the corrupt file.
func (e *Engine) loadManifestForAdd() (*config.Manifest, []string, error) {
	defaultStorage := filepath.Join(e.workingDir, config.DefaultManifest("", "").StoragePath)

	if e.cfg.Exists() {
		cfg, err := e.cfg.Load()
		if err == nil {
			return cfg, nil, nil
		}
		storageExists, _ := e.fs.PathExists(defaultStorage)
		if !storageExists {
			return nil, nil, pgiterr.NewNotInitializedError("manifest is corrupt and no storage directory exists: " + err.Error())
		}
		warning := fmt.Sprintf("manifest is corrupt (%v); proceeding with defaults", err)
		slog.Warn(warning)
		return config.SynthesizeTransientDefault(filepath.Base(e.workingDir), e.workingDir), []string{warning}, nil
	}

	storageExists, err := e.fs.PathExists(defaultStorage)
	if err != nil {
		return nil, nil, err
	}
	if !storageExists {
		return nil, nil, pgiterr.NewNotInitializedError("neither the manifest nor a storage directory exists")
	}
	warning := "manifest missing but storage directory exists; proceeding with defaults"
	slog.Warn(warning)
	return config.SynthesizeTransientDefault(filepath.Base(e.workingDir), e.workingDir), []string{warning}, nil
}

// validateBatch implements spec.md 4.F's validation pass: dedup
// preserving order, run the path validator, confirm existence, and
// classify into validated/invalid/already-tracked. No mutation occurs
// here.
func (e *Engine) validateBatch(cfg *config.Manifest, paths []string) ([]pathvalidator.Result, error) {
	seen := make(map[string]bool, len(paths))
	deduped := make([]string, 0, len(paths))
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			deduped = append(deduped, p)
		}
	}

	tracked := make(map[string]bool, len(cfg.TrackedPaths))
	for _, p := range cfg.TrackedPaths {
		tracked[p] = true
	}

	var valid []pathvalidator.Result
	var validNames []string
	var invalid []pgiterr.PathError
	var already []string

	for _, p := range deduped {
		res, err := pathvalidator.Validate(e.workingDir, p)
		if err != nil {
			invalid = append(invalid, pgiterr.PathError{Path: p, Err: err})
			continue
		}
		exists, err := e.fs.PathExists(res.Absolute)
		if err != nil {
			invalid = append(invalid, pgiterr.PathError{Path: p, Err: err})
			continue
		}
		if !exists {
			invalid = append(invalid, pgiterr.PathError{Path: p, Err: pgiterr.NewPathNotFoundError(res.Absolute)})
			continue
		}
		if tracked[res.Relative] {
			already = append(already, res.Relative)
			continue
		}
		valid = append(valid, res)
		validNames = append(validNames, res.Relative)
	}

	if len(invalid) > 0 {
		return nil, pgiterr.NewInvalidBatchError(invalid, validNames)
	}
	if len(already) > 0 {
		return nil, pgiterr.NewAlreadyTrackedError(already)
	}
	return valid, nil
}

// journalStep is a compensating action pushed while a chunk is in
// flight, unwound in LIFO order on failure.
type journalStep func() error

// addChunk runs the six-step staged mutation protocol from spec.md 4.F
// against one chunk of already-validated paths.
func (e *Engine) addChunk(cfg *config.Manifest, chunk []pathvalidator.Result) (*addChunkResult, error) {
	var journal []journalStep
	push := func(step journalStep) { journal = append(journal, step) }

	fail := func(cause error) (*addChunkResult, error) {
		unwindJournal(journal)
		return nil, cause
	}

	relatives := make([]string, len(chunk))
	for i, r := range chunk {
		relatives[i] = filepath.ToSlash(r.Relative)
	}

	// Step 1: snapshot.
	snapshots := make(map[string]vcsadapter.FileVcsState, len(chunk))
	for _, rel := range relatives {
		state, err := e.primary.RecordOriginalState(rel)
		if err != nil {
			return fail(err)
		}
		snapshots[rel] = state
	}
	excludeBackup, err := e.primary.ReadExcludeFile()
	if err != nil {
		return fail(err)
	}
	push(func() error {
		var errs []error
		if err := e.primary.WriteExcludeFile(excludeBackup); err != nil {
			// The verbatim restore failed; fall back to recovering each
			// path's (isTracked, isStaged, isExcluded) triple one at a
			// time rather than giving up on the whole rollback.
			slog.Warn("exclude file verbatim rollback failed, falling back to per-path recovery", "error", err, "paths", strings.Join(relatives, ", "))
			errs = append(errs, err)
		}
		for _, rel := range relatives {
			if err := e.primary.RestoreOriginalState(rel, snapshots[rel], cfg.Settings.GitExclude); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	// Step 2: detach from primary VCS.
	var detach []string
	for _, rel := range relatives {
		if s := snapshots[rel]; s.IsTracked || s.IsStaged {
			detach = append(detach, rel)
		}
	}
	if len(detach) > 0 {
		if err := e.primary.RemoveFromIndex(detach, true); err != nil {
			for _, rel := range detach {
				if oneErr := e.primary.RemoveFromIndex([]string{rel}, true); oneErr != nil {
					slog.Warn("remove_from_index failed for path, continuing", "path", rel, "error", oneErr)
				}
			}
		}
	}

	var warnings []string
	_, failedExclude, excludeWarnings, excludeErr := e.primary.AddMultipleToExclude(relatives, cfg.Settings.GitExclude)
	if excludeErr != nil {
		if pgiterr.IsKind(excludeErr, pgiterr.ExcludeDisabled) {
			unwindJournal(journal)
			return nil, excludeErr
		}
		warnings = append(warnings, fmt.Sprintf("Warning: %v (paths: %s)", excludeErr, strings.Join(relatives, ", ")))
	}
	warnings = append(warnings, excludeWarnings...)
	for _, rel := range failedExclude {
		warnings = append(warnings, fmt.Sprintf("Warning: failed to add %q to exclude file", rel))
	}

	// Step 3: move into storage.
	e.fs.CreateBackups = cfg.Settings.CreateBackups
	e.fs.MaxBackups = cfg.Settings.MaxBackups
	storageRoot := filepath.Join(e.workingDir, cfg.StoragePath)
	for _, rel := range relatives {
		src := filepath.Join(e.workingDir, rel)
		dst := filepath.Join(storageRoot, rel)
		if _, err := e.fs.MoveAtomic(src, dst); err != nil {
			return fail(err)
		}
		rel := rel
		push(func() error {
			_, err := e.fs.MoveAtomic(filepath.Join(storageRoot, rel), filepath.Join(e.workingDir, rel))
			return err
		})
	}
	e.fs.ClearRollbackActions()

	// Step 4: link.
	for _, rel := range relatives {
		link := filepath.Join(e.workingDir, rel)
		target := filepath.Join(storageRoot, rel)
		isDir, err := e.fs.IsDirectory(target)
		if err != nil {
			return fail(err)
		}
		if err := symlink.Create(target, link, symlink.CreateOptions{Force: true, CreateParents: true, IsDirectory: isDir}); err != nil {
			return fail(err)
		}
		link := link
		push(func() error { return symlink.Remove(link) })
	}
	e.fs.ClearRollbackActions()

	// Step 5: commit to secondary repository.
	secondary, err := e.secondaryAdapter(cfg)
	if err != nil {
		return fail(err)
	}
	hash, err := secondary.AddAndCommit(relatives, "pgit: add")
	if err != nil {
		return fail(err)
	}
	push(func() error {
		if err := secondary.Reset(vcsadapter.ResetHard, "HEAD~1"); err != nil {
			var errs []error
			for _, rel := range relatives {
				if oneErr := secondary.RemoveFromIndex([]string{rel}, false); oneErr != nil {
					errs = append(errs, oneErr)
				}
			}
			return errors.Join(append(errs, err)...)
		}
		return nil
	})

	// Step 6: update manifest.
	if err := e.cfg.AddTrackedPaths(cfg, relatives); err != nil {
		return fail(err)
	}
	push(func() error { return e.cfg.RemoveTrackedPaths(cfg, relatives) })

	return &addChunkResult{Tracked: relatives, CommitHash: hash, Warnings: warnings}, nil
}

// secondaryAdapter lazily opens or initializes the secondary repository
// described by spec.md 6: git-dir at privateRepoPath, worktree at
// storagePath.
func (e *Engine) secondaryAdapter(cfg *config.Manifest) (*vcsadapter.Adapter, error) {
	if e.secondary != nil {
		return e.secondary, nil
	}
	gitDir := filepath.Join(e.workingDir, cfg.PrivateRepoPath)
	workTree := filepath.Join(e.workingDir, cfg.StoragePath)

	exists, err := e.fs.PathExists(gitDir)
	if err != nil {
		return nil, err
	}
	if exists {
		e.secondary, err = vcsadapter.OpenWithSeparateGitDir(gitDir, workTree)
	} else {
		e.secondary, err = vcsadapter.InitWithSeparateGitDir(gitDir, workTree)
	}
	return e.secondary, err
}

// unwindJournal runs steps in LIFO order; failures are logged, never
// re-raised, so the triggering error remains the failure's identity.
func unwindJournal(journal []journalStep) {
	for i := len(journal) - 1; i >= 0; i-- {
		if err := journal[i](); err != nil {
			slog.Error("rollback step failed", "error", err)
		}
	}
}

// ResetOptions mirrors the reset command's flags.
type ResetOptions struct {
	Force  bool
	DryRun bool
}

// ResetResult summarizes a reset invocation per spec.md 4.F step 7.
type ResetResult struct {
	Cancelled          bool
	RestoredFiles      int
	RemovedSymlinks    int
	RemovedDirectories []string
	ConfigRemoved      bool
	GitExcludesCleaned bool
	CleanedBackups     int
	Warnings           []string
	Errors             []string
}

var backupSuffix = regexp.MustCompile(`\.backup\.\d+\.[0-9a-f]+$`)

// Reset restores every tracked path to its original location and tears
// down the secondary repository, the storage tree, and the manifest.
// Without Force or DryRun, it returns a cancelled result without
// mutating anything.
func (e *Engine) Reset(opts ResetOptions) (*ResetResult, error) {
	result := &ResetResult{}
	if !opts.Force && !opts.DryRun {
		result.Cancelled = true
		return result, nil
	}

	handle, err := lock.Acquire(e.workingDir)
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	cfg, err := e.cfg.Load()
	if err != nil {
		return nil, err
	}

	if opts.DryRun {
		result.RestoredFiles = len(cfg.TrackedPaths)
		return result, nil
	}

	primary, err := vcsadapter.Open(e.workingDir)
	if err != nil {
		return nil, err
	}

	storageRoot := filepath.Join(e.workingDir, cfg.StoragePath)
	for _, rel := range cfg.TrackedPaths {
		link := filepath.Join(e.workingDir, rel)
		status := symlink.Validate(link, storageRoot)
		if status.Exists {
			if err := symlink.Remove(link); err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			result.RemovedSymlinks++
		}

		storageCopy := filepath.Join(storageRoot, rel)
		exists, err := e.fs.PathExists(storageCopy)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		if !exists {
			result.Warnings = append(result.Warnings, fmt.Sprintf("storage copy missing for %s, skipping restore", rel))
			continue
		}
		if err := e.fs.CreateDirectory(filepath.Dir(link), true); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		if _, err := e.fs.MoveAtomic(storageCopy, link); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.RestoredFiles++
	}

	for _, rel := range cfg.TrackedPaths {
		if err := primary.RemoveFromExclude(rel, cfg.Settings.GitExclude); err != nil {
			result.Warnings = append(result.Warnings, err.Error())
		}
	}
	result.GitExcludesCleaned = true

	privateRepoDir := filepath.Join(e.workingDir, cfg.PrivateRepoPath)
	if err := os.RemoveAll(privateRepoDir); err != nil {
		result.Errors = append(result.Errors, err.Error())
	} else {
		result.RemovedDirectories = append(result.RemovedDirectories, cfg.PrivateRepoPath)
	}
	if err := os.RemoveAll(storageRoot); err != nil {
		result.Errors = append(result.Errors, err.Error())
	} else {
		result.RemovedDirectories = append(result.RemovedDirectories, cfg.StoragePath)
	}

	manifestPath := filepath.Join(e.workingDir, config.FileName)
	if err := os.Remove(manifestPath); err != nil && !os.IsNotExist(err) {
		result.Errors = append(result.Errors, err.Error())
	} else {
		result.ConfigRemoved = true
	}

	result.CleanedBackups = e.sweepBackups()

	return result, nil
}

// sweepBackups removes backup sidecars left behind by move_atomic,
// repeating up to five times with a brief wait to catch stragglers
// created by an in-flight rollback.
func (e *Engine) sweepBackups() int {
	total := 0
	for attempt := 0; attempt < 5; attempt++ {
		found := 0
		filepath.WalkDir(e.workingDir, func(path string, d iofs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() && strings.HasPrefix(d.Name(), ".git") {
				return filepath.SkipDir
			}
			if !d.IsDir() && backupSuffix.MatchString(d.Name()) {
				if rmErr := os.Remove(path); rmErr == nil {
					found++
				}
			}
			return nil
		})
		total += found
		if found == 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	return total
}
