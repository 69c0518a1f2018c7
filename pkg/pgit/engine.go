// Package pgit is the public client surface of the private tracking
// layer: one Engine type, constructed per working directory, exposing
// Init/Add/Reset/Status as plain method calls. It wraps
// internal/orchestrator the way the teacher's pkg/linear client wraps
// its internal transport — a thin facade other programs import instead
// of reaching into internal packages directly.
package pgit

import (
	"github.com/crystalphantom/pgit-cli/internal/config"
	"github.com/crystalphantom/pgit-cli/internal/orchestrator"
	"github.com/crystalphantom/pgit-cli/internal/vcsadapter"
)

// Engine is the public entry point: one instance per working directory.
type Engine struct {
	workingDir string
	orch       *orchestrator.Engine
}

// New binds an Engine to workingDir. It does not touch the filesystem;
// call Init to bootstrap a new project or Add/Reset against an existing
// one.
func New(workingDir string) *Engine {
	return &Engine{
		workingDir: workingDir,
		orch:       orchestrator.New(workingDir),
	}
}

// InitResult reports what Init did.
type InitResult struct {
	AlreadyInitialized bool
	ProjectName        string
}

// Init bootstraps a new project at the engine's working directory: it
// opens (or initializes) the primary repository and writes a fresh
// manifest with projectName as its metadata label. Init is idempotent —
// calling it again against an already-initialized working directory
// returns AlreadyInitialized without touching anything.
func (e *Engine) Init(projectName string) (*InitResult, error) {
	mgr := config.New(e.workingDir)
	if mgr.Exists() {
		return &InitResult{AlreadyInitialized: true}, nil
	}

	if !vcsadapter.IsRepository(e.workingDir) {
		if _, err := vcsadapter.InitRepository(e.workingDir); err != nil {
			return nil, err
		}
	}

	if _, err := mgr.Create(projectName, e.workingDir); err != nil {
		return nil, err
	}

	return &InitResult{ProjectName: projectName}, nil
}

// Add runs the staged mutation protocol (spec.md 4.F) against paths.
func (e *Engine) Add(paths []string) (*orchestrator.AddResult, error) {
	return e.orch.Add(paths)
}

// Reset runs Add's inverse: restoring every tracked path and tearing
// down the secondary repository, storage tree, and manifest.
func (e *Engine) Reset(opts orchestrator.ResetOptions) (*orchestrator.ResetResult, error) {
	return e.orch.Reset(opts)
}

// StatusReport is a read-only summary of the working directory's
// tracking state. Presentation of this data (the CLI's "status" verb)
// is an external collaborator (spec.md 1); Status only assembles the
// facts.
type StatusReport struct {
	Initialized  bool
	ProjectName  string
	TrackedPaths []string
	Health       config.Health
}

// Status reports the current tracking state without mutating anything.
// It never returns NotInitialized: an uninitialized working directory
// simply reports Initialized=false.
func (e *Engine) Status() (*StatusReport, error) {
	mgr := config.New(e.workingDir)
	if !mgr.Exists() {
		return &StatusReport{Initialized: false}, nil
	}

	health := mgr.GetHealth()
	cfg, err := mgr.Load()
	if err != nil {
		return &StatusReport{Initialized: true, Health: health}, nil
	}

	return &StatusReport{
		Initialized:  true,
		ProjectName:  cfg.Metadata.ProjectName,
		TrackedPaths: cfg.TrackedPaths,
		Health:       health,
	}, nil
}

// IsTracked reports whether path is currently a tracked path in the
// manifest, without loading the full status report.
func (e *Engine) IsTracked(path string) (bool, error) {
	mgr := config.New(e.workingDir)
	if !mgr.Exists() {
		return false, nil
	}
	cfg, err := mgr.Load()
	if err != nil {
		return false, err
	}
	for _, p := range cfg.TrackedPaths {
		if p == path {
			return true, nil
		}
	}
	return false, nil
}
