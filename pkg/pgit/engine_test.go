package pgit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/crystalphantom/pgit-cli/internal/orchestrator"
)

func TestInitThenAddThenReset(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	eng := New(dir)
	initResult, err := eng.Init("demo")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if initResult.AlreadyInitialized {
		t.Fatal("fresh directory should not report AlreadyInitialized")
	}

	status, err := eng.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Initialized || status.ProjectName != "demo" {
		t.Errorf("Status = %+v, want Initialized=true ProjectName=demo", status)
	}

	secretPath := filepath.Join(dir, "secret.env")
	if err := os.WriteFile(secretPath, []byte("KEY=value"), 0o644); err != nil {
		t.Fatal(err)
	}

	addResult, err := eng.Add([]string{"secret.env"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(addResult.Tracked) != 1 {
		t.Fatalf("Tracked = %v, want one entry", addResult.Tracked)
	}

	tracked, err := eng.IsTracked("secret.env")
	if err != nil {
		t.Fatal(err)
	}
	if !tracked {
		t.Error("IsTracked(secret.env) = false, want true after Add")
	}

	status, err = eng.Status()
	if err != nil {
		t.Fatal(err)
	}
	if len(status.TrackedPaths) != 1 || status.TrackedPaths[0] != "secret.env" {
		t.Errorf("Status.TrackedPaths = %v, want [secret.env]", status.TrackedPaths)
	}

	resetResult, err := eng.Reset(orchestrator.ResetOptions{Force: true})
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if resetResult.RestoredFiles != 1 {
		t.Errorf("RestoredFiles = %d, want 1", resetResult.RestoredFiles)
	}

	status, err = eng.Status()
	if err != nil {
		t.Fatal(err)
	}
	if status.Initialized {
		t.Error("Status.Initialized should be false once reset has torn down the manifest")
	}
}

func TestInitIsIdempotent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	eng := New(dir)

	if _, err := eng.Init("demo"); err != nil {
		t.Fatal(err)
	}
	second, err := eng.Init("demo")
	if err != nil {
		t.Fatalf("second Init: %v", err)
	}
	if !second.AlreadyInitialized {
		t.Error("second Init should report AlreadyInitialized")
	}
}

func TestStatusOnUninitializedDirectory(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	eng := New(dir)

	status, err := eng.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Initialized {
		t.Error("Status.Initialized should be false before Init")
	}

	tracked, err := eng.IsTracked("anything")
	if err != nil {
		t.Fatal(err)
	}
	if tracked {
		t.Error("IsTracked should be false before Init")
	}
}
