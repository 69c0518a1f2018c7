package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/crystalphantom/pgit-cli/internal/config"
	"github.com/crystalphantom/pgit-cli/internal/lock"
	"github.com/crystalphantom/pgit-cli/internal/pgiterr"
	"github.com/crystalphantom/pgit-cli/internal/vcsadapter"
)

func setupWorkingDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if _, err := vcsadapter.InitRepository(dir); err != nil {
		t.Fatalf("InitRepository: %v", err)
	}
	mgr := config.New(dir)
	if _, err := mgr.Create("testproject", dir); err != nil {
		t.Fatalf("config.Create: %v", err)
	}
	return dir
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// E1 — single file happy path.
func TestAddSingleFileHappyPath(t *testing.T) {
	t.Parallel()
	dir := setupWorkingDir(t)
	writeFile(t, dir, "README.md", "readme")
	writeFile(t, dir, "secret.env", "KEY=value")

	eng := New(dir)
	result, err := eng.Add([]string{"secret.env"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(result.Tracked) != 1 || result.Tracked[0] != "secret.env" {
		t.Fatalf("Tracked = %v, want [secret.env]", result.Tracked)
	}

	linkPath := filepath.Join(dir, "secret.env")
	info, err := os.Lstat(linkPath)
	if err != nil {
		t.Fatalf("Lstat(secret.env): %v", err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Error("secret.env should be a symlink after add")
	}

	storageFile := filepath.Join(dir, ".private-storage", "secret.env")
	data, err := os.ReadFile(storageFile)
	if err != nil || string(data) != "KEY=value" {
		t.Errorf("storage copy = %q, %v, want KEY=value", data, err)
	}

	excludeData, err := os.ReadFile(filepath.Join(dir, ".git", "info", "exclude"))
	if err != nil {
		t.Fatalf("read exclude file: %v", err)
	}
	if !strings.Contains(string(excludeData), config.DefaultMarkerComment) || !strings.Contains(string(excludeData), "secret.env") {
		t.Errorf("exclude file = %q, want marker and secret.env", excludeData)
	}

	cfg, err := config.New(dir).Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.TrackedPaths) != 1 || cfg.TrackedPaths[0] != "secret.env" {
		t.Errorf("manifest trackedPaths = %v, want [secret.env]", cfg.TrackedPaths)
	}
}

// E2 — batch of three with one invalid: no mutation at all.
func TestAddRejectsInvalidBatchWithoutMutation(t *testing.T) {
	t.Parallel()
	dir := setupWorkingDir(t)
	writeFile(t, dir, "a.txt", "a")
	writeFile(t, dir, "b.txt", "b")

	eng := New(dir)
	_, err := eng.Add([]string{"a.txt", "../escape", "b.txt"})
	if err == nil {
		t.Fatal("expected an InvalidBatch error")
	}
	if !pgiterr.IsKind(err, pgiterr.InvalidBatch) {
		t.Errorf("expected InvalidBatch kind, got %v", err)
	}

	if _, statErr := os.Stat(filepath.Join(dir, ".private-storage")); !os.IsNotExist(statErr) {
		t.Error("storage directory should not exist after a rejected batch")
	}
	if _, statErr := os.Lstat(filepath.Join(dir, "a.txt")); statErr != nil {
		t.Fatal(statErr)
	}
	info, _ := os.Lstat(filepath.Join(dir, "a.txt"))
	if info.Mode()&os.ModeSymlink != 0 {
		t.Error("a.txt should remain a regular file, not a symlink")
	}
}

// E6 — disabled exclude with fallback=error aborts the whole add.
func TestAddDisabledExcludeErrorAbortsAdd(t *testing.T) {
	t.Parallel()
	dir := setupWorkingDir(t)
	mgr := config.New(dir)
	cfg, err := mgr.Load()
	if err != nil {
		t.Fatal(err)
	}
	cfg.Settings.GitExclude.Enabled = false
	cfg.Settings.GitExclude.FallbackBehavior = config.FallbackError
	if err := mgr.Save(cfg); err != nil {
		t.Fatal(err)
	}

	writeFile(t, dir, "x.txt", "x")
	eng := New(dir)
	_, err = eng.Add([]string{"x.txt"})
	if err == nil {
		t.Fatal("expected ExcludeDisabled error to abort add")
	}
	if !pgiterr.IsKind(err, pgiterr.ExcludeDisabled) {
		t.Errorf("expected ExcludeDisabled kind, got %v", err)
	}

	if _, statErr := os.Stat(filepath.Join(dir, ".private-storage", "x.txt")); !os.IsNotExist(statErr) {
		t.Error("x.txt should not have been moved into storage")
	}
	info, statErr := os.Lstat(filepath.Join(dir, "x.txt"))
	if statErr != nil {
		t.Fatal(statErr)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		t.Error("x.txt should remain a regular file after a rolled-back add")
	}
}

// E5 — disabled exclude with fallback=warn still completes the add.
func TestAddDisabledExcludeWarnStillCompletes(t *testing.T) {
	t.Parallel()
	dir := setupWorkingDir(t)
	mgr := config.New(dir)
	cfg, err := mgr.Load()
	if err != nil {
		t.Fatal(err)
	}
	cfg.Settings.GitExclude.Enabled = false
	cfg.Settings.GitExclude.FallbackBehavior = config.FallbackWarn
	if err := mgr.Save(cfg); err != nil {
		t.Fatal(err)
	}

	writeFile(t, dir, "x.txt", "x")
	eng := New(dir)
	result, err := eng.Add([]string{"x.txt"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "Git exclude operation 'add' for 'x.txt' skipped") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a skip warning, got %v", result.Warnings)
	}

	info, err := os.Lstat(filepath.Join(dir, "x.txt"))
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		t.Error("x.txt should still be linked even with exclude disabled")
	}
	if _, statErr := os.Stat(filepath.Join(dir, ".private-storage", "x.txt")); statErr != nil {
		t.Error("x.txt should still be moved into storage")
	}
}

// E7 — reset round-trip.
func TestResetRestoresOriginalState(t *testing.T) {
	t.Parallel()
	dir := setupWorkingDir(t)
	writeFile(t, dir, "secret.env", "KEY=value")

	eng := New(dir)
	if _, err := eng.Add([]string{"secret.env"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	result, err := eng.Reset(ResetOptions{Force: true})
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if len(result.Errors) != 0 {
		t.Errorf("Reset errors = %v, want none", result.Errors)
	}
	if result.RestoredFiles != 1 || result.RemovedSymlinks != 1 {
		t.Errorf("RestoredFiles=%d RemovedSymlinks=%d, want 1 and 1", result.RestoredFiles, result.RemovedSymlinks)
	}
	if !result.ConfigRemoved {
		t.Error("ConfigRemoved should be true")
	}

	data, err := os.ReadFile(filepath.Join(dir, "secret.env"))
	if err != nil || string(data) != "KEY=value" {
		t.Fatalf("secret.env content = %q, %v, want original bytes restored", data, err)
	}
	info, err := os.Lstat(filepath.Join(dir, "secret.env"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		t.Error("secret.env should be a regular file after reset, not a symlink")
	}

	if _, statErr := os.Stat(filepath.Join(dir, ".private-storage")); !os.IsNotExist(statErr) {
		t.Error("storage directory should be removed after reset")
	}
	if _, statErr := os.Stat(filepath.Join(dir, ".private-config.json")); !os.IsNotExist(statErr) {
		t.Error("manifest should be removed after reset")
	}
}

func TestResetWithoutForceOrDryRunCancels(t *testing.T) {
	t.Parallel()
	dir := setupWorkingDir(t)
	writeFile(t, dir, "secret.env", "KEY=value")
	eng := New(dir)
	if _, err := eng.Add([]string{"secret.env"}); err != nil {
		t.Fatal(err)
	}

	result, err := eng.Reset(ResetOptions{})
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if !result.Cancelled {
		t.Error("expected a cancelled result without force or dry-run")
	}

	if _, statErr := os.Stat(filepath.Join(dir, ".private-config.json")); statErr != nil {
		t.Error("manifest should survive a cancelled reset")
	}
}

func TestAddRejectsOversizedBatch(t *testing.T) {
	t.Parallel()
	dir := setupWorkingDir(t)
	paths := make([]string, MaxBatchSize+1)
	for i := range paths {
		paths[i] = fmt.Sprintf("f/file%d.txt", i)
	}
	eng := New(dir)
	_, err := eng.Add(paths)
	if err == nil {
		t.Fatal("expected a rejection for a batch over the max size")
	}
	if !pgiterr.IsKind(err, pgiterr.InvalidBatch) {
		t.Errorf("expected InvalidBatch kind, got %v", err)
	}
}

// Confirms Add acquires the advisory lock described in spec.md §5
// rather than racing a concurrent invocation.
func TestAddFailsWhileLockIsHeld(t *testing.T) {
	t.Parallel()
	dir := setupWorkingDir(t)
	writeFile(t, dir, "secret.env", "KEY=value")

	held, err := lock.Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer held.Release()

	eng := New(dir)
	_, err = eng.Add([]string{"secret.env"})
	if err == nil {
		t.Fatal("expected Add to fail while the lock is held by another process")
	}
	if !pgiterr.IsKind(err, pgiterr.LockHeld) {
		t.Errorf("expected LockHeld kind, got %v", err)
	}
}

func TestAddChunksLargeBatches(t *testing.T) {
	t.Parallel()
	dir := setupWorkingDir(t)
	const n = 75
	paths := make([]string, n)
	for i := 0; i < n; i++ {
		rel := filepath.Join("files", fmt.Sprintf("%03d.txt", i))
		writeFile(t, dir, rel, "data")
		paths[i] = rel
	}

	eng := New(dir)
	result, err := eng.Add(paths)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(result.Tracked) != n {
		t.Fatalf("Tracked has %d entries, want %d", len(result.Tracked), n)
	}
	if len(result.CommitHashes) != 2 {
		t.Errorf("CommitHashes = %v, want 2 chunks for %d paths", result.CommitHashes, n)
	}
}
