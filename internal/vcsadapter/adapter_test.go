package vcsadapter

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, rel, content string) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestInitRepositoryThenIsRepository(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if IsRepository(dir) {
		t.Fatal("IsRepository should be false before InitRepository")
	}
	if _, err := InitRepository(dir); err != nil {
		t.Fatalf("InitRepository: %v", err)
	}
	if !IsRepository(dir) {
		t.Error("IsRepository should be true after InitRepository")
	}
}

func TestOpenMissingRepositoryFails(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if _, err := Open(dir); err == nil {
		t.Fatal("Open should fail on a non-repository directory")
	}
}

func TestAddAndCommitThenStatusIsClean(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a, err := InitRepository(dir)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, "app.yaml", "key: value")

	hash, err := a.AddAndCommit([]string{"app.yaml"}, "pgit: add")
	if err != nil {
		t.Fatalf("AddAndCommit: %v", err)
	}
	if hash == "" {
		t.Fatal("AddAndCommit returned an empty commit hash")
	}

	tracked, err := a.IsTracked("app.yaml")
	if err != nil {
		t.Fatalf("IsTracked: %v", err)
	}
	if !tracked {
		t.Error("app.yaml should be tracked after commit")
	}
}

func TestGetFileStateUntrackedFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a, err := InitRepository(dir)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, "new.txt", "data")

	state, err := a.GetFileState("new.txt")
	if err != nil {
		t.Fatalf("GetFileState: %v", err)
	}
	if !state.IsUntracked || state.IsTracked {
		t.Errorf("state = %+v, want untracked/not-tracked", state)
	}
}

func TestRemoveFromIndexKeepsWorkingCopy(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a, err := InitRepository(dir)
	if err != nil {
		t.Fatal(err)
	}
	path := writeFile(t, dir, "tracked.txt", "data")
	if _, err := a.AddAndCommit([]string{"tracked.txt"}, "pgit: add"); err != nil {
		t.Fatal(err)
	}

	if err := a.RemoveFromIndex([]string{"tracked.txt"}, true); err != nil {
		t.Fatalf("RemoveFromIndex: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("working copy should survive RemoveFromIndex(keepWorkingCopy=true): %v", err)
	}
	tracked, err := a.IsTracked("tracked.txt")
	if err != nil {
		t.Fatal(err)
	}
	if tracked {
		t.Error("tracked.txt should no longer be reported tracked after RemoveFromIndex")
	}
}

func TestResetMixedUnstagesWithoutTouchingWorkingCopy(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a, err := InitRepository(dir)
	if err != nil {
		t.Fatal(err)
	}
	path := writeFile(t, dir, "a.txt", "first")
	if _, err := a.AddAndCommit([]string{"a.txt"}, "pgit: add"); err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, "a.txt", "second")
	if err := a.Add([]string{"a.txt"}); err != nil {
		t.Fatal(err)
	}

	if err := a.Reset(ResetMixed, "HEAD"); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second" {
		t.Errorf("mixed reset must not touch the working copy, got %q", data)
	}
}

func TestBuildCommitMessageFlowsThroughAddAndCommit(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a, err := InitRepository(dir)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, "only.txt", "x")

	hash, err := a.AddAndCommit([]string{"only.txt"}, "pgit: add")
	if err != nil {
		t.Fatal(err)
	}
	if hash == "" {
		t.Fatal("expected a commit hash")
	}
}
