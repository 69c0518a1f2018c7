package fsops

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAtomicThenRead(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := New()
	path := filepath.Join(dir, "nested", "file.txt")

	if err := s.WriteAtomic(path, []byte("hello")); err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}

	data, err := s.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("ReadFile = %q, want %q", data, "hello")
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" || e.Name()[0] == '.' && e.Name() != "file.txt" {
			t.Errorf("leftover temp file: %s", e.Name())
		}
	}
}

func TestMoveAtomicSameFilesystemWithBackup(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := New()
	s.CreateBackups = true

	src := filepath.Join(dir, "secret.env")
	dst := filepath.Join(dir, "storage", "secret.env")
	if err := os.WriteFile(src, []byte("topsecret"), 0o644); err != nil {
		t.Fatal(err)
	}

	backup, err := s.MoveAtomic(src, dst)
	if err != nil {
		t.Fatalf("MoveAtomic: %v", err)
	}
	if backup == "" {
		t.Fatal("expected a non-empty backup path when CreateBackups is true")
	}

	if exists, _ := s.PathExists(src); exists {
		t.Error("source should no longer exist after move")
	}
	data, err := s.ReadFile(dst)
	if err != nil || string(data) != "topsecret" {
		t.Fatalf("ReadFile(dst) = %q, %v", data, err)
	}
	backupData, err := s.ReadFile(backup)
	if err != nil || string(backupData) != "topsecret" {
		t.Fatalf("ReadFile(backup) = %q, %v", backupData, err)
	}
}

func TestMoveAtomicNoBackupWhenDisabled(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := New()
	s.CreateBackups = false

	src := filepath.Join(dir, "a.txt")
	dst := filepath.Join(dir, "b", "a.txt")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	backup, err := s.MoveAtomic(src, dst)
	if err != nil {
		t.Fatalf("MoveAtomic: %v", err)
	}
	if backup != "" {
		t.Errorf("expected no backup, got %q", backup)
	}
}

func TestMoveAtomicPrunesBackupsBeyondMax(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := New()
	s.CreateBackups = true
	s.MaxBackups = 2

	src := filepath.Join(dir, "secret.env")
	for i := 0; i < 4; i++ {
		if err := os.WriteFile(src, []byte("v"), 0o644); err != nil {
			t.Fatal(err)
		}
		dst := filepath.Join(dir, "storage", "secret.env")
		if _, err := s.MoveAtomic(src, dst); err != nil {
			t.Fatalf("MoveAtomic iteration %d: %v", i, err)
		}
		// MoveAtomic relocates src to dst; restage a fresh src for the
		// next backup round so each iteration writes a new sidecar.
		if err := os.Rename(dst, src); err != nil {
			t.Fatal(err)
		}
	}

	matches, err := filepath.Glob(src + ".backup.*")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != s.MaxBackups {
		t.Errorf("backup sidecars = %d, want %d after pruning", len(matches), s.MaxBackups)
	}
}

func TestRollbackActionsRunLIFO(t *testing.T) {
	t.Parallel()
	s := New()
	var order []int
	s.PushRollbackAction(func() error { order = append(order, 1); return nil })
	s.PushRollbackAction(func() error { order = append(order, 2); return nil })
	s.PushRollbackAction(func() error { order = append(order, 3); return nil })

	if err := s.RunRollbackActions(); err != nil {
		t.Fatalf("RunRollbackActions: %v", err)
	}
	want := []int{3, 2, 1}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %d, want %d", i, order[i], want[i])
		}
	}
}

func TestClearRollbackActionsDiscardsWithoutRunning(t *testing.T) {
	t.Parallel()
	s := New()
	ran := false
	s.PushRollbackAction(func() error { ran = true; return nil })
	s.ClearRollbackActions()
	if err := s.RunRollbackActions(); err != nil {
		t.Fatalf("RunRollbackActions: %v", err)
	}
	if ran {
		t.Error("cleared rollback action must not run")
	}
}
