// Package vcsadapter is the narrow surface over go-git the rest of the
// engine uses: status, add, remove-from-index, commit, reset, plus
// exclude-file manipulation (spec.md 4.D). Each Adapter instance is
// bound to one working directory, as the spec's ownership model
// requires.
package vcsadapter

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/crystalphantom/pgit-cli/internal/config"
	"github.com/crystalphantom/pgit-cli/internal/pgiterr"
)

// ResetMode mirrors the subset of git reset modes the orchestrator uses.
type ResetMode int

const (
	ResetMixed ResetMode = iota
	ResetHard
)

// Signature identifies the author/committer on commits this engine makes.
var Signature = object.Signature{
	Name:  "pgit-cli",
	Email: "pgit-cli@localhost",
}

// Adapter wraps one working directory's git repository.
type Adapter struct {
	workingDir string
	repo       *git.Repository
}

// IsRepository reports whether dir is the working directory of a git
// repository, without raising an error for the common "not yet" case.
func IsRepository(dir string) bool {
	_, err := git.PlainOpen(dir)
	return err == nil
}

// Open binds an Adapter to an existing repository at workingDir.
func Open(workingDir string) (*Adapter, error) {
	repo, err := git.PlainOpen(workingDir)
	if err != nil {
		return nil, pgiterr.NewRepositoryNotFoundError(workingDir)
	}
	return &Adapter{workingDir: workingDir, repo: repo}, nil
}

// InitRepository creates a new repository at workingDir and binds an
// Adapter to it.
func InitRepository(workingDir string) (*Adapter, error) {
	if err := os.MkdirAll(workingDir, 0o755); err != nil {
		return nil, pgiterr.NewFilesystemOperationError("mkdir", workingDir, err)
	}
	repo, err := git.PlainInit(workingDir, false)
	if err != nil {
		return nil, pgiterr.NewVcsOperationError("init_repository", err)
	}
	return &Adapter{workingDir: workingDir, repo: repo}, nil
}

// InitWithSeparateGitDir creates the secondary repository spec.md 6
// describes: a git-dir at gitDir independent of its worktree at
// workTree. go-git has no PlainInit option for this shape, so the
// storage and worktree filesystems are wired by hand.
func InitWithSeparateGitDir(gitDir, workTree string) (*Adapter, error) {
	if err := os.MkdirAll(workTree, 0o755); err != nil {
		return nil, pgiterr.NewFilesystemOperationError("mkdir", workTree, err)
	}
	if err := os.MkdirAll(gitDir, 0o755); err != nil {
		return nil, pgiterr.NewFilesystemOperationError("mkdir", gitDir, err)
	}
	storer := filesystem.NewStorage(osfs.New(gitDir), cache.NewObjectLRUDefault())
	repo, err := git.Init(storer, osfs.New(workTree))
	if err != nil {
		return nil, pgiterr.NewVcsOperationError("init_repository", err)
	}
	return &Adapter{workingDir: workTree, repo: repo}, nil
}

// OpenWithSeparateGitDir binds an Adapter to an existing separate-git-dir
// repository, the secondary-repository counterpart to Open.
func OpenWithSeparateGitDir(gitDir, workTree string) (*Adapter, error) {
	storer := filesystem.NewStorage(osfs.New(gitDir), cache.NewObjectLRUDefault())
	repo, err := git.Open(storer, osfs.New(workTree))
	if err != nil {
		return nil, pgiterr.NewRepositoryNotFoundError(workTree)
	}
	return &Adapter{workingDir: workTree, repo: repo}, nil
}

func (a *Adapter) worktree() (*git.Worktree, error) {
	wt, err := a.repo.Worktree()
	if err != nil {
		return nil, pgiterr.NewVcsOperationError("worktree", err)
	}
	return wt, nil
}

// StatusEntry summarizes one path's staging/worktree state.
type StatusEntry struct {
	Path     string
	Staging  git.StatusCode
	Worktree git.StatusCode
}

// Status returns a structured summary of the repository's current state.
func (a *Adapter) Status() ([]StatusEntry, error) {
	wt, err := a.worktree()
	if err != nil {
		return nil, err
	}
	status, err := wt.Status()
	if err != nil {
		return nil, pgiterr.NewVcsOperationError("status", err)
	}
	entries := make([]StatusEntry, 0, len(status))
	for path, fs := range status {
		entries = append(entries, StatusEntry{Path: path, Staging: fs.Staging, Worktree: fs.Worktree})
	}
	return entries, nil
}

// Add stages paths (relative to the working directory).
func (a *Adapter) Add(paths []string) error {
	wt, err := a.worktree()
	if err != nil {
		return err
	}
	for _, p := range paths {
		if _, err := wt.Add(p); err != nil {
			return pgiterr.NewVcsIndexError("add:"+p, err)
		}
	}
	return nil
}

// RemoveFromIndex drops paths from the index. When keepWorkingCopy is
// true the files are left untouched on disk — go-git's Worktree.Remove
// deletes both, so this manipulates the index storer directly instead.
func (a *Adapter) RemoveFromIndex(paths []string, keepWorkingCopy bool) error {
	if !keepWorkingCopy {
		wt, err := a.worktree()
		if err != nil {
			return err
		}
		for _, p := range paths {
			if _, err := wt.Remove(p); err != nil && err != index.ErrEntryNotFound {
				return pgiterr.NewVcsIndexError("remove:"+p, err)
			}
		}
		return nil
	}

	idx, err := a.repo.Storer.Index()
	if err != nil {
		return pgiterr.NewVcsIndexError("read_index", err)
	}

	remove := make(map[string]bool, len(paths))
	for _, p := range paths {
		remove[filepath.ToSlash(p)] = true
	}

	kept := idx.Entries[:0]
	for _, e := range idx.Entries {
		if remove[e.Name] {
			continue
		}
		kept = append(kept, e)
	}
	idx.Entries = kept

	if err := a.repo.Storer.SetIndex(idx); err != nil {
		return pgiterr.NewVcsIndexError("write_index", err)
	}
	return nil
}

// IsTracked reports whether path is currently present in HEAD's tree or
// the index (i.e. not untracked).
func (a *Adapter) IsTracked(path string) (bool, error) {
	state, err := a.GetFileState(path)
	if err != nil {
		return false, err
	}
	return state.IsTracked, nil
}

// GetFileState captures the ephemeral snapshot spec.md 3 describes.
func (a *Adapter) GetFileState(path string) (FileVcsState, error) {
	slashPath := filepath.ToSlash(path)
	wt, err := a.worktree()
	if err != nil {
		return FileVcsState{}, err
	}
	status, err := wt.Status()
	if err != nil {
		return FileVcsState{}, pgiterr.NewVcsOperationError("status", err)
	}

	// status.File would insert an Untracked/Untracked entry for a path git
	// has nothing to report on, so look the path up directly instead.
	fs, reported := status[slashPath]
	if !reported {
		fs = &git.FileStatus{Staging: git.Unmodified, Worktree: git.Unmodified}
	}
	excluded, err := a.IsInExclude(path)
	if err != nil {
		return FileVcsState{}, err
	}

	isUntracked := fs.Staging == git.Untracked && fs.Worktree == git.Untracked
	isStaged := fs.Staging != git.Unmodified && fs.Staging != git.Untracked
	isModified := fs.Worktree == git.Modified

	// A path absent from the status map (both codes Unmodified above) is
	// the common case of a clean, already-committed file. Confirm those
	// against HEAD's tree rather than assuming untracked.
	tracked := !isUntracked
	if fs.Staging == git.Unmodified && fs.Worktree == git.Unmodified {
		inTree, err := a.inHeadTree(slashPath)
		if err != nil {
			return FileVcsState{}, pgiterr.NewVcsOperationError("read_head_tree", err)
		}
		tracked = inTree
	}

	return FileVcsState{
		OriginalPath: path,
		Timestamp:    time.Now(),
		IsExcluded:   excluded,
		IsUntracked:  isUntracked,
		IsStaged:     isStaged,
		IsModified:   isModified,
		IsTracked:    tracked,
	}, nil
}

func (a *Adapter) inHeadTree(slashPath string) (bool, error) {
	head, err := a.repo.Head()
	if err != nil {
		return false, nil // no commits yet
	}
	commit, err := a.repo.CommitObject(head.Hash())
	if err != nil {
		return false, err
	}
	tree, err := commit.Tree()
	if err != nil {
		return false, err
	}
	_, err = tree.File(slashPath)
	return err == nil, nil
}

// RecordOriginalState is an explicit, separately-testable alias for
// GetFileState used at the snapshot step of the staged mutation
// protocol, so call sites read like the spec's step names.
func (a *Adapter) RecordOriginalState(path string) (FileVcsState, error) {
	return a.GetFileState(path)
}

// RestoreOriginalState returns path to the (isTracked, isStaged,
// isExcluded) triple the snapshot held. excludeSettings governs how the
// exclude-file half of that restore is attempted, matching whatever
// settings were in effect when the snapshot was taken.
func (a *Adapter) RestoreOriginalState(path string, snapshot FileVcsState, excludeSettings config.ExcludeSettings) error {
	if snapshot.IsExcluded {
		if err := a.AddToExclude(path, excludeSettings); err != nil {
			return err
		}
	} else {
		if err := a.RemoveFromExclude(path, excludeSettings); err != nil {
			return err
		}
	}

	if snapshot.IsTracked || snapshot.IsStaged {
		return a.Add([]string{path})
	}
	return a.RemoveFromIndex([]string{path}, true)
}

// Commit records the current index with msg.
func (a *Adapter) Commit(msg string) (string, error) {
	wt, err := a.worktree()
	if err != nil {
		return "", err
	}
	sig := Signature
	sig.When = time.Now()
	hash, err := wt.Commit(msg, &git.CommitOptions{Author: &sig, Committer: &sig})
	if err != nil {
		return "", pgiterr.NewVcsOperationError("commit", err)
	}
	return hash.String(), nil
}

// AddAndCommit stages paths, synthesizes the batch commit message from
// baseMsg per spec.md 4.F step 5, and commits.
func (a *Adapter) AddAndCommit(paths []string, baseMsg string) (string, error) {
	if err := a.Add(paths); err != nil {
		return "", err
	}
	return a.Commit(BuildCommitMessage(baseMsg, paths))
}

// Reset resets the working tree to commit (a hash, "HEAD", or "HEAD~N").
func (a *Adapter) Reset(mode ResetMode, commit string) error {
	wt, err := a.worktree()
	if err != nil {
		return err
	}
	hash, err := a.resolveRevision(commit)
	if err != nil {
		return pgiterr.NewVcsOperationError("resolve_revision:"+commit, err)
	}
	gitMode := git.MixedReset
	if mode == ResetHard {
		gitMode = git.HardReset
	}
	if err := wt.Reset(&git.ResetOptions{Commit: hash, Mode: gitMode}); err != nil {
		return pgiterr.NewVcsOperationError("reset", err)
	}
	return nil
}

func (a *Adapter) resolveRevision(rev string) (plumbing.Hash, error) {
	if rev == "HEAD" {
		head, err := a.repo.Head()
		if err != nil {
			return plumbing.ZeroHash, err
		}
		return head.Hash(), nil
	}
	if strings.HasPrefix(rev, "HEAD~") {
		n, err := strconv.Atoi(strings.TrimPrefix(rev, "HEAD~"))
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("invalid revision %q: %w", rev, err)
		}
		head, err := a.repo.Head()
		if err != nil {
			return plumbing.ZeroHash, err
		}
		commit, err := a.repo.CommitObject(head.Hash())
		if err != nil {
			return plumbing.ZeroHash, err
		}
		for i := 0; i < n; i++ {
			commit, err = commit.Parent(0)
			if err != nil {
				return plumbing.ZeroHash, err
			}
		}
		return commit.Hash, nil
	}
	return plumbing.NewHash(rev), nil
}
