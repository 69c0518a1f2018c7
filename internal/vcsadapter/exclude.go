package vcsadapter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/crystalphantom/pgit-cli/internal/config"
	"github.com/crystalphantom/pgit-cli/internal/fsops"
	"github.com/crystalphantom/pgit-cli/internal/pgiterr"
)

const (
	maxExcludeSize       = fsops.MaxExcludeFileSize
	maxExcludeLineLength = 4096
	maxExcludeLines      = 10000
)

// ExcludeFilePath returns the per-repository, non-shared ignore list
// path for workingDir.
func ExcludeFilePath(workingDir string) string {
	return filepath.Join(workingDir, ".git", "info", "exclude")
}

func (a *Adapter) excludePath() string {
	return ExcludeFilePath(a.workingDir)
}

// ReadExcludeFile returns the exclude file's raw contents, or nil if it
// does not yet exist.
func (a *Adapter) ReadExcludeFile() ([]byte, error) {
	data, err := os.ReadFile(a.excludePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, pgiterr.NewExcludeAccessError(a.excludePath(), err)
	}
	return data, nil
}

// WriteExcludeFile integrity-checks content, writes it via temp-file +
// rename, sets permissions, and re-validates the result — the four-step
// contract from spec.md 4.D. An empty content deletes the file entirely.
func (a *Adapter) WriteExcludeFile(content []byte) error {
	path := a.excludePath()

	if err := checkExcludeIntegrity(content); err != nil {
		return err
	}

	if len(content) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return pgiterr.NewExcludeAccessError(path, err)
		}
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return pgiterr.NewExcludeAccessError(dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-exclude-*")
	if err != nil {
		return pgiterr.NewExcludeAccessError(path, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return pgiterr.NewExcludeAccessError(path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return pgiterr.NewExcludeAccessError(path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return pgiterr.NewExcludeAccessError(path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return pgiterr.NewExcludeAccessError(path, err)
	}

	os.Chmod(path, 0o644)
	os.Chmod(dir, 0o755)

	written, err := os.ReadFile(path)
	if err != nil {
		return pgiterr.NewExcludeAccessError(path, err)
	}
	return checkExcludeIntegrity(written)
}

// checkExcludeIntegrity enforces the ExcludeFile invariants from
// spec.md 3 and 8.5: size, line count, line length, forbidden bytes.
func checkExcludeIntegrity(content []byte) error {
	if len(content) > maxExcludeSize {
		return pgiterr.NewExcludeCorruptionError("exclude file is " + fsops.FormatSize(int64(len(content))) + ", exceeds " + fsops.FormatSize(maxExcludeSize) + " limit")
	}
	for _, b := range content {
		if b == 0 {
			return pgiterr.NewExcludeCorruptionError("exclude file contains a NUL byte")
		}
		if b < 0x20 && b != '\n' && b != '\r' && b != '\t' {
			return pgiterr.NewExcludeCorruptionError("exclude file contains a control character")
		}
		if b == 0x7f {
			return pgiterr.NewExcludeCorruptionError("exclude file contains a DEL character")
		}
	}
	lines := splitLines(content)
	if len(lines) > maxExcludeLines {
		return pgiterr.NewExcludeCorruptionError("exclude file has too many lines")
	}
	for _, l := range lines {
		if len(l) > maxExcludeLineLength {
			return pgiterr.NewExcludeCorruptionError("exclude file has a line exceeding the length limit")
		}
	}
	return nil
}

func splitLines(content []byte) []string {
	if len(content) == 0 {
		return nil
	}
	text := strings.TrimSuffix(string(content), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func lineSet(lines []string) map[string]bool {
	set := make(map[string]bool, len(lines))
	for _, l := range lines {
		set[l] = true
	}
	return set
}

func markerIndex(lines []string, marker string) int {
	for i, l := range lines {
		if l == marker {
			return i
		}
	}
	return -1
}

func validateExcludePath(path string) error {
	if path == "" {
		return pgiterr.NewExcludeValidationError(path, "path must not be empty")
	}
	slashed := strings.ReplaceAll(path, "\\", "/")
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return pgiterr.NewExcludeValidationError(path, "path must not contain parent-traversal segments")
		}
	}
	if strings.HasPrefix(slashed, "/") {
		return pgiterr.NewExcludeValidationError(path, "path must not be absolute")
	}
	if slashed == ".git" || strings.HasPrefix(slashed, ".git/") {
		return pgiterr.NewExcludeValidationError(path, "path must not start with .git/")
	}
	return nil
}

// IsInExclude reports whether path appears as an exact, non-comment line
// in the exclude file — used to populate FileVcsState.IsExcluded
// regardless of whether exclude handling is currently enabled.
func (a *Adapter) IsInExclude(path string) (bool, error) {
	content, err := a.ReadExcludeFile()
	if err != nil {
		return false, err
	}
	for _, l := range splitLines(content) {
		if l == path {
			return true, nil
		}
	}
	return false, nil
}

// PgitManagedExcludes returns every non-blank line following the marker
// comment, i.e. the engine-managed section this adapter itself appends
// to — by construction, everything after the marker is engine-managed.
func (a *Adapter) PgitManagedExcludes(marker string) ([]string, error) {
	content, err := a.ReadExcludeFile()
	if err != nil {
		return nil, err
	}
	lines := splitLines(content)
	idx := markerIndex(lines, marker)
	if idx < 0 {
		return nil, nil
	}
	var managed []string
	for _, l := range lines[idx+1:] {
		if l != "" {
			managed = append(managed, l)
		}
	}
	return managed, nil
}

// AddToExclude adds a single path; see AddMultipleToExclude for the
// fallback/partition semantics it shares.
func (a *Adapter) AddToExclude(path string, settings config.ExcludeSettings) error {
	_, failed, _, err := a.AddMultipleToExclude([]string{path}, settings)
	if err != nil {
		return err
	}
	if len(failed) > 0 {
		return pgiterr.NewExcludeValidationError(path, "path rejected by exclude validation")
	}
	return nil
}

// AddMultipleToExclude implements spec.md 4.D's exclude-write algorithm:
// integrity-check, validate, dedup, detect conflicts (warn only), ensure
// the marker exists, append, write, re-validate. It never returns a
// per-path error for ordinary validation failures — those land in
// failed — except when fallbackBehavior=error and exclude is disabled,
// which is non-recoverable and propagates.
//
// When exclude handling is disabled, every path is treated as handled
// (folded into successful) without writing any line, per the
// silent/warn fallback behaviors; only fallbackBehavior=error aborts.
// warnings carries one "skipped" message per path under fallback=warn, so
// a caller (the orchestrator) can surface the same notice to its own
// result/log output instead of relying solely on this package's slog use.
func (a *Adapter) AddMultipleToExclude(paths []string, settings config.ExcludeSettings) (successful, failed, warnings []string, err error) {
	if !settings.Enabled {
		if settings.FallbackBehavior == config.FallbackError {
			return nil, nil, nil, pgiterr.NewExcludeDisabledError("add", strings.Join(paths, ", "))
		}
		if settings.FallbackBehavior == config.FallbackWarn {
			for _, p := range paths {
				msg := fmt.Sprintf("Git exclude operation 'add' for '%s' skipped (paths: %s)", p, strings.Join(paths, ", "))
				slog.Warn(msg)
				warnings = append(warnings, msg)
			}
		}
		return paths, nil, warnings, nil
	}

	content, rerr := a.ReadExcludeFile()
	if rerr != nil {
		return nil, paths, nil, rerr
	}
	if err := checkExcludeIntegrity(content); err != nil {
		return nil, paths, nil, err
	}
	lines := splitLines(content)
	existing := lineSet(lines)

	marker := settings.MarkerComment
	if marker == "" {
		marker = config.DefaultMarkerComment
	}

	if conflicts := DetectConflicts(paths, lines); len(conflicts) > 0 {
		for _, c := range conflicts {
			slog.Warn("exclude pattern conflict", "path", c.Path, "existing", c.ExistingLine, "redundant", c.Redundant)
		}
	}

	changed := false
	for _, p := range paths {
		if verr := validateExcludePath(p); verr != nil {
			failed = append(failed, p)
			continue
		}
		if existing[p] {
			successful = append(successful, p)
			continue
		}
		if markerIndex(lines, marker) < 0 {
			lines = append(lines, marker)
			changed = true
		}
		lines = append(lines, p)
		existing[p] = true
		changed = true
		successful = append(successful, p)
	}

	if changed {
		newContent := []byte(strings.Join(lines, "\n") + "\n")
		if werr := a.WriteExcludeFile(newContent); werr != nil {
			return nil, paths, nil, werr
		}
	}
	return successful, failed, nil, nil
}

// RemoveFromExclude removes a single path.
func (a *Adapter) RemoveFromExclude(path string, settings config.ExcludeSettings) error {
	_, err := a.RemoveMultipleFromExclude([]string{path}, settings)
	return err
}

// RemoveMultipleFromExclude removes paths that are present (removing one
// that is absent is a no-op, spec.md 8.3). If, after removal, the
// configured marker comment has nothing left managed beneath it, the
// marker line is dropped too; if the file would become empty it is
// removed entirely. Unrelated user comments are never touched.
func (a *Adapter) RemoveMultipleFromExclude(paths []string, settings config.ExcludeSettings) (removed []string, err error) {
	content, rerr := a.ReadExcludeFile()
	if rerr != nil {
		return nil, rerr
	}
	if len(content) == 0 {
		return nil, nil
	}

	remove := make(map[string]bool, len(paths))
	for _, p := range paths {
		remove[p] = true
	}

	lines := splitLines(content)
	var kept []string
	for _, l := range lines {
		if remove[l] {
			removed = append(removed, l)
			continue
		}
		kept = append(kept, l)
	}

	marker := settings.MarkerComment
	if marker == "" {
		marker = config.DefaultMarkerComment
	}
	kept = dropOrphanMarkerComments(kept, marker)

	if len(kept) == 0 {
		if rmErr := os.Remove(a.excludePath()); rmErr != nil && !os.IsNotExist(rmErr) {
			return removed, pgiterr.NewExcludeAccessError(a.excludePath(), rmErr)
		}
		return removed, nil
	}

	newContent := []byte(strings.Join(kept, "\n") + "\n")
	if werr := a.WriteExcludeFile(newContent); werr != nil {
		return removed, werr
	}
	return removed, nil
}

// dropOrphanMarkerComments drops the configured marker line if it is not
// immediately followed by a managed entry, leaving every other comment
// line — including a user's own unrelated notes — untouched regardless
// of what precedes or follows them.
func dropOrphanMarkerComments(lines []string, marker string) []string {
	var out []string
	for i := 0; i < len(lines); i++ {
		if lines[i] != marker {
			out = append(out, lines[i])
			continue
		}
		if i+1 < len(lines) && !strings.HasPrefix(strings.TrimSpace(lines[i+1]), "#") {
			out = append(out, lines[i])
		}
	}
	return out
}
