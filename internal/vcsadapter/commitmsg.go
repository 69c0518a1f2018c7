package vcsadapter

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/exp/slices"
)

// BuildCommitMessage synthesizes the batch commit message spec.md 4.F
// step 5 describes: the base message, a blank line, a "Files added:"
// header, one line per file grouped and sorted by parent directory
// (root-directory entries listed bare, others as "dir/name"), a blank
// line, then a summary. A single path collapses to "<baseMsg>: <path>"
// rather than a grouped listing.
func BuildCommitMessage(baseMsg string, paths []string) string {
	if len(paths) == 0 {
		return baseMsg
	}
	if len(paths) == 1 {
		return fmt.Sprintf("%s: %s", baseMsg, paths[0])
	}

	byDir := make(map[string][]string)
	for _, p := range paths {
		slashed := filepath.ToSlash(p)
		dir := filepath.ToSlash(filepath.Dir(slashed))
		byDir[dir] = append(byDir[dir], slashed)
	}

	dirs := make([]string, 0, len(byDir))
	for dir := range byDir {
		dirs = append(dirs, dir)
	}
	slices.Sort(dirs)

	var lines []string
	for _, dir := range dirs {
		files := byDir[dir]
		slices.Sort(files)
		lines = append(lines, files...)
	}

	var b strings.Builder
	fmt.Fprintln(&b, baseMsg)
	b.WriteString("\n")
	b.WriteString("Files added:\n")
	for _, f := range lines {
		fmt.Fprintln(&b, f)
	}

	b.WriteString("\n")
	dirCount := len(dirs)
	if dirCount > 1 {
		fmt.Fprintf(&b, "Total: %d file(s), %d directory/ies affected", len(paths), dirCount)
	} else {
		fmt.Fprintf(&b, "Total: %d file(s)", len(paths))
	}

	return strings.TrimRight(b.String(), "\n")
}
