package vcsadapter

import "time"

// FileVcsState is the ephemeral snapshot captured at the start of an
// orchestrated operation and replayed at rollback (spec.md 3).
type FileVcsState struct {
	IsTracked    bool
	IsStaged     bool
	IsModified   bool
	IsUntracked  bool
	IsExcluded   bool
	OriginalPath string
	Timestamp    time.Time
}
