// Package pathvalidator normalizes and sanity-checks user-supplied paths
// before any other component touches the filesystem or a VCS index.
package pathvalidator

import (
	"path/filepath"
	"strings"

	"github.com/crystalphantom/pgit-cli/internal/pgiterr"
)

// MaxLength bounds the raw path string length.
const MaxLength = 4096

// MaxDepth bounds the number of path segments.
const MaxDepth = 50

// windowsReserved are base names (sans extension) disallowed cross-platform
// because the tool's manifest and storage tree must round-trip on Windows too.
var windowsReserved = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true, "com5": true,
	"com6": true, "com7": true, "com8": true, "com9": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true, "lpt5": true,
	"lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
}

// Result is a normalized path ready for use by downstream components.
type Result struct {
	// Relative is the cleaned, slash-normalized path stored in the
	// manifest and exclude file.
	Relative string
	// Absolute is Relative resolved against the working directory, for
	// filesystem probes.
	Absolute string
}

// Validate runs every check from spec.md 4.A, in order, and returns a
// normalized Result or a classified rejection. workingDir must already be
// an absolute, cleaned path.
func Validate(workingDir, input string) (Result, error) {
	if input == "" {
		return Result{}, pgiterr.NewInvalidInputError(input, "path must not be empty")
	}
	if strings.HasSuffix(input, " ") || strings.HasSuffix(input, ".") {
		return Result{}, pgiterr.NewInvalidInputError(input, "path must not end in space or dot")
	}
	if err := checkControlBytes(input); err != nil {
		return Result{}, err
	}
	if len(input) > MaxLength {
		return Result{}, pgiterr.NewInvalidInputError(input, "path exceeds maximum length")
	}

	slashed := filepath.ToSlash(input)
	segments := strings.Split(slashed, "/")
	for _, seg := range segments {
		if seg == ".." {
			return Result{}, pgiterr.NewInvalidInputError(input, "path must not contain parent-traversal segments")
		}
	}
	if filepath.IsAbs(input) || (len(input) >= 2 && input[1] == ':') {
		return Result{}, pgiterr.NewInvalidInputError(input, "path must not be absolute")
	}
	if strings.HasPrefix(slashed, ".git/") || slashed == ".git" {
		return Result{}, pgiterr.NewInvalidInputError(input, "path must not start with .git/")
	}

	base := filepath.Base(slashed)
	if isReserved(base) {
		return Result{}, pgiterr.NewInvalidInputError(input, "path uses a reserved device name")
	}

	cleaned := filepath.Clean(slashed)
	cleanedSegments := strings.Split(cleaned, "/")
	if len(cleanedSegments) > MaxDepth {
		return Result{}, pgiterr.NewInvalidInputError(input, "path exceeds maximum depth")
	}

	relative := filepath.FromSlash(cleaned)
	absolute := filepath.Join(workingDir, relative)

	return Result{Relative: relative, Absolute: absolute}, nil
}

func checkControlBytes(s string) error {
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return pgiterr.NewInvalidInputError(s, "path must not contain control characters")
		}
	}
	return nil
}

func isReserved(base string) bool {
	name := base
	if idx := strings.IndexByte(name, '.'); idx >= 0 {
		name = name[:idx]
	}
	return windowsReserved[strings.ToLower(name)]
}
