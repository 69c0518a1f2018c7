// Package pgiterr classifies the engine's errors so callers can branch on
// what went wrong instead of matching on message text.
package pgiterr

import "fmt"

// Kind is one of the classifications from the engine's error taxonomy.
type Kind string

const (
	NotInitialized      Kind = "not_initialized"
	InvalidInput        Kind = "invalid_input"
	PathNotFound        Kind = "path_not_found"
	AlreadyTracked      Kind = "already_tracked"
	InvalidBatch        Kind = "invalid_batch"
	RepositoryNotFound  Kind = "repository_not_found"
	VcsOperation        Kind = "vcs_operation"
	VcsIndex            Kind = "vcs_index"
	ExcludeAccess       Kind = "exclude_access"
	ExcludeCorruption   Kind = "exclude_corruption"
	ExcludeValidation   Kind = "exclude_validation"
	ExcludeDisabled     Kind = "exclude_disabled"
	FilesystemOperation Kind = "filesystem_operation"
	ConfigValidation    Kind = "config_validation"
	ConfigMigration     Kind = "config_migration"
	LockHeld            Kind = "lock_held"
)

// Classified is implemented by every error this package constructs.
// The orchestrator type-switches on it instead of matching strings.
type Classified interface {
	error
	Kind() Kind
	Unwrap() error
}

// Error is the concrete type behind every Kind constructor.
type Error struct {
	kind    Kind
	op      string
	path    string
	context map[string]string
	err     error
}

func (e *Error) Error() string {
	msg := string(e.kind)
	if e.op != "" {
		msg += ": " + e.op
	}
	if e.path != "" {
		msg += fmt.Sprintf(" (%s)", e.path)
	}
	if e.err != nil {
		msg += ": " + e.err.Error()
	}
	return msg
}

func (e *Error) Kind() Kind    { return e.kind }
func (e *Error) Unwrap() error { return e.err }

// WithContext attaches a key/value pair surfaced in diagnostics; it
// returns the same error so calls can be chained at the construction
// site, matching the builder idiom the closest pack analogue uses.
func (e *Error) WithContext(key, value string) *Error {
	if e.context == nil {
		e.context = make(map[string]string)
	}
	e.context[key] = value
	return e
}

// Context returns the attached key/value pairs, if any.
func (e *Error) Context() map[string]string {
	return e.context
}

func newErr(kind Kind, op, path string, err error) *Error {
	return &Error{kind: kind, op: op, path: path, err: err}
}

func NewNotInitializedError(reason string) *Error {
	return newErr(NotInitialized, reason, "", nil)
}

func NewInvalidInputError(path, reason string) *Error {
	return newErr(InvalidInput, reason, path, nil)
}

func NewPathNotFoundError(path string) *Error {
	return newErr(PathNotFound, "path does not exist", path, nil)
}

// AlreadyTrackedError carries every path the caller asked about, not just
// the first offender, so the orchestrator's validation pass can report
// the whole already-tracked subset in one shot.
type AlreadyTrackedError struct {
	*Error
	Paths []string
}

func NewAlreadyTrackedError(paths []string) *AlreadyTrackedError {
	return &AlreadyTrackedError{Error: newErr(AlreadyTracked, "already tracked", "", nil), Paths: paths}
}

// InvalidBatchError carries both the failing subset and whatever subset
// had already validated successfully, per spec.md's validation pass.
type InvalidBatchError struct {
	*Error
	Invalid []PathError
	Valid   []string
}

// PathError pairs one rejected path with its classification.
type PathError struct {
	Path  string
	Err   error
}

func NewInvalidBatchError(invalid []PathError, valid []string) *InvalidBatchError {
	return &InvalidBatchError{Error: newErr(InvalidBatch, "batch validation failed", "", nil), Invalid: invalid, Valid: valid}
}

func NewRepositoryNotFoundError(path string) *Error {
	return newErr(RepositoryNotFound, "not a repository", path, nil)
}

func NewVcsOperationError(op string, err error) *Error {
	return newErr(VcsOperation, op, "", err)
}

func NewVcsIndexError(op string, err error) *Error {
	return newErr(VcsIndex, op, "", err)
}

func NewExcludeAccessError(path string, err error) *Error {
	return newErr(ExcludeAccess, "exclude file access denied", path, err)
}

func NewExcludeCorruptionError(reason string) *Error {
	return newErr(ExcludeCorruption, reason, "", nil)
}

func NewExcludeValidationError(path, reason string) *Error {
	return newErr(ExcludeValidation, reason, path, nil)
}

// NewExcludeDisabledError is the one exclude error kind that is not
// downgraded to a warning: the orchestrator unwinds its journal and
// returns it unwrapped to the caller (fallbackBehavior=error).
func NewExcludeDisabledError(op, path string) *Error {
	return newErr(ExcludeDisabled, op, path, nil)
}

func NewFilesystemOperationError(op, path string, err error) *Error {
	return newErr(FilesystemOperation, op, path, err)
}

func NewConfigValidationError(reason string) *Error {
	return newErr(ConfigValidation, reason, "", nil)
}

func NewConfigMigrationError(reason string, err error) *Error {
	return newErr(ConfigMigration, reason, "", err)
}

func NewLockHeldError(path string) *Error {
	return newErr(LockHeld, "advisory lock held by another process", path, nil)
}

// IsKind reports whether err (or something it wraps) is classified with
// the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if ce, ok := err.(Classified); ok && ce.Kind() == kind {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
