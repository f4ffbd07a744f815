// Package errors provides centralized error definitions and error handling
// utilities for the gaffer codebase. It defines domain-specific errors,
// sentinel errors, constructors with context wrapping, and classification
// helpers.
//
// # Error Types
//
// Domain-specific errors represent errors from specific subsystems:
//   - FileError: filesystem read/write/delete failures with path and operation
//   - CommandError: external command failures with classification
//   - RecordError: corrupt or invalid persisted records
//
// Lock contention is deliberately not an error type: losing an acquisition
// race is a normal negative result and is reported through return values,
// not raised.
//
// # Usage
//
//	err := errors.NewFileError("write", path, baseErr)
//
//	if errors.Is(err, errors.ErrCorruptRecord) { ... }
//
//	var cmdErr *errors.CommandError
//	if errors.As(err, &cmdErr) && cmdErr.Recoverable { ... }
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Lock-related sentinel errors
var (
	// ErrLockNotFound indicates that no lock record exists for the task.
	ErrLockNotFound = New("lock not found")
	// ErrNotOwner indicates an operation by a session that does not hold the lock.
	ErrNotOwner = New("session does not own this lock")
	// ErrCorruptRecord indicates that a persisted record failed to parse or validate.
	ErrCorruptRecord = New("persisted record is corrupt")
)

// Workflow sentinel errors
var (
	// ErrPaused indicates that the coordination directory is paused.
	ErrPaused = New("workflow is paused")
	// ErrApprovalPending indicates that a gated operation is awaiting approval.
	ErrApprovalPending = New("approval is pending")
	// ErrApprovalRejected indicates that a gated operation was rejected.
	ErrApprovalRejected = New("approval was rejected")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// FileError
// -----------------------------------------------------------------------------

// FileError represents a filesystem operation failure. It carries the
// operation name and path so callers can report actionable messages
// without inspecting the underlying error.
type FileError struct {
	Op   string // "read", "write", "delete", "rename"
	Path string
	Err  error
}

// NewFileError creates a FileError wrapping the underlying cause.
func NewFileError(op, path string, err error) *FileError {
	return &FileError{Op: op, Path: path, Err: err}
}

// Error returns the error message.
func (e *FileError) Error() string {
	return fmt.Sprintf("file %s failed for %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *FileError) Unwrap() error {
	return e.Err
}

// -----------------------------------------------------------------------------
// CommandError
// -----------------------------------------------------------------------------

// CommandError represents an external command failure with its retry
// classification attached. Attempts records how many invocations were made
// before the error was surfaced.
type CommandError struct {
	Command     string
	Type        string // classification: rate_limit, auth_error, not_found, ...
	Recoverable bool
	Attempts    int
	Err         error
}

// NewCommandError creates a CommandError wrapping the underlying cause.
func NewCommandError(command, classType string, recoverable bool, attempts int, err error) *CommandError {
	return &CommandError{
		Command:     command,
		Type:        classType,
		Recoverable: recoverable,
		Attempts:    attempts,
		Err:         err,
	}
}

// Error returns the error message.
func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q failed after %d attempt(s) [%s]: %v",
		e.Command, e.Attempts, e.Type, e.Err)
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// -----------------------------------------------------------------------------
// RecordError
// -----------------------------------------------------------------------------

// RecordError represents a corrupt or invalid persisted record. Preview
// holds a short, sanitized excerpt of the raw content for diagnostics;
// it must never carry secret-bearing data.
type RecordError struct {
	Path    string
	Preview string
	Err     error
}

// NewRecordError creates a RecordError for the file at path.
func NewRecordError(path, preview string, err error) *RecordError {
	return &RecordError{Path: path, Preview: preview, Err: err}
}

// Error returns the error message.
func (e *RecordError) Error() string {
	if e.Preview != "" {
		return fmt.Sprintf("corrupt record at %s (near %q): %v", e.Path, e.Preview, e.Err)
	}
	return fmt.Sprintf("corrupt record at %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *RecordError) Unwrap() error {
	return e.Err
}

// Is reports whether target matches this error. RecordError always
// matches ErrCorruptRecord so callers can test with errors.Is without
// asserting the concrete type.
func (e *RecordError) Is(target error) bool {
	if target == ErrCorruptRecord {
		return true
	}
	return errors.Is(e.Err, target)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error is transient and the operation may
// succeed on retry.
func IsRetryable(err error) bool {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Recoverable
	}
	return false
}

// IsUserFacing returns true if the error message is safe to display to
// end users. Corrupt record errors are user-facing by construction since
// previews are sanitized; file and command errors embed paths and
// classifications but no file content.
func IsUserFacing(err error) bool {
	var recErr *RecordError
	var fileErr *FileError
	var cmdErr *CommandError
	return errors.As(err, &recErr) || errors.As(err, &fileErr) || errors.As(err, &cmdErr)
}
