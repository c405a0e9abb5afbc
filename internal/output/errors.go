package output

import (
	"errors"
	"fmt"
	"io/fs"
)

// Sentinel errors for the output subsystem.
// These can be checked with errors.Is() for programmatic handling.
var (
	// ErrInvalidConfig indicates that the output configuration is unusable,
	// for example a relative or non-writable root directory.
	ErrInvalidConfig = errors.New("invalid output configuration")

	// ErrEstimationFailed indicates that a dataset contained a value that
	// could not be serialized for size estimation.
	ErrEstimationFailed = errors.New("size estimation failed")

	// ErrInvalidArgument indicates that the caller supplied conflicting or
	// missing arguments, such as both force flags or an empty dataset.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPathEscapesRoot indicates that a candidate path would resolve
	// outside the configured root directory.
	ErrPathEscapesRoot = errors.New("path escapes output root")

	// ErrPermissionDenied indicates that a directory lacks the read and
	// write access required for file output.
	ErrPermissionDenied = errors.New("insufficient directory permissions")

	// ErrWriteFailed indicates that a file write failed after exhausting
	// all retry attempts.
	ErrWriteFailed = errors.New("file write failed")
)

// ConfigurationError reports an unusable configuration value.
// It is fatal at startup and carries a remediation hint.
type ConfigurationError struct {
	// Field is the configuration field that failed validation.
	Field string

	// Value is the rejected value, formatted for display.
	Value string

	// Hint tells the operator how to fix the configuration.
	Hint string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s=%q: %v (%s)", e.Field, e.Value, e.Err, e.Hint)
	}
	return fmt.Sprintf("configuration error: %s=%q (%s)", e.Field, e.Value, e.Hint)
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Is implements custom error matching for errors.Is().
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// EstimationError reports a dataset value that could not be serialized
// for size estimation. The dataset is rejected and no output is produced.
type EstimationError struct {
	// Reason describes which part of the dataset failed to serialize.
	Reason string

	// Err is the underlying serialization error.
	Err error
}

// Error implements the error interface.
func (e *EstimationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("size estimation failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("size estimation failed: %s", e.Reason)
}

// Unwrap returns the underlying error.
func (e *EstimationError) Unwrap() error {
	return e.Err
}

// Is implements custom error matching for errors.Is().
func (e *EstimationError) Is(target error) bool {
	return target == ErrEstimationFailed
}

// InvalidArgumentError reports a caller mistake that is rejected before
// any estimation or I/O happens.
type InvalidArgumentError struct {
	// Reason describes the conflicting or missing argument.
	Reason string
}

// Error implements the error interface.
func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument: %s", e.Reason)
}

// Is implements custom error matching for errors.Is().
func (e *InvalidArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// SecurityError reports a path that would escape the output root, either
// directly, through ".." traversal, or through a symlink. Security errors
// are never downgraded to warnings and should be logged as security events.
type SecurityError struct {
	// Path is the offending candidate path as supplied by the caller.
	Path string

	// Root is the output root the path was validated against.
	Root string

	// Reason describes how containment was violated.
	Reason string

	// Err is the underlying error, if canonicalization itself failed.
	Err error
}

// Error implements the error interface.
func (e *SecurityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("security violation: path %q outside root %q: %s: %v", e.Path, e.Root, e.Reason, e.Err)
	}
	return fmt.Sprintf("security violation: path %q outside root %q: %s", e.Path, e.Root, e.Reason)
}

// Unwrap returns the underlying error.
func (e *SecurityError) Unwrap() error {
	return e.Err
}

// Is implements custom error matching for errors.Is().
func (e *SecurityError) Is(target error) bool {
	return target == ErrPathEscapesRoot
}

// PermissionError reports a directory that is not readable and writable
// for the current process. The message names the directory and the mode
// bits observed so the operator can fix it with a single chmod.
type PermissionError struct {
	// Dir is the directory that failed the access check.
	Dir string

	// Mode is the directory's observed permission bits.
	Mode fs.FileMode

	// Need describes the access that was required.
	Need string

	// Err is the underlying error from the access probe.
	Err error
}

// Error implements the error interface.
func (e *PermissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("permission denied: directory %q (mode %04o) needs %s access: %v",
			e.Dir, e.Mode.Perm(), e.Need, e.Err)
	}
	return fmt.Sprintf("permission denied: directory %q (mode %04o) needs %s access",
		e.Dir, e.Mode.Perm(), e.Need)
}

// Unwrap returns the underlying error.
func (e *PermissionError) Unwrap() error {
	return e.Err
}

// Is implements custom error matching for errors.Is().
func (e *PermissionError) Is(target error) bool {
	return target == ErrPermissionDenied
}

// FileWriteError reports an I/O failure that survived all retry attempts.
// Partial output has already been cleaned up on a best-effort basis by the
// time this error is returned.
type FileWriteError struct {
	// Path is the target file path.
	Path string

	// Attempts is the number of write attempts made.
	Attempts int

	// Err is the last underlying I/O error.
	Err error
}

// Error implements the error interface.
func (e *FileWriteError) Error() string {
	return fmt.Sprintf("failed to write %q after %d attempts: %v", e.Path, e.Attempts, e.Err)
}

// Unwrap returns the underlying error.
func (e *FileWriteError) Unwrap() error {
	return e.Err
}

// Is implements custom error matching for errors.Is().
func (e *FileWriteError) Is(target error) bool {
	return target == ErrWriteFailed
}
