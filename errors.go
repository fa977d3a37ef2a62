package mnemon

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Sentinel errors for common manager error conditions.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrClosed indicates the manager has been closed and can no longer
	// accept operations.
	ErrClosed = errors.New("mnemon: manager closed")

	// ErrInvalidConfig indicates the provided configuration is invalid or incomplete.
	ErrInvalidConfig = errors.New("mnemon: invalid configuration")
)

// Error kinds categorize errors by their type.
const (
	// KindRefused represents writes the block store declined: undefined
	// label, read-only block, or an over-limit replace.
	KindRefused = "refused"

	// KindNoMatch represents a replace whose target text was absent.
	KindNoMatch = "no_match"

	// KindValidation represents errors related to input validation.
	KindValidation = "validation"

	// KindPersistence represents errors from the key-value backend.
	KindPersistence = "persistence"

	// KindConfiguration represents errors related to configuration.
	KindConfiguration = "configuration"

	// KindInternal represents internal errors.
	KindInternal = "internal"
)

// Error is a structured error type that wraps underlying errors with
// additional context about the operation that failed and the category of
// error.
//
// Error implements the error interface and supports error unwrapping,
// making it compatible with errors.Is() and errors.As().
//
// Example usage:
//
//	err := &Error{
//		Op:   "Manager.ReplaceBlock",
//		Kind: KindRefused,
//		Err:  block.ErrReadOnly,
//	}
type Error struct {
	// Op is the operation that failed (e.g., "Manager.SetBlock").
	Op string

	// Kind categorizes the error (e.g., KindRefused, KindValidation).
	Kind string

	// Err is the underlying error that caused this error.
	Err error
}

// Error implements the error interface, returning a formatted error message
// that includes the operation, kind, and underlying error.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("mnemon: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("mnemon: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error, allowing errors.Is() and errors.As()
// to work correctly with wrapped errors.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error matching, allowing comparison against a kind-only
// *Error or against the underlying sentinel.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	if t, ok := target.(*Error); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			if t.Op == "" || e.Op == t.Op {
				return true
			}
		}
	}

	return errors.Is(e.Err, target)
}

// NewRefusedError creates a new Error with KindRefused.
func NewRefusedError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindRefused, Err: err}
}

// NewNoMatchError creates a new Error with KindNoMatch.
func NewNoMatchError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindNoMatch, Err: err}
}

// NewValidationError creates a new Error with KindValidation.
func NewValidationError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindValidation, Err: err}
}

// NewConfigurationError creates a new Error with KindConfiguration.
func NewConfigurationError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindConfiguration, Err: err}
}

// NewInternalError creates a new Error with KindInternal.
func NewInternalError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindInternal, Err: err}
}

// CloseWithLog attempts to close the provided resource and logs any error
// at warning level. This is intended for use in defer statements to ensure
// cleanup errors are not silently ignored.
//
// The name parameter should describe the resource being closed (e.g.,
// "backend", "file"). If logger is nil, slog.Default() is used.
func CloseWithLog(closer io.Closer, logger *slog.Logger, name string) {
	if closer == nil {
		return
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := closer.Close(); err != nil {
		logger.Warn("failed to close resource",
			"resource", name,
			"error", err)
	}
}
