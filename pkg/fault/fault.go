// Package fault defines the shared error taxonomy for the gating layer.
//
// Every user-visible failure wraps exactly one of the sentinel errors below,
// so callers can classify failures with errors.Is without parsing messages.
// Ceiling breaches additionally carry the configured limit and the observed
// value via LimitError.
package fault

import (
	"errors"
	"fmt"
)

// Sentinel errors for the gating layer.
// These errors can be used with errors.Is to check for specific error conditions.
var (
	// ErrInvalidInput indicates a malformed, missing, or wrong-typed parameter.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMissingRequired indicates a required parameter was absent.
	// It wraps ErrInvalidInput, so errors.Is(err, ErrInvalidInput) also holds.
	ErrMissingRequired = fmt.Errorf("%w: missing required parameter", ErrInvalidInput)

	// ErrPathTraversal indicates a resolved path escapes every allowed root.
	ErrPathTraversal = errors.New("path escapes allowed roots")

	// ErrPathNotFound indicates a path was required to exist but does not.
	ErrPathNotFound = errors.New("path not found")

	// ErrSymlink indicates a symbolic link could not be resolved.
	ErrSymlink = errors.New("symlink resolution failed")

	// ErrResourceExceeded indicates a configured ceiling was breached
	// (size, count, concurrency, depth, directories).
	ErrResourceExceeded = errors.New("resource limit exceeded")

	// ErrDangerousContent indicates pattern-matched injection content or a
	// regex with catastrophic-backtracking risk.
	ErrDangerousContent = errors.New("dangerous content detected")

	// ErrParseFailure indicates the source could not be parsed, with or
	// without a permissive retry already attempted.
	ErrParseFailure = errors.New("parse failure")

	// ErrTimeout indicates a deadline or processing-time ceiling was exceeded.
	ErrTimeout = errors.New("operation timed out")
)

// LimitError reports a ceiling breach with enough context to render an
// actionable message without re-deriving state at the call site.
type LimitError struct {
	// What names the tracked quantity, e.g. "file size" or "ast depth".
	What string
	// Limit is the configured ceiling.
	Limit int64
	// Observed is the value that breached the ceiling.
	Observed int64
	// Unit is a human-readable unit, e.g. "bytes" or "nodes". May be empty.
	Unit string
	// Sentinel is the taxonomy error this breach classifies as, normally
	// ErrResourceExceeded or ErrTimeout.
	Sentinel error
}

// Error implements the error interface.
func (e *LimitError) Error() string {
	if e.Unit != "" {
		return fmt.Sprintf("%s: %s %d %s exceeds limit %d %s",
			e.Sentinel.Error(), e.What, e.Observed, e.Unit, e.Limit, e.Unit)
	}
	return fmt.Sprintf("%s: %s %d exceeds limit %d",
		e.Sentinel.Error(), e.What, e.Observed, e.Limit)
}

// Unwrap reports the taxonomy sentinel so errors.Is works on LimitError.
func (e *LimitError) Unwrap() error {
	return e.Sentinel
}

// Exceeded builds a LimitError classified as ErrResourceExceeded.
func Exceeded(what string, limit, observed int64, unit string) error {
	return &LimitError{
		What:     what,
		Limit:    limit,
		Observed: observed,
		Unit:     unit,
		Sentinel: ErrResourceExceeded,
	}
}

// Deadline builds a LimitError classified as ErrTimeout. Limit and observed
// are expressed in milliseconds.
func Deadline(what string, limitMs, observedMs int64) error {
	return &LimitError{
		What:     what,
		Limit:    limitMs,
		Observed: observedMs,
		Unit:     "ms",
		Sentinel: ErrTimeout,
	}
}

// AsLimit extracts a LimitError from an error chain, if present.
func AsLimit(err error) (*LimitError, bool) {
	var le *LimitError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}
