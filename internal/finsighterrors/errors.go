// Package finsighterrors defines the error taxonomy shared by FinSight's
// adapters, detector, and persistence layer (spec §7).
package finsighterrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for callers that need to branch on it (retry,
// skip, log-and-continue) without string matching.
type Code string

const (
	// CodeTransientExternal covers provider timeouts, rate limits, and DB
	// connection failures. Retried with backoff inside the adapter; only
	// surfaced once retries are exhausted.
	CodeTransientExternal Code = "transient_external"
	// CodeInsufficientData covers too few bars or a missing spot price at
	// an interval. Always in-band, never fatal.
	CodeInsufficientData Code = "insufficient_data"
	// CodeInvariantViolation covers NaN z-scores, negative volume, or
	// low>high bars. Fatal for the affected symbol's task only.
	CodeInvariantViolation Code = "invariant_violation"
	// CodePersistenceConflict covers an upsert race on a natural key,
	// resolved by last-writer-wins and never surfaced to callers.
	CodePersistenceConflict Code = "persistence_conflict"
	// CodeInvalidInput covers caller-supplied parameters outside the
	// adapter's documented input constraints.
	CodeInvalidInput Code = "invalid_input"
)

// Error is a FinSight domain error carrying a taxonomy Code and an
// optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, finsighterrors.TransientExternal) and the
// other sentinels below, by comparing against another *Error's Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New constructs an *Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs an *Error with the given code, message, and cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// sentinels, for errors.Is comparisons against a bare code.
var (
	TransientExternal  = &Error{Code: CodeTransientExternal}
	InsufficientData   = &Error{Code: CodeInsufficientData}
	InvariantViolation = &Error{Code: CodeInvariantViolation}
	PersistenceConflict = &Error{Code: CodePersistenceConflict}
	InvalidInput       = &Error{Code: CodeInvalidInput}
)

// CodeOf extracts the Code from err if it is (or wraps) a *Error.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}
