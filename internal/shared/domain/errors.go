package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures that cross component boundaries.
type ErrorKind string

const (
	// KindConstraintViolation marks invalid writes: dependency cycles,
	// bad durations, inconsistent windows. Surfaced to the caller.
	KindConstraintViolation ErrorKind = "constraint_violation"
	// KindUnauthorized marks revoked or missing access to an external
	// collaborator. Aborts the current rebuild.
	KindUnauthorized ErrorKind = "unauthorized"
	// KindAvailabilityUnavailable marks a calendar read failure beyond the
	// snapshot staleness tolerance. Aborts the rebuild, preserving the last
	// good schedule.
	KindAvailabilityUnavailable ErrorKind = "availability_unavailable"
	// KindInferenceFailed marks a non-fatal inference failure; the task
	// proceeds with defaults.
	KindInferenceFailed ErrorKind = "inference_failed"
	// KindSyncConflict marks an external event version mismatch the import
	// rules cannot resolve; the block is skipped this sync.
	KindSyncConflict ErrorKind = "sync_conflict"
)

// KindError is an error carrying a classification and a structured reason.
type KindError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *KindError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *KindError) Unwrap() error { return e.Err }

// NewKindError creates a classified error with a structured reason token.
func NewKindError(kind ErrorKind, reason string, err error) *KindError {
	return &KindError{Kind: kind, Reason: reason, Err: err}
}

// ConstraintViolation creates a write-time validation error.
func ConstraintViolation(reason string) *KindError {
	return &KindError{Kind: KindConstraintViolation, Reason: reason}
}

// KindOf extracts the error kind, or "" when the error is unclassified.
func KindOf(err error) ErrorKind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
