// Package errors provides the typed error kinds returned by the workflow core.
package errors

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable error code, also used as the BPMN error
// code when an operation fails inside a workflow job.
type Code string

const (
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeAlreadyReviewed   Code = "ALREADY_REVIEWED"
	CodeLineageLocked     Code = "LINEAGE_LOCKED"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeNoCapacity        Code = "NO_CAPACITY"
	CodeAlreadyBooked     Code = "ALREADY_BOOKED"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeStorage           Code = "STORAGE_FAILURE"
	CodeInternal          Code = "INTERNAL"
)

// DomainError is a sentinel error carrying a stable code and a retryability
// hint. Operations wrap these with fmt.Errorf("%w: ...") so callers match
// with errors.Is and still see the concrete detail.
type DomainError struct {
	Code      Code
	Message   string
	Retryable bool
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

var (
	// ErrNotFound: a referenced entity is absent.
	ErrNotFound = &DomainError{Code: CodeNotFound, Message: "referenced entity not found"}
	// ErrConflict: a duplicate pending submission or open application exists.
	ErrConflict = &DomainError{Code: CodeConflict, Message: "conflicting record already exists"}
	// ErrAlreadyReviewed: a concurrent reviewer decided the artifact first.
	ErrAlreadyReviewed = &DomainError{Code: CodeAlreadyReviewed, Message: "artifact is no longer pending"}
	// ErrLineageLocked: the attempt ceiling was reached for the lineage.
	ErrLineageLocked = &DomainError{Code: CodeLineageLocked, Message: "submission attempts exhausted"}
	// ErrInvalidTransition: the requested lifecycle edge is illegal.
	ErrInvalidTransition = &DomainError{Code: CodeInvalidTransition, Message: "illegal status transition"}
	// ErrNoCapacity: the orientation slot is exhausted.
	ErrNoCapacity = &DomainError{Code: CodeNoCapacity, Message: "no orientation slots available"}
	// ErrAlreadyBooked: the application already holds an active booking.
	ErrAlreadyBooked = &DomainError{Code: CodeAlreadyBooked, Message: "application already has an active booking"}
	// ErrUnauthorized: the actor lacks the role required for the operation.
	ErrUnauthorized = &DomainError{Code: CodeUnauthorized, Message: "actor lacks required role"}
	// ErrStorage: the transaction could not complete; safe to retry.
	ErrStorage = &DomainError{Code: CodeStorage, Message: "storage operation failed", Retryable: true}
)

// CodeOf extracts the stable code from err, or CodeInternal when err is not
// a domain error.
func CodeOf(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// IsRetryable reports whether the operation may be retried as-is.
func IsRetryable(err error) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}

// Storagef wraps a low-level storage failure as a retryable domain error.
func Storagef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrStorage, fmt.Sprintf(format, args...))
}
