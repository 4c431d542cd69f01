// Package services defines the business logic for the complaint workflow:
// lifecycle, coordinator triage, officer tasks, duplicate detection, and
// reminders. This file centralizes service-level error values and types so
// they can be consistently returned by service methods and checked by
// callers.
//
// These errors are intended for internal use by the service layer;
// translation into user-facing messages or HTTP status codes is performed at
// the handler layer, which maps: ValidationError → 400, ErrForbidden → 403,
// not-found sentinels → 404, ConflictError → 409, everything else → 500.
package services

import (
	"errors"
	"fmt"
	"strings"
)

// Not-found and permission sentinels.
var (
	// ErrComplaintNotFound indicates the referenced complaint does not exist.
	ErrComplaintNotFound = errors.New("complaint not found")

	// ErrAssignmentNotFound indicates the referenced assignment does not
	// exist or is not visible to the acting officer. Ownership mismatches
	// deliberately surface as this error rather than a forbidden one, so
	// officers cannot probe for the existence of other officers' tasks.
	ErrAssignmentNotFound = errors.New("assignment not found")

	// ErrForbidden indicates the actor lacks rights over the target where
	// ownership is already implied by the route (cancel, confirm, remind).
	ErrForbidden = errors.New("not allowed to act on this complaint")
)

// ValidationError carries every violated input rule, not just the first.
type ValidationError struct {
	Violations []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Violations, "; ")
}

// NewValidationError builds a ValidationError from the given violations.
func NewValidationError(violations ...string) *ValidationError {
	return &ValidationError{Violations: violations}
}

// AsValidation unwraps err into a *ValidationError when possible.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}

// ConflictError signals valid input against the wrong state (business-rule
// refusal): confirming before completion, cancelling a completed complaint,
// a reminder still in cool-down. Always carries a human-readable reason and
// is never retried automatically.
type ConflictError struct {
	Reason string
}

// Error implements the error interface.
func (e *ConflictError) Error() string { return e.Reason }

// NewConflictError builds a ConflictError with a formatted reason.
func NewConflictError(format string, args ...any) *ConflictError {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

// AsConflict unwraps err into a *ConflictError when possible.
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	ok := errors.As(err, &ce)
	return ce, ok
}

// InvalidDepartmentsError is the atomic fail-fast refusal of an assignment
// containing unknown department codes; no partial write happens.
type InvalidDepartmentsError struct {
	Codes []string
}

// Error implements the error interface.
func (e *InvalidDepartmentsError) Error() string {
	return "unknown department codes: " + strings.Join(e.Codes, ", ")
}

// AsInvalidDepartments unwraps err into *InvalidDepartmentsError when possible.
func AsInvalidDepartments(err error) (*InvalidDepartmentsError, bool) {
	var ie *InvalidDepartmentsError
	ok := errors.As(err, &ie)
	return ie, ok
}
