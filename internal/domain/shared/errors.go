// Package shared contains common domain types, errors, and events used
// across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors for errors.Is() checking.
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation   = errors.New("validation error")
	ErrInvalidID    = errors.New("invalid ID")
	ErrInvalidInput = errors.New("invalid input")
	ErrEmptyValue   = errors.New("value cannot be empty")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")

	// Store errors. The entity store collaborator maps its low-level
	// failures onto these kinds; application code branches on them with
	// errors.Is instead of matching substrings in error bodies.
	ErrConflict      = errors.New("unique constraint violation")
	ErrUnknownColumn = errors.New("column not known to store schema")
	ErrStoreFailure  = errors.New("entity store failure")

	// Business-rule errors
	ErrEmailTaken   = errors.New("email already registered")
	ErrLimitReached = errors.New("plan limit reached")
	ErrNoStage      = errors.New("no pipeline stage configured")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "student", "pipeline", "task"
	Op      string // operation that failed, e.g., "Create", "Provision"
	Kind    error  // base error type for errors.Is() checking
	Message string // human-readable message
	Err     error  // underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching against both Kind and Err.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	return e.Err != nil && errors.Is(e.Err, target)
}

// NewDomainError creates a DomainError.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapDomainError creates a DomainError wrapping an underlying error.
func WrapDomainError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// StoreError carries the structured outcome of a failed entity-store
// operation: the kind sentinel, the transport status, and the raw
// response body. The body is surfaced to callers of provisioning so
// store-level causes stay distinguishable from business-rule causes.
type StoreError struct {
	Kind   error  // one of ErrConflict, ErrUnknownColumn, ErrNotFound, ErrStoreFailure
	Status int    // transport status code (0 when not applicable)
	Body   string // raw error body from the store
	Column string // offending column for ErrUnknownColumn
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("store: %v (column %q, status %d)", e.Kind, e.Column, e.Status)
	}
	return fmt.Sprintf("store: %v (status %d): %s", e.Kind, e.Status, e.Body)
}

// Unwrap returns the kind sentinel.
func (e *StoreError) Unwrap() error { return e.Kind }

// Is matches the kind sentinel.
func (e *StoreError) Is(target error) bool {
	return e.Kind != nil && errors.Is(e.Kind, target)
}

// ConflictError builds a StoreError for a unique-constraint violation.
func ConflictError(status int, body string) *StoreError {
	return &StoreError{Kind: ErrConflict, Status: status, Body: body}
}

// UnknownColumnError builds a StoreError for a schema-cache miss.
func UnknownColumnError(status int, column, body string) *StoreError {
	return &StoreError{Kind: ErrUnknownColumn, Status: status, Column: column, Body: body}
}

// UnknownColumnOf extracts the offending column from err, if err is a
// schema-drift StoreError.
func UnknownColumnOf(err error) (string, bool) {
	var se *StoreError
	if errors.As(err, &se) && errors.Is(se.Kind, ErrUnknownColumn) {
		return se.Column, true
	}
	return "", false
}

// StoreDetail extracts the transport status and body from err, when a
// StoreError is present in its chain.
func StoreDetail(err error) (status int, body string, ok bool) {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Status, se.Body, true
	}
	return 0, "", false
}
