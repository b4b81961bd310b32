/*
errors.go - Centralized error types for the site ledgers

PURPOSE:
  All error types in one place for consistency and discoverability.
  Ledger packages return the structured types below; callers branch with
  errors.Is on the sentinels or errors.As on the structs.

ERROR CATEGORIES:
  1. ValidationError  - caller passed a structurally invalid value
                        (empty name, non-positive quantity/amount). Raised
                        before any persistence attempt.
  2. NotFoundError    - a referenced id does not exist. No state changed.
  3. PersistenceError - the storage transaction failed. Multi-step ledger
                        operations have been rolled back in full.

  Duplicate keys are NOT errors for upserts (attendance, diary): they
  resolve via update.

USAGE:
  _, err := stockLedger.RecordMovement(ctx, in)
  var nf *generic.NotFoundError
  switch {
  case errors.As(err, &nf):
      // nf.Entity, nf.ID
  case generic.IsClientError(err):
      // 400
  }

SEE ALSO:
  - store.go: Gateway interfaces whose failures are wrapped here
  - api/handlers.go: HTTP status mapping
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the sentinel behind every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is the sentinel behind every *NotFoundError.
	ErrNotFound = errors.New("not found")

	// ErrPersistence is the sentinel behind every *PersistenceError.
	ErrPersistence = errors.New("persistence failed")

	// ErrConcurrentModification is returned when the optimistic version stamp
	// of a stock item changed between read and write.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrLockNotObtained is returned when the single-writer lock for a
	// project could not be acquired in time.
	ErrLockNotObtained = errors.New("project lock not obtained")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes a rejected input value.
type ValidationError struct {
	Op     string // e.g. "stock.RecordMovement"
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("%s: invalid %s (%v): %s", e.Op, e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("%s: invalid %s: %s", e.Op, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError names the missing entity and id.
type NotFoundError struct {
	Op     string
	Entity string // "stock item", "movement", "employee", ...
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s %d not found", e.Op, e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// PersistenceError wraps a storage failure. It matches both ErrPersistence
// and the underlying cause.
type PersistenceError struct {
	Op     string
	Entity string
	ID     int64
	Err    error
}

func (e *PersistenceError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("%s: %s %d: %v", e.Op, e.Entity, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Entity, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// Wrap classifies err for op. Errors that already carry a taxonomy type, or
// that signal a retryable conflict, pass through unchanged; anything else
// becomes a *PersistenceError.
func Wrap(op, entity string, id int64, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPersistence) || errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrLockNotObtained) {
		return err
	}
	return &PersistenceError{Op: op, Entity: entity, ID: id, Err: err}
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrLockNotObtained)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
