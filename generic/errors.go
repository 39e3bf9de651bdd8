/*
errors.go - Centralized error types for the leave engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every error returned by a lifecycle or ledger operation matches exactly
  one sentinel below with errors.Is, so the transport layer can pick a
  status code without string matching.

ERROR CATEGORIES:
  1. Caller errors - Validation, Forbidden, Unauthenticated, NotFound
  2. State errors - InvalidStateTransition, Conflict, InsufficientBalance
  3. Ledger errors - BalanceNotFound, ConcurrentModification, LedgerInvariant
  4. Internal errors - Storage failures, wrapped so they are never echoed

USAGE:
  if errors.Is(err, generic.ErrInsufficientBalance) {
      var ib *generic.InsufficientBalanceError
      errors.As(err, &ib)
      // ib.Available, ib.Requested
  }

SEE ALSO:
  - balance.go: Raises InsufficientBalance and LedgerInvariant
  - leave/request.go: Raises the lifecycle errors
  - api/errors.go: Maps these errors to HTTP responses
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
	// ErrNotFound is returned when an application or leave type doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the actor lacks rights for the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidStateTransition is returned when the application status does
	// not allow the requested transition.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrInsufficientBalance is returned when remaining days cannot cover a request.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrBalanceNotFound is returned when a balance row vanished between check and write.
	ErrBalanceNotFound = errors.New("balance not found")

	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrConflict is returned when a unique key (leave type name, balance key) is taken.
	ErrConflict = errors.New("conflict")

	// ErrConcurrentModification is returned when optimistic locking detects a conflict.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrLedgerInvariant is returned when a mutation would break
	// remaining == allocated - used or push used below zero.
	ErrLedgerInvariant = errors.New("ledger invariant violated")

	// ErrDuplicateIdempotencyKey is returned when a journal entry with the same
	// idempotency key already exists. It matches ErrConflict.
	ErrDuplicateIdempotencyKey = fmt.Errorf("duplicate idempotency key: %w", ErrConflict)

	ErrInternal = errors.New("internal error")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError provides details about a balance shortage.
// NoBalance is set when no bucket exists at all for the key.
type InsufficientBalanceError struct {
	Key       BalanceKey
	Available Amount
	Requested Amount
	NoBalance bool
}

func (e *InsufficientBalanceError) Error() string {
	if e.NoBalance {
		return fmt.Sprintf("insufficient balance: no balance for %s, requested %v", e.Key, e.Requested.Value)
	}
	return fmt.Sprintf("insufficient balance: available %v, requested %v",
		e.Available.Value, e.Requested.Value)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// ValidationError names the offending input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidStateTransition
}

type NotFoundError struct {
	Kind string // "application", "leave type", ...
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

type ForbiddenError struct {
	ActorID   EntityID
	Operation string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: %s may not %s", e.ActorID, e.Operation)
}

func (e *ForbiddenError) Unwrap() error {
	return ErrForbidden
}

// InternalError keeps the storage cause for logs while matching ErrInternal.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error: %s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() []error {
	return []error{ErrInternal, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

var known = []error{
	ErrNotFound,
	ErrForbidden,
	ErrInvalidStateTransition,
	ErrInsufficientBalance,
	ErrValidation,
	ErrBalanceNotFound,
	ErrUnauthenticated,
	ErrConflict,
	ErrConcurrentModification,
	ErrLedgerInvariant,
	ErrInternal,
}

// IsKnown reports whether err belongs to the taxonomy above.
func IsKnown(err error) bool {
	for _, k := range known {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// Internal wraps err as an InternalError unless it is already a taxonomy error.
func Internal(op string, err error) error {
	if err == nil || IsKnown(err) {
		return err
	}
	return &InternalError{Op: op, Err: err}
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to the caller's input or rights.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrUnauthenticated) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidStateTransition) ||
		errors.Is(err, ErrConflict)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrBalanceNotFound)
}
