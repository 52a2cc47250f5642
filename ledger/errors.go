/*
errors.go - Centralized error types for the ledger core

PURPOSE:
  All error types in one place so the HTTP layer (and any other caller)
  can map failures without knowing which operation produced them.

ERROR CATEGORIES:
  1. Validation - malformed or contradictory input, reported before any write
  2. Not found  - referenced account/member/supplier/payment missing
  3. Uniqueness - receipt or invoice number collision
  4. Operation  - storage failure inside an atomic unit (rolled back)

USAGE:
  if errors.Is(err, ledger.ErrValidation) {
      var verr *ledger.ValidationError
      errors.As(err, &verr) // field-level messages
  }

SEE ALSO:
  - api/handlers.go: HTTP status mapping
*/
package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for input rejected before any mutation.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrUniqueness is returned when a unique field (invoice reference,
	// member RID or email, supplier code) is already taken.
	ErrUniqueness = errors.New("uniqueness conflict")

	// ErrInsufficientBalance is returned by the advisory pre-check on
	// outbound payments. It also matches ErrValidation.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrOperationFailed is returned when the atomic unit could not be
	// committed. Nothing from the unit is visible afterwards.
	ErrOperationFailed = errors.New("operation failed")

	// ErrInconsistentCashbook is returned when the running-balance walk and
	// the independently computed closing balance disagree.
	ErrInconsistentCashbook = errors.New("cashbook walk and totals disagree")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FieldError is one field-level validation message.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError collects field-level messages for one operation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Add records a message for field.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Err returns nil when no field failed, so callers can `return v.Err()`.
func (e *ValidationError) Err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Invalid builds a single-field ValidationError.
func Invalid(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string // "account", "member", "supplier", "revenue_type", "inbound_payment", "outbound_payment"
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// UniquenessError names the colliding field and value.
type UniquenessError struct {
	Field string
	Value string
}

func (e *UniquenessError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Field, e.Value)
}

func (e *UniquenessError) Unwrap() error {
	return ErrUniqueness
}

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	AccountID AccountID
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance on account %d: available %s, requested %s",
		e.AccountID, e.Available.StringFixed(MoneyPlaces), e.Requested.StringFixed(MoneyPlaces))
}

// Is makes the shortage match both ErrInsufficientBalance and ErrValidation.
func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance || target == ErrValidation
}

// operationFailed wraps a storage error so callers see a generic failure
// while logs keep the cause.
func operationFailed(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrOperationFailed, err)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrInsufficientBalance)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true for uniqueness collisions surfaced to the caller.
func IsConflict(err error) bool {
	return errors.Is(err, ErrUniqueness)
}

// isDomainError reports errors that should pass through an atomic unit
// unchanged instead of being reported as a generic failure.
func isDomainError(err error) bool {
	return IsClientError(err) || IsNotFound(err) || IsConflict(err)
}
