/*
errors.go - Centralized error types for the loyalty core

PURPOSE:
  All error kinds the engines can return, in one place. Callers (route
  handlers) distinguish outcomes with errors.Is/errors.As; the kinds are
  never collapsed into a generic failure.

ERROR CATEGORIES:
  1. Missing aggregates - ErrNotFound and friends
  2. State conflicts - terminal aggregates, invalid transitions
  3. Resource exhaustion - stock, points, reward quantity
  4. Validation - malformed input, rejected before any persistence access

USAGE:
  if errors.Is(err, loyalty.ErrAlreadyProcessed) {
      // request was approved or rejected by a concurrent caller
  }

  var insuf *loyalty.InsufficientStockError
  if errors.As(err, &insuf) {
      log.Printf("short by %d units", insuf.Requested-insuf.Available)
  }

SEE ALSO:
  - requests.go, transfer.go, points.go, redemption.go: producers
  - api/handlers.go: maps these kinds to HTTP statuses
*/
package loyalty

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced aggregate doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyProcessed is returned when an approve/reject call observes a
	// request that is no longer pending. This is the idempotency guard: the
	// losing caller performs no stock mutation.
	ErrAlreadyProcessed = errors.New("request already processed")

	// ErrInsufficientStock is returned when the central pool cannot cover the
	// requested quantity. State is unchanged; the call may be retried once
	// stock is replenished.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInsufficientPoints is returned when a spend exceeds the balance.
	// No history entry is appended.
	ErrInsufficientPoints = errors.New("insufficient points")

	// ErrOutOfStock is returned when a finite reward has no units left.
	ErrOutOfStock = errors.New("reward out of stock")

	// ErrRewardInactive is returned when redeeming a deactivated reward.
	ErrRewardInactive = errors.New("reward is not active")

	// ErrRewardExpired is returned when redeeming past the reward's expiry date.
	ErrRewardExpired = errors.New("reward has expired")

	// ErrInvalidStateTransition is returned for redemption status changes
	// outside pending->approved, pending->rejected, approved->delivered.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrInvalidAdjustment is returned when an adjustment would drive a
	// balance below zero. The clamp is never performed silently.
	ErrInvalidAdjustment = errors.New("adjustment would make balance negative")

	// ErrValidation is returned for malformed input, before any persistence
	// access.
	ErrValidation = errors.New("validation failed")

	// ErrConcurrentModification is returned when the compare-and-swap on a
	// shared counter still conflicts after the single permitted retry.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError identifies which aggregate was missing.
type NotFoundError struct {
	Kind string // "product", "request", "reward", "redemption", "account"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InsufficientStockError details a central-pool shortage.
type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// InsufficientPointsError details a balance shortage.
type InsufficientPointsError struct {
	UserID    string
	Balance   int
	Requested int
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points for user %s: balance %d, requested %d",
		e.UserID, e.Balance, e.Requested)
}

func (e *InsufficientPointsError) Unwrap() error { return ErrInsufficientPoints }

// StateTransitionError details a rejected redemption status change.
type StateTransitionError struct {
	RedemptionID string
	From         RedemptionStatus
	To           RedemptionStatus
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("redemption %s: cannot transition %s -> %s",
		e.RedemptionID, e.From, e.To)
}

func (e *StateTransitionError) Unwrap() error { return ErrInvalidStateTransition }

// AdjustmentError details an adjustment that would overdraw the balance.
type AdjustmentError struct {
	UserID  string
	Balance int
	Delta   int
}

func (e *AdjustmentError) Error() string {
	return fmt.Sprintf("adjustment of %+d would make user %s balance negative (current %d)",
		e.Delta, e.UserID, e.Balance)
}

func (e *AdjustmentError) Unwrap() error { return ErrInvalidAdjustment }

// ValidationError reports a malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsConflict returns true for terminal-state and transition conflicts.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyProcessed) ||
		errors.Is(err, ErrInvalidStateTransition) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsExhausted returns true when a shared resource cannot cover the request.
// These leave state unchanged and may be retried once the condition changes.
func IsExhausted(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInsufficientPoints) ||
		errors.Is(err, ErrOutOfStock)
}

// IsNotFound returns true if the error indicates a missing aggregate.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
