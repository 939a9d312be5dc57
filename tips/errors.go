/*
errors.go - Centralized error types for the tip engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is; structured errors carry extra context
  and unwrap to the sentinels.

ERROR CATEGORIES:
  1. Ledger errors - duplicate idempotency keys, append failures
  2. Group errors - membership invariant violations, lock conflicts
  3. Adjustment errors - rolled-back correction units

PROPAGATION POLICY:
  Ledger-integrity errors are never swallowed: anything touching append
  or adjustment propagates and fails the enclosing business operation.
  The single deliberate exception is pooling assignment at clock-in,
  which is logged and dropped (see binder.go).

SEE ALSO:
  - ledger.go, group.go, adjust.go: Producers of these errors
  - binder.go: The fire-and-forget exception
*/
package tips

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateIdempotencyKey is returned by stores when an entry with the
	// same idempotency key already exists. Benign: the ledger treats it as
	// success-returning-existing-result.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrAlreadyInGroup is returned when an employee is added to a group while
	// still an active member of any group. Recoverable at the clock-in
	// boundary; clock-in proceeds without pooling.
	ErrAlreadyInGroup = errors.New("employee already active in a tip group")

	// ErrSegmentLockConflict is returned when a membership transition or
	// recalculation loses a race for the group. Transient; retry the unit.
	ErrSegmentLockConflict = errors.New("segment lock conflict")

	// ErrAdjustmentFailed means the entire adjustment unit rolled back.
	// No partial state remains.
	ErrAdjustmentFailed = errors.New("adjustment failed")

	// ErrRoundingResidual is an internal invariant violation: computed shares
	// did not sum to the input amount. Always a bug; fails loudly rather than
	// silently dropping currency.
	ErrRoundingResidual = errors.New("rounding residual: shares do not sum to input amount")

	// ErrGroupClosed is returned when crediting or mutating a closed group.
	ErrGroupClosed = errors.New("tip group is closed")

	// ErrGroupNotFound is returned when a referenced group doesn't exist.
	ErrGroupNotFound = errors.New("tip group not found")

	// ErrTemplateNotFound is returned when a referenced template doesn't exist.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrOrderNotResolved is returned when an adjustment targets an order with
	// no persisted ownership record.
	ErrOrderNotResolved = errors.New("order ownership not resolved")

	// ErrNotInGroup is returned when removing an employee who is not a member.
	ErrNotInGroup = errors.New("employee is not a member of the group")

	// ErrOwnershipExists guards the resolve-once contract on ownership records.
	ErrOwnershipExists = errors.New("ownership already resolved for order")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// AlreadyInGroupError identifies which group the employee is still in.
type AlreadyInGroupError struct {
	EmployeeID EmployeeID
	GroupID    GroupID
}

func (e *AlreadyInGroupError) Error() string {
	return fmt.Sprintf("employee %s is already active in group %s", e.EmployeeID, e.GroupID)
}

func (e *AlreadyInGroupError) Unwrap() error { return ErrAlreadyInGroup }

// RoundingResidualError reports how much currency the allocation missed by.
type RoundingResidualError struct {
	Input    Money
	Computed Money
}

func (e *RoundingResidualError) Error() string {
	return fmt.Sprintf("rounding residual: allocated %s of %s", e.Computed, e.Input)
}

func (e *RoundingResidualError) Unwrap() error { return ErrRoundingResidual }

// AdjustmentError wraps the cause of a rolled-back adjustment unit.
type AdjustmentError struct {
	Type  AdjustmentType
	Cause error
}

func (e *AdjustmentError) Error() string {
	return fmt.Sprintf("adjustment %s failed: %v", e.Type, e.Cause)
}

func (e *AdjustmentError) Unwrap() error { return ErrAdjustmentFailed }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSegmentLockConflict)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrAlreadyInGroup) ||
		errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrGroupClosed) ||
		errors.Is(err, ErrNotInGroup) ||
		errors.Is(err, ErrOwnershipExists)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrGroupNotFound) ||
		errors.Is(err, ErrTemplateNotFound) ||
		errors.Is(err, ErrOrderNotResolved)
}
