/*
errors.go - Centralized error taxonomy for the leave core

PURPOSE:
  All error types in one place for consistency and discoverability.
  The taxonomy matters to callers: a ConflictError means "refresh state
  and retry", a PolicyViolation means "correct the request", and a
  ValidationError means "the input itself is malformed".

ERROR CATEGORIES:
  1. ValidationError     - malformed dates, missing required fields
  2. NotFoundError       - unknown employee/leave type/request/entitlement
  3. ConflictError       - stale version, double-finalize, overlapping
                           in-flight request
  4. PolicyViolation     - insufficient balance without override, blocked
                           period, notice/consecutive-day breach,
                           inactive/ineligible leave type
  5. StateTransitionError - action illegal for the current request state

USAGE:
  Callers branch with errors.Is:

    if errors.Is(err, leave.ErrConflict) {
        // reload and retry
    }

SEE ALSO:
  - workflow.go: Distinguishes ConflictError (terminal state reached by a
    concurrent actor) from StateTransitionError (action never legal here)
*/
package leave

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed input: inverted date ranges,
	// missing required fields, non-positive amounts.
	ErrValidation = errors.New("validation error")

	// ErrNotFound is returned when a referenced employee, leave type,
	// request, or entitlement does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when optimistic concurrency detects a stale
	// version, when a transition's preconditions were consumed by a
	// concurrent actor, or when an overlapping request is already in flight.
	ErrConflict = errors.New("conflict")

	// ErrPolicyViolation is returned when a business rule blocks the
	// operation: insufficient balance, blocked period, notice breach.
	ErrPolicyViolation = errors.New("policy violation")

	// ErrStateTransition is returned when an action is not legal for the
	// request's current state or the actor's role.
	ErrStateTransition = errors.New("illegal state transition")
)

// =============================================================================
// STRUCTURED ERRORS - Carry enough context for the caller to act
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError names the missing resource.
type NotFoundError struct {
	Kind string // "employee", "leave type", "request", "entitlement", "calendar"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError distinguishes the flavors of conflict so a client knows
// whether to refresh state (stale version) or back off (overlap).
type ConflictError struct {
	Kind    string // "stale_version", "already_finalized", "overlapping_request", "duplicate"
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// PolicyViolationError names the violated rule so the caller can tell
// whether correcting the request and retrying is meaningful.
type PolicyViolationError struct {
	Rule    string // "insufficient_balance", "blocked_period", "min_notice", "max_consecutive", "inactive_type", "min_tenure", "max_duration"
	Message string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Message)
}

func (e *PolicyViolationError) Unwrap() error { return ErrPolicyViolation }

// InsufficientBalanceError is the balance-specific policy violation.
type InsufficientBalanceError struct {
	Key       EntitlementKey
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s/%s/%d: available %s, requested %s",
		e.Key.EmployeeID, e.Key.LeaveTypeID, e.Key.Year, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrPolicyViolation }

// StateTransitionError reports which action was attempted in which state.
type StateTransitionError struct {
	RequestID RequestID
	Status    RequestStatus
	Action    string
	Role      Role
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("request %s: action %q by role %q not allowed in state %s",
		e.RequestID, e.Action, e.Role, e.Status)
}

func (e *StateTransitionError) Unwrap() error { return ErrStateTransition }

// InvariantError indicates stored balance state no longer folds to its
// components. This should never surface in normal operation; it exists so
// a corrupted record fails loudly instead of silently feeding payroll.
type InvariantError struct {
	Key      EntitlementKey
	Stored   decimal.Decimal
	Computed decimal.Decimal
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("entitlement invariant broken for %s/%s/%d: stored remaining %s, components fold to %s",
		e.Key.EmployeeID, e.Key.LeaveTypeID, e.Key.Year, e.Stored, e.Computed)
}

// BlockedPeriodError carries the overlapping blocked range.
type BlockedPeriodError struct {
	From   time.Time
	To     time.Time
	Reason string
}

func (e *BlockedPeriodError) Error() string {
	return fmt.Sprintf("blocked_period: request overlaps blocked period %s..%s (%s)",
		e.From.Format("2006-01-02"), e.To.Format("2006-01-02"), e.Reason)
}

func (e *BlockedPeriodError) Unwrap() error { return ErrPolicyViolation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on an unchanged retry.
func IsRetryable(err error) bool {
	var c *ConflictError
	return errors.As(err, &c) && c.Kind == "stale_version"
}

// IsClientError returns true if the error is due to the caller's input
// rather than a system failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrPolicyViolation) ||
		errors.Is(err, ErrStateTransition) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrNotFound)
}
