/*
Package leave implements the leave balance ledger and request approval
workflow for an HR administration platform.

PURPOSE:
  This package contains the stateful core that the surrounding CRUD
  modules delegate to: a per-employee entitlement ledger (accrual,
  carry-forward, manual adjustment, consumption), a multi-actor
  approval state machine, and calendar-aware duration computation.

KEY CONCEPTS IN THIS FILE (types.go):
  - LeaveType / LeavePolicy: What kind of leave and the rules that
    govern how its balance accrues and rolls over
  - Entitlement: The per (employee, leave type, leave-year) balance
    record with a strict arithmetic invariant
  - Adjustment: An immutable ledger entry recording a balance change
  - LeaveRequest: The workflow entity, mutated only through transitions
  - CarryForwardRecord: One per (employee, leave type, target year)

DESIGN PRINCIPLES:
  1. Immutability: Adjustments are never modified, only reversed
  2. Precision: Uses decimal.Decimal to avoid floating-point drift
  3. Type Safety: Strong typing for IDs prevents mixing identifiers
  4. Auditability: Every balance change carries reason and actor

SEE ALSO:
  - ledger.go: Entitlement mutation and the balance invariant
  - workflow.go: Request state machine
  - accrual.go: Periodic crediting per policy
  - carryforward.go: Year-boundary rollover
*/
package leave

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type LeaveTypeID string
type RequestID string

// Role identifies the capacity an actor acts in. Authentication and role
// resolution happen outside this package; the role is trusted as passed.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
	RoleHR       Role = "hr"
	RoleSystem   Role = "system"
)

// Actor is the authenticated identity performing an operation.
type Actor struct {
	ID   string
	Role Role
}

// SystemActor is used by scheduled sweeps (accrual, carry-forward).
var SystemActor = Actor{ID: "system", Role: RoleSystem}

// =============================================================================
// LEAVE TYPE & POLICY
// =============================================================================

// AccrualMethod determines how often an entitlement is credited.
type AccrualMethod string

const (
	AccrualMonthly AccrualMethod = "MONTHLY"
	AccrualYearly  AccrualMethod = "YEARLY"
)

// RoundingRule determines how the exact accrued total is rounded before
// being credited to the spendable balance.
type RoundingRule string

const (
	RoundNearest RoundingRule = "ROUND"
	RoundFloor   RoundingRule = "FLOOR"
	RoundCeil    RoundingRule = "CEIL"
)

// ApplyRounding rounds v according to the rule. ROUND is half-away-from-zero
// to a whole number of days, matching payroll conventions.
func ApplyRounding(v decimal.Decimal, rule RoundingRule) decimal.Decimal {
	switch rule {
	case RoundFloor:
		return v.Floor()
	case RoundCeil:
		return v.Ceil()
	default:
		return v.Round(0)
	}
}

// LeavePolicy is the per-type ruleset: how balance accrues, whether it
// survives the year boundary, and what request shapes are acceptable.
type LeavePolicy struct {
	AccrualMethod AccrualMethod
	MonthlyRate   decimal.Decimal
	YearlyRate    decimal.Decimal
	Rounding      RoundingRule

	CarryForwardAllowed bool
	MaxCarryForward     decimal.Decimal
	ExpiryAfterMonths   int

	// Request shape constraints. Zero means unconstrained.
	MinNoticeDays      int
	MaxConsecutiveDays int
}

// LeaveType has an immutable identity (ID, Code) and mutable policy
// attributes. Deactivate rather than delete: requests reference it forever.
type LeaveType struct {
	ID         LeaveTypeID
	Code       string
	Name       string
	CategoryID string

	Paid       bool
	Deductible bool

	RequiresAttachment bool
	AttachmentKind     string

	MinTenureMonths int
	MaxDurationDays int // 0 = unlimited

	Active bool
	Policy LeavePolicy
}

// =============================================================================
// ENTITLEMENT - The per (employee, leave type, leave-year) balance record
// =============================================================================

// EntitlementKey identifies one balance record.
type EntitlementKey struct {
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID
	Year        int
}

// Entitlement is the shared mutable resource of the whole system.
//
// INVARIANT (checked on every mutation):
//   Remaining = AccruedRounded + CarryForward + ManualAdjust - Taken
//
// Remaining may only be negative when the mutation that caused it carried
// an explicit override, in which case the adjustment entry is tagged.
//
// Version is the optimistic concurrency token: every committed mutation
// increments it, and a conditional update guards against lost writes.
type Entitlement struct {
	Key EntitlementKey

	YearlyEntitlement decimal.Decimal
	AccruedActual     decimal.Decimal // exact running total, never rounded
	AccruedRounded    decimal.Decimal
	CarryForward      decimal.Decimal
	ManualAdjust      decimal.Decimal
	Taken             decimal.Decimal
	Remaining         decimal.Decimal

	// AccruedThrough marks the end of the last accrued period. The accrual
	// sweep compares it before crediting, which makes re-runs no-ops.
	AccruedThrough time.Time

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ComputedRemaining folds the balance components.
func (e *Entitlement) ComputedRemaining() decimal.Decimal {
	return e.AccruedRounded.Add(e.CarryForward).Add(e.ManualAdjust).Sub(e.Taken)
}

// CheckInvariant verifies the stored Remaining matches its components.
func (e *Entitlement) CheckInvariant() error {
	if !e.Remaining.Equal(e.ComputedRemaining()) {
		return &InvariantError{Key: e.Key, Stored: e.Remaining, Computed: e.ComputedRemaining()}
	}
	return nil
}

// =============================================================================
// ADJUSTMENT - Immutable ledger entry (the durable audit trail)
// =============================================================================

type AdjustmentType string

const (
	AdjAccrual      AdjustmentType = "ACCRUAL"
	AdjCarryForward AdjustmentType = "CARRY_FORWARD"
	AdjManual       AdjustmentType = "MANUAL"
	AdjConsumption  AdjustmentType = "CONSUMPTION"
	AdjReversal     AdjustmentType = "REVERSAL"
)

// Adjustment is one append-only ledger entry. Amount is signed from the
// balance's point of view: consumption is negative, reversal positive.
//
// ACCRUAL entries also carry ActualAmount, the unrounded delta, so the
// exact AccruedActual total is reconstructable by folding the ledger
// from genesis (see RebuildEntitlement).
type Adjustment struct {
	ID           string
	Key          EntitlementKey
	Type         AdjustmentType
	Amount       decimal.Decimal
	ActualAmount decimal.Decimal // only meaningful for ACCRUAL entries
	Reason       string
	ActorID      string
	Override     bool // balance was allowed to go negative
	ReferenceID  string
	CreatedAt    time.Time
}

// =============================================================================
// LEAVE REQUEST - Workflow entity
// =============================================================================

type RequestStatus string

const (
	StatusSubmitted             RequestStatus = "SUBMITTED"
	StatusManagerApproved       RequestStatus = "MANAGER_APPROVED"
	StatusManagerRejected       RequestStatus = "MANAGER_REJECTED"
	StatusHRApproved            RequestStatus = "HR_APPROVED"
	StatusHRRejected            RequestStatus = "HR_REJECTED"
	StatusReturnedForCorrection RequestStatus = "RETURNED_FOR_CORRECTION"
	StatusCancelled             RequestStatus = "CANCELLED"
)

// Terminal reports whether a status permits no further transitions.
// HR_APPROVED is terminal for the approval flow but can still be
// cancelled, which credits the consumed balance back.
func (s RequestStatus) Terminal() bool {
	switch s {
	case StatusManagerRejected, StatusHRRejected, StatusHRApproved, StatusCancelled:
		return true
	}
	return false
}

// StageStamp records one transition for the immutable stage history.
type StageStamp struct {
	Status  RequestStatus `json:"status"`
	ActorID string        `json:"actor_id"`
	Note    string        `json:"note,omitempty"`
	At      time.Time     `json:"at"`
}

// LeaveRequest is created by employee action and mutated only through
// workflow transitions. Terminal requests are retained for audit, never
// deleted.
type LeaveRequest struct {
	ID          RequestID
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID

	From time.Time
	To   time.Time

	// DurationDays is re-derived at submission, never trusted from the caller.
	DurationDays decimal.Decimal

	Justification string
	AttachmentID  string
	PostLeave     bool

	Status       RequestStatus
	Stages       []StageStamp
	ReturnReason string
	RejectReason string
	Irregular    bool

	// StageEnteredAt is when the current status was entered; the overdue
	// sweep measures time-in-stage against it.
	StageEnteredAt time.Time

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// CARRY-FORWARD RECORD
// =============================================================================

// CarryForwardRecord is the audit record of one rollover into TargetYear.
type CarryForwardRecord struct {
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID
	TargetYear  int
	Days        decimal.Decimal
	ExpiryDate  time.Time
	Reason      string
	Overridden  bool
	Expired     bool
	CreatedAt   time.Time
}

// =============================================================================
// EMPLOYEE DIRECTORY (external collaborator)
// =============================================================================

// Employee is the directory view this package needs: hire date for tenure
// and anniversary resets, manager linkage for escalation routing, and
// employment status for eligibility.
type Employee struct {
	ID        EmployeeID
	Name      string
	Email     string
	HireDate  time.Time
	ManagerID EmployeeID
	Active    bool
}

// TenureMonths returns whole months of service as of the given date.
func (e Employee) TenureMonths(asOf time.Time) int {
	if asOf.Before(e.HireDate) {
		return 0
	}
	months := (asOf.Year()-e.HireDate.Year())*12 + int(asOf.Month()) - int(e.HireDate.Month())
	if asOf.Day() < e.HireDate.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

// Days builds a day amount from a float. Test and seed convenience.
func Days(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// MustParseDecimal parses s, returning zero on malformed input. Used when
// scanning storage columns that this package itself wrote.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// DateOnly truncates t to its UTC calendar date.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
