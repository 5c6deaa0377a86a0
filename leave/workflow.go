/*
workflow.go - Leave request approval state machine

PURPOSE:
  Drives a request from submission to a terminal state through a
  data-driven transition table. The table is keyed by (current state,
  action) and carries the allowed actor roles, so an illegal transition
  is a lookup miss, not a missed guard in nested conditionals.

STATE DIAGRAM:

  SUBMITTED ──managerApprove──▶ MANAGER_APPROVED ──hrFinalize(approve)──▶ HR_APPROVED
      │                              │                      │
      │ managerReject                │ hrFinalize(reject)   │ cancel (credits back)
      ▼                              ▼                      ▼
  MANAGER_REJECTED              HR_REJECTED             CANCELLED

  {SUBMITTED, MANAGER_APPROVED} ──returnForCorrection──▶ RETURNED_FOR_CORRECTION
  RETURNED_FOR_CORRECTION ──resubmit──▶ SUBMITTED
  any non-terminal ──cancel──▶ CANCELLED

BALANCE COUPLING:
  Only two transitions touch the ledger: hrFinalize(approve) debits, and
  cancel-after-approval credits back via a REVERSAL entry. A failed debit
  (insufficient balance without override) aborts the transition entirely,
  leaving the request in MANAGER_APPROVED.

CONCURRENCY:
  Every transition is version-guarded. A transition whose preconditions
  were consumed by a concurrent actor (double-finalize, resubmit racing
  cancel) fails with ConflictError rather than silently re-applying.

SEE ALSO:
  - duration.go: Re-derives durationDays on submit and resubmit
  - escalation.go: Reads StageEnteredAt set here
*/
package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// TRANSITION TABLE
// =============================================================================

type Action string

const (
	ActionSubmit          Action = "submit"
	ActionManagerApprove  Action = "managerApprove"
	ActionManagerReject   Action = "managerReject"
	ActionReturn          Action = "returnForCorrection"
	ActionResubmit        Action = "resubmit"
	ActionHRFinalize      Action = "hrFinalize"
	ActionCancel          Action = "cancel"
)

type transitionKey struct {
	From   RequestStatus
	Action Action
}

type transitionRule struct {
	Roles []Role
}

// transitionTable is the single source of truth for which action is legal
// in which state and for whom. hrFinalize's target state depends on the
// decision and is resolved in the handler; cancel is handled separately
// because it is legal from several states.
var transitionTable = map[transitionKey]transitionRule{
	{StatusSubmitted, ActionManagerApprove}:      {Roles: []Role{RoleManager, RoleHR}},
	{StatusSubmitted, ActionManagerReject}:       {Roles: []Role{RoleManager, RoleHR}},
	{StatusSubmitted, ActionReturn}:              {Roles: []Role{RoleManager, RoleHR}},
	{StatusManagerApproved, ActionReturn}:        {Roles: []Role{RoleManager, RoleHR}},
	{StatusManagerApproved, ActionHRFinalize}:    {Roles: []Role{RoleHR}},
	{StatusReturnedForCorrection, ActionResubmit}: {Roles: []Role{RoleEmployee}},
}

// cancelRoles: the requester or an authorized actor.
var cancelRoles = []Role{RoleEmployee, RoleManager, RoleHR}

func roleAllowed(roles []Role, r Role) bool {
	for _, allowed := range roles {
		if allowed == r {
			return true
		}
	}
	return false
}

// checkTransition resolves the table. Terminal states yield ConflictError
// (the precondition was consumed, likely by a concurrent actor); anything
// else illegal yields StateTransitionError.
func checkTransition(req *LeaveRequest, action Action, actor Actor) error {
	if req.Status.Terminal() {
		return &ConflictError{
			Kind:    "already_finalized",
			Message: fmt.Sprintf("request %s is already %s", req.ID, req.Status),
		}
	}
	rule, ok := transitionTable[transitionKey{req.Status, action}]
	if !ok || !roleAllowed(rule.Roles, actor.Role) {
		return &StateTransitionError{RequestID: req.ID, Status: req.Status, Action: string(action), Role: actor.Role}
	}
	return nil
}

// =============================================================================
// WORKFLOW SERVICE
// =============================================================================

// Workflow orchestrates request transitions and their ledger coupling.
type Workflow struct {
	Store     Store
	Ledger    *EntitlementLedger
	Directory Directory
	Notifier  Notifier
	Log       *logrus.Logger
	Clock     func() time.Time
}

func NewWorkflow(store Store, ledger *EntitlementLedger, dir Directory, notifier Notifier, log *logrus.Logger) *Workflow {
	if log == nil {
		log = logrus.New()
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Workflow{Store: store, Ledger: ledger, Directory: dir, Notifier: notifier, Log: log, Clock: time.Now}
}

func (w *Workflow) now() time.Time { return w.Clock().UTC() }

// =============================================================================
// SUBMIT
// =============================================================================

// SubmitInput is the explicit, typed submission shape. DurationDays is
// deliberately absent: it is always re-derived server-side.
type SubmitInput struct {
	EmployeeID    EmployeeID
	LeaveTypeID   LeaveTypeID
	From          time.Time
	To            time.Time
	Justification string
	AttachmentID  string
	PostLeave     bool

	// BlockedException marks a policy-defined exception to a blocked
	// period. Who may set it is enforced by the caller's role gate.
	BlockedException bool
}

// Submit validates eligibility, computes the chargeable duration against
// the calendar, and creates the request in SUBMITTED.
func (w *Workflow) Submit(ctx context.Context, in SubmitInput, actor Actor) (*LeaveRequest, error) {
	lt, err := w.Store.GetLeaveType(ctx, in.LeaveTypeID)
	if err != nil {
		return nil, err
	}
	if !lt.Active {
		return nil, &PolicyViolationError{Rule: "inactive_type", Message: fmt.Sprintf("leave type %s is not active", lt.Code)}
	}

	emp, err := w.Directory.Employee(ctx, in.EmployeeID)
	if err != nil {
		return nil, err
	}
	if !emp.Active {
		return nil, &PolicyViolationError{Rule: "inactive_employee", Message: "employee is not in active employment"}
	}
	if lt.MinTenureMonths > 0 && emp.TenureMonths(w.now()) < lt.MinTenureMonths {
		return nil, &PolicyViolationError{
			Rule:    "min_tenure",
			Message: fmt.Sprintf("leave type %s requires %d months of tenure", lt.Code, lt.MinTenureMonths),
		}
	}
	if lt.RequiresAttachment && in.AttachmentID == "" {
		return nil, &ValidationError{Field: "attachment", Message: fmt.Sprintf("leave type %s requires a %s attachment", lt.Code, lt.AttachmentKind)}
	}

	dur, err := w.computeDuration(ctx, w.Store, in.From, in.To, lt, DurationOptions{
		Now:              w.now(),
		PostLeave:        in.PostLeave,
		BlockedException: in.BlockedException,
	})
	if err != nil {
		return nil, err
	}
	if lt.MaxDurationDays > 0 && dur.Days.GreaterThan(decimal.NewFromInt(int64(lt.MaxDurationDays))) {
		return nil, &PolicyViolationError{
			Rule:    "max_duration",
			Message: fmt.Sprintf("leave type %s allows at most %d days per request", lt.Code, lt.MaxDurationDays),
		}
	}

	overlapping, err := w.Store.FindOverlapping(ctx, in.EmployeeID, in.LeaveTypeID, in.From, in.To, "")
	if err != nil {
		return nil, err
	}
	if len(overlapping) > 0 {
		return nil, &ConflictError{
			Kind:    "overlapping_request",
			Message: fmt.Sprintf("request %s already covers part of this range", overlapping[0].ID),
		}
	}

	now := w.now()
	req := LeaveRequest{
		ID:             RequestID(uuid.NewString()),
		EmployeeID:     in.EmployeeID,
		LeaveTypeID:    in.LeaveTypeID,
		From:           DateOnly(in.From),
		To:             DateOnly(in.To),
		DurationDays:   dur.Days,
		Justification:  in.Justification,
		AttachmentID:   in.AttachmentID,
		PostLeave:      in.PostLeave,
		Status:         StatusSubmitted,
		StageEnteredAt: now,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	req.Stages = append(req.Stages, StageStamp{Status: StatusSubmitted, ActorID: actor.ID, At: now})

	// A submission exceeding the current balance is allowed to enter the
	// workflow (the debit decision belongs to HR finalize) but is flagged
	// for reviewer attention.
	if lt.Deductible {
		key := EntitlementKey{EmployeeID: in.EmployeeID, LeaveTypeID: in.LeaveTypeID, Year: in.From.Year()}
		if ent, err := w.Store.GetEntitlement(ctx, key); err == nil {
			if dur.Days.GreaterThan(ent.Remaining) {
				req.Irregular = true
			}
		}
	}

	if err := w.Store.PutRequest(ctx, req); err != nil {
		return nil, err
	}

	w.notifyManager(ctx, emp, "leave_request_submitted",
		fmt.Sprintf("%s requested %s days of %s (%s to %s)", emp.Name, dur.Days, lt.Code,
			req.From.Format("2006-01-02"), req.To.Format("2006-01-02")))

	return &req, nil
}

// =============================================================================
// MANAGER STAGE
// =============================================================================

// ManagerApprove advances SUBMITTED to MANAGER_APPROVED. No balance effect.
func (w *Workflow) ManagerApprove(ctx context.Context, id RequestID, actor Actor, expectedVersion int64) (*LeaveRequest, error) {
	return w.transition(ctx, id, ActionManagerApprove, actor, expectedVersion, func(_ Store, req *LeaveRequest) error {
		w.stamp(req, StatusManagerApproved, actor.ID, "")
		return nil
	})
}

// ManagerReject is terminal and touches no balance.
func (w *Workflow) ManagerReject(ctx context.Context, id RequestID, actor Actor, reason string, expectedVersion int64) (*LeaveRequest, error) {
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Message: "rejection requires a reason"}
	}
	return w.transition(ctx, id, ActionManagerReject, actor, expectedVersion, func(_ Store, req *LeaveRequest) error {
		req.RejectReason = reason
		w.stamp(req, StatusManagerRejected, actor.ID, reason)
		return nil
	})
}

// ReturnForCorrection sends the request back to the employee. Allowed from
// SUBMITTED or MANAGER_APPROVED; no balance effect.
func (w *Workflow) ReturnForCorrection(ctx context.Context, id RequestID, actor Actor, reason string, expectedVersion int64) (*LeaveRequest, error) {
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Message: "returning a request requires a reason"}
	}
	return w.transition(ctx, id, ActionReturn, actor, expectedVersion, func(_ Store, req *LeaveRequest) error {
		req.ReturnReason = reason
		w.stamp(req, StatusReturnedForCorrection, actor.ID, reason)
		return nil
	})
}

// =============================================================================
// RESUBMIT
// =============================================================================

// Corrections is what an employee may change on a returned request.
type Corrections struct {
	From          *time.Time
	To            *time.Time
	Justification *string
	AttachmentID  *string
}

// Resubmit re-enters SUBMITTED from RETURNED_FOR_CORRECTION, re-running
// the duration computation and the submission gates against the corrected
// range. Any prior manager approval survives only as a stage stamp in the
// history: the corrected request goes through manager review again.
func (w *Workflow) Resubmit(ctx context.Context, id RequestID, employeeID EmployeeID, corr Corrections, expectedVersion int64) (*LeaveRequest, error) {
	actor := Actor{ID: string(employeeID), Role: RoleEmployee}
	return w.transition(ctx, id, ActionResubmit, actor, expectedVersion, func(s Store, req *LeaveRequest) error {
		if req.EmployeeID != employeeID {
			return &StateTransitionError{RequestID: id, Status: req.Status, Action: string(ActionResubmit), Role: RoleEmployee}
		}
		if corr.From != nil {
			req.From = DateOnly(*corr.From)
		}
		if corr.To != nil {
			req.To = DateOnly(*corr.To)
		}
		if corr.Justification != nil {
			req.Justification = *corr.Justification
		}
		if corr.AttachmentID != nil {
			req.AttachmentID = *corr.AttachmentID
		}

		lt, err := s.GetLeaveType(ctx, req.LeaveTypeID)
		if err != nil {
			return err
		}
		dur, err := w.computeDuration(ctx, s, req.From, req.To, lt, DurationOptions{Now: w.now(), PostLeave: req.PostLeave})
		if err != nil {
			return err
		}

		// A corrected range answers to the same gates as a fresh submission.
		if lt.MaxDurationDays > 0 && dur.Days.GreaterThan(decimal.NewFromInt(int64(lt.MaxDurationDays))) {
			return &PolicyViolationError{
				Rule:    "max_duration",
				Message: fmt.Sprintf("leave type %s allows at most %d days per request", lt.Code, lt.MaxDurationDays),
			}
		}
		overlapping, err := s.FindOverlapping(ctx, req.EmployeeID, req.LeaveTypeID, req.From, req.To, req.ID)
		if err != nil {
			return err
		}
		if len(overlapping) > 0 {
			return &ConflictError{
				Kind:    "overlapping_request",
				Message: fmt.Sprintf("request %s already covers part of this range", overlapping[0].ID),
			}
		}

		req.DurationDays = dur.Days
		req.ReturnReason = ""
		w.stamp(req, StatusSubmitted, actor.ID, "resubmitted after correction")
		return nil
	})
}

// =============================================================================
// HR FINALIZE - the only transition that debits the ledger
// =============================================================================

type FinalizeDecision string

const (
	DecisionApprove FinalizeDecision = "approve"
	DecisionReject  FinalizeDecision = "reject"
)

// FinalizeInput parameterizes the HR decision.
type FinalizeInput struct {
	Decision      FinalizeDecision
	AllowNegative bool
	Reason        string

	// IsOverride marks an approval that overrides a flagged irregularity
	// (insufficient balance, irregular submission). It requires a reason,
	// permits a negative balance, and is recorded on the stage stamp.
	IsOverride bool
}

// HRFinalize settles a MANAGER_APPROVED request. On approve it debits the
// entitlement inside the same storage transaction that moves the request
// to HR_APPROVED; a failed debit aborts the whole transition. On reject
// there is no balance effect.
func (w *Workflow) HRFinalize(ctx context.Context, id RequestID, actor Actor, in FinalizeInput, expectedVersion int64) (*LeaveRequest, error) {
	switch in.Decision {
	case DecisionApprove, DecisionReject:
	default:
		return nil, &ValidationError{Field: "decision", Message: "decision must be approve or reject"}
	}
	if in.Decision == DecisionReject && in.Reason == "" {
		return nil, &ValidationError{Field: "reason", Message: "rejection requires a reason"}
	}
	if in.IsOverride && in.Reason == "" {
		return nil, &ValidationError{Field: "reason", Message: "an override finalize requires a reason"}
	}

	var out *LeaveRequest
	err := w.Store.WithTx(ctx, func(s Store) error {
		req, err := s.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if expectedVersion != 0 && req.Version != expectedVersion {
			return &ConflictError{Kind: "stale_version", Message: fmt.Sprintf("request %s changed since it was read", id)}
		}
		if err := checkTransition(req, ActionHRFinalize, actor); err != nil {
			return err
		}
		observed := req.Version

		if in.Decision == DecisionReject {
			req.RejectReason = in.Reason
			w.stamp(req, StatusHRRejected, actor.ID, in.Reason)
			if err := s.UpdateRequest(ctx, *req, observed); err != nil {
				return err
			}
			req.Version = observed + 1
			out = req
			return nil
		}

		lt, err := s.GetLeaveType(ctx, req.LeaveTypeID)
		if err != nil {
			return err
		}
		if lt.Deductible {
			key := EntitlementKey{EmployeeID: req.EmployeeID, LeaveTypeID: req.LeaveTypeID, Year: req.From.Year()}
			reason := in.Reason
			if reason == "" {
				reason = fmt.Sprintf("leave %s to %s", req.From.Format("2006-01-02"), req.To.Format("2006-01-02"))
			}
			ledger := NewEntitlementLedger(s).WithClock(w.Clock)
			allowNegative := in.AllowNegative || in.IsOverride
			if _, err := ledger.Debit(ctx, key, req.DurationDays, reason, actor.ID, string(req.ID), allowNegative); err != nil {
				return err // aborts the transition; request stays MANAGER_APPROVED
			}
		}

		note := in.Reason
		if in.IsOverride {
			note = "override: " + in.Reason
		}
		w.stamp(req, StatusHRApproved, actor.ID, note)
		if err := s.UpdateRequest(ctx, *req, observed); err != nil {
			return err
		}
		req.Version = observed + 1
		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.notifyEmployee(ctx, out.EmployeeID, "leave_request_finalized",
		fmt.Sprintf("your leave request %s was %s", out.ID, out.Status))
	return out, nil
}

// =============================================================================
// CANCEL
// =============================================================================

// Cancel terminates a request. From any non-terminal state it simply
// moves to CANCELLED; from HR_APPROVED (already-consumed leave) it also
// credits the debited amount back through a REVERSAL entry, atomically
// with the status change.
func (w *Workflow) Cancel(ctx context.Context, id RequestID, actor Actor, expectedVersion int64) (*LeaveRequest, error) {
	var out *LeaveRequest
	err := w.Store.WithTx(ctx, func(s Store) error {
		req, err := s.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if expectedVersion != 0 && req.Version != expectedVersion {
			return &ConflictError{Kind: "stale_version", Message: fmt.Sprintf("request %s changed since it was read", id)}
		}
		if !roleAllowed(cancelRoles, actor.Role) {
			return &StateTransitionError{RequestID: id, Status: req.Status, Action: string(ActionCancel), Role: actor.Role}
		}
		if actor.Role == RoleEmployee && req.EmployeeID != EmployeeID(actor.ID) {
			return &StateTransitionError{RequestID: id, Status: req.Status, Action: string(ActionCancel), Role: actor.Role}
		}
		if req.Status.Terminal() && req.Status != StatusHRApproved {
			return &ConflictError{Kind: "already_finalized", Message: fmt.Sprintf("request %s is already %s", id, req.Status)}
		}
		observed := req.Version

		if req.Status == StatusHRApproved {
			lt, err := s.GetLeaveType(ctx, req.LeaveTypeID)
			if err != nil {
				return err
			}
			if lt.Deductible {
				key := EntitlementKey{EmployeeID: req.EmployeeID, LeaveTypeID: req.LeaveTypeID, Year: req.From.Year()}
				ledger := NewEntitlementLedger(s).WithClock(w.Clock)
				reason := fmt.Sprintf("cancellation of approved request %s", req.ID)
				if _, err := ledger.CreditReversal(ctx, key, req.DurationDays, reason, actor.ID, string(req.ID)); err != nil {
					return err
				}
			}
		}

		w.stamp(req, StatusCancelled, actor.ID, "")
		if err := s.UpdateRequest(ctx, *req, observed); err != nil {
			return err
		}
		req.Version = observed + 1
		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// SHARED TRANSITION PLUMBING
// =============================================================================

// transition is the common path for table-driven, ledger-free moves. The
// apply callback receives the transactional store view: every read it
// needs must go through that view, both so it sees the snapshot the
// version guard commits against and because the outer store's connection
// is held by the open transaction.
func (w *Workflow) transition(ctx context.Context, id RequestID, action Action, actor Actor, expectedVersion int64, apply func(Store, *LeaveRequest) error) (*LeaveRequest, error) {
	var out *LeaveRequest
	err := w.Store.WithTx(ctx, func(s Store) error {
		req, err := s.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if expectedVersion != 0 && req.Version != expectedVersion {
			return &ConflictError{Kind: "stale_version", Message: fmt.Sprintf("request %s changed since it was read", id)}
		}
		if err := checkTransition(req, action, actor); err != nil {
			return err
		}
		observed := req.Version
		if err := apply(s, req); err != nil {
			return err
		}
		if err := s.UpdateRequest(ctx, *req, observed); err != nil {
			return err
		}
		req.Version = observed + 1
		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// stamp moves the request to a new status and appends to the immutable
// stage history.
func (w *Workflow) stamp(req *LeaveRequest, status RequestStatus, actorID, note string) {
	now := w.now()
	req.Status = status
	req.StageEnteredAt = now
	req.UpdatedAt = now
	req.Stages = append(req.Stages, StageStamp{Status: status, ActorID: actorID, Note: note, At: now})
}

// computeDuration reads calendars through the given store so callers
// already inside a transaction stay on the transaction view.
func (w *Workflow) computeDuration(ctx context.Context, s Store, from, to time.Time, lt *LeaveType, opts DurationOptions) (DurationResult, error) {
	cal, err := w.calendarsFor(ctx, s, from, to)
	if err != nil {
		return DurationResult{}, err
	}
	return ComputeDuration(from, to, cal, lt.Policy, opts)
}

func (w *Workflow) calendarsFor(ctx context.Context, s Store, from, to time.Time) (CalendarView, error) {
	set := &CalendarSet{Years: make(map[int]*Calendar)}
	for year := from.Year(); year <= to.Year() && year <= from.Year()+2; year++ {
		cal, err := s.GetCalendar(ctx, year)
		if err != nil {
			var nf *NotFoundError
			if asNotFound(err, &nf) {
				continue // no calendar registered for that year
			}
			return nil, err
		}
		set.Years[year] = cal
	}
	return set, nil
}

// =============================================================================
// NOTIFICATIONS - best effort, post-commit
// =============================================================================

func (w *Workflow) notifyManager(ctx context.Context, emp *Employee, kind, message string) {
	to := string(emp.ManagerID)
	if to == "" {
		to = "hr"
	}
	w.Notifier.Send(ctx, Notification{To: to, Kind: kind, Message: message})
}

func (w *Workflow) notifyEmployee(ctx context.Context, id EmployeeID, kind, message string) {
	w.Notifier.Send(ctx, Notification{To: string(id), Kind: kind, Message: message})
}
