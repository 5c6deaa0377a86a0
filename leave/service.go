/*
service.go - The exposed operation surface

PURPOSE:
  One facade over the ledger, workflow, and engines. The HTTP layer and
  the scheduler talk only to this type; nothing outside the package
  reaches the engines directly.

SEE ALSO:
  - api/handlers.go: HTTP bindings of these operations
  - api/scheduler.go: Scheduled sweeps
*/
package leave

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Service bundles every exposed operation of the leave engine.
type Service struct {
	Store     Store
	Ledger    *EntitlementLedger
	Workflow  *Workflow
	Accrual   *AccrualEngine
	Carry     *CarryForwardEngine
	Escalate  *EscalationEngine
	Reset     *ResetEngine
	Directory Directory
	Log       *logrus.Logger
	Clock     func() time.Time
}

// NewService wires the engines over one store.
func NewService(store Store, dir Directory, notifier Notifier, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.New()
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	ledger := NewEntitlementLedger(store)
	return &Service{
		Store:     store,
		Ledger:    ledger,
		Workflow:  NewWorkflow(store, ledger, dir, notifier, log),
		Accrual:   NewAccrualEngine(store, ledger, log),
		Carry:     NewCarryForwardEngine(store, ledger, log),
		Escalate:  NewEscalationEngine(store, dir, notifier, log),
		Reset:     NewResetEngine(store, dir, log),
		Directory: dir,
		Log:       log,
		Clock:     time.Now,
	}
}

// WithClock overrides the timestamp source for the service and every
// engine it owns. Test hook.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.Clock = clock
	s.Ledger.WithClock(clock)
	s.Workflow.Clock = clock
	s.Escalate.Clock = clock
	s.Reset.Clock = clock
	return s
}

// =============================================================================
// WORKFLOW
// =============================================================================

func (s *Service) SubmitRequest(ctx context.Context, in SubmitInput, actor Actor) (*LeaveRequest, error) {
	return s.Workflow.Submit(ctx, in, actor)
}

func (s *Service) ManagerApprove(ctx context.Context, id RequestID, actor Actor, expectedVersion int64) (*LeaveRequest, error) {
	return s.Workflow.ManagerApprove(ctx, id, actor, expectedVersion)
}

func (s *Service) ManagerReject(ctx context.Context, id RequestID, actor Actor, reason string, expectedVersion int64) (*LeaveRequest, error) {
	return s.Workflow.ManagerReject(ctx, id, actor, reason, expectedVersion)
}

func (s *Service) ReturnForCorrection(ctx context.Context, id RequestID, actor Actor, reason string, expectedVersion int64) (*LeaveRequest, error) {
	return s.Workflow.ReturnForCorrection(ctx, id, actor, reason, expectedVersion)
}

func (s *Service) ResubmitCorrectedRequest(ctx context.Context, id RequestID, employeeID EmployeeID, corr Corrections, expectedVersion int64) (*LeaveRequest, error) {
	return s.Workflow.Resubmit(ctx, id, employeeID, corr, expectedVersion)
}

func (s *Service) HRFinalize(ctx context.Context, id RequestID, actor Actor, in FinalizeInput, expectedVersion int64) (*LeaveRequest, error) {
	return s.Workflow.HRFinalize(ctx, id, actor, in, expectedVersion)
}

func (s *Service) CancelRequest(ctx context.Context, id RequestID, actor Actor, expectedVersion int64) (*LeaveRequest, error) {
	return s.Workflow.Cancel(ctx, id, actor, expectedVersion)
}

func (s *Service) GetRequest(ctx context.Context, id RequestID) (*LeaveRequest, error) {
	return s.Store.GetRequest(ctx, id)
}

func (s *Service) ListEmployeeRequests(ctx context.Context, employeeID EmployeeID) ([]LeaveRequest, error) {
	return s.Store.ListEmployeeRequests(ctx, employeeID)
}

// =============================================================================
// BALANCES AND ADJUSTMENTS
// =============================================================================

// AssignEntitlement opens an entitlement record with the given yearly
// figure. Fails with a ConflictError if one already exists for the key.
func (s *Service) AssignEntitlement(ctx context.Context, key EntitlementKey, yearly decimal.Decimal) (*Entitlement, error) {
	if yearly.IsNegative() {
		return nil, &ValidationError{Field: "yearlyEntitlement", Message: "yearly entitlement must not be negative"}
	}
	ent := NewEntitlement(key, yearly, s.Clock().UTC())
	if err := s.Store.PutEntitlement(ctx, ent); err != nil {
		return nil, err
	}
	return &ent, nil
}

// CreateAdjustment applies a manual HR correction through the ledger.
func (s *Service) CreateAdjustment(ctx context.Context, key EntitlementKey, amount decimal.Decimal, reason string, actor Actor, allowNegative bool) (*Entitlement, error) {
	if actor.Role != RoleHR {
		return nil, &PolicyViolationError{Rule: "manual_adjustment_role", Message: "manual adjustments require the HR role"}
	}
	return s.Ledger.ManualAdjust(ctx, key, amount, reason, actor.ID, allowNegative)
}

// EmployeeBalance pairs a balance with its audit trail length.
type EmployeeBalance struct {
	Entitlement Entitlement
	Adjustments []Adjustment
}

// GetEmployeeBalances returns an employee's entitlements for a year
// (0 = all years), each with its full adjustment history.
func (s *Service) GetEmployeeBalances(ctx context.Context, employeeID EmployeeID, year int) ([]EmployeeBalance, error) {
	ents, err := s.Store.ListEmployeeEntitlements(ctx, employeeID, year)
	if err != nil {
		return nil, err
	}
	out := make([]EmployeeBalance, 0, len(ents))
	for i := range ents {
		adjs, err := s.Store.Adjustments(ctx, ents[i].Key)
		if err != nil {
			return nil, err
		}
		out = append(out, EmployeeBalance{Entitlement: ents[i], Adjustments: adjs})
	}
	return out, nil
}

func (s *Service) VerifyBalance(ctx context.Context, key EntitlementKey) error {
	return s.Ledger.VerifyAgainstLedger(ctx, key)
}

// =============================================================================
// ENGINES
// =============================================================================

func (s *Service) RunAccrual(ctx context.Context, referenceDate time.Time) (AccrualSummary, error) {
	return s.Accrual.RunAccrual(ctx, referenceDate)
}

func (s *Service) PreviewCarryForward(ctx context.Context, referenceDate time.Time, rules CarryForwardRules) ([]CarryForwardComputation, error) {
	return s.Carry.PreviewCarryForward(ctx, referenceDate, rules)
}

func (s *Service) CarryForward(ctx context.Context, referenceDate time.Time, rules CarryForwardRules, dryRun bool) ([]CarryForwardComputation, error) {
	return s.Carry.CarryForward(ctx, referenceDate, rules, dryRun)
}

func (s *Service) OverrideCarryForward(ctx context.Context, employeeID EmployeeID, leaveTypeID LeaveTypeID, targetYear int, days decimal.Decimal, expiryDate time.Time, reason string, actor Actor) (*CarryForwardRecord, error) {
	if actor.Role != RoleHR {
		return nil, &PolicyViolationError{Rule: "carry_forward_override_role", Message: "carry-forward overrides require the HR role"}
	}
	return s.Carry.OverrideCarryForward(ctx, employeeID, leaveTypeID, targetYear, days, expiryDate, reason, actor)
}

func (s *Service) ExpireCarryForward(ctx context.Context, referenceDate time.Time) (int, error) {
	return s.Carry.ExpireCarryForward(ctx, referenceDate)
}

func (s *Service) GetCarryForwardReport(ctx context.Context, targetYear int) ([]CarryForwardRecord, error) {
	return s.Carry.CarryForwardReport(ctx, targetYear)
}

func (s *Service) CheckAndEscalateOverdue(ctx context.Context, cfg EscalationConfig) (EscalationSummary, error) {
	return s.Escalate.CheckAndEscalateOverdue(ctx, cfg)
}

func (s *Service) ResetLeaveYear(ctx context.Context, cfg ResetConfig) (ResetSummary, error) {
	return s.Reset.ResetLeaveYear(ctx, cfg)
}

// =============================================================================
// CALENDAR AND TYPES ADMINISTRATION
// =============================================================================

func (s *Service) SaveCalendar(ctx context.Context, cal Calendar) error {
	if cal.Year < 2000 || cal.Year > 2200 {
		return &ValidationError{Field: "year", Message: "calendar year out of range"}
	}
	return s.Store.SaveCalendar(ctx, cal)
}

func (s *Service) GetCalendar(ctx context.Context, year int) (*Calendar, error) {
	return s.Store.GetCalendar(ctx, year)
}

func (s *Service) SaveLeaveType(ctx context.Context, lt LeaveType) error {
	if lt.ID == "" || lt.Code == "" {
		return &ValidationError{Field: "leaveType", Message: "leave type requires id and code"}
	}
	return s.Store.SaveLeaveType(ctx, lt)
}

func (s *Service) ListLeaveTypes(ctx context.Context, activeOnly bool) ([]LeaveType, error) {
	return s.Store.ListLeaveTypes(ctx, activeOnly)
}
