/*
store.go - Persistence and collaborator interfaces

PURPOSE:
  Defines the contract between the leave core and its surroundings: the
  storage adapter (atomic conditional writes for the entitlement
  invariant), the employee directory, and the notification dispatcher.

APPEND-ONLY CONTRACT:
  The adjustment ledger has AppendAdjustment and read methods only.
  No update, no delete. Corrections are REVERSAL entries.

OPTIMISTIC CONCURRENCY:
  UpdateEntitlement and UpdateRequest are conditional on the version the
  caller observed. A mismatch returns a ConflictError, never a silent
  overwrite. This is the single mechanism that prevents two concurrent
  "sufficient balance" checks from both committing.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite store with WAL mode

SEE ALSO:
  - ledger.go: Uses WithTx to keep entry append + balance update atomic
*/
package leave

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// =============================================================================
// STORE - Persistence adapter
// =============================================================================

// EntitlementStore persists balance records with conditional updates.
type EntitlementStore interface {
	GetEntitlement(ctx context.Context, key EntitlementKey) (*Entitlement, error)
	PutEntitlement(ctx context.Context, e Entitlement) error

	// UpdateEntitlement commits e only if the stored version equals
	// expectedVersion, incrementing the version. Returns ConflictError
	// (stale_version) otherwise.
	UpdateEntitlement(ctx context.Context, e Entitlement, expectedVersion int64) error

	// ListEntitlements returns all entitlements for a leave year.
	ListEntitlements(ctx context.Context, year int) ([]Entitlement, error)

	// ListEmployeeEntitlements returns all of one employee's entitlements,
	// optionally restricted to a year (0 = all years).
	ListEmployeeEntitlements(ctx context.Context, employeeID EmployeeID, year int) ([]Entitlement, error)
}

// AdjustmentStore is the append-only audit ledger.
type AdjustmentStore interface {
	AppendAdjustment(ctx context.Context, a Adjustment) error
	Adjustments(ctx context.Context, key EntitlementKey) ([]Adjustment, error)
}

// RequestStore persists workflow entities with version-guarded updates.
type RequestStore interface {
	PutRequest(ctx context.Context, r LeaveRequest) error
	GetRequest(ctx context.Context, id RequestID) (*LeaveRequest, error)
	UpdateRequest(ctx context.Context, r LeaveRequest, expectedVersion int64) error
	ListRequestsByStatus(ctx context.Context, statuses ...RequestStatus) ([]LeaveRequest, error)
	ListEmployeeRequests(ctx context.Context, employeeID EmployeeID) ([]LeaveRequest, error)

	// FindOverlapping returns in-flight or approved requests for the same
	// employee and leave type whose date range intersects [from, to],
	// excluding the given request id.
	FindOverlapping(ctx context.Context, employeeID EmployeeID, leaveTypeID LeaveTypeID, from, to time.Time, exclude RequestID) ([]LeaveRequest, error)
}

// CarryForwardStore persists rollover audit records.
type CarryForwardStore interface {
	PutCarryForwardRecord(ctx context.Context, rec CarryForwardRecord) error
	GetCarryForwardRecord(ctx context.Context, employeeID EmployeeID, leaveTypeID LeaveTypeID, targetYear int) (*CarryForwardRecord, error)
	ListCarryForwardRecords(ctx context.Context, targetYear int) ([]CarryForwardRecord, error)
	MarkCarryForwardExpired(ctx context.Context, employeeID EmployeeID, leaveTypeID LeaveTypeID, targetYear int) error
}

// CalendarStore persists the organizational calendar.
type CalendarStore interface {
	SaveCalendar(ctx context.Context, cal Calendar) error
	GetCalendar(ctx context.Context, year int) (*Calendar, error)
}

// LeaveTypeStore persists leave types and their policies.
type LeaveTypeStore interface {
	SaveLeaveType(ctx context.Context, lt LeaveType) error
	GetLeaveType(ctx context.Context, id LeaveTypeID) (*LeaveType, error)
	ListLeaveTypes(ctx context.Context, activeOnly bool) ([]LeaveType, error)
}

// EscalationStore records which (request, stage entry) pairs were already
// escalated so repeated sweeps do not re-notify.
type EscalationStore interface {
	// MarkEscalated records the dedup key. Returns false if it was
	// already recorded (a concurrent or earlier sweep won).
	MarkEscalated(ctx context.Context, requestID RequestID, status RequestStatus, dedupKey string) (bool, error)
}

// Store is the full persistence surface. WithTx runs fn against a store
// view whose writes commit or roll back together; the ledger relies on
// it so an adjustment entry and its balance update are never split.
type Store interface {
	EntitlementStore
	AdjustmentStore
	RequestStore
	CarryForwardStore
	CalendarStore
	LeaveTypeStore
	EscalationStore

	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// Directory is the employee directory this module consumes. It is
// maintained elsewhere; only reads happen here.
type Directory interface {
	Employee(ctx context.Context, id EmployeeID) (*Employee, error)
	ListActiveEmployees(ctx context.Context) ([]Employee, error)
}

// Notification is a fire-and-forget message to a reviewer or employee.
type Notification struct {
	To      string
	Kind    string
	Message string
}

// Notifier dispatches notifications. Calls happen AFTER the ledger
// transaction commits, are best-effort, and must never affect an
// already-committed balance change.
type Notifier interface {
	Send(ctx context.Context, n Notification)
}

// NopNotifier discards notifications. Useful in tests.
type NopNotifier struct{}

func (NopNotifier) Send(context.Context, Notification) {}

// LogNotifier writes notifications to the structured log. Stands in for
// the platform's messaging integration in single-service deployments.
type LogNotifier struct {
	log *logrus.Logger
}

func NewLogNotifier(log *logrus.Logger) *LogNotifier {
	if log == nil {
		log = logrus.New()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(_ context.Context, msg Notification) {
	n.log.WithFields(logrus.Fields{
		"to":   msg.To,
		"kind": msg.Kind,
	}).Info(msg.Message)
}
