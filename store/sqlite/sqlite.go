/*
Package sqlite provides the SQLite-backed implementation of leave.Store.

PURPOSE:
  Implements the full persistence surface the leave core requires. The
  same patterns apply to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE statements exist for the adjustments table.
  Corrections happen through reversal entries.

OPTIMISTIC CONCURRENCY:
  entitlements and leave_requests carry a version column. Conditional
  updates include "AND version = ?" and report a stale-version conflict
  when no row matched, which is how two concurrent balance checks are
  prevented from both committing.

KEY TABLES:
  entitlements:          One balance row per (employee, leave type, year)
  adjustments:           Immutable audit ledger of every balance change
  leave_requests:        Workflow entities with stage history JSON
  carry_forward_records: One rollover audit row per target year
  calendars:             One presence row per registered calendar year
  holidays / blocked_periods: The per-year organizational calendar
  leave_types:           Type identity plus policy JSON
  employees:             Directory view (hire date, manager, status)
  escalations:           Dedup marks for the overdue sweep

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) so readers do not
  block the single writer and crash recovery is clean.

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := leave.NewService(store, store, notifier, log)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - leave/store.go: Interface contracts this package fulfils
  - leave/ledger.go: The WithTx caller that relies on atomicity
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/leave-engine/leave"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so every query helper
// works inside and outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements leave.Store and leave.Directory using SQLite.
type Store struct {
	db   *sql.DB
	q    dbtx
	mu   *sync.Mutex
	inTx bool
}

var _ leave.Store = (*Store)(nil)
var _ leave.Directory = (*Store)(nil)

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database in tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// The in-memory database lives per connection.
	if strings.Contains(dbPath, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, q: db, mu: &sync.Mutex{}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Balance records, one per (employee, leave type, leave year)
	CREATE TABLE IF NOT EXISTS entitlements (
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		yearly_entitlement TEXT NOT NULL,
		accrued_actual TEXT NOT NULL,
		accrued_rounded TEXT NOT NULL,
		carry_forward TEXT NOT NULL,
		manual_adjust TEXT NOT NULL,
		taken TEXT NOT NULL,
		remaining TEXT NOT NULL,
		accrued_through TEXT NOT NULL,
		version INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, leave_type_id, year)
	);

	CREATE INDEX IF NOT EXISTS idx_entitlements_year
		ON entitlements(year);

	-- Adjustments (append-only audit ledger)
	CREATE TABLE IF NOT EXISTS adjustments (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		adj_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		actual_amount TEXT NOT NULL,
		reason TEXT,
		actor_id TEXT NOT NULL,
		override INTEGER NOT NULL DEFAULT 0,
		reference_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_adjustments_key
		ON adjustments(employee_id, leave_type_id, year);
	CREATE INDEX IF NOT EXISTS idx_adjustments_reference
		ON adjustments(reference_id) WHERE reference_id IS NOT NULL AND reference_id != '';

	-- Workflow entities
	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		from_date TEXT NOT NULL,
		to_date TEXT NOT NULL,
		duration_days TEXT NOT NULL,
		justification TEXT,
		attachment_id TEXT,
		post_leave INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		stages_json TEXT NOT NULL,
		return_reason TEXT,
		reject_reason TEXT,
		irregular INTEGER NOT NULL DEFAULT 0,
		stage_entered_at TEXT NOT NULL,
		version INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_employee
		ON leave_requests(employee_id);
	CREATE INDEX IF NOT EXISTS idx_requests_status
		ON leave_requests(status);
	CREATE INDEX IF NOT EXISTS idx_requests_overlap
		ON leave_requests(employee_id, leave_type_id, from_date, to_date);

	-- Carry-forward audit records
	CREATE TABLE IF NOT EXISTS carry_forward_records (
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		target_year INTEGER NOT NULL,
		days TEXT NOT NULL,
		expiry_date TEXT NOT NULL,
		reason TEXT,
		overridden INTEGER NOT NULL DEFAULT 0,
		expired INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, leave_type_id, target_year)
	);

	-- Organizational calendar. The presence row distinguishes a year that
	-- was explicitly saved empty from one never registered at all.
	CREATE TABLE IF NOT EXISTS calendars (
		year INTEGER PRIMARY KEY,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS holidays (
		year INTEGER NOT NULL,
		date TEXT NOT NULL,
		reason TEXT,
		PRIMARY KEY (year, date)
	);

	CREATE TABLE IF NOT EXISTS blocked_periods (
		year INTEGER NOT NULL,
		from_date TEXT NOT NULL,
		to_date TEXT NOT NULL,
		reason TEXT,
		PRIMARY KEY (year, from_date, to_date)
	);

	-- Leave types: identity columns plus policy JSON
	CREATE TABLE IF NOT EXISTS leave_types (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		category_id TEXT,
		paid INTEGER NOT NULL DEFAULT 0,
		deductible INTEGER NOT NULL DEFAULT 0,
		requires_attachment INTEGER NOT NULL DEFAULT 0,
		attachment_kind TEXT,
		min_tenure_months INTEGER NOT NULL DEFAULT 0,
		max_duration_days INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		policy_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_leave_types_code
		ON leave_types(code);

	-- Employee directory view
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		hire_date TEXT NOT NULL,
		manager_id TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	-- Escalation dedup marks
	CREATE TABLE IF NOT EXISTS escalations (
		dedup_key TEXT PRIMARY KEY,
		request_id TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// lock serializes top-level writes. Inside WithTx the transaction itself
// holds the lock, so nested calls are no-ops.
func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn against a store view whose writes commit or roll back
// together. Nested calls join the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(leave.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	txView := &Store{db: s.db, q: sqlTx, mu: s.mu, inTx: true}
	if err := fn(txView); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// ENTITLEMENTS
// =============================================================================

const entitlementColumns = `employee_id, leave_type_id, year, yearly_entitlement,
	accrued_actual, accrued_rounded, carry_forward, manual_adjust, taken,
	remaining, accrued_through, version, created_at, updated_at`

func (s *Store) GetEntitlement(ctx context.Context, key leave.EntitlementKey) (*leave.Entitlement, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+entitlementColumns+` FROM entitlements
		 WHERE employee_id = ? AND leave_type_id = ? AND year = ?`,
		string(key.EmployeeID), string(key.LeaveTypeID), key.Year,
	)
	ent, err := scanEntitlement(row)
	if err == sql.ErrNoRows {
		return nil, &leave.NotFoundError{Kind: "entitlement", ID: entitlementID(key)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load entitlement: %w", err)
	}
	return ent, nil
}

func (s *Store) PutEntitlement(ctx context.Context, e leave.Entitlement) error {
	defer s.lock()()

	_, err := s.q.ExecContext(ctx,
		`INSERT INTO entitlements (`+entitlementColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entitlementArgs(e)...,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &leave.ConflictError{Kind: "duplicate", Message: "entitlement already exists for " + entitlementID(e.Key)}
		}
		return fmt.Errorf("failed to insert entitlement: %w", err)
	}
	return nil
}

// UpdateEntitlement commits e only when the stored version matches what
// the caller observed, bumping the version in the same statement.
func (s *Store) UpdateEntitlement(ctx context.Context, e leave.Entitlement, expectedVersion int64) error {
	defer s.lock()()

	res, err := s.q.ExecContext(ctx,
		`UPDATE entitlements SET
			yearly_entitlement = ?, accrued_actual = ?, accrued_rounded = ?,
			carry_forward = ?, manual_adjust = ?, taken = ?, remaining = ?,
			accrued_through = ?, version = version + 1, updated_at = ?
		 WHERE employee_id = ? AND leave_type_id = ? AND year = ? AND version = ?`,
		e.YearlyEntitlement.String(), e.AccruedActual.String(), e.AccruedRounded.String(),
		e.CarryForward.String(), e.ManualAdjust.String(), e.Taken.String(), e.Remaining.String(),
		e.AccruedThrough.UTC().Format(time.RFC3339), e.UpdatedAt.UTC().Format(time.RFC3339),
		string(e.Key.EmployeeID), string(e.Key.LeaveTypeID), e.Key.Year, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update entitlement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetEntitlement(ctx, e.Key); err != nil {
			return err
		}
		return &leave.ConflictError{Kind: "stale_version", Message: "entitlement " + entitlementID(e.Key) + " changed since it was read"}
	}
	return nil
}

func (s *Store) ListEntitlements(ctx context.Context, year int) ([]leave.Entitlement, error) {
	return s.queryEntitlements(ctx,
		`SELECT `+entitlementColumns+` FROM entitlements
		 WHERE year = ? ORDER BY employee_id, leave_type_id`, year)
}

func (s *Store) ListEmployeeEntitlements(ctx context.Context, employeeID leave.EmployeeID, year int) ([]leave.Entitlement, error) {
	if year != 0 {
		return s.queryEntitlements(ctx,
			`SELECT `+entitlementColumns+` FROM entitlements
			 WHERE employee_id = ? AND year = ? ORDER BY leave_type_id`,
			string(employeeID), year)
	}
	return s.queryEntitlements(ctx,
		`SELECT `+entitlementColumns+` FROM entitlements
		 WHERE employee_id = ? ORDER BY year, leave_type_id`, string(employeeID))
}

func (s *Store) queryEntitlements(ctx context.Context, query string, args ...any) ([]leave.Entitlement, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entitlements: %w", err)
	}
	defer rows.Close()

	var out []leave.Entitlement
	for rows.Next() {
		ent, err := scanEntitlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ent)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanEntitlement(row scannable) (*leave.Entitlement, error) {
	var (
		e                                  leave.Entitlement
		empID, typeID                      string
		yearly, actual, rounded            string
		carry, manual, taken, remaining    string
		accruedThrough, createdAt, updated string
	)
	err := row.Scan(
		&empID, &typeID, &e.Key.Year, &yearly,
		&actual, &rounded, &carry, &manual, &taken,
		&remaining, &accruedThrough, &e.Version, &createdAt, &updated,
	)
	if err != nil {
		return nil, err
	}
	e.Key.EmployeeID = leave.EmployeeID(empID)
	e.Key.LeaveTypeID = leave.LeaveTypeID(typeID)
	e.YearlyEntitlement = leave.MustParseDecimal(yearly)
	e.AccruedActual = leave.MustParseDecimal(actual)
	e.AccruedRounded = leave.MustParseDecimal(rounded)
	e.CarryForward = leave.MustParseDecimal(carry)
	e.ManualAdjust = leave.MustParseDecimal(manual)
	e.Taken = leave.MustParseDecimal(taken)
	e.Remaining = leave.MustParseDecimal(remaining)
	e.AccruedThrough, _ = time.Parse(time.RFC3339, accruedThrough)
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &e, nil
}

func entitlementArgs(e leave.Entitlement) []any {
	return []any{
		string(e.Key.EmployeeID), string(e.Key.LeaveTypeID), e.Key.Year,
		e.YearlyEntitlement.String(), e.AccruedActual.String(), e.AccruedRounded.String(),
		e.CarryForward.String(), e.ManualAdjust.String(), e.Taken.String(), e.Remaining.String(),
		e.AccruedThrough.UTC().Format(time.RFC3339), e.Version,
		e.CreatedAt.UTC().Format(time.RFC3339), e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func entitlementID(key leave.EntitlementKey) string {
	return fmt.Sprintf("%s/%s/%d", key.EmployeeID, key.LeaveTypeID, key.Year)
}

// =============================================================================
// ADJUSTMENTS (append-only)
// =============================================================================

func (s *Store) AppendAdjustment(ctx context.Context, a leave.Adjustment) error {
	defer s.lock()()

	_, err := s.q.ExecContext(ctx,
		`INSERT INTO adjustments
		 (id, employee_id, leave_type_id, year, adj_type, amount, actual_amount,
		  reason, actor_id, override, reference_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Key.EmployeeID), string(a.Key.LeaveTypeID), a.Key.Year,
		string(a.Type), a.Amount.String(), a.ActualAmount.String(),
		a.Reason, a.ActorID, boolToInt(a.Override), a.ReferenceID,
		a.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &leave.ConflictError{Kind: "duplicate", Message: "adjustment " + a.ID + " already recorded"}
		}
		return fmt.Errorf("failed to append adjustment: %w", err)
	}
	return nil
}

func (s *Store) Adjustments(ctx context.Context, key leave.EntitlementKey) ([]leave.Adjustment, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, employee_id, leave_type_id, year, adj_type, amount, actual_amount,
		        reason, actor_id, override, reference_id, created_at
		 FROM adjustments
		 WHERE employee_id = ? AND leave_type_id = ? AND year = ?
		 ORDER BY created_at ASC, id ASC`,
		string(key.EmployeeID), string(key.LeaveTypeID), key.Year,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query adjustments: %w", err)
	}
	defer rows.Close()

	var out []leave.Adjustment
	for rows.Next() {
		var (
			a                      leave.Adjustment
			empID, typeID          string
			adjType, amount        string
			actualAmount           string
			reason, refID          sql.NullString
			override               int
			createdAt              string
		)
		err := rows.Scan(&a.ID, &empID, &typeID, &a.Key.Year, &adjType, &amount,
			&actualAmount, &reason, &a.ActorID, &override, &refID, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan adjustment: %w", err)
		}
		a.Key.EmployeeID = leave.EmployeeID(empID)
		a.Key.LeaveTypeID = leave.LeaveTypeID(typeID)
		a.Type = leave.AdjustmentType(adjType)
		a.Amount = leave.MustParseDecimal(amount)
		a.ActualAmount = leave.MustParseDecimal(actualAmount)
		a.Reason = reason.String
		a.Override = override != 0
		a.ReferenceID = refID.String
		a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

const requestColumns = `id, employee_id, leave_type_id, from_date, to_date,
	duration_days, justification, attachment_id, post_leave, status,
	stages_json, return_reason, reject_reason, irregular, stage_entered_at,
	version, created_at, updated_at`

func (s *Store) PutRequest(ctx context.Context, r leave.LeaveRequest) error {
	defer s.lock()()

	stagesJSON, err := json.Marshal(r.Stages)
	if err != nil {
		return fmt.Errorf("failed to encode stage history: %w", err)
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO leave_requests (`+requestColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(r.ID), string(r.EmployeeID), string(r.LeaveTypeID),
		r.From.UTC().Format(time.RFC3339), r.To.UTC().Format(time.RFC3339),
		r.DurationDays.String(), r.Justification, r.AttachmentID, boolToInt(r.PostLeave),
		string(r.Status), string(stagesJSON), r.ReturnReason, r.RejectReason,
		boolToInt(r.Irregular), r.StageEnteredAt.UTC().Format(time.RFC3339),
		r.Version, r.CreatedAt.UTC().Format(time.RFC3339), r.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &leave.ConflictError{Kind: "duplicate", Message: "request " + string(r.ID) + " already exists"}
		}
		return fmt.Errorf("failed to insert request: %w", err)
	}
	return nil
}

func (s *Store) GetRequest(ctx context.Context, id leave.RequestID) (*leave.LeaveRequest, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM leave_requests WHERE id = ?`, string(id))
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, &leave.NotFoundError{Kind: "request", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load request: %w", err)
	}
	return r, nil
}

func (s *Store) UpdateRequest(ctx context.Context, r leave.LeaveRequest, expectedVersion int64) error {
	defer s.lock()()

	stagesJSON, err := json.Marshal(r.Stages)
	if err != nil {
		return fmt.Errorf("failed to encode stage history: %w", err)
	}
	res, err := s.q.ExecContext(ctx,
		`UPDATE leave_requests SET
			from_date = ?, to_date = ?, duration_days = ?, justification = ?,
			attachment_id = ?, status = ?, stages_json = ?, return_reason = ?,
			reject_reason = ?, irregular = ?, stage_entered_at = ?,
			version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		r.From.UTC().Format(time.RFC3339), r.To.UTC().Format(time.RFC3339),
		r.DurationDays.String(), r.Justification, r.AttachmentID,
		string(r.Status), string(stagesJSON), r.ReturnReason, r.RejectReason,
		boolToInt(r.Irregular), r.StageEnteredAt.UTC().Format(time.RFC3339),
		r.UpdatedAt.UTC().Format(time.RFC3339),
		string(r.ID), expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetRequest(ctx, r.ID); err != nil {
			return err
		}
		return &leave.ConflictError{Kind: "stale_version", Message: "request " + string(r.ID) + " changed since it was read"}
	}
	return nil
}

func (s *Store) ListRequestsByStatus(ctx context.Context, statuses ...leave.RequestStatus) ([]leave.LeaveRequest, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	return s.queryRequests(ctx,
		`SELECT `+requestColumns+` FROM leave_requests
		 WHERE status IN (`+placeholders+`) ORDER BY stage_entered_at ASC`, args...)
}

func (s *Store) ListEmployeeRequests(ctx context.Context, employeeID leave.EmployeeID) ([]leave.LeaveRequest, error) {
	return s.queryRequests(ctx,
		`SELECT `+requestColumns+` FROM leave_requests
		 WHERE employee_id = ? ORDER BY created_at DESC`, string(employeeID))
}

// FindOverlapping returns non-finalized or approved requests of the same
// employee and type intersecting [from, to]. Rejected, returned, and
// cancelled requests do not block a new submission.
func (s *Store) FindOverlapping(ctx context.Context, employeeID leave.EmployeeID, leaveTypeID leave.LeaveTypeID, from, to time.Time, exclude leave.RequestID) ([]leave.LeaveRequest, error) {
	return s.queryRequests(ctx,
		`SELECT `+requestColumns+` FROM leave_requests
		 WHERE employee_id = ? AND leave_type_id = ?
		   AND status IN (?, ?, ?)
		   AND id != ?
		   AND from_date <= ? AND to_date >= ?
		 ORDER BY from_date ASC`,
		string(employeeID), string(leaveTypeID),
		string(leave.StatusSubmitted), string(leave.StatusManagerApproved), string(leave.StatusHRApproved),
		string(exclude),
		to.UTC().Format(time.RFC3339), from.UTC().Format(time.RFC3339),
	)
}

func (s *Store) queryRequests(ctx context.Context, query string, args ...any) ([]leave.LeaveRequest, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var out []leave.LeaveRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanRequest(row scannable) (*leave.LeaveRequest, error) {
	var (
		r                               leave.LeaveRequest
		id, empID, typeID               string
		fromDate, toDate, duration      string
		justification, attachment       sql.NullString
		postLeave, irregular            int
		status, stagesJSON              string
		returnReason, rejectReason      sql.NullString
		stageEnteredAt                  string
		createdAt, updatedAt            string
	)
	err := row.Scan(&id, &empID, &typeID, &fromDate, &toDate, &duration,
		&justification, &attachment, &postLeave, &status, &stagesJSON,
		&returnReason, &rejectReason, &irregular, &stageEnteredAt,
		&r.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	r.ID = leave.RequestID(id)
	r.EmployeeID = leave.EmployeeID(empID)
	r.LeaveTypeID = leave.LeaveTypeID(typeID)
	r.From, _ = time.Parse(time.RFC3339, fromDate)
	r.To, _ = time.Parse(time.RFC3339, toDate)
	r.DurationDays = leave.MustParseDecimal(duration)
	r.Justification = justification.String
	r.AttachmentID = attachment.String
	r.PostLeave = postLeave != 0
	r.Status = leave.RequestStatus(status)
	r.ReturnReason = returnReason.String
	r.RejectReason = rejectReason.String
	r.Irregular = irregular != 0
	r.StageEnteredAt, _ = time.Parse(time.RFC3339, stageEnteredAt)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if stagesJSON != "" {
		if err := json.Unmarshal([]byte(stagesJSON), &r.Stages); err != nil {
			return nil, fmt.Errorf("failed to decode stage history: %w", err)
		}
	}
	return &r, nil
}

// =============================================================================
// CARRY-FORWARD RECORDS
// =============================================================================

func (s *Store) PutCarryForwardRecord(ctx context.Context, rec leave.CarryForwardRecord) error {
	defer s.lock()()

	_, err := s.q.ExecContext(ctx,
		`INSERT INTO carry_forward_records
		 (employee_id, leave_type_id, target_year, days, expiry_date, reason, overridden, expired, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(employee_id, leave_type_id, target_year) DO UPDATE SET
			days = excluded.days,
			expiry_date = excluded.expiry_date,
			reason = excluded.reason,
			overridden = excluded.overridden,
			expired = excluded.expired`,
		string(rec.EmployeeID), string(rec.LeaveTypeID), rec.TargetYear,
		rec.Days.String(), rec.ExpiryDate.UTC().Format(time.RFC3339), rec.Reason,
		boolToInt(rec.Overridden), boolToInt(rec.Expired),
		rec.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save carry-forward record: %w", err)
	}
	return nil
}

func (s *Store) GetCarryForwardRecord(ctx context.Context, employeeID leave.EmployeeID, leaveTypeID leave.LeaveTypeID, targetYear int) (*leave.CarryForwardRecord, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT employee_id, leave_type_id, target_year, days, expiry_date, reason, overridden, expired, created_at
		 FROM carry_forward_records
		 WHERE employee_id = ? AND leave_type_id = ? AND target_year = ?`,
		string(employeeID), string(leaveTypeID), targetYear)
	rec, err := scanCarryForward(row)
	if err == sql.ErrNoRows {
		return nil, &leave.NotFoundError{Kind: "carry_forward_record",
			ID: fmt.Sprintf("%s/%s/%d", employeeID, leaveTypeID, targetYear)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load carry-forward record: %w", err)
	}
	return rec, nil
}

func (s *Store) ListCarryForwardRecords(ctx context.Context, targetYear int) ([]leave.CarryForwardRecord, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT employee_id, leave_type_id, target_year, days, expiry_date, reason, overridden, expired, created_at
		 FROM carry_forward_records WHERE target_year = ?
		 ORDER BY employee_id, leave_type_id`, targetYear)
	if err != nil {
		return nil, fmt.Errorf("failed to query carry-forward records: %w", err)
	}
	defer rows.Close()

	var out []leave.CarryForwardRecord
	for rows.Next() {
		rec, err := scanCarryForward(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *Store) MarkCarryForwardExpired(ctx context.Context, employeeID leave.EmployeeID, leaveTypeID leave.LeaveTypeID, targetYear int) error {
	defer s.lock()()

	res, err := s.q.ExecContext(ctx,
		`UPDATE carry_forward_records SET expired = 1
		 WHERE employee_id = ? AND leave_type_id = ? AND target_year = ?`,
		string(employeeID), string(leaveTypeID), targetYear)
	if err != nil {
		return fmt.Errorf("failed to mark carry-forward expired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &leave.NotFoundError{Kind: "carry_forward_record",
			ID: fmt.Sprintf("%s/%s/%d", employeeID, leaveTypeID, targetYear)}
	}
	return nil
}

func scanCarryForward(row scannable) (*leave.CarryForwardRecord, error) {
	var (
		rec                   leave.CarryForwardRecord
		empID, typeID         string
		days, expiry          string
		reason                sql.NullString
		overridden, expired   int
		createdAt             string
	)
	err := row.Scan(&empID, &typeID, &rec.TargetYear, &days, &expiry,
		&reason, &overridden, &expired, &createdAt)
	if err != nil {
		return nil, err
	}
	rec.EmployeeID = leave.EmployeeID(empID)
	rec.LeaveTypeID = leave.LeaveTypeID(typeID)
	rec.Days = leave.MustParseDecimal(days)
	rec.ExpiryDate, _ = time.Parse(time.RFC3339, expiry)
	rec.Reason = reason.String
	rec.Overridden = overridden != 0
	rec.Expired = expired != 0
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &rec, nil
}

// =============================================================================
// CALENDAR
// =============================================================================

// SaveCalendar replaces the year's holidays and blocked periods wholesale.
// HR edits the calendar as one document, not row by row.
func (s *Store) SaveCalendar(ctx context.Context, cal leave.Calendar) error {
	return s.WithTx(ctx, func(txs leave.Store) error {
		tx := txs.(*Store)
		if _, err := tx.q.ExecContext(ctx,
			`INSERT INTO calendars (year, updated_at) VALUES (?, ?)
			 ON CONFLICT(year) DO UPDATE SET updated_at = excluded.updated_at`,
			cal.Year, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("failed to register calendar year: %w", err)
		}
		if _, err := tx.q.ExecContext(ctx, `DELETE FROM holidays WHERE year = ?`, cal.Year); err != nil {
			return fmt.Errorf("failed to clear holidays: %w", err)
		}
		if _, err := tx.q.ExecContext(ctx, `DELETE FROM blocked_periods WHERE year = ?`, cal.Year); err != nil {
			return fmt.Errorf("failed to clear blocked periods: %w", err)
		}
		for _, h := range cal.Holidays {
			_, err := tx.q.ExecContext(ctx,
				`INSERT INTO holidays (year, date, reason) VALUES (?, ?, ?)`,
				cal.Year, leave.DateOnly(h.Date).Format(time.RFC3339), h.Reason)
			if err != nil {
				return fmt.Errorf("failed to insert holiday: %w", err)
			}
		}
		for _, b := range cal.Blocked {
			_, err := tx.q.ExecContext(ctx,
				`INSERT INTO blocked_periods (year, from_date, to_date, reason) VALUES (?, ?, ?, ?)`,
				cal.Year, leave.DateOnly(b.From).Format(time.RFC3339),
				leave.DateOnly(b.To).Format(time.RFC3339), b.Reason)
			if err != nil {
				return fmt.Errorf("failed to insert blocked period: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) GetCalendar(ctx context.Context, year int) (*leave.Calendar, error) {
	cal := leave.Calendar{Year: year}

	var registered int
	err := s.q.QueryRowContext(ctx, `SELECT 1 FROM calendars WHERE year = ?`, year).Scan(&registered)
	if err == sql.ErrNoRows {
		return nil, &leave.NotFoundError{Kind: "calendar", ID: fmt.Sprintf("%d", year)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar: %w", err)
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT date, reason FROM holidays WHERE year = ? ORDER BY date`, year)
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var date string
		var reason sql.NullString
		if err := rows.Scan(&date, &reason); err != nil {
			return nil, err
		}
		d, _ := time.Parse(time.RFC3339, date)
		cal.Holidays = append(cal.Holidays, leave.Holiday{Date: d, Reason: reason.String})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	brows, err := s.q.QueryContext(ctx,
		`SELECT from_date, to_date, reason FROM blocked_periods WHERE year = ? ORDER BY from_date`, year)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocked periods: %w", err)
	}
	defer brows.Close()
	for brows.Next() {
		var from, to string
		var reason sql.NullString
		if err := brows.Scan(&from, &to, &reason); err != nil {
			return nil, err
		}
		f, _ := time.Parse(time.RFC3339, from)
		t, _ := time.Parse(time.RFC3339, to)
		cal.Blocked = append(cal.Blocked, leave.BlockedPeriod{From: f, To: t, Reason: reason.String})
	}
	if err := brows.Err(); err != nil {
		return nil, err
	}
	return &cal, nil
}

// =============================================================================
// LEAVE TYPES
// =============================================================================

func (s *Store) SaveLeaveType(ctx context.Context, lt leave.LeaveType) error {
	defer s.lock()()

	policyJSON, err := json.Marshal(lt.Policy)
	if err != nil {
		return fmt.Errorf("failed to encode policy: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO leave_types
		 (id, code, name, category_id, paid, deductible, requires_attachment,
		  attachment_kind, min_tenure_months, max_duration_days, active,
		  policy_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name,
			category_id = excluded.category_id,
			paid = excluded.paid,
			deductible = excluded.deductible,
			requires_attachment = excluded.requires_attachment,
			attachment_kind = excluded.attachment_kind,
			min_tenure_months = excluded.min_tenure_months,
			max_duration_days = excluded.max_duration_days,
			active = excluded.active,
			policy_json = excluded.policy_json,
			updated_at = excluded.updated_at`,
		string(lt.ID), lt.Code, lt.Name, lt.CategoryID,
		boolToInt(lt.Paid), boolToInt(lt.Deductible), boolToInt(lt.RequiresAttachment),
		lt.AttachmentKind, lt.MinTenureMonths, lt.MaxDurationDays, boolToInt(lt.Active),
		string(policyJSON), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save leave type: %w", err)
	}
	return nil
}

func (s *Store) GetLeaveType(ctx context.Context, id leave.LeaveTypeID) (*leave.LeaveType, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, code, name, category_id, paid, deductible, requires_attachment,
		        attachment_kind, min_tenure_months, max_duration_days, active, policy_json
		 FROM leave_types WHERE id = ?`, string(id))
	lt, err := scanLeaveType(row)
	if err == sql.ErrNoRows {
		return nil, &leave.NotFoundError{Kind: "leave_type", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load leave type: %w", err)
	}
	return lt, nil
}

func (s *Store) ListLeaveTypes(ctx context.Context, activeOnly bool) ([]leave.LeaveType, error) {
	query := `SELECT id, code, name, category_id, paid, deductible, requires_attachment,
	                 attachment_kind, min_tenure_months, max_duration_days, active, policy_json
	          FROM leave_types`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY code`

	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query leave types: %w", err)
	}
	defer rows.Close()

	var out []leave.LeaveType
	for rows.Next() {
		lt, err := scanLeaveType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *lt)
	}
	return out, rows.Err()
}

func scanLeaveType(row scannable) (*leave.LeaveType, error) {
	var (
		lt                              leave.LeaveType
		id                              string
		categoryID, attachmentKind      sql.NullString
		paid, deductible, requiresAtt   int
		active                          int
		policyJSON                      string
	)
	err := row.Scan(&id, &lt.Code, &lt.Name, &categoryID, &paid, &deductible,
		&requiresAtt, &attachmentKind, &lt.MinTenureMonths, &lt.MaxDurationDays,
		&active, &policyJSON)
	if err != nil {
		return nil, err
	}
	lt.ID = leave.LeaveTypeID(id)
	lt.CategoryID = categoryID.String
	lt.AttachmentKind = attachmentKind.String
	lt.Paid = paid != 0
	lt.Deductible = deductible != 0
	lt.RequiresAttachment = requiresAtt != 0
	lt.Active = active != 0
	if err := json.Unmarshal([]byte(policyJSON), &lt.Policy); err != nil {
		return nil, fmt.Errorf("failed to decode policy: %w", err)
	}
	return &lt, nil
}

// =============================================================================
// EMPLOYEE DIRECTORY (leave.Directory)
// =============================================================================

// SaveEmployee upserts a directory row. The directory is maintained by
// the surrounding HR platform; this mirror exists for tenure, manager
// routing, and reset sweeps.
func (s *Store) SaveEmployee(ctx context.Context, e leave.Employee) error {
	defer s.lock()()

	_, err := s.q.ExecContext(ctx,
		`INSERT INTO employees (id, name, email, hire_date, manager_id, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			hire_date = excluded.hire_date,
			manager_id = excluded.manager_id,
			active = excluded.active`,
		string(e.ID), e.Name, e.Email, e.HireDate.UTC().Format(time.RFC3339),
		string(e.ManagerID), boolToInt(e.Active),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

func (s *Store) Employee(ctx context.Context, id leave.EmployeeID) (*leave.Employee, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, name, email, hire_date, manager_id, active FROM employees WHERE id = ?`,
		string(id))
	e, err := scanEmployee(row)
	if err == sql.ErrNoRows {
		return nil, &leave.NotFoundError{Kind: "employee", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load employee: %w", err)
	}
	return e, nil
}

func (s *Store) ListActiveEmployees(ctx context.Context) ([]leave.Employee, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, name, email, hire_date, manager_id, active FROM employees
		 WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var out []leave.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func scanEmployee(row scannable) (*leave.Employee, error) {
	var (
		e                leave.Employee
		id, hireDate     string
		email, managerID sql.NullString
		active           int
	)
	if err := row.Scan(&id, &e.Name, &email, &hireDate, &managerID, &active); err != nil {
		return nil, err
	}
	e.ID = leave.EmployeeID(id)
	e.Email = email.String
	e.HireDate, _ = time.Parse(time.RFC3339, hireDate)
	e.ManagerID = leave.EmployeeID(managerID.String)
	e.Active = active != 0
	return &e, nil
}

// =============================================================================
// ESCALATIONS
// =============================================================================

// MarkEscalated records the dedup key. INSERT OR IGNORE makes the sweep
// race-free: exactly one caller observes true per key.
func (s *Store) MarkEscalated(ctx context.Context, requestID leave.RequestID, status leave.RequestStatus, dedupKey string) (bool, error) {
	defer s.lock()()

	res, err := s.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO escalations (dedup_key, request_id, status, created_at)
		 VALUES (?, ?, ?, ?)`,
		dedupKey, string(requestID), string(status), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("failed to record escalation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}
