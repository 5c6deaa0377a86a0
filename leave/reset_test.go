package leave_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newResetFixture(t *testing.T) (*leave.ResetEngine, *sqlite.Store) {
	store := newTestStore(t)
	seedLeaveType(t, store, annualLeaveType())
	seedEmployee(t, store, "emp-1", "mgr-1", date(2020, time.March, 15))
	seedEmployee(t, store, "emp-2", "mgr-1", date(2022, time.September, 1))

	engine := leave.NewResetEngine(store, store, quietLog())
	engine.Clock = func() time.Time { return date(2026, time.January, 2) }
	return engine, store
}

// =============================================================================
// CALENDAR-YEAR RESET
// =============================================================================

func TestResetOpensEntitlementsForActiveEmployees(t *testing.T) {
	engine, store := newResetFixture(t)
	ctx := context.Background()

	summary, err := engine.ResetLeaveYear(ctx, leave.ResetConfig{TargetYear: 2026})

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Scanned)
	assert.Equal(t, 2, summary.Opened)
	assert.Equal(t, 0, summary.Existing)

	// The opened record starts zeroed, armed to accrue from January 1, with
	// the yearly figure derived from the policy (1.5 * 12).
	ent, err := store.GetEntitlement(ctx, leave.EntitlementKey{EmployeeID: "emp-1", LeaveTypeID: "lt-annual", Year: 2026})
	require.NoError(t, err)
	assert.True(t, ent.Remaining.IsZero())
	assert.True(t, ent.YearlyEntitlement.Equal(days(18)), "yearly %s", ent.YearlyEntitlement)
	assert.Equal(t, date(2026, time.January, 1), ent.AccruedThrough)
}

func TestResetIsIdempotent(t *testing.T) {
	engine, store := newResetFixture(t)
	ctx := context.Background()

	_, err := engine.ResetLeaveYear(ctx, leave.ResetConfig{TargetYear: 2026})
	require.NoError(t, err)

	// Consume some balance so a re-run would be visibly destructive.
	key := leave.EntitlementKey{EmployeeID: "emp-1", LeaveTypeID: "lt-annual", Year: 2026}
	ledger := leave.NewEntitlementLedger(store)
	_, err = ledger.ManualAdjust(ctx, key, days(4), "grant", "hr-1", false)
	require.NoError(t, err)

	// WHEN resetting the same year again
	summary, err := engine.ResetLeaveYear(ctx, leave.ResetConfig{TargetYear: 2026})

	// THEN existing records are left untouched
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Opened)
	assert.Equal(t, 2, summary.Existing)

	ent, err := store.GetEntitlement(ctx, key)
	require.NoError(t, err)
	assert.True(t, ent.Remaining.Equal(days(4)))
}

func TestResetDryRunWritesNothing(t *testing.T) {
	engine, store := newResetFixture(t)
	ctx := context.Background()

	summary, err := engine.ResetLeaveYear(ctx, leave.ResetConfig{TargetYear: 2026, DryRun: true})

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Opened)

	_, err = store.GetEntitlement(ctx, leave.EntitlementKey{EmployeeID: "emp-1", LeaveTypeID: "lt-annual", Year: 2026})
	require.Error(t, err)
	assert.True(t, errors.Is(err, leave.ErrNotFound))
}

func TestResetSkipsNonDeductibleTypes(t *testing.T) {
	engine, store := newResetFixture(t)
	ctx := context.Background()

	unpaid := annualLeaveType()
	unpaid.ID = "lt-unpaid"
	unpaid.Code = "UNPAID"
	unpaid.Deductible = false
	seedLeaveType(t, store, unpaid)

	summary, err := engine.ResetLeaveYear(ctx, leave.ResetConfig{TargetYear: 2026})

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Opened) // still one per employee, annual only

	_, err = store.GetEntitlement(ctx, leave.EntitlementKey{EmployeeID: "emp-1", LeaveTypeID: "lt-unpaid", Year: 2026})
	require.Error(t, err)
	assert.True(t, errors.Is(err, leave.ErrNotFound))
}

func TestResetScopedToExplicitEmployees(t *testing.T) {
	engine, store := newResetFixture(t)
	ctx := context.Background()

	summary, err := engine.ResetLeaveYear(ctx, leave.ResetConfig{
		TargetYear:  2026,
		EmployeeIDs: []leave.EmployeeID{"emp-2"},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Opened)

	_, err = store.GetEntitlement(ctx, leave.EntitlementKey{EmployeeID: "emp-1", LeaveTypeID: "lt-annual", Year: 2026})
	require.Error(t, err)
	assert.True(t, errors.Is(err, leave.ErrNotFound))
}

// =============================================================================
// ANNIVERSARY AND CUSTOM BOUNDARIES
// =============================================================================

func TestResetAnniversaryDefersUnreachedEmployees(t *testing.T) {
	// GIVEN the sweep runs on 2026-05-01: emp-1's March 15 anniversary has
	// passed, emp-2's September 1 has not
	engine, store := newResetFixture(t)
	engine.Clock = func() time.Time { return date(2026, time.May, 1) }
	ctx := context.Background()

	summary, err := engine.ResetLeaveYear(ctx, leave.ResetConfig{
		TargetYear: 2026,
		Strategy:   leave.ResetAnniversary,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Opened)
	assert.Equal(t, 1, summary.Deferred)

	// The opened record accrues from the anniversary, not January 1.
	ent, err := store.GetEntitlement(ctx, leave.EntitlementKey{EmployeeID: "emp-1", LeaveTypeID: "lt-annual", Year: 2026})
	require.NoError(t, err)
	assert.Equal(t, date(2026, time.March, 15), ent.AccruedThrough)

	_, err = store.GetEntitlement(ctx, leave.EntitlementKey{EmployeeID: "emp-2", LeaveTypeID: "lt-annual", Year: 2026})
	require.Error(t, err)
	assert.True(t, errors.Is(err, leave.ErrNotFound))
}

func TestResetCustomBoundaryRequiresDate(t *testing.T) {
	engine, _ := newResetFixture(t)

	_, err := engine.ResetLeaveYear(context.Background(), leave.ResetConfig{
		TargetYear: 2026,
		Strategy:   leave.ResetCustom,
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, leave.ErrValidation))
}

func TestResetCustomBoundarySetsAccrualMarker(t *testing.T) {
	engine, store := newResetFixture(t)
	engine.Clock = func() time.Time { return date(2026, time.April, 10) }
	ctx := context.Background()

	boundary := date(2026, time.April, 1)
	summary, err := engine.ResetLeaveYear(ctx, leave.ResetConfig{
		TargetYear:     2026,
		Strategy:       leave.ResetCustom,
		CustomBoundary: boundary,
	})

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Opened)

	ent, err := store.GetEntitlement(ctx, leave.EntitlementKey{EmployeeID: "emp-1", LeaveTypeID: "lt-annual", Year: 2026})
	require.NoError(t, err)
	assert.Equal(t, boundary, ent.AccruedThrough)
}

func TestResetRejectsOutOfRangeYear(t *testing.T) {
	engine, _ := newResetFixture(t)

	_, err := engine.ResetLeaveYear(context.Background(), leave.ResetConfig{TargetYear: 1980})

	require.Error(t, err)
	assert.True(t, errors.Is(err, leave.ErrValidation))
}
