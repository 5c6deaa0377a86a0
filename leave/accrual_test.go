package leave_test

import (
	"context"
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

func newAccrualFixture(t *testing.T, lt leave.LeaveType) (*leave.AccrualEngine, *sqlite.Store, leave.EntitlementKey) {
	store := newTestStore(t)
	ctx := context.Background()
	seedLeaveType(t, store, lt)

	key := leave.EntitlementKey{EmployeeID: "emp-1", LeaveTypeID: lt.ID, Year: 2025}
	require.NoError(t, store.PutEntitlement(ctx, leave.NewEntitlement(key, days(18), time.Now())))

	engine := leave.NewAccrualEngine(store, leave.NewEntitlementLedger(store), quietLog())
	return engine, store, key
}

// =============================================================================
// ROUNDED-DELTA CREDITING
// =============================================================================

func TestMonthlyAccrualCreditsRoundedDeltas(t *testing.T) {
	// GIVEN monthly rate 1.5 with nearest rounding
	engine, store, key := newAccrualFixture(t, annualLeaveType())
	ctx := context.Background()

	// WHEN two monthly periods have elapsed (Jan and Feb complete by Mar 1)
	summary, err := engine.RunAccrual(ctx, date(2025, time.March, 1))

	// THEN the exact total is 3.0 and the spendable balance advanced by
	// delta 2 then delta 1, never disturbing other components
	require.NoError(t, err)
	assert.Equal(t, 2, summary.PeriodsCredited)

	ent, err := store.GetEntitlement(ctx, key)
	require.NoError(t, err)
	assert.True(t, ent.AccruedActual.Equal(days(3)), "actual %s", ent.AccruedActual)
	assert.True(t, ent.AccruedRounded.Equal(days(3)), "rounded %s", ent.AccruedRounded)
	assert.True(t, ent.Remaining.Equal(days(3)))
	require.NoError(t, ent.CheckInvariant())

	adjs, err := store.Adjustments(ctx, key)
	require.NoError(t, err)
	require.Len(t, adjs, 2)
	assert.True(t, adjs[0].Amount.Equal(days(2)), "first delta %s", adjs[0].Amount)
	assert.True(t, adjs[0].ActualAmount.Equal(days(1.5)))
	assert.True(t, adjs[1].Amount.Equal(days(1)), "second delta %s", adjs[1].Amount)
	assert.True(t, adjs[1].ActualAmount.Equal(days(1.5)))
}

func TestAccrualFirstPeriodRoundsUp(t *testing.T) {
	// GIVEN one elapsed period at rate 1.5: actual 1.5 rounds to 2
	engine, store, key := newAccrualFixture(t, annualLeaveType())
	ctx := context.Background()

	_, err := engine.RunAccrual(ctx, date(2025, time.February, 1))
	require.NoError(t, err)

	ent, err := store.GetEntitlement(ctx, key)
	require.NoError(t, err)
	assert.True(t, ent.AccruedActual.Equal(days(1.5)))
	assert.True(t, ent.AccruedRounded.Equal(days(2)))
}

func TestAccrualFloorRounding(t *testing.T) {
	lt := annualLeaveType()
	lt.ID = "lt-floor"
	lt.Code = "FLOOR"
	lt.Policy.Rounding = leave.RoundFloor
	engine, store, _ := newAccrualFixture(t, lt)
	ctx := context.Background()
	key := leave.EntitlementKey{EmployeeID: "emp-1", LeaveTypeID: lt.ID, Year: 2025}

	// WHEN one period elapses at 1.5 with FLOOR
	_, err := engine.RunAccrual(ctx, date(2025, time.February, 1))
	require.NoError(t, err)

	ent, err := store.GetEntitlement(ctx, key)
	require.NoError(t, err)
	assert.True(t, ent.AccruedRounded.Equal(days(1)), "rounded %s", ent.AccruedRounded)
	assert.True(t, ent.AccruedActual.Equal(days(1.5)))
}

// =============================================================================
// IDEMPOTENCE
// =============================================================================

func TestAccrualRerunIsNoOp(t *testing.T) {
	engine, store, key := newAccrualFixture(t, annualLeaveType())
	ctx := context.Background()
	ref := date(2025, time.March, 1)

	_, err := engine.RunAccrual(ctx, ref)
	require.NoError(t, err)
	before, err := store.GetEntitlement(ctx, key)
	require.NoError(t, err)

	// WHEN sweeping again for the same reference date
	summary, err := engine.RunAccrual(ctx, ref)

	// THEN nothing is credited and the balance is untouched
	require.NoError(t, err)
	assert.Equal(t, 0, summary.PeriodsCredited)
	assert.Equal(t, 1, summary.Skipped)

	after, err := store.GetEntitlement(ctx, key)
	require.NoError(t, err)
	assert.True(t, after.AccruedRounded.Equal(before.AccruedRounded))
	assert.Equal(t, before.Version, after.Version)

	adjs, err := store.Adjustments(ctx, key)
	require.NoError(t, err)
	assert.Len(t, adjs, 2)
}

func TestAccrualResumesAfterPartialRun(t *testing.T) {
	// GIVEN a sweep that already covered January
	engine, store, key := newAccrualFixture(t, annualLeaveType())
	ctx := context.Background()

	_, err := engine.RunAccrual(ctx, date(2025, time.February, 1))
	require.NoError(t, err)

	// WHEN sweeping later for a further reference date
	summary, err := engine.RunAccrual(ctx, date(2025, time.April, 1))

	// THEN only the missing periods are credited
	require.NoError(t, err)
	assert.Equal(t, 2, summary.PeriodsCredited)

	ent, err := store.GetEntitlement(ctx, key)
	require.NoError(t, err)
	assert.True(t, ent.AccruedActual.Equal(days(4.5)))
	assert.True(t, ent.AccruedRounded.Equal(days(5)), "rounded %s", ent.AccruedRounded)
}

func TestAccrualSkipsInactiveTypes(t *testing.T) {
	lt := annualLeaveType()
	lt.Active = false
	engine, store, key := newAccrualFixture(t, lt)
	ctx := context.Background()

	summary, err := engine.RunAccrual(ctx, date(2025, time.June, 1))

	require.NoError(t, err)
	assert.Equal(t, 0, summary.PeriodsCredited)
	assert.Equal(t, 1, summary.Skipped)

	ent, err := store.GetEntitlement(ctx, key)
	require.NoError(t, err)
	assert.True(t, ent.AccruedRounded.IsZero())
}

// =============================================================================
// YEARLY CADENCE
// =============================================================================

func TestYearlyAccrualCreditsOncePerYear(t *testing.T) {
	lt := annualLeaveType()
	lt.ID = "lt-yearly"
	lt.Code = "YEARLY"
	lt.Policy.AccrualMethod = leave.AccrualYearly
	lt.Policy.YearlyRate = days(20)
	engine, store, _ := newAccrualFixture(t, lt)
	ctx := context.Background()
	key := leave.EntitlementKey{EmployeeID: "emp-1", LeaveTypeID: lt.ID, Year: 2025}

	// Mid-year: the yearly period has not elapsed yet.
	summary, err := engine.RunAccrual(ctx, date(2025, time.June, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.PeriodsCredited)

	// January 1 of the next year: the single yearly period has elapsed.
	summary, err = engine.RunAccrual(ctx, date(2026, time.January, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.PeriodsCredited)

	ent, err := store.GetEntitlement(ctx, key)
	require.NoError(t, err)
	assert.True(t, ent.AccruedRounded.Equal(days(20)))
}
