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

var balanceKey = leave.EntitlementKey{EmployeeID: "emp-1", LeaveTypeID: "lt-annual", Year: 2025}

func newTestLedger(t *testing.T) (*leave.EntitlementLedger, *sqlite.Store) {
	store := newTestStore(t)
	ledger := leave.NewEntitlementLedger(store)
	ent := leave.NewEntitlement(balanceKey, days(18), time.Now())
	require.NoError(t, store.PutEntitlement(context.Background(), ent))
	return ledger, store
}

func creditBalance(t *testing.T, ledger *leave.EntitlementLedger, amount float64) {
	_, err := ledger.ManualAdjust(context.Background(), balanceKey, days(amount), "seed balance", "hr-1", false)
	require.NoError(t, err)
}

// =============================================================================
// DEBIT AND CREDIT
// =============================================================================

func TestDebitConsumesBalanceAndPreservesInvariant(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	creditBalance(t, ledger, 10)

	// WHEN debiting 3 days
	ent, err := ledger.Debit(ctx, balanceKey, days(3), "leave 2025-06-16 to 2025-06-18", "hr-1", "req-1", false)

	// THEN the balance components fold to the stored remaining
	require.NoError(t, err)
	assert.True(t, ent.Taken.Equal(days(3)), "taken %s", ent.Taken)
	assert.True(t, ent.Remaining.Equal(days(7)), "remaining %s", ent.Remaining)
	require.NoError(t, ent.CheckInvariant())
}

func TestDebitRejectsOverdrawWithoutOverride(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	creditBalance(t, ledger, 2)

	// WHEN debiting more than is available
	_, err := ledger.Debit(ctx, balanceKey, days(5), "too much", "hr-1", "req-1", false)

	// THEN the mutation fails as a policy violation and nothing is written
	require.Error(t, err)
	var insufficient *leave.InsufficientBalanceError
	require.True(t, errors.As(err, &insufficient))
	assert.True(t, errors.Is(err, leave.ErrPolicyViolation))
	assert.True(t, insufficient.Available.Equal(days(2)))

	ent, err := store.GetEntitlement(ctx, balanceKey)
	require.NoError(t, err)
	assert.True(t, ent.Taken.IsZero())
	assert.True(t, ent.Remaining.Equal(days(2)))

	adjs, err := store.Adjustments(ctx, balanceKey)
	require.NoError(t, err)
	assert.Len(t, adjs, 1) // only the seed credit
}

func TestDebitWithOverrideTagsTheEntry(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	creditBalance(t, ledger, 2)

	// WHEN overdrawing with an explicit override
	ent, err := ledger.Debit(ctx, balanceKey, days(5), "negative leave approved", "hr-1", "req-1", true)

	// THEN the balance goes negative and the entry is override-tagged
	require.NoError(t, err)
	assert.True(t, ent.Remaining.Equal(days(-3)), "remaining %s", ent.Remaining)
	require.NoError(t, ent.CheckInvariant())

	adjs, err := store.Adjustments(ctx, balanceKey)
	require.NoError(t, err)
	require.Len(t, adjs, 2)
	debit := adjs[len(adjs)-1]
	assert.Equal(t, leave.AdjConsumption, debit.Type)
	assert.True(t, debit.Override)
	assert.True(t, debit.Amount.Equal(days(-5)))
	assert.Equal(t, "req-1", debit.ReferenceID)
}

func TestCreditReversalRestoresConsumedDays(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	creditBalance(t, ledger, 10)
	_, err := ledger.Debit(ctx, balanceKey, days(4), "leave", "hr-1", "req-1", false)
	require.NoError(t, err)

	// WHEN the approved leave is cancelled
	ent, err := ledger.CreditReversal(ctx, balanceKey, days(4), "cancellation", "emp-1", "req-1")

	// THEN taken returns to zero through a REVERSAL entry, not by rewriting history
	require.NoError(t, err)
	assert.True(t, ent.Taken.IsZero())
	assert.True(t, ent.Remaining.Equal(days(10)))

	adjs, err := store.Adjustments(ctx, balanceKey)
	require.NoError(t, err)
	require.Len(t, adjs, 3)
	assert.Equal(t, leave.AdjReversal, adjs[2].Type)
	assert.True(t, adjs[2].Amount.Equal(days(4)))
}

func TestManualAdjustRequiresReason(t *testing.T) {
	ledger, _ := newTestLedger(t)

	_, err := ledger.ManualAdjust(context.Background(), balanceKey, days(2), "", "hr-1", false)

	require.Error(t, err)
	assert.True(t, errors.Is(err, leave.ErrValidation))
}

func TestManualAdjustNegativeNeedsOverrideToOverdraw(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	creditBalance(t, ledger, 3)

	_, err := ledger.ManualAdjust(ctx, balanceKey, days(-5), "correction", "hr-1", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, leave.ErrPolicyViolation))

	ent, err := ledger.ManualAdjust(ctx, balanceKey, days(-5), "correction", "hr-1", true)
	require.NoError(t, err)
	assert.True(t, ent.Remaining.Equal(days(-2)))
}

// =============================================================================
// OPTIMISTIC CONCURRENCY
// =============================================================================

func TestStaleVersionUpdateConflicts(t *testing.T) {
	_, store := newTestLedger(t)
	ctx := context.Background()

	ent, err := store.GetEntitlement(ctx, balanceKey)
	require.NoError(t, err)
	stale := ent.Version

	// GIVEN a committed mutation bumped the version
	ent.ManualAdjust = days(1)
	ent.Remaining = ent.ComputedRemaining()
	require.NoError(t, store.UpdateEntitlement(ctx, *ent, stale))

	// WHEN writing again with the version observed before that commit
	err = store.UpdateEntitlement(ctx, *ent, stale)

	// THEN the write is refused rather than silently lost
	require.Error(t, err)
	assert.True(t, errors.Is(err, leave.ErrConflict))
	assert.True(t, leave.IsRetryable(err))
}

// =============================================================================
// LEDGER RECONSTRUCTION
// =============================================================================

func TestRebuildEntitlementFoldsTheLedger(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	// GIVEN a history touching every component
	_, err := ledger.CreditAccrual(ctx, balanceKey, days(1.5), days(2), date(2025, time.February, 1), "accrual through 2025-02-01")
	require.NoError(t, err)
	_, err = ledger.CreditCarryForward(ctx, balanceKey, days(3), "year-end carry-forward", "system")
	require.NoError(t, err)
	_, err = ledger.ManualAdjust(ctx, balanceKey, days(1), "grant", "hr-1", false)
	require.NoError(t, err)
	_, err = ledger.Debit(ctx, balanceKey, days(2), "leave", "hr-1", "req-1", false)
	require.NoError(t, err)

	// WHEN folding the adjustment ledger from genesis
	stored, err := store.GetEntitlement(ctx, balanceKey)
	require.NoError(t, err)
	adjs, err := store.Adjustments(ctx, balanceKey)
	require.NoError(t, err)
	rebuilt := leave.RebuildEntitlement(balanceKey, stored.YearlyEntitlement, adjs)

	// THEN the rebuilt record matches the stored one field for field
	assert.True(t, rebuilt.AccruedActual.Equal(stored.AccruedActual))
	assert.True(t, rebuilt.AccruedRounded.Equal(stored.AccruedRounded))
	assert.True(t, rebuilt.CarryForward.Equal(stored.CarryForward))
	assert.True(t, rebuilt.ManualAdjust.Equal(stored.ManualAdjust))
	assert.True(t, rebuilt.Taken.Equal(stored.Taken))
	assert.True(t, rebuilt.Remaining.Equal(stored.Remaining))

	require.NoError(t, ledger.VerifyAgainstLedger(ctx, balanceKey))
}

func TestVerifyAgainstLedgerDetectsDivergence(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	creditBalance(t, ledger, 5)

	// GIVEN a record whose stored components no longer match its ledger
	ent, err := store.GetEntitlement(ctx, balanceKey)
	require.NoError(t, err)
	ent.Taken = days(2)
	ent.Remaining = ent.ComputedRemaining()
	require.NoError(t, store.UpdateEntitlement(ctx, *ent, ent.Version))

	err = ledger.VerifyAgainstLedger(ctx, balanceKey)

	require.Error(t, err)
	var inv *leave.InvariantError
	assert.True(t, errors.As(err, &inv))
}
