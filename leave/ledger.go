/*
ledger.go - Entitlement ledger: the invariant-preserving balance core

PURPOSE:
  Every balance change in the system flows through this file. A mutation
  appends exactly one adjustment entry and recomputes Remaining, inside
  one storage transaction guarded by the entitlement's version token.
  A crash between the entry write and the balance update cannot happen:
  they commit together or not at all.

CRITICAL INVARIANTS:
  1. Remaining = AccruedRounded + CarryForward + ManualAdjust - Taken,
     enforced before commit on every mutation
  2. Remaining < 0 only when the mutation carried allowNegative, in which
     case the adjustment entry is tagged as an override
  3. The adjustment ledger is append-only; balances are reconstructable
     by folding it from genesis (RebuildEntitlement)
  4. Concurrent mutations of the same entitlement serialize on the
     version column: the loser gets a ConflictError, never a lost write

WHY VERSION-GUARDED INSTEAD OF READ-MODIFY-WRITE:
  Two concurrent debits could both pass a "sufficient balance" read and
  both commit, overdrawing silently. The conditional update re-validates
  inside the storage transaction, turning the race into a visible
  conflict.

SEE ALSO:
  - store.go: UpdateEntitlement conditional-write contract
  - accrual.go / carryforward.go: Callers that credit through here
*/
package leave

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntitlementLedger owns all mutations of Entitlement records.
type EntitlementLedger struct {
	store Store
	clock func() time.Time
}

func NewEntitlementLedger(store Store) *EntitlementLedger {
	return &EntitlementLedger{store: store, clock: time.Now}
}

// WithClock overrides the timestamp source. Test hook.
func (l *EntitlementLedger) WithClock(clock func() time.Time) *EntitlementLedger {
	l.clock = clock
	return l
}

// withStore rebinds the ledger to a transactional store view so a caller
// holding an open transaction keeps the mutation inside it.
func (l *EntitlementLedger) withStore(s Store) *EntitlementLedger {
	return &EntitlementLedger{store: s, clock: l.clock}
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Debit consumes amount days (a finalized request). Fails with an
// InsufficientBalanceError when the balance would go negative and
// allowNegative is false; with allowNegative the entry is override-tagged.
func (l *EntitlementLedger) Debit(ctx context.Context, key EntitlementKey, amount decimal.Decimal, reason, actorID, referenceID string, allowNegative bool) (*Entitlement, error) {
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Message: "debit amount must be positive"}
	}
	entry := Adjustment{
		Key:         key,
		Type:        AdjConsumption,
		Amount:      amount.Neg(),
		Reason:      reason,
		ActorID:     actorID,
		ReferenceID: referenceID,
	}
	return l.mutate(ctx, key, entry, allowNegative, func(e *Entitlement) {
		e.Taken = e.Taken.Add(amount)
	})
}

// CreditReversal restores amount days consumed by a previously finalized
// request (cancellation of approved leave).
func (l *EntitlementLedger) CreditReversal(ctx context.Context, key EntitlementKey, amount decimal.Decimal, reason, actorID, referenceID string) (*Entitlement, error) {
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Message: "credit amount must be positive"}
	}
	entry := Adjustment{
		Key:         key,
		Type:        AdjReversal,
		Amount:      amount,
		Reason:      reason,
		ActorID:     actorID,
		ReferenceID: referenceID,
	}
	return l.mutate(ctx, key, entry, true, func(e *Entitlement) {
		e.Taken = e.Taken.Sub(amount)
	})
}

// CreditAccrual applies one accrual period: the exact rate moves
// AccruedActual, the rounded delta moves the spendable balance, and the
// accrued-through marker advances. Called only by the accrual engine.
func (l *EntitlementLedger) CreditAccrual(ctx context.Context, key EntitlementKey, actualDelta, roundedDelta decimal.Decimal, through time.Time, reason string) (*Entitlement, error) {
	entry := Adjustment{
		Key:          key,
		Type:         AdjAccrual,
		Amount:       roundedDelta,
		ActualAmount: actualDelta,
		Reason:       reason,
		ActorID:      SystemActor.ID,
	}
	return l.mutate(ctx, key, entry, true, func(e *Entitlement) {
		e.AccruedActual = e.AccruedActual.Add(actualDelta)
		e.AccruedRounded = e.AccruedRounded.Add(roundedDelta)
		e.AccruedThrough = through
	})
}

// CreditCarryForward moves rolled-over days into the target-year record.
// Negative amounts expire previously carried days.
func (l *EntitlementLedger) CreditCarryForward(ctx context.Context, key EntitlementKey, amount decimal.Decimal, reason, actorID string) (*Entitlement, error) {
	entry := Adjustment{
		Key:     key,
		Type:    AdjCarryForward,
		Amount:  amount,
		Reason:  reason,
		ActorID: actorID,
	}
	return l.mutate(ctx, key, entry, true, func(e *Entitlement) {
		e.CarryForward = e.CarryForward.Add(amount)
	})
}

// ManualAdjust applies an HR correction of either sign. A negative
// adjustment that would overdraw the balance requires allowNegative.
func (l *EntitlementLedger) ManualAdjust(ctx context.Context, key EntitlementKey, amount decimal.Decimal, reason, actorID string, allowNegative bool) (*Entitlement, error) {
	if amount.IsZero() {
		return nil, &ValidationError{Field: "amount", Message: "adjustment amount must be non-zero"}
	}
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Message: "manual adjustments require a reason"}
	}
	entry := Adjustment{
		Key:     key,
		Type:    AdjManual,
		Amount:  amount,
		Reason:  reason,
		ActorID: actorID,
	}
	return l.mutate(ctx, key, entry, allowNegative, func(e *Entitlement) {
		e.ManualAdjust = e.ManualAdjust.Add(amount)
	})
}

// mutate is the single serialized mutation path. Within one storage
// transaction: load, apply, recompute Remaining, enforce the negativity
// rule, append the entry, and commit the balance conditionally on the
// version observed at load.
func (l *EntitlementLedger) mutate(ctx context.Context, key EntitlementKey, entry Adjustment, allowNegative bool, apply func(*Entitlement)) (*Entitlement, error) {
	var out *Entitlement

	err := l.store.WithTx(ctx, func(s Store) error {
		ent, err := s.GetEntitlement(ctx, key)
		if err != nil {
			return err
		}
		observedVersion := ent.Version
		before := ent.Remaining

		apply(ent)
		ent.Remaining = ent.ComputedRemaining()
		ent.UpdatedAt = l.clock()

		// A mutation may not push the balance (further) negative without an
		// explicit override. Credits onto an already-negative balance pass.
		if ent.Remaining.IsNegative() && ent.Remaining.LessThan(before) {
			if !allowNegative {
				return &InsufficientBalanceError{
					Key:       key,
					Available: before,
					Requested: before.Sub(ent.Remaining),
				}
			}
			entry.Override = true
		}

		entry.ID = uuid.NewString()
		entry.CreatedAt = l.clock().UTC()
		if err := s.AppendAdjustment(ctx, entry); err != nil {
			return err
		}
		if err := s.UpdateEntitlement(ctx, *ent, observedVersion); err != nil {
			return err
		}
		ent.Version = observedVersion + 1
		out = ent
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// READS
// =============================================================================

// GetBalance returns the latest committed entitlement. Never a cache.
func (l *EntitlementLedger) GetBalance(ctx context.Context, key EntitlementKey) (*Entitlement, error) {
	return l.store.GetEntitlement(ctx, key)
}

// =============================================================================
// RECONSTRUCTION - The adjustment ledger is the source of truth
// =============================================================================

// RebuildEntitlement folds the adjustment ledger from genesis into the
// balance components. Used for audit verification: the result must match
// the stored record field for field.
func RebuildEntitlement(key EntitlementKey, yearlyEntitlement decimal.Decimal, entries []Adjustment) Entitlement {
	e := Entitlement{
		Key:               key,
		YearlyEntitlement: yearlyEntitlement,
		AccruedActual:     decimal.Zero,
		AccruedRounded:    decimal.Zero,
		CarryForward:      decimal.Zero,
		ManualAdjust:      decimal.Zero,
		Taken:             decimal.Zero,
	}
	for _, a := range entries {
		switch a.Type {
		case AdjAccrual:
			e.AccruedActual = e.AccruedActual.Add(a.ActualAmount)
			e.AccruedRounded = e.AccruedRounded.Add(a.Amount)
		case AdjCarryForward:
			e.CarryForward = e.CarryForward.Add(a.Amount)
		case AdjManual:
			e.ManualAdjust = e.ManualAdjust.Add(a.Amount)
		case AdjConsumption:
			e.Taken = e.Taken.Sub(a.Amount) // entry amount is negative
		case AdjReversal:
			e.Taken = e.Taken.Sub(a.Amount) // entry amount is positive
		}
	}
	e.Remaining = e.ComputedRemaining()
	return e
}

// VerifyAgainstLedger recomputes the balance from the audit trail and
// returns an InvariantError if the stored record diverges.
func (l *EntitlementLedger) VerifyAgainstLedger(ctx context.Context, key EntitlementKey) error {
	stored, err := l.store.GetEntitlement(ctx, key)
	if err != nil {
		return err
	}
	entries, err := l.store.Adjustments(ctx, key)
	if err != nil {
		return err
	}
	rebuilt := RebuildEntitlement(key, stored.YearlyEntitlement, entries)
	if !rebuilt.Remaining.Equal(stored.Remaining) ||
		!rebuilt.Taken.Equal(stored.Taken) ||
		!rebuilt.AccruedRounded.Equal(stored.AccruedRounded) ||
		!rebuilt.CarryForward.Equal(stored.CarryForward) {
		return &InvariantError{Key: key, Stored: stored.Remaining, Computed: rebuilt.Remaining}
	}
	return nil
}
