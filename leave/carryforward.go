/*
carryforward.go - Year-boundary rollover with cap, expiry, and override

PURPOSE:
  Moves the unused portion of an ending leave-year into the next one,
  capped per policy and per run rules, with an expiry date after which
  unconsumed carried days are clawed back.

PREVIEW/COMMIT EQUIVALENCE:
  Preview and the real run share ONE pure computation
  (computeCarryForward). The mutating entry point with dryRun simply
  routes to the pure function, so the numbers a reviewer approved are
  exactly the numbers committed.

OVERRIDE:
  OverrideCarryForward bypasses cap and eligibility entirely. It is an
  explicit escape hatch: it writes a manual adjustment plus an
  overridden CarryForwardRecord, and always requires an actor and a
  reason.

SEE ALSO:
  - ledger.go: CreditCarryForward
  - reset.go: Opens the next-year entitlements the rollover lands in
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// CarryForwardRules are the per-run knobs layered over each policy.
type CarryForwardRules struct {
	// Cap limits carried days per entitlement for this run. Zero means the
	// policy's MaxCarryForward alone applies.
	Cap decimal.Decimal

	// ExpiryMonths sets each record's expiry relative to the reference
	// date. Zero falls back to the policy's ExpiryAfterMonths.
	ExpiryMonths int
}

// CarryForwardComputation is one entitlement's planned rollover.
type CarryForwardComputation struct {
	Key        EntitlementKey
	Remaining  decimal.Decimal
	Carry      decimal.Decimal
	Capped     bool
	TargetYear int
	ExpiryDate time.Time
}

// CarryForwardEngine computes and commits year-boundary rollovers.
type CarryForwardEngine struct {
	Store  Store
	Ledger *EntitlementLedger
	Log    *logrus.Logger
}

func NewCarryForwardEngine(store Store, ledger *EntitlementLedger, log *logrus.Logger) *CarryForwardEngine {
	if log == nil {
		log = logrus.New()
	}
	return &CarryForwardEngine{Store: store, Ledger: ledger, Log: log}
}

// =============================================================================
// THE PURE COMPUTATION - shared by preview and commit
// =============================================================================

// computeCarryForward plans rollovers for the year containing the
// reference date. Pure: no reads beyond its arguments, no writes.
func computeCarryForward(ents []Entitlement, types map[LeaveTypeID]*LeaveType, referenceDate time.Time, rules CarryForwardRules) []CarryForwardComputation {
	var out []CarryForwardComputation

	for _, ent := range ents {
		lt := types[ent.Key.LeaveTypeID]
		if lt == nil || !lt.Policy.CarryForwardAllowed {
			continue
		}
		remaining := ent.Remaining
		if !remaining.IsPositive() {
			continue
		}

		carry := remaining
		capped := false
		if lt.Policy.MaxCarryForward.IsPositive() && carry.GreaterThan(lt.Policy.MaxCarryForward) {
			carry = lt.Policy.MaxCarryForward
			capped = true
		}
		if rules.Cap.IsPositive() && carry.GreaterThan(rules.Cap) {
			carry = rules.Cap
			capped = true
		}

		expiryMonths := rules.ExpiryMonths
		if expiryMonths == 0 {
			expiryMonths = lt.Policy.ExpiryAfterMonths
		}
		expiry := time.Time{}
		if expiryMonths > 0 {
			expiry = DateOnly(referenceDate).AddDate(0, expiryMonths, 0)
		}

		out = append(out, CarryForwardComputation{
			Key:        ent.Key,
			Remaining:  remaining,
			Carry:      carry,
			Capped:     capped,
			TargetYear: ent.Key.Year + 1,
			ExpiryDate: expiry,
		})
	}
	return out
}

// =============================================================================
// PREVIEW AND COMMIT
// =============================================================================

// PreviewCarryForward plans the rollover without mutating anything.
func (c *CarryForwardEngine) PreviewCarryForward(ctx context.Context, referenceDate time.Time, rules CarryForwardRules) ([]CarryForwardComputation, error) {
	ents, types, err := c.loadYear(ctx, referenceDate.Year())
	if err != nil {
		return nil, err
	}
	return computeCarryForward(ents, types, referenceDate, rules), nil
}

// CarryForward commits the planned rollover. With dryRun it routes to the
// pure computation and mutates nothing, so preview and commit cannot
// diverge. Already-processed entitlements (a CarryForwardRecord exists
// for the target year) are skipped silently: retry after partial failure
// resumes where it stopped.
func (c *CarryForwardEngine) CarryForward(ctx context.Context, referenceDate time.Time, rules CarryForwardRules, dryRun bool) ([]CarryForwardComputation, error) {
	ents, types, err := c.loadYear(ctx, referenceDate.Year())
	if err != nil {
		return nil, err
	}
	comps := computeCarryForward(ents, types, referenceDate, rules)
	if dryRun {
		return comps, nil
	}

	var committed []CarryForwardComputation
	for _, comp := range comps {
		if _, err := c.Store.GetCarryForwardRecord(ctx, comp.Key.EmployeeID, comp.Key.LeaveTypeID, comp.TargetYear); err == nil {
			continue // already rolled over; idempotent resume
		} else {
			var nf *NotFoundError
			if !asNotFound(err, &nf) {
				return committed, err
			}
		}
		if err := c.commitOne(ctx, comp, types[comp.Key.LeaveTypeID], "year-end carry-forward", false); err != nil {
			return committed, err
		}
		committed = append(committed, comp)
	}

	c.Log.WithFields(logrus.Fields{
		"reference": referenceDate.Format("2006-01-02"),
		"planned":   len(comps),
		"committed": len(committed),
	}).Info("carry-forward completed")

	return committed, nil
}

// commitOne opens (if needed) the target-year entitlement, credits the
// carried days through the ledger, and writes the audit record. All three
// writes land in one storage transaction: a crash mid-commit leaves
// nothing behind, so the resume keyed on the record's existence can never
// double-credit.
func (c *CarryForwardEngine) commitOne(ctx context.Context, comp CarryForwardComputation, lt *LeaveType, reason string, overridden bool) error {
	targetKey := EntitlementKey{
		EmployeeID:  comp.Key.EmployeeID,
		LeaveTypeID: comp.Key.LeaveTypeID,
		Year:        comp.TargetYear,
	}

	return c.Store.WithTx(ctx, func(s Store) error {
		if _, err := s.GetEntitlement(ctx, targetKey); err != nil {
			var nf *NotFoundError
			if !asNotFound(err, &nf) {
				return err
			}
			yearly := decimal.Zero
			if lt != nil {
				yearly = yearlyEntitlementFor(lt.Policy)
			}
			if err := s.PutEntitlement(ctx, NewEntitlement(targetKey, yearly, time.Now())); err != nil {
				return err
			}
		}

		if _, err := c.Ledger.withStore(s).CreditCarryForward(ctx, targetKey, comp.Carry, reason, SystemActor.ID); err != nil {
			return err
		}

		return s.PutCarryForwardRecord(ctx, CarryForwardRecord{
			EmployeeID:  comp.Key.EmployeeID,
			LeaveTypeID: comp.Key.LeaveTypeID,
			TargetYear:  comp.TargetYear,
			Days:        comp.Carry,
			ExpiryDate:  comp.ExpiryDate,
			Reason:      reason,
			Overridden:  overridden,
			CreatedAt:   time.Now().UTC(),
		})
	})
}

// =============================================================================
// OVERRIDE - the audited escape hatch
// =============================================================================

// OverrideCarryForward writes an arbitrary carry for one employee,
// bypassing cap and eligibility. Always traceable to an actor and reason.
func (c *CarryForwardEngine) OverrideCarryForward(ctx context.Context, employeeID EmployeeID, leaveTypeID LeaveTypeID, targetYear int, days decimal.Decimal, expiryDate time.Time, reason string, actor Actor) (*CarryForwardRecord, error) {
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Message: "carry-forward override requires a reason"}
	}
	if !days.IsPositive() {
		return nil, &ValidationError{Field: "days", Message: "carry-forward days must be positive"}
	}

	targetKey := EntitlementKey{EmployeeID: employeeID, LeaveTypeID: leaveTypeID, Year: targetYear}
	rec := CarryForwardRecord{
		EmployeeID:  employeeID,
		LeaveTypeID: leaveTypeID,
		TargetYear:  targetYear,
		Days:        days,
		ExpiryDate:  expiryDate,
		Reason:      reason,
		Overridden:  true,
		CreatedAt:   time.Now().UTC(),
	}

	// Credit and audit record commit together, as in commitOne.
	err := c.Store.WithTx(ctx, func(s Store) error {
		if _, err := s.GetEntitlement(ctx, targetKey); err != nil {
			var nf *NotFoundError
			if !asNotFound(err, &nf) {
				return err
			}
			lt, err := s.GetLeaveType(ctx, leaveTypeID)
			if err != nil {
				return err
			}
			if err := s.PutEntitlement(ctx, NewEntitlement(targetKey, yearlyEntitlementFor(lt.Policy), time.Now())); err != nil {
				return err
			}
		}

		if _, err := c.Ledger.withStore(s).ManualAdjust(ctx, targetKey, days, fmt.Sprintf("carry-forward override: %s", reason), actor.ID, true); err != nil {
			return err
		}

		return s.PutCarryForwardRecord(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// =============================================================================
// EXPIRY - claw back unconsumed carried days past their expiry date
// =============================================================================

// ExpireCarryForward debits, for every record whose expiry has passed,
// whatever portion of the carried days is still unconsumed.
func (c *CarryForwardEngine) ExpireCarryForward(ctx context.Context, referenceDate time.Time) (int, error) {
	records, err := c.Store.ListCarryForwardRecords(ctx, referenceDate.Year())
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, rec := range records {
		if rec.Expired || rec.ExpiryDate.IsZero() || rec.ExpiryDate.After(referenceDate) {
			continue
		}
		key := EntitlementKey{EmployeeID: rec.EmployeeID, LeaveTypeID: rec.LeaveTypeID, Year: rec.TargetYear}
		err := c.Store.WithTx(ctx, func(s Store) error {
			ent, err := s.GetEntitlement(ctx, key)
			if err != nil {
				return err
			}

			// Only the unconsumed portion expires: never less than zero of
			// it, never more than what is still remaining.
			unused := decimal.Min(ent.CarryForward, ent.Remaining)
			if unused.IsPositive() {
				reason := fmt.Sprintf("carry-forward expired on %s", rec.ExpiryDate.Format("2006-01-02"))
				if _, err := c.Ledger.withStore(s).CreditCarryForward(ctx, key, unused.Neg(), reason, SystemActor.ID); err != nil {
					return err
				}
			}
			return s.MarkCarryForwardExpired(ctx, rec.EmployeeID, rec.LeaveTypeID, rec.TargetYear)
		})
		if err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// CarryForwardReport lists the audit records for a target year.
func (c *CarryForwardEngine) CarryForwardReport(ctx context.Context, targetYear int) ([]CarryForwardRecord, error) {
	return c.Store.ListCarryForwardRecords(ctx, targetYear)
}

// =============================================================================
// HELPERS
// =============================================================================

func (c *CarryForwardEngine) loadYear(ctx context.Context, year int) ([]Entitlement, map[LeaveTypeID]*LeaveType, error) {
	ents, err := c.Store.ListEntitlements(ctx, year)
	if err != nil {
		return nil, nil, err
	}
	types := make(map[LeaveTypeID]*LeaveType)
	for _, ent := range ents {
		if _, ok := types[ent.Key.LeaveTypeID]; ok {
			continue
		}
		lt, err := c.Store.GetLeaveType(ctx, ent.Key.LeaveTypeID)
		if err != nil {
			return nil, nil, err
		}
		types[ent.Key.LeaveTypeID] = lt
	}
	return ents, types, nil
}

// NewEntitlement opens a zeroed balance record for a leave year.
func NewEntitlement(key EntitlementKey, yearlyEntitlement decimal.Decimal, now time.Time) Entitlement {
	return Entitlement{
		Key:               key,
		YearlyEntitlement: yearlyEntitlement,
		AccruedActual:     decimal.Zero,
		AccruedRounded:    decimal.Zero,
		CarryForward:      decimal.Zero,
		ManualAdjust:      decimal.Zero,
		Taken:             decimal.Zero,
		Remaining:         decimal.Zero,
		AccruedThrough:    yearStart(key.Year),
		Version:           1,
		CreatedAt:         now.UTC(),
		UpdatedAt:         now.UTC(),
	}
}

func yearlyEntitlementFor(p LeavePolicy) decimal.Decimal {
	if p.AccrualMethod == AccrualYearly {
		return p.YearlyRate
	}
	return p.MonthlyRate.Mul(decimal.NewFromInt(12))
}

func asNotFound(err error, target **NotFoundError) bool {
	return errors.As(err, target)
}
