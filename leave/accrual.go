/*
accrual.go - Periodic accrual engine

PURPOSE:
  Credits entitlements per policy rate on a monthly or yearly cadence.
  Designed to run as a scheduled sweep; safe to re-run at any time.

EXACT ARITHMETIC:
  AccruedActual advances by the exact decimal rate every period. The
  spendable balance advances by the DELTA between the new and previous
  rounding of that running total, so Taken and manual adjustments are
  never disturbed by rounding and the rounded total always equals
  round(actual total). Example, monthly rate 1.5 with ROUND:

    period 1: actual 1.5, rounded 2, credited delta 2
    period 2: actual 3.0, rounded 3, credited delta 1

IDEMPOTENCE:
  Each entitlement stores an accrued-through marker. A period is credited
  only when the marker lags it; re-running for an already-accrued
  reference date is a silent no-op, not an error. A crash mid-sweep
  simply resumes where markers stop being stale.

SEE ALSO:
  - ledger.go: CreditAccrual applies entry + marker atomically
  - api/scheduler.go: Scheduled invocation
*/
package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// AccrualEngine sweeps entitlements and credits elapsed periods.
type AccrualEngine struct {
	Store  Store
	Ledger *EntitlementLedger
	Types  LeaveTypeStore
	Log    *logrus.Logger
}

func NewAccrualEngine(store Store, ledger *EntitlementLedger, log *logrus.Logger) *AccrualEngine {
	if log == nil {
		log = logrus.New()
	}
	return &AccrualEngine{Store: store, Ledger: ledger, Types: store, Log: log}
}

// AccrualSummary reports one sweep.
type AccrualSummary struct {
	Scanned         int
	PeriodsCredited int
	Skipped         int
	Errors          int
}

// RunAccrual credits every entitlement of the reference year whose policy
// period has elapsed since its accrued-through marker. The previous year is
// swept too: its final period only elapses on January 1 of the next year.
// Re-runs are no-ops.
func (a *AccrualEngine) RunAccrual(ctx context.Context, referenceDate time.Time) (AccrualSummary, error) {
	referenceDate = DateOnly(referenceDate)

	ents, err := a.Store.ListEntitlements(ctx, referenceDate.Year())
	if err != nil {
		return AccrualSummary{}, err
	}
	prev, err := a.Store.ListEntitlements(ctx, referenceDate.Year()-1)
	if err != nil {
		return AccrualSummary{}, err
	}
	ents = append(ents, prev...)

	typeCache := make(map[LeaveTypeID]*LeaveType)
	var summary AccrualSummary

	for i := range ents {
		ent := ents[i]
		summary.Scanned++

		lt, ok := typeCache[ent.Key.LeaveTypeID]
		if !ok {
			lt, err = a.Types.GetLeaveType(ctx, ent.Key.LeaveTypeID)
			if err != nil {
				a.Log.WithError(err).WithField("leaveType", ent.Key.LeaveTypeID).Warn("accrual: leave type lookup failed")
				summary.Errors++
				continue
			}
			typeCache[ent.Key.LeaveTypeID] = lt
		}
		if !lt.Active {
			summary.Skipped++
			continue
		}

		credited, err := a.accrueOne(ctx, ent, lt.Policy, referenceDate)
		if err != nil {
			a.Log.WithError(err).WithFields(logrus.Fields{
				"employee":  ent.Key.EmployeeID,
				"leaveType": ent.Key.LeaveTypeID,
			}).Warn("accrual: crediting failed")
			summary.Errors++
			continue
		}
		if credited == 0 {
			summary.Skipped++
		}
		summary.PeriodsCredited += credited
	}

	a.Log.WithFields(logrus.Fields{
		"reference": referenceDate.Format("2006-01-02"),
		"scanned":   summary.Scanned,
		"credited":  summary.PeriodsCredited,
		"skipped":   summary.Skipped,
	}).Info("accrual sweep completed")

	return summary, nil
}

// accrueOne walks elapsed periods for a single entitlement. Each period is
// its own ledger mutation so a crash leaves a consistent prefix.
func (a *AccrualEngine) accrueOne(ctx context.Context, ent Entitlement, policy LeavePolicy, referenceDate time.Time) (int, error) {
	rate, step := periodFor(policy)
	if rate.IsZero() {
		return 0, nil
	}

	credited := 0
	yearEnd := yearStart(ent.Key.Year + 1)
	for {
		// Reload each iteration: CreditAccrual bumped the version.
		current, err := a.Store.GetEntitlement(ctx, ent.Key)
		if err != nil {
			return credited, err
		}
		through := current.AccruedThrough
		if through.IsZero() {
			through = yearStart(current.Key.Year)
		}
		next := step(through)
		if next.After(referenceDate) {
			return credited, nil // period not elapsed; idempotent no-op
		}
		if next.After(yearEnd) {
			return credited, nil // entitlement fully accrued for its year
		}

		newActual := current.AccruedActual.Add(rate)
		newRounded := ApplyRounding(newActual, policy.Rounding)
		roundedDelta := newRounded.Sub(current.AccruedRounded)

		reason := fmt.Sprintf("accrual through %s", next.Format("2006-01-02"))
		if _, err := a.Ledger.CreditAccrual(ctx, current.Key, rate, roundedDelta, next, reason); err != nil {
			return credited, err
		}
		credited++
	}
}

func periodFor(policy LeavePolicy) (decimal.Decimal, func(time.Time) time.Time) {
	switch policy.AccrualMethod {
	case AccrualYearly:
		return policy.YearlyRate, func(t time.Time) time.Time { return t.AddDate(1, 0, 0) }
	default:
		return policy.MonthlyRate, func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }
	}
}

func yearStart(year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}
