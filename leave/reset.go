/*
reset.go - Leave-year reset

PURPOSE:
  Opens the new leave year: creates fresh entitlement records for every
  active employee and deductible leave type, with counters at zero and
  the accrual marker armed at the year boundary. Rollover of unused days
  is NOT done here; the carry-forward engine owns that and credits into
  the records this reset creates.

YEAR BOUNDARIES:
  calendar_year - everyone resets on January 1 of the target year
  anniversary   - each employee resets on their hire-date anniversary;
                  the sweep only opens records for employees whose
                  anniversary has been reached by the reference date
  custom        - the caller supplies the boundary date explicitly

IDEMPOTENCE:
  An entitlement that already exists for (employee, type, year) is left
  untouched. Re-running a reset is a counting no-op.

SEE ALSO:
  - carryforward.go: Credits rolled-over days into reset records
*/
package leave

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// ResetStrategy selects the year-boundary rule.
type ResetStrategy string

const (
	ResetCalendarYear ResetStrategy = "calendar_year"
	ResetAnniversary  ResetStrategy = "anniversary"
	ResetCustom       ResetStrategy = "custom"
)

// ResetConfig parameterizes one reset run.
type ResetConfig struct {
	TargetYear int
	Strategy   ResetStrategy

	// CustomBoundary is required for the custom strategy and ignored
	// otherwise.
	CustomBoundary time.Time

	// EmployeeIDs restricts the run; empty means all active employees.
	EmployeeIDs []EmployeeID

	DryRun bool
}

// ResetSummary reports one run.
type ResetSummary struct {
	Scanned  int
	Opened   int
	Existing int
	Deferred int // anniversary not yet reached
	Errors   int
}

// ResetEngine opens new-year entitlement records.
type ResetEngine struct {
	Store     Store
	Directory Directory
	Log       *logrus.Logger
	Clock     func() time.Time
}

func NewResetEngine(store Store, dir Directory, log *logrus.Logger) *ResetEngine {
	if log == nil {
		log = logrus.New()
	}
	return &ResetEngine{Store: store, Directory: dir, Log: log, Clock: time.Now}
}

// ResetLeaveYear opens target-year entitlements per the configured
// strategy. With DryRun it reports what would open without writing.
func (r *ResetEngine) ResetLeaveYear(ctx context.Context, cfg ResetConfig) (ResetSummary, error) {
	if cfg.TargetYear < 2000 || cfg.TargetYear > 2200 {
		return ResetSummary{}, &ValidationError{Field: "targetYear", Message: "target year out of range"}
	}
	if cfg.Strategy == "" {
		cfg.Strategy = ResetCalendarYear
	}
	if cfg.Strategy == ResetCustom && cfg.CustomBoundary.IsZero() {
		return ResetSummary{}, &ValidationError{Field: "customBoundary", Message: "custom strategy requires a boundary date"}
	}

	employees, err := r.scopedEmployees(ctx, cfg)
	if err != nil {
		return ResetSummary{}, err
	}
	types, err := r.Store.ListLeaveTypes(ctx, true)
	if err != nil {
		return ResetSummary{}, err
	}

	now := r.Clock().UTC()
	var summary ResetSummary

	for i := range employees {
		emp := employees[i]
		boundary, reached := r.boundaryFor(&emp, cfg, now)
		for j := range types {
			lt := types[j]
			if !lt.Deductible {
				continue
			}
			summary.Scanned++

			if !reached {
				summary.Deferred++
				continue
			}

			key := EntitlementKey{EmployeeID: emp.ID, LeaveTypeID: lt.ID, Year: cfg.TargetYear}
			if _, err := r.Store.GetEntitlement(ctx, key); err == nil {
				summary.Existing++
				continue
			} else {
				var nf *NotFoundError
				if !asNotFound(err, &nf) {
					r.Log.WithError(err).WithField("employee", emp.ID).Warn("reset: entitlement lookup failed")
					summary.Errors++
					continue
				}
			}

			if cfg.DryRun {
				summary.Opened++
				continue
			}

			ent := NewEntitlement(key, yearlyEntitlementFor(lt.Policy), now)
			ent.AccruedThrough = boundary
			if err := r.Store.PutEntitlement(ctx, ent); err != nil {
				r.Log.WithError(err).WithFields(logrus.Fields{
					"employee":  emp.ID,
					"leaveType": lt.ID,
				}).Warn("reset: opening entitlement failed")
				summary.Errors++
				continue
			}
			summary.Opened++
		}
	}

	r.Log.WithFields(logrus.Fields{
		"targetYear": cfg.TargetYear,
		"strategy":   cfg.Strategy,
		"dryRun":     cfg.DryRun,
		"opened":     summary.Opened,
		"existing":   summary.Existing,
	}).Info("leave year reset completed")

	return summary, nil
}

func (r *ResetEngine) scopedEmployees(ctx context.Context, cfg ResetConfig) ([]Employee, error) {
	if len(cfg.EmployeeIDs) == 0 {
		return r.Directory.ListActiveEmployees(ctx)
	}
	out := make([]Employee, 0, len(cfg.EmployeeIDs))
	for _, id := range cfg.EmployeeIDs {
		emp, err := r.Directory.Employee(ctx, id)
		if err != nil {
			return nil, err
		}
		if emp.Active {
			out = append(out, *emp)
		}
	}
	return out, nil
}

// boundaryFor returns the employee's year boundary and whether it has
// been reached by now.
func (r *ResetEngine) boundaryFor(emp *Employee, cfg ResetConfig, now time.Time) (time.Time, bool) {
	switch cfg.Strategy {
	case ResetAnniversary:
		h := emp.HireDate
		boundary := time.Date(cfg.TargetYear, h.Month(), h.Day(), 0, 0, 0, 0, time.UTC)
		return boundary, !now.Before(boundary)
	case ResetCustom:
		boundary := DateOnly(cfg.CustomBoundary)
		return boundary, !now.Before(boundary)
	default:
		return yearStart(cfg.TargetYear), true
	}
}
