/*
duration.go - Calendar-aware duration computation

PURPOSE:
  Pure function: (date range, calendar, policy) -> chargeable day count
  plus policy checks. No side effects, fully deterministic given
  the inputs, which makes preview and submission agree by construction.

WHAT IT COMPUTES:
  Counts calendar days in [from, to] inclusive, then subtracts days that
  fall on a registered holiday. The result is what the ledger will be
  debited on final approval.

WHAT IT VALIDATES:
  - from <= to                               (ValidationError)
  - span <= policy.MaxConsecutiveDays        (PolicyViolation)
  - now + policy.MinNoticeDays <= from       (PolicyViolation, skipped
    for post-leave submissions, i.e. retroactive requests)
  - no blocked-period overlap                (PolicyViolation, unless the
    request carries an allowed exception)

SEE ALSO:
  - calendar.go: CalendarView consumed here
  - workflow.go: Calls Compute on submit and resubmit
*/
package leave

import (
	"time"

	"github.com/shopspring/decimal"
)

// DurationOptions tweak validation for special request shapes.
type DurationOptions struct {
	// Now anchors the minimum-notice check. Zero means time.Now.
	Now time.Time

	// PostLeave marks a retroactive submission; the notice check is skipped.
	PostLeave bool

	// BlockedException permits overlap with a blocked period. Policy-defined
	// escape hatch; the workflow records who invoked it.
	BlockedException bool
}

// DurationResult is the outcome of a successful computation.
type DurationResult struct {
	// Days is the chargeable duration: calendar days minus holidays.
	Days decimal.Decimal

	// CalendarDays is the raw inclusive span.
	CalendarDays int

	// HolidaysSkipped is how many days were excluded as holidays.
	HolidaysSkipped int

	// Blocked is true when the range overlapped a blocked period and the
	// caller held an exception; false otherwise.
	Blocked bool
}

// ComputeDuration computes the chargeable day count for [from, to].
// Pure and deterministic; every validation failure names the violated rule.
func ComputeDuration(from, to time.Time, cal CalendarView, policy LeavePolicy, opts DurationOptions) (DurationResult, error) {
	from = DateOnly(from)
	to = DateOnly(to)

	if from.IsZero() || to.IsZero() {
		return DurationResult{}, &ValidationError{Field: "date range", Message: "from and to are required"}
	}
	if to.Before(from) {
		return DurationResult{}, &ValidationError{Field: "date range", Message: "to precedes from"}
	}

	span := int(to.Sub(from).Hours()/24) + 1

	if policy.MaxConsecutiveDays > 0 && span > policy.MaxConsecutiveDays {
		return DurationResult{}, &PolicyViolationError{
			Rule:    "max_consecutive",
			Message: "requested span exceeds the maximum consecutive days allowed",
		}
	}

	if policy.MinNoticeDays > 0 && !opts.PostLeave {
		now := opts.Now
		if now.IsZero() {
			now = time.Now()
		}
		earliest := DateOnly(now).AddDate(0, 0, policy.MinNoticeDays)
		if from.Before(earliest) {
			return DurationResult{}, &PolicyViolationError{
				Rule:    "min_notice",
				Message: "request does not meet the minimum notice period",
			}
		}
	}

	var blocked bool
	if cal != nil {
		if b, ok := cal.BlockedOverlap(from, to); ok {
			if !opts.BlockedException {
				return DurationResult{}, &BlockedPeriodError{From: b.From, To: b.To, Reason: b.Reason}
			}
			blocked = true
		}
	}

	holidays := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if cal != nil && cal.IsHoliday(d) {
			holidays++
		}
	}

	days := span - holidays
	return DurationResult{
		Days:            decimal.NewFromInt(int64(days)),
		CalendarDays:    span,
		HolidaysSkipped: holidays,
		Blocked:         blocked,
	}, nil
}
