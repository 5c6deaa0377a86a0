/*
payout.go - Monetary calculations derived from leave balances

PURPOSE:
  Pure computations handed to payroll: the salary deduction for unpaid
  leave days, and the payout for encashing unused entitlement. Nothing
  here touches the ledger; both take their inputs explicitly so payroll
  can re-run them against historical figures.

ROUNDING:
  Money rounds half-up to 2 decimal places at the final step only.
  Intermediate day rates keep full precision.
*/
package leave

import (
	"github.com/shopspring/decimal"
)

// UnpaidDeductionInput parameterizes one month's unpaid-leave deduction.
type UnpaidDeductionInput struct {
	BaseSalary      decimal.Decimal // monthly base salary
	WorkDaysInMonth int             // working days in the affected month
	UnpaidDays      decimal.Decimal // unpaid leave days taken that month
}

// UnpaidDeductionResult carries the deduction and its day rate.
type UnpaidDeductionResult struct {
	DailyRate decimal.Decimal
	Deduction decimal.Decimal
}

// CalculateUnpaidDeduction prorates the monthly salary over the month's
// working days and charges the unpaid days at that rate.
func CalculateUnpaidDeduction(in UnpaidDeductionInput) (UnpaidDeductionResult, error) {
	if in.BaseSalary.IsNegative() {
		return UnpaidDeductionResult{}, &ValidationError{Field: "baseSalary", Message: "base salary must not be negative"}
	}
	if in.WorkDaysInMonth <= 0 {
		return UnpaidDeductionResult{}, &ValidationError{Field: "workDaysInMonth", Message: "working days in month must be positive"}
	}
	if in.UnpaidDays.IsNegative() {
		return UnpaidDeductionResult{}, &ValidationError{Field: "unpaidDays", Message: "unpaid days must not be negative"}
	}
	if in.UnpaidDays.GreaterThan(decimal.NewFromInt(int64(in.WorkDaysInMonth))) {
		return UnpaidDeductionResult{}, &ValidationError{Field: "unpaidDays", Message: "unpaid days exceed working days in the month"}
	}

	rate := in.BaseSalary.Div(decimal.NewFromInt(int64(in.WorkDaysInMonth)))
	return UnpaidDeductionResult{
		DailyRate: rate,
		Deduction: rate.Mul(in.UnpaidDays).Round(2),
	}, nil
}

// EncashmentInput parameterizes an unused-leave payout.
type EncashmentInput struct {
	DailyRate          decimal.Decimal // employee's daily pay rate
	UnusedDays         decimal.Decimal // remaining entitlement days
	MaxEncashableDays  decimal.Decimal // policy cap; zero means no cap
}

// EncashmentResult carries the payout and how many days it covers.
type EncashmentResult struct {
	EncashedDays decimal.Decimal
	Payout       decimal.Decimal
	Capped       bool
}

// CalculateEncashment pays out unused days at the daily rate, capped by
// the policy's encashable maximum.
func CalculateEncashment(in EncashmentInput) (EncashmentResult, error) {
	if in.DailyRate.IsNegative() {
		return EncashmentResult{}, &ValidationError{Field: "dailyRate", Message: "daily rate must not be negative"}
	}
	if in.UnusedDays.IsNegative() {
		return EncashmentResult{}, &ValidationError{Field: "unusedDays", Message: "unused days must not be negative"}
	}

	days := in.UnusedDays
	capped := false
	if in.MaxEncashableDays.IsPositive() && days.GreaterThan(in.MaxEncashableDays) {
		days = in.MaxEncashableDays
		capped = true
	}
	return EncashmentResult{
		EncashedDays: days,
		Payout:       in.DailyRate.Mul(days).Round(2),
		Capped:       capped,
	}, nil
}
