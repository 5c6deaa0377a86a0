package leave_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// UNPAID DEDUCTION
// =============================================================================

func TestUnpaidDeductionProratesOverWorkDays(t *testing.T) {
	// GIVEN a 2200.00 salary, 22 working days, 3 unpaid days
	res, err := leave.CalculateUnpaidDeduction(leave.UnpaidDeductionInput{
		BaseSalary:      days(2200),
		WorkDaysInMonth: 22,
		UnpaidDays:      days(3),
	})

	// THEN the daily rate is 100 and the deduction 300.00
	require.NoError(t, err)
	assert.True(t, res.DailyRate.Equal(days(100)), "rate %s", res.DailyRate)
	assert.True(t, res.Deduction.Equal(days(300)), "deduction %s", res.Deduction)
}

func TestUnpaidDeductionRoundsMoneyAtFinalStep(t *testing.T) {
	// GIVEN a salary that does not divide evenly (1000 / 21)
	res, err := leave.CalculateUnpaidDeduction(leave.UnpaidDeductionInput{
		BaseSalary:      days(1000),
		WorkDaysInMonth: 21,
		UnpaidDays:      days(2),
	})

	// THEN only the final amount is rounded to cents: 1000/21*2 = 95.238... -> 95.24
	require.NoError(t, err)
	assert.Equal(t, "95.24", res.Deduction.StringFixed(2))
}

func TestUnpaidDeductionZeroDaysIsZero(t *testing.T) {
	res, err := leave.CalculateUnpaidDeduction(leave.UnpaidDeductionInput{
		BaseSalary:      days(3000),
		WorkDaysInMonth: 20,
		UnpaidDays:      days(0),
	})
	require.NoError(t, err)
	assert.True(t, res.Deduction.IsZero())
}

func TestUnpaidDeductionValidation(t *testing.T) {
	cases := []struct {
		name string
		in   leave.UnpaidDeductionInput
	}{
		{"negative salary", leave.UnpaidDeductionInput{BaseSalary: days(-1), WorkDaysInMonth: 20, UnpaidDays: days(1)}},
		{"zero work days", leave.UnpaidDeductionInput{BaseSalary: days(1000), WorkDaysInMonth: 0, UnpaidDays: days(1)}},
		{"negative unpaid days", leave.UnpaidDeductionInput{BaseSalary: days(1000), WorkDaysInMonth: 20, UnpaidDays: days(-2)}},
		{"unpaid days exceed work days", leave.UnpaidDeductionInput{BaseSalary: days(1000), WorkDaysInMonth: 20, UnpaidDays: days(21)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := leave.CalculateUnpaidDeduction(tc.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, leave.ErrValidation))
		})
	}
}

// =============================================================================
// ENCASHMENT
// =============================================================================

func TestEncashmentPaysOutUnusedDays(t *testing.T) {
	res, err := leave.CalculateEncashment(leave.EncashmentInput{
		DailyRate:  days(150),
		UnusedDays: days(4),
	})

	require.NoError(t, err)
	assert.True(t, res.EncashedDays.Equal(days(4)))
	assert.True(t, res.Payout.Equal(days(600)), "payout %s", res.Payout)
	assert.False(t, res.Capped)
}

func TestEncashmentAppliesPolicyCap(t *testing.T) {
	// GIVEN 12 unused days but a cap of 10
	res, err := leave.CalculateEncashment(leave.EncashmentInput{
		DailyRate:         days(100),
		UnusedDays:        days(12),
		MaxEncashableDays: days(10),
	})

	// THEN only the capped days are paid
	require.NoError(t, err)
	assert.True(t, res.EncashedDays.Equal(days(10)))
	assert.True(t, res.Payout.Equal(days(1000)))
	assert.True(t, res.Capped)
}

func TestEncashmentRejectsNegativeInputs(t *testing.T) {
	_, err := leave.CalculateEncashment(leave.EncashmentInput{DailyRate: days(-1), UnusedDays: days(1)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, leave.ErrValidation))

	_, err = leave.CalculateEncashment(leave.EncashmentInput{DailyRate: days(100), UnusedDays: days(-1)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, leave.ErrValidation))
}
