package leave_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func calendar2025() *leave.Calendar {
	return &leave.Calendar{
		Year: 2025,
		Holidays: []leave.Holiday{
			{Date: date(2025, time.June, 12), Reason: "Independence Day"},
			{Date: date(2025, time.December, 25), Reason: "Christmas"},
		},
		Blocked: []leave.BlockedPeriod{
			{From: date(2025, time.March, 28), To: date(2025, time.April, 2), Reason: "fiscal close"},
		},
	}
}

// =============================================================================
// DURATION COMPUTATION
// =============================================================================

func TestComputeDurationCountsInclusiveDays(t *testing.T) {
	// GIVEN a five-day range with no holidays in it
	res, err := leave.ComputeDuration(
		date(2025, time.June, 16), date(2025, time.June, 20),
		calendar2025(), leave.LeavePolicy{}, leave.DurationOptions{})

	// THEN every calendar day is chargeable
	require.NoError(t, err)
	assert.Equal(t, 5, res.CalendarDays)
	assert.Equal(t, 0, res.HolidaysSkipped)
	assert.True(t, res.Days.Equal(days(5)), "got %s", res.Days)
}

func TestComputeDurationSkipsHolidays(t *testing.T) {
	// GIVEN a range spanning a registered holiday (June 12)
	res, err := leave.ComputeDuration(
		date(2025, time.June, 10), date(2025, time.June, 13),
		calendar2025(), leave.LeavePolicy{}, leave.DurationOptions{})

	// THEN the holiday is not charged
	require.NoError(t, err)
	assert.Equal(t, 4, res.CalendarDays)
	assert.Equal(t, 1, res.HolidaysSkipped)
	assert.True(t, res.Days.Equal(days(3)), "got %s", res.Days)
}

func TestComputeDurationSingleDay(t *testing.T) {
	res, err := leave.ComputeDuration(
		date(2025, time.June, 16), date(2025, time.June, 16),
		calendar2025(), leave.LeavePolicy{}, leave.DurationOptions{})

	require.NoError(t, err)
	assert.True(t, res.Days.Equal(days(1)))
}

func TestComputeDurationRejectsInvertedRange(t *testing.T) {
	_, err := leave.ComputeDuration(
		date(2025, time.June, 20), date(2025, time.June, 16),
		nil, leave.LeavePolicy{}, leave.DurationOptions{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, leave.ErrValidation))
}

func TestComputeDurationEnforcesMaxConsecutive(t *testing.T) {
	// GIVEN a policy capping requests at 10 consecutive days
	policy := leave.LeavePolicy{MaxConsecutiveDays: 10}

	// WHEN requesting an 11-day span
	_, err := leave.ComputeDuration(
		date(2025, time.June, 1), date(2025, time.June, 11),
		nil, policy, leave.DurationOptions{})

	// THEN the request is refused as a policy violation
	require.Error(t, err)
	assert.True(t, errors.Is(err, leave.ErrPolicyViolation))
}

func TestComputeDurationEnforcesMinimumNotice(t *testing.T) {
	policy := leave.LeavePolicy{MinNoticeDays: 7}
	now := date(2025, time.June, 1)

	// WHEN the start date is within the notice window
	_, err := leave.ComputeDuration(
		date(2025, time.June, 4), date(2025, time.June, 5),
		nil, policy, leave.DurationOptions{Now: now})
	require.Error(t, err)
	assert.True(t, errors.Is(err, leave.ErrPolicyViolation))

	// WHEN the start date meets the notice window exactly
	res, err := leave.ComputeDuration(
		date(2025, time.June, 8), date(2025, time.June, 9),
		nil, policy, leave.DurationOptions{Now: now})
	require.NoError(t, err)
	assert.True(t, res.Days.Equal(days(2)))
}

func TestComputeDurationSkipsNoticeForPostLeave(t *testing.T) {
	// GIVEN a retroactive (post-leave) submission in the past
	policy := leave.LeavePolicy{MinNoticeDays: 7}
	now := date(2025, time.June, 20)

	res, err := leave.ComputeDuration(
		date(2025, time.June, 2), date(2025, time.June, 3),
		nil, policy, leave.DurationOptions{Now: now, PostLeave: true})

	// THEN the notice check does not apply
	require.NoError(t, err)
	assert.True(t, res.Days.Equal(days(2)))
}

func TestComputeDurationRejectsBlockedPeriodOverlap(t *testing.T) {
	// GIVEN a range overlapping the fiscal-close block
	_, err := leave.ComputeDuration(
		date(2025, time.March, 30), date(2025, time.April, 1),
		calendar2025(), leave.LeavePolicy{}, leave.DurationOptions{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, leave.ErrPolicyViolation))
	var blocked *leave.BlockedPeriodError
	assert.True(t, errors.As(err, &blocked))
}

func TestComputeDurationBlockedExceptionPasses(t *testing.T) {
	// GIVEN the same overlap but with an allowed exception
	res, err := leave.ComputeDuration(
		date(2025, time.March, 30), date(2025, time.April, 1),
		calendar2025(), leave.LeavePolicy{}, leave.DurationOptions{BlockedException: true})

	require.NoError(t, err)
	assert.True(t, res.Blocked)
	assert.True(t, res.Days.Equal(days(3)))
}

func TestComputeDurationAcrossYearBoundary(t *testing.T) {
	// GIVEN calendars for both years, each with one holiday in the range
	cal26 := &leave.Calendar{
		Year:     2026,
		Holidays: []leave.Holiday{{Date: date(2026, time.January, 1), Reason: "New Year"}},
	}
	set := leave.NewCalendarSet(calendar2025(), cal26)

	// WHEN the range crosses December 31
	res, err := leave.ComputeDuration(
		date(2025, time.December, 24), date(2026, time.January, 2),
		set, leave.LeavePolicy{}, leave.DurationOptions{})

	// THEN holidays from both years are skipped
	require.NoError(t, err)
	assert.Equal(t, 10, res.CalendarDays)
	assert.Equal(t, 2, res.HolidaysSkipped)
	assert.True(t, res.Days.Equal(days(8)), "got %s", res.Days)
}
