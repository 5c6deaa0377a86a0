package sqlite_test

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

func newStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// =============================================================================
// CALENDAR REGISTRATION
// =============================================================================

func TestEmptyCalendarIsStillRegistered(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	// GIVEN a year saved with no holidays and no blocked periods
	require.NoError(t, store.SaveCalendar(ctx, leave.Calendar{Year: 2031}))

	// THEN it reads back as an explicitly empty calendar
	cal, err := store.GetCalendar(ctx, 2031)
	require.NoError(t, err)
	assert.Equal(t, 2031, cal.Year)
	assert.Empty(t, cal.Holidays)
	assert.Empty(t, cal.Blocked)

	// AND an unregistered year is still distinguishable from it
	_, err = store.GetCalendar(ctx, 2099)
	require.Error(t, err)
	assert.True(t, errors.Is(err, leave.ErrNotFound))
}

func TestCalendarClearedToEmptyStaysRegistered(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCalendar(ctx, leave.Calendar{
		Year:     2031,
		Holidays: []leave.Holiday{{Date: time.Date(2031, time.May, 1, 0, 0, 0, 0, time.UTC), Reason: "labour day"}},
	}))

	// WHEN HR wipes the year's entries with a second save
	require.NoError(t, store.SaveCalendar(ctx, leave.Calendar{Year: 2031}))

	cal, err := store.GetCalendar(ctx, 2031)
	require.NoError(t, err)
	assert.Empty(t, cal.Holidays)
}
