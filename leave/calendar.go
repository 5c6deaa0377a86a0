/*
calendar.go - Organizational calendar: holidays and blocked periods

PURPOSE:
  The Calendar is the per-year registry the duration calculator consults.
  HR creates and updates it; the ledger and workflow only read it.

  Holidays reduce the chargeable day count of a request. Blocked periods
  are organization-wide ranges during which leave cannot be taken at all
  (e.g. fiscal close), a hard rejection unless the request carries an
  allowed exception.

SEE ALSO:
  - duration.go: The only consumer of calendar data
*/
package leave

import "time"

// Holiday is a single registered non-working date.
type Holiday struct {
	Date   time.Time
	Reason string
}

// BlockedPeriod is an organization-wide range during which leave is barred.
type BlockedPeriod struct {
	From   time.Time
	To     time.Time
	Reason string
}

// Overlaps reports whether [from, to] intersects the blocked range.
func (b BlockedPeriod) Overlaps(from, to time.Time) bool {
	return !DateOnly(to).Before(DateOnly(b.From)) && !DateOnly(from).After(DateOnly(b.To))
}

// Calendar holds one year's holidays and blocked periods.
type Calendar struct {
	Year     int
	Holidays []Holiday
	Blocked  []BlockedPeriod
}

// IsHoliday reports whether d falls on a registered holiday.
func (c *Calendar) IsHoliday(d time.Time) bool {
	if c == nil {
		return false
	}
	for _, h := range c.Holidays {
		if SameDay(h.Date, d) {
			return true
		}
	}
	return false
}

// BlockedOverlap returns the first blocked period intersecting [from, to].
func (c *Calendar) BlockedOverlap(from, to time.Time) (BlockedPeriod, bool) {
	if c == nil {
		return BlockedPeriod{}, false
	}
	for _, b := range c.Blocked {
		if b.Overlaps(from, to) {
			return b, true
		}
	}
	return BlockedPeriod{}, false
}

// CalendarView is what the duration calculator needs. Calendar implements
// it for a single year; CalendarSet spans year boundaries.
type CalendarView interface {
	IsHoliday(d time.Time) bool
	BlockedOverlap(from, to time.Time) (BlockedPeriod, bool)
}

// CalendarSet is a multi-year view for requests that cross December 31.
type CalendarSet struct {
	Years map[int]*Calendar
}

func NewCalendarSet(cals ...*Calendar) *CalendarSet {
	set := &CalendarSet{Years: make(map[int]*Calendar, len(cals))}
	for _, c := range cals {
		if c != nil {
			set.Years[c.Year] = c
		}
	}
	return set
}

func (s *CalendarSet) IsHoliday(d time.Time) bool {
	return s.Years[d.Year()].IsHoliday(d)
}

func (s *CalendarSet) BlockedOverlap(from, to time.Time) (BlockedPeriod, bool) {
	for year := from.Year(); year <= to.Year(); year++ {
		if b, ok := s.Years[year].BlockedOverlap(from, to); ok {
			return b, true
		}
	}
	return BlockedPeriod{}, false
}

var _ CalendarView = (*Calendar)(nil)
var _ CalendarView = (*CalendarSet)(nil)
