package payroll

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - The pay period a run covers
// =============================================================================

// Period is a closed date interval [Start, End].
type Period struct {
	Start TimePoint
	End   TimePoint
}

// MonthPeriod returns the calendar month containing year/month.
func MonthPeriod(year int, month time.Month) Period {
	return Period{Start: StartOfMonth(year, month), End: EndOfMonth(year, month)}
}

// MaxPeriodDays bounds the length of a pay period, inclusive of both ends.
const MaxPeriodDays = 366

// Validate rejects zero dates, periods that end before they start and
// periods longer than MaxPeriodDays.
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() || p.End.Before(p.Start) {
		return ErrInvalidPeriod
	}
	if DaysBetween(p.Start, p.End)+1 > MaxPeriodDays {
		return fmt.Errorf("%w: %s spans more than %d days", ErrPeriodTooLong, p, MaxPeriodDays)
	}
	return nil
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Days returns all days in the period.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	for current := p.Start; current.BeforeOrEqual(p.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

// WorkingDays counts weekdays in the period that are not holidays.
func (p Period) WorkingDays(calendar HolidayCalendar) int {
	n := 0
	for day := p.Start; day.BeforeOrEqual(p.End); day = day.AddDays(1) {
		if day.IsWorkday(calendar) {
			n++
		}
	}
	return n
}

// Key identifies the period in maps and storage.
func (p Period) Key() string {
	return p.Start.String() + "/" + p.End.String()
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// PreviousPeriod returns the period of equal length ending the day before p.
func (p Period) PreviousPeriod() Period {
	duration := DaysBetween(p.Start, p.End)
	newEnd := p.Start.AddDays(-1)
	return Period{Start: newEnd.AddDays(-duration), End: newEnd}
}
