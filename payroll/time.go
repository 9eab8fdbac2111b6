package payroll

import (
	"time"
)

// =============================================================================
// TIME POINT - Calendar day used for attendance and pay periods
// =============================================================================

type TimePoint struct {
	Time time.Time
}

func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// TimePointOf truncates t to its calendar day (in t's own location).
func TimePointOf(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

// ParseTimePoint parses a YYYY-MM-DD date.
func ParseTimePoint(s string) (TimePoint, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return TimePoint{}, err
	}
	return TimePointOf(t), nil
}

func Today() TimePoint {
	return TimePointOf(time.Now())
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.normalize().Before(other.normalize()) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.normalize().Equal(other.normalize()) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.normalize().After(other.normalize()) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return tp.Before(other) || tp.Equal(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return tp.After(other) || tp.Equal(other) }

func (tp TimePoint) normalize() time.Time {
	return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint   { return TimePoint{Time: tp.normalize().AddDate(0, 0, n)} }
func (tp TimePoint) AddMonths(n int) TimePoint { return TimePoint{Time: tp.normalize().AddDate(0, n, 0)} }

// Properties
func (tp TimePoint) Weekday() time.Weekday { return tp.Time.Weekday() }
func (tp TimePoint) IsWeekend() bool       { wd := tp.Weekday(); return wd == time.Saturday || wd == time.Sunday }
func (tp TimePoint) IsZero() bool          { return tp.Time.IsZero() }
func (tp TimePoint) String() string        { return tp.Time.Format("2006-01-02") }

// =============================================================================
// HOLIDAY CALENDAR - Days excluded from the expected working days
// =============================================================================

type Holiday struct {
	Date      TimePoint
	Name      string
	Recurring bool // same month/day every year
}

type HolidayCalendar interface {
	IsHoliday(date TimePoint) bool
}

// HolidayList is a HolidayCalendar backed by a slice.
type HolidayList []Holiday

func (l HolidayList) IsHoliday(date TimePoint) bool {
	for _, h := range l {
		if h.Recurring {
			if h.Date.Time.Month() == date.Time.Month() && h.Date.Time.Day() == date.Time.Day() {
				return true
			}
			continue
		}
		if h.Date.Equal(date) {
			return true
		}
	}
	return false
}

// IsWorkday checks if a date is a working day, considering holidays.
func (tp TimePoint) IsWorkday(calendar HolidayCalendar) bool {
	if tp.IsWeekend() {
		return false
	}
	if calendar != nil && calendar.IsHoliday(tp) {
		return false
	}
	return true
}

func DaysBetween(from, to TimePoint) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}

func StartOfMonth(year int, month time.Month) TimePoint { return NewTimePoint(year, month, 1) }
func EndOfMonth(year int, month time.Month) TimePoint {
	return TimePoint{Time: time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)}
}
