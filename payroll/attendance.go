/*
attendance.go - Reduces a period's attendance records to payable hours

PURPOSE:
  Sums hours worked over the records of one employee that fall inside the
  pay period. Only present and late records are paid; absent and leave
  records contribute zero hours but still count as recorded days.

COMPLETENESS:
  Attendance is complete when the number of distinct recorded days in the
  period reaches Coverage x the expected working days (weekdays that are not
  holidays), rounded up. Coverage 1.0 demands a record for every working
  day; Coverage 0 disables the check.

OVERTIME:
  Overtime is not derived from attendance. It is supplied per employee by
  the calculate request and defaults to zero.
*/
package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type AttendanceSummary struct {
	EmployeeID   EmployeeID
	Period       Period
	RegularHours decimal.Decimal
	Present      int
	Late         int
	Absent       int
	Leave        int
	RecordedDays int
}

type AttendanceAggregator struct {
	Calendar HolidayCalendar
	Coverage decimal.Decimal
}

// NewAttendanceAggregator returns an aggregator requiring full coverage.
func NewAttendanceAggregator(calendar HolidayCalendar) AttendanceAggregator {
	return AttendanceAggregator{Calendar: calendar, Coverage: decimal.NewFromInt(1)}
}

// Aggregate sums paid hours for employeeID over records dated inside period.
// Records of other employees are ignored.
func (a AttendanceAggregator) Aggregate(employeeID EmployeeID, period Period, records []AttendanceRecord) (AttendanceSummary, error) {
	summary := AttendanceSummary{EmployeeID: employeeID, Period: period, RegularHours: decimal.Zero}
	for _, rec := range inPeriod(employeeID, period, records) {
		switch rec.Status {
		case AttendancePresent:
			summary.Present++
		case AttendanceLate:
			summary.Late++
		case AttendanceAbsent:
			summary.Absent++
		case AttendanceLeave:
			summary.Leave++
		default:
			return summary, fmt.Errorf("attendance on %s: unknown status %q", rec.Date, rec.Status)
		}
		if !rec.Status.Paid() {
			continue
		}
		hours := rec.Hours()
		if hours.IsNegative() {
			return summary, fmt.Errorf("attendance on %s: %w", rec.Date, ErrNegativeHours)
		}
		summary.RegularHours = summary.RegularHours.Add(hours)
	}
	summary.RecordedDays = recordedDays(employeeID, period, records)
	return summary, nil
}

// RequiredDays is the number of recorded days needed for complete attendance.
func (a AttendanceAggregator) RequiredDays(period Period) int {
	if !a.Coverage.IsPositive() {
		return 0
	}
	expected := decimal.NewFromInt(int64(period.WorkingDays(a.Calendar)))
	return int(expected.Mul(a.Coverage).Ceil().IntPart())
}

// Complete reports whether the employee's records cover the period.
func (a AttendanceAggregator) Complete(employeeID EmployeeID, period Period, records []AttendanceRecord) (recorded, required int, ok bool) {
	required = a.RequiredDays(period)
	recorded = recordedDays(employeeID, period, records)
	return recorded, required, recorded >= required
}

func inPeriod(employeeID EmployeeID, period Period, records []AttendanceRecord) []AttendanceRecord {
	var out []AttendanceRecord
	for _, rec := range records {
		if rec.EmployeeID == employeeID && period.Contains(rec.Date) {
			out = append(out, rec)
		}
	}
	return out
}

func recordedDays(employeeID EmployeeID, period Period, records []AttendanceRecord) int {
	seen := make(map[string]struct{})
	for _, rec := range inPeriod(employeeID, period, records) {
		seen[rec.Date.String()] = struct{}{}
	}
	return len(seen)
}
