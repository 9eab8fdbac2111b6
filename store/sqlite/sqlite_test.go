package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func march2025() payroll.Period {
	return payroll.MonthPeriod(2025, time.March)
}

func at(day, hour int) *time.Time {
	t := time.Date(2025, time.March, day, hour, 0, 0, 0, time.UTC)
	return &t
}

// finalizedLine builds a balanced pay line on 50,000 gross: statutory
// amounts for that gross, the rest of the gap to net in OtherDeductions.
func finalizedLine(id string, runID payroll.RunID, period payroll.Period, employee payroll.EmployeeID, net string) payroll.FinalizedPayroll {
	gross := d("50000")
	total := gross.Sub(d(net))
	nssf, shif, levy := d("3000"), d("1375"), d("750")
	return payroll.FinalizedPayroll{
		ID:     id,
		RunID:  runID,
		Period: period,
		Calculation: payroll.PayrollCalculation{
			EmployeeID:      employee,
			Name:            "Employee " + string(employee),
			Department:      "Engineering",
			GrossPay:        gross,
			NSSF:            nssf,
			SHIF:            shif,
			HousingLevy:     levy,
			OtherDeductions: total.Sub(nssf).Sub(shif).Sub(levy),
			TotalDeductions: total,
			NetPay:          d(net),
			Status:          payroll.Warning{Cause: payroll.ReasonHighDeductions},
		},
		FinalizedAt: time.Date(2025, time.April, 1, 9, 0, 0, 0, time.UTC),
		FinalizedBy: "hr-1",
		Note:        "March close",
	}
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func TestEmployees_SaveAndLoad(t *testing.T) {
	// GIVEN: Two employees saved out of order, one updated afterwards
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.SaveEmployee(ctx, payroll.Employee{
		ID: "e2", Name: "Wanjiru", Department: "Sales", HourlyRate: d("250.50"), Active: false,
	}))
	require.NoError(t, s.SaveEmployee(ctx, payroll.Employee{
		ID: "e1", EmployeeNumber: "EMP-001", Name: "Otieno", Department: "Engineering",
		Position: "Engineer", HourlyRate: d("300"), Active: true,
		LoanBalance: d("5000"), LoanInstallment: d("1000"),
	}))
	require.NoError(t, s.SaveEmployee(ctx, payroll.Employee{
		ID: "e2", Name: "Wanjiru", Department: "Marketing", HourlyRate: d("260"), Active: true,
	}))

	// WHEN: Employees are listed
	employees, err := s.ListEmployees(ctx)
	require.NoError(t, err)

	// THEN: They come back ordered by ID with decimals intact
	require.Len(t, employees, 2)
	assert.Equal(t, payroll.EmployeeID("e1"), employees[0].ID)
	assert.Equal(t, "EMP-001", employees[0].EmployeeNumber)
	assert.True(t, employees[0].HourlyRate.Equal(d("300")))
	assert.True(t, employees[0].LoanDeduction().Equal(d("1000")))

	assert.Equal(t, "Marketing", employees[1].Department)
	assert.True(t, employees[1].Active)
	assert.True(t, employees[1].HourlyRate.Equal(d("260")))
}

func TestEmployees_GetUnknown(t *testing.T) {
	s := newStore(t)

	_, err := s.GetEmployee(context.Background(), "missing")

	assert.ErrorIs(t, err, payroll.ErrEmployeeNotFound)
}

// =============================================================================
// ATTENDANCE / ADVANCES / HOLIDAYS
// =============================================================================

func TestAttendance_InRange(t *testing.T) {
	// GIVEN: Records on the last day of February, in March, and in April
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveAttendance(ctx,
		payroll.AttendanceRecord{EmployeeID: "e1", Date: payroll.NewTimePoint(2025, time.February, 28), Status: payroll.AttendancePresent, HoursWorked: d("8")},
		payroll.AttendanceRecord{EmployeeID: "e1", Date: payroll.NewTimePoint(2025, time.March, 4), Status: payroll.AttendanceLate,
			ClockIn: at(4, 9), ClockOut: at(4, 17)},
		payroll.AttendanceRecord{EmployeeID: "e1", Date: payroll.NewTimePoint(2025, time.March, 3), Status: payroll.AttendancePresent, HoursWorked: d("7.5")},
		payroll.AttendanceRecord{EmployeeID: "e1", Date: payroll.NewTimePoint(2025, time.April, 1), Status: payroll.AttendancePresent, HoursWorked: d("8")},
		payroll.AttendanceRecord{EmployeeID: "e2", Date: payroll.NewTimePoint(2025, time.March, 3), Status: payroll.AttendanceAbsent},
	))

	// WHEN: March attendance for e1 is read
	period := march2025()
	records, err := s.AttendanceInRange(ctx, "e1", period.Start, period.End)
	require.NoError(t, err)

	// THEN: Only the two March records come back, ordered by date
	require.Len(t, records, 2)
	assert.Equal(t, "2025-03-03", records[0].Date.String())
	assert.True(t, records[0].HoursWorked.Equal(d("7.5")))
	assert.Nil(t, records[0].ClockIn)

	assert.Equal(t, payroll.AttendanceLate, records[1].Status)
	require.NotNil(t, records[1].ClockIn)
	assert.True(t, records[1].Hours().Equal(d("8")), "hours fall back to the clock interval")
}

func TestAttendance_SameDayReplaces(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	day := payroll.NewTimePoint(2025, time.March, 3)

	require.NoError(t, s.SaveAttendance(ctx, payroll.AttendanceRecord{EmployeeID: "e1", Date: day, Status: payroll.AttendancePresent, HoursWorked: d("8")}))
	require.NoError(t, s.SaveAttendance(ctx, payroll.AttendanceRecord{EmployeeID: "e1", Date: day, Status: payroll.AttendanceLeave}))

	records, err := s.AttendanceInRange(ctx, "e1", day, day)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, payroll.AttendanceLeave, records[0].Status)
}

func TestAdvances_InRangeByDisbursementDay(t *testing.T) {
	// GIVEN: Advances disbursed before, inside and after March, plus a pending one
	ctx := context.Background()
	s := newStore(t)
	feb := time.Date(2025, time.February, 28, 23, 0, 0, 0, time.UTC)
	apr := time.Date(2025, time.April, 1, 8, 0, 0, 0, time.UTC)
	for _, a := range []payroll.EwaAdvance{
		{ID: "a1", EmployeeID: "e1", Amount: d("1000"), Status: payroll.AdvanceDisbursed, DisbursedAt: &feb},
		{ID: "a2", EmployeeID: "e1", Amount: d("2000"), Status: payroll.AdvanceDisbursed, DisbursedAt: at(10, 12)},
		{ID: "a3", EmployeeID: "e1", Amount: d("500.25"), Status: payroll.AdvanceDisbursed, DisbursedAt: at(31, 18)},
		{ID: "a4", EmployeeID: "e1", Amount: d("4000"), Status: payroll.AdvanceDisbursed, DisbursedAt: &apr},
		{ID: "a5", EmployeeID: "e1", Amount: d("9000"), Status: payroll.AdvancePending},
	} {
		require.NoError(t, s.SaveAdvance(ctx, a))
	}

	// WHEN: March advances are read
	period := march2025()
	advances, err := s.AdvancesInRange(ctx, "e1", period.Start, period.End)
	require.NoError(t, err)

	// THEN: The two March disbursements qualify and sum to 2,500.25
	require.Len(t, advances, 2)
	assert.Equal(t, "a2", advances[0].ID)
	assert.Equal(t, "a3", advances[1].ID)
	assert.True(t, payroll.EwaTotal(advances, "e1", period).Equal(d("2500.25")))
}

func TestCorruptStoredValues_AreReported(t *testing.T) {
	// GIVEN: A file database whose rows were damaged outside the store
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "payroll.db")
	s, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.SaveEmployee(ctx, payroll.Employee{ID: "e1", Name: "Otieno", HourlyRate: d("300"), Active: true}))
	require.NoError(t, s.SaveAttendance(ctx, payroll.AttendanceRecord{
		EmployeeID: "e1", Date: payroll.NewTimePoint(2025, 3, 3), Status: payroll.AttendancePresent,
		ClockIn: at(3, 8), ClockOut: at(3, 17),
	}))
	require.NoError(t, s.SaveAdvance(ctx, payroll.EwaAdvance{
		ID: "a1", EmployeeID: "e1", Amount: d("1000"), Status: payroll.AdvanceDisbursed, DisbursedAt: at(10, 12),
	}))

	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	_, err = raw.ExecContext(ctx, "UPDATE employees SET hourly_rate = 'three hundred' WHERE id = 'e1'")
	require.NoError(t, err)
	_, err = raw.ExecContext(ctx, "UPDATE attendance SET clock_out = 'after lunch' WHERE employee_id = 'e1'")
	require.NoError(t, err)
	_, err = raw.ExecContext(ctx, "UPDATE ewa_advances SET amount = '1,000' WHERE id = 'a1'")
	require.NoError(t, err)

	// WHEN: The rows are read back
	// THEN: Each read fails instead of yielding a zero rate, hours or amount
	_, err = s.ListEmployees(ctx)
	assert.ErrorContains(t, err, "hourly_rate")

	_, err = s.GetEmployee(ctx, "e1")
	assert.Error(t, err)

	period := march2025()
	_, err = s.AttendanceInRange(ctx, "e1", period.Start, period.End)
	assert.ErrorContains(t, err, "clock_out")

	_, err = s.AdvancesInRange(ctx, "e1", period.Start, period.End)
	assert.ErrorContains(t, err, "amount")
}

func TestHolidays_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveHoliday(ctx, "h1", payroll.Holiday{Date: payroll.NewTimePoint(2025, time.May, 1), Name: "Labour Day", Recurring: true}))
	require.NoError(t, s.SaveHoliday(ctx, "h2", payroll.Holiday{Date: payroll.NewTimePoint(2025, time.March, 31), Name: "Idd ul-Fitr"}))

	holidays, err := s.Holidays(ctx)
	require.NoError(t, err)

	require.Len(t, holidays, 2)
	assert.Equal(t, "Idd ul-Fitr", holidays[0].Name)
	assert.True(t, holidays.IsHoliday(payroll.NewTimePoint(2026, time.May, 1)), "recurring holiday repeats yearly")
	assert.False(t, holidays.IsHoliday(payroll.NewTimePoint(2026, time.March, 31)))
}

// =============================================================================
// FINALIZED PAYROLL
// =============================================================================

func TestFinalized_WriteOncePerPeriod(t *testing.T) {
	// GIVEN: March finalized with two lines
	ctx := context.Background()
	s := newStore(t)
	period := march2025()
	require.NoError(t, s.SaveFinalized(ctx, []payroll.FinalizedPayroll{
		finalizedLine("f1", "run-1", period, "e1", "39280"),
		finalizedLine("f2", "run-1", period, "e2", "41000.50"),
	}))

	// WHEN: A second run tries to finalize March again
	err := s.SaveFinalized(ctx, []payroll.FinalizedPayroll{
		finalizedLine("f3", "run-2", period, "e3", "10000"),
	})

	// THEN: The write is rejected and nothing from it was stored
	assert.ErrorIs(t, err, payroll.ErrAlreadyFinalized)
	records, err := s.ListFinalized(ctx, period)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, payroll.RunID("run-1"), records[0].RunID)
	for _, rec := range records {
		assert.NoError(t, rec.Calculation.CheckInvariant())
		assert.True(t, rec.Calculation.SHIF.Equal(d("1375")))
	}

	finalized, err := s.IsFinalized(ctx, period)
	require.NoError(t, err)
	assert.True(t, finalized)
}

func TestFinalized_RejectedBatchLeavesNoTrace(t *testing.T) {
	// GIVEN: March finalized
	ctx := context.Background()
	s := newStore(t)
	march := march2025()
	april := payroll.MonthPeriod(2025, time.April)
	require.NoError(t, s.SaveFinalized(ctx, []payroll.FinalizedPayroll{finalizedLine("f1", "run-1", march, "e1", "100")}))

	// WHEN: A batch covering April and March is written
	err := s.SaveFinalized(ctx, []payroll.FinalizedPayroll{
		finalizedLine("f2", "run-2", april, "e1", "100"),
		finalizedLine("f3", "run-2", march, "e2", "100"),
	})

	// THEN: The whole batch is rejected, April included
	assert.True(t, errors.Is(err, payroll.ErrAlreadyFinalized))
	finalized, err := s.IsFinalized(ctx, april)
	require.NoError(t, err)
	assert.False(t, finalized)
}

func TestFinalized_GetPreservesCalculation(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	line := finalizedLine("f1", "run-1", march2025(), "e1", "39280.55")
	original := d("40000")
	line.Calculation.IsEdited = true
	line.Calculation.OriginalNetPay = &original
	require.NoError(t, s.SaveFinalized(ctx, []payroll.FinalizedPayroll{line}))

	got, err := s.GetFinalized(ctx, "f1")
	require.NoError(t, err)

	assert.Equal(t, "hr-1", got.FinalizedBy)
	assert.Equal(t, "March close", got.Note)
	assert.Equal(t, march2025().Key(), got.Period.Key())
	assert.True(t, got.Calculation.NetPay.Equal(d("39280.55")))
	assert.Equal(t, payroll.Warning{Cause: payroll.ReasonHighDeductions}, got.Calculation.Status)
	assert.True(t, got.Calculation.IsEdited)
	require.NotNil(t, got.Calculation.OriginalNetPay)
	assert.True(t, got.Calculation.OriginalNetPay.Equal(original))
	assert.NoError(t, got.Calculation.CheckInvariant())

	_, err = s.GetFinalized(ctx, "missing")
	assert.ErrorIs(t, err, payroll.ErrFinalizedNotFound)
}

func TestFinalized_PreviousTotalNet(t *testing.T) {
	// GIVEN: January and February finalized
	ctx := context.Background()
	s := newStore(t)
	jan := payroll.MonthPeriod(2025, time.January)
	feb := payroll.MonthPeriod(2025, time.February)
	require.NoError(t, s.SaveFinalized(ctx, []payroll.FinalizedPayroll{finalizedLine("j1", "run-j", jan, "e1", "1000")}))
	require.NoError(t, s.SaveFinalized(ctx, []payroll.FinalizedPayroll{
		finalizedLine("f1", "run-f", feb, "e1", "40000"),
		finalizedLine("f2", "run-f", feb, "e2", "10000.50"),
	}))

	// WHEN: The previous total is asked for March and for January
	total, ok, err := s.PreviousTotalNet(ctx, march2025())
	require.NoError(t, err)
	_, okJan, err := s.PreviousTotalNet(ctx, jan)
	require.NoError(t, err)

	// THEN: March compares with February; January has nothing before it
	assert.True(t, ok)
	assert.True(t, total.Equal(d("50000.50")), "got %s", total)
	assert.False(t, okJan)
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func TestAudit_QueryFilters(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	base := time.Date(2025, time.April, 1, 9, 0, 0, 0, time.UTC)
	entries := []payroll.AuditEntry{
		{ID: "a1", Timestamp: base, ActorID: "system", Action: payroll.AuditPayrollCalculated, RunID: "run-1"},
		{ID: "a2", Timestamp: base.Add(time.Minute), ActorID: "hr-1", Action: payroll.AuditManualAdjustment, RunID: "run-1",
			EmployeeID: "e1", Reason: "bonus", Payload: map[string]any{"net_pay": map[string]any{"before": "40000", "after": "42000"}}},
		{ID: "a3", Timestamp: base.Add(2 * time.Minute), ActorID: "hr-1", Action: payroll.AuditEmployeeExcluded, RunID: "run-1", EmployeeID: "e2"},
		{ID: "a4", Timestamp: base.Add(3 * time.Minute), ActorID: "hr-2", Action: payroll.AuditPayrollCalculated, RunID: "run-2"},
	}
	for _, e := range entries {
		require.NoError(t, s.Append(ctx, e))
	}

	runID := payroll.RunID("run-1")
	actor := "hr-1"
	byRun, err := s.Query(ctx, payroll.AuditFilter{RunID: &runID})
	require.NoError(t, err)
	assert.Len(t, byRun, 3)

	adjustments, err := s.Query(ctx, payroll.AuditFilter{ActorID: &actor, Actions: []payroll.AuditAction{payroll.AuditManualAdjustment}})
	require.NoError(t, err)
	require.Len(t, adjustments, 1)
	assert.Equal(t, "bonus", adjustments[0].Reason)
	assert.Equal(t, payroll.EmployeeID("e1"), adjustments[0].EmployeeID)
	assert.Equal(t, "42000", adjustments[0].Payload["net_pay"].(map[string]any)["after"])

	all, err := s.Query(ctx, payroll.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "a4", all[3].ID)
}

// =============================================================================
// END TO END
// =============================================================================

func TestProcessor_OnSQLite(t *testing.T) {
	// GIVEN: One employee at 300/h with a full March on file and a prior
	// February payroll of 40,000
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveEmployee(ctx, payroll.Employee{
		ID: "e1", Name: "Otieno", Department: "Engineering", HourlyRate: d("300"), Active: true,
	}))
	period := march2025()
	var records []payroll.AttendanceRecord
	for _, day := range period.Days() {
		if !day.IsWeekend() {
			records = append(records, payroll.AttendanceRecord{EmployeeID: "e1", Date: day, Status: payroll.AttendancePresent, HoursWorked: d("8")})
		}
	}
	require.NoError(t, s.SaveAttendance(ctx, records...))
	require.NoError(t, s.SaveFinalized(ctx, []payroll.FinalizedPayroll{
		finalizedLine("f0", "run-0", payroll.MonthPeriod(2025, time.February), "e1", "40000"),
	}))

	p := payroll.NewProcessor(s, nil)
	p.Holidays = s
	p.Payroll = s
	p.Audit = s

	// WHEN: March is calculated
	result, err := p.Calculate(ctx, payroll.CalculateRequest{Period: period, RequestedBy: "hr-1"})
	require.NoError(t, err)

	// THEN: 168 hours give gross 50,400 and net 39,280; the run is audited
	require.Len(t, result.Calculations, 1)
	calc := result.Calculations[0]
	assert.True(t, calc.GrossPay.Equal(d("50400")), "gross %s", calc.GrossPay)
	assert.True(t, calc.NetPay.Equal(d("39280")), "net %s", calc.NetPay)
	require.NotNil(t, result.PreviousNetPay)
	assert.True(t, result.Summary.PeriodComparison.Equal(d("-1.8")), "comparison %s", result.Summary.PeriodComparison)

	runID := result.RunID
	audit, err := s.Query(ctx, payroll.AuditFilter{RunID: &runID})
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, payroll.AuditPayrollCalculated, audit[0].Action)
}
