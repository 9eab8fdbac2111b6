package payroll_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func ptr(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

// line builds a consistent calculation: statutory 12,000 out of gross 52,000.
func line(id payroll.EmployeeID, dept string) payroll.PayrollCalculation {
	return payroll.PayrollCalculation{
		EmployeeID:      id,
		Name:            "Employee " + string(id),
		Department:      dept,
		HoursWorked:     d("168"),
		HourlyRate:      d("309.52"),
		GrossPay:        d("52000"),
		PAYE:            d("8000"),
		NSSF:            d("2000"),
		SHIF:            d("1000"),
		HousingLevy:     d("1000"),
		TotalDeductions: d("12000"),
		NetPay:          d("40000"),
		Status:          payroll.Complete{},
	}
}

func newTestSession(m *store.Memory, calcs ...payroll.PayrollCalculation) *payroll.Session {
	result := &payroll.BatchResult{
		RunID:        "run-1",
		Period:       march2025(),
		Calculations: calcs,
	}
	return payroll.NewSession(result, payroll.WithAuditLog(m))
}

// =============================================================================
// MANUAL ADJUSTMENTS
// =============================================================================

func TestAdjust_OriginalNetPayCapturedOnce(t *testing.T) {
	// GIVEN: A line with net pay 40,000
	// WHEN: Net pay is edited to 42,000 and then to 41,000
	// THEN: OriginalNetPay stays 40,000 and totals remain consistent

	ctx := context.Background()
	s := newTestSession(store.NewMemory(), line("e1", "Ops"))

	calc, _, err := s.Adjust(ctx, payroll.Adjustment{EmployeeID: "e1", NetPay: ptr("42000"), Reason: "missed allowance"})
	require.NoError(t, err)
	assert.True(t, calc.IsEdited)
	require.NotNil(t, calc.OriginalNetPay)
	assertDecimal(t, "40000", *calc.OriginalNetPay)
	assertDecimal(t, "42000", calc.NetPay)
	assert.NoError(t, calc.CheckInvariant())

	calc, summary, err := s.Adjust(ctx, payroll.Adjustment{EmployeeID: "e1", NetPay: ptr("41000"), Reason: "allowance corrected"})
	require.NoError(t, err)
	assertDecimal(t, "40000", *calc.OriginalNetPay)
	assertDecimal(t, "41000", calc.NetPay)
	assertDecimal(t, "-1000", calc.OtherDeductions)
	assertDecimal(t, "11000", calc.TotalDeductions)
	assert.NoError(t, calc.CheckInvariant())

	assertDecimal(t, "41000", summary.TotalNetPay)
}

func TestAdjust_StatutoryFieldsNeverRecomputed(t *testing.T) {
	// GIVEN: A line with gross 52,000
	// WHEN: Gross pay is raised to 60,000
	// THEN: Statutory figures are untouched and net is re-derived

	s := newTestSession(store.NewMemory(), line("e1", "Ops"))

	calc, summary, err := s.Adjust(context.Background(), payroll.Adjustment{EmployeeID: "e1", GrossPay: ptr("60000"), Reason: "bonus"})

	require.NoError(t, err)
	assertDecimal(t, "8000", calc.PAYE)
	assertDecimal(t, "2000", calc.NSSF)
	assertDecimal(t, "1000", calc.SHIF)
	assertDecimal(t, "1000", calc.HousingLevy)
	assertDecimal(t, "12000", calc.TotalDeductions)
	assertDecimal(t, "48000", calc.NetPay)
	assert.NoError(t, calc.CheckInvariant())
	assertDecimal(t, "60000", summary.TotalGrossPay)
}

func TestAdjust_EwaEditReclassifies(t *testing.T) {
	s := newTestSession(store.NewMemory(), line("e1", "Ops"))

	calc, summary, err := s.Adjust(context.Background(), payroll.Adjustment{EmployeeID: "e1", EwaDeductions: ptr("30000"), Reason: "late advance"})

	require.NoError(t, err)
	assertDecimal(t, "42000", calc.TotalDeductions)
	assertDecimal(t, "10000", calc.NetPay)
	assert.Equal(t, payroll.Warning{Cause: payroll.ReasonEwaExceeded}, calc.Status)
	assert.Equal(t, 1, summary.StatusCounts[payroll.StatusWarning])
	assertDecimal(t, "30000", summary.TotalEwaDeductions)
}

func TestAdjust_Rejections(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(store.NewMemory(), line("e1", "Ops"))

	_, _, err := s.Adjust(ctx, payroll.Adjustment{EmployeeID: "e1", NetPay: ptr("1")})
	assert.ErrorIs(t, err, payroll.ErrReasonRequired)

	_, _, err = s.Adjust(ctx, payroll.Adjustment{EmployeeID: "e1", Reason: "nothing"})
	assert.ErrorIs(t, err, payroll.ErrEmptyAdjustment)

	_, _, err = s.Adjust(ctx, payroll.Adjustment{EmployeeID: "e1", GrossPay: ptr("-1"), Reason: "typo"})
	assert.ErrorIs(t, err, payroll.ErrNegativeAmount)

	_, _, err = s.Adjust(ctx, payroll.Adjustment{EmployeeID: "ghost", NetPay: ptr("1"), Reason: "typo"})
	assert.ErrorIs(t, err, payroll.ErrEmployeeNotFound)
	assert.True(t, payroll.IsNotFound(err))

	calc, err := s.Calculation("e1")
	require.NoError(t, err)
	assert.False(t, calc.IsEdited, "rejected adjustments leave the line untouched")
}

func TestAdjust_RecordsAudit(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	s := newTestSession(m, line("e1", "Ops"))

	_, _, err := s.Adjust(ctx, payroll.Adjustment{EmployeeID: "e1", GrossPay: ptr("53000"), Reason: "shift premium", ActorID: "hr-7"})
	require.NoError(t, err)

	entries, err := m.Query(ctx, payroll.AuditFilter{Actions: []payroll.AuditAction{payroll.AuditManualAdjustment}})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hr-7", entries[0].ActorID)
	assert.Equal(t, "shift premium", entries[0].Reason)
	assert.Equal(t, payroll.RunID("run-1"), entries[0].RunID)
	assert.Equal(t, map[string]string{"before": "52000", "after": "53000"}, entries[0].Payload["gross_pay"])
	assert.NotContains(t, entries[0].Payload, "ewa_deductions")
}

func TestSession_CopiesAreIndependent(t *testing.T) {
	s := newTestSession(store.NewMemory(), line("e1", "Ops"))

	calcs := s.Calculations()
	calcs[0].NetPay = d("1")

	calc, err := s.Calculation("e1")
	require.NoError(t, err)
	assertDecimal(t, "40000", calc.NetPay)
}

// =============================================================================
// EXCLUSION AND FINALIZATION
// =============================================================================

func TestFinalize_RefusesUnresolvedErrors(t *testing.T) {
	// GIVEN: One complete line and one failed line
	// WHEN: Finalizing before and after excluding the failed line
	// THEN: The first attempt is refused, the second persists one record

	ctx := context.Background()
	m := store.NewMemory()
	failed := line("e2", "Ops")
	failed.Status = payroll.Failure{Cause: payroll.ReasonNegativeNet}
	s := newTestSession(m, line("e1", "Ops"), failed)

	_, err := s.Finalize(ctx, m, payroll.FinalizeRequest{By: "hr-1"})
	assert.ErrorIs(t, err, payroll.ErrUnresolvedErrors)
	assert.False(t, s.Closed())

	summary, err := s.Exclude(ctx, "e2", "settled manually", "hr-1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.EmployeeCount)

	records, err := s.Finalize(ctx, m, payroll.FinalizeRequest{By: "hr-1", Note: "March payroll"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, payroll.EmployeeID("e1"), records[0].Calculation.EmployeeID)
	assert.Equal(t, "March payroll", records[0].Note)
	assert.NotEmpty(t, records[0].ID)
	assert.True(t, s.Closed())

	stored, err := m.ListFinalized(ctx, march2025())
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestFinalize_ClosesSession(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	s := newTestSession(m, line("e1", "Ops"))

	_, err := s.Finalize(ctx, m, payroll.FinalizeRequest{By: "hr-1"})
	require.NoError(t, err)

	_, _, err = s.Adjust(ctx, payroll.Adjustment{EmployeeID: "e1", NetPay: ptr("1"), Reason: "late"})
	assert.ErrorIs(t, err, payroll.ErrSessionClosed)
	_, err = s.Exclude(ctx, "e1", "late", "hr-1")
	assert.ErrorIs(t, err, payroll.ErrSessionClosed)
	_, err = s.Finalize(ctx, m, payroll.FinalizeRequest{By: "hr-1"})
	assert.ErrorIs(t, err, payroll.ErrSessionClosed)
	assert.True(t, payroll.IsConflict(err))
}

func TestFinalize_RefusesEmptySet(t *testing.T) {
	// GIVEN: A session whose only line was excluded
	// WHEN: Finalizing it
	// THEN: Nothing is written, the period stays open, the session too

	ctx := context.Background()
	m := store.NewMemory()
	s := newTestSession(m, line("e1", "Ops"))
	_, err := s.Exclude(ctx, "e1", "paid off-cycle", "hr-1")
	require.NoError(t, err)

	records, err := s.Finalize(ctx, m, payroll.FinalizeRequest{By: "hr-1"})

	assert.ErrorIs(t, err, payroll.ErrEmptyPayroll)
	assert.True(t, payroll.IsConflict(err))
	assert.Empty(t, records)
	assert.False(t, s.Closed())

	finalized, err := m.IsFinalized(ctx, march2025())
	require.NoError(t, err)
	assert.False(t, finalized)

	empty := newTestSession(m)
	_, err = empty.Finalize(ctx, m, payroll.FinalizeRequest{By: "hr-1"})
	assert.ErrorIs(t, err, payroll.ErrEmptyPayroll)
}

func TestFinalize_IdempotentPerPeriod(t *testing.T) {
	// GIVEN: A period finalized by one session
	// WHEN: A second session over the same period finalizes
	// THEN: The store rejects it and the second session stays open

	ctx := context.Background()
	m := store.NewMemory()

	first := newTestSession(m, line("e1", "Ops"))
	_, err := first.Finalize(ctx, m, payroll.FinalizeRequest{By: "hr-1"})
	require.NoError(t, err)

	second := newTestSession(m, line("e1", "Ops"))
	_, err = second.Finalize(ctx, m, payroll.FinalizeRequest{By: "hr-2"})
	assert.ErrorIs(t, err, payroll.ErrAlreadyFinalized)
	assert.False(t, second.Closed())

	stored, err := m.ListFinalized(ctx, march2025())
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	entries, err := m.Query(ctx, payroll.AuditFilter{Actions: []payroll.AuditAction{payroll.AuditPayrollFinalized}})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFinalize_RecordsAreImmutable(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	s := newTestSession(m, line("e1", "Ops"))
	_, _, err := s.Adjust(ctx, payroll.Adjustment{EmployeeID: "e1", NetPay: ptr("41000"), Reason: "allowance"})
	require.NoError(t, err)

	records, err := s.Finalize(ctx, m, payroll.FinalizeRequest{By: "hr-1"})
	require.NoError(t, err)
	*records[0].Calculation.OriginalNetPay = d("1")

	stored, err := m.GetFinalized(ctx, records[0].ID)
	require.NoError(t, err)
	assertDecimal(t, "40000", *stored.Calculation.OriginalNetPay)
	assert.WithinDuration(t, time.Now(), stored.FinalizedAt, time.Minute)
}
