package export_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/warp/payroll-engine/export"
	"github.com/warp/payroll-engine/payroll"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestFormatAmount(t *testing.T) {
	r := export.NewPayslipRenderer("Acme Ltd", "KES")

	assert.Equal(t, "KES 1,234,567.50", r.FormatAmount(d("1234567.5")))
	assert.Equal(t, "KES 39,280.00", r.FormatAmount(d("39280")))
	assert.Equal(t, "KES 0.01", r.FormatAmount(d("0.005")))
	assert.Equal(t, "KES -1,000.00", r.FormatAmount(d("-1000")))
}

func TestFormatAmount_Locale(t *testing.T) {
	// GIVEN: A German renderer without currency
	r := export.NewPayslipRendererFor("Acme GmbH", "", language.German)

	// THEN: Grouping and decimal separators follow the locale
	assert.Equal(t, "1.234.567,50", r.FormatAmount(d("1234567.5")))
}

func TestRender_WritesPDF(t *testing.T) {
	// GIVEN: An edited finalized record with every deduction present
	original := d("40000")
	rec := payroll.FinalizedPayroll{
		ID:     "f1",
		RunID:  "run-1",
		Period: payroll.MonthPeriod(2025, time.March),
		Calculation: payroll.PayrollCalculation{
			EmployeeID:      "e1",
			EmployeeNumber:  "EMP-001",
			Name:            "Zoë Wanjiru",
			Department:      "Engineering",
			Position:        "Engineer",
			HoursWorked:     d("168"),
			OvertimeHours:   d("10"),
			HourlyRate:      d("300"),
			GrossPay:        d("54900"),
			PAYE:            d("7000"),
			NSSF:            d("3294"),
			SHIF:            d("1510.50"),
			HousingLevy:     d("823.50"),
			EwaDeductions:   d("3000"),
			LoanDeductions:  d("1000"),
			OtherDeductions: d("-1000"),
			TotalDeductions: d("15628"),
			NetPay:          d("39272"),
			Status:          payroll.Complete{},
			IsEdited:        true,
			OriginalNetPay:  &original,
		},
		FinalizedAt: time.Date(2025, time.April, 1, 9, 30, 0, 0, time.UTC),
		FinalizedBy: "hr-1",
		Note:        "Bonus credited",
	}
	require.NoError(t, rec.Calculation.CheckInvariant())

	// WHEN: The payslip is rendered
	var buf bytes.Buffer
	err := export.NewPayslipRenderer("Acme Ltd", "KES").Render(&buf, rec)

	// THEN: A PDF document is written
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Greater(t, buf.Len(), 500)
}

func TestRender_MinimalRecord(t *testing.T) {
	rec := payroll.FinalizedPayroll{
		Period:      payroll.MonthPeriod(2025, time.February),
		Calculation: payroll.PayrollCalculation{EmployeeID: "e2", Name: "Otieno"},
	}

	var buf bytes.Buffer
	require.NoError(t, export.NewPayslipRenderer("Acme Ltd", "").Render(&buf, rec))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}
