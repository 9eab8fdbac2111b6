package payroll_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// GROSS PAY
// =============================================================================

func TestGrossPay_RegularAndOvertime(t *testing.T) {
	regime := payroll.DefaultRegime()

	gross, err := regime.GrossPay(d("160"), d("10"), d("300"))

	require.NoError(t, err)
	// 160*300 + 10*300*1.5
	assertDecimal(t, "52500", gross)
}

func TestGrossPay_InvalidRate(t *testing.T) {
	regime := payroll.DefaultRegime()

	for _, rate := range []string{"0", "-1"} {
		_, err := regime.GrossPay(d("160"), d("0"), d(rate))
		assert.ErrorIs(t, err, payroll.ErrInvalidHourlyRate, "rate %s", rate)
	}
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

func TestClassify(t *testing.T) {
	regime := payroll.DefaultRegime()

	cases := []struct {
		name   string
		gross  string
		ewa    string
		total  string
		net    string
		kind   payroll.StatusKind
		reason string
	}{
		{"complete", "50000", "0", "10000", "40000", payroll.StatusComplete, ""},
		{"negative net", "10000", "0", "12000", "-2000", payroll.StatusError, payroll.ReasonNegativeNet},
		{"negative net outranks ewa", "10000", "9000", "12000", "-2000", payroll.StatusError, payroll.ReasonNegativeNet},
		{"ewa above half", "50000", "25001", "30000", "20000", payroll.StatusWarning, payroll.ReasonEwaExceeded},
		{"ewa exactly half", "50000", "25000", "30000", "20000", payroll.StatusComplete, ""},
		{"ewa outranks high deductions", "50000", "30000", "40000", "10000", payroll.StatusWarning, payroll.ReasonEwaExceeded},
		{"deductions above threshold", "50000", "0", "35001", "14999", payroll.StatusWarning, payroll.ReasonHighDeductions},
		{"deductions at threshold", "50000", "0", "35000", "15000", payroll.StatusComplete, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status := regime.Classify(d(tc.gross), d(tc.ewa), d(tc.total), d(tc.net))
			assert.Equal(t, tc.kind, status.Kind())
			assert.Equal(t, tc.reason, status.Reason())
		})
	}
}

func TestAggregate_SevenComponents(t *testing.T) {
	// GIVEN: Gross 50,000 with statutory deductions and all three variable ones
	// WHEN: Aggregating
	// THEN: Total is the sum of all seven components and net = gross - total

	regime := payroll.DefaultRegime()
	gross := d("50000")
	statutory := regime.Statutory(gross)

	res := regime.Aggregate(gross, statutory, payroll.VariableDeductions{
		Ewa:   d("5000"),
		Loan:  d("2000"),
		Other: d("500"),
	})

	assertDecimal(t, "18471", res.Total)
	assertDecimal(t, "31529", res.Net)
	assert.Equal(t, payroll.StatusComplete, res.Status.Kind())
}

// =============================================================================
// EARNED WAGE ACCESS
// =============================================================================

func TestEwaTotal_OnlyDisbursedInsidePeriod(t *testing.T) {
	period := march2025()
	at := func(m time.Month, day int) *time.Time {
		ts := time.Date(2025, m, day, 10, 0, 0, 0, time.UTC)
		return &ts
	}
	advances := []payroll.EwaAdvance{
		{ID: "a1", EmployeeID: "emp-1", Amount: d("1000"), Status: payroll.AdvanceDisbursed, DisbursedAt: at(time.March, 1)},
		{ID: "a2", EmployeeID: "emp-1", Amount: d("2000"), Status: payroll.AdvanceDisbursed, DisbursedAt: at(time.March, 31)},
		{ID: "a3", EmployeeID: "emp-1", Amount: d("4000"), Status: payroll.AdvanceApproved, DisbursedAt: at(time.March, 10)},
		{ID: "a4", EmployeeID: "emp-1", Amount: d("8000"), Status: payroll.AdvanceDisbursed, DisbursedAt: at(time.February, 28)},
		{ID: "a5", EmployeeID: "emp-1", Amount: d("16000"), Status: payroll.AdvanceDisbursed},
		{ID: "a6", EmployeeID: "emp-2", Amount: d("32000"), Status: payroll.AdvanceDisbursed, DisbursedAt: at(time.March, 10)},
	}

	assertDecimal(t, "3000", payroll.EwaTotal(advances, "emp-1", period))
}

func TestLoanDeduction_CappedByBalance(t *testing.T) {
	cases := []struct {
		balance, installment, expected string
	}{
		{"10000", "2500", "2500"},
		{"1000", "2500", "1000"},
		{"0", "2500", "0"},
		{"10000", "0", "0"},
	}
	for _, tc := range cases {
		emp := payroll.Employee{LoanBalance: d(tc.balance), LoanInstallment: d(tc.installment)}
		assertDecimal(t, tc.expected, emp.LoanDeduction(), "balance %s installment %s", tc.balance, tc.installment)
	}
}
