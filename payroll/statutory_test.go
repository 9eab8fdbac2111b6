package payroll_test

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	if !d(expected).Equal(actual) {
		assert.Fail(t, fmt.Sprintf("expected %s, got %s", expected, actual), msgAndArgs...)
	}
}

// =============================================================================
// STATUTORY DEDUCTIONS
// =============================================================================

func TestStatutory_WorkedExample(t *testing.T) {
	// GIVEN: Gross pay of 50,000 under the default regime
	// WHEN: Computing statutory deductions
	// THEN: Every figure matches the worked example

	regime := payroll.DefaultRegime()
	s := regime.Statutory(d("50000"))

	assertDecimal(t, "750", s.HousingLevy)
	assertDecimal(t, "1375", s.SHIF)
	assertDecimal(t, "3000", s.NSSF)
	assertDecimal(t, "44875", s.TaxableIncome)
	assertDecimal(t, "8245.85", regime.BandTax(s.TaxableIncome))
	assertDecimal(t, "5846", s.PAYE)
	assertDecimal(t, "10971", s.Total())
}

func TestStatutory_ZeroGross(t *testing.T) {
	regime := payroll.DefaultRegime()

	for _, gross := range []string{"0", "-100"} {
		s := regime.Statutory(d(gross))
		assertDecimal(t, "0", s.HousingLevy, "gross %s", gross)
		assertDecimal(t, "0", s.SHIF, "gross %s", gross)
		assertDecimal(t, "0", s.NSSF, "gross %s", gross)
		assertDecimal(t, "0", s.PAYE, "gross %s", gross)
		assertDecimal(t, "0", s.TaxableIncome, "gross %s", gross)
	}
}

func TestPension_Tiers(t *testing.T) {
	pension := payroll.DefaultRegime().Pension

	cases := []struct {
		gross    string
		expected string
	}{
		{"5000", "480"},
		{"8000", "480"},
		{"8001", "480.06"},
		{"50000", "3000"},
		{"72000", "4320"},
		{"72001", "4320"},
		{"1000000", "4320"},
	}
	for _, tc := range cases {
		assertDecimal(t, tc.expected, pension.Contribution(d(tc.gross)), "gross %s", tc.gross)
	}
}

func TestIncomeTax_NeverNegative(t *testing.T) {
	// GIVEN: Gross pay low enough that relief exceeds band tax
	// WHEN: Computing PAYE
	// THEN: PAYE is floored at zero

	regime := payroll.DefaultRegime()
	s := regime.Statutory(d("10000"))

	assertDecimal(t, "8975", s.TaxableIncome)
	assertDecimal(t, "0", s.PAYE)

	for _, taxable := range []string{"0", "1", "24000", "32333"} {
		assert.False(t, regime.IncomeTax(d(taxable)).IsNegative(), "taxable %s", taxable)
	}
}

func TestIncomeTax_AllBands(t *testing.T) {
	// GIVEN: Gross pay of 1,000,000, reaching the unbounded band
	// WHEN: Computing PAYE
	// THEN: Each band taxes only its own slice of income

	regime := payroll.DefaultRegime()
	s := regime.Statutory(d("1000000"))

	assertDecimal(t, "15000", s.HousingLevy)
	assertDecimal(t, "27500", s.SHIF)
	assertDecimal(t, "4320", s.NSSF)
	assertDecimal(t, "953180", s.TaxableIncome)
	// 2,400 + 2,083.25 + 140,300.10 + 97,500 + 53,613 = 295,896.35
	assertDecimal(t, "295896.35", regime.BandTax(s.TaxableIncome))
	assertDecimal(t, "293496", s.PAYE)
}

func TestIncomeTax_RoundsToWholeUnits(t *testing.T) {
	regime := payroll.DefaultRegime()

	// 24,000*0.10 + 1,000*0.25 = 2,650.00 ; minus relief 250.00
	assertDecimal(t, "250", regime.IncomeTax(d("25000")))
	// 24,000*0.10 + 2*0.25 = 2,400.50 -> 0.50 rounds half away from zero
	assertDecimal(t, "1", regime.IncomeTax(d("24002")))
}
