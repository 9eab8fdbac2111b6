/*
statutory.go - Mandatory deductions as pure functions of gross pay

PURPOSE:
  Maps gross pay to the four statutory deductions: housing levy, health
  contribution (SHIF), pension contribution (NSSF) and income tax (PAYE).
  Everything here is deterministic and free of I/O, which is what makes the
  engine testable by worked example.

ORDER OF CALCULATION:
  1. Housing levy, SHIF and NSSF from gross pay (rounded to cents)
  2. Taxable income = gross - (levy + SHIF + NSSF), floored at 0
  3. PAYE = marginal band tax on taxable income - personal relief,
     floored at 0, rounded to whole currency units

WORKED EXAMPLE (gross 50,000):
  levy 750.00, SHIF 1,375.00, NSSF 3,000.00, taxable 44,875.00
  tax = 24,000*0.10 + 8,333*0.25 + 12,542*0.30 = 8,245.85
  PAYE = round(8,245.85 - 2,400) = 5,846

Gross pay of zero or less yields zero everywhere. There are no error cases.
*/
package payroll

import (
	"github.com/shopspring/decimal"
)

// StatutoryDeductions is the statutory part of a pay line.
type StatutoryDeductions struct {
	TaxableIncome decimal.Decimal
	PAYE          decimal.Decimal
	NSSF          decimal.Decimal
	SHIF          decimal.Decimal
	HousingLevy   decimal.Decimal
}

func (s StatutoryDeductions) Total() decimal.Decimal {
	return s.PAYE.Add(s.NSSF).Add(s.SHIF).Add(s.HousingLevy)
}

// Statutory computes all four deductions for gross pay.
func (r TaxRegime) Statutory(gross decimal.Decimal) StatutoryDeductions {
	if !gross.IsPositive() {
		return StatutoryDeductions{}
	}
	levy := r.HousingLevy(gross)
	health := r.Health(gross)
	pension := r.Pension.Contribution(gross)

	taxable := gross.Sub(levy.Add(health).Add(pension))
	if taxable.IsNegative() {
		taxable = decimal.Zero
	}
	taxable = roundMoney(taxable)

	return StatutoryDeductions{
		TaxableIncome: taxable,
		PAYE:          r.IncomeTax(taxable),
		NSSF:          pension,
		SHIF:          health,
		HousingLevy:   levy,
	}
}

func (r TaxRegime) HousingLevy(gross decimal.Decimal) decimal.Decimal {
	if !gross.IsPositive() {
		return decimal.Zero
	}
	return roundMoney(gross.Mul(r.HousingLevyRate))
}

func (r TaxRegime) Health(gross decimal.Decimal) decimal.Decimal {
	if !gross.IsPositive() {
		return decimal.Zero
	}
	return roundMoney(gross.Mul(r.HealthRate))
}

// Contribution applies the pension tiers to gross pay.
func (p PensionRule) Contribution(gross decimal.Decimal) decimal.Decimal {
	switch {
	case !gross.IsPositive():
		return decimal.Zero
	case gross.LessThanOrEqual(p.FloorThreshold):
		return p.FloorAmount
	case gross.LessThanOrEqual(p.CeilingThreshold):
		return roundMoney(gross.Mul(p.Rate))
	default:
		return p.CeilingAmount
	}
}

// IncomeTax applies the marginal bands and personal relief to taxable income.
// The result is never negative and is rounded to whole currency units.
func (r TaxRegime) IncomeTax(taxable decimal.Decimal) decimal.Decimal {
	return decimal.Max(r.BandTax(taxable).Sub(r.PersonalRelief), decimal.Zero).Round(0)
}

// BandTax is the tax before relief: each band taxes only the portion of
// income that falls within it.
func (r TaxRegime) BandTax(taxable decimal.Decimal) decimal.Decimal {
	remaining := taxable
	tax := decimal.Zero
	for _, band := range r.Bands {
		if !remaining.IsPositive() {
			break
		}
		portion := remaining
		if !band.Unbounded() && portion.GreaterThan(band.Limit) {
			portion = band.Limit
		}
		tax = tax.Add(portion.Mul(band.Rate))
		remaining = remaining.Sub(portion)
	}
	return tax
}
