/*
deductions.go - Merges statutory and variable deductions into net pay

PURPOSE:
  Adds the variable deductions (earned wage access advances, loan
  repayments, other deductions) to the statutory ones, derives net pay and
  classifies the line.

CLASSIFICATION (first match wins):
  1. net < 0                           -> Failure "Net pay is negative"
  2. ewa > gross * EwaWarningRatio     -> Warning "EWA deductions exceed 50% of gross pay"
  3. total > gross * DeductionWarningRatio
                                       -> Warning "Total deductions exceed threshold of gross pay"
  4. otherwise                         -> Complete
*/
package payroll

import (
	"github.com/shopspring/decimal"
)

type VariableDeductions struct {
	Ewa   decimal.Decimal
	Loan  decimal.Decimal
	Other decimal.Decimal
}

func (v VariableDeductions) Total() decimal.Decimal {
	return v.Ewa.Add(v.Loan).Add(v.Other)
}

type DeductionResult struct {
	Total  decimal.Decimal
	Net    decimal.Decimal
	Status Status
}

// Aggregate totals all seven components and classifies the result.
func (r TaxRegime) Aggregate(gross decimal.Decimal, statutory StatutoryDeductions, variable VariableDeductions) DeductionResult {
	total := roundMoney(statutory.Total().Add(variable.Total()))
	net := gross.Sub(total)
	return DeductionResult{
		Total:  total,
		Net:    net,
		Status: r.Classify(gross, variable.Ewa, total, net),
	}
}

// Classify applies the status rules; an error outranks any warning.
func (r TaxRegime) Classify(gross, ewa, total, net decimal.Decimal) Status {
	if net.IsNegative() {
		return Failure{Cause: ReasonNegativeNet}
	}
	if ewa.GreaterThan(gross.Mul(r.EwaWarningRatio)) {
		return Warning{Cause: ReasonEwaExceeded}
	}
	if total.GreaterThan(gross.Mul(r.DeductionWarningRatio)) {
		return Warning{Cause: ReasonHighDeductions}
	}
	return Complete{}
}

// EwaTotal sums the advances that qualify for the period.
func EwaTotal(advances []EwaAdvance, employeeID EmployeeID, period Period) decimal.Decimal {
	total := decimal.Zero
	for _, adv := range advances {
		if adv.EmployeeID == employeeID && adv.QualifiesFor(period) {
			total = total.Add(adv.Amount)
		}
	}
	return roundMoney(total)
}
