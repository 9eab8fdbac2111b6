package payroll

import (
	"sort"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// BuildSummary aggregates a set of calculations. previousNet is the total
// net pay of the prior finalized period, or nil when there is none.
//
// Percentages are rounded to two places and are zero whenever their
// denominator is zero.
func BuildSummary(calcs []PayrollCalculation, previousNet *decimal.Decimal) PayrollSummary {
	summary := PayrollSummary{
		TotalGrossPay:      decimal.Zero,
		TotalDeductions:    decimal.Zero,
		TotalNetPay:        decimal.Zero,
		TotalEwaDeductions: decimal.Zero,
		TotalStatutory:     decimal.Zero,
		EmployeeCount:      len(calcs),
		StatusCounts: map[StatusKind]int{
			StatusComplete: 0,
			StatusWarning:  0,
			StatusError:    0,
		},
		PeriodComparison: decimal.Zero,
	}

	departments := make(map[string]*DepartmentSummary)
	for i := range calcs {
		c := &calcs[i]
		summary.TotalGrossPay = summary.TotalGrossPay.Add(c.GrossPay)
		summary.TotalDeductions = summary.TotalDeductions.Add(c.TotalDeductions)
		summary.TotalNetPay = summary.TotalNetPay.Add(c.NetPay)
		summary.TotalEwaDeductions = summary.TotalEwaDeductions.Add(c.EwaDeductions)
		summary.TotalStatutory = summary.TotalStatutory.Add(c.StatutoryTotal())
		summary.StatusCounts[KindOf(c.Status)]++

		dept, ok := departments[c.Department]
		if !ok {
			dept = &DepartmentSummary{Department: c.Department, TotalAmount: decimal.Zero}
			departments[c.Department] = dept
		}
		dept.EmployeeCount++
		dept.TotalAmount = dept.TotalAmount.Add(c.NetPay)
	}

	summary.DepartmentSummary = make([]DepartmentSummary, 0, len(departments))
	for _, dept := range departments {
		dept.PercentageOfTotal = percentOf(dept.TotalAmount, summary.TotalNetPay)
		summary.DepartmentSummary = append(summary.DepartmentSummary, *dept)
	}
	sort.Slice(summary.DepartmentSummary, func(i, j int) bool {
		return summary.DepartmentSummary[i].Department < summary.DepartmentSummary[j].Department
	})

	if previousNet != nil {
		summary.PeriodComparison = percentOf(summary.TotalNetPay.Sub(*previousNet), *previousNet)
	}
	return summary
}

func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).Div(whole).Round(2)
}
