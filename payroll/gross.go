package payroll

import (
	"github.com/shopspring/decimal"
)

// GrossPay computes hours*rate + overtime*rate*multiplier, rounded to cents.
// A non-positive rate is an error: a guessed rate would misstate pay.
func (r TaxRegime) GrossPay(hours, overtime, rate decimal.Decimal) (decimal.Decimal, error) {
	if !rate.IsPositive() {
		return decimal.Zero, ErrInvalidHourlyRate
	}
	if hours.IsNegative() || overtime.IsNegative() {
		return decimal.Zero, ErrNegativeHours
	}
	regular := hours.Mul(rate)
	extra := overtime.Mul(rate).Mul(r.OvertimeMultiplier)
	return roundMoney(regular.Add(extra)), nil
}
