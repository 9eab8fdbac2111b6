/*
regime.go - Statutory parameters of the tax regime

PURPOSE:
  Holds every number the statutory calculation depends on: income tax
  bands, personal relief, pension tiers, flat contribution rates, the
  overtime multiplier and the classification thresholds. The engine never
  hardcodes these outside DefaultRegime, so a regime can be loaded from JSON
  (see factory/regime.go) when rates change.

DEFAULT REGIME:
  Housing levy     1.5% of gross
  Health (SHIF)    2.75% of gross
  Pension (NSSF)   480 up to 8,000; 6% up to 72,000; capped at 4,320
  PAYE bands       24,000 @10%, 8,333 @25%, 467,667 @30%, 300,000 @32.5%, rest @35%
  Personal relief  2,400
  Overtime         1.5x hourly rate
  Warnings         EWA above 50% of gross; total deductions above 70% of gross

SEE ALSO:
  - statutory.go: the calculation using these parameters
  - factory/regime.go: JSON loading and validation
*/
package payroll

import (
	"github.com/shopspring/decimal"
)

// TaxBand is a marginal income tax bracket. Bands are consumed in order,
// each taxing at most Limit of the remaining income. A zero Limit marks the
// final, unbounded band.
type TaxBand struct {
	Limit decimal.Decimal
	Rate  decimal.Decimal
}

func (b TaxBand) Unbounded() bool { return b.Limit.IsZero() }

// PensionRule is the tiered pension contribution.
//
//	gross <= 0                    -> 0
//	gross <= FloorThreshold       -> FloorAmount
//	gross <= CeilingThreshold     -> gross * Rate
//	gross >  CeilingThreshold     -> CeilingAmount
type PensionRule struct {
	FloorThreshold   decimal.Decimal
	FloorAmount      decimal.Decimal
	Rate             decimal.Decimal
	CeilingThreshold decimal.Decimal
	CeilingAmount    decimal.Decimal
}

type TaxRegime struct {
	Name     string
	Currency string

	HousingLevyRate decimal.Decimal
	HealthRate      decimal.Decimal
	Pension         PensionRule
	Bands           []TaxBand
	PersonalRelief  decimal.Decimal

	OvertimeMultiplier decimal.Decimal

	// Classification thresholds, as fractions of gross pay.
	EwaWarningRatio       decimal.Decimal
	DeductionWarningRatio decimal.Decimal
}

// DefaultRegime returns the statutory regime the engine ships with.
func DefaultRegime() TaxRegime {
	return TaxRegime{
		Name:            "default",
		Currency:        "KES",
		HousingLevyRate: decimal.RequireFromString("0.015"),
		HealthRate:      decimal.RequireFromString("0.0275"),
		Pension: PensionRule{
			FloorThreshold:   decimal.NewFromInt(8000),
			FloorAmount:      decimal.NewFromInt(480),
			Rate:             decimal.RequireFromString("0.06"),
			CeilingThreshold: decimal.NewFromInt(72000),
			CeilingAmount:    decimal.NewFromInt(4320),
		},
		Bands: []TaxBand{
			{Limit: decimal.NewFromInt(24000), Rate: decimal.RequireFromString("0.10")},
			{Limit: decimal.NewFromInt(8333), Rate: decimal.RequireFromString("0.25")},
			{Limit: decimal.NewFromInt(467667), Rate: decimal.RequireFromString("0.30")},
			{Limit: decimal.NewFromInt(300000), Rate: decimal.RequireFromString("0.325")},
			{Rate: decimal.RequireFromString("0.35")},
		},
		PersonalRelief:        decimal.NewFromInt(2400),
		OvertimeMultiplier:    decimal.RequireFromString("1.5"),
		EwaWarningRatio:       decimal.RequireFromString("0.5"),
		DeductionWarningRatio: decimal.RequireFromString("0.7"),
	}
}
