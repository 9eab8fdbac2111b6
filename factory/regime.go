/*
Package factory provides JSON to Go tax regime conversion.

PURPOSE:
  Converts JSON regime definitions into payroll.TaxRegime values. Statutory
  rates change by law, not by release: a new budget year is a new JSON file
  (REGIME_FILE), not a code change.

JSON SCHEMA:
  {
    "name": "ke-2025",
    "currency": "KES",
    "housing_levy_rate": "0.015",
    "health_rate": "0.0275",
    "pension": {
      "floor_threshold": "8000",   "floor_amount": "480",
      "rate": "0.06",
      "ceiling_threshold": "72000", "ceiling_amount": "4320"
    },
    "bands": [
      {"limit": "24000", "rate": "0.10"},
      {"limit": "8333",  "rate": "0.25"},
      {"rate": "0.35"}
    ],
    "personal_relief": "2400",
    "overtime_multiplier": "1.5",
    "ewa_warning_ratio": "0.5",
    "deduction_warning_ratio": "0.7"
  }

  Amounts may be JSON strings or numbers. Omitted fields take the value of
  payroll.DefaultRegime().

VALIDATION:
  - every rate and ratio lies in [0, 1]
  - every band but the last has a positive limit; the last has none
  - pension floor threshold <= ceiling threshold, amounts non-negative
  - personal relief >= 0, overtime multiplier >= 1

USAGE:
  f := NewRegimeFactory()
  regime, err := f.ParseRegime(jsonString)

SEE ALSO:
  - payroll/regime.go: TaxRegime type and the default values
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// ErrInvalidRegime is wrapped by every validation failure.
var ErrInvalidRegime = errors.New("invalid tax regime")

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RegimeJSON is the JSON representation of a tax regime.
type RegimeJSON struct {
	Name                  string           `json:"name,omitempty"`
	Currency              string           `json:"currency,omitempty"`
	HousingLevyRate       *decimal.Decimal `json:"housing_levy_rate,omitempty"`
	HealthRate            *decimal.Decimal `json:"health_rate,omitempty"`
	Pension               *PensionJSON     `json:"pension,omitempty"`
	Bands                 []BandJSON       `json:"bands,omitempty"`
	PersonalRelief        *decimal.Decimal `json:"personal_relief,omitempty"`
	OvertimeMultiplier    *decimal.Decimal `json:"overtime_multiplier,omitempty"`
	EwaWarningRatio       *decimal.Decimal `json:"ewa_warning_ratio,omitempty"`
	DeductionWarningRatio *decimal.Decimal `json:"deduction_warning_ratio,omitempty"`
}

type PensionJSON struct {
	FloorThreshold   decimal.Decimal `json:"floor_threshold"`
	FloorAmount      decimal.Decimal `json:"floor_amount"`
	Rate             decimal.Decimal `json:"rate"`
	CeilingThreshold decimal.Decimal `json:"ceiling_threshold"`
	CeilingAmount    decimal.Decimal `json:"ceiling_amount"`
}

// BandJSON is one income tax band. A missing limit marks the final band.
type BandJSON struct {
	Limit *decimal.Decimal `json:"limit,omitempty"`
	Rate  decimal.Decimal  `json:"rate"`
}

// =============================================================================
// REGIME FACTORY
// =============================================================================

// RegimeFactory converts JSON regimes to Go structs.
type RegimeFactory struct{}

func NewRegimeFactory() *RegimeFactory {
	return &RegimeFactory{}
}

// ParseRegime parses and validates a JSON regime.
func (f *RegimeFactory) ParseRegime(jsonStr string) (payroll.TaxRegime, error) {
	return f.ParseRegimeBytes([]byte(jsonStr))
}

func (f *RegimeFactory) ParseRegimeBytes(data []byte) (payroll.TaxRegime, error) {
	var rj RegimeJSON
	if err := json.Unmarshal(data, &rj); err != nil {
		return payroll.TaxRegime{}, fmt.Errorf("parse regime JSON: %w", err)
	}
	return f.FromJSON(rj)
}

// LoadRegimeFile reads a regime from a JSON file.
func (f *RegimeFactory) LoadRegimeFile(path string) (payroll.TaxRegime, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return payroll.TaxRegime{}, fmt.Errorf("read regime file: %w", err)
	}
	return f.ParseRegimeBytes(data)
}

// FromJSON fills omitted fields from the default regime and validates the result.
func (f *RegimeFactory) FromJSON(rj RegimeJSON) (payroll.TaxRegime, error) {
	regime := payroll.DefaultRegime()

	if rj.Name != "" {
		regime.Name = rj.Name
	}
	if rj.Currency != "" {
		regime.Currency = rj.Currency
	}
	setIfPresent(&regime.HousingLevyRate, rj.HousingLevyRate)
	setIfPresent(&regime.HealthRate, rj.HealthRate)
	setIfPresent(&regime.PersonalRelief, rj.PersonalRelief)
	setIfPresent(&regime.OvertimeMultiplier, rj.OvertimeMultiplier)
	setIfPresent(&regime.EwaWarningRatio, rj.EwaWarningRatio)
	setIfPresent(&regime.DeductionWarningRatio, rj.DeductionWarningRatio)

	if rj.Pension != nil {
		regime.Pension = payroll.PensionRule{
			FloorThreshold:   rj.Pension.FloorThreshold,
			FloorAmount:      rj.Pension.FloorAmount,
			Rate:             rj.Pension.Rate,
			CeilingThreshold: rj.Pension.CeilingThreshold,
			CeilingAmount:    rj.Pension.CeilingAmount,
		}
	}
	if rj.Bands != nil {
		regime.Bands = make([]payroll.TaxBand, 0, len(rj.Bands))
		for _, b := range rj.Bands {
			band := payroll.TaxBand{Rate: b.Rate}
			if b.Limit != nil {
				band.Limit = *b.Limit
			}
			regime.Bands = append(regime.Bands, band)
		}
	}

	if err := Validate(regime); err != nil {
		return payroll.TaxRegime{}, err
	}
	return regime, nil
}

// ToJSON renders a regime in the schema ParseRegime accepts.
func (f *RegimeFactory) ToJSON(regime payroll.TaxRegime) (string, error) {
	rj := RegimeJSON{
		Name:                  regime.Name,
		Currency:              regime.Currency,
		HousingLevyRate:       &regime.HousingLevyRate,
		HealthRate:            &regime.HealthRate,
		PersonalRelief:        &regime.PersonalRelief,
		OvertimeMultiplier:    &regime.OvertimeMultiplier,
		EwaWarningRatio:       &regime.EwaWarningRatio,
		DeductionWarningRatio: &regime.DeductionWarningRatio,
		Pension: &PensionJSON{
			FloorThreshold:   regime.Pension.FloorThreshold,
			FloorAmount:      regime.Pension.FloorAmount,
			Rate:             regime.Pension.Rate,
			CeilingThreshold: regime.Pension.CeilingThreshold,
			CeilingAmount:    regime.Pension.CeilingAmount,
		},
	}
	for _, b := range regime.Bands {
		band := BandJSON{Rate: b.Rate}
		if !b.Unbounded() {
			limit := b.Limit
			band.Limit = &limit
		}
		rj.Bands = append(rj.Bands, band)
	}

	data, err := json.MarshalIndent(rj, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks a regime for values the statutory calculation cannot use.
func Validate(r payroll.TaxRegime) error {
	rates := []struct {
		name  string
		value decimal.Decimal
	}{
		{"housing_levy_rate", r.HousingLevyRate},
		{"health_rate", r.HealthRate},
		{"pension.rate", r.Pension.Rate},
		{"ewa_warning_ratio", r.EwaWarningRatio},
		{"deduction_warning_ratio", r.DeductionWarningRatio},
	}
	for _, rate := range rates {
		if !isFraction(rate.value) {
			return fmt.Errorf("%w: %s %s not in [0, 1]", ErrInvalidRegime, rate.name, rate.value)
		}
	}

	if len(r.Bands) == 0 {
		return fmt.Errorf("%w: at least one tax band is required", ErrInvalidRegime)
	}
	last := len(r.Bands) - 1
	for i, b := range r.Bands {
		if !isFraction(b.Rate) {
			return fmt.Errorf("%w: band %d rate %s not in [0, 1]", ErrInvalidRegime, i, b.Rate)
		}
		if i == last {
			if !b.Unbounded() {
				return fmt.Errorf("%w: last band must have no limit", ErrInvalidRegime)
			}
			continue
		}
		if !b.Limit.IsPositive() {
			return fmt.Errorf("%w: band %d needs a positive limit", ErrInvalidRegime, i)
		}
	}

	p := r.Pension
	if p.FloorThreshold.IsNegative() || p.FloorAmount.IsNegative() || p.CeilingAmount.IsNegative() {
		return fmt.Errorf("%w: pension amounts must be non-negative", ErrInvalidRegime)
	}
	if p.FloorThreshold.GreaterThan(p.CeilingThreshold) {
		return fmt.Errorf("%w: pension floor threshold above ceiling threshold", ErrInvalidRegime)
	}
	if r.PersonalRelief.IsNegative() {
		return fmt.Errorf("%w: personal relief must be non-negative", ErrInvalidRegime)
	}
	if r.OvertimeMultiplier.LessThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: overtime multiplier below 1", ErrInvalidRegime)
	}
	if r.Currency == "" {
		return fmt.Errorf("%w: currency is required", ErrInvalidRegime)
	}
	return nil
}

func isFraction(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThanOrEqual(decimal.NewFromInt(1))
}

func setIfPresent(dst *decimal.Decimal, src *decimal.Decimal) {
	if src != nil {
		*dst = *src
	}
}
