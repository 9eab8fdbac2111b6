/*
Package payroll provides the payroll calculation engine.

PURPOSE:
  Turns attendance, hourly rates and variable deductions into one pay line
  per employee per period, in small pure steps: hours, gross, statutory
  deductions, variable deductions, status.

KEY CONCEPTS IN THIS FILE (types.go):
  - Employee, AttendanceRecord, EwaAdvance: inputs supplied by collaborators
  - PayrollCalculation: one computed pay line per employee per run
  - PayrollSummary: aggregate totals of a run, grouped by department
  - Type-safe identifiers for employees and runs

DESIGN PRINCIPLES:
  1. Precision: all money and hours use decimal.Decimal, never float64
  2. Consistency: TotalDeductions and NetPay are always derived from their
     components, including after manual edits
  3. Auditability: an edited line keeps the net pay it had before the first edit

USAGE:
  regime := payroll.DefaultRegime()
  statutory := regime.Statutory(decimal.NewFromInt(50000))
  // statutory.PAYE == 5846

SEE ALSO:
  - statutory.go: PAYE, NSSF, SHIF and housing levy
  - processor.go: background batch over many employees
  - session.go: review stage, manual adjustments and finalization
*/
package payroll

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type RunID string

// =============================================================================
// EMPLOYEE - Consumed from the persistence collaborator
// =============================================================================

type Employee struct {
	ID             EmployeeID
	EmployeeNumber string
	Name           string
	Department     string
	Position       string
	HourlyRate     decimal.Decimal
	Active         bool

	// Outstanding loan and the installment recovered each period.
	LoanBalance     decimal.Decimal
	LoanInstallment decimal.Decimal
}

// HasValidRate reports whether gross pay can be computed for the employee.
func (e Employee) HasValidRate() bool {
	return e.HourlyRate.IsPositive()
}

// LoanDeduction is the installment for the period, capped by the outstanding
// balance and never negative.
func (e Employee) LoanDeduction() decimal.Decimal {
	if !e.LoanInstallment.IsPositive() || !e.LoanBalance.IsPositive() {
		return decimal.Zero
	}
	return decimal.Min(e.LoanInstallment, e.LoanBalance)
}

// =============================================================================
// ATTENDANCE - Consumed from the attendance collaborator
// =============================================================================

type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceLate    AttendanceStatus = "late"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLeave   AttendanceStatus = "leave"
)

// Paid reports whether hours on a record with this status count toward pay.
func (s AttendanceStatus) Paid() bool {
	return s == AttendancePresent || s == AttendanceLate
}

func ParseAttendanceStatus(s string) (AttendanceStatus, error) {
	switch st := AttendanceStatus(s); st {
	case AttendancePresent, AttendanceLate, AttendanceAbsent, AttendanceLeave:
		return st, nil
	default:
		return "", fmt.Errorf("unknown attendance status %q", s)
	}
}

type AttendanceRecord struct {
	EmployeeID  EmployeeID
	Date        TimePoint
	ClockIn     *time.Time
	ClockOut    *time.Time
	Status      AttendanceStatus
	HoursWorked decimal.Decimal
}

// Hours returns the recorded hours, falling back to the clock interval when
// no hours were recorded but both clock times are present.
func (r AttendanceRecord) Hours() decimal.Decimal {
	if !r.HoursWorked.IsZero() {
		return r.HoursWorked
	}
	if r.ClockIn == nil || r.ClockOut == nil || !r.ClockOut.After(*r.ClockIn) {
		return decimal.Zero
	}
	minutes := decimal.NewFromInt(int64(r.ClockOut.Sub(*r.ClockIn) / time.Minute))
	return minutes.Div(decimal.NewFromInt(60)).Round(2)
}

// =============================================================================
// EARNED WAGE ACCESS - Advances deducted from the period's pay
// =============================================================================

type AdvanceStatus string

const (
	AdvancePending   AdvanceStatus = "pending"
	AdvanceApproved  AdvanceStatus = "approved"
	AdvanceDisbursed AdvanceStatus = "disbursed"
	AdvanceRejected  AdvanceStatus = "rejected"
)

type EwaAdvance struct {
	ID          string
	EmployeeID  EmployeeID
	Amount      decimal.Decimal
	Status      AdvanceStatus
	DisbursedAt *time.Time
}

// QualifiesFor reports whether the advance is deducted in the given period:
// it must be disbursed, and disbursed inside the period.
func (a EwaAdvance) QualifiesFor(p Period) bool {
	if a.Status != AdvanceDisbursed || a.DisbursedAt == nil {
		return false
	}
	return p.Contains(TimePointOf(*a.DisbursedAt))
}

// =============================================================================
// PAYROLL CALCULATION - One pay line per employee per run
// =============================================================================

type PayrollCalculation struct {
	EmployeeID     EmployeeID
	EmployeeNumber string
	Name           string
	Department     string
	Position       string

	HoursWorked   decimal.Decimal
	OvertimeHours decimal.Decimal
	HourlyRate    decimal.Decimal

	GrossPay        decimal.Decimal
	TaxableIncome   decimal.Decimal
	PAYE            decimal.Decimal
	NSSF            decimal.Decimal
	SHIF            decimal.Decimal
	HousingLevy     decimal.Decimal
	EwaDeductions   decimal.Decimal
	LoanDeductions  decimal.Decimal
	OtherDeductions decimal.Decimal
	TotalDeductions decimal.Decimal
	NetPay          decimal.Decimal

	Status Status

	IsEdited       bool
	OriginalNetPay *decimal.Decimal
}

// StatutoryTotal is PAYE + NSSF + SHIF + housing levy.
func (c *PayrollCalculation) StatutoryTotal() decimal.Decimal {
	return c.PAYE.Add(c.NSSF).Add(c.SHIF).Add(c.HousingLevy)
}

// componentTotal sums the seven deduction components.
func (c *PayrollCalculation) componentTotal() decimal.Decimal {
	return c.StatutoryTotal().Add(c.EwaDeductions).Add(c.LoanDeductions).Add(c.OtherDeductions)
}

// CheckInvariant verifies that totals agree with their components.
func (c *PayrollCalculation) CheckInvariant() error {
	total := c.componentTotal()
	if !total.Equal(c.TotalDeductions) {
		return &InvariantError{EmployeeID: c.EmployeeID, Field: "total_deductions", Expected: total, Actual: c.TotalDeductions}
	}
	net := c.GrossPay.Sub(c.TotalDeductions)
	if !net.Equal(c.NetPay) {
		return &InvariantError{EmployeeID: c.EmployeeID, Field: "net_pay", Expected: net, Actual: c.NetPay}
	}
	return nil
}

// Clone returns a copy that shares no pointers with c.
func (c PayrollCalculation) Clone() PayrollCalculation {
	if c.OriginalNetPay != nil {
		original := *c.OriginalNetPay
		c.OriginalNetPay = &original
	}
	return c
}

// =============================================================================
// PAYROLL SUMMARY - Aggregate of one run
// =============================================================================

type DepartmentSummary struct {
	Department        string
	EmployeeCount     int
	TotalAmount       decimal.Decimal // net pay of the department
	PercentageOfTotal decimal.Decimal
}

type PayrollSummary struct {
	TotalGrossPay      decimal.Decimal
	TotalDeductions    decimal.Decimal
	TotalNetPay        decimal.Decimal
	TotalEwaDeductions decimal.Decimal
	TotalStatutory     decimal.Decimal
	EmployeeCount      int
	StatusCounts       map[StatusKind]int
	DepartmentSummary  []DepartmentSummary

	// Percentage change of total net pay against the previous finalized
	// period. Zero when there is nothing to compare with.
	PeriodComparison decimal.Decimal
}

// =============================================================================
// FINALIZED PAYROLL - Immutable record handed to persistence
// =============================================================================

type FinalizedPayroll struct {
	ID          string
	RunID       RunID
	Period      Period
	Calculation PayrollCalculation
	FinalizedAt time.Time
	FinalizedBy string
	Note        string
}

// roundMoney rounds to cents.
func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
