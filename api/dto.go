/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the payroll model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts are decimal.Decimal, which marshals as a JSON string ("39280.5").
  Clients must not round-trip amounts through floating point.

VALIDATION:
  Request types carry go-playground/validator struct tags; handlers call
  decode before touching the payroll engine. Rules that need
  the engine (period order, session state) stay in the engine.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// REQUESTS
// =============================================================================

// CalculateRequest starts a payroll run.
type CalculateRequest struct {
	PeriodStart     string                     `json:"period_start" validate:"required,datetime=2006-01-02"`
	PeriodEnd       string                     `json:"period_end" validate:"required,datetime=2006-01-02"`
	EmployeeIDs     []string                   `json:"employee_ids,omitempty" validate:"omitempty,dive,required"`
	Excluded        []string                   `json:"excluded,omitempty" validate:"omitempty,dive,required"`
	Overtime        map[string]decimal.Decimal `json:"overtime,omitempty"`
	OtherDeductions map[string]decimal.Decimal `json:"other_deductions,omitempty"`
	RequestedBy     string                     `json:"requested_by,omitempty" validate:"omitempty,max=100"`
}

// AdjustmentRequest overrides fields of one pay line. Omitted fields are unchanged.
type AdjustmentRequest struct {
	EmployeeID    string           `json:"employee_id" validate:"required"`
	GrossPay      *decimal.Decimal `json:"gross_pay,omitempty"`
	HoursWorked   *decimal.Decimal `json:"hours_worked,omitempty"`
	OvertimeHours *decimal.Decimal `json:"overtime_hours,omitempty"`
	EwaDeductions *decimal.Decimal `json:"ewa_deductions,omitempty"`
	NetPay        *decimal.Decimal `json:"net_pay,omitempty"`
	Reason        string           `json:"reason" validate:"required,max=500"`
	ActorID       string           `json:"actor_id,omitempty" validate:"omitempty,max=100"`
}

type ExclusionRequest struct {
	EmployeeID string `json:"employee_id" validate:"required"`
	Reason     string `json:"reason" validate:"required,max=500"`
	ActorID    string `json:"actor_id,omitempty" validate:"omitempty,max=100"`
}

type RecalculateRequest struct {
	RequestedBy string `json:"requested_by,omitempty" validate:"omitempty,max=100"`
}

type FinalizeRequest struct {
	Note string `json:"note,omitempty" validate:"omitempty,max=1000"`
	By   string `json:"by,omitempty" validate:"omitempty,max=100"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// toCalculateRequest converts the request; dates were validated already.
func (req CalculateRequest) toCalculateRequest() (payroll.CalculateRequest, error) {
	start, err := payroll.ParseTimePoint(req.PeriodStart)
	if err != nil {
		return payroll.CalculateRequest{}, err
	}
	end, err := payroll.ParseTimePoint(req.PeriodEnd)
	if err != nil {
		return payroll.CalculateRequest{}, err
	}

	out := payroll.CalculateRequest{
		Period:      payroll.Period{Start: start, End: end},
		EmployeeIDs: toEmployeeIDs(req.EmployeeIDs),
		Excluded:    toEmployeeIDs(req.Excluded),
		RequestedBy: req.RequestedBy,
	}
	if len(req.Overtime) > 0 {
		out.Overtime = make(map[payroll.EmployeeID]decimal.Decimal, len(req.Overtime))
		for id, hours := range req.Overtime {
			out.Overtime[payroll.EmployeeID(id)] = hours
		}
	}
	if len(req.OtherDeductions) > 0 {
		out.OtherDeductions = make(map[payroll.EmployeeID]decimal.Decimal, len(req.OtherDeductions))
		for id, amount := range req.OtherDeductions {
			out.OtherDeductions[payroll.EmployeeID(id)] = amount
		}
	}
	return out, nil
}

func toEmployeeIDs(ids []string) []payroll.EmployeeID {
	if len(ids) == 0 {
		return nil
	}
	out := make([]payroll.EmployeeID, len(ids))
	for i, id := range ids {
		out[i] = payroll.EmployeeID(id)
	}
	return out
}

// =============================================================================
// RESPONSES
// =============================================================================

type ErrorResponse struct {
	Error   string     `json:"error"`
	Details string     `json:"details,omitempty"`
	Issues  []IssueDTO `json:"issues,omitempty"`
}

type EmployeeDTO struct {
	ID              string          `json:"id"`
	EmployeeNumber  string          `json:"employee_number,omitempty"`
	Name            string          `json:"name"`
	Department      string          `json:"department"`
	Position        string          `json:"position,omitempty"`
	HourlyRate      decimal.Decimal `json:"hourly_rate"`
	Active          bool            `json:"active"`
	LoanBalance     decimal.Decimal `json:"loan_balance"`
	LoanInstallment decimal.Decimal `json:"loan_installment"`
}

type IssueDTO struct {
	EmployeeID string `json:"employee_id"`
	Name       string `json:"name,omitempty"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

type CalculationDTO struct {
	EmployeeID      string           `json:"employee_id"`
	EmployeeNumber  string           `json:"employee_number,omitempty"`
	Name            string           `json:"name"`
	Department      string           `json:"department"`
	Position        string           `json:"position,omitempty"`
	HoursWorked     decimal.Decimal  `json:"hours_worked"`
	OvertimeHours   decimal.Decimal  `json:"overtime_hours"`
	HourlyRate      decimal.Decimal  `json:"hourly_rate"`
	GrossPay        decimal.Decimal  `json:"gross_pay"`
	TaxableIncome   decimal.Decimal  `json:"taxable_income"`
	PAYE            decimal.Decimal  `json:"paye"`
	NSSF            decimal.Decimal  `json:"nssf"`
	SHIF            decimal.Decimal  `json:"shif"`
	HousingLevy     decimal.Decimal  `json:"housing_levy"`
	EwaDeductions   decimal.Decimal  `json:"ewa_deductions"`
	LoanDeductions  decimal.Decimal  `json:"loan_deductions"`
	OtherDeductions decimal.Decimal  `json:"other_deductions"`
	TotalDeductions decimal.Decimal  `json:"total_deductions"`
	NetPay          decimal.Decimal  `json:"net_pay"`
	Status          string           `json:"status"`
	StatusReason    string           `json:"status_reason,omitempty"`
	IsEdited        bool             `json:"is_edited"`
	OriginalNetPay  *decimal.Decimal `json:"original_net_pay,omitempty"`
}

type DepartmentDTO struct {
	Department        string          `json:"department"`
	EmployeeCount     int             `json:"employee_count"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	PercentageOfTotal decimal.Decimal `json:"percentage_of_total"`
}

type SummaryDTO struct {
	TotalGrossPay      decimal.Decimal `json:"total_gross_pay"`
	TotalDeductions    decimal.Decimal `json:"total_deductions"`
	TotalNetPay        decimal.Decimal `json:"total_net_pay"`
	TotalEwaDeductions decimal.Decimal `json:"total_ewa_deductions"`
	TotalStatutory     decimal.Decimal `json:"total_statutory"`
	EmployeeCount      int             `json:"employee_count"`
	StatusCounts       map[string]int  `json:"status_counts"`
	Departments        []DepartmentDTO `json:"department_summary"`
	PeriodComparison   decimal.Decimal `json:"period_comparison"`
}

type RunDTO struct {
	ID           string           `json:"id"`
	PeriodStart  string           `json:"period_start"`
	PeriodEnd    string           `json:"period_end"`
	Status       string           `json:"status"`
	Percent      int              `json:"percent"`
	RequestedBy  string           `json:"requested_by,omitempty"`
	StartedAt    string           `json:"started_at"`
	Issues       []IssueDTO       `json:"issues,omitempty"`
	Message      string           `json:"message,omitempty"`
	SupersededBy string           `json:"superseded_by,omitempty"`
	Calculations []CalculationDTO `json:"calculations,omitempty"`
	Summary      *SummaryDTO      `json:"summary,omitempty"`
}

// RunEventDTO is the data of one SSE frame.
type RunEventDTO struct {
	RunID   string      `json:"run_id"`
	Kind    string      `json:"kind"`
	Percent int         `json:"percent"`
	Issues  []IssueDTO  `json:"issues,omitempty"`
	Message string      `json:"message,omitempty"`
	Summary *SummaryDTO `json:"summary,omitempty"`
}

type AdjustmentResponse struct {
	Calculation CalculationDTO `json:"calculation"`
	Summary     SummaryDTO     `json:"summary"`
}

type FinalizedDTO struct {
	ID          string         `json:"id"`
	RunID       string         `json:"run_id"`
	PeriodStart string         `json:"period_start"`
	PeriodEnd   string         `json:"period_end"`
	FinalizedAt string         `json:"finalized_at"`
	FinalizedBy string         `json:"finalized_by,omitempty"`
	Note        string         `json:"note,omitempty"`
	Calculation CalculationDTO `json:"calculation"`
}

type AuditEntryDTO struct {
	ID         string         `json:"id"`
	Timestamp  string         `json:"timestamp"`
	ActorID    string         `json:"actor_id,omitempty"`
	Action     string         `json:"action"`
	RunID      string         `json:"run_id,omitempty"`
	EmployeeID string         `json:"employee_id,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Period      string `json:"period"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toEmployeeDTO(e payroll.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:              string(e.ID),
		EmployeeNumber:  e.EmployeeNumber,
		Name:            e.Name,
		Department:      e.Department,
		Position:        e.Position,
		HourlyRate:      e.HourlyRate,
		Active:          e.Active,
		LoanBalance:     e.LoanBalance,
		LoanInstallment: e.LoanInstallment,
	}
}

func toIssueDTOs(issues []payroll.ValidationIssue) []IssueDTO {
	if len(issues) == 0 {
		return nil
	}
	out := make([]IssueDTO, len(issues))
	for i, issue := range issues {
		out[i] = IssueDTO{
			EmployeeID: string(issue.EmployeeID),
			Name:       issue.Name,
			Code:       string(issue.Code),
			Message:    issue.Message,
		}
	}
	return out
}

func toCalculationDTO(c payroll.PayrollCalculation) CalculationDTO {
	dto := CalculationDTO{
		EmployeeID:      string(c.EmployeeID),
		EmployeeNumber:  c.EmployeeNumber,
		Name:            c.Name,
		Department:      c.Department,
		Position:        c.Position,
		HoursWorked:     c.HoursWorked,
		OvertimeHours:   c.OvertimeHours,
		HourlyRate:      c.HourlyRate,
		GrossPay:        c.GrossPay,
		TaxableIncome:   c.TaxableIncome,
		PAYE:            c.PAYE,
		NSSF:            c.NSSF,
		SHIF:            c.SHIF,
		HousingLevy:     c.HousingLevy,
		EwaDeductions:   c.EwaDeductions,
		LoanDeductions:  c.LoanDeductions,
		OtherDeductions: c.OtherDeductions,
		TotalDeductions: c.TotalDeductions,
		NetPay:          c.NetPay,
		Status:          string(payroll.KindOf(c.Status)),
		IsEdited:        c.IsEdited,
		OriginalNetPay:  c.OriginalNetPay,
	}
	if c.Status != nil {
		dto.StatusReason = c.Status.Reason()
	}
	return dto
}

func toCalculationDTOs(calcs []payroll.PayrollCalculation) []CalculationDTO {
	out := make([]CalculationDTO, len(calcs))
	for i, c := range calcs {
		out[i] = toCalculationDTO(c)
	}
	return out
}

func toSummaryDTO(s payroll.PayrollSummary) SummaryDTO {
	dto := SummaryDTO{
		TotalGrossPay:      s.TotalGrossPay,
		TotalDeductions:    s.TotalDeductions,
		TotalNetPay:        s.TotalNetPay,
		TotalEwaDeductions: s.TotalEwaDeductions,
		TotalStatutory:     s.TotalStatutory,
		EmployeeCount:      s.EmployeeCount,
		StatusCounts:       make(map[string]int, len(s.StatusCounts)),
		Departments:        make([]DepartmentDTO, 0, len(s.DepartmentSummary)),
		PeriodComparison:   s.PeriodComparison,
	}
	for kind, n := range s.StatusCounts {
		dto.StatusCounts[string(kind)] = n
	}
	for _, d := range s.DepartmentSummary {
		dto.Departments = append(dto.Departments, DepartmentDTO{
			Department:        d.Department,
			EmployeeCount:     d.EmployeeCount,
			TotalAmount:       d.TotalAmount,
			PercentageOfTotal: d.PercentageOfTotal,
		})
	}
	return dto
}

// toRunDTO converts a run view. Pay lines are included only when asked for
// and the run has a review session.
func toRunDTO(v RunView, includeLines bool) RunDTO {
	dto := RunDTO{
		ID:           string(v.ID),
		PeriodStart:  v.Period.Start.String(),
		PeriodEnd:    v.Period.End.String(),
		Status:       string(v.Status),
		Percent:      v.Percent,
		RequestedBy:  v.RequestedBy,
		StartedAt:    v.StartedAt.Format(time.RFC3339),
		Issues:       toIssueDTOs(v.Issues),
		Message:      v.Message,
		SupersededBy: string(v.SupersededBy),
	}
	if v.Session != nil {
		summary := toSummaryDTO(v.Session.Summary())
		dto.Summary = &summary
		if includeLines {
			dto.Calculations = toCalculationDTOs(v.Session.Calculations())
		}
	}
	return dto
}

func toEventDTO(ev payroll.Event) RunEventDTO {
	dto := RunEventDTO{
		RunID:   string(ev.RunID),
		Kind:    string(ev.Kind),
		Percent: ev.Percent,
		Issues:  toIssueDTOs(ev.Issues),
		Message: ev.Message,
	}
	if ev.Result != nil {
		summary := toSummaryDTO(ev.Result.Summary)
		dto.Summary = &summary
	}
	return dto
}

func toFinalizedDTO(r payroll.FinalizedPayroll) FinalizedDTO {
	return FinalizedDTO{
		ID:          r.ID,
		RunID:       string(r.RunID),
		PeriodStart: r.Period.Start.String(),
		PeriodEnd:   r.Period.End.String(),
		FinalizedAt: r.FinalizedAt.Format(time.RFC3339),
		FinalizedBy: r.FinalizedBy,
		Note:        r.Note,
		Calculation: toCalculationDTO(r.Calculation),
	}
}

func toFinalizedDTOs(records []payroll.FinalizedPayroll) []FinalizedDTO {
	out := make([]FinalizedDTO, len(records))
	for i, r := range records {
		out[i] = toFinalizedDTO(r)
	}
	return out
}

func toAuditEntryDTO(e payroll.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:         e.ID,
		Timestamp:  e.Timestamp.Format(time.RFC3339),
		ActorID:    e.ActorID,
		Action:     string(e.Action),
		RunID:      string(e.RunID),
		EmployeeID: string(e.EmployeeID),
		Reason:     e.Reason,
		Payload:    e.Payload,
	}
}
