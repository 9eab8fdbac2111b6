/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates employees, a month of
	attendance, EWA advances and holidays that demonstrate one outcome of a
	payroll run.

AVAILABLE SCENARIOS (all for March 2025):

	standard-month:  Four employees, full attendance, one small advance.
	                 Every line is complete.
	ewa-heavy:       One employee drew most of the month's pay in advance.
	                 The line is flagged as a warning.
	missing-rate:    One employee has no hourly rate. The run is rejected
	                 with a validation issue.
	loans-overtime:  Loan installments (one capped by the balance) and an
	                 inactive employee. Overtime is sent with the run request.

HOW SCENARIOS WORK:
 1. Reset database and forget every run
 2. Create employees
 3. Add attendance for each working day of the month
 4. Add advances and holidays

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "standard-month"}

	POST /api/payroll/runs
	{"period_start": "2025-03-01", "period_end": "2025-03-31"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarioPeriod = payroll.MonthPeriod(2025, time.March)

var scenarios = []ScenarioDTO{
	{
		ID:          "standard-month",
		Name:        "Standard Month",
		Description: "Four salaried-hourly staff, full attendance, one EWA advance",
		Period:      scenarioPeriod.String(),
	},
	{
		ID:          "ewa-heavy",
		Name:        "EWA Heavy",
		Description: "Advances exceed half of gross pay; the line is flagged for review",
		Period:      scenarioPeriod.String(),
	},
	{
		ID:          "missing-rate",
		Name:        "Missing Hourly Rate",
		Description: "An employee without an hourly rate blocks the run",
		Period:      scenarioPeriod.String(),
	},
	{
		ID:          "loans-overtime",
		Name:        "Loans and Overtime",
		Description: "Loan installments, a nearly repaid loan and an inactive employee; send overtime with the run",
		Period:      scenarioPeriod.String(),
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decode(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var load func(context.Context) error
	switch req.ScenarioID {
	case "standard-month":
		load = h.loadStandardMonthScenario
	case "ewa-heavy":
		load = h.loadEwaHeavyScenario
	case "missing-rate":
		load = h.loadMissingRateScenario
	case "loans-overtime":
		load = h.loadLoansOvertimeScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	if err := h.reset(r); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if err := load(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.Logger.Info("scenario loaded", "scenario", req.ScenarioID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadStandardMonthScenario(ctx context.Context) error {
	employees := []payroll.Employee{
		employee("emp-001", "EMP-001", "Amina Njeri", "Engineering", "Backend Engineer", "450"),
		employee("emp-002", "EMP-002", "Brian Otieno", "Engineering", "QA Analyst", "300"),
		employee("emp-003", "EMP-003", "Grace Wambui", "Finance", "Accountant", "350"),
		employee("emp-004", "EMP-004", "Kevin Mutua", "Operations", "Warehouse Lead", "220"),
	}
	if err := h.seedMonth(ctx, employees, eidHoliday()); err != nil {
		return err
	}
	return h.seedAdvance(ctx, "ewa-001", "emp-004", "5000", 14)
}

func (h *Handler) loadEwaHeavyScenario(ctx context.Context) error {
	employees := []payroll.Employee{
		employee("emp-001", "EMP-001", "Amina Njeri", "Engineering", "Backend Engineer", "450"),
		employee("emp-005", "EMP-005", "Faith Achieng", "Sales", "Field Agent", "250"),
	}
	if err := h.seedMonth(ctx, employees, eidHoliday()); err != nil {
		return err
	}

	// About 39,500 gross for emp-005 against 24,000 of advances.
	for i, adv := range []struct {
		amount string
		day    int
	}{{"8000", 7}, {"8000", 14}, {"8000", 21}} {
		if err := h.seedAdvance(ctx, fmt.Sprintf("ewa-%03d", i+1), "emp-005", adv.amount, adv.day); err != nil {
			return err
		}
	}

	// Disbursed after the period: deducted next month.
	return h.seedAdvance(ctx, "ewa-004", "emp-005", "3000", 33)
}

func (h *Handler) loadMissingRateScenario(ctx context.Context) error {
	employees := []payroll.Employee{
		employee("emp-001", "EMP-001", "Amina Njeri", "Engineering", "Backend Engineer", "450"),
		employee("emp-006", "EMP-006", "Peter Kamau", "Operations", "Driver", "0"),
	}
	return h.seedMonth(ctx, employees, eidHoliday())
}

func (h *Handler) loadLoansOvertimeScenario(ctx context.Context) error {
	withLoan := employee("emp-007", "EMP-007", "Mercy Chebet", "Operations", "Shift Supervisor", "320")
	withLoan.LoanBalance = decimal.NewFromInt(30000)
	withLoan.LoanInstallment = decimal.NewFromInt(5000)

	nearlyRepaid := employee("emp-008", "EMP-008", "Daniel Kiprop", "Operations", "Forklift Operator", "240")
	nearlyRepaid.LoanBalance = decimal.NewFromInt(1500)
	nearlyRepaid.LoanInstallment = decimal.NewFromInt(4000)

	inactive := employee("emp-009", "EMP-009", "Ruth Moraa", "Finance", "Clerk", "200")
	inactive.Active = false

	employees := []payroll.Employee{withLoan, nearlyRepaid}
	if err := h.seedMonth(ctx, employees, eidHoliday()); err != nil {
		return err
	}
	return h.Store.SaveEmployee(ctx, inactive)
}

// =============================================================================
// HELPERS
// =============================================================================

func employee(id, number, name, department, position, rate string) payroll.Employee {
	return payroll.Employee{
		ID:             payroll.EmployeeID(id),
		EmployeeNumber: number,
		Name:           name,
		Department:     department,
		Position:       position,
		HourlyRate:     decimal.RequireFromString(rate),
		Active:         true,
	}
}

func eidHoliday() payroll.Holiday {
	return payroll.Holiday{Date: payroll.NewTimePoint(2025, time.March, 31), Name: "Idd-ul-Fitr"}
}

// seedMonth saves the employees and one attendance record per working day
// of the scenario period. Every fifth working day is a late arrival with
// clock times only.
func (h *Handler) seedMonth(ctx context.Context, employees []payroll.Employee, holidays ...payroll.Holiday) error {
	for i, hol := range holidays {
		if err := h.Store.SaveHoliday(ctx, fmt.Sprintf("hol-%d", i+1), hol); err != nil {
			return err
		}
	}
	calendar := payroll.HolidayList(holidays)

	for _, emp := range employees {
		if err := h.Store.SaveEmployee(ctx, emp); err != nil {
			return err
		}

		var records []payroll.AttendanceRecord
		n := 0
		for _, day := range scenarioPeriod.Days() {
			if !day.IsWorkday(calendar) {
				continue
			}
			n++
			rec := payroll.AttendanceRecord{
				EmployeeID:  emp.ID,
				Date:        day,
				Status:      payroll.AttendancePresent,
				HoursWorked: decimal.NewFromInt(8),
			}
			if n%5 == 0 {
				in := time.Date(day.Time.Year(), day.Time.Month(), day.Time.Day(), 9, 30, 0, 0, time.UTC)
				out := in.Add(7*time.Hour + 30*time.Minute)
				rec.Status = payroll.AttendanceLate
				rec.HoursWorked = decimal.Zero
				rec.ClockIn, rec.ClockOut = &in, &out
			}
			records = append(records, rec)
		}
		if err := h.Store.SaveAttendance(ctx, records...); err != nil {
			return err
		}
	}
	return nil
}

// seedAdvance saves a disbursed advance paid out on the given day of the
// scenario month; days past the month's end roll into the next month.
func (h *Handler) seedAdvance(ctx context.Context, id, employeeID, amount string, day int) error {
	start := scenarioPeriod.Start
	at := time.Date(start.Time.Year(), start.Time.Month(), day, 10, 0, 0, 0, time.UTC)
	return h.Store.SaveAdvance(ctx, payroll.EwaAdvance{
		ID:          id,
		EmployeeID:  payroll.EmployeeID(employeeID),
		Amount:      decimal.RequireFromString(amount),
		Status:      payroll.AdvanceDisbursed,
		DisbursedAt: &at,
	})
}
