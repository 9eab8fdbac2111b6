package payroll

import (
	"fmt"
)

// =============================================================================
// PRE-FLIGHT VALIDATION - Runs before any pay line is computed
// =============================================================================

// ValidateInputs checks every employee of a batch and returns all issues
// found. A non-empty result stops the batch before any calculation runs.
//
// Checks, per employee:
//   - hourly rate must be positive
//   - attendance must cover the period (see AttendanceAggregator.Complete)
func ValidateInputs(period Period, employees []Employee, attendance map[EmployeeID][]AttendanceRecord, aggregator AttendanceAggregator) []ValidationIssue {
	var issues []ValidationIssue
	required := aggregator.RequiredDays(period)
	for _, emp := range employees {
		if !emp.HasValidRate() {
			issues = append(issues, ValidationIssue{
				EmployeeID: emp.ID,
				Name:       emp.Name,
				Code:       IssueMissingHourlyRate,
				Message:    fmt.Sprintf("hourly rate %s is not positive", emp.HourlyRate),
			})
		}
		if recorded := recordedDays(emp.ID, period, attendance[emp.ID]); recorded < required {
			issues = append(issues, ValidationIssue{
				EmployeeID: emp.ID,
				Name:       emp.Name,
				Code:       IssueIncompleteAttendance,
				Message:    fmt.Sprintf("attendance covers %d of %d required days", recorded, required),
			})
		}
	}
	return issues
}

// unknownEmployeeIssues flags requested IDs that match no employee.
func unknownEmployeeIssues(requested []EmployeeID, known map[EmployeeID]Employee) []ValidationIssue {
	var issues []ValidationIssue
	for _, id := range requested {
		if _, ok := known[id]; ok {
			continue
		}
		issues = append(issues, ValidationIssue{
			EmployeeID: id,
			Code:       IssueUnknownEmployee,
			Message:    "no such employee",
		})
	}
	return issues
}
