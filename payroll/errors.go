/*
errors.go - Centralized error types for the payroll engine

ERROR CATEGORIES:
  1. Validation issues - recoverable, reported before any calculation runs
  2. Session errors - review-stage misuse (closed session, unknown employee)
  3. Persistence errors - finalization conflicts
  4. Invariant violations - defects, surfaced by CheckInvariant in tests

Per-employee computation failures are not errors at this level: they become
a Failure status on the employee's PayrollCalculation so the batch continues.

USAGE:
  if errors.Is(err, payroll.ErrAlreadyFinalized) {
      // period already handed to persistence
  }
*/
package payroll

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	ErrPeriodTooLong = errors.New("invalid period: too long")

	ErrInvalidHourlyRate = errors.New("hourly rate must be positive")

	ErrNegativeHours = errors.New("hours worked cannot be negative")

	// ErrValidationFailed is wrapped by *ValidationError.
	ErrValidationFailed = errors.New("payroll validation failed")

	ErrEmployeeNotFound = errors.New("employee not found")

	ErrSessionClosed = errors.New("review session is closed")

	ErrReasonRequired = errors.New("adjustment reason is required")

	ErrEmptyAdjustment = errors.New("adjustment changes no fields")

	ErrNegativeAmount = errors.New("adjusted amount cannot be negative")

	// ErrUnresolvedErrors is returned by Finalize while error rows remain.
	ErrUnresolvedErrors = errors.New("payroll has unresolved error rows")

	// ErrAlreadyFinalized is returned when a period was finalized before.
	// Finalization is idempotent per period: the first write wins.
	ErrAlreadyFinalized = errors.New("payroll period already finalized")

	// ErrEmptyPayroll is returned by Finalize when no pay line is left.
	ErrEmptyPayroll = errors.New("payroll has no lines to finalize")

	ErrFinalizedNotFound = errors.New("finalized payroll not found")

	ErrInvariantViolation = errors.New("payroll invariant violated")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

type IssueCode string

const (
	IssueMissingHourlyRate    IssueCode = "missing_hourly_rate"
	IssueIncompleteAttendance IssueCode = "incomplete_attendance"
	IssueUnknownEmployee      IssueCode = "unknown_employee"
)

// ValidationIssue is one pre-flight problem for one employee.
type ValidationIssue struct {
	EmployeeID EmployeeID
	Name       string
	Code       IssueCode
	Message    string
}

// ValidationError lists every issue found before a batch; the batch does not start.
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, fmt.Sprintf("%s: %s", issue.EmployeeID, issue.Message))
	}
	return fmt.Sprintf("%d validation issue(s): %s", len(e.Issues), strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// InvariantError reports a totals/components mismatch on a calculation.
type InvariantError struct {
	EmployeeID EmployeeID
	Field      string
	Expected   decimal.Decimal
	Actual     decimal.Decimal
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s is %s, components give %s", e.EmployeeID, e.Field, e.Actual, e.Expected)
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariantViolation
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrPeriodTooLong) ||
		errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrReasonRequired) ||
		errors.Is(err, ErrEmptyAdjustment) ||
		errors.Is(err, ErrNegativeAmount) ||
		errors.Is(err, ErrInvalidHourlyRate)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrFinalizedNotFound)
}

// IsConflict returns true if the request conflicts with the current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrSessionClosed) ||
		errors.Is(err, ErrAlreadyFinalized) ||
		errors.Is(err, ErrUnresolvedErrors) ||
		errors.Is(err, ErrEmptyPayroll)
}
