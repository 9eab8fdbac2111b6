/*
store.go - Collaborator interfaces used by the payroll engine

PURPOSE:
  Defines the boundary between the engine and the systems it reads from and
  writes to. The engine never talks to a database directly; it consumes
  employees, attendance and advances through the sources below and hands
  finalized pay lines to a PayrollStore.

KEY INTERFACES:
  EmployeeSource:   active employees and lookups by ID
  AttendanceSource: attendance records in a date range
  AdvanceSource:    earned wage access advances in a date range
  HolidaySource:    public holidays, excluded from expected working days
  PayrollStore:     finalized payroll, write-once per period
  AuditLog:         who did what when, append-only

WRITE-ONCE CONTRACT:
  SaveFinalized persists every record of a period atomically. A period that
  already holds finalized records rejects the write with ErrAlreadyFinalized,
  so a retried or double-clicked finalize cannot pay anyone twice. There is
  no Update or Delete.

IMPLEMENTATIONS:
  - payroll/store/memory.go: In-memory for testing
  - store/sqlite/sqlite.go: SQLite
*/
package payroll

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SOURCES - Read side
// =============================================================================

type EmployeeSource interface {
	// ListEmployees returns every employee, active or not, ordered by ID.
	ListEmployees(ctx context.Context) ([]Employee, error)

	GetEmployee(ctx context.Context, id EmployeeID) (Employee, error)
}

type AttendanceSource interface {
	// AttendanceInRange returns the employee's records dated in [from, to].
	AttendanceInRange(ctx context.Context, id EmployeeID, from, to TimePoint) ([]AttendanceRecord, error)
}

type AdvanceSource interface {
	// AdvancesInRange returns the employee's advances disbursed in [from, to].
	// Callers still apply EwaAdvance.QualifiesFor.
	AdvancesInRange(ctx context.Context, id EmployeeID, from, to TimePoint) ([]EwaAdvance, error)
}

type HolidaySource interface {
	// Holidays returns every holiday, recurring ones included.
	Holidays(ctx context.Context) (HolidayList, error)
}

// =============================================================================
// PAYROLL STORE - Write-once finalized payroll
// =============================================================================

type PayrollStore interface {
	// SaveFinalized persists all records atomically. Returns
	// ErrAlreadyFinalized if the period was finalized before.
	SaveFinalized(ctx context.Context, records []FinalizedPayroll) error

	IsFinalized(ctx context.Context, period Period) (bool, error)

	// ListFinalized returns the records of a period ordered by employee ID.
	ListFinalized(ctx context.Context, period Period) ([]FinalizedPayroll, error)

	// GetFinalized returns one record or ErrFinalizedNotFound.
	GetFinalized(ctx context.Context, id string) (FinalizedPayroll, error)

	// PreviousTotalNet returns the total net pay of the latest finalized
	// period ending before period starts. ok is false when there is none.
	PreviousTotalNet(ctx context.Context, period Period) (total decimal.Decimal, ok bool, err error)
}

// =============================================================================
// AUDIT LOG - Separate from payroll, tracks who did what when
// =============================================================================

type AuditEntry struct {
	ID         string
	Timestamp  time.Time
	ActorID    string
	Action     AuditAction
	RunID      RunID
	EmployeeID EmployeeID
	Reason     string
	Payload    map[string]any // action-specific data
}

type AuditAction string

const (
	AuditPayrollCalculated AuditAction = "payroll_calculated"
	AuditManualAdjustment  AuditAction = "manual_adjustment"
	AuditEmployeeExcluded  AuditAction = "employee_excluded"
	AuditPayrollFinalized  AuditAction = "payroll_finalized"
)

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
	Query(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	RunID      *RunID
	EmployeeID *EmployeeID
	ActorID    *string
	Actions    []AuditAction
}

// Matches reports whether e passes the filter.
func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.RunID != nil && e.RunID != *f.RunID {
		return false
	}
	if f.EmployeeID != nil && e.EmployeeID != *f.EmployeeID {
		return false
	}
	if f.ActorID != nil && e.ActorID != *f.ActorID {
		return false
	}
	if len(f.Actions) == 0 {
		return true
	}
	for _, a := range f.Actions {
		if e.Action == a {
			return true
		}
	}
	return false
}
