/*
Package sqlite provides a SQLite-backed implementation of the payroll collaborators.

PURPOSE:
  Implements every collaborator interface the payroll engine consumes, so
  the server runs end to end on a single file. In production the same
  patterns apply to PostgreSQL with minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  payroll.EmployeeSource:   employees
  payroll.AttendanceSource: attendance
  payroll.AdvanceSource:    ewa_advances
  payroll.HolidaySource:    holidays
  payroll.PayrollStore:     finalized_payroll
  payroll.AuditLog:         audit_log

WRITE-ONCE ENFORCEMENT:
  finalized_payroll is never updated or deleted (outside Reset). A period is
  written in one transaction after checking that no record exists for it;
  idx_finalized_unique backs the check at the database level.

MONEY:
  Amounts are stored as TEXT decimal strings and parsed back into
  decimal.Decimal, never through REAL, so nothing is lost to floating point.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. An in-memory database is limited to
  one connection, since every connection to ":memory:" is a separate database.

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - payroll/store.go: Interface definitions
  - payroll/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// timestampLayout is fixed width so stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements all collaborator interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		employee_number TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		department TEXT NOT NULL DEFAULT '',
		position TEXT NOT NULL DEFAULT '',
		hourly_rate TEXT NOT NULL DEFAULT '0',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		loan_balance TEXT NOT NULL DEFAULT '0',
		loan_installment TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS attendance (
		employee_id TEXT NOT NULL,
		date TEXT NOT NULL,
		clock_in TEXT,
		clock_out TEXT,
		status TEXT NOT NULL,
		hours_worked TEXT NOT NULL DEFAULT '0',
		PRIMARY KEY (employee_id, date)
	);

	CREATE TABLE IF NOT EXISTS ewa_advances (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL,
		disbursed_at TEXT,
		disbursed_date TEXT
	);

	-- Range lookups by disbursement day (hot path of every run)
	CREATE INDEX IF NOT EXISTS idx_ewa_employee_date
		ON ewa_advances(employee_id, disbursed_date);

	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		recurring BOOLEAN DEFAULT FALSE
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_holidays_unique
		ON holidays(date, name);

	-- Finalized payroll (write-once per period)
	CREATE TABLE IF NOT EXISTS finalized_payroll (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		net_pay TEXT NOT NULL,
		status TEXT NOT NULL,
		calculation_json TEXT NOT NULL,
		finalized_at TEXT NOT NULL,
		finalized_by TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT ''
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_finalized_unique
		ON finalized_payroll(period_start, period_end, employee_id);
	CREATE INDEX IF NOT EXISTS idx_finalized_period_end
		ON finalized_payroll(period_end);

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		actor_id TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		run_id TEXT NOT NULL DEFAULT '',
		employee_id TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_run
		ON audit_log(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// EMPLOYEES (payroll.EmployeeSource)
// =============================================================================

// SaveEmployee inserts or replaces an employee.
func (s *Store) SaveEmployee(ctx context.Context, emp payroll.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO employees
		(id, employee_number, name, department, position, hourly_rate, active,
		 loan_balance, loan_installment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			employee_number = excluded.employee_number,
			name = excluded.name,
			department = excluded.department,
			position = excluded.position,
			hourly_rate = excluded.hourly_rate,
			active = excluded.active,
			loan_balance = excluded.loan_balance,
			loan_installment = excluded.loan_installment
	`

	_, err := s.db.ExecContext(ctx, query,
		string(emp.ID), emp.EmployeeNumber, emp.Name, emp.Department, emp.Position,
		emp.HourlyRate.String(), emp.Active,
		emp.LoanBalance.String(), emp.LoanInstallment.String(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

const employeeColumns = `id, employee_number, name, department, position, hourly_rate, active, loan_balance, loan_installment`

// GetEmployee retrieves an employee by ID.
func (s *Store) GetEmployee(ctx context.Context, id payroll.EmployeeID) (payroll.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+employeeColumns+" FROM employees WHERE id = ?", string(id))
	emp, err := scanEmployee(row)
	if err == sql.ErrNoRows {
		return payroll.Employee{}, fmt.Errorf("%w: %s", payroll.ErrEmployeeNotFound, id)
	}
	return emp, err
}

// ListEmployees returns all employees ordered by ID.
func (s *Store) ListEmployees(ctx context.Context) ([]payroll.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+employeeColumns+" FROM employees ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	employees := []payroll.Employee{}
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, emp)
	}
	return employees, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row scanner) (payroll.Employee, error) {
	var emp payroll.Employee
	var id, rate, balance, installment string
	if err := row.Scan(&id, &emp.EmployeeNumber, &emp.Name, &emp.Department, &emp.Position,
		&rate, &emp.Active, &balance, &installment); err != nil {
		return payroll.Employee{}, err
	}
	emp.ID = payroll.EmployeeID(id)
	var err error
	if emp.HourlyRate, err = parseDecimal("hourly_rate", rate); err != nil {
		return payroll.Employee{}, fmt.Errorf("employee %s: %w", id, err)
	}
	if emp.LoanBalance, err = parseDecimal("loan_balance", balance); err != nil {
		return payroll.Employee{}, fmt.Errorf("employee %s: %w", id, err)
	}
	if emp.LoanInstallment, err = parseDecimal("loan_installment", installment); err != nil {
		return payroll.Employee{}, fmt.Errorf("employee %s: %w", id, err)
	}
	return emp, nil
}

// =============================================================================
// ATTENDANCE (payroll.AttendanceSource)
// =============================================================================

// SaveAttendance upserts records; one record per employee per day.
func (s *Store) SaveAttendance(ctx context.Context, records ...payroll.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO attendance (employee_id, date, clock_in, clock_out, status, hours_worked)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, date) DO UPDATE SET
			clock_in = excluded.clock_in,
			clock_out = excluded.clock_out,
			status = excluded.status,
			hours_worked = excluded.hours_worked
	`
	for _, r := range records {
		if _, err := tx.ExecContext(ctx, query,
			string(r.EmployeeID), r.Date.String(),
			nullTime(r.ClockIn), nullTime(r.ClockOut),
			string(r.Status), r.HoursWorked.String(),
		); err != nil {
			return fmt.Errorf("failed to save attendance: %w", err)
		}
	}
	return tx.Commit()
}

// AttendanceInRange returns records dated in [from, to], ordered by date.
func (s *Store) AttendanceInRange(ctx context.Context, id payroll.EmployeeID, from, to payroll.TimePoint) ([]payroll.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT employee_id, date, clock_in, clock_out, status, hours_worked
		FROM attendance
		WHERE employee_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, string(id), from.String(), to.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []payroll.AttendanceRecord
	for rows.Next() {
		var r payroll.AttendanceRecord
		var empID, date, status, hours string
		var clockIn, clockOut sql.NullString
		if err := rows.Scan(&empID, &date, &clockIn, &clockOut, &status, &hours); err != nil {
			return nil, err
		}
		r.EmployeeID = payroll.EmployeeID(empID)
		r.Date, err = payroll.ParseTimePoint(date)
		if err != nil {
			return nil, fmt.Errorf("attendance date %q: %w", date, err)
		}
		r.Status, err = payroll.ParseAttendanceStatus(status)
		if err != nil {
			return nil, err
		}
		if r.ClockIn, err = parseNullTime("clock_in", clockIn); err != nil {
			return nil, fmt.Errorf("attendance %s on %s: %w", empID, date, err)
		}
		if r.ClockOut, err = parseNullTime("clock_out", clockOut); err != nil {
			return nil, fmt.Errorf("attendance %s on %s: %w", empID, date, err)
		}
		if r.HoursWorked, err = parseDecimal("hours_worked", hours); err != nil {
			return nil, fmt.Errorf("attendance %s on %s: %w", empID, date, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// =============================================================================
// EARNED WAGE ACCESS (payroll.AdvanceSource)
// =============================================================================

func (s *Store) SaveAdvance(ctx context.Context, a payroll.EwaAdvance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var disbursedDate sql.NullString
	if a.DisbursedAt != nil {
		disbursedDate = nullString(payroll.TimePointOf(*a.DisbursedAt).String())
	}

	query := `
		INSERT INTO ewa_advances (id, employee_id, amount, status, disbursed_at, disbursed_date)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			amount = excluded.amount,
			status = excluded.status,
			disbursed_at = excluded.disbursed_at,
			disbursed_date = excluded.disbursed_date
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID, string(a.EmployeeID), a.Amount.String(), string(a.Status),
		nullTime(a.DisbursedAt), disbursedDate,
	)
	if err != nil {
		return fmt.Errorf("failed to save advance: %w", err)
	}
	return nil
}

// AdvancesInRange returns advances disbursed on a day in [from, to].
func (s *Store) AdvancesInRange(ctx context.Context, id payroll.EmployeeID, from, to payroll.TimePoint) ([]payroll.EwaAdvance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, employee_id, amount, status, disbursed_at
		FROM ewa_advances
		WHERE employee_id = ? AND disbursed_date >= ? AND disbursed_date <= ?
		ORDER BY disbursed_date ASC, id ASC
	`, string(id), from.String(), to.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var advances []payroll.EwaAdvance
	for rows.Next() {
		var a payroll.EwaAdvance
		var empID, amount, status string
		var disbursedAt sql.NullString
		if err := rows.Scan(&a.ID, &empID, &amount, &status, &disbursedAt); err != nil {
			return nil, err
		}
		a.EmployeeID = payroll.EmployeeID(empID)
		if a.Amount, err = parseDecimal("amount", amount); err != nil {
			return nil, fmt.Errorf("advance %s: %w", a.ID, err)
		}
		a.Status = payroll.AdvanceStatus(status)
		if a.DisbursedAt, err = parseNullTime("disbursed_at", disbursedAt); err != nil {
			return nil, fmt.Errorf("advance %s: %w", a.ID, err)
		}
		advances = append(advances, a)
	}
	return advances, rows.Err()
}

// =============================================================================
// HOLIDAYS (payroll.HolidaySource)
// =============================================================================

func (s *Store) SaveHoliday(ctx context.Context, id string, h payroll.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO holidays (id, date, name, recurring)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(date, name) DO UPDATE SET
			recurring = excluded.recurring
	`
	_, err := s.db.ExecContext(ctx, query, id, h.Date.String(), h.Name, h.Recurring)
	return err
}

func (s *Store) Holidays(ctx context.Context) (payroll.HolidayList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT date, name, recurring FROM holidays ORDER BY date ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holidays payroll.HolidayList
	for rows.Next() {
		var h payroll.Holiday
		var date string
		if err := rows.Scan(&date, &h.Name, &h.Recurring); err != nil {
			return nil, err
		}
		h.Date, err = payroll.ParseTimePoint(date)
		if err != nil {
			return nil, fmt.Errorf("holiday date %q: %w", date, err)
		}
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}

// =============================================================================
// FINALIZED PAYROLL (payroll.PayrollStore)
// =============================================================================

// SaveFinalized writes all records in one transaction. Any period that
// already holds records rejects the whole write.
func (s *Store) SaveFinalized(ctx context.Context, records []payroll.FinalizedPayroll) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	checked := make(map[string]bool)
	for _, r := range records {
		if checked[r.Period.Key()] {
			continue
		}
		checked[r.Period.Key()] = true

		var count int
		err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM finalized_payroll WHERE period_start = ? AND period_end = ?",
			r.Period.Start.String(), r.Period.End.String(),
		).Scan(&count)
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", payroll.ErrAlreadyFinalized, r.Period)
		}
	}

	query := `
		INSERT INTO finalized_payroll
		(id, run_id, period_start, period_end, employee_id, net_pay, status,
		 calculation_json, finalized_at, finalized_by, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, r := range records {
		calcJSON, err := json.Marshal(toCalculationJSON(r.Calculation))
		if err != nil {
			return fmt.Errorf("failed to encode calculation: %w", err)
		}
		_, err = tx.ExecContext(ctx, query,
			r.ID, string(r.RunID),
			r.Period.Start.String(), r.Period.End.String(),
			string(r.Calculation.EmployeeID), r.Calculation.NetPay.String(),
			string(payroll.KindOf(r.Calculation.Status)),
			string(calcJSON),
			r.FinalizedAt.UTC().Format(timestampLayout),
			r.FinalizedBy, r.Note,
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("%w: %s", payroll.ErrAlreadyFinalized, r.Period)
			}
			return fmt.Errorf("failed to save finalized payroll: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) IsFinalized(ctx context.Context, period payroll.Period) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM finalized_payroll WHERE period_start = ? AND period_end = ?",
		period.Start.String(), period.End.String(),
	).Scan(&count)
	return count > 0, err
}

const finalizedColumns = `id, run_id, period_start, period_end, calculation_json, finalized_at, finalized_by, note`

func (s *Store) ListFinalized(ctx context.Context, period payroll.Period) ([]payroll.FinalizedPayroll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+finalizedColumns+" FROM finalized_payroll WHERE period_start = ? AND period_end = ? ORDER BY employee_id",
		period.Start.String(), period.End.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []payroll.FinalizedPayroll
	for rows.Next() {
		r, err := scanFinalized(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) GetFinalized(ctx context.Context, id string) (payroll.FinalizedPayroll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+finalizedColumns+" FROM finalized_payroll WHERE id = ?", id)
	r, err := scanFinalized(row)
	if err == sql.ErrNoRows {
		return payroll.FinalizedPayroll{}, fmt.Errorf("%w: %s", payroll.ErrFinalizedNotFound, id)
	}
	return r, err
}

// PreviousTotalNet sums net pay of the latest finalized period that ends
// before period starts.
func (s *Store) PreviousTotalNet(ctx context.Context, period payroll.Period) (decimal.Decimal, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var start, end string
	err := s.db.QueryRowContext(ctx, `
		SELECT period_start, period_end FROM finalized_payroll
		WHERE period_end < ?
		ORDER BY period_end DESC
		LIMIT 1
	`, period.Start.String()).Scan(&start, &end)
	if err == sql.ErrNoRows {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT net_pay FROM finalized_payroll WHERE period_start = ? AND period_end = ?",
		start, end,
	)
	if err != nil {
		return decimal.Zero, false, err
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var net string
		if err := rows.Scan(&net); err != nil {
			return decimal.Zero, false, err
		}
		amount, err := parseDecimal("net_pay", net)
		if err != nil {
			return decimal.Zero, false, err
		}
		total = total.Add(amount)
	}
	return total, true, rows.Err()
}

func scanFinalized(row scanner) (payroll.FinalizedPayroll, error) {
	var r payroll.FinalizedPayroll
	var runID, start, end, calcJSON, finalizedAt string
	if err := row.Scan(&r.ID, &runID, &start, &end, &calcJSON, &finalizedAt, &r.FinalizedBy, &r.Note); err != nil {
		return payroll.FinalizedPayroll{}, err
	}
	r.RunID = payroll.RunID(runID)

	var err error
	if r.Period.Start, err = payroll.ParseTimePoint(start); err != nil {
		return payroll.FinalizedPayroll{}, err
	}
	if r.Period.End, err = payroll.ParseTimePoint(end); err != nil {
		return payroll.FinalizedPayroll{}, err
	}
	if r.FinalizedAt, err = time.Parse(timestampLayout, finalizedAt); err != nil {
		return payroll.FinalizedPayroll{}, fmt.Errorf("finalized_at %q: %w", finalizedAt, err)
	}

	var cj calculationJSON
	if err := json.Unmarshal([]byte(calcJSON), &cj); err != nil {
		return payroll.FinalizedPayroll{}, fmt.Errorf("failed to decode calculation: %w", err)
	}
	if r.Calculation, err = cj.toCalculation(); err != nil {
		return payroll.FinalizedPayroll{}, err
	}
	return r, nil
}

// calculationJSON is the stored form of a PayrollCalculation.
type calculationJSON struct {
	EmployeeID      string           `json:"employee_id"`
	EmployeeNumber  string           `json:"employee_number"`
	Name            string           `json:"name"`
	Department      string           `json:"department"`
	Position        string           `json:"position"`
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

func toCalculationJSON(c payroll.PayrollCalculation) calculationJSON {
	cj := calculationJSON{
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
		cj.StatusReason = c.Status.Reason()
	}
	return cj
}

func (cj calculationJSON) toCalculation() (payroll.PayrollCalculation, error) {
	status, err := payroll.ParseStatus(cj.Status, cj.StatusReason)
	if err != nil {
		return payroll.PayrollCalculation{}, err
	}
	return payroll.PayrollCalculation{
		EmployeeID:      payroll.EmployeeID(cj.EmployeeID),
		EmployeeNumber:  cj.EmployeeNumber,
		Name:            cj.Name,
		Department:      cj.Department,
		Position:        cj.Position,
		HoursWorked:     cj.HoursWorked,
		OvertimeHours:   cj.OvertimeHours,
		HourlyRate:      cj.HourlyRate,
		GrossPay:        cj.GrossPay,
		TaxableIncome:   cj.TaxableIncome,
		PAYE:            cj.PAYE,
		NSSF:            cj.NSSF,
		SHIF:            cj.SHIF,
		HousingLevy:     cj.HousingLevy,
		EwaDeductions:   cj.EwaDeductions,
		LoanDeductions:  cj.LoanDeductions,
		OtherDeductions: cj.OtherDeductions,
		TotalDeductions: cj.TotalDeductions,
		NetPay:          cj.NetPay,
		Status:          status,
		IsEdited:        cj.IsEdited,
		OriginalNetPay:  cj.OriginalNetPay,
	}, nil
}

// =============================================================================
// AUDIT LOG (payroll.AuditLog)
// =============================================================================

func (s *Store) Append(ctx context.Context, entry payroll.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payloadJSON, _ := json.Marshal(entry.Payload)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, timestamp, actor_id, action, run_id, employee_id, reason, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.Timestamp.UTC().Format(timestampLayout),
		entry.ActorID,
		string(entry.Action),
		string(entry.RunID),
		string(entry.EmployeeID),
		entry.Reason,
		string(payloadJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, filter payroll.AuditFilter) ([]payroll.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if filter.RunID != nil {
		where = append(where, "run_id = ?")
		args = append(args, string(*filter.RunID))
	}
	if filter.EmployeeID != nil {
		where = append(where, "employee_id = ?")
		args = append(args, string(*filter.EmployeeID))
	}
	if filter.ActorID != nil {
		where = append(where, "actor_id = ?")
		args = append(args, *filter.ActorID)
	}
	if len(filter.Actions) > 0 {
		placeholders := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			placeholders[i] = "?"
			args = append(args, string(a))
		}
		where = append(where, "action IN ("+strings.Join(placeholders, ", ")+")")
	}

	query := "SELECT id, timestamp, actor_id, action, run_id, employee_id, reason, payload_json FROM audit_log"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []payroll.AuditEntry
	for rows.Next() {
		var e payroll.AuditEntry
		var ts, action, runID, empID string
		var payloadJSON sql.NullString
		if err := rows.Scan(&e.ID, &ts, &e.ActorID, &action, &runID, &empID, &e.Reason, &payloadJSON); err != nil {
			return nil, err
		}
		if e.Timestamp, err = time.Parse(timestampLayout, ts); err != nil {
			return nil, fmt.Errorf("audit entry %s timestamp %q: %w", e.ID, ts, err)
		}
		e.Action = payroll.AuditAction(action)
		e.RunID = payroll.RunID(runID)
		e.EmployeeID = payroll.EmployeeID(empID)
		if payloadJSON.Valid && payloadJSON.String != "" {
			if err := json.Unmarshal([]byte(payloadJSON.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("audit entry %s payload: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"audit_log", "finalized_payroll", "holidays", "ewa_advances", "attendance", "employees"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return nullString(t.Format(time.RFC3339))
}

// parseNullTime and parseDecimal fail on stored values that do not parse;
// a corrupt column must never read back as nil or zero.
func parseNullTime(column string, ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", column, ns.String, err)
	}
	return &t, nil
}

func parseDecimal(column, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s %q: %w", column, s, err)
	}
	return d, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
