// Package store provides in-memory implementations of the payroll collaborators.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements every collaborator interface of the payroll engine.
type Memory struct {
	mu         sync.RWMutex
	employees  map[payroll.EmployeeID]payroll.Employee
	attendance map[payroll.EmployeeID][]payroll.AttendanceRecord
	advances   map[payroll.EmployeeID][]payroll.EwaAdvance
	holidays   payroll.HolidayList
	finalized  []payroll.FinalizedPayroll
	periods    map[string]bool
	audit      []payroll.AuditEntry
}

func NewMemory() *Memory {
	return &Memory{
		employees:  make(map[payroll.EmployeeID]payroll.Employee),
		attendance: make(map[payroll.EmployeeID][]payroll.AttendanceRecord),
		advances:   make(map[payroll.EmployeeID][]payroll.EwaAdvance),
		periods:    make(map[string]bool),
	}
}

// =============================================================================
// SEEDING
// =============================================================================

func (m *Memory) AddEmployee(e payroll.Employee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[e.ID] = e
}

// AddAttendance appends records, keeping each employee's records sorted by date.
func (m *Memory) AddAttendance(records ...payroll.AttendanceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		recs := append(m.attendance[r.EmployeeID], r)
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].Date.Before(recs[j].Date) })
		m.attendance[r.EmployeeID] = recs
	}
}

func (m *Memory) AddAdvance(advances ...payroll.EwaAdvance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range advances {
		m.advances[a.EmployeeID] = append(m.advances[a.EmployeeID], a)
	}
}

func (m *Memory) AddHoliday(h payroll.Holiday) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holidays = append(m.holidays, h)
}

// =============================================================================
// SOURCES
// =============================================================================

func (m *Memory) ListEmployees(_ context.Context) ([]payroll.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]payroll.Employee, 0, len(m.employees))
	for _, e := range m.employees {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetEmployee(_ context.Context, id payroll.EmployeeID) (payroll.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.employees[id]
	if !ok {
		return payroll.Employee{}, fmt.Errorf("%w: %s", payroll.ErrEmployeeNotFound, id)
	}
	return e, nil
}

func (m *Memory) AttendanceInRange(_ context.Context, id payroll.EmployeeID, from, to payroll.TimePoint) ([]payroll.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	period := payroll.Period{Start: from, End: to}
	var out []payroll.AttendanceRecord
	for _, r := range m.attendance[id] {
		if period.Contains(r.Date) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) AdvancesInRange(_ context.Context, id payroll.EmployeeID, from, to payroll.TimePoint) ([]payroll.EwaAdvance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	period := payroll.Period{Start: from, End: to}
	var out []payroll.EwaAdvance
	for _, a := range m.advances[id] {
		if a.DisbursedAt != nil && period.Contains(payroll.TimePointOf(*a.DisbursedAt)) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Memory) Holidays(_ context.Context) (payroll.HolidayList, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append(payroll.HolidayList(nil), m.holidays...), nil
}

// =============================================================================
// PAYROLL STORE
// =============================================================================

// SaveFinalized stores all records or none. Records may span several
// periods; every one of them must be unfinalized.
func (m *Memory) SaveFinalized(_ context.Context, records []payroll.FinalizedPayroll) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check all periods first (atomic check)
	for _, r := range records {
		if m.periods[r.Period.Key()] {
			return fmt.Errorf("%w: %s", payroll.ErrAlreadyFinalized, r.Period)
		}
	}
	for _, r := range records {
		r.Calculation = r.Calculation.Clone()
		m.finalized = append(m.finalized, r)
		m.periods[r.Period.Key()] = true
	}
	return nil
}

func (m *Memory) IsFinalized(_ context.Context, period payroll.Period) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.periods[period.Key()], nil
}

func (m *Memory) ListFinalized(_ context.Context, period payroll.Period) ([]payroll.FinalizedPayroll, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []payroll.FinalizedPayroll
	for _, r := range m.finalized {
		if r.Period.Key() == period.Key() {
			r.Calculation = r.Calculation.Clone()
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Calculation.EmployeeID < out[j].Calculation.EmployeeID })
	return out, nil
}

func (m *Memory) GetFinalized(_ context.Context, id string) (payroll.FinalizedPayroll, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.finalized {
		if r.ID == id {
			r.Calculation = r.Calculation.Clone()
			return r, nil
		}
	}
	return payroll.FinalizedPayroll{}, fmt.Errorf("%w: %s", payroll.ErrFinalizedNotFound, id)
}

func (m *Memory) PreviousTotalNet(_ context.Context, period payroll.Period) (decimal.Decimal, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *payroll.Period
	for _, r := range m.finalized {
		p := r.Period
		if !p.End.Before(period.Start) {
			continue
		}
		if latest == nil || p.End.After(latest.End) {
			latest = &p
		}
	}
	if latest == nil {
		return decimal.Zero, false, nil
	}
	total := decimal.Zero
	for _, r := range m.finalized {
		if r.Period.Key() == latest.Key() {
			total = total.Add(r.Calculation.NetPay)
		}
	}
	return total, true, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) Append(_ context.Context, entry payroll.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) Query(_ context.Context, filter payroll.AuditFilter) ([]payroll.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []payroll.AuditEntry
	for _, e := range m.audit {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Reset clears all data.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees = make(map[payroll.EmployeeID]payroll.Employee)
	m.attendance = make(map[payroll.EmployeeID][]payroll.AttendanceRecord)
	m.advances = make(map[payroll.EmployeeID][]payroll.EwaAdvance)
	m.holidays = nil
	m.finalized = nil
	m.periods = make(map[string]bool)
	m.audit = nil
}
