/*
session.go - Review stage between a batch run and finalization

PURPOSE:
  A Session takes exclusive ownership of one BatchResult. Reviewers adjust
  individual pay lines, exclude employees, and finally freeze the set into
  immutable FinalizedPayroll records. Finalize is one-way: every later call
  on the session returns ErrSessionClosed.

MANUAL ADJUSTMENTS:
  - Any of gross pay, hours, overtime hours, EWA deductions and net pay may
    be overridden. A reason is mandatory.
  - The first edit captures OriginalNetPay and sets IsEdited. Later edits
    never touch OriginalNetPay.
  - Statutory deductions (PAYE, NSSF, SHIF, housing levy) are never
    recomputed, even when gross pay changes.
  - TotalDeductions and NetPay are re-derived from their components. When
    the reviewer supplies a net pay that differs from the derived one, the
    difference is booked into OtherDeductions: the reviewer's figure stands
    and the totals still add up. A reviewer raising net pay produces a
    negative other deduction, i.e. a credit.
  - Status is reclassified and the summary recomputed after every change.

EXAMPLE:
  net 40,000 -> adjust to 42,000: OriginalNetPay 40,000, IsEdited true
             -> adjust to 41,000: OriginalNetPay still 40,000

CONCURRENCY:
  All methods lock the session; there is a single writer at a time.
*/
package payroll

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Adjustment struct {
	EmployeeID EmployeeID

	// Nil fields are left unchanged.
	GrossPay      *decimal.Decimal
	HoursWorked   *decimal.Decimal
	OvertimeHours *decimal.Decimal
	EwaDeductions *decimal.Decimal
	NetPay        *decimal.Decimal

	Reason  string
	ActorID string
}

func (a Adjustment) empty() bool {
	return a.GrossPay == nil && a.HoursWorked == nil && a.OvertimeHours == nil &&
		a.EwaDeductions == nil && a.NetPay == nil
}

type FinalizeRequest struct {
	Note string
	By   string
}

type Session struct {
	mu sync.Mutex

	runID    RunID
	period   Period
	calcs    []PayrollCalculation
	previous *decimal.Decimal
	summary  PayrollSummary
	closed   bool

	regime TaxRegime
	audit  AuditLog
	logger *slog.Logger
	now    func() time.Time
}

type SessionOption func(*Session)

// WithRegime sets the regime used to reclassify edited lines.
func WithRegime(r TaxRegime) SessionOption { return func(s *Session) { s.regime = r } }

func WithAuditLog(a AuditLog) SessionOption { return func(s *Session) { s.audit = a } }

func WithLogger(l *slog.Logger) SessionOption { return func(s *Session) { s.logger = l } }

func WithClock(now func() time.Time) SessionOption { return func(s *Session) { s.now = now } }

// NewSession opens a review session over a copy of result.
func NewSession(result *BatchResult, opts ...SessionOption) *Session {
	s := &Session{
		runID:  result.RunID,
		period: result.Period,
		calcs:  cloneAll(result.Calculations),
		regime: DefaultRegime(),
		logger: slog.Default(),
		now:    time.Now,
	}
	if result.PreviousNetPay != nil {
		prev := *result.PreviousNetPay
		s.previous = &prev
	}
	for _, opt := range opts {
		opt(s)
	}
	s.summary = BuildSummary(s.calcs, s.previous)
	return s
}

func (s *Session) RunID() RunID   { return s.runID }
func (s *Session) Period() Period { return s.period }

// Closed reports whether the session was finalized.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Calculations returns a copy of the current pay lines.
func (s *Session) Calculations() []PayrollCalculation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.calcs)
}

func (s *Session) Summary() PayrollSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// Calculation returns a copy of one employee's line.
func (s *Session) Calculation(id EmployeeID) (PayrollCalculation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := s.indexOf(id)
	if err != nil {
		return PayrollCalculation{}, err
	}
	return s.calcs[i].Clone(), nil
}

// Adjust applies a manual override and returns the updated line and summary.
func (s *Session) Adjust(ctx context.Context, adj Adjustment) (PayrollCalculation, PayrollSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return PayrollCalculation{}, PayrollSummary{}, ErrSessionClosed
	}
	if strings.TrimSpace(adj.Reason) == "" {
		return PayrollCalculation{}, PayrollSummary{}, ErrReasonRequired
	}
	if adj.empty() {
		return PayrollCalculation{}, PayrollSummary{}, ErrEmptyAdjustment
	}
	for _, v := range []*decimal.Decimal{adj.GrossPay, adj.HoursWorked, adj.OvertimeHours, adj.EwaDeductions} {
		if v != nil && v.IsNegative() {
			return PayrollCalculation{}, PayrollSummary{}, ErrNegativeAmount
		}
	}
	i, err := s.indexOf(adj.EmployeeID)
	if err != nil {
		return PayrollCalculation{}, PayrollSummary{}, err
	}

	calc := &s.calcs[i]
	before := calc.Clone()

	if !calc.IsEdited {
		original := calc.NetPay
		calc.OriginalNetPay = &original
		calc.IsEdited = true
	}
	if adj.HoursWorked != nil {
		calc.HoursWorked = *adj.HoursWorked
	}
	if adj.OvertimeHours != nil {
		calc.OvertimeHours = *adj.OvertimeHours
	}
	if adj.GrossPay != nil {
		calc.GrossPay = roundMoney(*adj.GrossPay)
	}
	if adj.EwaDeductions != nil {
		calc.EwaDeductions = roundMoney(*adj.EwaDeductions)
	}
	calc.rederive()
	if adj.NetPay != nil {
		target := roundMoney(*adj.NetPay)
		if !target.Equal(calc.NetPay) {
			calc.OtherDeductions = calc.OtherDeductions.Add(calc.NetPay.Sub(target))
			calc.rederive()
		}
	}
	calc.Status = s.regime.Classify(calc.GrossPay, calc.EwaDeductions, calc.TotalDeductions, calc.NetPay)

	s.summary = BuildSummary(s.calcs, s.previous)
	s.record(ctx, AuditEntry{
		ActorID:    adj.ActorID,
		Action:     AuditManualAdjustment,
		EmployeeID: adj.EmployeeID,
		Reason:     adj.Reason,
		Payload:    adjustmentPayload(before, *calc),
	})
	return calc.Clone(), s.summary, nil
}

// Exclude drops an employee from the set, e.g. a flagged line the reviewer
// will settle outside this run.
func (s *Session) Exclude(ctx context.Context, id EmployeeID, reason, actorID string) (PayrollSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return PayrollSummary{}, ErrSessionClosed
	}
	if strings.TrimSpace(reason) == "" {
		return PayrollSummary{}, ErrReasonRequired
	}
	i, err := s.indexOf(id)
	if err != nil {
		return PayrollSummary{}, err
	}
	removed := s.calcs[i]
	s.calcs = append(s.calcs[:i], s.calcs[i+1:]...)
	s.summary = BuildSummary(s.calcs, s.previous)

	s.record(ctx, AuditEntry{
		ActorID:    actorID,
		Action:     AuditEmployeeExcluded,
		EmployeeID: id,
		Reason:     reason,
		Payload: map[string]any{
			"status":  string(KindOf(removed.Status)),
			"net_pay": removed.NetPay.String(),
		},
	})
	return s.summary, nil
}

// Finalize persists the set as immutable records and closes the session.
// Lines with a Failure status must be adjusted or excluded first, and an
// empty set is refused with ErrEmptyPayroll. When the store rejects the
// write the session stays open.
func (s *Session) Finalize(ctx context.Context, store PayrollStore, req FinalizeRequest) ([]FinalizedPayroll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	if len(s.calcs) == 0 {
		return nil, ErrEmptyPayroll
	}
	var unresolved []string
	for _, c := range s.calcs {
		if KindOf(c.Status) == StatusError {
			unresolved = append(unresolved, string(c.EmployeeID))
		}
	}
	if len(unresolved) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnresolvedErrors, strings.Join(unresolved, ", "))
	}

	at := s.now()
	records := make([]FinalizedPayroll, 0, len(s.calcs))
	for _, c := range s.calcs {
		records = append(records, FinalizedPayroll{
			ID:          uuid.NewString(),
			RunID:       s.runID,
			Period:      s.period,
			Calculation: c.Clone(),
			FinalizedAt: at,
			FinalizedBy: req.By,
			Note:        req.Note,
		})
	}
	if err := store.SaveFinalized(ctx, records); err != nil {
		return nil, err
	}
	s.closed = true

	s.record(ctx, AuditEntry{
		ActorID: req.By,
		Action:  AuditPayrollFinalized,
		Reason:  req.Note,
		Payload: map[string]any{
			"period":        s.period.Key(),
			"records":       len(records),
			"total_net_pay": s.summary.TotalNetPay.String(),
		},
	})
	s.logger.Info("payroll finalized", "run_id", string(s.runID), "period", s.period.Key(), "records", len(records))
	return records, nil
}

func (s *Session) indexOf(id EmployeeID) (int, error) {
	for i := range s.calcs {
		if s.calcs[i].EmployeeID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrEmployeeNotFound, id)
}

func (s *Session) record(ctx context.Context, entry AuditEntry) {
	if s.audit == nil {
		return
	}
	entry.ID = uuid.NewString()
	entry.Timestamp = s.now()
	entry.RunID = s.runID
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Warn("audit append failed", "action", string(entry.Action), "error", err)
	}
}

// rederive recomputes TotalDeductions and NetPay from their components.
func (c *PayrollCalculation) rederive() {
	c.TotalDeductions = roundMoney(c.componentTotal())
	c.NetPay = c.GrossPay.Sub(c.TotalDeductions)
}

func cloneAll(calcs []PayrollCalculation) []PayrollCalculation {
	out := make([]PayrollCalculation, len(calcs))
	for i, c := range calcs {
		out[i] = c.Clone()
	}
	return out
}

// adjustmentPayload records before/after values of the fields that changed.
func adjustmentPayload(before, after PayrollCalculation) map[string]any {
	payload := make(map[string]any)
	fields := []struct {
		name          string
		before, after decimal.Decimal
	}{
		{"gross_pay", before.GrossPay, after.GrossPay},
		{"hours_worked", before.HoursWorked, after.HoursWorked},
		{"overtime_hours", before.OvertimeHours, after.OvertimeHours},
		{"ewa_deductions", before.EwaDeductions, after.EwaDeductions},
		{"other_deductions", before.OtherDeductions, after.OtherDeductions},
		{"total_deductions", before.TotalDeductions, after.TotalDeductions},
		{"net_pay", before.NetPay, after.NetPay},
	}
	for _, f := range fields {
		if f.before.Equal(f.after) {
			continue
		}
		payload[f.name] = map[string]string{"before": f.before.String(), "after": f.after.String()}
	}
	return payload
}
