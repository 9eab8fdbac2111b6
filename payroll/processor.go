/*
processor.go - Background batch payroll over many employees

PURPOSE:
  Runs the full pipeline for one pay period as a background run owned by a
  single goroutine, reporting progress as it goes and ending with exactly
  one outcome.

PIPELINE:
  1. Load       employees (unless supplied), attendance and advances
  2. Validate   every eligible employee; any issue stops the run
  3. Compute    one PayrollCalculation per employee, strictly in order
  4. Summarize  totals, departments and the comparison with the prior period
  5. Outcome    EventCompleted with the result, or EventFailed

EVENTS:
  Run.Events() yields, in order:
    - zero or more EventProgress, Percent non-decreasing, the last one 100
    - exactly one final event: EventCompleted, EventInvalid or EventFailed
  The channel is closed after the final event. Consumers must drain the
  channel or cancel the run; a run blocks while its buffer is full.

FAILURE ISOLATION:
  An error or panic while computing one employee becomes a Failure status on
  that employee's line and the batch continues. Only load errors, validation
  issues and cancellation end a run without a result.

CANCELLATION:
  The context is checked between employees. Cancelling the parent context or
  calling Run.Cancel ends the run with EventFailed carrying the context error.

USAGE:
  p := &payroll.Processor{Employees: db, Attendance: db, Advances: db, Regime: payroll.DefaultRegime()}
  result, err := p.Calculate(ctx, payroll.CalculateRequest{Period: period})

SEE ALSO:
  - session.go: review stage that consumes the BatchResult
  - api/runs.go: tracks runs for the HTTP surface
*/
package payroll

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// DefaultEventBuffer is the capacity of a run's event channel.
const DefaultEventBuffer = 64

// loadConcurrency bounds parallel reads from the sources during loading.
const loadConcurrency = 4

// =============================================================================
// REQUEST / EVENTS / RESULT
// =============================================================================

type CalculateRequest struct {
	Period Period

	// Employees to pay. When nil, all employees are loaded from the
	// EmployeeSource.
	Employees []Employee

	// EmployeeIDs restricts the run to these employees. Unknown IDs are
	// reported as validation issues.
	EmployeeIDs []EmployeeID

	Excluded        []EmployeeID
	Overtime        map[EmployeeID]decimal.Decimal
	OtherDeductions map[EmployeeID]decimal.Decimal
	RequestedBy     string
}

type EventKind string

const (
	EventProgress  EventKind = "progress"
	EventInvalid   EventKind = "invalid"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
)

type Event struct {
	RunID   RunID
	Kind    EventKind
	Percent int
	Issues  []ValidationIssue // EventInvalid
	Result  *BatchResult      // EventCompleted
	Message string            // EventFailed
}

// Final reports whether e is the last event of its run.
func (e Event) Final() bool {
	return e.Kind != EventProgress
}

type BatchResult struct {
	RunID        RunID
	Period       Period
	Calculations []PayrollCalculation
	Summary      PayrollSummary

	// PreviousNetPay is the total net pay of the prior finalized period.
	PreviousNetPay *decimal.Decimal

	RequestedBy string
	StartedAt   time.Time
	CompletedAt time.Time
}

// =============================================================================
// RUN - Handle on one background batch
// =============================================================================

type Run struct {
	ID          RunID
	Period      Period
	RequestedBy string
	StartedAt   time.Time

	events chan Event
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	result *BatchResult
	err    error
}

func (r *Run) Events() <-chan Event { return r.events }

// Cancel stops the run at the next employee boundary.
func (r *Run) Cancel() { r.cancel() }

// Done is closed once the final event was delivered (or dropped after
// cancellation) and the event channel is closed.
func (r *Run) Done() <-chan struct{} { return r.done }

// Result returns the outcome of a finished run. It returns nil, nil while
// the run is still going.
func (r *Run) Result() (*BatchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.err
}

// emit sends a progress event unless ctx is done first.
func (r *Run) emit(ctx context.Context, ev Event) bool {
	select {
	case r.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// finish records the outcome and sends the final event. A cancelled run
// delivers it only if the buffer has room, since nobody may be reading.
func (r *Run) finish(ctx context.Context, ev Event, result *BatchResult, err error) {
	r.mu.Lock()
	r.result, r.err = result, err
	r.mu.Unlock()

	select {
	case r.events <- ev:
	case <-ctx.Done():
		select {
		case r.events <- ev:
		default:
		}
	}
	close(r.events)
	close(r.done)
	r.cancel()
}

// =============================================================================
// PROCESSOR
// =============================================================================

type Processor struct {
	Employees  EmployeeSource
	Attendance AttendanceSource
	Advances   AdvanceSource
	Holidays   HolidaySource // optional, overrides Aggregator.Calendar per run
	Payroll    PayrollStore  // optional, enables the period comparison
	Audit      AuditLog      // optional

	Regime     TaxRegime
	Aggregator AttendanceAggregator

	Logger      *slog.Logger
	Now         func() time.Time
	EventBuffer int
}

// NewProcessor wires a processor to a single collaborator implementing
// every source, using the default regime and full attendance coverage.
func NewProcessor(src interface {
	EmployeeSource
	AttendanceSource
	AdvanceSource
}, logger *slog.Logger) *Processor {
	return &Processor{
		Employees:  src,
		Attendance: src,
		Advances:   src,
		Regime:     DefaultRegime(),
		Aggregator: NewAttendanceAggregator(nil),
		Logger:     logger,
	}
}

func (p *Processor) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func (p *Processor) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

// Start launches a background run. Only an invalid period is rejected
// synchronously; every other outcome arrives as an event.
func (p *Processor) Start(ctx context.Context, req CalculateRequest) (*Run, error) {
	if err := req.Period.Validate(); err != nil {
		return nil, err
	}
	buffer := p.EventBuffer
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &Run{
		ID:          RunID(uuid.NewString()),
		Period:      req.Period,
		RequestedBy: req.RequestedBy,
		StartedAt:   p.now(),
		events:      make(chan Event, buffer),
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	go p.execute(runCtx, run, req)
	return run, nil
}

// Calculate runs a batch to completion and returns its result. Validation
// issues come back as *ValidationError.
func (p *Processor) Calculate(ctx context.Context, req CalculateRequest) (*BatchResult, error) {
	run, err := p.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	for range run.Events() {
	}
	return run.Result()
}

func (p *Processor) execute(ctx context.Context, run *Run, req CalculateRequest) {
	log := p.logger().With("run_id", string(run.ID), "period", req.Period.Key())
	log.Info("payroll run started")

	fail := func(err error) {
		err = fmt.Errorf("payroll run %s: %w", run.ID, err)
		log.Error("payroll run failed", "error", err)
		run.finish(ctx, Event{RunID: run.ID, Kind: EventFailed, Message: err.Error()}, nil, err)
	}

	employees, issues, err := p.selectEmployees(ctx, req)
	if err != nil {
		fail(err)
		return
	}
	inputs, err := p.load(ctx, req.Period, employees)
	if err != nil {
		fail(err)
		return
	}
	aggregator := p.Aggregator
	if p.Holidays != nil {
		holidays, err := p.Holidays.Holidays(ctx)
		if err != nil {
			fail(fmt.Errorf("load holidays: %w", err))
			return
		}
		aggregator.Calendar = holidays
	}

	attendance := make(map[EmployeeID][]AttendanceRecord, len(employees))
	for i, emp := range employees {
		attendance[emp.ID] = inputs[i].attendance
	}
	issues = append(issues, ValidateInputs(req.Period, employees, attendance, aggregator)...)
	if len(issues) > 0 {
		verr := &ValidationError{Issues: issues}
		log.Warn("payroll run invalid", "issues", len(issues))
		run.finish(ctx, Event{RunID: run.ID, Kind: EventInvalid, Issues: issues}, nil, verr)
		return
	}

	calcs := make([]PayrollCalculation, 0, len(employees))
	total := len(employees)
	if total == 0 {
		run.emit(ctx, Event{RunID: run.ID, Kind: EventProgress, Percent: 100})
	}
	for i, emp := range employees {
		if err := ctx.Err(); err != nil {
			fail(err)
			return
		}
		calc, err := p.computeEmployee(aggregator, emp, inputs[i], req)
		if err != nil {
			log.Warn("employee calculation failed", "employee_id", string(emp.ID), "error", err)
			calc = failedCalculation(emp, err)
		}
		calcs = append(calcs, calc)
		run.emit(ctx, Event{RunID: run.ID, Kind: EventProgress, Percent: (i + 1) * 100 / total})
	}
	if err := ctx.Err(); err != nil {
		fail(err)
		return
	}

	var previous *decimal.Decimal
	if p.Payroll != nil {
		prev, ok, err := p.Payroll.PreviousTotalNet(ctx, req.Period)
		if err != nil {
			fail(fmt.Errorf("load previous period: %w", err))
			return
		}
		if ok {
			previous = &prev
		}
	}

	result := &BatchResult{
		RunID:          run.ID,
		Period:         req.Period,
		Calculations:   calcs,
		Summary:        BuildSummary(calcs, previous),
		PreviousNetPay: previous,
		RequestedBy:    req.RequestedBy,
		StartedAt:      run.StartedAt,
		CompletedAt:    p.now(),
	}
	p.audit(ctx, log, AuditEntry{
		ActorID: req.RequestedBy,
		Action:  AuditPayrollCalculated,
		RunID:   run.ID,
		Payload: map[string]any{
			"period":         req.Period.Key(),
			"employee_count": result.Summary.EmployeeCount,
			"total_net_pay":  result.Summary.TotalNetPay.String(),
		},
	})

	log.Info("payroll run completed",
		"employees", result.Summary.EmployeeCount,
		"errors", result.Summary.StatusCounts[StatusError],
		"warnings", result.Summary.StatusCounts[StatusWarning])
	run.finish(ctx, Event{RunID: run.ID, Kind: EventCompleted, Percent: 100, Result: result}, result, nil)
}

// selectEmployees resolves the eligible employees: active, requested (when
// IDs were given) and not excluded.
func (p *Processor) selectEmployees(ctx context.Context, req CalculateRequest) ([]Employee, []ValidationIssue, error) {
	all := req.Employees
	if all == nil {
		if p.Employees == nil {
			return nil, nil, fmt.Errorf("no employee source configured")
		}
		var err error
		all, err = p.Employees.ListEmployees(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("load employees: %w", err)
		}
	}

	known := make(map[EmployeeID]Employee, len(all))
	for _, emp := range all {
		known[emp.ID] = emp
	}
	issues := unknownEmployeeIssues(req.EmployeeIDs, known)

	var requested map[EmployeeID]bool
	if len(req.EmployeeIDs) > 0 {
		requested = make(map[EmployeeID]bool, len(req.EmployeeIDs))
		for _, id := range req.EmployeeIDs {
			requested[id] = true
		}
	}
	excluded := make(map[EmployeeID]bool, len(req.Excluded))
	for _, id := range req.Excluded {
		excluded[id] = true
	}

	var eligible []Employee
	for _, emp := range all {
		if !emp.Active || excluded[emp.ID] {
			continue
		}
		if requested != nil && !requested[emp.ID] {
			continue
		}
		eligible = append(eligible, emp)
	}
	return eligible, issues, nil
}

type employeeInputs struct {
	attendance []AttendanceRecord
	advances   []EwaAdvance
}

// load reads attendance and advances for every employee. Any read error
// fails the whole load.
func (p *Processor) load(ctx context.Context, period Period, employees []Employee) ([]employeeInputs, error) {
	inputs := make([]employeeInputs, len(employees))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, emp := range employees {
		i, emp := i, emp
		g.Go(func() error {
			if p.Attendance != nil {
				records, err := p.Attendance.AttendanceInRange(gctx, emp.ID, period.Start, period.End)
				if err != nil {
					return fmt.Errorf("load attendance for %s: %w", emp.ID, err)
				}
				inputs[i].attendance = records
			}
			if p.Advances != nil {
				advances, err := p.Advances.AdvancesInRange(gctx, emp.ID, period.Start, period.End)
				if err != nil {
					return fmt.Errorf("load advances for %s: %w", emp.ID, err)
				}
				inputs[i].advances = advances
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return inputs, nil
}

// computeEmployee runs the per-employee pipeline. A panic is returned as an
// error so the caller can record it on the line.
func (p *Processor) computeEmployee(aggregator AttendanceAggregator, emp Employee, in employeeInputs, req CalculateRequest) (calc PayrollCalculation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	hours, err := aggregator.Aggregate(emp.ID, req.Period, in.attendance)
	if err != nil {
		return PayrollCalculation{}, err
	}
	overtime := req.Overtime[emp.ID]
	gross, err := p.Regime.GrossPay(hours.RegularHours, overtime, emp.HourlyRate)
	if err != nil {
		return PayrollCalculation{}, err
	}
	other := req.OtherDeductions[emp.ID]
	if other.IsNegative() {
		return PayrollCalculation{}, fmt.Errorf("other deductions: %w", ErrNegativeAmount)
	}

	statutory := p.Regime.Statutory(gross)
	variable := VariableDeductions{
		Ewa:   EwaTotal(in.advances, emp.ID, req.Period),
		Loan:  emp.LoanDeduction(),
		Other: roundMoney(other),
	}
	deductions := p.Regime.Aggregate(gross, statutory, variable)

	return PayrollCalculation{
		EmployeeID:      emp.ID,
		EmployeeNumber:  emp.EmployeeNumber,
		Name:            emp.Name,
		Department:      emp.Department,
		Position:        emp.Position,
		HoursWorked:     hours.RegularHours,
		OvertimeHours:   overtime,
		HourlyRate:      emp.HourlyRate,
		GrossPay:        gross,
		TaxableIncome:   statutory.TaxableIncome,
		PAYE:            statutory.PAYE,
		NSSF:            statutory.NSSF,
		SHIF:            statutory.SHIF,
		HousingLevy:     statutory.HousingLevy,
		EwaDeductions:   variable.Ewa,
		LoanDeductions:  variable.Loan,
		OtherDeductions: variable.Other,
		TotalDeductions: deductions.Total,
		NetPay:          deductions.Net,
		Status:          deductions.Status,
	}, nil
}

// failedCalculation is the minimal line recorded for an employee whose
// computation failed. All amounts are zero so totals stay consistent.
func failedCalculation(emp Employee, err error) PayrollCalculation {
	return PayrollCalculation{
		EmployeeID:     emp.ID,
		EmployeeNumber: emp.EmployeeNumber,
		Name:           emp.Name,
		Department:     emp.Department,
		Position:       emp.Position,
		HourlyRate:     emp.HourlyRate,
		Status:         Failure{Cause: "Calculation failed: " + err.Error()},
	}
}

func (p *Processor) audit(ctx context.Context, log *slog.Logger, entry AuditEntry) {
	if p.Audit == nil {
		return
	}
	entry.ID = uuid.NewString()
	entry.Timestamp = p.now()
	if err := p.Audit.Append(ctx, entry); err != nil {
		log.Warn("audit append failed", "action", string(entry.Action), "error", err)
	}
}
