/*
runs.go - Registry of background payroll runs

PURPOSE:
  Owns every payroll run started over HTTP. Each run is followed by one
  goroutine that drains its events, records progress, publishes frames to
  the Hub, and opens a review Session when the run completes.

SUPERSESSION:
  Only the latest run of a period counts. Starting a run for a period that
  already has one cancels the older run (if still going), discards its
  review session, and marks it superseded. Events that arrive later from
  the older run are dropped. A finalized run is never superseded.

LIFECYCLE:
  running -> completed | invalid | failed
  running | completed -> superseded
  completed -> finalized (once its session is finalized)

  Runs use the registry's own context, not the request's: a run outlives
  the POST that started it. Stop cancels every run and waits for the
  followers to exit.

USAGE:
  runs := NewRunRegistry(processor, hub, logger)
  view, err := runs.Start(req)
  ...
  runs.Stop()

SEE ALSO:
  - payroll/processor.go: the run itself
  - stream.go: SSE delivery of published frames
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/payroll-engine/payroll"
)

var (
	ErrRunNotFound = errors.New("payroll run not found")

	// ErrRunNotReady is returned when a run has no reviewable result.
	ErrRunNotReady = errors.New("payroll run has no result to review")

	ErrRegistryStopped = errors.New("run registry stopped")
)

type RunStatus string

const (
	RunRunning    RunStatus = "running"
	RunCompleted  RunStatus = "completed"
	RunInvalid    RunStatus = "invalid"
	RunFailed     RunStatus = "failed"
	RunSuperseded RunStatus = "superseded"
	RunFinalized  RunStatus = "finalized"
)

func (s RunStatus) Terminal() bool { return s != RunRunning }

// RunView is a point-in-time copy of a run's state.
type RunView struct {
	ID           payroll.RunID
	Period       payroll.Period
	RequestedBy  string
	StartedAt    time.Time
	Status       RunStatus
	Percent      int
	Issues       []payroll.ValidationIssue
	Message      string
	SupersededBy payroll.RunID
	Session      *payroll.Session // completed or finalized runs only
}

type trackedRun struct {
	run          *payroll.Run
	req          payroll.CalculateRequest
	status       RunStatus
	percent      int
	issues       []payroll.ValidationIssue
	message      string
	supersededBy payroll.RunID
	session      *payroll.Session
	discarded    bool // late events are dropped
	settled      chan struct{}
}

func (t *trackedRun) view() RunView {
	status := t.status
	if status == RunCompleted && t.session != nil && t.session.Closed() {
		status = RunFinalized
	}
	return RunView{
		ID:           t.run.ID,
		Period:       t.run.Period,
		RequestedBy:  t.run.RequestedBy,
		StartedAt:    t.run.StartedAt,
		Status:       status,
		Percent:      t.percent,
		Issues:       append([]payroll.ValidationIssue(nil), t.issues...),
		Message:      t.message,
		SupersededBy: t.supersededBy,
		Session:      t.session,
	}
}

// RunRegistry tracks background runs and their review sessions.
type RunRegistry struct {
	Processor      *payroll.Processor
	Hub            *Hub
	Logger         *slog.Logger
	SessionOptions []payroll.SessionOption

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	mu     sync.Mutex
	runs   map[payroll.RunID]*trackedRun
	latest map[string]payroll.RunID // period key -> run
}

func NewRunRegistry(processor *payroll.Processor, hub *Hub, logger *slog.Logger, opts ...payroll.SessionOption) *RunRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RunRegistry{
		Processor:      processor,
		Hub:            hub,
		Logger:         logger,
		SessionOptions: opts,
		ctx:            ctx,
		cancel:         cancel,
		runs:           make(map[payroll.RunID]*trackedRun),
		latest:         make(map[string]payroll.RunID),
	}
}

// Start launches a run for req.Period, superseding the period's previous run.
func (rr *RunRegistry) Start(req payroll.CalculateRequest) (RunView, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if rr.ctx.Err() != nil {
		return RunView{}, ErrRegistryStopped
	}
	run, err := rr.Processor.Start(rr.ctx, req)
	if err != nil {
		return RunView{}, err
	}

	tracked := &trackedRun{
		run:     run,
		req:     req,
		status:  RunRunning,
		settled: make(chan struct{}),
	}
	key := req.Period.Key()
	if prevID, ok := rr.latest[key]; ok {
		rr.supersede(rr.runs[prevID], run.ID)
	}
	rr.runs[run.ID] = tracked
	rr.latest[key] = run.ID

	rr.Logger.Info("payroll run registered", "run_id", string(run.ID), "period", key)

	rr.wg.Add(1)
	go rr.follow(tracked)

	return tracked.view(), nil
}

// supersede retires prev in favour of next. Caller holds rr.mu.
func (rr *RunRegistry) supersede(prev *trackedRun, next payroll.RunID) {
	if prev == nil || prev.discarded {
		return
	}
	if prev.session != nil && prev.session.Closed() {
		return
	}
	if prev.status == RunRunning {
		prev.run.Cancel()
	}
	prev.status = RunSuperseded
	prev.supersededBy = next
	prev.discarded = true
	prev.session = nil
	rr.Hub.Close(prev.run.ID)

	rr.Logger.Info("payroll run superseded", "run_id", string(prev.run.ID), "superseded_by", string(next))
}

// follow drains a run's events until its channel closes. A cancelled run
// may close the channel without a final event; subscribers are released
// either way.
func (rr *RunRegistry) follow(t *trackedRun) {
	defer rr.wg.Done()
	defer close(t.settled)
	defer rr.Hub.Close(t.run.ID)

	final := false
	for ev := range t.run.Events() {
		final = final || ev.Final()
		if !rr.apply(t, ev) {
			continue
		}
		rr.Hub.Publish(t.run.ID, StreamEvent{Event: string(ev.Kind), Data: toEventDTO(ev)})
	}
	if !final {
		rr.markFailed(t, "run ended without a result")
	}
}

func (rr *RunRegistry) markFailed(t *trackedRun, message string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if t.discarded || t.status != RunRunning {
		return
	}
	t.status = RunFailed
	t.message = message
}

// apply records ev on t and reports whether it should be published.
func (rr *RunRegistry) apply(t *trackedRun, ev payroll.Event) bool {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if t.discarded {
		return false
	}
	switch ev.Kind {
	case payroll.EventProgress:
		if ev.Percent > t.percent {
			t.percent = ev.Percent
		}
	case payroll.EventCompleted:
		t.status = RunCompleted
		t.percent = 100
		t.session = payroll.NewSession(ev.Result, rr.SessionOptions...)
	case payroll.EventInvalid:
		t.status = RunInvalid
		t.issues = ev.Issues
	case payroll.EventFailed:
		t.status = RunFailed
		t.message = ev.Message
	}
	return true
}

func (rr *RunRegistry) lookup(id payroll.RunID) (*trackedRun, error) {
	t, ok := rr.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return t, nil
}

func (rr *RunRegistry) Get(id payroll.RunID) (RunView, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	t, err := rr.lookup(id)
	if err != nil {
		return RunView{}, err
	}
	return t.view(), nil
}

// Session returns the review session of a completed run.
func (rr *RunRegistry) Session(id payroll.RunID) (*payroll.Session, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	t, err := rr.lookup(id)
	if err != nil {
		return nil, err
	}
	if t.session == nil {
		return nil, fmt.Errorf("%w: run %s is %s", ErrRunNotReady, id, t.view().Status)
	}
	return t.session, nil
}

// Recalculate discards a run's review session and reruns its request.
func (rr *RunRegistry) Recalculate(id payroll.RunID, requestedBy string) (RunView, error) {
	rr.mu.Lock()
	t, err := rr.lookup(id)
	if err != nil {
		rr.mu.Unlock()
		return RunView{}, err
	}
	if t.session != nil && t.session.Closed() {
		rr.mu.Unlock()
		return RunView{}, fmt.Errorf("%w: run %s was finalized", payroll.ErrSessionClosed, id)
	}
	req := t.req
	rr.mu.Unlock()

	if requestedBy != "" {
		req.RequestedBy = requestedBy
	}
	return rr.Start(req)
}

// Wait blocks until the run's follower has recorded its final event.
func (rr *RunRegistry) Wait(ctx context.Context, id payroll.RunID) (RunView, error) {
	rr.mu.Lock()
	t, err := rr.lookup(id)
	rr.mu.Unlock()
	if err != nil {
		return RunView{}, err
	}

	select {
	case <-t.settled:
	case <-ctx.Done():
		return RunView{}, ctx.Err()
	}
	return rr.Get(id)
}

// Reset forgets every run, cancelling those still going.
func (rr *RunRegistry) Reset() {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	for id, t := range rr.runs {
		if t.status == RunRunning {
			t.run.Cancel()
		}
		t.discarded = true
		rr.Hub.Close(id)
	}
	rr.runs = make(map[payroll.RunID]*trackedRun)
	rr.latest = make(map[string]payroll.RunID)
}

// Stop cancels all runs and waits for their followers. Safe to call twice.
func (rr *RunRegistry) Stop() {
	rr.stopOnce.Do(func() {
		rr.cancel()
		rr.wg.Wait()
		rr.Logger.Info("run registry stopped")
	})
}
