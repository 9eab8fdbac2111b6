/*
handlers.go - HTTP API handlers for the payroll engine

PURPOSE:
  Exposes the payroll engine via REST API. Handles HTTP request/response,
  JSON serialization and validation, and delegates to the engine.

ENDPOINTS:
  Employees:
    GET    /api/employees                          List all employees

  Regime:
    GET    /api/regime                             Active tax regime as JSON

  Runs:
    POST   /api/payroll/runs                       Start a run (202)
    GET    /api/payroll/runs/{id}                  Run state, summary and pay lines
    GET    /api/payroll/runs/{id}/events           Server-sent events (stream.go)
    POST   /api/payroll/runs/{id}/adjustments      Manual adjustment of one line
    POST   /api/payroll/runs/{id}/exclusions       Exclude an employee
    POST   /api/payroll/runs/{id}/recalculate      Discard review, rerun (202)
    POST   /api/payroll/runs/{id}/finalize         Freeze the run
    GET    /api/payroll/runs/{id}/audit            Audit trail of the run

  Finalized:
    GET    /api/payroll/finalized?start=&end=      Finalized records of a period
    GET    /api/payroll/finalized/{id}/payslip.pdf Payslip PDF

  Scenarios:
    GET    /api/scenarios                          List demo scenarios
    POST   /api/scenarios/load                     Load a demo scenario

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: SQLite collaborator for every engine interface
  - Processor + Runs: background runs and their review sessions
  - Hub: SSE fan-out
  - Payslips: PDF renderer

ERROR HANDLING:
  Errors are returned as JSON {error, details, issues} with HTTP status:
  - 400: Malformed body, failed field validation, invalid adjustment
  - 404: Unknown run, employee or finalized record
  - 409: Session closed, period already finalized, unresolved error rows,
         run has no result yet
  - 422: Pre-flight payroll validation failed (issues listed)
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. ActorID and RequestedBy are taken
  from the request body as given.

SEE ALSO:
  - dto.go: Request/response data structures
  - runs.go: Run registry
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/export"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

type Options struct {
	Regime payroll.TaxRegime // zero value means payroll.DefaultRegime()

	// Coverage is the attendance coverage ratio; nil keeps full coverage.
	Coverage *decimal.Decimal

	Company  string
	Currency string // defaults to the regime's currency
	Logger   *slog.Logger
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store         *sqlite.Store
	Processor     *payroll.Processor
	Runs          *RunRegistry
	Hub           *Hub
	Regime        payroll.TaxRegime
	RegimeFactory *factory.RegimeFactory
	Payslips      *export.PayslipRenderer
	Logger        *slog.Logger

	validate *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the engine to the store: the store serves as every
// source, the payroll store, the holiday calendar and the audit log.
func NewHandler(store *sqlite.Store, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	regime := opts.Regime
	if regime.Name == "" {
		regime = payroll.DefaultRegime()
	}

	processor := payroll.NewProcessor(store, logger)
	processor.Holidays = store
	processor.Payroll = store
	processor.Audit = store
	processor.Regime = regime
	if opts.Coverage != nil {
		processor.Aggregator.Coverage = *opts.Coverage
	}

	hub := NewHub()
	runs := NewRunRegistry(processor, hub, logger,
		payroll.WithRegime(regime),
		payroll.WithAuditLog(store),
		payroll.WithLogger(logger),
	)

	company := opts.Company
	if company == "" {
		company = "Payroll"
	}
	currency := opts.Currency
	if currency == "" {
		currency = regime.Currency
	}

	return &Handler{
		Store:         store,
		Processor:     processor,
		Runs:          runs,
		Hub:           hub,
		Regime:        regime,
		RegimeFactory: factory.NewRegimeFactory(),
		Payslips:      export.NewPayslipRenderer(company, currency),
		Logger:        logger,
		validate:      newValidator(),
	}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// =============================================================================
// EMPLOYEES / REGIME
// =============================================================================

// ListEmployees returns all employees.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list employees", err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRegime returns the regime in the same JSON shape REGIME_FILE accepts.
func (h *Handler) GetRegime(w http.ResponseWriter, r *http.Request) {
	body, err := h.RegimeFactory.ToJSON(h.Regime)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode regime", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, body)
}

// =============================================================================
// RUNS
// =============================================================================

// StartRun starts a background payroll run.
// POST /api/payroll/runs
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req CalculateRequest
	if err := h.decode(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	calcReq, err := req.toCalculateRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	view, err := h.Runs.Start(calcReq)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Location", "/api/payroll/runs/"+string(view.ID))
	writeJSON(w, http.StatusAccepted, toRunDTO(view, false))
}

// GetRun returns the run state. Pay lines are included unless lines=false.
// GET /api/payroll/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	view, err := h.Runs.Get(runIDParam(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(view, r.URL.Query().Get("lines") != "false"))
}

// AdjustRun applies a manual adjustment to one pay line.
// POST /api/payroll/runs/{id}/adjustments
func (h *Handler) AdjustRun(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := h.decode(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	session, err := h.Runs.Session(runIDParam(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	calc, summary, err := session.Adjust(r.Context(), payroll.Adjustment{
		EmployeeID:    payroll.EmployeeID(req.EmployeeID),
		GrossPay:      req.GrossPay,
		HoursWorked:   req.HoursWorked,
		OvertimeHours: req.OvertimeHours,
		EwaDeductions: req.EwaDeductions,
		NetPay:        req.NetPay,
		Reason:        req.Reason,
		ActorID:       req.ActorID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AdjustmentResponse{
		Calculation: toCalculationDTO(calc),
		Summary:     toSummaryDTO(summary),
	})
}

// ExcludeEmployee drops an employee from the review session.
// POST /api/payroll/runs/{id}/exclusions
func (h *Handler) ExcludeEmployee(w http.ResponseWriter, r *http.Request) {
	var req ExclusionRequest
	if err := h.decode(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	session, err := h.Runs.Session(runIDParam(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	summary, err := session.Exclude(r.Context(), payroll.EmployeeID(req.EmployeeID), req.Reason, req.ActorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "excluded",
		"employee": req.EmployeeID,
		"summary":  toSummaryDTO(summary),
	})
}

// RecalculateRun discards the review session and reruns the batch.
// POST /api/payroll/runs/{id}/recalculate
func (h *Handler) RecalculateRun(w http.ResponseWriter, r *http.Request) {
	var req RecalculateRequest
	if err := h.decode(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	view, err := h.Runs.Recalculate(runIDParam(r), req.RequestedBy)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Location", "/api/payroll/runs/"+string(view.ID))
	writeJSON(w, http.StatusAccepted, toRunDTO(view, false))
}

// FinalizeRun persists the reviewed pay lines and closes the session.
// POST /api/payroll/runs/{id}/finalize
func (h *Handler) FinalizeRun(w http.ResponseWriter, r *http.Request) {
	var req FinalizeRequest
	if err := h.decode(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	session, err := h.Runs.Session(runIDParam(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	records, err := session.Finalize(r.Context(), h.Store, payroll.FinalizeRequest{Note: req.Note, By: req.By})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "finalized",
		"records": toFinalizedDTOs(records),
	})
}

// ListRunAudit returns the audit trail of a run.
// GET /api/payroll/runs/{id}/audit
func (h *Handler) ListRunAudit(w http.ResponseWriter, r *http.Request) {
	runID := runIDParam(r)
	if _, err := h.Runs.Get(runID); err != nil {
		writeDomainError(w, err)
		return
	}

	entries, err := h.Store.Query(r.Context(), payroll.AuditFilter{RunID: &runID})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query audit log", err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": dtos})
}

// =============================================================================
// FINALIZED PAYROLL
// =============================================================================

// ListFinalized returns the finalized records of a period.
// GET /api/payroll/finalized?start=2025-03-01&end=2025-03-31
func (h *Handler) ListFinalized(w http.ResponseWriter, r *http.Request) {
	start, err := payroll.ParseTimePoint(r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start date (use YYYY-MM-DD)", err)
		return
	}
	end, err := payroll.ParseTimePoint(r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end date (use YYYY-MM-DD)", err)
		return
	}
	period := payroll.Period{Start: start, End: end}
	if err := period.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}

	records, err := h.Store.ListFinalized(r.Context(), period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list finalized payroll", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": toFinalizedDTOs(records)})
}

// GetPayslip renders the payslip of one finalized record.
// GET /api/payroll/finalized/{id}/payslip.pdf
func (h *Handler) GetPayslip(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Store.GetFinalized(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := h.Payslips.Render(&buf, rec); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render payslip", err)
		return
	}

	filename := fmt.Sprintf("payslip-%s-%s.pdf", rec.Calculation.EmployeeID, rec.Period.Start)
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// =============================================================================
// ADMIN
// =============================================================================

// ResetDatabase clears all data and forgets every run (dev only).
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) reset(r *http.Request) error {
	h.Runs.Reset()
	if err := h.Store.Reset(r.Context()); err != nil {
		return err
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func runIDParam(r *http.Request) payroll.RunID {
	return payroll.RunID(chi.URLParam(r, "id"))
}

// decode reads a JSON body into dst and validates it. An empty body is
// accepted when allowEmpty is set.
func (h *Handler) decode(r *http.Request, dst any, allowEmpty bool) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			return err
		}
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine and registry errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var verr *payroll.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "Payroll validation failed",
			Details: err.Error(),
			Issues:  toIssueDTOs(verr.Issues),
		})
	case errors.Is(err, ErrRunNotFound), payroll.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, ErrRunNotReady), payroll.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	case payroll.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	case errors.Is(err, ErrRegistryStopped):
		writeError(w, http.StatusServiceUnavailable, "Server shutting down", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
