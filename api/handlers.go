/*
handlers.go - HTTP handlers for the engine's collaborator boundary

PURPOSE:
  Exposes the engine's operations to administrative and orchestration
  collaborators: structure registration, tax configuration, the period
  lifecycle, batch payroll runs, and report export. Anything resembling
  a UI, a PDF, or a bank API lives elsewhere.

ERROR MAPPING:
  Validation errors (registry input, missing context)  -> 422
  Lifecycle guard failures (invalid transition)        -> 409
  Missing records                                      -> 404
  Fatal consistency violations                         -> 500

SEE ALSO:
  - server.go: Router wiring
  - payrun.go: Batch run endpoint
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
)

// Handler bundles the engine components the HTTP boundary fronts.
type Handler struct {
	Registry   *payroll.Registry
	Configs    payroll.ConfigStore
	Lifecycle  *payroll.Lifecycle
	Aggregator *payroll.Aggregator
	Runner     *payroll.BatchRunner
	Events     payroll.LedgerEventSink
	Log        zerolog.Logger
}

// =============================================================================
// STRUCTURES
// =============================================================================

func (h *Handler) RegisterStructure(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	structure, err := factory.ParseStructure(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.Registry.Register(r.Context(), structure); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": string(structure.ID)})
}

func (h *Handler) GetActiveStructure(w http.ResponseWriter, r *http.Request) {
	subject := payroll.SubjectID(chi.URLParam(r, "subject"))
	date := time.Now()
	if q := r.URL.Query().Get("date"); q != "" {
		parsed, err := time.Parse("2006-01-02", q)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		date = parsed
	}

	structure, err := h.Registry.ActiveStructureFor(r.Context(), subject, date)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, structure)
}

// =============================================================================
// TAX CONFIGS
// =============================================================================

func (h *Handler) RegisterTaxConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	config, err := factory.ParseTaxConfig(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.Configs.SaveConfig(r.Context(), config); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"jurisdiction": string(config.JurisdictionID)})
}

// =============================================================================
// PERIOD LIFECYCLE
// =============================================================================

func (h *Handler) CreatePeriod(w http.ResponseWriter, r *http.Request) {
	var req createPeriodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	start, err1 := time.Parse("2006-01-02", req.Start)
	end, err2 := time.Parse("2006-01-02", req.End)
	payDate, err3 := time.Parse("2006-01-02", req.PaymentDate)
	if err1 != nil || err2 != nil || err3 != nil {
		writeError(w, http.StatusBadRequest, errors.New("dates must be YYYY-MM-DD"))
		return
	}

	snapshot, err := req.context()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	p, err := h.Lifecycle.CreatePeriod(r.Context(),
		payroll.SubjectID(req.Subject), payroll.JurisdictionID(req.Jurisdiction),
		start, end, payDate, snapshot)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPeriodDTO(p))
}

func (h *Handler) GetPeriod(w http.ResponseWriter, r *http.Request) {
	p, err := h.Lifecycle.Period(r.Context(), payroll.PeriodID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(p))
}

func (h *Handler) CalculatePeriod(w http.ResponseWriter, r *http.Request) {
	p, err := h.Lifecycle.Calculate(r.Context(), payroll.PeriodID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(p))
}

func (h *Handler) ApprovePeriod(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Approver == "" {
		writeError(w, http.StatusBadRequest, errors.New("approver is required"))
		return
	}

	p, err := h.Lifecycle.Approve(r.Context(), payroll.PeriodID(chi.URLParam(r, "id")), req.Approver)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(p))
}

func (h *Handler) PayPeriod(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.PaymentReference == "" {
		writeError(w, http.StatusBadRequest, errors.New("payment_reference is required"))
		return
	}

	p, err := h.Lifecycle.MarkPaid(r.Context(), payroll.PeriodID(chi.URLParam(r, "id")), req.PaymentReference)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(p))
}

func (h *Handler) CancelPeriod(w http.ResponseWriter, r *http.Request) {
	p, err := h.Lifecycle.Cancel(r.Context(), payroll.PeriodID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(p))
}

func (h *Handler) ReversePeriod(w http.ResponseWriter, r *http.Request) {
	p, err := h.Lifecycle.CreateReversal(r.Context(), payroll.PeriodID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPeriodDTO(p))
}

// =============================================================================
// REPORTS & EVENTS
// =============================================================================

// GetReport aggregates Paid periods for ?jurisdiction=&subjects=a,b&year=
// and optionally &month=.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	jurisdiction := payroll.JurisdictionID(q.Get("jurisdiction"))
	if jurisdiction == "" {
		writeError(w, http.StatusBadRequest, errors.New("jurisdiction is required"))
		return
	}

	year, err := strconv.Atoi(q.Get("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("year is required"))
		return
	}

	window := payroll.YearWindow(year)
	if m := q.Get("month"); m != "" {
		month, err := strconv.Atoi(m)
		if err != nil || month < 1 || month > 12 {
			writeError(w, http.StatusBadRequest, errors.New("month must be 1-12"))
			return
		}
		window = payroll.MonthWindow(year, time.Month(month))
	}

	var subjects []payroll.SubjectID
	for _, s := range strings.Split(q.Get("subjects"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			subjects = append(subjects, payroll.SubjectID(s))
		}
	}
	if len(subjects) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("subjects is required"))
		return
	}

	report, err := h.Aggregator.Aggregate(r.Context(), jurisdiction, subjects, window)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(report))
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Events.Events(r.Context())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// =============================================================================
// SHARED
// =============================================================================

func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, payroll.ErrInvalidTransition) || errors.Is(err, payroll.ErrIncompletePeriodSet):
		writeError(w, http.StatusConflict, err)
	case payroll.IsNotFound(err):
		writeError(w, http.StatusNotFound, err)
	case payroll.IsValidation(err):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		h.Log.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
