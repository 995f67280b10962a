package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/events"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/ledger"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/metrics"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/models"
	core "github.com/GylleadheBodedono/API-Connect-Checklist/reconciliation/service/core"
)

const (
	defaultMaxBodyBytes = 1 << 20
	defaultPendingLimit = 50
	maxPendingLimit     = 500
)

// Submitter is the part of the core service the webhooks need
type Submitter interface {
	SubmitSecondary(ctx context.Context, evaluationID int64) (*core.Outcome, error)
	SubmitPrimary(ctx context.Context, evaluationID int64) (*core.Registration, error)
}

// PendingLister lists secondary submissions awaiting manual resolution
type PendingLister interface {
	ListPending(ctx context.Context, limit int) ([]ledger.PendingRow, error)
}

// Options configures a Handler
type Options struct {
	ServiceName     string
	MaxBodyBytes    int64
	MetricsPath     string
	HealthCheckPath string
}

// Handler serves the webhook, event replay, pending and health endpoints
type Handler struct {
	svc     Submitter
	bus     *events.Bus
	pending PendingLister
	logger  *zap.Logger
	opts    Options
}

// NewHandler creates a Handler
func NewHandler(svc Submitter, bus *events.Bus, pending PendingLister, logger *zap.Logger, opts Options) *Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "invoice-reconciler"
	}
	return &Handler{svc: svc, bus: bus, pending: pending, logger: logger, opts: opts}
}

// Routes registers every endpoint, instrumented with m (which may be nil)
func (h *Handler) Routes(m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()

	secondary := m.InstrumentHandler("webhook_secondary", h.SubmitSecondary)
	mux.HandleFunc("/api/webhook/secondary", secondary)
	mux.HandleFunc("/api/webhook/aprendiz", secondary)

	primary := m.InstrumentHandler("webhook_primary", h.SubmitPrimary)
	mux.HandleFunc("/api/webhook/primary", primary)
	mux.HandleFunc("/api/webhook/estoquista", primary)

	mux.HandleFunc("/api/events", m.InstrumentHandler("events", h.Events))
	mux.HandleFunc("/api/pending", m.InstrumentHandler("pending", h.Pending))

	health := m.InstrumentHandler("health", h.HealthCheck)
	mux.HandleFunc("/api/health", health)
	if h.opts.HealthCheckPath != "" && h.opts.HealthCheckPath != "/api/health" {
		mux.HandleFunc(h.opts.HealthCheckPath, health)
	}

	if m != nil && h.opts.MetricsPath != "" {
		mux.Handle(h.opts.MetricsPath, m.Handler())
	}
	return mux
}

type webhookRequest struct {
	EvaluationID int64 `json:"evaluationId"`
}

// SubmitSecondary handles POST /api/webhook/secondary
func (h *Handler) SubmitSecondary(w http.ResponseWriter, r *http.Request) {
	id, ok := h.decodeWebhook(w, r)
	if !ok {
		return
	}

	out, err := h.svc.SubmitSecondary(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err, id)
		return
	}
	if out.Ignored {
		h.respondJSON(w, map[string]interface{}{
			"success":     true,
			"message":     "ignored - different checklist",
			"checklistId": out.ChecklistID,
		}, http.StatusOK)
		return
	}

	resp := map[string]interface{}{
		"success":         true,
		"message":         outcomeMessage(out),
		"outcome":         string(out.Status()),
		"invoiceNumber":   out.Key,
		"unitName":        out.UnitName,
		"status":          out.Kind.LedgerStatus(),
		"difference":      models.FormatMoney(&out.Delta),
		"secondaryValue":  out.Secondary.ValueText(),
		"row":             int64(out.RowRef),
		"pendingRow":      out.PendingRow,
		"alertDispatched": out.AlertDispatched,
		"duplicate":       out.Duplicate,
		"eventId":         out.EventID,
	}
	if out.Primary != nil {
		resp["primaryValue"] = out.Primary.ValueText()
	}
	if out.DispatchErr != nil {
		resp["dispatchError"] = out.DispatchErr.Error()
	}
	h.respondJSON(w, resp, http.StatusOK)
}

// SubmitPrimary handles POST /api/webhook/primary
func (h *Handler) SubmitPrimary(w http.ResponseWriter, r *http.Request) {
	id, ok := h.decodeWebhook(w, r)
	if !ok {
		return
	}

	reg, err := h.svc.SubmitPrimary(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err, id)
		return
	}
	if reg.Ignored {
		h.respondJSON(w, map[string]interface{}{
			"success":     true,
			"message":     "ignored - different checklist",
			"checklistId": reg.ChecklistID,
		}, http.StatusOK)
		return
	}

	message := "primary registered"
	if reg.Duplicate {
		message = "submission already recorded"
	}
	h.respondJSON(w, map[string]interface{}{
		"success":       true,
		"message":       message,
		"invoiceNumber": reg.Key,
		"unitName":      reg.UnitName,
		"value":         reg.Record.ValueText(),
		"row":           int64(reg.RowRef),
		"duplicate":     reg.Duplicate,
		"eventId":       reg.EventID,
	}, http.StatusOK)
}

// decodeWebhook validates the request and returns the evaluation id. On
// failure the response has already been written.
func (h *Handler) decodeWebhook(w http.ResponseWriter, r *http.Request) (int64, bool) {
	if r.Method != http.MethodPost {
		h.respondError(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return 0, false
	}

	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		h.respondError(w, "Content-Type must be application/json", http.StatusBadRequest)
		return 0, false
	}

	if r.ContentLength > h.opts.MaxBodyBytes {
		h.respondError(w, "Request body too large", http.StatusRequestEntityTooLarge)
		return 0, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	defer r.Body.Close()

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return 0, false
		}
		h.logger.Warn("invalid webhook body", zap.Error(err))
		h.respondError(w, "Bad Request: Invalid JSON format", http.StatusBadRequest)
		return 0, false
	}
	if req.EvaluationID <= 0 {
		h.respondError(w, "evaluationId is required", http.StatusBadRequest)
		return 0, false
	}
	return req.EvaluationID, true
}

func outcomeMessage(out *core.Outcome) string {
	switch {
	case out.Duplicate:
		return "submission already recorded"
	case out.PendingRow && out.AlertDispatched:
		return "invoice not found - saved as pending and alert sent"
	case out.PendingRow:
		return "invoice not found - saved as pending, alert not sent"
	default:
		return "reconciliation complete"
	}
}

// Events handles GET /api/events?after=<id>
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	evs := h.bus.ReadSince(r.URL.Query().Get("after"))
	if evs == nil {
		evs = []events.Event{}
	}
	h.respondJSON(w, map[string]interface{}{"events": evs}, http.StatusOK)
}

type pendingJSON struct {
	Row          int64  `json:"row"`
	Key          string `json:"invoiceNumber"`
	UnitName     string `json:"unitName,omitempty"`
	Submitter    string `json:"submitter"`
	Value        string `json:"value"`
	EntryNumber  string `json:"entryNumber,omitempty"`
	SubmissionID int64  `json:"submissionId"`
	ReceivedAt   string `json:"receivedAt"`
}

// Pending handles GET /api/pending?limit=N
func (h *Handler) Pending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultPendingLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.respondError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxPendingLimit)
	}

	rows, err := h.pending.ListPending(r.Context(), limit)
	if err != nil {
		h.logger.Error("list pending failed", zap.Error(err))
		h.respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]pendingJSON, 0, len(rows))
	for _, p := range rows {
		out = append(out, pendingJSON{
			Row:          int64(p.Ref),
			Key:          p.Key,
			UnitName:     p.UnitName,
			Submitter:    p.Submitter,
			Value:        models.FormatMoney(&p.Value),
			EntryNumber:  p.EntryNumber,
			SubmissionID: p.SubmissionID,
			ReceivedAt:   p.ReceivedAt.Format(time.RFC3339),
		})
	}
	h.respondJSON(w, map[string]interface{}{"pending": out}, http.StatusOK)
}

// HealthCheck handles GET /api/health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339Nano),
		"service":   h.opts.ServiceName,
	}
	h.respondJSON(w, resp, http.StatusOK)
}

// respondServiceError maps core errors to status codes
func (h *Handler) respondServiceError(w http.ResponseWriter, err error, evaluationID int64) {
	statusCode := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrValidation):
		statusCode = http.StatusBadRequest
	case errors.Is(err, core.ErrConflict):
		statusCode = http.StatusConflict
	}

	if statusCode == http.StatusInternalServerError {
		h.logger.Error("submission failed", zap.Int64("evaluation_id", evaluationID), zap.Error(err))
	} else {
		h.logger.Warn("submission rejected", zap.Int64("evaluation_id", evaluationID), zap.Error(err))
	}
	h.respondError(w, err.Error(), statusCode)
}

// respondJSON sends JSON response
func (h *Handler) respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode JSON response", zap.Error(err))
	}
}

// respondError sends error response
func (h *Handler) respondError(w http.ResponseWriter, message string, statusCode int) {
	errorResp := map[string]interface{}{
		"success": false,
		"error":   message,
		"status":  statusCode,
	}

	h.respondJSON(w, errorResp, statusCode)
}
