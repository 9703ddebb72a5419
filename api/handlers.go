/*
handlers.go - HTTP API handlers for the costing service

PURPOSE:
  Exposes the costing engine via REST API. Handles HTTP request/response,
  JSON serialization and input validation, and delegates to reporting.Service.

ENDPOINTS:
  Summaries:
    GET    /api/summary                 One method over a window
    GET    /api/summary/compare         WAC and FIFO side by side
    GET    /api/summary/events          Classified stream a replay reads

  Audit trail:
    POST   /api/events                  Append stock changes
    GET    /api/events?limit=           Latest rows, newest first
    GET    /api/reasons                 Reason table

  Scenarios:
    GET    /api/scenarios               List demo scenarios
    GET    /api/scenarios/current       Last loaded scenario
    POST   /api/scenarios/load          Replace the trail with a scenario

QUERY PARAMETERS (summary endpoints):
  method    wac | fifo (case-insensitive, /api/summary only)
  from, to  YYYY-MM-DD, both inclusive; omitted bounds use the default window
  supplier  supplier ID, matched case-insensitively
  item      item ID

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed input, invalid window, unknown method
  - 409: Duplicate event ID
  - 422: Reason code not in the reason table
  - 503: Audit trail unreachable
  - 500: Everything else

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/costing-engine/costing"
	"github.com/warp/costing-engine/logger"
	"github.com/warp/costing-engine/reporting"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
	healthTimeout     = 2 * time.Second
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger is a dependency the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *reporting.Service

	validate *validator.Validate
	checks   map[string]Pinger

	// Track currently loaded scenario
	mu              sync.RWMutex
	currentScenario string
}

// NewHandler creates a handler over svc.
func NewHandler(svc *reporting.Service) *Handler {
	return &Handler{
		Service:  svc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		checks:   make(map[string]Pinger),
	}
}

// AddHealthCheck registers a dependency probed by /healthz.
func (h *Handler) AddHealthCheck(name string, p Pinger) {
	h.checks[name] = p
}

// =============================================================================
// SUMMARY ENDPOINTS
// =============================================================================

// GetSummary computes one costing method over a window.
// GET /api/summary?method=fifo&from=2025-03-01&to=2025-03-31&supplier=acme
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}
	method, err := costing.ParseMethod(r.URL.Query().Get("method"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid method", err)
		return
	}
	q.Method = method

	summary, err := h.Service.Summary(r.Context(), q)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(summary))
}

// CompareMethods computes WAC and FIFO over the same window.
// GET /api/summary/compare?from=&to=&supplier=&item=
func (h *Handler) CompareMethods(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}

	c, err := h.Service.Compare(r.Context(), q)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCompareDTO(c))
}

// GetStream returns the classified, ordered events behind a summary.
// GET /api/summary/events?from=&to=&supplier=&item=
func (h *Handler) GetStream(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}

	win, events, err := h.Service.Stream(r.Context(), q)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStreamDTO(win, events))
}

// parseQuery reads the window and scope parameters. Method is left to the
// caller since compare doesn't take one.
func parseQuery(r *http.Request) (reporting.Query, error) {
	values := r.URL.Query()
	q := reporting.Query{
		Scope: costing.Scope{
			SupplierID: values.Get("supplier"),
			ItemID:     values.Get("item"),
		}.Normalize(),
	}

	if s := values.Get("from"); s != "" {
		from, err := costing.ParseDate(s)
		if err != nil {
			return q, fmt.Errorf("from: %w", err)
		}
		q.From = &from
	}
	if s := values.Get("to"); s != "" {
		to, err := costing.ParseDate(s)
		if err != nil {
			return q, fmt.Errorf("to: %w", err)
		}
		q.To = &to
	}
	return q, nil
}

// =============================================================================
// AUDIT TRAIL ENDPOINTS
// =============================================================================

// RecordEvents appends stock changes to the audit trail.
// POST /api/events
func (h *Handler) RecordEvents(w http.ResponseWriter, r *http.Request) {
	var req RecordEventsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !h.validRequest(w, req) {
		return
	}

	rows := make([]costing.RawEvent, 0, len(req.Events))
	for i, e := range req.Events {
		if e.UnitPrice != nil && e.UnitPrice.IsNegative() {
			writeError(w, http.StatusBadRequest, "Invalid event",
				fmt.Errorf("events[%d]: unit price must not be negative", i))
			return
		}
		rows = append(rows, e.toRaw())
	}

	written, err := h.Service.RecordEvents(r.Context(), rows)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, RecordEventsResponse{
		Recorded: len(written),
		Events:   toEventDTOs(written, h.Service.Reasons()),
	})
}

// ListEvents returns the latest audit rows.
// GET /api/events?limit=50
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > maxEventLimit {
			writeError(w, http.StatusBadRequest, "Invalid limit",
				fmt.Errorf("limit must be between 1 and %d", maxEventLimit))
			return
		}
		limit = n
	}

	rows, err := h.Service.RecentEvents(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTOs(rows, h.Service.Reasons()))
}

// ListReasons returns the reason table.
// GET /api/reasons
func (h *Handler) ListReasons(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toReasonDTOs(h.Service.Reasons()))
}

// =============================================================================
// HEALTH
// =============================================================================

// Health probes every registered dependency.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.checks))
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	body := map[string]any{"status": "ok", "checks": checks}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	writeJSON(w, status, body)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) validRequest(w http.ResponseWriter, req any) bool {
	err := h.validate.Struct(req)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return false
	}
	resp := ErrorResponse{Error: "Validation failed", Fields: make(map[string]string, len(verrs))}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		resp.Fields[fieldPath(fe)] = msgForTag(fe)
		msgs = append(msgs, fmt.Sprintf("%s %s", fieldPath(fe), msgForTag(fe)))
	}
	resp.Details = strings.Join(msgs, "; ")
	writeJSON(w, http.StatusBadRequest, resp)
	return false
}

// fieldPath drops the top-level struct name: "RecordEventsRequest.Events[0].ItemID"
// becomes "Events[0].ItemID".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func msgForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s long", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed on '%s' validation", fe.Tag())
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ue *costing.UnclassifiedReasonError
	switch {
	case errors.As(err, &ue):
		writeError(w, http.StatusUnprocessableEntity, "Unclassified reason code", err)
	case errors.Is(err, costing.ErrInvalidQuantity):
		writeError(w, http.StatusUnprocessableEntity, "Quantity out of range", err)
	case costing.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	case errors.Is(err, costing.ErrDuplicateEvent):
		writeError(w, http.StatusConflict, "Duplicate event", err)
	case errors.Is(err, costing.ErrSourceUnavailable):
		logger.FromContext(r.Context()).Error("audit trail unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Audit trail unavailable", err)
	default:
		logger.FromContext(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
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
