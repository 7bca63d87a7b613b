/*
handlers.go - HTTP API handlers for the stock ledger

PURPOSE:
  Exposes the stock service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the stock package.

ENDPOINTS:
  Items:
    GET    /api/items                         List items (search, status, severity, sort, order, page, page_size)
    POST   /api/items                         Create item
    GET    /api/items/{id}                    Get item with severity
    PUT    /api/items/{id}/status             Activate / deactivate

  Movements:
    POST   /api/items/{id}/preview            Preview a movement (no write)
    POST   /api/items/{id}/movements          Commit a movement
    POST   /api/items/{id}/entries/{entryID}/corrections
                                              Offset a committed entry

  Ledger:
    GET    /api/items/{id}/entries            Item history view
    GET    /api/entries                       Ledger-wide audit view

  Reporting:
    GET    /api/items/{id}/summary            Totals and outflow ratio
    GET    /api/items/{id}/audit              Stored balance vs ledger fold
    GET    /api/audits                        Recent scheduled audit runs
    POST   /api/audits/run                    Audit every item now

  Scenarios:
    GET    /api/scenarios                     List demo scenarios
    POST   /api/scenarios/load                Load a demo scenario

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input shape (types, numbers, dates)
  3. Call the stock service
  4. Serialize response
  5. Map errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, invalid view options
  - 404: Item or entry not found
  - 409: Duplicate item, entry already corrected, retry ceiling reached
  - 422: Insufficient stock (body carries requested and available)
  - 500: Internal errors (logged)

SECURITY NOTE:
  Currently NO authentication or authorization. The acting user is the
  actor_id body field of each mutating request.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - scheduler.go: Periodic audit
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
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/stock-ledger/stock"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 100
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *stock.Service
	Logger  *zap.Logger

	// Pinger, when set, is checked by the health endpoint.
	Pinger Pinger

	// Scheduler, when set, enables the /api/audits routes.
	Scheduler *AuditScheduler
}

// Pinger is implemented by stores that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHandler creates a new handler over the given service.
func NewHandler(svc *stock.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Service: svc, Logger: logger}
}

// =============================================================================
// ITEM HANDLERS
// =============================================================================

// ListItems returns one page of items.
// GET /api/items
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, pageSize, err := parsePaging(q.Get("page"), q.Get("page_size"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid paging", err)
		return
	}

	opts := stock.ItemQueryOptions{
		SearchTerm: q.Get("search"),
		Status:     stock.ItemStatus(q.Get("status")),
		Thresholds: h.Service.Thresholds(),
		SortBy:     stock.ItemSortKey(q.Get("sort")),
		SortOrder:  stock.SortOrder(q.Get("order")),
		PageSize:   pageSize,
		PageNumber: page,
	}
	if v := q.Get("severity"); v != "" {
		sev, err := stock.ParseSeverity(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid severity", err)
			return
		}
		opts.Severity = &sev
	}

	items, err := h.Service.ListItems(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	result, err := stock.QueryItems(items, opts)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	th := h.Service.Thresholds()
	writeJSON(w, http.StatusOK, toPageResponse(result, func(it stock.Item) ItemDTO {
		return toItemDTO(it, th)
	}))
}

// CreateItem registers a new item.
// POST /api/items
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if !decodeBody(w, r, &req) {
		return
	}

	item, err := h.Service.CreateItem(r.Context(), stock.NewItem{
		ID:         stock.ItemID(req.ID),
		Code:       req.Code,
		Name:       req.Name,
		CategoryID: req.CategoryID,
		DivisionID: req.DivisionID,
		BaseStock:  req.BaseStock,
		Status:     stock.ItemStatus(req.Status),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toItemDTO(item, h.Service.Thresholds()))
}

// GetItem returns a single item.
// GET /api/items/{id}
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.Service.GetItem(r.Context(), itemIDParam(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(item, h.Service.Thresholds()))
}

// SetStatus activates or deactivates an item.
// PUT /api/items/{id}/status
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req SetStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	item, err := h.Service.SetStatus(r.Context(), itemIDParam(r), stock.ItemStatus(req.Status))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(item, h.Service.Thresholds()))
}

// =============================================================================
// MOVEMENT HANDLERS
// =============================================================================

// PreviewMovement reports what a movement would do without writing.
// POST /api/items/{id}/preview
func (h *Handler) PreviewMovement(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	mt, err := stock.ParseMovementType(req.Type)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	result, err := h.Service.Preview(r.Context(), itemIDParam(r), mt, req.Quantity)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPreviewDTO(result))
}

// CommitMovement records a stock movement.
// POST /api/items/{id}/movements
func (h *Handler) CommitMovement(w http.ResponseWriter, r *http.Request) {
	var req MovementRequest
	if !decodeBody(w, r, &req) {
		return
	}
	mt, err := stock.ParseMovementType(req.Type)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	var occurredAt time.Time
	if req.OccurredAt != "" {
		occurredAt, err = time.Parse(time.RFC3339, req.OccurredAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid occurred_at (use RFC3339)", err)
			return
		}
	}

	result, err := h.Service.Commit(r.Context(), stock.Movement{
		ItemID:     itemIDParam(r),
		Type:       mt,
		Quantity:   req.Quantity,
		Note:       req.Note,
		OccurredAt: occurredAt,
		ActorID:    stock.ActorID(req.ActorID),
		TraceToken: req.TraceToken,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.logNotifyFailure(r, result)

	writeJSON(w, http.StatusCreated, toCommitResponse(result, h.Service.Thresholds()))
}

// CorrectEntry offsets a committed entry.
// POST /api/items/{id}/entries/{entryID}/corrections
func (h *Handler) CorrectEntry(w http.ResponseWriter, r *http.Request) {
	var req CorrectionRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	result, err := h.Service.Correct(r.Context(), stock.CorrectionRequest{
		ItemID:  itemIDParam(r),
		EntryID: stock.EntryID(chi.URLParam(r, "entryID")),
		ActorID: stock.ActorID(req.ActorID),
		Note:    req.Note,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.logNotifyFailure(r, result)

	writeJSON(w, http.StatusCreated, toCommitResponse(result, h.Service.Thresholds()))
}

func (h *Handler) logNotifyFailure(r *http.Request, result *stock.CommitResult) {
	if result.NotifyErr == nil {
		return
	}
	h.Logger.Warn("notification failed",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("item_id", string(result.Item.ID)),
		zap.Stringer("severity", result.Severity),
		zap.Error(result.NotifyErr),
	)
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// ListItemEntries returns one page of an item's history.
// GET /api/items/{id}/entries
func (h *Handler) ListItemEntries(w http.ResponseWriter, r *http.Request) {
	opts, err := parseEntryQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}

	entries, err := h.Service.History(r.Context(), itemIDParam(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeEntryPage(w, r, entries, opts)
}

// ListEntries returns one page of the whole ledger.
// GET /api/entries
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	opts, err := parseEntryQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}
	opts.ItemID = stock.ItemID(r.URL.Query().Get("item_id"))

	entries, err := h.Service.Ledger(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeEntryPage(w, r, entries, opts)
}

func (h *Handler) writeEntryPage(w http.ResponseWriter, r *http.Request, entries []stock.LedgerEntry, opts stock.QueryOptions) {
	page, err := stock.Query(entries, opts)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageResponse(page, toEntryDTO))
}

// =============================================================================
// REPORTING HANDLERS
// =============================================================================

// GetSummary returns ledger totals for an item.
// GET /api/items/{id}/summary
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Service.Summary(r.Context(), itemIDParam(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(summary))
}

// GetAudit reconciles an item's stored balance against its ledger.
// GET /api/items/{id}/audit
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Service.Audit(r.Context(), itemIDParam(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if !rec.Balanced() {
		h.Logger.Error("ledger drift detected",
			zap.String("item_id", string(rec.ItemID)),
			zap.Int("expected", rec.Expected),
			zap.Int("actual", rec.Actual),
		)
	}
	writeJSON(w, http.StatusOK, toAuditDTO(rec))
}

// AuditRunsResponse lists recent scheduled audits.
type AuditRunsResponse struct {
	NextRunAt string     `json:"next_run_at"`
	Runs      []AuditRun `json:"runs"`
}

// ListAuditRuns returns recent audit runs, newest first.
// GET /api/audits
func (h *Handler) ListAuditRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, AuditRunsResponse{
		NextRunAt: formatTime(h.Scheduler.GetNextRunTime()),
		Runs:      h.Scheduler.Runs(),
	})
}

// TriggerAudit runs a full audit immediately.
// POST /api/audits/run
func (h *Handler) TriggerAudit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Scheduler.RunNow(r.Context()))
}

// Health reports liveness and, when a Pinger is wired, store connectivity.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Pinger != nil {
		if err := h.Pinger.Ping(r.Context()); err != nil {
			h.Logger.Error("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// =============================================================================
// PARSING
// =============================================================================

// decodeBody reads a JSON body into dst and checks its validate tags.
// On failure it writes a 400 and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "Invalid request",
				Code:    "invalid_request",
				Details: fields,
			})
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return false
	}
	return true
}

func itemIDParam(r *http.Request) stock.ItemID {
	return stock.ItemID(chi.URLParam(r, "id"))
}

func parsePaging(pageStr, sizeStr string) (int, int, error) {
	page, size := defaultPage, defaultPageSize
	var err error
	if pageStr != "" {
		if page, err = strconv.Atoi(pageStr); err != nil {
			return 0, 0, fmt.Errorf("page: %q is not an integer", pageStr)
		}
	}
	if sizeStr != "" {
		if size, err = strconv.Atoi(sizeStr); err != nil {
			return 0, 0, fmt.Errorf("page_size: %q is not an integer", sizeStr)
		}
		if size > maxPageSize {
			return 0, 0, fmt.Errorf("page_size: at most %d", maxPageSize)
		}
	}
	return page, size, nil
}

// parseEntryQuery reads search, fields, type, from, to, order, page and
// page_size. Range checks are left to stock.Query.
func parseEntryQuery(r *http.Request) (stock.QueryOptions, error) {
	q := r.URL.Query()
	page, pageSize, err := parsePaging(q.Get("page"), q.Get("page_size"))
	if err != nil {
		return stock.QueryOptions{}, err
	}

	opts := stock.QueryOptions{
		SearchTerm: q.Get("search"),
		SortOrder:  stock.SortOrder(q.Get("order")),
		PageSize:   pageSize,
		PageNumber: page,
	}

	switch t := q.Get("type"); t {
	case "", string(stock.TypeAll):
		opts.TypeFilter = stock.TypeFilter(t)
	default:
		mt, err := stock.ParseMovementType(t)
		if err != nil {
			return stock.QueryOptions{}, fmt.Errorf("type: %q must be stock_in, stock_out or all", t)
		}
		opts.TypeFilter = stock.TypeFilter(mt)
	}

	if v := q.Get("fields"); v != "" {
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				opts.Fields = append(opts.Fields, stock.SearchField(f))
			}
		}
	}

	if opts.From, err = parseBound(q.Get("from"), false); err != nil {
		return stock.QueryOptions{}, fmt.Errorf("from: %w", err)
	}
	if opts.To, err = parseBound(q.Get("to"), true); err != nil {
		return stock.QueryOptions{}, fmt.Errorf("to: %w", err)
	}
	return opts, nil
}

// parseBound accepts RFC3339 or a bare date. A bare date used as an upper
// bound covers the whole day.
func parseBound(v string, upper bool) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	d, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC3339 nor YYYY-MM-DD", v)
	}
	if upper {
		d = d.Add(24*time.Hour - time.Nanosecond)
	}
	return d, nil
}

// =============================================================================
// RESPONSES
// =============================================================================

// handleError maps stock errors to HTTP statuses.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *stock.InsufficientStockError
	if errors.As(err, &insufficient) {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:     "Insufficient stock",
			Code:      "insufficient_stock",
			Details:   err.Error(),
			Requested: &insufficient.Requested,
			Available: &insufficient.Available,
		})
		return
	}

	switch {
	case stock.IsNotFound(err):
		writeCodedError(w, http.StatusNotFound, "Not found", errorCode(err), err)
	case errors.Is(err, stock.ErrItemExists),
		errors.Is(err, stock.ErrAlreadyCorrected),
		errors.Is(err, stock.ErrConcurrencyConflict):
		writeCodedError(w, http.StatusConflict, "Conflict", errorCode(err), err)
	case stock.IsClientError(err):
		writeCodedError(w, http.StatusBadRequest, "Invalid request", errorCode(err), err)
	default:
		h.Logger.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

var errorCodes = []struct {
	err  error
	code string
}{
	{stock.ErrItemNotFound, "item_not_found"},
	{stock.ErrEntryNotFound, "entry_not_found"},
	{stock.ErrItemExists, "item_exists"},
	{stock.ErrAlreadyCorrected, "already_corrected"},
	{stock.ErrConcurrencyConflict, "concurrency_conflict"},
	{stock.ErrInvalidQuantity, "invalid_quantity"},
	{stock.ErrInvalidMovementType, "invalid_movement_type"},
	{stock.ErrNoteRequired, "note_required"},
	{stock.ErrInvalidStatus, "invalid_status"},
	{stock.ErrInvalidOptions, "invalid_options"},
}

func errorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	writeCodedError(w, status, message, "", err)
}

func writeCodedError(w http.ResponseWriter, status int, message, code string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
