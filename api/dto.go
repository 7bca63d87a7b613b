/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Items:       ItemDTO, CreateItemRequest, SetStatusRequest
  Movements:   MovementRequest, PreviewRequest, CorrectionRequest,
               CommitResponse, PreviewDTO
  Ledger:      EntryDTO, PageResponse
  Reporting:   SummaryDTO, AuditDTO

VALIDATION:
  `validate` tags cover request shape only (required ids, field lengths)
  and are checked by decodeBody. Stock rules (quantity, notes, balance)
  live in the stock package.

SEE ALSO:
  - handlers.go: Uses these types
  - stock/types.go: Domain model
*/
package api

import (
	"time"

	"github.com/warp/stock-ledger/stock"
)

// =============================================================================
// ITEMS
// =============================================================================

// ItemDTO represents an item in API responses.
type ItemDTO struct {
	ID           string         `json:"id"`
	Code         string         `json:"code"`
	Name         string         `json:"name"`
	CategoryID   string         `json:"category_id,omitempty"`
	DivisionID   string         `json:"division_id,omitempty"`
	BaseStock    int            `json:"base_stock"`
	CurrentStock int            `json:"current_stock"`
	Status       string         `json:"status"`
	Severity     stock.Severity `json:"severity"`
	Version      int            `json:"version"`
	CreatedAt    string         `json:"created_at"`
	UpdatedAt    string         `json:"updated_at"`
}

// CreateItemRequest is the request body for creating an item.
type CreateItemRequest struct {
	ID         string `json:"id" validate:"required,max=64"`
	Code       string `json:"code" validate:"max=64"`
	Name       string `json:"name" validate:"max=200"`
	CategoryID string `json:"category_id" validate:"max=64"`
	DivisionID string `json:"division_id" validate:"max=64"`
	BaseStock  int    `json:"base_stock"`
	Status     string `json:"status"`
}

type SetStatusRequest struct {
	Status string `json:"status"`
}

// =============================================================================
// MOVEMENTS
// =============================================================================

// MovementRequest is the request body for committing a movement.
// Type accepts "stock_in"/"stock_out" or the short "in"/"out".
type MovementRequest struct {
	Type       string `json:"type"`
	Quantity   int    `json:"quantity"`
	Note       string `json:"note" validate:"max=500"`
	OccurredAt string `json:"occurred_at,omitempty"` // RFC3339; empty = commit time
	ActorID    string `json:"actor_id" validate:"max=64"`
	TraceToken string `json:"trace_token,omitempty" validate:"max=128"`
}

type PreviewRequest struct {
	Type     string `json:"type"`
	Quantity int    `json:"quantity"`
}

type CorrectionRequest struct {
	ActorID string `json:"actor_id" validate:"max=64"`
	Note    string `json:"note" validate:"max=500"`
}

type WarningDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PreviewDTO is the prospective outcome of a movement.
type PreviewDTO struct {
	CurrentStock   int            `json:"current_stock"`
	ResultingStock int            `json:"resulting_stock"`
	Delta          int            `json:"delta"`
	Severity       stock.Severity `json:"severity"`
	Allowed        bool           `json:"allowed"`
	Warnings       []WarningDTO   `json:"warnings"`
}

// CommitResponse is returned by the movement and correction endpoints.
type CommitResponse struct {
	Item             ItemDTO        `json:"item"`
	Entry            EntryDTO       `json:"entry"`
	PreviousSeverity stock.Severity `json:"previous_severity"`
	Severity         stock.Severity `json:"severity"`
	Notified         bool           `json:"notified"`
	NotifyError      string         `json:"notify_error,omitempty"`
}

// =============================================================================
// LEDGER
// =============================================================================

// EntryDTO represents a ledger entry in API responses.
type EntryDTO struct {
	ID              string `json:"id"`
	ItemID          string `json:"item_id"`
	Type            string `json:"type"`
	TypeLabel       string `json:"type_label"`
	Quantity        int    `json:"quantity"`
	Delta           int    `json:"delta"`
	Note            string `json:"note,omitempty"`
	OccurredAt      string `json:"occurred_at"`
	TraceToken      string `json:"trace_token,omitempty"`
	ActorID         string `json:"actor_id,omitempty"`
	CorrectsEntryID string `json:"corrects_entry_id,omitempty"`
	BalanceAfter    int    `json:"balance_after"`
	CommittedAt     string `json:"committed_at"`
}

// PageResponse wraps one page of a list endpoint.
type PageResponse[T any] struct {
	Items        []T `json:"items"`
	TotalMatched int `json:"total_matched"`
	TotalPages   int `json:"total_pages"`
	Page         int `json:"page"`
	PageSize     int `json:"page_size"`
}

// =============================================================================
// REPORTING
// =============================================================================

type SummaryDTO struct {
	ItemID          string `json:"item_id"`
	BaseStock       int    `json:"base_stock"`
	CurrentStock    int    `json:"current_stock"`
	TotalIn         int    `json:"total_in"`
	TotalOut        int    `json:"total_out"`
	Net             int    `json:"net"`
	EntryCount      int    `json:"entry_count"`
	Corrections     int    `json:"corrections"`
	FirstOccurredAt string `json:"first_occurred_at,omitempty"`
	LastOccurredAt  string `json:"last_occurred_at,omitempty"`
	OutflowRatio    string `json:"outflow_ratio"`
}

type AuditDTO struct {
	ItemID     string `json:"item_id"`
	Expected   int    `json:"expected"`
	Actual     int    `json:"actual"`
	Drift      int    `json:"drift"`
	Entries    int    `json:"entries"`
	Balanced   bool   `json:"balanced"`
	NegativeAt string `json:"negative_at,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Details   any    `json:"details,omitempty"`
	Requested *int   `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toItemDTO(item stock.Item, th stock.Thresholds) ItemDTO {
	return ItemDTO{
		ID:           string(item.ID),
		Code:         item.Code,
		Name:         item.Name,
		CategoryID:   item.CategoryID,
		DivisionID:   item.DivisionID,
		BaseStock:    item.BaseStock,
		CurrentStock: item.CurrentStock,
		Status:       string(item.Status),
		Severity:     th.Classify(item.CurrentStock),
		Version:      item.Version,
		CreatedAt:    formatTime(item.CreatedAt),
		UpdatedAt:    formatTime(item.UpdatedAt),
	}
}

func toEntryDTO(e stock.LedgerEntry) EntryDTO {
	return EntryDTO{
		ID:              string(e.ID),
		ItemID:          string(e.ItemID),
		Type:            string(e.Type),
		TypeLabel:       e.Type.Label(),
		Quantity:        e.Quantity,
		Delta:           e.Delta(),
		Note:            e.Note,
		OccurredAt:      formatTime(e.OccurredAt),
		TraceToken:      e.TraceToken,
		ActorID:         string(e.ActorID),
		CorrectsEntryID: string(e.CorrectsEntryID),
		BalanceAfter:    e.BalanceAfter,
		CommittedAt:     formatTime(e.CommittedAt),
	}
}

func toPreviewDTO(p stock.PreviewResult) PreviewDTO {
	warnings := make([]WarningDTO, len(p.Warnings))
	for i, w := range p.Warnings {
		warnings[i] = WarningDTO{Code: string(w.Code), Message: w.Message}
	}
	return PreviewDTO{
		CurrentStock:   p.CurrentStock,
		ResultingStock: p.ResultingStock,
		Delta:          p.Delta,
		Severity:       p.Severity,
		Allowed:        p.Allowed(),
		Warnings:       warnings,
	}
}

func toCommitResponse(res *stock.CommitResult, th stock.Thresholds) CommitResponse {
	resp := CommitResponse{
		Item:             toItemDTO(res.Item, th),
		Entry:            toEntryDTO(res.Entry),
		PreviousSeverity: res.PreviousSeverity,
		Severity:         res.Severity,
		Notified:         res.Notified,
	}
	if res.NotifyErr != nil {
		resp.NotifyError = res.NotifyErr.Error()
	}
	return resp
}

func toSummaryDTO(s stock.Summary) SummaryDTO {
	dto := SummaryDTO{
		ItemID:       string(s.ItemID),
		BaseStock:    s.BaseStock,
		CurrentStock: s.CurrentStock,
		TotalIn:      s.TotalIn,
		TotalOut:     s.TotalOut,
		Net:          s.Net,
		EntryCount:   s.EntryCount,
		Corrections:  s.Corrections,
		OutflowRatio: s.OutflowRatio.StringFixed(4),
	}
	if !s.FirstOccurredAt.IsZero() {
		dto.FirstOccurredAt = formatTime(s.FirstOccurredAt)
		dto.LastOccurredAt = formatTime(s.LastOccurredAt)
	}
	return dto
}

func toAuditDTO(r stock.Reconciliation) AuditDTO {
	return AuditDTO{
		ItemID:     string(r.ItemID),
		Expected:   r.Expected,
		Actual:     r.Actual,
		Drift:      r.Drift,
		Entries:    r.Entries,
		Balanced:   r.Balanced(),
		NegativeAt: string(r.NegativeAt),
	}
}

func toPageResponse[T, D any](p stock.Page[T], convert func(T) D) PageResponse[D] {
	items := make([]D, len(p.Items))
	for i, it := range p.Items {
		items[i] = convert(it)
	}
	return PageResponse[D]{
		Items:        items,
		TotalMatched: p.TotalMatched,
		TotalPages:   p.TotalPages,
		Page:         p.PageNumber,
		PageSize:     p.PageSize,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
