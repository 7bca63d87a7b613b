/*
view.go - Reconciliation views over the ledger and the item list

PURPOSE:
  Produces stable, filtered, sorted, paginated projections for the audit
  log, the per-item history, and the item list screens. Views never mutate
  their input.

ALGORITHM:
  filter → sort → slice

  Filtering and sorting run over the FULL matching set before slicing, so
  TotalMatched and TotalPages always agree with the returned page and page
  boundaries never split or duplicate the ordering.

ORDERING:
  Entries sort by OccurredAt, then ID. Items sort by the chosen key, then
  ID. Both orders are total, which makes every query deterministic:
  identical input and options produce identical output.

EDGE CASES:
  - PageNumber past TotalPages → empty page, counts still correct
  - PageSize <= 0 or PageNumber <= 0 → *InvalidOptionsError
  - no input → TotalMatched 0, TotalPages 0, empty page

PUSHDOWN:
  Nothing here depends on how entries were fetched; a store may apply the
  same options server-side without changing what callers observe.
*/
package stock

import (
	"sort"
	"strings"
	"time"
)

// =============================================================================
// SHARED OPTIONS
// =============================================================================

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Page is one slice of a filtered, sorted result.
type Page[T any] struct {
	Items        []T
	TotalMatched int
	TotalPages   int
	PageNumber   int
	PageSize     int
}

func validatePaging(pageSize, pageNumber int) error {
	if pageSize <= 0 {
		return &InvalidOptionsError{Field: "pageSize", Reason: "must be positive"}
	}
	if pageNumber <= 0 {
		return &InvalidOptionsError{Field: "pageNumber", Reason: "must be positive"}
	}
	return nil
}

func validateOrder(order SortOrder) (SortOrder, error) {
	switch order {
	case "":
		return SortDesc, nil
	case SortAsc, SortDesc:
		return order, nil
	}
	return "", &InvalidOptionsError{Field: "sortOrder", Reason: "must be asc or desc"}
}

// paginate slices an already filtered and sorted set. Page bounds are
// checked before any multiplication so huge page numbers or sizes cannot
// overflow.
func paginate[T any](matched []T, pageSize, pageNumber int) Page[T] {
	total := len(matched)
	pages := total / pageSize
	if total%pageSize != 0 {
		pages++
	}
	p := Page[T]{
		Items:        []T{},
		TotalMatched: total,
		TotalPages:   pages,
		PageNumber:   pageNumber,
		PageSize:     pageSize,
	}
	if pageNumber-1 >= pages {
		return p
	}
	start := (pageNumber - 1) * pageSize
	end := total
	if total-start > pageSize {
		end = start + pageSize
	}
	p.Items = append(p.Items, matched[start:end]...)
	return p
}

func containsFold(haystack, lowerNeedle string) bool {
	return strings.Contains(strings.ToLower(haystack), lowerNeedle)
}

// =============================================================================
// LEDGER ENTRY VIEW
// =============================================================================

// SearchField names an entry field the search term is matched against.
type SearchField string

const (
	FieldNote       SearchField = "note"
	FieldType       SearchField = "type"
	FieldActor      SearchField = "actor"
	FieldTraceToken SearchField = "trace_token"
)

// DefaultSearchFields is used when QueryOptions.Fields is empty.
var DefaultSearchFields = []SearchField{FieldNote, FieldType, FieldActor}

// TypeFilter restricts a query to one movement type. Empty or TypeAll keeps both.
type TypeFilter string

const TypeAll TypeFilter = "all"

// QueryOptions configures Query.
type QueryOptions struct {
	SearchTerm string
	Fields     []SearchField

	// ActorNames resolves an actor id to a display name for FieldActor.
	// When nil the raw id is matched.
	ActorNames func(ActorID) string

	TypeFilter TypeFilter
	ItemID     ItemID

	// From and To bound OccurredAt, inclusive. Zero means unbounded.
	From time.Time
	To   time.Time

	SortOrder  SortOrder
	PageSize   int
	PageNumber int
}

// Query returns one page of entries matching opts.
func Query(entries []LedgerEntry, opts QueryOptions) (Page[LedgerEntry], error) {
	if err := validatePaging(opts.PageSize, opts.PageNumber); err != nil {
		return Page[LedgerEntry]{}, err
	}
	order, err := validateOrder(opts.SortOrder)
	if err != nil {
		return Page[LedgerEntry]{}, err
	}
	var typeOnly MovementType
	switch opts.TypeFilter {
	case "", TypeAll:
	default:
		typeOnly = MovementType(opts.TypeFilter)
		if !typeOnly.Valid() {
			return Page[LedgerEntry]{}, &InvalidOptionsError{Field: "typeFilter", Reason: "must be stock_in, stock_out or all"}
		}
	}
	if !opts.From.IsZero() && !opts.To.IsZero() && opts.To.Before(opts.From) {
		return Page[LedgerEntry]{}, &InvalidOptionsError{Field: "to", Reason: "must not be before from"}
	}

	fields := opts.Fields
	if len(fields) == 0 {
		fields = DefaultSearchFields
	}
	needle := strings.ToLower(strings.TrimSpace(opts.SearchTerm))

	matched := make([]LedgerEntry, 0, len(entries))
	for _, e := range entries {
		if typeOnly != "" && e.Type != typeOnly {
			continue
		}
		if opts.ItemID != "" && e.ItemID != opts.ItemID {
			continue
		}
		if !opts.From.IsZero() && e.OccurredAt.Before(opts.From) {
			continue
		}
		if !opts.To.IsZero() && e.OccurredAt.After(opts.To) {
			continue
		}
		if needle != "" && !entryMatches(e, needle, fields, opts.ActorNames) {
			continue
		}
		matched = append(matched, e)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if order == SortDesc {
			a, b = b, a
		}
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.Before(b.OccurredAt)
		}
		return a.ID < b.ID
	})

	return paginate(matched, opts.PageSize, opts.PageNumber), nil
}

func entryMatches(e LedgerEntry, needle string, fields []SearchField, actorNames func(ActorID) string) bool {
	for _, f := range fields {
		var value string
		switch f {
		case FieldNote:
			value = e.Note
		case FieldType:
			value = e.Type.Label()
		case FieldActor:
			value = string(e.ActorID)
			if actorNames != nil {
				if name := actorNames(e.ActorID); name != "" {
					value = name
				}
			}
		case FieldTraceToken:
			value = e.TraceToken
		}
		if value != "" && containsFold(value, needle) {
			return true
		}
	}
	return false
}

// =============================================================================
// ITEM VIEW
// =============================================================================

type ItemSortKey string

const (
	SortByName  ItemSortKey = "name"
	SortByCode  ItemSortKey = "code"
	SortByStock ItemSortKey = "stock"
)

// ItemQueryOptions configures QueryItems.
type ItemQueryOptions struct {
	// SearchTerm matches Code or Name, case-insensitively.
	SearchTerm string
	Status     ItemStatus

	// Severity keeps only items classified at this level. Nil keeps all.
	Severity   *Severity
	Thresholds Thresholds

	SortBy     ItemSortKey
	SortOrder  SortOrder
	PageSize   int
	PageNumber int
}

// QueryItems returns one page of items matching opts. SortBy defaults to
// name and SortOrder to asc.
func QueryItems(items []Item, opts ItemQueryOptions) (Page[Item], error) {
	if err := validatePaging(opts.PageSize, opts.PageNumber); err != nil {
		return Page[Item]{}, err
	}
	order := opts.SortOrder
	if order == "" {
		order = SortAsc
	}
	if order != SortAsc && order != SortDesc {
		return Page[Item]{}, &InvalidOptionsError{Field: "sortOrder", Reason: "must be asc or desc"}
	}
	key := opts.SortBy
	switch key {
	case "":
		key = SortByName
	case SortByName, SortByCode, SortByStock:
	default:
		return Page[Item]{}, &InvalidOptionsError{Field: "sortBy", Reason: "must be name, code or stock"}
	}
	if opts.Status != "" && !opts.Status.Valid() {
		return Page[Item]{}, &InvalidOptionsError{Field: "status", Reason: "must be active or inactive"}
	}
	th := opts.Thresholds
	if th == (Thresholds{}) {
		th = DefaultThresholds
	}

	needle := strings.ToLower(strings.TrimSpace(opts.SearchTerm))
	matched := make([]Item, 0, len(items))
	for _, it := range items {
		if opts.Status != "" && it.Status != opts.Status {
			continue
		}
		if opts.Severity != nil && th.Classify(it.CurrentStock) != *opts.Severity {
			continue
		}
		if needle != "" && !containsFold(it.Code, needle) && !containsFold(it.Name, needle) {
			continue
		}
		matched = append(matched, it)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if order == SortDesc {
			a, b = b, a
		}
		switch key {
		case SortByStock:
			if a.CurrentStock != b.CurrentStock {
				return a.CurrentStock < b.CurrentStock
			}
		case SortByCode:
			if a.Code != b.Code {
				return a.Code < b.Code
			}
		default:
			if a.Name != b.Name {
				return a.Name < b.Name
			}
		}
		return a.ID < b.ID
	})

	return paginate(matched, opts.PageSize, opts.PageNumber), nil
}
