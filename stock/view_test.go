package stock_test

import (
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-ledger/stock"
)

// ledgerOf builds n entries one hour apart; every third is a StockIn.
func ledgerOf(n int) []stock.LedgerEntry {
	entries := make([]stock.LedgerEntry, n)
	for i := range entries {
		e := stock.LedgerEntry{
			ID:         stock.EntryID(fmt.Sprintf("e-%03d", i+1)),
			ItemID:     "widget",
			Type:       stock.StockOut,
			Quantity:   1,
			Note:       fmt.Sprintf("picked for order %d", i+1),
			OccurredAt: epoch.Add(time.Duration(i) * time.Hour),
			ActorID:    "u-1",
		}
		if i%3 == 0 {
			e.Type = stock.StockIn
			e.Note = fmt.Sprintf("Restock batch %d", i+1)
		}
		entries[i] = e
	}
	return entries
}

func ids(entries []stock.LedgerEntry) []stock.EntryID {
	out := make([]stock.EntryID, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestQuery_Pagination(t *testing.T) {
	// GIVEN: 23 entries
	entries := ledgerOf(23)

	// WHEN: page 3 of size 10
	page, err := stock.Query(entries, stock.QueryOptions{PageSize: 10, PageNumber: 3})
	require.NoError(t, err)

	// THEN: the last 3
	assert.Len(t, page.Items, 3)
	assert.Equal(t, 23, page.TotalMatched)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 3, page.PageNumber)
	assert.Equal(t, 10, page.PageSize)
}

func TestQuery_SearchAndTypeFilter(t *testing.T) {
	// GIVEN: mixed entries, some inbound notes say "restock"
	entries := ledgerOf(12)
	entries[1].Note = "restock requested by floor" // StockOut, must be excluded

	// WHEN
	page, err := stock.Query(entries, stock.QueryOptions{
		SearchTerm: "RESTOCK",
		TypeFilter: stock.TypeFilter(stock.StockIn),
		PageSize:   50,
		PageNumber: 1,
	})
	require.NoError(t, err)

	// THEN: only inbound entries whose note contains restock
	require.Equal(t, 4, page.TotalMatched)
	for _, e := range page.Items {
		assert.Equal(t, stock.StockIn, e.Type)
		assert.Contains(t, strings.ToLower(e.Note), "restock")
	}
}

func TestQuery_DefaultOrderIsNewestFirst(t *testing.T) {
	entries := ledgerOf(5)
	page, err := stock.Query(entries, stock.QueryOptions{PageSize: 5, PageNumber: 1})
	require.NoError(t, err)
	assert.Equal(t, []stock.EntryID{"e-005", "e-004", "e-003", "e-002", "e-001"}, ids(page.Items))

	page, err = stock.Query(entries, stock.QueryOptions{PageSize: 5, PageNumber: 1, SortOrder: stock.SortAsc})
	require.NoError(t, err)
	assert.Equal(t, []stock.EntryID{"e-001", "e-002", "e-003", "e-004", "e-005"}, ids(page.Items))
}

func TestQuery_TiesBreakOnID(t *testing.T) {
	entries := []stock.LedgerEntry{
		{ID: "b", Type: stock.StockOut, Quantity: 1, OccurredAt: epoch},
		{ID: "c", Type: stock.StockOut, Quantity: 1, OccurredAt: epoch},
		{ID: "a", Type: stock.StockOut, Quantity: 1, OccurredAt: epoch},
	}
	page, err := stock.Query(entries, stock.QueryOptions{PageSize: 10, PageNumber: 1, SortOrder: stock.SortAsc})
	require.NoError(t, err)
	assert.Equal(t, []stock.EntryID{"a", "b", "c"}, ids(page.Items))

	page, err = stock.Query(entries, stock.QueryOptions{PageSize: 10, PageNumber: 1})
	require.NoError(t, err)
	assert.Equal(t, []stock.EntryID{"c", "b", "a"}, ids(page.Items))
}

func TestQuery_PagesAreCompleteAndDisjoint(t *testing.T) {
	entries := ledgerOf(47)
	for _, size := range []int{1, 4, 10, 47, 100} {
		for _, order := range []stock.SortOrder{stock.SortAsc, stock.SortDesc} {
			full, err := stock.Query(entries, stock.QueryOptions{PageSize: len(entries), PageNumber: 1, SortOrder: order})
			require.NoError(t, err)

			first, err := stock.Query(entries, stock.QueryOptions{PageSize: size, PageNumber: 1, SortOrder: order})
			require.NoError(t, err)

			var union []stock.EntryID
			for p := 1; p <= first.TotalPages; p++ {
				page, err := stock.Query(entries, stock.QueryOptions{PageSize: size, PageNumber: p, SortOrder: order})
				require.NoError(t, err)
				union = append(union, ids(page.Items)...)
			}
			assert.Equal(t, ids(full.Items), union, "size=%d order=%s", size, order)
		}
	}
}

func TestQuery_Deterministic(t *testing.T) {
	entries := ledgerOf(30)
	opts := stock.QueryOptions{SearchTerm: "order", PageSize: 7, PageNumber: 2}
	a, err := stock.Query(entries, opts)
	require.NoError(t, err)
	b, err := stock.Query(entries, opts)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestQuery_DoesNotMutateInput(t *testing.T) {
	entries := ledgerOf(6)
	before := ids(entries)
	_, err := stock.Query(entries, stock.QueryOptions{PageSize: 3, PageNumber: 1})
	require.NoError(t, err)
	assert.Equal(t, before, ids(entries))
}

func TestQuery_EdgeCases(t *testing.T) {
	entries := ledgerOf(5)

	t.Run("page past the end", func(t *testing.T) {
		page, err := stock.Query(entries, stock.QueryOptions{PageSize: 2, PageNumber: 9})
		require.NoError(t, err)
		assert.Empty(t, page.Items)
		assert.NotNil(t, page.Items)
		assert.Equal(t, 5, page.TotalMatched)
		assert.Equal(t, 3, page.TotalPages)
	})

	t.Run("empty ledger", func(t *testing.T) {
		page, err := stock.Query(nil, stock.QueryOptions{PageSize: 10, PageNumber: 1})
		require.NoError(t, err)
		assert.Empty(t, page.Items)
		assert.Equal(t, 0, page.TotalMatched)
		assert.Equal(t, 0, page.TotalPages)
	})

	t.Run("huge page number", func(t *testing.T) {
		page, err := stock.Query(entries[:1], stock.QueryOptions{PageSize: 20, PageNumber: math.MaxInt / 2})
		require.NoError(t, err)
		assert.Empty(t, page.Items)
		assert.Equal(t, 1, page.TotalPages)
	})

	t.Run("huge page size", func(t *testing.T) {
		page, err := stock.Query(entries[:2], stock.QueryOptions{PageSize: math.MaxInt, PageNumber: 1})
		require.NoError(t, err)
		assert.Len(t, page.Items, 2)
		assert.Equal(t, 1, page.TotalPages)

		page, err = stock.Query(entries[:2], stock.QueryOptions{PageSize: math.MaxInt, PageNumber: 2})
		require.NoError(t, err)
		assert.Empty(t, page.Items)
	})

	t.Run("no match", func(t *testing.T) {
		page, err := stock.Query(entries, stock.QueryOptions{SearchTerm: "zzz", PageSize: 10, PageNumber: 1})
		require.NoError(t, err)
		assert.Equal(t, 0, page.TotalMatched)
	})

	invalid := []struct {
		name  string
		opts  stock.QueryOptions
		field string
	}{
		{"zero page size", stock.QueryOptions{PageSize: 0, PageNumber: 1}, "pageSize"},
		{"negative page size", stock.QueryOptions{PageSize: -1, PageNumber: 1}, "pageSize"},
		{"zero page number", stock.QueryOptions{PageSize: 10, PageNumber: 0}, "pageNumber"},
		{"bad order", stock.QueryOptions{PageSize: 10, PageNumber: 1, SortOrder: "sideways"}, "sortOrder"},
		{"bad type", stock.QueryOptions{PageSize: 10, PageNumber: 1, TypeFilter: "transfer"}, "typeFilter"},
		{"inverted range", stock.QueryOptions{PageSize: 10, PageNumber: 1, From: epoch, To: epoch.Add(-time.Hour)}, "to"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := stock.Query(entries, tt.opts)
			var optErr *stock.InvalidOptionsError
			require.ErrorAs(t, err, &optErr)
			assert.ErrorIs(t, err, stock.ErrInvalidOptions)
			assert.Equal(t, tt.field, optErr.Field)
		})
	}
}

func TestQuery_DateRangeAndItem(t *testing.T) {
	entries := ledgerOf(10)
	entries[9].ItemID = "gadget"

	page, err := stock.Query(entries, stock.QueryOptions{
		From:       epoch.Add(2 * time.Hour),
		To:         epoch.Add(4 * time.Hour),
		SortOrder:  stock.SortAsc,
		PageSize:   10,
		PageNumber: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, []stock.EntryID{"e-003", "e-004", "e-005"}, ids(page.Items))

	page, err = stock.Query(entries, stock.QueryOptions{ItemID: "gadget", PageSize: 10, PageNumber: 1})
	require.NoError(t, err)
	assert.Equal(t, []stock.EntryID{"e-010"}, ids(page.Items))
}

func TestQuery_SearchFields(t *testing.T) {
	entries := []stock.LedgerEntry{
		{ID: "a", Type: stock.StockIn, Quantity: 1, Note: "delivery", ActorID: "u-7", TraceToken: "PO-77", OccurredAt: epoch},
		{ID: "b", Type: stock.StockOut, Quantity: 1, Note: "shipment", ActorID: "u-8", OccurredAt: epoch.Add(time.Hour)},
	}
	names := func(id stock.ActorID) string {
		return map[stock.ActorID]string{"u-7": "Alice Moreau", "u-8": "Bob Tan"}[id]
	}

	query := func(term string, fields ...stock.SearchField) []stock.EntryID {
		page, err := stock.Query(entries, stock.QueryOptions{
			SearchTerm: term, Fields: fields, ActorNames: names,
			SortOrder: stock.SortAsc, PageSize: 10, PageNumber: 1,
		})
		require.NoError(t, err)
		return ids(page.Items)
	}

	assert.Equal(t, []stock.EntryID{"a"}, query("stock in"), "type label")
	assert.Equal(t, []stock.EntryID{"b"}, query("bob"), "actor display name")
	assert.Equal(t, []stock.EntryID{"a"}, query("alice", stock.FieldActor))
	assert.Empty(t, query("alice", stock.FieldNote))
	assert.Empty(t, query("po-77"), "trace token is not searched by default")
	assert.Equal(t, []stock.EntryID{"a"}, query("po-77", stock.FieldTraceToken))
}

// =============================================================================
// ITEM VIEW
// =============================================================================

func catalog() []stock.Item {
	return []stock.Item{
		{ID: "i-1", Code: "B-200", Name: "Bolt", CurrentStock: 40, Status: stock.StatusActive},
		{ID: "i-2", Code: "A-100", Name: "Anchor", CurrentStock: 3, Status: stock.StatusActive},
		{ID: "i-3", Code: "C-300", Name: "Clamp", CurrentStock: 8, Status: stock.StatusInactive},
		{ID: "i-4", Code: "D-400", Name: "Dowel", CurrentStock: 1, Status: stock.StatusActive},
		{ID: "i-5", Code: "E-500", Name: "Bolt", CurrentStock: 15, Status: stock.StatusActive},
	}
}

func itemIDs(items []stock.Item) []stock.ItemID {
	out := make([]stock.ItemID, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestQueryItems_DefaultsToNameAscending(t *testing.T) {
	page, err := stock.QueryItems(catalog(), stock.ItemQueryOptions{PageSize: 10, PageNumber: 1})
	require.NoError(t, err)
	// Bolt twice: tie broken by id.
	assert.Equal(t, []stock.ItemID{"i-2", "i-1", "i-5", "i-3", "i-4"}, itemIDs(page.Items))
}

func TestQueryItems_FiltersAndSorts(t *testing.T) {
	page, err := stock.QueryItems(catalog(), stock.ItemQueryOptions{
		Status: stock.StatusActive, SortBy: stock.SortByStock, SortOrder: stock.SortDesc,
		PageSize: 10, PageNumber: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, []stock.ItemID{"i-1", "i-5", "i-2", "i-4"}, itemIDs(page.Items))

	page, err = stock.QueryItems(catalog(), stock.ItemQueryOptions{SearchTerm: "a-1", PageSize: 10, PageNumber: 1})
	require.NoError(t, err)
	assert.Equal(t, []stock.ItemID{"i-2"}, itemIDs(page.Items))

	critical := stock.SeverityCritical
	page, err = stock.QueryItems(catalog(), stock.ItemQueryOptions{Severity: &critical, SortBy: stock.SortByCode, PageSize: 10, PageNumber: 1})
	require.NoError(t, err)
	assert.Equal(t, []stock.ItemID{"i-4"}, itemIDs(page.Items))

	low := stock.SeverityLow
	page, err = stock.QueryItems(catalog(), stock.ItemQueryOptions{Severity: &low, PageSize: 10, PageNumber: 1})
	require.NoError(t, err)
	assert.Equal(t, []stock.ItemID{"i-2"}, itemIDs(page.Items))
}

func TestQueryItems_InvalidOptions(t *testing.T) {
	bad := []stock.ItemQueryOptions{
		{PageSize: 0, PageNumber: 1},
		{PageSize: 10, PageNumber: -1},
		{PageSize: 10, PageNumber: 1, SortBy: "weight"},
		{PageSize: 10, PageNumber: 1, SortOrder: "up"},
		{PageSize: 10, PageNumber: 1, Status: "archived"},
	}
	for _, opts := range bad {
		_, err := stock.QueryItems(catalog(), opts)
		assert.ErrorIs(t, err, stock.ErrInvalidOptions, "%+v", opts)
	}
}
