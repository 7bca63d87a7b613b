package stock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/warp/stock-ledger/stock"
)

func TestSummarize(t *testing.T) {
	item := stock.Item{ID: "widget", BaseStock: 20, CurrentStock: 17}
	entries := []stock.LedgerEntry{
		{ID: "e-1", Type: stock.StockOut, Quantity: 8, OccurredAt: epoch.Add(2 * time.Hour)},
		{ID: "e-2", Type: stock.StockIn, Quantity: 8, OccurredAt: epoch, CorrectsEntryID: "e-1"},
		{ID: "e-3", Type: stock.StockIn, Quantity: 10, OccurredAt: epoch.Add(5 * time.Hour)},
		{ID: "e-4", Type: stock.StockOut, Quantity: 13, OccurredAt: epoch.Add(3 * time.Hour)},
	}

	s := stock.Summarize(item, entries)

	assert.Equal(t, 18, s.TotalIn)
	assert.Equal(t, 21, s.TotalOut)
	assert.Equal(t, -3, s.Net)
	assert.Equal(t, 4, s.EntryCount)
	assert.Equal(t, 1, s.Corrections)
	assert.Equal(t, epoch, s.FirstOccurredAt)
	assert.Equal(t, epoch.Add(5*time.Hour), s.LastOccurredAt)
	// 21 / (20 + 18)
	assert.Equal(t, "0.5526", s.OutflowRatio.StringFixed(4))
}

func TestSummarize_Empty(t *testing.T) {
	s := stock.Summarize(stock.Item{ID: "empty"}, nil)
	assert.Equal(t, 0, s.EntryCount)
	assert.True(t, s.OutflowRatio.IsZero())
	assert.True(t, s.FirstOccurredAt.IsZero())
}
