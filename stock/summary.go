package stock

import (
	"time"

	"github.com/shopspring/decimal"
)

// Summary aggregates an item's ledger for the product detail screen.
type Summary struct {
	ItemID       ItemID
	BaseStock    int
	CurrentStock int

	TotalIn     int
	TotalOut    int
	Net         int
	EntryCount  int
	Corrections int

	FirstOccurredAt time.Time
	LastOccurredAt  time.Time

	// OutflowRatio is TotalOut / (BaseStock + TotalIn), 4 decimal places.
	OutflowRatio decimal.Decimal
}

// Summarize folds entries into a Summary. Entry order does not matter.
func Summarize(item Item, entries []LedgerEntry) Summary {
	s := Summary{
		ItemID:       item.ID,
		BaseStock:    item.BaseStock,
		CurrentStock: item.CurrentStock,
		EntryCount:   len(entries),
		OutflowRatio: decimal.Zero,
	}

	for _, e := range entries {
		switch e.Type {
		case StockIn:
			s.TotalIn += e.Quantity
		case StockOut:
			s.TotalOut += e.Quantity
		}
		if e.IsCorrection() {
			s.Corrections++
		}
		if s.FirstOccurredAt.IsZero() || e.OccurredAt.Before(s.FirstOccurredAt) {
			s.FirstOccurredAt = e.OccurredAt
		}
		if e.OccurredAt.After(s.LastOccurredAt) {
			s.LastOccurredAt = e.OccurredAt
		}
	}
	s.Net = s.TotalIn - s.TotalOut

	supplied := int64(item.BaseStock + s.TotalIn)
	if supplied > 0 {
		s.OutflowRatio = decimal.NewFromInt(int64(s.TotalOut)).
			DivRound(decimal.NewFromInt(supplied), 4)
	}
	return s
}
