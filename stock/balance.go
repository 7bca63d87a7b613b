/*
balance.go - Balance arithmetic and reconciliation

PURPOSE:
  The one place where a movement's effect on a balance is computed.
  Preview and Commit both call NextStock, so a dry run can never disagree
  with the real thing.

FOLD:
  CurrentStock is a materialized fold over the ledger:

    BaseStock + Σ(StockIn quantities) − Σ(StockOut quantities)

  Reconcile replays the fold in commit order and compares it with the
  stored balance. Any difference is drift and means something wrote
  CurrentStock outside the Service.

SEE ALSO:
  - mutation.go: Commit uses NextStock
  - preview.go: Preview uses NextStock
*/
package stock

import (
	"fmt"
	"math"
)

func signedDelta(t MovementType, quantity int) int {
	if t == StockOut {
		return -quantity
	}
	return quantity
}

// NextStock returns the balance after applying a movement to current.
//
// Fails with ErrInvalidQuantity for quantity <= 0 or a StockIn that would
// overflow int, ErrInvalidMovementType for an unknown type. It does NOT
// reject a negative result; callers decide whether that is an error (Commit)
// or a warning (Preview).
func NextStock(current int, t MovementType, quantity int) (int, error) {
	if !t.Valid() {
		return 0, ErrInvalidMovementType
	}
	if quantity <= 0 {
		return 0, ErrInvalidQuantity
	}
	if t == StockIn && current > math.MaxInt-quantity {
		return 0, fmt.Errorf("receiving %d on top of %d overflows: %w", quantity, current, ErrInvalidQuantity)
	}
	return current + signedDelta(t, quantity), nil
}

// Fold computes the balance implied by base and entries.
func Fold(base int, entries []LedgerEntry) int {
	balance := base
	for _, e := range entries {
		balance += e.Delta()
	}
	return balance
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// Reconciliation compares an item's stored balance with its ledger fold.
type Reconciliation struct {
	ItemID   ItemID
	Expected int // fold over the ledger
	Actual   int // Item.CurrentStock
	Drift    int // Actual - Expected
	Entries  int

	// NegativeAt is the first entry after which the fold went below zero.
	NegativeAt EntryID
}

// Balanced reports whether the stored balance matches the ledger.
func (r Reconciliation) Balanced() bool {
	return r.Drift == 0 && r.NegativeAt == ""
}

// Reconcile replays entries (commit order) on top of item.BaseStock.
func Reconcile(item Item, entries []LedgerEntry) Reconciliation {
	r := Reconciliation{ItemID: item.ID, Actual: item.CurrentStock, Entries: len(entries)}

	balance := item.BaseStock
	for _, e := range entries {
		balance += e.Delta()
		if balance < 0 && r.NegativeAt == "" {
			r.NegativeAt = e.ID
		}
	}
	r.Expected = balance
	r.Drift = r.Actual - r.Expected
	return r
}
