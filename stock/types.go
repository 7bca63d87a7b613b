/*
Package stock provides the warehouse stock ledger engine.

PURPOSE:
  Owns every rule about how an item's quantity changes. A movement is
  proposed, previewed without side effects, committed atomically together
  with the item's new balance, classified against restock thresholds, and
  later browsed through filtered, paginated views of the ledger.

KEY CONCEPTS IN THIS FILE (types.go):
  - Item: the trackable unit and its materialized balance (CurrentStock)
  - LedgerEntry: an immutable record of one StockIn or StockOut
  - MovementType: the direction of a movement
  - ItemStatus: active / inactive lifecycle flag

DESIGN PRINCIPLES:
  1. Immutability: entries are never modified, only offset by corrections
  2. Single authority: only Service mutates CurrentStock
  3. Explicit actors: every commit names its ActorID, nothing is ambient
  4. Determinism: previews and views are pure functions of their inputs

USAGE:
  svc := stock.NewService(store, stock.Options{})
  res, err := svc.Commit(ctx, stock.Movement{
      ItemID:   "itm-1",
      Type:     stock.StockOut,
      Quantity: 3,
      ActorID:  "user-7",
  })

SEE ALSO:
  - balance.go: the one formula shared by Preview and Commit
  - mutation.go: Commit and Correct
  - view.go: Query and QueryItems
*/
package stock

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ItemID string
type EntryID string
type ActorID string

// =============================================================================
// MOVEMENT TYPE
// =============================================================================

type MovementType string

const (
	StockIn  MovementType = "stock_in"
	StockOut MovementType = "stock_out"
)

// Valid reports whether t is one of the two known movement types.
func (t MovementType) Valid() bool {
	return t == StockIn || t == StockOut
}

// Label is the human-readable name used by search.
func (t MovementType) Label() string {
	switch t {
	case StockIn:
		return "Stock In"
	case StockOut:
		return "Stock Out"
	default:
		return string(t)
	}
}

// Opposite returns the type that offsets t.
func (t MovementType) Opposite() MovementType {
	if t == StockIn {
		return StockOut
	}
	return StockIn
}

// ParseMovementType accepts the canonical values plus the short "in"/"out"
// forms used by the stock-in and stock-out screens.
func ParseMovementType(s string) (MovementType, error) {
	switch s {
	case string(StockIn), "in":
		return StockIn, nil
	case string(StockOut), "out":
		return StockOut, nil
	}
	return "", ErrInvalidMovementType
}

// =============================================================================
// ITEM - Trackable unit with a materialized balance
// =============================================================================

type ItemStatus string

const (
	StatusActive   ItemStatus = "active"
	StatusInactive ItemStatus = "inactive"
)

func (s ItemStatus) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// Item is one trackable inventory unit.
//
// INVARIANT: CurrentStock == BaseStock + Σ(in) − Σ(out) over the item's
// committed entries, and CurrentStock >= 0. Only Service writes CurrentStock.
type Item struct {
	ID         ItemID
	Code       string
	Name       string
	CategoryID string
	DivisionID string

	// BaseStock is fixed at creation.
	BaseStock    int
	CurrentStock int
	Status       ItemStatus

	// Version increments on every save; stores reject a save whose Version
	// does not match the persisted one.
	Version int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewItem is the input to Service.CreateItem.
type NewItem struct {
	ID         ItemID
	Code       string
	Name       string
	CategoryID string
	DivisionID string
	BaseStock  int
	Status     ItemStatus
}

// =============================================================================
// LEDGER ENTRY - Immutable movement record
// =============================================================================

// LedgerEntry records one committed movement. Once committed it is never
// edited; a mistake is undone by a correction entry of the opposite type
// whose CorrectsEntryID points at the original.
type LedgerEntry struct {
	ID       EntryID
	ItemID   ItemID
	Type     MovementType
	Quantity int
	Note     string

	// OccurredAt is when the physical movement happened. It drives
	// reporting and view ordering, never validation.
	OccurredAt time.Time

	// TraceToken correlates the entry with a physical label. Opaque.
	TraceToken string

	ActorID         ActorID
	CorrectsEntryID EntryID

	// Audit fields
	BalanceAfter int
	CommittedAt  time.Time
}

// Delta is the signed effect of the entry on the balance.
func (e LedgerEntry) Delta() int {
	return signedDelta(e.Type, e.Quantity)
}

// IsCorrection reports whether the entry offsets an earlier one.
func (e LedgerEntry) IsCorrection() bool {
	return e.CorrectsEntryID != ""
}

// Movement is a proposed change, the input to Service.Commit.
type Movement struct {
	ItemID     ItemID
	Type       MovementType
	Quantity   int
	Note       string
	OccurredAt time.Time
	ActorID    ActorID
	TraceToken string
}

// CorrectionRequest asks Service.Correct to offset a committed entry.
type CorrectionRequest struct {
	ItemID  ItemID
	EntryID EntryID
	ActorID ActorID
	Note    string
}
