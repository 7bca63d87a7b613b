/*
store.go - Persistence and notification boundaries

PURPOSE:
  Defines the interfaces between the ledger engine and the outside world.
  Stores persist items and entries; sinks deliver low-stock notifications.
  The engine never knows whether it talks to SQLite, memory, or a remote API.

KEY INTERFACES:
  ItemStore:   GetItem / SaveItem (versioned) / CreateItem / ListItems
  LedgerStore: AppendEntry / ListEntries / ListAllEntries (append-only)
  Store:       both, plus WithTx for atomic entry+balance writes
  Notifier:    Notify(itemID, severity, message)

APPEND-ONLY CONTRACT:
  LedgerStore has no Update() or Delete(). Corrections are new entries.

VERSIONED WRITES:
  SaveItem succeeds only when item.Version equals the persisted version, and
  persists item.Version+1. A mismatch returns ErrConcurrencyConflict. This
  lets two processes sharing one database detect lost updates even though
  in-process commits are already serialized per item.

IMPLEMENTATIONS:
  - stock/store/memory.go: in-memory, for tests and dev
  - store/sqlite/sqlite.go: SQLite
*/
package stock

import "context"

// ItemStore persists items.
type ItemStore interface {
	// GetItem returns ErrItemNotFound when id is unknown.
	GetItem(ctx context.Context, id ItemID) (Item, error)

	// SaveItem writes item if item.Version matches the stored version.
	SaveItem(ctx context.Context, item Item) error

	// CreateItem inserts a new item. Returns ErrItemExists on duplicate id.
	CreateItem(ctx context.Context, item Item) error

	// ListItems returns every item, ordered by id.
	ListItems(ctx context.Context) ([]Item, error)
}

// LedgerStore persists entries. Append-only.
type LedgerStore interface {
	// AppendEntry persists entry and returns its id. An empty id is assigned
	// by the store.
	AppendEntry(ctx context.Context, entry LedgerEntry) (EntryID, error)

	// ListEntries returns an item's entries in commit order.
	ListEntries(ctx context.Context, itemID ItemID) ([]LedgerEntry, error)

	// ListAllEntries returns every entry in commit order.
	ListAllEntries(ctx context.Context) ([]LedgerEntry, error)
}

// Store is the full persistence surface the Service needs.
type Store interface {
	ItemStore
	LedgerStore

	// WithTx executes fn within a transaction. If fn returns an error
	// nothing fn wrote is visible afterwards.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

// Notifier receives low-stock notifications. Delivery is its own concern.
type Notifier interface {
	Notify(ctx context.Context, itemID ItemID, severity Severity, message string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, itemID ItemID, severity Severity, message string) error

func (f NotifierFunc) Notify(ctx context.Context, itemID ItemID, severity Severity, message string) error {
	return f(ctx, itemID, severity, message)
}
