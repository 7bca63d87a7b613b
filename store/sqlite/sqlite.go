/*
Package sqlite provides a SQLite-backed implementation of stock.Store.

PURPOSE:
  Persists items and ledger entries. In production, the same patterns apply
  to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on ledger_entries
  - No DELETE statements on ledger_entries
  - Corrections are new rows with corrects_entry_id set

KEY TABLES:
  items:          One row per item; current_stock is the materialized balance
  ledger_entries: Immutable movement records, seq gives commit order

INDEXES:
  - idx_entries_item_seq: per-item history (hot path)
  - idx_entries_occurred_at: date-range views
  - idx_entries_corrects: one correction per entry, enforced

VERSIONED WRITES:
  SaveItem issues UPDATE ... WHERE id = ? AND version = ?. Zero affected
  rows on an existing item means another writer got there first and
  ErrConcurrencyConflict is returned. Two server processes sharing one
  database file therefore cannot lose each other's updates.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety within a process. Reads inside WithTx
  go through the open *sql.Tx so a transaction sees its own writes.

USAGE:
  store, err := sqlite.New("./data/stock.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := stock.NewService(store, stock.Options{})

SEE ALSO:
  - stock/store.go: Interface definitions
  - stock/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/stock-ledger/stock"
)

// Store implements stock.Store using SQLite.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, path: dbPath}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		category_id TEXT,
		division_id TEXT,
		base_stock INTEGER NOT NULL CHECK (base_stock >= 0),
		current_stock INTEGER NOT NULL CHECK (current_stock >= 0),
		status TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_items_code ON items(code);

	-- Ledger entries (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		item_id TEXT NOT NULL REFERENCES items(id),
		movement_type TEXT NOT NULL CHECK (movement_type IN ('stock_in', 'stock_out')),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		note TEXT,
		occurred_at TEXT NOT NULL,
		trace_token TEXT,
		actor_id TEXT,
		corrects_entry_id TEXT,
		balance_after INTEGER NOT NULL,
		committed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_item_seq
		ON ledger_entries(item_id, seq);
	CREATE INDEX IF NOT EXISTS idx_entries_occurred_at
		ON ledger_entries(occurred_at);

	-- An entry can be corrected at most once
	CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_corrects
		ON ledger_entries(corrects_entry_id) WHERE corrects_entry_id IS NOT NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ITEM STORE (stock.ItemStore interface)
// =============================================================================

const itemColumns = `id, code, name, category_id, division_id, base_stock, current_stock,
	status, version, created_at, updated_at`

// GetItem retrieves an item by ID.
func (s *Store) GetItem(ctx context.Context, id stock.ItemID) (stock.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getItem(ctx, s.db, id)
}

func getItem(ctx context.Context, q querier, id stock.ItemID) (stock.Item, error) {
	row := q.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM items WHERE id = ?", id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return stock.Item{}, stock.ErrItemNotFound
	}
	if err != nil {
		return stock.Item{}, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// SaveItem updates an item, checking its version.
func (s *Store) SaveItem(ctx context.Context, item stock.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveItem(ctx, s.db, item)
}

func saveItem(ctx context.Context, q querier, item stock.Item) error {
	res, err := q.ExecContext(ctx, `
		UPDATE items SET
			code = ?, name = ?, category_id = ?, division_id = ?,
			current_stock = ?, status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`,
		item.Code, item.Name, nullString(item.CategoryID), nullString(item.DivisionID),
		item.CurrentStock, string(item.Status), formatTime(item.UpdatedAt),
		item.ID, item.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to save item: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save item: %w", err)
	}
	if rows > 0 {
		return nil
	}

	// Missing row or stale version?
	var exists int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM items WHERE id = ?", item.ID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to save item: %w", err)
	}
	if exists == 0 {
		return stock.ErrItemNotFound
	}
	return stock.ErrConcurrencyConflict
}

// CreateItem inserts a new item.
func (s *Store) CreateItem(ctx context.Context, item stock.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createItem(ctx, s.db, item)
}

func createItem(ctx context.Context, q querier, item stock.Item) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		item.ID, item.Code, item.Name, nullString(item.CategoryID), nullString(item.DivisionID),
		item.BaseStock, item.CurrentStock, string(item.Status), item.Version,
		formatTime(item.CreatedAt), formatTime(item.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return stock.ErrItemExists
		}
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

// ListItems returns all items ordered by id.
func (s *Store) ListItems(ctx context.Context) ([]stock.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listItems(ctx, s.db)
}

func listItems(ctx context.Context, q querier) ([]stock.Item, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+itemColumns+" FROM items ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	items := []stock.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (stock.Item, error) {
	var (
		item                 stock.Item
		categoryID           sql.NullString
		divisionID           sql.NullString
		status               string
		createdAt, updatedAt string
	)
	err := row.Scan(
		&item.ID, &item.Code, &item.Name, &categoryID, &divisionID,
		&item.BaseStock, &item.CurrentStock, &status, &item.Version,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return item, err
	}
	item.CategoryID = categoryID.String
	item.DivisionID = divisionID.String
	item.Status = stock.ItemStatus(status)
	item.CreatedAt = parseTime(createdAt)
	item.UpdatedAt = parseTime(updatedAt)
	return item, nil
}

// =============================================================================
// LEDGER STORE (stock.LedgerStore interface)
// =============================================================================

const entryColumns = `id, item_id, movement_type, quantity, note, occurred_at, trace_token,
	actor_id, corrects_entry_id, balance_after, committed_at`

// AppendEntry adds an entry to the ledger.
func (s *Store) AppendEntry(ctx context.Context, entry stock.LedgerEntry) (stock.EntryID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendEntry(ctx, s.db, entry)
}

func appendEntry(ctx context.Context, q querier, e stock.LedgerEntry) (stock.EntryID, error) {
	if e.ID == "" {
		e.ID = stock.NewEntryID()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO ledger_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.ItemID, string(e.Type), e.Quantity, nullString(e.Note),
		formatTime(e.OccurredAt), nullString(e.TraceToken), nullString(string(e.ActorID)),
		nullString(string(e.CorrectsEntryID)), e.BalanceAfter, formatTime(e.CommittedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) && strings.Contains(err.Error(), "corrects_entry_id") {
			return "", stock.ErrAlreadyCorrected
		}
		return "", fmt.Errorf("failed to append entry: %w", err)
	}
	return e.ID, nil
}

// ListEntries returns an item's entries in commit order.
func (s *Store) ListEntries(ctx context.Context, itemID stock.ItemID) ([]stock.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryEntries(ctx, s.db,
		"SELECT "+entryColumns+" FROM ledger_entries WHERE item_id = ? ORDER BY seq ASC", itemID)
}

// ListAllEntries returns every entry in commit order.
func (s *Store) ListAllEntries(ctx context.Context) ([]stock.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryEntries(ctx, s.db,
		"SELECT "+entryColumns+" FROM ledger_entries ORDER BY seq ASC")
}

func queryEntries(ctx context.Context, q querier, query string, args ...any) ([]stock.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	entries := []stock.LedgerEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (stock.LedgerEntry, error) {
	var (
		e            stock.LedgerEntry
		movementType string
		note         sql.NullString
		occurredAt   string
		traceToken   sql.NullString
		actorID      sql.NullString
		corrects     sql.NullString
		committedAt  string
	)

	err := rows.Scan(
		&e.ID, &e.ItemID, &movementType, &e.Quantity, &note, &occurredAt,
		&traceToken, &actorID, &corrects, &e.BalanceAfter, &committedAt,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}

	e.Type = stock.MovementType(movementType)
	e.Note = note.String
	e.OccurredAt = parseTime(occurredAt)
	e.TraceToken = traceToken.String
	e.ActorID = stock.ActorID(actorID.String)
	e.CorrectsEntryID = stock.EntryID(corrects.String)
	e.CommittedAt = parseTime(committedAt)
	return e, nil
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store stock.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetItem(ctx context.Context, id stock.ItemID) (stock.Item, error) {
	return getItem(ctx, ts.tx, id)
}

func (ts *txStore) SaveItem(ctx context.Context, item stock.Item) error {
	return saveItem(ctx, ts.tx, item)
}

func (ts *txStore) CreateItem(ctx context.Context, item stock.Item) error {
	return createItem(ctx, ts.tx, item)
}

func (ts *txStore) ListItems(ctx context.Context) ([]stock.Item, error) {
	return listItems(ctx, ts.tx)
}

func (ts *txStore) AppendEntry(ctx context.Context, entry stock.LedgerEntry) (stock.EntryID, error) {
	return appendEntry(ctx, ts.tx, entry)
}

func (ts *txStore) ListEntries(ctx context.Context, itemID stock.ItemID) ([]stock.LedgerEntry, error) {
	return queryEntries(ctx, ts.tx,
		"SELECT "+entryColumns+" FROM ledger_entries WHERE item_id = ? ORDER BY seq ASC", itemID)
}

func (ts *txStore) ListAllEntries(ctx context.Context) ([]stock.LedgerEntry, error) {
	return queryEntries(ctx, ts.tx,
		"SELECT "+entryColumns+" FROM ledger_entries ORDER BY seq ASC")
}

// Nested transactions join the outer one.
func (ts *txStore) WithTx(_ context.Context, fn func(stock.Store) error) error {
	return fn(ts)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
