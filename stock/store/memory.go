// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/stock-ledger/stock"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements stock.Store in process memory. Entries are kept in
// append order, which is commit order.
type Memory struct {
	mu      sync.RWMutex
	items   map[stock.ItemID]stock.Item
	entries map[stock.ItemID][]stock.LedgerEntry
	all     []stock.LedgerEntry
}

func NewMemory() *Memory {
	return &Memory{
		items:   make(map[stock.ItemID]stock.Item),
		entries: make(map[stock.ItemID][]stock.LedgerEntry),
	}
}

func (m *Memory) GetItem(_ context.Context, id stock.ItemID) (stock.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getItemLocked(id)
}

func (m *Memory) getItemLocked(id stock.ItemID) (stock.Item, error) {
	item, ok := m.items[id]
	if !ok {
		return stock.Item{}, stock.ErrItemNotFound
	}
	return item, nil
}

// SaveItem writes item if its Version matches the stored one.
func (m *Memory) SaveItem(_ context.Context, item stock.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveItemLocked(item)
}

func (m *Memory) saveItemLocked(item stock.Item) error {
	current, ok := m.items[item.ID]
	if !ok {
		return stock.ErrItemNotFound
	}
	if current.Version != item.Version {
		return stock.ErrConcurrencyConflict
	}
	item.Version++
	m.items[item.ID] = item
	return nil
}

func (m *Memory) CreateItem(_ context.Context, item stock.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createItemLocked(item)
}

func (m *Memory) createItemLocked(item stock.Item) error {
	if _, ok := m.items[item.ID]; ok {
		return stock.ErrItemExists
	}
	m.items[item.ID] = item
	return nil
}

func (m *Memory) ListItems(_ context.Context) ([]stock.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listItemsLocked(), nil
}

func (m *Memory) listItemsLocked() []stock.Item {
	result := make([]stock.Item, 0, len(m.items))
	for _, item := range m.items {
		result = append(result, item)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// AppendEntry adds a single entry. Append-only.
func (m *Memory) AppendEntry(_ context.Context, entry stock.LedgerEntry) (stock.EntryID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(entry), nil
}

func (m *Memory) appendLocked(entry stock.LedgerEntry) stock.EntryID {
	if entry.ID == "" {
		entry.ID = stock.NewEntryID()
	}
	m.entries[entry.ItemID] = append(m.entries[entry.ItemID], entry)
	m.all = append(m.all, entry)
	return entry.ID
}

func (m *Memory) ListEntries(_ context.Context, itemID stock.ItemID) ([]stock.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneEntries(m.entries[itemID]), nil
}

func (m *Memory) ListAllEntries(_ context.Context) ([]stock.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneEntries(m.all), nil
}

func cloneEntries(src []stock.LedgerEntry) []stock.LedgerEntry {
	result := make([]stock.LedgerEntry, len(src))
	copy(result, src)
	return result
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with an undo log: every write made
// through the tx records how to revert itself, and a failing fn replays the
// log backwards. Rollback cost is proportional to what fn wrote, not to the
// size of the store.
// The write lock is held for the whole of fn, so readers observe either the
// state before fn or after it, never in between.
func (m *Memory) WithTx(_ context.Context, fn func(stock.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tv := &txView{parent: m}
	if err := fn(tv); err != nil {
		tv.rollback()
		return err
	}
	return nil
}

// txView is the Store handed to WithTx callbacks. The parent lock is
// already held, so it uses the *Locked helpers directly.
type txView struct {
	parent *Memory
	undo   []func()
}

func (tv *txView) rollback() {
	for i := len(tv.undo) - 1; i >= 0; i-- {
		tv.undo[i]()
	}
	tv.undo = nil
}

func (tv *txView) GetItem(_ context.Context, id stock.ItemID) (stock.Item, error) {
	return tv.parent.getItemLocked(id)
}

func (tv *txView) SaveItem(_ context.Context, item stock.Item) error {
	m := tv.parent
	prev, ok := m.items[item.ID]
	if err := m.saveItemLocked(item); err != nil {
		return err
	}
	if ok {
		tv.undo = append(tv.undo, func() { m.items[prev.ID] = prev })
	}
	return nil
}

func (tv *txView) CreateItem(_ context.Context, item stock.Item) error {
	m := tv.parent
	if err := m.createItemLocked(item); err != nil {
		return err
	}
	tv.undo = append(tv.undo, func() { delete(m.items, item.ID) })
	return nil
}

func (tv *txView) ListItems(_ context.Context) ([]stock.Item, error) {
	return tv.parent.listItemsLocked(), nil
}

func (tv *txView) AppendEntry(_ context.Context, entry stock.LedgerEntry) (stock.EntryID, error) {
	m := tv.parent
	itemID := entry.ItemID
	perItem, total := len(m.entries[itemID]), len(m.all)
	id := m.appendLocked(entry)
	tv.undo = append(tv.undo, func() {
		if perItem == 0 {
			delete(m.entries, itemID)
		} else {
			m.entries[itemID] = m.entries[itemID][:perItem]
		}
		m.all = m.all[:total]
	})
	return id, nil
}

func (tv *txView) ListEntries(_ context.Context, itemID stock.ItemID) ([]stock.LedgerEntry, error) {
	return cloneEntries(tv.parent.entries[itemID]), nil
}

func (tv *txView) ListAllEntries(_ context.Context) ([]stock.LedgerEntry, error) {
	return cloneEntries(tv.parent.all), nil
}

// Nested transactions join the outer one and share its undo log.
func (tv *txView) WithTx(_ context.Context, fn func(stock.Store) error) error {
	return fn(tv)
}
