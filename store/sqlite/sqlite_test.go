package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-ledger/stock"
)

var t0 = time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedItem(t *testing.T, s *Store, id stock.ItemID, base int) stock.Item {
	t.Helper()
	item := stock.Item{
		ID: id, Code: "SKU-" + string(id), Name: "Item " + string(id),
		CategoryID: "cat-1", BaseStock: base, CurrentStock: base,
		Status: stock.StatusActive, CreatedAt: t0, UpdatedAt: t0,
	}
	require.NoError(t, s.CreateItem(context.Background(), item))
	return item
}

func TestStore_ItemRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	want := seedItem(t, s, "a", 12)

	got, err := s.GetItem(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, want.Code, got.Code)
	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, "cat-1", got.CategoryID)
	assert.Equal(t, "", got.DivisionID)
	assert.Equal(t, 12, got.BaseStock)
	assert.Equal(t, 12, got.CurrentStock)
	assert.Equal(t, stock.StatusActive, got.Status)
	assert.True(t, t0.Equal(got.CreatedAt))

	_, err = s.GetItem(ctx, "ghost")
	assert.ErrorIs(t, err, stock.ErrItemNotFound)

	assert.ErrorIs(t, s.CreateItem(ctx, want), stock.ErrItemExists)
}

func TestStore_VersionedSave(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	item := seedItem(t, s, "a", 12)

	item.CurrentStock = 9
	require.NoError(t, s.SaveItem(ctx, item))

	got, err := s.GetItem(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 9, got.CurrentStock)
	assert.Equal(t, 1, got.Version)

	// Stale version loses.
	item.CurrentStock = 1
	assert.ErrorIs(t, s.SaveItem(ctx, item), stock.ErrConcurrencyConflict)
	assert.ErrorIs(t, s.SaveItem(ctx, stock.Item{ID: "ghost"}), stock.ErrItemNotFound)
}

func TestStore_EntriesInCommitOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedItem(t, s, "a", 10)
	seedItem(t, s, "b", 10)

	for _, e := range []stock.LedgerEntry{
		{ID: "z", ItemID: "a", Type: stock.StockOut, Quantity: 1, BalanceAfter: 9, OccurredAt: t0, CommittedAt: t0},
		{ID: "m", ItemID: "b", Type: stock.StockOut, Quantity: 2, BalanceAfter: 8, OccurredAt: t0, CommittedAt: t0},
		{ID: "c", ItemID: "a", Type: stock.StockIn, Quantity: 4, BalanceAfter: 13, Note: "delivery",
			ActorID: "u-1", TraceToken: "PO-1", OccurredAt: t0.Add(time.Hour), CommittedAt: t0.Add(time.Hour)},
	} {
		_, err := s.AppendEntry(ctx, e)
		require.NoError(t, err)
	}

	entries, err := s.ListEntries(ctx, "a")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, stock.EntryID("z"), entries[0].ID)
	assert.Equal(t, stock.EntryID("c"), entries[1].ID)

	e := entries[1]
	assert.Equal(t, stock.StockIn, e.Type)
	assert.Equal(t, 4, e.Quantity)
	assert.Equal(t, 13, e.BalanceAfter)
	assert.Equal(t, "delivery", e.Note)
	assert.Equal(t, stock.ActorID("u-1"), e.ActorID)
	assert.Equal(t, "PO-1", e.TraceToken)
	assert.True(t, t0.Add(time.Hour).Equal(e.OccurredAt))

	all, err := s.ListAllEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []stock.EntryID{"z", "m", "c"}, []stock.EntryID{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, stock.ItemID("b"), all[1].ItemID)
}

func TestStore_OneCorrectionPerEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedItem(t, s, "a", 10)

	_, err := s.AppendEntry(ctx, stock.LedgerEntry{ID: "orig", ItemID: "a", Type: stock.StockOut, Quantity: 1, OccurredAt: t0, CommittedAt: t0})
	require.NoError(t, err)
	fix := stock.LedgerEntry{ID: "fix-1", ItemID: "a", Type: stock.StockIn, Quantity: 1, CorrectsEntryID: "orig", OccurredAt: t0, CommittedAt: t0}
	_, err = s.AppendEntry(ctx, fix)
	require.NoError(t, err)

	fix.ID = "fix-2"
	_, err = s.AppendEntry(ctx, fix)
	assert.ErrorIs(t, err, stock.ErrAlreadyCorrected)
}

func TestStore_WithTxRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	item := seedItem(t, s, "a", 10)

	err := s.WithTx(ctx, func(tx stock.Store) error {
		_, err := tx.AppendEntry(ctx, stock.LedgerEntry{ID: "e", ItemID: "a", Type: stock.StockOut, Quantity: 3, OccurredAt: t0, CommittedAt: t0})
		require.NoError(t, err)
		item.CurrentStock = 7
		require.NoError(t, tx.SaveItem(ctx, item))

		got, err := tx.GetItem(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 7, got.CurrentStock)
		return errors.New("abort")
	})
	require.EqualError(t, err, "abort")

	got, err := s.GetItem(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 10, got.CurrentStock)
	entries, err := s.ListEntries(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_ServiceEndToEnd(t *testing.T) {
	// GIVEN: the service over a file-backed store
	s, err := New(filepath.Join(t.TempDir(), "stock.db"))
	require.NoError(t, err)
	defer s.Close()
	svc := stock.NewService(s, stock.Options{})
	ctx := context.Background()

	_, err = svc.CreateItem(ctx, stock.NewItem{ID: "widget", Name: "Widget", BaseStock: 30})
	require.NoError(t, err)

	// WHEN: concurrent withdrawals and one receipt
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Commit(ctx, stock.Movement{ItemID: "widget", Type: stock.StockOut, Quantity: 2, ActorID: stock.ActorID(fmt.Sprintf("u-%d", i))})
			if err != nil {
				assert.ErrorIs(t, err, stock.ErrInsufficientStock)
			}
		}(i)
	}
	wg.Wait()
	_, err = svc.Commit(ctx, stock.Movement{ItemID: "widget", Type: stock.StockIn, Quantity: 5, Note: "restock"})
	require.NoError(t, err)

	// THEN: 15 withdrawals fit, the ledger reconciles
	rec, err := svc.Audit(ctx, "widget")
	require.NoError(t, err)
	assert.True(t, rec.Balanced())
	assert.Equal(t, 5, rec.Actual)
	assert.Equal(t, 16, rec.Entries)

	// AND: a reopened store sees the same state
	require.NoError(t, s.Close())
	reopened, err := New(s.path)
	require.NoError(t, err)
	defer reopened.Close()
	item, err := reopened.GetItem(ctx, "widget")
	require.NoError(t, err)
	assert.Equal(t, 5, item.CurrentStock)
}
