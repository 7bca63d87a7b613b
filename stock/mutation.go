/*
mutation.go - The single authority allowed to change CurrentStock

PURPOSE:
  Validates and commits movements. Every commit writes one immutable
  LedgerEntry and the item's new balance in one store transaction, so no
  reader ever sees an entry without its balance effect or the reverse.

CRITICAL SECTION:
  read CurrentStock → validate → append entry → save item

  runs under a per-item lock (different items never contend) and inside
  Store.WithTx. The item write is version-checked; if another process won
  the race the store returns ErrConcurrencyConflict, the transaction rolls
  back, and the whole section is retried from a fresh read up to
  Options.MaxAttempts times.

CANCELLATION:
  The context is checked before the lock is taken. Once inside the critical
  section the work runs to completion detached from cancellation: a commit
  either fully applies or fully fails.

CORRECTIONS:
  Correct never edits history. It commits an entry of the opposite type
  with CorrectsEntryID set, through the same critical section.

SEE ALSO:
  - balance.go: NextStock, shared with Preview
  - monitor.go: severity + notifications after commit
*/
package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultMaxAttempts = 3

// Options configures a Service. The zero value is usable.
type Options struct {
	Thresholds Thresholds
	Notifier   Notifier

	// AllowUnnotedInbound disables the "StockIn needs a note" rule.
	AllowUnnotedInbound bool

	// MaxAttempts bounds the optimistic retry loop. Defaults to DefaultMaxAttempts.
	MaxAttempts int

	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() EntryID
}

// Service validates and commits stock movements.
type Service struct {
	store   Store
	monitor *Monitor
	locks   *lockSet
	opts    Options
}

// NewService wires a Service over store.
func NewService(store Store, opts Options) *Service {
	if opts.Thresholds == (Thresholds{}) {
		opts.Thresholds = DefaultThresholds
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = NewEntryID
	}
	return &Service{
		store:   store,
		monitor: &Monitor{Thresholds: opts.Thresholds, Notifier: opts.Notifier},
		locks:   newLockSet(),
		opts:    opts,
	}
}

// NewEntryID returns a time-ordered UUIDv7, so ids sort in commit order.
func NewEntryID() EntryID {
	id, err := uuid.NewV7()
	if err != nil {
		return EntryID(uuid.NewString())
	}
	return EntryID(id.String())
}

// Thresholds returns the thresholds the service classifies with.
func (s *Service) Thresholds() Thresholds {
	return s.opts.Thresholds
}

// =============================================================================
// COMMIT
// =============================================================================

// CommitResult is the authoritative post-commit state.
type CommitResult struct {
	Item  Item
	Entry LedgerEntry

	PreviousSeverity Severity
	Severity         Severity
	Notified         bool

	// NotifyErr is the sink's error, if any. The commit itself succeeded.
	NotifyErr error
}

// Commit validates m against the item's current balance and persists it.
//
// Errors: ErrInvalidQuantity, ErrInvalidMovementType, ErrNoteRequired,
// ErrItemNotFound, *InsufficientStockError, *ConflictError.
func (s *Service) Commit(ctx context.Context, m Movement) (*CommitResult, error) {
	if !m.Type.Valid() {
		return nil, ErrInvalidMovementType
	}
	if m.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if m.Type == StockIn && !s.opts.AllowUnnotedInbound && strings.TrimSpace(m.Note) == "" {
		return nil, ErrNoteRequired
	}

	return s.apply(ctx, m.ItemID, func(context.Context, Store) (Movement, EntryID, error) {
		return m, "", nil
	})
}

// Correct offsets a committed entry with one of the opposite type.
//
// Errors: ErrItemNotFound, ErrEntryNotFound, ErrAlreadyCorrected, and
// *InsufficientStockError when reversing a StockIn whose stock is gone.
func (s *Service) Correct(ctx context.Context, req CorrectionRequest) (*CommitResult, error) {
	return s.apply(ctx, req.ItemID, func(ctx context.Context, tx Store) (Movement, EntryID, error) {
		entries, err := tx.ListEntries(ctx, req.ItemID)
		if err != nil {
			return Movement{}, "", err
		}

		var target *LedgerEntry
		for i := range entries {
			e := entries[i]
			if e.CorrectsEntryID == req.EntryID {
				return Movement{}, "", ErrAlreadyCorrected
			}
			if e.ID == req.EntryID {
				target = &entries[i]
			}
		}
		if target == nil {
			return Movement{}, "", ErrEntryNotFound
		}
		if target.IsCorrection() {
			return Movement{}, "", ErrAlreadyCorrected
		}

		note := req.Note
		if strings.TrimSpace(note) == "" {
			note = fmt.Sprintf("Correction of %s", target.ID)
		}
		return Movement{
			ItemID:     req.ItemID,
			Type:       target.Type.Opposite(),
			Quantity:   target.Quantity,
			Note:       note,
			OccurredAt: target.OccurredAt,
			ActorID:    req.ActorID,
			TraceToken: target.TraceToken,
		}, target.ID, nil
	})
}

// planFunc decides the movement inside the critical section. It may read
// through tx; the returned EntryID is the corrected entry, if any.
type planFunc func(ctx context.Context, tx Store) (Movement, EntryID, error)

func (s *Service) apply(ctx context.Context, itemID ItemID, plan planFunc) (*CommitResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(itemID)
	defer unlock()

	// Past this point the commit is not interruptible.
	ctx = context.WithoutCancel(ctx)

	var (
		updated  Item
		entry    LedgerEntry
		previous int
	)
	for attempt := 1; ; attempt++ {
		err := s.store.WithTx(ctx, func(tx Store) error {
			item, err := tx.GetItem(ctx, itemID)
			if err != nil {
				return err
			}

			m, corrects, err := plan(ctx, tx)
			if err != nil {
				return err
			}

			next, err := NextStock(item.CurrentStock, m.Type, m.Quantity)
			if err != nil {
				return err
			}
			if next < 0 {
				return &InsufficientStockError{
					ItemID:    itemID,
					Requested: m.Quantity,
					Available: item.CurrentStock,
				}
			}

			now := s.opts.Now()
			occurred := m.OccurredAt
			if occurred.IsZero() {
				occurred = now
			}

			e := LedgerEntry{
				ID:              s.opts.NewID(),
				ItemID:          itemID,
				Type:            m.Type,
				Quantity:        m.Quantity,
				Note:            m.Note,
				OccurredAt:      occurred,
				TraceToken:      m.TraceToken,
				ActorID:         m.ActorID,
				CorrectsEntryID: corrects,
				BalanceAfter:    next,
				CommittedAt:     now,
			}
			id, err := tx.AppendEntry(ctx, e)
			if err != nil {
				return err
			}
			e.ID = id

			previous = item.CurrentStock
			item.CurrentStock = next
			item.UpdatedAt = now
			if err := tx.SaveItem(ctx, item); err != nil {
				return err
			}
			item.Version++

			updated, entry = item, e
			return nil
		})
		if err == nil {
			break
		}
		if !errors.Is(err, ErrConcurrencyConflict) {
			return nil, err
		}
		if attempt >= s.opts.MaxAttempts {
			return nil, &ConflictError{ItemID: itemID, Attempts: attempt}
		}
	}

	obs := s.monitor.Observe(ctx, updated, previous)
	return &CommitResult{
		Item:             updated,
		Entry:            entry,
		PreviousSeverity: obs.Previous,
		Severity:         obs.Current,
		Notified:         obs.Notified,
		NotifyErr:        obs.Err,
	}, nil
}

// =============================================================================
// PREVIEW
// =============================================================================

// Preview loads the item and runs PreviewWith against the service's
// thresholds. It writes nothing.
func (s *Service) Preview(ctx context.Context, itemID ItemID, t MovementType, quantity int) (PreviewResult, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return PreviewResult{}, err
	}
	return PreviewWith(s.opts.Thresholds, item, t, quantity)
}

// =============================================================================
// ITEM LIFECYCLE
// =============================================================================

// CreateItem registers an item with its immutable BaseStock.
func (s *Service) CreateItem(ctx context.Context, n NewItem) (Item, error) {
	if n.ID == "" {
		return Item{}, fmt.Errorf("item id is required: %w", ErrInvalidOptions)
	}
	if n.BaseStock < 0 {
		return Item{}, ErrInvalidQuantity
	}
	status := n.Status
	if status == "" {
		status = StatusActive
	}
	if !status.Valid() {
		return Item{}, ErrInvalidStatus
	}

	now := s.opts.Now()
	item := Item{
		ID:           n.ID,
		Code:         n.Code,
		Name:         n.Name,
		CategoryID:   n.CategoryID,
		DivisionID:   n.DivisionID,
		BaseStock:    n.BaseStock,
		CurrentStock: n.BaseStock,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateItem(ctx, item); err != nil {
		return Item{}, err
	}
	return item, nil
}

// SetStatus activates or deactivates an item. Stock is untouched.
func (s *Service) SetStatus(ctx context.Context, id ItemID, status ItemStatus) (Item, error) {
	if !status.Valid() {
		return Item{}, ErrInvalidStatus
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	var updated Item
	for attempt := 1; ; attempt++ {
		err := s.store.WithTx(ctx, func(tx Store) error {
			item, err := tx.GetItem(ctx, id)
			if err != nil {
				return err
			}
			item.Status = status
			item.UpdatedAt = s.opts.Now()
			if err := tx.SaveItem(ctx, item); err != nil {
				return err
			}
			item.Version++
			updated = item
			return nil
		})
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, ErrConcurrencyConflict) {
			return Item{}, err
		}
		if attempt >= s.opts.MaxAttempts {
			return Item{}, &ConflictError{ItemID: id, Attempts: attempt}
		}
	}
}

func (s *Service) GetItem(ctx context.Context, id ItemID) (Item, error) {
	return s.store.GetItem(ctx, id)
}

func (s *Service) ListItems(ctx context.Context) ([]Item, error) {
	return s.store.ListItems(ctx)
}

// History returns an item's ledger in commit order.
func (s *Service) History(ctx context.Context, id ItemID) ([]LedgerEntry, error) {
	if _, err := s.store.GetItem(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListEntries(ctx, id)
}

// Ledger returns every entry in the system in commit order.
func (s *Service) Ledger(ctx context.Context) ([]LedgerEntry, error) {
	return s.store.ListAllEntries(ctx)
}

// Audit reconciles an item's stored balance against its ledger. Item and
// entries are read in one transaction so a concurrent commit is seen either
// entirely or not at all.
func (s *Service) Audit(ctx context.Context, id ItemID) (Reconciliation, error) {
	var (
		item    Item
		entries []LedgerEntry
	)
	err := s.store.WithTx(ctx, func(tx Store) error {
		var err error
		if item, err = tx.GetItem(ctx, id); err != nil {
			return err
		}
		entries, err = tx.ListEntries(ctx, id)
		return err
	})
	if err != nil {
		return Reconciliation{}, err
	}
	return Reconcile(item, entries), nil
}

// Summary loads an item and its ledger and summarizes them.
func (s *Service) Summary(ctx context.Context, id ItemID) (Summary, error) {
	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	entries, err := s.store.ListEntries(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(item, entries), nil
}
