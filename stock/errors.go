/*
errors.go - Centralized error types for the stock engine

PURPOSE:
  All error types in one place. Every failure is returned to the caller as a
  typed value; the engine never logs or formats errors for users.

ERROR CATEGORIES:
  1. Input errors - InvalidQuantity, InvalidMovementType, NoteRequired,
     InvalidStatus, InvalidOptions
  2. Business rule errors - InsufficientStock, AlreadyCorrected
  3. Lookup errors - ItemNotFound, EntryNotFound, ItemExists
  4. Concurrency errors - ConcurrencyConflict (retry ceiling exhausted)

USAGE:
    var short *stock.InsufficientStockError
    if errors.As(err, &short) {
        fmt.Printf("only %d left\n", short.Available)
    }

SEE ALSO:
  - mutation.go: returns most of these
  - view.go: returns InvalidOptions
*/
package stock

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidQuantity is returned when a quantity is not a positive
	// integer (or a base stock is negative).
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrInvalidMovementType is returned for anything other than StockIn/StockOut.
	ErrInvalidMovementType = errors.New("invalid movement type")

	// ErrInsufficientStock is returned when a StockOut exceeds the balance.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrItemNotFound is returned when the referenced item does not exist.
	ErrItemNotFound = errors.New("item not found")

	// ErrItemExists is returned when creating an item whose id is taken.
	ErrItemExists = errors.New("item already exists")

	// ErrEntryNotFound is returned when a correction targets an unknown entry.
	ErrEntryNotFound = errors.New("ledger entry not found")

	// ErrAlreadyCorrected is returned when an entry already has a correction,
	// or when the target is itself a correction.
	ErrAlreadyCorrected = errors.New("ledger entry already corrected")

	// ErrNoteRequired is returned for a StockIn without a note when the
	// service requires inbound notes.
	ErrNoteRequired = errors.New("note required for stock in")

	// ErrInvalidStatus is returned for an unknown item status.
	ErrInvalidStatus = errors.New("invalid item status")

	// ErrInvalidOptions is returned for malformed view options.
	ErrInvalidOptions = errors.New("invalid query options")

	// ErrConcurrencyConflict is returned when a versioned item write lost
	// every retry. Callers should retry the whole Commit.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientStockError reports both sides of a rejected StockOut so the
// caller can correct the quantity without re-querying.
type InsufficientStockError struct {
	ItemID    ItemID
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.ItemID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// InvalidOptionsError names the offending view option.
type InvalidOptionsError struct {
	Field  string
	Reason string
}

func (e *InvalidOptionsError) Error() string {
	return fmt.Sprintf("invalid query options: %s %s", e.Field, e.Reason)
}

func (e *InvalidOptionsError) Unwrap() error {
	return ErrInvalidOptions
}

// ConflictError is returned once the commit retry ceiling is reached.
type ConflictError struct {
	ItemID   ItemID
	Attempts int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict on %s after %d attempts", e.ItemID, e.Attempts)
}

func (e *ConflictError) Unwrap() error {
	return ErrConcurrencyConflict
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsClientError returns true if the error is due to invalid client input or
// a business rule the client can fix.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidMovementType) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrNoteRequired) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidOptions) ||
		errors.Is(err, ErrAlreadyCorrected) ||
		errors.Is(err, ErrItemExists)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrEntryNotFound)
}
