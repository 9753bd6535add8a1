/*
errors.go - Centralized error types for the tender engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every error here is recoverable by operator action: re-enter a value,
  collect more cash, re-fetch the drawer. None is retried automatically.

ERROR CATEGORIES:
  1. Input errors - ValidationError (bad count, amount, denomination)
  2. Tender errors - Underpaid, InsufficientStock (finalize is blocked)
  3. Concurrency errors - StaleLedger, lock timeouts
  4. Lifecycle errors - Ledger not loaded, session closed
  5. Lookup errors - Drawer/bill/record not found

USAGE:
  rec, err := session.Finalize(time.Now())
  var short *cash.InsufficientStockError
  if errors.As(err, &short) {
      // ask the operator to accept a partial payout
  }

SEE ALSO:
  - session.go: Raises most of these
  - api/handlers.go: Maps them to HTTP status codes
*/
package cash

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for non-numeric or negative counts/amounts and
	// for denominations outside the configured set.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientStock is returned when the drawer cannot pay out the
	// change due and the operator has not accepted a partial payout.
	ErrInsufficientStock = errors.New("insufficient stock in drawer")

	// ErrUnderpaid is returned when the tendered amount is below the amount due.
	ErrUnderpaid = errors.New("tender underpaid")

	// ErrStaleLedger is returned when the ledger a session computed against is
	// too old or was changed by someone else since it was fetched.
	ErrStaleLedger = errors.New("stale drawer ledger")

	// ErrLedgerNotLoaded is returned when collection input arrives before the
	// drawer has been fetched.
	ErrLedgerNotLoaded = errors.New("drawer ledger not loaded")

	// ErrSessionClosed is returned for any input to a finalized or aborted session.
	ErrSessionClosed = errors.New("tender session closed")

	// ErrInvalidTransition is returned when a state change is not allowed
	// from the session's current state.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrDrawerNotFound is returned when no live drawer exists for a key.
	ErrDrawerNotFound = errors.New("drawer not found")

	// ErrBillNotFound is returned when a bill reference cannot be resolved.
	ErrBillNotFound = errors.New("bill not found")

	// ErrDayCashNotFound is returned when no counts were posted for a day.
	ErrDayCashNotFound = errors.New("day cash record not found")

	// ErrTenderNotFound is returned when no tender record exists for a bill.
	ErrTenderNotFound = errors.New("tender record not found")

	// ErrDuplicateTender is returned when a bill was already tendered.
	ErrDuplicateTender = errors.New("bill already tendered")

	// ErrLockTimeout is returned when the drawer lock could not be acquired.
	ErrLockTimeout = errors.New("drawer lock not acquired")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InsufficientStockError reports how much of the change could not be paid out.
type InsufficientStockError struct {
	Balance   decimal.Decimal
	Issued    decimal.Decimal
	Shortfall decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: change due %s, can issue %s, shortfall %s",
		e.Balance.StringFixed(2), e.Issued.StringFixed(2), e.Shortfall.StringFixed(2))
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// UnderpaidError reports how much more cash the customer owes.
type UnderpaidError struct {
	CashDue   decimal.Decimal
	Collected decimal.Decimal
	Due       decimal.Decimal
}

func (e *UnderpaidError) Error() string {
	return fmt.Sprintf("underpaid: cash due %s, collected %s, still due %s",
		e.CashDue.StringFixed(2), e.Collected.StringFixed(2), e.Due.StringFixed(2))
}

func (e *UnderpaidError) Unwrap() error { return ErrUnderpaid }

// StaleLedgerError reports why a ledger was rejected.
type StaleLedgerError struct {
	Key            DrawerKey
	SessionVersion int64
	CurrentVersion int64
	FetchedAt      time.Time
	MaxAge         time.Duration
}

func (e *StaleLedgerError) Error() string {
	if e.CurrentVersion != 0 && e.CurrentVersion != e.SessionVersion {
		return fmt.Sprintf("stale ledger for %s: computed against version %d, drawer is at version %d",
			e.Key, e.SessionVersion, e.CurrentVersion)
	}
	return fmt.Sprintf("stale ledger for %s: fetched at %s, older than %s",
		e.Key, e.FetchedAt.Format(time.RFC3339), e.MaxAge)
}

func (e *StaleLedgerError) Unwrap() error { return ErrStaleLedger }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the operation may succeed after the operator
// re-fetches the drawer or tries again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStaleLedger) || errors.Is(err, ErrLockTimeout)
}

// IsClientError returns true if the error is due to operator input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrUnderpaid) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrLedgerNotLoaded) ||
		errors.Is(err, ErrSessionClosed) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrDuplicateTender)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDrawerNotFound) ||
		errors.Is(err, ErrBillNotFound) ||
		errors.Is(err, ErrDayCashNotFound) ||
		errors.Is(err, ErrTenderNotFound)
}
