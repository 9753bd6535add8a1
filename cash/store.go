/*
store.go - Collaborator interfaces for drawers, tenders, day cash and bills

PURPOSE:
  The engine only computes values. Loading the live drawer, looking up
  bills, and persisting tender records and day counts are done by
  collaborators behind these interfaces.

KEY INTERFACES:
  DrawerStore:  Live till per store/company/day, versioned
  TenderStore:  Tender records, committed together with the closing drawer
  DayCashStore: Opening/closing count revisions (append-only)
  BillSource:   Bill headers and tender amounts by bill number

OPTIMISTIC CONCURRENCY:
  Every drawer write names the version it was computed against. A store
  must reject the write with a StaleLedgerError when the stored version
  differs, and bump the version by one on success.

APPEND-ONLY DAY CASH:
  A posted opening or closing count is never updated. A correction is a new
  revision; readers take the latest revision of each kind.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - cash/store/memory.go: In-memory for tests and demos
*/
package cash

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DRAWER STORE
// =============================================================================

type DrawerStore interface {
	// LoadDrawer returns the live till, or ErrDrawerNotFound.
	LoadDrawer(ctx context.Context, key DrawerKey) (DrawerSnapshot, error)

	// SaveDrawer replaces the till's counts. expectedVersion 0 creates the
	// drawer and fails with StaleLedgerError if it already exists.
	SaveDrawer(ctx context.Context, key DrawerKey, counts Counts, expectedVersion int64) (DrawerSnapshot, error)
}

// =============================================================================
// TENDER STORE
// =============================================================================

type TenderStore interface {
	// CommitTender stores rec and sets the drawer to rec.ClosingLedger in one
	// atomic step, provided the drawer is still at expectedVersion.
	// Returns ErrDuplicateTender if the bill was already tendered.
	CommitTender(ctx context.Context, rec TenderRecord, expectedVersion int64) error

	// GetTender returns the record for a bill, or ErrTenderNotFound.
	GetTender(ctx context.Context, billNo string) (TenderRecord, error)

	// ListTenders returns the tenders committed against a drawer, oldest first.
	ListTenders(ctx context.Context, key DrawerKey) ([]TenderRecord, error)
}

// =============================================================================
// DAY CASH STORE
// =============================================================================

// CountKind distinguishes the two snapshots of a business day.
type CountKind string

const (
	CountOpening CountKind = "opening"
	CountClosing CountKind = "closing"
)

// DayCashSnapshot is one posted revision of an opening or closing count.
type DayCashSnapshot struct {
	Key        DrawerKey
	Kind       CountKind
	Revision   int
	Counts     Counts
	Total      decimal.Decimal
	RecordedBy string
	RecordedAt time.Time
}

type DayCashStore interface {
	// AppendDayCash stores a new revision. Revisions of a (key, kind) start
	// at 1 and must be consecutive; a clash returns StaleLedgerError.
	AppendDayCash(ctx context.Context, snap DayCashSnapshot) error

	// LatestDayCash returns the highest revision of kind, or ErrDayCashNotFound.
	LatestDayCash(ctx context.Context, key DrawerKey, kind CountKind) (DayCashSnapshot, error)

	// DayCashHistory returns every revision for a day, oldest first.
	DayCashHistory(ctx context.Context, key DrawerKey) ([]DayCashSnapshot, error)
}

// =============================================================================
// BILL SOURCE
// =============================================================================

type BillSource interface {
	// Bill returns the bill header, or ErrBillNotFound.
	Bill(ctx context.Context, billNo string) (Bill, error)

	// TenderAmountForBill returns the tendered amount of a bill, used to
	// resolve scrap and sales-return deductions by reference number.
	TenderAmountForBill(ctx context.Context, billNo string) (decimal.Decimal, error)
}

// Store is everything the services persist to.
type Store interface {
	DrawerStore
	TenderStore
	DayCashStore
}
