// Package storetest holds the behaviour every cash.Store implementation must
// share. Implementations call Run from their own tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tender-engine/cash"
)

// Backend is a store plus the admin operations the API layer uses.
type Backend interface {
	cash.Store
	cash.BillSource
	SaveBill(ctx context.Context, bill cash.Bill) error
	Reset(ctx context.Context) error
}

// Run exercises newStore against the shared contract. newStore must return an
// empty store.
func Run(t *testing.T, newStore func(t *testing.T) Backend) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s Backend)
	}{
		{"DrawerVersioning", testDrawerVersioning},
		{"CommitTender", testCommitTender},
		{"CommitTenderStale", testCommitTenderStale},
		{"CommitTenderDuplicate", testCommitTenderDuplicate},
		{"DayCashRevisions", testDayCashRevisions},
		{"Bills", testBills},
		{"Reset", testReset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// =============================================================================
// FIXTURES
// =============================================================================

func drawerKey() cash.DrawerKey {
	return cash.DrawerKey{StoreCode: "S1", CompanyCode: "C1", Date: cash.NewBusinessDate(2024, time.March, 1)}
}

func record(billNo string, closing cash.Counts, version int64) cash.TenderRecord {
	return cash.TenderRecord{
		ID:             "id-" + billNo,
		BillNo:         billNo,
		Drawer:         drawerKey(),
		NetAmount:      decimal.RequireFromString("900.50"),
		CollectedTotal: decimal.NewFromInt(1000),
		IssuedTotal:    decimal.NewFromInt(50),
		UPIAmount:      decimal.Zero,
		CardAmount:     decimal.Zero,
		Shortfall:      decimal.RequireFromString("49.50"),
		Collected:      cash.Counts{500: 2},
		Issue:          cash.Counts{50: 1},
		ClosingLedger:  closing,
		LedgerVersion:  version,
		FinalizedAt:    time.Date(2024, time.March, 1, 10, 30, 0, 0, time.UTC),
	}
}

// =============================================================================
// CASES
// =============================================================================

func testDrawerVersioning(t *testing.T, s Backend) {
	ctx := context.Background()
	key := drawerKey()

	_, err := s.LoadDrawer(ctx, key)
	assert.ErrorIs(t, err, cash.ErrDrawerNotFound)

	_, err = s.SaveDrawer(ctx, key, cash.Counts{100: 1}, 3)
	assert.ErrorIs(t, err, cash.ErrDrawerNotFound)

	snap, err := s.SaveDrawer(ctx, key, cash.Counts{500: 2, 100: 5}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Version)

	_, err = s.SaveDrawer(ctx, key, cash.Counts{500: 1}, 0)
	assert.ErrorIs(t, err, cash.ErrStaleLedger, "second create")

	snap, err = s.SaveDrawer(ctx, key, cash.Counts{500: 3}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Version)

	_, err = s.SaveDrawer(ctx, key, cash.Counts{500: 4}, 1)
	var stale *cash.StaleLedgerError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, int64(2), stale.CurrentVersion)

	loaded, err := s.LoadDrawer(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), loaded.Version)
	assert.True(t, loaded.Available.Equal(cash.Counts{500: 3}))
	assert.Equal(t, key, loaded.Key)
}

func testCommitTender(t *testing.T, s Backend) {
	ctx := context.Background()
	_, err := s.SaveDrawer(ctx, drawerKey(), cash.Counts{50: 1}, 0)
	require.NoError(t, err)

	rec := record("B-1", cash.Counts{500: 2}, 1)
	require.NoError(t, s.CommitTender(ctx, rec, 1))

	drawer, err := s.LoadDrawer(ctx, drawerKey())
	require.NoError(t, err)
	assert.Equal(t, int64(2), drawer.Version)
	assert.True(t, drawer.Available.Equal(cash.Counts{500: 2}))

	got, err := s.GetTender(ctx, "B-1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Drawer, got.Drawer)
	assert.True(t, rec.NetAmount.Equal(got.NetAmount))
	assert.True(t, rec.Shortfall.Equal(got.Shortfall))
	assert.True(t, rec.Collected.Equal(got.Collected))
	assert.True(t, rec.Issue.Equal(got.Issue))
	assert.True(t, rec.ClosingLedger.Equal(got.ClosingLedger))
	assert.Equal(t, int64(1), got.LedgerVersion)
	assert.True(t, rec.FinalizedAt.Equal(got.FinalizedAt))

	list, err := s.ListTenders(ctx, drawerKey())
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = s.GetTender(ctx, "B-2")
	assert.ErrorIs(t, err, cash.ErrTenderNotFound)
}

func testCommitTenderStale(t *testing.T, s Backend) {
	ctx := context.Background()
	_, err := s.SaveDrawer(ctx, drawerKey(), cash.Counts{50: 1}, 0)
	require.NoError(t, err)
	_, err = s.SaveDrawer(ctx, drawerKey(), cash.Counts{50: 2}, 1)
	require.NoError(t, err)

	err = s.CommitTender(ctx, record("B-1", cash.Counts{500: 2}, 1), 1)
	assert.ErrorIs(t, err, cash.ErrStaleLedger)

	// Nothing from the rejected commit is visible
	_, err = s.GetTender(ctx, "B-1")
	assert.ErrorIs(t, err, cash.ErrTenderNotFound)
	drawer, err := s.LoadDrawer(ctx, drawerKey())
	require.NoError(t, err)
	assert.Equal(t, int64(2), drawer.Version)
	assert.True(t, drawer.Available.Equal(cash.Counts{50: 2}))
}

func testCommitTenderDuplicate(t *testing.T, s Backend) {
	ctx := context.Background()
	_, err := s.SaveDrawer(ctx, drawerKey(), cash.Counts{50: 1}, 0)
	require.NoError(t, err)
	require.NoError(t, s.CommitTender(ctx, record("B-1", cash.Counts{500: 2}, 1), 1))

	dup := record("B-1", cash.Counts{500: 4}, 2)
	dup.ID = "other"
	err = s.CommitTender(ctx, dup, 2)
	assert.ErrorIs(t, err, cash.ErrDuplicateTender)

	drawer, err := s.LoadDrawer(ctx, drawerKey())
	require.NoError(t, err)
	assert.Equal(t, int64(2), drawer.Version)
}

func testDayCashRevisions(t *testing.T, s Backend) {
	ctx := context.Background()
	key := drawerKey()
	at := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	snap := func(kind cash.CountKind, rev int, counts cash.Counts, offset time.Duration) cash.DayCashSnapshot {
		return cash.DayCashSnapshot{
			Key: key, Kind: kind, Revision: rev, Counts: counts, Total: counts.Total(),
			RecordedBy: "asha", RecordedAt: at.Add(offset),
		}
	}

	_, err := s.LatestDayCash(ctx, key, cash.CountOpening)
	assert.ErrorIs(t, err, cash.ErrDayCashNotFound)

	require.NoError(t, s.AppendDayCash(ctx, snap(cash.CountOpening, 1, cash.Counts{500: 10}, 0)))
	require.NoError(t, s.AppendDayCash(ctx, snap(cash.CountOpening, 2, cash.Counts{500: 9}, time.Minute)))
	require.NoError(t, s.AppendDayCash(ctx, snap(cash.CountClosing, 1, cash.Counts{500: 14, 100: 3}, time.Hour)))

	err = s.AppendDayCash(ctx, snap(cash.CountOpening, 2, cash.Counts{500: 1}, 2*time.Hour))
	assert.ErrorIs(t, err, cash.ErrStaleLedger, "revision already taken")
	err = s.AppendDayCash(ctx, snap(cash.CountClosing, 3, cash.Counts{500: 1}, 2*time.Hour))
	assert.ErrorIs(t, err, cash.ErrStaleLedger, "revision skipped")

	latest, err := s.LatestDayCash(ctx, key, cash.CountOpening)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Revision)
	assert.True(t, latest.Counts.Equal(cash.Counts{500: 9}))
	assert.True(t, latest.Total.Equal(decimal.NewFromInt(4500)))
	assert.Equal(t, "asha", latest.RecordedBy)

	history, err := s.DayCashHistory(ctx, key)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, cash.CountOpening, history[0].Kind)
	assert.Equal(t, 1, history[0].Revision)
	assert.Equal(t, cash.CountClosing, history[2].Kind)
}

func testBills(t *testing.T, s Backend) {
	ctx := context.Background()
	date := drawerKey().Date

	_, err := s.Bill(ctx, "R-1")
	assert.ErrorIs(t, err, cash.ErrBillNotFound)
	_, err = s.TenderAmountForBill(ctx, "R-1")
	assert.ErrorIs(t, err, cash.ErrBillNotFound)

	require.NoError(t, s.SaveBill(ctx, cash.Bill{BillNo: "R-1", SalesmanName: "Ravi", Date: date, Amount: decimal.NewFromInt(150)}))
	b, err := s.Bill(ctx, "R-1")
	require.NoError(t, err)
	assert.Equal(t, "Ravi", b.SalesmanName)
	assert.True(t, b.Date.Equal(date))

	amount, err := s.TenderAmountForBill(ctx, "R-1")
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.NewFromInt(150)), "untendered bill falls back to bill amount")

	_, err = s.SaveDrawer(ctx, drawerKey(), cash.Counts{50: 1}, 0)
	require.NoError(t, err)
	require.NoError(t, s.CommitTender(ctx, record("R-1", cash.Counts{500: 2}, 1), 1))

	amount, err = s.TenderAmountForBill(ctx, "R-1")
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.RequireFromString("900.50")), "tendered bill uses the committed net")
}

func testReset(t *testing.T, s Backend) {
	ctx := context.Background()
	_, err := s.SaveDrawer(ctx, drawerKey(), cash.Counts{50: 1}, 0)
	require.NoError(t, err)
	require.NoError(t, s.SaveBill(ctx, cash.Bill{BillNo: "B-1", Date: drawerKey().Date, Amount: decimal.NewFromInt(10)}))

	require.NoError(t, s.Reset(ctx))

	_, err = s.LoadDrawer(ctx, drawerKey())
	assert.ErrorIs(t, err, cash.ErrDrawerNotFound)
	_, err = s.Bill(ctx, "B-1")
	assert.ErrorIs(t, err, cash.ErrBillNotFound)
}

// SeedDrawer writes one drawer for AssertSeededDrawer to find, possibly
// through a different handle on the same storage.
func SeedDrawer(t *testing.T, s Backend) {
	t.Helper()
	_, err := s.SaveDrawer(context.Background(), drawerKey(), cash.Counts{200: 7}, 0)
	require.NoError(t, err)
}

// AssertSeededDrawer checks the drawer written by SeedDrawer.
func AssertSeededDrawer(t *testing.T, s Backend) {
	t.Helper()
	drawer, err := s.LoadDrawer(context.Background(), drawerKey())
	require.NoError(t, err)
	assert.Equal(t, int64(1), drawer.Version)
	assert.True(t, drawer.Available.Equal(cash.Counts{200: 7}))
}
