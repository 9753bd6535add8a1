package cash_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tender-engine/cash"
	"github.com/warp/tender-engine/cash/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got.String(), msgAndArgs)
}

func testDrawer() cash.DrawerKey {
	return cash.DrawerKey{StoreCode: "S1", CompanyCode: "C1", Date: cash.NewBusinessDate(2024, time.March, 1)}
}

func snapshot(available cash.Counts, version int64) cash.DrawerSnapshot {
	return cash.DrawerSnapshot{Key: testDrawer(), Available: available, Version: version, FetchedAt: time.Now()}
}

// newLoadedSession returns a session for a bill of amount whose ledger is
// already loaded.
func newLoadedSession(t *testing.T, amount string, available cash.Counts) *cash.TenderSession {
	t.Helper()
	s := cash.NewTenderSession("B-1", testDrawer(), cash.NewBillState(dec(amount)), cash.DefaultDenominations())
	require.NoError(t, s.LoadLedger(snapshot(available, 1)))
	return s
}

// newTestService wires a TenderService to a memory store holding one drawer
// and one bill.
func newTestService(t *testing.T, available cash.Counts, billAmount string) (*cash.TenderService, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	ctx := context.Background()
	_, err := mem.SaveDrawer(ctx, testDrawer(), available, 0)
	require.NoError(t, err)
	require.NoError(t, mem.SaveBill(ctx, cash.Bill{BillNo: "B-1", Date: testDrawer().Date, Amount: dec(billAmount)}))
	return cash.NewTenderService(mem, mem), mem
}

// stockOf returns n of every default denomination.
func stockOf(n int64) cash.Counts {
	c := cash.Counts{}
	for _, d := range cash.DefaultDenominations() {
		c[d] = n
	}
	return c
}
