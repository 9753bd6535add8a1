package cash_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tender-engine/cash"
	"github.com/warp/tender-engine/cash/store"
)

// newDayCashService returns a service over an empty memory store whose clock
// advances a minute per call.
func newDayCashService() (*cash.DayCashService, *store.Memory) {
	mem := store.NewMemory()
	svc := cash.NewDayCashService(mem)
	clock := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return svc, mem
}

// =============================================================================
// SUMMARY
// =============================================================================

func TestDayCash_OpeningClosingVariance(t *testing.T) {
	// GIVEN: Opening 10×500, closing 14×500 + 3×100
	svc, _ := newDayCashService()
	ctx := context.Background()

	_, err := svc.PostOpening(ctx, testDrawer(), cash.Counts{500: 10}, "asha")
	require.NoError(t, err)
	rec, err := svc.PostClosing(ctx, testDrawer(), cash.Counts{500: 14, 100: 3}, "asha")
	require.NoError(t, err)

	// THEN: 5000 opening, 7300 closing, 2300 variance
	sum := rec.Summary()
	assertDecimal(t, "5000", sum.OpeningTotal)
	assertDecimal(t, "7300", sum.ClosingTotal)
	assertDecimal(t, "2300", sum.Variance)
	assert.True(t, sum.HasOpening)
	assert.True(t, sum.HasClosing)
}

func TestDayCash_ClosingWithoutOpening(t *testing.T) {
	svc, _ := newDayCashService()

	rec, err := svc.PostClosing(context.Background(), testDrawer(), cash.Counts{100: 3}, "asha")
	require.NoError(t, err)

	sum := rec.Summary()
	assert.False(t, sum.HasOpening)
	assertDecimal(t, "0", sum.OpeningTotal)
	assertDecimal(t, "300", sum.Variance)
}

func TestDayCashRecord_SummaryIsPure(t *testing.T) {
	rec := cash.NewDayCashRecord(testDrawer(), nil)
	require.NoError(t, rec.RecordOpening(cash.Counts{200: 2}))

	first := rec.Summary()
	second := rec.Summary()
	assert.Equal(t, first, second)
	assert.Equal(t, cash.Counts{200: 2}, rec.Opening)
}

// =============================================================================
// POSTING
// =============================================================================

func TestDayCash_OpeningSeedsDrawerOnce(t *testing.T) {
	svc, mem := newDayCashService()
	ctx := context.Background()

	_, err := svc.PostOpening(ctx, testDrawer(), cash.Counts{500: 10}, "asha")
	require.NoError(t, err)

	drawer, err := mem.LoadDrawer(ctx, testDrawer())
	require.NoError(t, err)
	assert.Equal(t, int64(1), drawer.Version)
	assert.True(t, drawer.Available.Equal(cash.Counts{500: 10}))

	// A corrected opening count does not overwrite the live drawer
	_, err = svc.PostOpening(ctx, testDrawer(), cash.Counts{500: 9}, "asha")
	require.NoError(t, err)

	drawer, err = mem.LoadDrawer(ctx, testDrawer())
	require.NoError(t, err)
	assert.Equal(t, int64(1), drawer.Version)
	assert.True(t, drawer.Available.Equal(cash.Counts{500: 10}))
}

// failingDrawers refuses to create drawers.
type failingDrawers struct {
	cash.DrawerStore
}

var errDrawerWrite = errors.New("drawer write failed")

func (failingDrawers) SaveDrawer(context.Context, cash.DrawerKey, cash.Counts, int64) (cash.DrawerSnapshot, error) {
	return cash.DrawerSnapshot{}, errDrawerWrite
}

func TestDayCash_FailedSeedAppendsNoRevision(t *testing.T) {
	// GIVEN: A drawer store that cannot create the day's drawer
	svc, mem := newDayCashService()
	svc.Drawers = failingDrawers{DrawerStore: mem}
	ctx := context.Background()

	// WHEN: The first opening is posted
	_, err := svc.PostOpening(ctx, testDrawer(), cash.Counts{500: 10}, "asha")

	// THEN: The seed error surfaces and no opening revision exists
	require.ErrorIs(t, err, errDrawerWrite)
	history, err := mem.DayCashHistory(ctx, testDrawer())
	require.NoError(t, err)
	assert.Empty(t, history)

	// AND: A retry against a working store seeds and records revision 1
	svc.Drawers = mem
	rec, err := svc.PostOpening(ctx, testDrawer(), cash.Counts{500: 10}, "asha")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.OpeningRevision)
	drawer, err := mem.LoadDrawer(ctx, testDrawer())
	require.NoError(t, err)
	assert.True(t, drawer.Available.Equal(cash.Counts{500: 10}))
}

func TestDayCash_RevisionsAreAppendOnly(t *testing.T) {
	// GIVEN: An opening count posted and then corrected
	svc, mem := newDayCashService()
	ctx := context.Background()

	_, err := svc.PostOpening(ctx, testDrawer(), cash.Counts{500: 10}, "asha")
	require.NoError(t, err)
	rec, err := svc.PostOpening(ctx, testDrawer(), cash.Counts{500: 9, 50: 2}, "vik")
	require.NoError(t, err)

	// THEN: The latest revision wins
	assert.Equal(t, 2, rec.OpeningRevision)
	assertDecimal(t, "4600", rec.Summary().OpeningTotal)

	loaded, err := svc.Load(ctx, testDrawer())
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.OpeningRevision)
	assert.Equal(t, cash.Counts{500: 9, 50: 2}, loaded.Opening)

	// AND: Both revisions are kept, oldest first
	history, err := mem.DayCashHistory(ctx, testDrawer())
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 1, history[0].Revision)
	assert.Equal(t, "asha", history[0].RecordedBy)
	assertDecimal(t, "5000", history[0].Total)
	assert.Equal(t, 2, history[1].Revision)
	assert.Equal(t, "vik", history[1].RecordedBy)
	assert.True(t, history[0].RecordedAt.Before(history[1].RecordedAt))
}

func TestDayCash_RejectsInvalidCounts(t *testing.T) {
	svc, _ := newDayCashService()
	ctx := context.Background()

	_, err := svc.PostOpening(ctx, testDrawer(), cash.Counts{3: 1}, "asha")
	assert.ErrorIs(t, err, cash.ErrValidation)

	_, err = svc.PostClosing(ctx, testDrawer(), cash.Counts{100: -1}, "asha")
	assert.ErrorIs(t, err, cash.ErrValidation)

	_, err = svc.Load(ctx, testDrawer())
	assert.ErrorIs(t, err, cash.ErrDayCashNotFound, "nothing was appended")
}

func TestDayCash_LoadUnknownDay(t *testing.T) {
	svc, _ := newDayCashService()

	_, err := svc.Load(context.Background(), testDrawer())
	assert.ErrorIs(t, err, cash.ErrDayCashNotFound)
	assert.True(t, cash.IsNotFound(err))
}

// =============================================================================
// RECONCILIATION
// =============================================================================

func TestDayCash_ReconcileAgainstDrawer(t *testing.T) {
	// GIVEN: Opening {500:10, 100:5}; one tender pays 100 change
	days, mem := newDayCashService()
	ctx := context.Background()
	_, err := days.PostOpening(ctx, testDrawer(), cash.Counts{500: 10, 100: 5}, "asha")
	require.NoError(t, err)

	tenders := cash.NewTenderService(mem, mem)
	saveBill(t, mem, "B-1", "900")
	s, err := tenders.Open(ctx, "B-1", testDrawer())
	require.NoError(t, err)
	require.NoError(t, s.ApplyCollection(500, 2))
	_, err = tenders.Finalize(ctx, s)
	require.NoError(t, err)

	// WHEN: The closing count is one 100 short of the drawer
	_, err = days.PostClosing(ctx, testDrawer(), cash.Counts{500: 12, 100: 3}, "asha")
	require.NoError(t, err)
	rec, err := days.Reconcile(ctx, testDrawer())

	// THEN: The discrepancy names the missing note
	require.NoError(t, err)
	assertDecimal(t, "6400", rec.DrawerTotal)
	assert.Equal(t, cash.Counts{100: -1}, rec.Discrepancy)
	assertDecimal(t, "800", rec.Summary.Variance)
}

func TestDayCash_ReconcileMatchingCount(t *testing.T) {
	days, _ := newDayCashService()
	ctx := context.Background()
	_, err := days.PostOpening(ctx, testDrawer(), cash.Counts{500: 10}, "asha")
	require.NoError(t, err)
	_, err = days.PostClosing(ctx, testDrawer(), cash.Counts{500: 10}, "asha")
	require.NoError(t, err)

	rec, err := days.Reconcile(ctx, testDrawer())
	require.NoError(t, err)
	assert.Empty(t, rec.Discrepancy)
	assertDecimal(t, "0", rec.Summary.Variance)
}
