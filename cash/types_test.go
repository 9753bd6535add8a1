package cash_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tender-engine/cash"
)

func TestDenominationSet_New(t *testing.T) {
	set, err := cash.NewDenominationSet(10, 500, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, cash.DenominationSet{500, 100, 10, 1}, set)

	_, err = cash.NewDenominationSet()
	assert.ErrorIs(t, err, cash.ErrValidation)
	_, err = cash.NewDenominationSet(100, 0)
	assert.ErrorIs(t, err, cash.ErrValidation)
	_, err = cash.NewDenominationSet(100, 100)
	assert.ErrorIs(t, err, cash.ErrValidation)
}

func TestDenominationSet_Parse(t *testing.T) {
	set, err := cash.ParseDenominationSet(" 2000, 500 ,100,")
	require.NoError(t, err)
	assert.Equal(t, cash.DenominationSet{2000, 500, 100}, set)

	_, err = cash.ParseDenominationSet("500,ten")
	var verr *cash.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "ten", verr.Value)
}

func TestDenominationSet_Validate(t *testing.T) {
	set := cash.DefaultDenominations()

	assert.NoError(t, set.Validate(cash.Counts{500: 1, 1: 0}))
	assert.ErrorIs(t, set.Validate(cash.Counts{2000: 1}), cash.ErrValidation)
	assert.ErrorIs(t, set.Validate(cash.Counts{100: -2}), cash.ErrValidation)
	assert.NoError(t, set.Validate(cash.Counts{1: cash.MaxCount}))
}

func TestDenominationSet_ValidateRejectsHugeCounts(t *testing.T) {
	set := cash.DefaultDenominations()

	err := set.Validate(cash.Counts{500: cash.MaxCount + 1})
	var verr *cash.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "count", verr.Field)

	assert.ErrorIs(t, set.Validate(cash.Counts{500: 1 << 62}), cash.ErrValidation)
}

func TestCounts_TotalBeyondInt64(t *testing.T) {
	// 500 × 2^62 does not fit in an int64
	c := cash.Counts{500: 1 << 62, 100: 1}

	assertDecimal(t, "2305843009213693952100", c.Total())
}

func TestCounts_TotalsAndEquality(t *testing.T) {
	c := cash.Counts{500: 3, 100: 4, 5: 0}

	assertDecimal(t, "1900", c.Total())
	assert.Equal(t, int64(7), c.Pieces())
	assert.True(t, c.Equal(cash.Counts{100: 4, 500: 3}), "zero entries are ignored")
	assert.False(t, c.Equal(cash.Counts{500: 3}))
	assert.Equal(t, []cash.Denomination{500, 100, 5}, c.Denominations())
	assert.True(t, cash.Counts{1: 0}.IsEmpty())
}

func TestCounts_CloneIsIndependent(t *testing.T) {
	c := cash.Counts{500: 1}
	clone := c.Clone()
	clone[500] = 9

	assert.Equal(t, int64(1), c[500])
}

func TestBusinessDate_Parse(t *testing.T) {
	d, err := cash.ParseBusinessDate("2024-03-01")
	require.NoError(t, err)
	assert.True(t, d.Equal(cash.NewBusinessDate(2024, time.March, 1)))
	assert.Equal(t, "2024-03-02", d.AddDays(1).String())

	_, err = cash.ParseBusinessDate("01/03/2024")
	assert.ErrorIs(t, err, cash.ErrValidation)
}

func TestDrawerKey_LockKey(t *testing.T) {
	key := cash.DrawerKey{StoreCode: "S1", CompanyCode: "C1", Date: cash.NewBusinessDate(2024, time.March, 1)}
	assert.Equal(t, "drawer:S1/C1/2024-03-01", key.LockKey())
}

func TestErrorClassifiers(t *testing.T) {
	assert.True(t, cash.IsClientError(&cash.UnderpaidError{}))
	assert.True(t, cash.IsClientError(&cash.InsufficientStockError{}))
	assert.True(t, cash.IsRetryable(&cash.StaleLedgerError{}))
	assert.True(t, cash.IsNotFound(cash.ErrBillNotFound))
	assert.False(t, cash.IsClientError(cash.ErrLockTimeout))
}
