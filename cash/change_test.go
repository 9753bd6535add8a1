package cash_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/tender-engine/cash"
)

func TestComputeChange_ExactFromStock(t *testing.T) {
	// GIVEN: Drawer {500:2, 100:5}, 100 owed
	plan, shortfall := cash.ComputeChange(100, cash.Counts{500: 2, 100: 5})

	// THEN: One 100 note, nothing short
	assert.Equal(t, cash.Counts{100: 1}, plan)
	assert.Zero(t, shortfall)
}

func TestComputeChange_SkipsEmptyDenominations(t *testing.T) {
	// GIVEN: No 100s, one 50; 100 owed
	plan, shortfall := cash.ComputeChange(100, cash.Counts{100: 0, 50: 1})

	// THEN: The 50 is paid and 50 is short
	assert.Equal(t, cash.Counts{50: 1}, plan)
	assert.Equal(t, int64(50), shortfall)
}

func TestComputeChange_MixedDenominations(t *testing.T) {
	plan, shortfall := cash.ComputeChange(388, stockOf(10))

	assert.Equal(t, cash.Counts{200: 1, 100: 1, 50: 1, 20: 1, 10: 1, 5: 1, 2: 1, 1: 1}, plan)
	assert.Zero(t, shortfall)
}

func TestComputeChange_GreedyIsNotOptimalWithBoundedStock(t *testing.T) {
	// 3×20 would cover 60 exactly; greedy takes the 50 first.
	plan, shortfall := cash.ComputeChange(60, cash.Counts{50: 1, 20: 3})

	assert.Equal(t, cash.Counts{50: 1}, plan)
	assert.Equal(t, int64(10), shortfall)
}

func TestComputeChange_NothingOwed(t *testing.T) {
	for _, amount := range []int64{0, -1, -500} {
		plan, shortfall := cash.ComputeChange(amount, cash.Counts{500: 2})
		assert.Empty(t, plan)
		assert.Zero(t, shortfall)
	}
}

func TestComputeChange_EmptyStock(t *testing.T) {
	zero := cash.Counts{500: 0, 200: 0, 100: 0, 50: 0, 20: 0, 10: 0, 5: 0, 2: 0, 1: 0}
	for _, ledger := range []cash.Counts{nil, {}, zero} {
		plan, shortfall := cash.ComputeChange(137, ledger)
		assert.Empty(t, plan)
		assert.Equal(t, int64(137), shortfall)
	}
}

func TestComputeChange_Conservation(t *testing.T) {
	ledgers := []cash.Counts{
		{500: 2, 100: 5},
		{100: 0, 50: 1},
		{50: 1, 20: 3},
		{200: 1, 10: 4, 1: 3},
		{2: 7, 1: 1},
		stockOf(1),
	}
	for _, ledger := range ledgers {
		for amount := int64(0); amount <= 1200; amount += 7 {
			plan, shortfall := cash.ComputeChange(amount, ledger)

			var paid int64
			for d, n := range plan {
				assert.Positive(t, n, "plan has no zero entries")
				assert.LessOrEqual(t, n, ledger[d], "never issues more than stock")
				paid += int64(d) * n
			}
			assert.GreaterOrEqual(t, shortfall, int64(0))
			assert.Equal(t, amount, paid+shortfall, "amount %d from %v", amount, ledger)
		}
	}
}
