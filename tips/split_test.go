package tips_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GetwithitMan/gwi-pos-sub001/tips"
)

// =============================================================================
// HELPERS
// =============================================================================

func equalWeights(ids ...tips.EmployeeID) []tips.WeightedEmployee {
	out := make([]tips.WeightedEmployee, len(ids))
	for i, id := range ids {
		out[i] = tips.WeightedEmployee{EmployeeID: id, Weight: decimal.NewFromInt(1)}
	}
	return out
}

func money(s string) tips.Money {
	return tips.MustParseMoney(s)
}

// =============================================================================
// CENT-EXACT ALLOCATION TESTS
// =============================================================================

func TestAllocateMoney_TenDollarsThreeWays(t *testing.T) {
	// GIVEN: $10.00 split equally three ways
	// WHEN: Allocating
	// THEN: 3.34 / 3.33 / 3.33 with the extra cent on the first member

	allocs, err := tips.AllocateMoney(money("10.00"), equalWeights("alice", "bob", "carol"))
	require.NoError(t, err)
	require.Len(t, allocs, 3)

	assert.Equal(t, "3.34", allocs[0].Amount.String())
	assert.Equal(t, "3.33", allocs[1].Amount.String())
	assert.Equal(t, "3.33", allocs[2].Amount.String())
	assert.True(t, tips.SumAllocations(allocs).Equal(money("10.00")))
}

func TestAllocateMoney_TieBreakFollowsInputOrder(t *testing.T) {
	// GIVEN: Equal remainders with employee ids in descending order
	// WHEN: Allocating $10.00
	// THEN: The extra cent lands on the first input position, not the
	//       lowest id - join order is the documented tie-break

	allocs, err := tips.AllocateMoney(money("10.00"), equalWeights("carol", "bob", "alice"))
	require.NoError(t, err)
	require.Len(t, allocs, 3)

	assert.Equal(t, tips.EmployeeID("carol"), allocs[0].EmployeeID)
	assert.Equal(t, "3.34", allocs[0].Amount.String())
	assert.Equal(t, "3.33", allocs[1].Amount.String())
	assert.Equal(t, "3.33", allocs[2].Amount.String())
}

func TestAllocateMoney_SumsExactly_ManyCases(t *testing.T) {
	// Cent conservation across awkward amounts and member counts.
	amounts := []string{"0.01", "0.02", "0.10", "1.00", "9.99", "100.03", "33.37"}
	for _, amount := range amounts {
		for n := 1; n <= 7; n++ {
			ids := make([]tips.EmployeeID, n)
			for i := range ids {
				ids[i] = tips.EmployeeID(string(rune('a' + i)))
			}
			allocs, err := tips.AllocateMoney(money(amount), equalWeights(ids...))
			require.NoError(t, err)
			assert.True(t, tips.SumAllocations(allocs).Equal(money(amount)),
				"amount=%s members=%d", amount, n)
		}
	}
}

func TestAllocateMoney_Weighted(t *testing.T) {
	// GIVEN: $100.00 split 6:2 by hours
	// WHEN: Allocating
	// THEN: 75.00 / 25.00

	weights := []tips.WeightedEmployee{
		{EmployeeID: "alice", Weight: decimal.NewFromInt(6)},
		{EmployeeID: "bob", Weight: decimal.NewFromInt(2)},
	}
	allocs, err := tips.AllocateMoney(money("100.00"), weights)
	require.NoError(t, err)

	assert.Equal(t, "75.00", allocs[0].Amount.String())
	assert.Equal(t, "25.00", allocs[1].Amount.String())
}

func TestAllocateMoney_ZeroWeightSum_FallsBackToEqual(t *testing.T) {
	// GIVEN: All weights zero (no recorded hours yet)
	// WHEN: Allocating $9.00
	// THEN: Equal split, not an error

	weights := []tips.WeightedEmployee{
		{EmployeeID: "alice", Weight: decimal.Zero},
		{EmployeeID: "bob", Weight: decimal.Zero},
		{EmployeeID: "carol", Weight: decimal.Zero},
	}
	allocs, err := tips.AllocateMoney(money("9.00"), weights)
	require.NoError(t, err)

	for _, a := range allocs {
		assert.Equal(t, "3.00", a.Amount.String())
	}
}

func TestAllocateMoney_NegativeTotal(t *testing.T) {
	// Corrections allocate negative amounts; conservation still holds.
	allocs, err := tips.AllocateMoney(money("-10.00"), equalWeights("alice", "bob", "carol"))
	require.NoError(t, err)

	assert.Equal(t, "-3.34", allocs[0].Amount.String())
	assert.Equal(t, "-3.33", allocs[1].Amount.String())
	assert.Equal(t, "-3.33", allocs[2].Amount.String())
	assert.True(t, tips.SumAllocations(allocs).Equal(money("-10.00")))
}

func TestAllocateMoney_EmptyMembers(t *testing.T) {
	allocs, err := tips.AllocateMoney(money("10.00"), nil)
	require.NoError(t, err)
	assert.Empty(t, allocs)
}

func TestAllocateMoney_Deterministic(t *testing.T) {
	// Same input, same output - replay safety for the adjustment engine.
	weights := []tips.WeightedEmployee{
		{EmployeeID: "x", Weight: decimal.NewFromInt(3)},
		{EmployeeID: "y", Weight: decimal.NewFromInt(3)},
		{EmployeeID: "z", Weight: decimal.NewFromInt(1)},
	}
	first, err := tips.AllocateMoney(money("20.01"), weights)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		again, err := tips.AllocateMoney(money("20.01"), weights)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

// =============================================================================
// SHARE FRACTION TESTS
// =============================================================================

func TestComputeShares_SumToOne(t *testing.T) {
	shares := tips.ComputeShares(equalWeights("a", "b", "c"))
	require.Len(t, shares, 3)

	sum := decimal.Zero
	for _, s := range shares {
		sum = sum.Add(s)
	}
	assert.True(t, sum.Equal(decimal.NewFromInt(1)), "shares sum to %s", sum)
}

func TestComputeShares_LastMemberAbsorbsResidual(t *testing.T) {
	// 1/3 rounds to 0.3333; the last member takes 0.3334.
	shares := tips.ComputeShares(equalWeights("a", "b", "c"))
	assert.Equal(t, "0.3333", shares[0].String())
	assert.Equal(t, "0.3333", shares[1].String())
	assert.Equal(t, "0.3334", shares[2].String())
}

func TestComputeShares_Weighted(t *testing.T) {
	weights := []tips.WeightedEmployee{
		{EmployeeID: "senior", Weight: decimal.NewFromFloat(1.5)},
		{EmployeeID: "junior", Weight: decimal.NewFromInt(1)},
	}
	shares := tips.ComputeShares(weights)
	assert.Equal(t, "0.6", shares[0].String())
	assert.Equal(t, "0.4", shares[1].String())
}
