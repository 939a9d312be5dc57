/*
split.go - Share computation and cent-exact allocation

PURPOSE:
  All splitting in the system funnels through AllocateMoney: equal and
  weighted pool splits, ownership fractions applied to a tip, and the
  receiver side of tip-outs. The allocator works on integer cents with
  largest-remainder rounding so shares always sum exactly to the input
  amount - no currency leakage, ever.

TIE-BREAK:
  When members tie for the largest fractional remainder, leftover cents
  go to the earlier position in the input slice. Segment members are
  kept in join order and ownership records in first-seen order, so the
  result is deterministic across replays. (A $10.00 three-way equal
  split yields 3.34/3.33/3.33 with the extra cent on the first member.)

SEE ALSO:
  - group.go: Resolves segment weights and credits pools
  - ownership.go: Applies owner fractions to order tips
*/
package tips

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// WEIGHTED ALLOCATION
// =============================================================================

// WeightedEmployee is one participant in a split with a relative weight.
// Weights need not be normalized.
type WeightedEmployee struct {
	EmployeeID EmployeeID
	Weight     decimal.Decimal
}

// Allocation is one employee's exact slice of an allocated amount.
type Allocation struct {
	EmployeeID EmployeeID
	Amount     Money
}

// AllocateMoney splits total across weights, largest remainder first,
// ties broken by input order. The returned allocations are in input
// order and sum exactly to total. A non-positive weight sum falls back
// to an equal split.
func AllocateMoney(total Money, weights []WeightedEmployee) ([]Allocation, error) {
	if len(weights) == 0 {
		return nil, nil
	}

	negative := total.IsNegative()
	totalCents := total.Cents()
	if negative {
		totalCents = -totalCents
	}

	sumW := decimal.Zero
	for _, w := range weights {
		if w.Weight.IsPositive() {
			sumW = sumW.Add(w.Weight)
		}
	}
	effective := make([]decimal.Decimal, len(weights))
	if sumW.IsZero() {
		// Equal fallback: hours or role weights that sum to zero.
		for i := range weights {
			effective[i] = decimal.NewFromInt(1)
		}
		sumW = decimal.NewFromInt(int64(len(weights)))
	} else {
		for i, w := range weights {
			if w.Weight.IsPositive() {
				effective[i] = w.Weight
			} else {
				effective[i] = decimal.Zero
			}
		}
	}

	totalDec := decimal.NewFromInt(totalCents)
	base := make([]int64, len(weights))
	remainders := make([]decimal.Decimal, len(weights))
	var allocated int64
	for i := range weights {
		exact := totalDec.Mul(effective[i]).Div(sumW)
		base[i] = exact.IntPart()
		remainders[i] = exact.Sub(decimal.NewFromInt(base[i]))
		allocated += base[i]
	}

	// Distribute leftover cents to the largest remainders; stable sort
	// preserves input order among ties.
	leftover := totalCents - allocated
	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]].GreaterThan(remainders[order[b]])
	})
	for i := int64(0); i < leftover; i++ {
		base[order[i%int64(len(order))]]++
	}

	var check int64
	out := make([]Allocation, len(weights))
	for i, w := range weights {
		cents := base[i]
		if negative {
			cents = -cents
		}
		out[i] = Allocation{EmployeeID: w.EmployeeID, Amount: Cents(cents)}
		check += base[i]
	}
	if check != totalCents {
		return nil, &RoundingResidualError{Input: total, Computed: Cents(check)}
	}
	return out, nil
}

// SumAllocations adds up allocation amounts, for invariant checks.
func SumAllocations(allocs []Allocation) Money {
	total := ZeroMoney()
	for _, a := range allocs {
		total = total.Add(a.Amount)
	}
	return total
}

// =============================================================================
// SHARE FRACTIONS
// =============================================================================

// ComputeShares turns weights into fractions that sum exactly to 1.
// Each fraction is rounded to four places; the final member absorbs the
// residual so the recorded shares always total 1.0.
func ComputeShares(weights []WeightedEmployee) []decimal.Decimal {
	if len(weights) == 0 {
		return nil
	}
	sumW := decimal.Zero
	for _, w := range weights {
		if w.Weight.IsPositive() {
			sumW = sumW.Add(w.Weight)
		}
	}
	shares := make([]decimal.Decimal, len(weights))
	if sumW.IsZero() {
		equal := decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(len(weights)))).Round(4)
		running := decimal.Zero
		for i := range weights {
			if i == len(weights)-1 {
				shares[i] = decimal.NewFromInt(1).Sub(running)
			} else {
				shares[i] = equal
				running = running.Add(equal)
			}
		}
		return shares
	}
	running := decimal.Zero
	for i, w := range weights {
		if i == len(weights)-1 {
			shares[i] = decimal.NewFromInt(1).Sub(running)
			continue
		}
		weight := w.Weight
		if !weight.IsPositive() {
			weight = decimal.Zero
		}
		shares[i] = weight.Div(sumW).Round(4)
		running = running.Add(shares[i])
	}
	return shares
}
