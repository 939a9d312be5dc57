package tips_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GetwithitMan/gwi-pos-sub001/tips"
	"github.com/GetwithitMan/gwi-pos-sub001/tips/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestTipOutEngine(t *testing.T) (*tips.TipOutEngine, *tips.Ledger, *tips.FactBook, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	facts := tips.NewFactBook()
	ledger := tips.NewLedger(mem)
	engine := tips.NewTipOutEngine(mem, ledger, facts, facts, facts)
	clock := &testClock{now: baseTime.Add(9 * time.Hour)}
	engine.SetClock(clock.Now)
	return engine, ledger, facts, mem
}

func seedShiftCredits(t *testing.T, ledger *tips.Ledger, employee tips.EmployeeID, amounts ...string) {
	t.Helper()
	ctx := context.Background()
	for i, amount := range amounts {
		_, err := ledger.Append(ctx, tips.LedgerEntry{
			ID:             tips.EntryID(string(employee) + "-seed-" + string(rune('a'+i))),
			EmployeeID:     employee,
			Amount:         money(amount),
			Type:           tips.EntryDirectTip,
			IdempotencyKey: "seed:" + string(employee) + ":" + string(rune('a'+i)),
			EffectiveAt:    baseTime.Add(time.Duration(i+1) * time.Hour),
			CreatedAt:      baseTime.Add(time.Duration(i+1) * time.Hour),
		})
		require.NoError(t, err)
	}
}

func grossTipsRule(id string, percent int64) tips.TipOutRule {
	return tips.TipOutRule{
		ID:             id,
		GiverRoleID:    "server",
		ReceiverRoleID: "busser",
		Percent:        decimal.NewFromInt(percent),
		Basis:          tips.BasisGrossTips,
	}
}

func serverShift(id string, employee tips.EmployeeID) tips.Shift {
	return tips.Shift{
		ID:         tips.ShiftID(id),
		EmployeeID: employee,
		StartAt:    baseTime,
		EndAt:      baseTime.Add(8 * time.Hour),
	}
}

// =============================================================================
// TIP-OUT TESTS
// =============================================================================

func TestApplyTipOuts_GrossTipsBasis(t *testing.T) {
	// GIVEN: Server earned $100 gross tips; 3% rule to two on-shift bussers
	// WHEN: The shift closes
	// THEN: -3.00 debit and 1.50 credits

	engine, ledger, facts, mem := newTestTipOutEngine(t)
	ctx := context.Background()

	facts.RecordRole("server-1", "server")
	facts.RecordOnShift("shift-1", "busser", "busser-1")
	facts.RecordOnShift("shift-1", "busser", "busser-2")
	seedShiftCredits(t, ledger, "server-1", "60.00", "40.00")
	require.NoError(t, mem.SaveRule(ctx, grossTipsRule("rule-1", 3)))

	entries, err := engine.ApplyTipOuts(ctx, serverShift("shift-1", "server-1"))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, tips.EntryTipOutDebit, entries[0].Type)
	assert.Equal(t, "-3.00", entries[0].Amount.String())
	assert.Equal(t, tips.EntryTipOutCredit, entries[1].Type)
	assert.Equal(t, "1.50", entries[1].Amount.String())
	assert.Equal(t, "1.50", entries[2].Amount.String())
}

func TestApplyTipOuts_RetryIsIdempotent(t *testing.T) {
	engine, ledger, facts, mem := newTestTipOutEngine(t)
	ctx := context.Background()

	facts.RecordRole("server-1", "server")
	facts.RecordOnShift("shift-1", "busser", "busser-1")
	seedShiftCredits(t, ledger, "server-1", "100.00")
	require.NoError(t, mem.SaveRule(ctx, grossTipsRule("rule-1", 3)))

	first, err := engine.ApplyTipOuts(ctx, serverShift("shift-1", "server-1"))
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := engine.ApplyTipOuts(ctx, serverShift("shift-1", "server-1"))
	require.NoError(t, err)
	assert.Empty(t, second, "second shift close must skip already-applied rules")

	balance, err := ledger.BalanceAsOf(ctx, "server-1", baseTime.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "97.00", balance.String())
}

func TestApplyTipOuts_NoReceiversOnShift_SkipsRule(t *testing.T) {
	engine, ledger, facts, mem := newTestTipOutEngine(t)
	ctx := context.Background()

	facts.RecordRole("server-1", "server")
	seedShiftCredits(t, ledger, "server-1", "100.00")
	require.NoError(t, mem.SaveRule(ctx, grossTipsRule("rule-1", 3)))

	entries, err := engine.ApplyTipOuts(ctx, serverShift("shift-1", "server-1"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestApplyTipOuts_GiverExcludedFromReceivers(t *testing.T) {
	// A server who also appears on the busser roster must not tip out
	// to themselves.
	engine, ledger, facts, mem := newTestTipOutEngine(t)
	ctx := context.Background()

	facts.RecordRole("server-1", "server")
	facts.RecordOnShift("shift-1", "busser", "server-1")
	facts.RecordOnShift("shift-1", "busser", "busser-1")
	seedShiftCredits(t, ledger, "server-1", "100.00")
	require.NoError(t, mem.SaveRule(ctx, grossTipsRule("rule-1", 3)))

	entries, err := engine.ApplyTipOuts(ctx, serverShift("shift-1", "server-1"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, tips.EmployeeID("busser-1"), entries[1].EmployeeID)
	assert.Equal(t, "3.00", entries[1].Amount.String())
}

func TestApplyTipOuts_NetSalesBasis(t *testing.T) {
	// GIVEN: 2% of net sales rule; server sold $500
	// WHEN: The shift closes
	// THEN: $10.00 moves regardless of tips earned

	engine, _, facts, mem := newTestTipOutEngine(t)
	ctx := context.Background()

	facts.RecordRole("server-1", "server")
	facts.RecordOnShift("shift-1", "busser", "busser-1")
	facts.RecordNetSales("shift-1", "server-1", money("500.00"))
	require.NoError(t, mem.SaveRule(ctx, tips.TipOutRule{
		ID:             "rule-net",
		GiverRoleID:    "server",
		ReceiverRoleID: "busser",
		Percent:        decimal.NewFromInt(2),
		Basis:          tips.BasisNetSales,
	}))

	entries, err := engine.ApplyTipOuts(ctx, serverShift("shift-1", "server-1"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "-10.00", entries[0].Amount.String())
	assert.Equal(t, "10.00", entries[1].Amount.String())
}

func TestApplyTipOuts_NoRoleFact_NoOp(t *testing.T) {
	engine, _, _, _ := newTestTipOutEngine(t)

	entries, err := engine.ApplyTipOuts(context.Background(), serverShift("shift-1", "unknown"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestApplyTipOuts_ZeroBasis_NoEntries(t *testing.T) {
	// No tips earned means nothing to give.
	engine, _, facts, mem := newTestTipOutEngine(t)
	ctx := context.Background()

	facts.RecordRole("server-1", "server")
	facts.RecordOnShift("shift-1", "busser", "busser-1")
	require.NoError(t, mem.SaveRule(ctx, grossTipsRule("rule-1", 3)))

	entries, err := engine.ApplyTipOuts(ctx, serverShift("shift-1", "server-1"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}
