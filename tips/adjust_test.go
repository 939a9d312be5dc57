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

func newTestAdjuster(t *testing.T) (*tips.AdjustmentEngine, *tips.GroupEngine, *tips.FactBook, *store.Memory, *testClock) {
	t.Helper()
	mem := store.NewMemory()
	facts := tips.NewFactBook()
	ledger := tips.NewLedger(mem)
	groups := tips.NewGroupEngine(mem, ledger, facts, facts)
	clock := &testClock{now: baseTime}
	groups.SetClock(clock.Now)

	engine := tips.NewAdjustmentEngine(mem, groups)
	engine.SetClock(clock.Now)
	return engine, groups, facts, mem, clock
}

func balanceAt(t *testing.T, mem *store.Memory, employee tips.EmployeeID, at time.Time) string {
	t.Helper()
	b, err := tips.NewLedger(mem).BalanceAsOf(context.Background(), employee, at)
	require.NoError(t, err)
	return b.String()
}

func correctionCount(t *testing.T, entries []tips.LedgerEntry) int {
	t.Helper()
	n := 0
	for _, e := range entries {
		if e.Type == tips.EntryCorrection {
			n++
		}
	}
	return n
}

// =============================================================================
// DELTA COMPUTATION TESTS - pure, no stores
// =============================================================================

func TestComputeDelta_CorrectedMinusPosted(t *testing.T) {
	posted := map[tips.EmployeeID]tips.Money{
		"alice": money("12.00"),
	}
	corrected := map[tips.EmployeeID]tips.Money{
		"alice": money("6.00"),
		"bob":   money("6.00"),
	}

	deltas := tips.ComputeDelta(posted, corrected)

	require.Len(t, deltas, 2)
	assert.Equal(t, tips.EmployeeID("alice"), deltas[0].EmployeeID)
	assert.Equal(t, "-6.00", deltas[0].Amount.String())
	assert.Equal(t, tips.EmployeeID("bob"), deltas[1].EmployeeID)
	assert.Equal(t, "6.00", deltas[1].Amount.String())
}

func TestComputeDelta_ZeroDeltasDropped(t *testing.T) {
	posted := map[tips.EmployeeID]tips.Money{
		"alice": money("5.00"),
		"bob":   money("5.00"),
	}
	corrected := map[tips.EmployeeID]tips.Money{
		"alice": money("5.00"),
		"bob":   money("7.00"),
	}

	deltas := tips.ComputeDelta(posted, corrected)

	require.Len(t, deltas, 1)
	assert.Equal(t, tips.EmployeeID("bob"), deltas[0].EmployeeID)
	assert.Equal(t, "2.00", deltas[0].Amount.String())
}

func TestComputeDelta_EmployeeRemovedEntirely(t *testing.T) {
	// An employee present only on the posted side gets a full claw-back.
	posted := map[tips.EmployeeID]tips.Money{"carol": money("4.00")}

	deltas := tips.ComputeDelta(posted, nil)

	require.Len(t, deltas, 1)
	assert.Equal(t, tips.EmployeeID("carol"), deltas[0].EmployeeID)
	assert.Equal(t, "-4.00", deltas[0].Amount.String())
}

func TestComputeDelta_BothEmpty(t *testing.T) {
	assert.Empty(t, tips.ComputeDelta(nil, nil))
}

// =============================================================================
// SEGMENT BOUNDARY ADJUSTMENTS
// =============================================================================

func TestApplyAdjustment_SegmentBoundary_ReassignsHistoricalCredit(t *testing.T) {
	// GIVEN: Bob joined Alice's group at +2h, but a $12.00 credit landed at
	//        +1h, paying Alice alone
	// WHEN: A manager moves Bob's join boundary back to +30m
	// THEN: The credit replays over both members and corrections move $6.00
	//       from Alice to Bob

	engine, groups, _, mem, clock := newTestAdjuster(t)
	ctx := context.Background()

	groupID, err := groups.CreateGroup(ctx, "", tips.SplitEqual, "alice")
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)
	_, err = groups.AddMember(ctx, groupID, "bob")
	require.NoError(t, err)

	_, err = groups.CreditGroup(ctx, groupID, money("12.00"), "order-1", baseTime.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, "12.00", balanceAt(t, mem, "alice", clock.Now()))

	segments, err := mem.Segments(ctx, groupID)
	require.NoError(t, err)
	require.Len(t, segments, 2)

	newStart := baseTime.Add(30 * time.Minute)
	adj, err := engine.ApplyAdjustment(ctx, tips.AdjustmentRequest{
		Type:       tips.AdjustGroupMembership,
		Reason:     "bob was seated at 6:30, not 8:00",
		ManagerID:  "mgr-1",
		GroupID:    groupID,
		SegmentID:  segments[1].ID,
		NewStartAt: &newStart,
	})
	require.NoError(t, err)
	assert.Equal(t, tips.AdjustmentRecalculated, adj.Status)
	assert.True(t, adj.AutoRecalcRan)
	assert.NotEmpty(t, adj.ContextJSON)

	assert.Equal(t, "6.00", balanceAt(t, mem, "alice", clock.Now()))
	assert.Equal(t, "6.00", balanceAt(t, mem, "bob", clock.Now()))

	// Boundary moved and neighbors stayed contiguous.
	segments, err = mem.Segments(ctx, groupID)
	require.NoError(t, err)
	require.NotNil(t, segments[0].EndAt)
	assert.True(t, segments[0].EndAt.Equal(newStart))
	assert.True(t, segments[1].StartAt.Equal(newStart))
}

func TestApplyAdjustment_SegmentBoundary_RepeatConverges(t *testing.T) {
	// Re-running the same correction finds nothing left to fix: the replay
	// diffs against originals plus prior corrections.

	engine, groups, _, mem, clock := newTestAdjuster(t)
	ctx := context.Background()

	groupID, err := groups.CreateGroup(ctx, "", tips.SplitEqual, "alice")
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)
	_, err = groups.AddMember(ctx, groupID, "bob")
	require.NoError(t, err)
	_, err = groups.CreditGroup(ctx, groupID, money("12.00"), "order-1", baseTime.Add(time.Hour))
	require.NoError(t, err)

	segments, err := mem.Segments(ctx, groupID)
	require.NoError(t, err)
	newStart := baseTime.Add(30 * time.Minute)
	req := tips.AdjustmentRequest{
		Type:       tips.AdjustGroupMembership,
		Reason:     "boundary fix",
		ManagerID:  "mgr-1",
		GroupID:    groupID,
		SegmentID:  segments[1].ID,
		NewStartAt: &newStart,
	}

	_, err = engine.ApplyAdjustment(ctx, req)
	require.NoError(t, err)
	entries, err := mem.EntriesByGroup(ctx, groupID)
	require.NoError(t, err)
	firstRun := correctionCount(t, entries)
	require.Equal(t, 2, firstRun)

	_, err = engine.ApplyAdjustment(ctx, req)
	require.NoError(t, err)
	entries, err = mem.EntriesByGroup(ctx, groupID)
	require.NoError(t, err)
	assert.Equal(t, firstRun, correctionCount(t, entries))

	assert.Equal(t, "6.00", balanceAt(t, mem, "alice", clock.Now()))
	assert.Equal(t, "6.00", balanceAt(t, mem, "bob", clock.Now()))
}

func TestApplyAdjustment_SegmentBoundary_InvertedIntervalRollsBack(t *testing.T) {
	// GIVEN: A boundary move that would make a segment end before it starts
	// WHEN: The adjustment runs
	// THEN: It fails atomically - no corrections, no adjustment record, and
	//       the segments keep their original boundaries

	engine, groups, _, mem, clock := newTestAdjuster(t)
	ctx := context.Background()

	groupID, err := groups.CreateGroup(ctx, "", tips.SplitEqual, "alice")
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)
	_, err = groups.AddMember(ctx, groupID, "bob")
	require.NoError(t, err)
	_, err = groups.CreditGroup(ctx, groupID, money("12.00"), "order-1", baseTime.Add(time.Hour))
	require.NoError(t, err)

	segments, err := mem.Segments(ctx, groupID)
	require.NoError(t, err)
	badStart := baseTime.Add(-time.Hour) // would invert the first segment
	_, err = engine.ApplyAdjustment(ctx, tips.AdjustmentRequest{
		Type:      tips.AdjustGroupMembership,
		Reason:    "bad move",
		ManagerID: "mgr-1",
		GroupID:   groupID,
		SegmentID: segments[0].ID,
		NewEndAt:  &badStart,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, tips.ErrAdjustmentFailed)

	entries, err := mem.EntriesByGroup(ctx, groupID)
	require.NoError(t, err)
	assert.Zero(t, correctionCount(t, entries))

	after, err := mem.Segments(ctx, groupID)
	require.NoError(t, err)
	assert.True(t, after[0].StartAt.Equal(segments[0].StartAt))
	require.NotNil(t, after[0].EndAt)
	assert.True(t, after[0].EndAt.Equal(*segments[0].EndAt))

	adjs, err := mem.ListAdjustments(ctx, baseTime.Add(-24*time.Hour), baseTime.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, adjs)
}

func TestApplyAdjustment_UnknownSegment(t *testing.T) {
	engine, groups, _, _, _ := newTestAdjuster(t)
	ctx := context.Background()

	groupID, err := groups.CreateGroup(ctx, "", tips.SplitEqual, "alice")
	require.NoError(t, err)

	_, err = engine.ApplyAdjustment(ctx, tips.AdjustmentRequest{
		Type:      tips.AdjustGroupMembership,
		ManagerID: "mgr-1",
		GroupID:   groupID,
		SegmentID: "no-such-segment",
	})
	assert.ErrorIs(t, err, tips.ErrAdjustmentFailed)
}

// =============================================================================
// CLOCK FIX ADJUSTMENTS
// =============================================================================

func TestApplyAdjustment_ClockFix_ReplaysWithCorrectedHours(t *testing.T) {
	// GIVEN: An hours_weighted credit split 6h/2h as 7.50/2.50
	// WHEN: A time-clock fix says the real hours were 4h/4h
	// THEN: Corrections move $2.50 from Alice to Bob

	engine, groups, facts, mem, clock := newTestAdjuster(t)
	ctx := context.Background()

	groupID, err := groups.CreateGroup(ctx, "", tips.SplitHoursWeighted, "alice")
	require.NoError(t, err)
	clock.Advance(time.Hour)
	_, err = groups.AddMember(ctx, groupID, "bob")
	require.NoError(t, err)

	open, err := mem.OpenSegment(ctx, groupID)
	require.NoError(t, err)
	facts.RecordHours("alice", open.ID, decimal.NewFromInt(6))
	facts.RecordHours("bob", open.ID, decimal.NewFromInt(2))

	clock.Advance(time.Hour)
	_, err = groups.CreditGroup(ctx, groupID, money("10.00"), "order-1", clock.Now())
	require.NoError(t, err)
	require.Equal(t, "7.50", balanceAt(t, mem, "alice", clock.Now()))
	require.Equal(t, "2.50", balanceAt(t, mem, "bob", clock.Now()))

	adj, err := engine.ApplyAdjustment(ctx, tips.AdjustmentRequest{
		Type:      tips.AdjustClockFix,
		Reason:    "bob forgot to clock in on time",
		ManagerID: "mgr-1",
		GroupID:   groupID,
		SegmentID: open.ID,
		CorrectedHours: map[tips.EmployeeID]decimal.Decimal{
			"alice": decimal.NewFromInt(4),
			"bob":   decimal.NewFromInt(4),
		},
	})
	require.NoError(t, err)
	assert.True(t, adj.AutoRecalcRan)

	assert.Equal(t, "5.00", balanceAt(t, mem, "alice", clock.Now()))
	assert.Equal(t, "5.00", balanceAt(t, mem, "bob", clock.Now()))
}

// =============================================================================
// ORDER ADJUSTMENTS - ownership_split and tip_amount
// =============================================================================

func TestApplyAdjustment_OwnershipSplit_RebalancesDirectTips(t *testing.T) {
	// GIVEN: A $10.00 tip settled 0.75/0.25 between Alice and Bob
	// WHEN: A manager corrects the split to 50/50
	// THEN: Corrections move $2.50 and the ownership record is rewritten

	resolver, groups, mem, clock := newTestResolver(t, tips.ModeItemBased)
	engine := tips.NewAdjustmentEngine(mem, groups)
	engine.SetClock(clock.Now)
	ctx := context.Background()

	_, err := resolver.SettleOrder(ctx, tips.Settlement{
		OrderID:           "order-1",
		TipAmount:         money("10.00"),
		Subtotal:          money("40.00"),
		Items:             []tips.SettledItem{item("i1", "30.00", "alice"), item("i2", "10.00", "bob")},
		CreatorEmployeeID: "alice",
	})
	require.NoError(t, err)
	require.Equal(t, "7.50", balanceAt(t, mem, "alice", clock.Now()))

	adj, err := engine.ApplyAdjustment(ctx, tips.AdjustmentRequest{
		Type:      tips.AdjustOwnershipSplit,
		Reason:    "bob ran the whole table",
		ManagerID: "mgr-1",
		OrderID:   "order-1",
		NewOwners: []tips.Owner{
			{EmployeeID: "alice", Share: decimal.NewFromInt(1)},
			{EmployeeID: "bob", Share: decimal.NewFromInt(1)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, tips.AdjustmentRecalculated, adj.Status)

	assert.Equal(t, "5.00", balanceAt(t, mem, "alice", clock.Now()))
	assert.Equal(t, "5.00", balanceAt(t, mem, "bob", clock.Now()))

	rec, err := mem.GetOwnership(ctx, "order-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Len(t, rec.Owners, 2)
	assert.Equal(t, "0.5", rec.Owners[0].Share.String())
	assert.Equal(t, "0.5", rec.Owners[1].Share.String())
}

func TestApplyAdjustment_TipAmount_PostsDifference(t *testing.T) {
	resolver, groups, mem, clock := newTestResolver(t, tips.ModeItemBased)
	engine := tips.NewAdjustmentEngine(mem, groups)
	engine.SetClock(clock.Now)
	ctx := context.Background()

	_, err := resolver.SettleOrder(ctx, tips.Settlement{
		OrderID:           "order-1",
		TipAmount:         money("10.00"),
		Subtotal:          money("40.00"),
		Items:             []tips.SettledItem{item("i1", "40.00", "alice")},
		CreatorEmployeeID: "alice",
	})
	require.NoError(t, err)

	newAmount := money("12.50")
	_, err = engine.ApplyAdjustment(ctx, tips.AdjustmentRequest{
		Type:         tips.AdjustTipAmount,
		Reason:       "receipt showed 12.50",
		ManagerID:    "mgr-1",
		OrderID:      "order-1",
		NewTipAmount: &newAmount,
	})
	require.NoError(t, err)

	assert.Equal(t, "12.50", balanceAt(t, mem, "alice", clock.Now()))

	rec, err := mem.GetOwnership(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, "12.50", rec.TipAmount.String())
}

func TestApplyAdjustment_TipAmount_RepeatConverges(t *testing.T) {
	resolver, groups, mem, clock := newTestResolver(t, tips.ModeItemBased)
	engine := tips.NewAdjustmentEngine(mem, groups)
	engine.SetClock(clock.Now)
	ctx := context.Background()

	_, err := resolver.SettleOrder(ctx, tips.Settlement{
		OrderID:           "order-1",
		TipAmount:         money("10.00"),
		Subtotal:          money("40.00"),
		Items:             []tips.SettledItem{item("i1", "40.00", "alice")},
		CreatorEmployeeID: "alice",
	})
	require.NoError(t, err)

	newAmount := money("12.50")
	req := tips.AdjustmentRequest{
		Type:         tips.AdjustTipAmount,
		Reason:       "receipt showed 12.50",
		ManagerID:    "mgr-1",
		OrderID:      "order-1",
		NewTipAmount: &newAmount,
	}
	_, err = engine.ApplyAdjustment(ctx, req)
	require.NoError(t, err)
	_, err = engine.ApplyAdjustment(ctx, req)
	require.NoError(t, err)

	entries, err := mem.EntriesByOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, 1, correctionCount(t, entries))
	assert.Equal(t, "12.50", balanceAt(t, mem, "alice", clock.Now()))
}

func TestApplyAdjustment_OwnershipSplit_UnresolvedOrder(t *testing.T) {
	engine, _, _, _, _ := newTestAdjuster(t)

	_, err := engine.ApplyAdjustment(context.Background(), tips.AdjustmentRequest{
		Type:      tips.AdjustOwnershipSplit,
		ManagerID: "mgr-1",
		OrderID:   "never-settled",
		NewOwners: []tips.Owner{{EmployeeID: "alice", Share: decimal.NewFromInt(1)}},
	})
	assert.ErrorIs(t, err, tips.ErrAdjustmentFailed)
}

// =============================================================================
// MANUAL OVERRIDE
// =============================================================================

func TestApplyAdjustment_ManualOverride_PostsDeltasVerbatim(t *testing.T) {
	engine, _, _, mem, clock := newTestAdjuster(t)
	ctx := context.Background()

	adj, err := engine.ApplyAdjustment(ctx, tips.AdjustmentRequest{
		Type:      tips.AdjustManualOverride,
		Reason:    "cash drawer reconciliation",
		ManagerID: "mgr-1",
		ManualDeltas: []tips.Allocation{
			{EmployeeID: "alice", Amount: money("3.00")},
			{EmployeeID: "bob", Amount: money("-3.00")},
		},
	})
	require.NoError(t, err)
	assert.False(t, adj.AutoRecalcRan)

	assert.Equal(t, "3.00", balanceAt(t, mem, "alice", clock.Now()))
	assert.Equal(t, "-3.00", balanceAt(t, mem, "bob", clock.Now()))

	saved, err := mem.GetAdjustment(ctx, adj.ID)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, tips.AdjustManualOverride, saved.Type)
}

// =============================================================================
// REQUEST VALIDATION
// =============================================================================

func TestApplyAdjustment_UnknownType(t *testing.T) {
	engine, _, _, _, _ := newTestAdjuster(t)

	_, err := engine.ApplyAdjustment(context.Background(), tips.AdjustmentRequest{
		Type:      "resequence",
		ManagerID: "mgr-1",
	})
	assert.ErrorIs(t, err, tips.ErrAdjustmentFailed)
}
