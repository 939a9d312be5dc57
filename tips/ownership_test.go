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

func newTestResolver(t *testing.T, mode tips.OwnershipMode) (*tips.OwnershipResolver, *tips.GroupEngine, *store.Memory, *testClock) {
	t.Helper()
	mem := store.NewMemory()
	facts := tips.NewFactBook()
	ledger := tips.NewLedger(mem)
	groups := tips.NewGroupEngine(mem, ledger, facts, facts)
	resolver := tips.NewOwnershipResolver(mem, ledger, groups, mode)
	clock := &testClock{now: baseTime}
	groups.SetClock(clock.Now)
	resolver.SetClock(clock.Now)
	return resolver, groups, mem, clock
}

func item(id, amount string, owners ...tips.EmployeeID) tips.SettledItem {
	return tips.SettledItem{ItemID: id, Amount: money(amount), OwnerEmployeeIDs: owners}
}

// =============================================================================
// RESOLUTION TESTS - item_based
// =============================================================================

func TestResolveOwnership_ItemBased_FractionOfSubtotal(t *testing.T) {
	// GIVEN: Alice owns $30 of items, Bob owns $10
	// WHEN: A $10.00 tip resolves item_based
	// THEN: Alice 0.75, Bob 0.25

	resolver, _, _, _ := newTestResolver(t, tips.ModeItemBased)

	rec := resolver.ResolveOwnership(tips.Settlement{
		OrderID:           "order-1",
		TipAmount:         money("10.00"),
		Subtotal:          money("40.00"),
		Items:             []tips.SettledItem{item("i1", "30.00", "alice"), item("i2", "10.00", "bob")},
		CreatorEmployeeID: "alice",
	})

	assert.Equal(t, tips.ModeItemBased, rec.Mode)
	require.Len(t, rec.Owners, 2)
	assert.Equal(t, "0.75", rec.Owners[0].Share.String())
	assert.Equal(t, "0.25", rec.Owners[1].Share.String())
}

func TestResolveOwnership_CoOwnedItemSplitsEqually(t *testing.T) {
	// A co-owned $20 item contributes $10 to each owner.
	resolver, _, _, _ := newTestResolver(t, tips.ModeItemBased)

	rec := resolver.ResolveOwnership(tips.Settlement{
		OrderID:           "order-1",
		TipAmount:         money("8.00"),
		Subtotal:          money("40.00"),
		Items:             []tips.SettledItem{item("i1", "20.00", "alice", "bob"), item("i2", "20.00", "alice")},
		CreatorEmployeeID: "alice",
	})

	require.Len(t, rec.Owners, 2)
	assert.Equal(t, tips.EmployeeID("alice"), rec.Owners[0].EmployeeID)
	assert.Equal(t, "0.75", rec.Owners[0].Share.String())
	assert.Equal(t, "0.25", rec.Owners[1].Share.String())
}

func TestResolveOwnership_NoItems_FallsToCreator(t *testing.T) {
	resolver, _, _, _ := newTestResolver(t, tips.ModeItemBased)

	rec := resolver.ResolveOwnership(tips.Settlement{
		OrderID:           "order-1",
		TipAmount:         money("5.00"),
		CreatorEmployeeID: "alice",
	})

	require.Len(t, rec.Owners, 1)
	assert.Equal(t, tips.EmployeeID("alice"), rec.Owners[0].EmployeeID)
	assert.True(t, rec.Owners[0].Share.Equal(decimal.NewFromInt(1)))
}

// =============================================================================
// RESOLUTION TESTS - primary_server_owns_all
// =============================================================================

func TestResolveOwnership_PrimaryServer_TableWithHelpers(t *testing.T) {
	// GIVEN: primary_server_owns_all, a table order where a helper rang items
	// WHEN: Resolving
	// THEN: The creator owns 100%; the helper is compensated via tip-outs

	resolver, _, _, _ := newTestResolver(t, tips.ModePrimaryServerOwnsAll)

	rec := resolver.ResolveOwnership(tips.Settlement{
		OrderID:           "order-1",
		TipAmount:         money("20.00"),
		Subtotal:          money("100.00"),
		Items:             []tips.SettledItem{item("i1", "60.00", "alice"), item("i2", "40.00", "bob")},
		TableID:           "table-7",
		CreatorEmployeeID: "alice",
	})

	assert.Equal(t, tips.ModePrimaryServerOwnsAll, rec.Mode)
	require.Len(t, rec.Owners, 1)
	assert.Equal(t, tips.EmployeeID("alice"), rec.Owners[0].EmployeeID)
}

func TestResolveOwnership_PrimaryServer_NoTable_StaysItemBased(t *testing.T) {
	// Tableless multi-owner ticket keeps item-based splitting.
	resolver, _, _, _ := newTestResolver(t, tips.ModePrimaryServerOwnsAll)

	rec := resolver.ResolveOwnership(tips.Settlement{
		OrderID:           "order-1",
		TipAmount:         money("10.00"),
		Subtotal:          money("40.00"),
		Items:             []tips.SettledItem{item("i1", "30.00", "alice"), item("i2", "10.00", "bob")},
		CreatorEmployeeID: "alice",
	})

	assert.Equal(t, tips.ModeItemBased, rec.Mode)
	assert.Len(t, rec.Owners, 2)
}

func TestResolveOwnership_PrimaryServer_SingleOwner_StaysItemBased(t *testing.T) {
	resolver, _, _, _ := newTestResolver(t, tips.ModePrimaryServerOwnsAll)

	rec := resolver.ResolveOwnership(tips.Settlement{
		OrderID:           "order-1",
		TipAmount:         money("10.00"),
		Subtotal:          money("40.00"),
		Items:             []tips.SettledItem{item("i1", "40.00", "alice")},
		TableID:           "table-7",
		CreatorEmployeeID: "alice",
	})

	assert.Equal(t, tips.ModeItemBased, rec.Mode)
	require.Len(t, rec.Owners, 1)
}

// =============================================================================
// SETTLEMENT ROUTING TESTS
// =============================================================================

func TestSettleOrder_DirectTipsForUnpooledOwners(t *testing.T) {
	resolver, _, mem, _ := newTestResolver(t, tips.ModeItemBased)
	ctx := context.Background()

	entries, err := resolver.SettleOrder(ctx, tips.Settlement{
		OrderID:           "order-1",
		TipAmount:         money("10.00"),
		Subtotal:          money("40.00"),
		Items:             []tips.SettledItem{item("i1", "30.00", "alice"), item("i2", "10.00", "bob")},
		CreatorEmployeeID: "alice",
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, tips.EntryDirectTip, entries[0].Type)
	assert.Equal(t, "7.50", entries[0].Amount.String())
	assert.Equal(t, "2.50", entries[1].Amount.String())

	rec, err := mem.GetOwnership(ctx, "order-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "10.00", rec.TipAmount.String())
}

func TestSettleOrder_PooledOwnerRoutesThroughGroup(t *testing.T) {
	// GIVEN: Alice pools with Carol; Bob is unpooled
	// WHEN: An order owned 75/25 by Alice and Bob settles
	// THEN: Alice's $7.50 share splits through the pool, Bob gets a direct tip

	resolver, groups, _, clock := newTestResolver(t, tips.ModeItemBased)
	ctx := context.Background()

	groupID, err := groups.CreateGroup(ctx, "", tips.SplitEqual, "alice")
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = groups.AddMember(ctx, groupID, "carol")
	require.NoError(t, err)
	clock.Advance(time.Hour)

	entries, err := resolver.SettleOrder(ctx, tips.Settlement{
		OrderID:           "order-1",
		TipAmount:         money("10.00"),
		Subtotal:          money("40.00"),
		Items:             []tips.SettledItem{item("i1", "30.00", "alice"), item("i2", "10.00", "bob")},
		CreatorEmployeeID: "alice",
	})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	byEmployee := map[tips.EmployeeID]tips.LedgerEntry{}
	for _, e := range entries {
		byEmployee[e.EmployeeID] = e
	}
	assert.Equal(t, tips.EntryGroupShare, byEmployee["alice"].Type)
	assert.Equal(t, "3.75", byEmployee["alice"].Amount.String())
	assert.Equal(t, tips.EntryGroupShare, byEmployee["carol"].Type)
	assert.Equal(t, "3.75", byEmployee["carol"].Amount.String())
	assert.Equal(t, tips.EntryDirectTip, byEmployee["bob"].Type)
	assert.Equal(t, "2.50", byEmployee["bob"].Amount.String())
}

func TestSettleOrder_RetryIsIdempotent(t *testing.T) {
	resolver, _, mem, _ := newTestResolver(t, tips.ModeItemBased)
	ctx := context.Background()

	settlement := tips.Settlement{
		OrderID:           "order-1",
		TipAmount:         money("10.00"),
		Subtotal:          money("40.00"),
		Items:             []tips.SettledItem{item("i1", "40.00", "alice")},
		CreatorEmployeeID: "alice",
	}
	_, err := resolver.SettleOrder(ctx, settlement)
	require.NoError(t, err)
	_, err = resolver.SettleOrder(ctx, settlement)
	require.NoError(t, err)

	entries, err := mem.EntriesByOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "retried settlement must not double-post")
}

func TestSettleOrder_RetryAfterLeavingPool_KeepsOriginalRouting(t *testing.T) {
	// GIVEN: Alice pools with Bob when her $10 order settles (5.00 each)
	// WHEN: Alice leaves the pool and the settlement is delivered again
	// THEN: The retry replays the pooled entries; no direct tip appears

	resolver, groups, mem, clock := newTestResolver(t, tips.ModeItemBased)
	ctx := context.Background()

	groupID, err := groups.CreateGroup(ctx, "", tips.SplitEqual, "alice")
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = groups.AddMember(ctx, groupID, "bob")
	require.NoError(t, err)
	clock.Advance(time.Hour)

	settlement := tips.Settlement{
		OrderID:           "order-1",
		TipAmount:         money("10.00"),
		Subtotal:          money("40.00"),
		Items:             []tips.SettledItem{item("i1", "40.00", "alice")},
		CreatorEmployeeID: "alice",
	}
	first, err := resolver.SettleOrder(ctx, settlement)
	require.NoError(t, err)
	require.Len(t, first, 2)

	clock.Advance(time.Minute)
	require.NoError(t, groups.RemoveMember(ctx, groupID, "alice"))

	retried, err := resolver.SettleOrder(ctx, settlement)
	require.NoError(t, err)
	require.Len(t, retried, 2)
	for _, e := range retried {
		assert.Equal(t, tips.EntryGroupShare, e.Type)
	}

	entries, err := mem.EntriesByOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.Len(t, entries, 2, "changed membership must not re-route a retry")

	balance, err := tips.NewLedger(mem).BalanceAsOf(ctx, "alice", clock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "5.00", balance.String())
}

func TestSettleOrder_ModeChangeDoesNotRewriteResolvedOrders(t *testing.T) {
	// GIVEN: An order resolved under item_based
	// WHEN: The mode flips and the settlement is replayed
	// THEN: The persisted snapshot wins

	resolver, _, mem, _ := newTestResolver(t, tips.ModeItemBased)
	ctx := context.Background()

	settlement := tips.Settlement{
		OrderID:           "order-1",
		TipAmount:         money("10.00"),
		Subtotal:          money("40.00"),
		Items:             []tips.SettledItem{item("i1", "30.00", "alice"), item("i2", "10.00", "bob")},
		TableID:           "table-7",
		CreatorEmployeeID: "alice",
	}
	_, err := resolver.SettleOrder(ctx, settlement)
	require.NoError(t, err)

	resolver.SetMode(tips.ModePrimaryServerOwnsAll)
	_, err = resolver.SettleOrder(ctx, settlement)
	require.NoError(t, err)

	rec, err := mem.GetOwnership(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, tips.ModeItemBased, rec.Mode)
	assert.Len(t, rec.Owners, 2)
}

func TestSettleOrder_ZeroTip_NoEntries(t *testing.T) {
	resolver, _, mem, _ := newTestResolver(t, tips.ModeItemBased)
	ctx := context.Background()

	entries, err := resolver.SettleOrder(ctx, tips.Settlement{
		OrderID:           "order-1",
		TipAmount:         money("0.00"),
		Subtotal:          money("40.00"),
		Items:             []tips.SettledItem{item("i1", "40.00", "alice")},
		CreatorEmployeeID: "alice",
	})
	require.NoError(t, err)
	assert.Empty(t, entries)

	// The ownership record still persists for later adjustments.
	rec, err := mem.GetOwnership(ctx, "order-1")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}
