package tips_test

import (
	"bytes"
	"context"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GetwithitMan/gwi-pos-sub001/tips"
	"github.com/GetwithitMan/gwi-pos-sub001/tips/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestBinder(t *testing.T) (*tips.Binder, *tips.GroupEngine, *store.Memory, *bytes.Buffer) {
	t.Helper()
	mem := store.NewMemory()
	facts := tips.NewFactBook()
	ledger := tips.NewLedger(mem)
	groups := tips.NewGroupEngine(mem, ledger, facts, facts)
	groups.SetClock((&testClock{now: baseTime}).Now)

	var buf bytes.Buffer
	binder := tips.NewBinder(mem, groups, log.New(&buf, "", 0))
	return binder, groups, mem, &buf
}

func saveTemplate(t *testing.T, mem *store.Memory, id string, mode tips.SplitMode, roles ...tips.RoleID) {
	t.Helper()
	require.NoError(t, mem.SaveTemplate(context.Background(), tips.TipGroupTemplate{
		ID:               tips.TemplateID(id),
		Name:             id,
		AllowedRoleIDs:   roles,
		DefaultSplitMode: mode,
		Active:           true,
	}))
}

// =============================================================================
// TEMPLATE ELIGIBILITY TESTS
// =============================================================================

func TestBinder_EligibleTemplates_FiltersByRole(t *testing.T) {
	binder, _, mem, _ := newTestBinder(t)
	ctx := context.Background()

	saveTemplate(t, mem, "servers-pool", tips.SplitEqual, "server")
	saveTemplate(t, mem, "bar-pool", tips.SplitEqual, "bartender")
	saveTemplate(t, mem, "house-pool", tips.SplitEqual) // empty = all roles

	eligible, err := binder.EligibleTemplates(ctx, "server")
	require.NoError(t, err)
	require.Len(t, eligible, 2)

	ids := []string{string(eligible[0].ID), string(eligible[1].ID)}
	assert.Contains(t, ids, "servers-pool")
	assert.Contains(t, ids, "house-pool")
}

// =============================================================================
// ASSIGNMENT TESTS
// =============================================================================

func TestBinder_AssignToTemplate_CreatesGroupWhenNoneActive(t *testing.T) {
	binder, _, mem, _ := newTestBinder(t)
	ctx := context.Background()

	saveTemplate(t, mem, "servers-pool", tips.SplitEqual, "server")

	groupID, err := binder.AssignToTemplate(ctx, "alice", "servers-pool")
	require.NoError(t, err)

	group, err := mem.GetGroup(ctx, groupID)
	require.NoError(t, err)
	assert.Equal(t, tips.TemplateID("servers-pool"), group.TemplateID)
	assert.Equal(t, tips.GroupActive, group.Status)
}

func TestBinder_AssignToTemplate_JoinsExistingGroup(t *testing.T) {
	// Two clock-ins against the same template land in one group.
	binder, _, mem, _ := newTestBinder(t)
	ctx := context.Background()

	saveTemplate(t, mem, "servers-pool", tips.SplitEqual, "server")

	first, err := binder.AssignToTemplate(ctx, "alice", "servers-pool")
	require.NoError(t, err)
	second, err := binder.AssignToTemplate(ctx, "bob", "servers-pool")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	open, err := mem.OpenSegment(ctx, first)
	require.NoError(t, err)
	assert.Len(t, open.Members, 2)
}

func TestBinder_AssignToTemplate_UnknownTemplate(t *testing.T) {
	binder, _, _, _ := newTestBinder(t)

	_, err := binder.AssignToTemplate(context.Background(), "alice", "missing")
	assert.ErrorIs(t, err, tips.ErrTemplateNotFound)
}

// =============================================================================
// FIRE-AND-FORGET CLOCK-IN TESTS
// =============================================================================

func TestBinder_HandleClockIn_AssignmentFailureIsSwallowed(t *testing.T) {
	// GIVEN: Alice already pools elsewhere
	// WHEN: Her clock-in selects another template
	// THEN: No panic, no error surfaces - the failure is logged and the
	//       clock-in stands

	binder, groups, mem, buf := newTestBinder(t)
	ctx := context.Background()

	saveTemplate(t, mem, "servers-pool", tips.SplitEqual, "server")
	_, err := groups.CreateGroup(ctx, "", tips.SplitEqual, "alice")
	require.NoError(t, err)

	binder.HandleClockIn(ctx, tips.ClockInEvent{
		EmployeeID:         "alice",
		RoleID:             "server",
		SelectedTemplateID: "servers-pool",
	})

	assert.Contains(t, buf.String(), "pooling assignment skipped")
}

func TestBinder_HandleClockIn_NoTemplateSelected_NoOp(t *testing.T) {
	binder, _, mem, buf := newTestBinder(t)
	ctx := context.Background()

	binder.HandleClockIn(ctx, tips.ClockInEvent{EmployeeID: "alice", RoleID: "server"})

	groups, err := mem.ActiveGroups(ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)
	assert.Empty(t, buf.String())
}

func TestBinder_HandleClockIn_SuccessfulAssignment(t *testing.T) {
	binder, _, mem, _ := newTestBinder(t)
	ctx := context.Background()

	saveTemplate(t, mem, "servers-pool", tips.SplitHoursWeighted, "server")

	binder.HandleClockIn(ctx, tips.ClockInEvent{
		EmployeeID:         "alice",
		RoleID:             "server",
		SelectedTemplateID: "servers-pool",
	})

	group, err := mem.ActiveGroupByTemplate(ctx, "servers-pool")
	require.NoError(t, err)
	require.NotNil(t, group)

	open, err := mem.OpenSegment(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, tips.SplitHoursWeighted, open.SplitMode)
	assert.True(t, open.HasMember("alice"))
}
