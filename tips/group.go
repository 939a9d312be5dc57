/*
group.go - Tip group engine: segments, membership transitions, pool credits

PURPOSE:
  Manages pools of employees that share tips. Membership over time is
  modeled as an append-only sequence of immutable segments: every
  membership change closes the open segment and opens a new one, so
  historical splits are trivially reconstructible range scans and a
  credit arriving late still lands on the segment that was open at
  settlement time.

SEGMENT INVARIANTS:
  - At most one open segment per group at any instant
  - Segments never overlap
  - Recorded member shares sum to 1.0

SINGLE-GROUP INVARIANT:
  An employee can be an active member of at most one group across the
  whole system. AddMember fails with ErrAlreadyInGroup otherwise and
  leaves no segment mutation behind.

WEIGHT RESOLUTION:
  equal          weight 1 per member
  hours_weighted hours worked during the segment (time-clock facts);
                 zero total falls back to equal
  role_weighted  per-role weights over present members

  For hours_weighted the true weights are only knowable once hours
  accumulate, so CreditGroup resolves weights at credit time rather
  than trusting the shares recorded when the segment opened.

SEE ALSO:
  - split.go: Cent-exact allocation
  - binder.go: Clock-in entry point that finds-or-creates groups
  - adjust.go: Replays segments with corrected facts
*/
package tips

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// GROUP ENGINE
// =============================================================================

type GroupEngine struct {
	store  Store
	ledger *Ledger
	hours  HoursProvider
	roles  RoleProvider
	now    func() time.Time

	// Serializes membership transitions and template find-or-create so
	// concurrent clock-ins never corrupt segment boundaries.
	mu sync.Mutex
}

func NewGroupEngine(store Store, ledger *Ledger, hours HoursProvider, roles RoleProvider) *GroupEngine {
	return &GroupEngine{
		store:  store,
		ledger: ledger,
		hours:  hours,
		roles:  roles,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source. Tests only.
func (g *GroupEngine) SetClock(now func() time.Time) { g.now = now }

// CreateGroup opens a new group with one member at 100% share.
func (g *GroupEngine) CreateGroup(ctx context.Context, templateID TemplateID, mode SplitMode, initial EmployeeID) (GroupID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.createGroupLocked(ctx, g.store, templateID, mode, initial)
}

func (g *GroupEngine) createGroupLocked(ctx context.Context, s Store, templateID TemplateID, mode SplitMode, initial EmployeeID) (GroupID, error) {
	if err := g.checkNotActiveLocked(ctx, s, initial); err != nil {
		return "", err
	}

	now := g.now()
	group := TipGroup{
		ID:         GroupID(uuid.NewString()),
		TemplateID: templateID,
		Status:     GroupActive,
		CreatedAt:  now,
	}
	if err := s.SaveGroup(ctx, group); err != nil {
		return "", err
	}

	seg := TipGroupSegment{
		ID:        SegmentID(uuid.NewString()),
		GroupID:   group.ID,
		StartAt:   now,
		SplitMode: mode,
		Members:   []SegmentMember{{EmployeeID: initial, ComputedShare: decimal.NewFromInt(1)}},
	}
	if err := s.SaveSegment(ctx, seg); err != nil {
		return "", err
	}
	return group.ID, nil
}

// AddMember atomically closes the open segment and opens a new one with
// the previous members plus the new one. Fails with ErrAlreadyInGroup if
// the employee is active in any group.
func (g *GroupEngine) AddMember(ctx context.Context, groupID GroupID, employeeID EmployeeID) (SegmentID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addMemberLocked(ctx, g.store, groupID, employeeID)
}

func (g *GroupEngine) addMemberLocked(ctx context.Context, s Store, groupID GroupID, employeeID EmployeeID) (SegmentID, error) {
	if err := g.checkNotActiveLocked(ctx, s, employeeID); err != nil {
		return "", err
	}

	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return "", err
	}
	if group == nil {
		return "", ErrGroupNotFound
	}
	if group.Status != GroupActive {
		return "", ErrGroupClosed
	}

	open, err := s.OpenSegment(ctx, groupID)
	if err != nil {
		return "", err
	}
	if open == nil {
		return "", ErrGroupClosed
	}

	now := g.now()
	members := append(append([]SegmentMember{}, open.Members...), SegmentMember{EmployeeID: employeeID})
	return g.transitionLocked(ctx, s, *open, members, now)
}

// RemoveMember closes the open segment and opens a new one without the
// employee. Removing the last member closes the group.
func (g *GroupEngine) RemoveMember(ctx context.Context, groupID GroupID, employeeID EmployeeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.removeMemberLocked(ctx, g.store, groupID, employeeID)
}

func (g *GroupEngine) removeMemberLocked(ctx context.Context, s Store, groupID GroupID, employeeID EmployeeID) error {
	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group == nil {
		return ErrGroupNotFound
	}
	if group.Status != GroupActive {
		return ErrGroupClosed
	}

	open, err := s.OpenSegment(ctx, groupID)
	if err != nil {
		return err
	}
	if open == nil || !open.HasMember(employeeID) {
		return ErrNotInGroup
	}

	now := g.now()
	var remaining []SegmentMember
	for _, m := range open.Members {
		if m.EmployeeID != employeeID {
			remaining = append(remaining, m)
		}
	}

	if len(remaining) == 0 {
		end := now
		open.EndAt = &end
		if err := s.SaveSegment(ctx, *open); err != nil {
			return err
		}
		group.Status = GroupClosed
		return s.SaveGroup(ctx, *group)
	}

	_, err = g.transitionLocked(ctx, s, *open, remaining, now)
	return err
}

// transitionLocked closes the open segment at `at` and opens a successor
// with the given members, recomputing recorded shares per the split mode.
func (g *GroupEngine) transitionLocked(ctx context.Context, s Store, open TipGroupSegment, members []SegmentMember, at time.Time) (SegmentID, error) {
	end := at
	open.EndAt = &end
	if err := s.SaveSegment(ctx, open); err != nil {
		return "", err
	}

	next := TipGroupSegment{
		ID:        SegmentID(uuid.NewString()),
		GroupID:   open.GroupID,
		StartAt:   at,
		SplitMode: open.SplitMode,
		Members:   members,
	}
	weights := g.segmentWeights(next, nil)
	shares := ComputeShares(weights)
	for i := range next.Members {
		next.Members[i].ComputedShare = shares[i]
	}
	if err := s.SaveSegment(ctx, next); err != nil {
		return "", err
	}
	return next.ID, nil
}

func (g *GroupEngine) checkNotActiveLocked(ctx context.Context, s Store, employeeID EmployeeID) error {
	active, err := s.ActiveMembership(ctx, employeeID)
	if err != nil {
		return err
	}
	if active != nil {
		return &AlreadyInGroupError{EmployeeID: employeeID, GroupID: active.ID}
	}
	return nil
}

// =============================================================================
// CREDITS
// =============================================================================

// CreditGroup resolves the segment open at `at` (or the most recently
// closed one, for late-arriving settlements), splits amount across its
// members per the segment's mode, and appends one GROUP_SHARE entry per
// member. Retried settlements are absorbed by idempotency keys.
func (g *GroupEngine) CreditGroup(ctx context.Context, groupID GroupID, amount Money, orderID OrderID, at time.Time) ([]LedgerEntry, error) {
	return g.creditGroupOn(ctx, g.store, groupID, amount, orderID, at)
}

func (g *GroupEngine) creditGroupOn(ctx context.Context, s Store, groupID GroupID, amount Money, orderID OrderID, at time.Time) ([]LedgerEntry, error) {
	seg, err := g.SegmentAsOf(ctx, s, groupID, at)
	if err != nil {
		return nil, err
	}

	allocs, err := AllocateMoney(amount, g.segmentWeights(*seg, nil))
	if err != nil {
		return nil, err
	}

	now := g.now()
	ledger := NewLedger(s)
	entries := make([]LedgerEntry, len(allocs))
	for i, a := range allocs {
		entries[i] = LedgerEntry{
			ID:               EntryID(uuid.NewString()),
			EmployeeID:       a.EmployeeID,
			Amount:           a.Amount,
			Type:             EntryGroupShare,
			ReferenceOrderID: orderID,
			ReferenceGroupID: groupID,
			IdempotencyKey:   groupShareKey(orderID, groupID, a.EmployeeID),
			EffectiveAt:      at,
			CreatedAt:        now,
		}
	}
	return ledger.AppendAll(ctx, entries)
}

// SegmentAsOf returns the segment covering `at`, falling back to the most
// recently closed segment when none covers it.
func (g *GroupEngine) SegmentAsOf(ctx context.Context, s Store, groupID GroupID, at time.Time) (*TipGroupSegment, error) {
	if s == nil {
		s = g.store
	}
	segments, err := s.Segments(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, ErrGroupNotFound
	}
	for i := range segments {
		if segments[i].Covers(at) {
			return &segments[i], nil
		}
	}
	// Late-arriving settlement after the group closed, or a settlement
	// timestamped before the group existed: use the nearest segment.
	if at.Before(segments[0].StartAt) {
		return &segments[0], nil
	}
	return &segments[len(segments)-1], nil
}

// segmentWeights resolves per-member weights for a segment. hoursOverride
// substitutes corrected time-clock facts during recalculation.
func (g *GroupEngine) segmentWeights(seg TipGroupSegment, hoursOverride map[EmployeeID]decimal.Decimal) []WeightedEmployee {
	weights := make([]WeightedEmployee, len(seg.Members))
	for i, m := range seg.Members {
		w := decimal.NewFromInt(1)
		switch seg.SplitMode {
		case SplitHoursWeighted:
			if hoursOverride != nil {
				if h, ok := hoursOverride[m.EmployeeID]; ok {
					w = h
				} else {
					w = decimal.Zero
				}
			} else if g.hours != nil {
				if h, ok := g.hours.HoursWorked(m.EmployeeID, seg.ID); ok {
					w = h
				} else {
					w = decimal.Zero
				}
			}
		case SplitRoleWeighted:
			if g.roles != nil {
				if role, ok := g.roles.RoleOf(m.EmployeeID); ok {
					w = g.roles.RoleWeight(role)
				}
			}
		}
		weights[i] = WeightedEmployee{EmployeeID: m.EmployeeID, Weight: w}
	}
	return weights
}

// GroupHistory returns a group's segments for display of historical pooling.
func (g *GroupEngine) GroupHistory(ctx context.Context, groupID GroupID) ([]TipGroupSegment, error) {
	group, err := g.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, ErrGroupNotFound
	}
	return g.store.Segments(ctx, groupID)
}

// =============================================================================
// LAZY EXPIRY
// =============================================================================

// ExpireIdle closes active groups whose open segment started before the
// cutoff and that have received no credits since. Idempotent; not part of
// the correctness-critical path.
func (g *GroupEngine) ExpireIdle(ctx context.Context, cutoff time.Time) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	groups, err := g.store.ActiveGroups(ctx)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, group := range groups {
		open, err := g.store.OpenSegment(ctx, group.ID)
		if err != nil {
			return closed, err
		}
		if open == nil || !open.StartAt.Before(cutoff) {
			continue
		}
		entries, err := g.store.EntriesByGroup(ctx, group.ID)
		if err != nil {
			return closed, err
		}
		idle := true
		for _, e := range entries {
			if e.EffectiveAt.After(open.StartAt) {
				idle = false
				break
			}
		}
		if !idle {
			continue
		}
		end := g.now()
		open.EndAt = &end
		if err := g.store.SaveSegment(ctx, *open); err != nil {
			return closed, err
		}
		group.Status = GroupClosed
		if err := g.store.SaveGroup(ctx, group); err != nil {
			return closed, err
		}
		closed++
	}
	return closed, nil
}

// =============================================================================
// IDEMPOTENCY KEYS
// =============================================================================

func groupShareKey(orderID OrderID, groupID GroupID, employeeID EmployeeID) string {
	return "group-share:" + string(orderID) + ":" + string(groupID) + ":" + string(employeeID)
}
