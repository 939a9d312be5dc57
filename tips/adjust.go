/*
adjust.go - Retroactive correction engine

PURPOSE:
  Accepts manager-initiated corrections to historical facts (segment
  boundaries, ownership splits, tip amounts, time-clock hours) and
  reconciles balances by posting CORRECTION entries for exactly the
  per-employee delta. Historical ledger entries are never touched.

HOW A CORRECTION RUNS (one atomic unit):
  1. Snapshot the current fact state into the adjustment's ContextJSON
  2. Apply the fact change (rewrite segment boundaries / ownership)
  3. Replay the bounded region with corrected facts - the group's
     credited orders, or the one order
  4. Diff the replay against everything previously posted for the same
     group/order (originals plus earlier corrections, so repeated
     adjustments converge instead of compounding)
  5. Post one CORRECTION entry per affected employee, tagged with the
     adjustment id

  Either the adjustment record, the fact mutation, and all correction
  entries commit together, or none do; a failure rolls back entirely
  and surfaces ErrAdjustmentFailed with the cause.

RECALCULATION SCOPE:
  Replay operates only over already-posted history. The enclosing store
  transaction holds the unit together, and membership transitions
  serialize through the group engine, so new live activity cannot land
  inside a region mid-recalculation.

SEE ALSO:
  - ComputeDelta: The pure diff function, unit-testable in isolation
  - group.go: Segment weight resolution reused by replay
*/
package tips

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// REQUESTS
// =============================================================================

// AdjustmentRequest carries the corrected facts for one adjustment.
// Fields beyond Type/Reason/ManagerID are per-type:
//
//	group_membership  GroupID, SegmentID, NewStartAt and/or NewEndAt
//	clock_fix         GroupID, SegmentID, CorrectedHours
//	ownership_split   OrderID, NewOwners
//	tip_amount        OrderID, NewTipAmount
//	manual_override   ManualDeltas
type AdjustmentRequest struct {
	Type      AdjustmentType
	Reason    string
	ManagerID EmployeeID

	GroupID    GroupID
	SegmentID  SegmentID
	NewStartAt *time.Time
	NewEndAt   *time.Time

	OrderID      OrderID
	NewOwners    []Owner
	NewTipAmount *Money

	CorrectedHours map[EmployeeID]decimal.Decimal

	ManualDeltas []Allocation
}

var errUnknownAdjustmentType = errors.New("unknown adjustment type")

// =============================================================================
// ENGINE
// =============================================================================

type AdjustmentEngine struct {
	store  TxStore
	groups *GroupEngine
	now    func() time.Time
}

func NewAdjustmentEngine(store TxStore, groups *GroupEngine) *AdjustmentEngine {
	return &AdjustmentEngine{
		store:  store,
		groups: groups,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source. Tests only.
func (a *AdjustmentEngine) SetClock(now func() time.Time) { a.now = now }

// ApplyAdjustment executes the full snapshot/mutate/replay/diff/post
// sequence atomically and returns the recorded adjustment.
func (a *AdjustmentEngine) ApplyAdjustment(ctx context.Context, req AdjustmentRequest) (TipAdjustment, error) {
	adj := TipAdjustment{
		ID:            AdjustmentID(uuid.NewString()),
		CreatedBy:     req.ManagerID,
		Reason:        req.Reason,
		Type:          req.Type,
		Status:        AdjustmentRecalculated,
		AutoRecalcRan: req.Type != AdjustManualOverride,
		CreatedAt:     a.now(),
	}

	err := a.store.WithTx(ctx, func(s Store) error {
		var (
			before, after any
			deltas        []Allocation
			err           error
		)

		switch req.Type {
		case AdjustGroupMembership:
			before, after, deltas, err = a.adjustSegmentBoundary(ctx, s, req)
		case AdjustClockFix:
			before, after, deltas, err = a.adjustClockFix(ctx, s, req)
		case AdjustOwnershipSplit, AdjustTipAmount:
			before, after, deltas, err = a.adjustOrder(ctx, s, req)
		case AdjustManualOverride:
			before, after, deltas = nil, req.ManualDeltas, req.ManualDeltas
		default:
			err = errUnknownAdjustmentType
		}
		if err != nil {
			return err
		}

		snapshot, err := json.Marshal(struct {
			Before any `json:"before"`
			After  any `json:"after"`
		}{before, after})
		if err != nil {
			return err
		}
		adj.ContextJSON = string(snapshot)

		if err := a.postCorrections(ctx, s, adj, req, deltas); err != nil {
			return err
		}
		return s.SaveAdjustment(ctx, adj)
	})
	if err != nil {
		return TipAdjustment{}, &AdjustmentError{Type: req.Type, Cause: err}
	}
	return adj, nil
}

// =============================================================================
// FACT MUTATIONS + REPLAY
// =============================================================================

// adjustSegmentBoundary moves a segment's start and/or end, keeping the
// neighboring segments contiguous, then replays the group's credits.
func (a *AdjustmentEngine) adjustSegmentBoundary(ctx context.Context, s Store, req AdjustmentRequest) (any, any, []Allocation, error) {
	segments, err := s.Segments(ctx, req.GroupID)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(segments) == 0 {
		return nil, nil, nil, ErrGroupNotFound
	}
	before := snapshotSegments(segments)

	idx := -1
	for i := range segments {
		if segments[i].ID == req.SegmentID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, nil, nil, ErrGroupNotFound
	}

	if req.NewStartAt != nil {
		segments[idx].StartAt = *req.NewStartAt
		if idx > 0 {
			end := *req.NewStartAt
			segments[idx-1].EndAt = &end
		}
	}
	if req.NewEndAt != nil {
		end := *req.NewEndAt
		segments[idx].EndAt = &end
		if idx+1 < len(segments) {
			segments[idx+1].StartAt = end
		}
	}
	for _, seg := range segments {
		if seg.EndAt != nil && !seg.StartAt.Before(*seg.EndAt) {
			return nil, nil, nil, errors.New("segment boundary move would invert interval")
		}
	}
	for i := idx - 1; i <= idx+1; i++ {
		if i < 0 || i >= len(segments) {
			continue
		}
		if err := s.SaveSegment(ctx, segments[i]); err != nil {
			return nil, nil, nil, err
		}
	}

	newAlloc, posted, err := a.replayGroup(ctx, s, req.GroupID, "", nil)
	if err != nil {
		return nil, nil, nil, err
	}
	return before, snapshotSegments(segments), ComputeDelta(posted, newAlloc), nil
}

// adjustClockFix replays an hours_weighted segment with corrected hours.
// The time-clock facts live with a collaborator, so nothing is rewritten
// here; the corrected hours travel in the adjustment snapshot.
func (a *AdjustmentEngine) adjustClockFix(ctx context.Context, s Store, req AdjustmentRequest) (any, any, []Allocation, error) {
	segments, err := s.Segments(ctx, req.GroupID)
	if err != nil {
		return nil, nil, nil, err
	}
	found := false
	for _, seg := range segments {
		if seg.ID == req.SegmentID {
			found = true
			break
		}
	}
	if !found {
		return nil, nil, nil, ErrGroupNotFound
	}

	newAlloc, posted, err := a.replayGroup(ctx, s, req.GroupID, req.SegmentID, req.CorrectedHours)
	if err != nil {
		return nil, nil, nil, err
	}
	return allocSnapshot(posted), req.CorrectedHours, ComputeDelta(posted, newAlloc), nil
}

// adjustOrder rewrites an order's ownership record (new owners and/or new
// tip amount) and diffs the corrected owner-level shares against every
// entry previously posted for that order.
func (a *AdjustmentEngine) adjustOrder(ctx context.Context, s Store, req AdjustmentRequest) (any, any, []Allocation, error) {
	rec, err := s.GetOwnership(ctx, req.OrderID)
	if err != nil {
		return nil, nil, nil, err
	}
	if rec == nil {
		return nil, nil, nil, ErrOrderNotResolved
	}
	before := *rec

	if req.Type == AdjustOwnershipSplit {
		if len(req.NewOwners) == 0 {
			return nil, nil, nil, errors.New("ownership_split requires new owners")
		}
		weights := make([]WeightedEmployee, len(req.NewOwners))
		for i, o := range req.NewOwners {
			weights[i] = WeightedEmployee{EmployeeID: o.EmployeeID, Weight: o.Share}
		}
		shares := ComputeShares(weights)
		owners := make([]Owner, len(req.NewOwners))
		for i, o := range req.NewOwners {
			owners[i] = Owner{EmployeeID: o.EmployeeID, Share: shares[i]}
		}
		rec.Owners = owners
	}
	if req.Type == AdjustTipAmount {
		if req.NewTipAmount == nil {
			return nil, nil, nil, errors.New("tip_amount requires a new amount")
		}
		rec.TipAmount = *req.NewTipAmount
	}
	if err := s.ReplaceOwnership(ctx, *rec); err != nil {
		return nil, nil, nil, err
	}

	weights := make([]WeightedEmployee, len(rec.Owners))
	for i, o := range rec.Owners {
		weights[i] = WeightedEmployee{EmployeeID: o.EmployeeID, Weight: o.Share}
	}
	allocs, err := AllocateMoney(rec.TipAmount, weights)
	if err != nil {
		return nil, nil, nil, err
	}
	newAlloc := map[EmployeeID]Money{}
	for _, al := range allocs {
		newAlloc[al.EmployeeID] = al.Amount
	}

	posted, err := postedForOrder(ctx, s, req.OrderID)
	if err != nil {
		return nil, nil, nil, err
	}
	return before, *rec, ComputeDelta(posted, newAlloc), nil
}

// replayGroup recomputes what every credit routed to the group should have
// produced under current (corrected) facts, and gathers what was actually
// posted. hoursSegment/hoursOverride substitute corrected time-clock facts
// for one segment.
func (a *AdjustmentEngine) replayGroup(ctx context.Context, s Store, groupID GroupID, hoursSegment SegmentID, hoursOverride map[EmployeeID]decimal.Decimal) (map[EmployeeID]Money, map[EmployeeID]Money, error) {
	entries, err := s.EntriesByGroup(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}

	posted := map[EmployeeID]Money{}
	type credit struct {
		total Money
		at    time.Time
	}
	credits := map[OrderID]*credit{}
	for _, e := range entries {
		posted[e.EmployeeID] = posted[e.EmployeeID].Add(e.Amount)
		if e.Type != EntryGroupShare {
			continue
		}
		c, ok := credits[e.ReferenceOrderID]
		if !ok {
			credits[e.ReferenceOrderID] = &credit{total: e.Amount, at: e.EffectiveAt}
			continue
		}
		c.total = c.total.Add(e.Amount)
		if e.EffectiveAt.Before(c.at) {
			c.at = e.EffectiveAt
		}
	}

	newAlloc := map[EmployeeID]Money{}
	for _, c := range credits {
		seg, err := a.groups.SegmentAsOf(ctx, s, groupID, c.at)
		if err != nil {
			return nil, nil, err
		}
		var override map[EmployeeID]decimal.Decimal
		if seg.ID == hoursSegment {
			override = hoursOverride
		}
		allocs, err := AllocateMoney(c.total, a.groups.segmentWeights(*seg, override))
		if err != nil {
			return nil, nil, err
		}
		for _, al := range allocs {
			newAlloc[al.EmployeeID] = newAlloc[al.EmployeeID].Add(al.Amount)
		}
	}
	return newAlloc, posted, nil
}

// postedForOrder sums every entry previously posted for an order per
// employee: the originals plus any earlier corrections.
func postedForOrder(ctx context.Context, s Store, orderID OrderID) (map[EmployeeID]Money, error) {
	entries, err := s.EntriesByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	posted := map[EmployeeID]Money{}
	for _, e := range entries {
		switch e.Type {
		case EntryDirectTip, EntryGroupShare, EntryCorrection:
			posted[e.EmployeeID] = posted[e.EmployeeID].Add(e.Amount)
		}
	}
	return posted, nil
}

// =============================================================================
// DELTA - pure diff between corrected and posted allocations
// =============================================================================

// ComputeDelta returns corrected-minus-posted per employee, zero deltas
// dropped, ordered by employee id. Pure; unit-testable without stores.
func ComputeDelta(posted, corrected map[EmployeeID]Money) []Allocation {
	ids := map[EmployeeID]struct{}{}
	for id := range posted {
		ids[id] = struct{}{}
	}
	for id := range corrected {
		ids[id] = struct{}{}
	}

	var out []Allocation
	for id := range ids {
		delta := corrected[id].Sub(posted[id])
		if delta.IsZero() {
			continue
		}
		out = append(out, Allocation{EmployeeID: id, Amount: delta})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmployeeID < out[j].EmployeeID })
	return out
}

// =============================================================================
// CORRECTION POSTING
// =============================================================================

func (a *AdjustmentEngine) postCorrections(ctx context.Context, s Store, adj TipAdjustment, req AdjustmentRequest, deltas []Allocation) error {
	if len(deltas) == 0 {
		return nil
	}
	ledger := NewLedger(s)
	now := a.now()
	entries := make([]LedgerEntry, len(deltas))
	for i, d := range deltas {
		entries[i] = LedgerEntry{
			ID:                    EntryID(uuid.NewString()),
			EmployeeID:            d.EmployeeID,
			Amount:                d.Amount,
			Type:                  EntryCorrection,
			ReferenceOrderID:      req.OrderID,
			ReferenceGroupID:      req.GroupID,
			ReferenceAdjustmentID: adj.ID,
			Reason:                req.Reason,
			IdempotencyKey:        "correction:" + string(adj.ID) + ":" + string(d.EmployeeID),
			EffectiveAt:           now,
			CreatedAt:             now,
		}
	}
	_, err := ledger.AppendAll(ctx, entries)
	return err
}

// =============================================================================
// SNAPSHOT SHAPES
// =============================================================================

func snapshotSegments(segments []TipGroupSegment) []TipGroupSegment {
	out := make([]TipGroupSegment, len(segments))
	copy(out, segments)
	return out
}

func allocSnapshot(m map[EmployeeID]Money) map[EmployeeID]string {
	out := make(map[EmployeeID]string, len(m))
	for k, v := range m {
		out[k] = v.String()
	}
	return out
}
