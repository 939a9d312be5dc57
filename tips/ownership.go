/*
ownership.go - Per-order tip ownership resolution and settlement routing

PURPOSE:
  Given a settled order, determines which employee(s) own its tip and in
  what proportion, then routes each owner's gross share: owners who are
  active pool members have their share credited through the tip group
  engine, everyone else gets a DIRECT_TIP entry.

MODES:
  item_based
    Each item's amount is attributed to its owning employee(s) (co-owned
    items split equally). An employee's fraction of the order subtotal
    becomes their fraction of the tip.

  primary_server_owns_all
    Only engages when item-based resolution finds more than one owner AND
    the order is attached to a table. The creator then takes 100% of the
    tip; helpers are compensated later through tip-out rules, never
    through ownership splitting. Single-owner or tableless tickets fall
    back to item_based behavior.

SNAPSHOT SEMANTICS:
  The active ownership mode is captured into the per-order record at
  settlement time. Later mode changes never retroactively alter orders
  that already resolved.

SEE ALSO:
  - group.go: Pool routing for owners in groups
  - adjust.go: The only path that rewrites a persisted record
*/
package tips

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// OWNERSHIP RESOLVER
// =============================================================================

type OwnershipResolver struct {
	store  TxStore
	ledger *Ledger
	groups *GroupEngine
	mode   OwnershipMode // current setting, snapshotted per order
	now    func() time.Time
}

func NewOwnershipResolver(store TxStore, ledger *Ledger, groups *GroupEngine, mode OwnershipMode) *OwnershipResolver {
	return &OwnershipResolver{
		store:  store,
		ledger: ledger,
		groups: groups,
		mode:   mode,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source. Tests only.
func (r *OwnershipResolver) SetClock(now func() time.Time) { r.now = now }

// SetMode changes the current ownership mode. Affects only orders settled
// afterwards; resolved records keep their snapshot.
func (r *OwnershipResolver) SetMode(mode OwnershipMode) { r.mode = mode }

// ResolveOwnership computes the ownership record for a settlement without
// persisting anything. Pure with respect to stores.
func (r *OwnershipResolver) ResolveOwnership(s Settlement) OwnershipRecord {
	owners := itemBasedOwners(s)

	mode := ModeItemBased
	if r.mode == ModePrimaryServerOwnsAll && len(owners) > 1 && s.TableID != "" {
		mode = ModePrimaryServerOwnsAll
		owners = []Owner{{EmployeeID: s.CreatorEmployeeID, Share: decimal.NewFromInt(1)}}
	}

	return OwnershipRecord{
		OrderID:    s.OrderID,
		Mode:       mode,
		TipAmount:  s.TipAmount,
		Owners:     owners,
		ResolvedAt: r.now(),
	}
}

// itemBasedOwners attributes each item's amount to its owners (equal split
// for co-owned items) and returns owners with their fraction of the
// attributed total, in first-seen order. An order with no attributable
// items falls to the creator.
func itemBasedOwners(s Settlement) []Owner {
	var order []EmployeeID
	contrib := map[EmployeeID]decimal.Decimal{}
	total := decimal.Zero

	for _, item := range s.Items {
		if len(item.OwnerEmployeeIDs) == 0 {
			continue
		}
		slice := item.Amount.Value.Div(decimal.NewFromInt(int64(len(item.OwnerEmployeeIDs))))
		for _, emp := range item.OwnerEmployeeIDs {
			if _, seen := contrib[emp]; !seen {
				order = append(order, emp)
			}
			contrib[emp] = contrib[emp].Add(slice)
			total = total.Add(slice)
		}
	}

	if len(order) == 0 || total.IsZero() {
		return []Owner{{EmployeeID: s.CreatorEmployeeID, Share: decimal.NewFromInt(1)}}
	}

	weights := make([]WeightedEmployee, len(order))
	for i, emp := range order {
		weights[i] = WeightedEmployee{EmployeeID: emp, Weight: contrib[emp]}
	}
	shares := ComputeShares(weights)
	owners := make([]Owner, len(order))
	for i, emp := range order {
		owners[i] = Owner{EmployeeID: emp, Share: shares[i]}
	}
	return owners
}

// =============================================================================
// SETTLEMENT - resolve, persist, route to ledger
// =============================================================================

// SettleOrder resolves ownership for a settled order, persists the record,
// and posts the resulting ledger entries in one atomic unit. Owners who
// are active group members have their gross share routed through the pool;
// the rest get DIRECT_TIP entries. Safe to retry: once an order has posted,
// a retry returns the original entries without re-deciding routing, so a
// pool membership change between attempts cannot redirect (or duplicate)
// the credit.
func (r *OwnershipResolver) SettleOrder(ctx context.Context, settlement Settlement) ([]LedgerEntry, error) {
	var posted []LedgerEntry
	err := r.store.WithTx(ctx, func(s Store) error {
		// Entries and the ownership record commit together, so any prior
		// settlement credit means the whole order already posted.
		prior, err := s.EntriesByOrder(ctx, settlement.OrderID)
		if err != nil {
			return err
		}
		for _, e := range prior {
			if e.Type == EntryDirectTip || e.Type == EntryGroupShare {
				posted = append(posted, e)
			}
		}
		if len(posted) > 0 {
			return nil
		}

		rec, err := s.GetOwnership(ctx, settlement.OrderID)
		if err != nil {
			return err
		}
		if rec == nil {
			resolved := r.ResolveOwnership(settlement)
			if err := s.SaveOwnership(ctx, resolved); err != nil {
				return err
			}
			rec = &resolved
		}

		weights := make([]WeightedEmployee, len(rec.Owners))
		for i, o := range rec.Owners {
			weights[i] = WeightedEmployee{EmployeeID: o.EmployeeID, Weight: o.Share}
		}
		allocs, err := AllocateMoney(rec.TipAmount, weights)
		if err != nil {
			return err
		}

		ledger := NewLedger(s)
		at := rec.ResolvedAt
		for _, a := range allocs {
			if a.Amount.IsZero() {
				continue
			}
			group, err := s.ActiveMembership(ctx, a.EmployeeID)
			if err != nil {
				return err
			}
			if group != nil {
				entries, err := r.groups.creditGroupOn(ctx, s, group.ID, a.Amount, rec.OrderID, at)
				if err != nil {
					return err
				}
				posted = append(posted, entries...)
				continue
			}
			entry := LedgerEntry{
				ID:               EntryID(uuid.NewString()),
				EmployeeID:       a.EmployeeID,
				Amount:           a.Amount,
				Type:             EntryDirectTip,
				ReferenceOrderID: rec.OrderID,
				IdempotencyKey:   directTipKey(rec.OrderID, a.EmployeeID),
				EffectiveAt:      at,
				CreatedAt:        r.now(),
			}
			id, err := ledger.Append(ctx, entry)
			if err != nil {
				return err
			}
			entry.ID = id
			posted = append(posted, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return posted, nil
}

func directTipKey(orderID OrderID, employeeID EmployeeID) string {
	return "direct-tip:" + string(orderID) + ":" + string(employeeID)
}
