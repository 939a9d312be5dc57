/*
ledger.go - Append-only tip ledger

PURPOSE:
  The Ledger is the immutable source of truth for every tip movement.
  Every direct tip, pooled share, tip-out, payout, and correction is
  recorded here. Balance is always computed by replaying entries -
  there is no separate "balance" field that can drift.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, entries cannot be modified
  3. AUDITABLE: Every balance change is traceable with full context
  4. IDEMPOTENT: Same idempotency key = same entry (no duplicates)

CORRECTIONS:
  A mistake is never edited. The adjustment engine posts correction
  entries for exactly the delta; the originals stay in place.

SEE ALSO:
  - store.go: EntryStore contract
  - adjust.go: Producer of correction entries
*/
package tips

import (
	"context"
	"errors"
	"time"
)

// =============================================================================
// LEDGER - Idempotent append and balance replay over the entry store
// =============================================================================

type Ledger struct {
	store EntryStore
}

func NewLedger(store EntryStore) *Ledger {
	return &Ledger{store: store}
}

// Append records one entry. A duplicate idempotency key is benign: the
// existing entry's id is returned with no new write, so retried
// settlements and shift closes never double-post.
func (l *Ledger) Append(ctx context.Context, e LedgerEntry) (EntryID, error) {
	err := l.store.AppendEntry(ctx, e)
	if err == nil {
		return e.ID, nil
	}
	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		existing, lookupErr := l.store.EntryByIdempotencyKey(ctx, e.IdempotencyKey)
		if lookupErr != nil {
			return "", lookupErr
		}
		if existing != nil {
			return existing.ID, nil
		}
	}
	return "", err
}

// AppendAll records entries one by one with the same duplicate-tolerant
// semantics as Append, returning the effective entries (existing ones
// substituted for duplicates). Callers needing all-or-nothing semantics
// wrap this in TxStore.WithTx.
func (l *Ledger) AppendAll(ctx context.Context, es []LedgerEntry) ([]LedgerEntry, error) {
	out := make([]LedgerEntry, 0, len(es))
	for _, e := range es {
		err := l.store.AppendEntry(ctx, e)
		if err == nil {
			out = append(out, e)
			continue
		}
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			existing, lookupErr := l.store.EntryByIdempotencyKey(ctx, e.IdempotencyKey)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if existing != nil {
				out = append(out, *existing)
				continue
			}
		}
		return nil, err
	}
	return out, nil
}

// BalanceAsOf sums all entries for the employee with CreatedAt <= at.
// This is a derived value; nothing else holds authoritative balances.
func (l *Ledger) BalanceAsOf(ctx context.Context, employeeID EmployeeID, at time.Time) (Money, error) {
	entries, err := l.store.EntriesByEmployee(ctx, employeeID)
	if err != nil {
		return ZeroMoney(), err
	}
	balance := ZeroMoney()
	for _, e := range entries {
		if e.CreatedAt.After(at) {
			continue
		}
		balance = balance.Add(e.Amount)
	}
	return balance, nil
}

// Entries returns the audit-trail view: an employee's entries with
// EffectiveAt in [from, to], optionally filtered by type. Zero from/to
// mean unbounded.
func (l *Ledger) Entries(ctx context.Context, employeeID EmployeeID, from, to time.Time, types ...EntryType) ([]LedgerEntry, error) {
	entries, err := l.store.EntriesByEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	var out []LedgerEntry
	for _, e := range entries {
		if !from.IsZero() && e.EffectiveAt.Before(from) {
			continue
		}
		if !to.IsZero() && e.EffectiveAt.After(to) {
			continue
		}
		if len(types) > 0 && !containsType(types, e.Type) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// CreditsInWindow sums an employee's tip credits (direct + pooled) with
// EffectiveAt inside [from, to]. Used as the gross_tips basis at shift close.
func (l *Ledger) CreditsInWindow(ctx context.Context, employeeID EmployeeID, from, to time.Time) (Money, error) {
	entries, err := l.Entries(ctx, employeeID, from, to, EntryDirectTip, EntryGroupShare)
	if err != nil {
		return ZeroMoney(), err
	}
	total := ZeroMoney()
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return total, nil
}

func containsType(types []EntryType, t EntryType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}
