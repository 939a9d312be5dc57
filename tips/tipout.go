/*
tipout.go - Role-based tip redistribution at shift close

PURPOSE:
  Applies tip-out rules (e.g. server gives 3% of gross tips to bussers)
  when an employee closes their shift. Each matching rule posts a
  TIPOUT_DEBIT for the giver and a TIPOUT_CREDIT for every on-shift
  receiver of the rule's role, split equally.

IDEMPOTENCY:
  Keys derive from shift id + rule id (+ receiver), so running the shift
  close twice never double-debits: the second pass sees the debit key
  already posted and skips the rule.

BASIS:
  gross_tips  the giver's DIRECT_TIP + GROUP_SHARE credits inside the
              shift window
  net_sales   the giver's net sales for the shift (collaborator fact)

SEE ALSO:
  - ledger.go: CreditsInWindow, idempotent appends
  - types.go: TipOutRule, collaborator provider interfaces
*/
package tips

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// TIP-OUT ENGINE
// =============================================================================

type TipOutEngine struct {
	store  TxStore
	ledger *Ledger
	roles  RoleProvider
	roster RosterProvider
	sales  SalesProvider
	now    func() time.Time
}

func NewTipOutEngine(store TxStore, ledger *Ledger, roles RoleProvider, roster RosterProvider, sales SalesProvider) *TipOutEngine {
	return &TipOutEngine{
		store:  store,
		ledger: ledger,
		roles:  roles,
		roster: roster,
		sales:  sales,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source. Tests only.
func (t *TipOutEngine) SetClock(now func() time.Time) { t.now = now }

// ApplyTipOuts runs every rule matching the closing employee's role and
// posts the resulting debit/credit pairs atomically. Idempotent per shift.
func (t *TipOutEngine) ApplyTipOuts(ctx context.Context, shift Shift) ([]LedgerEntry, error) {
	role, ok := t.roles.RoleOf(shift.EmployeeID)
	if !ok {
		return nil, nil
	}
	rules, err := t.store.RulesForGiver(ctx, role)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, nil
	}

	var posted []LedgerEntry
	err = t.store.WithTx(ctx, func(s Store) error {
		ledger := NewLedger(s)
		for _, rule := range rules {
			entries, err := t.applyRule(ctx, s, ledger, shift, rule)
			if err != nil {
				return err
			}
			posted = append(posted, entries...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return posted, nil
}

func (t *TipOutEngine) applyRule(ctx context.Context, s Store, ledger *Ledger, shift Shift, rule TipOutRule) ([]LedgerEntry, error) {
	debitKey := tipOutDebitKey(shift.ID, rule.ID)
	existing, err := s.EntryByIdempotencyKey(ctx, debitKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		// Shift close retried; the whole rule already ran.
		return nil, nil
	}

	basis, err := t.ruleBasis(ctx, s, shift, rule)
	if err != nil {
		return nil, err
	}
	amount := FromDecimal(basis.Value.Mul(rule.Percent).Div(decimal.NewFromInt(100)))
	if !amount.IsPositive() {
		return nil, nil
	}

	var receivers []EmployeeID
	for _, emp := range t.roster.OnShift(shift.ID, rule.ReceiverRoleID) {
		if emp != shift.EmployeeID {
			receivers = append(receivers, emp)
		}
	}
	if len(receivers) == 0 {
		return nil, nil
	}

	weights := make([]WeightedEmployee, len(receivers))
	for i, emp := range receivers {
		weights[i] = WeightedEmployee{EmployeeID: emp, Weight: decimal.NewFromInt(1)}
	}
	allocs, err := AllocateMoney(amount, weights)
	if err != nil {
		return nil, err
	}

	now := t.now()
	entries := []LedgerEntry{{
		ID:             EntryID(uuid.NewString()),
		EmployeeID:     shift.EmployeeID,
		Amount:         amount.Neg(),
		Type:           EntryTipOutDebit,
		Reason:         "tip-out to " + string(rule.ReceiverRoleID),
		IdempotencyKey: debitKey,
		EffectiveAt:    shift.EndAt,
		CreatedAt:      now,
	}}
	for _, a := range allocs {
		entries = append(entries, LedgerEntry{
			ID:             EntryID(uuid.NewString()),
			EmployeeID:     a.EmployeeID,
			Amount:         a.Amount,
			Type:           EntryTipOutCredit,
			Reason:         "tip-out from " + string(rule.GiverRoleID),
			IdempotencyKey: tipOutCreditKey(shift.ID, rule.ID, a.EmployeeID),
			EffectiveAt:    shift.EndAt,
			CreatedAt:      now,
		})
	}
	return ledger.AppendAll(ctx, entries)
}

func (t *TipOutEngine) ruleBasis(ctx context.Context, s Store, shift Shift, rule TipOutRule) (Money, error) {
	switch rule.Basis {
	case BasisNetSales:
		if t.sales == nil {
			return ZeroMoney(), nil
		}
		return t.sales.NetSales(shift.EmployeeID, shift.ID), nil
	default:
		return NewLedger(s).CreditsInWindow(ctx, shift.EmployeeID, shift.StartAt, shift.EndAt)
	}
}

func tipOutDebitKey(shiftID ShiftID, ruleID string) string {
	return "tipout-debit:" + string(shiftID) + ":" + ruleID
}

func tipOutCreditKey(shiftID ShiftID, ruleID string, employeeID EmployeeID) string {
	return "tipout-credit:" + string(shiftID) + ":" + ruleID + ":" + string(employeeID)
}
