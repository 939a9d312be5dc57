/*
Package tips implements the tip ledger and dynamic group allocation engine.

PURPOSE:
  This package contains the financial core of the point-of-sale system:
  an append-only ledger of tip credits and debits per employee, tip pooling
  groups whose membership varies over time, per-order ownership attribution,
  role-based tip-out redistribution, and a retroactive correction engine
  that fixes past mistakes without ever mutating history.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A fixed-point currency amount (decimal, 2 places, never float)
  - LedgerEntry: An immutable signed record attributed to one employee
  - TipGroup/TipGroupSegment: Time-sliced pooling membership
  - OwnershipRecord: Per-order snapshot of who owns the tip
  - TipOutRule / TipAdjustment: Redistribution rules and audit records

DESIGN PRINCIPLES:
  1. Immutability: Ledger entries are never modified, only superseded by
     correction entries
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for IDs prevents mixing employee/group IDs
  4. Auditability: Every entry has a reference, reason, and idempotency key

SEE ALSO:
  - ledger.go: Append-only ledger over the entry store
  - group.go: Tip group engine and segment transitions
  - split.go: Share computation and cent-exact allocation
  - adjust.go: Retroactive correction engine
*/
package tips

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Fixed-point currency amount
// =============================================================================

// Money is a signed currency amount with two decimal places.
// All arithmetic stays in decimal space; allocation math operates on
// integer cents so shares always sum exactly to their input.
type Money struct {
	Value decimal.Decimal
}

var centFactor = decimal.NewFromInt(100)

// Cents builds a Money from an integer number of cents.
func Cents(n int64) Money {
	return Money{Value: decimal.NewFromInt(n).Div(centFactor)}
}

// FromDecimal quantizes d to two decimal places (banker-free, half up).
func FromDecimal(d decimal.Decimal) Money {
	return Money{Value: d.Round(2)}
}

// MustParseMoney parses a decimal string like "10.00".
// Invalid input yields zero; intended for literals in tests and seeds.
func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{Value: decimal.Zero}
	}
	return FromDecimal(d)
}

func ZeroMoney() Money { return Money{Value: decimal.Zero} }

func (m Money) Add(b Money) Money      { return Money{Value: m.Value.Add(b.Value)} }
func (m Money) Sub(b Money) Money      { return Money{Value: m.Value.Sub(b.Value)} }
func (m Money) Neg() Money             { return Money{Value: m.Value.Neg()} }
func (m Money) IsZero() bool           { return m.Value.IsZero() }
func (m Money) IsNegative() bool       { return m.Value.IsNegative() }
func (m Money) IsPositive() bool       { return m.Value.IsPositive() }
func (m Money) Equal(b Money) bool     { return m.Value.Equal(b.Value) }
func (m Money) Cents() int64           { return m.Value.Mul(centFactor).Round(0).IntPart() }
func (m Money) String() string         { return m.Value.StringFixed(2) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type RoleID string
type OrderID string
type GroupID string
type SegmentID string
type TemplateID string
type EntryID string
type AdjustmentID string
type ShiftID string

// =============================================================================
// LEDGER ENTRY - Immutable signed fact
// =============================================================================

type EntryType string

const (
	EntryDirectTip    EntryType = "direct_tip"    // Tip credited straight to an order owner
	EntryGroupShare   EntryType = "group_share"   // Pooled share routed through a tip group
	EntryTipOutDebit  EntryType = "tipout_debit"  // Shift-close debit from a giver
	EntryTipOutCredit EntryType = "tipout_credit" // Shift-close credit to a receiver
	EntryPayoutCash   EntryType = "payout_cash"   // Cash paid out to the employee
	EntryCorrection   EntryType = "correction"    // Delta posted by the adjustment engine
)

// LedgerEntry is an immutable fact. It is never updated or deleted after
// creation; a correction is always a new entry. An employee's balance at
// any time is the sum of all entries created up to that time.
//
// EffectiveAt is the business time of the originating event (settlement
// time, shift window) and drives segment resolution for late-arriving
// settlements. CreatedAt is when the entry hit the ledger.
type LedgerEntry struct {
	ID                    EntryID
	EmployeeID            EmployeeID
	Amount                Money
	Type                  EntryType
	ReferenceOrderID      OrderID      // empty when not order-scoped
	ReferenceGroupID      GroupID      // empty when not group-scoped
	ReferenceAdjustmentID AdjustmentID // set only on correction entries
	Reason                string
	IdempotencyKey        string // unique per originating event
	EffectiveAt           time.Time
	CreatedAt             time.Time
}

// =============================================================================
// TIP GROUPS - Time-sliced pooling membership
// =============================================================================

type GroupStatus string

const (
	GroupActive GroupStatus = "active"
	GroupClosed GroupStatus = "closed"
)

// TipGroup is a pool of employees sharing tips for a period. Its membership
// history is an ordered sequence of segments; the group itself carries no
// mutable member list.
type TipGroup struct {
	ID         GroupID
	TemplateID TemplateID // empty for ad-hoc groups
	Status     GroupStatus
	CreatedAt  time.Time
}

type SplitMode string

const (
	SplitEqual         SplitMode = "equal"
	SplitHoursWeighted SplitMode = "hours_weighted"
	SplitRoleWeighted  SplitMode = "role_weighted"
)

// SegmentMember is one employee's presence in a segment. ComputedShare is
// the recorded fraction of the pool (shares within a segment sum to 1);
// the cent-exact split of any credited amount is always recomputed from
// weights at credit time so no currency leaks to rounding.
type SegmentMember struct {
	EmployeeID    EmployeeID
	ComputedShare decimal.Decimal
}

// TipGroupSegment is a maximal time interval during which a group's
// membership and split mode are fixed.
//
// INVARIANTS:
//   - A group has at most one open segment (EndAt == nil) at any instant.
//   - Segments never overlap.
//   - Member shares sum to 1.0 of whatever is routed to the group.
type TipGroupSegment struct {
	ID        SegmentID
	GroupID   GroupID
	StartAt   time.Time
	EndAt     *time.Time // nil = currently open
	SplitMode SplitMode
	Members   []SegmentMember // stable join order
}

// Covers reports whether at falls inside the segment interval.
func (s TipGroupSegment) Covers(at time.Time) bool {
	if at.Before(s.StartAt) {
		return false
	}
	return s.EndAt == nil || at.Before(*s.EndAt)
}

func (s TipGroupSegment) IsOpen() bool { return s.EndAt == nil }

// MemberIDs returns employee ids in join order.
func (s TipGroupSegment) MemberIDs() []EmployeeID {
	ids := make([]EmployeeID, len(s.Members))
	for i, m := range s.Members {
		ids[i] = m.EmployeeID
	}
	return ids
}

func (s TipGroupSegment) HasMember(id EmployeeID) bool {
	for _, m := range s.Members {
		if m.EmployeeID == id {
			return true
		}
	}
	return false
}

// TipGroupTemplate is an admin-authored pattern for runtime groups.
// One template backs many runtime TipGroup instances over time, one at a
// time while active; the binder finds-or-creates the instance at clock-in.
type TipGroupTemplate struct {
	ID               TemplateID
	Name             string
	AllowedRoleIDs   []RoleID // empty = all roles eligible
	DefaultSplitMode SplitMode
	Active           bool
}

// AllowsRole reports whether the template accepts a clock-in role.
func (t TipGroupTemplate) AllowsRole(role RoleID) bool {
	if len(t.AllowedRoleIDs) == 0 {
		return true
	}
	for _, r := range t.AllowedRoleIDs {
		if r == role {
			return true
		}
	}
	return false
}

// =============================================================================
// OWNERSHIP - Per-order tip attribution snapshot
// =============================================================================

type OwnershipMode string

const (
	ModeItemBased            OwnershipMode = "item_based"
	ModePrimaryServerOwnsAll OwnershipMode = "primary_server_owns_all"
)

// Owner is one employee's fractional claim on an order's tip.
type Owner struct {
	EmployeeID EmployeeID
	Share      decimal.Decimal
}

// OwnershipRecord is the resolved tip attribution for one settled order.
// Computed once at settlement and immutable thereafter, except through the
// adjustment engine. The tip amount is stored with the record so replays
// never depend on the original settlement feed.
type OwnershipRecord struct {
	OrderID    OrderID
	Mode       OwnershipMode
	TipAmount  Money
	Owners     []Owner
	ResolvedAt time.Time
}

// =============================================================================
// TIP-OUT RULES
// =============================================================================

type TipOutBasis string

const (
	BasisGrossTips TipOutBasis = "gross_tips"
	BasisNetSales  TipOutBasis = "net_sales"
)

// TipOutRule redistributes a percentage from one role to another at shift
// close (e.g. server gives 3% of gross tips to bussers).
type TipOutRule struct {
	ID             string
	GiverRoleID    RoleID
	ReceiverRoleID RoleID
	Percent        decimal.Decimal // e.g. 3 means 3%
	Basis          TipOutBasis
}

// =============================================================================
// ADJUSTMENTS - Audit record of manual corrections
// =============================================================================

type AdjustmentType string

const (
	AdjustGroupMembership AdjustmentType = "group_membership"
	AdjustOwnershipSplit  AdjustmentType = "ownership_split"
	AdjustClockFix        AdjustmentType = "clock_fix"
	AdjustManualOverride  AdjustmentType = "manual_override"
	AdjustTipAmount       AdjustmentType = "tip_amount"
)

type AdjustmentStatus string

const (
	AdjustmentRecalculated AdjustmentStatus = "recalculated"
)

// TipAdjustment records a manager-initiated correction. The set of
// correction ledger entries it produced carry its id as
// ReferenceAdjustmentID. The only externally visible state is
// "recalculated": a failed adjustment rolls back entirely and leaves no
// record behind.
type TipAdjustment struct {
	ID            AdjustmentID
	CreatedBy     EmployeeID
	Reason        string
	Type          AdjustmentType
	ContextJSON   string // before/after snapshot of the corrected facts
	Status        AdjustmentStatus
	AutoRecalcRan bool
	CreatedAt     time.Time
}

// =============================================================================
// COLLABORATOR FACTS - Read-only inputs consumed from other subsystems
// =============================================================================

// Settlement is the order-settlement event consumed from payment capture.
type Settlement struct {
	OrderID           OrderID
	TipAmount         Money
	Subtotal          Money
	Items             []SettledItem
	TableID           string // empty for simple single-server tickets
	CreatorEmployeeID EmployeeID
}

// SettledItem is one line of a settled order with its owning employees.
// Co-owned items split their contribution equally among the listed owners.
type SettledItem struct {
	ItemID           string
	Amount           Money
	OwnerEmployeeIDs []EmployeeID
}

// ClockInEvent is the clock-in fact consumed from the time clock.
type ClockInEvent struct {
	EmployeeID         EmployeeID
	RoleID             RoleID
	SelectedTemplateID TemplateID // empty = no pooling selected
}

// Shift is the shift-close fact used by the tip-out engine.
type Shift struct {
	ID         ShiftID
	EmployeeID EmployeeID
	StartAt    time.Time
	EndAt      time.Time
}

// HoursProvider supplies hours-worked-during-segment facts from the time
// clock, for hours_weighted splits.
type HoursProvider interface {
	HoursWorked(employeeID EmployeeID, segmentID SegmentID) (decimal.Decimal, bool)
}

// RoleProvider supplies employee role facts and role split weights.
type RoleProvider interface {
	RoleOf(employeeID EmployeeID) (RoleID, bool)
	RoleWeight(roleID RoleID) decimal.Decimal
}

// RosterProvider lists employees who worked a shift in a given role,
// used to find tip-out receivers.
type RosterProvider interface {
	OnShift(shiftID ShiftID, roleID RoleID) []EmployeeID
}

// SalesProvider supplies net sales for net_sales-basis tip-out rules.
type SalesProvider interface {
	NetSales(employeeID EmployeeID, shiftID ShiftID) Money
}
