/*
store.go - Persistence interfaces for the tip engine

PURPOSE:
  Defines the interface between the domain logic and the database.
  The entry store keeps append-only semantics; group, template,
  ownership, rule, and adjustment stores hold the surrounding facts.

APPEND-ONLY CONTRACT:
  EntryStore exposes Append/AppendBatch and reads. No Update() or
  Delete() method exists for ledger entries, here or anywhere else.
  Corrections are new entries posted by the adjustment engine.

FACT MUTABILITY:
  Segment boundaries and ownership records are facts, not ledger rows:
  the adjustment engine may rewrite them inside an atomic unit, with a
  before/after snapshot captured in the adjustment record.

ATOMIC UNITS:
  TxStore.WithTx executes a function against a transactional view of
  every store. Either everything inside commits or nothing does; the
  adjustment engine and order settlement run inside it.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite store
  - tips/store: In-memory store for tests and development

SEE ALSO:
  - ledger.go: Idempotent append built on EntryStore
  - adjust.go: The only writer that rewrites facts
*/
package tips

import (
	"context"
	"time"
)

// =============================================================================
// ENTRY STORE - Append-only ledger persistence
// =============================================================================

// EntryStore persists ledger entries.
// IMPORTANT: append-only. No Update, No Delete. Ever.
type EntryStore interface {
	// AppendEntry persists one entry. Returns ErrDuplicateIdempotencyKey if
	// the idempotency key already exists.
	AppendEntry(ctx context.Context, e LedgerEntry) error

	// AppendEntries persists multiple entries atomically.
	AppendEntries(ctx context.Context, es []LedgerEntry) error

	// EntryByIdempotencyKey returns the entry for a key, or nil.
	EntryByIdempotencyKey(ctx context.Context, key string) (*LedgerEntry, error)

	// EntriesByEmployee returns all entries for an employee ordered by
	// CreatedAt ascending.
	EntriesByEmployee(ctx context.Context, employeeID EmployeeID) ([]LedgerEntry, error)

	// EntriesByOrder returns all entries referencing an order.
	EntriesByOrder(ctx context.Context, orderID OrderID) ([]LedgerEntry, error)

	// EntriesByGroup returns all entries referencing a group.
	EntriesByGroup(ctx context.Context, groupID GroupID) ([]LedgerEntry, error)
}

// =============================================================================
// GROUP / TEMPLATE STORES
// =============================================================================

type GroupStore interface {
	SaveGroup(ctx context.Context, g TipGroup) error
	GetGroup(ctx context.Context, id GroupID) (*TipGroup, error)

	// ActiveGroupByTemplate returns the active group backed by a template,
	// or nil. At most one exists at a time.
	ActiveGroupByTemplate(ctx context.Context, templateID TemplateID) (*TipGroup, error)

	// ActiveGroups returns all groups with status active.
	ActiveGroups(ctx context.Context) ([]TipGroup, error)

	// SaveSegment inserts a segment or updates its boundaries/members.
	// Ledger entries are append-only; segments are correctable facts.
	SaveSegment(ctx context.Context, s TipGroupSegment) error

	// Segments returns a group's segments ordered by StartAt ascending.
	Segments(ctx context.Context, groupID GroupID) ([]TipGroupSegment, error)

	// OpenSegment returns the group's open segment, or nil.
	OpenSegment(ctx context.Context, groupID GroupID) (*TipGroupSegment, error)

	// ActiveMembership returns the active group whose open segment contains
	// the employee, or nil. Backs the single-group invariant.
	ActiveMembership(ctx context.Context, employeeID EmployeeID) (*TipGroup, error)
}

type TemplateStore interface {
	SaveTemplate(ctx context.Context, t TipGroupTemplate) error
	GetTemplate(ctx context.Context, id TemplateID) (*TipGroupTemplate, error)
	ActiveTemplates(ctx context.Context) ([]TipGroupTemplate, error)
}

// =============================================================================
// OWNERSHIP / RULE / ADJUSTMENT STORES
// =============================================================================

type OwnershipStore interface {
	// SaveOwnership persists a record once per order; a second save for the
	// same order fails with ErrOwnershipExists.
	SaveOwnership(ctx context.Context, rec OwnershipRecord) error

	GetOwnership(ctx context.Context, orderID OrderID) (*OwnershipRecord, error)

	// ReplaceOwnership rewrites an existing record. Reserved for the
	// adjustment engine inside its atomic unit.
	ReplaceOwnership(ctx context.Context, rec OwnershipRecord) error
}

type RuleStore interface {
	SaveRule(ctx context.Context, r TipOutRule) error
	RulesForGiver(ctx context.Context, giverRoleID RoleID) ([]TipOutRule, error)
}

type AdjustmentStore interface {
	SaveAdjustment(ctx context.Context, a TipAdjustment) error
	GetAdjustment(ctx context.Context, id AdjustmentID) (*TipAdjustment, error)
	ListAdjustments(ctx context.Context, from, to time.Time) ([]TipAdjustment, error)
}

// =============================================================================
// AGGREGATE STORE
// =============================================================================

// Store is everything the engines need from persistence.
type Store interface {
	EntryStore
	GroupStore
	TemplateStore
	OwnershipStore
	RuleStore
	AdjustmentStore
}

// TxStore adds atomic units of work.
type TxStore interface {
	Store

	// WithTx executes fn against a transactional view. If fn returns an
	// error the unit rolls back with no partial effect.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Reset destroys all stored state. Development and demo use only.
	Reset(ctx context.Context) error
}
