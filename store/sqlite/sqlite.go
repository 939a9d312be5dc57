/*
Package sqlite provides the SQLite-backed implementation of the tip
engine's storage interfaces.

PURPOSE:
  Implements tips.TxStore (entries, groups, templates, ownership, rules,
  adjustments) over database/sql with mattn/go-sqlite3. The same shapes
  port to PostgreSQL with only dialect changes.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statement exists for ledger_entries
  - idempotency_key carries a UNIQUE index; a violation surfaces as
    tips.ErrDuplicateIdempotencyKey
  Segment and ownership rows are correctable facts and do allow upsert,
  but only engine code paths reach those statements.

KEY TABLES:
  ledger_entries       Immutable tip ledger
  tip_groups           Pool instances
  tip_group_segments   Time slices of pool membership (members as JSON)
  tip_group_templates  Admin-authored pool patterns
  ownership_records    Per-order tip attribution snapshots
  tip_out_rules        Role-pair redistribution rules
  tip_adjustments      Correction audit records

CONCURRENCY:
  A sync.Mutex serializes writes; WithTx holds it for the entire atomic
  unit so recalculation never races new activity into its region. SQLite
  runs in WAL mode for reader concurrency.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - tips/store.go: Interface contracts
  - tips/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/GetwithitMan/gwi-pos-sub001/tips"
)

// Store implements tips.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// queryer is satisfied by both *sql.DB and *sql.Tx, so every query
// helper works inside and outside a transaction.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Append-only tip ledger. No UPDATE/DELETE statements exist for this
	-- table anywhere in the codebase.
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		entry_type TEXT NOT NULL,
		reference_order_id TEXT NOT NULL DEFAULT '',
		reference_group_id TEXT NOT NULL DEFAULT '',
		reference_adjustment_id TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT NOT NULL DEFAULT '',
		effective_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_idempotency
		ON ledger_entries(idempotency_key) WHERE idempotency_key != '';
	CREATE INDEX IF NOT EXISTS idx_entries_employee_created
		ON ledger_entries(employee_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_entries_order
		ON ledger_entries(reference_order_id) WHERE reference_order_id != '';
	CREATE INDEX IF NOT EXISTS idx_entries_group
		ON ledger_entries(reference_group_id) WHERE reference_group_id != '';

	CREATE TABLE IF NOT EXISTS tip_groups (
		id TEXT PRIMARY KEY,
		template_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_groups_template_status
		ON tip_groups(template_id, status);

	CREATE TABLE IF NOT EXISTS tip_group_segments (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		start_at TEXT NOT NULL,
		end_at TEXT,
		split_mode TEXT NOT NULL,
		members_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_segments_group_start
		ON tip_group_segments(group_id, start_at);

	CREATE TABLE IF NOT EXISTS tip_group_templates (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		allowed_roles_json TEXT NOT NULL,
		default_split_mode TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS ownership_records (
		order_id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		tip_amount TEXT NOT NULL,
		owners_json TEXT NOT NULL,
		resolved_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tip_out_rules (
		id TEXT PRIMARY KEY,
		giver_role_id TEXT NOT NULL,
		receiver_role_id TEXT NOT NULL,
		percent TEXT NOT NULL,
		basis TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rules_giver
		ON tip_out_rules(giver_role_id);

	CREATE TABLE IF NOT EXISTS tip_adjustments (
		id TEXT PRIMARY KEY,
		created_by TEXT NOT NULL,
		reason TEXT NOT NULL,
		adjustment_type TEXT NOT NULL,
		context_json TEXT NOT NULL,
		status TEXT NOT NULL,
		auto_recalc_ran BOOLEAN NOT NULL,
		created_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// =============================================================================
// ENTRY STORE
// =============================================================================

func (s *Store) AppendEntry(ctx context.Context, e tips.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendEntry(ctx, s.db, e)
}

func appendEntry(ctx context.Context, q queryer, e tips.LedgerEntry) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO ledger_entries
		(id, employee_id, amount, entry_type, reference_order_id, reference_group_id,
		 reference_adjustment_id, reason, idempotency_key, effective_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.ID),
		string(e.EmployeeID),
		e.Amount.Value.String(),
		string(e.Type),
		string(e.ReferenceOrderID),
		string(e.ReferenceGroupID),
		string(e.ReferenceAdjustmentID),
		e.Reason,
		e.IdempotencyKey,
		e.EffectiveAt.UTC().Format(time.RFC3339Nano),
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return tips.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func (s *Store) AppendEntries(ctx context.Context, es []tips.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, e := range es {
		if err := appendEntry(ctx, sqlTx, e); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

const entryColumns = `id, employee_id, amount, entry_type, reference_order_id,
	reference_group_id, reference_adjustment_id, reason, idempotency_key,
	effective_at, created_at`

func (s *Store) EntryByIdempotencyKey(ctx context.Context, key string) (*tips.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return entryByIdempotencyKey(ctx, s.db, key)
}

func entryByIdempotencyKey(ctx context.Context, q queryer, key string) (*tips.LedgerEntry, error) {
	entries, err := queryEntries(ctx, q,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE idempotency_key = ?`, key)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return &entries[0], nil
}

func (s *Store) EntriesByEmployee(ctx context.Context, employeeID tips.EmployeeID) ([]tips.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return entriesByEmployee(ctx, s.db, employeeID)
}

func entriesByEmployee(ctx context.Context, q queryer, employeeID tips.EmployeeID) ([]tips.LedgerEntry, error) {
	return queryEntries(ctx, q,
		`SELECT `+entryColumns+` FROM ledger_entries
		 WHERE employee_id = ? ORDER BY created_at ASC, id ASC`, string(employeeID))
}

func (s *Store) EntriesByOrder(ctx context.Context, orderID tips.OrderID) ([]tips.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return entriesByOrder(ctx, s.db, orderID)
}

func entriesByOrder(ctx context.Context, q queryer, orderID tips.OrderID) ([]tips.LedgerEntry, error) {
	return queryEntries(ctx, q,
		`SELECT `+entryColumns+` FROM ledger_entries
		 WHERE reference_order_id = ? ORDER BY created_at ASC, id ASC`, string(orderID))
}

func (s *Store) EntriesByGroup(ctx context.Context, groupID tips.GroupID) ([]tips.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return entriesByGroup(ctx, s.db, groupID)
}

func entriesByGroup(ctx context.Context, q queryer, groupID tips.GroupID) ([]tips.LedgerEntry, error) {
	return queryEntries(ctx, q,
		`SELECT `+entryColumns+` FROM ledger_entries
		 WHERE reference_group_id = ? ORDER BY created_at ASC, id ASC`, string(groupID))
}

func queryEntries(ctx context.Context, q queryer, query string, args ...any) ([]tips.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []tips.LedgerEntry
	for rows.Next() {
		var (
			e           tips.LedgerEntry
			amount      string
			effectiveAt string
			createdAt   string
		)
		if err := rows.Scan(
			&e.ID, &e.EmployeeID, &amount, &e.Type, &e.ReferenceOrderID,
			&e.ReferenceGroupID, &e.ReferenceAdjustmentID, &e.Reason,
			&e.IdempotencyKey, &effectiveAt, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount on entry %s: %w", e.ID, err)
		}
		e.Amount = tips.Money{Value: d}
		e.EffectiveAt, _ = time.Parse(time.RFC3339Nano, effectiveAt)
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// GROUP STORE
// =============================================================================

func (s *Store) SaveGroup(ctx context.Context, g tips.TipGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveGroup(ctx, s.db, g)
}

func saveGroup(ctx context.Context, q queryer, g tips.TipGroup) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO tip_groups (id, template_id, status, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status`,
		string(g.ID), string(g.TemplateID), string(g.Status),
		g.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save group: %w", err)
	}
	return nil
}

func (s *Store) GetGroup(ctx context.Context, id tips.GroupID) (*tips.TipGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getGroup(ctx, s.db, id)
}

func getGroup(ctx context.Context, q queryer, id tips.GroupID) (*tips.TipGroup, error) {
	groups, err := queryGroups(ctx, q,
		`SELECT id, template_id, status, created_at FROM tip_groups WHERE id = ?`, string(id))
	if err != nil || len(groups) == 0 {
		return nil, err
	}
	return &groups[0], nil
}

func (s *Store) ActiveGroupByTemplate(ctx context.Context, templateID tips.TemplateID) (*tips.TipGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return activeGroupByTemplate(ctx, s.db, templateID)
}

func activeGroupByTemplate(ctx context.Context, q queryer, templateID tips.TemplateID) (*tips.TipGroup, error) {
	groups, err := queryGroups(ctx, q,
		`SELECT id, template_id, status, created_at FROM tip_groups
		 WHERE template_id = ? AND status = ? LIMIT 1`,
		string(templateID), string(tips.GroupActive))
	if err != nil || len(groups) == 0 {
		return nil, err
	}
	return &groups[0], nil
}

func (s *Store) ActiveGroups(ctx context.Context) ([]tips.TipGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return activeGroups(ctx, s.db)
}

func activeGroups(ctx context.Context, q queryer) ([]tips.TipGroup, error) {
	return queryGroups(ctx, q,
		`SELECT id, template_id, status, created_at FROM tip_groups
		 WHERE status = ? ORDER BY created_at ASC, id ASC`, string(tips.GroupActive))
}

func queryGroups(ctx context.Context, q queryer, query string, args ...any) ([]tips.TipGroup, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var groups []tips.TipGroup
	for rows.Next() {
		var (
			g         tips.TipGroup
			createdAt string
		)
		if err := rows.Scan(&g.ID, &g.TemplateID, &g.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		g.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// memberRecord is the JSON shape of a segment member inside members_json.
type memberRecord struct {
	EmployeeID    string          `json:"employee_id"`
	ComputedShare decimal.Decimal `json:"computed_share"`
}

func (s *Store) SaveSegment(ctx context.Context, seg tips.TipGroupSegment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveSegment(ctx, s.db, seg)
}

func saveSegment(ctx context.Context, q queryer, seg tips.TipGroupSegment) error {
	members := make([]memberRecord, len(seg.Members))
	for i, m := range seg.Members {
		members[i] = memberRecord{EmployeeID: string(m.EmployeeID), ComputedShare: m.ComputedShare}
	}
	membersJSON, err := json.Marshal(members)
	if err != nil {
		return fmt.Errorf("failed to marshal segment members: %w", err)
	}

	var endAt any
	if seg.EndAt != nil {
		endAt = seg.EndAt.UTC().Format(time.RFC3339Nano)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO tip_group_segments (id, group_id, start_at, end_at, split_mode, members_json)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			start_at = excluded.start_at,
			end_at = excluded.end_at,
			members_json = excluded.members_json`,
		string(seg.ID), string(seg.GroupID),
		seg.StartAt.UTC().Format(time.RFC3339Nano), endAt,
		string(seg.SplitMode), string(membersJSON))
	if err != nil {
		return fmt.Errorf("failed to save segment: %w", err)
	}
	return nil
}

func (s *Store) Segments(ctx context.Context, groupID tips.GroupID) ([]tips.TipGroupSegment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return segments(ctx, s.db, groupID)
}

func segments(ctx context.Context, q queryer, groupID tips.GroupID) ([]tips.TipGroupSegment, error) {
	return querySegments(ctx, q,
		`SELECT id, group_id, start_at, end_at, split_mode, members_json
		 FROM tip_group_segments WHERE group_id = ? ORDER BY start_at ASC`, string(groupID))
}

func (s *Store) OpenSegment(ctx context.Context, groupID tips.GroupID) (*tips.TipGroupSegment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return openSegment(ctx, s.db, groupID)
}

func openSegment(ctx context.Context, q queryer, groupID tips.GroupID) (*tips.TipGroupSegment, error) {
	segs, err := querySegments(ctx, q,
		`SELECT id, group_id, start_at, end_at, split_mode, members_json
		 FROM tip_group_segments WHERE group_id = ? AND end_at IS NULL LIMIT 1`, string(groupID))
	if err != nil || len(segs) == 0 {
		return nil, err
	}
	return &segs[0], nil
}

func (s *Store) ActiveMembership(ctx context.Context, employeeID tips.EmployeeID) (*tips.TipGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return activeMembership(ctx, s.db, employeeID)
}

// activeMembership scans open segments of active groups. Membership
// lives inside members_json, so the check runs in Go rather than SQL.
func activeMembership(ctx context.Context, q queryer, employeeID tips.EmployeeID) (*tips.TipGroup, error) {
	segs, err := querySegments(ctx, q,
		`SELECT s.id, s.group_id, s.start_at, s.end_at, s.split_mode, s.members_json
		 FROM tip_group_segments s
		 JOIN tip_groups g ON g.id = s.group_id
		 WHERE s.end_at IS NULL AND g.status = ?`, string(tips.GroupActive))
	if err != nil {
		return nil, err
	}
	for _, seg := range segs {
		if seg.HasMember(employeeID) {
			return getGroup(ctx, q, seg.GroupID)
		}
	}
	return nil, nil
}

func querySegments(ctx context.Context, q queryer, query string, args ...any) ([]tips.TipGroupSegment, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	var segs []tips.TipGroupSegment
	for rows.Next() {
		var (
			seg         tips.TipGroupSegment
			startAt     string
			endAt       sql.NullString
			membersJSON string
		)
		if err := rows.Scan(&seg.ID, &seg.GroupID, &startAt, &endAt, &seg.SplitMode, &membersJSON); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		seg.StartAt, _ = time.Parse(time.RFC3339Nano, startAt)
		if endAt.Valid {
			t, _ := time.Parse(time.RFC3339Nano, endAt.String)
			seg.EndAt = &t
		}
		var members []memberRecord
		if err := json.Unmarshal([]byte(membersJSON), &members); err != nil {
			return nil, fmt.Errorf("corrupt members on segment %s: %w", seg.ID, err)
		}
		seg.Members = make([]tips.SegmentMember, len(members))
		for i, m := range members {
			seg.Members[i] = tips.SegmentMember{
				EmployeeID:    tips.EmployeeID(m.EmployeeID),
				ComputedShare: m.ComputedShare,
			}
		}
		segs = append(segs, seg)
	}
	return segs, rows.Err()
}

// =============================================================================
// TEMPLATE STORE
// =============================================================================

func (s *Store) SaveTemplate(ctx context.Context, t tips.TipGroupTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveTemplate(ctx, s.db, t)
}

func saveTemplate(ctx context.Context, q queryer, t tips.TipGroupTemplate) error {
	roles := make([]string, len(t.AllowedRoleIDs))
	for i, r := range t.AllowedRoleIDs {
		roles[i] = string(r)
	}
	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return fmt.Errorf("failed to marshal template roles: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO tip_group_templates (id, name, allowed_roles_json, default_split_mode, active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			allowed_roles_json = excluded.allowed_roles_json,
			default_split_mode = excluded.default_split_mode,
			active = excluded.active`,
		string(t.ID), t.Name, string(rolesJSON), string(t.DefaultSplitMode), t.Active)
	if err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	return nil
}

func (s *Store) GetTemplate(ctx context.Context, id tips.TemplateID) (*tips.TipGroupTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getTemplate(ctx, s.db, id)
}

func getTemplate(ctx context.Context, q queryer, id tips.TemplateID) (*tips.TipGroupTemplate, error) {
	templates, err := queryTemplates(ctx, q,
		`SELECT id, name, allowed_roles_json, default_split_mode, active
		 FROM tip_group_templates WHERE id = ?`, string(id))
	if err != nil || len(templates) == 0 {
		return nil, err
	}
	return &templates[0], nil
}

func (s *Store) ActiveTemplates(ctx context.Context) ([]tips.TipGroupTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return activeTemplates(ctx, s.db)
}

func activeTemplates(ctx context.Context, q queryer) ([]tips.TipGroupTemplate, error) {
	return queryTemplates(ctx, q,
		`SELECT id, name, allowed_roles_json, default_split_mode, active
		 FROM tip_group_templates WHERE active = TRUE ORDER BY id ASC`)
}

func queryTemplates(ctx context.Context, q queryer, query string, args ...any) ([]tips.TipGroupTemplate, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	var templates []tips.TipGroupTemplate
	for rows.Next() {
		var (
			t         tips.TipGroupTemplate
			rolesJSON string
		)
		if err := rows.Scan(&t.ID, &t.Name, &rolesJSON, &t.DefaultSplitMode, &t.Active); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		var roles []string
		if err := json.Unmarshal([]byte(rolesJSON), &roles); err != nil {
			return nil, fmt.Errorf("corrupt roles on template %s: %w", t.ID, err)
		}
		for _, r := range roles {
			t.AllowedRoleIDs = append(t.AllowedRoleIDs, tips.RoleID(r))
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// =============================================================================
// OWNERSHIP STORE
// =============================================================================

// ownerRecord is the JSON shape of an owner inside owners_json.
type ownerRecord struct {
	EmployeeID string          `json:"employee_id"`
	Share      decimal.Decimal `json:"share"`
}

func (s *Store) SaveOwnership(ctx context.Context, rec tips.OwnershipRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveOwnership(ctx, s.db, rec, false)
}

func (s *Store) ReplaceOwnership(ctx context.Context, rec tips.OwnershipRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveOwnership(ctx, s.db, rec, true)
}

func saveOwnership(ctx context.Context, q queryer, rec tips.OwnershipRecord, replace bool) error {
	owners := make([]ownerRecord, len(rec.Owners))
	for i, o := range rec.Owners {
		owners[i] = ownerRecord{EmployeeID: string(o.EmployeeID), Share: o.Share}
	}
	ownersJSON, err := json.Marshal(owners)
	if err != nil {
		return fmt.Errorf("failed to marshal owners: %w", err)
	}

	if replace {
		res, err := q.ExecContext(ctx, `
			UPDATE ownership_records
			SET mode = ?, tip_amount = ?, owners_json = ?
			WHERE order_id = ?`,
			string(rec.Mode), rec.TipAmount.Value.String(), string(ownersJSON), string(rec.OrderID))
		if err != nil {
			return fmt.Errorf("failed to replace ownership: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return tips.ErrOrderNotResolved
		}
		return nil
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO ownership_records (order_id, mode, tip_amount, owners_json, resolved_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(rec.OrderID), string(rec.Mode), rec.TipAmount.Value.String(),
		string(ownersJSON), rec.ResolvedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueConstraintError(err) {
			return tips.ErrOwnershipExists
		}
		return fmt.Errorf("failed to save ownership: %w", err)
	}
	return nil
}

func (s *Store) GetOwnership(ctx context.Context, orderID tips.OrderID) (*tips.OwnershipRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getOwnership(ctx, s.db, orderID)
}

func getOwnership(ctx context.Context, q queryer, orderID tips.OrderID) (*tips.OwnershipRecord, error) {
	row := q.QueryRowContext(ctx, `
		SELECT order_id, mode, tip_amount, owners_json, resolved_at
		FROM ownership_records WHERE order_id = ?`, string(orderID))

	var (
		rec        tips.OwnershipRecord
		tipAmount  string
		ownersJSON string
		resolvedAt string
	)
	err := row.Scan(&rec.OrderID, &rec.Mode, &tipAmount, &ownersJSON, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan ownership record: %w", err)
	}
	d, err := decimal.NewFromString(tipAmount)
	if err != nil {
		return nil, fmt.Errorf("corrupt tip amount on order %s: %w", orderID, err)
	}
	rec.TipAmount = tips.Money{Value: d}
	rec.ResolvedAt, _ = time.Parse(time.RFC3339Nano, resolvedAt)

	var owners []ownerRecord
	if err := json.Unmarshal([]byte(ownersJSON), &owners); err != nil {
		return nil, fmt.Errorf("corrupt owners on order %s: %w", orderID, err)
	}
	for _, o := range owners {
		rec.Owners = append(rec.Owners, tips.Owner{EmployeeID: tips.EmployeeID(o.EmployeeID), Share: o.Share})
	}
	return &rec, nil
}

// =============================================================================
// RULE STORE
// =============================================================================

func (s *Store) SaveRule(ctx context.Context, r tips.TipOutRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveRule(ctx, s.db, r)
}

func saveRule(ctx context.Context, q queryer, r tips.TipOutRule) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO tip_out_rules (id, giver_role_id, receiver_role_id, percent, basis)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			giver_role_id = excluded.giver_role_id,
			receiver_role_id = excluded.receiver_role_id,
			percent = excluded.percent,
			basis = excluded.basis`,
		r.ID, string(r.GiverRoleID), string(r.ReceiverRoleID), r.Percent.String(), string(r.Basis))
	if err != nil {
		return fmt.Errorf("failed to save tip-out rule: %w", err)
	}
	return nil
}

func (s *Store) RulesForGiver(ctx context.Context, giverRoleID tips.RoleID) ([]tips.TipOutRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return rulesForGiver(ctx, s.db, giverRoleID)
}

func rulesForGiver(ctx context.Context, q queryer, giverRoleID tips.RoleID) ([]tips.TipOutRule, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, giver_role_id, receiver_role_id, percent, basis
		FROM tip_out_rules WHERE giver_role_id = ? ORDER BY id ASC`, string(giverRoleID))
	if err != nil {
		return nil, fmt.Errorf("failed to query tip-out rules: %w", err)
	}
	defer rows.Close()

	var rules []tips.TipOutRule
	for rows.Next() {
		var (
			r       tips.TipOutRule
			percent string
		)
		if err := rows.Scan(&r.ID, &r.GiverRoleID, &r.ReceiverRoleID, &percent, &r.Basis); err != nil {
			return nil, fmt.Errorf("failed to scan tip-out rule: %w", err)
		}
		d, err := decimal.NewFromString(percent)
		if err != nil {
			return nil, fmt.Errorf("corrupt percent on rule %s: %w", r.ID, err)
		}
		r.Percent = d
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// =============================================================================
// ADJUSTMENT STORE
// =============================================================================

const adjustmentColumns = `id, created_by, reason, adjustment_type, context_json,
	status, auto_recalc_ran, created_at`

func (s *Store) SaveAdjustment(ctx context.Context, a tips.TipAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveAdjustment(ctx, s.db, a)
}

func saveAdjustment(ctx context.Context, q queryer, a tips.TipAdjustment) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO tip_adjustments
		(id, created_by, reason, adjustment_type, context_json, status, auto_recalc_ran, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(a.ID), string(a.CreatedBy), a.Reason, string(a.Type),
		a.ContextJSON, string(a.Status), a.AutoRecalcRan,
		a.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save adjustment: %w", err)
	}
	return nil
}

func (s *Store) GetAdjustment(ctx context.Context, id tips.AdjustmentID) (*tips.TipAdjustment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getAdjustment(ctx, s.db, id)
}

func getAdjustment(ctx context.Context, q queryer, id tips.AdjustmentID) (*tips.TipAdjustment, error) {
	adjustments, err := queryAdjustments(ctx, q,
		`SELECT `+adjustmentColumns+` FROM tip_adjustments WHERE id = ?`, string(id))
	if err != nil || len(adjustments) == 0 {
		return nil, err
	}
	return &adjustments[0], nil
}

func (s *Store) ListAdjustments(ctx context.Context, from, to time.Time) ([]tips.TipAdjustment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return listAdjustments(ctx, s.db, from, to)
}

func listAdjustments(ctx context.Context, q queryer, from, to time.Time) ([]tips.TipAdjustment, error) {
	query := `SELECT ` + adjustmentColumns + ` FROM tip_adjustments`
	var (
		conds []string
		args  []any
	)
	if !from.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, from.UTC().Format(time.RFC3339Nano))
	}
	if !to.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, to.UTC().Format(time.RFC3339Nano))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	return queryAdjustments(ctx, q, query, args...)
}

func queryAdjustments(ctx context.Context, q queryer, query string, args ...any) ([]tips.TipAdjustment, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query adjustments: %w", err)
	}
	defer rows.Close()

	var adjustments []tips.TipAdjustment
	for rows.Next() {
		var (
			a         tips.TipAdjustment
			createdAt string
		)
		if err := rows.Scan(&a.ID, &a.CreatedBy, &a.Reason, &a.Type, &a.ContextJSON,
			&a.Status, &a.AutoRecalcRan, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan adjustment: %w", err)
		}
		a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		adjustments = append(adjustments, a)
	}
	return adjustments, rows.Err()
}

// =============================================================================
// ATOMIC UNITS
// =============================================================================

// WithTx executes fn against a transactional view of every store. The
// store mutex is held across the whole unit, so recalculation cannot
// race concurrent appends into its region.
func (s *Store) WithTx(ctx context.Context, fn func(tips.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txView{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// Reset wipes every table. Development and demo use only; the append-only
// contract applies to normal operation, not to rebuilding a demo database.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"ledger_entries",
		"tip_groups",
		"tip_group_segments",
		"tip_group_templates",
		"ownership_records",
		"tip_out_rules",
		"tip_adjustments",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// txView routes every store operation through a single *sql.Tx. Created
// only by WithTx, which already holds the store mutex, so methods call
// the unlocked query helpers directly.
type txView struct {
	tx *sql.Tx
}

func (v *txView) AppendEntry(ctx context.Context, e tips.LedgerEntry) error {
	return appendEntry(ctx, v.tx, e)
}

func (v *txView) AppendEntries(ctx context.Context, es []tips.LedgerEntry) error {
	for _, e := range es {
		if err := appendEntry(ctx, v.tx, e); err != nil {
			return err
		}
	}
	return nil
}

func (v *txView) EntryByIdempotencyKey(ctx context.Context, key string) (*tips.LedgerEntry, error) {
	return entryByIdempotencyKey(ctx, v.tx, key)
}

func (v *txView) EntriesByEmployee(ctx context.Context, employeeID tips.EmployeeID) ([]tips.LedgerEntry, error) {
	return entriesByEmployee(ctx, v.tx, employeeID)
}

func (v *txView) EntriesByOrder(ctx context.Context, orderID tips.OrderID) ([]tips.LedgerEntry, error) {
	return entriesByOrder(ctx, v.tx, orderID)
}

func (v *txView) EntriesByGroup(ctx context.Context, groupID tips.GroupID) ([]tips.LedgerEntry, error) {
	return entriesByGroup(ctx, v.tx, groupID)
}

func (v *txView) SaveGroup(ctx context.Context, g tips.TipGroup) error {
	return saveGroup(ctx, v.tx, g)
}

func (v *txView) GetGroup(ctx context.Context, id tips.GroupID) (*tips.TipGroup, error) {
	return getGroup(ctx, v.tx, id)
}

func (v *txView) ActiveGroupByTemplate(ctx context.Context, templateID tips.TemplateID) (*tips.TipGroup, error) {
	return activeGroupByTemplate(ctx, v.tx, templateID)
}

func (v *txView) ActiveGroups(ctx context.Context) ([]tips.TipGroup, error) {
	return activeGroups(ctx, v.tx)
}

func (v *txView) SaveSegment(ctx context.Context, seg tips.TipGroupSegment) error {
	return saveSegment(ctx, v.tx, seg)
}

func (v *txView) Segments(ctx context.Context, groupID tips.GroupID) ([]tips.TipGroupSegment, error) {
	return segments(ctx, v.tx, groupID)
}

func (v *txView) OpenSegment(ctx context.Context, groupID tips.GroupID) (*tips.TipGroupSegment, error) {
	return openSegment(ctx, v.tx, groupID)
}

func (v *txView) ActiveMembership(ctx context.Context, employeeID tips.EmployeeID) (*tips.TipGroup, error) {
	return activeMembership(ctx, v.tx, employeeID)
}

func (v *txView) SaveTemplate(ctx context.Context, t tips.TipGroupTemplate) error {
	return saveTemplate(ctx, v.tx, t)
}

func (v *txView) GetTemplate(ctx context.Context, id tips.TemplateID) (*tips.TipGroupTemplate, error) {
	return getTemplate(ctx, v.tx, id)
}

func (v *txView) ActiveTemplates(ctx context.Context) ([]tips.TipGroupTemplate, error) {
	return activeTemplates(ctx, v.tx)
}

func (v *txView) SaveOwnership(ctx context.Context, rec tips.OwnershipRecord) error {
	return saveOwnership(ctx, v.tx, rec, false)
}

func (v *txView) GetOwnership(ctx context.Context, orderID tips.OrderID) (*tips.OwnershipRecord, error) {
	return getOwnership(ctx, v.tx, orderID)
}

func (v *txView) ReplaceOwnership(ctx context.Context, rec tips.OwnershipRecord) error {
	return saveOwnership(ctx, v.tx, rec, true)
}

func (v *txView) SaveRule(ctx context.Context, r tips.TipOutRule) error {
	return saveRule(ctx, v.tx, r)
}

func (v *txView) RulesForGiver(ctx context.Context, giverRoleID tips.RoleID) ([]tips.TipOutRule, error) {
	return rulesForGiver(ctx, v.tx, giverRoleID)
}

func (v *txView) SaveAdjustment(ctx context.Context, a tips.TipAdjustment) error {
	return saveAdjustment(ctx, v.tx, a)
}

func (v *txView) GetAdjustment(ctx context.Context, id tips.AdjustmentID) (*tips.TipAdjustment, error) {
	return getAdjustment(ctx, v.tx, id)
}

func (v *txView) ListAdjustments(ctx context.Context, from, to time.Time) ([]tips.TipAdjustment, error) {
	return listAdjustments(ctx, v.tx, from, to)
}
