// Package store provides an in-memory tips.TxStore implementation for
// tests and development. The production implementation lives in
// store/sqlite.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/GetwithitMan/gwi-pos-sub001/tips"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	entries     []tips.LedgerEntry
	idempotency map[string]tips.EntryID
	groups      map[tips.GroupID]tips.TipGroup
	segments    map[tips.GroupID][]tips.TipGroupSegment
	templates   map[tips.TemplateID]tips.TipGroupTemplate
	ownerships  map[tips.OrderID]tips.OwnershipRecord
	rules       []tips.TipOutRule
	adjustments map[tips.AdjustmentID]tips.TipAdjustment
}

func NewMemory() *Memory {
	return &Memory{
		idempotency: map[string]tips.EntryID{},
		groups:      map[tips.GroupID]tips.TipGroup{},
		segments:    map[tips.GroupID][]tips.TipGroupSegment{},
		templates:   map[tips.TemplateID]tips.TipGroupTemplate{},
		ownerships:  map[tips.OrderID]tips.OwnershipRecord{},
		adjustments: map[tips.AdjustmentID]tips.TipAdjustment{},
	}
}

// =============================================================================
// ENTRY STORE - append-only
// =============================================================================

func (m *Memory) AppendEntry(_ context.Context, e tips.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendEntryLocked(e)
}

func (m *Memory) AppendEntries(_ context.Context, es []tips.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendEntriesLocked(es)
}

func (m *Memory) appendEntriesLocked(es []tips.LedgerEntry) error {
	for _, e := range es {
		if e.IdempotencyKey != "" {
			if _, exists := m.idempotency[e.IdempotencyKey]; exists {
				return tips.ErrDuplicateIdempotencyKey
			}
		}
	}
	for _, e := range es {
		if err := m.appendEntryLocked(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) appendEntryLocked(e tips.LedgerEntry) error {
	if e.IdempotencyKey != "" {
		if _, exists := m.idempotency[e.IdempotencyKey]; exists {
			return tips.ErrDuplicateIdempotencyKey
		}
		m.idempotency[e.IdempotencyKey] = e.ID
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *Memory) EntryByIdempotencyKey(_ context.Context, key string) (*tips.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entryByKeyLocked(key), nil
}

func (m *Memory) entryByKeyLocked(key string) *tips.LedgerEntry {
	id, ok := m.idempotency[key]
	if !ok {
		return nil
	}
	for i := range m.entries {
		if m.entries[i].ID == id {
			e := m.entries[i]
			return &e
		}
	}
	return nil
}

func (m *Memory) EntriesByEmployee(_ context.Context, employeeID tips.EmployeeID) ([]tips.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterLocked(func(e tips.LedgerEntry) bool { return e.EmployeeID == employeeID }), nil
}

func (m *Memory) EntriesByOrder(_ context.Context, orderID tips.OrderID) ([]tips.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterLocked(func(e tips.LedgerEntry) bool { return e.ReferenceOrderID == orderID }), nil
}

func (m *Memory) EntriesByGroup(_ context.Context, groupID tips.GroupID) ([]tips.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterLocked(func(e tips.LedgerEntry) bool { return e.ReferenceGroupID == groupID }), nil
}

func (m *Memory) filterLocked(keep func(tips.LedgerEntry) bool) []tips.LedgerEntry {
	var out []tips.LedgerEntry
	for _, e := range m.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// =============================================================================
// GROUP STORE
// =============================================================================

func (m *Memory) SaveGroup(_ context.Context, g tips.TipGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveGroupLocked(g)
	return nil
}

func (m *Memory) saveGroupLocked(g tips.TipGroup) {
	m.groups[g.ID] = g
}

func (m *Memory) GetGroup(_ context.Context, id tips.GroupID) (*tips.TipGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getGroupLocked(id), nil
}

func (m *Memory) getGroupLocked(id tips.GroupID) *tips.TipGroup {
	if g, ok := m.groups[id]; ok {
		return &g
	}
	return nil
}

func (m *Memory) ActiveGroupByTemplate(_ context.Context, templateID tips.TemplateID) (*tips.TipGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeGroupByTemplateLocked(templateID), nil
}

func (m *Memory) activeGroupByTemplateLocked(templateID tips.TemplateID) *tips.TipGroup {
	for _, g := range m.groups {
		if g.TemplateID == templateID && g.Status == tips.GroupActive {
			out := g
			return &out
		}
	}
	return nil
}

func (m *Memory) ActiveGroups(_ context.Context) ([]tips.TipGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeGroupsLocked(), nil
}

func (m *Memory) activeGroupsLocked() []tips.TipGroup {
	var out []tips.TipGroup
	for _, g := range m.groups {
		if g.Status == tips.GroupActive {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) SaveSegment(_ context.Context, s tips.TipGroupSegment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveSegmentLocked(s)
	return nil
}

func (m *Memory) saveSegmentLocked(s tips.TipGroupSegment) {
	segs := m.segments[s.GroupID]
	for i := range segs {
		if segs[i].ID == s.ID {
			segs[i] = s
			m.sortSegmentsLocked(s.GroupID)
			return
		}
	}
	m.segments[s.GroupID] = append(segs, s)
	m.sortSegmentsLocked(s.GroupID)
}

func (m *Memory) sortSegmentsLocked(groupID tips.GroupID) {
	segs := m.segments[groupID]
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].StartAt.Before(segs[j].StartAt) })
}

func (m *Memory) Segments(_ context.Context, groupID tips.GroupID) ([]tips.TipGroupSegment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.segmentsLocked(groupID), nil
}

func (m *Memory) segmentsLocked(groupID tips.GroupID) []tips.TipGroupSegment {
	out := make([]tips.TipGroupSegment, len(m.segments[groupID]))
	copy(out, m.segments[groupID])
	return out
}

func (m *Memory) OpenSegment(_ context.Context, groupID tips.GroupID) (*tips.TipGroupSegment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.openSegmentLocked(groupID), nil
}

func (m *Memory) openSegmentLocked(groupID tips.GroupID) *tips.TipGroupSegment {
	for _, s := range m.segments[groupID] {
		if s.IsOpen() {
			out := s
			return &out
		}
	}
	return nil
}

func (m *Memory) ActiveMembership(_ context.Context, employeeID tips.EmployeeID) (*tips.TipGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeMembershipLocked(employeeID), nil
}

func (m *Memory) activeMembershipLocked(employeeID tips.EmployeeID) *tips.TipGroup {
	for gid, segs := range m.segments {
		g, ok := m.groups[gid]
		if !ok || g.Status != tips.GroupActive {
			continue
		}
		for _, s := range segs {
			if s.IsOpen() && s.HasMember(employeeID) {
				out := g
				return &out
			}
		}
	}
	return nil
}

// =============================================================================
// TEMPLATE STORE
// =============================================================================

func (m *Memory) SaveTemplate(_ context.Context, t tips.TipGroupTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[t.ID] = t
	return nil
}

func (m *Memory) GetTemplate(_ context.Context, id tips.TemplateID) (*tips.TipGroupTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTemplateLocked(id), nil
}

func (m *Memory) getTemplateLocked(id tips.TemplateID) *tips.TipGroupTemplate {
	if t, ok := m.templates[id]; ok {
		return &t
	}
	return nil
}

func (m *Memory) ActiveTemplates(_ context.Context) ([]tips.TipGroupTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeTemplatesLocked(), nil
}

func (m *Memory) activeTemplatesLocked() []tips.TipGroupTemplate {
	var out []tips.TipGroupTemplate
	for _, t := range m.templates {
		if t.Active {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// =============================================================================
// OWNERSHIP STORE
// =============================================================================

func (m *Memory) SaveOwnership(_ context.Context, rec tips.OwnershipRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveOwnershipLocked(rec)
}

func (m *Memory) saveOwnershipLocked(rec tips.OwnershipRecord) error {
	if _, exists := m.ownerships[rec.OrderID]; exists {
		return tips.ErrOwnershipExists
	}
	m.ownerships[rec.OrderID] = rec
	return nil
}

func (m *Memory) GetOwnership(_ context.Context, orderID tips.OrderID) (*tips.OwnershipRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getOwnershipLocked(orderID), nil
}

func (m *Memory) getOwnershipLocked(orderID tips.OrderID) *tips.OwnershipRecord {
	if rec, ok := m.ownerships[orderID]; ok {
		return &rec
	}
	return nil
}

func (m *Memory) ReplaceOwnership(_ context.Context, rec tips.OwnershipRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replaceOwnershipLocked(rec)
}

func (m *Memory) replaceOwnershipLocked(rec tips.OwnershipRecord) error {
	if _, exists := m.ownerships[rec.OrderID]; !exists {
		return tips.ErrOrderNotResolved
	}
	m.ownerships[rec.OrderID] = rec
	return nil
}

// =============================================================================
// RULE / ADJUSTMENT STORES
// =============================================================================

func (m *Memory) SaveRule(_ context.Context, r tips.TipOutRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveRuleLocked(r)
	return nil
}

func (m *Memory) saveRuleLocked(r tips.TipOutRule) {
	for i := range m.rules {
		if m.rules[i].ID == r.ID {
			m.rules[i] = r
			return
		}
	}
	m.rules = append(m.rules, r)
}

func (m *Memory) RulesForGiver(_ context.Context, giverRoleID tips.RoleID) ([]tips.TipOutRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rulesForGiverLocked(giverRoleID), nil
}

func (m *Memory) rulesForGiverLocked(giverRoleID tips.RoleID) []tips.TipOutRule {
	var out []tips.TipOutRule
	for _, r := range m.rules {
		if r.GiverRoleID == giverRoleID {
			out = append(out, r)
		}
	}
	return out
}

func (m *Memory) SaveAdjustment(_ context.Context, a tips.TipAdjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adjustments[a.ID] = a
	return nil
}

func (m *Memory) GetAdjustment(_ context.Context, id tips.AdjustmentID) (*tips.TipAdjustment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAdjustmentLocked(id), nil
}

func (m *Memory) getAdjustmentLocked(id tips.AdjustmentID) *tips.TipAdjustment {
	if a, ok := m.adjustments[id]; ok {
		return &a
	}
	return nil
}

func (m *Memory) ListAdjustments(_ context.Context, from, to time.Time) ([]tips.TipAdjustment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAdjustmentsLocked(from, to), nil
}

func (m *Memory) listAdjustmentsLocked(from, to time.Time) []tips.TipAdjustment {
	var out []tips.TipAdjustment
	for _, a := range m.adjustments {
		if !from.IsZero() && a.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && a.CreatedAt.After(to) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// =============================================================================
// ATOMIC UNITS - snapshot + rollback on error
// =============================================================================

// WithTx simulates a transaction with a full snapshot: the lock is held
// for the whole unit, fn runs against an unlocked view, and a failure
// restores the snapshot. Holding the lock throughout means a rollback can
// never erase writes committed by concurrent callers.
func (m *Memory) WithTx(_ context.Context, fn func(tips.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshotLocked()
	if err := fn(&txMemoryView{parent: m}); err != nil {
		m.restoreLocked(snapshot)
		return err
	}
	return nil
}

// Reset drops all stored state. Development and demo use only.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	m.idempotency = map[string]tips.EntryID{}
	m.groups = map[tips.GroupID]tips.TipGroup{}
	m.segments = map[tips.GroupID][]tips.TipGroupSegment{}
	m.templates = map[tips.TemplateID]tips.TipGroupTemplate{}
	m.ownerships = map[tips.OrderID]tips.OwnershipRecord{}
	m.rules = nil
	m.adjustments = map[tips.AdjustmentID]tips.TipAdjustment{}
	return nil
}

type memorySnapshot struct {
	entries     []tips.LedgerEntry
	idempotency map[string]tips.EntryID
	groups      map[tips.GroupID]tips.TipGroup
	segments    map[tips.GroupID][]tips.TipGroupSegment
	templates   map[tips.TemplateID]tips.TipGroupTemplate
	ownerships  map[tips.OrderID]tips.OwnershipRecord
	rules       []tips.TipOutRule
	adjustments map[tips.AdjustmentID]tips.TipAdjustment
}

func (m *Memory) snapshotLocked() memorySnapshot {
	s := memorySnapshot{
		entries:     append([]tips.LedgerEntry{}, m.entries...),
		idempotency: map[string]tips.EntryID{},
		groups:      map[tips.GroupID]tips.TipGroup{},
		segments:    map[tips.GroupID][]tips.TipGroupSegment{},
		templates:   map[tips.TemplateID]tips.TipGroupTemplate{},
		ownerships:  map[tips.OrderID]tips.OwnershipRecord{},
		rules:       append([]tips.TipOutRule{}, m.rules...),
		adjustments: map[tips.AdjustmentID]tips.TipAdjustment{},
	}
	for k, v := range m.idempotency {
		s.idempotency[k] = v
	}
	for k, v := range m.groups {
		s.groups[k] = v
	}
	for k, v := range m.segments {
		s.segments[k] = append([]tips.TipGroupSegment{}, v...)
	}
	for k, v := range m.templates {
		s.templates[k] = v
	}
	for k, v := range m.ownerships {
		s.ownerships[k] = v
	}
	for k, v := range m.adjustments {
		s.adjustments[k] = v
	}
	return s
}

func (m *Memory) restoreLocked(s memorySnapshot) {
	m.entries = s.entries
	m.idempotency = s.idempotency
	m.groups = s.groups
	m.segments = s.segments
	m.templates = s.templates
	m.ownerships = s.ownerships
	m.rules = s.rules
	m.adjustments = s.adjustments
}

// =============================================================================
// TRANSACTIONAL VIEW - unlocked access while WithTx holds the lock
// =============================================================================

type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) AppendEntry(_ context.Context, e tips.LedgerEntry) error {
	return tv.parent.appendEntryLocked(e)
}

func (tv *txMemoryView) AppendEntries(_ context.Context, es []tips.LedgerEntry) error {
	return tv.parent.appendEntriesLocked(es)
}

func (tv *txMemoryView) EntryByIdempotencyKey(_ context.Context, key string) (*tips.LedgerEntry, error) {
	return tv.parent.entryByKeyLocked(key), nil
}

func (tv *txMemoryView) EntriesByEmployee(_ context.Context, employeeID tips.EmployeeID) ([]tips.LedgerEntry, error) {
	return tv.parent.filterLocked(func(e tips.LedgerEntry) bool { return e.EmployeeID == employeeID }), nil
}

func (tv *txMemoryView) EntriesByOrder(_ context.Context, orderID tips.OrderID) ([]tips.LedgerEntry, error) {
	return tv.parent.filterLocked(func(e tips.LedgerEntry) bool { return e.ReferenceOrderID == orderID }), nil
}

func (tv *txMemoryView) EntriesByGroup(_ context.Context, groupID tips.GroupID) ([]tips.LedgerEntry, error) {
	return tv.parent.filterLocked(func(e tips.LedgerEntry) bool { return e.ReferenceGroupID == groupID }), nil
}

func (tv *txMemoryView) SaveGroup(_ context.Context, g tips.TipGroup) error {
	tv.parent.saveGroupLocked(g)
	return nil
}

func (tv *txMemoryView) GetGroup(_ context.Context, id tips.GroupID) (*tips.TipGroup, error) {
	return tv.parent.getGroupLocked(id), nil
}

func (tv *txMemoryView) ActiveGroupByTemplate(_ context.Context, templateID tips.TemplateID) (*tips.TipGroup, error) {
	return tv.parent.activeGroupByTemplateLocked(templateID), nil
}

func (tv *txMemoryView) ActiveGroups(_ context.Context) ([]tips.TipGroup, error) {
	return tv.parent.activeGroupsLocked(), nil
}

func (tv *txMemoryView) SaveSegment(_ context.Context, s tips.TipGroupSegment) error {
	tv.parent.saveSegmentLocked(s)
	return nil
}

func (tv *txMemoryView) Segments(_ context.Context, groupID tips.GroupID) ([]tips.TipGroupSegment, error) {
	return tv.parent.segmentsLocked(groupID), nil
}

func (tv *txMemoryView) OpenSegment(_ context.Context, groupID tips.GroupID) (*tips.TipGroupSegment, error) {
	return tv.parent.openSegmentLocked(groupID), nil
}

func (tv *txMemoryView) ActiveMembership(_ context.Context, employeeID tips.EmployeeID) (*tips.TipGroup, error) {
	return tv.parent.activeMembershipLocked(employeeID), nil
}

func (tv *txMemoryView) SaveTemplate(_ context.Context, t tips.TipGroupTemplate) error {
	tv.parent.templates[t.ID] = t
	return nil
}

func (tv *txMemoryView) GetTemplate(_ context.Context, id tips.TemplateID) (*tips.TipGroupTemplate, error) {
	return tv.parent.getTemplateLocked(id), nil
}

func (tv *txMemoryView) ActiveTemplates(_ context.Context) ([]tips.TipGroupTemplate, error) {
	return tv.parent.activeTemplatesLocked(), nil
}

func (tv *txMemoryView) SaveOwnership(_ context.Context, rec tips.OwnershipRecord) error {
	return tv.parent.saveOwnershipLocked(rec)
}

func (tv *txMemoryView) GetOwnership(_ context.Context, orderID tips.OrderID) (*tips.OwnershipRecord, error) {
	return tv.parent.getOwnershipLocked(orderID), nil
}

func (tv *txMemoryView) ReplaceOwnership(_ context.Context, rec tips.OwnershipRecord) error {
	return tv.parent.replaceOwnershipLocked(rec)
}

func (tv *txMemoryView) SaveRule(_ context.Context, r tips.TipOutRule) error {
	tv.parent.saveRuleLocked(r)
	return nil
}

func (tv *txMemoryView) RulesForGiver(_ context.Context, giverRoleID tips.RoleID) ([]tips.TipOutRule, error) {
	return tv.parent.rulesForGiverLocked(giverRoleID), nil
}

func (tv *txMemoryView) SaveAdjustment(_ context.Context, a tips.TipAdjustment) error {
	tv.parent.adjustments[a.ID] = a
	return nil
}

func (tv *txMemoryView) GetAdjustment(_ context.Context, id tips.AdjustmentID) (*tips.TipAdjustment, error) {
	return tv.parent.getAdjustmentLocked(id), nil
}

func (tv *txMemoryView) ListAdjustments(_ context.Context, from, to time.Time) ([]tips.TipAdjustment, error) {
	return tv.parent.listAdjustmentsLocked(from, to), nil
}
