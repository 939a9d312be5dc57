/*
facts.go - In-process cache of collaborator facts

PURPOSE:
  The engine consumes read-only facts from other subsystems: employee
  roles and role weights, hours worked per segment, shift rosters, and
  net sales. FactBook is a small thread-safe implementation of those
  provider interfaces, fed by the API's fact intake endpoints (or by
  tests directly). It holds facts, not money: nothing here is part of
  the ledger's correctness surface.
*/
package tips

import (
	"sync"

	"github.com/shopspring/decimal"
)

// FactBook implements HoursProvider, RoleProvider, RosterProvider, and
// SalesProvider over in-memory maps.
type FactBook struct {
	mu          sync.RWMutex
	roles       map[EmployeeID]RoleID
	roleWeights map[RoleID]decimal.Decimal
	hours       map[EmployeeID]map[SegmentID]decimal.Decimal
	roster      map[ShiftID]map[RoleID][]EmployeeID
	netSales    map[ShiftID]map[EmployeeID]Money
}

func NewFactBook() *FactBook {
	return &FactBook{
		roles:       map[EmployeeID]RoleID{},
		roleWeights: map[RoleID]decimal.Decimal{},
		hours:       map[EmployeeID]map[SegmentID]decimal.Decimal{},
		roster:      map[ShiftID]map[RoleID][]EmployeeID{},
		netSales:    map[ShiftID]map[EmployeeID]Money{},
	}
}

// =============================================================================
// RECORDERS - fed by the API intake or tests
// =============================================================================

func (f *FactBook) RecordRole(employeeID EmployeeID, roleID RoleID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[employeeID] = roleID
}

func (f *FactBook) RecordRoleWeight(roleID RoleID, weight decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roleWeights[roleID] = weight
}

func (f *FactBook) RecordHours(employeeID EmployeeID, segmentID SegmentID, hours decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hours[employeeID] == nil {
		f.hours[employeeID] = map[SegmentID]decimal.Decimal{}
	}
	f.hours[employeeID][segmentID] = hours
}

func (f *FactBook) RecordOnShift(shiftID ShiftID, roleID RoleID, employeeID EmployeeID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roster[shiftID] == nil {
		f.roster[shiftID] = map[RoleID][]EmployeeID{}
	}
	for _, e := range f.roster[shiftID][roleID] {
		if e == employeeID {
			return
		}
	}
	f.roster[shiftID][roleID] = append(f.roster[shiftID][roleID], employeeID)
}

func (f *FactBook) RecordNetSales(shiftID ShiftID, employeeID EmployeeID, amount Money) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.netSales[shiftID] == nil {
		f.netSales[shiftID] = map[EmployeeID]Money{}
	}
	f.netSales[shiftID][employeeID] = amount
}

// =============================================================================
// PROVIDER INTERFACES
// =============================================================================

func (f *FactBook) RoleOf(employeeID EmployeeID) (RoleID, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	r, ok := f.roles[employeeID]
	return r, ok
}

func (f *FactBook) RoleWeight(roleID RoleID) decimal.Decimal {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if w, ok := f.roleWeights[roleID]; ok {
		return w
	}
	return decimal.NewFromInt(1)
}

func (f *FactBook) HoursWorked(employeeID EmployeeID, segmentID SegmentID) (decimal.Decimal, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	h, ok := f.hours[employeeID][segmentID]
	return h, ok
}

func (f *FactBook) OnShift(shiftID ShiftID, roleID RoleID) []EmployeeID {
	f.mu.RLock()
	defer f.mu.RUnlock()
	src := f.roster[shiftID][roleID]
	out := make([]EmployeeID, len(src))
	copy(out, src)
	return out
}

func (f *FactBook) NetSales(employeeID EmployeeID, shiftID ShiftID) Money {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.netSales[shiftID][employeeID]
}
