/*
binder.go - Template/clock-in binder

PURPOSE:
  Maps an employee's clock-in role selection to a runtime tip group via
  admin-authored templates: filter eligible templates for the role, then
  find-or-create the active group backing the chosen template and add
  the employee to it.

FIRE-AND-FORGET BOUNDARY:
  HandleClockIn is the one place in the system where a ledger-adjacent
  error is deliberately not propagated. The clock-in itself has already
  committed in its own unit of work before pooling is attempted; a
  pooling failure (most commonly ErrAlreadyInGroup) is logged for the
  operator and the clock-in stands. A manager fixes a missed pooling
  assignment later through the adjustment engine.

CONCURRENCY:
  AssignToTemplate serializes through the group engine's transition
  lock, so two concurrent clock-ins selecting the same template cannot
  create two groups for one template or corrupt segment boundaries.

SEE ALSO:
  - group.go: CreateGroup / AddMember
  - errors.go: Propagation policy
*/
package tips

import (
	"context"
	"log"
)

// =============================================================================
// BINDER
// =============================================================================

type Binder struct {
	store  Store
	groups *GroupEngine
	logger *log.Logger
}

func NewBinder(store Store, groups *GroupEngine, logger *log.Logger) *Binder {
	if logger == nil {
		logger = log.Default()
	}
	return &Binder{store: store, groups: groups, logger: logger}
}

// EligibleTemplates returns active templates whose allowed roles are empty
// or contain the given role.
func (b *Binder) EligibleTemplates(ctx context.Context, roleID RoleID) ([]TipGroupTemplate, error) {
	templates, err := b.store.ActiveTemplates(ctx)
	if err != nil {
		return nil, err
	}
	var out []TipGroupTemplate
	for _, t := range templates {
		if t.AllowsRole(roleID) {
			out = append(out, t)
		}
	}
	return out, nil
}

// AssignToTemplate finds the active group backed by the template, creating
// one if none exists, and adds the employee to it.
func (b *Binder) AssignToTemplate(ctx context.Context, employeeID EmployeeID, templateID TemplateID) (GroupID, error) {
	tmpl, err := b.store.GetTemplate(ctx, templateID)
	if err != nil {
		return "", err
	}
	if tmpl == nil || !tmpl.Active {
		return "", ErrTemplateNotFound
	}

	b.groups.mu.Lock()
	defer b.groups.mu.Unlock()

	group, err := b.store.ActiveGroupByTemplate(ctx, templateID)
	if err != nil {
		return "", err
	}
	if group == nil {
		return b.groups.createGroupLocked(ctx, b.store, templateID, tmpl.DefaultSplitMode, employeeID)
	}
	if _, err := b.groups.addMemberLocked(ctx, b.store, group.ID, employeeID); err != nil {
		return "", err
	}
	return group.ID, nil
}

// HandleClockIn attempts the pooling assignment for a clock-in event.
// Never returns an error: assignment failure is logged and must not block
// the clock-in, which already committed in its own unit of work.
func (b *Binder) HandleClockIn(ctx context.Context, ev ClockInEvent) {
	if ev.SelectedTemplateID == "" {
		return
	}
	if gid, err := b.AssignToTemplate(ctx, ev.EmployeeID, ev.SelectedTemplateID); err != nil {
		b.logger.Printf("clock-in pooling assignment skipped: employee=%s template=%s: %v",
			ev.EmployeeID, ev.SelectedTemplateID, err)
	} else {
		b.logger.Printf("clock-in pooled: employee=%s group=%s", ev.EmployeeID, gid)
	}
}
