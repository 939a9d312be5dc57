/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates templates, rules,
	groups, and settlements that demonstrate specific features.

AVAILABLE SCENARIOS:

	solo-server:        Direct tips and a cash payout, no pooling
	pooled-night:       Template-backed pool with a mid-shift join
	tipout-shift:       Shift close running a server-to-busser tip-out
	manager-correction: Pooled credit fixed by a boundary adjustment

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create templates and tip-out rules
 3. Record collaborator facts (roles, rosters)
 4. Clock in employees and pool them
 5. Settle orders and optionally close a shift or apply an adjustment

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "pooled-night"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Endpoint handlers the scenarios exercise
  - tips/binder.go: Clock-in pooling used by pooled scenarios
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/GetwithitMan/gwi-pos-sub001/tips"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "solo-server",
		Name:        "Solo Server",
		Description: "Two settled orders with direct tips and a cash payout",
		Category:    "ledger",
	},
	{
		ID:          "pooled-night",
		Name:        "Pooled Night",
		Description: "Server pool from a template, with a third server joining mid-shift",
		Category:    "pooling",
	},
	{
		ID:          "tipout-shift",
		Name:        "Tip-Out Shift",
		Description: "Shift close running a 3% server-to-busser tip-out on gross tips",
		Category:    "tipouts",
	},
	{
		ID:          "manager-correction",
		Name:        "Manager Correction",
		Description: "Pool credit paid before a late join, fixed by a boundary adjustment",
		Category:    "adjustments",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// ResetDatabase wipes all stored state. Development only.
// POST /api/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	var err error
	switch req.ScenarioID {
	case "solo-server":
		err = h.loadSoloServerScenario(ctx)
	case "pooled-night":
		err = h.loadPooledNightScenario(ctx)
	case "tipout-shift":
		err = h.loadTipOutShiftScenario(ctx)
	case "manager-correction":
		err = h.loadManagerCorrectionScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadSoloServerScenario(ctx context.Context) error {
	h.Facts.RecordRole("emp-alice", "server")

	// Two orders, tips attributed to the one server who rang the items
	_, err := h.Ownership.SettleOrder(ctx, tips.Settlement{
		OrderID:           "order-solo-1",
		TipAmount:         demoMoney("8.00"),
		Subtotal:          demoMoney("42.00"),
		Items:             []tips.SettledItem{demoItem("ribeye", "42.00", "emp-alice")},
		CreatorEmployeeID: "emp-alice",
	})
	if err != nil {
		return err
	}
	_, err = h.Ownership.SettleOrder(ctx, tips.Settlement{
		OrderID:           "order-solo-2",
		TipAmount:         demoMoney("5.50"),
		Subtotal:          demoMoney("23.00"),
		Items:             []tips.SettledItem{demoItem("pasta", "23.00", "emp-alice")},
		CreatorEmployeeID: "emp-alice",
	})
	if err != nil {
		return err
	}

	// Partial cash payout against the running balance
	now := time.Now()
	_, err = h.Ledger.Append(ctx, tips.LedgerEntry{
		ID:             tips.EntryID(uuid.NewString()),
		EmployeeID:     "emp-alice",
		Amount:         demoMoney("10.00").Neg(),
		Type:           tips.EntryPayoutCash,
		Reason:         "End of night cash out",
		IdempotencyKey: "demo:payout:emp-alice",
		EffectiveAt:    now,
		CreatedAt:      now,
	})
	return err
}

func (h *Handler) loadPooledNightScenario(ctx context.Context) error {
	if err := h.Store.SaveTemplate(ctx, tips.TipGroupTemplate{
		ID:               "tmpl-servers",
		Name:             "Dinner Servers Pool",
		AllowedRoleIDs:   []tips.RoleID{"server"},
		DefaultSplitMode: tips.SplitEqual,
		Active:           true,
	}); err != nil {
		return err
	}

	// Two servers clock in and pool via the template
	for _, emp := range []tips.EmployeeID{"emp-alice", "emp-bob"} {
		h.Facts.RecordRole(emp, "server")
		if _, err := h.Binder.AssignToTemplate(ctx, emp, "tmpl-servers"); err != nil {
			return err
		}
	}

	_, err := h.Ownership.SettleOrder(ctx, tips.Settlement{
		OrderID:           "order-pool-1",
		TipAmount:         demoMoney("12.00"),
		Subtotal:          demoMoney("60.00"),
		Items:             []tips.SettledItem{demoItem("table-7", "60.00", "emp-alice")},
		CreatorEmployeeID: "emp-alice",
	})
	if err != nil {
		return err
	}

	// A third server arrives mid-shift; later credits split three ways
	h.Facts.RecordRole("emp-carol", "server")
	if _, err := h.Binder.AssignToTemplate(ctx, "emp-carol", "tmpl-servers"); err != nil {
		return err
	}

	_, err = h.Ownership.SettleOrder(ctx, tips.Settlement{
		OrderID:           "order-pool-2",
		TipAmount:         demoMoney("9.00"),
		Subtotal:          demoMoney("45.00"),
		Items:             []tips.SettledItem{demoItem("table-9", "45.00", "emp-bob")},
		CreatorEmployeeID: "emp-bob",
	})
	return err
}

func (h *Handler) loadTipOutShiftScenario(ctx context.Context) error {
	if err := h.Store.SaveRule(ctx, tips.TipOutRule{
		ID:             "rule-server-busser",
		GiverRoleID:    "server",
		ReceiverRoleID: "busser",
		Percent:        decimal.NewFromInt(3),
		Basis:          tips.BasisGrossTips,
	}); err != nil {
		return err
	}

	shiftID := tips.ShiftID("shift-demo-1")
	h.Facts.RecordRole("emp-alice", "server")
	h.Facts.RecordOnShift(shiftID, "server", "emp-alice")
	h.Facts.RecordOnShift(shiftID, "busser", "emp-bob")
	h.Facts.RecordOnShift(shiftID, "busser", "emp-carol")

	for i, tip := range []string{"20.00", "14.00"} {
		_, err := h.Ownership.SettleOrder(ctx, tips.Settlement{
			OrderID:           tips.OrderID(fmt.Sprintf("order-shift-%d", i+1)),
			TipAmount:         demoMoney(tip),
			Subtotal:          demoMoney("50.00"),
			Items:             []tips.SettledItem{demoItem("check", "50.00", "emp-alice")},
			CreatorEmployeeID: "emp-alice",
		})
		if err != nil {
			return err
		}
	}

	// Close the shift; 3% of $34.00 gross moves to the two bussers
	now := time.Now()
	_, err := h.TipOuts.ApplyTipOuts(ctx, tips.Shift{
		ID:         shiftID,
		EmployeeID: "emp-alice",
		StartAt:    now.Add(-8 * time.Hour),
		EndAt:      now.Add(time.Minute),
	})
	return err
}

func (h *Handler) loadManagerCorrectionScenario(ctx context.Context) error {
	h.Facts.RecordRole("emp-alice", "server")
	h.Facts.RecordRole("emp-bob", "server")

	groupID, err := h.Groups.CreateGroup(ctx, "", tips.SplitEqual, "emp-alice")
	if err != nil {
		return err
	}
	if _, err := h.Groups.AddMember(ctx, groupID, "emp-bob"); err != nil {
		return err
	}

	// Credit lands on the current segment, split between both members
	if _, err := h.Ownership.SettleOrder(ctx, tips.Settlement{
		OrderID:           "order-fix-1",
		TipAmount:         demoMoney("16.00"),
		Subtotal:          demoMoney("80.00"),
		Items:             []tips.SettledItem{demoItem("banquet", "80.00", "emp-alice")},
		CreatorEmployeeID: "emp-alice",
	}); err != nil {
		return err
	}

	// Manager fix: bob actually left before the banquet settled, so his
	// segment ends earlier and the replay claws his share back
	segments, err := h.Store.Segments(ctx, groupID)
	if err != nil {
		return err
	}
	open := segments[len(segments)-1]
	endAt := open.StartAt.Add(time.Nanosecond)
	if err := h.Groups.RemoveMember(ctx, groupID, "emp-bob"); err != nil {
		return err
	}
	_, err = h.Adjustments.ApplyAdjustment(ctx, tips.AdjustmentRequest{
		Type:      tips.AdjustGroupMembership,
		Reason:    "Bob left before the banquet check closed",
		ManagerID: "emp-manager",
		GroupID:   groupID,
		SegmentID: open.ID,
		NewEndAt:  &endAt,
	})
	return err
}

// =============================================================================
// LOADER HELPERS
// =============================================================================

func demoMoney(s string) tips.Money {
	return tips.MustParseMoney(s)
}

func demoItem(id, amount string, owners ...tips.EmployeeID) tips.SettledItem {
	return tips.SettledItem{ItemID: id, Amount: demoMoney(amount), OwnerEmployeeIDs: owners}
}
