/*
handlers.go - HTTP API handlers for the tip ledger engine

PURPOSE:
  Exposes the tip engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Employees:
    GET    /api/employees/{id}/balance   Running tip balance
    GET    /api/employees/{id}/ledger    Ledger entry history

  Groups:
    GET    /api/groups                   List active groups
    POST   /api/groups                   Open an ad-hoc group
    GET    /api/groups/{id}/history      Segment timeline
    POST   /api/groups/{id}/members      Join a group
    DELETE /api/groups/{id}/members/{employeeId}  Leave a group

  Templates:
    GET    /api/templates                List templates (?role_id= filters)
    POST   /api/templates                Create/update a template

  Events:
    POST   /api/settlements              Order settled; credit tips
    POST   /api/clock-ins                Clock-in (may auto-pool)
    POST   /api/shift-closes             Shift closed; run tip-outs
    POST   /api/payouts                  Cash payout against balance
    POST   /api/facts                    Record collaborator facts

  Adjustments:
    POST   /api/adjustments              Apply a manager correction
    GET    /api/adjustments              List adjustments (?from&to)
    GET    /api/adjustments/{id}         One adjustment record

  Admin:
    POST   /api/tipout-rules             Create/update a tip-out rule
    POST   /api/admin/expire-groups      Close idle groups before cutoff

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (ledger, engines)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (already in group, ownership exists, duplicate)
  - 422: Adjustment failed and rolled back
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/GetwithitMan/gwi-pos-sub001/tips"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       tips.TxStore
	Ledger      *tips.Ledger
	Groups      *tips.GroupEngine
	Ownership   *tips.OwnershipResolver
	TipOuts     *tips.TipOutEngine
	Adjustments *tips.AdjustmentEngine
	Binder      *tips.Binder
	Facts       *tips.FactBook

	currentScenario string
}

// NewHandler creates a handler over a fully wired engine set.
func NewHandler(store tips.TxStore, ledger *tips.Ledger, groups *tips.GroupEngine,
	ownership *tips.OwnershipResolver, tipOuts *tips.TipOutEngine,
	adjustments *tips.AdjustmentEngine, binder *tips.Binder, facts *tips.FactBook) *Handler {
	return &Handler{
		Store:       store,
		Ledger:      ledger,
		Groups:      groups,
		Ownership:   ownership,
		TipOuts:     tipOuts,
		Adjustments: adjustments,
		Binder:      binder,
		Facts:       facts,
	}
}

// =============================================================================
// BALANCE / LEDGER HANDLERS
// =============================================================================

// GetBalance returns the running tip balance for an employee.
// GET /api/employees/{id}/balance?as_of=RFC3339
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	employeeID := tips.EmployeeID(chi.URLParam(r, "id"))

	asOf := time.Now()
	if s := r.URL.Query().Get("as_of"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of (use RFC3339)", err)
			return
		}
		asOf = t
	}

	balance, err := h.Ledger.BalanceAsOf(r.Context(), employeeID, asOf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute balance", err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceDTO{
		EmployeeID: string(employeeID),
		Balance:    balance.String(),
		AsOf:       asOf.UTC().Format(time.RFC3339),
	})
}

// GetLedger returns ledger entries for an employee.
// GET /api/employees/{id}/ledger?from=RFC3339&to=RFC3339&type=group_share
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	employeeID := tips.EmployeeID(chi.URLParam(r, "id"))

	from, to, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid time window (use RFC3339)", err)
		return
	}

	var types []tips.EntryType
	if s := r.URL.Query().Get("type"); s != "" {
		types = append(types, tips.EntryType(s))
	}

	entries, err := h.Ledger.Entries(r.Context(), employeeID, from, to, types...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list entries", err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// =============================================================================
// GROUP HANDLERS
// =============================================================================

// ListGroups returns all active groups.
// GET /api/groups
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Store.ActiveGroups(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list groups", err)
		return
	}

	dtos := make([]GroupDTO, len(groups))
	for i, g := range groups {
		dtos[i] = GroupDTO{
			ID:         string(g.ID),
			TemplateID: string(g.TemplateID),
			Status:     string(g.Status),
			CreatedAt:  g.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateGroup opens an ad-hoc group with one initial member.
// POST /api/groups
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.EmployeeID == "" {
		writeError(w, http.StatusBadRequest, "employee_id is required", nil)
		return
	}
	mode := tips.SplitMode(req.SplitMode)
	switch mode {
	case tips.SplitEqual, tips.SplitHoursWeighted, tips.SplitRoleWeighted:
	default:
		writeError(w, http.StatusBadRequest, "Unknown split_mode", nil)
		return
	}

	groupID, err := h.Groups.CreateGroup(r.Context(), tips.TemplateID(req.TemplateID), mode, tips.EmployeeID(req.EmployeeID))
	if err != nil {
		writeDomainError(w, "Failed to create group", err)
		return
	}

	writeJSON(w, http.StatusCreated, GroupDTO{
		ID:         string(groupID),
		TemplateID: req.TemplateID,
		Status:     string(tips.GroupActive),
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	})
}

// GetGroupHistory returns the segment timeline for a group.
// GET /api/groups/{id}/history
func (h *Handler) GetGroupHistory(w http.ResponseWriter, r *http.Request) {
	groupID := tips.GroupID(chi.URLParam(r, "id"))

	group, err := h.Store.GetGroup(r.Context(), groupID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get group", err)
		return
	}
	if group == nil {
		writeError(w, http.StatusNotFound, "Group not found", nil)
		return
	}

	segs, err := h.Groups.GroupHistory(r.Context(), groupID)
	if err != nil {
		writeDomainError(w, "Failed to get group history", err)
		return
	}

	writeJSON(w, http.StatusOK, GroupDTO{
		ID:         string(group.ID),
		TemplateID: string(group.TemplateID),
		Status:     string(group.Status),
		CreatedAt:  group.CreatedAt.UTC().Format(time.RFC3339),
		Segments:   toSegmentDTOs(segs),
	})
}

// AddMember joins an employee to a group.
// POST /api/groups/{id}/members
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	groupID := tips.GroupID(chi.URLParam(r, "id"))

	var req MemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.EmployeeID == "" {
		writeError(w, http.StatusBadRequest, "employee_id is required", nil)
		return
	}

	segID, err := h.Groups.AddMember(r.Context(), groupID, tips.EmployeeID(req.EmployeeID))
	if err != nil {
		writeDomainError(w, "Failed to add member", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"group_id":   string(groupID),
		"segment_id": string(segID),
	})
}

// RemoveMember removes an employee from a group. Removing the last
// member closes the group.
// DELETE /api/groups/{id}/members/{employeeId}
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	groupID := tips.GroupID(chi.URLParam(r, "id"))
	employeeID := tips.EmployeeID(chi.URLParam(r, "employeeId"))

	if err := h.Groups.RemoveMember(r.Context(), groupID, employeeID); err != nil {
		writeDomainError(w, "Failed to remove member", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// TEMPLATE HANDLERS
// =============================================================================

// ListTemplates returns active templates, optionally filtered by a role.
// GET /api/templates?role_id=server
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	var (
		templates []tips.TipGroupTemplate
		err       error
	)
	if role := r.URL.Query().Get("role_id"); role != "" {
		templates, err = h.Binder.EligibleTemplates(r.Context(), tips.RoleID(role))
	} else {
		templates, err = h.Store.ActiveTemplates(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list templates", err)
		return
	}

	dtos := make([]TemplateDTO, len(templates))
	for i, t := range templates {
		dtos[i] = toTemplateDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTemplate creates or updates a group template.
// POST /api/templates
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	t := tips.TipGroupTemplate{
		ID:               tips.TemplateID(req.ID),
		Name:             req.Name,
		DefaultSplitMode: tips.SplitMode(req.DefaultSplitMode),
		Active:           req.Active,
	}
	for _, role := range req.AllowedRoleIDs {
		t.AllowedRoleIDs = append(t.AllowedRoleIDs, tips.RoleID(role))
	}

	if err := h.Store.SaveTemplate(r.Context(), t); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save template", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTemplateDTO(t))
}

// =============================================================================
// EVENT HANDLERS - Settlement, clock-in, shift close, payout
// =============================================================================

// CreateSettlement processes an order settlement: resolves ownership and
// credits tips to owners or their pools. Safe to retry.
// POST /api/settlements
func (h *Handler) CreateSettlement(w http.ResponseWriter, r *http.Request) {
	var req SettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.OrderID == "" || req.CreatorEmployeeID == "" {
		writeError(w, http.StatusBadRequest, "order_id and creator_employee_id are required", nil)
		return
	}

	tipAmount, err := parseMoney(req.TipAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid tip_amount", err)
		return
	}
	if tipAmount.IsNegative() {
		writeError(w, http.StatusBadRequest, "tip_amount must not be negative", nil)
		return
	}
	subtotal, err := parseMoney(req.Subtotal)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid subtotal", err)
		return
	}

	settlement := tips.Settlement{
		OrderID:           tips.OrderID(req.OrderID),
		TipAmount:         tipAmount,
		Subtotal:          subtotal,
		TableID:           req.TableID,
		CreatorEmployeeID: tips.EmployeeID(req.CreatorEmployeeID),
	}
	for _, item := range req.Items {
		amount, err := parseMoney(item.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid item amount", err)
			return
		}
		si := tips.SettledItem{ItemID: item.ItemID, Amount: amount}
		for _, id := range item.OwnerIDs {
			si.OwnerEmployeeIDs = append(si.OwnerEmployeeIDs, tips.EmployeeID(id))
		}
		settlement.Items = append(settlement.Items, si)
	}

	entries, err := h.Ownership.SettleOrder(r.Context(), settlement)
	if err != nil {
		writeDomainError(w, "Failed to settle order", err)
		return
	}

	writeJSON(w, http.StatusCreated, SettlementResponse{
		OrderID: req.OrderID,
		Entries: toEntryDTOs(entries),
	})
}

// CreateClockIn records a clock-in. Pool assignment is fire-and-forget:
// a pooling failure is logged but never fails the clock-in.
// POST /api/clock-ins
func (h *Handler) CreateClockIn(w http.ResponseWriter, r *http.Request) {
	var req ClockInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.EmployeeID == "" || req.RoleID == "" {
		writeError(w, http.StatusBadRequest, "employee_id and role_id are required", nil)
		return
	}

	h.Facts.RecordRole(tips.EmployeeID(req.EmployeeID), tips.RoleID(req.RoleID))
	h.Binder.HandleClockIn(r.Context(), tips.ClockInEvent{
		EmployeeID:         tips.EmployeeID(req.EmployeeID),
		RoleID:             tips.RoleID(req.RoleID),
		SelectedTemplateID: tips.TemplateID(req.TemplateID),
	})

	w.WriteHeader(http.StatusAccepted)
}

// CreateShiftClose runs tip-out rules for a finished shift. Idempotent
// per shift and rule.
// POST /api/shift-closes
func (h *Handler) CreateShiftClose(w http.ResponseWriter, r *http.Request) {
	var req ShiftCloseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ShiftID == "" || req.EmployeeID == "" {
		writeError(w, http.StatusBadRequest, "shift_id and employee_id are required", nil)
		return
	}
	startAt, err := time.Parse(time.RFC3339, req.StartAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_at (use RFC3339)", err)
		return
	}
	endAt, err := time.Parse(time.RFC3339, req.EndAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_at (use RFC3339)", err)
		return
	}

	entries, err := h.TipOuts.ApplyTipOuts(r.Context(), tips.Shift{
		ID:         tips.ShiftID(req.ShiftID),
		EmployeeID: tips.EmployeeID(req.EmployeeID),
		StartAt:    startAt,
		EndAt:      endAt,
	})
	if err != nil {
		writeDomainError(w, "Failed to apply tip-outs", err)
		return
	}

	writeJSON(w, http.StatusCreated, toEntryDTOs(entries))
}

// CreatePayout records a cash payout as a negative ledger entry.
// POST /api/payouts
func (h *Handler) CreatePayout(w http.ResponseWriter, r *http.Request) {
	var req PayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.EmployeeID == "" || req.IdempotencyKey == "" {
		writeError(w, http.StatusBadRequest, "employee_id and idempotency_key are required", nil)
		return
	}
	amount, err := parseMoney(req.Amount)
	if err != nil || !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "amount must be a positive decimal", err)
		return
	}

	now := time.Now()
	entry := tips.LedgerEntry{
		ID:             tips.EntryID(uuid.NewString()),
		EmployeeID:     tips.EmployeeID(req.EmployeeID),
		Amount:         amount.Neg(),
		Type:           tips.EntryPayoutCash,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
		EffectiveAt:    now,
		CreatedAt:      now,
	}
	id, err := h.Ledger.Append(r.Context(), entry)
	if err != nil {
		writeDomainError(w, "Failed to record payout", err)
		return
	}
	entry.ID = id

	writeJSON(w, http.StatusCreated, toEntryDTO(entry))
}

// RecordFacts records collaborator facts consumed by split resolution
// and tip-out computation.
// POST /api/facts
func (h *Handler) RecordFacts(w http.ResponseWriter, r *http.Request) {
	var req FactsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	for emp, role := range req.Roles {
		h.Facts.RecordRole(tips.EmployeeID(emp), tips.RoleID(role))
	}
	for role, weight := range req.RoleWeights {
		d, err := decimal.NewFromString(weight)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid role weight", err)
			return
		}
		h.Facts.RecordRoleWeight(tips.RoleID(role), d)
	}
	for _, f := range req.Hours {
		d, err := decimal.NewFromString(f.Hours)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid hours", err)
			return
		}
		h.Facts.RecordHours(tips.EmployeeID(f.EmployeeID), tips.SegmentID(f.SegmentID), d)
	}
	for _, f := range req.OnShift {
		h.Facts.RecordOnShift(tips.ShiftID(f.ShiftID), tips.RoleID(f.RoleID), tips.EmployeeID(f.EmployeeID))
	}
	for _, f := range req.NetSales {
		amount, err := parseMoney(f.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid net sales amount", err)
			return
		}
		h.Facts.RecordNetSales(tips.ShiftID(f.ShiftID), tips.EmployeeID(f.EmployeeID), amount)
	}

	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADJUSTMENT HANDLERS
// =============================================================================

// CreateAdjustment applies a manager correction atomically. On failure
// no partial effect remains.
// POST /api/adjustments
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Reason == "" || req.ManagerID == "" {
		writeError(w, http.StatusBadRequest, "reason and manager_id are required", nil)
		return
	}

	domainReq, err := toAdjustmentRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid adjustment request", err)
		return
	}

	adj, err := h.Adjustments.ApplyAdjustment(r.Context(), domainReq)
	if err != nil {
		if errors.Is(err, tips.ErrAdjustmentFailed) {
			writeError(w, http.StatusUnprocessableEntity, "Adjustment failed and was rolled back", err)
			return
		}
		writeDomainError(w, "Failed to apply adjustment", err)
		return
	}

	writeJSON(w, http.StatusCreated, toAdjustmentDTO(adj))
}

// GetAdjustment returns one adjustment record.
// GET /api/adjustments/{id}
func (h *Handler) GetAdjustment(w http.ResponseWriter, r *http.Request) {
	id := tips.AdjustmentID(chi.URLParam(r, "id"))

	adj, err := h.Store.GetAdjustment(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get adjustment", err)
		return
	}
	if adj == nil {
		writeError(w, http.StatusNotFound, "Adjustment not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toAdjustmentDTO(*adj))
}

// ListAdjustments returns adjustments in a creation-time window.
// GET /api/adjustments?from=RFC3339&to=RFC3339
func (h *Handler) ListAdjustments(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid time window (use RFC3339)", err)
		return
	}

	adjustments, err := h.Store.ListAdjustments(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list adjustments", err)
		return
	}

	dtos := make([]AdjustmentDTO, len(adjustments))
	for i, a := range adjustments {
		dtos[i] = toAdjustmentDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// CreateTipOutRule creates or updates a tip-out rule.
// POST /api/tipout-rules
func (h *Handler) CreateTipOutRule(w http.ResponseWriter, r *http.Request) {
	var req TipOutRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.GiverRoleID == "" || req.ReceiverRoleID == "" {
		writeError(w, http.StatusBadRequest, "id, giver_role_id and receiver_role_id are required", nil)
		return
	}
	percent, err := decimal.NewFromString(req.Percent)
	if err != nil || percent.IsNegative() {
		writeError(w, http.StatusBadRequest, "percent must be a non-negative decimal", err)
		return
	}
	basis := tips.TipOutBasis(req.Basis)
	switch basis {
	case tips.BasisGrossTips, tips.BasisNetSales:
	default:
		writeError(w, http.StatusBadRequest, "basis must be gross_tips or net_sales", nil)
		return
	}

	rule := tips.TipOutRule{
		ID:             req.ID,
		GiverRoleID:    tips.RoleID(req.GiverRoleID),
		ReceiverRoleID: tips.RoleID(req.ReceiverRoleID),
		Percent:        percent,
		Basis:          basis,
	}
	if err := h.Store.SaveRule(r.Context(), rule); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save rule", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// ExpireGroups closes groups whose last activity predates the cutoff.
// POST /api/admin/expire-groups
func (h *Handler) ExpireGroups(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Cutoff string `json:"cutoff"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	cutoff, err := time.Parse(time.RFC3339, req.Cutoff)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid cutoff (use RFC3339)", err)
		return
	}

	n, err := h.Groups.ExpireIdle(r.Context(), cutoff)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to expire groups", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"closed": n})
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toEntryDTO(e tips.LedgerEntry) EntryDTO {
	return EntryDTO{
		ID:             string(e.ID),
		EmployeeID:     string(e.EmployeeID),
		Amount:         e.Amount.String(),
		Type:           string(e.Type),
		OrderID:        string(e.ReferenceOrderID),
		GroupID:        string(e.ReferenceGroupID),
		AdjustmentID:   string(e.ReferenceAdjustmentID),
		Reason:         e.Reason,
		IdempotencyKey: e.IdempotencyKey,
		EffectiveAt:    e.EffectiveAt.UTC().Format(time.RFC3339),
		CreatedAt:      e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toEntryDTOs(entries []tips.LedgerEntry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	return dtos
}

func toSegmentDTOs(segs []tips.TipGroupSegment) []SegmentDTO {
	dtos := make([]SegmentDTO, len(segs))
	for i, seg := range segs {
		dto := SegmentDTO{
			ID:        string(seg.ID),
			GroupID:   string(seg.GroupID),
			StartAt:   seg.StartAt.UTC().Format(time.RFC3339),
			SplitMode: string(seg.SplitMode),
		}
		if seg.EndAt != nil {
			dto.EndAt = seg.EndAt.UTC().Format(time.RFC3339)
		}
		for _, m := range seg.Members {
			dto.Members = append(dto.Members, SegmentMemberDTO{
				EmployeeID:    string(m.EmployeeID),
				ComputedShare: m.ComputedShare.String(),
			})
		}
		dtos[i] = dto
	}
	return dtos
}

func toTemplateDTO(t tips.TipGroupTemplate) TemplateDTO {
	dto := TemplateDTO{
		ID:               string(t.ID),
		Name:             t.Name,
		DefaultSplitMode: string(t.DefaultSplitMode),
		Active:           t.Active,
	}
	for _, r := range t.AllowedRoleIDs {
		dto.AllowedRoleIDs = append(dto.AllowedRoleIDs, string(r))
	}
	return dto
}

func toAdjustmentDTO(a tips.TipAdjustment) AdjustmentDTO {
	return AdjustmentDTO{
		ID:            string(a.ID),
		CreatedBy:     string(a.CreatedBy),
		Reason:        a.Reason,
		Type:          string(a.Type),
		ContextJSON:   a.ContextJSON,
		Status:        string(a.Status),
		AutoRecalcRan: a.AutoRecalcRan,
		CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toAdjustmentRequest(req AdjustmentRequestDTO) (tips.AdjustmentRequest, error) {
	out := tips.AdjustmentRequest{
		Type:      tips.AdjustmentType(req.Type),
		Reason:    req.Reason,
		ManagerID: tips.EmployeeID(req.ManagerID),
		GroupID:   tips.GroupID(req.GroupID),
		SegmentID: tips.SegmentID(req.SegmentID),
		OrderID:   tips.OrderID(req.OrderID),
	}

	if req.NewStartAt != "" {
		t, err := time.Parse(time.RFC3339, req.NewStartAt)
		if err != nil {
			return out, err
		}
		out.NewStartAt = &t
	}
	if req.NewEndAt != "" {
		t, err := time.Parse(time.RFC3339, req.NewEndAt)
		if err != nil {
			return out, err
		}
		out.NewEndAt = &t
	}
	if req.NewTipAmount != "" {
		m, err := parseMoney(req.NewTipAmount)
		if err != nil {
			return out, err
		}
		out.NewTipAmount = &m
	}
	for _, o := range req.NewOwners {
		share, err := decimal.NewFromString(o.Share)
		if err != nil {
			return out, err
		}
		out.NewOwners = append(out.NewOwners, tips.Owner{
			EmployeeID: tips.EmployeeID(o.EmployeeID),
			Share:      share,
		})
	}
	if len(req.CorrectedHours) > 0 {
		out.CorrectedHours = make(map[tips.EmployeeID]decimal.Decimal, len(req.CorrectedHours))
		for emp, hours := range req.CorrectedHours {
			d, err := decimal.NewFromString(hours)
			if err != nil {
				return out, err
			}
			out.CorrectedHours[tips.EmployeeID(emp)] = d
		}
	}
	for _, delta := range req.ManualDeltas {
		amount, err := parseMoney(delta.Amount)
		if err != nil {
			return out, err
		}
		out.ManualDeltas = append(out.ManualDeltas, tips.Allocation{
			EmployeeID: tips.EmployeeID(delta.EmployeeID),
			Amount:     amount,
		})
	}
	return out, nil
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

func parseMoney(s string) (tips.Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return tips.ZeroMoney(), err
	}
	return tips.FromDecimal(d), nil
}

func parseWindow(r *http.Request) (time.Time, time.Time, error) {
	var from, to time.Time
	if s := r.URL.Query().Get("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return from, to, err
		}
		from = t
	}
	if s := r.URL.Query().Get("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return from, to, err
		}
		to = t
	}
	return from, to, nil
}

// writeDomainError maps domain errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case tips.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, tips.ErrAlreadyInGroup):
		writeError(w, http.StatusUnprocessableEntity, message, err)
	case tips.IsClientError(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
