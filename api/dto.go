/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY REPRESENTATION:
  Amounts cross the wire as decimal strings ("12.34"), never floats.
  Handlers parse them with shopspring/decimal.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - tips/types.go: Domain model these map onto
*/
package api

// =============================================================================
// LEDGER / BALANCE
// =============================================================================

// EntryDTO represents one ledger entry in API responses.
type EntryDTO struct {
	ID             string `json:"id"`
	EmployeeID     string `json:"employee_id"`
	Amount         string `json:"amount"`
	Type           string `json:"type"`
	OrderID        string `json:"order_id,omitempty"`
	GroupID        string `json:"group_id,omitempty"`
	AdjustmentID   string `json:"adjustment_id,omitempty"`
	Reason         string `json:"reason,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	EffectiveAt    string `json:"effective_at"`
	CreatedAt      string `json:"created_at"`
}

// BalanceDTO is the running balance for one employee.
type BalanceDTO struct {
	EmployeeID string `json:"employee_id"`
	Balance    string `json:"balance"`
	AsOf       string `json:"as_of"`
}

// =============================================================================
// GROUPS / TEMPLATES
// =============================================================================

// SegmentMemberDTO is one member of a segment with its computed share.
type SegmentMemberDTO struct {
	EmployeeID    string `json:"employee_id"`
	ComputedShare string `json:"computed_share"`
}

// SegmentDTO represents one time slice of group membership.
type SegmentDTO struct {
	ID        string             `json:"id"`
	GroupID   string             `json:"group_id"`
	StartAt   string             `json:"start_at"`
	EndAt     string             `json:"end_at,omitempty"`
	SplitMode string             `json:"split_mode"`
	Members   []SegmentMemberDTO `json:"members"`
}

// GroupDTO represents a tip group with its segment history.
type GroupDTO struct {
	ID         string       `json:"id"`
	TemplateID string       `json:"template_id,omitempty"`
	Status     string       `json:"status"`
	CreatedAt  string       `json:"created_at"`
	Segments   []SegmentDTO `json:"segments,omitempty"`
}

// CreateGroupRequest opens an ad-hoc tip group.
type CreateGroupRequest struct {
	TemplateID string `json:"template_id,omitempty"`
	SplitMode  string `json:"split_mode"`
	EmployeeID string `json:"employee_id"`
}

// MemberRequest adds or removes a group member.
type MemberRequest struct {
	EmployeeID string `json:"employee_id"`
}

// TemplateDTO represents a tip group template.
type TemplateDTO struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	AllowedRoleIDs   []string `json:"allowed_role_ids,omitempty"`
	DefaultSplitMode string   `json:"default_split_mode"`
	Active           bool     `json:"active"`
}

// =============================================================================
// SETTLEMENT / CLOCK EVENTS
// =============================================================================

// SettledItemDTO is one line of a settled order.
type SettledItemDTO struct {
	ItemID   string   `json:"item_id"`
	Amount   string   `json:"amount"`
	OwnerIDs []string `json:"owner_employee_ids"`
}

// SettlementRequest is the order-settlement event from payment capture.
type SettlementRequest struct {
	OrderID           string           `json:"order_id"`
	TipAmount         string           `json:"tip_amount"`
	Subtotal          string           `json:"subtotal"`
	Items             []SettledItemDTO `json:"items,omitempty"`
	TableID           string           `json:"table_id,omitempty"`
	CreatorEmployeeID string           `json:"creator_employee_id"`
}

// SettlementResponse returns the entries posted for a settlement.
type SettlementResponse struct {
	OrderID string     `json:"order_id"`
	Entries []EntryDTO `json:"entries"`
}

// ClockInRequest is the clock-in fact from the time clock.
type ClockInRequest struct {
	EmployeeID string `json:"employee_id"`
	RoleID     string `json:"role_id"`
	TemplateID string `json:"template_id,omitempty"`
}

// ShiftCloseRequest fires the tip-out engine for a finished shift.
type ShiftCloseRequest struct {
	ShiftID    string `json:"shift_id"`
	EmployeeID string `json:"employee_id"`
	StartAt    string `json:"start_at"`
	EndAt      string `json:"end_at"`
}

// PayoutRequest records a cash payout against an employee's balance.
type PayoutRequest struct {
	EmployeeID     string `json:"employee_id"`
	Amount         string `json:"amount"`
	Reason         string `json:"reason,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

// OwnerDTO is one owner share in an ownership correction.
type OwnerDTO struct {
	EmployeeID string `json:"employee_id"`
	Share      string `json:"share"`
}

// ManualDeltaDTO is one signed employee delta for manual overrides.
type ManualDeltaDTO struct {
	EmployeeID string `json:"employee_id"`
	Amount     string `json:"amount"`
}

// AdjustmentRequestDTO is a manager correction request.
type AdjustmentRequestDTO struct {
	Type      string `json:"type"`
	Reason    string `json:"reason"`
	ManagerID string `json:"manager_id"`

	GroupID    string `json:"group_id,omitempty"`
	SegmentID  string `json:"segment_id,omitempty"`
	NewStartAt string `json:"new_start_at,omitempty"`
	NewEndAt   string `json:"new_end_at,omitempty"`

	OrderID      string     `json:"order_id,omitempty"`
	NewOwners    []OwnerDTO `json:"new_owners,omitempty"`
	NewTipAmount string     `json:"new_tip_amount,omitempty"`

	CorrectedHours map[string]string `json:"corrected_hours,omitempty"`

	ManualDeltas []ManualDeltaDTO `json:"manual_deltas,omitempty"`
}

// AdjustmentDTO represents a recorded adjustment.
type AdjustmentDTO struct {
	ID            string `json:"id"`
	CreatedBy     string `json:"created_by"`
	Reason        string `json:"reason"`
	Type          string `json:"type"`
	ContextJSON   string `json:"context,omitempty"`
	Status        string `json:"status"`
	AutoRecalcRan bool   `json:"auto_recalc_ran"`
	CreatedAt     string `json:"created_at"`
}

// =============================================================================
// TIP-OUT RULES / FACTS
// =============================================================================

// TipOutRuleRequest creates or updates a tip-out rule.
type TipOutRuleRequest struct {
	ID             string `json:"id"`
	GiverRoleID    string `json:"giver_role_id"`
	ReceiverRoleID string `json:"receiver_role_id"`
	Percent        string `json:"percent"`
	Basis          string `json:"basis"`
}

// FactsRequest records collaborator facts (hours, roles, shifts, sales)
// consumed by split resolution and tip-outs.
type FactsRequest struct {
	Roles       map[string]string `json:"roles,omitempty"`        // employee -> role
	RoleWeights map[string]string `json:"role_weights,omitempty"` // role -> weight
	Hours       []HoursFactDTO    `json:"hours,omitempty"`
	OnShift     []ShiftFactDTO    `json:"on_shift,omitempty"`
	NetSales    []NetSalesFactDTO `json:"net_sales,omitempty"`
}

// HoursFactDTO is hours worked by an employee during one segment.
type HoursFactDTO struct {
	EmployeeID string `json:"employee_id"`
	SegmentID  string `json:"segment_id"`
	Hours      string `json:"hours"`
}

// ShiftFactDTO marks an employee on shift under a role.
type ShiftFactDTO struct {
	ShiftID    string `json:"shift_id"`
	RoleID     string `json:"role_id"`
	EmployeeID string `json:"employee_id"`
}

// NetSalesFactDTO is an employee's net sales for one shift.
type NetSalesFactDTO struct {
	ShiftID    string `json:"shift_id"`
	EmployeeID string `json:"employee_id"`
	Amount     string `json:"amount"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes one loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
