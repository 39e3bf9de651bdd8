/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract. Amounts cross
  the wire as float64 days; the domain keeps them as decimals.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Leave types:   LeaveTypeDTO, LeaveTypeRequest, LeaveTypeUpdateRequest
  Balances:      BalanceDTO, AllocateRequest
  Applications:  ApplicationDTO, SubmitApplicationRequest,
                 EditApplicationRequest, DecisionRequest
  Notifications: NotificationDTO
  Scenarios:     ScenarioDTO, LoadScenarioRequest, LoadScenarioResponse

VALIDATION:
  Request types carry go-playground/validator tags. Handlers validate
  shape here; business rules stay in the leave package.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// LEAVE TYPES
// =============================================================================

type LeaveTypeDTO struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Description      string  `json:"description,omitempty"`
	RequiresApproval bool    `json:"requires_approval"`
	IsPaid           bool    `json:"is_paid"`
	AnnualAllocation float64 `json:"annual_allocation"`
}

type LeaveTypeRequest struct {
	Name             string  `json:"name" validate:"required,max=100"`
	Description      string  `json:"description" validate:"max=1000"`
	RequiresApproval *bool   `json:"requires_approval"`
	IsPaid           *bool   `json:"is_paid"`
	AnnualAllocation float64 `json:"annual_allocation" validate:"gte=0"`
}

type LeaveTypeUpdateRequest struct {
	Name             *string  `json:"name" validate:"omitempty,max=100"`
	Description      *string  `json:"description" validate:"omitempty,max=1000"`
	RequiresApproval *bool    `json:"requires_approval"`
	IsPaid           *bool    `json:"is_paid"`
	AnnualAllocation *float64 `json:"annual_allocation" validate:"omitempty,gte=0"`
}

func toLeaveTypeDTO(lt leave.LeaveType) LeaveTypeDTO {
	return LeaveTypeDTO{
		ID:               string(lt.ID),
		Name:             lt.Name,
		Description:      lt.Description,
		RequiresApproval: lt.RequiresApproval,
		IsPaid:           lt.IsPaid,
		AnnualAllocation: lt.AnnualAllocation.Float64(),
	}
}

func (r LeaveTypeRequest) input() leave.LeaveTypeInput {
	in := leave.LeaveTypeInput{
		Name:             r.Name,
		Description:      r.Description,
		RequiresApproval: true,
		IsPaid:           true,
		AnnualAllocation: generic.Days(r.AnnualAllocation),
	}
	if r.RequiresApproval != nil {
		in.RequiresApproval = *r.RequiresApproval
	}
	if r.IsPaid != nil {
		in.IsPaid = *r.IsPaid
	}
	return in
}

func (r LeaveTypeUpdateRequest) update() leave.LeaveTypeUpdate {
	u := leave.LeaveTypeUpdate{
		Name:             r.Name,
		Description:      r.Description,
		RequiresApproval: r.RequiresApproval,
		IsPaid:           r.IsPaid,
	}
	if r.AnnualAllocation != nil {
		a := generic.Days(*r.AnnualAllocation)
		u.AnnualAllocation = &a
	}
	return u
}

// =============================================================================
// BALANCES
// =============================================================================

type BalanceDTO struct {
	EmployeeID    string  `json:"employee_id"`
	LeaveTypeID   string  `json:"leave_type_id"`
	LeaveTypeName string  `json:"leave_type_name,omitempty"`
	Year          int     `json:"year"`
	Allocated     float64 `json:"allocated"`
	Used          float64 `json:"used"`
	Remaining     float64 `json:"remaining"`
	Unit          string  `json:"unit"`
	UpdatedAt     string  `json:"updated_at"`
}

type AllocateRequest struct {
	EmployeeID  string   `json:"employee_id" validate:"required"`
	LeaveTypeID string   `json:"leave_type_id" validate:"required"`
	Year        int      `json:"year" validate:"omitempty,gte=2000,lte=2100"`
	Allocated   *float64 `json:"allocated" validate:"omitempty,gte=0"`
}

func toBalanceDTO(b generic.Balance, leaveTypeName string) BalanceDTO {
	return BalanceDTO{
		EmployeeID:    string(b.Key.EntityID),
		LeaveTypeID:   string(b.Key.ResourceID),
		LeaveTypeName: leaveTypeName,
		Year:          b.Key.Year,
		Allocated:     b.Allocated.Float64(),
		Used:          b.Used.Float64(),
		Remaining:     b.Remaining.Float64(),
		Unit:          string(b.Allocated.Unit),
		UpdatedAt:     b.UpdatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// APPLICATIONS
// =============================================================================

// ApplicationDTO is an application enriched with display names.
type ApplicationDTO struct {
	ID              string  `json:"id"`
	EmployeeID      string  `json:"employee_id"`
	EmployeeName    string  `json:"employee_name,omitempty"`
	Department      string  `json:"department,omitempty"`
	LeaveTypeID     string  `json:"leave_type_id"`
	LeaveTypeName   string  `json:"leave_type_name,omitempty"`
	StartDate       string  `json:"start_date"`
	EndDate         string  `json:"end_date"`
	TotalDays       float64 `json:"total_days"`
	Reason          string  `json:"reason"`
	Attachments     string  `json:"attachments,omitempty"`
	Status          string  `json:"status"`
	ApproverID      string  `json:"approver_id,omitempty"`
	ApproverName    string  `json:"approver_name,omitempty"`
	AppliedOn       string  `json:"applied_on"`
	DecidedOn       *string `json:"decided_on,omitempty"`
	RejectionReason string  `json:"rejection_reason,omitempty"`
}

type SubmitApplicationRequest struct {
	LeaveTypeID string `json:"leave_type_id" validate:"required"`
	StartDate   string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Reason      string `json:"reason" validate:"required,max=1000"`
	Attachments string `json:"attachments" validate:"max=2000"`
}

type EditApplicationRequest struct {
	StartDate   *string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate     *string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Reason      *string `json:"reason" validate:"omitempty,max=1000"`
	Attachments *string `json:"attachments" validate:"omitempty,max=2000"`
}

type DecisionRequest struct {
	Status          string `json:"status" validate:"required,oneof=approved rejected"`
	RejectionReason string `json:"rejection_reason" validate:"required_if=Status rejected,max=1000"`
}

func (r SubmitApplicationRequest) input() (leave.SubmitInput, error) {
	start, err := generic.ParseDate(r.StartDate)
	if err != nil {
		return leave.SubmitInput{}, generic.NewValidationError("start_date", "start date must be a date (YYYY-MM-DD)")
	}
	end, err := generic.ParseDate(r.EndDate)
	if err != nil {
		return leave.SubmitInput{}, generic.NewValidationError("end_date", "end date must be a date (YYYY-MM-DD)")
	}
	return leave.SubmitInput{
		LeaveTypeID: generic.ResourceID(r.LeaveTypeID),
		StartDate:   start,
		EndDate:     end,
		Reason:      r.Reason,
		Attachments: r.Attachments,
	}, nil
}

func (r EditApplicationRequest) input() (leave.EditInput, error) {
	in := leave.EditInput{Reason: r.Reason, Attachments: r.Attachments}
	if r.StartDate != nil {
		start, err := generic.ParseDate(*r.StartDate)
		if err != nil {
			return in, generic.NewValidationError("start_date", "start date must be a date (YYYY-MM-DD)")
		}
		in.StartDate = &start
	}
	if r.EndDate != nil {
		end, err := generic.ParseDate(*r.EndDate)
		if err != nil {
			return in, generic.NewValidationError("end_date", "end date must be a date (YYYY-MM-DD)")
		}
		in.EndDate = &end
	}
	return in, nil
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

type NotificationDTO struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Category  string `json:"category"`
	Link      string `json:"link,omitempty"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
}

func toNotificationDTO(n leave.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		Category:  string(n.Category),
		Link:      n.Link,
		Read:      n.Read,
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// LoadScenarioResponse lists the seeded people with ready-to-use tokens.
type LoadScenarioResponse struct {
	Scenario ScenarioDTO   `json:"scenario"`
	Users    []DemoUserDTO `json:"users"`
}

type DemoUserDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	Token string `json:"token"`
}
