/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request bodies carry go-playground/validator tags and are checked by
  decode() before any handler logic runs. Domain rules (email domain,
  balance sufficiency, date ordering) are still enforced by the services.

QUANTITIES:
  Day quantities travel as decimal strings ("0.125", "21") so clients never
  see float rounding.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
)

// =============================================================================
// EMPLOYEES
// =============================================================================

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	Position       string  `json:"position,omitempty"`
	Department     string  `json:"department,omitempty"`
	Country        string  `json:"country,omitempty"`
	StartDate      string  `json:"start_date"`
	YearsOfService float64 `json:"years_of_service"`
	IsSenior       bool    `json:"is_senior"`
	IsActive       bool    `json:"is_active"`
	IsSupervisor   bool    `json:"is_supervisor"`
	SupervisorID   *string `json:"supervisor_id,omitempty"`
}

// CreateEmployeeRequest is the body of POST /api/admin/employees.
type CreateEmployeeRequest struct {
	ID           string  `json:"id" validate:"required"`
	Name         string  `json:"name" validate:"required"`
	Email        string  `json:"email" validate:"required,email"`
	Position     string  `json:"position"`
	Department   string  `json:"department"`
	Country      string  `json:"country"`
	StartDate    string  `json:"start_date" validate:"required,datetime=2006-01-02"`
	IsSenior     bool    `json:"is_senior"`
	IsSupervisor bool    `json:"is_supervisor"`
	SupervisorID *string `json:"supervisor_id" validate:"omitempty,min=1"`
}

// AssignSupervisorRequest sets (or clears, with null) a supervisor.
type AssignSupervisorRequest struct {
	SupervisorID *string `json:"supervisor_id" validate:"omitempty,min=1"`
}

func toEmployeeDTO(e timeoff.Employee, today generic.Date) EmployeeDTO {
	dto := EmployeeDTO{
		ID:             string(e.ID),
		Name:           e.Name,
		Email:          e.Email,
		Position:       e.Position,
		Department:     e.Department,
		Country:        e.Country,
		StartDate:      e.StartDate.String(),
		YearsOfService: e.YearsOfService(today),
		IsSenior:       e.IsSenior,
		IsActive:       e.IsActive,
		IsSupervisor:   e.IsSupervisor,
	}
	if e.SupervisorID != nil {
		s := string(*e.SupervisorID)
		dto.SupervisorID = &s
	}
	return dto
}

// =============================================================================
// LEAVE TYPES
// =============================================================================

type LeaveTypeDTO struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	RequiresApproval      bool   `json:"requires_approval"`
	RequiresDocumentation bool   `json:"requires_documentation"`
	RequiresReason        bool   `json:"requires_reason"`
	IsActive              bool   `json:"is_active"`
	PayPercentage         string `json:"pay_percentage"`
}

// SaveLeaveTypeRequest creates or updates (by name) a leave type.
type SaveLeaveTypeRequest struct {
	Name                  string `json:"name" validate:"required"`
	RequiresApproval      *bool  `json:"requires_approval"`
	RequiresDocumentation bool   `json:"requires_documentation"`
	RequiresReason        bool   `json:"requires_reason"`
	IsActive              *bool  `json:"is_active"`
	PayPercentage         string `json:"pay_percentage" validate:"omitempty,numeric"`
}

func toLeaveTypeDTO(lt timeoff.LeaveType) LeaveTypeDTO {
	return LeaveTypeDTO{
		ID:                    lt.ID,
		Name:                  lt.Name,
		RequiresApproval:      lt.RequiresApproval,
		RequiresDocumentation: lt.RequiresDocumentation,
		RequiresReason:        lt.RequiresReason,
		IsActive:              lt.IsActive,
		PayPercentage:         lt.PayPercentage.String(),
	}
}

// =============================================================================
// BALANCES
// =============================================================================

type BalanceDTO struct {
	EmployeeID     string `json:"employee_id"`
	LeaveTypeID    string `json:"leave_type_id"`
	Year           int    `json:"year"`
	AllocatedDays  string `json:"allocated_days"`
	UsedDays       string `json:"used_days"`
	CarryOverDays  string `json:"carry_over_days"`
	AvailableDays  string `json:"available_days"`
	UsedPercentage string `json:"used_percentage"`
}

// AdjustBalanceRequest is the body of PUT /api/admin/balances.
type AdjustBalanceRequest struct {
	EmployeeID    string `json:"employee_id" validate:"required"`
	LeaveTypeID   string `json:"leave_type_id" validate:"required"`
	Year          int    `json:"year" validate:"required,min=2000,max=2100"`
	AllocatedDays string `json:"allocated_days" validate:"required,numeric"`
	CarryOverDays string `json:"carry_over_days" validate:"omitempty,numeric"`
}

// CarryOverRequest is the body of POST /api/admin/carry-over. The move is
// applied for every active employee and each listed leave type.
type CarryOverRequest struct {
	FromYear     int      `json:"from_year" validate:"required,min=2000,max=2100"`
	LeaveTypeIDs []string `json:"leave_type_ids" validate:"required,min=1,dive,required"`
	MaxDays      string   `json:"max_days" validate:"required,numeric"`
}

// CarryOverResultDTO reports one (employee, leave type) carry-over.
type CarryOverResultDTO struct {
	EmployeeID  string `json:"employee_id"`
	LeaveTypeID string `json:"leave_type_id"`
	Days        string `json:"days"`
	Skipped     string `json:"skipped,omitempty"`
}

func toBalanceDTO(b timeoff.LeaveBalance) BalanceDTO {
	return BalanceDTO{
		EmployeeID:     string(b.EmployeeID),
		LeaveTypeID:    b.LeaveTypeID,
		Year:           b.Year,
		AllocatedDays:  b.AllocatedDays.String(),
		UsedDays:       b.UsedDays.String(),
		CarryOverDays:  b.CarryOverDays.String(),
		AvailableDays:  b.AvailableDays().String(),
		UsedPercentage: b.UsedPercentage().StringFixed(2),
	}
}

// =============================================================================
// REQUESTS
// =============================================================================

// CreateRequestRequest is the body of POST /api/requests. The employee is
// always the caller.
type CreateRequestRequest struct {
	LeaveTypeID string `json:"leave_type_id" validate:"required"`
	StartDate   string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Duration    string `json:"duration" validate:"required,oneof=full_day half_day hours"`
	StartTime   string `json:"start_time" validate:"omitempty,datetime=15:04"`
	EndTime     string `json:"end_time" validate:"omitempty,datetime=15:04"`
	Reason      string `json:"reason"`
	DocumentRef string `json:"document_ref"`
}

// DecisionRequest carries the supervisor comment for approve and reject.
type DecisionRequest struct {
	Comment string `json:"comment" validate:"max=2000"`
}

type RequestDTO struct {
	ID                 string     `json:"id"`
	EmployeeID         string     `json:"employee_id"`
	LeaveTypeID        string     `json:"leave_type_id"`
	StartDate          string     `json:"start_date"`
	EndDate            string     `json:"end_date"`
	StartTime          *string    `json:"start_time,omitempty"`
	EndTime            *string    `json:"end_time,omitempty"`
	Duration           string     `json:"duration"`
	DurationText       string     `json:"duration_text"`
	TotalDays          string     `json:"total_days"`
	Reason             string     `json:"reason,omitempty"`
	DocumentRef        string     `json:"document_ref,omitempty"`
	Status             string     `json:"status"`
	ApprovedBy         *string    `json:"approved_by,omitempty"`
	ApprovedAt         *time.Time `json:"approved_at,omitempty"`
	SupervisorComments string     `json:"supervisor_comments,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type HistoryDTO struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	ActorID   string    `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
	Comment   string    `json:"comment,omitempty"`
}

func toRequestDTO(r timeoff.LeaveRequest) RequestDTO {
	dto := RequestDTO{
		ID:                 string(r.ID),
		EmployeeID:         string(r.EmployeeID),
		LeaveTypeID:        r.LeaveTypeID,
		StartDate:          r.StartDate.String(),
		EndDate:            r.EndDate.String(),
		Duration:           string(r.Duration),
		DurationText:       r.DurationText(),
		TotalDays:          r.TotalDays.String(),
		Reason:             r.Reason,
		DocumentRef:        r.DocumentRef,
		Status:             string(r.Status),
		ApprovedAt:         r.ApprovedAt,
		SupervisorComments: r.SupervisorComments,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
	if r.StartTime != nil {
		s := r.StartTime.String()
		dto.StartTime = &s
	}
	if r.EndTime != nil {
		s := r.EndTime.String()
		dto.EndTime = &s
	}
	if r.ApprovedBy != nil {
		s := string(*r.ApprovedBy)
		dto.ApprovedBy = &s
	}
	return dto
}

func toRequestDTOs(reqs []timeoff.LeaveRequest) []RequestDTO {
	out := make([]RequestDTO, len(reqs))
	for i, r := range reqs {
		out[i] = toRequestDTO(r)
	}
	return out
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
	Details any    `json:"details,omitempty"`
}
