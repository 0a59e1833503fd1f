// Package timeoff implements the leave domain: employees and their
// supervisor tree, the leave-type catalog, per-year balances and the
// request lifecycle that moves days out of those balances.
package timeoff

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// EMPLOYEE
// =============================================================================

type EmployeeID string

// Employee is a person tracked by the system. Employees are never deleted;
// IsActive is cleared instead.
type Employee struct {
	ID           EmployeeID
	Name         string
	Email        string
	Position     string
	Department   string
	Country      string
	StartDate    generic.Date
	IsSenior     bool
	IsActive     bool
	IsSupervisor bool
	SupervisorID *EmployeeID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ReportsTo reports whether id is the employee's direct supervisor.
func (e Employee) ReportsTo(id EmployeeID) bool {
	return e.SupervisorID != nil && *e.SupervisorID == id
}

// YearsOfService returns the fractional years between the start date and asOf.
func (e Employee) YearsOfService(asOf generic.Date) float64 {
	return float64(e.StartDate.DaysUntil(asOf)) / 365.25
}

// InOrganization reports whether email belongs to the organization domain.
func InOrganization(email, domain string) bool {
	domain = strings.TrimPrefix(strings.ToLower(domain), "@")
	return domain != "" && strings.HasSuffix(strings.ToLower(email), "@"+domain)
}

// =============================================================================
// LEAVE TYPE
// =============================================================================

// LeaveType is a catalog entry such as PTO or Sick.
type LeaveType struct {
	ID                    string
	Name                  string
	RequiresApproval      bool
	RequiresDocumentation bool
	RequiresReason        bool
	IsActive              bool
	PayPercentage         decimal.Decimal
}

// =============================================================================
// LEAVE BALANCE
// =============================================================================

// LeaveBalance is the ledger row for one (employee, leave type, year).
type LeaveBalance struct {
	ID            string
	EmployeeID    EmployeeID
	LeaveTypeID   string
	Year          int
	AllocatedDays decimal.Decimal
	UsedDays      decimal.Decimal
	CarryOverDays decimal.Decimal

	// Version is bumped on every update; updates are conditional on it.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Entitlement is allocated plus carried-over days.
func (b LeaveBalance) Entitlement() decimal.Decimal {
	return b.AllocatedDays.Add(b.CarryOverDays)
}

// AvailableDays is allocated + carry-over - used. Not clamped: a negative
// value means the row was corrupted and is surfaced as-is.
func (b LeaveBalance) AvailableDays() decimal.Decimal {
	return b.Entitlement().Sub(b.UsedDays)
}

// UsedPercentage is used / (allocated + carry-over) * 100, or 0 when nothing
// was allocated.
func (b LeaveBalance) UsedPercentage() decimal.Decimal {
	total := b.Entitlement()
	if !total.IsPositive() {
		return decimal.Zero
	}
	return b.UsedDays.Div(total).Mul(decimal.NewFromInt(100))
}

// =============================================================================
// LEAVE REQUEST
// =============================================================================

type RequestID string

type DurationKind string

const (
	DurationFullDay DurationKind = "full_day"
	DurationHalfDay DurationKind = "half_day"
	DurationHours   DurationKind = "hours"
)

func (k DurationKind) Valid() bool {
	switch k {
	case DurationFullDay, DurationHalfDay, DurationHours:
		return true
	}
	return false
}

type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusApproved  RequestStatus = "approved"
	StatusRejected  RequestStatus = "rejected"
	StatusCancelled RequestStatus = "cancelled"
)

// Terminal reports whether no transition leaves this status.
func (s RequestStatus) Terminal() bool {
	return s != StatusPending
}

// LeaveRequest is a single ask for time off. TotalDays is always computed
// from the dates, times and duration kind.
type LeaveRequest struct {
	ID                 RequestID
	EmployeeID         EmployeeID
	LeaveTypeID        string
	StartDate          generic.Date
	EndDate            generic.Date
	StartTime          *generic.TimeOfDay
	EndTime            *generic.TimeOfDay
	Duration           DurationKind
	TotalDays          decimal.Decimal
	Reason             string
	DocumentRef        string
	Status             RequestStatus
	ApprovedBy         *EmployeeID
	ApprovedAt         *time.Time
	SupervisorComments string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// DurationText renders the request length for people.
func (r LeaveRequest) DurationText() string {
	switch r.Duration {
	case DurationHalfDay:
		return "Half day"
	case DurationHours:
		return fmt.Sprintf("%s hours", r.TotalDays.Mul(decimal.NewFromInt(generic.HoursPerDay)).String())
	default:
		if r.TotalDays.Equal(decimal.NewFromInt(1)) {
			return "1 day"
		}
		return fmt.Sprintf("%s days", r.TotalDays.String())
	}
}

// =============================================================================
// HISTORY - Append-only audit trail
// =============================================================================

type HistoryAction string

const (
	ActionCreated   HistoryAction = "created"
	ActionApproved  HistoryAction = "approved"
	ActionRejected  HistoryAction = "rejected"
	ActionCancelled HistoryAction = "cancelled"
)

// HistoryEntry records one lifecycle transition of a request.
type HistoryEntry struct {
	ID        string
	RequestID RequestID
	Action    HistoryAction
	ActorID   EmployeeID
	Timestamp time.Time
	Comment   string
}

// CarryOverRun marks that unused days of FromYear were moved into the next
// year's balance. At most one exists per (employee, leave type, year).
type CarryOverRun struct {
	EmployeeID  EmployeeID
	LeaveTypeID string
	FromYear    int
	Days        decimal.Decimal
	CreatedAt   time.Time
}
