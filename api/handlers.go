/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes the leave services via REST API. Handles HTTP request/response,
  JSON serialization and delegates to the timeoff services. Every handler
  runs as the authenticated Actor (see auth.go).

ENDPOINTS:
  Me:
    GET    /api/me                              Caller's employee record

  Employees:
    GET    /api/employees                       List active employees (?all=true for admins)
    GET    /api/employees/{id}                  Employee details
    GET    /api/employees/{id}/balances?year=   Balances (self, direct supervisor, admin)
    POST   /api/admin/employees                 Onboard employee
    PUT    /api/admin/employees/{id}/supervisor Set or clear supervisor
    POST   /api/admin/employees/{id}/deactivate Deactivate employee

  Leave types:
    GET    /api/leave-types                     Active catalog (?all=true for everything)
    POST   /api/admin/leave-types               Create or update by name

  Balances:
    GET    /api/balances?year=                  Caller's balances
    PUT    /api/admin/balances                  Set allocation and carry-over
    POST   /api/admin/carry-over                Year-end carry-over

  Requests:
    POST   /api/requests                        Submit request
    GET    /api/requests                        Caller's requests
    GET    /api/requests/{id}                   Request details
    GET    /api/requests/{id}/history           Audit trail
    POST   /api/requests/{id}/approve           Supervisor approves
    POST   /api/requests/{id}/reject            Supervisor rejects
    POST   /api/requests/{id}/cancel            Owner cancels
    GET    /api/team/requests?status=           Direct reports' requests

REQUEST FLOW:
  1. Decode and validate the body (validator tags in dto.go)
  2. Call the service as the caller
  3. Serialize response, or map the error in errors.go

ERROR HANDLING:
  - 400: Malformed JSON, body validation, bad query parameters
  - 401/403: Authentication (auth.go), authorization
  - 404: Not found
  - 409: Wrong request state, duplicates, lost races
  - 422: Domain validation, with a machine-readable reason
  - 500: Internal errors, logged and never detailed

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Services groups the domain services the API delegates to.
type Services struct {
	Requests  *timeoff.RequestService
	Ledger    *timeoff.Ledger
	Directory *timeoff.Directory
	Catalog   *timeoff.Catalog
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Services
	logger   *zap.Logger
	validate *validator.Validate
	clock    generic.Clock
	location *time.Location
}

// NewHandler creates a handler. A nil logger discards logs.
func NewHandler(svc Services, logger *zap.Logger, clock generic.Clock, loc *time.Location) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = generic.SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		Services: svc,
		logger:   logger.Named("api"),
		validate: validator.New(),
		clock:    clock,
		location: loc,
	}
}

func (h *Handler) today() generic.Date { return generic.Today(h.clock, h.location) }

// decode reads a JSON body into dst and validates it. It writes the 400
// response itself and returns false on failure. An empty body decodes as
// the zero value.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}

func actor(r *http.Request) Actor {
	a, _ := ActorFrom(r.Context())
	return a
}

// year reads ?year=, defaulting to the current year.
func (h *Handler) year(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("year")
	if raw == "" {
		return h.today().Year(), nil
	}
	y, err := strconv.Atoi(raw)
	if err != nil || y < 2000 || y > 2100 {
		return 0, fmt.Errorf("invalid year %q", raw)
	}
	return y, nil
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Directory.Get(r.Context(), actor(r).EmployeeID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(*emp, h.today()))
}

func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	activeOnly := !(actor(r).Admin && r.URL.Query().Get("all") == "true")
	employees, err := h.Directory.List(r.Context(), activeOnly)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	today := h.today()
	out := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		out[i] = toEmployeeDTO(e, today)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Directory.Get(r.Context(), timeoff.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(*emp, h.today()))
}

func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, err := generic.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_date", err)
		return
	}
	emp := timeoff.Employee{
		ID:           timeoff.EmployeeID(req.ID),
		Name:         req.Name,
		Email:        req.Email,
		Position:     req.Position,
		Department:   req.Department,
		Country:      req.Country,
		StartDate:    start,
		IsSenior:     req.IsSenior,
		IsSupervisor: req.IsSupervisor,
		IsActive:     true,
	}
	if req.SupervisorID != nil {
		sup := timeoff.EmployeeID(*req.SupervisorID)
		emp.SupervisorID = &sup
	}

	created, err := h.Directory.Create(r.Context(), emp)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(*created, h.today()))
}

func (h *Handler) AssignSupervisor(w http.ResponseWriter, r *http.Request) {
	var req AssignSupervisorRequest
	if !h.decode(w, r, &req) {
		return
	}
	var sup *timeoff.EmployeeID
	if req.SupervisorID != nil {
		id := timeoff.EmployeeID(*req.SupervisorID)
		sup = &id
	}
	emp, err := h.Directory.AssignSupervisor(r.Context(), timeoff.EmployeeID(chi.URLParam(r, "id")), sup)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(*emp, h.today()))
}

func (h *Handler) DeactivateEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Directory.Deactivate(r.Context(), timeoff.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(*emp, h.today()))
}

// =============================================================================
// LEAVE TYPES
// =============================================================================

func (h *Handler) ListLeaveTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Catalog.List(r.Context(), r.URL.Query().Get("all") != "true")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]LeaveTypeDTO, len(types))
	for i, lt := range types {
		out[i] = toLeaveTypeDTO(lt)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) SaveLeaveType(w http.ResponseWriter, r *http.Request) {
	var req SaveLeaveTypeRequest
	if !h.decode(w, r, &req) {
		return
	}
	lt := timeoff.LeaveType{
		Name:                  req.Name,
		RequiresApproval:      req.RequiresApproval == nil || *req.RequiresApproval,
		RequiresDocumentation: req.RequiresDocumentation,
		RequiresReason:        req.RequiresReason,
		IsActive:              req.IsActive == nil || *req.IsActive,
		PayPercentage:         decimal.NewFromInt(100),
	}
	if req.PayPercentage != "" {
		pay, err := decimal.NewFromString(req.PayPercentage)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid pay_percentage", err)
			return
		}
		lt.PayPercentage = pay
	}

	saved, err := h.Catalog.Save(r.Context(), lt)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveTypeDTO(*saved))
}

// =============================================================================
// BALANCES
// =============================================================================

func (h *Handler) MyBalances(w http.ResponseWriter, r *http.Request) {
	h.writeBalances(w, r, actor(r).EmployeeID)
}

// EmployeeBalances is open to the employee, the direct supervisor and admins.
func (h *Handler) EmployeeBalances(w http.ResponseWriter, r *http.Request) {
	id := timeoff.EmployeeID(chi.URLParam(r, "id"))
	caller := actor(r)
	if id != caller.EmployeeID && !caller.Admin {
		emp, err := h.Directory.Get(r.Context(), id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if !emp.ReportsTo(caller.EmployeeID) {
			h.fail(w, r, &timeoff.AuthorizationError{Actor: caller.EmployeeID, Operation: "view balances of " + string(id)})
			return
		}
	}
	h.writeBalances(w, r, id)
}

func (h *Handler) writeBalances(w http.ResponseWriter, r *http.Request, id timeoff.EmployeeID) {
	year, err := h.year(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid year", err)
		return
	}
	balances, err := h.Ledger.ListBalances(r.Context(), id, year)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]BalanceDTO, len(balances))
	for i, b := range balances {
		out[i] = toBalanceDTO(b)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	var req AdjustBalanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	allocated, err := generic.ParseDays(req.AllocatedDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid allocated_days", err)
		return
	}
	carry := decimal.Zero
	if req.CarryOverDays != "" {
		if carry, err = generic.ParseDays(req.CarryOverDays); err != nil {
			writeError(w, http.StatusBadRequest, "invalid carry_over_days", err)
			return
		}
	}

	b, err := h.Ledger.Adjust(r.Context(), timeoff.EmployeeID(req.EmployeeID), req.LeaveTypeID, req.Year, allocated, carry)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("balance adjusted by admin",
		zap.String("admin_id", string(actor(r).EmployeeID)),
		zap.String("employee_id", req.EmployeeID),
		zap.String("leave_type_id", req.LeaveTypeID),
		zap.Int("year", req.Year))
	writeJSON(w, http.StatusOK, toBalanceDTO(*b))
}

func (h *Handler) CarryOver(w http.ResponseWriter, r *http.Request) {
	var req CarryOverRequest
	if !h.decode(w, r, &req) {
		return
	}
	maxDays, err := generic.ParseDays(req.MaxDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid max_days", err)
		return
	}

	results, err := runCarryOver(r.Context(), h.Directory, h.Ledger, req.FromYear, req.LeaveTypeIDs, maxDays)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]CarryOverResultDTO, len(results))
	for i, res := range results {
		out[i] = CarryOverResultDTO{
			EmployeeID:  string(res.EmployeeID),
			LeaveTypeID: res.LeaveTypeID,
			Days:        res.Days.String(),
			Skipped:     res.Skipped,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// REQUESTS
// =============================================================================

func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var req CreateRequestRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := timeoff.CreateInput{
		EmployeeID:  actor(r).EmployeeID,
		LeaveTypeID: req.LeaveTypeID,
		Duration:    timeoff.DurationKind(req.Duration),
		Reason:      req.Reason,
		DocumentRef: req.DocumentRef,
	}
	var err error
	if in.StartDate, err = generic.ParseDate(req.StartDate); err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_date", err)
		return
	}
	if in.EndDate, err = generic.ParseDate(req.EndDate); err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_date", err)
		return
	}
	if in.StartTime, err = parseTime(req.StartTime); err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_time", err)
		return
	}
	if in.EndTime, err = parseTime(req.EndTime); err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_time", err)
		return
	}

	created, err := h.Requests.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(*created))
}

func parseTime(s string) (*generic.TimeOfDay, error) {
	if s == "" {
		return nil, nil
	}
	t, err := generic.ParseTimeOfDay(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (h *Handler) MyRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.Requests.ListForEmployee(r.Context(), actor(r).EmployeeID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTOs(reqs))
}

func (h *Handler) TeamRequests(w http.ResponseWriter, r *http.Request) {
	var status *timeoff.RequestStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := timeoff.RequestStatus(raw)
		switch s {
		case timeoff.StatusPending, timeoff.StatusApproved, timeoff.StatusRejected, timeoff.StatusCancelled:
			status = &s
		default:
			writeError(w, http.StatusBadRequest, "invalid status", fmt.Errorf("unknown status %q", raw))
			return
		}
	}
	reqs, err := h.Requests.ListForSupervisor(r.Context(), actor(r).EmployeeID, status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTOs(reqs))
}

func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Requests.Get(r.Context(), timeoff.RequestID(chi.URLParam(r, "id")), actor(r).EmployeeID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(*req))
}

func (h *Handler) RequestHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Requests.History(r.Context(), timeoff.RequestID(chi.URLParam(r, "id")), actor(r).EmployeeID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]HistoryDTO, len(entries))
	for i, e := range entries {
		out[i] = HistoryDTO{
			ID:        e.ID,
			Action:    string(e.Action),
			ActorID:   string(e.ActorID),
			Timestamp: e.Timestamp,
			Comment:   e.Comment,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.Requests.Approve(r.Context(), timeoff.RequestID(chi.URLParam(r, "id")), actor(r).EmployeeID, req.Comment)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(*out))
}

func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.Requests.Reject(r.Context(), timeoff.RequestID(chi.URLParam(r, "id")), actor(r).EmployeeID, req.Comment)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(*out))
}

func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	out, err := h.Requests.Cancel(r.Context(), timeoff.RequestID(chi.URLParam(r, "id")), actor(r).EmployeeID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(*out))
}
