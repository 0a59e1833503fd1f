/*
request.go - Leave request lifecycle

STATE MACHINE:
  pending ──approve──► approved
     │ ├───reject───► rejected
     │ └───cancel───► cancelled

  Every state other than pending is terminal. A request cannot be edited
  once it has left pending; only its history grows.

CREATE VALIDATION (first failure wins):
  1. start_date <= end_date                     → InvalidDateRange
  2. start_date not before today                → PastDateNotAllowed
  3. hourly: start_time < end_time, 0.5h..8h    → InvalidTimeRange / DurationOutOfRange
  4. leave type requires a reason               → ReasonRequired
  5. total days computed (duration.go)
  6. total days <= spendable for the start year → InsufficientBalance
  7. persisted as pending with a "created" history entry

  The employee must be active and the leave type active before any of that.

APPROVAL:
  Only the employee's direct supervisor, holding the supervisor flag, may
  approve or reject. Approve re-checks the balance inside its transaction
  and debits it with a versioned update; a lost race is retried.

BALANCE YEAR:
  Both the Create check and the Approve debit use the balance of the year
  the leave starts in, less any days already carried out of that year.

NOTIFICATIONS:
  Sent after commit. A failed send is logged and never returned.
*/
package timeoff

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/warp/leave-engine/generic"
	"go.uber.org/zap"
)

// maxAttempts bounds how often a unit of work is retried after losing an
// optimistic-concurrency race.
const maxAttempts = 3

// CreateInput describes a new leave request. TotalDays is never accepted
// from the caller.
type CreateInput struct {
	EmployeeID  EmployeeID
	LeaveTypeID string
	StartDate   generic.Date
	EndDate     generic.Date
	Duration    DurationKind
	StartTime   *generic.TimeOfDay
	EndTime     *generic.TimeOfDay
	Reason      string
	DocumentRef string
}

func (in CreateInput) span() Span {
	return Span{
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
		Duration:  in.Duration,
	}
}

// RequestService runs the leave request lifecycle.
type RequestService struct {
	store  TxStore
	ledger *Ledger
	settings
}

// NewRequestService creates a request service debiting ledger.
func NewRequestService(store TxStore, ledger *Ledger, opts ...Option) *RequestService {
	return &RequestService{store: store, ledger: ledger, settings: newSettings(opts)}
}

// =============================================================================
// CREATE
// =============================================================================

// Create validates in and stores a pending request.
func (s *RequestService) Create(ctx context.Context, in CreateInput) (*LeaveRequest, error) {
	emp, err := s.store.GetEmployee(ctx, in.EmployeeID)
	if err != nil {
		return nil, storageErr("get employee", err)
	}
	if !emp.IsActive {
		return nil, invalid(ReasonEmployeeInactive, "employee %s is not active", emp.ID)
	}
	lt, err := s.store.GetLeaveType(ctx, in.LeaveTypeID)
	if err != nil {
		return nil, storageErr("get leave type", err)
	}
	if !lt.IsActive {
		return nil, invalid(ReasonLeaveTypeInactive, "leave type %s is not active", lt.Name)
	}

	span := in.span()
	if err := checkDates(span); err != nil {
		return nil, err
	}
	if today := s.today(); in.StartDate.Before(today) {
		return nil, invalid(ReasonPastDate, "start date %s is before today (%s)", in.StartDate, today)
	}
	totalDays, err := ComputeTotalDays(span)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(in.Reason)
	if lt.RequiresReason && reason == "" {
		return nil, invalid(ReasonReasonRequired, "%s leave requires a reason", lt.Name)
	}

	now := s.now()
	req := LeaveRequest{
		ID:          RequestID(uuid.NewString()),
		EmployeeID:  emp.ID,
		LeaveTypeID: lt.ID,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		Duration:    in.Duration,
		TotalDays:   totalDays,
		Reason:      reason,
		DocumentRef: in.DocumentRef,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Duration == DurationHours {
		req.StartTime, req.EndTime = in.StartTime, in.EndTime
	}

	err = s.store.WithTx(ctx, func(tx Store) error {
		bal, err := s.ledger.getOrCreate(ctx, tx, emp.ID, lt.ID, in.StartDate.Year())
		if err != nil {
			return err
		}
		available, err := spendable(ctx, tx, *bal)
		if err != nil {
			return err
		}
		if totalDays.GreaterThan(available) {
			return &InsufficientBalanceError{
				EmployeeID:  emp.ID,
				LeaveTypeID: lt.ID,
				Year:        bal.Year,
				Available:   available,
				Requested:   totalDays,
			}
		}
		if err := tx.CreateRequest(ctx, req); err != nil {
			return storageErr("create request", err)
		}
		return s.appendHistory(ctx, tx, req.ID, ActionCreated, emp.ID, "")
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("leave request created",
		zap.String("request_id", string(req.ID)),
		zap.String("employee_id", string(emp.ID)),
		zap.String("leave_type", lt.Name),
		zap.String("total_days", totalDays.String()))

	if emp.SupervisorID != nil {
		if sup, err := s.store.GetEmployee(ctx, *emp.SupervisorID); err == nil {
			s.notify(ctx, newRequestMessage(sup, emp, lt, req))
		} else {
			s.logger.Warn("supervisor lookup failed", zap.Error(err))
		}
	}
	return &req, nil
}

// =============================================================================
// DECISIONS
// =============================================================================

// Approve marks a pending request approved and debits the balance of the
// year the leave starts in.
func (s *RequestService) Approve(ctx context.Context, id RequestID, approverID EmployeeID, comment string) (*LeaveRequest, error) {
	return s.decide(ctx, id, approverID, comment, StatusApproved)
}

// Reject marks a pending request rejected. Balances are not touched.
func (s *RequestService) Reject(ctx context.Context, id RequestID, approverID EmployeeID, comment string) (*LeaveRequest, error) {
	return s.decide(ctx, id, approverID, comment, StatusRejected)
}

type decision struct {
	req       *LeaveRequest
	employee  *Employee
	leaveType *LeaveType
}

func (s *RequestService) decide(ctx context.Context, id RequestID, approverID EmployeeID, comment string, to RequestStatus) (*LeaveRequest, error) {
	op, action := "approve", ActionApproved
	if to == StatusRejected {
		op, action = "reject", ActionRejected
	}

	var d decision
	err := s.retry(ctx, op, func() error {
		return s.store.WithTx(ctx, func(tx Store) error {
			var err error
			d, err = s.decideTx(ctx, tx, id, approverID, comment, to, op, action)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("leave request "+string(to),
		zap.String("request_id", string(id)),
		zap.String("approver_id", string(approverID)),
		zap.String("total_days", d.req.TotalDays.String()))
	s.notify(ctx, statusMessage(d.employee, d.leaveType, *d.req))
	return d.req, nil
}

func (s *RequestService) decideTx(ctx context.Context, tx Store, id RequestID, approverID EmployeeID, comment string, to RequestStatus, op string, action HistoryAction) (decision, error) {
	req, err := tx.GetRequest(ctx, id)
	if err != nil {
		return decision{}, storageErr("get request", err)
	}
	emp, err := tx.GetEmployee(ctx, req.EmployeeID)
	if err != nil {
		return decision{}, storageErr("get employee", err)
	}
	if err := s.authorizeSupervisor(ctx, tx, approverID, emp, op, id); err != nil {
		return decision{}, err
	}
	if req.Status != StatusPending {
		return decision{}, &InvalidStateError{RequestID: id, Status: req.Status, Operation: op}
	}
	lt, err := tx.GetLeaveType(ctx, req.LeaveTypeID)
	if err != nil {
		return decision{}, storageErr("get leave type", err)
	}

	if to == StatusApproved {
		bal, err := s.ledger.getOrCreate(ctx, tx, req.EmployeeID, req.LeaveTypeID, req.StartDate.Year())
		if err != nil {
			return decision{}, err
		}
		out, err := carriedOut(ctx, tx, req.EmployeeID, req.LeaveTypeID, bal.Year)
		if err != nil {
			return decision{}, err
		}
		if err := applyUsage(bal, req.TotalDays, out); err != nil {
			return decision{}, err
		}
		bal.UpdatedAt = s.now()
		if err := tx.UpdateBalance(ctx, *bal); err != nil {
			return decision{}, storageErr("update balance", err)
		}
	}

	now := s.now()
	approver := approverID
	req.Status = to
	req.ApprovedBy = &approver
	req.ApprovedAt = &now
	req.SupervisorComments = strings.TrimSpace(comment)
	req.UpdatedAt = now
	if err := tx.UpdateRequest(ctx, *req, StatusPending); err != nil {
		return decision{}, storageErr("update request", err)
	}
	if err := s.appendHistory(ctx, tx, id, action, approverID, req.SupervisorComments); err != nil {
		return decision{}, err
	}
	return decision{req: req, employee: emp, leaveType: lt}, nil
}

// Cancel withdraws a pending request. Only its owner may cancel it.
func (s *RequestService) Cancel(ctx context.Context, id RequestID, requesterID EmployeeID) (*LeaveRequest, error) {
	var out *LeaveRequest
	err := s.retry(ctx, "cancel", func() error {
		return s.store.WithTx(ctx, func(tx Store) error {
			req, err := tx.GetRequest(ctx, id)
			if err != nil {
				return storageErr("get request", err)
			}
			if req.EmployeeID != requesterID {
				return &AuthorizationError{Actor: requesterID, Operation: "cancel", RequestID: id}
			}
			if req.Status != StatusPending {
				return &InvalidStateError{RequestID: id, Status: req.Status, Operation: "cancel"}
			}
			req.Status = StatusCancelled
			req.UpdatedAt = s.now()
			if err := tx.UpdateRequest(ctx, *req, StatusPending); err != nil {
				return storageErr("update request", err)
			}
			out = req
			return s.appendHistory(ctx, tx, id, ActionCancelled, requesterID, "")
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("leave request cancelled", zap.String("request_id", string(id)))
	return out, nil
}

// =============================================================================
// READS
// =============================================================================

// Get returns a request to its owner or the owner's direct supervisor.
func (s *RequestService) Get(ctx context.Context, id RequestID, actor EmployeeID) (*LeaveRequest, error) {
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, storageErr("get request", err)
	}
	if err := s.authorizeRead(ctx, req, actor); err != nil {
		return nil, err
	}
	return req, nil
}

// History returns the audit trail of a request, oldest first.
func (s *RequestService) History(ctx context.Context, id RequestID, actor EmployeeID) ([]HistoryEntry, error) {
	if _, err := s.Get(ctx, id, actor); err != nil {
		return nil, err
	}
	entries, err := s.store.ListHistory(ctx, id)
	if err != nil {
		return nil, storageErr("list history", err)
	}
	return entries, nil
}

// ListForEmployee returns the employee's own requests, newest first.
func (s *RequestService) ListForEmployee(ctx context.Context, employeeID EmployeeID) ([]LeaveRequest, error) {
	reqs, err := s.store.ListRequests(ctx, RequestFilter{EmployeeIDs: []EmployeeID{employeeID}})
	if err != nil {
		return nil, storageErr("list requests", err)
	}
	return reqs, nil
}

// ListForSupervisor returns requests of the supervisor's active direct
// reports, optionally restricted to one status.
func (s *RequestService) ListForSupervisor(ctx context.Context, supervisorID EmployeeID, status *RequestStatus) ([]LeaveRequest, error) {
	sup, err := s.store.GetEmployee(ctx, supervisorID)
	if err != nil {
		return nil, storageErr("get employee", err)
	}
	if !sup.IsSupervisor {
		return nil, &AuthorizationError{Actor: supervisorID, Operation: "review team requests"}
	}
	subs, err := s.store.ListSubordinates(ctx, supervisorID)
	if err != nil {
		return nil, storageErr("list subordinates", err)
	}
	ids := make([]EmployeeID, 0, len(subs))
	for _, e := range subs {
		if e.IsActive {
			ids = append(ids, e.ID)
		}
	}
	if len(ids) == 0 {
		return []LeaveRequest{}, nil
	}
	reqs, err := s.store.ListRequests(ctx, RequestFilter{EmployeeIDs: ids, Status: status})
	if err != nil {
		return nil, storageErr("list requests", err)
	}
	return reqs, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *RequestService) authorizeSupervisor(ctx context.Context, tx Store, approverID EmployeeID, emp *Employee, op string, id RequestID) error {
	denied := &AuthorizationError{Actor: approverID, Operation: op, RequestID: id}
	if !emp.ReportsTo(approverID) {
		return denied
	}
	approver, err := tx.GetEmployee(ctx, approverID)
	if generic.IsNotFound(err) {
		return denied
	}
	if err != nil {
		return storageErr("get employee", err)
	}
	if !approver.IsSupervisor || !approver.IsActive {
		return denied
	}
	return nil
}

func (s *RequestService) authorizeRead(ctx context.Context, req *LeaveRequest, actor EmployeeID) error {
	if req.EmployeeID == actor {
		return nil
	}
	emp, err := s.store.GetEmployee(ctx, req.EmployeeID)
	if err != nil {
		return storageErr("get employee", err)
	}
	if emp.ReportsTo(actor) {
		return nil
	}
	return &AuthorizationError{Actor: actor, Operation: "view", RequestID: req.ID}
}

func (s *RequestService) appendHistory(ctx context.Context, tx Store, id RequestID, action HistoryAction, actor EmployeeID, comment string) error {
	err := tx.AppendHistory(ctx, HistoryEntry{
		ID:        uuid.NewString(),
		RequestID: id,
		Action:    action,
		ActorID:   actor,
		Timestamp: s.now(),
		Comment:   comment,
	})
	return storageErr("append history", err)
}

// retry reruns fn while it fails with a retryable error.
func (s *RequestService) retry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil || !generic.IsRetryable(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.logger.Debug("retrying after concurrent modification",
			zap.String("op", op), zap.Int("attempt", attempt))
	}
	return err
}

func (s *RequestService) notify(ctx context.Context, msg Message) {
	if msg.To == "" {
		return
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.logger.Warn("notification failed",
			zap.String("to", msg.To),
			zap.String("subject", msg.Subject),
			zap.Error(err))
	}
}

func newRequestMessage(supervisor, emp *Employee, lt *LeaveType, r LeaveRequest) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "A new leave request has been submitted:\n\n")
	fmt.Fprintf(&b, "Employee: %s\n", emp.Name)
	fmt.Fprintf(&b, "Leave Type: %s\n", lt.Name)
	fmt.Fprintf(&b, "Duration: %s to %s (%s)\n", r.StartDate, r.EndDate, r.DurationText())
	fmt.Fprintf(&b, "Total Days: %s\n", r.TotalDays)
	if r.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", r.Reason)
	}
	fmt.Fprintf(&b, "\nPlease review and approve or reject the request.\n")
	return Message{
		To:      supervisor.Email,
		Subject: "New Leave Request from " + emp.Name,
		Body:    b.String(),
	}
}

func statusMessage(emp *Employee, lt *LeaveType, r LeaveRequest) Message {
	comments := r.SupervisorComments
	if comments == "" {
		comments = "None"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Your leave request has been %s:\n\n", r.Status)
	fmt.Fprintf(&b, "Leave Type: %s\n", lt.Name)
	fmt.Fprintf(&b, "Duration: %s to %s\n", r.StartDate, r.EndDate)
	fmt.Fprintf(&b, "Total Days: %s\n\n", r.TotalDays)
	fmt.Fprintf(&b, "Supervisor Comments: %s\n", comments)

	status := string(r.Status)
	return Message{
		To:      emp.Email,
		Subject: "Leave Request " + strings.ToUpper(status[:1]) + status[1:],
		Body:    b.String(),
	}
}
