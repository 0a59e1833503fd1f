/*
store.go - Persistence and notification contracts of the leave domain

PURPOSE:
  The services in this package never talk to a database directly. They
  depend on Store for reads and writes and on TxStore.WithTx to make a
  multi-row change atomic. Implementations live in store/sqlite and
  store/postgres.

CONTRACT:
  - Missing rows return an error wrapping generic.ErrNotFound
  - Unique-key violations return an error wrapping generic.ErrDuplicate
  - UpdateBalance matches on (ID, Version); a stale version returns
    generic.ErrConcurrentModification and bumps nothing
  - UpdateRequest matches on (ID, expected status) the same way
  - History is append-only; there is no update or delete

TRANSACTIONS:
  err := store.WithTx(ctx, func(tx timeoff.Store) error {
      // all reads and writes through tx
      return nil // commit
  })
*/
package timeoff

import (
	"context"
)

// Store is the persistence surface used by the leave services.
type Store interface {
	// Employees
	GetEmployee(ctx context.Context, id EmployeeID) (*Employee, error)
	ListEmployees(ctx context.Context, activeOnly bool) ([]Employee, error)
	ListSubordinates(ctx context.Context, supervisorID EmployeeID) ([]Employee, error)
	SaveEmployee(ctx context.Context, e Employee) error

	// Leave types
	GetLeaveType(ctx context.Context, id string) (*LeaveType, error)
	GetLeaveTypeByName(ctx context.Context, name string) (*LeaveType, error)
	ListLeaveTypes(ctx context.Context, activeOnly bool) ([]LeaveType, error)
	SaveLeaveType(ctx context.Context, lt LeaveType) error

	// Balances
	GetBalance(ctx context.Context, employeeID EmployeeID, leaveTypeID string, year int) (*LeaveBalance, error)
	ListBalances(ctx context.Context, employeeID EmployeeID, year int) ([]LeaveBalance, error)
	CreateBalance(ctx context.Context, b LeaveBalance) error
	UpdateBalance(ctx context.Context, b LeaveBalance) error

	// Requests
	CreateRequest(ctx context.Context, r LeaveRequest) error
	GetRequest(ctx context.Context, id RequestID) (*LeaveRequest, error)
	UpdateRequest(ctx context.Context, r LeaveRequest, expected RequestStatus) error
	ListRequests(ctx context.Context, filter RequestFilter) ([]LeaveRequest, error)

	// History
	AppendHistory(ctx context.Context, h HistoryEntry) error
	ListHistory(ctx context.Context, requestID RequestID) ([]HistoryEntry, error)

	// Carry-over
	RecordCarryOver(ctx context.Context, run CarryOverRun) error
	GetCarryOver(ctx context.Context, employeeID EmployeeID, leaveTypeID string, fromYear int) (*CarryOverRun, error)
}

// TxStore is a Store that can run a function inside one transaction.
// fn's error rolls the transaction back; nil commits it.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

// RequestFilter selects requests for ListRequests. Results are newest first.
type RequestFilter struct {
	EmployeeIDs []EmployeeID
	Status      *RequestStatus
	Limit       int
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// Message is an outbound notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier delivers messages. Delivery failures are reported but never undo
// the state change that triggered them.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// NopNotifier drops every message.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Message) error { return nil }
