/*
errors.go - Error taxonomy of the leave domain

ERROR CATEGORIES:
  1. Validation     - bad input or insufficient balance, carries a Reason code
  2. Authorization  - wrong actor for the operation
  3. Invalid state  - request is not in the state the operation needs
  4. Storage        - store failure, propagated with the failing operation

USAGE:
  _, err := svc.Create(ctx, input)
  if reason, ok := timeoff.ReasonOf(err); ok { ... reason == timeoff.ReasonPastDate ... }
  if errors.Is(err, timeoff.ErrNotAuthorized) { ... }

  Missing rows surface as generic.ErrNotFound.

SEE ALSO:
  - generic/errors.go: Storage sentinels
  - api/errors.go: HTTP status mapping
*/
package timeoff

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation          = errors.New("validation failed")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotAuthorized       = errors.New("not authorized")
	ErrInvalidState        = errors.New("invalid request state")
	ErrStorage             = errors.New("storage failure")
)

// =============================================================================
// VALIDATION
// =============================================================================

// Reason identifies why input was rejected.
type Reason string

const (
	ReasonInvalidDateRange    Reason = "invalid_date_range"
	ReasonPastDate            Reason = "past_date_not_allowed"
	ReasonInvalidTimeRange    Reason = "invalid_time_range"
	ReasonDurationOutOfRange  Reason = "duration_out_of_range"
	ReasonReasonRequired      Reason = "reason_required"
	ReasonInsufficientBalance Reason = "insufficient_balance"
	ReasonInvalidDuration     Reason = "invalid_duration"
	ReasonLeaveTypeInactive   Reason = "leave_type_inactive"
	ReasonEmployeeInactive    Reason = "employee_inactive"
	ReasonInvalidEmailDomain  Reason = "invalid_email_domain"
	ReasonSupervisorCycle     Reason = "supervisor_cycle"
	ReasonInvalidAllocation   Reason = "invalid_allocation"
	ReasonInvalidPayPercent   Reason = "invalid_pay_percentage"
	ReasonMissingField        Reason = "missing_field"
)

// ValidationError is a recoverable input error. Nothing was written.
type ValidationError struct {
	Reason  Reason
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(reason Reason, format string, args ...any) error {
	return &ValidationError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// InsufficientBalanceError is the validation failure raised when a request
// asks for more days than the balance holds.
type InsufficientBalanceError struct {
	EmployeeID  EmployeeID
	LeaveTypeID string
	Year        int
	Available   decimal.Decimal
	Requested   decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient leave balance: available %s days, requested %s days",
		e.Available.String(), e.Requested.String())
}

// Is matches both ErrInsufficientBalance and ErrValidation.
func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance || target == ErrValidation
}

// ReasonOf extracts the validation reason from err, if it is a validation error.
func ReasonOf(err error) (Reason, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason, true
	}
	var ie *InsufficientBalanceError
	if errors.As(err, &ie) {
		return ReasonInsufficientBalance, true
	}
	return "", false
}

// =============================================================================
// AUTHORIZATION AND STATE
// =============================================================================

// AuthorizationError reports an actor attempting an operation it may not perform.
type AuthorizationError struct {
	Actor     EmployeeID
	Operation string
	RequestID RequestID
}

func (e *AuthorizationError) Error() string {
	if e.RequestID == "" {
		return fmt.Sprintf("%s may not %s", e.Actor, e.Operation)
	}
	return fmt.Sprintf("%s may not %s request %s", e.Actor, e.Operation, e.RequestID)
}

func (e *AuthorizationError) Unwrap() error { return ErrNotAuthorized }

// InvalidStateError reports an operation on a request that already left pending.
type InvalidStateError struct {
	RequestID RequestID
	Status    RequestStatus
	Operation string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s request %s: status is %s", e.Operation, e.RequestID, e.Status)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// =============================================================================
// STORAGE
// =============================================================================

// StorageError wraps a store failure with the operation that hit it.
// errors.Is sees both ErrStorage and the underlying cause.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

// storageErr wraps err unless it is already classified: a domain error, a
// missing row or a lost optimistic-concurrency race.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if passThrough(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func passThrough(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotAuthorized) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrStorage) ||
		errors.Is(err, generic.ErrNotFound) ||
		errors.Is(err, generic.ErrConcurrentModification)
}
