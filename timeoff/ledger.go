/*
ledger.go - Per-employee, per-leave-type, per-year balances

PURPOSE:
  The Ledger is the single source of truth for how many days of a leave
  type an employee may still take in a year. One LeaveBalance row exists per
  (employee, leave type, year) and is created lazily from the default
  allocation table.

DERIVED FIGURES:
  available = allocated + carry_over - used   (never clamped)
  used %    = used / (allocated + carry_over) * 100, 0 when nothing allocated

CRITICAL INVARIANTS:
  1. used_days only grows through ApplyUsage, which refuses to overdraw
  2. Every write is a conditional update on the row version
  3. Carry-over out of a year happens at most once per (employee, type)
  4. used + carried out never exceeds allocated + carry_over of a year

CARRY-OVER:
  Days still reserved by pending requests starting in the year stay behind.
  Once a year is carried over, usage of that year is checked against
  available minus the days carried out (see Spendable).

CONCURRENCY:
  Two creators of the same row converge: the loser of the insert gets
  generic.ErrDuplicate and re-reads the winner's row.

SEE ALSO:
  - allocation.go: Default allocation table
  - request.go: Debits the ledger on approval
*/
package timeoff

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"go.uber.org/zap"
)

// Ledger reads and mutates leave balances.
type Ledger struct {
	store TxStore
	settings
}

// NewLedger creates a ledger over store.
func NewLedger(store TxStore, opts ...Option) *Ledger {
	return &Ledger{store: store, settings: newSettings(opts)}
}

// =============================================================================
// READS
// =============================================================================

// GetBalance returns the balance row, or an error wrapping generic.ErrNotFound.
func (l *Ledger) GetBalance(ctx context.Context, employeeID EmployeeID, leaveTypeID string, year int) (*LeaveBalance, error) {
	b, err := l.store.GetBalance(ctx, employeeID, leaveTypeID, year)
	if err != nil {
		return nil, storageErr("get balance", err)
	}
	return b, nil
}

// ListBalances returns every balance row the employee has for year.
func (l *Ledger) ListBalances(ctx context.Context, employeeID EmployeeID, year int) ([]LeaveBalance, error) {
	bs, err := l.store.ListBalances(ctx, employeeID, year)
	if err != nil {
		return nil, storageErr("list balances", err)
	}
	return bs, nil
}

// GetOrCreate returns the existing row or persists a new one allocated from
// the default table, with nothing used or carried over.
func (l *Ledger) GetOrCreate(ctx context.Context, employeeID EmployeeID, leaveTypeID string, year int) (*LeaveBalance, error) {
	return l.getOrCreate(ctx, l.store, employeeID, leaveTypeID, year)
}

func (l *Ledger) getOrCreate(ctx context.Context, s Store, employeeID EmployeeID, leaveTypeID string, year int) (*LeaveBalance, error) {
	b, err := s.GetBalance(ctx, employeeID, leaveTypeID, year)
	if err == nil {
		return b, nil
	}
	if !generic.IsNotFound(err) {
		return nil, storageErr("get balance", err)
	}

	emp, err := s.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, storageErr("get employee", err)
	}
	lt, err := s.GetLeaveType(ctx, leaveTypeID)
	if err != nil {
		return nil, storageErr("get leave type", err)
	}

	now := l.now()
	fresh := LeaveBalance{
		ID:            uuid.NewString(),
		EmployeeID:    employeeID,
		LeaveTypeID:   leaveTypeID,
		Year:          year,
		AllocatedDays: DefaultAllocation(lt.Name, emp.IsSenior),
		UsedDays:      decimal.Zero,
		CarryOverDays: decimal.Zero,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, known := AllocationTable[lt.Name]; !known {
		l.logger.Warn("no default allocation for leave type",
			zap.String("leave_type", lt.Name),
			zap.String("employee_id", string(employeeID)))
	}

	err = s.CreateBalance(ctx, fresh)
	if errors.Is(err, generic.ErrDuplicate) {
		b, err = s.GetBalance(ctx, employeeID, leaveTypeID, year)
		if err != nil {
			return nil, storageErr("get balance", err)
		}
		return b, nil
	}
	if err != nil {
		return nil, storageErr("create balance", err)
	}
	l.logger.Debug("balance created",
		zap.String("employee_id", string(employeeID)),
		zap.String("leave_type", lt.Name),
		zap.Int("year", year),
		zap.String("allocated", fresh.AllocatedDays.String()))
	return &fresh, nil
}

// =============================================================================
// PURE OPERATIONS
// =============================================================================

// AvailableDays is allocated + carry-over - used. A negative result means
// the row is corrupt and is returned unchanged.
func AvailableDays(b LeaveBalance) decimal.Decimal {
	return b.AvailableDays()
}

// ApplyUsage adds days to the balance's used days. It refuses to take the
// balance below zero.
func ApplyUsage(b *LeaveBalance, days decimal.Decimal) error {
	return applyUsage(b, days, decimal.Zero)
}

// applyUsage is ApplyUsage on a balance of which carriedOut days already
// moved to the next year.
func applyUsage(b *LeaveBalance, days, carriedOut decimal.Decimal) error {
	if days.IsNegative() {
		return invalid(ReasonInvalidAllocation, "usage must not be negative, got %s", days)
	}
	if available := b.AvailableDays().Sub(carriedOut); days.GreaterThan(available) {
		return &InsufficientBalanceError{
			EmployeeID:  b.EmployeeID,
			LeaveTypeID: b.LeaveTypeID,
			Year:        b.Year,
			Available:   available,
			Requested:   days,
		}
	}
	b.UsedDays = b.UsedDays.Add(days)
	return nil
}

// Spendable is what new usage may still draw from b: its available days
// minus whatever a carry-over already moved out of b's year.
func (l *Ledger) Spendable(ctx context.Context, b LeaveBalance) (decimal.Decimal, error) {
	return spendable(ctx, l.store, b)
}

func spendable(ctx context.Context, s Store, b LeaveBalance) (decimal.Decimal, error) {
	out, err := carriedOut(ctx, s, b.EmployeeID, b.LeaveTypeID, b.Year)
	if err != nil {
		return decimal.Zero, err
	}
	return b.AvailableDays().Sub(out), nil
}

func carriedOut(ctx context.Context, s Store, employeeID EmployeeID, leaveTypeID string, year int) (decimal.Decimal, error) {
	run, err := s.GetCarryOver(ctx, employeeID, leaveTypeID, year)
	if generic.IsNotFound(err) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, storageErr("get carry-over", err)
	}
	return run.Days, nil
}

// pendingDays sums the pending requests of the employee for the leave type
// that start in year.
func pendingDays(ctx context.Context, s Store, employeeID EmployeeID, leaveTypeID string, year int) (decimal.Decimal, error) {
	pending := StatusPending
	reqs, err := s.ListRequests(ctx, RequestFilter{EmployeeIDs: []EmployeeID{employeeID}, Status: &pending})
	if err != nil {
		return decimal.Zero, storageErr("list requests", err)
	}
	total := decimal.Zero
	for _, r := range reqs {
		if r.LeaveTypeID == leaveTypeID && r.StartDate.Year() == year {
			total = total.Add(r.TotalDays)
		}
	}
	return total, nil
}

// =============================================================================
// ADMINISTRATION
// =============================================================================

// Adjust sets the allocated and carry-over days of a balance, creating the
// row if needed. Used days are left alone.
func (l *Ledger) Adjust(ctx context.Context, employeeID EmployeeID, leaveTypeID string, year int, allocated, carryOver decimal.Decimal) (*LeaveBalance, error) {
	if allocated.IsNegative() || carryOver.IsNegative() {
		return nil, invalid(ReasonInvalidAllocation, "allocated and carry-over days must not be negative")
	}
	var out *LeaveBalance
	err := l.store.WithTx(ctx, func(tx Store) error {
		b, err := l.getOrCreate(ctx, tx, employeeID, leaveTypeID, year)
		if err != nil {
			return err
		}
		b.AllocatedDays = allocated
		b.CarryOverDays = carryOver
		b.UpdatedAt = l.now()
		if err := tx.UpdateBalance(ctx, *b); err != nil {
			return storageErr("update balance", err)
		}
		b.Version++
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("balance adjusted",
		zap.String("employee_id", string(employeeID)),
		zap.String("leave_type_id", leaveTypeID),
		zap.Int("year", year),
		zap.String("allocated", allocated.String()),
		zap.String("carry_over", carryOver.String()))
	return out, nil
}

// CarryOver moves up to maxDays of unused fromYear days into the carry-over
// of fromYear+1 and returns the amount moved. Days reserved by pending
// requests starting in fromYear are not moved. Running it again for the same
// year moves nothing and returns generic.ErrDuplicate.
func (l *Ledger) CarryOver(ctx context.Context, employeeID EmployeeID, leaveTypeID string, fromYear int, maxDays decimal.Decimal) (decimal.Decimal, error) {
	if maxDays.IsNegative() {
		return decimal.Zero, invalid(ReasonInvalidAllocation, "carry-over cap must not be negative")
	}
	moved := decimal.Zero
	err := l.store.WithTx(ctx, func(tx Store) error {
		from, err := tx.GetBalance(ctx, employeeID, leaveTypeID, fromYear)
		if err != nil {
			return storageErr("get balance", err)
		}
		reserved, err := pendingDays(ctx, tx, employeeID, leaveTypeID, fromYear)
		if err != nil {
			return err
		}
		days := decimal.Min(from.AvailableDays().Sub(reserved), maxDays)
		if days.IsNegative() {
			days = decimal.Zero
		}

		run := CarryOverRun{
			EmployeeID:  employeeID,
			LeaveTypeID: leaveTypeID,
			FromYear:    fromYear,
			Days:        days,
			CreatedAt:   l.now(),
		}
		if err := tx.RecordCarryOver(ctx, run); err != nil {
			if errors.Is(err, generic.ErrDuplicate) {
				return err
			}
			return storageErr("record carry-over", err)
		}

		if days.IsZero() {
			return nil
		}
		to, err := l.getOrCreate(ctx, tx, employeeID, leaveTypeID, fromYear+1)
		if err != nil {
			return err
		}
		to.CarryOverDays = to.CarryOverDays.Add(days)
		to.UpdatedAt = l.now()
		if err := tx.UpdateBalance(ctx, *to); err != nil {
			return storageErr("update balance", err)
		}
		moved = days
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	l.logger.Info("carry-over applied",
		zap.String("employee_id", string(employeeID)),
		zap.String("leave_type_id", leaveTypeID),
		zap.Int("from_year", fromYear),
		zap.String("days", moved.String()))
	return moved, nil
}
