/*
directory.go - Employees and the supervisor hierarchy

PURPOSE:
  Onboards employees, reassigns supervisors and soft-deactivates leavers.
  The supervisor links form a forest; AssignSupervisor keeps it acyclic by
  walking the proposed supervisor's ancestors before writing.

RULES:
  - Email must be inside the organization domain
  - A supervisor must exist
  - An employee is never its own ancestor
  - Employees are never deleted
*/
package timeoff

import (
	"context"
	"errors"
	"strings"

	"github.com/warp/leave-engine/generic"
	"go.uber.org/zap"
)

// Directory manages employees.
type Directory struct {
	store TxStore
	settings
}

// NewDirectory creates a directory over store.
func NewDirectory(store TxStore, opts ...Option) *Directory {
	return &Directory{store: store, settings: newSettings(opts)}
}

// Domain returns the organization email domain.
func (d *Directory) Domain() string { return d.domain }

// Create onboards a new employee. The ID must not be in use.
func (d *Directory) Create(ctx context.Context, e Employee) (*Employee, error) {
	if strings.TrimSpace(string(e.ID)) == "" || strings.TrimSpace(e.Name) == "" {
		return nil, invalid(ReasonMissingField, "employee id and name are required")
	}
	e.Email = strings.TrimSpace(e.Email)
	if !InOrganization(e.Email, d.domain) {
		return nil, invalid(ReasonInvalidEmailDomain, "email %q is not in @%s", e.Email, d.domain)
	}

	err := d.store.WithTx(ctx, func(tx Store) error {
		_, err := tx.GetEmployee(ctx, e.ID)
		if err == nil {
			return generic.Duplicate("employee", e.ID)
		}
		if !generic.IsNotFound(err) {
			return storageErr("get employee", err)
		}
		if e.SupervisorID != nil {
			if *e.SupervisorID == e.ID {
				return invalid(ReasonSupervisorCycle, "employee %s cannot supervise itself", e.ID)
			}
			if _, err := tx.GetEmployee(ctx, *e.SupervisorID); err != nil {
				return storageErr("get supervisor", err)
			}
		}
		now := d.now()
		e.CreatedAt, e.UpdatedAt = now, now
		return storageErr("save employee", tx.SaveEmployee(ctx, e))
	})
	if err != nil {
		return nil, err
	}
	d.logger.Info("employee created", zap.String("employee_id", string(e.ID)))
	return &e, nil
}

// AssignSupervisor sets or clears (nil) the employee's supervisor.
func (d *Directory) AssignSupervisor(ctx context.Context, employeeID EmployeeID, supervisorID *EmployeeID) (*Employee, error) {
	var out *Employee
	err := d.store.WithTx(ctx, func(tx Store) error {
		emp, err := tx.GetEmployee(ctx, employeeID)
		if err != nil {
			return storageErr("get employee", err)
		}
		if supervisorID != nil {
			if err := checkNoCycle(ctx, tx, employeeID, *supervisorID); err != nil {
				return err
			}
		}
		emp.SupervisorID = supervisorID
		emp.UpdatedAt = d.now()
		if err := tx.SaveEmployee(ctx, *emp); err != nil {
			return storageErr("save employee", err)
		}
		out = emp
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.logger.Info("supervisor assigned", zap.String("employee_id", string(employeeID)))
	return out, nil
}

var errCorruptHierarchy = errors.New("supervisor chain already contains a cycle")

// checkNoCycle walks up from supervisorID. Reaching employeeID means the
// new link would close a loop.
func checkNoCycle(ctx context.Context, s Store, employeeID, supervisorID EmployeeID) error {
	seen := map[EmployeeID]bool{}
	cur := &supervisorID
	for cur != nil {
		if *cur == employeeID {
			return invalid(ReasonSupervisorCycle, "%s cannot report to %s: it would create a cycle", employeeID, supervisorID)
		}
		if seen[*cur] {
			return &StorageError{Op: "walk supervisors", Err: errCorruptHierarchy}
		}
		seen[*cur] = true
		anc, err := s.GetEmployee(ctx, *cur)
		if err != nil {
			return storageErr("get employee", err)
		}
		cur = anc.SupervisorID
	}
	return nil
}

// Deactivate clears the active flag. The employee's history is kept.
func (d *Directory) Deactivate(ctx context.Context, employeeID EmployeeID) (*Employee, error) {
	var out *Employee
	err := d.store.WithTx(ctx, func(tx Store) error {
		emp, err := tx.GetEmployee(ctx, employeeID)
		if err != nil {
			return storageErr("get employee", err)
		}
		emp.IsActive = false
		emp.UpdatedAt = d.now()
		out = emp
		return storageErr("save employee", tx.SaveEmployee(ctx, *emp))
	})
	if err != nil {
		return nil, err
	}
	d.logger.Info("employee deactivated", zap.String("employee_id", string(employeeID)))
	return out, nil
}

func (d *Directory) Get(ctx context.Context, id EmployeeID) (*Employee, error) {
	e, err := d.store.GetEmployee(ctx, id)
	return e, storageErr("get employee", err)
}

func (d *Directory) List(ctx context.Context, activeOnly bool) ([]Employee, error) {
	es, err := d.store.ListEmployees(ctx, activeOnly)
	return es, storageErr("list employees", err)
}

// Subordinates returns the direct reports of supervisorID.
func (d *Directory) Subordinates(ctx context.Context, supervisorID EmployeeID) ([]Employee, error) {
	es, err := d.store.ListSubordinates(ctx, supervisorID)
	return es, storageErr("list subordinates", err)
}
