package factory

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
)

// =============================================================================
// YAML SCHEMA TYPES
// =============================================================================

// SeedFile is the YAML document accepted by LoadSeed. An empty LeaveTypes
// list seeds DefaultLeaveTypes.
type SeedFile struct {
	LeaveTypes      []LeaveTypeYAML `yaml:"leave_types" validate:"dive"`
	Employees       []EmployeeYAML  `yaml:"employees" validate:"dive"`
	Balances        []BalanceYAML   `yaml:"balances" validate:"dive"`
	DefaultBalances bool            `yaml:"default_balances"`
}

type LeaveTypeYAML struct {
	Name                  string `yaml:"name" validate:"required"`
	RequiresApproval      *bool  `yaml:"requires_approval"`
	RequiresDocumentation bool   `yaml:"requires_documentation"`
	RequiresReason        bool   `yaml:"requires_reason"`
	Inactive              bool   `yaml:"inactive"`
	PayPercentage         string `yaml:"pay_percentage" validate:"omitempty,numeric"`
}

// EmployeeYAML describes one employee. Manager is the supervisor's ID and
// may refer to an employee listed later in the file.
type EmployeeYAML struct {
	ID         string `yaml:"id" validate:"required"`
	Name       string `yaml:"name" validate:"required"`
	Email      string `yaml:"email" validate:"required,email"`
	Position   string `yaml:"position"`
	Department string `yaml:"department"`
	Country    string `yaml:"country"`
	StartDate  string `yaml:"start_date" validate:"required,datetime=2006-01-02"`
	Senior     bool   `yaml:"senior"`
	Supervisor bool   `yaml:"supervisor"`
	Inactive   bool   `yaml:"inactive"`
	Manager    string `yaml:"manager" validate:"omitempty,nefield=ID"`
}

// BalanceYAML overrides one balance. Empty Allocated keeps the default
// allocation.
type BalanceYAML struct {
	Employee  string `yaml:"employee" validate:"required"`
	LeaveType string `yaml:"leave_type" validate:"required"`
	Year      int    `yaml:"year" validate:"required,min=2000,max=2100"`
	Allocated string `yaml:"allocated" validate:"omitempty,numeric"`
	CarryOver string `yaml:"carry_over" validate:"omitempty,numeric"`
}

var validate = validator.New()

// LoadSeed reads and validates a seed file.
func LoadSeed(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed parses and validates a seed document.
func ParseSeed(data []byte) (*SeedFile, error) {
	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if err := validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("seed validation failed: %w", err)
	}

	ids := make(map[string]bool, len(f.Employees))
	for _, e := range f.Employees {
		if ids[e.ID] {
			return nil, fmt.Errorf("seed validation failed: employee %s listed twice", e.ID)
		}
		ids[e.ID] = true
	}
	return &f, nil
}

func (lt LeaveTypeYAML) toLeaveType() (timeoff.LeaveType, error) {
	pay := decimal.NewFromInt(100)
	if lt.PayPercentage != "" {
		var err error
		if pay, err = decimal.NewFromString(lt.PayPercentage); err != nil {
			return timeoff.LeaveType{}, fmt.Errorf("invalid pay percentage %q: %w", lt.PayPercentage, err)
		}
	}
	approval := true
	if lt.RequiresApproval != nil {
		approval = *lt.RequiresApproval
	}
	return timeoff.LeaveType{
		Name:                  lt.Name,
		RequiresApproval:      approval,
		RequiresDocumentation: lt.RequiresDocumentation,
		RequiresReason:        lt.RequiresReason,
		IsActive:              !lt.Inactive,
		PayPercentage:         pay,
	}, nil
}

func (e EmployeeYAML) toEmployee() timeoff.Employee {
	return timeoff.Employee{
		ID:           timeoff.EmployeeID(e.ID),
		Name:         e.Name,
		Email:        e.Email,
		Position:     e.Position,
		Department:   e.Department,
		Country:      e.Country,
		StartDate:    generic.MustParseDate(e.StartDate),
		IsSenior:     e.Senior,
		IsSupervisor: e.Supervisor,
		IsActive:     !e.Inactive,
	}
}

// =============================================================================
// SEEDER
// =============================================================================

// SeedReport counts what Apply wrote.
type SeedReport struct {
	LeaveTypes       int
	EmployeesCreated int
	EmployeesSkipped int
	Balances         int
}

// Seeder writes a SeedFile through the domain services, so every rule the
// services enforce (email domain, acyclic hierarchy, pay range) applies to
// seeded data too.
type Seeder struct {
	catalog   *timeoff.Catalog
	directory *timeoff.Directory
	ledger    *timeoff.Ledger
	logger    *zap.Logger
}

func NewSeeder(catalog *timeoff.Catalog, directory *timeoff.Directory, ledger *timeoff.Ledger, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{catalog: catalog, directory: directory, ledger: ledger, logger: logger.Named("seed")}
}

// Apply seeds leave types, then employees, then balances for year. Existing
// employees are left as they are; leave types are upserted by name.
func (s *Seeder) Apply(ctx context.Context, f *SeedFile, year int) (*SeedReport, error) {
	report := &SeedReport{}

	types := DefaultLeaveTypes()
	if len(f.LeaveTypes) > 0 {
		types = types[:0]
		for _, y := range f.LeaveTypes {
			lt, err := y.toLeaveType()
			if err != nil {
				return report, fmt.Errorf("leave type %s: %w", y.Name, err)
			}
			types = append(types, lt)
		}
	}
	for _, lt := range types {
		if _, err := s.catalog.Save(ctx, lt); err != nil {
			return report, fmt.Errorf("leave type %s: %w", lt.Name, err)
		}
		report.LeaveTypes++
	}

	// Supervisors are linked in a second pass so the file order does not matter.
	for _, e := range f.Employees {
		_, err := s.directory.Create(ctx, e.toEmployee())
		switch {
		case err == nil:
			report.EmployeesCreated++
		case errors.Is(err, generic.ErrDuplicate):
			s.logger.Info("employee already exists", zap.String("employee_id", e.ID))
			report.EmployeesSkipped++
		default:
			return report, fmt.Errorf("employee %s: %w", e.ID, err)
		}
	}
	for _, e := range f.Employees {
		if e.Manager == "" {
			continue
		}
		manager := timeoff.EmployeeID(e.Manager)
		if _, err := s.directory.AssignSupervisor(ctx, timeoff.EmployeeID(e.ID), &manager); err != nil {
			return report, fmt.Errorf("employee %s manager %s: %w", e.ID, e.Manager, err)
		}
	}

	if f.DefaultBalances {
		n, err := s.defaultBalances(ctx, year)
		report.Balances += n
		if err != nil {
			return report, err
		}
	}

	for _, b := range f.Balances {
		if err := s.balance(ctx, b); err != nil {
			return report, fmt.Errorf("balance %s/%s/%d: %w", b.Employee, b.LeaveType, b.Year, err)
		}
		report.Balances++
	}

	s.logger.Info("seed applied",
		zap.Int("leave_types", report.LeaveTypes),
		zap.Int("employees_created", report.EmployeesCreated),
		zap.Int("employees_skipped", report.EmployeesSkipped),
		zap.Int("balances", report.Balances))
	return report, nil
}

// defaultBalances opens a balance with the default allocation for every
// active employee and active leave type.
func (s *Seeder) defaultBalances(ctx context.Context, year int) (int, error) {
	employees, err := s.directory.List(ctx, true)
	if err != nil {
		return 0, err
	}
	types, err := s.catalog.List(ctx, true)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range employees {
		for _, lt := range types {
			if _, err := s.ledger.GetOrCreate(ctx, e.ID, lt.ID, year); err != nil {
				return n, fmt.Errorf("balance %s/%s/%d: %w", e.ID, lt.Name, year, err)
			}
			n++
		}
	}
	return n, nil
}

func (s *Seeder) balance(ctx context.Context, b BalanceYAML) error {
	lt, err := s.catalog.GetByName(ctx, b.LeaveType)
	if err != nil {
		return err
	}
	employee := timeoff.EmployeeID(b.Employee)

	current, err := s.ledger.GetOrCreate(ctx, employee, lt.ID, b.Year)
	if err != nil {
		return err
	}
	if b.Allocated == "" && b.CarryOver == "" {
		return nil
	}

	allocated := current.AllocatedDays
	if b.Allocated != "" {
		if allocated, err = generic.ParseDays(b.Allocated); err != nil {
			return err
		}
	}
	carry := current.CarryOverDays
	if b.CarryOver != "" {
		if carry, err = generic.ParseDays(b.CarryOver); err != nil {
			return err
		}
	}
	_, err = s.ledger.Adjust(ctx, employee, lt.ID, b.Year, allocated, carry)
	return err
}
