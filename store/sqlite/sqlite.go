/*
Package sqlite provides a SQLite-backed implementation of timeoff.TxStore.

PURPOSE:
  Single-file (or in-memory) persistence for employees, leave types,
  balances, requests and their history. Used by the CLI by default and by
  every domain test.

KEY TABLES:
  employees:        People and their supervisor link (self reference)
  leave_types:      Catalog, unique by name
  leave_balances:   One row per (employee, leave type, year), versioned
  leave_requests:   Requests and their current status
  leave_history:    Append-only audit trail
  carry_over_runs:  One row per completed year-end carry-over

ENCODING:
  Day quantities:  TEXT decimal ("0.125"), never REAL
  Dates:           TEXT "YYYY-MM-DD"
  Times of day:    TEXT "HH:MM"
  Timestamps:      TEXT, fixed-width UTC so they sort lexically

CONCURRENCY:
  Write transactions open with BEGIN IMMEDIATE (_txlock=immediate) and wait
  on a busy timeout, so two writers serialize instead of failing on
  upgrade. WithTx additionally holds a process-local mutex.
  Balance updates are conditional on the version column and request
  updates on the prior status; a miss is generic.ErrConcurrentModification.

  Inside WithTx every statement goes through the *sql.Tx. Nothing reaches
  back to the pool, so an in-memory database (one connection) cannot
  deadlock against itself.

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - timeoff/store.go: Interface definitions
  - store/postgres: Production store
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
)

// timeLayout is fixed width so stored timestamps order correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements timeoff.TxStore using SQLite.
type Store struct {
	queries
	db *sql.DB
	mu sync.Mutex
}

var _ timeoff.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{queries: queries{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		position TEXT NOT NULL DEFAULT '',
		department TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT '',
		start_date TEXT NOT NULL,
		is_senior INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1,
		is_supervisor INTEGER NOT NULL DEFAULT 0,
		supervisor_id TEXT REFERENCES employees(id),
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employees_supervisor
		ON employees(supervisor_id) WHERE supervisor_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS leave_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		requires_approval INTEGER NOT NULL DEFAULT 1,
		requires_documentation INTEGER NOT NULL DEFAULT 0,
		requires_reason INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1,
		pay_percentage TEXT NOT NULL DEFAULT '100'
	);

	CREATE TABLE IF NOT EXISTS leave_balances (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		leave_type_id TEXT NOT NULL REFERENCES leave_types(id),
		year INTEGER NOT NULL,
		allocated_days TEXT NOT NULL,
		used_days TEXT NOT NULL,
		carry_over_days TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (employee_id, leave_type_id, year)
	);

	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		leave_type_id TEXT NOT NULL REFERENCES leave_types(id),
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		start_time TEXT,
		end_time TEXT,
		duration TEXT NOT NULL,
		total_days TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		document_ref TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		approved_by TEXT REFERENCES employees(id),
		approved_at TEXT,
		supervisor_comments TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_employee_created
		ON leave_requests(employee_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_requests_status
		ON leave_requests(status);

	-- Append-only: no UPDATE or DELETE is ever issued against this table
	CREATE TABLE IF NOT EXISTS leave_history (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL REFERENCES leave_requests(id),
		action TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		comment TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_history_request
		ON leave_history(request_id, timestamp);

	CREATE TABLE IF NOT EXISTS carry_over_runs (
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		from_year INTEGER NOT NULL,
		days TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, leave_type_id, from_year)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (timeoff.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store timeoff.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(queries{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements timeoff.Store over a querier.
type queries struct {
	q querier
}

type scanner interface {
	Scan(dest ...any) error
}

// =============================================================================
// EMPLOYEES
// =============================================================================

const employeeColumns = `id, name, email, position, department, country, start_date,
	is_senior, is_active, is_supervisor, supervisor_id, created_at, updated_at`

// SaveEmployee inserts or fully replaces an employee.
func (s queries) SaveEmployee(ctx context.Context, e timeoff.Employee) error {
	query := `
		INSERT INTO employees (` + employeeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			position = excluded.position,
			department = excluded.department,
			country = excluded.country,
			start_date = excluded.start_date,
			is_senior = excluded.is_senior,
			is_active = excluded.is_active,
			is_supervisor = excluded.is_supervisor,
			supervisor_id = excluded.supervisor_id,
			updated_at = excluded.updated_at
	`
	var supervisor sql.NullString
	if e.SupervisorID != nil {
		supervisor = nullString(string(*e.SupervisorID))
	}
	created, updated := stamps(e.CreatedAt, e.UpdatedAt)
	_, err := s.q.ExecContext(ctx, query,
		string(e.ID), e.Name, e.Email, e.Position, e.Department, e.Country,
		e.StartDate.String(),
		e.IsSenior, e.IsActive, e.IsSupervisor,
		supervisor, created, updated,
	)
	if err != nil {
		return translate(err, "employee", e.ID)
	}
	return nil
}

// GetEmployee retrieves an employee by ID.
func (s queries) GetEmployee(ctx context.Context, id timeoff.EmployeeID) (*timeoff.Employee, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = ?`, string(id))
	e, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.NotFound("employee", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get employee: %w", err)
	}
	return &e, nil
}

// ListEmployees returns employees ordered by name.
func (s queries) ListEmployees(ctx context.Context, activeOnly bool) ([]timeoff.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	return s.queryEmployees(ctx, query+` ORDER BY name, id`)
}

// ListSubordinates returns the direct reports of a supervisor.
func (s queries) ListSubordinates(ctx context.Context, supervisorID timeoff.EmployeeID) ([]timeoff.Employee, error) {
	return s.queryEmployees(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE supervisor_id = ? ORDER BY name, id`,
		string(supervisorID))
}

func (s queries) queryEmployees(ctx context.Context, query string, args ...any) ([]timeoff.Employee, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	var out []timeoff.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEmployee(row scanner) (timeoff.Employee, error) {
	var e timeoff.Employee
	var id, startDate, createdAt, updatedAt string
	var supervisor sql.NullString
	err := row.Scan(&id, &e.Name, &e.Email, &e.Position, &e.Department, &e.Country, &startDate,
		&e.IsSenior, &e.IsActive, &e.IsSupervisor, &supervisor, &createdAt, &updatedAt)
	if err != nil {
		return e, err
	}
	e.ID = timeoff.EmployeeID(id)
	if e.StartDate, err = generic.ParseDate(startDate); err != nil {
		return e, fmt.Errorf("employee %s: %w", id, err)
	}
	if supervisor.Valid {
		sup := timeoff.EmployeeID(supervisor.String)
		e.SupervisorID = &sup
	}
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return e, nil
}

// =============================================================================
// LEAVE TYPES
// =============================================================================

const leaveTypeColumns = `id, name, requires_approval, requires_documentation, requires_reason, is_active, pay_percentage`

// SaveLeaveType inserts or replaces a leave type by ID.
func (s queries) SaveLeaveType(ctx context.Context, lt timeoff.LeaveType) error {
	query := `
		INSERT INTO leave_types (` + leaveTypeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			requires_approval = excluded.requires_approval,
			requires_documentation = excluded.requires_documentation,
			requires_reason = excluded.requires_reason,
			is_active = excluded.is_active,
			pay_percentage = excluded.pay_percentage
	`
	_, err := s.q.ExecContext(ctx, query,
		lt.ID, lt.Name, lt.RequiresApproval, lt.RequiresDocumentation, lt.RequiresReason,
		lt.IsActive, lt.PayPercentage.String())
	if err != nil {
		return translate(err, "leave type", lt.Name)
	}
	return nil
}

func (s queries) GetLeaveType(ctx context.Context, id string) (*timeoff.LeaveType, error) {
	return s.getLeaveType(ctx, `SELECT `+leaveTypeColumns+` FROM leave_types WHERE id = ?`, id)
}

func (s queries) GetLeaveTypeByName(ctx context.Context, name string) (*timeoff.LeaveType, error) {
	return s.getLeaveType(ctx, `SELECT `+leaveTypeColumns+` FROM leave_types WHERE name = ?`, name)
}

func (s queries) getLeaveType(ctx context.Context, query, key string) (*timeoff.LeaveType, error) {
	lt, err := scanLeaveType(s.q.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.NotFound("leave type", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get leave type: %w", err)
	}
	return &lt, nil
}

// ListLeaveTypes returns leave types ordered by name.
func (s queries) ListLeaveTypes(ctx context.Context, activeOnly bool) ([]timeoff.LeaveType, error) {
	query := `SELECT ` + leaveTypeColumns + ` FROM leave_types`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	rows, err := s.q.QueryContext(ctx, query+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list leave types: %w", err)
	}
	defer rows.Close()

	var out []timeoff.LeaveType
	for rows.Next() {
		lt, err := scanLeaveType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lt)
	}
	return out, rows.Err()
}

func scanLeaveType(row scanner) (timeoff.LeaveType, error) {
	var lt timeoff.LeaveType
	var pay string
	err := row.Scan(&lt.ID, &lt.Name, &lt.RequiresApproval, &lt.RequiresDocumentation,
		&lt.RequiresReason, &lt.IsActive, &pay)
	lt.PayPercentage = generic.MustParseDecimal(pay)
	return lt, err
}

// =============================================================================
// BALANCES
// =============================================================================

const balanceColumns = `id, employee_id, leave_type_id, year, allocated_days, used_days,
	carry_over_days, version, created_at, updated_at`

// CreateBalance inserts a new balance row. A row for the same
// (employee, leave type, year) returns generic.ErrDuplicate.
func (s queries) CreateBalance(ctx context.Context, b timeoff.LeaveBalance) error {
	created, updated := stamps(b.CreatedAt, b.UpdatedAt)
	version := b.Version
	if version == 0 {
		version = 1
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO leave_balances (`+balanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, string(b.EmployeeID), b.LeaveTypeID, b.Year,
		b.AllocatedDays.String(), b.UsedDays.String(), b.CarryOverDays.String(),
		version, created, updated,
	)
	if err != nil {
		return translate(err, "balance", fmt.Sprintf("%s/%s/%d", b.EmployeeID, b.LeaveTypeID, b.Year))
	}
	return nil
}

// UpdateBalance writes the figures of b if its version is still current,
// and bumps the version.
func (s queries) UpdateBalance(ctx context.Context, b timeoff.LeaveBalance) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE leave_balances
		SET allocated_days = ?, used_days = ?, carry_over_days = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		b.AllocatedDays.String(), b.UsedDays.String(), b.CarryOverDays.String(),
		formatTime(b.UpdatedAt), b.ID, b.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return expectOne(res, "balance", b.ID)
}

func (s queries) GetBalance(ctx context.Context, employeeID timeoff.EmployeeID, leaveTypeID string, year int) (*timeoff.LeaveBalance, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+balanceColumns+` FROM leave_balances
		WHERE employee_id = ? AND leave_type_id = ? AND year = ?`,
		string(employeeID), leaveTypeID, year)
	b, err := scanBalance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.NotFound("balance", fmt.Sprintf("%s/%s/%d", employeeID, leaveTypeID, year))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return &b, nil
}

func (s queries) ListBalances(ctx context.Context, employeeID timeoff.EmployeeID, year int) ([]timeoff.LeaveBalance, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT b.id, b.employee_id, b.leave_type_id, b.year, b.allocated_days, b.used_days,
			b.carry_over_days, b.version, b.created_at, b.updated_at
		FROM leave_balances b JOIN leave_types t ON t.id = b.leave_type_id
		WHERE b.employee_id = ? AND b.year = ?
		ORDER BY t.name`,
		string(employeeID), year)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	defer rows.Close()

	var out []timeoff.LeaveBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBalance(row scanner) (timeoff.LeaveBalance, error) {
	var b timeoff.LeaveBalance
	var employeeID, allocated, used, carry, createdAt, updatedAt string
	err := row.Scan(&b.ID, &employeeID, &b.LeaveTypeID, &b.Year, &allocated, &used, &carry,
		&b.Version, &createdAt, &updatedAt)
	if err != nil {
		return b, err
	}
	b.EmployeeID = timeoff.EmployeeID(employeeID)
	b.AllocatedDays = generic.MustParseDecimal(allocated)
	b.UsedDays = generic.MustParseDecimal(used)
	b.CarryOverDays = generic.MustParseDecimal(carry)
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)
	return b, nil
}

// =============================================================================
// REQUESTS
// =============================================================================

const requestColumns = `id, employee_id, leave_type_id, start_date, end_date, start_time, end_time,
	duration, total_days, reason, document_ref, status, approved_by, approved_at,
	supervisor_comments, created_at, updated_at`

func (s queries) CreateRequest(ctx context.Context, r timeoff.LeaveRequest) error {
	created, updated := stamps(r.CreatedAt, r.UpdatedAt)
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO leave_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(r.ID), string(r.EmployeeID), r.LeaveTypeID,
		r.StartDate.String(), r.EndDate.String(),
		nullTimeOfDay(r.StartTime), nullTimeOfDay(r.EndTime),
		string(r.Duration), r.TotalDays.String(), r.Reason, r.DocumentRef,
		string(r.Status), nullEmployee(r.ApprovedBy), nullTimestamp(r.ApprovedAt),
		r.SupervisorComments, created, updated,
	)
	if err != nil {
		return translate(err, "request", r.ID)
	}
	return nil
}

// UpdateRequest writes the decision fields of r if the stored status is
// still expected.
func (s queries) UpdateRequest(ctx context.Context, r timeoff.LeaveRequest, expected timeoff.RequestStatus) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE leave_requests
		SET status = ?, approved_by = ?, approved_at = ?, supervisor_comments = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(r.Status), nullEmployee(r.ApprovedBy), nullTimestamp(r.ApprovedAt),
		r.SupervisorComments, formatTime(r.UpdatedAt),
		string(r.ID), string(expected),
	)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	return expectOne(res, "request", r.ID)
}

func (s queries) GetRequest(ctx context.Context, id timeoff.RequestID) (*timeoff.LeaveRequest, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM leave_requests WHERE id = ?`, string(id))
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.NotFound("request", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return &r, nil
}

// ListRequests returns matching requests, newest first.
func (s queries) ListRequests(ctx context.Context, f timeoff.RequestFilter) ([]timeoff.LeaveRequest, error) {
	var where []string
	var args []any
	if len(f.EmployeeIDs) > 0 {
		marks := make([]string, len(f.EmployeeIDs))
		for i, id := range f.EmployeeIDs {
			marks[i] = "?"
			args = append(args, string(id))
		}
		where = append(where, "employee_id IN ("+strings.Join(marks, ", ")+")")
	}
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*f.Status))
	}

	query := `SELECT ` + requestColumns + ` FROM leave_requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var out []timeoff.LeaveRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRequest(row scanner) (timeoff.LeaveRequest, error) {
	var r timeoff.LeaveRequest
	var id, employeeID, startDate, endDate, duration, total, status, createdAt, updatedAt string
	var startTime, endTime, approvedBy, approvedAt sql.NullString
	err := row.Scan(&id, &employeeID, &r.LeaveTypeID, &startDate, &endDate, &startTime, &endTime,
		&duration, &total, &r.Reason, &r.DocumentRef, &status, &approvedBy, &approvedAt,
		&r.SupervisorComments, &createdAt, &updatedAt)
	if err != nil {
		return r, err
	}
	r.ID = timeoff.RequestID(id)
	r.EmployeeID = timeoff.EmployeeID(employeeID)
	if r.StartDate, err = generic.ParseDate(startDate); err != nil {
		return r, fmt.Errorf("request %s: %w", id, err)
	}
	if r.EndDate, err = generic.ParseDate(endDate); err != nil {
		return r, fmt.Errorf("request %s: %w", id, err)
	}
	r.StartTime = parseTimeOfDay(startTime)
	r.EndTime = parseTimeOfDay(endTime)
	r.Duration = timeoff.DurationKind(duration)
	r.TotalDays = generic.MustParseDecimal(total)
	r.Status = timeoff.RequestStatus(status)
	if approvedBy.Valid {
		by := timeoff.EmployeeID(approvedBy.String)
		r.ApprovedBy = &by
	}
	if approvedAt.Valid {
		at := parseTime(approvedAt.String)
		r.ApprovedAt = &at
	}
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return r, nil
}

// =============================================================================
// HISTORY (append-only)
// =============================================================================

func (s queries) AppendHistory(ctx context.Context, h timeoff.HistoryEntry) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO leave_history (id, request_id, action, actor_id, timestamp, comment)
		VALUES (?, ?, ?, ?, ?, ?)`,
		h.ID, string(h.RequestID), string(h.Action), string(h.ActorID), formatTime(h.Timestamp), h.Comment,
	)
	if err != nil {
		return translate(err, "history entry", h.ID)
	}
	return nil
}

// ListHistory returns the entries of a request, oldest first.
func (s queries) ListHistory(ctx context.Context, requestID timeoff.RequestID) ([]timeoff.HistoryEntry, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, request_id, action, actor_id, timestamp, comment
		FROM leave_history WHERE request_id = ?
		ORDER BY timestamp, rowid`, string(requestID))
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var out []timeoff.HistoryEntry
	for rows.Next() {
		var h timeoff.HistoryEntry
		var reqID, action, actor, ts string
		if err := rows.Scan(&h.ID, &reqID, &action, &actor, &ts, &h.Comment); err != nil {
			return nil, err
		}
		h.RequestID = timeoff.RequestID(reqID)
		h.Action = timeoff.HistoryAction(action)
		h.ActorID = timeoff.EmployeeID(actor)
		h.Timestamp = parseTime(ts)
		out = append(out, h)
	}
	return out, rows.Err()
}

// =============================================================================
// CARRY-OVER RUNS
// =============================================================================

// RecordCarryOver inserts the run marker. A second run for the same year
// returns generic.ErrDuplicate.
func (s queries) RecordCarryOver(ctx context.Context, run timeoff.CarryOverRun) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO carry_over_runs (employee_id, leave_type_id, from_year, days, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(run.EmployeeID), run.LeaveTypeID, run.FromYear, run.Days.String(), formatTime(run.CreatedAt),
	)
	if err != nil {
		return translate(err, "carry-over run", fmt.Sprintf("%s/%s/%d", run.EmployeeID, run.LeaveTypeID, run.FromYear))
	}
	return nil
}

// GetCarryOver returns the run marker of fromYear.
func (s queries) GetCarryOver(ctx context.Context, employeeID timeoff.EmployeeID, leaveTypeID string, fromYear int) (*timeoff.CarryOverRun, error) {
	var days, createdAt string
	err := s.q.QueryRowContext(ctx, `
		SELECT days, created_at FROM carry_over_runs
		WHERE employee_id = ? AND leave_type_id = ? AND from_year = ?`,
		string(employeeID), leaveTypeID, fromYear,
	).Scan(&days, &createdAt)
	key := fmt.Sprintf("%s/%s/%d", employeeID, leaveTypeID, fromYear)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.NotFound("carry-over run", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get carry-over run: %w", err)
	}
	d, err := decimal.NewFromString(days)
	if err != nil {
		return nil, fmt.Errorf("carry-over run %s: %w", key, err)
	}
	return &timeoff.CarryOverRun{
		EmployeeID:  employeeID,
		LeaveTypeID: leaveTypeID,
		FromYear:    fromYear,
		Days:        d,
		CreatedAt:   parseTime(createdAt),
	}, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// translate maps unique-key violations to generic.ErrDuplicate.
func translate(err error, kind string, key any) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return generic.Duplicate(kind, key)
	}
	return fmt.Errorf("failed to write %s: %w", kind, err)
}

func expectOne(res sql.Result, kind string, key any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %v: %w", kind, key, generic.ErrConcurrentModification)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func stamps(created, updated time.Time) (string, string) {
	if created.IsZero() {
		created = time.Now()
	}
	if updated.IsZero() {
		updated = created
	}
	return formatTime(created), formatTime(updated)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullEmployee(id *timeoff.EmployeeID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return nullString(string(*id))
}

func nullTimestamp(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return nullString(formatTime(*t))
}

func nullTimeOfDay(t *generic.TimeOfDay) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return nullString(t.String())
}

func parseTimeOfDay(s sql.NullString) *generic.TimeOfDay {
	if !s.Valid {
		return nil
	}
	t, err := generic.ParseTimeOfDay(s.String)
	if err != nil {
		return nil
	}
	return &t
}
