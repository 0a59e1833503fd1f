/*
Package postgres provides a PostgreSQL implementation of timeoff.TxStore on
pgx.

PURPOSE:
  The production store. Same tables and semantics as store/sqlite, with
  native DATE, NUMERIC, BOOLEAN and TIMESTAMPTZ columns. The schema is owned
  by the embedded migrations (see migrate.go), not created on open.

ENCODING:
  Day quantities are NUMERIC. They are written as decimal strings and read
  back with a ::text cast so no float ever touches them.

CONCURRENCY:
  Balance updates are conditional on version, request updates on the
  prior status. Zero rows affected is generic.ErrConcurrentModification;
  the request service retries the whole unit of work.

USAGE:
  pool, err := postgres.NewPool(ctx, postgres.PoolOptions{DSN: dsn})
  store := postgres.New(pool)
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
)

// Queryer is the query surface shared by pgxpool.Pool and pgx.Tx.
type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Pool is a Queryer that can start transactions. *pgxpool.Pool and
// pgxmock pools satisfy it.
type Pool interface {
	Queryer
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Store implements timeoff.TxStore on a pgx pool.
type Store struct {
	queries
	pool Pool
}

var _ timeoff.TxStore = (*Store)(nil)

// New creates a store over pool. The schema must already be migrated.
func New(pool Pool) *Store {
	return &Store{queries: queries{q: pool}, pool: pool}
}

// WithTx runs fn in a read-committed transaction. fn's error rolls back.
func (s *Store) WithTx(ctx context.Context, fn func(store timeoff.Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}

	done := false
	defer func() {
		if !done {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := fn(queries{q: tx}); err != nil {
		done = true
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("postgres: rollback: %w", rbErr))
		}
		return err
	}

	done = true
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

type queries struct {
	q Queryer
}

// =============================================================================
// EMPLOYEES
// =============================================================================

const employeeColumns = `id, name, email, position, department, country, start_date,
	is_senior, is_active, is_supervisor, supervisor_id, created_at, updated_at`

func (s queries) SaveEmployee(ctx context.Context, e timeoff.Employee) error {
	const query = `
		INSERT INTO employees (` + employeeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			position = EXCLUDED.position,
			department = EXCLUDED.department,
			country = EXCLUDED.country,
			start_date = EXCLUDED.start_date,
			is_senior = EXCLUDED.is_senior,
			is_active = EXCLUDED.is_active,
			is_supervisor = EXCLUDED.is_supervisor,
			supervisor_id = EXCLUDED.supervisor_id,
			updated_at = EXCLUDED.updated_at`
	created, updated := stamps(e.CreatedAt, e.UpdatedAt)
	_, err := s.q.Exec(ctx, query,
		string(e.ID), e.Name, e.Email, e.Position, e.Department, e.Country, e.StartDate.Time,
		e.IsSenior, e.IsActive, e.IsSupervisor, employeeText(e.SupervisorID), created, updated)
	return translate(err, "employee", e.ID)
}

func (s queries) GetEmployee(ctx context.Context, id timeoff.EmployeeID) (*timeoff.Employee, error) {
	row := s.q.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = $1`, string(id))
	e, err := scanEmployee(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, generic.NotFound("employee", id)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get employee: %w", err)
	}
	return &e, nil
}

func (s queries) ListEmployees(ctx context.Context, activeOnly bool) ([]timeoff.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees`
	if activeOnly {
		query += ` WHERE is_active`
	}
	return s.queryEmployees(ctx, query+` ORDER BY name, id`)
}

func (s queries) ListSubordinates(ctx context.Context, supervisorID timeoff.EmployeeID) ([]timeoff.Employee, error) {
	return s.queryEmployees(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE supervisor_id = $1 ORDER BY name, id`,
		string(supervisorID))
}

func (s queries) queryEmployees(ctx context.Context, query string, args ...any) ([]timeoff.Employee, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list employees: %w", err)
	}
	defer rows.Close()

	var out []timeoff.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan employee: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEmployee(row pgx.Row) (timeoff.Employee, error) {
	var e timeoff.Employee
	var id string
	var start time.Time
	var supervisor pgtype.Text
	err := row.Scan(&id, &e.Name, &e.Email, &e.Position, &e.Department, &e.Country, &start,
		&e.IsSenior, &e.IsActive, &e.IsSupervisor, &supervisor, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return e, err
	}
	e.ID = timeoff.EmployeeID(id)
	e.StartDate = generic.DateOf(start)
	if supervisor.Valid {
		sup := timeoff.EmployeeID(supervisor.String)
		e.SupervisorID = &sup
	}
	return e, nil
}

// =============================================================================
// LEAVE TYPES
// =============================================================================

const leaveTypeSelect = `SELECT id, name, requires_approval, requires_documentation, requires_reason,
	is_active, pay_percentage::text FROM leave_types`

func (s queries) SaveLeaveType(ctx context.Context, lt timeoff.LeaveType) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO leave_types (id, name, requires_approval, requires_documentation, requires_reason, is_active, pay_percentage)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			requires_approval = EXCLUDED.requires_approval,
			requires_documentation = EXCLUDED.requires_documentation,
			requires_reason = EXCLUDED.requires_reason,
			is_active = EXCLUDED.is_active,
			pay_percentage = EXCLUDED.pay_percentage`,
		lt.ID, lt.Name, lt.RequiresApproval, lt.RequiresDocumentation, lt.RequiresReason,
		lt.IsActive, lt.PayPercentage.String())
	return translate(err, "leave type", lt.Name)
}

func (s queries) GetLeaveType(ctx context.Context, id string) (*timeoff.LeaveType, error) {
	return s.getLeaveType(ctx, leaveTypeSelect+` WHERE id = $1`, id)
}

func (s queries) GetLeaveTypeByName(ctx context.Context, name string) (*timeoff.LeaveType, error) {
	return s.getLeaveType(ctx, leaveTypeSelect+` WHERE name = $1`, name)
}

func (s queries) getLeaveType(ctx context.Context, query, key string) (*timeoff.LeaveType, error) {
	lt, err := scanLeaveType(s.q.QueryRow(ctx, query, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, generic.NotFound("leave type", key)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get leave type: %w", err)
	}
	return &lt, nil
}

func (s queries) ListLeaveTypes(ctx context.Context, activeOnly bool) ([]timeoff.LeaveType, error) {
	query := leaveTypeSelect
	if activeOnly {
		query += ` WHERE is_active`
	}
	rows, err := s.q.Query(ctx, query+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list leave types: %w", err)
	}
	defer rows.Close()

	var out []timeoff.LeaveType
	for rows.Next() {
		lt, err := scanLeaveType(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan leave type: %w", err)
		}
		out = append(out, lt)
	}
	return out, rows.Err()
}

func scanLeaveType(row pgx.Row) (timeoff.LeaveType, error) {
	var lt timeoff.LeaveType
	var pay string
	if err := row.Scan(&lt.ID, &lt.Name, &lt.RequiresApproval, &lt.RequiresDocumentation,
		&lt.RequiresReason, &lt.IsActive, &pay); err != nil {
		return lt, err
	}
	lt.PayPercentage = generic.MustParseDecimal(pay)
	return lt, nil
}

// =============================================================================
// BALANCES
// =============================================================================

const balanceSelect = `SELECT id, employee_id, leave_type_id, year, allocated_days::text, used_days::text,
	carry_over_days::text, version, created_at, updated_at FROM leave_balances`

func (s queries) CreateBalance(ctx context.Context, b timeoff.LeaveBalance) error {
	created, updated := stamps(b.CreatedAt, b.UpdatedAt)
	version := b.Version
	if version == 0 {
		version = 1
	}
	// A raised unique violation would abort the caller's transaction, so a
	// concurrent creator of the same year is detected by an empty insert.
	key := balanceKey(b.EmployeeID, b.LeaveTypeID, b.Year)
	tag, err := s.q.Exec(ctx, `
		INSERT INTO leave_balances (id, employee_id, leave_type_id, year, allocated_days, used_days,
			carry_over_days, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (employee_id, leave_type_id, year) DO NOTHING`,
		b.ID, string(b.EmployeeID), b.LeaveTypeID, b.Year,
		b.AllocatedDays.String(), b.UsedDays.String(), b.CarryOverDays.String(),
		version, created, updated)
	if err != nil {
		return translate(err, "balance", key)
	}
	if tag.RowsAffected() == 0 {
		return generic.Duplicate("balance", key)
	}
	return nil
}

func (s queries) UpdateBalance(ctx context.Context, b timeoff.LeaveBalance) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE leave_balances
		SET allocated_days = $1, used_days = $2, carry_over_days = $3,
			version = version + 1, updated_at = $4
		WHERE id = $5 AND version = $6`,
		b.AllocatedDays.String(), b.UsedDays.String(), b.CarryOverDays.String(),
		stamp(b.UpdatedAt), b.ID, b.Version)
	if err != nil {
		return fmt.Errorf("postgres: update balance: %w", err)
	}
	return expectOne(tag, "balance", b.ID)
}

func (s queries) GetBalance(ctx context.Context, employeeID timeoff.EmployeeID, leaveTypeID string, year int) (*timeoff.LeaveBalance, error) {
	row := s.q.QueryRow(ctx, balanceSelect+` WHERE employee_id = $1 AND leave_type_id = $2 AND year = $3`,
		string(employeeID), leaveTypeID, year)
	b, err := scanBalance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, generic.NotFound("balance", balanceKey(employeeID, leaveTypeID, year))
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get balance: %w", err)
	}
	return &b, nil
}

func (s queries) ListBalances(ctx context.Context, employeeID timeoff.EmployeeID, year int) ([]timeoff.LeaveBalance, error) {
	rows, err := s.q.Query(ctx, balanceSelect+` WHERE employee_id = $1 AND year = $2 ORDER BY leave_type_id`,
		string(employeeID), year)
	if err != nil {
		return nil, fmt.Errorf("postgres: list balances: %w", err)
	}
	defer rows.Close()

	var out []timeoff.LeaveBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan balance: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBalance(row pgx.Row) (timeoff.LeaveBalance, error) {
	var b timeoff.LeaveBalance
	var employeeID, allocated, used, carry string
	err := row.Scan(&b.ID, &employeeID, &b.LeaveTypeID, &b.Year, &allocated, &used, &carry,
		&b.Version, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return b, err
	}
	b.EmployeeID = timeoff.EmployeeID(employeeID)
	b.AllocatedDays = generic.MustParseDecimal(allocated)
	b.UsedDays = generic.MustParseDecimal(used)
	b.CarryOverDays = generic.MustParseDecimal(carry)
	return b, nil
}

func balanceKey(employeeID timeoff.EmployeeID, leaveTypeID string, year int) string {
	return fmt.Sprintf("%s/%s/%d", employeeID, leaveTypeID, year)
}

// =============================================================================
// REQUESTS
// =============================================================================

const requestSelect = `SELECT id, employee_id, leave_type_id, start_date, end_date, start_time, end_time,
	duration, total_days::text, reason, document_ref, status, approved_by, approved_at,
	supervisor_comments, created_at, updated_at FROM leave_requests`

func (s queries) CreateRequest(ctx context.Context, r timeoff.LeaveRequest) error {
	created, updated := stamps(r.CreatedAt, r.UpdatedAt)
	_, err := s.q.Exec(ctx, `
		INSERT INTO leave_requests (id, employee_id, leave_type_id, start_date, end_date, start_time, end_time,
			duration, total_days, reason, document_ref, status, approved_by, approved_at,
			supervisor_comments, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		string(r.ID), string(r.EmployeeID), r.LeaveTypeID, r.StartDate.Time, r.EndDate.Time,
		timeText(r.StartTime), timeText(r.EndTime),
		string(r.Duration), r.TotalDays.String(), r.Reason, r.DocumentRef, string(r.Status),
		employeeText(r.ApprovedBy), timestamp(r.ApprovedAt),
		r.SupervisorComments, created, updated)
	return translate(err, "request", r.ID)
}

func (s queries) UpdateRequest(ctx context.Context, r timeoff.LeaveRequest, expected timeoff.RequestStatus) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE leave_requests
		SET status = $1, approved_by = $2, approved_at = $3, supervisor_comments = $4, updated_at = $5
		WHERE id = $6 AND status = $7`,
		string(r.Status), employeeText(r.ApprovedBy), timestamp(r.ApprovedAt),
		r.SupervisorComments, stamp(r.UpdatedAt), string(r.ID), string(expected))
	if err != nil {
		return fmt.Errorf("postgres: update request: %w", err)
	}
	return expectOne(tag, "request", r.ID)
}

func (s queries) GetRequest(ctx context.Context, id timeoff.RequestID) (*timeoff.LeaveRequest, error) {
	r, err := scanRequest(s.q.QueryRow(ctx, requestSelect+` WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, generic.NotFound("request", id)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get request: %w", err)
	}
	return &r, nil
}

func (s queries) ListRequests(ctx context.Context, f timeoff.RequestFilter) ([]timeoff.LeaveRequest, error) {
	var where []string
	var args []any
	if len(f.EmployeeIDs) > 0 {
		ids := make([]string, len(f.EmployeeIDs))
		for i, id := range f.EmployeeIDs {
			ids[i] = string(id)
		}
		args = append(args, ids)
		where = append(where, fmt.Sprintf("employee_id = ANY($%d)", len(args)))
	}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := requestSelect
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list requests: %w", err)
	}
	defer rows.Close()

	var out []timeoff.LeaveRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRequest(row pgx.Row) (timeoff.LeaveRequest, error) {
	var r timeoff.LeaveRequest
	var id, employeeID, duration, total, status string
	var start, end time.Time
	var startTime, endTime, approvedBy pgtype.Text
	var approvedAt pgtype.Timestamptz
	err := row.Scan(&id, &employeeID, &r.LeaveTypeID, &start, &end, &startTime, &endTime,
		&duration, &total, &r.Reason, &r.DocumentRef, &status, &approvedBy, &approvedAt,
		&r.SupervisorComments, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return r, err
	}
	r.ID = timeoff.RequestID(id)
	r.EmployeeID = timeoff.EmployeeID(employeeID)
	r.StartDate = generic.DateOf(start)
	r.EndDate = generic.DateOf(end)
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
		at := approvedAt.Time
		r.ApprovedAt = &at
	}
	return r, nil
}

// =============================================================================
// HISTORY AND CARRY-OVER
// =============================================================================

func (s queries) AppendHistory(ctx context.Context, h timeoff.HistoryEntry) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO leave_history (id, request_id, action, actor_id, timestamp, comment)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		h.ID, string(h.RequestID), string(h.Action), string(h.ActorID), stamp(h.Timestamp), h.Comment)
	return translate(err, "history entry", h.ID)
}

func (s queries) ListHistory(ctx context.Context, requestID timeoff.RequestID) ([]timeoff.HistoryEntry, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, request_id, action, actor_id, timestamp, comment
		FROM leave_history WHERE request_id = $1 ORDER BY timestamp, seq`, string(requestID))
	if err != nil {
		return nil, fmt.Errorf("postgres: list history: %w", err)
	}
	defer rows.Close()

	var out []timeoff.HistoryEntry
	for rows.Next() {
		var h timeoff.HistoryEntry
		var reqID, action, actor string
		if err := rows.Scan(&h.ID, &reqID, &action, &actor, &h.Timestamp, &h.Comment); err != nil {
			return nil, fmt.Errorf("postgres: scan history: %w", err)
		}
		h.RequestID = timeoff.RequestID(reqID)
		h.Action = timeoff.HistoryAction(action)
		h.ActorID = timeoff.EmployeeID(actor)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s queries) RecordCarryOver(ctx context.Context, run timeoff.CarryOverRun) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO carry_over_runs (employee_id, leave_type_id, from_year, days, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		string(run.EmployeeID), run.LeaveTypeID, run.FromYear, run.Days.String(), stamp(run.CreatedAt))
	return translate(err, "carry-over run", balanceKey(run.EmployeeID, run.LeaveTypeID, run.FromYear))
}

func (s queries) GetCarryOver(ctx context.Context, employeeID timeoff.EmployeeID, leaveTypeID string, fromYear int) (*timeoff.CarryOverRun, error) {
	run := timeoff.CarryOverRun{EmployeeID: employeeID, LeaveTypeID: leaveTypeID, FromYear: fromYear}
	var days string
	err := s.q.QueryRow(ctx, `
		SELECT days::text, created_at FROM carry_over_runs
		WHERE employee_id = $1 AND leave_type_id = $2 AND from_year = $3`,
		string(employeeID), leaveTypeID, fromYear).Scan(&days, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, generic.NotFound("carry-over run", balanceKey(employeeID, leaveTypeID, fromYear))
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get carry-over run: %w", err)
	}
	run.Days = generic.MustParseDecimal(days)
	return &run, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func expectOne(tag pgconn.CommandTag, kind string, key any) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %v: %w", kind, key, generic.ErrConcurrentModification)
	}
	return nil
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func stamps(created, updated time.Time) (time.Time, time.Time) {
	c := stamp(created)
	if updated.IsZero() {
		return c, c
	}
	return c, updated.UTC()
}

func timestamp(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t.UTC(), Valid: true}
}

func employeeText(id *timeoff.EmployeeID) pgtype.Text {
	if id == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: string(*id), Valid: true}
}

func timeText(t *generic.TimeOfDay) pgtype.Text {
	if t == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: t.String(), Valid: true}
}

func parseTimeOfDay(t pgtype.Text) *generic.TimeOfDay {
	if !t.Valid {
		return nil
	}
	parsed, err := generic.ParseTimeOfDay(t.String)
	if err != nil {
		return nil
	}
	return &parsed
}
