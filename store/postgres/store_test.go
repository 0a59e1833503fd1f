package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

var readCommitted = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	mock := newMock(t)
	store := New(mock)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectBeginTx(readCommitted)
	mock.ExpectExec("INSERT INTO leave_history").
		WithArgs("h-1", "req-1", "created", "emp-1", now, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(tx timeoff.Store) error {
		return tx.AppendHistory(context.Background(), timeoff.HistoryEntry{
			ID: "h-1", RequestID: "req-1", Action: timeoff.ActionCreated, ActorID: "emp-1", Timestamp: now,
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	mock := newMock(t)
	store := New(mock)

	mock.ExpectBeginTx(readCommitted)
	mock.ExpectRollback()

	boom := errors.New("validation failed downstream")
	err := store.WithTx(context.Background(), func(timeoff.Store) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_BeginFailure(t *testing.T) {
	mock := newMock(t)
	store := New(mock)

	mock.ExpectBeginTx(readCommitted).WillReturnError(errors.New("connection refused"))

	called := false
	err := store.WithTx(context.Background(), func(timeoff.Store) error {
		called = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, called)
}

// =============================================================================
// BALANCES
// =============================================================================

func TestUpdateBalance_StaleVersion(t *testing.T) {
	// GIVEN: A balance whose version moved on since it was read
	// WHEN: Updating it
	// THEN: Zero rows match and ErrConcurrentModification is returned

	mock := newMock(t)
	store := New(mock)

	b := timeoff.LeaveBalance{
		ID:            "bal-1",
		AllocatedDays: decimal.NewFromInt(21),
		UsedDays:      decimal.NewFromInt(5),
		CarryOverDays: decimal.Zero,
		Version:       1,
		UpdatedAt:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	mock.ExpectExec("UPDATE leave_balances").
		WithArgs("21", "5", "0", b.UpdatedAt, "bal-1", int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateBalance(context.Background(), b)
	assert.ErrorIs(t, err, generic.ErrConcurrentModification)
	assert.True(t, generic.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBalance_ScansNumericText(t *testing.T) {
	mock := newMock(t)
	store := New(mock)
	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{"id", "employee_id", "leave_type_id", "year", "allocated_days",
		"used_days", "carry_over_days", "version", "created_at", "updated_at"}).
		AddRow("bal-1", "emp-1", "lt-pto", 2024, "21.0000", "0.1250", "2.5000", int64(3), now, now)
	mock.ExpectQuery(regexp.QuoteMeta("allocated_days::text")).
		WithArgs("emp-1", "lt-pto", 2024).
		WillReturnRows(rows)

	b, err := store.GetBalance(context.Background(), "emp-1", "lt-pto", 2024)
	require.NoError(t, err)
	assert.Equal(t, timeoff.EmployeeID("emp-1"), b.EmployeeID)
	assert.True(t, decimal.RequireFromString("0.125").Equal(b.UsedDays))
	assert.True(t, decimal.RequireFromString("23.375").Equal(b.AvailableDays()))
	assert.Equal(t, int64(3), b.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBalance_NotFound(t *testing.T) {
	mock := newMock(t)
	store := New(mock)

	mock.ExpectQuery("FROM leave_balances").
		WithArgs("emp-1", "lt-pto", 2031).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetBalance(context.Background(), "emp-1", "lt-pto", 2031)
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func balanceInsertArgs() []any {
	args := make([]any, 10)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestCreateBalance_ConflictIsDuplicateWithoutAbort(t *testing.T) {
	// GIVEN: Another transaction already created the (employee, type, year) row
	// WHEN: Creating it again
	// THEN: The insert does nothing, ErrDuplicate is returned and the
	//       transaction stays usable for the re-read

	mock := newMock(t)
	store := New(mock)
	now := time.Now().UTC()

	mock.ExpectBeginTx(readCommitted)
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (employee_id, leave_type_id, year) DO NOTHING")).
		WithArgs(balanceInsertArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("FROM leave_balances").
		WithArgs("emp-1", "lt-pto", 2024).
		WillReturnRows(pgxmock.NewRows([]string{"id", "employee_id", "leave_type_id", "year", "allocated_days",
			"used_days", "carry_over_days", "version", "created_at", "updated_at"}).
			AddRow("bal-1", "emp-1", "lt-pto", 2024, "21", "0", "0", int64(1), now, now))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(tx timeoff.Store) error {
		err := tx.CreateBalance(context.Background(), timeoff.LeaveBalance{
			ID: "bal-2", EmployeeID: "emp-1", LeaveTypeID: "lt-pto", Year: 2024,
		})
		require.ErrorIs(t, err, generic.ErrDuplicate)
		b, err := tx.GetBalance(context.Background(), "emp-1", "lt-pto", 2024)
		require.NoError(t, err)
		assert.Equal(t, "bal-1", b.ID)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBalance_PrimaryKeyViolationMapsToSentinel(t *testing.T) {
	mock := newMock(t)
	store := New(mock)

	mock.ExpectExec("INSERT INTO leave_balances").
		WithArgs(balanceInsertArgs()...).
		WillReturnError(&pgconn.PgError{Code: uniqueViolationCode, ConstraintName: "leave_balances_pkey"})

	err := store.CreateBalance(context.Background(), timeoff.LeaveBalance{
		ID: "bal-2", EmployeeID: "emp-1", LeaveTypeID: "lt-pto", Year: 2024,
	})
	assert.ErrorIs(t, err, generic.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// =============================================================================
// REQUESTS
// =============================================================================

func TestUpdateRequest_ConditionalOnStatus(t *testing.T) {
	mock := newMock(t)
	store := New(mock)

	r := timeoff.LeaveRequest{ID: "req-1", Status: timeoff.StatusApproved}
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $6 AND status = $7")).
		WithArgs("approved", pgxmock.AnyArg(), pgxmock.AnyArg(), "", pgxmock.AnyArg(), "req-1", "pending").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.UpdateRequest(context.Background(), r, timeoff.StatusPending))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRequests_BuildsFilter(t *testing.T) {
	mock := newMock(t)
	store := New(mock)
	now := time.Date(2024, 2, 15, 10, 0, 0, 0, time.UTC)
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{"id", "employee_id", "leave_type_id", "start_date", "end_date",
		"start_time", "end_time", "duration", "total_days", "reason", "document_ref", "status",
		"approved_by", "approved_at", "supervisor_comments", "created_at", "updated_at"}).
		AddRow("req-1", "emp-2", "lt-sick", day, day, "09:00", "10:00", "hours", "0.1250", "", "",
			"pending", nil, nil, "", now, now)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE employee_id = ANY($1) AND status = $2 ORDER BY created_at DESC, id LIMIT $3")).
		WithArgs([]string{"emp-1", "emp-2"}, "pending", 10).
		WillReturnRows(rows)

	pending := timeoff.StatusPending
	reqs, err := store.ListRequests(context.Background(), timeoff.RequestFilter{
		EmployeeIDs: []timeoff.EmployeeID{"emp-1", "emp-2"},
		Status:      &pending,
		Limit:       10,
	})
	require.NoError(t, err)
	require.Len(t, reqs, 1)

	r := reqs[0]
	assert.Equal(t, timeoff.DurationHours, r.Duration)
	assert.Equal(t, "2024-03-01", r.StartDate.String())
	require.NotNil(t, r.StartTime)
	assert.Equal(t, "09:00", r.StartTime.String())
	assert.Nil(t, r.ApprovedBy)
	assert.Nil(t, r.ApprovedAt)
	assert.True(t, decimal.RequireFromString("0.125").Equal(r.TotalDays))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordCarryOver_SecondRunIsDuplicate(t *testing.T) {
	mock := newMock(t)
	store := New(mock)

	mock.ExpectExec("INSERT INTO carry_over_runs").
		WithArgs("emp-1", "lt-pto", 2023, "5", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: uniqueViolationCode, ConstraintName: "carry_over_runs_pkey"})

	err := store.RecordCarryOver(context.Background(), timeoff.CarryOverRun{
		EmployeeID: "emp-1", LeaveTypeID: "lt-pto", FromYear: 2023, Days: decimal.NewFromInt(5),
	})
	assert.ErrorIs(t, err, generic.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCarryOver(t *testing.T) {
	mock := newMock(t)
	store := New(mock)
	now := time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM carry_over_runs").
		WithArgs("emp-1", "lt-pto", 2023).
		WillReturnRows(pgxmock.NewRows([]string{"days", "created_at"}).AddRow("4.5000", now))
	mock.ExpectQuery("FROM carry_over_runs").
		WithArgs("emp-1", "lt-pto", 2024).
		WillReturnError(pgx.ErrNoRows)

	run, err := store.GetCarryOver(context.Background(), "emp-1", "lt-pto", 2023)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("4.5").Equal(run.Days))
	assert.Equal(t, now, run.CreatedAt)

	_, err = store.GetCarryOver(context.Background(), "emp-1", "lt-pto", 2024)
	assert.ErrorIs(t, err, generic.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTranslate(t *testing.T) {
	assert.NoError(t, translate(nil, "employee", "x"))
	assert.ErrorIs(t, translate(&pgconn.PgError{Code: foreignKeyViolationCode}, "employee", "x"), generic.ErrNotFound)

	other := errors.New("disk full")
	assert.ErrorIs(t, translate(other, "employee", "x"), other)
}
