package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/store/sqlite"
	"github.com/warp/leave-engine/timeoff"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.SaveLeaveType(ctx, timeoff.LeaveType{
		ID: "lt-pto", Name: "PTO", RequiresApproval: true, IsActive: true, PayPercentage: decimal.NewFromInt(100),
	}))
	require.NoError(t, store.SaveEmployee(ctx, timeoff.Employee{
		ID: "sup", Name: "Supervisor", Email: "sup@tempo.fit", IsActive: true, IsSupervisor: true,
		StartDate: generic.MustParseDate("2019-05-01"),
	}))
	sup := timeoff.EmployeeID("sup")
	require.NoError(t, store.SaveEmployee(ctx, timeoff.Employee{
		ID: "emp", Name: "Employee", Email: "emp@tempo.fit", IsActive: true, SupervisorID: &sup,
		StartDate: generic.MustParseDate("2022-09-12"),
	}))
	return store
}

func balance() timeoff.LeaveBalance {
	return timeoff.LeaveBalance{
		ID:            "bal-1",
		EmployeeID:    "emp",
		LeaveTypeID:   "lt-pto",
		Year:          2024,
		AllocatedDays: decimal.NewFromInt(21),
		UsedDays:      decimal.Zero,
		CarryOverDays: decimal.RequireFromString("2.5"),
		Version:       1,
	}
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func TestEmployee_RoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	e, err := store.GetEmployee(ctx, "emp")
	require.NoError(t, err)
	assert.Equal(t, "2022-09-12", e.StartDate.String())
	require.NotNil(t, e.SupervisorID)
	assert.Equal(t, timeoff.EmployeeID("sup"), *e.SupervisorID)
	assert.True(t, e.IsActive)
	assert.False(t, e.IsSupervisor)

	subs, err := store.ListSubordinates(ctx, "sup")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, timeoff.EmployeeID("emp"), subs[0].ID)

	_, err = store.GetEmployee(ctx, "ghost")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestLeaveType_LookupByName(t *testing.T) {
	store := newStore(t)

	lt, err := store.GetLeaveTypeByName(context.Background(), "PTO")
	require.NoError(t, err)
	assert.Equal(t, "lt-pto", lt.ID)
	assert.True(t, decimal.NewFromInt(100).Equal(lt.PayPercentage))

	err = store.SaveLeaveType(context.Background(), timeoff.LeaveType{ID: "lt-other", Name: "PTO", PayPercentage: decimal.Zero})
	assert.ErrorIs(t, err, generic.ErrDuplicate)
}

// =============================================================================
// BALANCES
// =============================================================================

func TestBalance_DuplicateYear(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateBalance(ctx, balance()))

	dup := balance()
	dup.ID = "bal-2"
	err := store.CreateBalance(ctx, dup)
	assert.ErrorIs(t, err, generic.ErrDuplicate)
}

func TestBalance_VersionedUpdate(t *testing.T) {
	// GIVEN: Two readers holding the same balance version
	// WHEN: Both write back
	// THEN: The first wins and the second sees ErrConcurrentModification

	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateBalance(ctx, balance()))

	first, err := store.GetBalance(ctx, "emp", "lt-pto", 2024)
	require.NoError(t, err)
	second := *first

	first.UsedDays = decimal.RequireFromString("0.125")
	require.NoError(t, store.UpdateBalance(ctx, *first))

	second.UsedDays = decimal.NewFromInt(3)
	err = store.UpdateBalance(ctx, second)
	assert.ErrorIs(t, err, generic.ErrConcurrentModification)

	got, err := store.GetBalance(ctx, "emp", "lt-pto", 2024)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.True(t, decimal.RequireFromString("0.125").Equal(got.UsedDays))
	assert.True(t, decimal.RequireFromString("23.375").Equal(got.AvailableDays()))
}

func TestCarryOverRun_OncePerYear(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	run := timeoff.CarryOverRun{EmployeeID: "emp", LeaveTypeID: "lt-pto", FromYear: 2023, Days: decimal.NewFromInt(4)}

	_, err := store.GetCarryOver(ctx, "emp", "lt-pto", 2023)
	assert.ErrorIs(t, err, generic.ErrNotFound)

	require.NoError(t, store.RecordCarryOver(ctx, run))
	assert.ErrorIs(t, store.RecordCarryOver(ctx, run), generic.ErrDuplicate)

	got, err := store.GetCarryOver(ctx, "emp", "lt-pto", 2023)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(4).Equal(got.Days))
	assert.Equal(t, 2023, got.FromYear)
}

// =============================================================================
// REQUESTS
// =============================================================================

func hourlyRequest(id string, created time.Time) timeoff.LeaveRequest {
	start := generic.NewTimeOfDay(9, 0)
	end := generic.NewTimeOfDay(10, 30)
	return timeoff.LeaveRequest{
		ID:          timeoff.RequestID(id),
		EmployeeID:  "emp",
		LeaveTypeID: "lt-pto",
		StartDate:   generic.MustParseDate("2024-03-04"),
		EndDate:     generic.MustParseDate("2024-03-04"),
		StartTime:   &start,
		EndTime:     &end,
		Duration:    timeoff.DurationHours,
		TotalDays:   decimal.RequireFromString("0.1875"),
		Status:      timeoff.StatusPending,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestRequest_RoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	created := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateRequest(ctx, hourlyRequest("req-1", created)))

	r, err := store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	require.NotNil(t, r.StartTime)
	require.NotNil(t, r.EndTime)
	assert.Equal(t, "09:00", r.StartTime.String())
	assert.Equal(t, "10:30", r.EndTime.String())
	assert.True(t, decimal.RequireFromString("0.1875").Equal(r.TotalDays))
	assert.True(t, created.Equal(r.CreatedAt))
	assert.Nil(t, r.ApprovedBy)
	assert.Nil(t, r.ApprovedAt)
}

func TestRequest_ConditionalUpdate(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateRequest(ctx, hourlyRequest("req-1", time.Now())))

	r, err := store.GetRequest(ctx, "req-1")
	require.NoError(t, err)

	at := time.Date(2024, 2, 2, 12, 0, 0, 0, time.UTC)
	sup := timeoff.EmployeeID("sup")
	r.Status = timeoff.StatusApproved
	r.ApprovedBy = &sup
	r.ApprovedAt = &at
	require.NoError(t, store.UpdateRequest(ctx, *r, timeoff.StatusPending))

	// A second transition from pending no longer matches.
	r.Status = timeoff.StatusRejected
	err = store.UpdateRequest(ctx, *r, timeoff.StatusPending)
	assert.ErrorIs(t, err, generic.ErrConcurrentModification)

	got, err := store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, timeoff.StatusApproved, got.Status)
	require.NotNil(t, got.ApprovedAt)
	assert.True(t, at.Equal(*got.ApprovedAt))
}

func TestListRequests_Filters(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"req-a", "req-b", "req-c"} {
		require.NoError(t, store.CreateRequest(ctx, hourlyRequest(id, base.Add(time.Duration(i)*time.Hour))))
	}
	r, err := store.GetRequest(ctx, "req-b")
	require.NoError(t, err)
	r.Status = timeoff.StatusCancelled
	require.NoError(t, store.UpdateRequest(ctx, *r, timeoff.StatusPending))

	all, err := store.ListRequests(ctx, timeoff.RequestFilter{EmployeeIDs: []timeoff.EmployeeID{"emp"}})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, timeoff.RequestID("req-c"), all[0].ID, "newest first")

	pending := timeoff.StatusPending
	open, err := store.ListRequests(ctx, timeoff.RequestFilter{Status: &pending, Limit: 1})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, timeoff.RequestID("req-c"), open[0].ID)

	none, err := store.ListRequests(ctx, timeoff.RequestFilter{EmployeeIDs: []timeoff.EmployeeID{"sup"}})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestHistory_InsertionOrder(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateRequest(ctx, hourlyRequest("req-1", time.Now())))

	at := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	for _, h := range []timeoff.HistoryEntry{
		{ID: "h-2", RequestID: "req-1", Action: timeoff.ActionCreated, ActorID: "emp", Timestamp: at},
		{ID: "h-1", RequestID: "req-1", Action: timeoff.ActionCancelled, ActorID: "emp", Timestamp: at},
	} {
		require.NoError(t, store.AppendHistory(ctx, h))
	}

	entries, err := store.ListHistory(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, timeoff.ActionCreated, entries[0].Action)
	assert.Equal(t, timeoff.ActionCancelled, entries[1].Action)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollbackDiscardsWrites(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	boom := errors.New("abort")

	err := store.WithTx(ctx, func(tx timeoff.Store) error {
		if err := tx.CreateBalance(ctx, balance()); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.GetBalance(ctx, "emp", "lt-pto", 2024)
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestWithTx_Commit(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.WithTx(ctx, func(tx timeoff.Store) error {
		return tx.CreateBalance(ctx, balance())
	}))

	b, err := store.GetBalance(ctx, "emp", "lt-pto", 2024)
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.Version)
}

func TestNew_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leave.db")
	store, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.Close())

	// Reopening runs the idempotent schema again.
	store, err = sqlite.New(path)
	require.NoError(t, err)
	assert.NoError(t, store.Close())
}

func TestGetEmployee_MalformedStartDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leave.db")
	store, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()
	require.NoError(t, store.SaveEmployee(ctx, timeoff.Employee{
		ID: "emp", Name: "Employee", Email: "emp@tempo.fit", IsActive: true,
		StartDate: generic.MustParseDate("2022-09-12"),
	}))

	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.ExecContext(ctx, `UPDATE employees SET start_date = '12/09/2022' WHERE id = 'emp'`)
	require.NoError(t, err)

	_, err = store.GetEmployee(ctx, "emp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "12/09/2022")
	assert.NotErrorIs(t, err, generic.ErrNotFound)
}
