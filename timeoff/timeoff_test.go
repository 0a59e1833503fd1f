package timeoff_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/store/sqlite"
	"github.com/warp/leave-engine/timeoff"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// now is 2024-02-15 10:00 UTC in every fixture.
var now = time.Date(2024, time.February, 15, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func date(s string) generic.Date { return generic.MustParseDate(s) }

func days(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func clock(t time.Time) timeoff.Option { return timeoff.WithClock(generic.FixedClock{At: t}) }

func tod(h, m int) *generic.TimeOfDay {
	t := generic.NewTimeOfDay(h, m)
	return &t
}

func empID(s string) *timeoff.EmployeeID {
	id := timeoff.EmployeeID(s)
	return &id
}

// recordingNotifier keeps every message it is asked to send.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []timeoff.Message
}

func (n *recordingNotifier) Notify(_ context.Context, msg timeoff.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) messages() []timeoff.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]timeoff.Message(nil), n.sent...)
}

// fixture is a small organization:
//
//	sup-a (supervisor) ── emp-1 (regular), emp-2 (senior)
//	sup-b (supervisor)
//
// with PTO (reason required), Sick, Bereavement (reason required) and an
// inactive Legacy leave type.
type fixture struct {
	store    *sqlite.Store
	ledger   *timeoff.Ledger
	requests *timeoff.RequestService
	notifier *recordingNotifier
	pto      timeoff.LeaveType
	sick     timeoff.LeaveType
	bereave  timeoff.LeaveType
	legacy   timeoff.LeaveType
}

func newFixture(t *testing.T, opts ...timeoff.Option) *fixture {
	t.Helper()
	ctx := context.Background()
	store := newTestStore(t)
	notifier := &recordingNotifier{}

	f := &fixture{
		store:    store,
		notifier: notifier,
		pto:      timeoff.LeaveType{ID: "lt-pto", Name: "PTO", RequiresApproval: true, RequiresReason: true, IsActive: true, PayPercentage: days("100")},
		sick:     timeoff.LeaveType{ID: "lt-sick", Name: "Sick", RequiresApproval: true, RequiresDocumentation: true, IsActive: true, PayPercentage: days("100")},
		bereave:  timeoff.LeaveType{ID: "lt-bereave", Name: "Bereavement", RequiresApproval: true, RequiresReason: true, IsActive: true, PayPercentage: days("100")},
		legacy:   timeoff.LeaveType{ID: "lt-legacy", Name: "Legacy", IsActive: false, PayPercentage: days("0")},
	}
	for _, lt := range []timeoff.LeaveType{f.pto, f.sick, f.bereave, f.legacy} {
		require.NoError(t, store.SaveLeaveType(ctx, lt))
	}

	employees := []timeoff.Employee{
		{ID: "sup-a", Name: "Alice Supervisor", Email: "alice@tempo.fit", IsActive: true, IsSupervisor: true},
		{ID: "sup-b", Name: "Bob Supervisor", Email: "bob@tempo.fit", IsActive: true, IsSupervisor: true},
		{ID: "emp-1", Name: "Eve Employee", Email: "eve@tempo.fit", IsActive: true, SupervisorID: empID("sup-a")},
		{ID: "emp-2", Name: "Sam Senior", Email: "sam@tempo.fit", IsActive: true, IsSenior: true, SupervisorID: empID("sup-a")},
	}
	for _, e := range employees {
		e.StartDate = date("2020-01-06")
		require.NoError(t, store.SaveEmployee(ctx, e))
	}

	opts = append([]timeoff.Option{clock(now), timeoff.WithNotifier(notifier)}, opts...)
	f.ledger = timeoff.NewLedger(store, opts...)
	f.requests = timeoff.NewRequestService(store, f.ledger, opts...)
	return f
}

// ptoRequest is a full-day PTO request for emp-1 with a reason.
func ptoRequest(start, end string) timeoff.CreateInput {
	return timeoff.CreateInput{
		EmployeeID:  "emp-1",
		LeaveTypeID: "lt-pto",
		StartDate:   date(start),
		EndDate:     date(end),
		Duration:    timeoff.DurationFullDay,
		Reason:      "family trip",
	}
}

func requireReason(t *testing.T, err error, want timeoff.Reason) {
	t.Helper()
	require.Error(t, err)
	got, ok := timeoff.ReasonOf(err)
	require.True(t, ok, "expected a validation error, got %v", err)
	require.Equal(t, want, got)
}
