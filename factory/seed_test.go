package factory_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/store/sqlite"
	"github.com/warp/leave-engine/timeoff"
)

const seedYAML = `
default_balances: true
employees:
  - id: "104"
    name: Hany Darwish
    email: hany@tempo.fit
    position: Front-End Engineer II
    department: Front-End
    start_date: "2019-02-01"
    senior: true
    manager: "101"
  - id: "101"
    name: Ossama Eldeeb
    email: ossama@tempo.fit
    position: Country Manager
    start_date: "2019-05-22"
    senior: true
    supervisor: true
  - id: "123"
    name: Khadija Hosni Lotfy
    email: khadijah@tempo.fit
    start_date: "2020-11-15"
    manager: "101"
balances:
  - employee: "123"
    leave_type: PTO
    year: 2024
    allocated: "25"
    carry_over: "2.5"
`

type services struct {
	catalog   *timeoff.Catalog
	directory *timeoff.Directory
	ledger    *timeoff.Ledger
	seeder    *factory.Seeder
}

func newServices(t *testing.T) services {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	opts := []timeoff.Option{timeoff.WithClock(generic.FixedClock{At: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)})}
	s := services{
		catalog:   timeoff.NewCatalog(store, opts...),
		directory: timeoff.NewDirectory(store, opts...),
		ledger:    timeoff.NewLedger(store, opts...),
	}
	s.seeder = factory.NewSeeder(s.catalog, s.directory, s.ledger, nil)
	return s
}

func TestDefaultLeaveTypes_MatchAllocationTable(t *testing.T) {
	types := factory.DefaultLeaveTypes()
	require.Len(t, types, 6)
	for _, lt := range types {
		_, ok := timeoff.AllocationTable[lt.Name]
		assert.True(t, ok, "%s has no default allocation", lt.Name)
		assert.True(t, lt.RequiresApproval)
	}

	byName := map[string]timeoff.LeaveType{}
	for _, lt := range types {
		byName[lt.Name] = lt
	}
	assert.True(t, byName["PTO"].RequiresReason)
	assert.False(t, byName["PTO"].RequiresDocumentation)
	assert.True(t, byName["Bereavement"].RequiresReason)
	assert.True(t, byName["Bereavement"].RequiresDocumentation)
	assert.False(t, byName["Sick"].RequiresReason)
}

func TestParseSeed_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad email", "employees: [{id: a, name: A, email: not-an-email, start_date: '2020-01-01'}]"},
		{"bad start date", "employees: [{id: a, name: A, email: a@tempo.fit, start_date: 01/02/2020}]"},
		{"own manager", "employees: [{id: a, name: A, email: a@tempo.fit, start_date: '2020-01-01', manager: a}]"},
		{"duplicate id", "employees: [{id: a, name: A, email: a@tempo.fit, start_date: '2020-01-01'}, {id: a, name: B, email: b@tempo.fit, start_date: '2020-01-01'}]"},
		{"non-numeric allocation", "balances: [{employee: a, leave_type: PTO, year: 2024, allocated: lots}]"},
		{"missing year", "balances: [{employee: a, leave_type: PTO}]"},
		{"not yaml", "employees: [unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := factory.ParseSeed([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestSeeder_Apply(t *testing.T) {
	// GIVEN: A seed file listing an employee before its manager
	// WHEN: Applying it to an empty store
	// THEN: The hierarchy is linked and every balance exists

	s := newServices(t)
	ctx := context.Background()
	seed, err := factory.ParseSeed([]byte(seedYAML))
	require.NoError(t, err)

	report, err := s.seeder.Apply(ctx, seed, 2024)
	require.NoError(t, err)
	assert.Equal(t, 6, report.LeaveTypes)
	assert.Equal(t, 3, report.EmployeesCreated)
	assert.Equal(t, 3*6+1, report.Balances)

	hany, err := s.directory.Get(ctx, "104")
	require.NoError(t, err)
	assert.True(t, hany.ReportsTo("101"))
	assert.Equal(t, "2019-02-01", hany.StartDate.String())

	subs, err := s.directory.Subordinates(ctx, "101")
	require.NoError(t, err)
	assert.Len(t, subs, 2)

	pto, err := s.catalog.GetByName(ctx, "PTO")
	require.NoError(t, err)

	senior, err := s.ledger.GetBalance(ctx, "104", pto.ID, 2024)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(30).Equal(senior.AllocatedDays))

	overridden, err := s.ledger.GetBalance(ctx, "123", pto.ID, 2024)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(25).Equal(overridden.AllocatedDays))
	assert.True(t, decimal.RequireFromString("2.5").Equal(overridden.CarryOverDays))
}

func TestSeeder_ApplyTwice(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	seed, err := factory.ParseSeed([]byte(seedYAML))
	require.NoError(t, err)

	_, err = s.seeder.Apply(ctx, seed, 2024)
	require.NoError(t, err)
	report, err := s.seeder.Apply(ctx, seed, 2024)
	require.NoError(t, err)

	assert.Equal(t, 0, report.EmployeesCreated)
	assert.Equal(t, 3, report.EmployeesSkipped)

	types, err := s.catalog.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, types, 6)
}

func TestSeeder_RejectsForeignEmail(t *testing.T) {
	s := newServices(t)
	seed, err := factory.ParseSeed([]byte(`employees: [{id: x, name: X, email: x@example.com, start_date: "2020-01-01"}]`))
	require.NoError(t, err)

	_, err = s.seeder.Apply(context.Background(), seed, 2024)
	require.Error(t, err)
	reason, ok := timeoff.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, timeoff.ReasonInvalidEmailDomain, reason)
}
