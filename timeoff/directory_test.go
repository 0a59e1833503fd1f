package timeoff_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
)

func TestInOrganization(t *testing.T) {
	assert.True(t, timeoff.InOrganization("eve@tempo.fit", "tempo.fit"))
	assert.True(t, timeoff.InOrganization("Eve@Tempo.Fit", "@tempo.fit"))
	assert.False(t, timeoff.InOrganization("eve@notempo.fit", "tempo.fit"))
	assert.False(t, timeoff.InOrganization("eve@gmail.com", "tempo.fit"))
	assert.False(t, timeoff.InOrganization("eve@tempo.fit", ""))
}

func TestDirectory_Create(t *testing.T) {
	f := newFixture(t)
	dir := timeoff.NewDirectory(f.store, clock(now))
	ctx := context.Background()

	created, err := dir.Create(ctx, timeoff.Employee{
		ID:           "emp-3",
		Name:         "Nina New",
		Email:        "nina@tempo.fit",
		StartDate:    date("2024-02-01"),
		IsActive:     true,
		SupervisorID: empID("sup-b"),
	})
	require.NoError(t, err)
	assert.Equal(t, now, created.CreatedAt)

	subs, err := dir.Subordinates(ctx, "sup-b")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, timeoff.EmployeeID("emp-3"), subs[0].ID)
}

func TestDirectory_Create_Rejections(t *testing.T) {
	f := newFixture(t)
	dir := timeoff.NewDirectory(f.store)
	ctx := context.Background()

	_, err := dir.Create(ctx, timeoff.Employee{ID: "x", Name: "Outsider", Email: "x@gmail.com"})
	requireReason(t, err, timeoff.ReasonInvalidEmailDomain)

	_, err = dir.Create(ctx, timeoff.Employee{ID: "emp-1", Name: "Again", Email: "again@tempo.fit"})
	assert.ErrorIs(t, err, generic.ErrDuplicate)

	_, err = dir.Create(ctx, timeoff.Employee{ID: "y", Name: "Orphan", Email: "y@tempo.fit", SupervisorID: empID("nobody")})
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestDirectory_AssignSupervisor_RejectsCycles(t *testing.T) {
	// GIVEN: sup-a ── emp-1, and emp-1 now supervises emp-3
	// WHEN: Making sup-a report to emp-3, or emp-1 report to itself
	// THEN: SupervisorCycle, links unchanged

	f := newFixture(t)
	dir := timeoff.NewDirectory(f.store)
	ctx := context.Background()

	_, err := dir.Create(ctx, timeoff.Employee{ID: "emp-3", Name: "Third", Email: "third@tempo.fit", IsActive: true, SupervisorID: empID("emp-1")})
	require.NoError(t, err)

	_, err = dir.AssignSupervisor(ctx, "sup-a", empID("emp-3"))
	requireReason(t, err, timeoff.ReasonSupervisorCycle)

	_, err = dir.AssignSupervisor(ctx, "emp-1", empID("emp-1"))
	requireReason(t, err, timeoff.ReasonSupervisorCycle)

	sup, err := dir.Get(ctx, "sup-a")
	require.NoError(t, err)
	assert.Nil(t, sup.SupervisorID)

	// Moving a subtree sideways is fine.
	moved, err := dir.AssignSupervisor(ctx, "emp-1", empID("sup-b"))
	require.NoError(t, err)
	assert.True(t, moved.ReportsTo("sup-b"))

	cleared, err := dir.AssignSupervisor(ctx, "emp-1", nil)
	require.NoError(t, err)
	assert.Nil(t, cleared.SupervisorID)
}

func TestDirectory_Deactivate(t *testing.T) {
	f := newFixture(t)
	dir := timeoff.NewDirectory(f.store)
	ctx := context.Background()

	_, err := dir.Deactivate(ctx, "emp-2")
	require.NoError(t, err)

	active, err := dir.List(ctx, true)
	require.NoError(t, err)
	for _, e := range active {
		assert.NotEqual(t, timeoff.EmployeeID("emp-2"), e.ID)
	}
	all, err := dir.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestCatalog_SaveUpsertsByName(t *testing.T) {
	f := newFixture(t)
	cat := timeoff.NewCatalog(f.store)
	ctx := context.Background()

	saved, err := cat.Save(ctx, timeoff.LeaveType{Name: "Sick", IsActive: true, PayPercentage: days("75")})
	require.NoError(t, err)
	assert.Equal(t, "lt-sick", saved.ID, "existing row keeps its ID")

	stored, err := cat.GetByName(ctx, "Sick")
	require.NoError(t, err)
	assert.True(t, days("75").Equal(stored.PayPercentage))

	fresh, err := cat.Save(ctx, timeoff.LeaveType{Name: "PPTO", IsActive: true, PayPercentage: days("100")})
	require.NoError(t, err)
	assert.NotEmpty(t, fresh.ID)

	active, err := cat.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, active, 4)

	_, err = cat.Save(ctx, timeoff.LeaveType{Name: "Bonus", PayPercentage: days("120")})
	requireReason(t, err, timeoff.ReasonInvalidPayPercent)
}
