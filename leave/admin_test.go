package leave_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

func TestCreateLeaveType_AdminOnlyAndUniqueName(t *testing.T) {
	f := newFixture(t)
	in := leave.LeaveTypeInput{Name: "Sick Leave", IsPaid: true, AnnualAllocation: generic.Days(12)}

	_, err := f.svc.CreateLeaveType(f.ctx, f.actor(t, "mgr"), in)
	assert.True(t, errors.Is(err, generic.ErrForbidden))

	created, err := f.svc.CreateLeaveType(f.ctx, f.actor(t, "adm"), in)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	in.Name = "  sick leave "
	_, err = f.svc.CreateLeaveType(f.ctx, f.actor(t, "adm"), in)
	assert.True(t, errors.Is(err, generic.ErrConflict))

	_, err = f.svc.CreateLeaveType(f.ctx, f.actor(t, "adm"), leave.LeaveTypeInput{Name: " "})
	assert.True(t, errors.Is(err, generic.ErrValidation))
}

func TestUpdateLeaveType(t *testing.T) {
	f := newFixture(t)
	alloc := generic.Days(25)
	desc := "Paid annual leave"

	updated, err := f.svc.UpdateLeaveType(f.ctx, f.actor(t, "adm"), annual, leave.LeaveTypeUpdate{
		AnnualAllocation: &alloc,
		Description:      &desc,
	})

	require.NoError(t, err)
	assert.True(t, updated.AnnualAllocation.Equal(alloc))
	assert.Equal(t, "Annual Leave", updated.Name)
	assert.Equal(t, desc, updated.Description)

	_, err = f.svc.UpdateLeaveType(f.ctx, f.actor(t, "adm"), "missing", leave.LeaveTypeUpdate{})
	assert.True(t, errors.Is(err, generic.ErrNotFound))

	entries, err := f.store.Query(f.ctx, generic.AuditFilter{Actions: []generic.AuditAction{generic.AuditLeaveTypeChanged}})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAllocate_DefaultsToLeaveTypeAllocation(t *testing.T) {
	f := newFixture(t)

	b, err := f.svc.Allocate(f.ctx, f.actor(t, "adm"), leave.AllocateInput{
		EmployeeID:  "carol",
		LeaveTypeID: annual,
		Year:        2026,
	})

	require.NoError(t, err)
	assert.True(t, b.Allocated.Equal(generic.Days(20)))
	assert.True(t, b.Remaining.Equal(generic.Days(20)))

	_, err = f.svc.Allocate(f.ctx, f.actor(t, "adm"), leave.AllocateInput{EmployeeID: "carol", LeaveTypeID: annual, Year: 2026})
	assert.True(t, errors.Is(err, generic.ErrConflict))

	_, err = f.svc.Allocate(f.ctx, f.actor(t, "adm"), leave.AllocateInput{EmployeeID: "ghost", LeaveTypeID: annual, Year: 2026})
	assert.True(t, errors.Is(err, generic.ErrNotFound))

	_, err = f.svc.Allocate(f.ctx, f.actor(t, "mgr"), leave.AllocateInput{EmployeeID: "alice", LeaveTypeID: annual, Year: 2026})
	assert.True(t, errors.Is(err, generic.ErrForbidden))
}

func TestBalances_ViewPolicyAndDefaultYear(t *testing.T) {
	f := newFixture(t)

	own, err := f.svc.Balances(f.ctx, f.actor(t, "alice"), "alice", 0)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, 2025, own[0].Key.Year)

	_, err = f.svc.Balances(f.ctx, f.actor(t, "mgr"), "alice", 2025)
	assert.NoError(t, err)

	_, err = f.svc.Balances(f.ctx, f.actor(t, "bob"), "alice", 2025)
	assert.True(t, errors.Is(err, generic.ErrForbidden))
}
