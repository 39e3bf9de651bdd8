package leave_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

func TestAuthorize_Matrix(t *testing.T) {
	admin := leave.NewActor("adm", leave.RoleAdmin, "", nil)
	manager := leave.NewActor("mgr", leave.RoleManager, "", []generic.EntityID{"alice"})
	lead := leave.NewActor("lead", leave.RoleEmployee, "", []generic.EntityID{"alice"})
	alice := leave.NewActor("alice", leave.RoleEmployee, "mgr", nil)
	bob := leave.NewActor("bob", leave.RoleEmployee, "mgr", nil)

	tests := []struct {
		name  string
		actor leave.Actor
		op    leave.Operation
		owner generic.EntityID
		allow bool
	}{
		{"submit for self", alice, leave.OpSubmit, "alice", true},
		{"submit for someone else", alice, leave.OpSubmit, "bob", false},

		{"owner views", alice, leave.OpView, "alice", true},
		{"manager views report", manager, leave.OpView, "alice", true},
		{"lead with reports views", lead, leave.OpView, "alice", true},
		{"admin views anyone", admin, leave.OpView, "bob", true},
		{"peer cannot view", bob, leave.OpView, "alice", false},

		{"manager decides report", manager, leave.OpDecide, "alice", true},
		{"manager cannot decide non-report", manager, leave.OpDecide, "bob", false},
		{"employee-role lead cannot decide", lead, leave.OpDecide, "alice", false},
		{"admin decides anyone", admin, leave.OpDecide, "bob", true},
		{"owner cannot decide own", alice, leave.OpDecide, "alice", false},

		{"owner cancels", alice, leave.OpCancel, "alice", true},
		{"manager cannot cancel", manager, leave.OpCancel, "alice", false},
		{"admin cannot cancel", admin, leave.OpCancel, "alice", false},
		{"owner edits", alice, leave.OpEdit, "alice", true},
		{"manager cannot edit", manager, leave.OpEdit, "alice", false},

		{"admin administers", admin, leave.OpAdminister, "", true},
		{"manager cannot administer", manager, leave.OpAdminister, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := leave.Authorize(tt.actor, tt.op, tt.owner)
			if tt.allow {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, generic.ErrForbidden))
		})
	}
}

func TestActor_DirectReportsIsACopy(t *testing.T) {
	reports := []generic.EntityID{"bob", "alice"}
	a := leave.NewActor("mgr", leave.RoleManager, "", reports)

	reports[0] = "mallory"
	got := a.DirectReports()
	got[0] = "eve"

	assert.Equal(t, []generic.EntityID{"alice", "bob"}, a.DirectReports())
	assert.False(t, a.Manages("mallory"))
}

func TestStatus_Transitions(t *testing.T) {
	assert.True(t, leave.StatusPending.CanTransition(leave.StatusApproved))
	assert.True(t, leave.StatusPending.CanTransition(leave.StatusRejected))
	assert.True(t, leave.StatusPending.CanTransition(leave.StatusCancelled))
	assert.True(t, leave.StatusApproved.CanTransition(leave.StatusCancelled))
	assert.False(t, leave.StatusApproved.CanTransition(leave.StatusRejected))
	assert.True(t, leave.StatusRejected.Terminal())
	assert.True(t, leave.StatusCancelled.Terminal())
	assert.False(t, leave.StatusCancelled.CanTransition(leave.StatusPending))
}

func TestPage_Normalize(t *testing.T) {
	assert.Equal(t, leave.Page{Offset: 0, Limit: 10}, leave.Page{Offset: -3}.Normalize())
	assert.Equal(t, leave.Page{Offset: 5, Limit: 100}, leave.Page{Offset: 5, Limit: 1000}.Normalize())
}
