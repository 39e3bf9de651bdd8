/*
policies.go - Authorization rules for leave operations

PURPOSE:
  Pure functions over the resolved Actor and the owner of the application
  (or balance) being touched. No I/O: the direct-report set is already on
  the Actor.

RULES:
  Submit:     Any authenticated employee, for themselves only
  View:       Owner, a manager of the owner, or admin
  Decide:     Admin, or a manager-role actor whose direct reports include the owner
  Cancel/Edit: Owner only, whatever the role
  Administer: Admin only (leave types, allocations)

NOTE:
  View accepts any actor whose direct-report set contains the owner, while
  Decide also requires the manager role. An employee-role lead with reports
  can see but not approve.

SEE ALSO:
  - types.go: Actor
  - request.go: Where Authorize is called, before any state checks
*/
package leave

import "github.com/warp/leave-engine/generic"

// =============================================================================
// OPERATIONS
// =============================================================================

type Operation string

const (
	OpSubmit     Operation = "submit"
	OpView       Operation = "view"
	OpDecide     Operation = "decide"
	OpCancel     Operation = "cancel"
	OpEdit       Operation = "edit"
	OpAdminister Operation = "administer"
)

// =============================================================================
// PREDICATES
// =============================================================================

func CanSubmit(actor Actor, owner generic.EntityID) bool {
	return actor.ID != "" && actor.ID == owner
}

func CanView(actor Actor, owner generic.EntityID) bool {
	return actor.ID == owner || actor.Manages(owner) || actor.IsAdmin()
}

func CanDecide(actor Actor, owner generic.EntityID) bool {
	if actor.IsAdmin() {
		return true
	}
	return actor.IsManager() && actor.Manages(owner)
}

// CanModify covers cancel and edit.
func CanModify(actor Actor, owner generic.EntityID) bool {
	return actor.ID == owner
}

func CanAdminister(actor Actor) bool {
	return actor.IsAdmin()
}

// CanListPending reports whether the actor has an approval queue at all.
func CanListPending(actor Actor) bool {
	return actor.IsAdmin() || actor.IsManager()
}

// Authorize returns a ForbiddenError when actor may not perform op on
// something owned by owner.
func Authorize(actor Actor, op Operation, owner generic.EntityID) error {
	var ok bool
	switch op {
	case OpSubmit:
		ok = CanSubmit(actor, owner)
	case OpView:
		ok = CanView(actor, owner)
	case OpDecide:
		ok = CanDecide(actor, owner)
	case OpCancel, OpEdit:
		ok = CanModify(actor, owner)
	case OpAdminister:
		ok = CanAdminister(actor)
	}
	if !ok {
		return &generic.ForbiddenError{ActorID: actor.ID, Operation: string(op)}
	}
	return nil
}
