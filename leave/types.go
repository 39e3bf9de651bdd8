// Package leave implements employee leave on top of the generic engine:
// leave types, applications and their lifecycle, the balance ledger and
// the authorization rules that gate every transition.
package leave

import (
	"sort"
	"strings"
	"time"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// ACTOR - Resolved identity of the caller, immutable for one request
// =============================================================================

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleEmployee:
		return true
	}
	return false
}

// Actor is built once per request from the identity collaborator.
// The direct-report set is copied in and never exposed for mutation.
type Actor struct {
	ID        generic.EntityID
	Role      Role
	ManagerID generic.EntityID // empty when the actor has no manager
	reports   map[generic.EntityID]struct{}
}

func NewActor(id generic.EntityID, role Role, managerID generic.EntityID, reports []generic.EntityID) Actor {
	set := make(map[generic.EntityID]struct{}, len(reports))
	for _, r := range reports {
		set[r] = struct{}{}
	}
	return Actor{ID: id, Role: role, ManagerID: managerID, reports: set}
}

func (a Actor) IsAdmin() bool   { return a.Role == RoleAdmin }
func (a Actor) IsManager() bool { return a.Role == RoleManager }

// Manages reports whether id is one of the actor's direct reports.
func (a Actor) Manages(id generic.EntityID) bool {
	_, ok := a.reports[id]
	return ok
}

// DirectReports returns a sorted copy of the direct-report set.
func (a Actor) DirectReports() []generic.EntityID {
	out := make([]generic.EntityID, 0, len(a.reports))
	for id := range a.reports {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// =============================================================================
// LEAVE TYPE
// =============================================================================

type LeaveType struct {
	ID               generic.ResourceID
	Name             string
	Description      string
	RequiresApproval bool // informational, every application starts pending
	IsPaid           bool
	AnnualAllocation generic.Amount
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NormalizedName is used for the unique-name check.
func (lt LeaveType) NormalizedName() string {
	return strings.ToLower(strings.TrimSpace(lt.Name))
}

// =============================================================================
// APPLICATION - A leave request and its lifecycle state
// =============================================================================

type ApplicationID string

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// transitions lists the allowed moves; rejected and cancelled are terminal.
var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved: {StatusCancelled},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

type Application struct {
	ID              ApplicationID
	EmployeeID      generic.EntityID
	LeaveTypeID     generic.ResourceID
	StartDate       generic.TimePoint
	EndDate         generic.TimePoint
	TotalDays       generic.Amount
	Reason          string
	Attachments     string
	Status          Status
	ApproverID      generic.EntityID // empty until decided
	AppliedOn       time.Time
	DecidedOn       *time.Time
	RejectionReason string
	UpdatedAt       time.Time
}

// Year is the balance year the application is charged to.
func (a Application) Year() int { return a.StartDate.Year() }

func (a Application) BalanceKey() generic.BalanceKey {
	return generic.BalanceKey{EntityID: a.EmployeeID, ResourceID: a.LeaveTypeID, Year: a.Year()}
}

// =============================================================================
// DIRECTORY RECORDS - Used for identity resolution and enrichment only
// =============================================================================

type Employee struct {
	ID           generic.EntityID
	FullName     string
	Email        string
	DepartmentID string
	ManagerID    generic.EntityID
	Role         Role
	IsActive     bool
	CreatedAt    time.Time
}

type Department struct {
	ID   string
	Name string
}

// =============================================================================
// NOTIFICATION
// =============================================================================

type Category string

const (
	CategoryLeave      Category = "leave"
	CategoryAttendance Category = "attendance"
	CategoryRave       Category = "rave"
	CategorySystem     Category = "system"
)

type Notification struct {
	ID         string
	EmployeeID generic.EntityID // recipient
	Title      string
	Message    string
	Category   Category
	Link       string
	Read       bool
	CreatedAt  time.Time
}

// =============================================================================
// QUERIES
// =============================================================================

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Page is an offset/limit window. A zero Limit means DefaultPageSize.
type Page struct {
	Offset int
	Limit  int
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	return p
}

// ApplicationQuery selects applications for listing, newest first.
// A nil EmployeeIDs means every employee.
type ApplicationQuery struct {
	EmployeeIDs []generic.EntityID
	Status      Status // empty means any
	Page        Page
}
