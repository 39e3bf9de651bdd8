/*
scenarios.go - Demo scenario loaders for development and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with a small
	organisation: departments, an admin, managers with reports, the
	standard leave types and current-year balances. Each seeded person gets
	a signed access token so the API can be exercised right away.

AVAILABLE SCENARIOS:

	standard-org:      Org chart, leave types, current-year balances
	approval-queue:    standard-org plus pending and decided applications

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create departments and employees
 3. Create leave types
 4. Allocate current-year balances through the leave service
 5. Optionally submit and decide applications through the leave service

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "approval-queue"}

NOTE:

	Scenarios reset the database. The routes are mounted in dev mode only.

SEE ALSO:
  - handlers.go: Handler
  - server.go: dev-mode route mounting
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// Seeder is the storage a scenario writes to directly.
type Seeder interface {
	Reset(ctx context.Context) error
	SaveDepartment(ctx context.Context, d leave.Department) error
	SaveEmployee(ctx context.Context, e leave.Employee) error
	SaveLeaveType(ctx context.Context, lt leave.LeaveType) error
}

// TokenIssuer signs access tokens for seeded users.
type TokenIssuer interface {
	Issue(employeeID generic.EntityID, role leave.Role, ttl time.Duration) (string, error)
}

const demoTokenTTL = 7 * 24 * time.Hour

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "standard-org",
		Name:        "Standard Organisation",
		Description: "Two departments, an admin, two managers with reports, five leave types and current-year balances",
	},
	{
		ID:          "approval-queue",
		Name:        "Approval Queue",
		Description: "Standard organisation with pending, approved and rejected applications",
	},
}

var demoDepartments = []leave.Department{
	{ID: "eng", Name: "Engineering"},
	{ID: "ops", Name: "Operations"},
}

var demoEmployees = []leave.Employee{
	{ID: "hr-admin", FullName: "Hana Admin", Email: "hana@example.com", DepartmentID: "ops", Role: leave.RoleAdmin},
	{ID: "eng-lead", FullName: "Eli Lead", Email: "eli@example.com", DepartmentID: "eng", Role: leave.RoleManager},
	{ID: "ops-lead", FullName: "Ola Lead", Email: "ola@example.com", DepartmentID: "ops", Role: leave.RoleManager},
	{ID: "dev-ann", FullName: "Ann Park", Email: "ann@example.com", DepartmentID: "eng", ManagerID: "eng-lead", Role: leave.RoleEmployee},
	{ID: "dev-ben", FullName: "Ben Ito", Email: "ben@example.com", DepartmentID: "eng", ManagerID: "eng-lead", Role: leave.RoleEmployee},
	{ID: "ops-cy", FullName: "Cy Moss", Email: "cy@example.com", DepartmentID: "ops", ManagerID: "ops-lead", Role: leave.RoleEmployee},
}

var demoLeaveTypes = []leave.LeaveType{
	{ID: "annual", Name: "Annual Leave", Description: "Paid vacation", RequiresApproval: true, IsPaid: true, AnnualAllocation: generic.Days(20)},
	{ID: "sick", Name: "Sick Leave", Description: "Illness or medical appointments", RequiresApproval: true, IsPaid: true, AnnualAllocation: generic.Days(12)},
	{ID: "casual", Name: "Casual Leave", Description: "Short personal errands", RequiresApproval: true, IsPaid: true, AnnualAllocation: generic.Days(10)},
	{ID: "wfh", Name: "Work From Home", Description: "Remote working days", RequiresApproval: true, IsPaid: true, AnnualAllocation: generic.Days(50)},
	{ID: "unpaid", Name: "Unpaid Leave", Description: "Leave without pay", RequiresApproval: true, IsPaid: false, AnnualAllocation: generic.Days(30)},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	var scenario *ScenarioDTO
	for i := range scenarios {
		if scenarios[i].ID == req.ScenarioID {
			scenario = &scenarios[i]
		}
	}
	if scenario == nil {
		h.fail(w, generic.NewValidationError("scenario_id", fmt.Sprintf("unknown scenario %q", req.ScenarioID)))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	h.currentScenario = ""
	if err := h.Seeder.Reset(ctx); err != nil {
		h.fail(w, err)
		return
	}

	err := h.loadStandardOrg(ctx)
	if err == nil && scenario.ID == "approval-queue" {
		err = h.loadApprovalQueue(ctx)
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	h.currentScenario = scenario.ID

	users, err := h.demoUsers()
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LoadScenarioResponse{Scenario: *scenario, Users: users})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadStandardOrg(ctx context.Context) error {
	for _, d := range demoDepartments {
		if err := h.Seeder.SaveDepartment(ctx, d); err != nil {
			return err
		}
	}
	for _, e := range demoEmployees {
		e.IsActive = true
		if err := h.Seeder.SaveEmployee(ctx, e); err != nil {
			return err
		}
	}
	for _, lt := range demoLeaveTypes {
		if err := h.Seeder.SaveLeaveType(ctx, lt); err != nil {
			return err
		}
	}

	admin, err := h.actor(ctx, "hr-admin")
	if err != nil {
		return err
	}
	for _, e := range demoEmployees {
		for _, lt := range demoLeaveTypes {
			if _, err := h.Service.Allocate(ctx, admin, leave.AllocateInput{
				EmployeeID:  e.ID,
				LeaveTypeID: lt.ID,
			}); err != nil {
				return fmt.Errorf("allocate %s/%s: %w", e.ID, lt.ID, err)
			}
		}
	}
	return nil
}

// loadApprovalQueue leaves one pending application per report and decides
// two more, all in the coming weeks.
func (h *Handler) loadApprovalQueue(ctx context.Context) error {
	start := nextMonday(generic.Today())
	// Keep the seeded dates inside the current year's buckets.
	if start.AddDays(18).Year() != generic.Today().Year() {
		start = generic.FromTime(time.Date(generic.Today().Year(), time.January, 5, 0, 0, 0, 0, time.UTC))
	}

	type submission struct {
		employee  generic.EntityID
		leaveType generic.ResourceID
		offset    int
		days      int
		reason    string
		decision  leave.Status
	}
	plan := []submission{
		{"dev-ann", "annual", 7, 5, "Family trip", ""},
		{"dev-ben", "sick", 0, 1, "Dentist", leave.StatusApproved},
		{"dev-ben", "wfh", 14, 2, "Contractor visit at home", ""},
		{"ops-cy", "casual", 3, 1, "Moving house", leave.StatusRejected},
		{"ops-cy", "annual", 14, 3, "Long weekend", ""},
	}

	for _, p := range plan {
		who, err := h.actor(ctx, p.employee)
		if err != nil {
			return err
		}
		app, err := h.Service.Submit(ctx, who, leave.SubmitInput{
			LeaveTypeID: p.leaveType,
			StartDate:   start.AddDays(p.offset),
			EndDate:     start.AddDays(p.offset + p.days - 1),
			Reason:      p.reason,
		})
		if err != nil {
			return fmt.Errorf("submit for %s: %w", p.employee, err)
		}
		if p.decision == "" {
			continue
		}
		approver, err := h.actor(ctx, who.ManagerID)
		if err != nil {
			return err
		}
		in := leave.DecideInput{Decision: p.decision}
		if p.decision == leave.StatusRejected {
			in.RejectionReason = "Team is short-staffed that day"
		}
		if _, err := h.Service.Decide(ctx, approver, app.ID, in); err != nil {
			return fmt.Errorf("decide for %s: %w", p.employee, err)
		}
	}
	return nil
}

// actor builds an Actor from the directory the way the identity layer does.
func (h *Handler) actor(ctx context.Context, id generic.EntityID) (leave.Actor, error) {
	emp, err := h.Directory.Employee(ctx, id)
	if err != nil {
		return leave.Actor{}, err
	}
	if emp == nil {
		return leave.Actor{}, &generic.NotFoundError{Kind: "employee", ID: string(id)}
	}
	reports, err := h.Directory.DirectReports(ctx, id)
	if err != nil {
		return leave.Actor{}, err
	}
	return leave.NewActor(emp.ID, emp.Role, emp.ManagerID, reports), nil
}

func (h *Handler) demoUsers() ([]DemoUserDTO, error) {
	users := make([]DemoUserDTO, 0, len(demoEmployees))
	for _, e := range demoEmployees {
		u := DemoUserDTO{ID: string(e.ID), Name: e.FullName, Role: string(e.Role)}
		if h.Issuer != nil {
			token, err := h.Issuer.Issue(e.ID, e.Role, demoTokenTTL)
			if err != nil {
				return nil, err
			}
			u.Token = token
		}
		users = append(users, u)
	}
	return users, nil
}

func nextMonday(from generic.TimePoint) generic.TimePoint {
	d := from.AddDays(1)
	for d.Weekday() != time.Monday {
		d = d.AddDays(1)
	}
	return d
}
