/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes the leave service via REST API. Handles HTTP request/response,
  JSON serialization and input shape, and delegates every business rule
  to the leave package.

ENDPOINTS:
  Leave types:
    GET    /api/leave-types                   List leave types
    POST   /api/leave-types                   Create leave type (admin)
    PUT    /api/leave-types/{id}              Update leave type (admin)

  Balances:
    GET    /api/balances?year=                Caller's balances
    GET    /api/balances/employees/{id}       Another employee's balances
    POST   /api/admin/balances                Allocate a bucket (admin)

  Applications:
    GET    /api/applications                  Caller's applications
    POST   /api/applications                  Submit
    GET    /api/applications/pending          Approval queue
    GET    /api/applications/{id}             Get one
    PUT    /api/applications/{id}             Edit a pending application
    PUT    /api/applications/{id}/decision    Approve or reject
    PUT    /api/applications/{id}/cancel      Cancel

  Notifications:
    GET    /api/notifications?unread=         Caller's inbox
    PUT    /api/notifications/{id}/read       Mark as read

REQUEST FLOW:
  1. Authenticate resolved the Actor (see auth.go)
  2. Decode and validate the body
  3. Call the leave service with the Actor
  4. Enrich and serialize the response
  5. Map errors through writeDomainError

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Status mapping
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service   *leave.Service
	Directory leave.Directory
	Inbox     leave.Inbox

	// Demo seeding, dev mode only. Nil disables the scenario routes.
	Seeder Seeder
	Issuer TokenIssuer

	validate *validator.Validate
	logger   *zap.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler around the leave service.
func NewHandler(svc *leave.Service, directory leave.Directory, inbox leave.Inbox, logger ...*zap.Logger) *Handler {
	l := zap.L()
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	}
	return &Handler{
		Service:   svc,
		Directory: directory,
		Inbox:     inbox,
		validate:  newValidator(),
		logger:    l.Named("api"),
	}
}

// Health is the liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// LEAVE TYPES
// =============================================================================

func (h *Handler) ListLeaveTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Service.ListLeaveTypes(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	dtos := make([]LeaveTypeDTO, len(types))
	for i, lt := range types {
		dtos[i] = toLeaveTypeDTO(lt)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateLeaveType(w http.ResponseWriter, r *http.Request) {
	var req LeaveTypeRequest
	if !h.decode(w, r, &req) {
		return
	}
	lt, err := h.Service.CreateLeaveType(r.Context(), mustActor(r), req.input())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveTypeDTO(*lt))
}

func (h *Handler) UpdateLeaveType(w http.ResponseWriter, r *http.Request) {
	var req LeaveTypeUpdateRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := generic.ResourceID(chi.URLParam(r, "id"))
	lt, err := h.Service.UpdateLeaveType(r.Context(), mustActor(r), id, req.update())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveTypeDTO(*lt))
}

// =============================================================================
// BALANCES
// =============================================================================

func (h *Handler) MyBalances(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r)
	h.balances(w, r, actor, actor.ID)
}

func (h *Handler) EmployeeBalances(w http.ResponseWriter, r *http.Request) {
	h.balances(w, r, mustActor(r), generic.EntityID(chi.URLParam(r, "id")))
}

func (h *Handler) balances(w http.ResponseWriter, r *http.Request, actor leave.Actor, employeeID generic.EntityID) {
	year, err := queryInt(r, "year", 0)
	if err != nil {
		h.fail(w, err)
		return
	}
	list, err := h.Service.Balances(r.Context(), actor, employeeID, year)
	if err != nil {
		h.fail(w, err)
		return
	}
	names := h.newEnricher()
	dtos := make([]BalanceDTO, len(list))
	for i, b := range list {
		dtos[i] = toBalanceDTO(b, names.leaveTypeName(r.Context(), b.Key.ResourceID))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) Allocate(w http.ResponseWriter, r *http.Request) {
	var req AllocateRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := leave.AllocateInput{
		EmployeeID:  generic.EntityID(req.EmployeeID),
		LeaveTypeID: generic.ResourceID(req.LeaveTypeID),
		Year:        req.Year,
	}
	if req.Allocated != nil {
		a := generic.Days(*req.Allocated)
		in.Allocated = &a
	}
	b, err := h.Service.Allocate(r.Context(), mustActor(r), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBalanceDTO(*b, h.newEnricher().leaveTypeName(r.Context(), b.Key.ResourceID)))
}

// =============================================================================
// APPLICATIONS
// =============================================================================

func (h *Handler) ListApplications(w http.ResponseWriter, r *http.Request) {
	page, err := queryPage(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	apps, err := h.Service.ListForEmployee(r.Context(), mustActor(r), leave.ListFilter{
		Status: leave.Status(r.URL.Query().Get("status")),
		Page:   page,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toApplicationDTOs(r.Context(), apps))
}

func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	page, err := queryPage(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	apps, err := h.Service.ListPendingForApprover(r.Context(), mustActor(r), page)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toApplicationDTOs(r.Context(), apps))
}

func (h *Handler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	var req SubmitApplicationRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		h.fail(w, err)
		return
	}
	app, err := h.Service.Submit(r.Context(), mustActor(r), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.newEnricher().application(r.Context(), *app))
}

func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.Service.Get(r.Context(), mustActor(r), applicationID(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.newEnricher().application(r.Context(), *app))
}

func (h *Handler) EditApplication(w http.ResponseWriter, r *http.Request) {
	var req EditApplicationRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		h.fail(w, err)
		return
	}
	app, err := h.Service.Edit(r.Context(), mustActor(r), applicationID(r), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.newEnricher().application(r.Context(), *app))
}

func (h *Handler) DecideApplication(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !h.decode(w, r, &req) {
		return
	}
	app, err := h.Service.Decide(r.Context(), mustActor(r), applicationID(r), leave.DecideInput{
		Decision:        leave.Status(req.Status),
		RejectionReason: req.RejectionReason,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.newEnricher().application(r.Context(), *app))
}

func (h *Handler) CancelApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.Service.Cancel(r.Context(), mustActor(r), applicationID(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.newEnricher().application(r.Context(), *app))
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	page, err := queryPage(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	unread := r.URL.Query().Get("unread") == "true"
	list, err := h.Inbox.ListNotifications(r.Context(), mustActor(r).ID, unread, page)
	if err != nil {
		h.fail(w, err)
		return
	}
	dtos := make([]NotificationDTO, len(list))
	for i, n := range list {
		dtos[i] = toNotificationDTO(n)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	err := h.Inbox.MarkNotificationRead(r.Context(), mustActor(r).ID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ENRICHMENT
// =============================================================================

// enricher resolves display names once per request.
type enricher struct {
	h          *Handler
	people     map[generic.EntityID]*leave.Employee
	depts      map[string]string
	leaveTypes map[generic.ResourceID]string
}

func (h *Handler) newEnricher() *enricher {
	return &enricher{
		h:          h,
		people:     make(map[generic.EntityID]*leave.Employee),
		depts:      make(map[string]string),
		leaveTypes: make(map[generic.ResourceID]string),
	}
}

func (e *enricher) employee(ctx context.Context, id generic.EntityID) *leave.Employee {
	if id == "" || e.h.Directory == nil {
		return nil
	}
	if emp, ok := e.people[id]; ok {
		return emp
	}
	emp, err := e.h.Directory.Employee(ctx, id)
	if err != nil {
		e.h.logger.Warn("directory lookup failed", zap.String("employee_id", string(id)), zap.Error(err))
	}
	e.people[id] = emp
	return emp
}

func (e *enricher) department(ctx context.Context, id string) string {
	if id == "" || e.h.Directory == nil {
		return ""
	}
	if name, ok := e.depts[id]; ok {
		return name
	}
	var name string
	if d, err := e.h.Directory.Department(ctx, id); err == nil && d != nil {
		name = d.Name
	}
	e.depts[id] = name
	return name
}

func (e *enricher) leaveTypeName(ctx context.Context, id generic.ResourceID) string {
	if name, ok := e.leaveTypes[id]; ok {
		return name
	}
	var name string
	if lt, err := e.h.Service.GetLeaveType(ctx, id); err == nil {
		name = lt.Name
	}
	e.leaveTypes[id] = name
	return name
}

func (e *enricher) application(ctx context.Context, app leave.Application) ApplicationDTO {
	dto := ApplicationDTO{
		ID:              string(app.ID),
		EmployeeID:      string(app.EmployeeID),
		LeaveTypeID:     string(app.LeaveTypeID),
		LeaveTypeName:   e.leaveTypeName(ctx, app.LeaveTypeID),
		StartDate:       app.StartDate.String(),
		EndDate:         app.EndDate.String(),
		TotalDays:       app.TotalDays.Float64(),
		Reason:          app.Reason,
		Attachments:     app.Attachments,
		Status:          string(app.Status),
		ApproverID:      string(app.ApproverID),
		AppliedOn:       app.AppliedOn.Format(time.RFC3339),
		RejectionReason: app.RejectionReason,
	}
	if emp := e.employee(ctx, app.EmployeeID); emp != nil {
		dto.EmployeeName = emp.FullName
		dto.Department = e.department(ctx, emp.DepartmentID)
	}
	if approver := e.employee(ctx, app.ApproverID); approver != nil {
		dto.ApproverName = approver.FullName
	}
	if app.DecidedOn != nil {
		s := app.DecidedOn.Format(time.RFC3339)
		dto.DecidedOn = &s
	}
	return dto
}

func (h *Handler) toApplicationDTOs(ctx context.Context, apps []leave.Application) []ApplicationDTO {
	e := h.newEnricher()
	dtos := make([]ApplicationDTO, len(apps))
	for i, app := range apps {
		dtos[i] = e.application(ctx, app)
	}
	return dtos
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	writeDomainError(w, h.logger, err)
}

// decode reads and validates a JSON body, writing the error response itself
// when it returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		h.fail(w, validationError(err))
		return false
	}
	return true
}

func applicationID(r *http.Request) leave.ApplicationID {
	return leave.ApplicationID(chi.URLParam(r, "id"))
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, generic.NewValidationError(name, name+" must be an integer")
	}
	return n, nil
}

func queryPage(r *http.Request) (leave.Page, error) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		return leave.Page{}, err
	}
	limit, err := queryInt(r, "limit", leave.DefaultPageSize)
	if err != nil {
		return leave.Page{}, err
	}
	return leave.Page{Offset: offset, Limit: limit}.Normalize(), nil
}
