/*
handlers_test.go - End-to-end tests through the router

Tests for:
- Authentication and the role gate
- Submit, approve, balance read-back
- Error mapping (validation, insufficient balance, not found)
- Demo scenarios and the rollover scheduler
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/identity"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	router http.Handler
	store  *sqlite.Store
	svc    *leave.Service
	tokens map[string]string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := zap.NewNop()
	svc := leave.NewService(store, store, store, leave.Options{}, logger)
	resolver := identity.NewResolver("test-secret", "leave-engine", store, logger)
	enforcer, err := NewEnforcer()
	require.NoError(t, err)

	h := NewHandler(svc, store, store, logger)
	h.Seeder = store
	h.Issuer = resolver
	router := NewRouter(h, RouterConfig{
		Resolver: resolver,
		Enforcer: enforcer,
		DevMode:  true,
	})

	ts := &testServer{router: router, store: store, svc: svc, tokens: map[string]string{}}
	rec := ts.do(t, http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "standard-org"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var loaded LoadScenarioResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loaded))
	for _, u := range loaded.Users {
		ts.tokens[u.ID] = u.Token
	}
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) as(t *testing.T, who, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	token, ok := ts.tokens[who]
	require.True(t, ok, "no token for %s", who)
	return ts.do(t, method, path, token, body)
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// thisYear builds a date in the year the scenario allocated for.
func thisYear(monthDay string) string {
	return fmt.Sprintf("%d-%s", time.Now().Year(), monthDay)
}

func submitBody(leaveType, start, end string) SubmitApplicationRequest {
	return SubmitApplicationRequest{
		LeaveTypeID: leaveType,
		StartDate:   thisYear(start),
		EndDate:     thisYear(end),
		Reason:      "Holiday",
	}
}

// =============================================================================
// AUTHENTICATION AND ROLE GATE
// =============================================================================

func TestAPI_Healthz(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_MissingOrBadToken_401(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/applications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/applications", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeUnauthenticated, decodeBody[ErrorResponse](t, rec).Error)
}

func TestAPI_EmployeeBlockedFromManagerAndAdminRoutes(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.as(t, "dev-ann", http.MethodPut, "/api/applications/x/decision", DecisionRequest{Status: "approved"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.as(t, "eng-lead", http.MethodPost, "/api/admin/balances", AllocateRequest{EmployeeID: "dev-ann", LeaveTypeID: "annual"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.as(t, "dev-ann", http.MethodPost, "/api/leave-types", LeaveTypeRequest{Name: "Sabbatical"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestAPI_SubmitApproveAndReadBalance(t *testing.T) {
	// GIVEN: Ann holds 20 days of Annual Leave this year
	ts := newTestServer(t)

	// WHEN: she applies for two days
	rec := ts.as(t, "dev-ann", http.MethodPost, "/api/applications", submitBody("annual", "06-09", "06-10"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	app := decodeBody[ApplicationDTO](t, rec)

	// THEN: it is pending, enriched, and visible in her manager's queue
	assert.Equal(t, "pending", app.Status)
	assert.Equal(t, 2.0, app.TotalDays)
	assert.Equal(t, "Ann Park", app.EmployeeName)
	assert.Equal(t, "Engineering", app.Department)
	assert.Equal(t, "Annual Leave", app.LeaveTypeName)

	rec = ts.as(t, "eng-lead", http.MethodGet, "/api/applications/pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decodeBody[[]ApplicationDTO](t, rec)
	require.Len(t, pending, 1)
	assert.Equal(t, app.ID, pending[0].ID)

	rec = ts.as(t, "ops-lead", http.MethodGet, "/api/applications/pending", nil)
	assert.Empty(t, decodeBody[[]ApplicationDTO](t, rec))

	// WHEN: the manager approves
	rec = ts.as(t, "eng-lead", http.MethodPut, "/api/applications/"+app.ID+"/decision", DecisionRequest{Status: "approved"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decided := decodeBody[ApplicationDTO](t, rec)
	assert.Equal(t, "approved", decided.Status)
	assert.Equal(t, "Eli Lead", decided.ApproverName)
	require.NotNil(t, decided.DecidedOn)

	// THEN: her balance shows 18 remaining and she has an approval notice
	rec = ts.as(t, "dev-ann", http.MethodGet, "/api/balances", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var annual *BalanceDTO
	for _, b := range decodeBody[[]BalanceDTO](t, rec) {
		if b.LeaveTypeID == "annual" {
			b := b
			annual = &b
		}
	}
	require.NotNil(t, annual)
	assert.Equal(t, 2.0, annual.Used)
	assert.Equal(t, 18.0, annual.Remaining)

	rec = ts.as(t, "dev-ann", http.MethodGet, "/api/notifications?unread=true", nil)
	notes := decodeBody[[]NotificationDTO](t, rec)
	require.Len(t, notes, 1)
	assert.Equal(t, "Leave Application Approved", notes[0].Title)

	rec = ts.as(t, "dev-ann", http.MethodPut, "/api/notifications/"+notes[0].ID+"/read", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// WHEN: the already approved application is decided again
	rec = ts.as(t, "eng-lead", http.MethodPut, "/api/applications/"+app.ID+"/decision", DecisionRequest{Status: "approved"})

	// THEN: the state machine refuses
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, CodeInvalidTransition, body.Error)
	assert.Equal(t, "approved", body.Details["from"])
}

func TestAPI_InsufficientBalance_422(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.as(t, "dev-ann", http.MethodPost, "/api/applications", submitBody("annual", "07-01", "07-25"))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, CodeInsufficientBalance, body.Error)
	assert.Equal(t, 20.0, body.Details["available"])
	assert.Equal(t, 25.0, body.Details["requested"])
}

func TestAPI_ValidationErrors_400(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name  string
		body  any
		field string
	}{
		{"bad end date", SubmitApplicationRequest{LeaveTypeID: "annual", StartDate: thisYear("06-09"), EndDate: "tomorrow", Reason: "x"}, "end_date"},
		{"missing reason", SubmitApplicationRequest{LeaveTypeID: "annual", StartDate: thisYear("06-09"), EndDate: thisYear("06-09")}, "reason"},
		{"end before start", submitBody("annual", "06-10", "06-09"), "end_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.as(t, "dev-ann", http.MethodPost, "/api/applications", tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			body := decodeBody[ErrorResponse](t, rec)
			assert.Equal(t, CodeValidation, body.Error)
			assert.Equal(t, tt.field, body.Details["field"])
		})
	}

	rec := ts.as(t, "eng-lead", http.MethodPut, "/api/applications/x/decision", DecisionRequest{Status: "rejected"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "rejection_reason", decodeBody[ErrorResponse](t, rec).Details["field"])
}

func TestAPI_UnknownApplication_404(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.as(t, "dev-ann", http.MethodGet, "/api/applications/nope", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decodeBody[ErrorResponse](t, rec).Error)
}

func TestAPI_PeerCannotViewApplication_403(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.as(t, "dev-ann", http.MethodPost, "/api/applications", submitBody("sick", "03-03", "03-03"))
	require.Equal(t, http.StatusCreated, rec.Code)
	app := decodeBody[ApplicationDTO](t, rec)

	rec = ts.as(t, "dev-ben", http.MethodGet, "/api/applications/"+app.ID, nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPI_AdminCreatesLeaveTypeAndAllocates(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.as(t, "hr-admin", http.MethodPost, "/api/leave-types", LeaveTypeRequest{Name: "Sabbatical", AnnualAllocation: 5})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	lt := decodeBody[LeaveTypeDTO](t, rec)
	assert.True(t, lt.RequiresApproval)

	rec = ts.as(t, "hr-admin", http.MethodPost, "/api/leave-types", LeaveTypeRequest{Name: "sabbatical"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.as(t, "hr-admin", http.MethodPost, "/api/admin/balances", AllocateRequest{EmployeeID: "dev-ann", LeaveTypeID: lt.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 5.0, decodeBody[BalanceDTO](t, rec).Remaining)

	rec = ts.as(t, "eng-lead", http.MethodGet, "/api/balances/employees/dev-ann", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]BalanceDTO](t, rec), 6)

	rec = ts.as(t, "ops-lead", http.MethodGet, "/api/balances/employees/dev-ann", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// =============================================================================
// SCENARIOS AND SCHEDULER
// =============================================================================

func TestAPI_ApprovalQueueScenario(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "approval-queue"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.as(t, "hr-admin", http.MethodGet, "/api/applications/pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]ApplicationDTO](t, rec), 3)

	rec = ts.do(t, http.MethodGet, "/api/scenarios/current", "", nil)
	assert.Equal(t, "approval-queue", decodeBody[ScenarioDTO](t, rec).ID)

	rec = ts.do(t, http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRolloverScheduler_OpensOnlyMissingBuckets(t *testing.T) {
	// GIVEN: the seeded org already has this year's buckets, plus a new hire
	ts := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, ts.store.SaveEmployee(ctx, leave.Employee{
		ID: "new-hire", FullName: "Nia New", Role: leave.RoleEmployee, ManagerID: "eng-lead", IsActive: true,
	}))
	rs := NewRolloverScheduler(ts.svc, ts.store, zap.NewNop())

	// WHEN
	result := rs.RunOnce(ctx)

	// THEN: only the new hire's five buckets are opened
	assert.Equal(t, 5, result.Opened)
	assert.Equal(t, 30, result.Skipped)
	assert.Zero(t, result.Failed)

	again := rs.RunOnce(ctx)
	assert.Zero(t, again.Opened)
}

func TestRolloverScheduler_QuietWhenBucketsExist(t *testing.T) {
	// GIVEN: every active employee already holds this year's buckets
	ts := newTestServer(t)
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	svc := leave.NewService(ts.store, ts.store, ts.store, leave.Options{}, logger)
	rs := NewRolloverScheduler(svc, ts.store, logger)

	// WHEN
	result := rs.RunOnce(context.Background())

	// THEN: nothing is allocated and nothing is logged as a rejection
	assert.Zero(t, result.Opened)
	assert.Equal(t, 30, result.Skipped)
	assert.Zero(t, logs.FilterMessageSnippet("allocate").Len())
	assert.Zero(t, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestRateLimiter_PerActor(t *testing.T) {
	limiter := NewActorRateLimiter(rate.Limit(1), 1)
	h := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	call := func(id string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(withActor(req.Context(), leave.NewActor(generic.EntityID(id), leave.RoleEmployee, "", nil)))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("a"))
	assert.Equal(t, http.StatusTooManyRequests, call("a"))
	assert.Equal(t, http.StatusOK, call("b"))
}
