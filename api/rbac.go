package api

import (
	"net/http"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/warp/leave-engine/leave"
	"go.uber.org/zap"
)

// The route gate is coarse: it decides which roles may reach an endpoint at
// all. Ownership and reporting lines are checked by leave.Authorize.
const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && (r.act == p.act || p.act == "*")
`

var routePolicies = [][]string{
	{string(leave.RoleEmployee), "/api/leave-types", http.MethodGet},
	{string(leave.RoleEmployee), "/api/balances", http.MethodGet},
	{string(leave.RoleEmployee), "/api/balances/employees/:id", http.MethodGet},
	{string(leave.RoleEmployee), "/api/applications", http.MethodGet},
	{string(leave.RoleEmployee), "/api/applications", http.MethodPost},
	{string(leave.RoleEmployee), "/api/applications/:id", http.MethodGet},
	{string(leave.RoleEmployee), "/api/applications/:id", http.MethodPut},
	{string(leave.RoleEmployee), "/api/applications/:id/cancel", http.MethodPut},
	{string(leave.RoleEmployee), "/api/notifications", http.MethodGet},
	{string(leave.RoleEmployee), "/api/notifications/:id/read", http.MethodPut},

	{string(leave.RoleManager), "/api/applications/pending", http.MethodGet},
	{string(leave.RoleManager), "/api/applications/:id/decision", http.MethodPut},

	{string(leave.RoleAdmin), "/api/leave-types", http.MethodPost},
	{string(leave.RoleAdmin), "/api/leave-types/:id", http.MethodPut},
	{string(leave.RoleAdmin), "/api/admin/*", "*"},
}

var roleInheritance = [][]string{
	{string(leave.RoleManager), string(leave.RoleEmployee)},
	{string(leave.RoleAdmin), string(leave.RoleManager)},
}

// NewEnforcer builds the route gate from the embedded model and policies.
func NewEnforcer() (*casbin.Enforcer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, err
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}
	if _, err := e.AddPolicies(routePolicies); err != nil {
		return nil, err
	}
	if _, err := e.AddGroupingPolicies(roleInheritance); err != nil {
		return nil, err
	}
	return e, nil
}

// RequireRoute rejects requests whose role may not call the route.
// It runs after Authenticate.
func RequireRoute(e *casbin.Enforcer, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := mustActor(r)
			ok, err := e.Enforce(string(actor.Role), r.URL.Path, r.Method)
			if err != nil {
				logger.Error("rbac enforce failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, CodeInternal, "An internal error occurred")
				return
			}
			if !ok {
				writeError(w, http.StatusForbidden, CodeForbidden, "Your role may not access this endpoint")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
