package identity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/identity"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/memory"
	"go.uber.org/zap"
)

const secret = "test-secret"

func newResolver(t *testing.T) (*identity.Resolver, *memory.Memory) {
	t.Helper()
	ctx := context.Background()
	dir := memory.New()
	for _, e := range []leave.Employee{
		{ID: "mgr", FullName: "Max Manager", Role: leave.RoleManager, IsActive: true},
		{ID: "alice", FullName: "Alice Doe", Role: leave.RoleEmployee, ManagerID: "mgr", IsActive: true},
		{ID: "gone", FullName: "Gone Away", Role: leave.RoleEmployee, ManagerID: "mgr", IsActive: false},
	} {
		require.NoError(t, dir.SaveEmployee(ctx, e))
	}
	return identity.NewResolver(secret, "leave-engine", dir, zap.NewNop()), dir
}

func TestResolve_BuildsActorFromDirectory(t *testing.T) {
	r, _ := newResolver(t)
	token, err := r.Issue("mgr", leave.RoleManager, time.Hour)
	require.NoError(t, err)

	actor, err := r.Resolve(context.Background(), token)

	require.NoError(t, err)
	assert.Equal(t, generic.EntityID("mgr"), actor.ID)
	assert.True(t, actor.IsManager())
	assert.True(t, actor.Manages("alice"))
	// A deactivated report stays under the manager; only their own login is refused.
	assert.True(t, actor.Manages("gone"))
}

func TestResolve_DirectoryRoleWins(t *testing.T) {
	r, _ := newResolver(t)
	token, err := r.Issue("alice", leave.RoleAdmin, time.Hour)
	require.NoError(t, err)

	actor, err := r.Resolve(context.Background(), token)

	require.NoError(t, err)
	assert.False(t, actor.IsAdmin())
	assert.Equal(t, generic.EntityID("mgr"), actor.ManagerID)
}

func TestResolve_Rejections(t *testing.T) {
	r, _ := newResolver(t)
	now := time.Now()

	sign := func(c identity.Claims, key string) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(key))
		require.NoError(t, err)
		return s
	}
	claims := func(sub, typ string, exp time.Time) identity.Claims {
		return identity.Claims{
			Role: "employee",
			Type: typ,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   sub,
				Issuer:    "leave-engine",
				ExpiresAt: jwt.NewNumericDate(exp),
			},
		}
	}
	noExpiry := claims("alice", identity.TokenTypeAccess, now)
	noExpiry.ExpiresAt = nil
	wrongIssuer := claims("alice", identity.TokenTypeAccess, now.Add(time.Hour))
	wrongIssuer.Issuer = "someone-else"

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"wrong key", sign(claims("alice", identity.TokenTypeAccess, now.Add(time.Hour)), "other")},
		{"expired", sign(claims("alice", identity.TokenTypeAccess, now.Add(-time.Minute)), secret)},
		{"no expiry", sign(noExpiry, secret)},
		{"refresh token", sign(claims("alice", "refresh", now.Add(time.Hour)), secret)},
		{"wrong issuer", sign(wrongIssuer, secret)},
		{"unknown employee", sign(claims("ghost", identity.TokenTypeAccess, now.Add(time.Hour)), secret)},
		{"inactive employee", sign(claims("gone", identity.TokenTypeAccess, now.Add(time.Hour)), secret)},
		{"no subject", sign(claims("", identity.TokenTypeAccess, now.Add(time.Hour)), secret)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), tt.token)
			assert.True(t, errors.Is(err, generic.ErrUnauthenticated), "got %v", err)
		})
	}
}
