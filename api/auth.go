package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"go.uber.org/zap"
)

// ActorResolver turns a bearer token into the caller's Actor.
type ActorResolver interface {
	Resolve(ctx context.Context, token string) (leave.Actor, error)
}

type ctxKey int

const actorKey ctxKey = iota

func withActor(ctx context.Context, a leave.Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFrom returns the Actor resolved by Authenticate.
func ActorFrom(ctx context.Context) (leave.Actor, bool) {
	a, ok := ctx.Value(actorKey).(leave.Actor)
	return a, ok
}

// Authenticate resolves the Authorization bearer token once per request and
// stores the Actor in the request context.
func Authenticate(resolver ActorResolver, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !found || strings.TrimSpace(token) == "" {
				writeError(w, http.StatusUnauthorized, CodeUnauthenticated, "Bearer token required")
				return
			}

			actor, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				writeDomainError(w, logger, generic.Internal("resolve actor", err))
				return
			}
			next.ServeHTTP(w, r.WithContext(withActor(r.Context(), actor)))
		})
	}
}

// mustActor is for handlers mounted behind Authenticate.
func mustActor(r *http.Request) leave.Actor {
	a, _ := ActorFrom(r.Context())
	return a
}
