/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. RealIP:        Client address from proxy headers
  3. requestLogger: zap access log carrying the request id
  4. Recoverer:     Panic recovery (500 instead of crash)
  5. CORS:          Cross-origin requests for the frontend

  Under /api (except scenarios):
  6. Authenticate:  Bearer token -> leave.Actor in context
  7. Rate limit:    Token bucket per actor
  8. RequireRoute:  casbin role gate per route
  9. Idempotency:   Redis-backed replay for POST /api/applications

ROUTE GROUPS:
  /healthz              Liveness
  /api/leave-types/*    Leave type catalogue
  /api/balances/*       Balance queries
  /api/admin/*          Admin operations
  /api/applications/*   Application lifecycle
  /api/notifications/*  Inbox
  /api/scenarios/*      Demo scenarios (dev mode only, unauthenticated)

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RouterConfig carries the collaborators of the middleware stack.
// Nil Enforcer, Limiter or Redis disable that layer.
type RouterConfig struct {
	AllowedOrigins []string
	Resolver       ActorResolver
	Enforcer       *casbin.Enforcer
	Limiter        *ActorRateLimiter
	Redis          *redis.Client
	DevMode        bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", idempotencyHeader},
		ExposedHeaders:   []string{idempotencyReplayed},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		if cfg.DevMode && h.Seeder != nil {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
			})
		}

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(cfg.Resolver, h.logger))
			if cfg.Limiter != nil {
				r.Use(cfg.Limiter.Middleware)
			}
			if cfg.Enforcer != nil {
				r.Use(RequireRoute(cfg.Enforcer, h.logger))
			}

			r.Route("/leave-types", func(r chi.Router) {
				r.Get("/", h.ListLeaveTypes)
				r.Post("/", h.CreateLeaveType)
				r.Put("/{id}", h.UpdateLeaveType)
			})

			r.Route("/balances", func(r chi.Router) {
				r.Get("/", h.MyBalances)
				r.Get("/employees/{id}", h.EmployeeBalances)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Post("/balances", h.Allocate)
			})

			r.Route("/applications", func(r chi.Router) {
				r.Get("/", h.ListApplications)
				r.With(Idempotency(cfg.Redis, h.logger)).Post("/", h.SubmitApplication)
				r.Get("/pending", h.ListPending)
				r.Get("/{id}", h.GetApplication)
				r.Put("/{id}", h.EditApplication)
				r.Put("/{id}/decision", h.DecideApplication)
				r.Put("/{id}/cancel", h.CancelApplication)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", h.ListNotifications)
				r.Put("/{id}/read", h.MarkNotificationRead)
			})
		})
	})

	return r
}

// requestLogger writes one zap line per request.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("http request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
