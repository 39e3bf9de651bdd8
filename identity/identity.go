/*
Package identity turns a bearer token into a leave.Actor.

PURPOSE:
  The leave service never sees credentials. Each request resolves its
  token once into an immutable Actor (id, role, manager, direct reports)
  which is then passed to every operation.

TOKENS:
  HS256 JWTs with claims:
    sub   employee id
    role  admin | manager | employee
    type  "access" (refresh tokens are rejected)
    exp   expiry
    iss   optional, checked when the resolver has an issuer

  The directory is authoritative: the employee must exist and be active,
  and the role recorded there wins over the claim.

SEE ALSO:
  - leave/types.go: Actor
  - api/auth.go: middleware calling Resolve
*/
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"go.uber.org/zap"
)

// TokenTypeAccess is the only token type Resolve accepts.
const TokenTypeAccess = "access"

// Claims is the JWT payload.
type Claims struct {
	Role string `json:"role"`
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// Resolver validates tokens and builds actors from the directory.
type Resolver struct {
	secret    []byte
	issuer    string
	directory leave.Directory
	logger    *zap.Logger
	now       func() time.Time
}

func NewResolver(secret, issuer string, directory leave.Directory, logger ...*zap.Logger) *Resolver {
	l := zap.L()
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	}
	return &Resolver{
		secret:    []byte(secret),
		issuer:    issuer,
		directory: directory,
		logger:    l.Named("identity"),
		now:       time.Now,
	}
}

// SetClock overrides the time used for expiry checks.
func (r *Resolver) SetClock(now func() time.Time) {
	r.now = now
}

// Issue signs an access token. Used by the demo seed and tests.
func (r *Resolver) Issue(employeeID generic.EntityID, role leave.Role, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := r.now()
	claims := &Claims{
		Role: string(role),
		Type: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(employeeID),
			Issuer:    r.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}

// Resolve validates token and returns the caller's Actor.
// Every failure is generic.ErrUnauthenticated.
func (r *Resolver) Resolve(ctx context.Context, token string) (leave.Actor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return leave.Actor{}, unauthenticated("missing token")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(r.now),
	}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return r.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return leave.Actor{}, unauthenticated("token expired")
		}
		r.logger.Debug("token rejected", zap.Error(err))
		return leave.Actor{}, unauthenticated("invalid token")
	}
	if !parsed.Valid {
		return leave.Actor{}, unauthenticated("invalid token")
	}
	if claims.Type != TokenTypeAccess {
		return leave.Actor{}, unauthenticated("not an access token")
	}
	if claims.Subject == "" {
		return leave.Actor{}, unauthenticated("token has no subject")
	}

	id := generic.EntityID(claims.Subject)
	emp, err := r.directory.Employee(ctx, id)
	if err != nil {
		return leave.Actor{}, err
	}
	if emp == nil || !emp.IsActive {
		return leave.Actor{}, unauthenticated("unknown or inactive employee")
	}
	if claims.Role != "" && claims.Role != string(emp.Role) {
		r.logger.Info("token role differs from directory",
			zap.String("employee_id", string(id)),
			zap.String("token_role", claims.Role),
			zap.String("directory_role", string(emp.Role)))
	}

	reports, err := r.directory.DirectReports(ctx, id)
	if err != nil {
		return leave.Actor{}, err
	}
	return leave.NewActor(emp.ID, emp.Role, emp.ManagerID, reports), nil
}

func unauthenticated(msg string) error {
	return fmt.Errorf("%w: %s", generic.ErrUnauthenticated, msg)
}
