/*
auth.go - Bearer token authentication

PURPOSE:
  Every /api route runs as an employee. The caller proves who they are with
  an HS256 JWT whose subject is the employee ID. The email claim must belong
  to the organization domain; admin: true unlocks /api/admin.

FLOW:
  Authorization: Bearer <token>
    -> missing or malformed      401
    -> bad signature / expired   401
    -> email outside the domain  403
    -> Actor stored on the request context
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/warp/leave-engine/timeoff"
)

// Claims is the token payload.
type Claims struct {
	Email string `json:"email"`
	Admin bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// Actor is the authenticated caller.
type Actor struct {
	EmployeeID timeoff.EmployeeID
	Email      string
	Admin      bool
}

type actorKey struct{}

// ActorFrom returns the caller set by Authenticator.Middleware.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

func withActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// Authenticator signs and verifies tokens.
type Authenticator struct {
	secret []byte
	issuer string
	domain string
	now    func() time.Time
}

func NewAuthenticator(secret, issuer, domain string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer, domain: domain, now: time.Now}
}

// Issue signs a token for an employee. Used by the CLI and tests.
func (a *Authenticator) Issue(employeeID timeoff.EmployeeID, email string, admin bool, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		Email: email,
		Admin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(employeeID),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse verifies a token and returns its claims.
func (a *Authenticator) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// Middleware rejects requests without a valid token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token", nil)
			return
		}
		claims, err := a.Parse(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token", err)
			return
		}
		if !timeoff.InOrganization(claims.Email, a.domain) {
			writeError(w, http.StatusForbidden, "email outside organization domain", nil)
			return
		}
		actor := Actor{
			EmployeeID: timeoff.EmployeeID(claims.Subject),
			Email:      claims.Email,
			Admin:      claims.Admin,
		}
		next.ServeHTTP(w, r.WithContext(withActor(r.Context(), actor)))
	})
}

// RequireAdmin must run after Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFrom(r.Context())
		if !ok || !actor.Admin {
			writeError(w, http.StatusForbidden, "admin only", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
