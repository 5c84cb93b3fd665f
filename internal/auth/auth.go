// Package auth resolves caller identity for the metal management engine.
//
// The surrounding platform authenticates users and hands the engine a signed
// bearer token whose claims carry the user ID and role. This package parses
// that token into an Identity, exposes the closed role enum, and provides
// the HTTP middleware that rejects calls without a valid identity.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned when a caller lacks a valid identity, the
// required role, or the required access grant.
var ErrUnauthorized = errors.New("auth: unauthorized")

// Role is the caller's role. The set is closed: anything but admin or user
// fails ParseRole, so authorization checks stay exhaustive.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ParseRole validates a role string against the closed set.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleUser:
		return Role(s), nil
	}
	return "", fmt.Errorf("invalid role %q", s)
}

// Identity is the resolved caller: who they are and what role they carry.
type Identity struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the caller carries the admin role.
func (id Identity) IsAdmin() bool { return id.Role == RoleAdmin }

// CanActFor reports whether the caller may operate on userID's data:
// admins may act for anyone, users only for themselves.
func (id Identity) CanActFor(userID string) bool {
	return id.IsAdmin() || id.UserID == userID
}

// Claims are the JWT claims the platform issues for engine calls.
type Claims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// MintToken signs a token for userID with the given role. Used by tests and
// by operator tooling; the production issuer lives outside this service.
func MintToken(userID string, role Role, secret string, expiresAt time.Time) (string, error) {
	claims := Claims{
		UserID: userID,
		Role:   string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates a signed token and resolves it to an Identity.
// Malformed identities (missing uid, unknown role) fail ErrUnauthorized.
func ParseToken(tokenStr, secret string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return Identity{}, ErrUnauthorized
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return Identity{}, ErrUnauthorized
	}
	role, err := ParseRole(claims.Role)
	if err != nil {
		return Identity{}, ErrUnauthorized
	}
	return Identity{UserID: claims.UserID, Role: role}, nil
}

type contextKey struct{}

// Middleware enforces bearer-token auth and stores the resolved Identity in
// the request context for handlers to read via FromContext.
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			parts := strings.SplitN(header, " ", 2)
			if header == "" || len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeUnauthorized(w, "missing or malformed Authorization header")
				return
			}

			identity, err := ParseToken(parts[1], secret)
			if err != nil {
				writeUnauthorized(w, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), contextKey{}, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext returns the Identity stored by Middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, `{"error":%q}`, message)
}
