/*
auth.go - Bearer token authentication and per-route authorization

PURPOSE:
  Every /api route requires an HS256 JWT:
    sub  -> acting user (recorded in the audit log)
    role -> access.Role
  Routes then declare the access.Operation they perform; Require rejects
  roles the matrix in access doesn't allow.

RESPONSES:
  401: header missing, malformed, bad signature, expired, unknown role
  403: valid token, role not allowed for the operation

TOKENS:
  Issued out of band with `clubledger token --user --role`; there is no
  login endpoint.
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
	"github.com/warp/club-ledger/access"
	"github.com/warp/club-ledger/ledger"
)

// Claims is the token payload.
type Claims struct {
	Role access.Role `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller.
type Principal struct {
	User string
	Role access.Role
}

type principalKey struct{}

// PrincipalFrom returns the caller attached by Authenticator.Middleware.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Authenticator signs and verifies tokens with a shared secret.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret), now: time.Now}
}

// IssueToken signs a token for user with role, valid for ttl.
func (a *Authenticator) IssueToken(user string, role access.Role, ttl time.Duration) (string, error) {
	if strings.TrimSpace(user) == "" {
		return "", errors.New("user is required")
	}
	if _, err := access.ParseRole(string(role)); err != nil {
		return "", err
	}
	now := a.now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify parses tokenStr and returns the caller it names.
func (a *Authenticator) Verify(tokenStr string) (Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return Principal{}, fmt.Errorf("invalid token: %w", err)
	}
	if claims.Subject == "" {
		return Principal{}, errors.New("token has no subject")
	}
	role, err := access.ParseRole(string(claims.Role))
	if err != nil {
		return Principal{}, err
	}
	return Principal{User: claims.Subject, Role: role}, nil
}

// Middleware authenticates the request and attaches the Principal and
// ledger actor to its context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, "Missing Authorization header", nil)
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			writeError(w, http.StatusUnauthorized, "Authorization header must be 'Bearer <token>'", nil)
			return
		}

		p, err := a.Verify(strings.TrimSpace(parts[1]))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token", nil)
			return
		}

		ctx := context.WithValue(r.Context(), principalKey{}, p)
		ctx = ledger.WithActor(ctx, p.User)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Require allows the request through only when the caller's role may
// perform op.
func Require(op access.Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Not authenticated", nil)
				return
			}
			if !access.Allowed(p.Role, op) {
				writeError(w, http.StatusForbidden, "Not allowed", fmt.Errorf("role %s may not %s", p.Role, op))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
