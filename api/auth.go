/*
auth.go - Bearer token authentication and role gates

PURPOSE:
  Resolves the Authorization header into {userID, role} claims on the
  request context. The core trusts these as already validated: handlers
  only perform entity-ownership checks (a client reads its own
  inventory, a user redeems for itself), never re-derive authorization.

TOKENS:
  HS256 JWTs carrying user_id and role claims. TokenService issues and
  validates them; issuing normally happens in the platform's identity
  service, but the same code path lets dev setups and tests mint tokens.

ROLES:
  admin:  approves/rejects requests, manages catalog, adjusts points
  client: submits purchase requests, owns inventory and rewards
  dealer: records sales, earns and redeems points

SEE ALSO:
  - server.go: where the middleware is mounted per route group
  - handlers.go: ownership checks against the resolved claims
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
)

// Role is the platform role carried in the token.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
	RoleDealer Role = "dealer"
)

// Claims is the resolved identity attached to the request context.
type Claims struct {
	UserID string
	Role   Role
}

type contextKey int

const claimsKey contextKey = iota

// ClaimsFrom extracts the resolved claims from a request context.
func ClaimsFrom(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(claimsKey).(Claims)
	return c, ok
}

// =============================================================================
// TOKEN SERVICE
// =============================================================================

// tokenClaims is the JWT payload.
type tokenClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues and validates HS256 bearer tokens.
type TokenService struct {
	secret []byte
	expiry time.Duration
}

func NewTokenService(secret string, expiry time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), expiry: expiry}
}

// Generate signs a token for the given identity.
func (s *TokenService) Generate(userID string, role Role) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		UserID: userID,
		Role:   string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Subject:   userID,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a token string.
func (s *TokenService) Validate(tokenString string) (Claims, error) {
	parsed := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, parsed, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return Claims{}, errors.New("invalid token")
	}
	return Claims{UserID: parsed.UserID, Role: Role(parsed.Role)}, nil
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

// Authenticate validates the bearer token and attaches claims to the
// request context. Requests without a valid token get 401.
func Authenticate(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "Missing or malformed authorization header", nil)
				return
			}

			claims, err := tokens.Validate(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid or expired token", nil)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a route group to the listed roles. Must be mounted
// after Authenticate.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Authorization required", nil)
				return
			}
			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "Insufficient role", nil)
		})
	}
}

// ownsClient reports whether the caller may act for clientID: admins
// always, clients only for themselves.
func ownsClient(claims Claims, clientID string) bool {
	if claims.Role == RoleAdmin {
		return true
	}
	return claims.UserID == clientID
}
