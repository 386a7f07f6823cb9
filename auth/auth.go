// Package auth turns an HTTP request into an endpoint.Caller.
//
// Herald does not issue credentials. JWTAuthenticator verifies tokens minted
// elsewhere; HeaderAuthenticator trusts identity headers set by a proxy in
// front of the API.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xraph/herald/endpoint"
)

// RoleSuperAdmin grants access to every tenant.
const RoleSuperAdmin = "super_admin"

// Identity headers read by HeaderAuthenticator.
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderRole     = "X-Role"
)

var (
	// ErrUnauthorized is returned when no valid identity is present.
	ErrUnauthorized = errors.New("herald/auth: unauthorized")

	// ErrTokenExpired is returned for expired bearer tokens. It wraps
	// ErrUnauthorized.
	ErrTokenExpired = fmt.Errorf("%w: token expired", ErrUnauthorized)
)

// Claims are the token claims Herald reads.
type Claims struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Caller maps the claims to an endpoint.Caller.
func (c *Claims) Caller() endpoint.Caller {
	return endpoint.Caller{
		TenantID:   c.TenantID,
		SuperAdmin: c.Role == RoleSuperAdmin,
	}
}

// JWTAuthenticator verifies HS256 bearer tokens.
type JWTAuthenticator struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// JWTOption configures a JWTAuthenticator.
type JWTOption func(*JWTAuthenticator)

// WithIssuer requires the "iss" claim to equal issuer.
func WithIssuer(issuer string) JWTOption {
	return func(a *JWTAuthenticator) { a.issuer = issuer }
}

// WithLeeway tolerates clock skew when checking exp and nbf.
func WithLeeway(d time.Duration) JWTOption {
	return func(a *JWTAuthenticator) { a.leeway = d }
}

// NewJWTAuthenticator creates a verifier for tokens signed with secret.
func NewJWTAuthenticator(secret []byte, opts ...JWTOption) *JWTAuthenticator {
	a := &JWTAuthenticator{secret: secret}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate reads "Authorization: Bearer <token>".
func (a *JWTAuthenticator) Authenticate(r *http.Request) (endpoint.Caller, error) {
	raw, ok := bearerToken(r)
	if !ok {
		return endpoint.Caller{}, fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}
	claims, err := a.Parse(raw)
	if err != nil {
		return endpoint.Caller{}, err
	}
	return claims.Caller(), nil
}

// Parse validates a token string and returns its claims. A token without a
// tenant that is not a super-admin token is rejected.
func (a *JWTAuthenticator) Parse(tokenString string) (*Claims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(a.leeway),
	}
	if a.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if !token.Valid {
		return nil, ErrUnauthorized
	}
	if claims.TenantID == "" && claims.Role != RoleSuperAdmin {
		return nil, fmt.Errorf("%w: token has no tenant", ErrUnauthorized)
	}
	return claims, nil
}

// HeaderAuthenticator trusts X-Tenant-ID and X-Role. Only use it behind a
// proxy that strips these headers from client requests.
type HeaderAuthenticator struct{}

func (HeaderAuthenticator) Authenticate(r *http.Request) (endpoint.Caller, error) {
	tenantID := strings.TrimSpace(r.Header.Get(HeaderTenantID))
	superAdmin := strings.EqualFold(strings.TrimSpace(r.Header.Get(HeaderRole)), RoleSuperAdmin)
	if tenantID == "" && !superAdmin {
		return endpoint.Caller{}, fmt.Errorf("%w: missing %s header", ErrUnauthorized, HeaderTenantID)
	}
	return endpoint.Caller{TenantID: tenantID, SuperAdmin: superAdmin}, nil
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
