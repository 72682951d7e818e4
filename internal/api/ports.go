package api

import (
	"context"
	"crypto/rsa"
	"net/http"
	"time"

	"parss/internal/domain"
)

// KeySource resolves RSA public keys by key ID, either from the in-process
// issuer or from a remote JWKS endpoint.
type KeySource interface {
	// GetKey returns the public key for the given key ID.
	GetKey(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// VerifiedToken is a validated access token.
type VerifiedToken struct {
	Principal domain.Principal
	ID        string
	ExpiresAt time.Time
}

// TokenVerifier resolves a bearer access token into a principal.
// Expected failures are returned as domain.ErrInvalidToken (possibly wrapping
// domain.ErrTokenExpired); they never panic.
type TokenVerifier interface {
	Verify(ctx context.Context, accessToken string) (VerifiedToken, error)
}

// RefreshRecord is the server-side state behind an opaque refresh token.
type RefreshRecord struct {
	Family    string        `json:"family"`
	Claims    domain.Claims `json:"claims"`
	IssuedAt  time.Time     `json:"issued_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// RefreshStore holds refresh tokens keyed by their hash.
type RefreshStore interface {
	// Save stores rec under key until rec.ExpiresAt.
	Save(ctx context.Context, key string, rec RefreshRecord) error
	// Consume atomically removes and returns the record. A second Consume of
	// the same key returns domain.ErrNotFound.
	Consume(ctx context.Context, key string) (RefreshRecord, error)
	// Delete removes the record if present.
	Delete(ctx context.Context, key string) error
}

// Denylist tracks revoked access tokens by jti until they would have expired anyway.
type Denylist interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RateLimiter decides whether a request identified by key should be allowed.
type RateLimiter interface {
	Allow(key string) RateLimitResult
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	RetryAfter int // seconds until next token available; 0 if allowed
}

// StatusWriter wraps http.ResponseWriter to capture the status code.
type StatusWriter struct {
	http.ResponseWriter
	Code int
}

func (sw *StatusWriter) WriteHeader(code int) {
	sw.Code = code
	sw.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (sw *StatusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// PrincipalFromContext extracts the authenticated principal from a request context.
func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(domain.Principal)
	return p, ok
}

// MustPrincipal returns the principal placed by the route guard. Handlers
// mounted behind Authenticate may rely on it being present.
func MustPrincipal(ctx context.Context) domain.Principal {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		panic("api: no principal in context; route is not behind Authenticate")
	}
	return p
}

// ContextWithPrincipal stores the authenticated principal in the context.
func ContextWithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

type principalKey struct{}

// TokenFromContext returns the access token that authenticated the request.
func TokenFromContext(ctx context.Context) (VerifiedToken, bool) {
	tok, ok := ctx.Value(tokenKey{}).(VerifiedToken)
	return tok, ok
}

// ContextWithToken stores the verified access token and its principal in the context.
func ContextWithToken(ctx context.Context, tok VerifiedToken) context.Context {
	ctx = context.WithValue(ctx, tokenKey{}, tok)
	return ContextWithPrincipal(ctx, tok.Principal)
}

type tokenKey struct{}

// RequestIDFromContext extracts the request ID from the context.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ContextWithRequestID stores the request ID in the context.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

type requestIDKey struct{}
