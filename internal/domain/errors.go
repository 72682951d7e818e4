package domain

import "errors"

// Sentinel errors used across service boundaries.
var (
	ErrUnauthenticated    = errors.New("authentication required")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrRefreshFailed      = errors.New("refresh failed")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRateLimited        = errors.New("rate limited")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
)

// IsAuthenticationError reports whether err means the caller must log in again.
// Authorization failures (ErrForbidden) are deliberately excluded: the session stays valid.
func IsAuthenticationError(err error) bool {
	return errors.Is(err, ErrUnauthenticated) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrRefreshFailed)
}

// IsAuthorizationError reports whether err is an insufficient-permission rejection.
func IsAuthorizationError(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// ErrorResponse is the standard JSON error envelope returned to clients.
type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}
