package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"parss/internal/api"
	"parss/internal/api/middleware"
	"parss/internal/domain"
	"parss/internal/testutil"
)

func TestAuthenticateValidToken(t *testing.T) {
	key := testutil.GenerateTestKeyPair(t)
	principal := domain.Principal{
		ID:                  "user-42",
		Role:                domain.RoleComplianceOfficer,
		ExplicitPermissions: map[domain.Permission]bool{"view_audit_logs": true},
	}
	raw := testutil.IssueTestToken(t, key, principal, 15*time.Minute)

	var (
		captured domain.Principal
		tok      api.VerifiedToken
		has      bool
	)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, has = api.PrincipalFromContext(r.Context())
		tok, _ = api.TokenFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	handler := middleware.Authenticate(testutil.NewValidator(key), nil, nil)(inner)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	req.Header.Set("Authorization", "bearer "+raw)
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !has {
		t.Fatal("expected principal in context")
	}
	if captured.ID != "user-42" || captured.Role != domain.RoleComplianceOfficer {
		t.Errorf("unexpected principal %+v", captured)
	}
	if !captured.Granted("view_audit_logs") {
		t.Error("expected explicit grant to survive")
	}
	if tok.ID == "" || tok.ExpiresAt.IsZero() {
		t.Errorf("expected verified token metadata, got %+v", tok)
	}
}

func TestAuthenticateRejects(t *testing.T) {
	key := testutil.GenerateTestKeyPair(t)
	other := testutil.GenerateTestKeyPair(t)
	p := domain.Principal{ID: "user-1", Role: domain.RoleViewer}

	tests := []struct {
		name    string
		header  string
		message string
	}{
		{"missing header", "", "missing or malformed authorization header"},
		{"no bearer prefix", "just-a-token", "missing or malformed authorization header"},
		{"empty bearer", "Bearer ", "missing or malformed authorization header"},
		{"basic auth", "Basic dXNlcjpwYXNz", "missing or malformed authorization header"},
		{"garbage token", "Bearer not.a.jwt", "invalid or expired token"},
		{"expired token", "Bearer " + testutil.IssueTestToken(t, key, p, -time.Minute), "token expired"},
		{"foreign key", "Bearer " + testutil.IssueTestToken(t, other, p, time.Minute), "invalid or expired token"},
	}

	handler := middleware.Authenticate(testutil.NewValidator(key), nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
			var errResp domain.ErrorResponse
			json.NewDecoder(rec.Body).Decode(&errResp)
			if errResp.Error != "unauthorized" || errResp.Message != tt.message {
				t.Errorf("unexpected body %+v", errResp)
			}
		})
	}
}

func TestAuthenticatePublicPaths(t *testing.T) {
	key := testutil.GenerateTestKeyPair(t)
	handler := middleware.Authenticate(testutil.NewValidator(key), []string{"/healthz"}, nil)(testutil.OKHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("public path: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("near-miss path: expected 401, got %d", rec.Code)
	}
}

type failingVerifier struct{ err error }

func (f failingVerifier) Verify(context.Context, string) (api.VerifiedToken, error) {
	return api.VerifiedToken{}, f.err
}

func TestAuthenticateVerifierErrorIsUnauthorized(t *testing.T) {
	v := failingVerifier{err: errors.Join(domain.ErrInvalidToken, errors.New("denylist unavailable"))}
	handler := middleware.Authenticate(v, nil, nil)(testutil.OKHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}
