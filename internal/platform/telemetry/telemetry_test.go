package telemetry_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"parss/internal/platform/telemetry"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	telemetry.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics endpoint returned %d", rec.Code)
	}
	return rec.Body.String()
}

func TestMetricsExported(t *testing.T) {
	ctx := context.Background()
	shutdown, err := telemetry.Setup(ctx, "parss")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	t.Cleanup(func() {
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	})

	m, err := telemetry.NewMetrics()
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	tests := []struct {
		name   string
		record func()
		want   []string
	}{
		{
			name:   "http request",
			record: func() { m.RecordHTTPRequest(ctx, http.MethodGet, "/api/dashboard", http.StatusForbidden, 0.004) },
			want:   []string{"parss_http_requests_total", "parss_http_request_duration_seconds", `route="/api/dashboard"`, `status="403"`},
		},
		{
			name:   "token validation",
			record: func() { m.RecordAuthValidation(ctx, telemetry.ResultFailure) },
			want:   []string{"parss_auth_validations_total", `result="failure"`},
		},
		{
			name:   "authorization decision",
			record: func() { m.RecordAuthzDecision(ctx, "role", false) },
			want:   []string{"parss_authz_decisions_total", `kind="role"`, `result="denied"`},
		},
		{
			name: "credential lifecycle",
			record: func() {
				m.RecordTokenIssued(ctx, "login")
				m.RecordTokenRefresh(ctx, telemetry.ResultSuccess)
			},
			want: []string{"parss_tokens_issued_total", `kind="login"`, "parss_token_refreshes_total"},
		},
		{
			name:   "jwks refresh",
			record: func() { m.RecordJWKSRefresh(ctx, telemetry.ResultSuccess) },
			want:   []string{"parss_jwks_refreshes_total", `service_name="parss"`},
		},
		{
			name:   "rate limit",
			record: func() { m.RecordRateLimitDecision(ctx, "login", telemetry.ResultDenied) },
			want:   []string{"parss_ratelimit_decisions_total", `layer="login"`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.record()
			out := scrape(t)
			for _, s := range tt.want {
				if !strings.Contains(out, s) {
					t.Errorf("metrics output missing %s", s)
				}
			}
		})
	}
}

func TestNilMetricsRecordsNothing(t *testing.T) {
	var m *telemetry.Metrics
	ctx := context.Background()

	m.RecordHTTPRequest(ctx, http.MethodPost, "/auth/login", http.StatusOK, 0.01)
	m.RecordAuthValidation(ctx, telemetry.ResultSuccess)
	m.RecordAuthzDecision(ctx, "permission", true)
	m.RecordTokenIssued(ctx, "refresh")
	m.RecordTokenRefresh(ctx, telemetry.ResultFailure)
	m.RecordJWKSRefresh(ctx, telemetry.ResultFailure)
	m.RecordRateLimitDecision(ctx, "ip", telemetry.ResultAllowed)
}
