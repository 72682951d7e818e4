package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"parss/internal/api/adapter/inmem"
	"parss/internal/api/middleware"
	"parss/internal/domain"
	"parss/internal/testutil"
)

func serveFrom(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = remoteAddr
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitAllowsWithinBurst(t *testing.T) {
	now := time.Now()
	rl := inmem.NewRateLimiter(100, 3, func() time.Time { return now })
	handler := middleware.RateLimit(rl, nil)(testutil.OKHandler())

	for i := range 3 {
		if rec := serveFrom(handler, "192.168.1.1:12345"); rec.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}
}

func TestRateLimitDeniesWhenBurstExhausted(t *testing.T) {
	now := time.Now()
	rl := inmem.NewRateLimiter(100, 2, func() time.Time { return now })
	handler := middleware.RateLimit(rl, nil)(testutil.OKHandler())

	serveFrom(handler, "192.168.1.1:12345")
	serveFrom(handler, "192.168.1.1:12345")
	rec := serveFrom(handler, "192.168.1.1:12345")

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	var errResp domain.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&errResp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if errResp.Error != "rate_limited" || errResp.RetryAfter <= 0 {
		t.Errorf("unexpected error response %+v", errResp)
	}
}

func TestRateLimitDifferentIPsIndependent(t *testing.T) {
	now := time.Now()
	rl := inmem.NewRateLimiter(100, 1, func() time.Time { return now })
	handler := middleware.RateLimit(rl, nil)(testutil.OKHandler())

	serveFrom(handler, "10.0.0.1:1234")
	if rec := serveFrom(handler, "10.0.0.1:1234"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("IP1 second request: expected 429, got %d", rec.Code)
	}
	if rec := serveFrom(handler, "10.0.0.2:1234"); rec.Code != http.StatusOK {
		t.Errorf("IP2 should be allowed, got %d", rec.Code)
	}
}

func TestThrottle(t *testing.T) {
	handler := middleware.Throttle(2, time.Minute, "login", nil)(testutil.OKHandler())

	for i := range 2 {
		if rec := serveFrom(handler, "10.1.1.1:999"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	rec := serveFrom(handler, "10.1.1.1:999")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	var errResp domain.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&errResp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if errResp.Error != "rate_limited" || errResp.RetryAfter <= 0 {
		t.Errorf("unexpected error response %+v", errResp)
	}

	if rec := serveFrom(handler, "10.1.1.2:999"); rec.Code != http.StatusOK {
		t.Errorf("other IP should be allowed, got %d", rec.Code)
	}
}
