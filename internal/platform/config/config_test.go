package config_test

import (
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"parss/internal/platform/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Errorf("expected default addr :8080, got %q", cfg.Addr)
	}
	if cfg.AccessTokenTTL != 30*time.Minute {
		t.Errorf("expected 30m access TTL, got %v", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 168*time.Hour {
		t.Errorf("expected 168h refresh TTL, got %v", cfg.RefreshTokenTTL)
	}
	if cfg.StoreBackend != config.BackendMemory || cfg.UserStore != config.BackendMemory {
		t.Errorf("expected memory backends, got %q/%q", cfg.StoreBackend, cfg.UserStore)
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Errorf("expected info level, got %v", cfg.SlogLevel())
	}
	if !slices.Equal(cfg.CORSAllowedOrigins, []string{"http://localhost:3000"}) {
		t.Errorf("unexpected CORS origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.IsProduction() {
		t.Error("default environment should not be production")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PARSS_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ACCESS_TOKEN_TTL", "15m")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("USER_STORE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://parss@db/parss")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("RATE_LIMIT_RATE", "50.5")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("unexpected addr/level %q/%v", cfg.Addr, cfg.SlogLevel())
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Errorf("expected 15m, got %v", cfg.AccessTokenTTL)
	}
	if cfg.RedisAddr != "redis:6379" || cfg.DatabaseURL != "postgres://parss@db/parss" {
		t.Errorf("unexpected stores %+v", cfg)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Errorf("expected 2 origins, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.RateLimitRate != 50.5 {
		t.Errorf("expected 50.5, got %v", cfg.RateLimitRate)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad duration", map[string]string{"ACCESS_TOKEN_TTL": "soon"}, "ACCESS_TOKEN_TTL"},
		{"unknown store", map[string]string{"STORE_BACKEND": "etcd"}, "STORE_BACKEND"},
		{"postgres without url", map[string]string{"USER_STORE": "postgres"}, "DATABASE_URL"},
		{"refresh shorter than access", map[string]string{"REFRESH_TOKEN_TTL": "10m"}, "REFRESH_TOKEN_TTL"},
		{"production without key", map[string]string{"APP_ENV": "production"}, "SIGNING_KEY_FILE"},
		{"unknown log level", map[string]string{"LOG_LEVEL": "chatty"}, "LOG_LEVEL"},
		{"zero login limit", map[string]string{"LOGIN_RATE_LIMIT": "0"}, "rate limits"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadClient(t *testing.T) {
	cfg, err := config.LoadClient()
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}
	if cfg.RefreshInterval != 25*time.Minute {
		t.Errorf("expected 25m refresh interval, got %v", cfg.RefreshInterval)
	}
	if cfg.APIURL != "http://localhost:8080" {
		t.Errorf("unexpected API URL %q", cfg.APIURL)
	}

	t.Setenv("PARSS_REFRESH_INTERVAL", "0s")
	if _, err := config.LoadClient(); err == nil {
		t.Error("expected error for zero refresh interval")
	}
}
