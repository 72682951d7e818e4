package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the authorization service.
type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	Addr     string `envconfig:"PARSS_ADDR" default:":8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	TokenIssuer     string        `envconfig:"TOKEN_ISSUER" default:"parss"`
	AccessTokenTTL  time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"30m"`
	RefreshTokenTTL time.Duration `envconfig:"REFRESH_TOKEN_TTL" default:"168h"`
	SigningKeyFile  string        `envconfig:"SIGNING_KEY_FILE"`

	StoreBackend string `envconfig:"STORE_BACKEND" default:"memory"`
	RedisAddr    string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	UserStore    string `envconfig:"USER_STORE" default:"memory"`
	DatabaseURL  string `envconfig:"DATABASE_URL"`
	SeedUsers    string `envconfig:"SEED_USERS"`
	BcryptCost   int    `envconfig:"BCRYPT_COST" default:"10"`

	RoleTableFile string `envconfig:"ROLE_TABLE_FILE"`

	RateLimitRate      float64  `envconfig:"RATE_LIMIT_RATE" default:"100"`
	RateLimitBurst     int      `envconfig:"RATE_LIMIT_BURST" default:"20"`
	LoginRateLimit     int      `envconfig:"LOGIN_RATE_LIMIT" default:"10"`
	MaxBodyBytes       int64    `envconfig:"MAX_BODY_BYTES" default:"1048576"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

// Store backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("config: ACCESS_TOKEN_TTL must be positive"))
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		errs = append(errs, errors.New("config: REFRESH_TOKEN_TTL must exceed ACCESS_TOKEN_TTL"))
	}
	switch c.StoreBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("config: REDIS_ADDR is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend))
	}
	switch c.UserStore {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("config: DATABASE_URL is required for the postgres user store"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown USER_STORE %q", c.UserStore))
	}
	if c.IsProduction() && c.SigningKeyFile == "" {
		errs = append(errs, errors.New("config: SIGNING_KEY_FILE is required in production"))
	}
	if c.RateLimitRate <= 0 || c.RateLimitBurst <= 0 || c.LoginRateLimit <= 0 {
		errs = append(errs, errors.New("config: rate limits must be positive"))
	}
	return errors.Join(errs...)
}

// IsProduction returns true when the service runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("config: unknown LOG_LEVEL %q", s)
	}
}

// ClientConfig configures the parssctl client.
type ClientConfig struct {
	APIURL          string        `envconfig:"PARSS_API_URL" default:"http://localhost:8080"`
	CredentialsFile string        `envconfig:"PARSS_CREDENTIALS_FILE"`
	RefreshInterval time.Duration `envconfig:"PARSS_REFRESH_INTERVAL" default:"25m"`
	TokenIssuer     string        `envconfig:"PARSS_TOKEN_ISSUER" default:"parss"`
	HTTPTimeout     time.Duration `envconfig:"PARSS_HTTP_TIMEOUT" default:"15s"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"warn"`
}

// LoadClient reads client configuration from environment variables.
func LoadClient() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.RefreshInterval <= 0 {
		return nil, errors.New("config: PARSS_REFRESH_INTERVAL must be positive")
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SlogLevel returns the configured client log level.
func (c *ClientConfig) SlogLevel() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}
