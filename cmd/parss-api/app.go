package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"parss/internal/api"
	"parss/internal/api/adapter/inmem"
	"parss/internal/api/adapter/pgusers"
	"parss/internal/api/adapter/redisstore"
	"parss/internal/api/handler"
	"parss/internal/authz"
	"parss/internal/platform/config"
	"parss/internal/platform/server"
	"parss/internal/platform/telemetry"
	"parss/internal/token"
	"parss/internal/users"
)

const cleanupInterval = 5 * time.Minute

// app is the assembled service.
type app struct {
	handler  http.Handler
	issuer   *token.Issuer
	accounts *users.Service
	limiter  *inmem.RateLimiter
	// background loops run alongside the server until shutdown
	loops   []func(ctx context.Context)
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdown, err := telemetry.Setup(ctx, "parss")
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Error("telemetry shutdown error", "error", err)
		}
	}()

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics initialization: %w", err)
	}

	a, err := build(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer a.close()

	srv := server.New(cfg.Addr, a.handler, server.WithLogger(logger))
	slog.Info("parss-api starting",
		"addr", cfg.Addr,
		"env", cfg.AppEnv,
		"store_backend", cfg.StoreBackend,
		"user_store", cfg.UserStore,
		"access_ttl", cfg.AccessTokenTTL.String(),
		"signing_key_id", a.issuer.Key().ID,
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, loop := range a.loops {
		g.Go(func() error {
			loop(gctx)
			return nil
		})
	}
	g.Go(func() error { return srv.Run(gctx) })
	return g.Wait()
}

// build wires stores, the issuer and the router from cfg.
func build(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *telemetry.Metrics) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	key, err := signingKey(cfg)
	if err != nil {
		return nil, err
	}

	roles, err := roleTable(cfg.RoleTableFile)
	if err != nil {
		return nil, err
	}

	var checks []func(ctx context.Context) error

	var (
		refresh api.RefreshStore
		deny    api.Denylist
	)
	switch cfg.StoreBackend {
	case config.BackendRedis:
		rdb, err := redisstore.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { rdb.Close() })
		checks = append(checks, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		refresh = redisstore.NewRefreshStore(rdb)
		deny = redisstore.NewDenylist(rdb)
	default:
		store := inmem.NewRefreshStore(time.Now)
		a.loops = append(a.loops, func(ctx context.Context) { store.RunCleanup(ctx, cleanupInterval) })
		refresh = store
		deny = inmem.NewDenylist(0, cfg.AccessTokenTTL+time.Minute, time.Now)
	}

	var dir users.Directory
	switch cfg.UserStore {
	case config.BackendPostgres:
		pool, err := pgusers.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		checks = append(checks, pool.Ping)
		repo := pgusers.New(pool)
		if err := repo.Migrate(ctx); err != nil {
			return nil, err
		}
		dir = repo
	default:
		dir = inmem.NewUsers()
	}

	a.accounts = users.NewService(dir, cfg.BcryptCost)
	if cfg.SeedUsers != "" {
		seeds, err := users.ParseSeeds(cfg.SeedUsers)
		if err != nil {
			return nil, fmt.Errorf("SEED_USERS: %w", err)
		}
		if err := a.accounts.Seed(ctx, seeds); err != nil {
			return nil, fmt.Errorf("seeding users: %w", err)
		}
		slog.Info("seed users provisioned", "count", len(seeds))
	}

	a.issuer = token.NewIssuer(token.Config{
		Issuer:     cfg.TokenIssuer,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
		Loader:     a.accounts,
		Metrics:    metrics,
	}, key, refresh, deny)

	a.limiter = inmem.NewRateLimiter(cfg.RateLimitRate, cfg.RateLimitBurst, time.Now)
	a.loops = append(a.loops, func(ctx context.Context) { a.limiter.RunCleanup(ctx, cleanupInterval) })

	a.handler = handler.New(handler.Deps{
		Accounts:       a.accounts,
		Credentials:    a.issuer,
		Verifier:       a.issuer.Validator(),
		Roles:          roles,
		JWKS:           key.JWKS(),
		Limiter:        a.limiter,
		Metrics:        metrics,
		Logger:         logger,
		Ready:          readiness(checks),
		Development:    !cfg.IsProduction(),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		LoginLimit:     cfg.LoginRateLimit,
	})

	ok = true
	return a, nil
}

func signingKey(cfg *config.Config) (token.KeyPair, error) {
	if cfg.SigningKeyFile != "" {
		return token.LoadKeyFile(cfg.SigningKeyFile)
	}
	slog.Warn("SIGNING_KEY_FILE not set, using an ephemeral signing key; sessions end on restart")
	return token.GenerateKey()
}

func roleTable(path string) (*authz.Table, error) {
	if path == "" {
		return authz.Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening role table: %w", err)
	}
	defer f.Close()
	t, err := authz.LoadTable(f)
	if err != nil {
		return nil, fmt.Errorf("ROLE_TABLE_FILE %s: %w", path, err)
	}
	return t, nil
}

func readiness(checks []func(ctx context.Context) error) func(ctx context.Context) error {
	if len(checks) == 0 {
		return nil
	}
	return func(ctx context.Context) error {
		var errs []error
		for _, check := range checks {
			errs = append(errs, check(ctx))
		}
		return errors.Join(errs...)
	}
}
