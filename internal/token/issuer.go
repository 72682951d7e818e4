// Package token issues, validates, refreshes and revokes credentials.
//
// Access tokens are RS256 JWTs carrying the principal's claims. Refresh
// tokens are opaque random strings; only their SHA-256 hash is stored.
package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"parss/internal/api"
	"parss/internal/domain"
	"parss/internal/platform/telemetry"
)

// Default lifetimes.
const (
	DefaultAccessTTL  = 30 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// ClaimsLoader reloads a subject's current claims during refresh so role and
// permission changes take effect without a new login.
type ClaimsLoader interface {
	LoadClaims(ctx context.Context, subject string) (domain.Claims, error)
}

// Config configures an Issuer. Zero values fall back to the defaults.
type Config struct {
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Loader     ClaimsLoader
	Metrics    *telemetry.Metrics
	Now        func() time.Time
}

// Issuer mints and rotates credentials.
type Issuer struct {
	key     KeyPair
	cfg     Config
	refresh api.RefreshStore
	deny    api.Denylist
}

// NewIssuer creates an issuer signing with key.
func NewIssuer(cfg Config, key KeyPair, refresh api.RefreshStore, deny api.Denylist) *Issuer {
	if cfg.Issuer == "" {
		cfg.Issuer = "parss"
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Issuer{key: key, cfg: cfg, refresh: refresh, deny: deny}
}

// Validator returns a validator for tokens signed by this issuer.
func (i *Issuer) Validator() *Validator {
	return NewValidator(i.key, i.cfg.Issuer, i.deny).WithClock(i.cfg.Now)
}

// Key returns the signing key pair.
func (i *Issuer) Key() KeyPair {
	return i.key
}

// Issue mints a new credential for an authenticated subject.
func (i *Issuer) Issue(ctx context.Context, claims domain.Claims) (domain.Credential, error) {
	cred, err := i.issue(ctx, claims, uuid.NewString())
	if err != nil {
		return domain.Credential{}, err
	}
	i.cfg.Metrics.RecordTokenIssued(ctx, "login")
	return cred, nil
}

// Refresh exchanges a refresh token for a new credential. The presented token
// is consumed atomically; of two concurrent refreshes with the same token at
// most one succeeds. Every failure wraps domain.ErrRefreshFailed.
func (i *Issuer) Refresh(ctx context.Context, refreshToken string) (domain.Credential, error) {
	cred, err := i.rotate(ctx, refreshToken)
	if err != nil {
		i.cfg.Metrics.RecordTokenRefresh(ctx, telemetry.ResultFailure)
		return domain.Credential{}, err
	}
	i.cfg.Metrics.RecordTokenRefresh(ctx, telemetry.ResultSuccess)
	i.cfg.Metrics.RecordTokenIssued(ctx, "refresh")
	return cred, nil
}

func (i *Issuer) rotate(ctx context.Context, refreshToken string) (domain.Credential, error) {
	if refreshToken == "" {
		return domain.Credential{}, fmt.Errorf("%w: empty refresh token", domain.ErrRefreshFailed)
	}

	rec, err := i.refresh.Consume(ctx, hashToken(refreshToken))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Credential{}, fmt.Errorf("%w: unknown or already used refresh token", domain.ErrRefreshFailed)
		}
		return domain.Credential{}, fmt.Errorf("%w: %v", domain.ErrRefreshFailed, err)
	}
	if !i.cfg.Now().Before(rec.ExpiresAt) {
		return domain.Credential{}, fmt.Errorf("%w: refresh token expired", domain.ErrRefreshFailed)
	}

	claims := rec.Claims
	if i.cfg.Loader != nil {
		fresh, err := i.cfg.Loader.LoadClaims(ctx, rec.Claims.Subject)
		if err != nil {
			return domain.Credential{}, fmt.Errorf("%w: reloading claims: %v", domain.ErrRefreshFailed, err)
		}
		claims = fresh
	}

	cred, err := i.issue(ctx, claims, rec.Family)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("%w: %v", domain.ErrRefreshFailed, err)
	}
	return cred, nil
}

// Revoke ends a session: the refresh token is deleted and the access token is
// denylisted for as long as a validator would still accept it, which includes
// the expiry leeway. Either argument may be empty.
func (i *Issuer) Revoke(ctx context.Context, refreshToken string, access api.VerifiedToken) error {
	var errs []error
	if refreshToken != "" {
		if err := i.refresh.Delete(ctx, hashToken(refreshToken)); err != nil {
			errs = append(errs, fmt.Errorf("deleting refresh token: %w", err))
		}
	}
	if access.ID != "" && i.deny != nil {
		if err := i.deny.Revoke(ctx, access.ID, access.ExpiresAt.Add(maxClockSkew)); err != nil {
			errs = append(errs, fmt.Errorf("denylisting access token: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (i *Issuer) issue(ctx context.Context, claims domain.Claims, family string) (domain.Credential, error) {
	if claims.Subject == "" {
		return domain.Credential{}, errors.New("issuing credential: empty subject")
	}

	now := i.cfg.Now()
	expiresAt := now.Add(i.cfg.AccessTTL)

	access, err := i.sign(claims, now, expiresAt)
	if err != nil {
		return domain.Credential{}, err
	}

	refresh, err := newOpaqueToken()
	if err != nil {
		return domain.Credential{}, err
	}
	rec := api.RefreshRecord{
		Family:    family,
		Claims:    claims,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.cfg.RefreshTTL),
	}
	if err := i.refresh.Save(ctx, hashToken(refresh), rec); err != nil {
		return domain.Credential{}, fmt.Errorf("storing refresh token: %w", err)
	}

	slog.Debug("credential issued", "subject", claims.Subject, "role", claims.Role, "family", family)
	return domain.Credential{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(i.cfg.AccessTTL.Seconds()),
		ExpiresAt:    expiresAt,
	}, nil
}

func (i *Issuer) sign(c domain.Claims, now, expiresAt time.Time) (string, error) {
	var perms []string
	for p, granted := range c.ExplicitPermissions {
		if granted && p != "" {
			perms = append(perms, string(p))
		}
	}
	sort.Strings(perms)

	claims := accessClaims{
		Role:         string(c.Role),
		Permissions:  perms,
		Institutions: c.Institutions,
		Email:        c.Email,
		Name:         c.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			Subject:   c.Subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = i.key.ID
	signed, err := tok.SignedString(i.key.Private)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

func newOpaqueToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
