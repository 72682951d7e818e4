package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"parss/internal/api"
	"parss/internal/domain"
)

const maxClockSkew = 30 * time.Second

// accessClaims is the JWT payload of an access token.
type accessClaims struct {
	Role         string   `json:"role"`
	Permissions  []string `json:"perms,omitempty"`
	Institutions []string `json:"inst,omitempty"`
	Email        string   `json:"email,omitempty"`
	Name         string   `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Validator verifies access tokens. It is safe for concurrent use.
type Validator struct {
	keys   api.KeySource
	issuer string
	deny   api.Denylist
	now    func() time.Time
}

// NewValidator creates a validator. deny may be nil when revocation is not tracked.
func NewValidator(keys api.KeySource, issuer string, deny api.Denylist) *Validator {
	return &Validator{keys: keys, issuer: issuer, deny: deny, now: time.Now}
}

// WithClock returns a copy of the validator using clock as the time source.
func (v *Validator) WithClock(clock func() time.Time) *Validator {
	cp := *v
	cp.now = clock
	return &cp
}

// Validate resolves the access token to a principal.
func (v *Validator) Validate(ctx context.Context, accessToken string) (domain.Principal, error) {
	tok, err := v.Verify(ctx, accessToken)
	if err != nil {
		return domain.Principal{}, err
	}
	return tok.Principal, nil
}

// Verify checks signature, algorithm, issuer, expiry and revocation.
// Every failure wraps domain.ErrInvalidToken; expiry additionally wraps
// domain.ErrTokenExpired.
func (v *Validator) Verify(ctx context.Context, accessToken string) (api.VerifiedToken, error) {
	if accessToken == "" {
		return api.VerifiedToken{}, fmt.Errorf("%w: empty token", domain.ErrInvalidToken)
	}

	// SECURITY: RS256 only, so an attacker cannot pick the algorithm
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(accessToken, claims, func(t *jwt.Token) (any, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("missing kid header")
		}
		return v.keys.GetKey(ctx, kid)
	},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithLeeway(maxClockSkew),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return api.VerifiedToken{}, fmt.Errorf("%w: %w", domain.ErrInvalidToken, domain.ErrTokenExpired)
		}
		return api.VerifiedToken{}, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}

	if claims.Subject == "" || claims.ID == "" {
		return api.VerifiedToken{}, fmt.Errorf("%w: missing subject or token id", domain.ErrInvalidToken)
	}

	if v.deny != nil {
		revoked, err := v.deny.IsRevoked(ctx, claims.ID)
		if err != nil {
			return api.VerifiedToken{}, fmt.Errorf("%w: checking revocation: %v", domain.ErrInvalidToken, err)
		}
		if revoked {
			return api.VerifiedToken{}, fmt.Errorf("%w: revoked", domain.ErrInvalidToken)
		}
	}

	return api.VerifiedToken{
		Principal: claims.principal(),
		ID:        claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (c *accessClaims) principal() domain.Principal {
	var perms map[domain.Permission]bool
	if len(c.Permissions) > 0 {
		perms = make(map[domain.Permission]bool, len(c.Permissions))
		for _, p := range c.Permissions {
			if p != "" {
				perms[domain.Permission(p)] = true
			}
		}
	}
	return domain.Principal{
		ID:                  c.Subject,
		Email:               c.Email,
		Name:                c.Name,
		Role:                domain.Role(c.Role),
		ExplicitPermissions: perms,
		Institutions:        c.Institutions,
	}
}
