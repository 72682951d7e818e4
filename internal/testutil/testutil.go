// Package testutil provides keys, tokens and stores for tests.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"parss/internal/api/adapter/inmem"
	"parss/internal/api/handler"
	"parss/internal/authz"
	"parss/internal/domain"
	"parss/internal/token"
	"parss/internal/users"
)

// TestIssuer is the iss claim used by test tokens.
const TestIssuer = "parss-test"

// GenerateTestKeyPair generates an RSA signing key for testing.
func GenerateTestKeyPair(t *testing.T) token.KeyPair {
	t.Helper()
	key, err := token.GenerateKey()
	if err != nil {
		t.Fatalf("generating RSA key: %v", err)
	}
	return key
}

// IssueTestToken creates a signed access token for p.
// A negative ttl produces an already-expired token.
func IssueTestToken(t *testing.T, key token.KeyPair, p domain.Principal, ttl time.Duration) string {
	t.Helper()

	now := time.Now()
	var perms []string
	for perm, granted := range p.ExplicitPermissions {
		if granted {
			perms = append(perms, string(perm))
		}
	}
	sort.Strings(perms)

	claims := jwt.MapClaims{
		"sub":   p.ID,
		"role":  string(p.Role),
		"perms": perms,
		"inst":  p.Institutions,
		"email": p.Email,
		"jti":   uuid.NewString(),
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
		"iss":   TestIssuer,
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = key.ID

	signed, err := tok.SignedString(key.Private)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

// NewValidator returns a validator accepting tokens from IssueTestToken.
func NewValidator(key token.KeyPair) *token.Validator {
	return token.NewValidator(key, TestIssuer, nil)
}

// NewIssuer returns an issuer backed by in-memory stores.
func NewIssuer(t *testing.T, cfg token.Config) *token.Issuer {
	t.Helper()
	if cfg.Issuer == "" {
		cfg.Issuer = TestIssuer
	}
	clock := cfg.Now
	if clock == nil {
		clock = time.Now
	}
	return token.NewIssuer(cfg, GenerateTestKeyPair(t),
		inmem.NewRefreshStore(clock),
		inmem.NewDenylist(0, time.Hour, clock),
	)
}

// MockJWKSServer serves the public half of key as a JWKS document.
func MockJWKSServer(t *testing.T, key token.KeyPair) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(key.JWKS())
	t.Cleanup(srv.Close)
	return srv
}

// OKHandler replies 200 with body "ok".
func OKHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}

// SeedPassword is the password of accounts created with Server.CreateUser.
const SeedPassword = "correct-horse-battery"

// Server is the full HTTP surface wired to in-memory stores.
type Server struct {
	*httptest.Server
	Issuer *token.Issuer
	Users  *users.Service
	Roles  *authz.Table
}

// NewServer starts the router on an httptest server. opts may adjust the
// dependencies before the router is built.
func NewServer(t *testing.T, opts ...func(*handler.Deps)) *Server {
	t.Helper()

	accounts := users.NewService(inmem.NewUsers(), bcrypt.MinCost)
	issuer := NewIssuer(t, token.Config{Loader: accounts})
	roles := authz.Default()

	deps := handler.Deps{
		Accounts:    accounts,
		Credentials: issuer,
		Verifier:    issuer.Validator(),
		Roles:       roles,
		JWKS:        issuer.Key().JWKS(),
		Logger:      slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Development: true,
		LoginLimit:  1000,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	srv := httptest.NewServer(handler.New(deps))
	t.Cleanup(srv.Close)
	return &Server{Server: srv, Issuer: issuer, Users: accounts, Roles: roles}
}

// CreateUser provisions an active account with SeedPassword.
func (s *Server) CreateUser(t *testing.T, email string, role domain.Role, institutions ...string) users.User {
	t.Helper()
	u, err := s.Users.Provision(context.Background(), users.RegisterInput{
		Email:        email,
		Name:         email,
		Password:     SeedPassword,
		Role:         role,
		Institutions: institutions,
	})
	if err != nil {
		t.Fatalf("provisioning %s: %v", email, err)
	}
	return u
}

// TokenFor issues a credential for u directly, bypassing login.
func (s *Server) TokenFor(t *testing.T, u users.User) domain.Credential {
	t.Helper()
	cred, err := s.Issuer.Issue(context.Background(), u.Claims())
	if err != nil {
		t.Fatalf("issuing credential: %v", err)
	}
	return cred
}
