package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"parss/internal/client"
	"parss/internal/domain"
	"parss/internal/testutil"
	"parss/internal/token"
)

type cliEnv struct {
	srv   *testutil.Server
	creds string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	srv := testutil.NewServer(t)
	srv.CreateUser(t, "faculty@example.edu", domain.RoleFaculty, "inst-a")

	creds := filepath.Join(t.TempDir(), "credentials.json")
	t.Setenv("PARSS_API_URL", srv.URL)
	t.Setenv("PARSS_CREDENTIALS_FILE", creds)
	t.Setenv("PARSS_TOKEN_ISSUER", testutil.TestIssuer)
	t.Setenv("LOG_LEVEL", "error")
	return &cliEnv{srv: srv, creds: creds}
}

type result struct {
	stdout string
	stderr string
	err    error
}

func (e *cliEnv) run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func (e *cliEnv) login(t *testing.T) {
	t.Helper()
	res := e.run(t, testutil.SeedPassword+"\n", "login", "--email", "Faculty@Example.edu", "--password-stdin")
	if res.err != nil {
		t.Fatalf("login: %v (stderr %q)", res.err, res.stderr)
	}
	if !strings.Contains(res.stdout, "logged in as faculty@example.edu (faculty)") {
		t.Fatalf("unexpected login output %q", res.stdout)
	}
}

func (e *cliEnv) stored(t *testing.T, key string) string {
	t.Helper()
	v, ok, err := client.NewFileStore(e.creds).Get(key)
	if err != nil || !ok {
		t.Fatalf("stored %s: ok=%v err=%v", key, ok, err)
	}
	return v
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"login", "logout", "whoami", "refresh", "keepalive", "can", "get", "verify", "keygen"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd == nil || cmd.Name() != name {
			t.Errorf("%s command not registered: cmd=%v err=%v", name, cmd, err)
		}
	}
}

func TestLoginWhoamiLogout(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	res := env.run(t, "", "whoami")
	if res.err != nil {
		t.Fatalf("whoami: %v", res.err)
	}
	var me client.Me
	if err := json.Unmarshal([]byte(res.stdout), &me); err != nil {
		t.Fatalf("decoding whoami output %q: %v", res.stdout, err)
	}
	if me.User.Email != "faculty@example.edu" || len(me.Permissions) != 4 {
		t.Errorf("unexpected whoami: %+v", me)
	}

	res = env.run(t, "", "logout")
	if res.err != nil || !strings.Contains(res.stdout, "logged out") {
		t.Fatalf("logout: %v %q", res.err, res.stdout)
	}
	if strings.Contains(res.stderr, "session ended") {
		t.Errorf("logout should not report an ended session: %q", res.stderr)
	}
	if _, err := os.Stat(env.creds); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("credentials file should be removed, stat err = %v", err)
	}

	res = env.run(t, "", "whoami")
	if !domain.IsAuthenticationError(res.err) {
		t.Errorf("whoami after logout: expected authentication error, got %v", res.err)
	}
}

func TestLoginRejected(t *testing.T) {
	env := newCLIEnv(t)

	res := env.run(t, "wrong-password", "login", "--email", "faculty@example.edu", "--password-stdin")
	if !errors.Is(res.err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", res.err)
	}
	var out bytes.Buffer
	if code := exitCodeForError(res.err, &out); code != exitUnauthenticated {
		t.Errorf("exit code = %d, want %d", code, exitUnauthenticated)
	}
	if _, err := os.Stat(env.creds); !errors.Is(err, fs.ErrNotExist) {
		t.Error("a failed login must not store credentials")
	}
}

func TestLoginFlagValidation(t *testing.T) {
	env := newCLIEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing email", []string{"login", "--password", "x"}, "--email is required"},
		{"conflicting password sources", []string{"login", "--email", "a@b.c", "--password", "x", "--password-stdin"}, "mutually exclusive"},
		{"empty stdin", []string{"login", "--email", "a@b.c", "--password-stdin"}, "empty password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := env.run(t, "", tt.args...)
			if res.err == nil || !strings.Contains(res.err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, res.err)
			}
		})
	}
}

func TestCan(t *testing.T) {
	env := newCLIEnv(t)

	if res := env.run(t, "", "can", "view_alerts"); !domain.IsAuthenticationError(res.err) {
		t.Fatalf("can without session: expected authentication error, got %v", res.err)
	}

	env.login(t)

	res := env.run(t, "", "can", "view_alerts", "upload_documents", "--role", "faculty")
	if res.err != nil {
		t.Fatalf("can: %v", res.err)
	}
	if !strings.Contains(res.stdout, "permission view_alerts\tyes") || !strings.Contains(res.stdout, "role faculty\tyes") {
		t.Errorf("unexpected output %q", res.stdout)
	}

	res = env.run(t, "", "can", "view_alerts", "manage_faculty")
	var ee *exitError
	if !errors.As(res.err, &ee) || ee.code != 1 || !ee.silent {
		t.Fatalf("expected silent exit 1, got %v", res.err)
	}
	if !strings.Contains(res.stdout, "permission manage_faculty\tno") {
		t.Errorf("unexpected output %q", res.stdout)
	}
}

func TestGet(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	res := env.run(t, "", "get", "/api/dashboard")
	if res.err != nil {
		t.Fatalf("get dashboard: %v", res.err)
	}
	if !strings.Contains(res.stdout, `"resource": "dashboard"`) {
		t.Errorf("unexpected body %q", res.stdout)
	}

	res = env.run(t, "", "get", "/api/faculty")
	if !errors.Is(res.err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", res.err)
	}
	var out bytes.Buffer
	if code := exitCodeForError(res.err, &out); code != exitForbidden {
		t.Errorf("exit code = %d, want %d", code, exitForbidden)
	}
	env.stored(t, client.KeyAccessToken)

	if res := env.run(t, "", "get", "api/dashboard"); res.err == nil {
		t.Error("expected an error for a relative path")
	}
}

func TestRejectedTokenEndsStoredSession(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	if err := client.NewFileStore(env.creds).Set(map[string]string{client.KeyAccessToken: "not.a.token"}); err != nil {
		t.Fatalf("tampering with store: %v", err)
	}

	res := env.run(t, "", "get", "/api/dashboard")
	if !domain.IsAuthenticationError(res.err) {
		t.Fatalf("expected authentication error, got %v", res.err)
	}
	if !strings.Contains(res.stderr, "session ended") {
		t.Errorf("expected a session-ended notice, got %q", res.stderr)
	}
	if _, err := os.Stat(env.creds); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("credentials should be cleared after a 401, stat err = %v", err)
	}
}

func TestRefresh(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)
	before := env.stored(t, client.KeyRefreshToken)

	res := env.run(t, "", "refresh")
	if res.err != nil {
		t.Fatalf("refresh: %v", res.err)
	}
	if !strings.Contains(res.stdout, "credential refreshed") {
		t.Errorf("unexpected output %q", res.stdout)
	}
	if after := env.stored(t, client.KeyRefreshToken); after == before {
		t.Error("stored refresh token was not rotated")
	}
}

func TestKeepaliveEndsWhenRefreshRejected(t *testing.T) {
	env := newCLIEnv(t)
	t.Setenv("PARSS_REFRESH_INTERVAL", "10ms")
	env.login(t)

	if err := client.NewFileStore(env.creds).Set(map[string]string{client.KeyRefreshToken: "revoked"}); err != nil {
		t.Fatalf("tampering with store: %v", err)
	}

	res := env.run(t, "", "keepalive")
	if !errors.Is(res.err, domain.ErrRefreshFailed) {
		t.Fatalf("expected ErrRefreshFailed, got %v", res.err)
	}
	if _, err := os.Stat(env.creds); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("credentials should be cleared, stat err = %v", err)
	}
}

func TestVerify(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	res := env.run(t, "", "verify")
	if res.err != nil {
		t.Fatalf("verify stored token: %v", res.err)
	}
	var v verification
	if err := json.Unmarshal([]byte(res.stdout), &v); err != nil {
		t.Fatalf("decoding verify output %q: %v", res.stdout, err)
	}
	if v.Role != domain.RoleFaculty || v.TokenID == "" || len(v.Permissions) != 4 {
		t.Errorf("unexpected verification: %+v", v)
	}

	expired := testutil.IssueTestToken(t, env.srv.Issuer.Key(),
		domain.Principal{ID: "root", Role: domain.RoleSuperAdmin}, -time.Minute)
	res = env.run(t, expired+"\n", "verify", "-")
	if !errors.Is(res.err, domain.ErrTokenExpired) {
		t.Errorf("expired token: expected ErrTokenExpired, got %v", res.err)
	}

	foreign := testutil.IssueTestToken(t, testutil.GenerateTestKeyPair(t),
		domain.Principal{ID: "root", Role: domain.RoleSuperAdmin}, time.Minute)
	res = env.run(t, "", "verify", foreign)
	if !errors.Is(res.err, domain.ErrInvalidToken) {
		t.Errorf("foreign token: expected ErrInvalidToken, got %v", res.err)
	}
}

func TestKeygen(t *testing.T) {
	t.Setenv("PARSS_REFRESH_INTERVAL", "-1s")
	path := filepath.Join(t.TempDir(), "signing.pem")

	var stdout bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs([]string{"keygen", "--out", path})
	cmd.SetOut(&stdout)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("keygen: %v", err)
	}

	key, err := token.LoadKeyFile(path)
	if err != nil {
		t.Fatalf("LoadKeyFile: %v", err)
	}
	if !strings.Contains(stdout.String(), key.ID) {
		t.Errorf("output %q does not name kid %s", stdout.String(), key.ID)
	}
}
