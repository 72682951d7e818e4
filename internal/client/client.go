package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"parss/internal/domain"
)

// APIError is a non-2xx response from the service. It unwraps to the domain
// sentinel matching its status so callers can use errors.Is.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: %s (%d): %s", e.Code, e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		if e.Code == "refresh_failed" {
			return domain.ErrRefreshFailed
		}
		return domain.ErrUnauthenticated
	case http.StatusForbidden:
		return domain.ErrForbidden
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrConflict
	case http.StatusTooManyRequests:
		return domain.ErrRateLimited
	default:
		return nil
	}
}

// ErrSessionChanged is returned by Refresh when the session ended or changed
// hands while the refresh was in flight. The rotated credential is discarded.
var ErrSessionChanged = errors.New("session changed during refresh")

// Client calls the authorization service on behalf of a Session.
type Client struct {
	base    *url.URL
	http    *http.Client
	session *Session
	nav     Navigator
	flight  singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithNavigator sets where the interceptor sends the user after losing
// authentication.
func WithNavigator(nav Navigator) Option {
	return func(c *Client) { c.nav = nav }
}

// New creates a client for the service at baseURL.
func New(baseURL string, session *Session, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API URL %q", baseURL)
	}
	c := &Client{
		base:    u,
		http:    &http.Client{Timeout: 15 * time.Second},
		session: session,
		nav:     discardNavigator{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Session returns the session the client acts for.
func (c *Client) Session() *Session {
	return c.session
}

// Do sends an authenticated request and decodes a JSON response into out
// (which may be nil). It is the response interceptor: a 401 ends the session,
// clears stored credentials and navigates to login; a 403 is returned as
// domain.ErrForbidden with the session untouched.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	st := c.session.State()
	if !st.Authenticated() {
		return fmt.Errorf("%s %s: %w", method, path, domain.ErrUnauthenticated)
	}

	err := c.send(ctx, method, path, st.Credential.AccessToken, body, out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		c.endSession(st.Generation, "access rejected")
	}
	return err
}

// endSession logs out if the session still belongs to generation. A stale
// rejection must not end a newer session.
func (c *Client) endSession(generation uint64, reason string) {
	if c.session.State().Generation != generation {
		return
	}
	slog.Info("session ended", "reason", reason)
	c.session.Dispatch(Logout{})
	c.nav.Navigate(ViewLogin)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is a self-registration request.
type RegisterRequest struct {
	Email        string   `json:"email"`
	Name         string   `json:"name"`
	Password     string   `json:"password"`
	Role         string   `json:"role,omitempty"`
	Institutions []string `json:"institutions,omitempty"`
}

type sessionResponse struct {
	User       domain.Principal  `json:"user"`
	Credential domain.Credential `json:"credential"`
}

// Login authenticates with email and password and starts a session.
func (c *Client) Login(ctx context.Context, email, password string) (domain.Principal, error) {
	return c.startSession(ctx, "/auth/login", loginRequest{Email: email, Password: password})
}

// Register creates an account and starts a session for it.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (domain.Principal, error) {
	return c.startSession(ctx, "/auth/register", req)
}

func (c *Client) startSession(ctx context.Context, path string, body any) (domain.Principal, error) {
	st := c.session.Dispatch(LoginStart{})

	var resp sessionResponse
	if err := c.send(ctx, http.MethodPost, path, "", body, &resp); err != nil {
		c.session.Dispatch(LoginFailure{Err: err})
		return domain.Principal{}, err
	}

	next := c.session.Dispatch(LoginSuccess{Principal: resp.User, Credential: resp.Credential})
	if !next.Authenticated() || next.Generation != st.Generation {
		return domain.Principal{}, ErrSessionChanged
	}
	return resp.User, nil
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	Credential domain.Credential `json:"credential"`
}

// Refresh rotates the credential. Concurrent calls share one request. A
// rejected refresh token ends the session; transport errors leave it intact.
// If the session changes while the request is in flight the result is
// discarded and ErrSessionChanged is returned.
func (c *Client) Refresh(ctx context.Context) error {
	st := c.session.State()
	if !st.Authenticated() {
		return fmt.Errorf("refresh: %w", domain.ErrUnauthenticated)
	}

	key := fmt.Sprintf("refresh-%d", st.Generation)
	_, err, _ := c.flight.Do(key, func() (any, error) {
		return nil, c.refresh(ctx, st)
	})
	return err
}

func (c *Client) refresh(ctx context.Context, st State) error {
	var resp refreshResponse
	err := c.send(ctx, http.MethodPost, "/auth/refresh", "", refreshRequest{RefreshToken: st.Credential.RefreshToken}, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			c.endSession(st.Generation, "refresh rejected")
			return fmt.Errorf("%w: %v", domain.ErrRefreshFailed, err)
		}
		return fmt.Errorf("refresh: %w", err)
	}

	next := c.session.Dispatch(TokenRefreshed{Credential: resp.Credential, Generation: st.Generation})
	if !next.Authenticated() || next.Generation != st.Generation || next.Credential != resp.Credential {
		slog.Debug("discarding refresh result for ended session")
		return ErrSessionChanged
	}
	return nil
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Logout ends the local session immediately and then asks the server to
// revoke the credential. The returned error only reports the server call.
func (c *Client) Logout(ctx context.Context) error {
	st := c.session.State()
	c.session.Dispatch(Logout{})
	c.nav.Navigate(ViewLogin)

	if st.Credential.Empty() {
		return nil
	}
	err := c.send(ctx, http.MethodPost, "/auth/logout", st.Credential.AccessToken,
		logoutRequest{RefreshToken: st.Credential.RefreshToken}, nil)
	if err != nil {
		return fmt.Errorf("server logout: %w", err)
	}
	return nil
}

// Me describes the current user as the server sees them.
type Me struct {
	User        domain.Principal    `json:"user"`
	Permissions []domain.Permission `json:"permissions"`
}

// Me fetches the current profile and effective permissions and updates the
// session's profile.
func (c *Client) Me(ctx context.Context) (Me, error) {
	var me Me
	if err := c.Do(ctx, http.MethodGet, "/auth/me", nil, &me); err != nil {
		return Me{}, err
	}
	c.session.Dispatch(ProfileUpdated{Principal: me.User})
	return me, nil
}

func (c *Client) send(ctx context.Context, method, path, bearer string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rdr)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		var envelope domain.ErrorResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&envelope); err == nil {
			apiErr.Code = envelope.Error
			apiErr.Message = envelope.Message
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}
