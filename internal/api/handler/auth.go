package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"parss/internal/api"
	"parss/internal/domain"
	"parss/internal/users"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

type registerRequest struct {
	Email        string   `json:"email" validate:"required,email,max=254"`
	Name         string   `json:"name" validate:"required,max=200"`
	Password     string   `json:"password" validate:"required,min=8,max=72"`
	Role         string   `json:"role" validate:"omitempty,max=64"`
	Institutions []string `json:"institutions" validate:"omitempty,max=32,dive,required,max=128"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required,max=512"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"omitempty,max=512"`
}

// SessionResponse is returned by login and registration.
type SessionResponse struct {
	User       domain.Principal  `json:"user"`
	Credential domain.Credential `json:"credential"`
}

// RefreshResponse is returned by /auth/refresh.
type RefreshResponse struct {
	Credential domain.Credential `json:"credential"`
}

// MeResponse describes the caller and everything they may do.
type MeResponse struct {
	User        domain.Principal    `json:"user"`
	Permissions []domain.Permission `json:"permissions"`
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}

	user, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		slog.Info("login failed", "request_id", api.RequestIDFromContext(r.Context()))
		api.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		return
	}
	h.startSession(w, r, http.StatusOK, user)
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}

	user, err := h.accounts.Register(r.Context(), users.RegisterInput{
		Email:        req.Email,
		Name:         req.Name,
		Password:     req.Password,
		Role:         domain.Role(req.Role),
		Institutions: req.Institutions,
	})
	switch {
	case errors.Is(err, domain.ErrConflict):
		api.WriteError(w, http.StatusConflict, "conflict", "email already registered")
		return
	case errors.Is(err, users.ErrRoleNotAllowed):
		api.WriteError(w, http.StatusForbidden, "forbidden", err.Error())
		return
	case errors.Is(err, users.ErrWeakPassword):
		api.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	case err != nil:
		slog.Error("registering user", "error", err)
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	h.startSession(w, r, http.StatusCreated, user)
}

func (h *handlers) startSession(w http.ResponseWriter, r *http.Request, status int, user users.User) {
	cred, err := h.creds.Issue(r.Context(), user.Claims())
	if err != nil {
		slog.Error("issuing credential", "error", err, "user_id", user.ID)
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	api.WriteJSON(w, status, SessionResponse{User: user.Principal(), Credential: cred})
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}

	cred, err := h.creds.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if !errors.Is(err, domain.ErrRefreshFailed) {
			slog.Error("refreshing credential", "error", err)
		}
		slog.Debug("refresh rejected", "error", err)
		api.WriteError(w, http.StatusUnauthorized, "refresh_failed", "refresh token invalid or expired")
		return
	}
	api.WriteJSON(w, http.StatusOK, RefreshResponse{Credential: cred})
}

// logout accepts a refresh token, a bearer access token or both. An expired
// access token must not keep the refresh token alive, so the route is not
// behind Authenticate: the refresh token is revoked on its own and the access
// token is denylisted only when it still verifies.
func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	var tok api.VerifiedToken
	if raw, ok := api.BearerToken(r); ok {
		verified, err := h.verifier.Verify(r.Context(), raw)
		if err != nil {
			slog.Debug("logout with unusable access token", "error", err, "request_id", api.RequestIDFromContext(r.Context()))
		} else {
			tok = verified
		}
	}
	if tok.ID == "" && req.RefreshToken == "" {
		api.WriteError(w, http.StatusUnauthorized, "unauthorized", "a valid access token or a refresh token is required")
		return
	}

	if err := h.creds.Revoke(r.Context(), req.RefreshToken, tok); err != nil {
		slog.Warn("logout revocation incomplete", "error", err, "principal_id", tok.Principal.ID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	p := api.MustPrincipal(r.Context())

	user := p
	if u, err := h.accounts.Lookup(r.Context(), p.ID); err == nil {
		user = u.Principal()
	} else if !errors.Is(err, domain.ErrNotFound) {
		slog.Warn("looking up current user", "error", err, "principal_id", p.ID)
	}

	// Permissions reflect the token, which is what every guard evaluates.
	perms := h.roles.EffectivePermissions(&p)
	if perms == nil {
		perms = []domain.Permission{}
	}
	api.WriteJSON(w, http.StatusOK, MeResponse{User: user, Permissions: perms})
}
