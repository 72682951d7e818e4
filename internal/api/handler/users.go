package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"parss/internal/api"
	"parss/internal/authz"
	"parss/internal/domain"
	"parss/internal/users"
)

type updateUserRequest struct {
	Role        string   `json:"role" validate:"omitempty,max=64"`
	Permissions []string `json:"permissions" validate:"omitempty,max=64,dive,required,max=64"`
	Active      *bool    `json:"active"`
}

// UserResponse describes an account after an administrative change.
type UserResponse struct {
	User   domain.Principal `json:"user"`
	Active bool             `json:"active"`
}

// updateUser changes a user's role, explicit grants or active flag. Callers
// cannot hand out more than they hold: superuser roles need a superuser and
// every grant must be one the caller has.
func (h *handlers) updateUser(w http.ResponseWriter, r *http.Request) {
	caller := api.MustPrincipal(r.Context())

	var req updateUserRequest
	if !decode(w, r, &req) {
		return
	}

	var in users.UpdateInput
	if req.Role != "" {
		role := domain.Role(req.Role)
		if role.IsSuperUser() && !caller.Role.IsSuperUser() {
			api.WriteError(w, http.StatusForbidden, "forbidden", fmt.Sprintf("only a superuser may assign role %s", role))
			return
		}
		in.Role = &role
	}
	if req.Permissions != nil {
		in.Permissions = make([]domain.Permission, 0, len(req.Permissions))
		for _, name := range req.Permissions {
			perm := domain.Permission(name)
			if !authz.Known(perm) {
				api.WriteError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("unknown permission %q", name))
				return
			}
			if !h.roles.HasPermission(&caller, perm) {
				api.WriteError(w, http.StatusForbidden, "forbidden", fmt.Sprintf("cannot grant %s without holding it", perm))
				return
			}
			in.Permissions = append(in.Permissions, perm)
		}
	}
	in.Active = req.Active

	user, err := h.accounts.Update(r.Context(), chi.URLParam(r, "userID"), in)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		api.WriteError(w, http.StatusNotFound, "not_found", "no such user")
		return
	case errors.Is(err, users.ErrUnknownRole):
		api.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	case err != nil:
		slog.Error("updating user", "error", err, "user_id", chi.URLParam(r, "userID"))
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	slog.Info("user changed by administrator", "user_id", user.ID, "changed_by", caller.ID, "request_id", api.RequestIDFromContext(r.Context()))
	api.WriteJSON(w, http.StatusOK, UserResponse{User: user.Principal(), Active: user.IsActive})
}
