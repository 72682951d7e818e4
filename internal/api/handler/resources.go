package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"parss/internal/api"
	"parss/internal/authz"
)

// The collaborator modules own their data; these handlers only confirm what
// the guard admitted and what the caller may do next.

type resourceResponse struct {
	Resource    string `json:"resource"`
	PrincipalID string `json:"principal_id"`
	Institution string `json:"institution_id,omitempty"`
	CanManage   *bool  `json:"can_manage,omitempty"`
}

func (h *handlers) resource(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := api.MustPrincipal(r.Context())
		api.WriteJSON(w, http.StatusOK, resourceResponse{Resource: name, PrincipalID: p.ID})
	}
}

func (h *handlers) accepted(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := api.MustPrincipal(r.Context())
		api.WriteJSON(w, http.StatusAccepted, resourceResponse{Resource: name, PrincipalID: p.ID})
	}
}

func (h *handlers) dashboard(w http.ResponseWriter, r *http.Request) {
	p := api.MustPrincipal(r.Context())
	api.WriteJSON(w, http.StatusOK, map[string]any{
		"resource":     "dashboard",
		"principal_id": p.ID,
		"role":         p.Role,
		"institutions": p.Institutions,
	})
}

func (h *handlers) listAlerts(w http.ResponseWriter, r *http.Request) {
	p := api.MustPrincipal(r.Context())
	canManage := h.roles.HasPermission(&p, authz.PermManageAlerts)
	api.WriteJSON(w, http.StatusOK, resourceResponse{Resource: "alerts", PrincipalID: p.ID, CanManage: &canManage})
}

func (h *handlers) documents(w http.ResponseWriter, r *http.Request) {
	p := api.MustPrincipal(r.Context())
	canManage := h.roles.HasPermission(&p, authz.PermManageDocuments)
	api.WriteJSON(w, http.StatusOK, resourceResponse{
		Resource:    "documents",
		PrincipalID: p.ID,
		Institution: chi.URLParam(r, "institutionID"),
		CanManage:   &canManage,
	})
}
