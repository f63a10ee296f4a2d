package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pickly.app/internal/access"
	"pickly.app/internal/audit"
	"pickly.app/internal/auth"
	"pickly.app/internal/guard"
)

// Every administrative route also needs the organizations menu.
const adminMenu = "organizations"

var (
	menuRead   = guard.Require(access.Perm(access.Menu, access.Execute)...).WithMenu(adminMenu)
	menuInsert = guard.Require(access.Perm(access.Menu, access.Insert)...).WithMenu(adminMenu)
	menuEdit   = guard.Require(access.Perm(access.Menu, access.Edit)...).WithMenu(adminMenu)
	menuDelete = guard.Require(access.Perm(access.Menu, access.Delete)...).WithMenu(adminMenu)

	accessRead   = guard.Require(access.Perm(access.AccessRes, access.Execute)...).WithMenu(adminMenu)
	accessInsert = guard.Require(access.Perm(access.AccessRes, access.Insert)...).WithMenu(adminMenu)
	accessEdit   = guard.Require(access.Perm(access.AccessRes, access.Edit)...).WithMenu(adminMenu)
	accessDelete = guard.Require(access.Perm(access.AccessRes, access.Delete)...).WithMenu(adminMenu)

	assignmentAdmin = guard.Require(access.Perm(access.AccessRes, access.Approve)...)
)

type assignMenusRequest struct {
	ProfileID string   `json:"profile_id"`
	MenuIDs   []string `json:"menu_ids"`
}

type assignmentRequest struct {
	HolderID  string `json:"holder_id"`
	ProfileID string `json:"profile_id"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

func list[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items}
}

func (a *API) audit(ctx context.Context, event, kind, id string, extra map[string]any) {
	fields := map[string]any{"kind": kind, "id": id}
	for k, v := range extra {
		fields[k] = v
	}
	_ = audit.LogEvent(ctx, event, fields)
}

func (a *API) handleMenuTree(w http.ResponseWriter, r *http.Request) {
	principalID, _ := auth.PrincipalIDFromContext(r.Context())
	tree, err := a.menus.MenuTreeFor(r.Context(), principalID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(tree))
}

// --- menu nodes ---

func (a *API) handleListMenus(w http.ResponseWriter, r *http.Request) {
	menus, err := a.admin.ListMenus(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(menus))
}

func (a *API) handleGetMenu(w http.ResponseWriter, r *http.Request) {
	m, err := a.admin.GetMenu(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *API) handleCreateMenu(w http.ResponseWriter, r *http.Request) {
	var req access.MenuInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	m, err := a.admin.CreateMenu(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.audit(r.Context(), "menu.create", "menu", m.ID, map[string]any{"key": m.Key})
	w.Header().Set("Location", fmt.Sprintf("/v1/menu/items/%s", m.ID))
	writeJSON(w, http.StatusCreated, m)
}

func (a *API) handleUpdateMenu(w http.ResponseWriter, r *http.Request) {
	var req access.MenuPatch
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	m, err := a.admin.UpdateMenu(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.audit(r.Context(), "menu.update", "menu", m.ID, nil)
	writeJSON(w, http.StatusOK, m)
}

func (a *API) handleDeactivateMenu(w http.ResponseWriter, r *http.Request) {
	m, err := a.admin.DeactivateMenu(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.audit(r.Context(), "menu.deactivate", "menu", m.ID, nil)
	writeJSON(w, http.StatusOK, m)
}

// --- access profiles ---

func (a *API) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := a.admin.ListProfiles(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(profiles))
}

func (a *API) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := a.admin.GetProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req access.ProfileInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := a.admin.CreateProfile(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.audit(r.Context(), "access.profile.create", "profile", p.ID, map[string]any{"name": p.Name})
	w.Header().Set("Location", fmt.Sprintf("/v1/menu/access/%s", p.ID))
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req access.ProfilePatch
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := a.admin.UpdateProfile(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.audit(r.Context(), "access.profile.update", "profile", p.ID, nil)
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleDeactivateProfile(w http.ResponseWriter, r *http.Request) {
	p, err := a.admin.DeactivateProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.audit(r.Context(), "access.profile.deactivate", "profile", p.ID, nil)
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleAssignMenus(w http.ResponseWriter, r *http.Request) {
	var req assignMenusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.admin.AssignMenus(r.Context(), req.ProfileID, req.MenuIDs); err != nil {
		a.fail(w, r, err)
		return
	}
	a.audit(r.Context(), "access.menus.assign", "profile", req.ProfileID, map[string]any{"menu_ids": req.MenuIDs})

	menus, err := a.admin.ProfileMenus(r.Context(), req.ProfileID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profile_id": req.ProfileID,
		"items":      list(menus).Items,
	})
}

func (a *API) handleProfileMenus(w http.ResponseWriter, r *http.Request) {
	menus, err := a.admin.ProfileMenus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(menus))
}

// --- assignments ---

func (a *API) handleAssignProfile(w http.ResponseWriter, r *http.Request) {
	var req assignmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.admin.AssignProfile(r.Context(), req.HolderID, req.ProfileID); err != nil {
		a.fail(w, r, err)
		return
	}
	a.audit(r.Context(), "access.assignment.grant", "holder", req.HolderID, map[string]any{"profile_id": req.ProfileID})
	writeJSON(w, http.StatusCreated, map[string]string{"status": "assigned"})
}

func (a *API) handleRevokeProfile(w http.ResponseWriter, r *http.Request) {
	holder, profile := chi.URLParam(r, "holder"), chi.URLParam(r, "profile")
	if err := a.admin.RevokeProfile(r.Context(), holder, profile); err != nil {
		a.fail(w, r, err)
		return
	}
	a.audit(r.Context(), "access.assignment.revoke", "holder", holder, map[string]any{"profile_id": profile})
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}
