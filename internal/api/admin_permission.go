package api

import (
	"net/http"

	"github.com/google/uuid"

	customMiddleware "github.com/lightbasenl/identity-core/internal/api/middleware"
	"github.com/lightbasenl/identity-core/internal/apperr"
	"github.com/lightbasenl/identity-core/internal/permission"
)

// ListPermissions lists every declared permission identifier (spec §4.2).
// Requires RequirePermission(permission.ManagePermission).
func (s *Server) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := s.Perms.ListPermissions(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, perms)
}

// ListRoles lists every role visible to the resolved tenant (spec §4.2).
func (s *Server) ListRoles(w http.ResponseWriter, r *http.Request) {
	tenantID, err := customMiddleware.GetTenantID(r.Context())
	if err != nil {
		writeErr(w, apperr.Validation("multitenant.require.invalidTenant", nil))
		return
	}
	roles, err := s.Perms.ListRolesVisibleToTenant(r.Context(), tenantID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roles)
}

// CreateRole creates a tenant-scoped role (spec §4.2).
func (s *Server) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier string `json:"identifier"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	tenantID, err := customMiddleware.GetTenantID(r.Context())
	if err != nil {
		writeErr(w, apperr.Validation("multitenant.require.invalidTenant", nil))
		return
	}
	role, err := s.Perms.CreateRole(r.Context(), tenantID, req.Identifier)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, role)
}

// DeleteRole removes a tenant-scoped role (spec §4.2).
func (s *Server) DeleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := parseUUIDParam(r, "roleID")
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.Perms.DeleteRole(r.Context(), roleID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddRolePermissions attaches permission identifiers to a role (spec §4.2).
func (s *Server) AddRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, err := parseUUIDParam(r, "roleID")
	if err != nil {
		writeErr(w, err)
		return
	}
	var req struct {
		Identifiers []string `json:"identifiers"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.Perms.AddRolePermissions(r.Context(), roleID, req.Identifiers); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveRolePermissions detaches permission identifiers from a role (spec
// §4.2).
func (s *Server) RemoveRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, err := parseUUIDParam(r, "roleID")
	if err != nil {
		writeErr(w, err)
		return
	}
	var req struct {
		Identifiers []string `json:"identifiers"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.Perms.RemoveRolePermissions(r.Context(), roleID, req.Identifiers); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UserSyncRoles replaces a user's role assignments with the given target
// set (spec §4.2).
func (s *Server) UserSyncRoles(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUUIDParam(r, "userID")
	if err != nil {
		writeErr(w, err)
		return
	}
	tenantID, err := customMiddleware.GetTenantID(r.Context())
	if err != nil {
		writeErr(w, apperr.Validation("multitenant.require.invalidTenant", nil))
		return
	}
	var req struct {
		RoleIDs     []string `json:"roleIds"`
		Identifiers []string `json:"identifiers"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	target := permission.SyncRolesInput{IdentifierIn: req.Identifiers}
	for _, raw := range req.RoleIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeErr(w, apperr.Validation("server.internal.invalidParam", map[string]any{"param": "roleIds"}))
			return
		}
		target.IDIn = append(target.IDIn, id)
	}

	if err := s.Perms.UserSyncRoles(r.Context(), userID, tenantID, target); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AssignRole grants a single role to a user directly (spec §4.2), used
// outside the bulk UserSyncRoles flow.
func (s *Server) AssignRole(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUUIDParam(r, "userID")
	if err != nil {
		writeErr(w, err)
		return
	}
	roleID, err := parseUUIDParam(r, "roleID")
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.Perms.AssignRole(r.Context(), userID, roleID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveRole revokes a single role from a user (spec §4.2).
func (s *Server) RemoveRole(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUUIDParam(r, "userID")
	if err != nil {
		writeErr(w, err)
		return
	}
	roleID, err := parseUUIDParam(r, "roleID")
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.Perms.RemoveRole(r.Context(), userID, roleID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UserPermissionSummary returns the targeted user's resolved roles and
// permissions for the resolved tenant (spec §4.2).
func (s *Server) UserPermissionSummary(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUUIDParam(r, "userID")
	if err != nil {
		writeErr(w, err)
		return
	}
	tenantID, err := customMiddleware.GetTenantID(r.Context())
	if err != nil {
		writeErr(w, apperr.Validation("multitenant.require.invalidTenant", nil))
		return
	}
	summary, err := s.Perms.UserSummary(r.Context(), userID, tenantID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
