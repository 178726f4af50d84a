package handler

import (
	"net/http"
	"time"

	"github.com/faucetdb/backoffice/internal/model"
	"github.com/faucetdb/backoffice/internal/permission"
	"github.com/faucetdb/backoffice/internal/service"
)

// AdminHandler serves administrator management and role introspection.
// Every handler reads the actor resolved by the auth middleware and passes
// it to the service explicitly.
type AdminHandler struct {
	admins *service.AdminService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(admins *service.AdminService) *AdminHandler {
	return &AdminHandler{admins: admins}
}

// adminResponse is the wire form of an administrator. RoleLevel is computed
// from Role on every response.
type adminResponse struct {
	ID        int64           `json:"id"`
	UserID    string          `json:"user_id"`
	Email     string          `json:"email"`
	Name      string          `json:"name"`
	Role      permission.Role `json:"role"`
	RoleLevel int             `json:"role_level"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toAdminResponse(a *model.Admin) adminResponse {
	return adminResponse{
		ID:        a.ID,
		UserID:    a.UserID,
		Email:     a.Email,
		Name:      a.Name,
		Role:      a.Role,
		RoleLevel: a.RoleLevel(),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

type roleResponse struct {
	Role permission.Role `json:"role"`
	Rank int             `json:"rank"`
}

func rolesResource(roles []permission.Role) []roleResponse {
	out := make([]roleResponse, 0, len(roles))
	for _, r := range roles {
		out = append(out, roleResponse{Role: r, Rank: permission.Rank(r)})
	}
	return out
}

// Me returns the caller's administrator record and what it may do.
// GET /api/v1/me
func (h *AdminHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	admin, err := h.admins.Get(r.Context(), actor, actor.AdminID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Admin        adminResponse           `json:"admin"`
		Capabilities permission.Capabilities `json:"capabilities"`
	}{
		Admin:        toAdminResponse(admin),
		Capabilities: permission.CapabilitiesFor(actor.Role),
	})
}

// UpdateMe changes the caller's own display name.
// PUT /api/v1/me
func (h *AdminHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req service.ProfileRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	admin, err := h.admins.UpdateProfile(r.Context(), actor, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAdminResponse(admin))
}

// ChangePassword replaces the caller's own password.
// PUT /api/v1/me/password
func (h *AdminHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req service.PasswordChangeRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := h.admins.ChangePassword(r.Context(), actor, req); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// ListRoles returns every administrator role with its rank.
// GET /api/v1/roles
func (h *AdminHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles := rolesResource(permission.Roles())
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: roles,
		Meta:     &model.ResponseMeta{Count: len(roles)},
	})
}

// AssignableRoles returns the roles the caller may grant.
// GET /api/v1/roles/assignable
func (h *AdminHandler) AssignableRoles(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	roles := rolesResource(permission.AssignableRoles(actor.Role))
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: roles,
		Meta:     &model.ResponseMeta{Count: len(roles)},
	})
}

// ListAdmins returns all administrators, newest first.
// GET /api/v1/admins
func (h *AdminHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	admins, err := h.admins.List(r.Context(), actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resources := make([]adminResponse, 0, len(admins))
	for i := range admins {
		resources = append(resources, toAdminResponse(&admins[i]))
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: resources,
		Meta:     &model.ResponseMeta{Count: len(resources)},
	})
}

// Stats returns administrator population counts.
// GET /api/v1/admins/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	stats, err := h.admins.Stats(r.Context(), actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetAdmin returns a single administrator.
// GET /api/v1/admins/{adminId}
func (h *AdminHandler) GetAdmin(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "adminId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	admin, err := h.admins.Get(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAdminResponse(admin))
}

// CreateAdmin provisions an identity and an administrator record.
// POST /api/v1/admins
func (h *AdminHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req service.CreateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	admin, err := h.admins.Create(r.Context(), actor, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAdminResponse(admin))
}

// UpdateAdmin changes an administrator's role and/or display name.
// PUT /api/v1/admins/{adminId}
func (h *AdminHandler) UpdateAdmin(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "adminId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req service.UpdateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	admin, err := h.admins.Update(r.Context(), actor, id, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAdminResponse(admin))
}

// DeleteAdmin removes an administrator and its identity.
// DELETE /api/v1/admins/{adminId}
func (h *AdminHandler) DeleteAdmin(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "adminId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.admins.Delete(r.Context(), actor, id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"id":      id,
	})
}
