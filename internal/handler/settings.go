package handler

import (
	"encoding/json"
	"net/http"

	"github.com/faucetdb/backoffice/internal/model"
	"github.com/faucetdb/backoffice/internal/service"
)

// SettingsHandler serves the platform settings table.
type SettingsHandler struct {
	settings *service.SettingsService
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(settings *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// ListSettings returns settings, optionally filtered by ?category=.
// GET /api/v1/settings
func (h *SettingsHandler) ListSettings(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	settings, err := h.settings.List(r.Context(), actor, queryString(r, "category"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if settings == nil {
		settings = []model.Setting{}
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: settings,
		Meta:     &model.ResponseMeta{Count: len(settings)},
	})
}

// UpdateSettings writes a key/value object of settings in one transaction.
// PUT /api/v1/settings
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var values map[string]json.RawMessage
	if err := readJSON(r, &values); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := h.settings.Update(r.Context(), actor, values); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"count":   len(values),
	})
}
