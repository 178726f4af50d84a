package handler

import (
	"net/http"

	"github.com/faucetdb/backoffice/internal/openapi"
)

// OpenAPIHandler serves the OpenAPI 3.1 document of the admin API.
type OpenAPIHandler struct {
	version string
}

// NewOpenAPIHandler creates a new OpenAPIHandler.
func NewOpenAPIHandler(version string) *OpenAPIHandler {
	return &OpenAPIHandler{version: version}
}

// ServeSpec returns the document with the server URL taken from the request.
// GET /openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	doc := openapi.GenerateDocument(scheme+"://"+r.Host, h.version)
	writeJSON(w, http.StatusOK, doc)
}
