package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/faucetdb/backoffice/internal/config"
	"github.com/faucetdb/backoffice/internal/model"
	"github.com/faucetdb/backoffice/internal/server/middleware"
	"github.com/faucetdb/backoffice/internal/service"
)

// maxBodySize caps request bodies read by readJSON.
const maxBodySize = 1 << 20

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response using the standard error
// envelope. The optional ctx map provides additional context fields.
func writeError(w http.ResponseWriter, code int, message string, ctx ...map[string]interface{}) {
	var ctxMap map[string]interface{}
	if len(ctx) > 0 {
		ctxMap = ctx[0]
	}
	writeJSON(w, code, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    code,
			Message: message,
			Context: ctxMap,
		},
	})
}

// writeServiceError maps a service or store error onto the error envelope.
func writeServiceError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "Internal error: " + msg
	}
	writeError(w, status, msg)
}

// errorStatus returns the HTTP status for err.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrAuthorizationDenied):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, config.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, config.ErrConflict),
		errors.Is(err, config.ErrLastSuperAdmin),
		errors.Is(err, service.ErrAlreadyBootstrapped):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// readJSON decodes the request body as JSON into v. Unknown fields are
// rejected. The body is closed after decoding.
func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// pathID parses a positive integer chi URL parameter.
func pathID(r *http.Request, key string) (int64, error) {
	raw := chi.URLParam(r, key)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return id, nil
}

// queryString extracts a trimmed string query parameter.
func queryString(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

// actorFrom returns the administrator resolved by the auth middleware. A
// missing actor means the route was mounted without RequireAdmin, which is
// reported as 401.
func actorFrom(w http.ResponseWriter, r *http.Request) (service.Actor, bool) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return service.Actor{}, false
	}
	return actor, true
}
