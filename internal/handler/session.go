package handler

import (
	"net/http"
	"strings"

	"github.com/faucetdb/backoffice/internal/service"
)

// SessionHandler issues and ends login sessions.
type SessionHandler struct {
	authSvc *service.AuthService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(authSvc *service.AuthService) *SessionHandler {
	return &SessionHandler{authSvc: authSvc}
}

// loginRequest is the expected payload for the Login endpoint.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates an identity and returns a JWT session token. Any
// identity may log in; administrator access is checked per request.
// POST /api/v1/session
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	sess, err := h.authSvc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// Logout ends the current session. Tokens are stateless, so the client is
// expected to discard its token; the endpoint exists for API symmetry.
// DELETE /api/v1/session
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
	})
}
