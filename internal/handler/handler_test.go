package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/faucetdb/backoffice/internal/config"
	"github.com/faucetdb/backoffice/internal/identity"
	"github.com/faucetdb/backoffice/internal/model"
	"github.com/faucetdb/backoffice/internal/permission"
	"github.com/faucetdb/backoffice/internal/server/middleware"
	"github.com/faucetdb/backoffice/internal/service"
)

const (
	testJWTSecret = "test-secret-for-handler-tests"
	testPassword  = "supersecretpassword"
)

// testEnv holds shared state for handler integration tests.
type testEnv struct {
	store  *config.Store
	idp    *identity.StoreProvider
	admins *service.AdminService
	router chi.Router
}

// newTestEnv creates a fresh test environment with an in-memory config store
// and a Chi router with the handlers mounted. Auth middleware is not mounted;
// requests carry their actor via middleware.WithActor.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := config.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	idp := identity.NewStoreProvider(store)
	authSvc := service.NewAuthService(store, idp, testJWTSecret, time.Hour, logger)
	adminSvc := service.NewAdminService(store, idp, logger)
	settingsSvc := service.NewSettingsService(store, logger)

	sessions := NewSessionHandler(authSvc)
	admins := NewAdminHandler(adminSvc)
	settings := NewSettingsHandler(settingsSvc)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/session", sessions.Login)
		r.Delete("/session", sessions.Logout)

		r.Get("/me", admins.Me)
		r.Put("/me", admins.UpdateMe)
		r.Put("/me/password", admins.ChangePassword)
		r.Get("/roles", admins.ListRoles)
		r.Get("/roles/assignable", admins.AssignableRoles)

		r.Get("/admins", admins.ListAdmins)
		r.Post("/admins", admins.CreateAdmin)
		r.Get("/admins/stats", admins.Stats)
		r.Get("/admins/{adminId}", admins.GetAdmin)
		r.Put("/admins/{adminId}", admins.UpdateAdmin)
		r.Delete("/admins/{adminId}", admins.DeleteAdmin)

		r.Get("/settings", settings.ListSettings)
		r.Put("/settings", settings.UpdateSettings)
	})

	return &testEnv{store: store, idp: idp, admins: adminSvc, router: r}
}

// seed creates an identity and administrator record and returns the actor
// that represents it.
func (e *testEnv) seed(t *testing.T, email string, role permission.Role) service.Actor {
	t.Helper()
	ctx := context.Background()
	ident, err := e.idp.Create(ctx, identity.NewIdentity{Email: email, Password: testPassword})
	if err != nil {
		t.Fatalf("seed identity: %v", err)
	}
	admin := &model.Admin{UserID: ident.ID, Role: role}
	if err := e.store.CreateAdmin(ctx, admin); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	return service.Actor{IdentityID: ident.ID, AdminID: admin.ID, Role: role}
}

// do sends a request as actor. A zero actor sends the request without one.
func (e *testEnv) do(t *testing.T, actor service.Actor, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
		rdr = buf
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if actor.Role != "" {
		req = req.WithContext(middleware.WithActor(req.Context(), actor))
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v; body = %s", err, rr.Body.String())
	}
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Session
// ---------------------------------------------------------------------------

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "root@example.com", permission.RoleSuperAdmin)

	rr := env.do(t, service.Actor{}, "POST", "/api/v1/session", map[string]string{
		"email": "ROOT@example.com", "password": testPassword,
	})
	expectStatus(t, rr, http.StatusOK)

	var sess service.Session
	decodeBody(t, rr, &sess)
	if sess.Token == "" || sess.TokenType != "Bearer" || sess.Email != "root@example.com" {
		t.Errorf("session = %+v", sess)
	}
}

func TestLogin_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "root@example.com", permission.RoleSuperAdmin)

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"wrong password", map[string]string{"email": "root@example.com", "password": "incorrect"}, http.StatusUnauthorized},
		{"blank email", map[string]string{"email": "  ", "password": testPassword}, http.StatusBadRequest},
		{"missing password", map[string]string{"email": "root@example.com"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, service.Actor{}, "POST", "/api/v1/session", tt.body)
			expectStatus(t, rr, tt.want)
		})
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, service.Actor{}, "DELETE", "/api/v1/session", nil)
	expectStatus(t, rr, http.StatusOK)
}

// ---------------------------------------------------------------------------
// Administrators
// ---------------------------------------------------------------------------

func TestHandlers_RequireActor(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/v1/me", "/api/v1/admins", "/api/v1/settings", "/api/v1/roles/assignable"} {
		t.Run(path, func(t *testing.T) {
			rr := env.do(t, service.Actor{}, "GET", path, nil)
			expectStatus(t, rr, http.StatusUnauthorized)
		})
	}
}

func TestMe(t *testing.T) {
	env := newTestEnv(t)
	mod := env.seed(t, "mod@example.com", permission.RoleModerator)

	rr := env.do(t, mod, "GET", "/api/v1/me", nil)
	expectStatus(t, rr, http.StatusOK)

	var resp struct {
		Admin        adminResponse           `json:"admin"`
		Capabilities permission.Capabilities `json:"capabilities"`
	}
	decodeBody(t, rr, &resp)
	if resp.Admin.ID != mod.AdminID || resp.Admin.RoleLevel != 1 {
		t.Errorf("admin = %+v", resp.Admin)
	}
	if !resp.Capabilities.CanView || resp.Capabilities.CanCreate {
		t.Errorf("capabilities = %+v", resp.Capabilities)
	}
}

func TestUpdateMe(t *testing.T) {
	env := newTestEnv(t)
	mod := env.seed(t, "mod@example.com", permission.RoleModerator)

	rr := env.do(t, mod, "PUT", "/api/v1/me", map[string]string{"name": "Night Shift"})
	expectStatus(t, rr, http.StatusOK)
	var got adminResponse
	decodeBody(t, rr, &got)
	if got.Name != "Night Shift" || got.Role != permission.RoleModerator {
		t.Errorf("admin = %+v", got)
	}

	rr = env.do(t, mod, "PUT", "/api/v1/me", map[string]string{"role": "super_admin"})
	expectStatus(t, rr, http.StatusBadRequest)
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	mod := env.seed(t, "mod@example.com", permission.RoleModerator)

	tests := []struct {
		name       string
		body       map[string]string
		wantStatus int
	}{
		{"wrong current", map[string]string{"current_password": "guess", "new_password": "another-secret", "confirm_password": "another-secret"}, http.StatusBadRequest},
		{"mismatch", map[string]string{"current_password": testPassword, "new_password": "another-secret", "confirm_password": "different"}, http.StatusBadRequest},
		{"too short", map[string]string{"current_password": testPassword, "new_password": "abc", "confirm_password": "abc"}, http.StatusBadRequest},
		{"ok", map[string]string{"current_password": testPassword, "new_password": "another-secret", "confirm_password": "another-secret"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, mod, "PUT", "/api/v1/me/password", tt.body)
			expectStatus(t, rr, tt.wantStatus)
		})
	}

	rr := env.do(t, service.Actor{}, "POST", "/api/v1/session",
		map[string]string{"email": "mod@example.com", "password": "another-secret"})
	expectStatus(t, rr, http.StatusOK)
}

func TestAssignableRoles(t *testing.T) {
	env := newTestEnv(t)
	root := env.seed(t, "root@example.com", permission.RoleSuperAdmin)

	rr := env.do(t, root, "GET", "/api/v1/roles/assignable", nil)
	expectStatus(t, rr, http.StatusOK)

	var resp struct {
		Resource []roleResponse `json:"resource"`
	}
	decodeBody(t, rr, &resp)
	if len(resp.Resource) != 2 {
		t.Fatalf("assignable = %+v, want admin and moderator", resp.Resource)
	}
	if resp.Resource[0].Role != permission.RoleAdmin || resp.Resource[1].Role != permission.RoleModerator {
		t.Errorf("assignable order = %+v", resp.Resource)
	}
}

func TestCreateAdmin(t *testing.T) {
	env := newTestEnv(t)
	root := env.seed(t, "root@example.com", permission.RoleSuperAdmin)

	rr := env.do(t, root, "POST", "/api/v1/admins", map[string]string{
		"email": "ops@example.com", "password": "password123", "name": "Ops",
	})
	expectStatus(t, rr, http.StatusCreated)

	var created adminResponse
	decodeBody(t, rr, &created)
	if created.Role != permission.RoleAdmin {
		t.Errorf("role = %q, want default %q", created.Role, permission.RoleAdmin)
	}
	if created.RoleLevel != 2 || created.Name != "Ops" {
		t.Errorf("created = %+v", created)
	}
}

func TestCreateAdmin_UnknownField(t *testing.T) {
	env := newTestEnv(t)
	root := env.seed(t, "root@example.com", permission.RoleSuperAdmin)

	rr := env.do(t, root, "POST", "/api/v1/admins", map[string]interface{}{
		"email": "ops@example.com", "password": "password123", "role_level": 3,
	})
	expectStatus(t, rr, http.StatusBadRequest)
}

func TestUpdateAdmin(t *testing.T) {
	env := newTestEnv(t)
	root := env.seed(t, "root@example.com", permission.RoleSuperAdmin)
	mod := env.seed(t, "mod@example.com", permission.RoleModerator)
	path := fmt.Sprintf("/api/v1/admins/%d", mod.AdminID)

	tests := []struct {
		name  string
		actor service.Actor
		body  map[string]string
		want  int
	}{
		{"empty update", root, map[string]string{}, http.StatusBadRequest},
		{"moderator edits self", mod, map[string]string{"name": "me"}, http.StatusForbidden},
		{"unknown role", root, map[string]string{"role": "owner"}, http.StatusForbidden},
		{"promote to admin", root, map[string]string{"role": "admin"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, tt.actor, "PUT", path, tt.body)
			expectStatus(t, rr, tt.want)
		})
	}

	rr := env.do(t, root, "GET", path, nil)
	expectStatus(t, rr, http.StatusOK)
	var got adminResponse
	decodeBody(t, rr, &got)
	if got.Role != permission.RoleAdmin || got.RoleLevel != 2 {
		t.Errorf("after update = %+v", got)
	}
}

func TestDeleteAdmin(t *testing.T) {
	env := newTestEnv(t)
	root := env.seed(t, "root@example.com", permission.RoleSuperAdmin)
	adm := env.seed(t, "admin@example.com", permission.RoleAdmin)

	rr := env.do(t, adm, "DELETE", fmt.Sprintf("/api/v1/admins/%d", root.AdminID), nil)
	expectStatus(t, rr, http.StatusForbidden)

	rr = env.do(t, root, "DELETE", fmt.Sprintf("/api/v1/admins/%d", adm.AdminID), nil)
	expectStatus(t, rr, http.StatusOK)

	var resp struct {
		Success bool  `json:"success"`
		ID      int64 `json:"id"`
	}
	decodeBody(t, rr, &resp)
	if !resp.Success || resp.ID != adm.AdminID {
		t.Errorf("delete response = %+v", resp)
	}

	if _, err := env.idp.Get(context.Background(), adm.IdentityID); err == nil {
		t.Error("expected identity to be removed with the admin record")
	}
}

func TestListAdminsAndStats(t *testing.T) {
	env := newTestEnv(t)
	root := env.seed(t, "root@example.com", permission.RoleSuperAdmin)
	env.seed(t, "mod1@example.com", permission.RoleModerator)
	env.seed(t, "mod2@example.com", permission.RoleModerator)

	rr := env.do(t, root, "GET", "/api/v1/admins", nil)
	expectStatus(t, rr, http.StatusOK)
	var list struct {
		Resource []adminResponse    `json:"resource"`
		Meta     model.ResponseMeta `json:"meta"`
	}
	decodeBody(t, rr, &list)
	if list.Meta.Count != 3 || len(list.Resource) != 3 {
		t.Fatalf("list = %+v", list)
	}
	for _, a := range list.Resource {
		if a.RoleLevel != permission.Rank(a.Role) {
			t.Errorf("admin %d role_level = %d, want %d", a.ID, a.RoleLevel, permission.Rank(a.Role))
		}
	}

	rr = env.do(t, root, "GET", "/api/v1/admins/stats", nil)
	expectStatus(t, rr, http.StatusOK)
	var stats model.AdminStats
	decodeBody(t, rr, &stats)
	want := model.AdminStats{Total: 3, Recent: 3, SuperAdmins: 1, Moderators: 2}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

func TestSettings(t *testing.T) {
	env := newTestEnv(t)
	root := env.seed(t, "root@example.com", permission.RoleSuperAdmin)
	adm := env.seed(t, "admin@example.com", permission.RoleAdmin)

	rr := env.do(t, adm, "PUT", "/api/v1/settings", map[string]interface{}{"site.name": "x"})
	expectStatus(t, rr, http.StatusForbidden)

	rr = env.do(t, root, "PUT", "/api/v1/settings", map[string]interface{}{
		"site.name":   "Backoffice",
		"site.locale": "en",
	})
	expectStatus(t, rr, http.StatusOK)

	rr = env.do(t, adm, "GET", "/api/v1/settings", nil)
	expectStatus(t, rr, http.StatusOK)
	var list struct {
		Meta model.ResponseMeta `json:"meta"`
	}
	decodeBody(t, rr, &list)
	if list.Meta.Count != 2 {
		t.Errorf("settings count = %d, want 2", list.Meta.Count)
	}
}
