package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/faucetdb/backoffice/internal/config"
	"github.com/faucetdb/backoffice/internal/identity"
	"github.com/faucetdb/backoffice/internal/model"
	"github.com/faucetdb/backoffice/internal/permission"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type adminEnv struct {
	store *config.Store
	idp   *recordingProvider
	svc   *AdminService
}

// recordingProvider wraps the store provider and counts calls so tests can
// assert that nothing was provisioned after a denial.
type recordingProvider struct {
	identity.Provider
	creates    int
	deletes    int
	failDelete error
}

func (p *recordingProvider) Create(ctx context.Context, in identity.NewIdentity) (*model.Identity, error) {
	p.creates++
	return p.Provider.Create(ctx, in)
}

func (p *recordingProvider) Delete(ctx context.Context, id string) error {
	p.deletes++
	if p.failDelete != nil {
		return p.failDelete
	}
	return p.Provider.Delete(ctx, id)
}

func newAdminEnv(t *testing.T) *adminEnv {
	t.Helper()
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	idp := &recordingProvider{Provider: identity.NewStoreProvider(store)}
	return &adminEnv{
		store: store,
		idp:   idp,
		svc:   NewAdminService(store, idp, discardLogger()),
	}
}

// seed creates an administrator directly through the store and returns the
// Actor for it.
func (e *adminEnv) seed(t *testing.T, email string, role permission.Role) Actor {
	t.Helper()
	ctx := context.Background()
	ident, err := identity.NewStoreProvider(e.store).Create(ctx, identity.NewIdentity{Email: email, Password: "password123"})
	if err != nil {
		t.Fatalf("seed identity %s: %v", email, err)
	}
	admin := &model.Admin{UserID: ident.ID, Role: role}
	if err := e.store.CreateAdmin(ctx, admin); err != nil {
		t.Fatalf("seed admin %s: %v", email, err)
	}
	return Actor{IdentityID: ident.ID, AdminID: admin.ID, Role: role}
}

func strPtr(s string) *string { return &s }

func TestResolveActor(t *testing.T) {
	env := newAdminEnv(t)
	ctx := context.Background()

	want := env.seed(t, "mod@example.com", permission.RoleModerator)
	got, err := env.svc.ResolveActor(ctx, want.IdentityID)
	if err != nil {
		t.Fatalf("ResolveActor: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}

	ident, err := env.idp.Create(ctx, identity.NewIdentity{Email: "plain@example.com", Password: "password123"})
	if err != nil {
		t.Fatalf("Create identity: %v", err)
	}
	if _, err := env.svc.ResolveActor(ctx, ident.ID); !errors.Is(err, ErrAuthorizationDenied) {
		t.Errorf("identity without record: got %v, want ErrAuthorizationDenied", err)
	}
	if _, err := env.svc.ResolveActor(ctx, ""); !errors.Is(err, ErrAuthorizationDenied) {
		t.Errorf("empty identity: got %v, want ErrAuthorizationDenied", err)
	}

	byEmail, err := env.svc.ResolveActorByEmail(ctx, " MOD@example.com")
	if err != nil {
		t.Fatalf("ResolveActorByEmail: %v", err)
	}
	if byEmail != want {
		t.Errorf("by email: got %+v, want %+v", byEmail, want)
	}
	if _, err := env.svc.ResolveActorByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrAuthorizationDenied) {
		t.Errorf("unknown email: got %v, want ErrAuthorizationDenied", err)
	}
}

func TestCreateScenarios(t *testing.T) {
	tests := []struct {
		name      string
		actorRole permission.Role
		target    string
		wantErr   error
		wantRole  permission.Role
	}{
		{"super_admin creates admin", permission.RoleSuperAdmin, "admin", nil, permission.RoleAdmin},
		{"super_admin creates super_admin", permission.RoleSuperAdmin, "super_admin", nil, permission.RoleSuperAdmin},
		{"super_admin creates moderator", permission.RoleSuperAdmin, "moderator", nil, permission.RoleModerator},
		{"admin creates moderator", permission.RoleAdmin, "moderator", nil, permission.RoleModerator},
		{"admin creates admin", permission.RoleAdmin, "admin", ErrAuthorizationDenied, ""},
		{"admin creates super_admin", permission.RoleAdmin, "super_admin", ErrAuthorizationDenied, ""},
		{"moderator creates moderator", permission.RoleModerator, "moderator", ErrAuthorizationDenied, ""},
		{"unrecognized target role", permission.RoleSuperAdmin, "owner", ErrAuthorizationDenied, ""},
		{"default role is admin", permission.RoleSuperAdmin, "", nil, permission.RoleAdmin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newAdminEnv(t)
			ctx := context.Background()
			actor := env.seed(t, "actor@example.com", tt.actorRole)

			admin, err := env.svc.Create(ctx, actor, CreateRequest{
				Email:    "new@example.com",
				Password: "password123",
				Name:     "New Person",
				Role:     tt.target,
			})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got %v, want %v", err, tt.wantErr)
				}
				if env.idp.creates != 0 {
					t.Errorf("identity provisioned after denial (%d creates)", env.idp.creates)
				}
				return
			}
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if admin.Role != tt.wantRole {
				t.Errorf("Role: got %q, want %q", admin.Role, tt.wantRole)
			}
			if admin.RoleLevel() != permission.Rank(tt.wantRole) {
				t.Errorf("RoleLevel: got %d, want %d", admin.RoleLevel(), permission.Rank(tt.wantRole))
			}
			if admin.Email != "new@example.com" || admin.Name != "New Person" {
				t.Errorf("joined identity fields: got %q / %q", admin.Email, admin.Name)
			}
		})
	}
}

func TestCreateInvalidInput(t *testing.T) {
	env := newAdminEnv(t)
	ctx := context.Background()
	actor := env.seed(t, "root@example.com", permission.RoleSuperAdmin)

	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"missing email", CreateRequest{Password: "password123"}},
		{"missing password", CreateRequest{Email: "x@example.com"}},
		{"short password", CreateRequest{Email: "x@example.com", Password: "short"}},
		{"bad email", CreateRequest{Email: "not-an-email", Password: "password123"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.svc.Create(ctx, actor, tt.req); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("got %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestCreateDuplicateEmail(t *testing.T) {
	env := newAdminEnv(t)
	ctx := context.Background()
	actor := env.seed(t, "root@example.com", permission.RoleSuperAdmin)

	_, err := env.svc.Create(ctx, actor, CreateRequest{Email: "root@example.com", Password: "password123"})
	if !errors.Is(err, config.ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}
}

func TestCreateRollsBackIdentity(t *testing.T) {
	env := newAdminEnv(t)
	ctx := context.Background()
	actor := env.seed(t, "root@example.com", permission.RoleSuperAdmin)

	fake := &stubProvider{ident: &model.Identity{ID: "orphan-id", Email: "orphan@example.com"}}
	svc := NewAdminService(env.store, fake, discardLogger())

	_, err := svc.Create(ctx, actor, CreateRequest{Email: "orphan@example.com", Password: "password123"})
	if err == nil {
		t.Fatal("expected admin insert to fail for an identity missing from the store")
	}
	if fake.deleted != "orphan-id" {
		t.Errorf("identity rollback: deleted %q, want %q", fake.deleted, "orphan-id")
	}
}

// stubProvider hands out an identity that does not exist in the store, so
// the admins.user_id foreign key rejects the record.
type stubProvider struct {
	identity.Provider
	ident      *model.Identity
	deleted    string
	failDelete error
}

func (p *stubProvider) Create(ctx context.Context, in identity.NewIdentity) (*model.Identity, error) {
	return p.ident, nil
}

func (p *stubProvider) Delete(ctx context.Context, id string) error {
	p.deleted = id
	return p.failDelete
}

func TestUpdateScenarios(t *testing.T) {
	tests := []struct {
		name       string
		actorRole  permission.Role
		targetRole permission.Role
		newRole    string
		wantErr    error
	}{
		{"super_admin promotes moderator to admin", permission.RoleSuperAdmin, permission.RoleModerator, "admin", nil},
		{"super_admin demotes admin to moderator", permission.RoleSuperAdmin, permission.RoleAdmin, "moderator", nil},
		{"admin promotes moderator to admin", permission.RoleAdmin, permission.RoleModerator, "admin", ErrAuthorizationDenied},
		{"admin edits moderator keeping role", permission.RoleAdmin, permission.RoleModerator, "moderator", nil},
		{"admin edits admin", permission.RoleAdmin, permission.RoleAdmin, "moderator", ErrAuthorizationDenied},
		{"admin edits super_admin", permission.RoleAdmin, permission.RoleSuperAdmin, "moderator", ErrAuthorizationDenied},
		{"moderator edits moderator", permission.RoleModerator, permission.RoleModerator, "moderator", ErrAuthorizationDenied},
		{"unrecognized new role", permission.RoleSuperAdmin, permission.RoleAdmin, "root", ErrAuthorizationDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newAdminEnv(t)
			ctx := context.Background()
			actor := env.seed(t, "actor@example.com", tt.actorRole)
			target := env.seed(t, "target@example.com", tt.targetRole)

			updated, err := env.svc.Update(ctx, actor, target.AdminID, UpdateRequest{Role: strPtr(tt.newRole)})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got %v, want %v", err, tt.wantErr)
				}
				got, gerr := env.store.GetAdmin(ctx, target.AdminID)
				if gerr != nil {
					t.Fatalf("GetAdmin: %v", gerr)
				}
				if got.Role != tt.targetRole {
					t.Errorf("role changed despite denial: %q", got.Role)
				}
				return
			}
			if err != nil {
				t.Fatalf("Update: %v", err)
			}
			if string(updated.Role) != tt.newRole {
				t.Errorf("Role: got %q, want %q", updated.Role, tt.newRole)
			}
		})
	}
}

func TestUpdateName(t *testing.T) {
	env := newAdminEnv(t)
	ctx := context.Background()
	actor := env.seed(t, "root@example.com", permission.RoleSuperAdmin)
	target := env.seed(t, "mod@example.com", permission.RoleModerator)

	updated, err := env.svc.Update(ctx, actor, target.AdminID, UpdateRequest{Name: strPtr("Renamed")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "Renamed" {
		t.Errorf("Name: got %q, want %q", updated.Name, "Renamed")
	}
	if updated.Role != permission.RoleModerator {
		t.Errorf("Role changed: %q", updated.Role)
	}

	if _, err := env.svc.Update(ctx, actor, target.AdminID, UpdateRequest{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty update: got %v, want ErrInvalidInput", err)
	}
	if _, err := env.svc.Update(ctx, actor, 9999, UpdateRequest{Name: strPtr("x")}); !errors.Is(err, config.ErrNotFound) {
		t.Errorf("missing admin: got %v, want ErrNotFound", err)
	}
}

// failingNameProvider rejects every rename.
type failingNameProvider struct {
	identity.Provider
}

func (p *failingNameProvider) UpdateName(ctx context.Context, id, name string) error {
	return errors.New("identity backend unavailable")
}

func TestUpdateNameFailureLeavesRoleUnchanged(t *testing.T) {
	env := newAdminEnv(t)
	ctx := context.Background()
	actor := env.seed(t, "root@example.com", permission.RoleSuperAdmin)
	target := env.seed(t, "mod@example.com", permission.RoleModerator)

	svc := NewAdminService(env.store, &failingNameProvider{Provider: identity.NewStoreProvider(env.store)}, discardLogger())
	_, err := svc.Update(ctx, actor, target.AdminID, UpdateRequest{Role: strPtr("admin"), Name: strPtr("Promoted")})
	if err == nil {
		t.Fatal("expected the name write to fail")
	}

	got, err := env.store.GetAdmin(ctx, target.AdminID)
	if err != nil {
		t.Fatalf("GetAdmin: %v", err)
	}
	if got.Role != permission.RoleModerator {
		t.Errorf("role committed although the update failed: %q", got.Role)
	}
}

func TestSelfProtection(t *testing.T) {
	for _, role := range permission.Roles() {
		t.Run(string(role), func(t *testing.T) {
			env := newAdminEnv(t)
			ctx := context.Background()
			actor := env.seed(t, "self@example.com", role)

			_, err := env.svc.Update(ctx, actor, actor.AdminID, UpdateRequest{Name: strPtr("Me")})
			if !errors.Is(err, ErrSelfModification) {
				t.Errorf("self update: got %v, want ErrSelfModification", err)
			}
			if !errors.Is(err, ErrAuthorizationDenied) {
				t.Errorf("self update should also match ErrAuthorizationDenied")
			}

			err = env.svc.Delete(ctx, actor, actor.AdminID)
			if !errors.Is(err, ErrSelfModification) {
				t.Errorf("self delete: got %v, want ErrSelfModification", err)
			}
			if _, gerr := env.store.GetAdmin(ctx, actor.AdminID); gerr != nil {
				t.Errorf("record removed despite denial: %v", gerr)
			}
		})
	}
}

func TestDeleteScenarios(t *testing.T) {
	tests := []struct {
		name       string
		actorRole  permission.Role
		targetRole permission.Role
		wantErr    error
	}{
		{"super_admin deletes admin", permission.RoleSuperAdmin, permission.RoleAdmin, nil},
		{"super_admin deletes moderator", permission.RoleSuperAdmin, permission.RoleModerator, nil},
		{"admin deletes moderator", permission.RoleAdmin, permission.RoleModerator, nil},
		{"admin deletes admin", permission.RoleAdmin, permission.RoleAdmin, ErrAuthorizationDenied},
		{"moderator deletes moderator", permission.RoleModerator, permission.RoleModerator, ErrAuthorizationDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newAdminEnv(t)
			ctx := context.Background()
			actor := env.seed(t, "actor@example.com", tt.actorRole)
			target := env.seed(t, "target@example.com", tt.targetRole)

			err := env.svc.Delete(ctx, actor, target.AdminID)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got %v, want %v", err, tt.wantErr)
				}
				if env.idp.deletes != 0 {
					t.Errorf("identity deleted after denial")
				}
				return
			}
			if err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := env.store.GetAdmin(ctx, target.AdminID); !errors.Is(err, config.ErrNotFound) {
				t.Errorf("admin still present: %v", err)
			}
			if _, err := env.store.GetIdentity(ctx, target.IdentityID); !errors.Is(err, config.ErrNotFound) {
				t.Errorf("identity still present: %v", err)
			}
		})
	}
}

func TestDeleteIdentityFailureIsNotSurfaced(t *testing.T) {
	env := newAdminEnv(t)
	ctx := context.Background()
	actor := env.seed(t, "root@example.com", permission.RoleSuperAdmin)
	target := env.seed(t, "mod@example.com", permission.RoleModerator)

	env.idp.failDelete = errors.New("provider unavailable")
	if err := env.svc.Delete(ctx, actor, target.AdminID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := env.store.GetAdmin(ctx, target.AdminID); !errors.Is(err, config.ErrNotFound) {
		t.Errorf("admin still present: %v", err)
	}
}

func TestLastSuperAdminGuard(t *testing.T) {
	env := newAdminEnv(t)
	ctx := context.Background()
	first := env.seed(t, "first@example.com", permission.RoleSuperAdmin)
	second := env.seed(t, "second@example.com", permission.RoleSuperAdmin)

	// Two super_admins: one may demote the other.
	if _, err := env.svc.Update(ctx, first, second.AdminID, UpdateRequest{Role: strPtr("admin")}); err != nil {
		t.Fatalf("demote second: %v", err)
	}

	// An actor resolved before its own record disappeared still holds
	// super_admin, but first is now the only one left.
	stale := Actor{IdentityID: "stale-identity", Role: permission.RoleSuperAdmin}
	if _, err := env.svc.Update(ctx, stale, first.AdminID, UpdateRequest{Role: strPtr("moderator")}); !errors.Is(err, ErrLastSuperAdmin) {
		t.Errorf("demote last super_admin: got %v, want ErrLastSuperAdmin", err)
	}
	if err := env.svc.Delete(ctx, stale, first.AdminID); !errors.Is(err, ErrLastSuperAdmin) {
		t.Errorf("delete last super_admin: got %v, want ErrLastSuperAdmin", err)
	}
	if env.idp.deletes != 0 {
		t.Errorf("identity deleted although the record was kept")
	}

	count, err := env.store.CountAdminsByRole(ctx, permission.RoleSuperAdmin)
	if err != nil {
		t.Fatalf("CountAdminsByRole: %v", err)
	}
	if count != 1 {
		t.Errorf("super_admin count: got %d, want 1", count)
	}
}

func TestListAndStats(t *testing.T) {
	env := newAdminEnv(t)
	ctx := context.Background()
	root := env.seed(t, "root@example.com", permission.RoleSuperAdmin)
	env.seed(t, "a@example.com", permission.RoleAdmin)
	mod := env.seed(t, "m@example.com", permission.RoleModerator)

	for _, actor := range []Actor{root, mod} {
		admins, err := env.svc.List(ctx, actor)
		if err != nil {
			t.Fatalf("List as %s: %v", actor.Role, err)
		}
		if len(admins) != 3 {
			t.Errorf("List as %s: got %d, want 3", actor.Role, len(admins))
		}
	}

	stats, err := env.svc.Stats(ctx, mod)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := model.AdminStats{Total: 3, Recent: 3, SuperAdmins: 1, Admins: 1, Moderators: 1}
	if *stats != want {
		t.Errorf("Stats: got %+v, want %+v", *stats, want)
	}

	unknown := Actor{IdentityID: "x", Role: permission.Role("guest")}
	if _, err := env.svc.List(ctx, unknown); !errors.Is(err, ErrAuthorizationDenied) {
		t.Errorf("List as unknown role: got %v, want ErrAuthorizationDenied", err)
	}
}

func TestBootstrap(t *testing.T) {
	env := newAdminEnv(t)
	ctx := context.Background()

	admin, err := env.svc.Bootstrap(ctx, "owner@example.com", "password123", "Owner")
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if admin.Role != permission.RoleSuperAdmin {
		t.Errorf("Role: got %q, want super_admin", admin.Role)
	}

	if _, err := env.svc.Bootstrap(ctx, "second@example.com", "password123", ""); !errors.Is(err, ErrAlreadyBootstrapped) {
		t.Errorf("second bootstrap: got %v, want ErrAlreadyBootstrapped", err)
	}
}

func TestBootstrap_Concurrent(t *testing.T) {
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	svc := NewAdminService(store, identity.NewStoreProvider(store), discardLogger())
	ctx := context.Background()

	const contenders = 4
	errs := make([]error, contenders)
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Bootstrap(ctx, fmt.Sprintf("owner%d@example.com", i), "password123", "")
		}(i)
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		switch {
		case err == nil:
			if winner >= 0 {
				t.Fatalf("both %d and %d bootstrapped", winner, i)
			}
			winner = i
		case !errors.Is(err, ErrAlreadyBootstrapped):
			t.Fatalf("contender %d: unexpected error %v", i, err)
		}
	}
	if winner < 0 {
		t.Fatal("no contender bootstrapped")
	}

	n, err := store.CountAdminsByRole(ctx, permission.RoleSuperAdmin)
	if err != nil {
		t.Fatalf("CountAdminsByRole: %v", err)
	}
	if n != 1 {
		t.Errorf("super_admin count = %d, want 1", n)
	}
	for i := 0; i < contenders; i++ {
		if i == winner {
			continue
		}
		if _, err := store.GetIdentityByEmail(ctx, fmt.Sprintf("owner%d@example.com", i)); !errors.Is(err, config.ErrNotFound) {
			t.Errorf("losing identity %d left behind: %v", i, err)
		}
	}
}

func TestBootstrap_RollbackFailureIsLogged(t *testing.T) {
	env := newAdminEnv(t)
	ctx := context.Background()

	var logs bytes.Buffer
	fake := &stubProvider{
		ident:      &model.Identity{ID: "orphan-id", Email: "orphan@example.com"},
		failDelete: errors.New("identity backend unavailable"),
	}
	svc := NewAdminService(env.store, fake, slog.New(slog.NewTextHandler(&logs, nil)))

	if _, err := svc.Bootstrap(ctx, "orphan@example.com", "password123", ""); err == nil {
		t.Fatal("expected bootstrap insert to fail for an identity missing from the store")
	}
	if fake.deleted != "orphan-id" {
		t.Errorf("identity rollback: deleted %q, want %q", fake.deleted, "orphan-id")
	}
	out := logs.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "orphan-id") {
		t.Errorf("rollback failure not logged at warn: %q", out)
	}
}

func TestSettingsService(t *testing.T) {
	env := newAdminEnv(t)
	ctx := context.Background()
	root := env.seed(t, "root@example.com", permission.RoleSuperAdmin)
	adm := env.seed(t, "a@example.com", permission.RoleAdmin)
	mod := env.seed(t, "m@example.com", permission.RoleModerator)
	svc := NewSettingsService(env.store, discardLogger())

	values := map[string]json.RawMessage{"site.name": json.RawMessage(`"Backoffice"`)}
	for _, actor := range []Actor{adm, mod} {
		if err := svc.Update(ctx, actor, values); !errors.Is(err, ErrAuthorizationDenied) {
			t.Errorf("Update as %s: got %v, want ErrAuthorizationDenied", actor.Role, err)
		}
	}
	if err := svc.Update(ctx, root, values); err != nil {
		t.Fatalf("Update as super_admin: %v", err)
	}
	if err := svc.Update(ctx, root, map[string]json.RawMessage{"bad": json.RawMessage(`{`)}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("invalid JSON: got %v, want ErrInvalidInput", err)
	}

	settings, err := svc.List(ctx, mod, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(settings) != 1 || settings[0].Key != "site.name" {
		t.Errorf("List: got %+v", settings)
	}
}
