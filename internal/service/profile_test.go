package service

import (
	"context"
	"errors"
	"testing"

	"github.com/faucetdb/backoffice/internal/identity"
	"github.com/faucetdb/backoffice/internal/permission"
)

func TestUpdateProfile(t *testing.T) {
	env := newAdminEnv(t)
	ctx := context.Background()

	// Every tier may rename itself, including a moderator that cannot edit
	// any administrator record.
	for _, role := range permission.Roles() {
		t.Run(string(role), func(t *testing.T) {
			actor := env.seed(t, string(role)+"-profile@example.com", role)
			got, err := env.svc.UpdateProfile(ctx, actor, ProfileRequest{Name: "  Renamed "})
			if err != nil {
				t.Fatalf("UpdateProfile: %v", err)
			}
			if got.Name != "Renamed" {
				t.Errorf("Name: got %q, want %q", got.Name, "Renamed")
			}
			if got.Role != role {
				t.Errorf("Role changed: got %s, want %s", got.Role, role)
			}
		})
	}

	if _, err := env.svc.UpdateProfile(ctx, Actor{Role: "owner"}, ProfileRequest{Name: "x"}); !errors.Is(err, ErrAuthorizationDenied) {
		t.Errorf("unknown role: got %v, want ErrAuthorizationDenied", err)
	}
}

func TestChangePassword(t *testing.T) {
	env := newAdminEnv(t)
	ctx := context.Background()
	actor := env.seed(t, "mod@example.com", permission.RoleModerator)

	tests := []struct {
		name    string
		req     PasswordChangeRequest
		wantErr error
	}{
		{"missing current", PasswordChangeRequest{NewPassword: "new-password", ConfirmPassword: "new-password"}, ErrInvalidInput},
		{"confirm mismatch", PasswordChangeRequest{CurrentPassword: "password123", NewPassword: "new-password", ConfirmPassword: "new-passw0rd"}, ErrPasswordMismatch},
		{"wrong current", PasswordChangeRequest{CurrentPassword: "nope", NewPassword: "new-password", ConfirmPassword: "new-password"}, ErrWrongPassword},
		{"weak new", PasswordChangeRequest{CurrentPassword: "password123", NewPassword: "short", ConfirmPassword: "short"}, ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.svc.ChangePassword(ctx, actor, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected %v to match ErrInvalidInput", err)
			}
		})
	}

	idp := identity.NewStoreProvider(env.store)
	if _, err := idp.Authenticate(ctx, "mod@example.com", "password123"); err != nil {
		t.Fatalf("password changed by a rejected request: %v", err)
	}

	err := env.svc.ChangePassword(ctx, actor, PasswordChangeRequest{
		CurrentPassword: "password123",
		NewPassword:     "brand-new-pass",
		ConfirmPassword: "brand-new-pass",
	})
	if err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := idp.Authenticate(ctx, "mod@example.com", "password123"); !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Errorf("old password: got %v, want ErrInvalidCredentials", err)
	}
	if _, err := idp.Authenticate(ctx, "mod@example.com", "brand-new-pass"); err != nil {
		t.Errorf("new password: %v", err)
	}
}
