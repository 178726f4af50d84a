package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/faucetdb/backoffice/internal/identity"
	"github.com/faucetdb/backoffice/internal/model"
	"github.com/faucetdb/backoffice/internal/permission"
)

var (
	// ErrWrongPassword is returned when the current password supplied to
	// ChangePassword does not match.
	ErrWrongPassword = fmt.Errorf("%w: current password is incorrect", ErrInvalidInput)

	// ErrPasswordMismatch is returned when the new password and its
	// confirmation differ.
	ErrPasswordMismatch = fmt.Errorf("%w: new password and confirmation do not match", ErrInvalidInput)
)

// ProfileRequest changes the caller's own display name.
type ProfileRequest struct {
	Name string `json:"name"`
}

// PasswordChangeRequest changes the caller's own password.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// UpdateProfile sets the display name on the actor's own identity. It never
// touches the administrator record's role, so self-protection does not apply.
func (s *AdminService) UpdateProfile(ctx context.Context, actor Actor, req ProfileRequest) (*model.Admin, error) {
	if !permission.CanView(actor.Role) {
		return nil, ErrAuthorizationDenied
	}
	if err := s.idp.UpdateName(ctx, actor.IdentityID, req.Name); err != nil {
		return nil, fmt.Errorf("update name: %w", err)
	}
	if err := s.store.TouchAdmin(ctx, actor.AdminID); err != nil {
		return nil, err
	}
	s.logger.Info("profile updated", "actor", actor.IdentityID, "admin_id", actor.AdminID)
	return s.store.GetAdmin(ctx, actor.AdminID)
}

// ChangePassword replaces the actor's own password after re-checking the
// current one.
func (s *AdminService) ChangePassword(ctx context.Context, actor Actor, req PasswordChangeRequest) error {
	if !permission.CanView(actor.Role) {
		return ErrAuthorizationDenied
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return fmt.Errorf("%w: current and new password are required", ErrInvalidInput)
	}
	if req.NewPassword != req.ConfirmPassword {
		return ErrPasswordMismatch
	}

	err := s.idp.ChangePassword(ctx, actor.IdentityID, req.CurrentPassword, req.NewPassword)
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		s.logger.Warn("password change rejected", "actor", actor.IdentityID, "reason", "wrong current password")
		return ErrWrongPassword
	case errors.Is(err, identity.ErrWeakPassword):
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	case err != nil:
		return fmt.Errorf("change password: %w", err)
	}

	if err := s.store.TouchAdmin(ctx, actor.AdminID); err != nil {
		return err
	}
	s.logger.Info("password changed", "actor", actor.IdentityID, "admin_id", actor.AdminID)
	return nil
}
