package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/faucetdb/backoffice/internal/config"
	"github.com/faucetdb/backoffice/internal/model"
	"github.com/faucetdb/backoffice/internal/permission"
)

// SettingsService exposes the platform settings table. Any administrator may
// read settings; writing requires the right to edit an admin, which only
// super_admin holds.
type SettingsService struct {
	store  *config.Store
	logger *slog.Logger
}

func NewSettingsService(store *config.Store, logger *slog.Logger) *SettingsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsService{store: store, logger: logger}
}

// List returns all settings, or only those in category when it is non-empty.
func (s *SettingsService) List(ctx context.Context, actor Actor, category string) ([]model.Setting, error) {
	if !permission.CanView(actor.Role) {
		return nil, ErrAuthorizationDenied
	}
	if category = strings.TrimSpace(category); category != "" {
		return s.store.ListSettingsByCategory(ctx, category)
	}
	return s.store.ListSettings(ctx)
}

// Update writes every key in values in a single transaction. Each value must
// be valid JSON.
func (s *SettingsService) Update(ctx context.Context, actor Actor, values map[string]json.RawMessage) error {
	if !permission.CanManage(actor.Role, permission.RoleAdmin, permission.ActionEdit) {
		return fmt.Errorf("%w: %s cannot change settings", ErrAuthorizationDenied, actor.Role)
	}
	if len(values) == 0 {
		return fmt.Errorf("%w: no settings supplied", ErrInvalidInput)
	}
	for k, v := range values {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("%w: empty setting key", ErrInvalidInput)
		}
		if !json.Valid(v) {
			return fmt.Errorf("%w: setting %q is not valid JSON", ErrInvalidInput, k)
		}
	}
	if err := s.store.SetSettings(ctx, values); err != nil {
		return err
	}
	s.logger.Info("settings updated", "actor", actor.IdentityID, "count", len(values))
	return nil
}
