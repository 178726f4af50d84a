package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/faucetdb/backoffice/internal/model"
)

// settingRow maps 1:1 to the settings table. Value is JSON text.
type settingRow struct {
	Key         string    `db:"key"`
	Value       string    `db:"value"`
	Category    string    `db:"category"`
	Description string    `db:"description"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r settingRow) toModel() model.Setting {
	value := json.RawMessage(r.Value)
	if !json.Valid(value) {
		// Legacy rows may hold bare strings.
		value, _ = json.Marshal(r.Value)
	}
	return model.Setting{
		Key:         r.Key,
		Value:       value,
		Category:    r.Category,
		Description: r.Description,
		UpdatedAt:   r.UpdatedAt,
	}
}

// ListSettings returns every setting ordered by category and key.
func (s *Store) ListSettings(ctx context.Context) ([]model.Setting, error) {
	var rows []settingRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM settings ORDER BY category, key"); err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return settingsFromRows(rows), nil
}

// ListSettingsByCategory returns the settings in one category.
func (s *Store) ListSettingsByCategory(ctx context.Context, category string) ([]model.Setting, error) {
	var rows []settingRow
	q := s.db.Rebind("SELECT * FROM settings WHERE category = ? ORDER BY key")
	if err := s.db.SelectContext(ctx, &rows, q, category); err != nil {
		return nil, fmt.Errorf("list settings by category: %w", err)
	}
	return settingsFromRows(rows), nil
}

// GetSetting returns a single setting by key.
func (s *Store) GetSetting(ctx context.Context, key string) (*model.Setting, error) {
	var row settingRow
	if err := s.db.GetContext(ctx, &row, s.db.Rebind("SELECT * FROM settings WHERE key = ?"), key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get setting: %w", err)
	}
	st := row.toModel()
	return &st, nil
}

const upsertSetting = `INSERT INTO settings (key, value, category, description, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

// SetSetting inserts or replaces a setting's value. Category and description
// are only written when the key is new.
func (s *Store) SetSetting(ctx context.Context, st model.Setting) error {
	if st.Key == "" {
		return fmt.Errorf("set setting: key is required")
	}
	if !json.Valid(st.Value) {
		return fmt.Errorf("set setting %s: value is not valid JSON", st.Key)
	}
	if st.Category == "" {
		st.Category = "general"
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(upsertSetting),
		st.Key, string(st.Value), st.Category, st.Description, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set setting %s: %w", st.Key, err)
	}
	return nil
}

// SetSettings writes several values in one transaction. Either every value
// is stored or none is.
func (s *Store) SetSettings(ctx context.Context, values map[string]json.RawMessage) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	q := tx.Rebind(upsertSetting)
	for key, value := range values {
		if !json.Valid(value) {
			return fmt.Errorf("set setting %s: value is not valid JSON", key)
		}
		if _, err := tx.ExecContext(ctx, q, key, string(value), "general", "", now); err != nil {
			return fmt.Errorf("set setting %s: %w", key, err)
		}
	}
	return tx.Commit()
}

func settingsFromRows(rows []settingRow) []model.Setting {
	out := make([]model.Setting, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out
}
