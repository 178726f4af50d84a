package config

import "fmt"

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS identities (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		username TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1,
		last_login_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS admins (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT UNIQUE NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
		role TEXT NOT NULL CHECK (role IN ('super_admin', 'admin', 'moderator')),
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL DEFAULT 'null',
		category TEXT NOT NULL DEFAULT 'general',
		description TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_admins_role ON admins(role)`,
	`CREATE INDEX IF NOT EXISTS idx_settings_category ON settings(category)`,
}

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS identities (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		username TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_login_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS admins (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT UNIQUE NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
		role TEXT NOT NULL CHECK (role IN ('super_admin', 'admin', 'moderator')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL DEFAULT 'null',
		category TEXT NOT NULL DEFAULT 'general',
		description TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_admins_role ON admins(role)`,
	`CREATE INDEX IF NOT EXISTS idx_settings_category ON settings(category)`,
}

func (s *Store) migrate() error {
	migrations := sqliteMigrations
	if s.driver == DriverPostgres {
		migrations = postgresMigrations
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
