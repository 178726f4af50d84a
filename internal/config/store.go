package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/faucetdb/backoffice/internal/model"
	"github.com/faucetdb/backoffice/internal/permission"
)

// Supported store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store persists identities, administrator records and settings. It is
// backed by SQLite by default and by PostgreSQL when configured.
type Store struct {
	db     *sqlx.DB
	driver string
}

// NewStore opens the SQLite store under dataDir. Pass empty string for
// in-memory.
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "backoffice.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	return Open(DriverSQLite, dsn)
}

// Open connects to the given driver ("sqlite" or "postgres") and runs
// migrations.
func Open(driver, dsn string) (*Store, error) {
	var sqlDriver string
	switch driver {
	case DriverSQLite, "":
		driver = DriverSQLite
		sqlDriver = "sqlite"
	case DriverPostgres:
		sqlDriver = "pgx"
	default:
		return nil, fmt.Errorf("unsupported store driver %q (available: sqlite, postgres)", driver)
	}

	db, err := sqlx.Connect(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store database: %w", err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

		// Enable foreign keys (off by default in SQLite).
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the store driver name.
func (s *Store) Driver() string {
	return s.driver
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// Identities
// ---------------------------------------------------------------------------

// CreateIdentity inserts a new identity. ID must already be set. CreatedAt
// and UpdatedAt are populated.
func (s *Store) CreateIdentity(ctx context.Context, id *model.Identity) error {
	now := time.Now().UTC()
	id.CreatedAt = now
	id.UpdatedAt = now

	const q = `INSERT INTO identities
		(id, email, password_hash, name, username, is_active, created_at, updated_at)
		VALUES
		(:id, :email, :password_hash, :name, :username, :is_active, :created_at, :updated_at)`

	if _, err := s.db.NamedExecContext(ctx, q, id); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("identity %s: %w", id.Email, ErrConflict)
		}
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

// GetIdentity returns an identity by ID.
func (s *Store) GetIdentity(ctx context.Context, id string) (*model.Identity, error) {
	var ident model.Identity
	if err := s.db.GetContext(ctx, &ident, s.db.Rebind("SELECT * FROM identities WHERE id = ?"), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return &ident, nil
}

// GetIdentityByEmail returns an identity by email address.
func (s *Store) GetIdentityByEmail(ctx context.Context, email string) (*model.Identity, error) {
	var ident model.Identity
	if err := s.db.GetContext(ctx, &ident, s.db.Rebind("SELECT * FROM identities WHERE email = ?"), email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get identity by email: %w", err)
	}
	return &ident, nil
}

// UpdateIdentityName sets the display name of an identity.
func (s *Store) UpdateIdentityName(ctx context.Context, id, name string) error {
	return s.execOne(ctx, "update identity name",
		"UPDATE identities SET name = ?, updated_at = ? WHERE id = ?", name, time.Now().UTC(), id)
}

// UpdateIdentityPassword replaces the password hash of an identity.
func (s *Store) UpdateIdentityPassword(ctx context.Context, id, hash string) error {
	return s.execOne(ctx, "update identity password",
		"UPDATE identities SET password_hash = ?, updated_at = ? WHERE id = ?", hash, time.Now().UTC(), id)
}

// UpdateIdentityLastLogin sets the last_login_at timestamp for an identity.
func (s *Store) UpdateIdentityLastLogin(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return s.execOne(ctx, "update identity last login",
		"UPDATE identities SET last_login_at = ?, updated_at = ? WHERE id = ?", now, now, id)
}

// DeleteIdentity removes an identity. Any administrator record that still
// references it is removed by the foreign key cascade.
func (s *Store) DeleteIdentity(ctx context.Context, id string) error {
	return s.execOne(ctx, "delete identity", "DELETE FROM identities WHERE id = ?", id)
}

// ---------------------------------------------------------------------------
// Administrators
// ---------------------------------------------------------------------------

const adminSelect = `SELECT a.id, a.user_id, a.role,
		COALESCE(i.email, '') AS email, COALESCE(i.name, '') AS name,
		a.created_at, a.updated_at
	FROM admins a
	LEFT JOIN identities i ON i.id = a.user_id`

// CreateAdmin inserts a new administrator record. The ID, CreatedAt, and
// UpdatedAt fields are populated after a successful insert.
func (s *Store) CreateAdmin(ctx context.Context, admin *model.Admin) error {
	if !admin.Role.Valid() {
		return fmt.Errorf("insert admin: unrecognized role %q", admin.Role)
	}
	now := time.Now().UTC()
	admin.CreatedAt = now
	admin.UpdatedAt = now

	q := s.db.Rebind(`INSERT INTO admins (user_id, role, created_at, updated_at)
		VALUES (?, ?, ?, ?) RETURNING id`)

	if err := s.db.GetContext(ctx, &admin.ID, q, admin.UserID, string(admin.Role), now, now); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("admin for identity %s: %w", admin.UserID, ErrConflict)
		}
		return fmt.Errorf("insert admin: %w", err)
	}
	return nil
}

// GetAdmin returns an administrator by ID.
func (s *Store) GetAdmin(ctx context.Context, id int64) (*model.Admin, error) {
	var admin model.Admin
	if err := s.db.GetContext(ctx, &admin, s.db.Rebind(adminSelect+" WHERE a.id = ?"), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get admin: %w", err)
	}
	return &admin, nil
}

// GetAdminByUserID returns the administrator record owned by an identity.
func (s *Store) GetAdminByUserID(ctx context.Context, userID string) (*model.Admin, error) {
	var admin model.Admin
	if err := s.db.GetContext(ctx, &admin, s.db.Rebind(adminSelect+" WHERE a.user_id = ?"), userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get admin by user id: %w", err)
	}
	return &admin, nil
}

// ListAdmins returns all administrators, newest first.
func (s *Store) ListAdmins(ctx context.Context) ([]model.Admin, error) {
	var admins []model.Admin
	if err := s.db.SelectContext(ctx, &admins, adminSelect+" ORDER BY a.created_at DESC, a.id DESC"); err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	return admins, nil
}

// HasAnyAdmin reports whether at least one administrator exists. This is
// used for first-run detection.
func (s *Store) HasAnyAdmin(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM admins"); err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	return count > 0, nil
}

// CountAdminsByRole returns the number of administrators holding role.
func (s *Store) CountAdminsByRole(ctx context.Context, role permission.Role) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, s.db.Rebind("SELECT COUNT(*) FROM admins WHERE role = ?"), string(role)); err != nil {
		return 0, fmt.Errorf("count admins by role: %w", err)
	}
	return count, nil
}

// UpdateAdminRole changes an administrator's role. Demoting the only
// remaining super_admin fails with ErrLastSuperAdmin.
func (s *Store) UpdateAdminRole(ctx context.Context, id int64, role permission.Role) error {
	if !role.Valid() {
		return fmt.Errorf("update admin role: unrecognized role %q", role)
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if role != permission.RoleSuperAdmin {
			if err := s.guardLastSuperAdmin(ctx, tx, id); err != nil {
				return err
			}
		}
		return execOneTx(ctx, tx, "update admin role",
			"UPDATE admins SET role = ?, updated_at = ? WHERE id = ?", string(role), time.Now().UTC(), id)
	})
}

// TouchAdmin refreshes an administrator's updated_at timestamp.
func (s *Store) TouchAdmin(ctx context.Context, id int64) error {
	return s.execOne(ctx, "touch admin", "UPDATE admins SET updated_at = ? WHERE id = ?", time.Now().UTC(), id)
}

// DeleteAdmin removes an administrator record. Deleting the only remaining
// super_admin fails with ErrLastSuperAdmin. The owning identity is left in
// place.
func (s *Store) DeleteAdmin(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.guardLastSuperAdmin(ctx, tx, id); err != nil {
			return err
		}
		return execOneTx(ctx, tx, "delete admin", "DELETE FROM admins WHERE id = ?", id)
	})
}

// guardLastSuperAdmin fails if admin id is a super_admin and no other
// super_admin exists. On PostgreSQL the super_admin rows stay locked until
// tx ends, so two concurrent demotions cannot both see a second super_admin.
// SQLite serializes transactions on its single connection.
func (s *Store) guardLastSuperAdmin(ctx context.Context, tx *sqlx.Tx, id int64) error {
	var ids []int64
	q := tx.Rebind("SELECT id FROM admins WHERE role = ? ORDER BY id" + s.lockClause())
	if err := tx.SelectContext(ctx, &ids, q, string(permission.RoleSuperAdmin)); err != nil {
		return fmt.Errorf("lock super admins: %w", err)
	}
	if len(ids) > 1 {
		return nil
	}
	if len(ids) == 1 && ids[0] == id {
		return ErrLastSuperAdmin
	}
	return nil
}

// CreateFirstAdmin inserts admin only if no administrator exists yet. The
// emptiness check and the insert share one transaction; on PostgreSQL the
// admins table is locked against concurrent writers for its duration.
func (s *Store) CreateFirstAdmin(ctx context.Context, admin *model.Admin) error {
	if !admin.Role.Valid() {
		return fmt.Errorf("insert admin: unrecognized role %q", admin.Role)
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if s.driver == DriverPostgres {
			if _, err := tx.ExecContext(ctx, "LOCK TABLE admins IN SHARE ROW EXCLUSIVE MODE"); err != nil {
				return fmt.Errorf("lock admins: %w", err)
			}
		}
		var count int
		if err := tx.GetContext(ctx, &count, "SELECT COUNT(*) FROM admins"); err != nil {
			return fmt.Errorf("count admins: %w", err)
		}
		if count > 0 {
			return ErrAdminsExist
		}

		now := time.Now().UTC()
		admin.CreatedAt = now
		admin.UpdatedAt = now
		q := tx.Rebind(`INSERT INTO admins (user_id, role, created_at, updated_at)
			VALUES (?, ?, ?, ?) RETURNING id`)
		if err := tx.GetContext(ctx, &admin.ID, q, admin.UserID, string(admin.Role), now, now); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("admin for identity %s: %w", admin.UserID, ErrConflict)
			}
			return fmt.Errorf("insert admin: %w", err)
		}
		return nil
	})
}

// AdminStats returns population counts. Recent counts administrators created
// within window of now.
func (s *Store) AdminStats(ctx context.Context, now time.Time, window time.Duration) (*model.AdminStats, error) {
	admins, err := s.ListAdmins(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := now.Add(-window)
	stats := &model.AdminStats{Total: len(admins)}
	for _, a := range admins {
		if !a.CreatedAt.Before(cutoff) {
			stats.Recent++
		}
		switch a.Role {
		case permission.RoleSuperAdmin:
			stats.SuperAdmins++
		case permission.RoleAdmin:
			stats.Admins++
		case permission.RoleModerator:
			stats.Moderators++
		}
	}
	return stats, nil
}

// ---------------------------------------------------------------------------
// Utility
// ---------------------------------------------------------------------------

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// lockClause returns the row-locking suffix for reads that feed a guarded
// write. SQLite has no row locks and needs none.
func (s *Store) lockClause() string {
	if s.driver == DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// execOne runs a write that must affect exactly one row.
func (s *Store) execOne(ctx context.Context, op, q string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(q), args...)
	return checkOne(op, result, err)
}

func execOneTx(ctx context.Context, tx *sqlx.Tx, op, q string, args ...interface{}) error {
	result, err := tx.ExecContext(ctx, tx.Rebind(q), args...)
	return checkOne(op, result, err)
}

func checkOne(op string, result sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
