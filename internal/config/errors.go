package config

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when a requested resource does not exist in the store.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("already exists")

	// ErrLastSuperAdmin is returned when a write would leave no super_admin.
	ErrLastSuperAdmin = errors.New("cannot remove the last super_admin")

	// ErrAdminsExist is returned by CreateFirstAdmin once any administrator exists.
	ErrAdminsExist = errors.New("administrators already exist")
)

// isUniqueViolation matches the unique constraint messages of the supported
// drivers (SQLite and PostgreSQL).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique constraint") ||
		strings.Contains(lower, "duplicate key")
}
