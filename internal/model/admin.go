package model

import (
	"time"

	"github.com/faucetdb/backoffice/internal/permission"
)

// Admin is a staff account record granting an identity one administrator
// role. The identity itself (credentials, email) lives in the identity
// provider; Email and Name here are joined in for display.
type Admin struct {
	ID        int64           `json:"id" db:"id"`
	UserID    string          `json:"user_id" db:"user_id"`
	Role      permission.Role `json:"role" db:"role"`
	Email     string          `json:"email" db:"email"`
	Name      string          `json:"name" db:"name"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// RoleLevel is derived from Role on every read and is never persisted.
func (a *Admin) RoleLevel() int {
	return permission.Rank(a.Role)
}

// AdminStats summarizes the administrator population.
type AdminStats struct {
	Total       int `json:"total_admins"`
	Recent      int `json:"recent_admins"`
	SuperAdmins int `json:"super_admins"`
	Admins      int `json:"admins"`
	Moderators  int `json:"moderators"`
}
