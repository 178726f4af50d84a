// Package identity is the boundary to the login-account provider. The admin
// service provisions and removes identities through Provider; the permission
// authority never touches it.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/faucetdb/backoffice/internal/config"
	"github.com/faucetdb/backoffice/internal/model"
)

// MinPasswordLength is the shortest password Create accepts.
const MinPasswordLength = 8

const bcryptCost = 10

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrInvalidEmail       = errors.New("invalid email address")
)

// NewIdentity carries the material needed to provision a login account.
type NewIdentity struct {
	Email    string
	Password string
	Name     string
}

// Provider manages login accounts.
type Provider interface {
	Create(ctx context.Context, in NewIdentity) (*model.Identity, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*model.Identity, error)
	UpdateName(ctx context.Context, id, name string) error
	Authenticate(ctx context.Context, email, password string) (*model.Identity, error)
	ChangePassword(ctx context.Context, id, current, next string) error
}

// StoreProvider keeps identities in the backoffice store.
type StoreProvider struct {
	store *config.Store
}

// NewStoreProvider returns a Provider backed by store.
func NewStoreProvider(store *config.Store) *StoreProvider {
	return &StoreProvider{store: store}
}

// Create hashes the password and inserts a new active identity. A duplicate
// email surfaces as config.ErrConflict.
func (p *StoreProvider) Create(ctx context.Context, in NewIdentity) (*model.Identity, error) {
	email := NormalizeEmail(in.Email)
	if !validEmail(email) {
		return nil, ErrInvalidEmail
	}
	if len(in.Password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	ident := &model.Identity{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(in.Name),
		Username:     usernameFromEmail(email),
		IsActive:     true,
	}
	if err := p.store.CreateIdentity(ctx, ident); err != nil {
		return nil, err
	}
	return ident, nil
}

// Delete removes an identity.
func (p *StoreProvider) Delete(ctx context.Context, id string) error {
	return p.store.DeleteIdentity(ctx, id)
}

// Get returns an identity by ID.
func (p *StoreProvider) Get(ctx context.Context, id string) (*model.Identity, error) {
	return p.store.GetIdentity(ctx, id)
}

// UpdateName sets the display name of an identity.
func (p *StoreProvider) UpdateName(ctx context.Context, id, name string) error {
	return p.store.UpdateIdentityName(ctx, id, strings.TrimSpace(name))
}

// Authenticate checks an email/password pair. Unknown emails, inactive
// accounts and wrong passwords all return ErrInvalidCredentials.
func (p *StoreProvider) Authenticate(ctx context.Context, email, password string) (*model.Identity, error) {
	ident, err := p.store.GetIdentityByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !ident.IsActive || !CheckPassword(password, ident.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return ident, nil
}

// ChangePassword verifies current against the stored hash and replaces it
// with a hash of next. A wrong current password returns
// ErrInvalidCredentials and leaves the stored hash untouched.
func (p *StoreProvider) ChangePassword(ctx context.Context, id, current, next string) error {
	ident, err := p.store.GetIdentity(ctx, id)
	if err != nil {
		return err
	}
	if !ident.IsActive || !CheckPassword(current, ident.PasswordHash) {
		return ErrInvalidCredentials
	}
	if len(next) < MinPasswordLength {
		return ErrWeakPassword
	}

	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	return p.store.UpdateIdentityPassword(ctx, id, hash)
}

// HashPassword creates a bcrypt hash of a password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a password with its bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t")
}

func usernameFromEmail(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}
