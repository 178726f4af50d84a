package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/faucetdb/backoffice/internal/config"
	"github.com/faucetdb/backoffice/internal/identity"
	"github.com/faucetdb/backoffice/internal/model"
	"github.com/faucetdb/backoffice/internal/permission"
)

var (
	// ErrAuthorizationDenied is returned when the acting administrator's role
	// does not permit the requested operation. Unrecognized roles end here too.
	ErrAuthorizationDenied = errors.New("authorization denied")

	// ErrSelfModification is returned when an administrator tries to edit or
	// delete their own record. It matches ErrAuthorizationDenied.
	ErrSelfModification = fmt.Errorf("%w: administrators cannot modify their own record", ErrAuthorizationDenied)

	// ErrLastSuperAdmin is returned when a write would leave no super_admin.
	ErrLastSuperAdmin = config.ErrLastSuperAdmin

	// ErrInvalidInput is returned for missing or malformed request fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadyBootstrapped is returned by Bootstrap once any administrator exists.
	ErrAlreadyBootstrapped = config.ErrAdminsExist
)

// RecentWindow is how far back AdminStats looks when counting recent
// administrators.
const RecentWindow = 30 * 24 * time.Hour

// Actor is the administrator on whose behalf an operation runs. It is always
// passed explicitly; nothing in this package reads an ambient session.
type Actor struct {
	IdentityID string
	AdminID    int64
	Role       permission.Role
}

func (a Actor) subject() permission.Subject {
	return permission.Subject{IdentityID: a.IdentityID, Role: a.Role}
}

// CreateRequest describes a new administrator. An empty Role means admin.
type CreateRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

// UpdateRequest carries the fields to change. Nil fields are left alone.
type UpdateRequest struct {
	Role *string `json:"role,omitempty"`
	Name *string `json:"name,omitempty"`
}

// AdminService orchestrates administrator lifecycle operations. Every write
// is checked against the permission authority before anything is persisted.
type AdminService struct {
	store  *config.Store
	idp    identity.Provider
	logger *slog.Logger
	now    func() time.Time
}

func NewAdminService(store *config.Store, idp identity.Provider, logger *slog.Logger) *AdminService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminService{
		store:  store,
		idp:    idp,
		logger: logger,
		now:    time.Now,
	}
}

// ResolveActor loads the administrator record owned by identityID. An
// identity with no record is not an administrator and is denied.
func (s *AdminService) ResolveActor(ctx context.Context, identityID string) (Actor, error) {
	if identityID == "" {
		return Actor{}, ErrAuthorizationDenied
	}
	admin, err := s.store.GetAdminByUserID(ctx, identityID)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return Actor{}, fmt.Errorf("%w: not an administrator", ErrAuthorizationDenied)
		}
		return Actor{}, err
	}
	if !admin.Role.Valid() {
		return Actor{}, fmt.Errorf("%w: unrecognized role %q", ErrAuthorizationDenied, admin.Role)
	}
	return Actor{IdentityID: admin.UserID, AdminID: admin.ID, Role: admin.Role}, nil
}

// ResolveActorByEmail resolves the administrator owning the identity with
// the given email. Used by local tooling that acts as a named administrator.
func (s *AdminService) ResolveActorByEmail(ctx context.Context, email string) (Actor, error) {
	ident, err := s.store.GetIdentityByEmail(ctx, identity.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return Actor{}, fmt.Errorf("%w: no identity for %s", ErrAuthorizationDenied, email)
		}
		return Actor{}, err
	}
	return s.ResolveActor(ctx, ident.ID)
}

// List returns all administrators, newest first.
func (s *AdminService) List(ctx context.Context, actor Actor) ([]model.Admin, error) {
	if !permission.CanView(actor.Role) {
		return nil, ErrAuthorizationDenied
	}
	return s.store.ListAdmins(ctx)
}

// Get returns a single administrator.
func (s *AdminService) Get(ctx context.Context, actor Actor, id int64) (*model.Admin, error) {
	if !permission.CanView(actor.Role) {
		return nil, ErrAuthorizationDenied
	}
	return s.store.GetAdmin(ctx, id)
}

// Stats summarizes the administrator population.
func (s *AdminService) Stats(ctx context.Context, actor Actor) (*model.AdminStats, error) {
	if !permission.CanView(actor.Role) {
		return nil, ErrAuthorizationDenied
	}
	return s.store.AdminStats(ctx, s.now(), RecentWindow)
}

// Create provisions an identity and an administrator record for it. The
// authority check runs before anything is provisioned. If the record cannot
// be written the identity is removed again.
func (s *AdminService) Create(ctx context.Context, actor Actor, req CreateRequest) (*model.Admin, error) {
	role := permission.RoleAdmin
	if strings.TrimSpace(req.Role) != "" {
		r, ok := permission.ParseRole(req.Role)
		if !ok {
			s.denied("create", actor, 0, permission.Role(req.Role))
			return nil, fmt.Errorf("%w: unrecognized role %q", ErrAuthorizationDenied, req.Role)
		}
		role = r
	}

	if !permission.CanManage(actor.Role, role, permission.ActionCreate) {
		s.denied("create", actor, 0, role)
		return nil, fmt.Errorf("%w: %s cannot create %s", ErrAuthorizationDenied, actor.Role, role)
	}

	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	ident, err := s.idp.Create(ctx, identity.NewIdentity{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		if errors.Is(err, identity.ErrInvalidEmail) || errors.Is(err, identity.ErrWeakPassword) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return nil, fmt.Errorf("create identity: %w", err)
	}

	admin := &model.Admin{UserID: ident.ID, Role: role}
	if err := s.store.CreateAdmin(ctx, admin); err != nil {
		if derr := s.idp.Delete(ctx, ident.ID); derr != nil {
			s.logger.Warn("failed to roll back identity after admin insert error",
				"identity_id", ident.ID, "error", derr)
		}
		return nil, fmt.Errorf("create admin: %w", err)
	}

	s.logger.Info("admin created",
		"actor", actor.IdentityID, "actor_role", actor.Role,
		"admin_id", admin.ID, "role", role, "email", ident.Email)

	return s.store.GetAdmin(ctx, admin.ID)
}

// Update changes an administrator's role and/or display name. The actor
// must be allowed to edit the target's current role, and a new role must be
// one the actor can assign. Every check runs before the first write. The
// name is written before the role; if the role write is then refused (for
// example by the last-super_admin guard) the new name stays in place and the
// refusal is returned.
func (s *AdminService) Update(ctx context.Context, actor Actor, id int64, req UpdateRequest) (*model.Admin, error) {
	if req.Role == nil && req.Name == nil {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}

	target, err := s.store.GetAdmin(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.authorize(actor, target, permission.ActionEdit); err != nil {
		return nil, err
	}

	newRole := target.Role
	if req.Role != nil {
		r, ok := permission.ParseRole(*req.Role)
		if !ok {
			s.denied("update", actor, id, permission.Role(*req.Role))
			return nil, fmt.Errorf("%w: unrecognized role %q", ErrAuthorizationDenied, *req.Role)
		}
		if r != target.Role && !permission.CanAssign(actor.Role, r) {
			s.denied("update", actor, id, r)
			return nil, fmt.Errorf("%w: %s cannot assign %s", ErrAuthorizationDenied, actor.Role, r)
		}
		newRole = r
	}

	if req.Name != nil {
		if err := s.idp.UpdateName(ctx, target.UserID, *req.Name); err != nil {
			return nil, fmt.Errorf("update name: %w", err)
		}
		if err := s.store.TouchAdmin(ctx, id); err != nil {
			return nil, err
		}
	}

	if newRole != target.Role {
		if err := s.store.UpdateAdminRole(ctx, id, newRole); err != nil {
			return nil, err
		}
	}

	updated, err := s.store.GetAdmin(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("admin updated",
		"actor", actor.IdentityID, "actor_role", actor.Role,
		"admin_id", id, "old_role", target.Role, "role", updated.Role)
	return updated, nil
}

// Delete removes an administrator record and then its identity. A failure
// to remove the identity is logged and not returned; the record is gone.
func (s *AdminService) Delete(ctx context.Context, actor Actor, id int64) error {
	target, err := s.store.GetAdmin(ctx, id)
	if err != nil {
		return err
	}

	if err := s.authorize(actor, target, permission.ActionDelete); err != nil {
		return err
	}

	if err := s.store.DeleteAdmin(ctx, id); err != nil {
		return err
	}

	if err := s.idp.Delete(ctx, target.UserID); err != nil && !errors.Is(err, config.ErrNotFound) {
		s.logger.Warn("admin deleted but identity cleanup failed",
			"admin_id", id, "identity_id", target.UserID, "error", err)
	}

	s.logger.Info("admin deleted",
		"actor", actor.IdentityID, "actor_role", actor.Role,
		"admin_id", id, "role", target.Role, "email", target.Email)
	return nil
}

// Bootstrap creates the first super_admin. It refuses once any administrator
// exists, so it can only ever seed an empty store. Concurrent calls race on
// the store insert and exactly one wins; the losers remove their identity.
func (s *AdminService) Bootstrap(ctx context.Context, email, password, name string) (*model.Admin, error) {
	exists, err := s.store.HasAnyAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyBootstrapped
	}

	ident, err := s.idp.Create(ctx, identity.NewIdentity{Email: email, Password: password, Name: name})
	if err != nil {
		if errors.Is(err, identity.ErrInvalidEmail) || errors.Is(err, identity.ErrWeakPassword) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return nil, fmt.Errorf("create identity: %w", err)
	}

	admin := &model.Admin{UserID: ident.ID, Role: permission.RoleSuperAdmin}
	if err := s.store.CreateFirstAdmin(ctx, admin); err != nil {
		if derr := s.idp.Delete(ctx, ident.ID); derr != nil {
			s.logger.Warn("failed to roll back identity after bootstrap insert error",
				"identity_id", ident.ID, "error", derr)
		}
		if errors.Is(err, config.ErrAdminsExist) {
			return nil, ErrAlreadyBootstrapped
		}
		return nil, fmt.Errorf("create admin: %w", err)
	}

	s.logger.Info("bootstrap super_admin created", "admin_id", admin.ID, "email", ident.Email)
	return s.store.GetAdmin(ctx, admin.ID)
}

// authorize applies self-protection and then the role table.
func (s *AdminService) authorize(actor Actor, target *model.Admin, action permission.Action) error {
	d := permission.CanModify(actor.subject(),
		permission.Subject{IdentityID: target.UserID, Role: target.Role}, action)
	if d.Allowed {
		return nil
	}
	s.denied(string(action), actor, target.ID, target.Role)
	if d.Reason == permission.ReasonSelf {
		return ErrSelfModification
	}
	return fmt.Errorf("%w: %s cannot %s %s", ErrAuthorizationDenied, actor.Role, action, target.Role)
}

func (s *AdminService) denied(op string, actor Actor, targetID int64, targetRole permission.Role) {
	s.logger.Warn("admin operation denied",
		"op", op, "actor", actor.IdentityID, "actor_role", actor.Role,
		"admin_id", targetID, "target_role", targetRole)
}
