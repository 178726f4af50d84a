package permission

// Reason explains a Decision.
type Reason string

const (
	ReasonAllowed Reason = "ok"
	ReasonSelf    Reason = "self"
	ReasonRole    Reason = "role"
)

// Decision is the outcome of a combined self-protection and role check.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Subject identifies one side of a management check: the identity that owns
// an administrator record and the role that record holds.
type Subject struct {
	IdentityID string
	Role       Role
}

// IsSelf reports whether actor and target refer to the same identity. Empty
// identities never match.
func IsSelf(actorIdentity, targetIdentity string) bool {
	return actorIdentity != "" && actorIdentity == targetIdentity
}

// CanModify applies the self-protection rule and then CanManage. Both must
// pass for an edit or delete to proceed. Self-protection is evaluated first
// so a super_admin acting on their own record reports ReasonSelf.
func CanModify(actor, target Subject, action Action) Decision {
	if (action == ActionEdit || action == ActionDelete || action == "update") &&
		IsSelf(actor.IdentityID, target.IdentityID) {
		return Decision{Reason: ReasonSelf}
	}
	if !CanManage(actor.Role, target.Role, action) {
		return Decision{Reason: ReasonRole}
	}
	return Decision{Allowed: true, Reason: ReasonAllowed}
}

// Capabilities summarizes what an actor may do, for rendering decisions.
type Capabilities struct {
	CanView         bool   `json:"can_view"`
	CanCreate       bool   `json:"can_create"`
	AssignableRoles []Role `json:"assignable_roles"`
}

// CapabilitiesFor builds the Capabilities summary for actor.
func CapabilitiesFor(actor Role) Capabilities {
	roles := AssignableRoles(actor)
	return Capabilities{
		CanView:         CanView(actor),
		CanCreate:       len(roles) > 0,
		AssignableRoles: roles,
	}
}
