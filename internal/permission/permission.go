// Package permission decides which administrative actions an administrator
// may take against another administrator account. Every function here is a
// pure lookup: no I/O, no shared mutable state, and no errors. Unrecognized
// roles and actions degrade to "no privilege".
package permission

import "strings"

// Role is one of the three administrator privilege tiers.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleModerator  Role = "moderator"
)

// Action is a management operation on an administrator account.
type Action string

const (
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionView   Action = "view"
)

// ranks mirrors the role order for display and sorting. It is never consulted
// by CanManage.
var ranks = map[Role]int{
	RoleSuperAdmin: 3,
	RoleAdmin:      2,
	RoleModerator:  1,
}

type rolePair struct {
	actor  Role
	target Role
}

var manageAll = []Action{ActionCreate, ActionEdit, ActionDelete}

// manageTable is the complete management policy. A pair that is absent grants
// nothing. Adding a role means adding rows here explicitly.
var manageTable = map[rolePair][]Action{
	{RoleSuperAdmin, RoleSuperAdmin}: manageAll,
	{RoleSuperAdmin, RoleAdmin}:      manageAll,
	{RoleSuperAdmin, RoleModerator}:  manageAll,
	{RoleAdmin, RoleModerator}:       manageAll,
}

// assignable lists, in rank order, the roles each actor may grant.
var assignable = map[Role][]Role{
	RoleSuperAdmin: {RoleSuperAdmin, RoleAdmin, RoleModerator},
	RoleAdmin:      {RoleModerator},
}

// Roles returns the closed role set ordered from highest to lowest rank.
func Roles() []Role {
	return []Role{RoleSuperAdmin, RoleAdmin, RoleModerator}
}

// ParseRole normalizes s and reports whether it names a recognized role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	_, ok := ranks[r]
	return r, ok
}

// Valid reports whether r is one of the recognized roles.
func (r Role) Valid() bool {
	_, ok := ranks[r]
	return ok
}

// Rank returns 3, 2 or 1 for super_admin, admin and moderator, and 0 for
// anything else.
func Rank(r Role) int {
	return ranks[r]
}

// ParseAction normalizes s. "update" is accepted as an alias for edit.
func ParseAction(s string) (Action, bool) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if a == "update" {
		a = ActionEdit
	}
	switch a {
	case ActionCreate, ActionEdit, ActionDelete, ActionView:
		return a, true
	}
	return a, false
}

// CanManage reports whether actor may perform action (create, edit or
// delete) on an administrator holding target.
func CanManage(actor, target Role, action Action) bool {
	if action == "update" {
		action = ActionEdit
	}
	for _, a := range manageTable[rolePair{actor, target}] {
		if a == action {
			return true
		}
	}
	return false
}

// CanView reports whether actor may see the administrator list. Every
// recognized role can.
func CanView(actor Role) bool {
	return actor.Valid()
}

// CanPerform extends CanManage with the view action.
func CanPerform(actor, target Role, action Action) bool {
	if action == ActionView {
		return CanView(actor)
	}
	return CanManage(actor, target, action)
}

// AssignableRoles returns the roles actor may grant, highest rank first. The
// result is a fresh slice and is empty for moderators and unknown roles.
func AssignableRoles(actor Role) []Role {
	roles := assignable[actor]
	out := make([]Role, len(roles))
	copy(out, roles)
	return out
}

// CanAssign reports whether role is among AssignableRoles(actor).
func CanAssign(actor, role Role) bool {
	for _, r := range assignable[actor] {
		if r == role {
			return true
		}
	}
	return false
}

// Grant lists the management actions one role holds over another.
type Grant struct {
	Actor   Role     `json:"actor"`
	Target  Role     `json:"target"`
	Actions []Action `json:"actions"`
}

// Matrix expands the management table over every (actor, target) pair of
// recognized roles, highest ranks first. Pairs with no actions are included
// with an empty Actions slice.
func Matrix() []Grant {
	roles := Roles()
	out := make([]Grant, 0, len(roles)*len(roles))
	for _, actor := range roles {
		for _, target := range roles {
			g := Grant{Actor: actor, Target: target, Actions: []Action{}}
			for _, a := range manageAll {
				if CanManage(actor, target, a) {
					g.Actions = append(g.Actions, a)
				}
			}
			out = append(out, g)
		}
	}
	return out
}
