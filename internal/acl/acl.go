// Package acl maps roles to the actions they may perform. The policy is a
// table built once at startup and consulted per action; call sites never
// compare role strings themselves.
package acl

import "fmt"

type Role string

const (
	RoleUser       Role = "user"
	RoleModerator  Role = "moderator"
	RoleSuperAdmin Role = "super_admin"
)

// Roles lists every known role, lowest privilege first.
func Roles() []Role {
	return []Role{RoleUser, RoleModerator, RoleSuperAdmin}
}

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleSuperAdmin:
		return true
	}
	return false
}

// ParseRole converts a stored or configured role name.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

type Action string

const (
	ActionMessageSubmit    Action = "message.submit"
	ActionMessageReview    Action = "message.review"
	ActionMessageDeleteAny Action = "message.delete_any"
	ActionMessageViewQueue Action = "message.view_queue"
	ActionBanManage        Action = "ban.manage"
	ActionBanView          Action = "ban.view"
	ActionUserRoleUpdate   Action = "user.role.update"
	ActionAuditView        Action = "audit.view"
	ActionAuditInternal    Action = "audit.view_internal"
)

// RoleAnonymous is the pseudo-role of unauthenticated callers. It is not a
// stored role and cannot be assigned to an account.
const RoleAnonymous Role = ""

// Policy is an immutable role → allowed-actions table.
type Policy struct {
	grants map[Role]map[Action]struct{}
}

// NewPolicy builds a policy from a role → actions table.
func NewPolicy(table map[Role][]Action) *Policy {
	p := &Policy{grants: make(map[Role]map[Action]struct{}, len(table))}
	for role, actions := range table {
		set := make(map[Action]struct{}, len(actions))
		for _, a := range actions {
			set[a] = struct{}{}
		}
		p.grants[role] = set
	}
	return p
}

// DefaultPolicy is the production table: moderation and ban administration
// need moderator or above; role changes and audit internals are reserved
// for super_admin.
func DefaultPolicy() *Policy {
	moderator := []Action{
		ActionMessageSubmit,
		ActionMessageReview,
		ActionMessageDeleteAny,
		ActionMessageViewQueue,
		ActionBanManage,
		ActionBanView,
	}
	superAdmin := append(append([]Action{}, moderator...),
		ActionUserRoleUpdate,
		ActionAuditView,
		ActionAuditInternal,
	)
	return NewPolicy(map[Role][]Action{
		RoleAnonymous:  {ActionMessageSubmit},
		RoleUser:       {ActionMessageSubmit},
		RoleModerator:  moderator,
		RoleSuperAdmin: superAdmin,
	})
}

// Can reports whether role may perform action. Unknown roles are denied.
func (p *Policy) Can(role Role, action Action) bool {
	set, ok := p.grants[role]
	if !ok {
		return false
	}
	_, ok = set[action]
	return ok
}

// Actions returns the actions granted to role.
func (p *Policy) Actions(role Role) []Action {
	set := p.grants[role]
	out := make([]Action, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	return out
}
