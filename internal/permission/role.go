// Package permission derives UI capabilities and navigation from an
// organization role. Server-side enforcement lives in the authorization
// package and never relies on these helpers.
package permission

import "strings"

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"

	// RoleUnknown means the role has not been resolved yet.
	RoleUnknown Role = ""
)

// ParseRole normalizes raw into a known role or RoleUnknown.
func ParseRole(raw string) Role {
	switch role := Role(strings.ToLower(strings.TrimSpace(raw))); role {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
		return role
	default:
		return RoleUnknown
	}
}

func (r Role) Valid() bool {
	return ParseRole(string(r)) != RoleUnknown
}

func (r Role) String() string { return string(r) }

// Capabilities are the derived flags exposed alongside the organization context.
type Capabilities struct {
	IsOwner           bool `json:"is_owner"`
	IsAdmin           bool `json:"is_admin"`
	CanManageUsers    bool `json:"can_manage_users"`
	CanManageSettings bool `json:"can_manage_settings"`
}

// For is strict: an unknown role has no capabilities.
func For(role Role) Capabilities {
	isOwner := role == RoleOwner
	isAdmin := role == RoleAdmin || isOwner
	return Capabilities{
		IsOwner:           isOwner,
		IsAdmin:           isAdmin,
		CanManageUsers:    isAdmin,
		CanManageSettings: isOwner,
	}
}

// CanManagePlan reports whether role may activate or change the plan.
func CanManagePlan(role Role) bool {
	return For(role).IsAdmin
}

// InvitableRoles lists roles that can be granted through an invitation.
// Ownership is never transferred by invite.
func InvitableRoles() []Role {
	return []Role{RoleAdmin, RoleMember, RoleViewer}
}

func IsInvitable(role Role) bool {
	for _, r := range InvitableRoles() {
		if r == role {
			return true
		}
	}
	return false
}
