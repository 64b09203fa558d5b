package permission

// NavItem is one entry of the dashboard sidebar.
type NavItem struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Path  string `json:"path"`
	Roles []Role `json:"-"`
}

var allRoles = []Role{RoleOwner, RoleAdmin, RoleMember, RoleViewer}

var navigation = []NavItem{
	{Key: "dashboard", Label: "Dashboard", Path: "/dashboard", Roles: allRoles},
	{Key: "users", Label: "Users", Path: "/dashboard/users", Roles: []Role{RoleOwner, RoleAdmin}},
	{Key: "reports", Label: "Reports", Path: "/dashboard/reports", Roles: allRoles},
	{Key: "activity", Label: "Activity", Path: "/dashboard/activity", Roles: allRoles},
	{Key: "integrations", Label: "Integrations", Path: "/dashboard/integrations", Roles: []Role{RoleOwner, RoleAdmin}},
	{Key: "billing", Label: "Billing", Path: "/dashboard/billing", Roles: []Role{RoleOwner, RoleAdmin, RoleMember}},
	{Key: "notifications", Label: "Notifications", Path: "/dashboard/notifications", Roles: allRoles},
	{Key: "settings", Label: "Settings", Path: "/dashboard/settings", Roles: []Role{RoleOwner}},
}

// Navigation returns every sidebar entry in display order.
func Navigation() []NavItem {
	out := make([]NavItem, len(navigation))
	copy(out, navigation)
	return out
}

// VisibleNav filters the sidebar for role. While the role is still unknown
// every entry is shown so the layout does not flicker during loading.
func VisibleNav(role Role) []NavItem {
	if role == RoleUnknown {
		return Navigation()
	}
	out := make([]NavItem, 0, len(navigation))
	for _, item := range navigation {
		if item.AllowedFor(role) {
			out = append(out, item)
		}
	}
	return out
}

func (n NavItem) AllowedFor(role Role) bool {
	for _, r := range n.Roles {
		if r == role {
			return true
		}
	}
	return false
}
