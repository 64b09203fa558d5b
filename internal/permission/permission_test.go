package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForDerivesCapabilities(t *testing.T) {
	cases := []struct {
		role Role
		want Capabilities
	}{
		{RoleOwner, Capabilities{IsOwner: true, IsAdmin: true, CanManageUsers: true, CanManageSettings: true}},
		{RoleAdmin, Capabilities{IsAdmin: true, CanManageUsers: true}},
		{RoleMember, Capabilities{}},
		{RoleViewer, Capabilities{}},
		{RoleUnknown, Capabilities{}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, For(tc.role), "role %q", tc.role)
	}
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleOwner, ParseRole(" Owner "))
	assert.Equal(t, RoleViewer, ParseRole("viewer"))
	assert.Equal(t, RoleUnknown, ParseRole("superuser"))
	assert.Equal(t, RoleUnknown, ParseRole(""))
}

func TestVisibleNavFailsOpenForUnknownRole(t *testing.T) {
	items := VisibleNav(RoleUnknown)
	require.Len(t, items, len(Navigation()))
}

func TestVisibleNavIsStrictForKnownRoles(t *testing.T) {
	keys := func(items []NavItem) []string {
		out := make([]string, 0, len(items))
		for _, item := range items {
			out = append(out, item.Key)
		}
		return out
	}

	assert.Equal(t,
		[]string{"dashboard", "users", "reports", "activity", "integrations", "billing", "notifications", "settings"},
		keys(VisibleNav(RoleOwner)))
	assert.Equal(t,
		[]string{"dashboard", "users", "reports", "activity", "integrations", "billing", "notifications"},
		keys(VisibleNav(RoleAdmin)))
	assert.Equal(t,
		[]string{"dashboard", "reports", "activity", "billing", "notifications"},
		keys(VisibleNav(RoleMember)))
	assert.Equal(t,
		[]string{"dashboard", "reports", "activity", "notifications"},
		keys(VisibleNav(RoleViewer)))
}

func TestInvitableRolesExcludeOwner(t *testing.T) {
	assert.False(t, IsInvitable(RoleOwner))
	assert.True(t, IsInvitable(RoleAdmin))
	assert.True(t, IsInvitable(RoleViewer))
	assert.False(t, IsInvitable(RoleUnknown))
}

func TestNavigationReturnsCopy(t *testing.T) {
	items := Navigation()
	items[0].Label = "changed"
	assert.Equal(t, "Dashboard", Navigation()[0].Label)
}
