package orgcontext

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	"github.com/smallbiznis/insightboard/internal/clock"
	"github.com/smallbiznis/insightboard/internal/notify"
	orgdomain "github.com/smallbiznis/insightboard/internal/organization/domain"
	"github.com/smallbiznis/insightboard/internal/orgcache"
	"github.com/smallbiznis/insightboard/internal/orgcontext/mocks"
	"github.com/smallbiznis/insightboard/internal/permission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUser snowflake.ID = 77

var errBackendDown = errors.New("backend unavailable")

func membership(id, name string, role permission.Role) orgdomain.MembershipResponse {
	return orgdomain.MembershipResponse{
		Organization: orgdomain.OrganizationResponse{ID: id, Name: name, Slug: name},
		Role:         role,
	}
}

func cachedOrgs() []orgcache.Organization {
	return []orgcache.Organization{
		{ID: "100", Name: "Acme", Slug: "acme"},
		{ID: "200", Name: "Globex", Slug: "globex"},
	}
}

type fixture struct {
	ctrl   *gomock.Controller
	source *mocks.MockMembershipSource
	store  *orgcache.MemoryStore
	clock  *clock.FakeClock
}

func newFixture(t *testing.T) fixture {
	ctrl := gomock.NewController(t)
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	return fixture{
		ctrl:   ctrl,
		source: mocks.NewMockMembershipSource(ctrl),
		store:  orgcache.NewMemoryStore(fake),
		clock:  fake,
	}
}

func (f fixture) cache() *orgcache.Cache {
	return orgcache.New(f.store, testUser.String(), orgcache.WithClock(f.clock))
}

func (f fixture) provider(ctx context.Context) *Provider {
	return New(ctx, testUser, f.source, f.cache(), WithClock(f.clock))
}

func TestNewSeedsFromCacheWithoutFetching(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cache().Save(ctx, cachedOrgs(), "200", "admin")

	// No expectations on the source: seeding must not touch it.
	p := f.provider(ctx)
	snap := p.Snapshot()

	assert.Equal(t, StateHydratedFromCache, snap.State)
	assert.False(t, snap.IsLoading)
	require.NotNil(t, snap.CurrentOrganization)
	assert.Equal(t, "200", snap.CurrentOrganization.ID)
	assert.Equal(t, permission.RoleAdmin, snap.MemberRole)
	assert.True(t, snap.Capabilities().CanManageUsers)
	assert.False(t, snap.Capabilities().CanManageSettings)
	assert.Len(t, snap.Organizations, 2)
}

func TestNewWithoutCacheStartsLoading(t *testing.T) {
	f := newFixture(t)
	p := f.provider(context.Background())
	snap := p.Snapshot()

	assert.Equal(t, StateUninitialized, snap.State)
	assert.True(t, snap.IsLoading)
	assert.Nil(t, snap.CurrentOrganization)
	assert.Empty(t, snap.Organizations)
	assert.Equal(t, permission.RoleUnknown, snap.MemberRole)
}

func TestNewFallsBackToFirstCachedOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cache().Save(ctx, cachedOrgs(), "999", "owner")

	snap := f.provider(ctx).Snapshot()
	require.NotNil(t, snap.CurrentOrganization)
	assert.Equal(t, "100", snap.CurrentOrganization.ID)
	assert.Equal(t, permission.RoleUnknown, snap.MemberRole, "cached role belongs to another organization")
}

func TestReconcileKeepsPersistedSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cache().Save(ctx, cachedOrgs(), "200", "viewer")

	f.source.EXPECT().ListMemberships(gomock.Any(), testUser).Return([]orgdomain.MembershipResponse{
		membership("100", "Acme", permission.RoleMember),
		membership("200", "Globex", permission.RoleOwner),
		membership("300", "Initech", permission.RoleViewer),
	}, nil)

	p := f.provider(ctx)
	require.NoError(t, p.Reconcile(ctx))

	snap := p.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Len(t, snap.Organizations, 3)
	assert.Equal(t, "200", snap.CurrentOrganizationID())
	assert.Equal(t, permission.RoleOwner, snap.MemberRole, "role comes from the fresh fetch")

	saved := f.cache().Load(ctx)
	require.NotNil(t, saved)
	assert.Len(t, saved.Organizations, 3)
	assert.Equal(t, "owner", saved.MemberRole)
	assert.Equal(t, "200", f.cache().LegacySelection(ctx))
}

func TestReconcileSelectsFirstWhenSelectionGone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cache().Save(ctx, cachedOrgs(), "200", "admin")

	f.source.EXPECT().ListMemberships(gomock.Any(), testUser).Return([]orgdomain.MembershipResponse{
		membership("100", "Acme", permission.RoleViewer),
	}, nil)

	p := f.provider(ctx)
	require.NoError(t, p.Reconcile(ctx))

	snap := p.Snapshot()
	assert.Equal(t, "100", snap.CurrentOrganizationID())
	assert.Equal(t, permission.RoleViewer, snap.MemberRole)
	assert.Equal(t, "100", f.cache().SelectedOrganizationID(ctx))
}

func TestReconcileWithNoMembershipsClearsSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cache().Save(ctx, cachedOrgs(), "100", "owner")

	f.source.EXPECT().ListMemberships(gomock.Any(), testUser).Return(nil, nil)

	p := f.provider(ctx)
	require.NoError(t, p.Reconcile(ctx))

	snap := p.Snapshot()
	assert.Nil(t, snap.CurrentOrganization)
	assert.Equal(t, permission.RoleUnknown, snap.MemberRole)
	assert.Empty(t, snap.Organizations)
	assert.False(t, snap.IsLoading)
	assert.Empty(t, f.cache().SelectedOrganizationID(ctx))
}

func TestReconcileFailureKeepsCachedData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cache().Save(ctx, cachedOrgs(), "100", "member")

	f.source.EXPECT().ListMemberships(gomock.Any(), testUser).Return(nil, errBackendDown)

	p := f.provider(ctx)
	err := p.Reconcile(ctx)
	assert.ErrorIs(t, err, errBackendDown)

	snap := p.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.False(t, snap.IsLoading)
	assert.Equal(t, "100", snap.CurrentOrganizationID())
	assert.Equal(t, permission.RoleMember, snap.MemberRole)
	assert.Empty(t, p.Notices(), "stale data is served silently")
}

func TestReconcileFailureWithoutCacheRaisesNotice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.source.EXPECT().ListMemberships(gomock.Any(), testUser).Return(nil, errBackendDown)

	p := f.provider(ctx)
	require.Error(t, p.Reconcile(ctx))

	snap := p.Snapshot()
	assert.False(t, snap.IsLoading)
	assert.Empty(t, snap.Organizations)

	notices := p.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, notify.LevelError, notices[0].Level)
	assert.Equal(t, NoticeLoadFailed, notices[0].Message)
}

func TestReconcileFailureWithEmptyCacheEntryStaysQuiet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cache().Save(ctx, []orgcache.Organization{}, "", "")

	f.source.EXPECT().ListMemberships(gomock.Any(), testUser).Return(nil, errBackendDown)

	p := f.provider(ctx)
	assert.Equal(t, StateUninitialized, p.Snapshot().State)
	require.Error(t, p.Reconcile(ctx))

	snap := p.Snapshot()
	assert.False(t, snap.IsLoading)
	assert.Empty(t, snap.Organizations)
	assert.Empty(t, p.Notices(), "a persisted empty list is still a cache entry")
}

func TestRefreshForcesLoadingWhileInFlight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cache().Save(ctx, cachedOrgs(), "100", "owner")

	p := f.provider(ctx)
	release := make(chan struct{})
	observed := make(chan Snapshot, 1)
	f.source.EXPECT().ListMemberships(gomock.Any(), testUser).DoAndReturn(
		func(context.Context, snowflake.ID) ([]orgdomain.MembershipResponse, error) {
			observed <- p.Snapshot()
			<-release
			return []orgdomain.MembershipResponse{membership("100", "Acme", permission.RoleOwner)}, nil
		})

	done := make(chan error, 1)
	go func() { done <- p.Refresh(ctx) }()

	inFlight := <-observed
	assert.True(t, inFlight.IsLoading)
	assert.Equal(t, StateReconciling, inFlight.State)
	close(release)

	require.NoError(t, <-done)
	assert.False(t, p.Snapshot().IsLoading)
}

func TestStaleReconcileIsDiscarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.provider(ctx)
	slowStarted := make(chan struct{})
	releaseSlow := make(chan struct{})

	gomock.InOrder(
		f.source.EXPECT().ListMemberships(gomock.Any(), testUser).DoAndReturn(
			func(context.Context, snowflake.ID) ([]orgdomain.MembershipResponse, error) {
				close(slowStarted)
				<-releaseSlow
				return []orgdomain.MembershipResponse{membership("100", "Stale Org", permission.RoleViewer)}, nil
			}),
		f.source.EXPECT().ListMemberships(gomock.Any(), testUser).Return(
			[]orgdomain.MembershipResponse{membership("200", "Fresh Org", permission.RoleAdmin)}, nil),
	)

	slow := make(chan error, 1)
	go func() { slow <- p.Reconcile(ctx) }()
	<-slowStarted

	require.NoError(t, p.Refresh(ctx))
	close(releaseSlow)
	assert.ErrorIs(t, <-slow, ErrStaleResult)

	snap := p.Snapshot()
	assert.Equal(t, "200", snap.CurrentOrganizationID())
	assert.Equal(t, permission.RoleAdmin, snap.MemberRole)
	require.Len(t, snap.Organizations, 1)
	assert.Equal(t, "Fresh Org", snap.Organizations[0].Name)
}

func TestSwitchToUnknownOrganizationLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cache().Save(ctx, cachedOrgs(), "100", "owner")

	p := f.provider(ctx)
	before := p.Snapshot()

	err := p.Switch(ctx, "999")
	assert.ErrorIs(t, err, ErrOrganizationNotFound)

	after := p.Snapshot()
	assert.Equal(t, before.CurrentOrganizationID(), after.CurrentOrganizationID())
	assert.Equal(t, before.MemberRole, after.MemberRole)

	notices := p.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, NoticeNotFound, notices[0].Message)
}

func TestSwitchRefetchesRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cache().Save(ctx, cachedOrgs(), "100", "owner")

	// The cached list says nothing about the role in Globex; it is read fresh.
	f.source.EXPECT().GetMemberRole(gomock.Any(), snowflake.ID(200), testUser).Return(permission.RoleViewer, nil)

	p := f.provider(ctx)
	require.NoError(t, p.Switch(ctx, "200"))

	snap := p.Snapshot()
	assert.Equal(t, "200", snap.CurrentOrganizationID())
	assert.Equal(t, permission.RoleViewer, snap.MemberRole)
	assert.False(t, snap.Capabilities().IsAdmin)

	assert.Equal(t, "200", f.cache().SelectedOrganizationID(ctx))
	assert.Equal(t, "200", f.cache().LegacySelection(ctx))

	notices := p.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, notify.LevelSuccess, notices[0].Level)
	assert.Equal(t, "Switched to Globex", notices[0].Message)
}

func TestSwitchRoleLookupFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cache().Save(ctx, cachedOrgs(), "100", "owner")

	f.source.EXPECT().GetMemberRole(gomock.Any(), snowflake.ID(200), testUser).Return(permission.RoleUnknown, orgdomain.ErrNotMember)

	p := f.provider(ctx)
	assert.ErrorIs(t, p.Switch(ctx, "200"), orgdomain.ErrNotMember)
	assert.Equal(t, "100", p.Snapshot().CurrentOrganizationID())
	assert.Equal(t, NoticeSwitchFailed, p.Notices()[0].Message)
}

func TestClosedProviderIgnoresLateResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.provider(ctx)
	started := make(chan struct{})
	release := make(chan struct{})
	f.source.EXPECT().ListMemberships(gomock.Any(), testUser).DoAndReturn(
		func(context.Context, snowflake.ID) ([]orgdomain.MembershipResponse, error) {
			close(started)
			<-release
			return []orgdomain.MembershipResponse{membership("100", "Acme", permission.RoleOwner)}, nil
		})

	result := make(chan error, 1)
	go func() { result <- p.Reconcile(ctx) }()
	<-started
	p.Close()
	close(release)

	assert.ErrorIs(t, <-result, ErrClosed)
	assert.Empty(t, p.Snapshot().Organizations)
	assert.Nil(t, f.cache().Load(ctx), "nothing persisted after close")
	assert.ErrorIs(t, p.Switch(ctx, "100"), ErrClosed)
}

func TestProviderWorksWithoutStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.source.EXPECT().ListMemberships(gomock.Any(), testUser).Return([]orgdomain.MembershipResponse{
		membership("100", "Acme", permission.RoleOwner),
		membership("200", "Globex", permission.RoleMember),
	}, nil).Times(2)
	f.source.EXPECT().GetMemberRole(gomock.Any(), snowflake.ID(200), testUser).Return(permission.RoleMember, nil)

	p := New(ctx, testUser, f.source, orgcache.New(nil, testUser.String()))
	require.NoError(t, p.Reconcile(ctx))
	require.NoError(t, p.Switch(ctx, "200"))
	require.NoError(t, p.Refresh(ctx))

	assert.Equal(t, "200", p.Snapshot().CurrentOrganizationID(), "selection survives refresh in memory")
}
