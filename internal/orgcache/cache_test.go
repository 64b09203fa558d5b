package orgcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/insightboard/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, error) {
	return "", errors.New("connection refused")
}
func (failingStore) Set(context.Context, string, string, time.Duration) error {
	return errors.New("connection refused")
}
func (failingStore) Delete(context.Context, ...string) error { return errors.New("connection refused") }

func sampleOrgs() []Organization {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return []Organization{
		{ID: "1", Name: "Acme", Slug: "acme", CreatedAt: now, UpdatedAt: now},
		{ID: "2", Name: "Globex", Slug: "globex", CreatedAt: now, UpdatedAt: now},
	}
}

func TestSaveThenLoad(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	store := NewMemoryStore(fake)
	cache := New(store, "42", WithClock(fake))

	cache.Save(ctx, sampleOrgs(), "2", "admin")

	loaded := cache.Load(ctx)
	require.NotNil(t, loaded)
	assert.Len(t, loaded.Organizations, 2)
	assert.Equal(t, "2", loaded.CurrentOrganizationID)
	assert.Equal(t, "admin", loaded.MemberRole)
	assert.Equal(t, fake.Now().UnixMilli(), loaded.CachedAt)
	assert.Equal(t, "2", cache.LegacySelection(ctx))
}

func TestLoadIsScopedPerUser(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	New(store, "1").Save(ctx, sampleOrgs(), "1", "owner")

	assert.Nil(t, New(store, "2").Load(ctx))
}

func TestLoadRejectsMalformedPayloads(t *testing.T) {
	ctx := context.Background()
	cases := map[string]string{
		"not_json":          "{organizations:",
		"missing_orgs":      `{"currentOrganizationId":"1"}`,
		"orgs_not_an_array": `{"organizations":{"id":"1"}}`,
		"null_orgs":         `{"organizations":null}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			store := NewMemoryStore(nil)
			require.NoError(t, store.Set(ctx, "user:7:"+CacheKey, raw, 0))
			assert.Nil(t, New(store, "7").Load(ctx))
		})
	}
}

func TestEmptyOrganizationListStillLoads(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	cache := New(store, "7")
	cache.Save(ctx, nil, "", "")

	loaded := cache.Load(ctx)
	require.NotNil(t, loaded)
	assert.Empty(t, loaded.Organizations)
	assert.Equal(t, "", cache.LegacySelection(ctx))
}

func TestSelectedOrganizationFallsBackToLegacyKey(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	require.NoError(t, store.Set(ctx, "user:7:"+CacheKey, `{"organizations":[{"id":"1"}],"currentOrganizationId":null}`, 0))
	require.NoError(t, store.Set(ctx, "user:7:"+LegacySelectionKey, "1", 0))

	cache := New(store, "7")
	assert.Equal(t, "1", cache.SelectedOrganizationID(ctx))

	cache.ClearSelection(ctx)
	assert.Equal(t, "", cache.SelectedOrganizationID(ctx))
}

func TestNilStoreIsNoop(t *testing.T) {
	ctx := context.Background()
	cache := New(nil, "7")
	cache.Save(ctx, sampleOrgs(), "1", "owner")
	assert.Nil(t, cache.Load(ctx))
	assert.Equal(t, "", cache.SelectedOrganizationID(ctx))
	cache.ClearSelection(ctx)

	var nilCache *Cache
	assert.Nil(t, nilCache.Load(ctx))
}

func TestStoreErrorsDegradeToAbsence(t *testing.T) {
	ctx := context.Background()
	cache := New(failingStore{}, "7")
	cache.Save(ctx, sampleOrgs(), "1", "owner")
	assert.Nil(t, cache.Load(ctx))
	assert.Equal(t, "", cache.SelectedOrganizationID(ctx))
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFakeClock(time.Now())
	store := NewMemoryStore(fake)
	require.NoError(t, store.Set(ctx, "k", "v", time.Minute))

	value, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)

	fake.Advance(time.Minute)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
	assert.Equal(t, 0, store.Len())
}

func TestProfileCacheExpiresAfterSevenDays(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFakeClock(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	profiles := NewProfileCache(NewMemoryStore(fake), fake)

	profiles.Set(ctx, "7", "https://cdn.example.com/a.png", "Ada")
	got, ok := profiles.Get(ctx, "7")
	require.True(t, ok)
	assert.Equal(t, "Ada", got.Name)

	fake.Advance(ProfileMaxAge - time.Second)
	_, ok = profiles.Get(ctx, "7")
	assert.True(t, ok)

	fake.Advance(time.Second)
	_, ok = profiles.Get(ctx, "7")
	assert.False(t, ok)
}

func TestProfileCacheEmptyURLClears(t *testing.T) {
	ctx := context.Background()
	profiles := NewProfileCache(NewMemoryStore(nil), nil)
	profiles.Set(ctx, "7", "https://cdn.example.com/a.png", "Ada")
	profiles.Set(ctx, "7", "", "Ada")

	_, ok := profiles.Get(ctx, "7")
	assert.False(t, ok)
}
