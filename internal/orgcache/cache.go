package orgcache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/insightboard/internal/clock"
	"github.com/smallbiznis/insightboard/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	// CacheKey holds the full organization snapshot.
	CacheKey = "organization-cache"
	// LegacySelectionKey holds only the selected organization id and is kept
	// in sync with CacheKey for older clients.
	LegacySelectionKey = "currentOrganizationId"
)

type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedBy *string   `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrganizationCache is the persisted snapshot. It is never authoritative.
type OrganizationCache struct {
	Organizations         []Organization `json:"organizations"`
	CurrentOrganizationID string         `json:"currentOrganizationId,omitempty"`
	MemberRole            string         `json:"memberRole,omitempty"`
	CachedAt              int64          `json:"cachedAt"`
}

type wireCache struct {
	Organizations         *[]Organization `json:"organizations"`
	CurrentOrganizationID *string         `json:"currentOrganizationId"`
	MemberRole            *string         `json:"memberRole"`
	CachedAt              int64           `json:"cachedAt"`
}

// Cache reads and writes one user's organization snapshot. Every operation
// is a no-op when the store is nil, and no operation returns an error.
type Cache struct {
	store   Store
	scope   string
	clock   clock.Clock
	log     *zap.Logger
	metrics *metrics.ContextMetrics
}

type Option func(*Cache)

func WithMetrics(m *metrics.ContextMetrics) Option {
	return func(c *Cache) { c.metrics = m }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Cache) {
		if log != nil {
			c.log = log
		}
	}
}

func WithClock(cl clock.Clock) Option {
	return func(c *Cache) {
		if cl != nil {
			c.clock = cl
		}
	}
}

func New(store Store, userID string, opts ...Option) *Cache {
	c := &Cache{
		store: store,
		scope: "user:" + strings.TrimSpace(userID) + ":",
		clock: clock.SystemClock{},
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load returns the cached snapshot, or nil when it is absent, unreadable or
// not shaped like a snapshot.
func (c *Cache) Load(ctx context.Context) *OrganizationCache {
	if c == nil || c.store == nil {
		return nil
	}

	raw, err := c.store.Get(ctx, c.scope+CacheKey)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			c.metrics.IncCacheRead(metrics.CacheResultMiss)
		} else {
			c.metrics.IncCacheRead(metrics.CacheResultError)
			c.log.Debug("organization cache read failed", zap.Error(err))
		}
		return nil
	}

	var wire wireCache
	if err := json.Unmarshal([]byte(raw), &wire); err != nil || wire.Organizations == nil {
		c.metrics.IncCacheRead(metrics.CacheResultMalformed)
		return nil
	}

	out := &OrganizationCache{
		Organizations: *wire.Organizations,
		CachedAt:      wire.CachedAt,
	}
	if wire.CurrentOrganizationID != nil {
		out.CurrentOrganizationID = *wire.CurrentOrganizationID
	}
	if wire.MemberRole != nil {
		out.MemberRole = *wire.MemberRole
	}
	c.metrics.IncCacheRead(metrics.CacheResultHit)
	return out
}

// Save overwrites the snapshot and, when currentID is set, the legacy
// selection key.
func (c *Cache) Save(ctx context.Context, orgs []Organization, currentID, role string) {
	if c == nil || c.store == nil {
		return
	}
	if orgs == nil {
		orgs = []Organization{}
	}

	payload, err := json.Marshal(OrganizationCache{
		Organizations:         orgs,
		CurrentOrganizationID: currentID,
		MemberRole:            role,
		CachedAt:              c.clock.Now().UnixMilli(),
	})
	if err != nil {
		c.log.Warn("encode organization cache", zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, c.scope+CacheKey, string(payload), 0); err != nil {
		c.log.Warn("write organization cache", zap.Error(err))
		return
	}
	if currentID != "" {
		if err := c.store.Set(ctx, c.scope+LegacySelectionKey, currentID, 0); err != nil {
			c.log.Warn("write legacy organization selection", zap.Error(err))
		}
	}
}

// SelectedOrganizationID returns the persisted selection, preferring the
// snapshot over the legacy key.
func (c *Cache) SelectedOrganizationID(ctx context.Context) string {
	if c == nil || c.store == nil {
		return ""
	}
	if snapshot := c.Load(ctx); snapshot != nil && snapshot.CurrentOrganizationID != "" {
		return snapshot.CurrentOrganizationID
	}
	return c.LegacySelection(ctx)
}

// LegacySelection reads only the standalone selection key.
func (c *Cache) LegacySelection(ctx context.Context) string {
	if c == nil || c.store == nil {
		return ""
	}
	value, err := c.store.Get(ctx, c.scope+LegacySelectionKey)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}

func (c *Cache) ClearSelection(ctx context.Context) {
	if c == nil || c.store == nil {
		return
	}
	if err := c.store.Delete(ctx, c.scope+LegacySelectionKey); err != nil {
		c.log.Warn("clear organization selection", zap.Error(err))
	}
}
