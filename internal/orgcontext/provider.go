// Package orgcontext tracks, per user, which organizations they belong to and
// which one is selected. State is seeded from the organization cache so the
// first read never waits on the database, then reconciled against it.
package orgcontext

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/insightboard/internal/audit/domain"
	"github.com/smallbiznis/insightboard/internal/clock"
	"github.com/smallbiznis/insightboard/internal/notify"
	"github.com/smallbiznis/insightboard/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/insightboard/internal/organization/domain"
	"github.com/smallbiznis/insightboard/internal/orgcache"
	"github.com/smallbiznis/insightboard/internal/permission"
	"go.uber.org/zap"
)

const (
	NoticeLoadFailed   = "Failed to load organizations"
	NoticeNotFound     = "Organization not found"
	NoticeSwitchFailed = "Failed to switch organization"
)

var (
	ErrOrganizationNotFound = errors.New("organization_not_found")
	ErrStaleResult          = errors.New("stale_result")
	ErrClosed               = errors.New("provider_closed")
)

type Option func(*Provider)

func WithLogger(log *zap.Logger) Option {
	return func(p *Provider) {
		if log != nil {
			p.log = log
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(p *Provider) {
		if c != nil {
			p.clock = c
		}
	}
}

func WithInbox(inbox *notify.Inbox) Option {
	return func(p *Provider) { p.inbox = inbox }
}

func WithMetrics(m *metrics.Metrics, cm *metrics.ContextMetrics) Option {
	return func(p *Provider) {
		p.metrics = m
		p.contextMetrics = cm
	}
}

func WithAudit(audit auditdomain.Service) Option {
	return func(p *Provider) { p.audit = audit }
}

// Provider owns one user's organization context. Reads are lock-free; state
// transitions are serialized by mu.
type Provider struct {
	userID snowflake.ID
	source MembershipSource
	cache  *orgcache.Cache
	inbox  *notify.Inbox

	log            *zap.Logger
	clock          clock.Clock
	metrics        *metrics.Metrics
	contextMetrics *metrics.ContextMetrics
	audit          auditdomain.Service

	mu       sync.Mutex
	issued   uint64
	snapshot atomic.Pointer[Snapshot]
	closed   atomic.Bool
}

// New seeds the provider from cache before returning. It never calls source.
func New(ctx context.Context, userID snowflake.ID, source MembershipSource, cache *orgcache.Cache, opts ...Option) *Provider {
	p := &Provider{
		userID: userID,
		source: source,
		cache:  cache,
		log:    zap.NewNop(),
		clock:  clock.SystemClock{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox == nil {
		p.inbox = notify.NewInbox(0, p.clock.Now)
	}
	p.log = p.log.With(zap.String("user_id", userID.String()))
	p.snapshot.Store(p.seed(ctx))
	return p
}

func (p *Provider) seed(ctx context.Context) *Snapshot {
	cached := p.cache.Load(ctx)
	if cached == nil || len(cached.Organizations) == 0 {
		return &Snapshot{
			State:         StateUninitialized,
			Organizations: []orgcache.Organization{},
			IsLoading:     true,
		}
	}

	snap := &Snapshot{
		State:         StateHydratedFromCache,
		Organizations: append([]orgcache.Organization(nil), cached.Organizations...),
	}
	selected := cached.CurrentOrganizationID
	if selected == "" {
		selected = p.cache.LegacySelection(ctx)
	}
	current := snap.find(selected)
	if current != nil && current.ID == cached.CurrentOrganizationID {
		snap.MemberRole = permission.ParseRole(cached.MemberRole)
	}
	if current == nil {
		first := snap.Organizations[0]
		current = &first
	}
	snap.CurrentOrganization = current
	return snap
}

func (p *Provider) UserID() snowflake.ID { return p.userID }

func (p *Provider) Snapshot() Snapshot {
	return *p.snapshot.Load()
}

// Notices drains notices raised since the previous call.
func (p *Provider) Notices() []notify.Notice {
	return p.inbox.Drain()
}

// Reconcile replaces the seeded or previous state with a fresh fetch.
func (p *Provider) Reconcile(ctx context.Context) error {
	return p.reconcile(ctx, false)
}

// Refresh is Reconcile with the loading flag forced on while it runs.
func (p *Provider) Refresh(ctx context.Context) error {
	return p.reconcile(ctx, true)
}

func (p *Provider) reconcile(ctx context.Context, force bool) error {
	if p.closed.Load() {
		return ErrClosed
	}
	gen := p.begin(force)

	started := time.Now()
	memberships, err := p.source.ListMemberships(ctx, p.userID)
	p.contextMetrics.ObserveReconcileDuration(time.Since(started))

	// An entry that exists but lists no organizations still counts as cached.
	cached := err != nil && p.cache.Load(ctx) != nil

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Load() {
		p.contextMetrics.IncReconcile(metrics.ReconcileOutcomeAfterClose)
		return ErrClosed
	}
	if gen != p.issued {
		p.contextMetrics.IncReconcile(metrics.ReconcileOutcomeDiscarded)
		p.log.Debug("discarding stale reconcile result", zap.Uint64("generation", gen), zap.Uint64("latest", p.issued))
		return ErrStaleResult
	}

	current := p.snapshot.Load()
	if err != nil {
		p.contextMetrics.IncWorkflowError("reconcile", err)
		next := *current
		next.State = StateReady
		next.IsLoading = false
		next.Generation = gen
		if cached || len(current.Organizations) > 0 {
			p.contextMetrics.IncReconcile(metrics.ReconcileOutcomeKeptCache)
			p.log.Debug("reconcile failed, serving cached organizations", zap.Error(err))
		} else {
			p.contextMetrics.IncReconcile(metrics.ReconcileOutcomeFailed)
			p.inbox.Error(NoticeLoadFailed)
			p.log.Warn("reconcile failed", zap.Error(err))
		}
		p.snapshot.Store(&next)
		return err
	}

	p.snapshot.Store(p.settle(ctx, current, memberships, gen))
	p.contextMetrics.IncReconcile(metrics.ReconcileOutcomeSuccess)
	return nil
}

func (p *Provider) begin(force bool) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.issued++
	next := *p.snapshot.Load()
	next.State = StateReconciling
	next.IsLoading = force || next.IsLoading
	next.Generation = p.issued
	p.snapshot.Store(&next)
	return p.issued
}

// settle must be called with mu held.
func (p *Provider) settle(ctx context.Context, previous *Snapshot, memberships []orgdomain.MembershipResponse, gen uint64) *Snapshot {
	next := &Snapshot{
		State:         StateReady,
		Organizations: make([]orgcache.Organization, 0, len(memberships)),
		Generation:    gen,
	}
	roles := make(map[string]permission.Role, len(memberships))
	for _, m := range memberships {
		next.Organizations = append(next.Organizations, orgcache.Organization{
			ID:        m.Organization.ID,
			Name:      m.Organization.Name,
			Slug:      m.Organization.Slug,
			CreatedBy: m.Organization.CreatedBy,
			CreatedAt: m.Organization.CreatedAt,
			UpdatedAt: m.Organization.UpdatedAt,
		})
		roles[m.Organization.ID] = m.Role
	}

	selected := p.cache.SelectedOrganizationID(ctx)
	if selected == "" {
		selected = previous.CurrentOrganizationID()
	}
	current := next.find(selected)
	if current == nil && len(next.Organizations) > 0 {
		first := next.Organizations[0]
		current = &first
	}

	if current == nil {
		p.cache.Save(ctx, next.Organizations, "", "")
		p.cache.ClearSelection(ctx)
		return next
	}

	next.CurrentOrganization = current
	next.MemberRole = roles[current.ID]
	p.cache.Save(ctx, next.Organizations, current.ID, string(next.MemberRole))
	return next
}

// Switch selects orgID after re-reading the caller's role for it. An id
// outside the loaded list leaves the state untouched.
func (p *Provider) Switch(ctx context.Context, orgID string) error {
	if p.closed.Load() {
		return ErrClosed
	}

	target := p.Snapshot().find(strings.TrimSpace(orgID))
	if target == nil {
		return p.switchNotFound(ctx)
	}
	id, err := snowflake.ParseString(target.ID)
	if err != nil {
		return p.switchNotFound(ctx)
	}

	role, err := p.source.GetMemberRole(ctx, id, p.userID)
	if err != nil {
		p.inbox.Error(NoticeSwitchFailed)
		p.metrics.RecordOrgSwitch(ctx, "failed")
		p.contextMetrics.IncWorkflowError("switch_organization", err)
		return err
	}

	p.mu.Lock()
	if p.closed.Load() {
		p.mu.Unlock()
		return ErrClosed
	}
	current := p.snapshot.Load()
	// The list may have been reloaded while the role was fetched.
	target = current.find(target.ID)
	if target == nil {
		p.mu.Unlock()
		return p.switchNotFound(ctx)
	}
	next := *current
	next.CurrentOrganization = target
	next.MemberRole = role
	if next.State != StateReconciling {
		next.State = StateReady
		next.IsLoading = false
	}
	p.snapshot.Store(&next)
	p.cache.Save(ctx, next.Organizations, target.ID, string(role))
	p.mu.Unlock()

	p.inbox.Success("Switched to " + target.Name)
	p.metrics.RecordOrgSwitch(ctx, "switched")
	if p.audit != nil {
		err := p.audit.Record(ctx, auditdomain.RecordRequest{
			OrganizationID: id,
			ActorID:        p.userID,
			Action:         auditdomain.ActionOrganizationSwitched,
			TargetType:     "organization",
			TargetID:       target.ID,
		})
		if err != nil {
			p.log.Warn("activity log not recorded", zap.Error(err))
		}
	}
	return nil
}

func (p *Provider) switchNotFound(ctx context.Context) error {
	p.inbox.Error(NoticeNotFound)
	p.metrics.RecordOrgSwitch(ctx, "not_found")
	return ErrOrganizationNotFound
}

// Close turns every later state change into a no-op.
func (p *Provider) Close() {
	p.closed.Store(true)
}

func (p *Provider) Closed() bool {
	return p.closed.Load()
}
