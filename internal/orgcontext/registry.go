package orgcontext

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/insightboard/internal/audit/domain"
	"github.com/smallbiznis/insightboard/internal/clock"
	"github.com/smallbiznis/insightboard/internal/config"
	"github.com/smallbiznis/insightboard/internal/observability/metrics"
	"github.com/smallbiznis/insightboard/internal/orgcache"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultReconcileTimeout = 10 * time.Second
	defaultIdleTTL          = 30 * time.Minute
)

type entry struct {
	provider   *Provider
	lastAccess time.Time
}

// Registry keeps one Provider per user for the HTTP layer.
type Registry struct {
	source         MembershipSource
	store          orgcache.Store
	log            *zap.Logger
	clock          clock.Clock
	audit          auditdomain.Service
	metrics        *metrics.Metrics
	contextMetrics *metrics.ContextMetrics
	timeout        time.Duration
	idleTTL        time.Duration

	mu      sync.Mutex
	entries map[snowflake.ID]*entry
	closed  bool
	wg      sync.WaitGroup
}

type RegistryParams struct {
	fx.In

	Lifecycle fx.Lifecycle `optional:"true"`
	Config    config.Config
	Log       *zap.Logger
	Clock     clock.Clock
	Source    MembershipSource

	Store          orgcache.Store          `optional:"true"`
	Audit          auditdomain.Service     `optional:"true"`
	Metrics        *metrics.Metrics        `optional:"true"`
	ContextMetrics *metrics.ContextMetrics `optional:"true"`
}

func NewRegistry(p RegistryParams) *Registry {
	r := &Registry{
		source:         p.Source,
		store:          p.Store,
		log:            p.Log.Named("orgcontext.registry"),
		clock:          p.Clock,
		audit:          p.Audit,
		metrics:        p.Metrics,
		contextMetrics: p.ContextMetrics,
		timeout:        p.Config.ReconcileTimeout,
		idleTTL:        defaultIdleTTL,
		entries:        make(map[snowflake.ID]*entry),
	}
	if r.timeout <= 0 {
		r.timeout = defaultReconcileTimeout
	}
	if r.clock == nil {
		r.clock = clock.SystemClock{}
	}

	if p.Lifecycle != nil {
		stop := make(chan struct{})
		p.Lifecycle.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go r.sweepLoop(stop)
				return nil
			},
			OnStop: func(ctx context.Context) error {
				close(stop)
				return r.Close(ctx)
			},
		})
	}
	return r
}

// Get returns the user's provider. The first call seeds it from cache
// synchronously and reconciles in the background, detached from ctx
// cancellation but bounded by the reconcile timeout.
func (r *Registry) Get(ctx context.Context, userID snowflake.ID) (*Provider, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	if e, ok := r.entries[userID]; ok {
		e.lastAccess = r.clock.Now()
		r.mu.Unlock()
		return e.provider, nil
	}
	r.mu.Unlock()

	provider := r.newProvider(ctx, userID)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		provider.Close()
		return nil, ErrClosed
	}
	if e, ok := r.entries[userID]; ok {
		e.lastAccess = r.clock.Now()
		r.mu.Unlock()
		provider.Close()
		return e.provider, nil
	}
	r.entries[userID] = &entry{provider: provider, lastAccess: r.clock.Now()}
	r.contextMetrics.SetProviders(len(r.entries))
	r.reconcileAsync(ctx, provider)
	r.mu.Unlock()

	return provider, nil
}

// Invalidate reconciles the user's provider in the background when one is
// loaded, for example after their memberships changed.
func (r *Registry) Invalidate(ctx context.Context, userID snowflake.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if e, ok := r.entries[userID]; ok {
		r.reconcileAsync(ctx, e.provider)
	}
}

// reconcileAsync must be called with mu held.
func (r *Registry) reconcileAsync(ctx context.Context, provider *Provider) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		err := provider.Reconcile(rctx)
		if err != nil && !errors.Is(err, ErrStaleResult) && !errors.Is(err, ErrClosed) {
			r.log.Debug("background reconcile failed",
				zap.String("user_id", provider.UserID().String()),
				zap.Error(err),
			)
		}
	}()
}

func (r *Registry) newProvider(ctx context.Context, userID snowflake.ID) *Provider {
	cache := orgcache.New(r.store, userID.String(),
		orgcache.WithClock(r.clock),
		orgcache.WithLogger(r.log),
		orgcache.WithMetrics(r.contextMetrics),
	)
	return New(ctx, userID, r.source, cache,
		WithLogger(r.log.Named("provider")),
		WithClock(r.clock),
		WithMetrics(r.metrics, r.contextMetrics),
		WithAudit(r.audit),
	)
}

// Sweep drops providers idle since before now minus the idle TTL.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for userID, e := range r.entries {
		if now.Sub(e.lastAccess) < r.idleTTL {
			continue
		}
		e.provider.Close()
		delete(r.entries, userID)
		removed++
	}
	if removed > 0 {
		r.contextMetrics.SetProviders(len(r.entries))
	}
	return removed
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) sweepLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(r.idleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n := r.Sweep(r.clock.Now()); n > 0 {
				r.log.Debug("evicted idle organization contexts", zap.Int("count", n))
			}
		}
	}
}

// Close stops every provider and waits for background reconciles, or for
// ctx, whichever comes first.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	for userID, e := range r.entries {
		e.provider.Close()
		delete(r.entries, userID)
	}
	r.contextMetrics.SetProviders(0)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
