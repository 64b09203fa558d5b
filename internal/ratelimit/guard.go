package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/insightboard/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyInviteAccept   = "invite:accept:user:%s"
	keyActivationLock = "subscription:activate:org:%s"
)

// ErrLocked means another request holds the organization's activation lock.
var ErrLocked = errors.New("activation_locked")

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle `optional:"true"`
	Config    config.Config
	Log       *zap.Logger
}

// Guard throttles invitation acceptance per user and serializes plan
// activation per organization across replicas. A nil Guard allows
// everything. Redis failures are logged and treated as allowed: the
// database constraints remain the source of truth.
type Guard struct {
	bucket *TokenBucket
	locker *Locker
	log    *zap.Logger

	acceptRate  float64
	acceptBurst int
	lockTTL     time.Duration
}

func NewGuard(p Params) (*Guard, error) {
	limitCfg := p.Config.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.InviteAcceptRate <= 0 || limitCfg.InviteAcceptBurst <= 0 {
		return nil, errors.New("invite accept rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})
	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(context.Context) error { return client.Close() },
		})
	}

	lockTTL := limitCfg.ActivationLockTTL
	if lockTTL <= 0 {
		lockTTL = 15 * time.Second
	}

	return &Guard{
		bucket:      NewTokenBucket(client),
		locker:      NewLocker(client),
		log:         p.Log.Named("ratelimit"),
		acceptRate:  limitCfg.InviteAcceptRate,
		acceptBurst: limitCfg.InviteAcceptBurst,
		lockTTL:     lockTTL,
	}, nil
}

func (g *Guard) Enabled() bool {
	return g != nil && g.bucket != nil
}

// AllowInviteAccept limits how fast one user can try invitation tokens.
func (g *Guard) AllowInviteAccept(ctx context.Context, userID string) Result {
	if !g.Enabled() {
		return Result{Allowed: true}
	}
	res, err := g.bucket.Allow(ctx, fmt.Sprintf(keyInviteAccept, strings.TrimSpace(userID)), g.acceptRate, g.acceptBurst)
	if err != nil {
		g.log.Warn("invite accept rate limit unavailable", zap.Error(err))
		return Result{Allowed: true}
	}
	return res
}

// LockActivation holds the organization's activation lock until release is
// called. It returns ErrLocked while another holder is active.
func (g *Guard) LockActivation(ctx context.Context, orgID string) (func(), error) {
	noop := func() {}
	if !g.Enabled() {
		return noop, nil
	}

	key := fmt.Sprintf(keyActivationLock, strings.TrimSpace(orgID))
	token, ok, err := g.locker.TryLock(ctx, key, g.lockTTL)
	if err != nil {
		g.log.Warn("activation lock unavailable", zap.Error(err))
		return noop, nil
	}
	if !ok {
		return noop, ErrLocked
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := g.locker.Release(releaseCtx, key, token); err != nil {
			g.log.Warn("release activation lock", zap.Error(err))
		}
	}, nil
}
