package orgcache

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/insightboard/internal/clock"
	"github.com/smallbiznis/insightboard/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("orgcache",
	fx.Provide(NewStore),
	fx.Provide(NewProfileCache),
)

type StoreParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Clock     clock.Clock
	Log       *zap.Logger
}

// NewStore selects the cache backend. A nil Store is a valid result and
// disables caching.
func NewStore(p StoreParams) Store {
	log := p.Log.Named("orgcache")
	switch p.Config.CacheBackend {
	case config.CacheBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     p.Config.RedisAddr,
			Password: p.Config.RedisPassword,
			DB:       p.Config.RedisDB,
		})
		p.Lifecycle.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := client.Ping(ctx).Err(); err != nil {
					log.Warn("redis unavailable, organization cache will miss", zap.Error(err))
				}
				return nil
			},
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
		log.Info("using redis organization cache", zap.String("addr", p.Config.RedisAddr))
		return NewRedisStore(client, p.Config.AppName+":")
	case config.CacheBackendNone:
		log.Info("organization cache disabled")
		return nil
	default:
		return NewMemoryStore(p.Clock)
	}
}
