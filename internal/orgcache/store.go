// Package orgcache persists the per-user organization snapshot used to render
// the dashboard before memberships are reconciled with the database.
package orgcache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by a Store when the key does not exist or has expired.
var ErrMiss = errors.New("cache_miss")

// Store is a string key/value store. A ttl of zero means no expiry.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
