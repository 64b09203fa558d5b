package orgcache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/smallbiznis/insightboard/internal/clock"
)

// ProfileMaxAge bounds how long a cached avatar and display name are served.
const ProfileMaxAge = 7 * 24 * time.Hour

type Profile struct {
	AvatarURL string `json:"avatar_url"`
	Name      string `json:"name"`
	CachedAt  int64  `json:"cached_at"`
}

type ProfileCache struct {
	store Store
	clock clock.Clock
}

func NewProfileCache(store Store, c clock.Clock) *ProfileCache {
	if c == nil {
		c = clock.SystemClock{}
	}
	return &ProfileCache{store: store, clock: c}
}

func profileKey(userID string) string {
	return "user:" + strings.TrimSpace(userID) + ":profile"
}

func (p *ProfileCache) Get(ctx context.Context, userID string) (Profile, bool) {
	if p == nil || p.store == nil {
		return Profile{}, false
	}
	raw, err := p.store.Get(ctx, profileKey(userID))
	if err != nil {
		return Profile{}, false
	}
	var profile Profile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		_ = p.store.Delete(ctx, profileKey(userID))
		return Profile{}, false
	}
	age := p.clock.Now().Sub(time.UnixMilli(profile.CachedAt))
	if age >= ProfileMaxAge {
		_ = p.store.Delete(ctx, profileKey(userID))
		return Profile{}, false
	}
	return profile, true
}

// Set stores the profile; an empty avatar URL clears the entry.
func (p *ProfileCache) Set(ctx context.Context, userID, avatarURL, name string) {
	if p == nil || p.store == nil {
		return
	}
	if strings.TrimSpace(avatarURL) == "" {
		_ = p.store.Delete(ctx, profileKey(userID))
		return
	}
	payload, err := json.Marshal(Profile{
		AvatarURL: avatarURL,
		Name:      name,
		CachedAt:  p.clock.Now().UnixMilli(),
	})
	if err != nil {
		return
	}
	_ = p.store.Set(ctx, profileKey(userID), string(payload), ProfileMaxAge)
}

func (p *ProfileCache) Clear(ctx context.Context, userID string) {
	if p == nil || p.store == nil {
		return
	}
	_ = p.store.Delete(ctx, profileKey(userID))
}
