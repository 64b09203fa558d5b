package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/insightboard/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewGuardDisabled(t *testing.T) {
	guard, err := NewGuard(Params{Config: config.Config{}, Log: zap.NewNop()})
	require.NoError(t, err)
	assert.Nil(t, guard)
	assert.False(t, guard.Enabled())

	res := guard.AllowInviteAccept(context.Background(), "42")
	assert.True(t, res.Allowed)

	release, err := guard.LockActivation(context.Background(), "7")
	require.NoError(t, err)
	release()
}

func TestNewGuardRejectsBadLimits(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{
		Enabled:   true,
		RedisAddr: "localhost:6379",
	}}
	_, err := NewGuard(Params{Config: cfg, Log: zap.NewNop()})
	assert.Error(t, err)

	cfg.RateLimit.RedisAddr = " "
	cfg.RateLimit.InviteAcceptRate = 1
	cfg.RateLimit.InviteAcceptBurst = 1
	_, err = NewGuard(Params{Config: cfg, Log: zap.NewNop()})
	assert.Error(t, err)
}

func TestParseScriptResult(t *testing.T) {
	res, err := parseScriptResult([]any{int64(1), "3.5", int64(1700000000000)}, 0.5, 5)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 3, res.Remaining)
	assert.Equal(t, 5, res.Limit)
	assert.Zero(t, res.RetryAfter)

	res, err = parseScriptResult([]any{int64(0), "0.5", int64(1700000000000)}, 0.5, 5)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Second, res.RetryAfter)

	_, err = parseScriptResult([]any{int64(1)}, 1, 1)
	assert.Error(t, err)
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 20*time.Second, bucketTTL(0.5, 5))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
	assert.Equal(t, time.Second, bucketTTL(0, 1))
}
