package ratelimit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storesplit/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	limiter, err := NewWriteLimiter(Params{
		Lc:  fxtest.NewLifecycle(t),
		Cfg: config.Config{},
		Log: zap.NewNop(),
	})
	require.NoError(t, err)
	require.Nil(t, limiter)
	assert.False(t, limiter.Enabled())

	res, err := limiter.AllowActor(context.Background(), snowflake.ID(1))
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	release, ok, err := limiter.AcquireIdempotencyKey(context.Background(), snowflake.ID(1), "retry-1")
	require.NoError(t, err)
	assert.True(t, ok)
	release()
}

func TestEnabledLimiterValidatesConfig(t *testing.T) {
	_, err := NewWriteLimiter(Params{
		Lc:  fxtest.NewLifecycle(t),
		Cfg: config.Config{RateLimit: config.RateLimitConfig{Enabled: true}},
		Log: zap.NewNop(),
	})
	require.Error(t, err)

	_, err = NewWriteLimiter(Params{
		Lc: fxtest.NewLifecycle(t),
		Cfg: config.Config{RateLimit: config.RateLimitConfig{
			Enabled:   true,
			RedisAddr: "localhost:6379",
		}},
		Log: zap.NewNop(),
	})
	require.Error(t, err)
}

func TestIdempotencyKeyLength(t *testing.T) {
	var limiter *WriteLimiter
	_, ok, err := limiter.AcquireIdempotencyKey(context.Background(), snowflake.ID(1), strings.Repeat("k", maxIdempotencyKeyLen+1))
	require.ErrorIs(t, err, ErrInvalidIdempotencyKey)
	assert.False(t, ok)
}

func TestDecideComputesRetryAfter(t *testing.T) {
	res := decide(false, 0, 2, 10)
	assert.False(t, res.Allowed)
	assert.Equal(t, 10, res.Limit)
	assert.Equal(t, 500*time.Millisecond, res.RetryAfter)

	res = decide(true, 4, 2, 10)
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining)
	assert.Zero(t, res.RetryAfter)
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, time.Second, bucketTTL(0, 5))
	assert.Equal(t, 8*time.Second, bucketTTL(5, 20))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
}

func TestNilClientsAreRejected(t *testing.T) {
	assert.Nil(t, NewTokenBucket(nil))
	assert.Nil(t, NewLocker(nil))

	var bucket *TokenBucket
	_, err := bucket.Allow(context.Background(), "k", 1, 1)
	require.Error(t, err)

	var locker *Locker
	_, err = locker.Acquire(context.Background(), "k", time.Second)
	require.Error(t, err)
	assert.NoError(t, locker.Release(context.Background(), &Lease{Key: "k"}))
}
