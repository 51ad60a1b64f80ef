package connector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/adapters/cache"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/adapters/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRateLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	l := NewCacheRateLimiter(cache.NewMemoryCache(time.Minute))

	for i := 1; i <= 3; i++ {
		d, err := l.Allow(ctx, "shopee:add_item", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "call %d", i)
		assert.Equal(t, 3-i, d.Remaining)
		assert.Greater(t, d.ResetAfter, time.Duration(0))
	}

	d, err := l.Allow(ctx, "shopee:add_item", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Zero(t, d.Remaining)

	other, err := l.Allow(ctx, "shopee:update_item", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are counted separately")
}

func TestCacheRateLimiter_WindowReset(t *testing.T) {
	ctx := context.Background()
	l := NewCacheRateLimiter(cache.NewMemoryCache(10 * time.Millisecond))

	d, err := l.Allow(ctx, "k", 1, 100*time.Millisecond)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = l.Allow(ctx, "k", 1, 100*time.Millisecond)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	time.Sleep(200 * time.Millisecond)

	d, err = l.Allow(ctx, "k", 1, 100*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestCacheRateLimiter_NoLimit(t *testing.T) {
	l := NewCacheRateLimiter(cache.NewMemoryCache(time.Minute))
	d, err := l.Allow(context.Background(), "k", 0, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, -1, d.Remaining)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int, time.Duration) (RateDecision, error) {
	return RateDecision{}, errors.New("redis down")
}

func TestClient_Do_LimiterUnavailable(t *testing.T) {
	c, err := NewClient(ClientConfig{
		Channel:    "shopee",
		BaseURL:    "http://127.0.0.1:1",
		PartnerID:  1,
		PartnerKey: "k",
	}, failingLimiter{}, logger.NewNop())
	require.NoError(t, err)

	resp := c.Do(context.Background(), Request{Endpoint: Endpoint{Name: "x", Method: "GET", Path: "/x", RateLimit: 5}})
	require.False(t, resp.Success)
	assert.Equal(t, CodeRateLimited, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "rate limiter unavailable")
}
