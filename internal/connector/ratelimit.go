package connector

import (
	"context"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
)

// RateDecision результат проверки лимита
type RateDecision struct {
	Allowed    bool
	Remaining  int
	ResetAfter time.Duration
}

// RateLimiter считает вызовы по ключу в пределах окна
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (RateDecision, error)
}

// CacheRateLimiter лимитер с фиксированным окном поверх CachePort.
// Счетчик создается первым вызовом в окне и сбрасывается по истечении его TTL.
// С RedisCache счетчики общие для всех инстансов, с MemoryCache - для процесса.
type CacheRateLimiter struct {
	cache  interfaces.CachePort
	prefix string
}

// NewCacheRateLimiter создает лимитер поверх кэша
func NewCacheRateLimiter(cache interfaces.CachePort) *CacheRateLimiter {
	return &CacheRateLimiter{cache: cache, prefix: "ratelimit:"}
}

// Allow увеличивает счетчик и сообщает, укладывается ли вызов в лимит
func (l *CacheRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (RateDecision, error) {
	if limit <= 0 {
		return RateDecision{Allowed: true, Remaining: -1}, nil
	}

	fullKey := l.prefix + key
	n, err := l.cache.Increment(ctx, fullKey, 1)
	if err != nil {
		return RateDecision{}, fmt.Errorf("ошибка счетчика лимита %s: %w", key, err)
	}

	ttl, err := l.cache.TTL(ctx, fullKey)
	if err != nil {
		return RateDecision{}, fmt.Errorf("ошибка чтения TTL лимита %s: %w", key, err)
	}
	// Первый вызов в окне или счетчик без срока действия
	if n == 1 || ttl == 0 {
		if err := l.cache.Expire(ctx, fullKey, window); err != nil {
			return RateDecision{}, fmt.Errorf("ошибка установки окна лимита %s: %w", key, err)
		}
		ttl = window
	}

	remaining := limit - int(n)
	if remaining < 0 {
		remaining = 0
	}

	return RateDecision{
		Allowed:    n <= int64(limit),
		Remaining:  remaining,
		ResetAfter: ttl,
	}, nil
}
