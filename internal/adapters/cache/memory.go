package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache реализация CachePort в памяти процесса на основе go-cache.
// Подходит для одного инстанса и для тестов; для нескольких процессов нужен RedisCache.
type MemoryCache struct {
	mu    sync.Mutex
	store *gocache.Cache
}

// NewMemoryCache создает кэш с периодической очисткой просроченных ключей
func NewMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{
		store: gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

func ttlOrNoExpiration(expiration time.Duration) time.Duration {
	if expiration <= 0 {
		return gocache.NoExpiration
	}
	return expiration
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.store.Get(key)
	if !ok {
		return nil, interfaces.ErrCacheMiss
	}
	switch val := v.(type) {
	case []byte:
		out := make([]byte, len(val))
		copy(out, val)
		return out, nil
	case int64:
		return []byte(fmt.Sprintf("%d", val)), nil
	default:
		return nil, fmt.Errorf("неожиданный тип значения для ключа %s", key)
	}
}

func (m *MemoryCache) GetWithTenant(ctx context.Context, key string, tenantID string) ([]byte, error) {
	return m.Get(ctx, buildKey(key, tenantID))
}

func (m *MemoryCache) Set(_ context.Context, key string, value []byte, expiration time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	m.store.Set(key, stored, ttlOrNoExpiration(expiration))
	return nil
}

func (m *MemoryCache) SetWithTenant(ctx context.Context, key string, value []byte, tenantID string, expiration time.Duration) error {
	return m.Set(ctx, buildKey(key, tenantID), value, expiration)
}

func (m *MemoryCache) Delete(_ context.Context, key string) error {
	m.store.Delete(key)
	return nil
}

func (m *MemoryCache) Increment(_ context.Context, key string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Add(key, delta, gocache.NoExpiration); err == nil {
		return delta, nil
	}
	n, err := m.store.IncrementInt64(key, delta)
	if err != nil {
		return 0, fmt.Errorf("ошибка инкремента ключа %s: %w", key, err)
	}
	return n, nil
}

func (m *MemoryCache) Expire(_ context.Context, key string, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.store.Get(key)
	if !ok {
		return nil
	}
	m.store.Set(key, v, ttlOrNoExpiration(expiration))
	return nil
}

func (m *MemoryCache) TTL(_ context.Context, key string) (time.Duration, error) {
	_, exp, ok := m.store.GetWithExpiration(key)
	if !ok || exp.IsZero() {
		return 0, nil
	}
	if d := time.Until(exp); d > 0 {
		return d, nil
	}
	return 0, nil
}

func (m *MemoryCache) Lock(_ context.Context, key string, expiration time.Duration) (bool, error) {
	if err := m.store.Add("lock:"+key, []byte("1"), ttlOrNoExpiration(expiration)); err != nil {
		return false, nil
	}
	return true, nil
}

func (m *MemoryCache) Unlock(_ context.Context, key string) error {
	m.store.Delete("lock:" + key)
	return nil
}

func (m *MemoryCache) Close() error {
	m.store.Flush()
	return nil
}
