package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
	"github.com/go-redis/redis/v8"
)

// RedisOptions параметры подключения к Redis
type RedisOptions struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
}

// RedisCache реализация CachePort поверх Redis.
// Используется как общее хранилище идемпотентности и счетчиков лимитов для нескольких инстансов.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache подключается к Redis и проверяет соединение
func NewRedisCache(ctx context.Context, opts RedisOptions) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		MaxRetries:   opts.MaxRetries,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheWithClient оборачивает уже созданный клиент
func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func buildKey(key, tenantID string) string {
	if tenantID != "" {
		return fmt.Sprintf("tenant:%s:%s", tenantID, key)
	}
	return key
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, interfaces.ErrCacheMiss
		}
		return nil, err
	}
	return val, nil
}

func (r *RedisCache) GetWithTenant(ctx context.Context, key string, tenantID string) ([]byte, error) {
	return r.Get(ctx, buildKey(key, tenantID))
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	return r.client.Set(ctx, key, value, expiration).Err()
}

func (r *RedisCache) SetWithTenant(ctx context.Context, key string, value []byte, tenantID string, expiration time.Duration) error {
	return r.Set(ctx, buildKey(key, tenantID), value, expiration)
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisCache) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	n, err := r.client.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("ошибка инкремента ключа %s: %w", key, err)
	}
	return n, nil
}

func (r *RedisCache) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return r.client.PExpire(ctx, key, expiration).Err()
}

func (r *RedisCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// -1 и -2 означают отсутствие срока действия или ключа
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (r *RedisCache) Lock(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, "lock:"+key, "1", expiration).Result()
	if err != nil {
		return false, fmt.Errorf("ошибка получения блокировки %s: %w", key, err)
	}
	return ok, nil
}

func (r *RedisCache) Unlock(ctx context.Context, key string) error {
	return r.client.Del(ctx, "lock:"+key).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
