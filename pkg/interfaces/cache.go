package interfaces

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss возвращается, когда ключ отсутствует в кэше
var ErrCacheMiss = errors.New("cache miss")

// CachePort определяет интерфейс для работы с системой кэширования.
// Используется как общее хранилище результатов идемпотентных операций
// и счетчиков ограничения частоты запросов.
// Реализации: Redis (несколько процессов) и go-cache (один процесс, тесты).
type CachePort interface {
	// Get получает значение из кэша по ключу
	// Возвращает ErrCacheMiss, если значение не найдено
	Get(ctx context.Context, key string) ([]byte, error)

	// GetWithTenant получает значение из кэша по ключу с учетом ID арендатора
	GetWithTenant(ctx context.Context, key string, tenantID string) ([]byte, error)

	// Set сохраняет значение в кэше с указанным сроком действия
	// Если expiration равно 0, срок действия не устанавливается
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error

	// SetWithTenant сохраняет значение в кэше с учетом ID арендатора
	SetWithTenant(ctx context.Context, key string, value []byte, tenantID string, expiration time.Duration) error

	// Delete удаляет значение из кэша по ключу
	Delete(ctx context.Context, key string) error

	// Increment увеличивает числовое значение ключа на указанную величину
	// Если ключ не существует, он будет создан со значением delta
	// Возвращает новое значение
	Increment(ctx context.Context, key string, delta int64) (int64, error)

	// Expire устанавливает срок действия существующего ключа
	Expire(ctx context.Context, key string, expiration time.Duration) error

	// TTL возвращает оставшееся время жизни ключа
	// Возвращает 0, если ключ не существует или не имеет срока действия
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Lock пытается получить блокировку с указанным ключом
	// Возвращает true, если блокировка получена успешно
	Lock(ctx context.Context, key string, expiration time.Duration) (bool, error)

	// Unlock освобождает блокировку
	Unlock(ctx context.Context, key string) error

	// Close закрывает соединение с системой кэширования
	Close() error
}
