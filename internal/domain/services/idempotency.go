package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
)

// ErrCommitInProgress коммит с тем же ключом уже выполняется
var ErrCommitInProgress = errors.New("commit with this idempotency key is in progress")

const (
	idempotencyPrefix = "idempotency:commit:"
	defaultLockTTL    = 5 * time.Minute
)

// IdempotencyStore хранит ответы коммитов по ключу идемпотентности.
// Работает поверх CachePort: Redis при нескольких процессах, go-cache в одном процессе.
type IdempotencyStore struct {
	cache   interfaces.CachePort
	ttl     time.Duration
	lockTTL time.Duration
}

// NewIdempotencyStore создает хранилище с временем жизни записей ttl
func NewIdempotencyStore(cache interfaces.CachePort, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{cache: cache, ttl: ttl, lockTTL: defaultLockTTL}
}

// Key ключ записи: хэш арендатора и ключа клиента
func (s *IdempotencyStore) Key(tenantID, idempotencyKey string) string {
	sum := sha256.Sum256([]byte(tenantID + ":" + idempotencyKey))
	return idempotencyPrefix + hex.EncodeToString(sum[:])
}

// Get возвращает сохраненный ответ
func (s *IdempotencyStore) Get(ctx context.Context, tenantID, idempotencyKey string) (*models.CommitResponse, bool, error) {
	data, err := s.cache.Get(ctx, s.Key(tenantID, idempotencyKey))
	if err != nil {
		if errors.Is(err, interfaces.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read idempotency record: %w", err)
	}
	var resp models.CommitResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, false, fmt.Errorf("failed to decode idempotency record: %w", err)
	}
	return &resp, true, nil
}

// Save сохраняет ответ коммита
func (s *IdempotencyStore) Save(ctx context.Context, tenantID, idempotencyKey string, resp *models.CommitResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode idempotency record: %w", err)
	}
	if err := s.cache.Set(ctx, s.Key(tenantID, idempotencyKey), data, s.ttl); err != nil {
		return fmt.Errorf("failed to write idempotency record: %w", err)
	}
	return nil
}

// Acquire блокирует ключ на время выполнения коммита.
// Если ключ уже занят, возвращает ErrCommitInProgress.
func (s *IdempotencyStore) Acquire(ctx context.Context, tenantID, idempotencyKey string) (func(), error) {
	key := s.Key(tenantID, idempotencyKey)
	ok, err := s.cache.Lock(ctx, key, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire idempotency lock: %w", err)
	}
	if !ok {
		return nil, ErrCommitInProgress
	}
	return func() {
		_ = s.cache.Unlock(context.WithoutCancel(ctx), key)
	}, nil
}
