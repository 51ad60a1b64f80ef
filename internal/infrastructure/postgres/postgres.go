package postgres

import (
	"context"
	"time"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	pkgmodels "github.com/athebyme/gomarket-platform/channel-sync/pkg/models"
)

// AccountFilter параметры выборки аккаунтов
type AccountFilter struct {
	IDs     []string
	Channel models.Channel
	Status  models.AccountStatus
}

// AccountRepository хранилище подключенных аккаунтов каналов
type AccountRepository interface {
	// GetAccount возвращает nil, nil если аккаунт не найден
	GetAccount(ctx context.Context, tenantID, accountID string) (*models.ChannelAccount, error)

	// ListAccounts аккаунты арендатора в порядке создания
	ListAccounts(ctx context.Context, tenantID string, filter AccountFilter) ([]*models.ChannelAccount, error)

	// ListAutoSyncTenants арендаторы, у которых есть активные аккаунты с автосинхронизацией
	ListAutoSyncTenants(ctx context.Context) ([]string, error)

	// SaveAccount создает или обновляет аккаунт. Аккаунты не удаляются, только меняют статус.
	SaveAccount(ctx context.Context, account *models.ChannelAccount) error

	// TouchLastSync отмечает время последней синхронизации
	TouchLastSync(ctx context.Context, tenantID, accountID string, at time.Time) error
}

// TokenRepository хранилище учетных данных аккаунтов
type TokenRepository interface {
	// GetActiveToken возвращает nil, nil если активного токена нет
	GetActiveToken(ctx context.Context, accountID string, tokenType models.TokenType) (*models.ChannelToken, error)

	// RotateToken деактивирует прежний активный токен того же типа и сохраняет новый.
	// Обе операции выполняются в одной транзакции.
	RotateToken(ctx context.Context, token *models.ChannelToken) error
}

// ListingRepository связки товаров каталога с листингами маркетплейсов
type ListingRepository interface {
	// FindByProducts листинги аккаунта для указанных товаров. Товар может иметь ноль или несколько листингов.
	FindByProducts(ctx context.Context, tenantID, accountID string, productIDs []string) ([]*pkgmodels.ChannelListing, error)

	// GetByProduct первый листинг товара в аккаунте, nil, nil если его нет
	GetByProduct(ctx context.Context, tenantID, accountID, productID string) (*pkgmodels.ChannelListing, error)

	// SaveListing создает или обновляет связку по (tenant_id, account_id, external_id)
	SaveListing(ctx context.Context, listing *pkgmodels.ChannelListing) error
}

// SyncJobRepository хранилище задач синхронизации
type SyncJobRepository interface {
	// CreateJob сохраняет задачу. Если задача с тем же ключом идемпотентности уже есть,
	// возвращается существующая и created=false.
	CreateJob(ctx context.Context, job *models.SyncJob) (stored *models.SyncJob, created bool, err error)

	// GetJob возвращает nil, nil если задача не найдена
	GetJob(ctx context.Context, tenantID, jobID string) (*models.SyncJob, error)

	// ListJobs задачи по фильтру и их общее количество
	ListJobs(ctx context.Context, filter models.JobFilter) ([]*models.SyncJob, int, error)

	// UpdateJob сохраняет статус и счетчики задачи
	UpdateJob(ctx context.Context, job *models.SyncJob) error
}
