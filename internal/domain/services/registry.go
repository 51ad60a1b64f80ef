package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/connector"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	pgport "github.com/athebyme/gomarket-platform/channel-sync/internal/infrastructure/postgres"
	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
)

var (
	ErrNoActiveToken   = errors.New("no active access token for account")
	ErrAccountNotFound = errors.New("account not found or inactive")
	ErrNoAccounts      = errors.New("no active accounts for channel")
)

// TargetAccounts явный выбор аккаунтов в запросе синхронизации
type TargetAccounts struct {
	AccountIDs []string
	Channel    models.Channel
}

// ChannelRegistry определяет, какие подключенные аккаунты участвуют в операции,
// и выдает их учетные данные
type ChannelRegistry struct {
	accounts pgport.AccountRepository
	tokens   pgport.TokenRepository
	logger   interfaces.LoggerPort
	now      func() time.Time
}

// NewChannelRegistry создает реестр аккаунтов
func NewChannelRegistry(accounts pgport.AccountRepository, tokens pgport.TokenRepository, logger interfaces.LoggerPort) *ChannelRegistry {
	return &ChannelRegistry{
		accounts: accounts,
		tokens:   tokens,
		logger:   logger,
		now:      time.Now,
	}
}

// Resolve возвращает активные аккаунты для задачи.
// Явные ID фильтруются до активных без ошибки за отсутствующие. Канал без ID дает все активные
// аккаунты канала. Без ID и канала берутся все активные аккаунты с включенным флагом,
// который соответствует типу задачи.
func (r *ChannelRegistry) Resolve(ctx context.Context, tenantID string, target TargetAccounts, jobType models.JobType) ([]*models.ChannelAccount, error) {
	if len(target.AccountIDs) > 0 {
		found, err := r.accounts.ListAccounts(ctx, tenantID, pgport.AccountFilter{IDs: dedupe(target.AccountIDs)})
		if err != nil {
			return nil, fmt.Errorf("failed to load accounts: %w", err)
		}
		byID := make(map[string]*models.ChannelAccount, len(found))
		for _, a := range found {
			byID[a.ID] = a
		}
		out := make([]*models.ChannelAccount, 0, len(found))
		for _, id := range dedupe(target.AccountIDs) {
			a, ok := byID[id]
			if !ok || !a.IsActive() {
				r.logger.DebugWithContext(ctx, "Аккаунт пропущен: не найден или не активен", "account_id", id)
				continue
			}
			if target.Channel != "" && a.Channel != target.Channel {
				continue
			}
			out = append(out, a)
		}
		return out, nil
	}

	filter := pgport.AccountFilter{Channel: target.Channel, Status: models.AccountStatusActive}
	found, err := r.accounts.ListAccounts(ctx, tenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}

	out := make([]*models.ChannelAccount, 0, len(found))
	for _, a := range found {
		if !a.IsActive() {
			continue
		}
		if target.Channel == "" && !syncFlagEnabled(a, jobType) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func syncFlagEnabled(a *models.ChannelAccount, jobType models.JobType) bool {
	switch jobType {
	case models.JobTypeCatalog, models.JobTypeFull:
		return a.AutoSync
	case models.JobTypeStock:
		return a.StockSync
	case models.JobTypePrices:
		return a.PriceSync
	default:
		return true
	}
}

// ResolveForChannel выбирает аккаунт для элемента коммита: явно указанный
// или первый активный аккаунт канала
func (r *ChannelRegistry) ResolveForChannel(ctx context.Context, tenantID string, ch models.Channel, accountID string) (*models.ChannelAccount, error) {
	if accountID != "" {
		a, err := r.accounts.GetAccount(ctx, tenantID, accountID)
		if err != nil {
			return nil, fmt.Errorf("failed to load account: %w", err)
		}
		if a == nil || !a.IsActive() || a.Channel != ch {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
		}
		return a, nil
	}

	found, err := r.accounts.ListAccounts(ctx, tenantID, pgport.AccountFilter{Channel: ch, Status: models.AccountStatusActive})
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	for _, a := range found {
		if a.IsActive() {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoAccounts, ch)
}

// Credentials возвращает действующий access token и ID магазина аккаунта
func (r *ChannelRegistry) Credentials(ctx context.Context, account *models.ChannelAccount) (connector.Credentials, error) {
	token, err := r.tokens.GetActiveToken(ctx, account.ID, models.TokenTypeAccess)
	if err != nil {
		return connector.Credentials{}, fmt.Errorf("failed to load token: %w", err)
	}
	if token == nil || token.Value == "" || token.IsExpired(r.now()) {
		return connector.Credentials{}, fmt.Errorf("%w: %s", ErrNoActiveToken, account.ID)
	}
	return connector.Credentials{AccessToken: token.Value, ShopID: account.ShopID}, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
