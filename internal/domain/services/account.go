package services

import (
	"context"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	pgport "github.com/athebyme/gomarket-platform/channel-sync/internal/infrastructure/postgres"
	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
)

// AccountStore хранилище аккаунтов и токенов с транзакциями
type AccountStore interface {
	pgport.AccountRepository
	pgport.TokenRepository
	interfaces.StoragePort
}

// AccountService подключает аккаунты каналов и сохраняет их токены
type AccountService struct {
	store  AccountStore
	logger interfaces.LoggerPort
	now    func() time.Time
}

// NewAccountService создает сервис аккаунтов
func NewAccountService(store AccountStore, logger interfaces.LoggerPort) *AccountService {
	return &AccountService{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Connect создает активный аккаунт и сохраняет его токены в одной транзакции
func (s *AccountService) Connect(ctx context.Context, tenantID string, req models.ConnectAccountRequest) (*models.ChannelAccount, error) {
	if err := models.ValidateRequest(req); err != nil {
		return nil, err
	}

	account := &models.ChannelAccount{
		TenantID:  tenantID,
		Channel:   req.Channel,
		ShopID:    req.ShopID,
		Name:      req.Name,
		Status:    models.AccountStatusActive,
		AutoSync:  req.AutoSync,
		StockSync: req.StockSync,
		PriceSync: req.PriceSync,
	}

	txCtx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := s.store.SaveAccount(txCtx, account); err != nil {
		_ = s.store.RollbackTx(txCtx)
		return nil, fmt.Errorf("failed to save account: %w", err)
	}
	if err := s.rotate(txCtx, account.ID, req.Tokens); err != nil {
		_ = s.store.RollbackTx(txCtx)
		return nil, err
	}

	if err := s.store.CommitTx(txCtx); err != nil {
		_ = s.store.RollbackTx(txCtx)
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.InfoWithContext(ctx, "Аккаунт канала подключен",
		"account_id", account.ID,
		"channel", string(account.Channel),
		"shop_id", account.ShopID)
	return account, nil
}

// RotateTokens сохраняет обновленные токены аккаунта. Прежние токены тех же типов деактивируются.
func (s *AccountService) RotateTokens(ctx context.Context, tenantID, accountID string, grant models.TokenGrant) error {
	if err := models.ValidateRequest(grant); err != nil {
		return err
	}
	account, err := s.store.GetAccount(ctx, tenantID, accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}

	txCtx, err := s.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := s.rotate(txCtx, accountID, grant); err != nil {
		_ = s.store.RollbackTx(txCtx)
		return err
	}
	if err := s.store.CommitTx(txCtx); err != nil {
		_ = s.store.RollbackTx(txCtx)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.InfoWithContext(ctx, "Токены аккаунта обновлены", "account_id", accountID)
	return nil
}

func (s *AccountService) rotate(ctx context.Context, accountID string, grant models.TokenGrant) error {
	now := s.now()
	access := &models.ChannelToken{
		AccountID: accountID,
		Type:      models.TokenTypeAccess,
		Value:     grant.AccessToken,
		Metadata:  grant.Metadata,
		CreatedAt: now,
	}
	if grant.ExpiresIn > 0 {
		access.ExpiresAt = now.Add(time.Duration(grant.ExpiresIn) * time.Second)
	}
	if err := s.store.RotateToken(ctx, access); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}

	if grant.RefreshToken == "" {
		return nil
	}
	refresh := &models.ChannelToken{
		AccountID: accountID,
		Type:      models.TokenTypeRefresh,
		Value:     grant.RefreshToken,
		Metadata:  grant.Metadata,
		CreatedAt: now,
	}
	if grant.RefreshExpiresIn > 0 {
		refresh.ExpiresAt = now.Add(time.Duration(grant.RefreshExpiresIn) * time.Second)
	}
	if err := s.store.RotateToken(ctx, refresh); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

// List аккаунты арендатора
func (s *AccountService) List(ctx context.Context, tenantID string, ch models.Channel) ([]*models.ChannelAccount, error) {
	accounts, err := s.store.ListAccounts(ctx, tenantID, pgport.AccountFilter{Channel: ch})
	if err != nil {
		return nil, err
	}
	if accounts == nil {
		accounts = []*models.ChannelAccount{}
	}
	return accounts, nil
}

// SetStatus меняет статус аккаунта. Аккаунты не удаляются, отключение выполняется статусом disabled.
func (s *AccountService) SetStatus(ctx context.Context, tenantID, accountID string, req models.AccountStatusRequest) (*models.ChannelAccount, error) {
	if err := models.ValidateRequest(req); err != nil {
		return nil, err
	}
	account, err := s.store.GetAccount(ctx, tenantID, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	account.Status = req.Status
	if err := s.store.SaveAccount(ctx, account); err != nil {
		return nil, err
	}
	s.logger.InfoWithContext(ctx, "Статус аккаунта изменен", "account_id", accountID, "status", string(req.Status))
	return account, nil
}
