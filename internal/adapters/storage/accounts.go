package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	pgport "github.com/athebyme/gomarket-platform/channel-sync/internal/infrastructure/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const accountColumns = `id, tenant_id, channel, shop_id, name, status, auto_sync, stock_sync, price_sync,
	last_sync_at, created_at, updated_at`

func scanAccount(row scanner) (*models.ChannelAccount, error) {
	var (
		a               models.ChannelAccount
		channel, status string
	)
	err := row.Scan(&a.ID, &a.TenantID, &channel, &a.ShopID, &a.Name, &status, &a.AutoSync, &a.StockSync,
		&a.PriceSync, &a.LastSyncAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Channel = models.Channel(channel)
	a.Status = models.AccountStatus(status)
	return &a, nil
}

// GetAccount получает аккаунт по ID
func (r *Storage) GetAccount(ctx context.Context, tenantID, accountID string) (*models.ChannelAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM channel_sync.accounts WHERE id = $1 AND tenant_id = $2`

	account, err := scanAccount(r.getExecutor(ctx).QueryRow(ctx, query, accountID, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// ListAccounts возвращает аккаунты арендатора по фильтру
func (r *Storage) ListAccounts(ctx context.Context, tenantID string, filter pgport.AccountFilter) ([]*models.ChannelAccount, error) {
	var where whereBuilder
	where.add("tenant_id = ?", tenantID)
	if len(filter.IDs) > 0 {
		where.add("id = ANY(?)", filter.IDs)
	}
	if filter.Channel != "" {
		where.add("channel = ?", string(filter.Channel))
	}
	if filter.Status != "" {
		where.add("status = ?", string(filter.Status))
	}

	query := `SELECT ` + accountColumns + ` FROM channel_sync.accounts ` + where.String() + ` ORDER BY created_at, id`
	rows, err := r.getExecutor(ctx).Query(ctx, query, where.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.ChannelAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		accounts = append(accounts, a)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("error while iterating account rows: %w", rows.Err())
	}
	return accounts, nil
}

// ListAutoSyncTenants возвращает арендаторов с активной автосинхронизацией
func (r *Storage) ListAutoSyncTenants(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT tenant_id
		FROM channel_sync.accounts
		WHERE status = $1 AND auto_sync
		ORDER BY tenant_id
	`
	rows, err := r.getExecutor(ctx).Query(ctx, query, string(models.AccountStatusActive))
	if err != nil {
		return nil, fmt.Errorf("failed to list auto-sync tenants: %w", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tenant id: %w", err)
		}
		tenants = append(tenants, id)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("error while iterating tenant rows: %w", rows.Err())
	}
	return tenants, nil
}

// SaveAccount создает или обновляет аккаунт
func (r *Storage) SaveAccount(ctx context.Context, a *models.ChannelAccount) error {
	query := `
		INSERT INTO channel_sync.accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id)
		DO UPDATE SET
			shop_id = $4,
			name = $5,
			status = $6,
			auto_sync = $7,
			stock_sync = $8,
			price_sync = $9,
			last_sync_at = $10,
			updated_at = $12
	`
	now := r.now()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	_, err := r.getExecutor(ctx).Exec(ctx, query, a.ID, a.TenantID, string(a.Channel), a.ShopID, a.Name,
		string(a.Status), a.AutoSync, a.StockSync, a.PriceSync, a.LastSyncAt, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// TouchLastSync обновляет время последней синхронизации
func (r *Storage) TouchLastSync(ctx context.Context, tenantID, accountID string, at time.Time) error {
	query := `
		UPDATE channel_sync.accounts
		SET last_sync_at = $3, updated_at = $4
		WHERE id = $1 AND tenant_id = $2
	`
	if _, err := r.getExecutor(ctx).Exec(ctx, query, accountID, tenantID, at, r.now()); err != nil {
		return fmt.Errorf("failed to update last sync time: %w", err)
	}
	return nil
}
