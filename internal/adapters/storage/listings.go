package storage

import (
	"context"
	"errors"
	"fmt"

	pkgmodels "github.com/athebyme/gomarket-platform/channel-sync/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const listingColumns = `id, tenant_id, account_id, channel, product_id, external_id, status, url, updated_at`

func scanListing(row scanner) (*pkgmodels.ChannelListing, error) {
	var l pkgmodels.ChannelListing
	if err := row.Scan(&l.ID, &l.TenantID, &l.AccountID, &l.Channel, &l.ProductID, &l.ExternalID,
		&l.Status, &l.URL, &l.UpdatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

// FindByProducts возвращает листинги товаров в аккаунте
func (r *Storage) FindByProducts(ctx context.Context, tenantID, accountID string, productIDs []string) ([]*pkgmodels.ChannelListing, error) {
	if len(productIDs) == 0 {
		return []*pkgmodels.ChannelListing{}, nil
	}
	query := `
		SELECT ` + listingColumns + `
		FROM channel_sync.listings
		WHERE tenant_id = $1 AND account_id = $2 AND product_id = ANY($3)
		ORDER BY product_id, external_id
	`
	rows, err := r.getExecutor(ctx).Query(ctx, query, tenantID, accountID, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to find listings: %w", err)
	}
	defer rows.Close()

	listings := []*pkgmodels.ChannelListing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing row: %w", err)
		}
		listings = append(listings, l)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("error while iterating listing rows: %w", rows.Err())
	}
	return listings, nil
}

// GetByProduct возвращает первый листинг товара в аккаунте
func (r *Storage) GetByProduct(ctx context.Context, tenantID, accountID, productID string) (*pkgmodels.ChannelListing, error) {
	query := `
		SELECT ` + listingColumns + `
		FROM channel_sync.listings
		WHERE tenant_id = $1 AND account_id = $2 AND product_id = $3
		ORDER BY updated_at DESC
		LIMIT 1
	`
	l, err := scanListing(r.getExecutor(ctx).QueryRow(ctx, query, tenantID, accountID, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return l, nil
}

// SaveListing создает или обновляет связку товара с листингом.
// Пустой product_id не затирает уже известную связку.
func (r *Storage) SaveListing(ctx context.Context, l *pkgmodels.ChannelListing) error {
	query := `
		INSERT INTO channel_sync.listings (` + listingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, account_id, external_id)
		DO UPDATE SET
			product_id = COALESCE(NULLIF($5, ''), channel_sync.listings.product_id),
			status = $7,
			url = COALESCE(NULLIF($8, ''), channel_sync.listings.url),
			updated_at = $9
	`
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.UpdatedAt = r.now()

	_, err := r.getExecutor(ctx).Exec(ctx, query, l.ID, l.TenantID, l.AccountID, l.Channel, l.ProductID,
		l.ExternalID, l.Status, l.URL, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save listing: %w", err)
	}
	return nil
}
