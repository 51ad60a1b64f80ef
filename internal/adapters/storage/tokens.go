package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetActiveToken получает активный токен аккаунта указанного типа
func (r *Storage) GetActiveToken(ctx context.Context, accountID string, tokenType models.TokenType) (*models.ChannelToken, error) {
	query := `
		SELECT id, account_id, token_type, value, expires_at, active, metadata, created_at
		FROM channel_sync.tokens
		WHERE account_id = $1 AND token_type = $2 AND active
	`
	var (
		t         models.ChannelToken
		typ       string
		expiresAt *time.Time
	)
	err := r.getExecutor(ctx).QueryRow(ctx, query, accountID, string(tokenType)).
		Scan(&t.ID, &t.AccountID, &typ, &t.Value, &expiresAt, &t.Active, &t.Metadata, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active token: %w", err)
	}
	t.Type = models.TokenType(typ)
	if expiresAt != nil {
		t.ExpiresAt = *expiresAt
	}
	return &t, nil
}

// RotateToken атомарно заменяет активный токен того же типа
func (r *Storage) RotateToken(ctx context.Context, token *models.ChannelToken) error {
	if token.AccountID == "" || token.Type == "" {
		return errors.New("token account id and type are required")
	}
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = r.now()
	}
	token.Active = true

	var expiresAt *time.Time
	if !token.ExpiresAt.IsZero() {
		expiresAt = &token.ExpiresAt
	}

	return r.txManager.Do(ctx, func(ctx context.Context) error {
		exec := r.getExecutor(ctx)

		deactivate := `
			UPDATE channel_sync.tokens
			SET active = FALSE
			WHERE account_id = $1 AND token_type = $2 AND active
		`
		if _, err := exec.Exec(ctx, deactivate, token.AccountID, string(token.Type)); err != nil {
			return fmt.Errorf("failed to deactivate previous token: %w", err)
		}

		insert := `
			INSERT INTO channel_sync.tokens (id, account_id, token_type, value, expires_at, active, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7)
		`
		if _, err := exec.Exec(ctx, insert, token.ID, token.AccountID, string(token.Type), token.Value,
			expiresAt, token.Metadata, token.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert token: %w", err)
		}
		return nil
	})
}
