package storage

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE SCHEMA IF NOT EXISTS channel_sync`,
	`CREATE TABLE IF NOT EXISTS channel_sync.accounts (
		id           TEXT PRIMARY KEY,
		tenant_id    TEXT NOT NULL,
		channel      TEXT NOT NULL,
		shop_id      TEXT NOT NULL,
		name         TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL,
		auto_sync    BOOLEAN NOT NULL DEFAULT FALSE,
		stock_sync   BOOLEAN NOT NULL DEFAULT FALSE,
		price_sync   BOOLEAN NOT NULL DEFAULT FALSE,
		last_sync_at TIMESTAMPTZ,
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS accounts_tenant_idx ON channel_sync.accounts (tenant_id, channel, status)`,
	`CREATE TABLE IF NOT EXISTS channel_sync.tokens (
		id         TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES channel_sync.accounts (id),
		token_type TEXT NOT NULL,
		value      TEXT NOT NULL,
		expires_at TIMESTAMPTZ,
		active     BOOLEAN NOT NULL,
		metadata   JSONB,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS tokens_one_active_idx ON channel_sync.tokens (account_id, token_type) WHERE active`,
	`CREATE TABLE IF NOT EXISTS channel_sync.listings (
		id          TEXT PRIMARY KEY,
		tenant_id   TEXT NOT NULL,
		account_id  TEXT NOT NULL,
		channel     TEXT NOT NULL,
		product_id  TEXT NOT NULL DEFAULT '',
		external_id TEXT NOT NULL,
		status      TEXT NOT NULL DEFAULT '',
		url         TEXT NOT NULL DEFAULT '',
		updated_at  TIMESTAMPTZ NOT NULL,
		UNIQUE (tenant_id, account_id, external_id)
	)`,
	`CREATE INDEX IF NOT EXISTS listings_product_idx ON channel_sync.listings (tenant_id, account_id, product_id)`,
	`CREATE TABLE IF NOT EXISTS channel_sync.sync_jobs (
		id              TEXT PRIMARY KEY,
		tenant_id       TEXT NOT NULL,
		direction       TEXT NOT NULL,
		job_type        TEXT NOT NULL,
		channel         TEXT NOT NULL,
		account_id      TEXT NOT NULL,
		status          TEXT NOT NULL,
		total_items     INTEGER NOT NULL DEFAULT 0,
		processed_items INTEGER NOT NULL DEFAULT 0,
		success_count   INTEGER NOT NULL DEFAULT 0,
		error_count     INTEGER NOT NULL DEFAULT 0,
		idempotency_key TEXT NOT NULL,
		payload         JSONB,
		error_message   TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL,
		started_at      TIMESTAMPTZ,
		completed_at    TIMESTAMPTZ,
		UNIQUE (tenant_id, idempotency_key)
	)`,
	`CREATE INDEX IF NOT EXISTS sync_jobs_tenant_idx ON channel_sync.sync_jobs (tenant_id, created_at DESC)`,
}

// EnsureSchema создает схему и таблицы, если их еще нет
func (r *Storage) EnsureSchema(ctx context.Context) error {
	return r.txManager.Do(ctx, func(ctx context.Context) error {
		exec := r.getExecutor(ctx)
		for _, stmt := range schema {
			if _, err := exec.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply schema: %w", err)
			}
		}
		return nil
	})
}
