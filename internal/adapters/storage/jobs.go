package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const jobColumns = `id, tenant_id, direction, job_type, channel, account_id, status, total_items, processed_items,
	success_count, error_count, idempotency_key, payload, error_message, created_at, started_at, completed_at`

func scanJob(row scanner) (*models.SyncJob, error) {
	var (
		j                                   models.SyncJob
		direction, jobType, channel, status string
		payload                             []byte
	)
	err := row.Scan(&j.ID, &j.TenantID, &direction, &jobType, &channel, &j.AccountID, &status, &j.TotalItems,
		&j.ProcessedItems, &j.SuccessCount, &j.ErrorCount, &j.IdempotencyKey, &payload, &j.ErrorMessage,
		&j.CreatedAt, &j.StartedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	j.Direction = models.JobDirection(direction)
	j.JobType = models.JobType(jobType)
	j.Channel = models.Channel(channel)
	j.Status = models.JobStatus(status)
	j.Payload = payload
	return &j, nil
}

// CreateJob сохраняет задачу; повтор ключа идемпотентности возвращает существующую задачу
func (r *Storage) CreateJob(ctx context.Context, job *models.SyncJob) (*models.SyncJob, bool, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = r.now()
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}

	insert := `
		INSERT INTO channel_sync.sync_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (tenant_id, idempotency_key) DO NOTHING
		RETURNING id
	`
	var payload []byte
	if len(job.Payload) > 0 {
		payload = job.Payload
	}

	exec := r.getExecutor(ctx)
	var id string
	err := exec.QueryRow(ctx, insert, job.ID, job.TenantID, string(job.Direction), string(job.JobType),
		string(job.Channel), job.AccountID, string(job.Status), job.TotalItems, job.ProcessedItems,
		job.SuccessCount, job.ErrorCount, job.IdempotencyKey, payload, job.ErrorMessage, job.CreatedAt,
		job.StartedAt, job.CompletedAt).Scan(&id)
	if err == nil {
		return job, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to create sync job: %w", err)
	}

	// Конфликт по ключу идемпотентности
	existing, err := scanJob(exec.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM channel_sync.sync_jobs WHERE tenant_id = $1 AND idempotency_key = $2`,
		job.TenantID, job.IdempotencyKey))
	if err != nil {
		return nil, false, fmt.Errorf("failed to load existing sync job: %w", err)
	}
	return existing, false, nil
}

// GetJob получает задачу по ID
func (r *Storage) GetJob(ctx context.Context, tenantID, jobID string) (*models.SyncJob, error) {
	query := `SELECT ` + jobColumns + ` FROM channel_sync.sync_jobs WHERE id = $1 AND tenant_id = $2`
	job, err := scanJob(r.getExecutor(ctx).QueryRow(ctx, query, jobID, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get sync job: %w", err)
	}
	return job, nil
}

// ListJobs возвращает страницу задач и общее количество
func (r *Storage) ListJobs(ctx context.Context, filter models.JobFilter) ([]*models.SyncJob, int, error) {
	var where whereBuilder
	where.add("tenant_id = ?", filter.TenantID)
	if filter.AccountID != "" {
		where.add("account_id = ?", filter.AccountID)
	}
	if filter.Status != "" {
		where.add("status = ?", string(filter.Status))
	}
	if filter.JobType != "" {
		where.add("job_type = ?", string(filter.JobType))
	}

	exec := r.getExecutor(ctx)

	var total int
	countQuery := `SELECT COUNT(*) FROM channel_sync.sync_jobs ` + where.String()
	if err := exec.QueryRow(ctx, countQuery, where.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count sync jobs: %w", err)
	}
	if total == 0 {
		return []*models.SyncJob{}, 0, nil
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	limitArg := where.next()
	args := append(where.args, limit)
	offsetArg := fmt.Sprintf("$%d", len(args)+1)
	args = append(args, filter.Offset)

	dataQuery := `SELECT ` + jobColumns + ` FROM channel_sync.sync_jobs ` + where.String() +
		` ORDER BY created_at DESC, id LIMIT ` + limitArg + ` OFFSET ` + offsetArg

	rows, err := exec.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list sync jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*models.SyncJob, 0, limit)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan sync job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if rows.Err() != nil {
		return nil, 0, fmt.Errorf("error while iterating sync job rows: %w", rows.Err())
	}
	return jobs, total, nil
}

// UpdateJob сохраняет статус, счетчики и времена задачи
func (r *Storage) UpdateJob(ctx context.Context, job *models.SyncJob) error {
	query := `
		UPDATE channel_sync.sync_jobs
		SET status = $3,
			total_items = $4,
			processed_items = $5,
			success_count = $6,
			error_count = $7,
			error_message = $8,
			started_at = $9,
			completed_at = $10
		WHERE id = $1 AND tenant_id = $2
	`
	tag, err := r.getExecutor(ctx).Exec(ctx, query, job.ID, job.TenantID, string(job.Status), job.TotalItems,
		job.ProcessedItems, job.SuccessCount, job.ErrorCount, job.ErrorMessage, job.StartedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to update sync job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sync job %s not found", job.ID)
	}
	return nil
}
