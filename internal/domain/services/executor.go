package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/connector"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	pgport "github.com/athebyme/gomarket-platform/channel-sync/internal/infrastructure/postgres"
	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
	pkgmodels "github.com/athebyme/gomarket-platform/channel-sync/pkg/models"
	"github.com/google/uuid"
)

// ErrJobNotFound задача из очереди отсутствует в хранилище
var ErrJobNotFound = errors.New("sync job not found")

// EventPublisher публикует события каналов
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *models.ChannelEvent) error
}

// ExecutorConfig параметры исполнителя задач
type ExecutorConfig struct {
	PageSize int
	// MaxPages ограничение страниц pull задачи, если в задаче оно не задано
	MaxPages int
	// OrdersLookback период заказов для pull без since
	OrdersLookback time.Duration
}

// JobExecutor выполняет задачи синхронизации из очереди
type JobExecutor struct {
	jobs         pgport.SyncJobRepository
	accounts     pgport.AccountRepository
	listings     pgport.ListingRepository
	registry     *ChannelRegistry
	marketplaces MarketplaceLookup
	events       EventPublisher
	cfg          ExecutorConfig
	logger       interfaces.LoggerPort
	now          func() time.Time
}

// NewJobExecutor создает исполнитель задач
func NewJobExecutor(
	jobs pgport.SyncJobRepository,
	accounts pgport.AccountRepository,
	listings pgport.ListingRepository,
	registry *ChannelRegistry,
	marketplaces MarketplaceLookup,
	events EventPublisher,
	cfg ExecutorConfig,
	logger interfaces.LoggerPort,
) *JobExecutor {
	if cfg.PageSize < 1 {
		cfg.PageSize = 50
	}
	if cfg.MaxPages < 1 {
		cfg.MaxPages = 100
	}
	if cfg.OrdersLookback <= 0 {
		cfg.OrdersLookback = 24 * time.Hour
	}
	return &JobExecutor{
		jobs:         jobs,
		accounts:     accounts,
		listings:     listings,
		registry:     registry,
		marketplaces: marketplaces,
		events:       events,
		cfg:          cfg,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// jobRun среда выполнения одной задачи
type jobRun struct {
	job     *models.SyncJob
	account *models.ChannelAccount
	creds   connector.Credentials
	mp      connector.Listings
	log     interfaces.LoggerPort
}

// Execute выполняет задачу. Задачи в конечном статусе пропускаются, поэтому повторная
// доставка сообщения не повторяет работу.
func (e *JobExecutor) Execute(ctx context.Context, tenantID, jobID string) (*models.SyncJob, error) {
	job, err := e.jobs.GetJob(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	log := e.logger.WithFields(
		interfaces.LogField{Key: "job_id", Value: job.ID},
		interfaces.LogField{Key: "tenant_id", Value: job.TenantID},
		interfaces.LogField{Key: "account_id", Value: job.AccountID},
	)
	if job.Status.IsTerminal() {
		log.InfoWithContext(ctx, "Задача уже завершена, пропускаем", "status", string(job.Status))
		return job, nil
	}

	started := e.now()
	job.Status = models.JobStatusRunning
	job.StartedAt = &started
	job.ProcessedItems, job.SuccessCount, job.ErrorCount, job.ErrorMessage = 0, 0, 0, ""
	if err := e.jobs.UpdateJob(ctx, job); err != nil {
		return nil, err
	}

	runErr := e.run(ctx, job, log)

	completed := e.now()
	job.CompletedAt = &completed
	switch {
	case runErr != nil:
		job.Status = models.JobStatusFailed
		job.ErrorMessage = runErr.Error()
	case job.ErrorCount > 0 && job.SuccessCount == 0:
		job.Status = models.JobStatusFailed
		job.ErrorMessage = "all items failed"
	default:
		job.Status = models.JobStatusCompleted
	}
	if err := e.jobs.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	if job.Status == models.JobStatusCompleted {
		if err := e.accounts.TouchLastSync(ctx, job.TenantID, job.AccountID, completed); err != nil {
			log.WarnWithContext(ctx, "Не удалось обновить время синхронизации аккаунта", "error", err.Error())
		}
	}

	eventType := models.EventSyncJobCompleted
	if job.Status == models.JobStatusFailed {
		eventType = models.EventSyncJobFailed
	}
	e.publish(ctx, log, job, eventType, job)

	log.InfoWithContext(ctx, "Задача синхронизации выполнена",
		"status", string(job.Status),
		"processed", job.ProcessedItems,
		"success", job.SuccessCount,
		"errors", job.ErrorCount)
	return job, nil
}

func (e *JobExecutor) run(ctx context.Context, job *models.SyncJob, log interfaces.LoggerPort) error {
	account, err := e.registry.ResolveForChannel(ctx, job.TenantID, job.Channel, job.AccountID)
	if err != nil {
		return err
	}
	creds, err := e.registry.Credentials(ctx, account)
	if err != nil {
		return err
	}
	mp, err := e.marketplaces.Lookup(job.Channel)
	if err != nil {
		return err
	}
	r := &jobRun{job: job, account: account, creds: creds, mp: mp, log: log}

	switch job.Direction {
	case models.DirectionPush:
		return e.push(ctx, r)
	case models.DirectionPull:
		return e.pull(ctx, r)
	default:
		return fmt.Errorf("unknown job direction %q", job.Direction)
	}
}

func (e *JobExecutor) push(ctx context.Context, r *jobRun) error {
	var payload models.PushJobPayload
	if err := json.Unmarshal(r.job.Payload, &payload); err != nil {
		return fmt.Errorf("invalid push payload: %w", err)
	}
	r.job.TotalItems = len(payload.Items)

	for _, it := range payload.Items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.pushItem(ctx, r, it); err != nil {
			r.job.ErrorCount++
			r.log.WarnWithContext(ctx, "Элемент push задачи не выполнен", "listing_id", it.ListingID, "error", err.Error())
		} else {
			r.job.SuccessCount++
		}
		r.job.ProcessedItems++
	}
	return nil
}

func (e *JobExecutor) pushItem(ctx context.Context, r *jobRun, it models.PushItem) error {
	key := r.job.IdempotencyKey + ":" + it.ListingID
	if it.Quantity != nil {
		if err := r.mp.UpdateStock(ctx, r.creds, it.ListingID, *it.Quantity, key+":stock"); err != nil {
			return err
		}
	}
	if it.Price != nil {
		if err := r.mp.UpdatePrice(ctx, r.creds, it.ListingID, *it.Price, key+":price"); err != nil {
			return err
		}
	}
	if it.Activate {
		if err := r.mp.UpdateListingStatus(ctx, r.creds, it.ListingID, true, key+":status"); err != nil {
			return err
		}
	}
	return nil
}

func (e *JobExecutor) pull(ctx context.Context, r *jobRun) error {
	var payload models.PullJobPayload
	if len(r.job.Payload) > 0 {
		if err := json.Unmarshal(r.job.Payload, &payload); err != nil {
			return fmt.Errorf("invalid pull payload: %w", err)
		}
	}
	pageSize := payload.PageSize
	if pageSize < 1 {
		pageSize = e.cfg.PageSize
	}
	maxPages := payload.MaxPages
	if maxPages < 1 {
		maxPages = e.cfg.MaxPages
	}

	switch r.job.JobType {
	case models.JobTypeOrders:
		return e.pullOrders(ctx, r, payload.Since, pageSize, maxPages)
	case models.JobTypeFull:
		if err := e.pullListings(ctx, r, pageSize, maxPages); err != nil {
			return err
		}
		return e.pullOrders(ctx, r, payload.Since, pageSize, maxPages)
	default:
		// catalog, stock и prices читаются одним списком листингов
		return e.pullListings(ctx, r, pageSize, maxPages)
	}
}

func (e *JobExecutor) pullListings(ctx context.Context, r *jobRun, pageSize, maxPages int) error {
	offset := 0
	for page := 0; page < maxPages; page++ {
		lp, err := r.mp.ListListings(ctx, r.creds, offset, pageSize)
		if err != nil {
			return err
		}
		for _, info := range lp.Items {
			r.job.TotalItems++
			r.job.ProcessedItems++
			err := e.listings.SaveListing(ctx, &pkgmodels.ChannelListing{
				TenantID:   r.job.TenantID,
				AccountID:  r.account.ID,
				Channel:    string(r.account.Channel),
				ExternalID: info.ExternalID,
				Status:     info.Status,
				URL:        info.URL,
			})
			if err != nil {
				r.job.ErrorCount++
				r.log.WarnWithContext(ctx, "Не удалось сохранить листинг", "external_id", info.ExternalID, "error", err.Error())
				continue
			}
			r.job.SuccessCount++
		}
		if !lp.HasMore {
			return nil
		}
		offset = lp.NextOffset
	}
	return nil
}

func (e *JobExecutor) pullOrders(ctx context.Context, r *jobRun, since *time.Time, pageSize, maxPages int) error {
	from := e.now().Add(-e.cfg.OrdersLookback)
	if since != nil {
		from = *since
	} else if r.account.LastSyncAt != nil {
		from = *r.account.LastSyncAt
	}

	cursor := ""
	for page := 0; page < maxPages; page++ {
		op, err := r.mp.ListOrders(ctx, r.creds, from, cursor, pageSize)
		if err != nil {
			return err
		}
		for _, order := range op.Orders {
			r.job.TotalItems++
			r.job.ProcessedItems++
			if err := e.publish(ctx, r.log, r.job, models.EventOrderPulled, order); err != nil {
				r.job.ErrorCount++
				continue
			}
			r.job.SuccessCount++
		}
		if !op.HasMore || op.NextCursor == "" {
			return nil
		}
		cursor = op.NextCursor
	}
	return nil
}

func (e *JobExecutor) publish(ctx context.Context, log interfaces.LoggerPort, job *models.SyncJob, eventType models.EventType, data interface{}) error {
	if e.events == nil {
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	err = e.events.PublishEvent(ctx, &models.ChannelEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		TenantID:   job.TenantID,
		Channel:    job.Channel,
		AccountID:  job.AccountID,
		JobID:      job.ID,
		OccurredAt: e.now(),
		Data:       raw,
	})
	if err != nil {
		log.ErrorWithContext(ctx, "Не удалось опубликовать событие", "type", eventType, "error", err.Error())
	}
	return err
}
