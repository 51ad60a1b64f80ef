package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	pgport "github.com/athebyme/gomarket-platform/channel-sync/internal/infrastructure/postgres"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/metrics"
	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrNoListingsResolved для аккаунта не нашлось ни одного листинга
var ErrNoListingsResolved = errors.New("no listings resolved")

// ErrJobKeyConflict ключ идемпотентности уже занят задачей другого направления
var ErrJobKeyConflict = errors.New("idempotency key already used by a job with another direction")

// MessageNoAccounts сообщение ответа, когда ни один аккаунт не подошел
const MessageNoAccounts = "no active accounts matched the request"

// JobQueue ставит задачи синхронизации в очередь.
// Повторная постановка задачи с тем же ключом идемпотентности возвращает уже созданную задачу.
type JobQueue interface {
	Enqueue(ctx context.Context, job *models.SyncJob) (*models.SyncJob, error)
}

// DispatchConfig параметры диспетчера
type DispatchConfig struct {
	// DryRun глобальный пробный режим: задачи только логируются
	DryRun          bool
	Concurrency     int
	DefaultPageSize int
}

// Dispatcher превращает pull/push запрос в задачи по одной на аккаунт
type Dispatcher struct {
	registry *ChannelRegistry
	listings pgport.ListingRepository
	queue    JobQueue
	cfg      DispatchConfig
	logger   interfaces.LoggerPort
	now      func() time.Time
}

// NewDispatcher создает диспетчер
func NewDispatcher(registry *ChannelRegistry, listings pgport.ListingRepository, queue JobQueue, cfg DispatchConfig, logger interfaces.LoggerPort) *Dispatcher {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.DefaultPageSize < 1 {
		cfg.DefaultPageSize = 50
	}
	return &Dispatcher{
		registry: registry,
		listings: listings,
		queue:    queue,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AccountJobKey ключ идемпотентности задачи одного аккаунта
func AccountJobKey(base, accountID string, jobType models.JobType) string {
	return base + ":" + accountID + ":" + string(jobType)
}

// payloadBuilder готовит полезную нагрузку задачи для аккаунта и число элементов в ней
type payloadBuilder func(ctx context.Context, account *models.ChannelAccount) (json.RawMessage, int, error)

// Pull ставит задачи загрузки данных с маркетплейсов
func (d *Dispatcher) Pull(ctx context.Context, tenantID string, req models.PullRequest) (*models.DispatchResponse, error) {
	if err := models.ValidateRequest(req); err != nil {
		return nil, err
	}
	pageSize := req.Options.PageSize
	if pageSize == 0 {
		pageSize = d.cfg.DefaultPageSize
	}
	payload, err := json.Marshal(models.PullJobPayload{
		Since:    req.Options.Since,
		PageSize: pageSize,
		MaxPages: req.Options.MaxPages,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode pull payload: %w", err)
	}

	return d.dispatch(ctx, tenantID, models.DirectionPull, req.SyncRequest,
		func(context.Context, *models.ChannelAccount) (json.RawMessage, int, error) {
			return payload, 0, nil
		})
}

// Push ставит задачи выгрузки данных на маркетплейсы. Листинги берутся из запроса
// или находятся по ID товаров отдельно для каждого аккаунта.
func (d *Dispatcher) Push(ctx context.Context, tenantID string, req models.PushRequest) (*models.DispatchResponse, error) {
	if err := models.ValidateRequest(req); err != nil {
		return nil, err
	}
	data, err := models.ParsePushData(req.JobType, req.Data)
	if err != nil {
		return nil, err
	}

	return d.dispatch(ctx, tenantID, models.DirectionPush, req.SyncRequest,
		func(ctx context.Context, account *models.ChannelAccount) (json.RawMessage, int, error) {
			items, err := d.resolvePushItems(ctx, tenantID, account, data)
			if err != nil {
				return nil, 0, err
			}
			if len(items) == 0 {
				return nil, 0, ErrNoListingsResolved
			}
			raw, err := json.Marshal(models.PushJobPayload{Items: items})
			if err != nil {
				return nil, 0, fmt.Errorf("failed to encode push payload: %w", err)
			}
			return raw, len(items), nil
		})
}

func (d *Dispatcher) resolvePushItems(ctx context.Context, tenantID string, account *models.ChannelAccount, data *models.PushData) ([]models.PushItem, error) {
	byProduct := map[string][]string{}
	if ids := data.ProductIDs(); len(ids) > 0 {
		found, err := d.listings.FindByProducts(ctx, tenantID, account.ID, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve listings: %w", err)
		}
		for _, l := range found {
			byProduct[l.ProductID] = append(byProduct[l.ProductID], l.ExternalID)
		}
	}

	var items []models.PushItem
	expand := func(productID, listingID string, fill func(*models.PushItem)) {
		targets := []string{listingID}
		if listingID == "" {
			targets = byProduct[productID]
		}
		for _, id := range targets {
			it := models.PushItem{ListingID: id, ProductID: productID}
			fill(&it)
			items = append(items, it)
		}
	}

	if data.Catalog != nil {
		for _, id := range data.Catalog.ListingIDs {
			expand("", id, func(it *models.PushItem) { it.Activate = true })
		}
		for _, id := range data.Catalog.ProductIDs {
			expand(id, "", func(it *models.PushItem) { it.Activate = true })
		}
	}
	if data.Stock != nil {
		for _, s := range data.Stock.Items {
			qty := s.Quantity
			expand(s.ProductID, s.ListingID, func(it *models.PushItem) { it.Quantity = &qty })
		}
	}
	if data.Prices != nil {
		for _, p := range data.Prices.Items {
			price := p.Price
			expand(p.ProductID, p.ListingID, func(it *models.PushItem) { it.Price = &price })
		}
	}
	return items, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, tenantID string, direction models.JobDirection, req models.SyncRequest, build payloadBuilder) (*models.DispatchResponse, error) {
	start := time.Now()
	dryRun := req.DryRun || d.cfg.DryRun

	accounts, err := d.registry.Resolve(ctx, tenantID, TargetAccounts{AccountIDs: req.TargetAccounts, Channel: req.Channel}, req.JobType)
	if err != nil {
		return nil, err
	}

	resp := &models.DispatchResponse{
		JobsCreated: []models.SyncJob{},
		Summary: models.DispatchSummary{
			TotalAccounts:    len(accounts),
			AccountBreakdown: make([]models.AccountDispatchResult, len(accounts)),
		},
		DryRun: dryRun,
	}
	if len(accounts) == 0 {
		resp.Message = MessageNoAccounts
		resp.ProcessingTime = time.Since(start).String()
		d.logger.WarnWithContext(ctx, "Нет аккаунтов для синхронизации",
			"tenant_id", tenantID,
			"direction", string(direction),
			"job_type", string(req.JobType))
		return resp, nil
	}

	jobs := make([]*models.SyncJob, len(accounts))
	var g errgroup.Group
	g.SetLimit(d.cfg.Concurrency)
	for i, account := range accounts {
		i, account := i, account
		g.Go(func() error {
			resp.Summary.AccountBreakdown[i], jobs[i] = d.dispatchAccount(ctx, tenantID, direction, req, account, build, dryRun)
			return nil
		})
	}
	_ = g.Wait()

	for i, r := range resp.Summary.AccountBreakdown {
		outcome := "success"
		if !r.Success {
			outcome = "failure"
			resp.Summary.Failed++
		} else {
			resp.Summary.Successful++
			if jobs[i] != nil {
				resp.JobsCreated = append(resp.JobsCreated, *jobs[i])
			}
		}
		metrics.DispatchedJobs.WithLabelValues(string(direction), string(req.JobType), outcome).Inc()
	}
	resp.Success = resp.Summary.Failed == 0
	resp.ProcessingTime = time.Since(start).String()

	d.logger.InfoWithContext(ctx, "Задачи синхронизации поставлены",
		"tenant_id", tenantID,
		"direction", string(direction),
		"job_type", string(req.JobType),
		"accounts", resp.Summary.TotalAccounts,
		"failed", resp.Summary.Failed,
		"dry_run", dryRun)
	return resp, nil
}

func (d *Dispatcher) dispatchAccount(ctx context.Context, tenantID string, direction models.JobDirection, req models.SyncRequest, account *models.ChannelAccount, build payloadBuilder, dryRun bool) (result models.AccountDispatchResult, job *models.SyncJob) {
	key := AccountJobKey(req.IdempotencyKey, account.ID, req.JobType)
	result = models.AccountDispatchResult{AccountID: account.ID, Channel: account.Channel, IdempotencyKey: key}
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorWithContext(ctx, "Сбой при постановке задачи", "account_id", account.ID, "panic", fmt.Sprint(r))
			result.Success, result.Error, job = false, "internal error", nil
		}
	}()

	payload, total, err := build(ctx, account)
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}

	job = &models.SyncJob{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		Direction:      direction,
		JobType:        req.JobType,
		Channel:        account.Channel,
		AccountID:      account.ID,
		Status:         models.JobStatusPending,
		TotalItems:     total,
		IdempotencyKey: key,
		Payload:        payload,
		CreatedAt:      d.now(),
	}

	if dryRun {
		d.logger.InfoWithContext(ctx, "Пробный режим: задача не поставлена",
			"account_id", account.ID,
			"channel", string(account.Channel),
			"job_type", string(req.JobType),
			"idempotency_key", key,
			"total_items", total)
		result.Success, result.JobID = true, job.ID
		return result, job
	}

	stored, err := d.queue.Enqueue(ctx, job)
	if err != nil {
		d.logger.ErrorWithContext(ctx, "Не удалось поставить задачу",
			"account_id", account.ID,
			"idempotency_key", key,
			"error", err.Error())
		result.Error = err.Error()
		return result, nil
	}
	if stored.Direction != direction || stored.JobType != req.JobType {
		d.logger.WarnWithContext(ctx, "Ключ идемпотентности занят другой задачей",
			"account_id", account.ID,
			"idempotency_key", key,
			"job_id", stored.ID,
			"direction", string(stored.Direction))
		result.Error, result.JobID = ErrJobKeyConflict.Error(), stored.ID
		return result, nil
	}
	result.Success, result.JobID = true, stored.ID
	return result, stored
}
