package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
	"github.com/robfig/cron/v3"
)

// AutoSyncKeyPrefix префикс ключа идемпотентности плановой синхронизации
const AutoSyncKeyPrefix = "auto-sync:"

// TenantLister арендаторы с аккаунтами для автосинхронизации
type TenantLister interface {
	ListAutoSyncTenants(ctx context.Context) ([]string, error)
}

// Puller ставит pull задачи
type Puller interface {
	Pull(ctx context.Context, tenantID string, req models.PullRequest) (*models.DispatchResponse, error)
}

// AutoSync по расписанию ставит pull задачи каталога для всех аккаунтов с автосинхронизацией
type AutoSync struct {
	cron    *cron.Cron
	tenants TenantLister
	puller  Puller
	timeout time.Duration
	logger  interfaces.LoggerPort

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

// NewAutoSync создает планировщик. timeout ограничивает один запуск.
func NewAutoSync(tenants TenantLister, puller Puller, timeout time.Duration, logger interfaces.LoggerPort) *AutoSync {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &AutoSync{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		tenants: tenants,
		puller:  puller,
		timeout: timeout,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AutoSyncKey ключ запуска: один на минуту расписания, поэтому повторный запуск
// той же минуты другим экземпляром воркера не создаст новых задач
func AutoSyncKey(tick time.Time) string {
	return AutoSyncKeyPrefix + tick.UTC().Truncate(time.Minute).Format("2006-01-02T15:04Z")
}

// Start регистрирует расписание в формате cron из пяти полей и запускает планировщик
func (s *AutoSync) Start(schedule string) error {
	id, err := s.cron.AddFunc(schedule, func() {
		s.Run(s.ctx, time.Now())
	})
	if err != nil {
		return fmt.Errorf("failed to schedule auto sync %q: %w", schedule, err)
	}
	s.cron.Start()
	s.logger.Info("Планировщик автосинхронизации запущен",
		"schedule", schedule,
		"entry_id", int(id),
		"next_run", s.cron.Entry(id).Next.Format(time.RFC3339))
	return nil
}

// Stop останавливает планировщик и ждет завершения текущего запуска
func (s *AutoSync) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("Планировщик автосинхронизации остановлен")
}

// Run ставит задачи для всех арендаторов. Ошибка одного арендатора не прерывает остальных.
func (s *AutoSync) Run(ctx context.Context, tick time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	key := AutoSyncKey(tick)

	tenants, err := s.tenants.ListAutoSyncTenants(ctx)
	if err != nil {
		s.logger.Error("Не удалось получить арендаторов для автосинхронизации", "error", err.Error())
		return
	}

	jobs, failed := 0, 0
	for _, tenantID := range tenants {
		req := models.PullRequest{
			SyncRequest: models.SyncRequest{
				JobType:        models.JobTypeCatalog,
				IdempotencyKey: key,
			},
		}
		resp, err := s.puller.Pull(ctx, tenantID, req)
		if err != nil {
			failed++
			s.logger.Error("Ошибка автосинхронизации арендатора",
				"tenant_id", tenantID,
				"error", err.Error())
			continue
		}
		jobs += len(resp.JobsCreated)
		failed += resp.Summary.Failed
	}

	s.logger.Info("Автосинхронизация поставлена в очередь",
		"idempotency_key", key,
		"tenants", len(tenants),
		"jobs", jobs,
		"failed", failed,
		"duration", time.Since(start).String())
}
