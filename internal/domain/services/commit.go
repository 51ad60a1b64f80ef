package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/connector"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	pgport "github.com/athebyme/gomarket-platform/channel-sync/internal/infrastructure/postgres"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/metrics"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/security"
	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
	pkgmodels "github.com/athebyme/gomarket-platform/channel-sync/pkg/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// CommitCodeChannelDisabled канал не настроен в сервисе
const CommitCodeChannelDisabled = "CHANNEL_NOT_CONFIGURED"

// MarketplaceLookup выдает операции канала
type MarketplaceLookup interface {
	Lookup(ch models.Channel) (connector.Listings, error)
}

// CommitConfig параметры выполнения коммита
type CommitConfig struct {
	// DryRun глобальный пробный режим: маркетплейсы не вызываются
	DryRun      bool
	DryRunDelay time.Duration
	// Concurrency число одновременно обрабатываемых элементов
	Concurrency int
	// InterItemDelay минимальный интервал между стартами элементов
	InterItemDelay time.Duration
	DefaultMarket  models.Market
}

// CommitService выполняет create/update/publish для пар (товар, канал)
// с идемпотентностью по ключу пакета и частичным успехом
type CommitService struct {
	registry     *ChannelRegistry
	marketplaces MarketplaceLookup
	listings     pgport.ListingRepository
	tokens       *security.ValidationTokenManager
	idempotency  *IdempotencyStore
	cfg          CommitConfig
	logger       interfaces.LoggerPort
	now          func() time.Time
}

// NewCommitService создает сервис коммита
func NewCommitService(
	registry *ChannelRegistry,
	marketplaces MarketplaceLookup,
	listings pgport.ListingRepository,
	tokens *security.ValidationTokenManager,
	idempotency *IdempotencyStore,
	cfg CommitConfig,
	logger interfaces.LoggerPort,
) *CommitService {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.DefaultMarket == "" {
		cfg.DefaultMarket = models.DefaultMarket
	}
	return &CommitService{
		registry:     registry,
		marketplaces: marketplaces,
		listings:     listings,
		tokens:       tokens,
		idempotency:  idempotency,
		cfg:          cfg,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Commit выполняет пакет. Повтор ключа идемпотентности возвращает сохраненный ответ
// с Idempotent=true и не вызывает маркетплейсы.
func (s *CommitService) Commit(ctx context.Context, tenantID string, req models.CommitRequest) (*models.CommitResponse, error) {
	if err := models.ValidateRequest(req); err != nil {
		return nil, err
	}

	if stored, ok, err := s.replay(ctx, tenantID, req.IdempotencyKey); err != nil || ok {
		return stored, err
	}

	release, err := s.idempotency.Acquire(ctx, tenantID, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	defer release()

	// Параллельный запрос мог завершиться, пока мы ждали блокировку
	if stored, ok, err := s.replay(ctx, tenantID, req.IdempotencyKey); err != nil || ok {
		return stored, err
	}

	commitID := uuid.NewString()
	dryRun := req.DryRun || s.cfg.DryRun
	log := s.logger.WithFields(
		interfaces.LogField{Key: "commit_id", Value: commitID},
		interfaces.LogField{Key: "tenant_id", Value: tenantID},
	)
	log.InfoWithContext(ctx, "Коммит начат", "items", len(req.Products), "dry_run", dryRun)

	var limiter *rate.Limiter
	if s.cfg.InterItemDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(s.cfg.InterItemDelay), 1)
	}

	results := make([]models.CommitResult, len(req.Products))
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i := range req.Products {
		i := i
		g.Go(func() error {
			item := req.Products[i]
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					results[i] = s.failed(item, s.market(item), &models.CommitError{
						Code:      models.CommitCodeInternal,
						Message:   err.Error(),
						Retryable: true,
					})
					return nil
				}
			}
			results[i] = s.commitItem(ctx, log, tenantID, req.IdempotencyKey, item, dryRun)
			return nil
		})
	}
	_ = g.Wait()

	resp := buildCommitResponse(commitID, results, dryRun)
	s.saveResult(ctx, log, tenantID, req.IdempotencyKey, resp)

	log.InfoWithContext(ctx, "Коммит завершен",
		"status", string(resp.Status),
		"successful", resp.Summary.SuccessfulOperations,
		"failed", resp.Summary.FailedOperations)
	return resp, nil
}

// saveResult сохраняет ответ, пока ключ еще заблокирован. Одна повторная попытка.
func (s *CommitService) saveResult(ctx context.Context, log interfaces.LoggerPort, tenantID, key string, resp *models.CommitResponse) {
	saveCtx := context.WithoutCancel(ctx)
	err := s.idempotency.Save(saveCtx, tenantID, key, resp)
	if err != nil {
		log.WarnWithContext(ctx, "Повторное сохранение результата коммита", "error", err.Error())
		err = s.idempotency.Save(saveCtx, tenantID, key, resp)
	}
	if err != nil {
		metrics.IdempotencySaveFailures.Inc()
		log.ErrorWithContext(ctx, "Не удалось сохранить результат коммита", "error", err.Error())
	}
}

func (s *CommitService) replay(ctx context.Context, tenantID, key string) (*models.CommitResponse, bool, error) {
	stored, ok, err := s.idempotency.Get(ctx, tenantID, key)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	stored.Idempotent = true
	metrics.IdempotentReplays.Inc()
	s.logger.InfoWithContext(ctx, "Повтор коммита: возвращен сохраненный результат", "commit_id", stored.CommitID)
	return stored, true, nil
}

func buildCommitResponse(commitID string, results []models.CommitResult, dryRun bool) *models.CommitResponse {
	summary := models.CommitSummary{TotalOperations: len(results), DryRun: dryRun}
	var errs []string
	for _, r := range results {
		if r.Success {
			summary.SuccessfulOperations++
			continue
		}
		summary.FailedOperations++
		if r.Error != nil {
			errs = append(errs, fmt.Sprintf("%s/%s: %s", r.ProductID, r.Channel, r.Error.Message))
		}
	}

	status := models.CommitStatusFailed
	switch {
	case summary.FailedOperations == 0:
		status = models.CommitStatusSuccess
	case summary.SuccessfulOperations > 0:
		status = models.CommitStatusPartial
	}

	return &models.CommitResponse{
		Success:  summary.FailedOperations == 0,
		CommitID: commitID,
		Status:   status,
		Results:  results,
		Summary:  summary,
		Errors:   errs,
	}
}

// CommitHTTPStatus код ответа API: 200 все успешно, 207 частичный успех по согласию клиента,
// 400 в остальных случаях
func CommitHTTPStatus(resp *models.CommitResponse, partialSuccess bool) int {
	switch {
	case resp.Summary.FailedOperations == 0:
		return http.StatusOK
	case resp.Summary.SuccessfulOperations > 0 && partialSuccess:
		return http.StatusMultiStatus
	default:
		return http.StatusBadRequest
	}
}

func (s *CommitService) market(item models.CommitItem) models.Market {
	if item.Market != "" {
		return item.Market
	}
	return s.cfg.DefaultMarket
}

func (s *CommitService) commitItem(ctx context.Context, log interfaces.LoggerPort, tenantID, batchKey string, item models.CommitItem, dryRun bool) (res models.CommitResult) {
	market := s.market(item)
	defer func() {
		if r := recover(); r != nil {
			log.ErrorWithContext(ctx, "Сбой при обработке элемента коммита",
				"product_id", item.ProductID,
				"channel", string(item.Channel),
				"panic", fmt.Sprint(r))
			res = s.failed(item, market, &models.CommitError{Code: models.CommitCodeInternal, Message: "internal error"})
		}
		outcome := "success"
		if !res.Success {
			outcome = "failure"
		}
		metrics.CommitOperations.WithLabelValues(string(item.Channel), string(item.Operation), outcome).Inc()
	}()

	if _, err := s.tokens.Verify(item.ValidationToken, security.TokenSubject{
		TenantID:  tenantID,
		ProductID: item.ProductID,
		Channel:   item.Channel,
		Market:    market,
		Payload:   item.Data,
	}); err != nil {
		return s.failed(item, market, &models.CommitError{Code: models.CommitCodeInvalidToken, Message: err.Error()})
	}

	if dryRun {
		if s.cfg.DryRunDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.cfg.DryRunDelay):
			}
		}
		log.DebugWithContext(ctx, "Пробный режим: элемент не отправлен",
			"product_id", item.ProductID,
			"channel", string(item.Channel),
			"operation", string(item.Operation))
		res = s.succeeded(item, market, &connector.ListingInfo{ExternalID: "dryrun-" + item.ProductID})
		return res
	}

	account, err := s.registry.ResolveForChannel(ctx, tenantID, item.Channel, item.AccountID)
	if err != nil {
		return s.failed(item, market, &models.CommitError{Code: models.CommitCodeNoAccount, Message: err.Error()})
	}
	creds, err := s.registry.Credentials(ctx, account)
	if err != nil {
		return s.failed(item, market, &models.CommitError{
			Code:      models.CommitCodeNoCredentials,
			Message:   err.Error(),
			Retryable: errors.Is(err, ErrNoActiveToken),
		})
	}
	mp, err := s.marketplaces.Lookup(item.Channel)
	if err != nil {
		return s.failed(item, market, &models.CommitError{Code: CommitCodeChannelDisabled, Message: err.Error()})
	}

	itemKey := fmt.Sprintf("%s:%s:%s", batchKey, item.ProductID, item.Channel)
	info, cerr := s.execute(ctx, tenantID, account, creds, mp, item, itemKey)
	if cerr != nil {
		log.WarnWithContext(ctx, "Элемент коммита не выполнен",
			"product_id", item.ProductID,
			"channel", string(item.Channel),
			"code", cerr.Code,
			"error", cerr.Message)
		return s.failed(item, market, cerr)
	}

	listing := &pkgmodels.ChannelListing{
		TenantID:   tenantID,
		AccountID:  account.ID,
		Channel:    string(item.Channel),
		ProductID:  item.ProductID,
		ExternalID: info.ExternalID,
		Status:     "active",
		URL:        info.URL,
	}
	if item.Operation == models.OperationCreate && info.Status != "" {
		listing.Status = info.Status
	}
	if err := s.listings.SaveListing(ctx, listing); err != nil {
		log.ErrorWithContext(ctx, "Не удалось сохранить связку листинга",
			"product_id", item.ProductID,
			"external_id", info.ExternalID,
			"error", err.Error())
	}
	return s.succeeded(item, market, info)
}

func (s *CommitService) execute(ctx context.Context, tenantID string, account *models.ChannelAccount, creds connector.Credentials, mp connector.Listings, item models.CommitItem, key string) (*connector.ListingInfo, *models.CommitError) {
	switch item.Operation {
	case models.OperationCreate:
		info, err := mp.CreateListing(ctx, creds, item.Data, key)
		return info, toCommitError(err)

	case models.OperationUpdate:
		externalID, cerr := s.externalID(ctx, tenantID, account, item)
		if cerr != nil {
			return nil, cerr
		}
		if externalID == "" {
			return nil, &models.CommitError{Code: models.CommitCodeListingUnknown, Message: "no listing to update for product " + item.ProductID}
		}
		info, err := mp.UpdateListing(ctx, creds, externalID, item.Data, key)
		return info, toCommitError(err)

	case models.OperationPublish:
		externalID, cerr := s.externalID(ctx, tenantID, account, item)
		if cerr != nil {
			return nil, cerr
		}
		if externalID != "" {
			existing, err := mp.GetListing(ctx, creds, externalID)
			if err != nil {
				return nil, toCommitError(err)
			}
			if existing != nil {
				if err := mp.UpdateListingStatus(ctx, creds, externalID, true, key); err != nil {
					return nil, toCommitError(err)
				}
				existing.Status = "active"
				return existing, nil
			}
		}
		info, err := mp.CreateListing(ctx, creds, item.Data, key)
		return info, toCommitError(err)

	default:
		return nil, &models.CommitError{Code: models.CommitCodeInternal, Message: "unknown operation " + string(item.Operation)}
	}
}

func (s *CommitService) externalID(ctx context.Context, tenantID string, account *models.ChannelAccount, item models.CommitItem) (string, *models.CommitError) {
	if item.ListingID != "" {
		return item.ListingID, nil
	}
	l, err := s.listings.GetByProduct(ctx, tenantID, account.ID, item.ProductID)
	if err != nil {
		return "", &models.CommitError{Code: models.CommitCodeInternal, Message: err.Error(), Retryable: true}
	}
	if l == nil {
		return "", nil
	}
	return l.ExternalID, nil
}

func toCommitError(err error) *models.CommitError {
	if err == nil {
		return nil
	}
	ce := connector.AsConnectorError(err)
	return &models.CommitError{Code: ce.Code, Message: ce.Message, Retryable: ce.Retryable}
}

func (s *CommitService) failed(item models.CommitItem, market models.Market, cerr *models.CommitError) models.CommitResult {
	return models.CommitResult{
		ProductID: item.ProductID,
		Channel:   item.Channel,
		Market:    market,
		Operation: item.Operation,
		Success:   false,
		ListingID: item.ListingID,
		Error:     cerr,
		Timestamp: s.now(),
	}
}

func (s *CommitService) succeeded(item models.CommitItem, market models.Market, info *connector.ListingInfo) models.CommitResult {
	return models.CommitResult{
		ProductID:  item.ProductID,
		Channel:    item.Channel,
		Market:     market,
		Operation:  item.Operation,
		Success:    true,
		ListingID:  info.ExternalID,
		ListingURL: info.URL,
		Timestamp:  s.now(),
	}
}
