package services

import (
	"context"
	"fmt"
	"math"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/security"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/validation"
	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
	pkgmodels "github.com/athebyme/gomarket-platform/channel-sync/pkg/models"
	"github.com/shopspring/decimal"
)

// DefaultFeeRates комиссии каналов для расчета выручки в превью
var DefaultFeeRates = map[models.Channel]decimal.Decimal{
	models.ChannelShopee:    decimal.RequireFromString("0.065"),
	models.ChannelTikTok:    decimal.RequireFromString("0.05"),
	models.ChannelTokopedia: decimal.RequireFromString("0.045"),
	models.ChannelLazada:    decimal.RequireFromString("0.06"),
}

// PreviewService строит превью листингов без обращений к маркетплейсам
type PreviewService struct {
	engine        *validation.Engine
	tokens        *security.ValidationTokenManager
	feeRates      map[models.Channel]decimal.Decimal
	defaultMarket models.Market
	logger        interfaces.LoggerPort
}

// NewPreviewService создает сервис превью. tokens может быть nil, тогда токены не выпускаются.
func NewPreviewService(engine *validation.Engine, tokens *security.ValidationTokenManager, defaultMarket models.Market, logger interfaces.LoggerPort) *PreviewService {
	if defaultMarket == "" {
		defaultMarket = models.DefaultMarket
	}
	return &PreviewService{
		engine:        engine,
		tokens:        tokens,
		feeRates:      DefaultFeeRates,
		defaultMarket: defaultMarket,
		logger:        logger,
	}
}

// Preview строит превью для каждой пары (товар, канал). Сбой одной пары превращается
// в невалидный результат этой пары и не прерывает остальные.
func (s *PreviewService) Preview(ctx context.Context, tenantID string, req models.PreviewRequest) *models.PreviewResponse {
	market := req.Market
	if market == "" {
		market = s.defaultMarket
	}
	mode := req.PreviewMode
	if mode == "" {
		mode = models.PreviewModeFull
	}

	results := make([]models.ProductPreviewResult, 0, len(req.Products)*len(req.Channels))
	for _, p := range req.Products {
		for _, ch := range req.Channels {
			results = append(results, s.previewItem(ctx, tenantID, p, ch, market, mode, req.IncludePricing))
		}
	}

	summary := models.PreviewSummary{
		TotalProducts: len(req.Products),
		TotalChannels: len(req.Channels),
		TotalPreviews: len(results),
	}
	var seoTotal, seoCount int
	for _, r := range results {
		if r.Validation.Valid {
			summary.ValidCount++
		} else {
			summary.InvalidCount++
		}
		if len(r.Warnings) > 0 {
			summary.WarningCount++
		}
		if r.SEO != nil {
			seoTotal += r.SEO.Score
			seoCount++
		}
	}
	if seoCount > 0 {
		summary.AverageSEOScore = math.Round(float64(seoTotal)/float64(seoCount)*10) / 10
	}

	s.logger.InfoWithContext(ctx, "Превью построено",
		"previews", summary.TotalPreviews,
		"valid", summary.ValidCount,
		"invalid", summary.InvalidCount)

	return &models.PreviewResponse{Success: true, Results: results, Summary: summary}
}

func (s *PreviewService) previewItem(ctx context.Context, tenantID string, p pkgmodels.Product, ch models.Channel, market models.Market, mode models.PreviewMode, includePricing bool) (res models.ProductPreviewResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorWithContext(ctx, "Сбой при построении превью",
				"product_id", p.ID,
				"channel", string(ch),
				"panic", fmt.Sprint(r))
			res = failedPreview(p.ID, ch, market, fmt.Sprintf("preview failed: %v", r))
		}
	}()

	payload := TransformerFor(ch).Transform(p, market)
	vr := s.engine.Validate(payload, ch, market, payload.CategoryID)

	res = models.ProductPreviewResult{
		ProductID:       p.ID,
		Channel:         ch,
		Market:          market,
		TransformedData: payload,
		Validation:      vr,
		Warnings:        []string{},
	}
	for _, w := range vr.Warnings {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %s", w.Field, w.Message))
	}

	if mode == models.PreviewModeFull {
		seo := validation.SEOScore(payload, ch)
		res.SEO = &seo
		res.Warnings = append(res.Warnings, seo.Suggestions...)
		if includePricing {
			res.Pricing = s.pricing(p, payload, ch)
		}
	}

	if vr.Valid && s.tokens != nil {
		token, err := s.tokens.Generate(security.TokenSubject{
			TenantID:  tenantID,
			ProductID: p.ID,
			Channel:   ch,
			Market:    market,
			Payload:   payload,
		})
		if err != nil {
			s.logger.ErrorWithContext(ctx, "Не удалось выпустить токен валидации",
				"product_id", p.ID,
				"channel", string(ch),
				"error", err.Error())
			res.Warnings = append(res.Warnings, "validation token could not be issued")
		} else {
			res.ValidationToken = token
		}
	}
	return res
}

func (s *PreviewService) pricing(p pkgmodels.Product, payload models.ChannelPayload, ch models.Channel) *models.PricingComparison {
	rate := s.feeRates[ch]
	fees := payload.Price.Mul(rate).Round(2)
	pc := &models.PricingComparison{
		Currency:    payload.Currency,
		BasePrice:   p.Price,
		ListedPrice: payload.Price,
		FeeRate:     rate,
		Fees:        fees,
		NetRevenue:  payload.Price.Sub(fees),
		Discount:    decimal.Zero,
	}
	if compareAt := payload.CompareAtPrice; compareAt != nil && compareAt.GreaterThan(payload.Price) && compareAt.IsPositive() {
		pc.Discount = compareAt.Sub(payload.Price).Div(*compareAt).Mul(decimal.NewFromInt(100)).Round(2)
	}
	return pc
}

func failedPreview(productID string, ch models.Channel, market models.Market, msg string) models.ProductPreviewResult {
	return models.ProductPreviewResult{
		ProductID: productID,
		Channel:   ch,
		Market:    market,
		Validation: models.ValidationResult{
			Valid: false,
			Errors: []models.ValidationIssue{{
				Field:    "product",
				Message:  msg,
				Severity: models.SeverityError,
				Rule:     "preview",
			}},
			Warnings: []models.ValidationIssue{},
		},
		Warnings: []string{},
	}
}
