package models

import (
	"time"

	pkgmodels "github.com/athebyme/gomarket-platform/channel-sync/pkg/models"
	"github.com/shopspring/decimal"
)

// CommitOperation действие коммита над листингом
type CommitOperation string

const (
	OperationCreate  CommitOperation = "create"
	OperationUpdate  CommitOperation = "update"
	OperationPublish CommitOperation = "publish"
)

// CommitItem одна пара (товар, канал) в коммите
type CommitItem struct {
	ProductID       string          `json:"productId" validate:"required"`
	Channel         Channel         `json:"channel" validate:"required,channel"`
	Market          Market          `json:"market,omitempty"`
	Operation       CommitOperation `json:"operation" validate:"required,oneof=create update publish"`
	Data            ChannelPayload  `json:"data"`
	ValidationToken string          `json:"validationToken"`
	// AccountID выбирает аккаунт канала; по умолчанию первый активный
	AccountID string `json:"accountId,omitempty"`
	// ListingID внешний ID листинга для update; иначе берется из сохраненной связки
	ListingID string `json:"listingId,omitempty"`
}

// CommitRequest пакет операций с одним ключом идемпотентности
type CommitRequest struct {
	Products       []CommitItem `json:"products" validate:"required,min=1,dive"`
	IdempotencyKey string       `json:"idempotencyKey" validate:"required,max=255"`
	DryRun         bool         `json:"dryRun,omitempty"`
	PartialSuccess bool         `json:"partialSuccess,omitempty"`
}

// Коды ошибок элементов коммита, кроме кодов коннектора
const (
	CommitCodeInvalidToken   = "INVALID_VALIDATION_TOKEN"
	CommitCodeNoAccount      = "NO_ACTIVE_ACCOUNT"
	CommitCodeNoCredentials  = "MISSING_CREDENTIALS"
	CommitCodeListingUnknown = "LISTING_NOT_FOUND"
	CommitCodeInternal       = "INTERNAL_ERROR"
)

// CommitError типизированная ошибка элемента
type CommitError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// CommitResult итог одной пары (товар, канал)
type CommitResult struct {
	ProductID  string          `json:"productId"`
	Channel    Channel         `json:"channel"`
	Market     Market          `json:"market"`
	Operation  CommitOperation `json:"operation"`
	Success    bool            `json:"success"`
	ListingID  string          `json:"listingId,omitempty"`
	ListingURL string          `json:"listingUrl,omitempty"`
	Error      *CommitError    `json:"error,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// CommitSummary сводка коммита
type CommitSummary struct {
	TotalOperations      int  `json:"totalOperations"`
	SuccessfulOperations int  `json:"successfulOperations"`
	FailedOperations     int  `json:"failedOperations"`
	DryRun               bool `json:"dryRun"`
}

// CommitStatus итоговый статус пакета
type CommitStatus string

const (
	CommitStatusSuccess CommitStatus = "success"
	CommitStatusPartial CommitStatus = "partial"
	CommitStatusFailed  CommitStatus = "failed"
)

// CommitResponse ответ коммита. Сохраняется в хранилище идемпотентности целиком.
type CommitResponse struct {
	Success    bool           `json:"success"`
	CommitID   string         `json:"commitId"`
	Status     CommitStatus   `json:"status"`
	Results    []CommitResult `json:"results"`
	Summary    CommitSummary  `json:"summary"`
	Errors     []string       `json:"errors,omitempty"`
	Idempotent bool           `json:"idempotent"`
}

// PreviewMode объем превью
type PreviewMode string

const (
	PreviewModeFull           PreviewMode = "full"
	PreviewModeValidationOnly PreviewMode = "validation_only"
)

// PreviewRequest запрос превью товаров для каналов
type PreviewRequest struct {
	Products       []pkgmodels.Product `json:"products" validate:"required,min=1,dive"`
	Channels       []Channel           `json:"channels" validate:"required,min=1,dive,channel"`
	Market         Market              `json:"market,omitempty"`
	IncludePricing bool                `json:"includePricing,omitempty"`
	PreviewMode    PreviewMode         `json:"previewMode,omitempty" validate:"omitempty,oneof=full validation_only"`
}

// PricingComparison расчет выручки с учетом комиссии канала
type PricingComparison struct {
	Currency    string          `json:"currency"`
	BasePrice   decimal.Decimal `json:"basePrice"`
	ListedPrice decimal.Decimal `json:"listedPrice"`
	FeeRate     decimal.Decimal `json:"feeRate"`
	Fees        decimal.Decimal `json:"fees"`
	NetRevenue  decimal.Decimal `json:"netRevenue"`
	Discount    decimal.Decimal `json:"discountPercent"`
}

// ProductPreviewResult превью одной пары (товар, канал)
type ProductPreviewResult struct {
	ProductID       string             `json:"productId"`
	Channel         Channel            `json:"channel"`
	Market          Market             `json:"market"`
	TransformedData ChannelPayload     `json:"transformedData"`
	Validation      ValidationResult   `json:"validation"`
	SEO             *SEOResult         `json:"seo,omitempty"`
	Pricing         *PricingComparison `json:"pricing,omitempty"`
	Warnings        []string           `json:"warnings"`
	ValidationToken string             `json:"validationToken,omitempty"`
}

// PreviewSummary сводка превью
type PreviewSummary struct {
	TotalProducts   int     `json:"totalProducts"`
	TotalChannels   int     `json:"totalChannels"`
	TotalPreviews   int     `json:"totalPreviews"`
	ValidCount      int     `json:"validCount"`
	InvalidCount    int     `json:"invalidCount"`
	WarningCount    int     `json:"warningCount"`
	AverageSEOScore float64 `json:"averageSeoScore"`
}

// PreviewResponse ответ превью
type PreviewResponse struct {
	Success bool                   `json:"success"`
	Results []ProductPreviewResult `json:"results"`
	Summary PreviewSummary         `json:"summary"`
}
