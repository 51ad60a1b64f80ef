package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("channel", func(fl validator.FieldLevel) bool {
		return Channel(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("jobtype", func(fl validator.FieldLevel) bool {
		return JobType(fl.Field().String()).IsValid()
	})
	return v
}

// FieldViolation нарушение в одном поле запроса
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// RequestError запрос не прошел проверку на границе API
type RequestError struct {
	Message string           `json:"message"`
	Details []FieldViolation `json:"details,omitempty"`
}

func (e *RequestError) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, d.Field+": "+d.Message)
	}
	return e.Message + ": " + strings.Join(parts, "; ")
}

// ValidateRequest проверяет теги validate и возвращает *RequestError
func ValidateRequest(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &RequestError{Message: err.Error()}
	}
	out := &RequestError{Message: "request validation failed"}
	for _, fe := range verrs {
		out.Details = append(out.Details, FieldViolation{
			Field:   fieldPath(fe.Namespace()),
			Message: violationMessage(fe),
		})
	}
	return out
}

// fieldPath переводит namespace валидатора в путь JSON: без имени корневой структуры
// и без имен встроенных структур, у которых нет JSON тега
func fieldPath(ns string) string {
	parts := strings.Split(ns, ".")
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i == 0 || (p != "" && p[0] >= 'A' && p[0] <= 'Z') {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, ".")
}

func violationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "min":
		return "must have at least " + fe.Param() + " items"
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "channel":
		return "unsupported channel"
	case "jobtype":
		return "unsupported job type"
	case "required_without":
		return "required when " + fe.Param() + " is empty"
	default:
		return "failed on " + fe.Tag()
	}
}

// SyncRequest общая часть pull и push запросов
type SyncRequest struct {
	JobType        JobType  `json:"jobType" validate:"required,jobtype"`
	Channel        Channel  `json:"channel,omitempty" validate:"omitempty,channel"`
	TargetAccounts []string `json:"targetAccounts,omitempty" validate:"omitempty,dive,required"`
	IdempotencyKey string   `json:"idempotencyKey" validate:"required,max=255"`
	DryRun         bool     `json:"dryRun,omitempty"`
}

// PullOptions параметры pull запроса
type PullOptions struct {
	Since    *time.Time `json:"since,omitempty"`
	PageSize int        `json:"pageSize,omitempty" validate:"omitempty,gte=1,max=100"`
	MaxPages int        `json:"maxPages,omitempty" validate:"omitempty,gte=1,max=1000"`
}

// PullRequest запрос на загрузку данных с маркетплейсов
type PullRequest struct {
	SyncRequest
	Options PullOptions `json:"options,omitempty"`
}

// PushRequest запрос на выгрузку данных на маркетплейсы.
// Data разбирается по JobType функцией ParsePushData.
type PushRequest struct {
	SyncRequest
	Data json.RawMessage `json:"data,omitempty"`
}

// CatalogPushData публикация листингов
type CatalogPushData struct {
	ProductIDs []string `json:"productIds,omitempty" validate:"omitempty,dive,required"`
	ListingIDs []string `json:"listingIds,omitempty" validate:"omitempty,dive,required"`
}

// StockPushItem новый остаток товара или листинга
type StockPushItem struct {
	ProductID string `json:"productId,omitempty" validate:"required_without=ListingID"`
	ListingID string `json:"listingId,omitempty" validate:"required_without=ProductID"`
	Quantity  int    `json:"quantity" validate:"gte=0"`
}

// StockPushData выгрузка остатков
type StockPushData struct {
	Items []StockPushItem `json:"items" validate:"required,min=1,dive"`
}

// PricePushItem новая цена товара или листинга
type PricePushItem struct {
	ProductID string          `json:"productId,omitempty" validate:"required_without=ListingID"`
	ListingID string          `json:"listingId,omitempty" validate:"required_without=ProductID"`
	Price     decimal.Decimal `json:"price"`
}

// PricePushData выгрузка цен
type PricePushData struct {
	Items []PricePushItem `json:"items" validate:"required,min=1,dive"`
}

// FullPushData публикация, остатки и цены одним запросом
type FullPushData struct {
	Catalog *CatalogPushData `json:"catalog,omitempty"`
	Stock   *StockPushData   `json:"stock,omitempty"`
	Prices  *PricePushData   `json:"prices,omitempty"`
}

// PushData разобранные данные push запроса. Заполнено ровно одно поле по типу задачи.
type PushData struct {
	Type    JobType
	Catalog *CatalogPushData
	Stock   *StockPushData
	Prices  *PricePushData
}

// ErrOrdersPushUnsupported заказы только загружаются с маркетплейсов
var ErrOrdersPushUnsupported = errors.New("orders cannot be pushed")

// ParsePushData разбирает и проверяет данные push запроса по типу задачи
func ParsePushData(jobType JobType, raw json.RawMessage) (*PushData, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, &RequestError{Message: "data is required for push", Details: []FieldViolation{{Field: "data", Message: "field is required"}}}
	}
	out := &PushData{Type: jobType}

	decode := func(v interface{}) error {
		if err := json.Unmarshal(raw, v); err != nil {
			return &RequestError{Message: fmt.Sprintf("invalid %s data: %v", jobType, err)}
		}
		return ValidateRequest(v)
	}

	switch jobType {
	case JobTypeCatalog:
		out.Catalog = &CatalogPushData{}
		if err := decode(out.Catalog); err != nil {
			return nil, err
		}
		if err := checkCatalog(out.Catalog); err != nil {
			return nil, err
		}
	case JobTypeStock:
		out.Stock = &StockPushData{}
		if err := decode(out.Stock); err != nil {
			return nil, err
		}
	case JobTypePrices:
		out.Prices = &PricePushData{}
		if err := decode(out.Prices); err != nil {
			return nil, err
		}
		if err := checkPrices(out.Prices); err != nil {
			return nil, err
		}
	case JobTypeFull:
		var full FullPushData
		if err := decode(&full); err != nil {
			return nil, err
		}
		if full.Catalog == nil && full.Stock == nil && full.Prices == nil {
			return nil, &RequestError{Message: "full push requires catalog, stock or prices"}
		}
		if full.Catalog != nil {
			if err := ValidateRequest(full.Catalog); err != nil {
				return nil, err
			}
			if err := checkCatalog(full.Catalog); err != nil {
				return nil, err
			}
		}
		if full.Stock != nil {
			if err := ValidateRequest(full.Stock); err != nil {
				return nil, err
			}
		}
		if full.Prices != nil {
			if err := ValidateRequest(full.Prices); err != nil {
				return nil, err
			}
			if err := checkPrices(full.Prices); err != nil {
				return nil, err
			}
		}
		out.Catalog, out.Stock, out.Prices = full.Catalog, full.Stock, full.Prices
	case JobTypeOrders:
		return nil, &RequestError{Message: ErrOrdersPushUnsupported.Error()}
	default:
		return nil, &RequestError{Message: fmt.Sprintf("unsupported job type %q", jobType)}
	}
	return out, nil
}

func checkCatalog(d *CatalogPushData) error {
	if len(d.ProductIDs) == 0 && len(d.ListingIDs) == 0 {
		return &RequestError{
			Message: "request validation failed",
			Details: []FieldViolation{{Field: "productIds", Message: "productIds or listingIds is required"}},
		}
	}
	return nil
}

func checkPrices(d *PricePushData) error {
	for i, it := range d.Items {
		if !it.Price.IsPositive() {
			return &RequestError{
				Message: "request validation failed",
				Details: []FieldViolation{{Field: fmt.Sprintf("items[%d].price", i), Message: "must be greater than 0"}},
			}
		}
	}
	return nil
}

// ProductIDs товары, для которых нужно найти листинги
func (d *PushData) ProductIDs() []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	if d.Catalog != nil {
		for _, id := range d.Catalog.ProductIDs {
			add(id)
		}
	}
	if d.Stock != nil {
		for _, it := range d.Stock.Items {
			if it.ListingID == "" {
				add(it.ProductID)
			}
		}
	}
	if d.Prices != nil {
		for _, it := range d.Prices.Items {
			if it.ListingID == "" {
				add(it.ProductID)
			}
		}
	}
	return out
}

// TokenGrant учетные данные, полученные при обмене или обновлении токена
type TokenGrant struct {
	AccessToken      string          `json:"access_token" validate:"required"`
	RefreshToken     string          `json:"refresh_token,omitempty"`
	ExpiresIn        int             `json:"expires_in" validate:"gte=0"`
	RefreshExpiresIn int             `json:"refresh_expires_in,omitempty" validate:"gte=0"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
}

// ConnectAccountRequest подключение аккаунта канала после обмена кода на токены
type ConnectAccountRequest struct {
	Channel   Channel    `json:"channel" validate:"required,channel"`
	ShopID    string     `json:"shop_id" validate:"required"`
	Name      string     `json:"name,omitempty" validate:"max=255"`
	AutoSync  bool       `json:"auto_sync"`
	StockSync bool       `json:"stock_sync"`
	PriceSync bool       `json:"price_sync"`
	Tokens    TokenGrant `json:"tokens"`
}

// AccountStatusRequest смена статуса аккаунта
type AccountStatusRequest struct {
	Status AccountStatus `json:"status" validate:"required,oneof=pending active disabled"`
}
