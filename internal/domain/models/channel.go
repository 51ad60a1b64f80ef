package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Channel код маркетплейса
type Channel string

const (
	ChannelShopee    Channel = "shopee"
	ChannelTikTok    Channel = "tiktok"
	ChannelTokopedia Channel = "tokopedia"
	ChannelLazada    Channel = "lazada"
)

// AllChannels возвращает все поддерживаемые каналы
func AllChannels() []Channel {
	return []Channel{ChannelShopee, ChannelTikTok, ChannelTokopedia, ChannelLazada}
}

// IsValid проверяет, что канал поддерживается
func (c Channel) IsValid() bool {
	switch c {
	case ChannelShopee, ChannelTikTok, ChannelTokopedia, ChannelLazada:
		return true
	}
	return false
}

func (c Channel) String() string {
	return string(c)
}

// Market код страны витрины маркетплейса
type Market string

const (
	MarketID Market = "ID"
	MarketMY Market = "MY"
	MarketSG Market = "SG"
	MarketTH Market = "TH"
	MarketPH Market = "PH"
	MarketVN Market = "VN"
)

// DefaultMarket рынок по умолчанию для всех каналов
const DefaultMarket = MarketID

// AccountStatus статус подключения аккаунта
type AccountStatus string

const (
	AccountStatusPending  AccountStatus = "pending"
	AccountStatusActive   AccountStatus = "active"
	AccountStatusDisabled AccountStatus = "disabled"
)

// ChannelAccount подключение одного продавца к одному каналу
type ChannelAccount struct {
	ID         string        `json:"id"`
	TenantID   string        `json:"tenant_id"`
	Channel    Channel       `json:"channel"`
	ShopID     string        `json:"shop_id"`
	Name       string        `json:"name,omitempty"`
	Status     AccountStatus `json:"status"`
	AutoSync   bool          `json:"auto_sync"`
	StockSync  bool          `json:"stock_sync"`
	PriceSync  bool          `json:"price_sync"`
	LastSyncAt *time.Time    `json:"last_sync_at,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// IsActive сообщает, можно ли использовать аккаунт для синхронизации
func (a *ChannelAccount) IsActive() bool {
	return a.Status == AccountStatusActive
}

// TokenType тип учетных данных аккаунта
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// ChannelToken учетные данные, привязанные к аккаунту.
// Одновременно активен только один токен каждого типа.
type ChannelToken struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Type      TokenType `json:"type"`
	Value     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	Active    bool      `json:"active"`
	Metadata  []byte    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired сообщает, истек ли токен на момент now
func (t *ChannelToken) IsExpired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// ChannelPayload товар в форме, ожидаемой каналом после трансформации
type ChannelPayload struct {
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Price          decimal.Decimal   `json:"price"`
	CompareAtPrice *decimal.Decimal  `json:"compare_at_price,omitempty"`
	Currency       string            `json:"currency"`
	Stock          int               `json:"stock"`
	SKU            string            `json:"sku"`
	Brand          string            `json:"brand"`
	CategoryID     string            `json:"category_id"`
	Images         []string          `json:"images"`
	WeightGrams    int               `json:"weight_grams"`
	Attributes     map[string]string `json:"attributes,omitempty"`
}
