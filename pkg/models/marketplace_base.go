package models

import "time"

// ChannelListing связывает товар каталога с листингом в конкретном аккаунте маркетплейса
type ChannelListing struct {
	ID         string    `json:"id"`                    // Уникальный идентификатор в нашей системе
	TenantID   string    `json:"tenant_id"`             // ID арендатора
	AccountID  string    `json:"account_id"`            // ID подключенного аккаунта канала
	Channel    string    `json:"channel"`               // shopee, tiktok, tokopedia, lazada
	ProductID  string    `json:"product_id"`            // ID товара в каталоге
	ExternalID string    `json:"external_id"`           // ID листинга на стороне маркетплейса
	Status     string    `json:"status"`                // active, inactive, deleted
	URL        string    `json:"url,omitempty"`         // Ссылка на листинг
	UpdatedAt  time.Time `json:"updated_at"`
}
