package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/athebyme/gomarket-platform/channel-sync/config"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
	"github.com/shopspring/decimal"
)

// ListingInfo листинг в том виде, в каком его вернул маркетплейс
type ListingInfo struct {
	ExternalID string          `json:"externalId"`
	Status     string          `json:"status,omitempty"`
	URL        string          `json:"url,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// ListingPage страница листингов аккаунта
type ListingPage struct {
	Items      []ListingInfo `json:"items"`
	NextOffset int           `json:"nextOffset"`
	HasMore    bool          `json:"hasMore"`
}

// OrderPage страница заказов аккаунта
type OrderPage struct {
	Orders     []json.RawMessage `json:"orders"`
	NextCursor string            `json:"nextCursor,omitempty"`
	HasMore    bool              `json:"hasMore"`
}

// Listings операции канала, которые используют сервисы синхронизации
type Listings interface {
	Channel() models.Channel
	CreateListing(ctx context.Context, creds Credentials, p models.ChannelPayload, idempotencyKey string) (*ListingInfo, error)
	UpdateListing(ctx context.Context, creds Credentials, externalID string, p models.ChannelPayload, idempotencyKey string) (*ListingInfo, error)
	GetListing(ctx context.Context, creds Credentials, externalID string) (*ListingInfo, error)
	UpdateListingStatus(ctx context.Context, creds Credentials, externalID string, active bool, idempotencyKey string) error
	UpdateStock(ctx context.Context, creds Credentials, externalID string, stock int, idempotencyKey string) error
	UpdatePrice(ctx context.Context, creds Credentials, externalID string, price decimal.Decimal, idempotencyKey string) error
	ListListings(ctx context.Context, creds Credentials, offset, limit int) (*ListingPage, error)
	ListOrders(ctx context.Context, creds Credentials, since time.Time, cursor string, limit int) (*OrderPage, error)
}

var _ Listings = (*Marketplace)(nil)

// Marketplace операции над листингами одного канала поверх Client.
// Ошибки возвращаются как *ConnectorError.
type Marketplace struct {
	client *Client
	spec   *ChannelSpec
}

// NewMarketplace создает фасад канала
func NewMarketplace(client *Client) (*Marketplace, error) {
	spec, err := SpecFor(client.Channel())
	if err != nil {
		return nil, err
	}
	return &Marketplace{client: client, spec: spec}, nil
}

// Channel возвращает канал фасада
func (m *Marketplace) Channel() models.Channel {
	return m.spec.Channel
}

func (m *Marketplace) call(ctx context.Context, op Operation, req Request) (*Response, error) {
	ep, err := m.spec.Endpoint(op)
	if err != nil {
		return nil, &ConnectorError{Code: CodeInvalidRequest, Message: err.Error()}
	}
	req.Endpoint = ep
	resp := m.client.Do(ctx, req)
	if !resp.Success {
		return resp, resp.Error
	}
	return resp, nil
}

// CreateListing создает листинг и возвращает его внешний ID
func (m *Marketplace) CreateListing(ctx context.Context, creds Credentials, p models.ChannelPayload, idempotencyKey string) (*ListingInfo, error) {
	resp, err := m.call(ctx, OpCreateListing, Request{
		Body:           m.spec.listingBody(p, ""),
		Credentials:    creds,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return nil, err
	}
	return m.listingFromResponse(resp, "", creds)
}

// UpdateListing обновляет существующий листинг
func (m *Marketplace) UpdateListing(ctx context.Context, creds Credentials, externalID string, p models.ChannelPayload, idempotencyKey string) (*ListingInfo, error) {
	resp, err := m.call(ctx, OpUpdateListing, Request{
		PathID:         externalID,
		Body:           m.spec.listingBody(p, externalID),
		Credentials:    creds,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return nil, err
	}
	return m.listingFromResponse(resp, externalID, creds)
}

// GetListing читает листинг. Отсутствующий листинг возвращается как (nil, nil).
func (m *Marketplace) GetListing(ctx context.Context, creds Credentials, externalID string) (*ListingInfo, error) {
	req := Request{Credentials: creds}
	m.spec.getRequest(&req, externalID)
	resp, err := m.call(ctx, OpGetListing, req)
	if err != nil {
		if ce := AsConnectorError(err); ce.Code == CodeNotFound {
			return nil, nil
		}
		return nil, err
	}
	if isEmptyPayload(resp.Data) {
		return nil, nil
	}
	return m.listingFromResponse(resp, externalID, creds)
}

// UpdateListingStatus активирует или снимает листинг с продажи
func (m *Marketplace) UpdateListingStatus(ctx context.Context, creds Credentials, externalID string, active bool, idempotencyKey string) error {
	_, err := m.call(ctx, OpUpdateStatus, Request{
		PathID:         externalID,
		Body:           m.spec.statusBody(externalID, active),
		Credentials:    creds,
		IdempotencyKey: idempotencyKey,
	})
	return err
}

// UpdateStock устанавливает остаток листинга
func (m *Marketplace) UpdateStock(ctx context.Context, creds Credentials, externalID string, stock int, idempotencyKey string) error {
	_, err := m.call(ctx, OpUpdateStock, Request{
		PathID:         externalID,
		Body:           m.spec.stockBody(externalID, stock),
		Credentials:    creds,
		IdempotencyKey: idempotencyKey,
	})
	return err
}

// UpdatePrice устанавливает цену листинга
func (m *Marketplace) UpdatePrice(ctx context.Context, creds Credentials, externalID string, price decimal.Decimal, idempotencyKey string) error {
	_, err := m.call(ctx, OpUpdatePrice, Request{
		PathID:         externalID,
		Body:           m.spec.priceBody(externalID, price),
		Credentials:    creds,
		IdempotencyKey: idempotencyKey,
	})
	return err
}

// ListListings читает страницу листингов аккаунта
func (m *Marketplace) ListListings(ctx context.Context, creds Credentials, offset, limit int) (*ListingPage, error) {
	resp, err := m.call(ctx, OpListListings, Request{
		Query:       m.spec.listQuery(offset, limit),
		Credentials: creds,
	})
	if err != nil {
		return nil, err
	}

	items := extractList(resp.Data, "item", "items", "products", "product_list", "data")
	page := &ListingPage{Items: make([]ListingInfo, 0, len(items)), NextOffset: offset + len(items)}
	for _, raw := range items {
		info := listingInfoFrom(raw)
		if info.ExternalID == "" {
			continue
		}
		info.URL = m.spec.listingURL(info.ExternalID, creds.ShopID)
		page.Items = append(page.Items, info)
	}
	page.HasMore = hasMore(resp.Data, len(items), limit)
	return page, nil
}

// ListOrders читает страницу заказов, измененных после since
func (m *Marketplace) ListOrders(ctx context.Context, creds Credentials, since time.Time, cursor string, limit int) (*OrderPage, error) {
	resp, err := m.call(ctx, OpListOrders, Request{
		Query:       m.spec.ordersQuery(since, cursor, limit),
		Credentials: creds,
	})
	if err != nil {
		return nil, err
	}
	orders := extractList(resp.Data, "order_list", "orders", "data")
	page := &OrderPage{Orders: orders}
	var body map[string]json.RawMessage
	if json.Unmarshal(resp.Data, &body) == nil {
		page.NextCursor = firstString(body, "next_cursor", "next_page_token", "next_offset")
	}
	page.HasMore = hasMore(resp.Data, len(orders), limit) || page.NextCursor != ""
	return page, nil
}

func (m *Marketplace) listingFromResponse(resp *Response, fallbackID string, creds Credentials) (*ListingInfo, error) {
	info := listingInfoFrom(resp.Data)
	if info.ExternalID == "" {
		if list := extractList(resp.Data, "item_list", "item", "products", "success_list"); len(list) > 0 {
			info = listingInfoFrom(list[0])
		}
	}
	if info.ExternalID == "" {
		info.ExternalID = fallbackID
	}
	if info.ExternalID == "" {
		return nil, &ConnectorError{Code: CodeInvalidResponse, Message: "listing id is missing in response"}
	}
	info.URL = m.spec.listingURL(info.ExternalID, creds.ShopID)
	return &info, nil
}

var (
	idKeys     = []string{"item_id", "product_id", "item_ids", "ItemId", "id"}
	statusKeys = []string{"item_status", "status", "Status"}
)

func listingInfoFrom(raw json.RawMessage) ListingInfo {
	info := ListingInfo{Raw: raw}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return info
	}
	info.ExternalID = firstString(body, idKeys...)
	info.Status = firstString(body, statusKeys...)
	return info
}

// firstString возвращает первое непустое значение по ключам: строка или число
func firstString(body map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := body[k]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(raw, &s) == nil && s != "" {
			return s
		}
		var n json.Number
		if json.Unmarshal(raw, &n) == nil && n != "" {
			return n.String()
		}
	}
	return ""
}

// extractList находит массив в корне ответа или под одним из ключей
func extractList(raw json.RawMessage, keys ...string) []json.RawMessage {
	var list []json.RawMessage
	if json.Unmarshal(raw, &list) == nil {
		return list
	}
	var body map[string]json.RawMessage
	if json.Unmarshal(raw, &body) != nil {
		return nil
	}
	for _, k := range keys {
		if v, ok := body[k]; ok && json.Unmarshal(v, &list) == nil {
			return list
		}
	}
	return nil
}

func hasMore(raw json.RawMessage, got, limit int) bool {
	var body map[string]json.RawMessage
	if json.Unmarshal(raw, &body) == nil {
		for _, k := range []string{"has_next_page", "has_more", "more"} {
			if v, ok := body[k]; ok {
				var b bool
				if json.Unmarshal(v, &b) == nil {
					return b
				}
			}
		}
	}
	return limit > 0 && got >= limit
}

func isEmptyPayload(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", "{}", "[]":
		return true
	}
	if listingInfoFrom(raw).ExternalID != "" {
		return false
	}
	list := extractList(raw, "item_list", "item", "products", "data")
	return list != nil && len(list) == 0
}

// Registry фасады всех включенных каналов
type Registry struct {
	marketplaces map[models.Channel]*Marketplace
}

// NewRegistry создает клиентов для каналов из конфигурации.
// Каналы без partner id или partner key пропускаются с предупреждением.
func NewRegistry(cfg *config.Config, limiter RateLimiter, logger interfaces.LoggerPort, opts ...ClientOption) (*Registry, error) {
	r := &Registry{marketplaces: make(map[models.Channel]*Marketplace)}
	retry := RetryPolicy{
		MaxAttempts: cfg.Connector.Retry.MaxAttempts,
		BaseDelay:   cfg.Connector.Retry.BaseDelay,
		Multiplier:  cfg.Connector.Retry.Multiplier,
		MaxDelay:    cfg.Connector.Retry.MaxDelay,
	}

	for name, chCfg := range cfg.Channels {
		ch := models.Channel(strings.ToLower(name))
		if !ch.IsValid() {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedChannel, name)
		}
		if !chCfg.Enabled {
			continue
		}
		if chCfg.PartnerKey == "" || chCfg.PartnerID == 0 {
			logger.Warn("Канал пропущен: не заданы партнерские учетные данные", "channel", name)
			continue
		}
		client, err := NewClient(ClientConfig{
			Channel:          ch,
			BaseURL:          chCfg.BaseURL,
			PartnerID:        chCfg.PartnerID,
			PartnerKey:       chCfg.PartnerKey,
			Timeout:          cfg.Connector.Timeout,
			Retry:            retry,
			DefaultRateLimit: cfg.Connector.RateLimit,
		}, limiter, logger, opts...)
		if err != nil {
			return nil, fmt.Errorf("ошибка создания клиента %s: %w", name, err)
		}
		mp, err := NewMarketplace(client)
		if err != nil {
			return nil, err
		}
		r.marketplaces[ch] = mp
	}
	return r, nil
}

// NewRegistryFrom собирает реестр из готовых фасадов
func NewRegistryFrom(mps ...*Marketplace) *Registry {
	r := &Registry{marketplaces: make(map[models.Channel]*Marketplace, len(mps))}
	for _, mp := range mps {
		r.marketplaces[mp.Channel()] = mp
	}
	return r
}

// Get возвращает фасад канала
func (r *Registry) Get(ch models.Channel) (*Marketplace, error) {
	mp, ok := r.marketplaces[ch]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChannel, ch)
	}
	return mp, nil
}

// Lookup возвращает операции канала
func (r *Registry) Lookup(ch models.Channel) (Listings, error) {
	mp, err := r.Get(ch)
	if err != nil {
		return nil, err
	}
	return mp, nil
}

// Channels список настроенных каналов
func (r *Registry) Channels() []models.Channel {
	out := make([]models.Channel, 0, len(r.marketplaces))
	for _, ch := range models.AllChannels() {
		if _, ok := r.marketplaces[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}
