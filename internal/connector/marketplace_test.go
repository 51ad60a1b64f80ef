package connector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/athebyme/gomarket-platform/channel-sync/config"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/adapters/cache"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMarketplace(t *testing.T, ch models.Channel, handler http.HandlerFunc) *Marketplace {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := newTestClient(t, srv.URL, func(cfg *ClientConfig) {
		cfg.Channel = ch
		cfg.Retry.MaxAttempts = 1
	})
	mp, err := NewMarketplace(c)
	require.NoError(t, err)
	return mp
}

func samplePayload() models.ChannelPayload {
	return models.ChannelPayload{
		Title:       "Kaos Polos Katun Combed 30s Hitam",
		Description: "Kaos polos bahan katun",
		Price:       decimal.NewFromInt(59000),
		Currency:    "IDR",
		Stock:       10,
		SKU:         "KAOS-BLK-M",
		CategoryID:  "100017",
		Images:      []string{"https://cdn.example.com/1.jpg"},
		WeightGrams: 200,
	}
}

func TestMarketplace_CreateListing_Shopee(t *testing.T) {
	mp := newTestMarketplace(t, models.ChannelShopee, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/product/add_item", r.URL.Path)
		assert.Equal(t, "commit-1", r.Header.Get(headerIdempotencyKey))
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Kaos Polos Katun Combed 30s Hitam", body["item_name"])
		_, _ = w.Write([]byte(`{"error":"","message":"","request_id":"r1","response":{"item_id":8812}}`))
	})

	info, err := mp.CreateListing(context.Background(), testCreds, samplePayload(), "commit-1")
	require.NoError(t, err)
	assert.Equal(t, "8812", info.ExternalID)
	assert.Equal(t, "https://shopee.co.id/product/shop-9/8812", info.URL)
}

func TestMarketplace_UpdateListing_TikTokPathID(t *testing.T) {
	mp := newTestMarketplace(t, models.ChannelTikTok, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/product/202309/products/173000", r.URL.Path)
		_, _ = w.Write([]byte(`{"code":0,"message":"Success","data":{"product_id":"173000"}}`))
	})

	info, err := mp.UpdateListing(context.Background(), testCreds, "173000", samplePayload(), "k")
	require.NoError(t, err)
	assert.Equal(t, "173000", info.ExternalID)
}

func TestMarketplace_GetListing(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		found  bool
		errMsg string
	}{
		{"found", http.StatusOK, `{"response":{"item_list":[{"item_id":5,"item_status":"UNLIST"}]}}`, true, ""},
		{"empty list", http.StatusOK, `{"response":{"item_list":[]}}`, false, ""},
		{"not found status", http.StatusNotFound, `{"error":"not_found"}`, false, ""},
		{"bad request", http.StatusBadRequest, `{"error":"error_param","message":"bad"}`, false, "bad"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mp := newTestMarketplace(t, models.ChannelShopee, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "5", r.URL.Query().Get("item_id_list"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			info, err := mp.GetListing(context.Background(), testCreds, "5")
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			if !tt.found {
				assert.Nil(t, info)
				return
			}
			require.NotNil(t, info)
			assert.Equal(t, "5", info.ExternalID)
			assert.Equal(t, "UNLIST", info.Status)
		})
	}
}

func TestMarketplace_UpdateStockAndPrice(t *testing.T) {
	var paths []string
	mp := newTestMarketplace(t, models.ChannelTokopedia, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_, _ = w.Write([]byte(`{"code":0,"data":{"succeed_rows":1}}`))
	})

	ctx := context.Background()
	require.NoError(t, mp.UpdateStock(ctx, testCreds, "99", 4, "s"))
	require.NoError(t, mp.UpdatePrice(ctx, testCreds, "99", decimal.NewFromInt(1000), "p"))
	require.NoError(t, mp.UpdateListingStatus(ctx, testCreds, "99", true, "a"))
	assert.Equal(t, []string{
		"/inventory/v1/fs/stock/update",
		"/inventory/v1/fs/price/update",
		"/v1/products/fs/active",
	}, paths)
}

func TestMarketplace_ListListings(t *testing.T) {
	mp := newTestMarketplace(t, models.ChannelLazada, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0", r.URL.Query().Get("offset"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"code":"0","data":{"products":[{"item_id":1,"status":"active"},{"item_id":2,"status":"inactive"}]}}`))
	})

	page, err := mp.ListListings(context.Background(), Credentials{AccessToken: "t"}, 0, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "1", page.Items[0].ExternalID)
	assert.Equal(t, "inactive", page.Items[1].Status)
	assert.Equal(t, 2, page.NextOffset)
	assert.True(t, page.HasMore)
}

func TestMarketplace_ListOrders(t *testing.T) {
	mp := newTestMarketplace(t, models.ChannelShopee, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/order/get_order_list", r.URL.Path)
		_, _ = w.Write([]byte(`{"response":{"more":false,"next_cursor":"","order_list":[{"order_sn":"A"}]}}`))
	})

	page, err := mp.ListOrders(context.Background(), testCreds, time.Now().Add(-time.Hour), "", 50)
	require.NoError(t, err)
	assert.Len(t, page.Orders, 1)
	assert.False(t, page.HasMore)
}

func TestNewRegistry(t *testing.T) {
	cfg := &config.Config{}
	cfg.Connector.Timeout = time.Second
	cfg.Connector.Retry = config.RetryConfig{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2, MaxDelay: time.Minute}
	cfg.Channels = map[string]config.ChannelConfig{
		"shopee":    {Enabled: true, BaseURL: "https://partner.example.com", PartnerID: 1, PartnerKey: "k"},
		"tiktok":    {Enabled: true, BaseURL: "https://tiktok.example.com"},
		"tokopedia": {Enabled: false, BaseURL: "https://tokopedia.example.com", PartnerID: 1, PartnerKey: "k"},
	}
	limiter := NewCacheRateLimiter(cache.NewMemoryCache(time.Minute))

	r, err := NewRegistry(cfg, limiter, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []models.Channel{models.ChannelShopee}, r.Channels())

	_, err = r.Get(models.ChannelTikTok)
	assert.ErrorIs(t, err, ErrUnsupportedChannel)

	cfg.Channels["ebay"] = config.ChannelConfig{Enabled: true}
	_, err = NewRegistry(cfg, limiter, logger.NewNop())
	assert.ErrorIs(t, err, ErrUnsupportedChannel)
}
