package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/security"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/validation"
	pkgmodels "github.com/athebyme/gomarket-platform/channel-sync/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validProduct(id string) pkgmodels.Product {
	return pkgmodels.Product{
		ID:          id,
		SKU:         "KAOS-BLK-M",
		Name:        "Kaos Polos Katun Combed 30s Hitam Ukuran M",
		Description: strings.Repeat("Kaos polos berbahan katun combed 30s, adem dan nyaman dipakai sehari-hari. ", 3),
		Brand:       "Basicwear",
		CategoryID:  "100010",
		Price:       decimal.NewFromInt(59000),
		Stock:       10,
		WeightGrams: 200,
		Images:      []string{"a.jpg", "b.jpg", "c.jpg"},
	}
}

func newPreviewFixture(t *testing.T) (*PreviewService, *security.ValidationTokenManager) {
	t.Helper()
	engine, err := validation.NewEngine(models.MarketID, validation.DefaultRuleSets()...)
	require.NoError(t, err)
	tokens, err := security.NewValidationTokenManager("test-secret", time.Hour, "channel-sync")
	require.NoError(t, err)
	return NewPreviewService(engine, tokens, models.MarketID, logger.NewNop()), tokens
}

func TestPreview_ValidItemGetsToken(t *testing.T) {
	svc, tokens := newPreviewFixture(t)
	resp := svc.Preview(context.Background(), testTenant, models.PreviewRequest{
		Products: []pkgmodels.Product{validProduct("p1")},
		Channels: []models.Channel{models.ChannelShopee},
	})

	require.True(t, resp.Success)
	require.Len(t, resp.Results, 1)
	r := resp.Results[0]
	assert.True(t, r.Validation.Valid, "%+v", r.Validation.Errors)
	require.NotEmpty(t, r.ValidationToken)
	require.NotNil(t, r.SEO)

	_, err := tokens.Verify(r.ValidationToken, security.TokenSubject{
		TenantID:  testTenant,
		ProductID: "p1",
		Channel:   models.ChannelShopee,
		Market:    models.MarketID,
		Payload:   r.TransformedData,
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, resp.Summary.ValidCount)
	assert.Equal(t, 1, resp.Summary.TotalPreviews)
}

func TestPreview_InvalidItemGetsNoToken(t *testing.T) {
	svc, _ := newPreviewFixture(t)
	bad := validProduct("p2")
	bad.Images = nil
	bad.Price = decimal.Zero

	resp := svc.Preview(context.Background(), testTenant, models.PreviewRequest{
		Products: []pkgmodels.Product{validProduct("p1"), bad},
		Channels: []models.Channel{models.ChannelShopee, models.ChannelTikTok},
	})

	assert.Equal(t, 2, resp.Summary.TotalProducts)
	assert.Equal(t, 2, resp.Summary.TotalChannels)
	assert.Equal(t, 4, resp.Summary.TotalPreviews)
	assert.Equal(t, 2, resp.Summary.ValidCount)
	assert.Equal(t, 2, resp.Summary.InvalidCount)
	for _, r := range resp.Results {
		if r.ProductID == "p2" {
			assert.False(t, r.Validation.Valid)
			assert.Empty(t, r.ValidationToken)
			assert.NotEmpty(t, r.Validation.Errors)
		}
	}
}

func TestPreview_ValidationOnly(t *testing.T) {
	svc, _ := newPreviewFixture(t)
	resp := svc.Preview(context.Background(), testTenant, models.PreviewRequest{
		Products:       []pkgmodels.Product{validProduct("p1")},
		Channels:       []models.Channel{models.ChannelLazada},
		PreviewMode:    models.PreviewModeValidationOnly,
		IncludePricing: true,
	})
	r := resp.Results[0]
	assert.Nil(t, r.SEO)
	assert.Nil(t, r.Pricing)
	assert.Zero(t, resp.Summary.AverageSEOScore)
}

func TestPreview_Pricing(t *testing.T) {
	svc, _ := newPreviewFixture(t)
	p := validProduct("p1")
	p.Price = decimal.NewFromInt(80000)
	compareAt := decimal.NewFromInt(100000)
	p.CompareAtPrice = &compareAt

	resp := svc.Preview(context.Background(), testTenant, models.PreviewRequest{
		Products:       []pkgmodels.Product{p},
		Channels:       []models.Channel{models.ChannelTikTok},
		IncludePricing: true,
	})
	pc := resp.Results[0].Pricing
	require.NotNil(t, pc)
	assert.Equal(t, "IDR", pc.Currency)
	assert.True(t, pc.Fees.Equal(decimal.NewFromInt(4000)), pc.Fees.String())
	assert.True(t, pc.NetRevenue.Equal(decimal.NewFromInt(76000)), pc.NetRevenue.String())
	assert.True(t, pc.Discount.Equal(decimal.NewFromInt(20)), pc.Discount.String())
}

func TestPreview_PanicBecomesInvalidResult(t *testing.T) {
	svc := NewPreviewService(nil, nil, "", logger.NewNop())
	resp := svc.Preview(context.Background(), testTenant, models.PreviewRequest{
		Products: []pkgmodels.Product{validProduct("p1")},
		Channels: []models.Channel{models.ChannelShopee},
	})
	require.Len(t, resp.Results, 1)
	r := resp.Results[0]
	assert.False(t, r.Validation.Valid)
	require.Len(t, r.Validation.Errors, 1)
	assert.Equal(t, "preview", r.Validation.Errors[0].Rule)
	assert.Equal(t, 1, resp.Summary.InvalidCount)
}
