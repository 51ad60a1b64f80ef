package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/adapters/cache"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/connector"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/security"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testTenant = "tenant-1"

type commitFixture struct {
	store   *memStore
	mp      *mockListings
	tokens  *security.ValidationTokenManager
	idem    *IdempotencyStore
	cache   *cache.MemoryCache
	service *CommitService
}

func newCommitFixture(t *testing.T, cfg CommitConfig) *commitFixture {
	t.Helper()
	store := newMemStore()
	acc := store.addAccount(models.ChannelAccount{ID: "acc-1", Channel: models.ChannelShopee, ShopID: "shop-1"})
	store.addToken(acc.ID, "access-1", time.Now().Add(time.Hour))

	tokens, err := security.NewValidationTokenManager("test-secret", time.Hour, "channel-sync")
	require.NoError(t, err)

	mc := cache.NewMemoryCache(time.Minute)
	t.Cleanup(func() { _ = mc.Close() })
	idem := NewIdempotencyStore(mc, time.Hour)

	mp := &mockListings{channel: models.ChannelShopee}
	log := logger.NewNop()
	registry := NewChannelRegistry(store, store, log)
	svc := NewCommitService(registry, lookup{models.ChannelShopee: mp}, store, tokens, idem, cfg, log)
	return &commitFixture{store: store, mp: mp, tokens: tokens, idem: idem, cache: mc, service: svc}
}

func testPayload(productID string) models.ChannelPayload {
	return models.ChannelPayload{
		Title:      "Basicwear Kaos Polos " + productID,
		Price:      decimal.NewFromInt(59000),
		Currency:   "IDR",
		Stock:      10,
		SKU:        "SKU-" + productID,
		Brand:      "Basicwear",
		CategoryID: "100010",
		Images:     []string{"https://cdn.example.com/a.jpg"},
	}
}

func (f *commitFixture) item(t *testing.T, productID string, op models.CommitOperation) models.CommitItem {
	t.Helper()
	data := testPayload(productID)
	token, err := f.tokens.Generate(security.TokenSubject{
		TenantID:  testTenant,
		ProductID: productID,
		Channel:   models.ChannelShopee,
		Market:    models.DefaultMarket,
		Payload:   data,
	})
	require.NoError(t, err)
	return models.CommitItem{
		ProductID:       productID,
		Channel:         models.ChannelShopee,
		Operation:       op,
		Data:            data,
		ValidationToken: token,
	}
}

func TestCommit_ReplayReturnsStoredResponse(t *testing.T) {
	f := newCommitFixture(t, CommitConfig{Concurrency: 2})
	f.mp.On("CreateListing", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&connector.ListingInfo{ExternalID: "ext-1", URL: "https://shopee.co.id/ext-1"}, nil).Once()

	req := models.CommitRequest{
		Products:       []models.CommitItem{f.item(t, "p1", models.OperationCreate)},
		IdempotencyKey: "batch-1",
	}

	first, err := f.service.Commit(context.Background(), testTenant, req)
	require.NoError(t, err)
	assert.False(t, first.Idempotent)
	assert.True(t, first.Success)
	assert.Equal(t, models.CommitStatusSuccess, first.Status)

	second, err := f.service.Commit(context.Background(), testTenant, req)
	require.NoError(t, err)
	assert.True(t, second.Idempotent)
	assert.Equal(t, first.CommitID, second.CommitID)

	a, _ := json.Marshal(first.Results)
	b, _ := json.Marshal(second.Results)
	assert.JSONEq(t, string(a), string(b))

	f.mp.AssertNumberOfCalls(t, "CreateListing", 1)
}

// flakySetCache отклоняет первые failures записей
type flakySetCache struct {
	*cache.MemoryCache
	failures int
	sets     int
}

func (c *flakySetCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.sets++
	if c.failures > 0 {
		c.failures--
		return errors.New("cache write timeout")
	}
	return c.MemoryCache.Set(ctx, key, value, ttl)
}

func TestCommit_SaveRetriedBeforeUnlock(t *testing.T) {
	f := newCommitFixture(t, CommitConfig{})
	flaky := &flakySetCache{MemoryCache: f.cache, failures: 1}
	log := logger.NewNop()
	svc := NewCommitService(NewChannelRegistry(f.store, f.store, log), lookup{models.ChannelShopee: f.mp}, f.store,
		f.tokens, NewIdempotencyStore(flaky, time.Hour), CommitConfig{}, log)
	f.mp.On("CreateListing", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&connector.ListingInfo{ExternalID: "ext-1"}, nil).Once()

	req := models.CommitRequest{
		Products:       []models.CommitItem{f.item(t, "p1", models.OperationCreate)},
		IdempotencyKey: "batch-flaky",
	}
	first, err := svc.Commit(context.Background(), testTenant, req)
	require.NoError(t, err)
	assert.Equal(t, 2, flaky.sets)

	second, err := svc.Commit(context.Background(), testTenant, req)
	require.NoError(t, err)
	assert.True(t, second.Idempotent)
	assert.Equal(t, first.CommitID, second.CommitID)
	f.mp.AssertNumberOfCalls(t, "CreateListing", 1)
}

func TestCommit_ReplayIsScopedByTenant(t *testing.T) {
	f := newCommitFixture(t, CommitConfig{DryRun: true})
	req := models.CommitRequest{
		Products:       []models.CommitItem{f.item(t, "p1", models.OperationCreate)},
		IdempotencyKey: "batch-1",
	}
	_, err := f.service.Commit(context.Background(), testTenant, req)
	require.NoError(t, err)

	other, err := f.service.Commit(context.Background(), "tenant-2", req)
	require.NoError(t, err)
	assert.False(t, other.Idempotent)
}

func TestCommit_InvalidTokenFailsOnlyThatItem(t *testing.T) {
	f := newCommitFixture(t, CommitConfig{Concurrency: 3})
	f.mp.On("CreateListing", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&connector.ListingInfo{ExternalID: "ext"}, nil)

	bad := f.item(t, "p2", models.OperationCreate)
	bad.ValidationToken = "not-a-token"
	req := models.CommitRequest{
		Products: []models.CommitItem{
			f.item(t, "p1", models.OperationCreate),
			bad,
			f.item(t, "p3", models.OperationCreate),
		},
		IdempotencyKey: "batch-2",
		PartialSuccess: true,
	}

	resp, err := f.service.Commit(context.Background(), testTenant, req)
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)

	assert.True(t, resp.Results[0].Success)
	assert.False(t, resp.Results[1].Success)
	require.NotNil(t, resp.Results[1].Error)
	assert.Equal(t, models.CommitCodeInvalidToken, resp.Results[1].Error.Code)
	assert.True(t, resp.Results[2].Success)

	assert.Equal(t, 3, resp.Summary.TotalOperations)
	assert.Equal(t, 2, resp.Summary.SuccessfulOperations)
	assert.Equal(t, 1, resp.Summary.FailedOperations)
	assert.Equal(t, models.CommitStatusPartial, resp.Status)
	assert.False(t, resp.Success)
	assert.Len(t, resp.Errors, 1)

	assert.Equal(t, http.StatusMultiStatus, CommitHTTPStatus(resp, true))
	assert.Equal(t, http.StatusBadRequest, CommitHTTPStatus(resp, false))
	f.mp.AssertNumberOfCalls(t, "CreateListing", 2)
}

func TestCommit_TamperedPayloadRejected(t *testing.T) {
	f := newCommitFixture(t, CommitConfig{})
	it := f.item(t, "p1", models.OperationCreate)
	it.Data.Price = decimal.NewFromInt(1)

	resp, err := f.service.Commit(context.Background(), testTenant, models.CommitRequest{
		Products:       []models.CommitItem{it},
		IdempotencyKey: "batch-tamper",
	})
	require.NoError(t, err)
	assert.Equal(t, models.CommitStatusFailed, resp.Status)
	assert.Equal(t, models.CommitCodeInvalidToken, resp.Results[0].Error.Code)
	f.mp.AssertNotCalled(t, "CreateListing", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCommit_DryRunSkipsMarketplace(t *testing.T) {
	f := newCommitFixture(t, CommitConfig{})
	resp, err := f.service.Commit(context.Background(), testTenant, models.CommitRequest{
		Products:       []models.CommitItem{f.item(t, "p1", models.OperationCreate)},
		IdempotencyKey: "batch-dry",
		DryRun:         true,
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.True(t, resp.Summary.DryRun)
	assert.Equal(t, "dryrun-p1", resp.Results[0].ListingID)
	f.mp.AssertNotCalled(t, "CreateListing", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCommit_CreateStoresListing(t *testing.T) {
	f := newCommitFixture(t, CommitConfig{})
	f.mp.On("CreateListing", mock.Anything, connector.Credentials{AccessToken: "access-1", ShopID: "shop-1"}, mock.Anything, "batch-3:p1:shopee").
		Return(&connector.ListingInfo{ExternalID: "ext-1", Status: "review"}, nil).Once()

	resp, err := f.service.Commit(context.Background(), testTenant, models.CommitRequest{
		Products:       []models.CommitItem{f.item(t, "p1", models.OperationCreate)},
		IdempotencyKey: "batch-3",
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)

	l, err := f.store.GetByProduct(context.Background(), testTenant, "acc-1", "p1")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, "ext-1", l.ExternalID)
	assert.Equal(t, "review", l.Status)
	f.mp.AssertExpectations(t)
}

func TestCommit_PublishActivatesExistingListing(t *testing.T) {
	f := newCommitFixture(t, CommitConfig{})
	f.store.addListing("acc-1", "p1", "ext-9")
	f.mp.On("GetListing", mock.Anything, mock.Anything, "ext-9").
		Return(&connector.ListingInfo{ExternalID: "ext-9", Status: "inactive"}, nil).Once()
	f.mp.On("UpdateListingStatus", mock.Anything, mock.Anything, "ext-9", true, mock.Anything).
		Return(nil).Once()

	resp, err := f.service.Commit(context.Background(), testTenant, models.CommitRequest{
		Products:       []models.CommitItem{f.item(t, "p1", models.OperationPublish)},
		IdempotencyKey: "batch-4",
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "ext-9", resp.Results[0].ListingID)
	f.mp.AssertExpectations(t)
	f.mp.AssertNotCalled(t, "CreateListing", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCommit_PublishCreatesWhenNoListing(t *testing.T) {
	f := newCommitFixture(t, CommitConfig{})
	f.mp.On("CreateListing", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&connector.ListingInfo{ExternalID: "ext-new"}, nil).Once()

	resp, err := f.service.Commit(context.Background(), testTenant, models.CommitRequest{
		Products:       []models.CommitItem{f.item(t, "p1", models.OperationPublish)},
		IdempotencyKey: "batch-5",
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "ext-new", resp.Results[0].ListingID)
	f.mp.AssertExpectations(t)
}

func TestCommit_UpdateWithoutListing(t *testing.T) {
	f := newCommitFixture(t, CommitConfig{})
	resp, err := f.service.Commit(context.Background(), testTenant, models.CommitRequest{
		Products:       []models.CommitItem{f.item(t, "p1", models.OperationUpdate)},
		IdempotencyKey: "batch-6",
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Results[0].Error)
	assert.Equal(t, models.CommitCodeListingUnknown, resp.Results[0].Error.Code)
}

func TestCommit_ConnectorErrorIsItemFailure(t *testing.T) {
	f := newCommitFixture(t, CommitConfig{})
	f.mp.On("CreateListing", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &connector.ConnectorError{Code: "HTTP_503", Message: "unavailable", Retryable: true, HTTPStatusCode: 503}).Once()

	resp, err := f.service.Commit(context.Background(), testTenant, models.CommitRequest{
		Products:       []models.CommitItem{f.item(t, "p1", models.OperationCreate)},
		IdempotencyKey: "batch-7",
	})
	require.NoError(t, err)
	assert.Equal(t, models.CommitStatusFailed, resp.Status)
	require.NotNil(t, resp.Results[0].Error)
	assert.Equal(t, "HTTP_503", resp.Results[0].Error.Code)
	assert.True(t, resp.Results[0].Error.Retryable)
	assert.Equal(t, http.StatusBadRequest, CommitHTTPStatus(resp, true))
}

func TestCommit_NoActiveAccount(t *testing.T) {
	f := newCommitFixture(t, CommitConfig{})
	it := f.item(t, "p1", models.OperationCreate)
	it.AccountID = "missing"

	resp, err := f.service.Commit(context.Background(), testTenant, models.CommitRequest{
		Products:       []models.CommitItem{it},
		IdempotencyKey: "batch-8",
	})
	require.NoError(t, err)
	assert.Equal(t, models.CommitCodeNoAccount, resp.Results[0].Error.Code)
}

func TestCommit_KeyInProgress(t *testing.T) {
	f := newCommitFixture(t, CommitConfig{})
	release, err := f.idem.Acquire(context.Background(), testTenant, "batch-9")
	require.NoError(t, err)
	defer release()

	_, err = f.service.Commit(context.Background(), testTenant, models.CommitRequest{
		Products:       []models.CommitItem{f.item(t, "p1", models.OperationCreate)},
		IdempotencyKey: "batch-9",
	})
	assert.ErrorIs(t, err, ErrCommitInProgress)
}

func TestCommit_RequestValidation(t *testing.T) {
	f := newCommitFixture(t, CommitConfig{})
	_, err := f.service.Commit(context.Background(), testTenant, models.CommitRequest{
		Products: []models.CommitItem{f.item(t, "p1", models.OperationCreate)},
	})
	var reqErr *models.RequestError
	require.ErrorAs(t, err, &reqErr)
	require.NotEmpty(t, reqErr.Details)
	assert.Equal(t, "idempotencyKey", reqErr.Details[0].Field)
}
