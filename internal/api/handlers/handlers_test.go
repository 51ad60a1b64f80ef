package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/services"
	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTenant = "tenant-1"

type fakePreviewer struct {
	got models.PreviewRequest
}

func (f *fakePreviewer) Preview(_ context.Context, _ string, req models.PreviewRequest) *models.PreviewResponse {
	f.got = req
	return &models.PreviewResponse{Success: true, Summary: models.PreviewSummary{TotalProducts: len(req.Products)}}
}

type fakeCommitter struct {
	got  models.CommitRequest
	resp *models.CommitResponse
	err  error
}

func (f *fakeCommitter) Commit(_ context.Context, _ string, req models.CommitRequest) (*models.CommitResponse, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	if err := models.ValidateRequest(req); err != nil {
		return nil, err
	}
	return f.resp, nil
}

type fakeDispatcher struct {
	tenant string
	pull   models.PullRequest
	push   models.PushRequest
	err    error
}

func (f *fakeDispatcher) Pull(_ context.Context, tenantID string, req models.PullRequest) (*models.DispatchResponse, error) {
	f.tenant, f.pull = tenantID, req
	if f.err != nil {
		return nil, f.err
	}
	return &models.DispatchResponse{Success: true, JobsCreated: []models.SyncJob{}}, nil
}

func (f *fakeDispatcher) Push(_ context.Context, tenantID string, req models.PushRequest) (*models.DispatchResponse, error) {
	f.tenant, f.push = tenantID, req
	if f.err != nil {
		return nil, f.err
	}
	return &models.DispatchResponse{Success: true, JobsCreated: []models.SyncJob{}}, nil
}

type fakeJobs struct {
	jobs   map[string]*models.SyncJob
	filter models.JobFilter
}

func (f *fakeJobs) GetJob(_ context.Context, tenantID, jobID string) (*models.SyncJob, error) {
	job, ok := f.jobs[jobID]
	if !ok || job.TenantID != tenantID {
		return nil, nil
	}
	return job, nil
}

func (f *fakeJobs) ListJobs(_ context.Context, filter models.JobFilter) ([]*models.SyncJob, int, error) {
	f.filter = filter
	var out []*models.SyncJob
	for _, j := range f.jobs {
		out = append(out, j)
	}
	return out, 45, nil
}

type fakeAccounts struct {
	connected []models.ConnectAccountRequest
	rotated   map[string]models.TokenGrant
	err       error
}

func (f *fakeAccounts) Connect(_ context.Context, tenantID string, req models.ConnectAccountRequest) (*models.ChannelAccount, error) {
	if err := models.ValidateRequest(req); err != nil {
		return nil, err
	}
	f.connected = append(f.connected, req)
	return &models.ChannelAccount{ID: "acc-1", TenantID: tenantID, Channel: req.Channel, ShopID: req.ShopID, Status: models.AccountStatusActive}, nil
}

func (f *fakeAccounts) RotateTokens(_ context.Context, _, accountID string, grant models.TokenGrant) error {
	if f.err != nil {
		return f.err
	}
	if f.rotated == nil {
		f.rotated = map[string]models.TokenGrant{}
	}
	f.rotated[accountID] = grant
	return nil
}

func (f *fakeAccounts) List(_ context.Context, tenantID string, ch models.Channel) ([]*models.ChannelAccount, error) {
	return []*models.ChannelAccount{{ID: "acc-1", TenantID: tenantID, Channel: models.ChannelShopee}}, nil
}

func (f *fakeAccounts) SetStatus(_ context.Context, _, accountID string, req models.AccountStatusRequest) (*models.ChannelAccount, error) {
	if f.err != nil {
		return nil, f.err
	}
	if err := models.ValidateRequest(req); err != nil {
		return nil, err
	}
	return &models.ChannelAccount{ID: accountID, Status: req.Status}, nil
}

type recordingEvents struct {
	events []*models.ChannelEvent
	err    error
}

func (r *recordingEvents) PublishEvent(_ context.Context, e *models.ChannelEvent) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

// withTenant имитирует middleware арендатора
func withTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if t := r.Header.Get("X-Tenant-ID"); t != "" {
			r = r.WithContext(context.WithValue(r.Context(), interfaces.ContextKeyTenantID, t))
		}
		next.ServeHTTP(w, r)
	})
}

type testServer struct {
	router     chi.Router
	preview    *fakePreviewer
	commit     *fakeCommitter
	dispatcher *fakeDispatcher
	jobs       *fakeJobs
	accounts   *fakeAccounts
	events     *recordingEvents
}

func newTestServer() *testServer {
	log := logger.NewNop()
	s := &testServer{
		preview:    &fakePreviewer{},
		commit:     &fakeCommitter{},
		dispatcher: &fakeDispatcher{},
		jobs:       &fakeJobs{jobs: map[string]*models.SyncJob{}},
		accounts:   &fakeAccounts{},
		events:     &recordingEvents{},
	}
	catalog := NewCatalogHandler(s.preview, s.commit, log)
	sync := NewSyncHandler(s.dispatcher, s.jobs, log)
	accounts := NewAccountHandler(s.accounts, log)
	webhooks := NewWebhookHandler(map[models.Channel]string{models.ChannelShopee: "hook-secret"}, s.events, log)

	r := chi.NewRouter()
	r.Post("/webhooks/{channel}", webhooks.Receive)
	r.Group(func(r chi.Router) {
		r.Use(withTenant)
		r.Post("/catalog/preview", catalog.Preview)
		r.Post("/catalog/commit", catalog.Commit)
		r.Post("/sync/pull", sync.Pull)
		r.Post("/sync/push", sync.Push)
		r.Get("/sync/jobs", sync.ListJobs)
		r.Get("/sync/jobs/{id}", sync.GetJob)
		r.Get("/accounts", accounts.List)
		r.Post("/accounts", accounts.Connect)
		r.Put("/accounts/{id}/tokens", accounts.RotateTokens)
		r.Patch("/accounts/{id}/status", accounts.SetStatus)
	})
	s.router = r
	return s
}

func (s *testServer) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", testTenant)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var out errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func commitResponse(ok, failed int) *models.CommitResponse {
	return &models.CommitResponse{
		CommitID: "commit-1",
		Summary: models.CommitSummary{
			TotalOperations:      ok + failed,
			SuccessfulOperations: ok,
			FailedOperations:     failed,
		},
	}
}

const commitBody = `{"products":[{"productId":"p1","channel":"shopee","operation":"create","data":{"title":"t"},"validationToken":"tok"}],"idempotencyKey":"body-key"%s}`

func TestCommit_StatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		resp    *models.CommitResponse
		partial bool
		want    int
	}{
		{"all succeeded", commitResponse(2, 0), false, http.StatusOK},
		{"partial with opt-in", commitResponse(1, 1), true, http.StatusMultiStatus},
		{"partial without opt-in", commitResponse(1, 1), false, http.StatusBadRequest},
		{"all failed", commitResponse(0, 2), true, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer()
			s.commit.resp = tt.resp
			extra := ""
			if tt.partial {
				extra = `,"partialSuccess":true`
			}

			rec := s.do(t, http.MethodPost, "/catalog/commit", fmt.Sprintf(commitBody, extra), nil)

			assert.Equal(t, tt.want, rec.Code)
			var out models.CommitResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
			assert.Equal(t, "commit-1", out.CommitID)
		})
	}
}

func TestCommit_IdempotencyHeaderOverridesBody(t *testing.T) {
	s := newTestServer()
	s.commit.resp = commitResponse(1, 0)

	rec := s.do(t, http.MethodPost, "/catalog/commit", fmt.Sprintf(commitBody, ""),
		map[string]string{HeaderIdempotencyKey: "header-key"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "header-key", s.commit.got.IdempotencyKey)
}

func TestCommit_MissingKeyIsBadRequest(t *testing.T) {
	s := newTestServer()
	body := `{"products":[{"productId":"p1","channel":"shopee","operation":"create","data":{}}]}`

	rec := s.do(t, http.MethodPost, "/catalog/commit", body, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	out := decodeError(t, rec)
	require.NotEmpty(t, out.Details)
	assert.Equal(t, "idempotencyKey", out.Details[0].Field)
}

func TestCommit_EmptyProductsIsBadRequest(t *testing.T) {
	s := newTestServer()

	rec := s.do(t, http.MethodPost, "/catalog/commit", `{"products":[],"idempotencyKey":"k"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCommit_InProgressIsConflict(t *testing.T) {
	s := newTestServer()
	s.commit.err = services.ErrCommitInProgress

	rec := s.do(t, http.MethodPost, "/catalog/commit", fmt.Sprintf(commitBody, ""), nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCommit_UnexpectedErrorIs500(t *testing.T) {
	s := newTestServer()
	s.commit.err = errors.New("cache down")

	rec := s.do(t, http.MethodPost, "/catalog/commit", fmt.Sprintf(commitBody, ""), nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "cache down")
}

func TestCommit_MalformedJSON(t *testing.T) {
	s := newTestServer()

	rec := s.do(t, http.MethodPost, "/catalog/commit", `{"products":`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreview(t *testing.T) {
	s := newTestServer()
	body := `{"products":[{"id":"p1","name":"Phone"}],"channels":["shopee","tiktok"]}`

	rec := s.do(t, http.MethodPost, "/catalog/preview", body, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, s.preview.got.Channels, 2)
}

func TestPreview_RejectsUnknownChannel(t *testing.T) {
	s := newTestServer()
	body := `{"products":[{"id":"p1","name":"Phone"}],"channels":["ebay"]}`

	rec := s.do(t, http.MethodPost, "/catalog/preview", body, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	out := decodeError(t, rec)
	require.NotEmpty(t, out.Details)
	assert.Equal(t, "channels[0]", out.Details[0].Field)
}

func TestPreview_RequiresTenant(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/catalog/preview", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncPull_HeaderKeyAndTenant(t *testing.T) {
	s := newTestServer()

	rec := s.do(t, http.MethodPost, "/sync/pull", `{"jobType":"catalog","idempotencyKey":"body"}`,
		map[string]string{HeaderIdempotencyKey: "header"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testTenant, s.dispatcher.tenant)
	assert.Equal(t, "header", s.dispatcher.pull.IdempotencyKey)
	assert.Equal(t, models.JobTypeCatalog, s.dispatcher.pull.JobType)
}

func TestSyncPush_RequestErrorIsBadRequest(t *testing.T) {
	s := newTestServer()
	s.dispatcher.err = &models.RequestError{Message: models.ErrOrdersPushUnsupported.Error()}

	rec := s.do(t, http.MethodPost, "/sync/push", `{"jobType":"orders","idempotencyKey":"k","data":{}}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "orders cannot be pushed", decodeError(t, rec).Message)
	assert.JSONEq(t, `{}`, string(s.dispatcher.push.Data))
}

func TestSyncPush_InternalError(t *testing.T) {
	s := newTestServer()
	s.dispatcher.err = errors.New("db down")

	rec := s.do(t, http.MethodPost, "/sync/push", `{"jobType":"stock","idempotencyKey":"k"}`, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListJobs_Pagination(t *testing.T) {
	s := newTestServer()
	s.jobs.jobs["job-1"] = &models.SyncJob{ID: "job-1", TenantID: testTenant}

	rec := s.do(t, http.MethodGet, "/sync/jobs?page=2&page_size=20&status=failed&job_type=stock", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 20, s.jobs.filter.Limit)
	assert.Equal(t, 20, s.jobs.filter.Offset)
	assert.Equal(t, models.JobStatusFailed, s.jobs.filter.Status)
	assert.Equal(t, testTenant, s.jobs.filter.TenantID)

	var out struct {
		Success bool `json:"success"`
		Meta    struct {
			TotalItems int64 `json:"total_items"`
			TotalPages int   `json:"total_pages"`
			HasNext    bool  `json:"has_next"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Success)
	assert.Equal(t, int64(45), out.Meta.TotalItems)
	assert.Equal(t, 3, out.Meta.TotalPages)
	assert.True(t, out.Meta.HasNext)
}

func TestListJobs_InvalidJobType(t *testing.T) {
	s := newTestServer()

	rec := s.do(t, http.MethodGet, "/sync/jobs?job_type=everything", "", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJob(t *testing.T) {
	s := newTestServer()
	s.jobs.jobs["job-1"] = &models.SyncJob{ID: "job-1", TenantID: testTenant, Status: models.JobStatusCompleted}
	s.jobs.jobs["job-2"] = &models.SyncJob{ID: "job-2", TenantID: "other"}

	rec := s.do(t, http.MethodGet, "/sync/jobs/job-1", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"completed"`)

	rec = s.do(t, http.MethodGet, "/sync/jobs/job-2", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAccounts_Connect(t *testing.T) {
	s := newTestServer()
	body := `{"channel":"shopee","shop_id":"shop-1","auto_sync":true,"tokens":{"access_token":"a","refresh_token":"r","expires_in":3600}}`

	rec := s.do(t, http.MethodPost, "/accounts", body, nil)

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, s.accounts.connected, 1)
	assert.Equal(t, "shop-1", s.accounts.connected[0].ShopID)
	assert.Equal(t, "r", s.accounts.connected[0].Tokens.RefreshToken)
}

func TestAccounts_ConnectValidation(t *testing.T) {
	s := newTestServer()

	rec := s.do(t, http.MethodPost, "/accounts", `{"channel":"shopee","tokens":{}}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	fields := map[string]bool{}
	for _, d := range decodeError(t, rec).Details {
		fields[d.Field] = true
	}
	assert.True(t, fields["shop_id"])
	assert.True(t, fields["tokens.access_token"])
}

func TestAccounts_ListRejectsUnknownChannel(t *testing.T) {
	s := newTestServer()

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/accounts?channel=shopee", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/accounts?channel=ebay", "", nil).Code)
}

func TestAccounts_RotateTokens(t *testing.T) {
	s := newTestServer()

	rec := s.do(t, http.MethodPut, "/accounts/acc-7/tokens", `{"access_token":"new","expires_in":60}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "new", s.accounts.rotated["acc-7"].AccessToken)
}

func TestAccounts_NotFound(t *testing.T) {
	s := newTestServer()
	s.accounts.err = fmt.Errorf("%w: acc-9", services.ErrAccountNotFound)

	rec := s.do(t, http.MethodPatch, "/accounts/acc-9/status", `{"status":"disabled"}`, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAccounts_SetStatus(t *testing.T) {
	s := newTestServer()

	rec := s.do(t, http.MethodPatch, "/accounts/acc-1/status", `{"status":"disabled"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"disabled"`)

	rec = s.do(t, http.MethodPatch, "/accounts/acc-1/status", `{"status":"deleted"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
