package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/connector"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	pgport "github.com/athebyme/gomarket-platform/channel-sync/internal/infrastructure/postgres"
	pkgmodels "github.com/athebyme/gomarket-platform/channel-sync/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// memStore хранилище в памяти для тестов сервисов
type memStore struct {
	mu        sync.Mutex
	accounts  []*models.ChannelAccount
	tokens    []*models.ChannelToken
	listings  []*pkgmodels.ChannelListing
	jobs      map[string]*models.SyncJob
	commits   int
	rollbacks int
	listErr   error
}

var _ pgport.Port = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{jobs: map[string]*models.SyncJob{}}
}

func (s *memStore) addAccount(a models.ChannelAccount) *models.ChannelAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.TenantID == "" {
		a.TenantID = "tenant-1"
	}
	if a.Status == "" {
		a.Status = models.AccountStatusActive
	}
	s.accounts = append(s.accounts, &a)
	return &a
}

func (s *memStore) addToken(accountID, value string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = append(s.tokens, &models.ChannelToken{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Type:      models.TokenTypeAccess,
		Value:     value,
		ExpiresAt: expiresAt,
		Active:    true,
	})
}

func (s *memStore) addListing(accountID, productID, externalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings = append(s.listings, &pkgmodels.ChannelListing{
		ID:         uuid.NewString(),
		TenantID:   "tenant-1",
		AccountID:  accountID,
		ProductID:  productID,
		ExternalID: externalID,
	})
}

func (s *memStore) GetAccount(_ context.Context, tenantID, accountID string) (*models.ChannelAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ID == accountID && a.TenantID == tenantID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) ListAccounts(_ context.Context, tenantID string, f pgport.AccountFilter) ([]*models.ChannelAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	ids := map[string]bool{}
	for _, id := range f.IDs {
		ids[id] = true
	}
	var out []*models.ChannelAccount
	for _, a := range s.accounts {
		if a.TenantID != tenantID {
			continue
		}
		if len(ids) > 0 && !ids[a.ID] {
			continue
		}
		if f.Channel != "" && a.Channel != f.Channel {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStore) ListAutoSyncTenants(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, a := range s.accounts {
		if a.IsActive() && a.AutoSync && !seen[a.TenantID] {
			seen[a.TenantID] = true
			out = append(out, a.TenantID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *memStore) SaveAccount(_ context.Context, a *models.ChannelAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	cp := *a
	for i, existing := range s.accounts {
		if existing.ID == a.ID {
			s.accounts[i] = &cp
			return nil
		}
	}
	s.accounts = append(s.accounts, &cp)
	return nil
}

func (s *memStore) TouchLastSync(_ context.Context, tenantID, accountID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ID == accountID && a.TenantID == tenantID {
			a.LastSyncAt = &at
		}
	}
	return nil
}

func (s *memStore) GetActiveToken(_ context.Context, accountID string, tokenType models.TokenType) (*models.ChannelToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.AccountID == accountID && t.Type == tokenType && t.Active {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) RotateToken(_ context.Context, token *models.ChannelToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.AccountID == token.AccountID && t.Type == token.Type {
			t.Active = false
		}
	}
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	token.Active = true
	cp := *token
	s.tokens = append(s.tokens, &cp)
	return nil
}

func (s *memStore) FindByProducts(_ context.Context, tenantID, accountID string, productIDs []string) ([]*pkgmodels.ChannelListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := map[string]bool{}
	for _, id := range productIDs {
		want[id] = true
	}
	out := []*pkgmodels.ChannelListing{}
	for _, l := range s.listings {
		if l.TenantID == tenantID && l.AccountID == accountID && want[l.ProductID] {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) GetByProduct(_ context.Context, tenantID, accountID, productID string) (*pkgmodels.ChannelListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.listings {
		if l.TenantID == tenantID && l.AccountID == accountID && l.ProductID == productID {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) SaveListing(_ context.Context, l *pkgmodels.ChannelListing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.listings {
		if existing.TenantID == l.TenantID && existing.AccountID == l.AccountID && existing.ExternalID == l.ExternalID {
			cp := *l
			if cp.ProductID == "" {
				cp.ProductID = existing.ProductID
			}
			s.listings[i] = &cp
			return nil
		}
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	cp := *l
	s.listings = append(s.listings, &cp)
	return nil
}

func (s *memStore) CreateJob(_ context.Context, job *models.SyncJob) (*models.SyncJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.TenantID == job.TenantID && j.IdempotencyKey == job.IdempotencyKey {
			cp := *j
			return &cp, false, nil
		}
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return job, true, nil
}

func (s *memStore) GetJob(_ context.Context, tenantID, jobID string) (*models.SyncJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok || j.TenantID != tenantID {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (s *memStore) ListJobs(_ context.Context, f models.JobFilter) ([]*models.SyncJob, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.SyncJob
	for _, j := range s.jobs {
		if j.TenantID == f.TenantID {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (s *memStore) UpdateJob(_ context.Context, job *models.SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return errors.New("not found")
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *memStore) BeginTx(ctx context.Context) (context.Context, error) { return ctx, nil }

func (s *memStore) CommitTx(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits++
	return nil
}

func (s *memStore) RollbackTx(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollbacks++
	return nil
}

func (s *memStore) Ping(context.Context) error { return nil }
func (s *memStore) Close() error               { return nil }

// mockListings мок операций маркетплейса
type mockListings struct {
	mock.Mock
	channel models.Channel
}

var _ connector.Listings = (*mockListings)(nil)

func (m *mockListings) Channel() models.Channel { return m.channel }

func (m *mockListings) CreateListing(ctx context.Context, creds connector.Credentials, p models.ChannelPayload, key string) (*connector.ListingInfo, error) {
	args := m.Called(ctx, creds, p, key)
	info, _ := args.Get(0).(*connector.ListingInfo)
	return info, args.Error(1)
}

func (m *mockListings) UpdateListing(ctx context.Context, creds connector.Credentials, externalID string, p models.ChannelPayload, key string) (*connector.ListingInfo, error) {
	args := m.Called(ctx, creds, externalID, p, key)
	info, _ := args.Get(0).(*connector.ListingInfo)
	return info, args.Error(1)
}

func (m *mockListings) GetListing(ctx context.Context, creds connector.Credentials, externalID string) (*connector.ListingInfo, error) {
	args := m.Called(ctx, creds, externalID)
	info, _ := args.Get(0).(*connector.ListingInfo)
	return info, args.Error(1)
}

func (m *mockListings) UpdateListingStatus(ctx context.Context, creds connector.Credentials, externalID string, active bool, key string) error {
	return m.Called(ctx, creds, externalID, active, key).Error(0)
}

func (m *mockListings) UpdateStock(ctx context.Context, creds connector.Credentials, externalID string, stock int, key string) error {
	return m.Called(ctx, creds, externalID, stock, key).Error(0)
}

func (m *mockListings) UpdatePrice(ctx context.Context, creds connector.Credentials, externalID string, price decimal.Decimal, key string) error {
	return m.Called(ctx, creds, externalID, price, key).Error(0)
}

func (m *mockListings) ListListings(ctx context.Context, creds connector.Credentials, offset, limit int) (*connector.ListingPage, error) {
	args := m.Called(ctx, creds, offset, limit)
	page, _ := args.Get(0).(*connector.ListingPage)
	return page, args.Error(1)
}

func (m *mockListings) ListOrders(ctx context.Context, creds connector.Credentials, since time.Time, cursor string, limit int) (*connector.OrderPage, error) {
	args := m.Called(ctx, creds, since, cursor, limit)
	page, _ := args.Get(0).(*connector.OrderPage)
	return page, args.Error(1)
}

// lookup реестр моков по каналам
type lookup map[models.Channel]connector.Listings

func (l lookup) Lookup(ch models.Channel) (connector.Listings, error) {
	mp, ok := l[ch]
	if !ok {
		return nil, connector.ErrUnsupportedChannel
	}
	return mp, nil
}

// recordingQueue очередь, запоминающая поставленные задачи. Повтор ключа возвращает прежнюю задачу.
type recordingQueue struct {
	mu     sync.Mutex
	jobs   []*models.SyncJob
	failOn map[string]bool
}

func (q *recordingQueue) Enqueue(_ context.Context, job *models.SyncJob) (*models.SyncJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failOn[job.AccountID] {
		return nil, errors.New("broker unavailable")
	}
	for _, existing := range q.jobs {
		if existing.TenantID == job.TenantID && existing.IdempotencyKey == job.IdempotencyKey {
			return existing, nil
		}
	}
	q.jobs = append(q.jobs, job)
	return job, nil
}

func (q *recordingQueue) keys() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, j.IdempotencyKey)
	}
	sort.Strings(out)
	return out
}

// recordingPublisher публикатор событий для тестов
type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.ChannelEvent
}

func (p *recordingPublisher) PublishEvent(_ context.Context, ev *models.ChannelEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}
