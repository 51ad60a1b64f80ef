package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
	"github.com/athebyme/gomarket-platform/channel-sync/pkg/utils"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// SyncDispatcher раскладывает pull/push запросы на задачи по аккаунтам
type SyncDispatcher interface {
	Pull(ctx context.Context, tenantID string, req models.PullRequest) (*models.DispatchResponse, error)
	Push(ctx context.Context, tenantID string, req models.PushRequest) (*models.DispatchResponse, error)
}

// JobReader чтение задач синхронизации
type JobReader interface {
	GetJob(ctx context.Context, tenantID, jobID string) (*models.SyncJob, error)
	ListJobs(ctx context.Context, filter models.JobFilter) ([]*models.SyncJob, int, error)
}

// SyncHandler обработчик запросов синхронизации
type SyncHandler struct {
	dispatcher SyncDispatcher
	jobs       JobReader
	logger     interfaces.LoggerPort
}

// NewSyncHandler создает обработчик синхронизации
func NewSyncHandler(dispatcher SyncDispatcher, jobs JobReader, logger interfaces.LoggerPort) *SyncHandler {
	return &SyncHandler{
		dispatcher: dispatcher,
		jobs:       jobs,
		logger:     logger,
	}
}

// Pull обрабатывает POST /sync/pull
// @Summary Загрузка данных с маркетплейсов
// @Tags sync
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Ключ идемпотентности"
// @Param request body models.PullRequest true "Параметры загрузки"
// @Success 200 {object} models.DispatchResponse
// @Failure 400 {object} errorResponse
// @Router /sync/pull [post]
func (h *SyncHandler) Pull(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	var req models.PullRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.IdempotencyKey = idempotencyKey(r, req.IdempotencyKey)

	resp, err := h.dispatcher.Pull(r.Context(), tenant, req)
	h.renderDispatch(w, r, resp, err)
}

// Push обрабатывает POST /sync/push
// @Summary Выгрузка данных на маркетплейсы
// @Tags sync
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Ключ идемпотентности"
// @Param request body models.PushRequest true "Данные выгрузки"
// @Success 200 {object} models.DispatchResponse
// @Failure 400 {object} errorResponse
// @Router /sync/push [post]
func (h *SyncHandler) Push(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	var req models.PushRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.IdempotencyKey = idempotencyKey(r, req.IdempotencyKey)

	resp, err := h.dispatcher.Push(r.Context(), tenant, req)
	h.renderDispatch(w, r, resp, err)
}

func (h *SyncHandler) renderDispatch(w http.ResponseWriter, r *http.Request, resp *models.DispatchResponse, err error) {
	if err != nil {
		if renderRequestError(w, r, err) {
			return
		}
		renderInternal(w, r, h.logger, "Ошибка постановки задач синхронизации", err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// ListJobs обрабатывает GET /sync/jobs?page=&page_size=&status=&job_type=&account_id=
// @Summary Список задач синхронизации
// @Tags sync
// @Produce json
// @Param page query int false "Номер страницы"
// @Param page_size query int false "Размер страницы"
// @Param status query string false "Статус задачи"
// @Param job_type query string false "Тип задачи"
// @Param account_id query string false "ID аккаунта"
// @Success 200 {object} response
// @Router /sync/jobs [get]
func (h *SyncHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	p := utils.NewPagination(page, pageSize)

	filter := models.JobFilter{
		TenantID:  tenant,
		AccountID: q.Get("account_id"),
		Status:    models.JobStatus(q.Get("status")),
		JobType:   models.JobType(q.Get("job_type")),
		Limit:     p.GetLimit(),
		Offset:    p.GetOffset(),
	}
	if filter.JobType != "" && !filter.JobType.IsValid() {
		renderError(w, r, http.StatusBadRequest, "bad_request", "unsupported job type")
		return
	}

	jobs, total, err := h.jobs.ListJobs(r.Context(), filter)
	if err != nil {
		renderInternal(w, r, h.logger, "Ошибка получения списка задач", err)
		return
	}
	if jobs == nil {
		jobs = []*models.SyncJob{}
	}
	p.SetTotal(int64(total))

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{Success: true, Data: jobs, Meta: p})
}

// GetJob обрабатывает GET /sync/jobs/{id}
// @Summary Задача синхронизации
// @Tags sync
// @Produce json
// @Param id path string true "ID задачи"
// @Success 200 {object} response
// @Failure 404 {object} errorResponse
// @Router /sync/jobs/{id} [get]
func (h *SyncHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	jobID := chi.URLParam(r, "id")

	job, err := h.jobs.GetJob(r.Context(), tenant, jobID)
	if err != nil {
		renderInternal(w, r, h.logger, "Ошибка получения задачи", err)
		return
	}
	if job == nil {
		renderError(w, r, http.StatusNotFound, "not_found", "sync job not found")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{Success: true, Data: job})
}
