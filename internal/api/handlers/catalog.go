package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/services"
	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
	"github.com/go-chi/render"
)

// Previewer строит превью товаров для каналов
type Previewer interface {
	Preview(ctx context.Context, tenantID string, req models.PreviewRequest) *models.PreviewResponse
}

// Committer применяет подтвержденные превью к маркетплейсам
type Committer interface {
	Commit(ctx context.Context, tenantID string, req models.CommitRequest) (*models.CommitResponse, error)
}

// CatalogHandler обработчик превью и коммита каталога
type CatalogHandler struct {
	preview Previewer
	commit  Committer
	logger  interfaces.LoggerPort
}

// NewCatalogHandler создает обработчик каталога
func NewCatalogHandler(preview Previewer, commit Committer, logger interfaces.LoggerPort) *CatalogHandler {
	return &CatalogHandler{
		preview: preview,
		commit:  commit,
		logger:  logger,
	}
}

// Preview обрабатывает POST /catalog/preview
// @Summary Превью товаров для каналов
// @Tags catalog
// @Accept json
// @Produce json
// @Param request body models.PreviewRequest true "Товары и каналы"
// @Success 200 {object} models.PreviewResponse
// @Failure 400 {object} errorResponse
// @Router /catalog/preview [post]
func (h *CatalogHandler) Preview(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	var req models.PreviewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := models.ValidateRequest(req); err != nil {
		renderRequestError(w, r, err)
		return
	}

	resp := h.preview.Preview(r.Context(), tenant, req)
	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// Commit обрабатывает POST /catalog/commit.
// 200 все операции успешны, 207 частичный успех при partialSuccess, иначе 400.
// @Summary Коммит листингов на маркетплейсы
// @Tags catalog
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Ключ идемпотентности"
// @Param request body models.CommitRequest true "Операции коммита"
// @Success 200 {object} models.CommitResponse
// @Success 207 {object} models.CommitResponse
// @Failure 400 {object} models.CommitResponse
// @Failure 409 {object} errorResponse
// @Router /catalog/commit [post]
func (h *CatalogHandler) Commit(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	var req models.CommitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.IdempotencyKey = idempotencyKey(r, req.IdempotencyKey)

	resp, err := h.commit.Commit(r.Context(), tenant, req)
	if err != nil {
		if renderRequestError(w, r, err) {
			return
		}
		if errors.Is(err, services.ErrCommitInProgress) {
			renderError(w, r, http.StatusConflict, "conflict", err.Error())
			return
		}
		renderInternal(w, r, h.logger, "Ошибка коммита каталога", err)
		return
	}

	render.Status(r, services.CommitHTTPStatus(resp, req.PartialSuccess))
	render.JSON(w, r, resp)
}
