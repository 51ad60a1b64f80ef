package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/services"
	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// AccountManager подключение аккаунтов каналов и управление их токенами
type AccountManager interface {
	Connect(ctx context.Context, tenantID string, req models.ConnectAccountRequest) (*models.ChannelAccount, error)
	RotateTokens(ctx context.Context, tenantID, accountID string, grant models.TokenGrant) error
	List(ctx context.Context, tenantID string, ch models.Channel) ([]*models.ChannelAccount, error)
	SetStatus(ctx context.Context, tenantID, accountID string, req models.AccountStatusRequest) (*models.ChannelAccount, error)
}

// AccountHandler обработчик аккаунтов каналов
type AccountHandler struct {
	accounts AccountManager
	logger   interfaces.LoggerPort
}

// NewAccountHandler создает обработчик аккаунтов
func NewAccountHandler(accounts AccountManager, logger interfaces.LoggerPort) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

// Connect обрабатывает POST /accounts
// @Summary Подключение аккаунта канала
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body models.ConnectAccountRequest true "Аккаунт и токены"
// @Success 201 {object} response
// @Failure 400 {object} errorResponse
// @Router /accounts [post]
func (h *AccountHandler) Connect(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	var req models.ConnectAccountRequest
	if !decodeBody(w, r, &req) {
		return
	}

	account, err := h.accounts.Connect(r.Context(), tenant, req)
	if err != nil {
		h.renderAccountError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response{Success: true, Data: account})
}

// List обрабатывает GET /accounts?channel=
// @Summary Аккаунты арендатора
// @Tags accounts
// @Produce json
// @Param channel query string false "Канал"
// @Success 200 {object} response
// @Router /accounts [get]
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	ch := models.Channel(r.URL.Query().Get("channel"))
	if ch != "" && !ch.IsValid() {
		renderError(w, r, http.StatusBadRequest, "bad_request", "unsupported channel")
		return
	}

	accounts, err := h.accounts.List(r.Context(), tenant, ch)
	if err != nil {
		renderInternal(w, r, h.logger, "Ошибка получения аккаунтов", err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{Success: true, Data: accounts})
}

// RotateTokens обрабатывает PUT /accounts/{id}/tokens
// @Summary Обновление токенов аккаунта
// @Tags accounts
// @Accept json
// @Produce json
// @Param id path string true "ID аккаунта"
// @Param request body models.TokenGrant true "Новые токены"
// @Success 200 {object} response
// @Failure 404 {object} errorResponse
// @Router /accounts/{id}/tokens [put]
func (h *AccountHandler) RotateTokens(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	var grant models.TokenGrant
	if !decodeBody(w, r, &grant) {
		return
	}

	if err := h.accounts.RotateTokens(r.Context(), tenant, chi.URLParam(r, "id"), grant); err != nil {
		h.renderAccountError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{Success: true})
}

// SetStatus обрабатывает PATCH /accounts/{id}/status
// @Summary Смена статуса аккаунта
// @Tags accounts
// @Accept json
// @Produce json
// @Param id path string true "ID аккаунта"
// @Param request body models.AccountStatusRequest true "Статус"
// @Success 200 {object} response
// @Failure 404 {object} errorResponse
// @Router /accounts/{id}/status [patch]
func (h *AccountHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	var req models.AccountStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	account, err := h.accounts.SetStatus(r.Context(), tenant, chi.URLParam(r, "id"), req)
	if err != nil {
		h.renderAccountError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{Success: true, Data: account})
}

func (h *AccountHandler) renderAccountError(w http.ResponseWriter, r *http.Request, err error) {
	if renderRequestError(w, r, err) {
		return
	}
	if errors.Is(err, services.ErrAccountNotFound) {
		renderError(w, r, http.StatusNotFound, "not_found", err.Error())
		return
	}
	renderInternal(w, r, h.logger, "Ошибка операции с аккаунтом", err)
}
