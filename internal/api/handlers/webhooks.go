package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/connector"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/services"
	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
)

const (
	// HeaderWebhookSignature HMAC-SHA256 тела вебхука в hex
	HeaderWebhookSignature = "X-Webhook-Signature"

	maxWebhookBody = 1 << 20
)

// WebhookHandler принимает уведомления маркетплейсов
type WebhookHandler struct {
	keys   map[models.Channel]string
	events services.EventPublisher
	logger interfaces.LoggerPort
	now    func() time.Time
}

// NewWebhookHandler создает обработчик вебхуков. keys ключи подписи по каналам.
func NewWebhookHandler(keys map[models.Channel]string, events services.EventPublisher, logger interfaces.LoggerPort) *WebhookHandler {
	return &WebhookHandler{
		keys:   keys,
		events: events,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Receive обрабатывает POST /webhooks/{channel}.
// Подпись берется из X-Webhook-Signature, иначе из Authorization.
// @Summary Вебхук маркетплейса
// @Tags webhooks
// @Accept json
// @Produce json
// @Param channel path string true "Канал"
// @Param X-Webhook-Signature header string true "HMAC-SHA256 тела"
// @Success 202 {object} response
// @Failure 401 {object} errorResponse
// @Router /webhooks/{channel} [post]
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	ch := models.Channel(chi.URLParam(r, "channel"))
	key, ok := h.keys[ch]
	if !ch.IsValid() || !ok || key == "" {
		renderError(w, r, http.StatusNotFound, "not_found", "webhooks are not configured for channel")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		renderError(w, r, http.StatusBadRequest, "bad_request", "failed to read body")
		return
	}

	signature := r.Header.Get(HeaderWebhookSignature)
	if signature == "" {
		signature = r.Header.Get("Authorization")
	}
	if !connector.VerifyWebhookSignature(key, body, signature) {
		h.logger.WarnWithContext(r.Context(), "Вебхук с неверной подписью",
			"channel", string(ch),
			"remote_addr", r.RemoteAddr)
		renderError(w, r, http.StatusUnauthorized, "unauthorized", "invalid webhook signature")
		return
	}

	data := json.RawMessage(body)
	if !json.Valid(body) {
		data, _ = json.Marshal(string(body))
	}
	event := &models.ChannelEvent{
		ID:         uuid.New().String(),
		Type:       models.EventWebhookReceived,
		Channel:    ch,
		OccurredAt: h.now(),
		Data:       data,
	}
	if err := h.events.PublishEvent(r.Context(), event); err != nil {
		renderInternal(w, r, h.logger, "Не удалось опубликовать событие вебхука", err)
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, response{Success: true, Data: map[string]string{"eventId": event.ID}})
}
