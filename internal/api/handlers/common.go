package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
	"github.com/go-chi/render"
)

// HeaderIdempotencyKey заголовок, который имеет приоритет над idempotencyKey в теле
const HeaderIdempotencyKey = "Idempotency-Key"

// errorResponse представляет структуру ответа с ошибкой
type errorResponse struct {
	Error   string                  `json:"error"`
	Code    int                     `json:"code"`
	Message string                  `json:"message,omitempty"`
	Details []models.FieldViolation `json:"details,omitempty"`
}

// response представляет структуру успешного ответа
type response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

func renderError(w http.ResponseWriter, r *http.Request, status int, errCode, message string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: errCode, Code: status, Message: message})
}

// renderRequestError отвечает 400 с нарушениями по полям, если err это *models.RequestError.
// Возвращает false для остальных ошибок.
func renderRequestError(w http.ResponseWriter, r *http.Request, err error) bool {
	var reqErr *models.RequestError
	if !errors.As(err, &reqErr) {
		return false
	}
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, errorResponse{
		Error:   "bad_request",
		Code:    http.StatusBadRequest,
		Message: reqErr.Message,
		Details: reqErr.Details,
	})
	return true
}

func renderInternal(w http.ResponseWriter, r *http.Request, logger interfaces.LoggerPort, msg string, err error) {
	logger.ErrorWithContext(r.Context(), msg, interfaces.LogField{Key: "error", Value: err.Error()})
	renderError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
}

// decodeBody разбирает JSON тело запроса. При ошибке отвечает 400 и возвращает false.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		renderError(w, r, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// tenantID берет арендатора из контекста. При отсутствии отвечает 400.
func tenantID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := interfaces.TenantFromContext(r.Context())
	if id == "" {
		renderError(w, r, http.StatusBadRequest, "bad_request", "tenant is not specified")
		return "", false
	}
	return id, true
}

// idempotencyKey ключ из заголовка, если он задан, иначе из тела
func idempotencyKey(r *http.Request, bodyKey string) string {
	if h := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey)); h != "" {
		return h
	}
	return bodyKey
}
