package connector

import (
	"errors"
	"fmt"
	"net/http"
)

// Коды ошибок коннектора
const (
	CodeRateLimited        = "RATE_LIMITED"
	CodeNetworkError       = "NETWORK_ERROR"
	CodeTimeout            = "TIMEOUT"
	CodeMissingCredentials = "MISSING_CREDENTIALS"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeInvalidResponse    = "INVALID_RESPONSE"
	CodePlatformError      = "PLATFORM_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeUnknown            = "UNKNOWN_ERROR"
)

// Ошибки конфигурации клиента. Возвращаются только из конструкторов.
var (
	ErrEmptyPartnerKey    = errors.New("partner key is empty")
	ErrInvalidPartnerID   = errors.New("partner id must be positive")
	ErrInvalidBaseURL     = errors.New("base url is invalid")
	ErrNilRateLimiter     = errors.New("rate limiter is nil")
	ErrUnsupportedChannel = errors.New("channel is not supported")
	ErrUnknownOperation   = errors.New("operation is not defined for channel")
)

// ConnectorError типизированная ошибка вызова маркетплейса
type ConnectorError struct {
	Code           string `json:"code"`
	Message        string `json:"message"`
	Retryable      bool   `json:"retryable"`
	HTTPStatusCode int    `json:"httpStatusCode,omitempty"`
}

func (e *ConnectorError) Error() string {
	if e.HTTPStatusCode != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.HTTPStatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AsConnectorError извлекает ConnectorError из цепочки ошибок.
// Прочие ошибки оборачиваются в UNKNOWN_ERROR без повтора.
func AsConnectorError(err error) *ConnectorError {
	if err == nil {
		return nil
	}
	var ce *ConnectorError
	if errors.As(err, &ce) {
		return ce
	}
	return &ConnectorError{Code: CodeUnknown, Message: err.Error()}
}

// IsRetryableStatus сообщает, стоит ли повторять ответ с таким HTTP статусом
func IsRetryableStatus(status int) bool {
	return status >= http.StatusInternalServerError || status == http.StatusTooManyRequests
}

func newRateLimitedError(endpoint string) *ConnectorError {
	return &ConnectorError{
		Code:           CodeRateLimited,
		Message:        fmt.Sprintf("rate limit exceeded for endpoint %s", endpoint),
		Retryable:      true,
		HTTPStatusCode: http.StatusTooManyRequests,
	}
}

func newHTTPError(status int, message string) *ConnectorError {
	code := fmt.Sprintf("HTTP_%d", status)
	if status == http.StatusNotFound {
		code = CodeNotFound
	}
	if status == http.StatusTooManyRequests {
		code = CodeRateLimited
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return &ConnectorError{
		Code:           code,
		Message:        message,
		Retryable:      IsRetryableStatus(status),
		HTTPStatusCode: status,
	}
}
