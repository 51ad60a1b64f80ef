package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/metrics"
	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
)

const (
	paramPartnerID   = "partner_id"
	paramTimestamp   = "timestamp"
	paramSign        = "sign"
	paramAccessToken = "access_token"
	paramShopID      = "shop_id"

	headerIdempotencyKey     = "X-Idempotency-Key"
	headerRateLimitRemaining = "X-RateLimit-Remaining"

	maxResponseBytes = 10 << 20
)

// Endpoint описание одного метода API маркетплейса
type Endpoint struct {
	Name   string
	Method string
	// Path может содержать плейсхолдер {id}
	Path                string
	Signer              Signer
	RequiresAccessToken bool
	RequiresShopID      bool
	// RateLimit вызовов в минуту; 0 - лимит клиента по умолчанию
	RateLimit int
	Mutating  bool
}

// Credentials данные аккаунта для подписанных вызовов
type Credentials struct {
	AccessToken string
	ShopID      string
}

// Request абстрактный вызов маркетплейса
type Request struct {
	Endpoint       Endpoint
	PathID         string
	Query          map[string]string
	Body           interface{}
	Credentials    Credentials
	IdempotencyKey string
}

// ResponseMeta метаданные ответа
type ResponseMeta struct {
	RequestID          string    `json:"requestId,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
	RateLimitRemaining int       `json:"rateLimitRemaining"`
	Attempts           int       `json:"attempts"`
}

// Response нормализованный результат: либо Data, либо Error
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Meta    ResponseMeta    `json:"meta"`
	Error   *ConnectorError `json:"error,omitempty"`
}

// Decode разбирает полезную нагрузку успешного ответа
func (r *Response) Decode(v interface{}) error {
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// ClientConfig настройки клиента одного маркетплейса
type ClientConfig struct {
	Channel          models.Channel
	BaseURL          string
	PartnerID        int64
	PartnerKey       string
	Timeout          time.Duration
	Retry            RetryPolicy
	DefaultRateLimit int
	// RateWindow окно счетчика лимита, по умолчанию минута
	RateWindow       time.Duration
}

// Client подписывает и отправляет запросы к API маркетплейса.
// Ошибки HTTP и сети не возвращаются как error, а кладутся в Response.Error.
type Client struct {
	cfg        ClientConfig
	baseURL    *url.URL
	httpClient *http.Client
	limiter    RateLimiter
	logger     interfaces.LoggerPort
	now        func() time.Time
	sleep      Sleeper
}

// ClientOption настраивает Client
type ClientOption func(*Client)

// WithHTTPClient подменяет http.Client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock подменяет источник времени для timestamp подписи
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) { c.now = now }
}

// WithSleeper подменяет ожидание между попытками
func WithSleeper(s Sleeper) ClientOption {
	return func(c *Client) { c.sleep = s }
}

// NewClient создает клиент. Ошибки конфигурации возвращаются сразу.
func NewClient(cfg ClientConfig, limiter RateLimiter, logger interfaces.LoggerPort, opts ...ClientOption) (*Client, error) {
	if cfg.PartnerKey == "" {
		return nil, ErrEmptyPartnerKey
	}
	if cfg.PartnerID <= 0 {
		return nil, ErrInvalidPartnerID
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, cfg.BaseURL)
	}
	if limiter == nil {
		return nil, ErrNilRateLimiter
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry = DefaultRetryPolicy()
	}

	c := &Client{
		cfg:        cfg,
		baseURL:    base,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		logger:     logger.WithField("channel", string(cfg.Channel)),
		now:        time.Now,
		sleep:      contextSleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Channel возвращает канал клиента
func (c *Client) Channel() models.Channel {
	return c.cfg.Channel
}

// Do выполняет вызов с лимитом и повторами.
// Локальный отказ по лимиту возвращается сразу и внутри не повторяется.
func (c *Client) Do(ctx context.Context, req Request) *Response {
	ep := req.Endpoint
	if ep.RequiresAccessToken && req.Credentials.AccessToken == "" {
		return c.fail(ep, &ConnectorError{Code: CodeMissingCredentials, Message: "access token is required for " + ep.Name}, 0, -1)
	}
	if ep.RequiresShopID && req.Credentials.ShopID == "" {
		return c.fail(ep, &ConnectorError{Code: CodeMissingCredentials, Message: "shop id is required for " + ep.Name}, 0, -1)
	}

	var body []byte
	if req.Body != nil {
		var err error
		body, err = json.Marshal(req.Body)
		if err != nil {
			return c.fail(ep, &ConnectorError{Code: CodeInvalidRequest, Message: err.Error()}, 0, -1)
		}
	}

	limit := ep.RateLimit
	if limit == 0 {
		limit = c.cfg.DefaultRateLimit
	}
	limitKey := string(c.cfg.Channel) + ":" + ep.Name

	var resp *Response
	for attempt := 1; ; attempt++ {
		decision, err := c.limiter.Allow(ctx, limitKey, limit, c.cfg.RateWindow)
		if err != nil {
			c.logger.WarnWithContext(ctx, "Лимитер недоступен, вызов отклонен",
				interfaces.LogField{Key: "endpoint", Value: ep.Name},
				interfaces.LogField{Key: "error", Value: err.Error()})
			ce := newRateLimitedError(ep.Name)
			ce.Message = "rate limiter unavailable: " + err.Error()
			return c.fail(ep, ce, attempt, -1)
		}
		if !decision.Allowed {
			metrics.RateLimited.WithLabelValues(string(c.cfg.Channel), ep.Name).Inc()
			return c.fail(ep, newRateLimitedError(ep.Name), attempt, 0)
		}

		resp = c.attempt(ctx, req, body, decision.Remaining)
		resp.Meta.Attempts = attempt
		if resp.Success {
			metrics.ConnectorRequests.WithLabelValues(string(c.cfg.Channel), ep.Name, "success").Inc()
			return resp
		}

		if !c.cfg.Retry.ShouldRetry(resp.Error, attempt) || ctx.Err() != nil {
			break
		}

		delay := c.cfg.Retry.Delay(attempt)
		metrics.ConnectorRetries.WithLabelValues(string(c.cfg.Channel), ep.Name).Inc()
		c.logger.WarnWithContext(ctx, "Повтор вызова маркетплейса",
			interfaces.LogField{Key: "endpoint", Value: ep.Name},
			interfaces.LogField{Key: "attempt", Value: attempt},
			interfaces.LogField{Key: "delay", Value: delay.String()},
			interfaces.LogField{Key: "code", Value: resp.Error.Code})
		if err := c.sleep(ctx, delay); err != nil {
			break
		}
	}

	metrics.ConnectorRequests.WithLabelValues(string(c.cfg.Channel), ep.Name, "failure").Inc()
	return resp
}

func (c *Client) fail(ep Endpoint, ce *ConnectorError, attempts int, remaining int) *Response {
	if ce.Code != CodeRateLimited {
		metrics.ConnectorRequests.WithLabelValues(string(c.cfg.Channel), ep.Name, "failure").Inc()
	}
	return &Response{
		Success: false,
		Error:   ce,
		Meta: ResponseMeta{
			Timestamp:          c.now().UTC(),
			RateLimitRemaining: remaining,
			Attempts:           attempts,
		},
	}
}

// buildURL подписывает запрос и собирает итоговый URL
func (c *Client) buildURL(req Request, body []byte) string {
	ep := req.Endpoint
	path := ep.Path
	if req.PathID != "" {
		path = strings.ReplaceAll(path, "{id}", url.PathEscape(req.PathID))
	}
	fullPath := c.baseURL.Path + path

	params := make(map[string]string, len(req.Query)+4)
	for k, v := range req.Query {
		params[k] = v
	}
	ts := c.now().Unix()
	params[paramPartnerID] = strconv.FormatInt(c.cfg.PartnerID, 10)
	params[paramTimestamp] = strconv.FormatInt(ts, 10)

	in := SignInput{
		PartnerID: c.cfg.PartnerID,
		Path:      fullPath,
		Timestamp: ts,
		Body:      body,
	}
	if ep.RequiresAccessToken {
		params[paramAccessToken] = req.Credentials.AccessToken
		in.AccessToken = req.Credentials.AccessToken
	}
	if ep.RequiresShopID {
		params[paramShopID] = req.Credentials.ShopID
		in.ShopID = req.Credentials.ShopID
	}
	in.Params = params

	signer := ep.Signer
	if signer == nil {
		signer = PathSigner{}
	}

	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	q.Set(paramSign, Sign(signer, c.cfg.PartnerKey, in))

	u := *c.baseURL
	u.Path = fullPath
	u.RawQuery = q.Encode()
	return u.String()
}

// attempt выполняет одну сетевую попытку
func (c *Client) attempt(ctx context.Context, req Request, body []byte, remaining int) *Response {
	ep := req.Endpoint
	start := time.Now()
	defer func() {
		metrics.ConnectorDuration.WithLabelValues(string(c.cfg.Channel), ep.Name).Observe(time.Since(start).Seconds())
	}()

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(callCtx, ep.Method, c.buildURL(req, body), reader)
	if err != nil {
		return c.fail(ep, &ConnectorError{Code: CodeInvalidRequest, Message: err.Error()}, 0, remaining)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set(headerIdempotencyKey, req.IdempotencyKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return c.result(nil, classifyTransportError(err), remaining, "")
	}
	defer httpResp.Body.Close()

	if h := httpResp.Header.Get(headerRateLimitRemaining); h != "" {
		if n, err := strconv.Atoi(h); err == nil {
			remaining = n
		}
	}

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return c.result(nil, &ConnectorError{Code: CodeNetworkError, Message: err.Error(), Retryable: true, HTTPStatusCode: httpResp.StatusCode}, remaining, "")
	}

	env, decodeErr := decodeEnvelope(raw)

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		msg := ""
		if decodeErr == nil {
			msg = env.errorMessage()
		}
		return c.result(nil, newHTTPError(httpResp.StatusCode, msg), remaining, env.RequestID)
	}
	if decodeErr != nil {
		return c.result(nil, &ConnectorError{Code: CodeInvalidResponse, Message: decodeErr.Error(), HTTPStatusCode: httpResp.StatusCode}, remaining, "")
	}
	if ce := env.platformError(httpResp.StatusCode); ce != nil {
		return c.result(nil, ce, remaining, env.RequestID)
	}

	return c.result(env.payload(raw), nil, remaining, env.RequestID)
}

func (c *Client) result(data json.RawMessage, ce *ConnectorError, remaining int, requestID string) *Response {
	return &Response{
		Success: ce == nil,
		Data:    data,
		Error:   ce,
		Meta: ResponseMeta{
			RequestID:          requestID,
			Timestamp:          c.now().UTC(),
			RateLimitRemaining: remaining,
		},
	}
}

func classifyTransportError(err error) *ConnectorError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &ConnectorError{Code: CodeTimeout, Message: err.Error(), Retryable: true}
	}
	if errors.Is(err, context.Canceled) {
		return &ConnectorError{Code: CodeNetworkError, Message: err.Error(), Retryable: false}
	}
	return &ConnectorError{Code: CodeNetworkError, Message: err.Error(), Retryable: true}
}

// envelope объединяет форматы ответов маркетплейсов:
// {error, message, request_id, response} и {code, message, request_id, data}
type envelope struct {
	Error     string          `json:"error"`
	Message   string          `json:"message"`
	Msg       string          `json:"msg"`
	RequestID string          `json:"request_id"`
	Code      json.RawMessage `json:"code"`
	Response  json.RawMessage `json:"response"`
	Data      json.RawMessage `json:"data"`
}

func decodeEnvelope(raw []byte) (envelope, error) {
	var env envelope
	if len(bytes.TrimSpace(raw)) == 0 {
		return env, nil
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("decode response: %w", err)
	}
	return env, nil
}

func (e envelope) code() string {
	return strings.Trim(string(e.Code), `"`)
}

func (e envelope) errorMessage() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Msg != "":
		return e.Msg
	default:
		return e.Error
	}
}

// platformError ошибка, переданная в теле успешного HTTP ответа
func (e envelope) platformError(status int) *ConnectorError {
	code := e.code()
	if e.Error == "" && (code == "" || code == "0") {
		return nil
	}
	platformCode := e.Error
	if platformCode == "" {
		platformCode = code
	}
	lower := strings.ToLower(platformCode + " " + e.errorMessage())
	ce := &ConnectorError{
		Code:           CodePlatformError,
		Message:        strings.TrimSpace(platformCode + ": " + e.errorMessage()),
		HTTPStatusCode: status,
	}
	switch {
	case strings.Contains(lower, "rate_limit") || strings.Contains(lower, "too many"):
		ce.Code = CodeRateLimited
		ce.Retryable = true
	case strings.Contains(lower, "not_found") || strings.Contains(lower, "not found") || strings.Contains(lower, "not exist"):
		ce.Code = CodeNotFound
	case strings.Contains(lower, "system_busy") || strings.Contains(lower, "inner_error"):
		ce.Retryable = true
	}
	return ce
}

func (e envelope) payload(raw []byte) json.RawMessage {
	switch {
	case len(e.Response) > 0 && string(e.Response) != "null":
		return e.Response
	case len(e.Data) > 0 && string(e.Data) != "null":
		return e.Data
	case len(bytes.TrimSpace(raw)) > 0:
		return json.RawMessage(raw)
	default:
		return nil
	}
}
