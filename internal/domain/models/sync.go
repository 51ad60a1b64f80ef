package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// JobType вид синхронизируемых данных
type JobType string

const (
	JobTypeCatalog JobType = "catalog"
	JobTypeStock   JobType = "stock"
	JobTypePrices  JobType = "prices"
	JobTypeOrders  JobType = "orders"
	JobTypeFull    JobType = "full"
)

// IsValid проверяет тип задачи
func (t JobType) IsValid() bool {
	switch t {
	case JobTypeCatalog, JobTypeStock, JobTypePrices, JobTypeOrders, JobTypeFull:
		return true
	}
	return false
}

// JobDirection направление синхронизации
type JobDirection string

const (
	DirectionPull JobDirection = "pull"
	DirectionPush JobDirection = "push"
)

// JobStatus состояние задачи
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal сообщает, что задача больше не изменится
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// SyncJob единица работы pull/push для одного аккаунта и типа данных
type SyncJob struct {
	ID             string          `json:"id"`
	TenantID       string          `json:"tenantId"`
	Direction      JobDirection    `json:"direction"`
	JobType        JobType         `json:"jobType"`
	Channel        Channel         `json:"channel"`
	AccountID      string          `json:"accountId"`
	Status         JobStatus       `json:"status"`
	TotalItems     int             `json:"totalItems"`
	ProcessedItems int             `json:"processedItems"`
	SuccessCount   int             `json:"successCount"`
	ErrorCount     int             `json:"errorCount"`
	IdempotencyKey string          `json:"idempotencyKey"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	ErrorMessage   string          `json:"errorMessage,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	StartedAt      *time.Time      `json:"startedAt,omitempty"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
}

// JobFilter параметры выборки задач
type JobFilter struct {
	TenantID  string
	AccountID string
	Status    JobStatus
	JobType   JobType
	Limit     int
	Offset    int
}

// PushItem одна позиция push задачи после разрешения листингов
type PushItem struct {
	ListingID string           `json:"listingId"`
	ProductID string           `json:"productId,omitempty"`
	Quantity  *int             `json:"quantity,omitempty"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	// Activate публикует листинг
	Activate bool `json:"activate,omitempty"`
}

// PushJobPayload полезная нагрузка push задачи для одного аккаунта
type PushJobPayload struct {
	Items []PushItem `json:"items"`
}

// PullJobPayload параметры pull задачи
type PullJobPayload struct {
	Since    *time.Time `json:"since,omitempty"`
	PageSize int        `json:"pageSize,omitempty"`
	MaxPages int        `json:"maxPages,omitempty"`
}

// AccountDispatchResult результат постановки задачи для одного аккаунта
type AccountDispatchResult struct {
	AccountID      string  `json:"accountId"`
	Channel        Channel `json:"channel"`
	Success        bool    `json:"success"`
	JobID          string  `json:"jobId,omitempty"`
	IdempotencyKey string  `json:"idempotencyKey"`
	Error          string  `json:"error,omitempty"`
}

// DispatchSummary сводка по аккаунтам
type DispatchSummary struct {
	TotalAccounts    int                     `json:"totalAccounts"`
	Successful       int                     `json:"successful"`
	Failed           int                     `json:"failed"`
	AccountBreakdown []AccountDispatchResult `json:"accountBreakdown"`
}

// DispatchResponse ответ на pull/push запрос
type DispatchResponse struct {
	Success        bool            `json:"success"`
	JobsCreated    []SyncJob       `json:"jobsCreated"`
	Summary        DispatchSummary `json:"summary"`
	DryRun         bool            `json:"dryRun"`
	ProcessingTime string          `json:"processingTime"`
	Message        string          `json:"message,omitempty"`
}
