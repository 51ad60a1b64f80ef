package models

import (
	"encoding/json"
	"time"
)

// EventType тип события канала
type EventType = string

const (
	EventSyncJobCompleted EventType = "sync_job_completed"
	EventSyncJobFailed    EventType = "sync_job_failed"
	EventOrderPulled      EventType = "order_pulled"
	EventWebhookReceived  EventType = "webhook_received"
)

// ChannelEvent событие, публикуемое в тему событий каналов
type ChannelEvent struct {
	ID         string          `json:"id"`
	Type       EventType       `json:"type"`
	TenantID   string          `json:"tenantId,omitempty"`
	Channel    Channel         `json:"channel"`
	AccountID  string          `json:"accountId,omitempty"`
	JobID      string          `json:"jobId,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data,omitempty"`
}
