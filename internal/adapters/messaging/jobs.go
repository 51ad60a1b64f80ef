package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	pgport "github.com/athebyme/gomarket-platform/channel-sync/internal/infrastructure/postgres"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/metrics"
	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
)

// JobMessage сообщение очереди задач синхронизации
type JobMessage struct {
	TenantID       string              `json:"tenant_id"`
	JobID          string              `json:"job_id"`
	AccountID      string              `json:"account_id"`
	Channel        models.Channel      `json:"channel"`
	Direction      models.JobDirection `json:"direction"`
	JobType        models.JobType      `json:"job_type"`
	IdempotencyKey string              `json:"idempotency_key"`
}

// JobQueue сохраняет задачу в хранилище и отправляет ее в топик задач.
// Задача с уже известным ключом идемпотентности не создается повторно; в топик
// она отправляется снова, только если еще ожидает выполнения и совпадает по направлению и типу.
type JobQueue struct {
	jobs   pgport.SyncJobRepository
	bus    interfaces.MessagingPort
	topic  string
	logger interfaces.LoggerPort
}

// NewJobQueue создает очередь задач
func NewJobQueue(jobs pgport.SyncJobRepository, bus interfaces.MessagingPort, topic string, logger interfaces.LoggerPort) *JobQueue {
	return &JobQueue{jobs: jobs, bus: bus, topic: topic, logger: logger}
}

// Enqueue сохраняет и публикует задачу
func (q *JobQueue) Enqueue(ctx context.Context, job *models.SyncJob) (*models.SyncJob, error) {
	stored, created, err := q.jobs.CreateJob(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("ошибка сохранения задачи: %w", err)
	}
	if !created {
		q.logger.InfoWithContext(ctx, "Задача с этим ключом уже существует",
			"job_id", stored.ID,
			"idempotency_key", stored.IdempotencyKey,
			"status", string(stored.Status))
		if stored.Status != models.JobStatusPending || stored.Direction != job.Direction || stored.JobType != job.JobType {
			return stored, nil
		}
	}

	data, err := json.Marshal(JobMessage{
		TenantID:       stored.TenantID,
		JobID:          stored.ID,
		AccountID:      stored.AccountID,
		Channel:        stored.Channel,
		Direction:      stored.Direction,
		JobType:        stored.JobType,
		IdempotencyKey: stored.IdempotencyKey,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации задачи: %w", err)
	}
	if err := q.bus.PublishForTenant(ctx, q.topic, stored.AccountID, data, stored.TenantID); err != nil {
		return nil, fmt.Errorf("ошибка публикации задачи: %w", err)
	}
	return stored, nil
}

// JobRunner выполняет задачу по ID
type JobRunner interface {
	Execute(ctx context.Context, tenantID, jobID string) (*models.SyncJob, error)
}

// JobConsumer обрабатывает сообщения топика задач. Сообщения, которые не удалось
// разобрать или выполнить, уходят в топик недоставленных с текстом ошибки.
type JobConsumer struct {
	runner          JobRunner
	bus             interfaces.MessagingPort
	deadLetterTopic string
	logger          interfaces.LoggerPort
}

// NewJobConsumer создает обработчик очереди задач
func NewJobConsumer(runner JobRunner, bus interfaces.MessagingPort, deadLetterTopic string, logger interfaces.LoggerPort) *JobConsumer {
	return &JobConsumer{runner: runner, bus: bus, deadLetterTopic: deadLetterTopic, logger: logger}
}

// Handle реализует interfaces.MessageHandler. Ошибка возвращается только если
// сообщение не удалось переложить в топик недоставленных.
func (c *JobConsumer) Handle(ctx context.Context, msg *interfaces.Message) error {
	start := time.Now()
	defer func() {
		metrics.WorkerDuration.WithLabelValues(msg.Topic).Observe(time.Since(start).Seconds())
	}()

	var jm JobMessage
	if err := json.Unmarshal(msg.Value, &jm); err != nil {
		return c.deadLetter(ctx, msg, fmt.Errorf("invalid job message: %w", err))
	}
	if jm.TenantID == "" {
		jm.TenantID = msg.TenantID
	}
	if jm.JobID == "" || jm.TenantID == "" {
		return c.deadLetter(ctx, msg, errors.New("job message without tenant or job id"))
	}

	job, err := c.runner.Execute(ctx, jm.TenantID, jm.JobID)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return c.deadLetter(ctx, msg, err)
	}

	status := "success"
	if job.Status == models.JobStatusFailed {
		status = "failed"
	}
	metrics.WorkerMessages.WithLabelValues(msg.Topic, status).Inc()
	return nil
}

func (c *JobConsumer) deadLetter(ctx context.Context, msg *interfaces.Message, cause error) error {
	metrics.WorkerMessages.WithLabelValues(msg.Topic, "dead_letter").Inc()
	c.logger.ErrorWithContext(ctx, "Сообщение отправлено в очередь недоставленных",
		"message_id", msg.ID,
		"topic", msg.Topic,
		"error", cause.Error())
	if c.deadLetterTopic == "" {
		return nil
	}

	envelope, err := json.Marshal(struct {
		SourceTopic string          `json:"source_topic"`
		MessageID   string          `json:"message_id"`
		TenantID    string          `json:"tenant_id"`
		Error       string          `json:"error"`
		Payload     json.RawMessage `json:"payload"`
	}{
		SourceTopic: msg.Topic,
		MessageID:   msg.ID,
		TenantID:    msg.TenantID,
		Error:       cause.Error(),
		Payload:     rawOrString(msg.Value),
	})
	if err != nil {
		return err
	}
	return c.bus.PublishForTenant(ctx, c.deadLetterTopic, msg.Key, envelope, msg.TenantID)
}

// rawOrString сохраняет корректный JSON как есть, остальное как строку
func rawOrString(b []byte) json.RawMessage {
	if json.Valid(b) {
		return b
	}
	s, _ := json.Marshal(string(b))
	return s
}
