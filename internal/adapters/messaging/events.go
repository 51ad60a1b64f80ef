package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
)

// EventPublisher публикует события каналов в топик событий.
// Ключ сообщения ID аккаунта, поэтому события одного аккаунта сохраняют порядок.
type EventPublisher struct {
	bus    interfaces.MessagingPort
	topic  string
	logger interfaces.LoggerPort
}

// NewEventPublisher создает публикатор событий
func NewEventPublisher(bus interfaces.MessagingPort, topic string, logger interfaces.LoggerPort) *EventPublisher {
	return &EventPublisher{bus: bus, topic: topic, logger: logger}
}

// PublishEvent сериализует событие и отправляет его с заголовком арендатора
func (p *EventPublisher) PublishEvent(ctx context.Context, event *models.ChannelEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("ошибка сериализации события: %w", err)
	}
	key := event.AccountID
	if key == "" {
		key = event.TenantID
	}
	if err := p.bus.PublishForTenant(ctx, p.topic, key, data, event.TenantID); err != nil {
		return fmt.Errorf("ошибка публикации события %s: %w", event.Type, err)
	}
	p.logger.DebugWithContext(ctx, "Событие опубликовано",
		"type", event.Type,
		"event_id", event.ID,
		"topic", p.topic)
	return nil
}
