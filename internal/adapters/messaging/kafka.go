package messaging

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/google/uuid"
)

// Служебные заголовки сообщений
const (
	HeaderMessageID = "message_id"
	HeaderTimestamp = "timestamp"
	HeaderTenantID  = "tenant_id"
)

// KafkaOptions настройки подключения к Kafka
type KafkaOptions struct {
	Brokers         []string
	GroupID         string
	ClientID        string
	AutoOffsetReset string
	SessionTimeout  time.Duration
}

// KafkaMessaging реализация MessagingPort с использованием Kafka
type KafkaMessaging struct {
	producer *kafka.Producer
	// subs функции отписки активных потребителей
	subs   map[string]func() error
	subsMu sync.Mutex
	opts   KafkaOptions
	logger interfaces.LoggerPort
}

var _ interfaces.MessagingPort = (*KafkaMessaging)(nil)

// NewKafkaMessaging создает producer; потребители создаются при подписке
func NewKafkaMessaging(opts KafkaOptions, logger interfaces.LoggerPort) (*KafkaMessaging, error) {
	if len(opts.Brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}
	if opts.ClientID == "" {
		opts.ClientID = "channel-sync"
	}
	if opts.AutoOffsetReset == "" {
		opts.AutoOffsetReset = "earliest"
	}
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = 30 * time.Second
	}

	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":            strings.Join(opts.Brokers, ","),
		"client.id":                    opts.ClientID + "-producer",
		"acks":                         "all",
		"enable.idempotence":           true,
		"retries":                      5,
		"retry.backoff.ms":             500,
		"compression.type":             "snappy",
		"linger.ms":                    10,
		"message.max.bytes":            1000000,
		"queue.buffering.max.messages": 100000,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Kafka producer: %w", err)
	}

	k := &KafkaMessaging{
		producer: producer,
		subs:     make(map[string]func() error),
		opts:     opts,
		logger:   logger,
	}
	go k.drainProducerEvents()
	return k, nil
}

// drainProducerEvents читает события producer, не относящиеся к конкретной отправке
func (k *KafkaMessaging) drainProducerEvents() {
	for ev := range k.producer.Events() {
		switch e := ev.(type) {
		case kafka.Error:
			k.logger.Error("Ошибка Kafka producer", "error", e.Error(), "code", e.Code().String())
		case *kafka.Message:
			if e.TopicPartition.Error != nil {
				k.logger.Warn("Сообщение не доставлено", "error", e.TopicPartition.Error.Error())
			}
		}
	}
}

// messageToKafkaMessage собирает kafka.Message со служебными заголовками
func messageToKafkaMessage(topic string, message []byte, key string, headers map[string]string) *kafka.Message {
	kafkaHeaders := make([]kafka.Header, 0, len(headers)+2)
	for k, v := range headers {
		kafkaHeaders = append(kafkaHeaders, kafka.Header{Key: k, Value: []byte(v)})
	}
	kafkaHeaders = append(kafkaHeaders,
		kafka.Header{Key: HeaderMessageID, Value: []byte(uuid.NewString())},
		kafka.Header{Key: HeaderTimestamp, Value: []byte(strconv.FormatInt(time.Now().UnixNano(), 10))},
	)

	var keyBytes []byte
	if key != "" {
		keyBytes = []byte(key)
	}

	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          message,
		Key:            keyBytes,
		Headers:        kafkaHeaders,
	}
}

// kafkaMessageToMessage преобразует kafka.Message в Message
func kafkaMessageToMessage(msg *kafka.Message) *interfaces.Message {
	headers := make(map[string]string, len(msg.Headers))
	for _, header := range msg.Headers {
		headers[header.Key] = string(header.Value)
	}

	publishedAt := msg.Timestamp
	if ts, err := strconv.ParseInt(headers[HeaderTimestamp], 10, 64); err == nil {
		publishedAt = time.Unix(0, ts)
	}

	var topic string
	if msg.TopicPartition.Topic != nil {
		topic = *msg.TopicPartition.Topic
	}

	return &interfaces.Message{
		ID:          headers[HeaderMessageID],
		Topic:       topic,
		Key:         string(msg.Key),
		Value:       msg.Value,
		Headers:     headers,
		TenantID:    headers[HeaderTenantID],
		PublishedAt: publishedAt,
	}
}

// produce отправляет сообщение и ждет подтверждения брокера
func (k *KafkaMessaging) produce(ctx context.Context, msg *kafka.Message) error {
	delivery := make(chan kafka.Event, 1)
	if err := k.producer.Produce(msg, delivery); err != nil {
		return fmt.Errorf("ошибка отправки в %s: %w", *msg.TopicPartition.Topic, err)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev := <-delivery:
		m, ok := ev.(*kafka.Message)
		if !ok {
			return fmt.Errorf("неожиданное событие доставки: %v", ev)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("сообщение не доставлено в %s: %w", *msg.TopicPartition.Topic, m.TopicPartition.Error)
		}
		return nil
	}
}

// Publish публикует сообщение в указанную тему
func (k *KafkaMessaging) Publish(ctx context.Context, topic string, message []byte) error {
	return k.produce(ctx, messageToKafkaMessage(topic, message, "", nil))
}

// PublishWithKey публикует сообщение с ключом партиционирования
func (k *KafkaMessaging) PublishWithKey(ctx context.Context, topic string, key string, message []byte) error {
	return k.produce(ctx, messageToKafkaMessage(topic, message, key, nil))
}

// PublishForTenant публикует сообщение с заголовком арендатора
func (k *KafkaMessaging) PublishForTenant(ctx context.Context, topic string, key string, message []byte, tenantID string) error {
	return k.produce(ctx, messageToKafkaMessage(topic, message, key, map[string]string{HeaderTenantID: tenantID}))
}

// Subscribe подписывается на тему в группе потребителей из настроек.
// Offset фиксируется только после успешной обработки.
func (k *KafkaMessaging) Subscribe(ctx context.Context, topic string, handler interfaces.MessageHandler) (func() error, error) {
	return k.SubscribeWithConfig(ctx, topic, handler, &interfaces.ConsumerConfig{
		GroupID:         k.opts.GroupID,
		AutoCommit:      false,
		PollTimeout:     100 * time.Millisecond,
		AutoOffsetReset: k.opts.AutoOffsetReset,
	})
}

// SubscribeWithConfig подписывается на тему с указанными настройками
func (k *KafkaMessaging) SubscribeWithConfig(ctx context.Context, topic string, handler interfaces.MessageHandler, config *interfaces.ConsumerConfig) (func() error, error) {
	if config.GroupID == "" {
		return nil, errors.New("consumer group id is empty")
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = 100 * time.Millisecond
	}
	offsetReset := config.AutoOffsetReset
	if offsetReset == "" {
		offsetReset = k.opts.AutoOffsetReset
	}

	kafkaConfig := &kafka.ConfigMap{
		"bootstrap.servers":     strings.Join(k.opts.Brokers, ","),
		"client.id":             k.opts.ClientID + "-consumer",
		"group.id":              config.GroupID,
		"auto.offset.reset":     offsetReset,
		"enable.auto.commit":    config.AutoCommit,
		"session.timeout.ms":    int(k.opts.SessionTimeout.Milliseconds()),
		"max.poll.interval.ms":  300000,
		"heartbeat.interval.ms": 3000,
		"fetch.wait.max.ms":     500,
	}
	if config.AutoCommit && config.AutoCommitInterval > 0 {
		_ = kafkaConfig.SetKey("auto.commit.interval.ms", int(config.AutoCommitInterval.Milliseconds()))
	}

	consumer, err := kafka.NewConsumer(kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Kafka consumer: %w", err)
	}
	if err := consumer.Subscribe(topic, nil); err != nil {
		_ = consumer.Close()
		return nil, fmt.Errorf("ошибка подписки на топик %s: %w", topic, err)
	}

	consumeCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		k.consumeMessages(consumeCtx, consumer, topic, handler, config)
	}()

	k.logger.Info("Подписка на топик", "topic", topic, "group_id", config.GroupID)

	id := uuid.NewString()
	var once sync.Once
	var closeErr error
	unsubscribe := func() error {
		once.Do(func() {
			cancel()
			<-done
			k.subsMu.Lock()
			delete(k.subs, id)
			k.subsMu.Unlock()
			closeErr = consumer.Close()
		})
		return closeErr
	}

	k.subsMu.Lock()
	k.subs[id] = unsubscribe
	k.subsMu.Unlock()
	return unsubscribe, nil
}

// consumeMessages читает сообщения до отмены контекста
func (k *KafkaMessaging) consumeMessages(ctx context.Context, consumer *kafka.Consumer, topic string, handler interfaces.MessageHandler, config *interfaces.ConsumerConfig) {
	for {
		if ctx.Err() != nil {
			return
		}

		ev := consumer.Poll(int(config.PollTimeout.Milliseconds()))
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			msg := kafkaMessageToMessage(e)
			if err := handler(ctx, msg); err != nil {
				k.logger.ErrorWithContext(ctx, "Ошибка обработки сообщения",
					"topic", topic,
					"message_id", msg.ID,
					"error", err.Error())
				continue
			}
			if !config.AutoCommit {
				if _, err := consumer.CommitMessage(e); err != nil {
					k.logger.WarnWithContext(ctx, "Не удалось зафиксировать offset", "topic", topic, "error", err.Error())
				}
			}

		case kafka.Error:
			k.logger.ErrorWithContext(ctx, "Ошибка Kafka consumer", "topic", topic, "error", e.Error())
			if e.Code() == kafka.ErrAllBrokersDown {
				return
			}

		case kafka.PartitionEOF:
			k.logger.DebugWithContext(ctx, "Достигнут конец партиции", "topic", topic)
		}
	}
}

// EnsureTopics создает недостающие темы. Уже существующие темы не считаются ошибкой.
func (k *KafkaMessaging) EnsureTopics(ctx context.Context, topics []string, partitions, replicationFactor int) error {
	adminClient, err := kafka.NewAdminClientFromProducer(k.producer)
	if err != nil {
		return fmt.Errorf("ошибка создания Kafka admin client: %w", err)
	}
	defer adminClient.Close()

	specs := make([]kafka.TopicSpecification, 0, len(topics))
	for _, topic := range topics {
		if topic == "" {
			continue
		}
		specs = append(specs, kafka.TopicSpecification{
			Topic:             topic,
			NumPartitions:     partitions,
			ReplicationFactor: replicationFactor,
		})
	}
	if len(specs) == 0 {
		return nil
	}

	result, err := adminClient.CreateTopics(ctx, specs, kafka.SetAdminOperationTimeout(30*time.Second))
	if err != nil {
		return fmt.Errorf("ошибка создания топиков: %w", err)
	}
	for _, r := range result {
		switch r.Error.Code() {
		case kafka.ErrNoError, kafka.ErrTopicAlreadyExists:
		default:
			return fmt.Errorf("ошибка создания топика %s: %s", r.Topic, r.Error.String())
		}
	}
	return nil
}

// Close останавливает потребителей и дожидается отправки сообщений producer
func (k *KafkaMessaging) Close() error {
	k.subsMu.Lock()
	subs := make([]func() error, 0, len(k.subs))
	for _, unsubscribe := range k.subs {
		subs = append(subs, unsubscribe)
	}
	k.subsMu.Unlock()

	for _, unsubscribe := range subs {
		if err := unsubscribe(); err != nil {
			k.logger.Warn("Ошибка закрытия consumer", "error", err.Error())
		}
	}

	if remaining := k.producer.Flush(15 * 1000); remaining > 0 {
		k.logger.Warn("Не все сообщения отправлены при закрытии", "remaining", remaining)
	}
	k.producer.Close()
	return nil
}
