package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/athebyme/gomarket-platform/channel-sync/config"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/adapters/cache"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/adapters/messaging"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/adapters/storage"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/connector"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/services"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/scheduler"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/utils"
	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	topicPartitions  = 6
	topicReplication = 1
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log, err := logger.NewZapLogger(cfg.LogLevel, cfg.IsProduction())
	if err != nil {
		fmt.Printf("Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Инициализация воркера",
		interfaces.LogField{Key: "app_name", Value: cfg.AppName + "-worker"},
		interfaces.LogField{Key: "version", Value: cfg.Version},
		interfaces.LogField{Key: "env", Value: cfg.ENV},
	)

	// HTTP сервер для метрик
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Endpoint, promhttp.Handler())
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
		})
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("Запуск HTTP сервера для метрик", interfaces.LogField{Key: "addr", Value: metricsServer.Addr})
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("Ошибка запуска HTTP сервера для метрик", interfaces.LogField{Key: "error", Value: err.Error()})
			}
		}()
	}

	connectionStr, err := utils.GenerateConnectionString(
		cfg.Postgres.Host,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
		cfg.Postgres.Port,
		cfg.Postgres.PoolSize,
		cfg.Postgres.Timeout,
	)
	if err != nil {
		log.Fatal("Ошибка генерации строки подключения к PostgreSQL", interfaces.LogField{Key: "error", Value: err.Error()})
	}

	repo, err := storage.NewPostgresStorage(ctx, connectionStr, log)
	if err != nil {
		log.Fatal("Ошибка инициализации хранилища", interfaces.LogField{Key: "error", Value: err.Error()})
	}
	defer repo.Close()
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatal("Ошибка подготовки схемы БД", interfaces.LogField{Key: "error", Value: err.Error()})
	}
	log.Info("Хранилище инициализировано")

	// счетчики лимитов коннектора должны быть общими с API при rateLimitStore=redis
	var limiterCache interfaces.CachePort
	if cfg.Redis.Enabled && cfg.Connector.RateLimitStore == "redis" {
		redisCache, err := cache.NewRedisCache(ctx, cache.RedisOptions{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.ConnectTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			MaxRetries:   cfg.Redis.MaxRetries,
		})
		if err != nil {
			log.Fatal("Ошибка инициализации кэша", interfaces.LogField{Key: "error", Value: err.Error()})
		}
		limiterCache = redisCache
	} else {
		limiterCache = cache.NewMemoryCache(time.Minute)
	}
	defer limiterCache.Close()
	log.Info("Кэш инициализирован")

	messagingClient, err := messaging.NewKafkaMessaging(messaging.KafkaOptions{
		Brokers:         cfg.Kafka.Brokers,
		GroupID:         cfg.Kafka.GroupID,
		ClientID:        cfg.AppName + "-worker",
		AutoOffsetReset: cfg.Kafka.AutoOffsetReset,
		SessionTimeout:  cfg.Kafka.SessionTimeout,
	}, log)
	if err != nil {
		log.Fatal("Ошибка инициализации системы обмена сообщениями", interfaces.LogField{Key: "error", Value: err.Error()})
	}
	topicsCtx, topicsCancel := context.WithTimeout(ctx, 30*time.Second)
	err = messagingClient.EnsureTopics(topicsCtx,
		[]string{cfg.Kafka.SyncJobsTopic, cfg.Kafka.EventsTopic, cfg.Kafka.DeadLetterTopic},
		topicPartitions, topicReplication)
	topicsCancel()
	if err != nil {
		// топики могли быть созданы администратором без прав на создание у сервиса
		log.Warn("Не удалось создать топики", interfaces.LogField{Key: "error", Value: err.Error()})
	}
	log.Info("Система обмена сообщениями инициализирована")

	marketplaces, err := connector.NewRegistry(cfg, connector.NewCacheRateLimiter(limiterCache), log)
	if err != nil {
		log.Fatal("Ошибка инициализации коннекторов", interfaces.LogField{Key: "error", Value: err.Error()})
	}

	registry := services.NewChannelRegistry(repo, repo, log)
	events := messaging.NewEventPublisher(messagingClient, cfg.Kafka.EventsTopic, log)
	executor := services.NewJobExecutor(repo, repo, repo, registry, marketplaces, events,
		services.ExecutorConfig{PageSize: cfg.Sync.ListPageSize}, log)
	dispatcher := services.NewDispatcher(
		registry,
		repo,
		messaging.NewJobQueue(repo, messagingClient, cfg.Kafka.SyncJobsTopic, log),
		services.DispatchConfig{
			DryRun:          cfg.Sync.DryRun,
			Concurrency:     cfg.Sync.DispatchConcurrency,
			DefaultPageSize: cfg.Sync.ListPageSize,
		},
		log,
	)
	consumer := messaging.NewJobConsumer(executor, messagingClient, cfg.Kafka.DeadLetterTopic, log)
	log.Info("Исполнитель задач инициализирован", interfaces.LogField{Key: "channels", Value: marketplaces.Channels()})

	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	subscribeToSyncJobs(ctx, messagingClient, cfg.Kafka.SyncJobsTopic, consumer, log, &wg)

	var autoSync *scheduler.AutoSync
	if cfg.Sync.AutoSyncSchedule != "" {
		autoSync = scheduler.NewAutoSync(repo, dispatcher, 5*time.Minute, log)
		if err := autoSync.Start(cfg.Sync.AutoSyncSchedule); err != nil {
			log.Fatal("Ошибка запуска планировщика", interfaces.LogField{Key: "error", Value: err.Error()})
		}
	}

	go func() {
		<-quit
		log.Info("Получен сигнал завершения, выполняется graceful shutdown...")
		if autoSync != nil {
			autoSync.Stop()
		}
		cancel()
		wg.Wait()

		if err := messagingClient.Close(); err != nil {
			log.Error("Ошибка при закрытии Kafka", interfaces.LogField{Key: "error", Value: err.Error()})
		}
		if metricsServer != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = metricsServer.Shutdown(shutdownCtx)
			shutdownCancel()
		}
		close(done)
	}()

	log.Info("Воркер запущен и готов к обработке задач")
	<-done
	log.Info("Воркер корректно завершил работу")
}

// subscribeToSyncJobs подписывает исполнителя на топик задач до отмены контекста
func subscribeToSyncJobs(ctx context.Context, messagingClient interfaces.MessagingPort, topic string,
	consumer *messaging.JobConsumer, logger interfaces.LoggerPort, wg *sync.WaitGroup) {

	unsubscribe, err := messagingClient.Subscribe(ctx, topic, consumer.Handle)
	if err != nil {
		logger.Fatal("Ошибка подписки на задачи синхронизации",
			interfaces.LogField{Key: "topic", Value: topic},
			interfaces.LogField{Key: "error", Value: err.Error()})
	}
	logger.Info("Подписка на задачи синхронизации установлена", interfaces.LogField{Key: "topic", Value: topic})

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		if err := unsubscribe(); err != nil {
			logger.Error("Ошибка отмены подписки", interfaces.LogField{Key: "error", Value: err.Error()})
		}
		logger.Info("Подписка на задачи синхронизации отменена")
	}()
}
