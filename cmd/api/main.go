package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/athebyme/gomarket-platform/channel-sync/config"
	_ "github.com/athebyme/gomarket-platform/channel-sync/docs"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/adapters/cache"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/adapters/messaging"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/adapters/storage"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/api"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/api/handlers"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/connector"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/services"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/security"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/utils"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/validation"
	"github.com/athebyme/gomarket-platform/channel-sync/pkg/auth"
	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
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
	log.Info("Инициализация сервиса",
		interfaces.LogField{Key: "app_name", Value: cfg.AppName},
		interfaces.LogField{Key: "version", Value: cfg.Version},
		interfaces.LogField{Key: "env", Value: cfg.ENV},
		interfaces.LogField{Key: "dry_run", Value: cfg.Sync.DryRun},
	)

	postgresCon, err := utils.GenerateConnectionString(
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
		log.Fatal("Ошибка формирования строки подключения к базе", interfaces.LogField{Key: "error", Value: err.Error()})
	}

	db, err := storage.NewPostgresStorage(ctx, postgresCon, log)
	if err != nil {
		log.Fatal("Ошибка инициализации хранилища", interfaces.LogField{Key: "error", Value: err.Error()})
	}
	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatal("Ошибка подготовки схемы БД", interfaces.LogField{Key: "error", Value: err.Error()})
	}
	log.Info("Хранилище инициализировано")

	cacheClient, limiterCache, err := newCaches(ctx, cfg)
	if err != nil {
		log.Fatal("Ошибка инициализации кэша", interfaces.LogField{Key: "error", Value: err.Error()})
	}
	log.Info("Кэш инициализирован", interfaces.LogField{Key: "redis", Value: cfg.Redis.Enabled})

	messagingClient, err := messaging.NewKafkaMessaging(messaging.KafkaOptions{
		Brokers:         cfg.Kafka.Brokers,
		GroupID:         cfg.Kafka.GroupID,
		ClientID:        cfg.AppName + "-api",
		AutoOffsetReset: cfg.Kafka.AutoOffsetReset,
		SessionTimeout:  cfg.Kafka.SessionTimeout,
	}, log)
	if err != nil {
		log.Fatal("Ошибка инициализации системы обмена сообщениями", interfaces.LogField{Key: "error", Value: err.Error()})
	}
	log.Info("Система обмена сообщениями инициализирована")

	marketplaces, err := connector.NewRegistry(cfg, connector.NewCacheRateLimiter(limiterCache), log)
	if err != nil {
		log.Fatal("Ошибка инициализации коннекторов", interfaces.LogField{Key: "error", Value: err.Error()})
	}
	log.Info("Коннекторы маркетплейсов инициализированы", interfaces.LogField{Key: "channels", Value: marketplaces.Channels()})

	defaultMarket := models.Market(cfg.Validation.DefaultMarket)
	engine, err := validation.NewDefaultEngine(defaultMarket, cfg.Validation.RulesFile)
	if err != nil {
		log.Fatal("Ошибка загрузки правил валидации", interfaces.LogField{Key: "error", Value: err.Error()})
	}
	tokens, err := security.NewValidationTokenManager(cfg.Validation.TokenSecret, cfg.Validation.TokenTTL, cfg.AppName)
	if err != nil {
		log.Fatal("Ошибка инициализации токенов валидации", interfaces.LogField{Key: "error", Value: err.Error()})
	}

	registry := services.NewChannelRegistry(db, db, log)
	preview := services.NewPreviewService(engine, tokens, defaultMarket, log)
	commit := services.NewCommitService(
		registry,
		marketplaces,
		db,
		tokens,
		services.NewIdempotencyStore(cacheClient, cfg.Sync.IdempotencyTTL),
		services.CommitConfig{
			DryRun:         cfg.Sync.DryRun,
			DryRunDelay:    cfg.Sync.DryRunDelay,
			Concurrency:    cfg.Sync.CommitConcurrency,
			InterItemDelay: cfg.Sync.InterItemDelay,
			DefaultMarket:  defaultMarket,
		},
		log,
	)
	dispatcher := services.NewDispatcher(
		registry,
		db,
		messaging.NewJobQueue(db, messagingClient, cfg.Kafka.SyncJobsTopic, log),
		services.DispatchConfig{
			DryRun:          cfg.Sync.DryRun,
			Concurrency:     cfg.Sync.DispatchConcurrency,
			DefaultPageSize: cfg.Sync.ListPageSize,
		},
		log,
	)
	accounts := services.NewAccountService(db, log)
	events := messaging.NewEventPublisher(messagingClient, cfg.Kafka.EventsTopic, log)
	log.Info("Сервисы инициализированы")

	var authPort interfaces.AuthPort
	if cfg.Security.Keycloak.Enabled {
		keycloakClient, err := auth.NewKeycloakClient(ctx, cfg.Security.Keycloak.GetKeycloakConfig())
		if err != nil {
			log.Fatal("Ошибка инициализации Keycloak", interfaces.LogField{Key: "error", Value: err.Error()})
		}
		authPort = keycloakClient
	} else {
		log.Warn("Проверка токенов отключена, арендатор берется из X-Tenant-ID")
	}

	router := api.SetupRouter(
		api.Handlers{
			Catalog:  handlers.NewCatalogHandler(preview, commit, log),
			Sync:     handlers.NewSyncHandler(dispatcher, db, log),
			Accounts: handlers.NewAccountHandler(accounts, log),
			Webhooks: handlers.NewWebhookHandler(webhookKeys(cfg), events, log),
		},
		authPort,
		cacheClient,
		db,
		api.RouterConfig{
			CORSAllowOrigins: cfg.Security.CORSAllowOrigins,
			RequestTimeout:   cfg.Server.RequestTimeout,
			RateLimit:        cfg.Server.RateLimit,
			RequiredRole:     cfg.Security.Keycloak.RequiredRole,
		},
		log,
	)
	log.Info("Маршрутизатор настроен")

	var handler http.Handler = router
	if cfg.Server.BodyLimit > 0 {
		handler = http.MaxBytesHandler(router, int64(cfg.Server.BodyLimit)<<20)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("Сервер запущен", interfaces.LogField{Key: "address", Value: server.Addr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Ошибка запуска сервера", interfaces.LogField{Key: "error", Value: err.Error()})
		}
	}()

	go func() {
		<-quit
		log.Info("Получен сигнал завершения, выполняется graceful shutdown...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("Ошибка при graceful shutdown", interfaces.LogField{Key: "error", Value: err.Error()})
		}
		log.Info("HTTP сервер остановлен")

		if err := messagingClient.Close(); err != nil {
			log.Error("Ошибка при закрытии Kafka", interfaces.LogField{Key: "error", Value: err.Error()})
		}
		if err := cacheClient.Close(); err != nil {
			log.Error("Ошибка при закрытии кэша", interfaces.LogField{Key: "error", Value: err.Error()})
		}
		if limiterCache != cacheClient {
			_ = limiterCache.Close()
		}
		if err := db.Close(); err != nil {
			log.Error("Ошибка при закрытии БД", interfaces.LogField{Key: "error", Value: err.Error()})
		}

		close(done)
	}()

	<-done
	log.Info("Сервер корректно завершил работу")
}

// newCaches возвращает общий кэш и хранилище счетчиков лимитов коннектора.
// При connector.rateLimitStore=memory счетчики живут в памяти процесса.
func newCaches(ctx context.Context, cfg *config.Config) (interfaces.CachePort, interfaces.CachePort, error) {
	var shared interfaces.CachePort
	if cfg.Redis.Enabled {
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
			return nil, nil, err
		}
		shared = redisCache
	} else {
		shared = cache.NewMemoryCache(time.Minute)
	}

	if cfg.Connector.RateLimitStore == "memory" && cfg.Redis.Enabled {
		return shared, cache.NewMemoryCache(time.Minute), nil
	}
	return shared, shared, nil
}

func webhookKeys(cfg *config.Config) map[models.Channel]string {
	keys := make(map[models.Channel]string, len(cfg.Channels))
	for name, ch := range cfg.Channels {
		if ch.Enabled && ch.WebhookKey != "" {
			keys[models.Channel(name)] = ch.WebhookKey
		}
	}
	return keys
}
