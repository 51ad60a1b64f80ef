package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Поддерживаемые каналы. Конфигурация секций channels.<name>
var channelNames = []string{"shopee", "tiktok", "tokopedia", "lazada"}

// ChannelConfig содержит параметры партнерского доступа к API маркетплейса
type ChannelConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	BaseURL    string `mapstructure:"baseurl"`
	PartnerID  int64  `mapstructure:"partnerid"`
	PartnerKey string `mapstructure:"partnerkey"`
	WebhookKey string `mapstructure:"webhookkey"`
}

// RetryConfig параметры экспоненциальных повторов вызовов маркетплейса
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// Config содержит все настройки сервиса
type Config struct {
	AppName  string
	Version  string
	LogLevel string
	ENV      string

	Server struct {
		Host            string
		Port            int
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
		RequestTimeout  time.Duration
		BodyLimit       int // максимальный размер запроса в МБ
		RateLimit       int // запросов в минуту с одного адреса
	}

	Postgres struct {
		Host     string
		Port     int
		User     string
		Password string
		DBName   string
		SSLMode  string
		Timeout  time.Duration
		PoolSize int
	}

	Redis struct {
		Enabled        bool
		Host           string
		Port           int
		Password       string
		DB             int
		PoolSize       int
		MinIdleConns   int
		ConnectTimeout time.Duration
		ReadTimeout    time.Duration
		WriteTimeout   time.Duration
		MaxRetries     int
	}

	Kafka struct {
		Brokers         []string      `mapstructure:"brokers"`
		GroupID         string        `mapstructure:"groupid"`
		SyncJobsTopic   string        `mapstructure:"syncjobstopic"`
		EventsTopic     string        `mapstructure:"eventstopic"`
		DeadLetterTopic string        `mapstructure:"deadlettertopic"`
		AutoOffsetReset string        `mapstructure:"autooffsetreset"`
		SessionTimeout  time.Duration `mapstructure:"sessiontimeout"`
	}

	Metrics struct {
		Enabled  bool
		Endpoint string
		Port     int
	}

	Security struct {
		CORSAllowOrigins []string
		Keycloak         KeycloakConfig
	}

	Connector struct {
		Timeout        time.Duration
		Retry          RetryConfig
		RateLimitStore string // memory | redis
		RateLimit      int    // лимит по умолчанию на эндпоинт в минуту
	}

	Sync struct {
		DryRun              bool
		DryRunDelay         time.Duration
		CommitConcurrency   int
		InterItemDelay      time.Duration
		DispatchConcurrency int
		IdempotencyTTL      time.Duration
		AutoSyncSchedule    string
		ListPageSize        int
	}

	Validation struct {
		RulesFile     string
		TokenSecret   string
		TokenTTL      time.Duration
		DefaultMarket string
	}

	Channels map[string]ChannelConfig
}

// Load загружает конфигурацию из файла и переменных окружения
func Load(configPath string) (*Config, error) {
	v := viper.New()
	configFile := "config"
	if configPath != "" {
		configFile = configPath
	}

	v.SetConfigName(configFile)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
		}
		// Файл не найден: используем значения по умолчанию и окружение
	}

	setDefaults(v)
	bindEnvVariables(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("ошибка десериализации конфигурации: %w", err)
	}

	cfg.ENV = v.GetString("env")
	if cfg.ENV == "" {
		cfg.ENV = "development"
		if envVar := os.Getenv("APP_ENV"); envVar != "" {
			cfg.ENV = envVar
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate проверяет согласованность настроек
func (c *Config) Validate() error {
	if c.Connector.Retry.MaxAttempts < 1 {
		return fmt.Errorf("connector.retry.maxAttempts должен быть >= 1")
	}
	if c.Connector.Retry.Multiplier < 1 {
		return fmt.Errorf("connector.retry.multiplier должен быть >= 1")
	}
	switch c.Connector.RateLimitStore {
	case "memory", "redis":
	default:
		return fmt.Errorf("неизвестное хранилище лимитов: %s", c.Connector.RateLimitStore)
	}
	if c.Connector.RateLimitStore == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("connector.rateLimitStore=redis требует redis.enabled=true")
	}
	if c.Validation.TokenSecret == "" {
		return fmt.Errorf("validation.tokenSecret не задан")
	}
	return nil
}

// IsProduction сообщает, запущен ли сервис в production окружении
func (c *Config) IsProduction() bool {
	return c.ENV == "production"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("appName", "channel-sync")
	v.SetDefault("version", "1.0.0")
	v.SetDefault("logLevel", "info")
	v.SetDefault("env", "development")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", "15s")
	v.SetDefault("server.writeTimeout", "120s")
	v.SetDefault("server.shutdownTimeout", "10s")
	v.SetDefault("server.requestTimeout", "110s")
	v.SetDefault("server.bodyLimit", 10)
	v.SetDefault("server.rateLimit", 1000)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "postgres")
	v.SetDefault("postgres.dbname", "channel_sync")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.timeout", "5s")
	v.SetDefault("postgres.poolSize", 10)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolSize", 10)
	v.SetDefault("redis.minIdleConns", 2)
	v.SetDefault("redis.connectTimeout", "1s")
	v.SetDefault("redis.readTimeout", "1s")
	v.SetDefault("redis.writeTimeout", "1s")
	v.SetDefault("redis.maxRetries", 3)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.groupID", "channel-sync")
	v.SetDefault("kafka.syncJobsTopic", "sync-jobs")
	v.SetDefault("kafka.eventsTopic", "channel-events")
	v.SetDefault("kafka.deadLetterTopic", "sync-jobs-dlq")
	v.SetDefault("kafka.autoOffsetReset", "earliest")
	v.SetDefault("kafka.sessionTimeout", "30s")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.endpoint", "/metrics")
	v.SetDefault("metrics.port", 9100)

	v.SetDefault("security.corsAllowOrigins", []string{"*"})
	v.SetDefault("security.keycloak.enabled", false)

	v.SetDefault("connector.timeout", "30s")
	v.SetDefault("connector.retry.maxAttempts", 3)
	v.SetDefault("connector.retry.baseDelay", "1s")
	v.SetDefault("connector.retry.multiplier", 2.0)
	v.SetDefault("connector.retry.maxDelay", "30s")
	v.SetDefault("connector.rateLimitStore", "redis")
	v.SetDefault("connector.rateLimit", 1000)

	v.SetDefault("sync.dryRun", false)
	v.SetDefault("sync.dryRunDelay", "100ms")
	v.SetDefault("sync.commitConcurrency", 1)
	v.SetDefault("sync.interItemDelay", "200ms")
	v.SetDefault("sync.dispatchConcurrency", 4)
	v.SetDefault("sync.idempotencyTTL", "24h")
	v.SetDefault("sync.autoSyncSchedule", "0 */6 * * *")
	v.SetDefault("sync.listPageSize", 50)

	v.SetDefault("validation.rulesFile", "")
	v.SetDefault("validation.tokenSecret", "change-me")
	v.SetDefault("validation.tokenTTL", "1h")
	v.SetDefault("validation.defaultMarket", "ID")

	v.SetDefault("channels.shopee.enabled", true)
	v.SetDefault("channels.shopee.baseURL", "https://partner.shopeemobile.com")
	v.SetDefault("channels.tiktok.enabled", true)
	v.SetDefault("channels.tiktok.baseURL", "https://open-api.tiktokglobalshop.com")
	v.SetDefault("channels.tokopedia.enabled", true)
	v.SetDefault("channels.tokopedia.baseURL", "https://fs.tokopedia.net")
	v.SetDefault("channels.lazada.enabled", true)
	v.SetDefault("channels.lazada.baseURL", "https://api.lazada.co.id/rest")
}

func bindEnvVariables(v *viper.Viper) {
	binds := map[string]string{
		"appName":  "APP_NAME",
		"version":  "APP_VERSION",
		"logLevel": "LOG_LEVEL",
		"env":      "APP_ENV",

		"server.host":            "SERVER_HOST",
		"server.port":            "SERVER_PORT",
		"server.readTimeout":     "SERVER_READ_TIMEOUT",
		"server.writeTimeout":    "SERVER_WRITE_TIMEOUT",
		"server.shutdownTimeout": "SERVER_SHUTDOWN_TIMEOUT",
		"server.rateLimit":       "SERVER_RATE_LIMIT",

		"postgres.host":     "POSTGRES_HOST",
		"postgres.port":     "POSTGRES_PORT",
		"postgres.user":     "POSTGRES_USER",
		"postgres.password": "POSTGRES_PASSWORD",
		"postgres.dbname":   "POSTGRES_DBNAME",
		"postgres.sslmode":  "POSTGRES_SSLMODE",
		"postgres.poolSize": "POSTGRES_POOL_SIZE",

		"redis.enabled":  "REDIS_ENABLED",
		"redis.host":     "REDIS_HOST",
		"redis.port":     "REDIS_PORT",
		"redis.password": "REDIS_PASSWORD",
		"redis.db":       "REDIS_DB",

		"kafka.brokers":       "KAFKA_BROKERS",
		"kafka.groupID":       "KAFKA_GROUP_ID",
		"kafka.syncJobsTopic": "KAFKA_SYNC_JOBS_TOPIC",
		"kafka.eventsTopic":   "KAFKA_EVENTS_TOPIC",

		"metrics.enabled": "METRICS_ENABLED",
		"metrics.port":    "METRICS_PORT",

		"security.corsAllowOrigins":       "CORS_ALLOW_ORIGINS",
		"security.keycloak.enabled":      "KEYCLOAK_ENABLED",
		"security.keycloak.server_url":   "KEYCLOAK_SERVER_URL",
		"security.keycloak.realm":        "KEYCLOAK_REALM",
		"security.keycloak.client_id":    "KEYCLOAK_CLIENT_ID",
		"security.keycloak.client_secret": "KEYCLOAK_CLIENT_SECRET",

		"connector.timeout":        "CONNECTOR_TIMEOUT",
		"connector.rateLimitStore": "CONNECTOR_RATE_LIMIT_STORE",

		"sync.dryRun":           "SYNC_DRY_RUN",
		"sync.autoSyncSchedule": "SYNC_AUTO_SCHEDULE",
		"sync.idempotencyTTL":   "SYNC_IDEMPOTENCY_TTL",

		"validation.rulesFile":   "VALIDATION_RULES_FILE",
		"validation.tokenSecret": "VALIDATION_TOKEN_SECRET",
	}
	for key, env := range binds {
		_ = v.BindEnv(key, env)
	}

	for _, name := range channelNames {
		prefix := strings.ToUpper(name)
		_ = v.BindEnv("channels."+name+".partnerID", prefix+"_PARTNER_ID")
		_ = v.BindEnv("channels."+name+".partnerKey", prefix+"_PARTNER_KEY")
		_ = v.BindEnv("channels."+name+".webhookKey", prefix+"_WEBHOOK_KEY")
		_ = v.BindEnv("channels."+name+".baseURL", prefix+"_BASE_URL")
	}
}
