package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// метрики для Prometheus
var (
	HTTPDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_durations_seconds",
		Help:    "Длительность HTTP запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "method", "status"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Общее количество HTTP запросов",
	}, []string{"path", "method", "status"})

	HTTPActiveRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "http_active_requests",
		Help: "Количество активных HTTP запросов",
	})

	ConnectorRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connector_requests_total",
		Help: "Вызовы API маркетплейсов по результату",
	}, []string{"channel", "endpoint", "outcome"})

	ConnectorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "connector_request_duration_seconds",
		Help:    "Длительность одной попытки вызова API маркетплейса",
		Buckets: prometheus.DefBuckets,
	}, []string{"channel", "endpoint"})

	ConnectorRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connector_retries_total",
		Help: "Повторные попытки вызовов API маркетплейсов",
	}, []string{"channel", "endpoint"})

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connector_rate_limited_total",
		Help: "Вызовы, отклоненные локальным лимитом",
	}, []string{"channel", "endpoint"})

	CommitOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_commit_operations_total",
		Help: "Операции коммита каталога по результату",
	}, []string{"channel", "operation", "outcome"})

	IdempotentReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_commit_idempotent_replays_total",
		Help: "Повторные коммиты, обслуженные из хранилища идемпотентности",
	})

	IdempotencySaveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_commit_idempotency_save_failures_total",
		Help: "Результаты коммита, не сохраненные в хранилище идемпотентности",
	})

	DispatchedJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_jobs_dispatched_total",
		Help: "Задачи синхронизации, поставленные в очередь",
	}, []string{"direction", "job_type", "outcome"})

	WorkerMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_messages_processed_total",
		Help: "Общее количество обработанных сообщений",
	}, []string{"topic", "status"})

	WorkerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "worker_message_processing_duration_seconds",
		Help:    "Длительность обработки сообщений",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})
)
