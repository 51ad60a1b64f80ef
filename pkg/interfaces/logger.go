package interfaces

import "context"

// LogLevel определяет уровни логирования
type LogLevel int

const (
	// Уровни логирования от наименее до наиболее важного
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// ContextKey тип ключей контекста, общих для middleware, логгера и сервисов
type ContextKey string

const (
	ContextKeyRequestID ContextKey = "request_id"
	ContextKeyTraceID   ContextKey = "trace_id"
	ContextKeyTenantID  ContextKey = "tenant_id"
	ContextKeyUserID    ContextKey = "user_id"
	ContextKeyClaims    ContextKey = "claims"
)

// TenantFromContext возвращает ID арендатора из контекста
func TenantFromContext(ctx context.Context) string {
	tenantID, _ := ctx.Value(ContextKeyTenantID).(string)
	return tenantID
}

// LogField представляет дополнительное поле в логе
type LogField struct {
	Key   string
	Value interface{}
}

// LoggerPort определяет интерфейс для системы логирования
type LoggerPort interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	// Fatal логирует сообщение и завершает программу
	Fatal(msg string, args ...interface{})

	// Методы логирования с контекстом: добавляют request_id, trace_id, tenant_id, user_id

	DebugWithContext(ctx context.Context, msg string, args ...interface{})
	InfoWithContext(ctx context.Context, msg string, args ...interface{})
	WarnWithContext(ctx context.Context, msg string, args ...interface{})
	ErrorWithContext(ctx context.Context, msg string, args ...interface{})

	// WithFields возвращает новый логгер с добавленными полями
	WithFields(fields ...LogField) LoggerPort

	// WithField возвращает новый логгер с добавленным полем
	WithField(key string, value interface{}) LoggerPort

	// WithTenant возвращает новый логгер с добавленным идентификатором арендатора
	WithTenant(tenantID string) LoggerPort

	// SetLevel устанавливает минимальный уровень логирования
	SetLevel(level LogLevel)

	// GetLevel возвращает текущий уровень логирования
	GetLevel() LogLevel

	// Sync сбрасывает буферы логгера
	Sync() error
}
