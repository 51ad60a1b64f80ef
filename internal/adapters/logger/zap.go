package logger

import (
	"context"
	"os"
	"sync"

	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	instance *ZapLogger
	once     sync.Once
)

// ZapLogger адаптер для Zap, реализующий LoggerPort
type ZapLogger struct {
	logger *zap.SugaredLogger
	level  zap.AtomicLevel
}

// NewZapLogger создает процессный логгер на основе Zap.
// Повторные вызовы возвращают уже созданный экземпляр.
func NewZapLogger(level string, isProduction bool) (interfaces.LoggerPort, error) {
	var err error
	once.Do(func() {
		instance = &ZapLogger{}
		err = instance.init(level, isProduction)
	})

	if err != nil {
		return nil, err
	}

	return instance, nil
}

// NewNop возвращает логгер, отбрасывающий все записи
func NewNop() interfaces.LoggerPort {
	return &ZapLogger{
		logger: zap.NewNop().Sugar(),
		level:  zap.NewAtomicLevelAt(zapcore.InfoLevel),
	}
}

// NewFromCore создает логгер поверх заданного zapcore.Core (используется в тестах с observer)
func NewFromCore(core zapcore.Core) interfaces.LoggerPort {
	return &ZapLogger{
		logger: zap.New(core).Sugar(),
		level:  zap.NewAtomicLevelAt(zapcore.DebugLevel),
	}
}

func (z *ZapLogger) init(levelStr string, isProduction bool) error {
	var config zap.Config

	if isProduction {
		config = zap.NewProductionConfig()
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		level = zapcore.InfoLevel
	}
	z.level = zap.NewAtomicLevelAt(level)
	config.Level = z.level

	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	logger, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}

	z.logger = logger.Sugar()
	return nil
}

// GetLoggerLevel преобразует строковый уровень логирования в LogLevel
func GetLoggerLevel(levelStr string) interfaces.LogLevel {
	switch levelStr {
	case "debug":
		return interfaces.DebugLevel
	case "warn":
		return interfaces.WarnLevel
	case "error":
		return interfaces.ErrorLevel
	case "fatal":
		return interfaces.FatalLevel
	default:
		return interfaces.InfoLevel
	}
}

// convertToZapFields преобразует LogField в zap.Field
func convertToZapFields(args ...interface{}) []interface{} {
	for i, arg := range args {
		if field, ok := arg.(interfaces.LogField); ok {
			args[i] = zap.Any(field.Key, field.Value)
		}
	}
	return args
}

// extractFieldsFromContext извлекает сквозные идентификаторы запроса из контекста
func (z *ZapLogger) extractFieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}
	for _, key := range []interfaces.ContextKey{
		interfaces.ContextKeyRequestID,
		interfaces.ContextKeyTraceID,
		interfaces.ContextKeyTenantID,
		interfaces.ContextKeyUserID,
	} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			fields = append(fields, zap.String(string(key), v))
		}
	}
	return fields
}

func (z *ZapLogger) Debug(msg string, args ...interface{}) {
	z.logger.Debugw(msg, convertToZapFields(args...)...)
}

func (z *ZapLogger) Info(msg string, args ...interface{}) {
	z.logger.Infow(msg, convertToZapFields(args...)...)
}

func (z *ZapLogger) Warn(msg string, args ...interface{}) {
	z.logger.Warnw(msg, convertToZapFields(args...)...)
}

func (z *ZapLogger) Error(msg string, args ...interface{}) {
	z.logger.Errorw(msg, convertToZapFields(args...)...)
}

func (z *ZapLogger) Fatal(msg string, args ...interface{}) {
	z.logger.Fatalw(msg, convertToZapFields(args...)...)
	os.Exit(1)
}

func (z *ZapLogger) DebugWithContext(ctx context.Context, msg string, args ...interface{}) {
	z.logger.Debugw(msg, append(convertToZapFields(args...), z.extractFieldsFromContext(ctx)...)...)
}

func (z *ZapLogger) InfoWithContext(ctx context.Context, msg string, args ...interface{}) {
	z.logger.Infow(msg, append(convertToZapFields(args...), z.extractFieldsFromContext(ctx)...)...)
}

func (z *ZapLogger) WarnWithContext(ctx context.Context, msg string, args ...interface{}) {
	z.logger.Warnw(msg, append(convertToZapFields(args...), z.extractFieldsFromContext(ctx)...)...)
}

func (z *ZapLogger) ErrorWithContext(ctx context.Context, msg string, args ...interface{}) {
	z.logger.Errorw(msg, append(convertToZapFields(args...), z.extractFieldsFromContext(ctx)...)...)
}

// WithFields реализация интерфейса LoggerPort
func (z *ZapLogger) WithFields(fields ...interfaces.LogField) interfaces.LoggerPort {
	zapFields := make([]interface{}, 0, len(fields)*2)
	for _, field := range fields {
		zapFields = append(zapFields, field.Key, field.Value)
	}
	return &ZapLogger{logger: z.logger.With(zapFields...), level: z.level}
}

// WithField реализация интерфейса LoggerPort
func (z *ZapLogger) WithField(key string, value interface{}) interfaces.LoggerPort {
	return &ZapLogger{logger: z.logger.With(key, value), level: z.level}
}

// WithTenant реализация интерфейса LoggerPort
func (z *ZapLogger) WithTenant(tenantID string) interfaces.LoggerPort {
	return z.WithField(string(interfaces.ContextKeyTenantID), tenantID)
}

// SetLevel меняет уровень через AtomicLevel, общий для производных логгеров
func (z *ZapLogger) SetLevel(level interfaces.LogLevel) {
	switch level {
	case interfaces.DebugLevel:
		z.level.SetLevel(zapcore.DebugLevel)
	case interfaces.WarnLevel:
		z.level.SetLevel(zapcore.WarnLevel)
	case interfaces.ErrorLevel:
		z.level.SetLevel(zapcore.ErrorLevel)
	case interfaces.FatalLevel:
		z.level.SetLevel(zapcore.FatalLevel)
	default:
		z.level.SetLevel(zapcore.InfoLevel)
	}
}

// GetLevel реализация интерфейса LoggerPort
func (z *ZapLogger) GetLevel() interfaces.LogLevel {
	switch z.level.Level() {
	case zapcore.DebugLevel:
		return interfaces.DebugLevel
	case zapcore.WarnLevel:
		return interfaces.WarnLevel
	case zapcore.ErrorLevel:
		return interfaces.ErrorLevel
	case zapcore.FatalLevel, zapcore.PanicLevel, zapcore.DPanicLevel:
		return interfaces.FatalLevel
	default:
		return interfaces.InfoLevel
	}
}

// Sync реализация интерфейса LoggerPort
func (z *ZapLogger) Sync() error {
	return z.logger.Sync()
}
