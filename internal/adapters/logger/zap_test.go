package logger

import (
	"context"
	"testing"

	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_WithContextAddsRequestFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewFromCore(core)

	ctx := context.WithValue(context.Background(), interfaces.ContextKeyRequestID, "req-1")
	ctx = context.WithValue(ctx, interfaces.ContextKeyTenantID, "tenant-1")

	log.InfoWithContext(ctx, "commit done", interfaces.LogField{Key: "items", Value: 3})

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "tenant-1", fields["tenant_id"])
	assert.EqualValues(t, 3, fields["items"])
}

func TestZapLogger_WithTenant(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewFromCore(core).WithTenant("t-9")

	log.Warn("something")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "t-9", logs.All()[0].ContextMap()["tenant_id"])
}

func TestZapLogger_SetLevel(t *testing.T) {
	log := NewNop()

	log.SetLevel(interfaces.ErrorLevel)
	assert.Equal(t, interfaces.ErrorLevel, log.GetLevel())

	log.SetLevel(interfaces.DebugLevel)
	assert.Equal(t, interfaces.DebugLevel, log.GetLevel())
}

func TestGetLoggerLevel(t *testing.T) {
	tests := []struct {
		in   string
		want interfaces.LogLevel
	}{
		{"debug", interfaces.DebugLevel},
		{"warn", interfaces.WarnLevel},
		{"error", interfaces.ErrorLevel},
		{"unknown", interfaces.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, GetLoggerLevel(tt.in))
		})
	}
}
