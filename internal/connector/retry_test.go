package connector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, Multiplier: 2, MaxDelay: 5 * time.Second}

	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 5*time.Second, p.Delay(4), "capped at max delay")
	assert.Equal(t, time.Second, p.Delay(0))
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	p := DefaultRetryPolicy()

	tests := []struct {
		name    string
		err     *ConnectorError
		attempt int
		want    bool
	}{
		{"retryable with attempts left", &ConnectorError{Code: "HTTP_503", Retryable: true}, 1, true},
		{"retryable on last attempt", &ConnectorError{Code: "HTTP_503", Retryable: true}, 3, false},
		{"not retryable", &ConnectorError{Code: "HTTP_400"}, 1, false},
		{"no error", nil, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ShouldRetry(tt.err, tt.attempt))
		})
	}
}

func TestIsRetryableStatus(t *testing.T) {
	assert.True(t, IsRetryableStatus(500))
	assert.True(t, IsRetryableStatus(503))
	assert.True(t, IsRetryableStatus(429))
	assert.False(t, IsRetryableStatus(404))
	assert.False(t, IsRetryableStatus(400))
}

func TestContextSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, contextSleep(ctx, time.Hour), context.Canceled)
}
