package connector

import (
	"context"
	"math"
	"time"
)

// RetryPolicy параметры экспоненциальной задержки между попытками
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// DefaultRetryPolicy три попытки: 1s, 2s, не более 30s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2,
		MaxDelay:    30 * time.Second,
	}
}

// Delay возвращает задержку после неудачной попытки attempt (с 1):
// base * multiplier^(attempt-1), но не больше MaxDelay
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// ShouldRetry сообщает, нужна ли еще одна попытка после ошибки
func (p RetryPolicy) ShouldRetry(err *ConnectorError, attempt int) bool {
	return err != nil && err.Retryable && attempt < p.MaxAttempts
}

// Sleeper ожидание с учетом отмены контекста
type Sleeper func(ctx context.Context, d time.Duration) error

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
