package interfaces

import (
	"context"
)

// AuthClaims содержит данные вызывающей стороны, извлеченные из токена
type AuthClaims struct {
	UserID   string
	Username string
	TenantID string
	Roles    []string
}

// HasRole проверяет наличие роли
func (c *AuthClaims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthPort определяет интерфейс для проверки токенов доступа к API
type AuthPort interface {
	// ValidateToken проверяет токен и возвращает claims
	ValidateToken(ctx context.Context, token string) (*AuthClaims, error)
}
