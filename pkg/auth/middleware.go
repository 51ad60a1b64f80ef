package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
)

// AuthMiddleware промежуточное ПО для проверки bearer-токенов.
// Кладет claims, user_id и tenant_id в контекст запроса.
func AuthMiddleware(validator interfaces.AuthPort, logger interfaces.LoggerPort) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header is required", http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
				return
			}

			claims, err := validator.ValidateToken(r.Context(), parts[1])
			if err != nil {
				logger.WarnWithContext(r.Context(), "Невалидный токен",
					interfaces.LogField{Key: "error", Value: err.Error()})
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), interfaces.ContextKeyClaims, claims)
			ctx = context.WithValue(ctx, interfaces.ContextKeyUserID, claims.UserID)
			if claims.TenantID != "" {
				ctx = context.WithValue(ctx, interfaces.ContextKeyTenantID, claims.TenantID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole проверяет наличие определенной роли
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := r.Context().Value(interfaces.ContextKeyClaims).(*interfaces.AuthClaims)
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if role != "" && !claims.HasRole(role) {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
