package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/patrickmn/go-cache"
	"golang.org/x/oauth2"
)

// KeycloakConfig конфигурация для Keycloak
type KeycloakConfig struct {
	ServerURL    string
	Realm        string
	ClientID     string
	ClientSecret string
}

// KeycloakClaims представляет собой структуру claims из токена Keycloak
type KeycloakClaims struct {
	UserID      string `json:"sub"`
	Username    string `json:"preferred_username"`
	TenantID    string `json:"tenant_id"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
	ResourceAccess map[string]struct {
		Roles []string `json:"roles"`
	} `json:"resource_access"`
}

// KeycloakClient проверяет bearer-токены, выданные Keycloak, и реализует AuthPort
type KeycloakClient struct {
	provider   *oidc.Provider
	verifier   *oidc.IDTokenVerifier
	tokenCache *cache.Cache
	clientID   string
}

var _ interfaces.AuthPort = (*KeycloakClient)(nil)

// NewKeycloakClient создает новый клиент Keycloak
func NewKeycloakClient(ctx context.Context, cfg KeycloakConfig) (*KeycloakClient, error) {
	providerURL := fmt.Sprintf("%s/realms/%s", cfg.ServerURL, cfg.Realm)

	provider, err := oidc.NewProvider(ctx, providerURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания OIDC провайдера: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID:        cfg.ClientID,
		SkipIssuerCheck: true,
	})

	return &KeycloakClient{
		provider:   provider,
		verifier:   verifier,
		tokenCache: cache.New(5*time.Minute, 10*time.Minute),
		clientID:   cfg.ClientID,
	}, nil
}

// ValidateToken проверяет JWT токен и возвращает claims.
// Если в токене нет tenant_id, он запрашивается из userinfo.
func (k *KeycloakClient) ValidateToken(ctx context.Context, tokenString string) (*interfaces.AuthClaims, error) {
	if cached, found := k.tokenCache.Get(tokenString); found {
		return cached.(*interfaces.AuthClaims), nil
	}

	idToken, err := k.verifier.Verify(ctx, tokenString)
	if err != nil {
		return nil, fmt.Errorf("ошибка верификации токена: %w", err)
	}

	var claims KeycloakClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("ошибка извлечения claims: %w", err)
	}

	if claims.TenantID == "" {
		userInfo, err := k.provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tokenString}))
		if err != nil {
			return nil, fmt.Errorf("ошибка получения информации о пользователе: %w", err)
		}
		var extra KeycloakClaims
		if err := userInfo.Claims(&extra); err != nil {
			return nil, fmt.Errorf("ошибка извлечения claims: %w", err)
		}
		claims.TenantID = extra.TenantID
	}

	result := k.toAuthClaims(&claims)

	if expiresIn := time.Until(idToken.Expiry); expiresIn > 0 {
		k.tokenCache.Set(tokenString, result, expiresIn)
	}

	return result, nil
}

// toAuthClaims объединяет realm-роли и роли клиента
func (k *KeycloakClient) toAuthClaims(claims *KeycloakClaims) *interfaces.AuthClaims {
	roles := append([]string{}, claims.RealmAccess.Roles...)
	if clientRoles, ok := claims.ResourceAccess[k.clientID]; ok {
		roles = append(roles, clientRoles.Roles...)
	}
	return &interfaces.AuthClaims{
		UserID:   claims.UserID,
		Username: claims.Username,
		TenantID: claims.TenantID,
		Roles:    roles,
	}
}
