package config

import (
	"github.com/athebyme/gomarket-platform/channel-sync/pkg/auth"
)

// KeycloakConfig настройки проверки bearer-токенов вызывающих сервисов
type KeycloakConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServerURL    string `mapstructure:"server_url"`
	Realm        string `mapstructure:"realm"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	// RequiredRole роль, без которой доступ к /api/v1 запрещен (пусто - любая)
	RequiredRole string `mapstructure:"required_role"`
}

// GetKeycloakConfig возвращает конфигурацию для auth.KeycloakClient
func (k *KeycloakConfig) GetKeycloakConfig() auth.KeycloakConfig {
	return auth.KeycloakConfig{
		ServerURL:    k.ServerURL,
		Realm:        k.Realm,
		ClientID:     k.ClientID,
		ClientSecret: k.ClientSecret,
	}
}
