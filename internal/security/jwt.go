package security

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken  = errors.New("invalid validation token")
	ErrExpiredToken  = errors.New("validation token expired")
	ErrTokenMismatch = errors.New("validation token does not match item")
	ErrEmptySecret   = errors.New("validation token secret is empty")
)

const validationAudience = "catalog-commit"

// ValidationTokenManager выпускает и проверяет токены успешной валидации.
// Токен выдается превью и привязан к товару, каналу, рынку и хэшу полезной нагрузки,
// поэтому коммит не примет измененные после превью данные.
type ValidationTokenManager struct {
	secret     []byte
	expiration time.Duration
	issuer     string
	now        func() time.Time
}

// ValidationClaims содержимое токена валидации
type ValidationClaims struct {
	jwt.RegisteredClaims
	TenantID    string `json:"tenant_id"`
	ProductID   string `json:"product_id"`
	Channel     string `json:"channel"`
	Market      string `json:"market"`
	PayloadHash string `json:"payload_hash"`
}

// TokenSubject то, к чему привязан токен
type TokenSubject struct {
	TenantID  string
	ProductID string
	Channel   models.Channel
	Market    models.Market
	Payload   models.ChannelPayload
}

// NewValidationTokenManager создает менеджер с HMAC-SHA256 подписью
func NewValidationTokenManager(secret string, expiration time.Duration, issuer string) (*ValidationTokenManager, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if expiration <= 0 {
		expiration = time.Hour
	}
	return &ValidationTokenManager{
		secret:     []byte(secret),
		expiration: expiration,
		issuer:     issuer,
		now:        time.Now,
	}, nil
}

// PayloadHash хэш канонического JSON представления полезной нагрузки
func PayloadHash(p models.ChannelPayload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Generate выпускает токен для субъекта
func (m *ValidationTokenManager) Generate(s TokenSubject) (string, error) {
	hash, err := PayloadHash(s.Payload)
	if err != nil {
		return "", err
	}
	now := m.now()
	claims := ValidationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			Subject:   s.ProductID,
			Audience:  jwt.ClaimStrings{validationAudience},
		},
		TenantID:    s.TenantID,
		ProductID:   s.ProductID,
		Channel:     string(s.Channel),
		Market:      string(s.Market),
		PayloadHash: hash,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify проверяет подпись, срок действия и соответствие токена субъекту
func (m *ValidationTokenManager) Verify(tokenString string, s TokenSubject) (*ValidationClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ValidationClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithAudience(validationAudience),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*ValidationClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	hash, err := PayloadHash(s.Payload)
	if err != nil {
		return nil, err
	}
	if claims.TenantID != s.TenantID ||
		claims.ProductID != s.ProductID ||
		claims.Channel != string(s.Channel) ||
		claims.Market != string(s.Market) ||
		claims.PayloadHash != hash {
		return nil, ErrTokenMismatch
	}
	return claims, nil
}
