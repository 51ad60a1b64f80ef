package connector

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// SignInput логический запрос, из которого строится каноническая строка подписи
type SignInput struct {
	PartnerID   int64
	Path        string
	Timestamp   int64
	AccessToken string
	ShopID      string
	// Params все параметры запроса, кроме sign
	Params map[string]string
	Body   []byte
}

// Signer стратегия построения канонической строки.
// Выбирается для каждого эндпоинта отдельно.
type Signer interface {
	Version() string
	Canonical(in SignInput) string
}

// Sign вычисляет HMAC-SHA256 канонической строки и возвращает его в hex
func Sign(s Signer, partnerKey string, in SignInput) string {
	mac := hmac.New(sha256.New, []byte(partnerKey))
	mac.Write([]byte(s.Canonical(in)))
	return hex.EncodeToString(mac.Sum(nil))
}

// PathSigner схема v1: partnerId + path + timestamp [+ accessToken] [+ shopId]
type PathSigner struct{}

func (PathSigner) Version() string { return "v1" }

func (PathSigner) Canonical(in SignInput) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(in.PartnerID, 10))
	b.WriteString(in.Path)
	b.WriteString(strconv.FormatInt(in.Timestamp, 10))
	b.WriteString(in.AccessToken)
	b.WriteString(in.ShopID)
	return b.String()
}

// ParamSigner схема v2: path + отсортированные пары key+value + тело запроса.
// access_token и sign в подпись не входят.
type ParamSigner struct{}

func (ParamSigner) Version() string { return "v2" }

func (ParamSigner) Canonical(in SignInput) string {
	keys := make([]string, 0, len(in.Params))
	for k := range in.Params {
		if k == paramSign || k == paramAccessToken {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(in.Path)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(in.Params[k])
	}
	b.Write(in.Body)
	return b.String()
}

// VerifyWebhookSignature пересчитывает HMAC-SHA256 тела вебхука и сравнивает
// его с переданной подписью за постоянное время. Допускается префикс "sha256=".
func VerifyWebhookSignature(secret string, payload []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	got, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), got)
}
