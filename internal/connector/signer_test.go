package connector

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func baseSignInput() SignInput {
	return SignInput{
		PartnerID:   2001,
		Path:        "/api/v2/product/add_item",
		Timestamp:   1714557600,
		AccessToken: "tok",
		ShopID:      "77",
	}
}

func TestPathSigner_Stable(t *testing.T) {
	in := baseSignInput()
	first := Sign(PathSigner{}, "key", in)
	second := Sign(PathSigner{}, "key", in)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
	assert.Equal(t, "2001/api/v2/product/add_item1714557600tok77", PathSigner{}.Canonical(in))
}

func TestPathSigner_EachInputChangesSignature(t *testing.T) {
	base := Sign(PathSigner{}, "key", baseSignInput())

	tests := []struct {
		name   string
		key    string
		mutate func(*SignInput)
	}{
		{"partner id", "key", func(in *SignInput) { in.PartnerID = 2002 }},
		{"path", "key", func(in *SignInput) { in.Path = "/api/v2/product/update_item" }},
		{"timestamp", "key", func(in *SignInput) { in.Timestamp++ }},
		{"access token", "key", func(in *SignInput) { in.AccessToken = "other" }},
		{"shop id", "key", func(in *SignInput) { in.ShopID = "78" }},
		{"partner key", "other-key", func(in *SignInput) {}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseSignInput()
			tt.mutate(&in)
			assert.NotEqual(t, base, Sign(PathSigner{}, tt.key, in))
		})
	}
}

func TestParamSigner_Canonical(t *testing.T) {
	in := SignInput{
		Path: "/product/202309/products",
		Params: map[string]string{
			"timestamp":    "100",
			"partner_id":   "5",
			"access_token": "secret-token",
			"sign":         "old",
			"shop_id":      "9",
		},
		Body: []byte(`{"a":1}`),
	}

	assert.Equal(t, `/product/202309/productspartner_id5shop_id9timestamp100{"a":1}`, ParamSigner{}.Canonical(in))
}

func TestSigners_DifferForSameRequest(t *testing.T) {
	in := baseSignInput()
	in.Params = map[string]string{"partner_id": "2001", "timestamp": "1714557600"}

	assert.NotEqual(t, Sign(PathSigner{}, "key", in), Sign(ParamSigner{}, "key", in))
	assert.Equal(t, "v1", PathSigner{}.Version())
	assert.Equal(t, "v2", ParamSigner{}.Version())
}

func TestVerifyWebhookSignature(t *testing.T) {
	payload := []byte(`{"event":"order_status_update","order_sn":"A1"}`)
	mac := hmac.New(sha256.New, []byte("hook-secret"))
	mac.Write(payload)
	valid := hex.EncodeToString(mac.Sum(nil))

	tests := []struct {
		name      string
		secret    string
		payload   []byte
		signature string
		want      bool
	}{
		{"valid", "hook-secret", payload, valid, true},
		{"valid with prefix", "hook-secret", payload, "sha256=" + valid, true},
		{"tampered payload", "hook-secret", []byte(`{"event":"order_status_update","order_sn":"A2"}`), valid, false},
		{"wrong secret", "other", payload, valid, false},
		{"not hex", "hook-secret", payload, "zz", false},
		{"empty signature", "hook-secret", payload, "", false},
		{"empty secret", "", payload, valid, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifyWebhookSignature(tt.secret, tt.payload, tt.signature))
		})
	}
}
