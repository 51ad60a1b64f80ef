package validation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPayload() models.ChannelPayload {
	return models.ChannelPayload{
		Title:       "Kaos Polos Katun Combed 30s Hitam Ukuran M",
		Description: strings.Repeat("Kaos polos berbahan katun combed 30s, adem dan nyaman dipakai sehari-hari. ", 3),
		Price:       decimal.NewFromInt(59000),
		Currency:    "IDR",
		Stock:       10,
		SKU:         "KAOS-BLK-M",
		Brand:       "Basicwear",
		CategoryID:  "100010",
		Images:      []string{"a.jpg", "b.jpg", "c.jpg"},
		WeightGrams: 200,
	}
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(models.MarketID, DefaultRuleSets()...)
	require.NoError(t, err)
	return e
}

func TestEngine_ValidPayload(t *testing.T) {
	e := newEngine(t)
	for _, ch := range models.AllChannels() {
		res := e.Validate(validPayload(), ch, models.MarketID, "")
		assert.True(t, res.Valid, "channel %s: %+v", ch, res.Errors)
		assert.Empty(t, res.Errors)
	}
}

func TestEngine_TitleLength(t *testing.T) {
	e, err := NewEngine(models.MarketID, RuleSet{
		Channel: models.ChannelShopee,
		Market:  models.MarketID,
		Rules:   []Rule{{Field: FieldTitle, Type: RuleLength, Max: 120}},
	})
	require.NoError(t, err)

	p := validPayload()
	p.Title = strings.Repeat("a", 121)

	res := e.Validate(p, models.ChannelShopee, models.MarketID, "")
	require.Len(t, res.Errors, 1)
	assert.False(t, res.Valid)
	assert.Equal(t, "length", res.Errors[0].Rule)
	assert.Equal(t, FieldTitle, res.Errors[0].Field)
	assert.Equal(t, 121, res.Errors[0].ObservedValue)
	assert.Equal(t, strings.Repeat("a", 120), res.Errors[0].SuggestedValue)

	p.Title = strings.Repeat("a", 120)
	assert.True(t, e.Validate(p, models.ChannelShopee, models.MarketID, "").Valid)
}

func TestEngine_DefaultTitleLengthIsSingleError(t *testing.T) {
	e := newEngine(t)
	p := validPayload()
	p.Title = strings.Repeat("ж", 121)

	res := e.Validate(p, models.ChannelShopee, models.MarketID, "")
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "length", res.Errors[0].Rule)
}

func TestEngine_Deterministic(t *testing.T) {
	e := newEngine(t)
	p := validPayload()
	p.Title = "replika"
	p.Images = nil
	p.Brand = ""

	first := e.Validate(p, models.ChannelLazada, models.MarketMY, "")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, e.Validate(p, models.ChannelLazada, models.MarketMY, ""))
	}
}

func TestEngine_Rules(t *testing.T) {
	e := newEngine(t)

	tests := []struct {
		name     string
		mutate   func(*models.ChannelPayload)
		field    string
		rule     string
		severity models.Severity
	}{
		{"missing title", func(p *models.ChannelPayload) { p.Title = "  " }, FieldTitle, "required", models.SeverityError},
		{"short title", func(p *models.ChannelPayload) { p.Title = "Kaos" }, FieldTitle, "min_length", models.SeverityWarning},
		{"forbidden term", func(p *models.ChannelPayload) { p.Title = "Kaos REPLIKA premium hitam ukuran M" }, FieldTitle, "forbidden", models.SeverityError},
		{"no images", func(p *models.ChannelPayload) { p.Images = nil }, FieldImages, "required", models.SeverityError},
		{"too many images", func(p *models.ChannelPayload) { p.Images = make([]string, 10); fill(p.Images) }, FieldImages, "length", models.SeverityWarning},
		{"no category", func(p *models.ChannelPayload) { p.CategoryID = "" }, FieldCategoryID, "required", models.SeverityError},
		{"zero price", func(p *models.ChannelPayload) { p.Price = decimal.Zero }, FieldPrice, "positive", models.SeverityError},
		{"negative price", func(p *models.ChannelPayload) { p.Price = decimal.NewFromInt(-5) }, FieldPrice, "format", models.SeverityError},
		{"three decimals", func(p *models.ChannelPayload) { p.Price = decimal.RequireFromString("10.125") }, FieldPrice, "format", models.SeverityError},
		{"bad sku", func(p *models.ChannelPayload) { p.SKU = "sku with spaces" }, FieldSKU, "format", models.SeverityWarning},
		{"missing brand", func(p *models.ChannelPayload) { p.Brand = "" }, FieldBrand, "required", models.SeverityWarning},
		{"compare-at equal", func(p *models.ChannelPayload) { c := p.Price; p.CompareAtPrice = &c }, FieldCompareAtPrice, "compare_at_price", models.SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPayload()
			tt.mutate(&p)
			res := e.Validate(p, models.ChannelShopee, models.MarketID, "")

			issues := append(append([]models.ValidationIssue{}, res.Errors...), res.Warnings...)
			var found *models.ValidationIssue
			for i := range issues {
				if issues[i].Field == tt.field && issues[i].Rule == tt.rule {
					found = &issues[i]
				}
			}
			require.NotNil(t, found, "issues: %+v", issues)
			assert.Equal(t, tt.severity, found.Severity)
			assert.Equal(t, tt.severity != models.SeverityError || len(res.Errors) == 0, res.Valid)
		})
	}
}

func fill(s []string) {
	for i := range s {
		s[i] = "img.jpg"
	}
}

func TestEngine_ForbiddenTermSuggestion(t *testing.T) {
	e := newEngine(t)

	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"mixed case ascii", "Kaos REPLIKA premium hitam ukuran M", "Kaos premium hitam ukuran M"},
		{"rune grows when lowercased", "ȺȺȺȺȺȺȺȺȺȺ Tas kulit asli premium ukuran besar replica", "ȺȺȺȺȺȺȺȺȺȺ Tas kulit asli premium ukuran besar"},
		{"rune shrinks when lowercased", "İİİİ Tas kulit asli premium ukuran besar replica", "İİİİ Tas kulit asli premium ukuran besar"},
		{"terms at both ends", "Replica tas kulit asli premium ukuran besar COUNTERFEIT", "tas kulit asli premium ukuran besar"},
		{"repeated term", "replica Tas kulit replica premium ukuran besar Replica", "Tas kulit premium ukuran besar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPayload()
			p.Title = tt.title

			var res models.ValidationResult
			require.NotPanics(t, func() { res = e.Validate(p, models.ChannelShopee, models.MarketID, "") })

			var found *models.ValidationIssue
			for i := range res.Errors {
				if res.Errors[i].Field == FieldTitle && res.Errors[i].Rule == string(RuleForbidden) {
					found = &res.Errors[i]
				}
			}
			require.NotNil(t, found, "errors: %+v", res.Errors)
			assert.Equal(t, tt.want, found.SuggestedValue)
		})
	}
}

func TestEngine_SubUnitPriceIsValid(t *testing.T) {
	e := newEngine(t)
	p := validPayload()
	p.Price = decimal.RequireFromString("0.50")
	p.Currency = "SGD"

	res := e.Validate(p, models.ChannelShopee, models.MarketSG, "")

	for _, issue := range res.Errors {
		assert.NotEqual(t, FieldPrice, issue.Field, "unexpected price issue: %+v", issue)
	}
	assert.True(t, res.Valid, "errors: %+v", res.Errors)
}

func TestEngine_CompareAtPriceHigherIsValid(t *testing.T) {
	e := newEngine(t)
	p := validPayload()
	c := p.Price.Add(decimal.NewFromInt(1000))
	p.CompareAtPrice = &c
	assert.True(t, e.Validate(p, models.ChannelTikTok, models.MarketID, "").Valid)
}

func TestEngine_CategoryRulesAreAdditive(t *testing.T) {
	e := newEngine(t)
	p := validPayload()
	p.Title = strings.Repeat("b", 121)

	res := e.Validate(p, models.ChannelShopee, models.MarketID, "100017")
	rules := map[string]bool{}
	for _, is := range res.Errors {
		rules[is.Field+"/"+is.Rule] = true
	}
	assert.True(t, rules["title/length"], "general rules still apply")
	assert.True(t, rules["attributes.size/required"], "category rule added")

	p.Attributes = map[string]string{"size": "M"}
	p.CategoryID = "100017"
	res = e.Validate(p, models.ChannelShopee, models.MarketID, "")
	assert.Len(t, res.Errors, 1, "category taken from payload")
}

func TestEngine_MarketFallback(t *testing.T) {
	e := newEngine(t)
	p := validPayload()
	p.Title = strings.Repeat("c", 71)

	res := e.Validate(p, models.ChannelTokopedia, models.MarketSG, "")
	require.Len(t, res.Errors, 1, "falls back to ID rules")
	assert.Equal(t, "length", res.Errors[0].Rule)
}

func TestEngine_UnknownConfiguration(t *testing.T) {
	e, err := NewEngine(models.MarketMY, RuleSet{Channel: models.ChannelShopee, Market: models.MarketID})
	require.NoError(t, err)

	res := e.Validate(validPayload(), models.ChannelLazada, models.MarketTH, "")
	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "configuration", res.Errors[0].Rule)
	assert.NotNil(t, res.Warnings)
}

func TestNewEngine_RejectsBadRules(t *testing.T) {
	_, err := NewEngine(models.MarketID, RuleSet{
		Channel: models.ChannelShopee,
		Market:  models.MarketID,
		Rules:   []Rule{{Field: FieldSKU, Type: RuleFormat, Pattern: "("}},
	})
	assert.Error(t, err)

	_, err = NewEngine(models.MarketID, RuleSet{Channel: "ebay", Market: models.MarketID})
	assert.Error(t, err)
}

func TestLoadRuleSets_Overrides(t *testing.T) {
	doc := `
ruleSets:
  - channel: tokopedia
    market: ID
    rules:
      - field: title
        type: length
        max: 10
      - field: description
        type: forbidden
        severity: warning
        terms: ["gratis ongkir"]
    categoryRules:
      "555":
        - field: attributes.color
          type: required
`
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	e, err := NewDefaultEngine(models.MarketID, path)
	require.NoError(t, err)

	p := validPayload()
	p.Description = "Gratis ongkir seluruh Indonesia"
	res := e.Validate(p, models.ChannelTokopedia, models.MarketID, "555")

	require.Len(t, res.Errors, 2)
	assert.Equal(t, "attributes.color", res.Errors[0].Field)
	assert.Equal(t, "title", res.Errors[1].Field)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "forbidden", res.Warnings[0].Rule)
	assert.Equal(t, "seluruh Indonesia", res.Warnings[0].SuggestedValue)

	_, err = ParseRuleSets([]byte("ruleSets: [{channel: shopee, market: ID, rules: [{field: title, type: magic}]}]"))
	assert.Error(t, err)
}

func TestSEOScore(t *testing.T) {
	good := validPayload()
	good.Images = []string{"1", "2", "3", "4", "5"}
	good.Description = strings.Repeat("kaos polos katun combed hitam ukuran ", 10)
	good.Title = "Basicwear Kaos Polos Katun Combed 30s Hitam Ukuran M"

	high := SEOScore(good, models.ChannelShopee)
	assert.GreaterOrEqual(t, high.Score, 80)
	assert.LessOrEqual(t, high.Score, 100)

	poor := models.ChannelPayload{Title: "Kaos"}
	low := SEOScore(poor, models.ChannelShopee)
	assert.Less(t, low.Score, high.Score)
	assert.NotEmpty(t, low.Suggestions)

	assert.Equal(t, high, SEOScore(good, models.ChannelShopee))
}
