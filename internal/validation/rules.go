package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
)

// RuleType вид проверки
type RuleType string

const (
	RuleLength         RuleType = "length"
	RuleMinLength      RuleType = "min_length"
	RuleRequired       RuleType = "required"
	RuleForbidden      RuleType = "forbidden"
	RuleFormat         RuleType = "format"
	RuleCompareAtPrice RuleType = "compare_at_price"
	RulePositive       RuleType = "positive"
)

// Поля ChannelPayload, доступные правилам. Атрибуты адресуются как attributes.<name>.
const (
	FieldTitle          = "title"
	FieldDescription    = "description"
	FieldBrand          = "brand"
	FieldCategoryID     = "category_id"
	FieldImages         = "images"
	FieldSKU            = "sku"
	FieldPrice          = "price"
	FieldCompareAtPrice = "compare_at_price"
	FieldCurrency       = "currency"
	FieldWeight         = "weight_grams"
	attributePrefix     = "attributes."
)

// Rule одно правило набора.
// Для length и min_length у строк считаются символы, у images - количество.
type Rule struct {
	Field    string          `yaml:"field"`
	Type     RuleType        `yaml:"type"`
	Severity models.Severity `yaml:"severity"`
	Max      int             `yaml:"max,omitempty"`
	Min      int             `yaml:"min,omitempty"`
	Terms    []string        `yaml:"terms,omitempty"`
	Pattern  string          `yaml:"pattern,omitempty"`
	Message  string          `yaml:"message,omitempty"`

	re    *regexp.Regexp
	terms []termMatcher
}

type termMatcher struct {
	term string
	re   *regexp.Regexp
}

// RuleSet правила пары (канал, рынок) и дополнительные правила категорий
type RuleSet struct {
	Channel       models.Channel    `yaml:"channel"`
	Market        models.Market     `yaml:"market"`
	Rules         []Rule            `yaml:"rules"`
	CategoryRules map[string][]Rule `yaml:"categoryRules,omitempty"`
}

func (r *Rule) compile() error {
	if r.Severity == "" {
		r.Severity = models.SeverityError
	}
	switch r.Type {
	case RuleLength:
		if r.Max <= 0 {
			return fmt.Errorf("правило %s/%s: max должен быть > 0", r.Field, r.Type)
		}
	case RuleMinLength:
		if r.Min <= 0 {
			return fmt.Errorf("правило %s/%s: min должен быть > 0", r.Field, r.Type)
		}
	case RuleForbidden:
		r.terms = nil
		for _, term := range r.Terms {
			if strings.TrimSpace(term) == "" {
				continue
			}
			r.terms = append(r.terms, termMatcher{term: term, re: regexp.MustCompile("(?i)" + regexp.QuoteMeta(term))})
		}
		if len(r.terms) == 0 {
			return fmt.Errorf("правило %s/%s: пустой список terms", r.Field, r.Type)
		}
	case RuleFormat:
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return fmt.Errorf("правило %s/%s: %w", r.Field, r.Type, err)
		}
		r.re = re
	case RuleRequired, RuleCompareAtPrice, RulePositive:
	default:
		return fmt.Errorf("неизвестный тип правила %q", r.Type)
	}
	return nil
}

func (rs *RuleSet) compile() error {
	if !rs.Channel.IsValid() {
		return fmt.Errorf("неизвестный канал %q в наборе правил", rs.Channel)
	}
	if rs.Market == "" {
		return fmt.Errorf("не указан рынок для канала %s", rs.Channel)
	}
	for i := range rs.Rules {
		if err := rs.Rules[i].compile(); err != nil {
			return fmt.Errorf("%s/%s: %w", rs.Channel, rs.Market, err)
		}
	}
	for cat, rules := range rs.CategoryRules {
		for i := range rules {
			if err := rules[i].compile(); err != nil {
				return fmt.Errorf("%s/%s/%s: %w", rs.Channel, rs.Market, cat, err)
			}
		}
	}
	return nil
}

func (rs RuleSet) clone(market models.Market) RuleSet {
	out := RuleSet{Channel: rs.Channel, Market: market, Rules: append([]Rule(nil), rs.Rules...)}
	if rs.CategoryRules != nil {
		out.CategoryRules = make(map[string][]Rule, len(rs.CategoryRules))
		for k, v := range rs.CategoryRules {
			out.CategoryRules[k] = append([]Rule(nil), v...)
		}
	}
	return out
}

var commonForbidden = []string{"replika", "kw super", "barang palsu", "counterfeit", "replica"}

func baseRules(maxTitle, minTitle, maxDesc, maxImages int, brandSeverity models.Severity, extraForbidden ...string) []Rule {
	return []Rule{
		{Field: FieldTitle, Type: RuleRequired},
		{Field: FieldTitle, Type: RuleLength, Max: maxTitle},
		{Field: FieldTitle, Type: RuleMinLength, Min: minTitle, Severity: models.SeverityWarning},
		{Field: FieldTitle, Type: RuleForbidden, Terms: append(append([]string{}, commonForbidden...), extraForbidden...)},
		{Field: FieldDescription, Type: RuleRequired},
		{Field: FieldDescription, Type: RuleLength, Max: maxDesc},
		{Field: FieldDescription, Type: RuleMinLength, Min: 100, Severity: models.SeverityWarning},
		{Field: FieldDescription, Type: RuleForbidden, Terms: commonForbidden},
		{Field: FieldImages, Type: RuleRequired, Min: 1},
		{Field: FieldImages, Type: RuleLength, Max: maxImages, Severity: models.SeverityWarning},
		{Field: FieldImages, Type: RuleMinLength, Min: 3, Severity: models.SeverityInfo},
		{Field: FieldCategoryID, Type: RuleRequired},
		{Field: FieldBrand, Type: RuleRequired, Severity: brandSeverity},
		{Field: FieldPrice, Type: RuleFormat, Pattern: `^(0|[1-9]\d*)(\.\d{1,2})?$`, Message: "price must be an amount with at most 2 decimals"},
		{Field: FieldPrice, Type: RulePositive, Message: "price must be greater than zero"},
		{Field: FieldCompareAtPrice, Type: RuleCompareAtPrice},
		{Field: FieldSKU, Type: RuleFormat, Pattern: `^[A-Za-z0-9._\-]{1,50}$`, Severity: models.SeverityWarning},
		{Field: FieldWeight, Type: RuleRequired, Severity: models.SeverityWarning},
	}
}

// DefaultRuleSets встроенные правила. Для всех каналов есть рынок ID,
// для shopee и lazada также MY, SG, TH, PH, VN.
func DefaultRuleSets() []RuleSet {
	shopee := RuleSet{
		Channel: models.ChannelShopee,
		Market:  models.MarketID,
		Rules:   baseRules(120, 20, 3000, 9, models.SeverityWarning, "bisa cod", "whatsapp"),
		CategoryRules: map[string][]Rule{
			// Fashion
			"100017": {{Field: attributePrefix + "size", Type: RuleRequired}},
			// Health
			"100001": {{Field: attributePrefix + "bpom", Type: RuleRequired, Message: "BPOM registration number is required"}},
		},
	}
	tiktok := RuleSet{
		Channel: models.ChannelTikTok,
		Market:  models.MarketID,
		Rules:   baseRules(255, 25, 10000, 9, models.SeverityWarning, "whatsapp", "wa.me", "link in bio"),
		CategoryRules: map[string][]Rule{
			"601226": {{Field: attributePrefix + "size", Type: RuleRequired}},
		},
	}
	tokopedia := RuleSet{
		Channel: models.ChannelTokopedia,
		Market:  models.MarketID,
		Rules:   baseRules(70, 15, 2000, 5, models.SeverityWarning),
	}
	lazada := RuleSet{
		Channel: models.ChannelLazada,
		Market:  models.MarketID,
		Rules:   baseRules(255, 20, 25000, 8, models.SeverityError),
	}

	sets := []RuleSet{shopee, tiktok, tokopedia, lazada}
	for _, m := range []models.Market{models.MarketMY, models.MarketSG, models.MarketTH, models.MarketPH, models.MarketVN} {
		sets = append(sets, shopee.clone(m), lazada.clone(m))
	}
	return sets
}
