package validation

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/domain/models"
)

const ruleConfiguration = "configuration"

type setKey struct {
	channel models.Channel
	market  models.Market
}

// Engine проверяет товар правилами пары (канал, рынок).
// После создания не изменяется и безопасен для конкурентного использования.
type Engine struct {
	sets          map[setKey]RuleSet
	defaultMarket models.Market
}

// NewEngine создает движок из наборов правил. Набор с той же парой (канал, рынок)
// заменяет предыдущий, правила категорий при этом объединяются.
func NewEngine(defaultMarket models.Market, sets ...RuleSet) (*Engine, error) {
	if defaultMarket == "" {
		defaultMarket = models.DefaultMarket
	}
	e := &Engine{sets: make(map[setKey]RuleSet, len(sets)), defaultMarket: defaultMarket}
	for _, rs := range sets {
		if err := rs.compile(); err != nil {
			return nil, err
		}
		key := setKey{rs.Channel, rs.Market}
		if prev, ok := e.sets[key]; ok {
			rs = mergeCategoryRules(prev, rs)
		}
		e.sets[key] = rs
	}
	return e, nil
}

// NewDefaultEngine создает движок со встроенными правилами и, если задан путь,
// с переопределениями из YAML файла
func NewDefaultEngine(defaultMarket models.Market, rulesFile string) (*Engine, error) {
	sets := DefaultRuleSets()
	if rulesFile != "" {
		overrides, err := LoadRuleSets(rulesFile)
		if err != nil {
			return nil, err
		}
		sets = append(sets, overrides...)
	}
	return NewEngine(defaultMarket, sets...)
}

func mergeCategoryRules(prev, next RuleSet) RuleSet {
	if len(prev.CategoryRules) == 0 {
		return next
	}
	merged := make(map[string][]Rule, len(prev.CategoryRules)+len(next.CategoryRules))
	for k, v := range prev.CategoryRules {
		merged[k] = v
	}
	for k, v := range next.CategoryRules {
		merged[k] = v
	}
	next.CategoryRules = merged
	return next
}

// Resolve возвращает набор правил с учетом рынка канала по умолчанию
func (e *Engine) Resolve(ch models.Channel, market models.Market) (RuleSet, bool) {
	if market != "" {
		if rs, ok := e.sets[setKey{ch, market}]; ok {
			return rs, true
		}
	}
	rs, ok := e.sets[setKey{ch, e.defaultMarket}]
	return rs, ok
}

// Validate проверяет товар. Результат зависит только от аргументов.
// Правила категории добавляются к общим правилам набора.
func (e *Engine) Validate(p models.ChannelPayload, ch models.Channel, market models.Market, category string) models.ValidationResult {
	rs, ok := e.Resolve(ch, market)
	if !ok {
		return models.ValidationResult{
			Valid: false,
			Errors: []models.ValidationIssue{{
				Field:         "channel",
				Message:       fmt.Sprintf("no validation rules configured for channel %q market %q", ch, market),
				Severity:      models.SeverityError,
				Rule:          ruleConfiguration,
				ObservedValue: fmt.Sprintf("%s/%s", ch, market),
			}},
			Warnings: []models.ValidationIssue{},
		}
	}

	rules := rs.Rules
	if category == "" {
		category = p.CategoryID
	}
	if extra := rs.CategoryRules[category]; len(extra) > 0 {
		rules = append(append([]Rule(nil), rules...), extra...)
	}

	result := models.ValidationResult{Errors: []models.ValidationIssue{}, Warnings: []models.ValidationIssue{}}
	for i := range rules {
		issue, failed := evaluate(&rules[i], p)
		if !failed {
			continue
		}
		if issue.Severity == models.SeverityError {
			result.Errors = append(result.Errors, issue)
		} else {
			result.Warnings = append(result.Warnings, issue)
		}
	}
	sortIssues(result.Errors)
	sortIssues(result.Warnings)
	result.Valid = len(result.Errors) == 0
	return result
}

func sortIssues(issues []models.ValidationIssue) {
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Field != issues[j].Field {
			return issues[i].Field < issues[j].Field
		}
		if issues[i].Rule != issues[j].Rule {
			return issues[i].Rule < issues[j].Rule
		}
		return issues[i].Message < issues[j].Message
	})
}

// fieldValue возвращает строковое значение поля, число элементов для списков
// и признак того, что поле заполнено
func fieldValue(p models.ChannelPayload, field string) (value string, count int, present bool) {
	switch field {
	case FieldTitle:
		value = p.Title
	case FieldDescription:
		value = p.Description
	case FieldBrand:
		value = p.Brand
	case FieldCategoryID:
		value = p.CategoryID
	case FieldSKU:
		value = p.SKU
	case FieldCurrency:
		value = p.Currency
	case FieldPrice:
		value = p.Price.String()
	case FieldCompareAtPrice:
		if p.CompareAtPrice != nil {
			value = p.CompareAtPrice.String()
		}
	case FieldWeight:
		if p.WeightGrams > 0 {
			value = fmt.Sprint(p.WeightGrams)
		}
	case FieldImages:
		n := 0
		for _, img := range p.Images {
			if strings.TrimSpace(img) != "" {
				n++
			}
		}
		return strings.Join(p.Images, ","), n, n > 0
	default:
		if name, ok := strings.CutPrefix(field, attributePrefix); ok {
			value = p.Attributes[name]
		}
	}
	value = strings.TrimSpace(value)
	return value, utf8.RuneCountInString(value), value != ""
}

func evaluate(r *Rule, p models.ChannelPayload) (models.ValidationIssue, bool) {
	value, count, present := fieldValue(p, r.Field)
	issue := models.ValidationIssue{Field: r.Field, Severity: r.Severity, Rule: string(r.Type)}

	switch r.Type {
	case RuleRequired:
		minCount := r.Min
		if minCount < 1 {
			minCount = 1
		}
		if present && count >= minCount {
			return issue, false
		}
		issue.ObservedValue = count
		issue.Message = message(r, fmt.Sprintf("%s is required", r.Field))
		if minCount > 1 {
			issue.Message = message(r, fmt.Sprintf("%s requires at least %d items", r.Field, minCount))
		}

	case RuleLength:
		if count <= r.Max {
			return issue, false
		}
		issue.ObservedValue = count
		issue.Message = message(r, fmt.Sprintf("%s exceeds %d characters", r.Field, r.Max))
		if r.Field == FieldImages {
			issue.Message = message(r, fmt.Sprintf("%s exceeds %d items", r.Field, r.Max))
		} else {
			issue.SuggestedValue = truncateRunes(value, r.Max)
		}

	case RuleMinLength:
		if !present || count >= r.Min {
			return issue, false
		}
		issue.ObservedValue = count
		issue.Message = message(r, fmt.Sprintf("%s should have at least %d characters", r.Field, r.Min))
		if r.Field == FieldImages {
			issue.Message = message(r, fmt.Sprintf("%s should have at least %d items", r.Field, r.Min))
		}

	case RuleForbidden:
		var found []string
		var matched []termMatcher
		for _, t := range r.terms {
			if t.re.MatchString(value) {
				found = append(found, t.term)
				matched = append(matched, t)
			}
		}
		if len(found) == 0 {
			return issue, false
		}
		issue.ObservedValue = found
		issue.Message = message(r, fmt.Sprintf("%s contains forbidden terms: %s", r.Field, strings.Join(found, ", ")))
		issue.SuggestedValue = removeTerms(value, matched)

	case RuleFormat:
		if !present || r.re.MatchString(value) {
			return issue, false
		}
		issue.ObservedValue = value
		issue.Message = message(r, fmt.Sprintf("%s has invalid format", r.Field))

	case RulePositive:
		if r.Field != FieldPrice || p.Price.IsPositive() {
			return issue, false
		}
		issue.ObservedValue = p.Price.String()
		issue.Message = message(r, fmt.Sprintf("%s must be greater than zero", r.Field))

	case RuleCompareAtPrice:
		if p.CompareAtPrice == nil || p.CompareAtPrice.GreaterThan(p.Price) {
			return issue, false
		}
		issue.ObservedValue = p.CompareAtPrice.String()
		issue.Message = message(r, fmt.Sprintf("compare-at price %s must be greater than price %s", p.CompareAtPrice.String(), p.Price.String()))

	default:
		return issue, false
	}
	return issue, true
}

func message(r *Rule, fallback string) string {
	if r.Message != "" {
		return r.Message
	}
	return fallback
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}

// removeTerms вырезает найденные термины без учета регистра
func removeTerms(s string, terms []termMatcher) string {
	out := s
	for _, t := range terms {
		out = t.re.ReplaceAllString(out, "")
	}
	return strings.Join(strings.Fields(out), " ")
}
