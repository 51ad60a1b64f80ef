package models

// Severity важность замечания валидации
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// ValidationIssue одно замечание к полю товара
type ValidationIssue struct {
	Field          string      `json:"field"`
	Message        string      `json:"message"`
	Severity       Severity    `json:"severity"`
	Rule           string      `json:"rule"`
	ObservedValue  interface{} `json:"observedValue,omitempty"`
	SuggestedValue interface{} `json:"suggestedValue,omitempty"`
}

// ValidationResult результат проверки товара правилами канала.
// Valid истинно, если нет ни одной ошибки.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`
}

// SEOResult эвристическая оценка карточки для поиска маркетплейса
type SEOResult struct {
	Score       int      `json:"score"`
	Suggestions []string `json:"suggestions"`
}
