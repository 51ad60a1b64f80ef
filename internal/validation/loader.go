package validation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type rulesFile struct {
	RuleSets []RuleSet `yaml:"ruleSets"`
}

// LoadRuleSets читает переопределения правил из YAML файла.
// Набор из файла полностью заменяет встроенный набор той же пары (канал, рынок).
func LoadRuleSets(path string) ([]RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла правил %s: %w", path, err)
	}
	return ParseRuleSets(data)
}

// ParseRuleSets разбирает YAML документ с ключом ruleSets
func ParseRuleSets(data []byte) ([]RuleSet, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("ошибка разбора правил: %w", err)
	}
	for i := range f.RuleSets {
		if err := f.RuleSets[i].compile(); err != nil {
			return nil, err
		}
	}
	return f.RuleSets, nil
}
