package issues

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type keywordRule struct {
	Type     Type     `yaml:"type"`
	Keywords []string `yaml:"keywords"`
}

// Checked in order; the first rule with a keyword contained in the label wins.
var defaultRules = []keywordRule{
	{Type: TypeFace, Keywords: []string{"face", "identity"}},
	{Type: TypeHand, Keywords: []string{"hand", "finger"}},
	{Type: TypeAnatomy, Keywords: []string{"limb", "arm", "leg", "anatomy"}},
	{Type: TypeClothing, Keywords: []string{"cloth", "outfit", "dress"}},
	{Type: TypeEnvironment, Keywords: []string{"environment", "background", "scene"}},
	{Type: TypeObject, Keywords: []string{"object", "prop", "item"}},
}

// TypeMapper maps free-text evaluator labels onto the closed Type set.
type TypeMapper struct {
	rules []keywordRule
}

// DefaultTypeMapper uses the built-in keyword table only.
func DefaultTypeMapper() *TypeMapper {
	return &TypeMapper{rules: defaultRules}
}

// Map returns the issue type for label, defaulting to object.
func (m *TypeMapper) Map(label string) Type {
	normalized := strings.ToLower(strings.TrimSpace(label))
	if normalized == "" {
		return TypeObject
	}
	rules := defaultRules
	if m != nil {
		rules = m.rules
	}
	for _, rule := range rules {
		for _, keyword := range rule.Keywords {
			if strings.Contains(normalized, keyword) {
				return rule.Type
			}
		}
	}
	return TypeObject
}

// MapType maps label with the built-in table.
func MapType(label string) Type {
	return DefaultTypeMapper().Map(label)
}

type glossaryFile struct {
	Rules []keywordRule `yaml:"rules"`
}

// LoadTypeGlossary reads operator keyword rules from YAML and places them
// ahead of the built-in table. An empty path yields the default mapper.
//
//	rules:
//	  - type: clothing
//	    keywords: [hat, scarf]
func LoadTypeGlossary(path string) (*TypeMapper, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultTypeMapper(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read type glossary: %w", err)
	}
	return ParseTypeGlossary(data)
}

// ParseTypeGlossary parses glossary YAML; see LoadTypeGlossary.
func ParseTypeGlossary(data []byte) (*TypeMapper, error) {
	var file glossaryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse type glossary: %w", err)
	}
	rules := make([]keywordRule, 0, len(file.Rules)+len(defaultRules))
	for i, rule := range file.Rules {
		rule.Type = Type(strings.ToLower(strings.TrimSpace(string(rule.Type))))
		if !rule.Type.Valid() {
			return nil, fmt.Errorf("type glossary rule %d: unknown type %q", i+1, rule.Type)
		}
		keywords := make([]string, 0, len(rule.Keywords))
		for _, keyword := range rule.Keywords {
			if keyword = strings.ToLower(strings.TrimSpace(keyword)); keyword != "" {
				keywords = append(keywords, keyword)
			}
		}
		if len(keywords) == 0 {
			continue
		}
		rule.Keywords = keywords
		rules = append(rules, rule)
	}
	rules = append(rules, defaultRules...)
	return &TypeMapper{rules: rules}, nil
}
