package pricing

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed pricing.yaml
var pricingYAML []byte

const unknown = "unknown"

// Rule prices one model family. Multipliers are dollars per one million
// tokens.
type Rule struct {
	BaseModelName    string  `yaml:"base_model_name" koanf:"base-model-name"`
	ContextWindow    string  `yaml:"context_window" koanf:"context-window"`
	InputMultiplier  float64 `yaml:"input_multiplier" koanf:"input-multiplier"`
	OutputMultiplier float64 `yaml:"output_multiplier" koanf:"output-multiplier"`
}

// Cost returns the dollar cost of the given token counts under this rule.
func (r Rule) Cost(inputTokens, outputTokens uint64) float64 {
	return perMillion(inputTokens)*r.InputMultiplier + perMillion(outputTokens)*r.OutputMultiplier
}

func perMillion(tokens uint64) float64 {
	return float64(tokens) / 1_000_000
}

func (r Rule) validate() error {
	if strings.TrimSpace(r.BaseModelName) == "" {
		return errors.New("base model name is empty")
	}
	if r.InputMultiplier < 0 || r.OutputMultiplier < 0 {
		return fmt.Errorf("%s: negative multiplier", r.BaseModelName)
	}
	return nil
}

// Table is an ordered list of pricing rules. Order decides which rule wins
// when several base names are prefixes of the same model.
type Table struct {
	rules []Rule
}

// NewTable validates rules and returns a table holding a private copy.
func NewTable(rules []Rule) (Table, error) {
	for i, r := range rules {
		if err := r.validate(); err != nil {
			return Table{}, fmt.Errorf("pricing rule %d: %w", i, err)
		}
	}
	return Table{rules: append([]Rule(nil), rules...)}, nil
}

// ParseTable decodes a YAML list of rules.
func ParseTable(data []byte) (Table, error) {
	var rules []Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Table{}, fmt.Errorf("decode pricing table: %w", err)
	}
	return NewTable(rules)
}

// Default returns the built-in pricing table.
func Default() Table {
	t, err := ParseTable(pricingYAML)
	if err != nil {
		panic("pricing.yaml: " + err.Error())
	}
	return t
}

// Prepend returns a new table with rules placed ahead of the existing ones,
// so they take precedence on overlapping prefixes.
func (t Table) Prepend(rules []Rule) (Table, error) {
	merged := make([]Rule, 0, len(rules)+len(t.rules))
	merged = append(merged, rules...)
	merged = append(merged, t.rules...)
	return NewTable(merged)
}

// Rules returns a copy of the rules in table order.
func (t Table) Rules() []Rule {
	return append([]Rule(nil), t.rules...)
}

// Len returns the number of rules.
func (t Table) Len() int {
	return len(t.rules)
}

// NotFoundError reports a model that no rule in the table covers.
type NotFoundError struct {
	Model         string
	ContextWindow string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("pricing information is missing for model %q (context window %q)", e.Model, e.ContextWindow)
}

// Resolver maps reported model names to pricing rules.
type Resolver struct {
	table Table
}

func NewResolver(table Table) *Resolver {
	return &Resolver{table: table}
}

// Resolve returns the first rule whose base model name is a prefix of model.
// The context window is only carried into the error.
func (r *Resolver) Resolve(model, contextWindow string) (Rule, error) {
	if model != "" {
		for _, rule := range r.table.rules {
			if strings.HasPrefix(model, rule.BaseModelName) {
				return rule, nil
			}
		}
	}

	return Rule{}, &NotFoundError{
		Model:         orUnknown(model),
		ContextWindow: orUnknown(contextWindow),
	}
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}
