package usage

import (
	"fmt"
	"strings"
)

// Provider identifies the upstream API a bucket came from.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// Providers lists every supported provider in display order.
var Providers = []Provider{ProviderAnthropic, ProviderOpenAI}

// ParseProvider validates a provider name.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Providers {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("invalid provider %q (expected anthropic or openai)", s)
}

// Entry is one grouped usage measurement reported by a provider.
type Entry struct {
	UncachedInputTokens  uint64 `json:"uncached_input_tokens"`
	CacheReadInputTokens uint64 `json:"cache_read_input_tokens"`
	OutputTokens         uint64 `json:"output_tokens"`
	// Model as reported upstream, possibly with a date suffix. Empty if
	// the provider did not group by model.
	Model string `json:"model"`
	// ContextWindow is a range label such as "0-200k". Empty if absent.
	ContextWindow string `json:"context_window,omitempty"`
}

// Bucket is a time window of usage entries. Start is inclusive, End is
// exclusive, both in seconds since the epoch.
type Bucket struct {
	Start    int64    `json:"start"`
	End      int64    `json:"end"`
	Results  []Entry  `json:"results"`
	Provider Provider `json:"provider"`
}

// Key groups usage after price resolution. Model is the base model name of
// the matched pricing rule, not the reported string.
type Key struct {
	Provider Provider
	Model    string
}

// Collapsed holds running token totals for one Key. The zero value is the
// identity for Add.
type Collapsed struct {
	UncachedInputTokens  uint64
	CacheReadInputTokens uint64
	OutputTokens         uint64
}

// Add returns the field-wise sum of c and o.
func (c Collapsed) Add(o Collapsed) Collapsed {
	return Collapsed{
		UncachedInputTokens:  c.UncachedInputTokens + o.UncachedInputTokens,
		CacheReadInputTokens: c.CacheReadInputTokens + o.CacheReadInputTokens,
		OutputTokens:         c.OutputTokens + o.OutputTokens,
	}
}

// FromEntry lifts an entry's counters into a Collapsed value.
func FromEntry(e Entry) Collapsed {
	return Collapsed{
		UncachedInputTokens:  e.UncachedInputTokens,
		CacheReadInputTokens: e.CacheReadInputTokens,
		OutputTokens:         e.OutputTokens,
	}
}

// InputTokens is the billable input. Cache creation tokens are not counted.
func (c Collapsed) InputTokens() uint64 {
	return c.UncachedInputTokens + c.CacheReadInputTokens
}

// TotalTokens is billable input plus output.
func (c Collapsed) TotalTokens() uint64 {
	return c.InputTokens() + c.OutputTokens
}
