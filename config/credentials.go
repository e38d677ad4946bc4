package config

import (
	"fmt"
	"slices"

	"github.com/bernd/meter/usage"
)

const (
	AnthropicKeyEnv = "ANTHROPIC_ADMIN_API_KEY"
	OpenAIKeyEnv    = "OPENAI_ADMIN_API_KEY"
)

// Credentials holds the admin API keys per provider.
type Credentials struct {
	Anthropic string
	OpenAI    string
}

// Key returns the key for p, or "" if none is configured.
func (c Credentials) Key(p usage.Provider) string {
	switch p {
	case usage.ProviderAnthropic:
		return c.Anthropic
	case usage.ProviderOpenAI:
		return c.OpenAI
	}
	return ""
}

// MissingKeyError reports a selected provider without an API key.
type MissingKeyError struct {
	Provider usage.Provider
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("%s API key not found; set %s or pass the matching flag", e.Provider, keyEnv(e.Provider))
}

func keyEnv(p usage.Provider) string {
	if p == usage.ProviderOpenAI {
		return OpenAIKeyEnv
	}
	return AnthropicKeyEnv
}

// SelectProviders decides which providers to query. Explicitly requested
// providers must all have keys. Without a request, every provider that has
// a key is used and the rest are skipped.
func SelectProviders(requested []usage.Provider, creds Credentials) ([]usage.Provider, error) {
	if len(requested) > 0 {
		var out []usage.Provider
		for _, p := range usage.Providers {
			if !slices.Contains(requested, p) {
				continue
			}
			if creds.Key(p) == "" {
				return nil, &MissingKeyError{Provider: p}
			}
			out = append(out, p)
		}
		return out, nil
	}

	var out []usage.Provider
	for _, p := range usage.Providers {
		if creds.Key(p) != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no API key found; set %s or %s", AnthropicKeyEnv, OpenAIKeyEnv)
	}
	return out, nil
}
