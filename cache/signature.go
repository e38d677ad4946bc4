package cache

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/bernd/meter/pricing"
	"github.com/cespare/xxhash/v2"
)

// Request is the content-affecting part of an invocation. Anything that
// changes the rendered output belongs here. Cosmetic and cache-control
// settings (animation, TTL, debug output) must not.
type Request struct {
	Command     string   `json:"command"`
	Metric      string   `json:"metric,omitempty"`
	GroupBy     string   `json:"group_by,omitempty"`
	Since       string   `json:"since"`
	Providers   []string `json:"providers"`
	Unformatted bool     `json:"unformatted"`
	NoSymbol    bool     `json:"no_symbol"`
	// Credentials maps provider to API key, so two keys on one machine
	// never share an entry. Only the hash of the request is stored.
	Credentials map[string]string `json:"credentials,omitempty"`
	// Pricing holds user-supplied rules. The built-in table is fixed per
	// build and left out.
	Pricing []pricing.Rule `json:"pricing,omitempty"`
}

// Signature returns a short hex digest identifying req. Provider order and
// duplicates do not change the result.
func Signature(req Request) (string, error) {
	req.Providers = normalize(req.Providers)

	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("serialize request: %w", err)
	}
	return fmt.Sprintf("%x", xxhash.Sum64(data)), nil
}

func normalize(values []string) []string {
	out := slices.Clone(values)
	slices.Sort(out)
	return slices.Compact(out)
}
