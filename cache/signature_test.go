package cache

import (
	"regexp"
	"testing"

	"github.com/bernd/meter/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignature(t *testing.T) {
	base := Request{
		Command:   "sum",
		Metric:    "cost",
		Since:     "0d",
		Providers: []string{"anthropic", "openai"},
		Credentials: map[string]string{
			"anthropic": "sk-ant-admin",
			"openai":    "sk-admin",
		},
	}

	sig, err := Signature(base)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{1,16}$`), sig)

	t.Run("stable across calls", func(t *testing.T) {
		again, err := Signature(base)
		require.NoError(t, err)
		assert.Equal(t, sig, again)
	})

	t.Run("provider order and duplicates do not matter", func(t *testing.T) {
		req := base
		req.Providers = []string{"openai", "anthropic", "openai"}
		other, err := Signature(req)
		require.NoError(t, err)
		assert.Equal(t, sig, other)
	})

	t.Run("does not mutate caller slice", func(t *testing.T) {
		providers := []string{"openai", "anthropic"}
		req := base
		req.Providers = providers
		_, err := Signature(req)
		require.NoError(t, err)
		assert.Equal(t, []string{"openai", "anthropic"}, providers)
	})

	changes := map[string]func(r *Request){
		"command":     func(r *Request) { r.Command = "raw" },
		"metric":      func(r *Request) { r.Metric = "tokens" },
		"group by":    func(r *Request) { r.GroupBy = "model" },
		"since":       func(r *Request) { r.Since = "7d" },
		"providers":   func(r *Request) { r.Providers = []string{"anthropic"} },
		"unformatted": func(r *Request) { r.Unformatted = true },
		"no symbol":   func(r *Request) { r.NoSymbol = true },
		"credentials": func(r *Request) { r.Credentials = map[string]string{"anthropic": "other"} },
		"pricing": func(r *Request) {
			r.Pricing = []pricing.Rule{{BaseModelName: "claude", InputMultiplier: 1, OutputMultiplier: 2}}
		},
	}
	for name, change := range changes {
		t.Run(name+" changes signature", func(t *testing.T) {
			req := base
			change(&req)
			other, err := Signature(req)
			require.NoError(t, err)
			assert.NotEqual(t, sig, other)
		})
	}
}
