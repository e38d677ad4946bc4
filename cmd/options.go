package cmd

import (
	"fmt"

	"github.com/bernd/meter/cache"
	"github.com/bernd/meter/config"
	"github.com/bernd/meter/pricing"
	"github.com/bernd/meter/report"
	"github.com/bernd/meter/usage"
	"github.com/urfave/cli/v3"
)

// options is the resolved view of flags and config file for one invocation.
type options struct {
	command     string
	metric      usage.Metric
	groupBy     usage.Grouping
	sinceDays   int
	ttlMinutes  int
	providers   []usage.Provider
	creds       config.Credentials
	unformatted bool
	noSymbol    bool
	noAnimate   bool
	debug       bool

	customPricing []pricing.Rule
	table         pricing.Table
}

// loadOptions merges the config file with the flags of cmd. Flags that were
// set explicitly win over config values.
func loadOptions(cmd *cli.Command) (*options, error) {
	cfg, err := config.Load(cmd.String(configFlag))
	if err != nil {
		return nil, err
	}

	opts := &options{
		command:     cmd.Name,
		unformatted: cmd.Bool(unformattedFlag),
		noAnimate:   cmd.Bool(noAnimateFlag),
		debug:       cmd.Bool(debugFlag),
		creds: config.Credentials{
			Anthropic: cmd.String(anthropicKeyFlag),
			OpenAI:    cmd.String(openAIKeyFlag),
		},
		customPricing: cfg.Pricing,
	}

	opts.noSymbol = cmd.Bool(noSymbolFlag)
	if !cmd.IsSet(noSymbolFlag) {
		opts.noSymbol = cfg.NoSymbol
	}

	opts.ttlMinutes = cmd.Int(ttlFlag)
	if !cmd.IsSet(ttlFlag) && cfg.TTLMinutes != nil {
		opts.ttlMinutes = *cfg.TTLMinutes
	}

	since := cmd.String(sinceFlag)
	if !cmd.IsSet(sinceFlag) && cfg.Since != "" {
		since = cfg.Since
	}
	if opts.sinceDays, err = config.ParseSince(since); err != nil {
		return nil, err
	}

	names := cmd.StringSlice(providerFlag)
	if !cmd.IsSet(providerFlag) {
		names = cfg.Providers
	}
	requested, err := parseProviders(names)
	if err != nil {
		return nil, err
	}
	if opts.providers, err = config.SelectProviders(requested, opts.creds); err != nil {
		return nil, err
	}

	if opts.table, err = cfg.PricingTable(pricing.Default()); err != nil {
		return nil, err
	}
	return opts, nil
}

func parseProviders(names []string) ([]usage.Provider, error) {
	var out []usage.Provider
	for _, name := range names {
		p, err := usage.ParseProvider(name)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", providerFlag, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// cacheRequest lists everything that changes the printed output.
func (o *options) cacheRequest() cache.Request {
	req := cache.Request{
		Command:     o.command,
		Metric:      string(o.metric),
		GroupBy:     string(o.groupBy),
		Since:       fmt.Sprintf("%dd", o.sinceDays),
		Unformatted: o.unformatted,
		NoSymbol:    o.noSymbol,
		Credentials: make(map[string]string, len(o.providers)),
		Pricing:     o.customPricing,
	}
	for _, p := range o.providers {
		req.Providers = append(req.Providers, string(p))
		req.Credentials[string(p)] = o.creds.Key(p)
	}
	return req
}

func (o *options) renderOptions() report.Options {
	return report.Options{NoFormat: o.unformatted, NoSymbol: o.noSymbol}
}
