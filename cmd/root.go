package cmd

import (
	"fmt"

	"github.com/bernd/meter/config"
	"github.com/urfave/cli/v3"
)

const (
	debugFlag        = "debug"
	noAnimateFlag    = "no-animate"
	unformattedFlag  = "unformatted"
	noSymbolFlag     = "no-symbol"
	ttlFlag          = "ttl-minutes"
	sinceFlag        = "since"
	providerFlag     = "provider"
	anthropicKeyFlag = "anthropic-admin-api-key"
	openAIKeyFlag    = "openai-admin-api-key"
	configFlag       = "config"
)

const (
	defaultTTLMinutes = 1
	defaultSince      = "0d"
)

func RootCommand() *cli.Command {
	return &cli.Command{
		Name:            "meter",
		Usage:           "Sum up token usage and cost of LLM provider APIs",
		Description:     "Reads the admin usage APIs and caches each answer for a short while.",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  debugFlag,
				Usage: "Enable debug output",
			},
			&cli.BoolFlag{
				Name:  noAnimateFlag,
				Usage: "Do not show the progress animation",
			},
			&cli.BoolFlag{
				Name:  unformattedFlag,
				Usage: "Print money unrounded and without symbol, JSON without indentation",
			},
			&cli.BoolFlag{
				Name:  noSymbolFlag,
				Usage: "Omit the currency symbol",
			},
			&cli.IntFlag{
				Name:  ttlFlag,
				Usage: "Minutes a cached answer stays valid (0 disables reuse)",
				Value: defaultTTLMinutes,
				Validator: func(v int) error {
					if v < 0 {
						return fmt.Errorf("--%s must not be negative", ttlFlag)
					}
					return nil
				},
			},
			&cli.StringFlag{
				Name:  sinceFlag,
				Usage: "Start of the time window in days before today (e.g. 7d)",
				Value: defaultSince,
			},
			&cli.StringSliceFlag{
				Name:    providerFlag,
				Aliases: []string{"p"},
				Usage:   "Providers to query (anthropic, openai); default is every provider with a key",
			},
			&cli.StringFlag{
				Name:    anthropicKeyFlag,
				Usage:   "Anthropic admin API key",
				Sources: cli.EnvVars(config.AnthropicKeyEnv),
			},
			&cli.StringFlag{
				Name:    openAIKeyFlag,
				Usage:   "OpenAI admin API key",
				Sources: cli.EnvVars(config.OpenAIKeyEnv),
			},
			&cli.StringFlag{
				Name:  configFlag,
				Usage: "Path to the config file",
				Value: config.DefaultPath(),
			},
		},
		Commands: []*cli.Command{
			SumCommand(),
			RawCommand(),
		},
	}
}
