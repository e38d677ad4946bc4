package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/bernd/meter/pricing"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const DirName = "meter"

// Config holds defaults read from the user's config file. Flags given on the
// command line take precedence over every field.
type Config struct {
	TTLMinutes *int     `koanf:"ttl-minutes"`
	Since      string   `koanf:"since"`
	Providers  []string `koanf:"providers"`
	NoSymbol   bool     `koanf:"no-symbol"`
	// Pricing rules are matched before the built-in table.
	Pricing []pricing.Rule `koanf:"pricing"`
}

// Load parses the YAML config at path. A missing file yields an empty
// config so callers don't need to check existence first.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if cfg.TTLMinutes != nil && *cfg.TTLMinutes < 0 {
		return nil, fmt.Errorf("config %s: ttl-minutes must not be negative", path)
	}
	return cfg, nil
}

// PricingTable returns base with the configured rules placed in front.
func (c *Config) PricingTable(base pricing.Table) (pricing.Table, error) {
	if len(c.Pricing) == 0 {
		return base, nil
	}
	table, err := base.Prepend(c.Pricing)
	if err != nil {
		return pricing.Table{}, fmt.Errorf("config pricing: %w", err)
	}
	return table, nil
}

func DefaultPath() string {
	configDir := xdg.ConfigHome
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, DirName, "config.yaml")
}
