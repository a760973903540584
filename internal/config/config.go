package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"trialqc/internal/rules"
)

// Config holds site-wide defaults loaded from a YAML file: severity level
// definitions and auto-close rules applied when a request does not supply
// its own.
type Config struct {
	SeverityLevels map[string]rules.SeverityLevel `yaml:"severity_levels"`
	AutoCloseRules map[string]rules.AutoCloseRule `yaml:"auto_close_rules"`
	CacheTTL       int                            `yaml:"cache_ttl_seconds"`
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	if len(c.SeverityLevels) == 0 {
		c.SeverityLevels = rules.DefaultSeverityLevels()
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 3600
	}
	return c
}

// Default returns the built-in configuration used when no config file is
// given.
func Default() Config {
	return Config{}.withDefaults()
}
