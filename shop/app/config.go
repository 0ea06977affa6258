package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coreconfig "github.com/m3rciful/shopbot/core/config"
	coredatabase "github.com/m3rciful/shopbot/core/database"
	"github.com/m3rciful/shopbot/shop/commerce"
)

// Session store backends.
const (
	SessionsPostgres = "postgres"
	SessionsMemory   = "memory"
)

// SessionsConfig selects the session store backend.
type SessionsConfig struct {
	Backend string `yaml:"backend" envconfig:"SHOP_SESSIONS"`
}

// Config aggregates core transport settings with the storefront's own
// sections.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Commerce commerce.Config     `yaml:"commerce"`
	Sessions SessionsConfig      `yaml:"sessions"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// LoadConfig reads the YAML file, applies environment overrides and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	if err := cfg.Commerce.Normalize(); err != nil {
		return nil, err
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Sessions.Backend))
	if backend == "" {
		backend = SessionsPostgres
	}
	switch backend {
	case SessionsPostgres, SessionsMemory:
		cfg.Sessions.Backend = backend
	default:
		return nil, fmt.Errorf("sessions.backend must be %q or %q", SessionsPostgres, SessionsMemory)
	}

	return &cfg, nil
}
