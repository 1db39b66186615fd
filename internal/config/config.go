// Package config loads the extractor's YAML run configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/twinfer/stdf-plugin/pkg/extract"
)

// Config is the on-disk run configuration. Every field has a usable
// zero value, so an empty or missing file means defaults.
type Config struct {
	// OrphanPolicy: "bucket" (default) attaches results without an open
	// part to a synthetic unknown-part row; "drop" discards them.
	OrphanPolicy string `yaml:"orphan_policy"`
	// LimitPolicy: "first-wins" (default) or "last-wins" for
	// conflicting limit redefinitions.
	LimitPolicy string `yaml:"limit_policy"`
	// Filter is an optional row filter expression.
	Filter string `yaml:"filter"`
	// OutputDir receives the generated files; empty means alongside
	// each input.
	OutputDir string `yaml:"output_dir"`
	// DecodeAhead > 0 enables decode-ahead with that channel depth.
	DecodeAhead int `yaml:"decode_ahead"`
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the enumerated fields.
func (c *Config) Validate() error {
	switch c.OrphanPolicy {
	case "", "bucket", "drop":
	default:
		return fmt.Errorf("orphan_policy must be \"bucket\" or \"drop\", got %q", c.OrphanPolicy)
	}
	switch c.LimitPolicy {
	case "", "first-wins", "last-wins":
	default:
		return fmt.Errorf("limit_policy must be \"first-wins\" or \"last-wins\", got %q", c.LimitPolicy)
	}
	if c.DecodeAhead < 0 {
		return fmt.Errorf("decode_ahead must not be negative, got %d", c.DecodeAhead)
	}
	return nil
}

// Policies converts the string fields to assembler policies.
func (c *Config) Policies() extract.Policies {
	p := extract.Policies{}
	if c.OrphanPolicy == "drop" {
		p.Orphan = extract.OrphanDrop
	}
	if c.LimitPolicy == "last-wins" {
		p.Limit = extract.LimitLastWins
	}
	return p
}
