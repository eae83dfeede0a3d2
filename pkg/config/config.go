// Package config loads and validates the parley configuration directory:
// parley.yaml for the system settings and triggers.yaml for the escalation
// triggers (parsed by pkg/triggers). Credentials are referenced by
// environment-variable name in YAML and resolved at startup, so secrets never
// live in the config file itself.
package config

import (
	"path/filepath"
)

// Config is the umbrella configuration object returned by Initialize and
// passed to every component that needs settings.
type Config struct {
	configDir string

	System      SystemConfig      `yaml:"system"`
	Database    DatabaseConfig    `yaml:"database"`
	Pricing     PricingConfig     `yaml:"pricing"`
	Negotiation NegotiationConfig `yaml:"negotiation"`
	Queue       QueueConfig       `yaml:"queue"`
}

// ConfigDir returns the directory the configuration was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// TriggersPath returns the path of the trigger config file. The file is
// optional; pkg/triggers falls back to defaults when it is missing.
func (c *Config) TriggersPath() string {
	return filepath.Join(c.configDir, triggersFileName)
}

// DatabaseConfig locates the embedded database file.
type DatabaseConfig struct {
	// Path is the SQLite file. Parent directories are created on open.
	Path string `yaml:"path"`
}
