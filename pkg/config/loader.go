package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Configuration file names inside the config directory.
const (
	parleyFileName   = "parley.yaml"
	triggersFileName = "triggers.yaml"
)

// Initialize loads, validates, and returns ready-to-use configuration.
//
// Steps performed:
//  1. Read parley.yaml from configDir (a missing file yields pure defaults)
//  2. Expand environment variables
//  3. Parse YAML into the Config struct
//  4. Merge built-in defaults underneath user values
//  5. Validate every section
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized",
		"slack", cfg.System.Slack != nil,
		"gmail", cfg.System.Gmail != nil,
		"sheets", cfg.System.Sheets != nil,
		"llm", cfg.System.LLM != nil,
		"database", cfg.Database.Path)
	return cfg, nil
}

func load(configDir string) (*Config, error) {
	cfg := &Config{configDir: configDir}

	path := filepath.Join(configDir, parleyFileName)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Warn("No parley.yaml found, using built-in defaults", "path", path)
	case err != nil:
		return nil, NewLoadError(parleyFileName, err)
	default:
		expanded := ExpandEnv(data)
		if err := yaml.Unmarshal(expanded, cfg); err != nil {
			return nil, NewLoadError(parleyFileName, err)
		}
	}

	if err := applyDefaults(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// applyDefaults merges the built-in defaults underneath whatever the file
// set; user values win.
func applyDefaults(cfg *Config) error {
	defaults := Config{
		Database:    DatabaseConfig{Path: "./data/parley.db"},
		Pricing:     DefaultPricingConfig(),
		Negotiation: DefaultNegotiationConfig(),
		Queue:       DefaultQueueConfig(),
	}
	return mergo.Merge(cfg, defaults)
}

func validate(cfg *Config) error {
	if cfg.Database.Path == "" {
		return NewValidationError("database.path", "must not be empty")
	}
	if err := cfg.Pricing.validate(); err != nil {
		return err
	}
	if _, err := cfg.Pricing.Cards(); err != nil {
		return err
	}
	if err := cfg.Negotiation.validate(); err != nil {
		return err
	}
	if err := cfg.Queue.validate(); err != nil {
		return err
	}
	if s := cfg.System.Slack; s != nil {
		if s.TokenEnv == "" || s.Channel == "" {
			return NewValidationError("system.slack", "token_env and channel are required when slack is configured")
		}
	}
	if g := cfg.System.Gmail; g != nil {
		if cfg.System.AgentEmail == "" {
			return NewValidationError("system.agent_email", "required when gmail is configured")
		}
		if g.CredentialsEnv == "" || g.TokenEnv == "" {
			return NewValidationError("system.gmail", "credentials_env and token_env are required when gmail is configured")
		}
	}
	if s := cfg.System.Sheets; s != nil {
		if s.SpreadsheetID == "" {
			return NewValidationError("system.sheets.spreadsheet_id", "required when sheets is configured")
		}
	}
	if l := cfg.System.LLM; l != nil {
		if l.APIKeyEnv == "" {
			return NewValidationError("system.llm.api_key_env", "required when llm is configured")
		}
	}
	return nil
}
