package triggers

import (
	"log/slog"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/parley-hq/parley/pkg/money"
)

// Built-in trigger defaults.
const (
	DefaultCeilingCPM          = 30
	DefaultConfidenceThreshold = 0.70
)

// CPMTriggerConfig configures the deterministic CPM trigger.
type CPMTriggerConfig struct {
	Enabled    bool
	CeilingCPM decimal.Decimal
}

// IntentTriggerConfig configures the deterministic intent-confidence trigger.
type IntentTriggerConfig struct {
	Enabled             bool
	ConfidenceThreshold float64
}

// Config is the resolved trigger configuration.
type Config struct {
	CPMOverThreshold    CPMTriggerConfig
	AmbiguousIntent     IntentTriggerConfig
	HostileTone         bool
	LegalLanguage       bool
	UnusualDeliverables bool
}

// SemanticEnabled reports whether at least one semantic trigger is on, which
// decides if the shared LLM screen runs at all.
func (c Config) SemanticEnabled() bool {
	return c.HostileTone || c.LegalLanguage || c.UnusualDeliverables
}

// DefaultConfig returns all triggers enabled with built-in thresholds.
func DefaultConfig() Config {
	return Config{
		CPMOverThreshold:    CPMTriggerConfig{Enabled: true, CeilingCPM: decimal.NewFromInt(DefaultCeilingCPM)},
		AmbiguousIntent:     IntentTriggerConfig{Enabled: true, ConfidenceThreshold: DefaultConfidenceThreshold},
		HostileTone:         true,
		LegalLanguage:       true,
		UnusualDeliverables: true,
	}
}

// YAML shapes. Pointers distinguish "omitted" from "set to false/zero" so a
// partial file only overrides what it mentions.
type triggersFileYAML struct {
	Triggers *triggersYAML `yaml:"triggers"`
}

type triggersYAML struct {
	CPMOverThreshold    *cpmTriggerYAML      `yaml:"cpm_over_threshold"`
	AmbiguousIntent     *intentTriggerYAML   `yaml:"ambiguous_intent"`
	HostileTone         *semanticTriggerYAML `yaml:"hostile_tone"`
	LegalLanguage       *semanticTriggerYAML `yaml:"legal_language"`
	UnusualDeliverables *semanticTriggerYAML `yaml:"unusual_deliverables"`
}

type cpmTriggerYAML struct {
	Enabled    *bool    `yaml:"enabled"`
	CeilingCPM *float64 `yaml:"ceiling_cpm"`
}

type intentTriggerYAML struct {
	Enabled             *bool    `yaml:"enabled"`
	ConfidenceThreshold *float64 `yaml:"confidence_threshold"`
}

type semanticTriggerYAML struct {
	Enabled *bool `yaml:"enabled"`
}

// LoadConfig reads the trigger file and resolves it over the defaults. A
// missing, empty, or malformed file falls back to all-defaults with every
// trigger enabled; an editing mistake must never disable escalation.
func LoadConfig(path string) Config {
	defaults := DefaultConfig()
	if path == "" {
		return defaults
	}

	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("Trigger config unreadable, using defaults", "path", path, "error", err)
		return defaults
	}
	if strings.TrimSpace(string(data)) == "" {
		slog.Warn("Trigger config empty, using defaults", "path", path)
		return defaults
	}

	var file triggersFileYAML
	if err := yaml.Unmarshal(data, &file); err != nil {
		slog.Warn("Trigger config malformed, using defaults", "path", path, "error", err)
		return defaults
	}
	if file.Triggers == nil {
		slog.Warn("Trigger config missing triggers section, using defaults", "path", path)
		return defaults
	}

	cfg, err := resolve(defaults, file.Triggers)
	if err != nil {
		slog.Warn("Trigger config invalid, using defaults", "path", path, "error", err)
		return defaults
	}
	return cfg
}

func resolve(cfg Config, y *triggersYAML) (Config, error) {
	if t := y.CPMOverThreshold; t != nil {
		if t.Enabled != nil {
			cfg.CPMOverThreshold.Enabled = *t.Enabled
		}
		if t.CeilingCPM != nil {
			if *t.CeilingCPM <= 0 {
				return Config{}, &InvalidConfigError{Field: "cpm_over_threshold.ceiling_cpm", Reason: "must be positive"}
			}
			cfg.CPMOverThreshold.CeilingCPM = money.FromCoercedFloat(*t.CeilingCPM)
		}
	}
	if t := y.AmbiguousIntent; t != nil {
		if t.Enabled != nil {
			cfg.AmbiguousIntent.Enabled = *t.Enabled
		}
		if t.ConfidenceThreshold != nil {
			if *t.ConfidenceThreshold < 0 || *t.ConfidenceThreshold > 1 {
				return Config{}, &InvalidConfigError{Field: "ambiguous_intent.confidence_threshold", Reason: "must be in [0, 1]"}
			}
			cfg.AmbiguousIntent.ConfidenceThreshold = *t.ConfidenceThreshold
		}
	}
	if t := y.HostileTone; t != nil && t.Enabled != nil {
		cfg.HostileTone = *t.Enabled
	}
	if t := y.LegalLanguage; t != nil && t.Enabled != nil {
		cfg.LegalLanguage = *t.Enabled
	}
	if t := y.UnusualDeliverables; t != nil && t.Enabled != nil {
		cfg.UnusualDeliverables = *t.Enabled
	}
	return cfg, nil
}

// InvalidConfigError reports a trigger config value outside its legal range.
type InvalidConfigError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return "trigger config field " + e.Field + " " + e.Reason
}
