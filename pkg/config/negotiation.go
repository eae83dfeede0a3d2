package config

import "time"

// NegotiationConfig bounds the negotiation lifecycle.
type NegotiationConfig struct {
	// MaxRounds caps receive-reply / send-counter cycles per thread; hitting
	// the cap escalates instead of countering again.
	MaxRounds int `yaml:"max_rounds"`

	// IntentConfidenceThreshold is the strict lower bound below which a
	// classification is overridden to ambiguous.
	IntentConfidenceThreshold float64 `yaml:"intent_confidence_threshold"`

	// ReplyTimeout is how long a negotiation may sit in awaiting_reply or
	// counter_sent before the sweeper marks it stale.
	ReplyTimeout time.Duration `yaml:"reply_timeout"`

	// SweepInterval is how often the stale sweeper runs.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DefaultNegotiationConfig returns the built-in lifecycle bounds.
func DefaultNegotiationConfig() NegotiationConfig {
	return NegotiationConfig{
		MaxRounds:                 3,
		IntentConfidenceThreshold: 0.70,
		ReplyTimeout:              120 * time.Hour,
		SweepInterval:             1 * time.Hour,
	}
}

func (n NegotiationConfig) validate() error {
	if n.MaxRounds <= 0 {
		return NewValidationError("negotiation.max_rounds", "must be positive")
	}
	if n.IntentConfidenceThreshold < 0 || n.IntentConfidenceThreshold > 1 {
		return NewValidationError("negotiation.intent_confidence_threshold", "must be in [0, 1]")
	}
	if n.ReplyTimeout <= 0 {
		return NewValidationError("negotiation.reply_timeout", "must be positive")
	}
	if n.SweepInterval <= 0 {
		return NewValidationError("negotiation.sweep_interval", "must be positive")
	}
	return nil
}
