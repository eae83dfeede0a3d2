package config

import (
	"fmt"

	"github.com/parley-hq/parley/pkg/models"
	"github.com/parley-hq/parley/pkg/money"
)

// PricingConfig holds the CPM boundaries. Values are YAML numbers and are
// coerced to decimals through their string form before any money math.
type PricingConfig struct {
	CPMFloor         float64 `yaml:"cpm_floor"`
	CPMCeiling       float64 `yaml:"cpm_ceiling"`
	LowRateThreshold float64 `yaml:"low_rate_threshold"`

	// RateCards overrides boundaries per deliverable type.
	RateCards map[string]RateCardYAML `yaml:"rate_cards,omitempty"`
}

// RateCardYAML is one per-deliverable override. Omitted fields inherit the
// default card.
type RateCardYAML struct {
	CPMFloor         *float64 `yaml:"cpm_floor,omitempty"`
	CPMCeiling       *float64 `yaml:"cpm_ceiling,omitempty"`
	LowRateThreshold *float64 `yaml:"low_rate_threshold,omitempty"`
}

// DefaultPricingConfig returns the built-in boundaries: floor $20, ceiling
// $30, low-rate threshold $15.
func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		CPMFloor:         20,
		CPMCeiling:       30,
		LowRateThreshold: 15,
	}
}

// DefaultCard converts the configured boundaries into the domain rate card.
func (p PricingConfig) DefaultCard() models.RateCard {
	return models.RateCard{
		CPMFloor:         money.FromCoercedFloat(p.CPMFloor),
		CPMCeiling:       money.FromCoercedFloat(p.CPMCeiling),
		LowRateThreshold: money.FromCoercedFloat(p.LowRateThreshold),
	}
}

// Cards converts the per-deliverable overrides into domain rate cards,
// rejecting unknown deliverable types so typos in parley.yaml surface at
// startup.
func (p PricingConfig) Cards() (models.RateCards, error) {
	if len(p.RateCards) == 0 {
		return models.RateCards{}, nil
	}
	base := p.DefaultCard()
	cards := make(models.RateCards, len(p.RateCards))
	for name, y := range p.RateCards {
		d := models.DeliverableType(name)
		if !d.IsValid() {
			return nil, NewValidationError("pricing.rate_cards", fmt.Sprintf("unknown deliverable type %q", name))
		}
		card := base
		if y.CPMFloor != nil {
			card.CPMFloor = money.FromCoercedFloat(*y.CPMFloor)
		}
		if y.CPMCeiling != nil {
			card.CPMCeiling = money.FromCoercedFloat(*y.CPMCeiling)
		}
		if y.LowRateThreshold != nil {
			card.LowRateThreshold = money.FromCoercedFloat(*y.LowRateThreshold)
		}
		if err := card.Validate(); err != nil {
			return nil, NewValidationError("pricing.rate_cards."+name, err.Error())
		}
		cards[d] = card
	}
	return cards, nil
}

func (p PricingConfig) validate() error {
	if p.CPMFloor <= 0 {
		return NewValidationError("pricing.cpm_floor", "must be positive")
	}
	if p.CPMCeiling < p.CPMFloor {
		return NewValidationError("pricing.cpm_ceiling", "must be at or above cpm_floor")
	}
	if p.LowRateThreshold <= 0 || p.LowRateThreshold > p.CPMFloor {
		return NewValidationError("pricing.low_rate_threshold", "must be positive and at most cpm_floor")
	}
	return nil
}
