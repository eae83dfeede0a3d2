package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RateCard holds the CPM boundaries for one deliverable type. Immutable.
type RateCard struct {
	CPMFloor         decimal.Decimal `json:"cpm_floor" yaml:"cpm_floor"`
	CPMCeiling       decimal.Decimal `json:"cpm_ceiling" yaml:"cpm_ceiling"`
	LowRateThreshold decimal.Decimal `json:"low_rate_threshold" yaml:"low_rate_threshold"`
}

// Default rate card boundaries, in dollars CPM.
var (
	DefaultCPMFloor         = decimal.NewFromInt(20)
	DefaultCPMCeiling       = decimal.NewFromInt(30)
	DefaultLowRateThreshold = decimal.NewFromInt(15)
)

// DefaultRateCard returns the built-in boundaries: floor $20, ceiling $30,
// low-rate threshold $15.
func DefaultRateCard() RateCard {
	return RateCard{
		CPMFloor:         DefaultCPMFloor,
		CPMCeiling:       DefaultCPMCeiling,
		LowRateThreshold: DefaultLowRateThreshold,
	}
}

// Validate checks that the boundaries are ordered sensibly.
func (rc RateCard) Validate() error {
	if rc.CPMFloor.GreaterThan(rc.CPMCeiling) {
		return fmt.Errorf("rate card: floor %s exceeds ceiling %s", rc.CPMFloor, rc.CPMCeiling)
	}
	if rc.LowRateThreshold.GreaterThan(rc.CPMFloor) {
		return fmt.Errorf("rate card: low-rate threshold %s exceeds floor %s", rc.LowRateThreshold, rc.CPMFloor)
	}
	return nil
}

// RateCards maps deliverable types to their cards, falling back to the
// default card for unlisted types.
type RateCards map[DeliverableType]RateCard

// ForDeliverable returns the card for the given type, or the default card
// when none is configured.
func (rc RateCards) ForDeliverable(d DeliverableType) RateCard {
	if card, ok := rc[d]; ok {
		return card
	}
	return DefaultRateCard()
}
