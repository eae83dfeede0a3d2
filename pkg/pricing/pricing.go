// Package pricing implements the deterministic CPM rate engine: rate
// computation from view counts and boundary classification of proposed rates.
// Pure and side-effect free; monetary math is decimal end to end.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/parley-hq/parley/pkg/models"
	"github.com/parley-hq/parley/pkg/money"
)

// cpmPrecision bounds implied-CPM division so comparisons are deterministic.
const cpmPrecision = 6

// PricingError reports invalid pricing inputs.
type PricingError struct {
	Op     string
	Reason string
}

func (e *PricingError) Error() string {
	return fmt.Sprintf("pricing: %s: %s", e.Op, e.Reason)
}

// Boundary classifies a proposed rate against the rate card.
type Boundary string

// Boundary verdicts.
const (
	BoundaryWithinRange     Boundary = "within_range"
	BoundaryExceedsCeiling  Boundary = "exceeds_ceiling"
	BoundaryBelowFloor      Boundary = "below_floor"
	BoundarySuspiciouslyLow Boundary = "suspiciously_low"
)

// RatePreference selects which point of the rate card to price at.
type RatePreference string

// Rate preferences.
const (
	PreferFloor    RatePreference = "floor"
	PreferCeiling  RatePreference = "ceiling"
	PreferMidpoint RatePreference = "midpoint"
)

// IsValid checks if the preference is one of the supported values.
func (p RatePreference) IsValid() bool {
	return p == PreferFloor || p == PreferCeiling || p == PreferMidpoint
}

// Result is the engine's verdict on a proposed rate.
type Result struct {
	Rate           decimal.Decimal `json:"rate"`
	CPM            decimal.Decimal `json:"cpm"`
	Boundary       Boundary        `json:"boundary"`
	ShouldEscalate bool            `json:"should_escalate"`
	Warning        string          `json:"warning,omitempty"`
}

// Engine computes rates against per-deliverable rate cards.
type Engine struct {
	defaultCard models.RateCard
	cards       models.RateCards
}

// NewEngine builds an engine with the given default card and per-deliverable
// overrides. A zero-value default card falls back to the built-in boundaries.
func NewEngine(defaultCard models.RateCard, cards models.RateCards) *Engine {
	if defaultCard.CPMFloor.IsZero() && defaultCard.CPMCeiling.IsZero() {
		defaultCard = models.DefaultRateCard()
	}
	if cards == nil {
		cards = models.RateCards{}
	}
	return &Engine{defaultCard: defaultCard, cards: cards}
}

// DefaultCard returns the engine's default rate card.
func (e *Engine) DefaultCard() models.RateCard {
	return e.defaultCard
}

// CardFor returns the rate card for the deliverable type, falling back to the
// engine default.
func (e *Engine) CardFor(d models.DeliverableType) models.RateCard {
	if card, ok := e.cards[d]; ok {
		return card
	}
	return e.defaultCard
}

// CalculateRate computes (views / 1000) × cpm, quantized to cents with
// round-half-up. Fails when views is not positive or cpm is negative.
func (e *Engine) CalculateRate(views int64, cpm decimal.Decimal) (decimal.Decimal, error) {
	if views <= 0 {
		return decimal.Decimal{}, &PricingError{Op: "calculate_rate", Reason: fmt.Sprintf("views must be positive, got %d", views)}
	}
	if cpm.IsNegative() {
		return decimal.Decimal{}, &PricingError{Op: "calculate_rate", Reason: fmt.Sprintf("cpm must not be negative, got %s", cpm)}
	}
	rate := decimal.NewFromInt(views).Mul(cpm).Div(money.Thousand)
	return money.RoundCents(rate), nil
}

// CalculateInitialOffer prices the opening offer at the default card's floor.
func (e *Engine) CalculateInitialOffer(views int64) (decimal.Decimal, error) {
	return e.CalculateRate(views, e.defaultCard.CPMFloor)
}

// CalculateCPMFromRate inverts CalculateRate: rate ÷ (views / 1000).
func (e *Engine) CalculateCPMFromRate(rate decimal.Decimal, views int64) (decimal.Decimal, error) {
	if views <= 0 {
		return decimal.Decimal{}, &PricingError{Op: "calculate_cpm_from_rate", Reason: fmt.Sprintf("views must be positive, got %d", views)}
	}
	return rate.Mul(money.Thousand).DivRound(decimal.NewFromInt(views), cpmPrecision), nil
}

// CalculateDeliverableRate prices a deliverable at the chosen point of its
// rate card.
func (e *Engine) CalculateDeliverableRate(d models.DeliverableType, views int64, pref RatePreference) (decimal.Decimal, error) {
	card := e.CardFor(d)
	var cpm decimal.Decimal
	switch pref {
	case PreferFloor:
		cpm = card.CPMFloor
	case PreferCeiling:
		cpm = card.CPMCeiling
	case PreferMidpoint:
		cpm = card.CPMFloor.Add(card.CPMCeiling).DivRound(decimal.NewFromInt(2), cpmPrecision)
	default:
		return decimal.Decimal{}, &PricingError{Op: "calculate_deliverable_rate", Reason: fmt.Sprintf("unknown rate preference %q", pref)}
	}
	return e.CalculateRate(views, cpm)
}

// EvaluateProposedRate classifies a proposed rate against explicit
// boundaries. Comparisons are strict: a rate implying exactly the ceiling or
// exactly the floor is within range.
func EvaluateProposedRate(proposed decimal.Decimal, views int64, floor, ceiling, lowThreshold decimal.Decimal) (Result, error) {
	if views <= 0 {
		return Result{}, &PricingError{Op: "evaluate_proposed_rate", Reason: fmt.Sprintf("views must be positive, got %d", views)}
	}
	implied := proposed.Mul(money.Thousand).DivRound(decimal.NewFromInt(views), cpmPrecision)

	res := Result{Rate: proposed, CPM: implied, Boundary: BoundaryWithinRange}
	switch {
	case implied.GreaterThan(ceiling):
		res.Boundary = BoundaryExceedsCeiling
		res.ShouldEscalate = true
		res.Warning = fmt.Sprintf("proposed rate implies %s CPM, exceeds %s ceiling",
			money.FormatUSD(implied), money.FormatUSD(ceiling))
	case implied.LessThan(lowThreshold):
		res.Boundary = BoundarySuspiciouslyLow
		res.Warning = fmt.Sprintf("proposed rate implies %s CPM, under the %s low threshold; possible misunderstanding of terms",
			money.FormatUSD(implied), money.FormatUSD(lowThreshold))
	case implied.LessThan(floor):
		res.Boundary = BoundaryBelowFloor
	}
	return res, nil
}

// Evaluate classifies a proposed rate against the deliverable's rate card.
func (e *Engine) Evaluate(proposed decimal.Decimal, views int64, d models.DeliverableType) (Result, error) {
	card := e.CardFor(d)
	return EvaluateProposedRate(proposed, views, card.CPMFloor, card.CPMCeiling, card.LowRateThreshold)
}
