// Package triggers decides when an inbound email must be routed to a human.
// Deterministic checks run first because they are free; the three semantic
// checks share a single LLM call that is skipped entirely when none of them
// is enabled or no LLM client is configured.
package triggers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/parley-hq/parley/pkg/llm"
	"github.com/parley-hq/parley/pkg/money"
)

// Type identifies one escalation trigger.
type Type string

// Trigger types.
const (
	TypeCPMOverThreshold    Type = "cpm_over_threshold"
	TypeAmbiguousIntent     Type = "ambiguous_intent"
	TypeHostileTone         Type = "hostile_tone"
	TypeLegalLanguage       Type = "legal_language"
	TypeUnusualDeliverables Type = "unusual_deliverables"
)

// Result is the verdict for one trigger. Every evaluation returns all five,
// fired or not, so callers and the audit trail see the full picture.
type Result struct {
	Type     Type   `json:"type"`
	Fired    bool   `json:"fired"`
	Reason   string `json:"reason,omitempty"`
	Evidence string `json:"evidence,omitempty"`
}

// Input carries the facts the triggers inspect. IntentConfidence is nil
// before the classifier has run, so the pre-check pass cannot fire the
// ambiguous-intent trigger.
type Input struct {
	EmailBody         string
	ProposedCPM       decimal.Decimal
	IntentConfidence  *float64
	KnownDeliverables []string
}

// Engine evaluates the configured triggers against an inbound email.
type Engine struct {
	config Config
	llm    llm.Client
}

// NewEngine builds an engine. A nil LLM client disables the semantic screen;
// the deterministic triggers still run.
func NewEngine(config Config, client llm.Client) *Engine {
	return &Engine{config: config, llm: client}
}

// Config returns the engine's resolved configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Evaluate runs deterministic triggers first, then the shared semantic
// screen when at least one semantic trigger is enabled. Comparisons are
// strict: values exactly at a threshold do not fire. A disabled trigger
// never fires.
func (e *Engine) Evaluate(ctx context.Context, input Input) ([]Result, error) {
	results := []Result{
		e.evaluateCPM(input),
		e.evaluateIntentConfidence(input),
	}

	semantic, err := e.evaluateSemantic(ctx, input)
	if err != nil {
		return nil, err
	}
	return append(results, semantic...), nil
}

func (e *Engine) evaluateCPM(input Input) Result {
	res := Result{Type: TypeCPMOverThreshold}
	cfg := e.config.CPMOverThreshold
	if !cfg.Enabled || input.ProposedCPM.IsZero() {
		return res
	}
	if input.ProposedCPM.GreaterThan(cfg.CeilingCPM) {
		res.Fired = true
		res.Reason = fmt.Sprintf("proposed CPM %s exceeds the %s ceiling",
			money.FormatUSD(input.ProposedCPM), money.FormatUSD(cfg.CeilingCPM))
	}
	return res
}

func (e *Engine) evaluateIntentConfidence(input Input) Result {
	res := Result{Type: TypeAmbiguousIntent}
	cfg := e.config.AmbiguousIntent
	if !cfg.Enabled || input.IntentConfidence == nil {
		return res
	}
	if *input.IntentConfidence < cfg.ConfidenceThreshold {
		res.Fired = true
		res.Reason = fmt.Sprintf("intent confidence %.2f below the %.2f threshold",
			*input.IntentConfidence, cfg.ConfidenceThreshold)
	}
	return res
}

func (e *Engine) evaluateSemantic(ctx context.Context, input Input) ([]Result, error) {
	results := []Result{
		{Type: TypeHostileTone},
		{Type: TypeLegalLanguage},
		{Type: TypeUnusualDeliverables},
	}
	if !e.config.SemanticEnabled() || e.llm == nil {
		return results, nil
	}

	screen, err := e.llm.ScreenMessage(ctx, llm.ScreenRequest{
		EmailBody:         input.EmailBody,
		KnownDeliverables: input.KnownDeliverables,
	})
	if err != nil {
		return nil, fmt.Errorf("semantic trigger screen failed: %w", err)
	}

	// A flag without a verbatim quote is not actionable evidence; treat it
	// as not fired rather than escalating on an unsupported claim.
	if e.config.HostileTone && screen.HostileTone && screen.HostileToneEvidence != "" {
		results[0].Fired = true
		results[0].Reason = "hostile or threatening tone detected"
		results[0].Evidence = screen.HostileToneEvidence
	}
	if e.config.LegalLanguage && screen.LegalLanguage && screen.LegalLanguageEvidence != "" {
		results[1].Fired = true
		results[1].Reason = "contract or legal language detected"
		results[1].Evidence = screen.LegalLanguageEvidence
	}
	if e.config.UnusualDeliverables && screen.UnusualDeliverables && screen.UnusualDeliverablesEvidence != "" {
		results[2].Fired = true
		results[2].Reason = "request outside the defined deliverable types"
		results[2].Evidence = screen.UnusualDeliverablesEvidence
	}

	for _, res := range results {
		if res.Fired {
			slog.Info("Semantic trigger fired", "trigger", res.Type, "evidence", res.Evidence)
		}
	}
	return results, nil
}

// AnyFired reports whether any trigger in the list fired.
func AnyFired(results []Result) bool {
	for _, res := range results {
		if res.Fired {
			return true
		}
	}
	return false
}

// FiredResults filters the list down to triggers that fired.
func FiredResults(results []Result) []Result {
	var fired []Result
	for _, res := range results {
		if res.Fired {
			fired = append(fired, res)
		}
	}
	return fired
}
