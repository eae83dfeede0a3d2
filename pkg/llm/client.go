// Package llm provides the structured-output LLM calls the negotiation
// pipeline depends on: intent classification, counter-offer composition, and
// the shared semantic trigger screen. Every call returns a fixed JSON schema;
// monetary fields travel as strings and are coerced to decimals by the
// caller-facing accessors.
package llm

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/parley-hq/parley/pkg/money"
)

// Intent is the classifier's label for an inbound reply.
type Intent string

// Intent labels.
const (
	IntentAccept              Intent = "accept"
	IntentCounter             Intent = "counter"
	IntentReject              Intent = "reject"
	IntentAmbiguous           Intent = "ambiguous"
	IntentHostileTone         Intent = "hostile_tone"
	IntentLegalLanguage       Intent = "legal_language"
	IntentUnusualDeliverables Intent = "unusual_deliverables"
)

// IsValid checks if the intent is one of the defined labels.
func (i Intent) IsValid() bool {
	switch i {
	case IntentAccept, IntentCounter, IntentReject, IntentAmbiguous,
		IntentHostileTone, IntentLegalLanguage, IntentUnusualDeliverables:
		return true
	}
	return false
}

// RequiresEscalation reports whether the label routes straight to a human.
func (i Intent) RequiresEscalation() bool {
	switch i {
	case IntentAmbiguous, IntentHostileTone, IntentLegalLanguage, IntentUnusualDeliverables:
		return true
	}
	return false
}

// IntentRequest carries the negotiation facts the classifier sees.
type IntentRequest struct {
	EmailBody       string
	InfluencerName  string
	ClientName      string
	Deliverable     string
	LastOfferedRate string
	Round           int
}

// IntentResult is the classifier's fixed output schema.
type IntentResult struct {
	Intent          Intent  `json:"intent"`
	Confidence      float64 `json:"confidence"`
	ProposedRateRaw string  `json:"proposed_rate,omitempty"`
	EvidenceQuote   string  `json:"evidence_quote,omitempty"`
}

// ProposedRate coerces the raw monetary string into a decimal. Returns nil
// when the classifier extracted no rate.
func (r IntentResult) ProposedRate() (*decimal.Decimal, error) {
	raw := strings.TrimSpace(r.ProposedRateRaw)
	if raw == "" {
		return nil, nil
	}
	d, err := money.ParseUSD(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ComposeRequest carries everything the composer needs to draft a counter.
type ComposeRequest struct {
	InfluencerName   string
	ClientName       string
	Subject          string
	Deliverable      string
	DeliverableTerms []string
	ExpectedRate     decimal.Decimal
	LastInbound      string
	Guidance         string
	Round            int
	MaxRounds        int
}

// Draft is the composer's fixed output schema.
type Draft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// ScreenRequest carries the inbound body for the shared semantic screen.
type ScreenRequest struct {
	EmailBody         string
	KnownDeliverables []string
}

// SemanticScreen is the shared trigger screen's fixed output schema: one
// boolean plus an evidence quote per semantic trigger.
type SemanticScreen struct {
	HostileTone                 bool   `json:"hostile_tone"`
	HostileToneEvidence         string `json:"hostile_tone_evidence,omitempty"`
	LegalLanguage               bool   `json:"legal_language"`
	LegalLanguageEvidence       string `json:"legal_language_evidence,omitempty"`
	UnusualDeliverables         bool   `json:"unusual_deliverables"`
	UnusualDeliverablesEvidence string `json:"unusual_deliverables_evidence,omitempty"`
}

// Client is the LLM surface the orchestrator and trigger engine consume.
// Implementations must honor context cancellation and bound every call with
// a timeout.
type Client interface {
	ClassifyIntent(ctx context.Context, req IntentRequest) (IntentResult, error)
	ComposeCounter(ctx context.Context, req ComposeRequest) (Draft, error)
	ScreenMessage(ctx context.Context, req ScreenRequest) (SemanticScreen, error)
}
