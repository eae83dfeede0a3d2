package models

import "github.com/shopspring/decimal"

// EscalationPayload is the structured message handed to the chat layer when a
// negotiation needs a human decision.
type EscalationPayload struct {
	InfluencerName   string           `json:"influencer_name"`
	InfluencerEmail  string           `json:"influencer_email"`
	ClientName       string           `json:"client_name"`
	EscalationReason string           `json:"escalation_reason"`
	EvidenceQuote    string           `json:"evidence_quote,omitempty"`
	ProposedRate     *decimal.Decimal `json:"proposed_rate,omitempty"`
	OurRate          *decimal.Decimal `json:"our_rate,omitempty"`
	SuggestedActions []string         `json:"suggested_actions"`
	DetailsLink      string           `json:"details_link,omitempty"`
	Draft            string           `json:"draft,omitempty"`
}

// AgreementPayload is the structured message posted when a deal closes.
type AgreementPayload struct {
	InfluencerName  string          `json:"influencer_name"`
	InfluencerEmail string          `json:"influencer_email"`
	ClientName      string          `json:"client_name"`
	AgreedRate      decimal.Decimal `json:"agreed_rate"`
	Platform        Platform        `json:"platform"`
	Deliverables    string          `json:"deliverables"`
	CPMAchieved     decimal.Decimal `json:"cpm_achieved"`
	ThreadID        string          `json:"thread_id"`
	NextSteps       []string        `json:"next_steps"`
	MentionUsers    []string        `json:"mention_users,omitempty"`
}
