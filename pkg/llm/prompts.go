package llm

import (
	"fmt"
	"strings"

	"github.com/parley-hq/parley/pkg/money"
)

const intentSystemPrompt = `You classify replies in influencer rate negotiations for a marketing agency.
Read the influencer's latest email and decide their intent. When the intent is
hostile_tone, legal_language, or unusual_deliverables, copy the exact sentence
from the email into evidence_quote. Respond with JSON matching the requested schema.`

const composeSystemPrompt = `You draft short, warm, professional negotiation emails on behalf of an
influencer marketing agency. State exactly one dollar figure: the offered rate
you are given, written with thousands separators and two-decimal cents (for
example $2,000.00). Never invent other numbers, discounts, or fees. Respond
with JSON matching the requested schema.`

const screenSystemPrompt = `You review inbound negotiation emails for escalation signals. For each
category answer true only when the email clearly shows it, and copy the exact
sentence into the matching evidence field. Respond with JSON matching the
requested schema.`

func buildIntentPrompt(req IntentRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Client: %s\n", req.ClientName)
	fmt.Fprintf(&b, "Influencer: %s\n", req.InfluencerName)
	fmt.Fprintf(&b, "Deliverable: %s\n", req.Deliverable)
	fmt.Fprintf(&b, "Negotiation round: %d\n", req.Round)
	if req.LastOfferedRate != "" {
		fmt.Fprintf(&b, "Our last offered rate: %s\n", req.LastOfferedRate)
	}
	b.WriteString("\nLatest reply from the influencer:\n---\n")
	b.WriteString(req.EmailBody)
	b.WriteString("\n---\n\n")
	b.WriteString("Classify the intent as one of: accept, counter, reject, ambiguous, hostile_tone, legal_language, unusual_deliverables.\n")
	b.WriteString("If they quote a dollar amount for their rate, set proposed_rate to that amount exactly as written.\n")
	b.WriteString("Set confidence between 0 and 1.\n")
	return b.String()
}

func buildComposePrompt(req ComposeRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Client: %s\n", req.ClientName)
	fmt.Fprintf(&b, "Influencer: %s\n", req.InfluencerName)
	fmt.Fprintf(&b, "Deliverable: %s\n", req.Deliverable)
	fmt.Fprintf(&b, "Offer to extend: %s (this exact figure must appear in the body; no other dollar figures)\n", money.FormatUSD(req.ExpectedRate))
	if req.MaxRounds > 0 {
		fmt.Fprintf(&b, "Round %d of %d.\n", req.Round, req.MaxRounds)
	}
	if req.Subject != "" {
		fmt.Fprintf(&b, "Thread subject: %s\n", req.Subject)
	}
	if req.LastInbound != "" {
		b.WriteString("\nTheir latest reply:\n---\n")
		b.WriteString(req.LastInbound)
		b.WriteString("\n---\n")
	}
	if len(req.DeliverableTerms) > 0 {
		fmt.Fprintf(&b, "\nDeliverable terms to restate: %s\n", strings.Join(req.DeliverableTerms, ", "))
	}
	if req.Guidance != "" {
		b.WriteString("\nGuidance from the negotiation playbook:\n")
		b.WriteString(req.Guidance)
		b.WriteString("\n")
	}
	b.WriteString("\nKeep the reply under 150 words, reference something specific from their message, and close with a clear ask.\n")
	return b.String()
}

func buildScreenPrompt(req ScreenRequest) string {
	var b strings.Builder
	if len(req.KnownDeliverables) > 0 {
		fmt.Fprintf(&b, "Known deliverable types: %s\n", strings.Join(req.KnownDeliverables, ", "))
	}
	b.WriteString("\nEmail:\n---\n")
	b.WriteString(req.EmailBody)
	b.WriteString("\n---\n\n")
	b.WriteString("Categories:\n")
	b.WriteString("- hostile_tone: threats, hostility, public callouts, condescension.\n")
	b.WriteString("- legal_language: contracts, lawyers, legal review, exclusivity clauses.\n")
	b.WriteString("- unusual_deliverables: requests outside the known deliverable types.\n")
	return b.String()
}
