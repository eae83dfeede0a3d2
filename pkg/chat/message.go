package chat

import (
	"fmt"
	"strings"

	goslack "github.com/slack-go/slack"

	"github.com/parley-hq/parley/pkg/models"
	"github.com/parley-hq/parley/pkg/money"
)

const maxBlockTextLength = 2900

// BuildEscalationMessage renders an escalation payload as Block Kit blocks
// plus the plain-text fallback used for notifications and screen readers.
func BuildEscalationMessage(p models.EscalationPayload) ([]goslack.Block, string) {
	var blocks []goslack.Block

	header := fmt.Sprintf(":rotating_light: *Negotiation escalated — %s* (%s)",
		p.InfluencerName, p.ClientName)
	blocks = append(blocks, markdownSection(header))

	var facts []string
	facts = append(facts, fmt.Sprintf("*Reason:* %s", p.EscalationReason))
	if p.ProposedRate != nil {
		facts = append(facts, fmt.Sprintf("*Their ask:* %s", money.FormatUSD(*p.ProposedRate)))
	}
	if p.OurRate != nil {
		facts = append(facts, fmt.Sprintf("*Our rate:* %s", money.FormatUSD(*p.OurRate)))
	}
	facts = append(facts, fmt.Sprintf("*Contact:* %s", p.InfluencerEmail))
	blocks = append(blocks, markdownSection(strings.Join(facts, "\n")))

	if p.EvidenceQuote != "" {
		blocks = append(blocks, markdownSection("> "+truncateForChat(p.EvidenceQuote)))
	}
	if p.Draft != "" {
		blocks = append(blocks, markdownSection("*Blocked draft:*\n```"+truncateForChat(p.Draft)+"```"))
	}
	if len(p.SuggestedActions) > 0 {
		var b strings.Builder
		b.WriteString("*Suggested actions:*")
		for _, action := range p.SuggestedActions {
			b.WriteString("\n• " + action)
		}
		blocks = append(blocks, markdownSection(b.String()))
	}
	if p.DetailsLink != "" {
		btn := goslack.NewButtonBlockElement("", "",
			goslack.NewTextBlockObject(goslack.PlainTextType, "View Details", false, false))
		btn.URL = p.DetailsLink
		blocks = append(blocks, goslack.NewActionBlock("", btn))
	}

	fallback := fmt.Sprintf("Negotiation escalated: %s (%s) — %s",
		p.InfluencerName, p.ClientName, p.EscalationReason)
	return blocks, fallback
}

// BuildAgreementMessage renders a closed-deal payload. Mentioned users are
// prepended so the right people get pinged.
func BuildAgreementMessage(p models.AgreementPayload) ([]goslack.Block, string) {
	var blocks []goslack.Block

	header := fmt.Sprintf(":handshake: *Deal agreed — %s* (%s)", p.InfluencerName, p.ClientName)
	if len(p.MentionUsers) > 0 {
		mentions := make([]string, len(p.MentionUsers))
		for i, u := range p.MentionUsers {
			mentions[i] = fmt.Sprintf("<@%s>", u)
		}
		header = strings.Join(mentions, " ") + "\n" + header
	}
	blocks = append(blocks, markdownSection(header))

	facts := []string{
		fmt.Sprintf("*Rate:* %s", money.FormatUSD(p.AgreedRate)),
		fmt.Sprintf("*CPM achieved:* %s", money.FormatUSD(p.CPMAchieved)),
		fmt.Sprintf("*Platform:* %s", p.Platform),
		fmt.Sprintf("*Deliverables:* %s", p.Deliverables),
		fmt.Sprintf("*Contact:* %s", p.InfluencerEmail),
	}
	blocks = append(blocks, markdownSection(strings.Join(facts, "\n")))

	if len(p.NextSteps) > 0 {
		var b strings.Builder
		b.WriteString("*Next steps:*")
		for _, step := range p.NextSteps {
			b.WriteString("\n• " + step)
		}
		blocks = append(blocks, markdownSection(b.String()))
	}

	fallback := fmt.Sprintf("Deal agreed: %s (%s) at %s",
		p.InfluencerName, p.ClientName, money.FormatUSD(p.AgreedRate))
	return blocks, fallback
}

func markdownSection(text string) goslack.Block {
	return goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, truncateForChat(text), false, false),
		nil, nil,
	)
}

func truncateForChat(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength] + "\n\n_... (truncated)_"
}
