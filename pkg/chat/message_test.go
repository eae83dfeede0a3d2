package chat

import (
	"strings"
	"testing"

	goslack "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-hq/parley/pkg/models"
	"github.com/parley-hq/parley/pkg/money"
)

func sectionTexts(t *testing.T, blocks []goslack.Block) []string {
	t.Helper()
	var texts []string
	for _, b := range blocks {
		if s, ok := b.(*goslack.SectionBlock); ok && s.Text != nil {
			texts = append(texts, s.Text.Text)
		}
	}
	return texts
}

func TestBuildEscalationMessage(t *testing.T) {
	proposed := money.MustFromString("2500")
	our := money.MustFromString("1650")
	blocks, fallback := BuildEscalationMessage(models.EscalationPayload{
		InfluencerName:   "Ava Chen",
		InfluencerEmail:  "ava@example.com",
		ClientName:       "Acme Cold Brew",
		EscalationReason: "Proposed rate exceeds approved ceiling",
		EvidenceQuote:    "My rate for a dedicated video is $2,500.",
		ProposedRate:     &proposed,
		OurRate:          &our,
		SuggestedActions: []string{"Approve the higher rate", "Hold at ceiling"},
		DetailsLink:      "https://dash.example.com/t/abc",
		Draft:            "Hi Ava, thanks for the quick reply...",
	})

	joined := strings.Join(sectionTexts(t, blocks), "\n---\n")
	assert.Contains(t, joined, "Ava Chen")
	assert.Contains(t, joined, "Proposed rate exceeds approved ceiling")
	assert.Contains(t, joined, "$2,500.00")
	assert.Contains(t, joined, "$1,650.00")
	assert.Contains(t, joined, "My rate for a dedicated video")
	assert.Contains(t, joined, "Blocked draft")
	assert.Contains(t, joined, "Approve the higher rate")

	// Last block is the details button.
	action, ok := blocks[len(blocks)-1].(*goslack.ActionBlock)
	require.True(t, ok)
	btn, ok := action.Elements.ElementSet[0].(*goslack.ButtonBlockElement)
	require.True(t, ok)
	assert.Equal(t, "https://dash.example.com/t/abc", btn.URL)

	assert.Contains(t, fallback, "Ava Chen")
	assert.Contains(t, fallback, "exceeds approved ceiling")
}

func TestBuildEscalationMessageOmitsEmptySections(t *testing.T) {
	blocks, _ := BuildEscalationMessage(models.EscalationPayload{
		InfluencerName:   "Ava Chen",
		InfluencerEmail:  "ava@example.com",
		ClientName:       "Acme",
		EscalationReason: "hostile language detected",
	})
	// Header and facts only: no quote, draft, actions, or button.
	assert.Len(t, blocks, 2)
}

func TestBuildAgreementMessage(t *testing.T) {
	blocks, fallback := BuildAgreementMessage(models.AgreementPayload{
		InfluencerName:  "Marco Diaz",
		InfluencerEmail: "marco@example.com",
		ClientName:      "Acme Cold Brew",
		AgreedRate:      money.MustFromString("3200"),
		Platform:        models.PlatformYouTube,
		Deliverables:    "1x dedicated video",
		CPMAchieved:     money.MustFromString("26.67"),
		ThreadID:        "thread-42",
		NextSteps:       []string{"Send contract", "Schedule brief"},
		MentionUsers:    []string{"U123", "U456"},
	})

	joined := strings.Join(sectionTexts(t, blocks), "\n---\n")
	assert.Contains(t, joined, "<@U123> <@U456>")
	assert.Contains(t, joined, "$3,200.00")
	assert.Contains(t, joined, "$26.67")
	assert.Contains(t, joined, "Send contract")
	assert.Contains(t, fallback, "Marco Diaz")
	assert.Contains(t, fallback, "$3,200.00")
}

func TestTruncateForChat(t *testing.T) {
	long := strings.Repeat("x", maxBlockTextLength+100)
	got := truncateForChat(long)
	assert.Less(t, len(got), len(long))
	assert.Contains(t, got, "truncated")

	short := "short text"
	assert.Equal(t, short, truncateForChat(short))
}
