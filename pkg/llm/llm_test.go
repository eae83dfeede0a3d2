package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopspring/decimal"
)

func TestDecodeStructuredStrictJSON(t *testing.T) {
	var result IntentResult
	raw := `{"intent":"counter","confidence":0.9,"proposed_rate":"$2,500"}`
	require.NoError(t, decodeStructured(raw, &result))
	assert.Equal(t, IntentCounter, result.Intent)
	assert.Equal(t, 0.9, result.Confidence)
	assert.Equal(t, "$2,500", result.ProposedRateRaw)
}

func TestDecodeStructuredRepairsSloppyOutput(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{name: "markdown fence", raw: "```json\n{\"intent\":\"accept\",\"confidence\":0.95}\n```"},
		{name: "trailing comma", raw: `{"intent":"accept","confidence":0.95,}`},
		{name: "single quotes", raw: `{'intent':'accept','confidence':0.95}`},
		{name: "unquoted keys", raw: `{intent: "accept", confidence: 0.95}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var result IntentResult
			require.NoError(t, decodeStructured(tc.raw, &result))
			assert.Equal(t, IntentAccept, result.Intent)
			assert.Equal(t, 0.95, result.Confidence)
		})
	}
}

func TestDecodeStructuredFailsOnGarbage(t *testing.T) {
	var result IntentResult
	assert.Error(t, decodeStructured("I think they want more money", &result))
}

func TestIntentResultProposedRate(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantNil bool
		wantErr bool
	}{
		{name: "dollar with commas", raw: "$2,500", want: "2500"},
		{name: "plain number", raw: "1200", want: "1200"},
		{name: "with cents", raw: "$1,234.56", want: "1234.56"},
		{name: "absent", raw: "", wantNil: true},
		{name: "whitespace only", raw: "  ", wantNil: true},
		{name: "garbage", raw: "two grand", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := IntentResult{ProposedRateRaw: tt.raw}
			got, err := res.ProposedRate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(*got), "got %s", got)
		})
	}
}

func TestIntentLabels(t *testing.T) {
	for _, intent := range []Intent{IntentAccept, IntentCounter, IntentReject, IntentAmbiguous,
		IntentHostileTone, IntentLegalLanguage, IntentUnusualDeliverables} {
		assert.True(t, intent.IsValid())
	}
	assert.False(t, Intent("haggle").IsValid())

	assert.False(t, IntentAccept.RequiresEscalation())
	assert.False(t, IntentCounter.RequiresEscalation())
	assert.False(t, IntentReject.RequiresEscalation())
	assert.True(t, IntentAmbiguous.RequiresEscalation())
	assert.True(t, IntentHostileTone.RequiresEscalation())
	assert.True(t, IntentLegalLanguage.RequiresEscalation())
	assert.True(t, IntentUnusualDeliverables.RequiresEscalation())
}

func TestBuildIntentPrompt(t *testing.T) {
	prompt := buildIntentPrompt(IntentRequest{
		EmailBody:       "I can do it for $2,500.",
		InfluencerName:  "Dana Park",
		ClientName:      "Glow Cosmetics",
		Deliverable:     "Instagram reel",
		LastOfferedRate: "$2,000.00",
		Round:           1,
	})
	assert.Contains(t, prompt, "Dana Park")
	assert.Contains(t, prompt, "Glow Cosmetics")
	assert.Contains(t, prompt, "$2,000.00")
	assert.Contains(t, prompt, "I can do it for $2,500.")
	assert.Contains(t, prompt, "proposed_rate")
}

func TestBuildComposePromptPinsExpectedRate(t *testing.T) {
	prompt := buildComposePrompt(ComposeRequest{
		InfluencerName:   "Dana Park",
		ClientName:       "Glow Cosmetics",
		Deliverable:      "Instagram reel",
		DeliverableTerms: []string{"Instagram reel", "usage rights"},
		ExpectedRate:     decimal.NewFromInt(2000),
		LastInbound:      "Could you do $2,500?",
		Guidance:         "Anchor low, concede slowly.",
		Round:            1,
		MaxRounds:        3,
	})
	assert.Contains(t, prompt, "$2,000.00")
	assert.Contains(t, prompt, "no other dollar figures")
	assert.Contains(t, prompt, "Round 1 of 3")
	assert.Contains(t, prompt, "usage rights")
	assert.Contains(t, prompt, "Anchor low, concede slowly.")
}

func TestBuildScreenPromptListsDeliverables(t *testing.T) {
	prompt := buildScreenPrompt(ScreenRequest{
		EmailBody:         "My lawyer will review the contract.",
		KnownDeliverables: []string{"Instagram post", "TikTok video"},
	})
	assert.Contains(t, prompt, "Instagram post, TikTok video")
	assert.Contains(t, prompt, "legal_language")
	assert.Contains(t, prompt, "My lawyer will review the contract.")
}
