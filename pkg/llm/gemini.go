package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"
)

const (
	defaultGeminiModel = "gemini-2.0-flash"
	defaultCallTimeout = 30 * time.Second
)

// GeminiConfig configures the Gemini-backed client.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// GeminiClient implements Client against the Gemini API with structured
// output. All calls run at temperature 0 so the composer is deterministic
// across crash-replay of the same inbound.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

var _ Client = (*GeminiClient)(nil)

// NewGeminiClient creates the client once at startup; the underlying SDK
// client is safe for concurrent use.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	slog.Info("LLM client configured", "model", model, "timeout", timeout)
	return &GeminiClient{client: client, model: model, timeout: timeout}, nil
}

var intentSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"intent": {
			Type: genai.TypeString,
			Enum: []string{"accept", "counter", "reject", "ambiguous", "hostile_tone", "legal_language", "unusual_deliverables"},
		},
		"confidence": {
			Type:        genai.TypeNumber,
			Description: "How confident the classification is, 0 to 1.",
		},
		"proposed_rate": {
			Type:        genai.TypeString,
			Description: "Dollar amount the influencer quoted, exactly as written (e.g. \"$2,500\"). Empty if none.",
		},
		"evidence_quote": {
			Type:        genai.TypeString,
			Description: "Verbatim sentence supporting a hostile_tone, legal_language, or unusual_deliverables label.",
		},
	},
	Required: []string{"intent", "confidence"},
}

var draftSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"subject": {Type: genai.TypeString},
		"body":    {Type: genai.TypeString},
	},
	Required: []string{"subject", "body"},
}

var screenSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"hostile_tone":                  {Type: genai.TypeBoolean},
		"hostile_tone_evidence":         {Type: genai.TypeString},
		"legal_language":                {Type: genai.TypeBoolean},
		"legal_language_evidence":       {Type: genai.TypeString},
		"unusual_deliverables":          {Type: genai.TypeBoolean},
		"unusual_deliverables_evidence": {Type: genai.TypeString},
	},
	Required: []string{"hostile_tone", "legal_language", "unusual_deliverables"},
}

// ClassifyIntent runs the single intent-classification call.
func (c *GeminiClient) ClassifyIntent(ctx context.Context, req IntentRequest) (IntentResult, error) {
	var result IntentResult
	if err := c.generate(ctx, intentSystemPrompt, buildIntentPrompt(req), intentSchema, &result); err != nil {
		return IntentResult{}, err
	}
	if !result.Intent.IsValid() {
		return IntentResult{}, fmt.Errorf("classifier returned unknown intent %q", result.Intent)
	}
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}
	slog.Debug("Classified intent",
		"influencer", req.InfluencerName,
		"intent", result.Intent,
		"confidence", result.Confidence)
	return result, nil
}

// ComposeCounter drafts the counter-offer email. The draft always passes
// through the validation gate before any send.
func (c *GeminiClient) ComposeCounter(ctx context.Context, req ComposeRequest) (Draft, error) {
	var draft Draft
	if err := c.generate(ctx, composeSystemPrompt, buildComposePrompt(req), draftSchema, &draft); err != nil {
		return Draft{}, err
	}
	if draft.Body == "" {
		return Draft{}, fmt.Errorf("composer returned an empty body")
	}
	return draft, nil
}

// ScreenMessage runs the one shared semantic-trigger call.
func (c *GeminiClient) ScreenMessage(ctx context.Context, req ScreenRequest) (SemanticScreen, error) {
	var screen SemanticScreen
	if err := c.generate(ctx, screenSystemPrompt, buildScreenPrompt(req), screenSchema, &screen); err != nil {
		return SemanticScreen{}, err
	}
	return screen, nil
}

func (c *GeminiClient) generate(ctx context.Context, system, prompt string, schema *genai.Schema, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(0)),
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), config)
	if err != nil {
		return fmt.Errorf("gemini generation failed: %w", err)
	}
	return decodeStructured(result.Text(), out)
}
