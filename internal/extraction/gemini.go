package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"visioncraft/internal/logging"
	"visioncraft/internal/vision"
)

// Extractor produces a validated extraction batch from one user message.
// The current state is supplied so the model can mark values it infers from
// earlier turns as contextual rather than direct.
type Extractor interface {
	Extract(ctx context.Context, message string, current vision.BusinessState) (Result, error)
}

// =============================================================================
// GEMINI EXTRACTOR
// =============================================================================

const extractionPrompt = `You extract structured business facts from a conversation turn.

Known business state so far:
%s

User message:
%s

Return ONLY a JSON object of this exact shape:
{
  "extracted_fields": {
    "<field_name>": {
      "value": <string, number, or array of strings>,
      "confidence": <0.0-1.0>,
      "source_span": "<the message fragment the value came from>",
      "extraction_method": "direct" | "inferred" | "contextual"
    }
  },
  "custom_fields": { ...same shape, for facts with no standard field... }
}

Standard field names: company_name, industry, target_market, employee_count,
value_proposition, products_services, business_goals, competitive_advantage,
revenue_model, annual_revenue, growth_rate, customer_count, key_milestones,
key_partnerships, company_values, brand_voice.

Use "direct" for facts stated outright, "inferred" for facts implied by this
message, "contextual" for facts that only follow from earlier state. Omit
fields the message says nothing about. Never invent values.`

// GeminiExtractor calls the Gemini API in JSON mode and validates the
// response through Validate.
type GeminiExtractor struct {
	client *genai.Client
	model  string
}

// NewGeminiExtractor creates an extractor backed by the Gemini API.
func NewGeminiExtractor(ctx context.Context, apiKey, model string) (*GeminiExtractor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiExtractor{client: client, model: model}, nil
}

// Extract sends one message to the model and validates whatever comes back.
// A transport failure is an error; a malformed model response is a Degraded
// result, not an error.
func (e *GeminiExtractor) Extract(ctx context.Context, message string, current vision.BusinessState) (Result, error) {
	timer := logging.StartTimer(logging.CategoryAPI, "Extract")
	defer timer.Stop()

	prompt := fmt.Sprintf(extractionPrompt, stateSummary(current), message)

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	resp, err := e.client.Models.GenerateContent(ctx, e.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.1),
	})
	if err != nil {
		return Result{}, fmt.Errorf("gemini extraction failed: %w", err)
	}

	text := resp.Text()
	logging.APIDebug("extraction response: %d bytes", len(text))

	return Validate(text), nil
}

// stateSummary renders the known state compactly for the prompt. JSON keeps
// the model grounded in what is already known without a bespoke format.
func stateSummary(state vision.BusinessState) string {
	if len(state) == 0 {
		return "(empty)"
	}
	data, err := json.Marshal(state)
	if err != nil {
		return "(unavailable)"
	}
	return strings.TrimSpace(string(data))
}
