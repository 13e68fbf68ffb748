package inference

import (
	"context"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model name is configured.
const DefaultGeminiModel = "gemini-1.5-flash"

// GeminiGateway calls the Gemini API directly instead of going through a
// deployed chat function. The client reads GEMINI_API_KEY from the
// environment.
type GeminiGateway struct {
	Model string
}

// NewGeminiGateway creates a gateway for the given model name. An empty
// name falls back to DefaultGeminiModel.
func NewGeminiGateway(model string) *GeminiGateway {
	return &GeminiGateway{Model: model}
}

// Complete sends one prompt and returns the model's text reply.
func (g *GeminiGateway) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	client, err := genai.NewClient(ctx, nil)
	if err != nil {
		return "", &InferenceError{Message: "failed to create Gemini client", Err: err}
	}

	model := g.Model
	if model == "" {
		model = DefaultGeminiModel
	}

	result, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", &InferenceError{Message: "completion request failed", Err: err}
	}

	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", &InferenceError{Message: "no completion in response"}
	}

	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", &InferenceError{Message: "empty completion in response"}
	}

	return sb.String(), nil
}
