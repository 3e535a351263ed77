package llm

import (
	"context"
	"fmt"
	"strings"

	legacygenai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// LegacyBackend calls Gemini through the older generative-ai-go SDK. It is kept for
// accounts and proxies that only work with that client.
type LegacyBackend struct {
	client   *legacygenai.Client
	model    *legacygenai.GenerativeModel
	settings Settings
}

// NewLegacyBackend creates a generative-ai-go client and configures its model.
func NewLegacyBackend(ctx context.Context, apiKey string, s Settings) (*LegacyBackend, error) {
	client, err := legacygenai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create legacy Gemini client: %w", err)
	}

	model := client.GenerativeModel(s.Model)
	model.SetTemperature(s.Temperature)
	model.SetTopP(s.TopP)
	model.SetMaxOutputTokens(s.MaxOutputTokens)
	model.SafetySettings = []*legacygenai.SafetySetting{
		{Category: legacygenai.HarmCategoryHateSpeech, Threshold: legacygenai.HarmBlockNone},
		{Category: legacygenai.HarmCategoryDangerousContent, Threshold: legacygenai.HarmBlockNone},
		{Category: legacygenai.HarmCategorySexuallyExplicit, Threshold: legacygenai.HarmBlockNone},
		{Category: legacygenai.HarmCategoryHarassment, Threshold: legacygenai.HarmBlockNone},
	}

	return &LegacyBackend{client: client, model: model, settings: s}, nil
}

func (b *LegacyBackend) Name() string { return BackendLegacy + ":" + b.settings.Model }

// Generate concatenates the text parts of the first candidate.
func (b *LegacyBackend) Generate(ctx context.Context, prompt string) (Response, error) {
	ctx, cancel := withTimeout(ctx, b.settings.Timeout)
	defer cancel()

	resp, err := b.model.GenerateContent(ctx, legacygenai.Text(prompt))
	if err != nil {
		return Response{}, fmt.Errorf("failed to generate content: %w", err)
	}

	var out Response
	if md := resp.UsageMetadata; md != nil {
		out.Usage = Usage{
			InputTokens:  int64(md.PromptTokenCount),
			OutputTokens: int64(md.CandidatesTokenCount),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out, nil
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(legacygenai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	out.Text = sb.String()
	return out, nil
}

func (b *LegacyBackend) Close() error { return b.client.Close() }
