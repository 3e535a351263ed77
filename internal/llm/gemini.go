package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiBackend calls Gemini through the google.golang.org/genai SDK.
type GeminiBackend struct {
	client   *genai.Client
	settings Settings
	config   *genai.GenerateContentConfig
}

// NewGeminiBackend creates a genai client for the Gemini API.
func NewGeminiBackend(ctx context.Context, apiKey string, s Settings) (*GeminiBackend, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiBackend{
		client:   client,
		settings: s,
		config:   generationConfig(s),
	}, nil
}

// generationConfig relaxes every safety category; sanitisation is handled by the pipeline.
func generationConfig(s Settings) *genai.GenerateContentConfig {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHateSpeech,
		genai.HarmCategoryDangerousContent,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryHarassment,
	}
	safety := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		safety = append(safety, &genai.SafetySetting{Category: c, Threshold: genai.HarmBlockThresholdOff})
	}

	return &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(s.Temperature),
		TopP:            genai.Ptr(s.TopP),
		MaxOutputTokens: s.MaxOutputTokens,
		SafetySettings:  safety,
	}
}

func (b *GeminiBackend) Name() string { return BackendGenAI + ":" + b.settings.Model }

// Generate sends prompt as a single user turn.
func (b *GeminiBackend) Generate(ctx context.Context, prompt string) (Response, error) {
	ctx, cancel := withTimeout(ctx, b.settings.Timeout)
	defer cancel()

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	resp, err := b.client.Models.GenerateContent(ctx, b.settings.Model, contents, b.config)
	if err != nil {
		return Response{}, fmt.Errorf("failed to generate content: %w", err)
	}

	out := Response{Text: resp.Text()}
	if md := resp.UsageMetadata; md != nil {
		out.Usage = Usage{
			InputTokens:  int64(md.PromptTokenCount),
			OutputTokens: int64(md.CandidatesTokenCount),
		}
	}
	return out, nil
}

// Close is a no-op; the genai client holds no resources that need releasing.
func (b *GeminiBackend) Close() error { return nil }
