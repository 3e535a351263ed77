package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultModel is the Gemini model used when none is configured.
	DefaultModel = "gemini-2.5-flash"

	// BackendGenAI selects the google.golang.org/genai SDK.
	BackendGenAI = "genai"
	// BackendLegacy selects the github.com/google/generative-ai-go SDK.
	BackendLegacy = "legacy"
)

// ErrMissingAPIKey is returned when a backend is built without credentials.
var ErrMissingAPIKey = errors.New("gemini API key is required. Set GEMINI_API_KEY environment variable or ai.gemini.api_key in config file")

// Usage is the token accounting for one or more calls.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Add returns the sum of two usages.
func (u Usage) Add(o Usage) Usage {
	return Usage{InputTokens: u.InputTokens + o.InputTokens, OutputTokens: u.OutputTokens + o.OutputTokens}
}

// Response is the raw result of one backend call.
type Response struct {
	Text  string
	Usage Usage
}

// Backend performs a single, unretried generation call.
type Backend interface {
	Generate(ctx context.Context, prompt string) (Response, error)
	Name() string
	Close() error
}

// Settings are the fixed generation parameters shared by every call of a run.
type Settings struct {
	Model           string
	Temperature     float32
	TopP            float32
	MaxOutputTokens int32
	Timeout         time.Duration // per call; zero means no timeout
}

// DefaultSettings returns the generation parameters used by the digest pipeline.
func DefaultSettings() Settings {
	return Settings{
		Model:           DefaultModel,
		Temperature:     1,
		TopP:            0.95,
		MaxOutputTokens: 65536,
		Timeout:         5 * time.Minute,
	}
}

// NewBackend builds the backend named by kind.
func NewBackend(ctx context.Context, kind, apiKey string, s Settings) (Backend, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if s.Model == "" {
		s.Model = DefaultModel
	}
	switch kind {
	case "", BackendGenAI:
		return NewGeminiBackend(ctx, apiKey, s)
	case BackendLegacy:
		return NewLegacyBackend(ctx, apiKey, s)
	}
	return nil, fmt.Errorf("unknown llm backend %q (want %s or %s)", kind, BackendGenAI, BackendLegacy)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
