// Package llm wraps a Gemini backend with language directives, fenced-JSON extraction, schema
// validation and a bounded retry budget.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"time"

	"github.com/yf-chau/news-summary/internal/core"
	"github.com/yf-chau/news-summary/internal/logger"
	"github.com/yf-chau/news-summary/internal/retry"
	"github.com/yf-chau/news-summary/internal/schema"
)

var (
	// ErrEmptyPrompt is returned without calling the backend.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")
	// ErrGenerationFailed wraps the last cause once the retry budget is spent.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrEmptyResponse marks a backend reply with no text.
	ErrEmptyResponse = errors.New("empty response from model")
)

var directives = map[core.Language]string{
	core.TraditionalChinese: "**所有輸出都必須使用繁體中文。**\n\n",
	core.SimplifiedChinese:  "**所有输出都必须使用简体中文。**\n\n",
	core.English:            "**All output should be in English only.**\n\n",
}

// Directive returns the instruction prepended to every prompt for lang.
func Directive(lang core.Language) (string, error) {
	d, ok := directives[lang]
	if !ok {
		return "", fmt.Errorf("no language directive for %q", lang)
	}
	return d, nil
}

// Check is a semantic test run on a decoded document. A non-nil error fails the attempt and
// consumes retry budget like any other failure.
type Check func() error

// Client issues generation calls under a retry policy.
type Client struct {
	backend     Backend
	policy      retry.Policy
	diagnostics string

	inputTokens  atomic.Int64
	outputTokens atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithPolicy overrides the default retry policy.
func WithPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithDiagnosticsPath sets the file written when a call fails terminally.
func WithDiagnosticsPath(path string) Option {
	return func(c *Client) { c.diagnostics = path }
}

// NewClient wraps backend.
func NewClient(backend Backend, opts ...Option) *Client {
	c := &Client{backend: backend, policy: retry.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Clone returns a client sharing the backend and policy but with its own diagnostics path and
// usage counters.
func (c *Client) Clone(diagnosticsPath string) *Client {
	return &Client{backend: c.backend, policy: c.policy, diagnostics: diagnosticsPath}
}

// Usage returns the tokens consumed by this client so far.
func (c *Client) Usage() Usage {
	return Usage{InputTokens: c.inputTokens.Load(), OutputTokens: c.outputTokens.Load()}
}

// Close releases the backend.
func (c *Client) Close() error { return c.backend.Close() }

// GenerateText returns the stripped text response.
func (c *Client) GenerateText(ctx context.Context, prompt string, lang core.Language) (string, error) {
	var out string
	err := c.generate(ctx, prompt, lang, func(raw string) error {
		if raw == "" {
			return ErrEmptyResponse
		}
		out = raw
		return nil
	})
	return out, err
}

// GenerateStructured decodes the response's fenced JSON block into doc after validating it
// against doc's schema. Checks run after decoding, in order.
func (c *Client) GenerateStructured(ctx context.Context, prompt string, lang core.Language, doc schema.Document, checks ...Check) error {
	return c.generate(ctx, prompt, lang, func(raw string) error {
		block, err := ExtractJSON(raw)
		if err != nil {
			return err
		}
		reset(doc)
		if err := schema.Decode([]byte(block), doc); err != nil {
			return err
		}
		for _, check := range checks {
			if err := check(); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *Client) generate(ctx context.Context, prompt string, lang core.Language, accept func(raw string) error) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}
	directive, err := Directive(lang)
	if err != nil {
		return err
	}
	full := directive + prompt

	var lastRaw string
	err = c.policy.Do(ctx, func(attempt int) error {
		resp, err := c.backend.Generate(ctx, full)
		if err != nil {
			lastRaw = ""
			return err
		}
		c.inputTokens.Add(resp.Usage.InputTokens)
		c.outputTokens.Add(resp.Usage.OutputTokens)
		logger.Info("Token usage",
			"backend", c.backend.Name(),
			"attempt", attempt,
			"input_tokens", resp.Usage.InputTokens,
			"output_tokens", resp.Usage.OutputTokens)

		lastRaw = strings.TrimSpace(resp.Text)
		return accept(lastRaw)
	}, func(attempt int, err error, wait time.Duration) {
		logger.Warn("Generation attempt failed, retrying",
			"attempt", attempt,
			"error", err.Error(),
			"wait", wait.String())
	})
	if err == nil {
		return nil
	}

	c.writeDiagnostics(prompt, lastRaw, err)
	return fmt.Errorf("%w: %w", ErrGenerationFailed, err)
}

func (c *Client) writeDiagnostics(prompt, response string, cause error) {
	if c.diagnostics == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.diagnostics), 0o755); err != nil {
		logger.Error("Failed to create diagnostics directory", err, "path", c.diagnostics)
		return
	}
	body := fmt.Sprintf("Prompt: %s\n\n Response: %s\n\n Error: %v", prompt, response, cause)
	if err := os.WriteFile(c.diagnostics, []byte(body), 0o644); err != nil {
		logger.Error("Failed to write diagnostics", err, "path", c.diagnostics)
		return
	}
	logger.Warn("Generation failed, diagnostics written", "path", c.diagnostics)
}

// reset zeroes the value doc points to so a retried decode starts clean.
func reset(doc schema.Document) {
	v := reflect.ValueOf(doc)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return
	}
	v.Elem().Set(reflect.Zero(v.Elem().Type()))
}
