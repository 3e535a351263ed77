// Package llmtest provides a scripted llm.Backend for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/yf-chau/news-summary/internal/llm"
)

// Backend answers calls from a script. It is safe for concurrent use.
type Backend struct {
	mu      sync.Mutex
	respond func(call int, prompt string) (string, error)
	prompts []string
}

// Func builds a backend whose replies are computed by fn. call is 1-based.
func Func(fn func(call int, prompt string) (string, error)) *Backend {
	return &Backend{respond: fn}
}

// Replies returns each text in turn and repeats the last one once the script runs out.
func Replies(texts ...string) *Backend {
	return Func(func(call int, _ string) (string, error) {
		if len(texts) == 0 {
			return "", nil
		}
		if call > len(texts) {
			return texts[len(texts)-1], nil
		}
		return texts[call-1], nil
	})
}

// JSON wraps body in a fenced json block the way the model replies.
func JSON(body string) string {
	return "Here is the result:\n```json\n" + body + "\n```\n"
}

func (b *Backend) Generate(ctx context.Context, prompt string) (llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return llm.Response{}, err
	}
	b.mu.Lock()
	b.prompts = append(b.prompts, prompt)
	call := len(b.prompts)
	b.mu.Unlock()

	text, err := b.respond(call, prompt)
	if err != nil {
		return llm.Response{}, err
	}
	return llm.Response{
		Text:  text,
		Usage: llm.Usage{InputTokens: int64(len(strings.Fields(prompt))), OutputTokens: int64(len(strings.Fields(text)))},
	}, nil
}

func (b *Backend) Name() string { return "scripted" }

func (b *Backend) Close() error { return nil }

// Calls returns how many times Generate was called.
func (b *Backend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.prompts)
}

// Prompts returns a copy of every prompt received, in call order.
func (b *Backend) Prompts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.prompts...)
}
