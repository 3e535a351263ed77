// Package publish delivers a selected digest: to local files, to a Substack draft or to a chat
// webhook.
package publish

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DefaultTitleSuffix follows the date in every digest title.
const DefaultTitleSuffix = "Hong Kong News Digest"

// Provider names accepted by configuration.
const (
	ProviderFile     = "file"
	ProviderSubstack = "substack"
	ProviderNone     = "none"
)

// ErrDraftFailed is returned when a Substack draft could not be created or checked.
var ErrDraftFailed = errors.New("substack draft failed")

// Publisher delivers a markdown digest and returns where it went (a path or URL).
type Publisher interface {
	Publish(ctx context.Context, title, markdown string) (string, error)
	Name() string
}

// Title formats the digest title for date, e.g. "March 04, 2025 Hong Kong News Digest".
func Title(date time.Time, suffix string) string {
	if suffix == "" {
		suffix = DefaultTitleSuffix
	}
	return date.Format("January 02, 2006") + " " + suffix
}

var headingRe = regexp.MustCompile(`(?m)^## +(.+?)\s*$`)

// Topics lists the second-level headings of a digest in order.
func Topics(markdown string) []string {
	var out []string
	for _, m := range headingRe.FindAllStringSubmatch(markdown, -1) {
		out = append(out, m[1])
	}
	return out
}

// Subtitle is the "Topics: a, b" line shown under the title.
func Subtitle(markdown string) string {
	topics := Topics(markdown)
	if len(topics) == 0 {
		return ""
	}
	return "Topics: " + strings.Join(topics, ", ")
}

// Chain publishes to each publisher in order and stops at the first failure. Later publishers
// with a SetLink method are given the first publisher's location.
type Chain []Publisher

// Publish implements Publisher. The returned location is the first publisher's.
func (c Chain) Publish(ctx context.Context, title, markdown string) (string, error) {
	var first string
	for i, p := range c {
		if l, ok := p.(interface{ SetLink(string) }); ok && i > 0 {
			l.SetLink(first)
		}
		loc, err := p.Publish(ctx, title, markdown)
		if err != nil {
			return first, fmt.Errorf("%s: %w", p.Name(), err)
		}
		if i == 0 {
			first = loc
		}
	}
	return first, nil
}

// Name implements Publisher.
func (c Chain) Name() string {
	names := make([]string, 0, len(c))
	for _, p := range c {
		names = append(names, p.Name())
	}
	return strings.Join(names, "+")
}
