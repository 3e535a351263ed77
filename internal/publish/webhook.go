package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Platform is a chat service that accepts incoming webhooks.
type Platform string

const (
	PlatformSlack   Platform = "slack"
	PlatformDiscord Platform = "discord"
)

// SlackMessage represents a Slack message structure
type SlackMessage struct {
	Text   string       `json:"text,omitempty"`
	Blocks []SlackBlock `json:"blocks,omitempty"`
}

// SlackBlock represents a Slack block kit element
type SlackBlock struct {
	Type string     `json:"type"`
	Text *SlackText `json:"text,omitempty"`
}

// SlackText represents text in Slack blocks
type SlackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// DiscordMessage represents a Discord message structure
type DiscordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []DiscordEmbed `json:"embeds,omitempty"`
}

// DiscordEmbed represents a Discord embed
type DiscordEmbed struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	Color       int    `json:"color,omitempty"`
}

// Webhook announces a published digest on Slack or Discord: the title, the topic list and a
// link to where the digest went.
type Webhook struct {
	Platform   Platform
	URL        string
	Link       string // announced with the digest; Chain sets it to the first publisher's location
	HTTPClient *http.Client
}

// NewWebhook validates the webhook URL for platform.
func NewWebhook(platform Platform, url string) (*Webhook, error) {
	if err := ValidateWebhookURL(platform, url); err != nil {
		return nil, err
	}
	return &Webhook{
		Platform:   platform,
		URL:        url,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// ValidateWebhookURL validates webhook URL format
func ValidateWebhookURL(platform Platform, url string) error {
	if url == "" {
		return fmt.Errorf("webhook URL cannot be empty")
	}

	switch platform {
	case PlatformSlack:
		if !strings.HasPrefix(url, "https://hooks.slack.com/") {
			return fmt.Errorf("invalid Slack webhook URL format")
		}
	case PlatformDiscord:
		if !strings.HasPrefix(url, "https://discord.com/api/webhooks/") && !strings.HasPrefix(url, "https://discordapp.com/api/webhooks/") {
			return fmt.Errorf("invalid Discord webhook URL format")
		}
	default:
		return fmt.Errorf("unsupported platform: %s", platform)
	}

	return nil
}

// SetLink sets the location announced with the digest.
func (w *Webhook) SetLink(link string) { w.Link = link }

// Name implements Publisher.
func (w *Webhook) Name() string { return string(w.Platform) }

// Publish implements Publisher. It returns the webhook platform name.
func (w *Webhook) Publish(ctx context.Context, title, markdown string) (string, error) {
	var msg any
	switch w.Platform {
	case PlatformSlack:
		msg = w.slackMessage(title, markdown)
	case PlatformDiscord:
		msg = w.discordMessage(title, markdown)
	default:
		return "", fmt.Errorf("unsupported platform: %s", w.Platform)
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s message: %w", w.Platform, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send %s message: %w", w.Platform, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%s webhook returned status %d: %s", w.Platform, resp.StatusCode, string(body))
	}

	return string(w.Platform), nil
}

func bulletList(markdown string) string {
	var sb strings.Builder
	for _, t := range Topics(markdown) {
		sb.WriteString("• ")
		sb.WriteString(t)
		sb.WriteString("\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func (w *Webhook) slackMessage(title, markdown string) *SlackMessage {
	msg := &SlackMessage{
		Text: title,
		Blocks: []SlackBlock{
			{Type: "header", Text: &SlackText{Type: "plain_text", Text: title}},
		},
	}
	if topics := bulletList(markdown); topics != "" {
		msg.Blocks = append(msg.Blocks, SlackBlock{Type: "section", Text: &SlackText{Type: "mrkdwn", Text: topics}})
	}
	if w.Link != "" {
		msg.Blocks = append(msg.Blocks, SlackBlock{Type: "section", Text: &SlackText{Type: "mrkdwn", Text: fmt.Sprintf("<%s|Read the digest>", w.Link)}})
	}
	return msg
}

func (w *Webhook) discordMessage(title, markdown string) *DiscordMessage {
	return &DiscordMessage{
		Content: title,
		Embeds: []DiscordEmbed{{
			Title:       title,
			Description: bulletList(markdown),
			URL:         w.Link,
			Color:       0x2563eb,
		}},
	}
}
