// Package feeds fetches RSS/Atom feeds and turns their items into articles.
package feeds

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/yf-chau/news-summary/internal/core"
	"github.com/yf-chau/news-summary/internal/logger"
)

// RSS represents an RSS feed structure
type RSS struct {
	XMLName xml.Name `xml:"rss"`
	Channel Channel  `xml:"channel"`
}

// Atom represents an Atom feed structure
type Atom struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Entries []AtomEntry `xml:"entry"`
}

// Channel represents an RSS channel
type Channel struct {
	Title string    `xml:"title"`
	Items []RSSItem `xml:"item"`
}

// RSSItem represents an RSS item
type RSSItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Description string   `xml:"description"`
	Content     string   `xml:"http://purl.org/rss/1.0/modules/content/ encoded"`
	PubDate     string   `xml:"pubDate"`
	GUID        string   `xml:"guid"`
	Categories  []string `xml:"category"`
}

// AtomLink represents an Atom link element
type AtomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

// AtomCategory represents an Atom category element
type AtomCategory struct {
	Term string `xml:"term,attr"`
}

// AtomEntry represents an Atom entry
type AtomEntry struct {
	Title      string         `xml:"title"`
	Link       []AtomLink     `xml:"link"`
	Summary    string         `xml:"summary"`
	Content    string         `xml:"content"`
	Published  string         `xml:"published"`
	Updated    string         `xml:"updated"`
	ID         string         `xml:"id"`
	Categories []AtomCategory `xml:"category"`
}

// DefaultSources are the Hong Kong outlets fetched when no feeds are configured.
var DefaultSources = map[string]string{
	"集誌社":  "https://thecollectivehk.com/feed/",
	"法庭線":  "https://thewitnesshk.com/feed/",
	"庭刊":   "https://hkcourtnews.com/feed/",
	"獨立媒體": "https://www.inmediahk.net/rss.xml",
}

// Source is one named feed.
type Source struct {
	Name string
	URL  string
}

// SourcesFromMap returns the sources of a name -> url map ordered by name.
func SourcesFromMap(m map[string]string) []Source {
	out := make([]Source, 0, len(m))
	for name, url := range m {
		out = append(out, Source{Name: name, URL: url})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Options configures a FeedManager.
type Options struct {
	UserAgent       string
	Timeout         time.Duration
	MaxItemsPerFeed int // zero keeps every item
}

// FeedManager fetches feeds over HTTP.
type FeedManager struct {
	client    *http.Client
	userAgent string
	maxItems  int
	newID     func() string
}

// NewFeedManager creates a new feed manager
func NewFeedManager(opts Options) *FeedManager {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "newsdigest/1.0"
	}
	return &FeedManager{
		client:    &http.Client{Timeout: opts.Timeout},
		userAgent: opts.UserAgent,
		maxItems:  opts.MaxItemsPerFeed,
		newID:     uuid.NewString,
	}
}

// Ingest fetches every source. Sources that fail are logged and skipped; an error is returned
// only when every source failed.
func (fm *FeedManager) Ingest(ctx context.Context, sources []Source) ([]core.Article, error) {
	var (
		all  []core.Article
		errs []error
	)
	for _, src := range sources {
		articles, err := fm.FetchFeed(ctx, src)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("Feed failed, skipping", "source", src.Name, "url", src.URL, "error", err.Error())
			errs = append(errs, fmt.Errorf("%s: %w", src.Name, err))
			continue
		}
		logger.Info("Feed fetched", "source", src.Name, "items", len(articles))
		all = append(all, articles...)
	}
	if len(sources) > 0 && len(errs) == len(sources) {
		return nil, fmt.Errorf("every feed failed: %w", errors.Join(errs...))
	}
	return all, nil
}

// FetchFeed fetches one feed and converts its items to articles.
func (fm *FeedManager) FetchFeed(ctx context.Context, src Source) ([]core.Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", fm.userAgent)

	resp, err := fm.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed: %w", err)
	}

	articles, err := fm.Parse(body, src.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return articles, nil
}

// Parse decodes an RSS or Atom document.
func (fm *FeedManager) Parse(body []byte, sourceName string) ([]core.Article, error) {
	var rss RSS
	if err := xml.NewDecoder(bytes.NewReader(body)).Decode(&rss); err == nil && rss.Channel.Title != "" {
		return fm.limit(fm.parseRSS(rss, sourceName)), nil
	}

	var atom Atom
	if err := xml.NewDecoder(bytes.NewReader(body)).Decode(&atom); err == nil && atom.Title != "" {
		return fm.limit(fm.parseAtom(atom, sourceName)), nil
	}

	return nil, fmt.Errorf("unable to parse as RSS or Atom feed")
}

func (fm *FeedManager) limit(articles []core.Article) []core.Article {
	if fm.maxItems > 0 && len(articles) > fm.maxItems {
		return articles[:fm.maxItems]
	}
	return articles
}

func (fm *FeedManager) parseRSS(rss RSS, sourceName string) []core.Article {
	articles := make([]core.Article, 0, len(rss.Channel.Items))
	for _, item := range rss.Channel.Items {
		summary := HTMLToText(item.Description)
		content := HTMLToText(item.Content)
		if content == "" {
			content = summary
		}
		articles = append(articles, core.Article{
			ID:         fm.newID(),
			Headline:   cleanLine(item.Title),
			Summary:    summary,
			Content:    content,
			Published:  parseRSSDate(item.PubDate),
			Source:     sourceName,
			URL:        strings.TrimSpace(item.Link),
			Categories: cleanCategories(item.Categories),
		})
	}
	return articles
}

func (fm *FeedManager) parseAtom(atom Atom, sourceName string) []core.Article {
	articles := make([]core.Article, 0, len(atom.Entries))
	for _, entry := range atom.Entries {
		// Find the main link
		var link string
		for _, l := range entry.Link {
			if l.Rel == "" || l.Rel == "alternate" {
				link = l.Href
				break
			}
		}

		published := parseAtomDate(entry.Published)
		if published.IsZero() {
			published = parseAtomDate(entry.Updated)
		}

		var categories []string
		for _, c := range entry.Categories {
			categories = append(categories, c.Term)
		}

		summary := HTMLToText(entry.Summary)
		content := HTMLToText(entry.Content)
		if content == "" {
			content = summary
		}

		articles = append(articles, core.Article{
			ID:         fm.newID(),
			Headline:   cleanLine(entry.Title),
			Summary:    summary,
			Content:    content,
			Published:  published,
			Source:     sourceName,
			URL:        strings.TrimSpace(link),
			Categories: cleanCategories(categories),
		})
	}
	return articles
}

var blankLines = regexp.MustCompile(`\n{2,}`)

// HTMLToText extracts the readable text of an HTML fragment, one block element per line,
// normalised to NFC.
func HTMLToText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return norm.NFC.String(strings.TrimSpace(fragment))
	}
	doc.Find("script, style, iframe, noscript, figure").Remove()

	var sb strings.Builder
	doc.Find("p, h1, h2, h3, h4, h5, h6, li, blockquote, pre").Each(func(_ int, s *goquery.Selection) {
		if s.Find("p, li").Length() > 0 {
			return // the nested blocks are visited on their own
		}
		if line := cleanLine(s.Text()); line != "" {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	})

	text := sb.String()
	if text == "" {
		text = cleanLine(doc.Text())
	}
	text = blankLines.ReplaceAllString(text, "\n")
	return norm.NFC.String(strings.TrimSpace(text))
}

// cleanLine collapses runs of whitespace and normalises to NFC.
func cleanLine(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}

func cleanCategories(in []string) []string {
	var out []string
	for _, c := range in {
		if c = cleanLine(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// parseRSSDate parses RSS date formats
func parseRSSDate(dateStr string) time.Time {
	if dateStr == "" {
		return time.Time{}
	}

	// Common RSS date formats
	formats := []string{
		time.RFC1123Z,
		time.RFC1123,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05 MST",
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02 15:04:05",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, strings.TrimSpace(dateStr)); err == nil {
			return t.UTC()
		}
	}

	return time.Time{}
}

// parseAtomDate parses Atom date formats
func parseAtomDate(dateStr string) time.Time {
	if dateStr == "" {
		return time.Time{}
	}

	// Atom uses RFC3339
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(dateStr)); err == nil {
		return t.UTC()
	}

	return parseRSSDate(dateStr)
}
