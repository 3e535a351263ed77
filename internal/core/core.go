package core

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Article is one ingested news item. It is immutable once ingestion has produced it.
type Article struct {
	ID         string    `json:"id"`         // Fresh unique identifier assigned at ingestion
	Headline   string    `json:"headline"`   // Item title
	Summary    string    `json:"summary"`    // Short description from the feed
	Content    string    `json:"content"`    // Full plain text
	Published  time.Time `json:"published"`  // Publication timestamp (UTC)
	Source     string    `json:"source"`     // Feed source name, e.g. "法庭線"
	URL        string    `json:"url"`        // Canonical link
	Categories []string  `json:"categories"` // Feed categories, may be empty
}

// ArticleRef is the (id, headline) pair the assignment stage works with.
type ArticleRef struct {
	ID       string `json:"uuid"`
	Headline string `json:"headline"`
}

// TopicAssignment groups article references under one topic label.
type TopicAssignment struct {
	Topic    string       `json:"topic"`
	Articles []ArticleRef `json:"articles"`
}

// TopicSummary is one summarised topic.
type TopicSummary struct {
	Topic   string `json:"topic"`
	Summary string `json:"summary"`
}

// TopicLinks holds the rendered citation list for a topic, paired by index with a TopicSummary.
type TopicLinks struct {
	Topic string `json:"topic"`
	Links string `json:"link"`
}

// CandidateDocument is the assembled markdown produced by one best-of-N attempt.
type CandidateDocument struct {
	AttemptID int    `json:"summary_id"`
	Text      string `json:"text"`
}

// ScoreEntry is the evaluator's verdict for one candidate.
type ScoreEntry struct {
	AttemptID int    `json:"summary_id"`
	Score     int    `json:"score"`
	Reason    string `json:"reason"`
}

// OtherTopic is the label used for the bucket of unassigned articles.
const OtherTopic = "Other"

// IsOtherTopic reports whether a topic label names the reserved bucket of unassigned articles.
func IsOtherTopic(topic string) bool {
	t := strings.ToLower(strings.TrimSpace(topic))
	return t == "other" || t == "others" || t == "其他"
}

// Language selects the output language directive for a generation call.
type Language string

const (
	TraditionalChinese Language = "tc"
	SimplifiedChinese  Language = "sc"
	English            Language = "en"
)

// ParseLanguage accepts the short codes plus a few common spellings.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tc", "zh-hant", "zh-tw", "zh-hk", "traditional":
		return TraditionalChinese, nil
	case "sc", "zh-hans", "zh-cn", "simplified":
		return SimplifiedChinese, nil
	case "en", "english":
		return English, nil
	}
	return "", fmt.Errorf("unknown language %q (want tc, sc or en)", s)
}

// ArticleSet is the read-only, in-memory article store for one run.
// It preserves ingestion order and is safe for concurrent reads.
type ArticleSet struct {
	order []string
	byID  map[string]Article
}

// NewArticleSet builds a set from articles. Duplicate IDs are rejected.
func NewArticleSet(articles []Article) (*ArticleSet, error) {
	s := &ArticleSet{
		order: make([]string, 0, len(articles)),
		byID:  make(map[string]Article, len(articles)),
	}
	for _, a := range articles {
		if a.ID == "" {
			return nil, fmt.Errorf("article %q has no id", a.Headline)
		}
		if _, dup := s.byID[a.ID]; dup {
			return nil, fmt.Errorf("duplicate article id %s", a.ID)
		}
		s.order = append(s.order, a.ID)
		s.byID[a.ID] = a
	}
	return s, nil
}

// Len returns the number of articles.
func (s *ArticleSet) Len() int { return len(s.order) }

// Get returns the article with the given id.
func (s *ArticleSet) Get(id string) (Article, bool) {
	a, ok := s.byID[id]
	return a, ok
}

// Has reports whether id is known.
func (s *ArticleSet) Has(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// IDs returns the article ids in ingestion order.
func (s *ArticleSet) IDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// All returns a copy of the articles in ingestion order.
func (s *ArticleSet) All() []Article {
	out := make([]Article, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Refs returns the (id, headline) pairs in ingestion order.
func (s *ArticleSet) Refs() []ArticleRef {
	out := make([]ArticleRef, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, ArticleRef{ID: id, Headline: s.byID[id].Headline})
	}
	return out
}

// FilterSince returns the articles published strictly after cutoff, newest first.
// Articles without a publication date are dropped.
func FilterSince(articles []Article, cutoff time.Time) []Article {
	var out []Article
	for _, a := range articles {
		if a.Published.IsZero() || !a.Published.After(cutoff) {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Published.After(out[j].Published)
	})
	return out
}
