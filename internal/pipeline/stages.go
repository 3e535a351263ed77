// Package pipeline implements the generation stages of one digest attempt: topic extraction,
// topic assignment, optional sanitisation, per-topic summarisation and the style subedit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yf-chau/news-summary/internal/core"
	"github.com/yf-chau/news-summary/internal/llm"
	"github.com/yf-chau/news-summary/internal/logger"
	"github.com/yf-chau/news-summary/internal/schema"
)

var (
	// ErrPersistentHallucination is returned when every assignment attempt referenced unknown articles.
	ErrPersistentHallucination = errors.New("model kept referencing unknown articles")
	// ErrInvalidOutput marks a structurally valid response that breaks a semantic rule.
	ErrInvalidOutput = errors.New("invalid model output")

	errUnknownArticle = errors.New("unknown article id")
)

// Generator is the generation client the stages are built on.
type Generator interface {
	GenerateText(ctx context.Context, prompt string, lang core.Language) (string, error)
	GenerateStructured(ctx context.Context, prompt string, lang core.Language, doc schema.Document, checks ...llm.Check) error
}

// Config holds the per-run stage settings.
type Config struct {
	Topics         int
	Language       core.Language
	Sanitize       bool
	SanitizePrompt SanitizeVariant
}

// DefaultConfig returns five topics in Traditional Chinese without sanitisation.
func DefaultConfig() Config {
	return Config{
		Topics:         5,
		Language:       core.TraditionalChinese,
		SanitizePrompt: SanitizeEditor,
	}
}

// Stages runs the individual pipeline stages against one generator.
type Stages struct {
	gen Generator
	cfg Config
}

// New creates the stages. Zero config fields fall back to DefaultConfig.
func New(gen Generator, cfg Config) *Stages {
	def := DefaultConfig()
	if cfg.Topics <= 0 {
		cfg.Topics = def.Topics
	}
	if cfg.Language == "" {
		cfg.Language = def.Language
	}
	if cfg.SanitizePrompt == "" {
		cfg.SanitizePrompt = def.SanitizePrompt
	}
	return &Stages{gen: gen, cfg: cfg}
}

// Config returns the effective configuration.
func (s *Stages) Config() Config { return s.cfg }

// ExtractTopics returns exactly cfg.Topics topic labels for articles.
func (s *Stages) ExtractTopics(ctx context.Context, articles []core.Article) ([]string, error) {
	if len(articles) == 0 {
		return nil, fmt.Errorf("no articles to extract topics from")
	}
	k := s.cfg.Topics
	logger.Info("Generating topics", "articles", len(articles), "topics", k)

	var doc schema.TopicsList
	err := s.gen.GenerateStructured(ctx, BuildTopicsPrompt(articles, k), s.cfg.Language, &doc, func() error {
		if len(doc.Topics) != k {
			return fmt.Errorf("%w: got %d topics, want %d", ErrInvalidOutput, len(doc.Topics), k)
		}
		for i, t := range doc.Topics {
			if strings.TrimSpace(t) == "" {
				return fmt.Errorf("%w: topic %d is empty", ErrInvalidOutput, i)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc.Topics, nil
}

// AssignArticles groups every article of set under one of topics or under the Other bucket.
// The whole assignment is regenerated while the model references ids that are not in set;
// once the budget is spent ErrPersistentHallucination is returned. The accepted assignment
// is normalised so every article appears exactly once.
func (s *Stages) AssignArticles(ctx context.Context, topics []string, set *core.ArticleSet) ([]core.TopicAssignment, error) {
	logger.Info("Generating articles list by topic", "topics", len(topics), "articles", set.Len())

	var doc schema.ArticlesByTopic
	err := s.gen.GenerateStructured(ctx, BuildAssignmentPrompt(topics, set.Refs()), s.cfg.Language, &doc, func() error {
		var unknown []string
		for _, group := range doc.Topics {
			for _, ref := range group.Articles {
				if !set.Has(ref.ID) {
					unknown = append(unknown, ref.ID)
				}
			}
		}
		if len(unknown) > 0 {
			logger.Warn("Invalid uuid in assignment, regenerating", "unknown", len(unknown))
			return fmt.Errorf("%w: %s", errUnknownArticle, strings.Join(unknown, ", "))
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errUnknownArticle) {
			return nil, fmt.Errorf("%w: %w", ErrPersistentHallucination, err)
		}
		return nil, err
	}

	return NormalizeAssignment(doc.Topics, set), nil
}

// NormalizeAssignment rebuilds groups against set: duplicate ids keep their first occurrence,
// headlines come from set, and articles no group mentions are appended to the Other bucket,
// which is created at the end if the model did not emit one. Unknown ids are dropped.
func NormalizeAssignment(groups []core.TopicAssignment, set *core.ArticleSet) []core.TopicAssignment {
	seen := make(map[string]bool, set.Len())
	out := make([]core.TopicAssignment, 0, len(groups)+1)
	otherIdx := -1

	for _, g := range groups {
		refs := make([]core.ArticleRef, 0, len(g.Articles))
		for _, ref := range g.Articles {
			a, ok := set.Get(ref.ID)
			if !ok || seen[ref.ID] {
				continue
			}
			seen[ref.ID] = true
			refs = append(refs, core.ArticleRef{ID: a.ID, Headline: a.Headline})
		}
		if core.IsOtherTopic(g.Topic) && otherIdx < 0 {
			otherIdx = len(out)
		}
		out = append(out, core.TopicAssignment{Topic: g.Topic, Articles: refs})
	}

	var missing []core.ArticleRef
	for _, ref := range set.Refs() {
		if !seen[ref.ID] {
			missing = append(missing, ref)
		}
	}
	if len(missing) == 0 {
		return out
	}

	logger.Debug("Articles left unassigned, moving to Other", "count", len(missing))
	if otherIdx < 0 {
		out = append(out, core.TopicAssignment{Topic: core.OtherTopic})
		otherIdx = len(out) - 1
	}
	out[otherIdx].Articles = append(out[otherIdx].Articles, missing...)
	return out
}

// Sanitize returns articleText with sensitive spans redacted.
func (s *Stages) Sanitize(ctx context.Context, topic, articleText string) (string, error) {
	logger.Info("Sanitising articles", "topic", topic, "variant", string(s.cfg.SanitizePrompt))
	return s.gen.GenerateText(ctx, BuildSanitizePrompt(s.cfg.SanitizePrompt, topic, articleText), s.cfg.Language)
}

// SummarizeTopic writes the English summary of one topic.
func (s *Stages) SummarizeTopic(ctx context.Context, topic, articleText string) (core.TopicSummary, error) {
	logger.Info("Generating summary", "topic", topic)

	var doc schema.TopicSummary
	err := s.gen.GenerateStructured(ctx, BuildSummaryPrompt(topic, articleText), core.English, &doc, func() error {
		if strings.TrimSpace(doc.Summary) == "" {
			return fmt.Errorf("%w: empty summary", ErrInvalidOutput)
		}
		return nil
	})
	if err != nil {
		return core.TopicSummary{}, err
	}
	return core.TopicSummary(doc), nil
}

// Subedit rewrites every summary of an attempt for consistent style in the run language.
// Each edited entry carries the id of the input it edits and the result is returned in input
// order, so links stay paired with their topic even if the model reorders the list.
func (s *Stages) Subedit(ctx context.Context, summaries []core.TopicSummary) ([]core.TopicSummary, error) {
	if len(summaries) == 0 {
		return nil, nil
	}
	logger.Info("Editing summary", "topics", len(summaries))

	var doc schema.EditedSummaries
	var edited []core.TopicSummary
	err := s.gen.GenerateStructured(ctx, BuildSubeditPrompt(summaries, s.cfg.Language), s.cfg.Language, &doc, func() error {
		var err error
		edited, err = matchEdits(doc.Topics, len(summaries))
		return err
	})
	if err != nil {
		return nil, err
	}
	return edited, nil
}

// matchEdits orders edits by id. Every id in 1..n must appear exactly once.
func matchEdits(edits []schema.EditedSummary, n int) ([]core.TopicSummary, error) {
	if len(edits) != n {
		return nil, fmt.Errorf("%w: subedit returned %d topics, want %d", ErrInvalidOutput, len(edits), n)
	}
	out := make([]core.TopicSummary, n)
	filled := make([]bool, n)
	moved := false
	for pos, e := range edits {
		if e.ID < 1 || e.ID > n || filled[e.ID-1] {
			return nil, fmt.Errorf("%w: subedit returned unknown or repeated id %d", ErrInvalidOutput, e.ID)
		}
		filled[e.ID-1] = true
		out[e.ID-1] = core.TopicSummary{Topic: e.Topic, Summary: e.Summary}
		moved = moved || e.ID != pos+1
	}
	if moved {
		logger.Warn("Subedit reordered topics, restoring input order")
	}
	return out, nil
}

// ArticleText concatenates "headline\ncontent\n\n" for each referenced article.
func ArticleText(refs []core.ArticleRef, set *core.ArticleSet) string {
	var sb strings.Builder
	for _, ref := range refs {
		a, ok := set.Get(ref.ID)
		if !ok {
			continue
		}
		sb.WriteString(a.Headline)
		sb.WriteString("\n")
		sb.WriteString(a.Content)
		sb.WriteString("\n\n")
	}
	return sb.String()
}
