package pipeline

import (
	"context"
	"fmt"

	"github.com/yf-chau/news-summary/internal/core"
	"github.com/yf-chau/news-summary/internal/logger"
	"github.com/yf-chau/news-summary/internal/render"
)

// Sink receives each stage's output as soon as it is produced.
type Sink interface {
	Topics(topics []string) error
	Assignment(groups []core.TopicAssignment) error
	Summaries(edited []core.TopicSummary, links []core.TopicLinks) error
	Documents(preEdited, edited string) error
}

type nopSink struct{}

func (nopSink) Topics([]string) error { return nil }
func (nopSink) Assignment([]core.TopicAssignment) error { return nil }
func (nopSink) Summaries([]core.TopicSummary, []core.TopicLinks) error { return nil }
func (nopSink) Documents(string, string) error { return nil }

// Result is everything one attempt produced.
type Result struct {
	Topics     []string
	Assignment []core.TopicAssignment
	Summaries  []core.TopicSummary // before the subedit
	Edited     []core.TopicSummary
	Links      []core.TopicLinks
	PreEdited  string
	Document   string
}

// Run executes every stage once over set: topics, assignment, optional sanitisation,
// per-topic summaries in assignment order, then the subedit. The Other bucket and topics
// with no articles are not summarised.
func (s *Stages) Run(ctx context.Context, set *core.ArticleSet, sink Sink) (*Result, error) {
	if sink == nil {
		sink = nopSink{}
	}
	res := &Result{}

	topics, err := s.ExtractTopics(ctx, set.All())
	if err != nil {
		return nil, fmt.Errorf("topic extraction: %w", err)
	}
	res.Topics = topics
	if err := sink.Topics(topics); err != nil {
		return nil, err
	}

	groups, err := s.AssignArticles(ctx, topics, set)
	if err != nil {
		return nil, fmt.Errorf("topic assignment: %w", err)
	}
	res.Assignment = groups
	if err := sink.Assignment(groups); err != nil {
		return nil, err
	}

	for _, g := range groups {
		if core.IsOtherTopic(g.Topic) {
			continue
		}
		if len(g.Articles) == 0 {
			logger.Warn("Topic has no articles, skipping", "topic", g.Topic)
			continue
		}

		text := ArticleText(g.Articles, set)
		if s.cfg.Sanitize {
			text, err = s.Sanitize(ctx, g.Topic, text)
			if err != nil {
				return nil, fmt.Errorf("sanitise %q: %w", g.Topic, err)
			}
		}

		summary, err := s.SummarizeTopic(ctx, g.Topic, text)
		if err != nil {
			return nil, fmt.Errorf("summarise %q: %w", g.Topic, err)
		}
		res.Summaries = append(res.Summaries, summary)
		res.Links = append(res.Links, core.TopicLinks{Topic: g.Topic, Links: render.ArticleLinks(g.Articles, set)})
	}
	if len(res.Summaries) == 0 {
		return nil, fmt.Errorf("%w: no topic received any articles", ErrInvalidOutput)
	}

	edited, err := s.Subedit(ctx, res.Summaries)
	if err != nil {
		return nil, fmt.Errorf("subedit: %w", err)
	}
	res.Edited = edited
	if err := sink.Summaries(edited, res.Links); err != nil {
		return nil, err
	}

	if res.PreEdited, err = render.AssembleDocument(res.Summaries, res.Links); err != nil {
		return nil, err
	}
	if res.Document, err = render.AssembleDocument(res.Edited, res.Links); err != nil {
		return nil, err
	}
	if err := sink.Documents(res.PreEdited, res.Document); err != nil {
		return nil, err
	}
	return res, nil
}
