package schema

import "github.com/yf-chau/news-summary/internal/core"

// TopicsList is the output of topic extraction.
type TopicsList struct {
	Topics []string `json:"topics"`
}

func (TopicsList) Schema() *Schema {
	return ObjectOf("TopicsList", Required("topics", ArrayOf(Str())))
}

// ArticlesByTopic is the output of topic assignment.
type ArticlesByTopic struct {
	Topics []core.TopicAssignment `json:"topics"`
}

func articleItem() *Schema {
	return ObjectOf("ArticleItem",
		Required("headline", Str()),
		Required("uuid", Str()),
	)
}

func (ArticlesByTopic) Schema() *Schema {
	return ObjectOf("ArticlesByTopic",
		Required("topics", ArrayOf(ObjectOf("ArticlesListForATopic",
			Required("topic", Str()),
			Required("articles", ArrayOf(articleItem())),
		))),
	)
}

// TopicSummary is the output of summarising a single topic.
type TopicSummary core.TopicSummary

func topicSummary() *Schema {
	return ObjectOf("TopicSummary",
		Required("topic", Str()),
		Required("summary", Str()),
	)
}

func (TopicSummary) Schema() *Schema { return topicSummary() }

// TopicsSummary is the list of edited summaries saved with an attempt.
type TopicsSummary struct {
	Topics []core.TopicSummary `json:"topics"`
}

func (TopicsSummary) Schema() *Schema {
	return ObjectOf("TopicsSummary", Required("topics", ArrayOf(topicSummary())))
}

// EditedSummary is one subedited summary. ID echoes the 1-based position of the input it edits.
type EditedSummary struct {
	ID      int    `json:"id"`
	Topic   string `json:"topic"`
	Summary string `json:"summary"`
}

// EditedSummaries is the input and output shape of the subedit stage.
type EditedSummaries struct {
	Topics []EditedSummary `json:"topics"`
}

func (EditedSummaries) Schema() *Schema {
	return ObjectOf("EditedSummaries", Required("topics", ArrayOf(ObjectOf("EditedSummary",
		Required("id", Int()),
		Required("topic", Str()),
		Required("summary", Str()),
	))))
}

// ScoreModel is the evaluator's output.
type ScoreModel struct {
	Scores []core.ScoreEntry `json:"scores"`
}

func (ScoreModel) Schema() *Schema {
	return ObjectOf("ScoreModel",
		Required("scores", ArrayOf(ObjectOf("Score",
			Required("summary_id", Int()),
			Required("score", Int()),
			Required("reason", Str()),
		))),
	)
}
