package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yf-chau/news-summary/internal/core"
	"github.com/yf-chau/news-summary/internal/llm"
	"github.com/yf-chau/news-summary/internal/llm/llmtest"
	"github.com/yf-chau/news-summary/internal/retry"
)

func testArticles() []core.Article {
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	return []core.Article{
		{ID: "u1", Headline: "Budget unveiled", Summary: "Deficit narrows", Content: "The financial secretary presented the budget.", Source: "集誌社", URL: "https://example.com/u1", Published: base},
		{ID: "u2", Headline: "Stamp duty cut", Summary: "Property measures", Content: "Stamp duty was cut for first-time buyers.", Source: "獨立媒體", URL: "https://example.com/u2", Published: base},
		{ID: "u3", Headline: "Appeal dismissed", Summary: "Court of Appeal ruling", Content: "The court dismissed the appeal.", Source: "法庭線", URL: "https://example.com/u3", Published: base},
		{ID: "u4", Headline: "Typhoon signal 8", Summary: "Weather", Content: "The observatory raised signal 8.", Source: "集誌社", URL: "https://example.com/u4", Published: base},
	}
}

func testSet(t *testing.T) *core.ArticleSet {
	t.Helper()
	set, err := core.NewArticleSet(testArticles())
	require.NoError(t, err)
	return set
}

func newClient(b llm.Backend) *llm.Client {
	p := retry.Default()
	p.Sleep = retry.NoSleep
	return llm.NewClient(b, llm.WithPolicy(p))
}

func TestCourtCaseCap(t *testing.T) {
	tests := map[int]int{1: 0, 3: 1, 4: 2, 5: 2, 8: 3, 10: 4}
	for k, want := range tests {
		assert.Equal(t, want, CourtCaseCap(k), "k=%d", k)
	}
}

func TestBuildTopicsPrompt(t *testing.T) {
	prompt := BuildTopicsPrompt(testArticles(), 5)
	assert.Contains(t, prompt, "top 5 major topics")
	assert.Contains(t, prompt, "no more than 2 topics may be about court cases")
	assert.Contains(t, prompt, `"headline": "Budget unveiled"`)
	assert.Contains(t, prompt, `"summary": "Deficit narrows"`)
	assert.Contains(t, prompt, `"title": "TopicsList"`)
}

func TestExtractTopics_WrongCountRetried(t *testing.T) {
	backend := llmtest.Replies(
		llmtest.JSON(`{"topics": ["Budget"]}`),
		llmtest.JSON(`{"topics": ["Budget", "Courts"]}`),
	)
	stages := New(newClient(backend), Config{Topics: 2})

	topics, err := stages.ExtractTopics(context.Background(), testArticles())
	require.NoError(t, err)
	assert.Equal(t, []string{"Budget", "Courts"}, topics)
	assert.Equal(t, 2, backend.Calls())
}

func TestExtractTopics_PersistentWrongCount(t *testing.T) {
	backend := llmtest.Replies(llmtest.JSON(`{"topics": ["Budget"]}`))
	stages := New(newClient(backend), Config{Topics: 3})

	_, err := stages.ExtractTopics(context.Background(), testArticles())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidOutput)
	assert.ErrorIs(t, err, llm.ErrGenerationFailed)
	assert.Equal(t, 10, backend.Calls())
}

func TestAssignArticles_UnknownIDRegenerates(t *testing.T) {
	backend := llmtest.Replies(
		llmtest.JSON(`{"topics": [{"topic": "Budget", "articles": [{"headline": "x", "uuid": "ghost"}]}]}`),
		llmtest.JSON(`{"topics": [
			{"topic": "Budget", "articles": [{"headline": "Budget unveiled", "uuid": "u1"}, {"headline": "Stamp duty cut", "uuid": "u2"}]},
			{"topic": "Courts", "articles": [{"headline": "Appeal dismissed", "uuid": "u3"}]},
			{"topic": "Others", "articles": [{"headline": "Typhoon signal 8", "uuid": "u4"}]}
		]}`),
	)
	stages := New(newClient(backend), Config{Topics: 2})

	groups, err := stages.AssignArticles(context.Background(), []string{"Budget", "Courts"}, testSet(t))
	require.NoError(t, err)
	assert.Equal(t, 2, backend.Calls())

	want := []core.TopicAssignment{
		{Topic: "Budget", Articles: []core.ArticleRef{{ID: "u1", Headline: "Budget unveiled"}, {ID: "u2", Headline: "Stamp duty cut"}}},
		{Topic: "Courts", Articles: []core.ArticleRef{{ID: "u3", Headline: "Appeal dismissed"}}},
		{Topic: "Others", Articles: []core.ArticleRef{{ID: "u4", Headline: "Typhoon signal 8"}}},
	}
	if diff := cmp.Diff(want, groups); diff != "" {
		t.Errorf("AssignArticles() mismatch (-want +got):\n%s", diff)
	}
}

func TestAssignArticles_PersistentHallucination(t *testing.T) {
	backend := llmtest.Replies(llmtest.JSON(`{"topics": [{"topic": "Budget", "articles": [{"headline": "x", "uuid": "ghost"}]}]}`))
	stages := New(newClient(backend), Config{Topics: 1})

	_, err := stages.AssignArticles(context.Background(), []string{"Budget"}, testSet(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistentHallucination)
	assert.Contains(t, err.Error(), "ghost")
	assert.Equal(t, 10, backend.Calls())
}

func TestNormalizeAssignment(t *testing.T) {
	set := testSet(t)
	groups := []core.TopicAssignment{
		{Topic: "Budget", Articles: []core.ArticleRef{{ID: "u1", Headline: "wrong headline"}, {ID: "u1"}}},
		{Topic: "Courts", Articles: []core.ArticleRef{{ID: "u1"}, {ID: "u3"}}},
	}

	got := NormalizeAssignment(groups, set)

	want := []core.TopicAssignment{
		{Topic: "Budget", Articles: []core.ArticleRef{{ID: "u1", Headline: "Budget unveiled"}}},
		{Topic: "Courts", Articles: []core.ArticleRef{{ID: "u3", Headline: "Appeal dismissed"}}},
		{Topic: core.OtherTopic, Articles: []core.ArticleRef{{ID: "u2", Headline: "Stamp duty cut"}, {ID: "u4", Headline: "Typhoon signal 8"}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("NormalizeAssignment() mismatch (-want +got):\n%s", diff)
	}

	// Every article appears exactly once across all groups.
	counts := map[string]int{}
	for _, g := range got {
		for _, ref := range g.Articles {
			counts[ref.ID]++
		}
	}
	for _, id := range set.IDs() {
		assert.Equal(t, 1, counts[id], "article %s", id)
	}
	assert.Len(t, counts, set.Len())
}

func TestNormalizeAssignment_AppendsToExistingOther(t *testing.T) {
	groups := []core.TopicAssignment{
		{Topic: "其他", Articles: []core.ArticleRef{{ID: "u4"}}},
		{Topic: "Budget", Articles: []core.ArticleRef{{ID: "u1"}, {ID: "u2"}}},
	}

	got := NormalizeAssignment(groups, testSet(t))
	require.Len(t, got, 2)
	assert.Equal(t, "其他", got[0].Topic)
	assert.Equal(t, []core.ArticleRef{{ID: "u4", Headline: "Typhoon signal 8"}, {ID: "u3", Headline: "Appeal dismissed"}}, got[0].Articles)
}

func TestSubedit_CountMismatchRetried(t *testing.T) {
	backend := llmtest.Replies(
		llmtest.JSON(`{"topics": [{"id": 1, "topic": "A", "summary": "merged"}]}`),
		llmtest.JSON(`{"topics": [{"id": 1, "topic": "預算", "summary": "一"}, {"id": 2, "topic": "法庭", "summary": "二"}]}`),
	)
	stages := New(newClient(backend), DefaultConfig())

	in := []core.TopicSummary{{Topic: "Budget", Summary: "one"}, {Topic: "Courts", Summary: "two"}}
	out, err := stages.Subedit(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []core.TopicSummary{{Topic: "預算", Summary: "一"}, {Topic: "法庭", Summary: "二"}}, out)
	assert.Equal(t, 2, backend.Calls())
	assert.True(t, strings.HasPrefix(backend.Prompts()[0], "**所有輸出都必須使用繁體中文。**"))
	assert.Contains(t, backend.Prompts()[0], "Use Traditional Chinese primarily")
}

func TestSubedit_ReorderedEditsKeepInputOrder(t *testing.T) {
	backend := llmtest.Replies(
		llmtest.JSON(`{"topics": [{"id": 2, "topic": "天氣", "summary": "八號風球"}, {"id": 1, "topic": "預算", "summary": "赤字收窄"}]}`),
	)
	stages := New(newClient(backend), DefaultConfig())

	in := []core.TopicSummary{{Topic: "Budget", Summary: "one"}, {Topic: "Weather", Summary: "two"}}
	out, err := stages.Subedit(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []core.TopicSummary{{Topic: "預算", Summary: "赤字收窄"}, {Topic: "天氣", Summary: "八號風球"}}, out)
	assert.Equal(t, 1, backend.Calls())
	assert.Contains(t, backend.Prompts()[0], `"id": 2`)
}

func TestSubedit_BadIDsRetried(t *testing.T) {
	backend := llmtest.Replies(
		llmtest.JSON(`{"topics": [{"id": 1, "topic": "預算", "summary": "一"}, {"id": 1, "topic": "天氣", "summary": "二"}]}`),
		llmtest.JSON(`{"topics": [{"id": 1, "topic": "預算", "summary": "一"}, {"id": 3, "topic": "天氣", "summary": "二"}]}`),
		llmtest.JSON(`{"topics": [{"id": 1, "topic": "預算", "summary": "一"}, {"id": 2, "topic": "天氣", "summary": "二"}]}`),
	)
	stages := New(newClient(backend), DefaultConfig())

	in := []core.TopicSummary{{Topic: "Budget", Summary: "one"}, {Topic: "Weather", Summary: "two"}}
	out, err := stages.Subedit(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "天氣", out[1].Topic)
	assert.Equal(t, 3, backend.Calls())
}

func TestRun_SubeditReorderKeepsLinks(t *testing.T) {
	backend := scriptedPipelineEdits(t, `{"topics": [{"id": 2, "topic": "法庭", "summary": "法庭摘要"}, {"id": 1, "topic": "預算", "summary": "預算摘要"}]}`)
	stages := New(newClient(backend), Config{Topics: 2})

	res, err := stages.Run(context.Background(), testSet(t), nil)
	require.NoError(t, err)
	assert.Contains(t, res.Document, "## 預算\n\n預算摘要\n\n#### Links\n\n"+res.Links[0].Links)
	assert.Contains(t, res.Document, "## 法庭\n\n法庭摘要\n\n#### Links\n\n"+res.Links[1].Links)
	assert.Contains(t, res.Links[0].Links, "Budget unveiled")
}

func TestSummarizeTopic_AlwaysEnglish(t *testing.T) {
	backend := llmtest.Replies(llmtest.JSON(`{"topic": "Budget", "summary": "The budget was unveiled."}`))
	stages := New(newClient(backend), Config{Language: core.SimplifiedChinese})

	got, err := stages.SummarizeTopic(context.Background(), "Budget", "Budget unveiled\ntext\n\n")
	require.NoError(t, err)
	assert.Equal(t, core.TopicSummary{Topic: "Budget", Summary: "The budget was unveiled."}, got)
	assert.True(t, strings.HasPrefix(backend.Prompts()[0], "**All output should be in English only.**"))
}

func TestArticleText(t *testing.T) {
	got := ArticleText([]core.ArticleRef{{ID: "u3"}, {ID: "nope"}, {ID: "u4"}}, testSet(t))
	want := "Appeal dismissed\nThe court dismissed the appeal.\n\nTyphoon signal 8\nThe observatory raised signal 8.\n\n"
	assert.Equal(t, want, got)
}

// scriptedPipeline answers each stage by recognising its prompt.
func scriptedPipeline(t *testing.T) *llmtest.Backend {
	return scriptedPipelineEdits(t, `{"topics": [{"id": 1, "topic": "預算案", "summary": "預算摘要"}, {"id": 2, "topic": "上訴被駁回", "summary": "法庭摘要"}]}`)
}

// scriptedPipelineEdits answers every stage prompt; the subedit stage replies with edits.
func scriptedPipelineEdits(t *testing.T, edits string) *llmtest.Backend {
	topicRe := regexp.MustCompile(`news summary for the topic: ([^.]+)\.`)
	return llmtest.Func(func(_ int, prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Identify the top"):
			return llmtest.JSON(`{"topics": ["Budget", "Courts"]}`), nil
		case strings.Contains(prompt, "Major Themes:"):
			return llmtest.JSON(`{"topics": [
				{"topic": "Budget", "articles": [{"headline": "Budget unveiled", "uuid": "u1"}, {"headline": "Stamp duty cut", "uuid": "u2"}]},
				{"topic": "Courts", "articles": [{"headline": "Appeal dismissed", "uuid": "u3"}]},
				{"topic": "Others", "articles": [{"headline": "Typhoon signal 8", "uuid": "u4"}]}
			]}`), nil
		case strings.Contains(prompt, "Replace each redacted span"):
			return "REDACTED " + RedactionMark, nil
		case strings.Contains(prompt, "news summary for the topic"):
			m := topicRe.FindStringSubmatch(prompt)
			if m == nil {
				return "", fmt.Errorf("no topic in prompt")
			}
			body, _ := json.Marshal(core.TopicSummary{Topic: m[1], Summary: "Summary of " + m[1]})
			return llmtest.JSON(string(body)), nil
		case strings.Contains(prompt, "news subeditor"):
			return llmtest.JSON(edits), nil
		}
		t.Errorf("unexpected prompt: %.80s", prompt)
		return "", fmt.Errorf("unexpected prompt")
	})
}

type recordingSink struct {
	topics    []string
	groups    []core.TopicAssignment
	edited    []core.TopicSummary
	links     []core.TopicLinks
	preEdited string
	document  string
}

func (r *recordingSink) Topics(t []string) error {
	r.topics = t
	return nil
}

func (r *recordingSink) Assignment(g []core.TopicAssignment) error {
	r.groups = g
	return nil
}

func (r *recordingSink) Summaries(e []core.TopicSummary, l []core.TopicLinks) error {
	r.edited, r.links = e, l
	return nil
}

func (r *recordingSink) Documents(pre, doc string) error {
	r.preEdited, r.document = pre, doc
	return nil
}

func TestRun_EndToEnd(t *testing.T) {
	backend := scriptedPipeline(t)
	stages := New(newClient(backend), Config{Topics: 2, Sanitize: true})
	sink := &recordingSink{}

	res, err := stages.Run(context.Background(), testSet(t), sink)
	require.NoError(t, err)

	assert.Equal(t, []string{"Budget", "Courts"}, res.Topics)
	assert.Equal(t, []core.TopicSummary{
		{Topic: "Budget", Summary: "Summary of Budget"},
		{Topic: "Courts", Summary: "Summary of Courts"},
	}, res.Summaries)
	assert.Equal(t, []core.TopicLinks{
		{Topic: "Budget", Links: "* [集誌社：Budget unveiled](https://example.com/u1)\n* [獨立媒體：Stamp duty cut](https://example.com/u2)\n"},
		{Topic: "Courts", Links: "* [法庭線：Appeal dismissed](https://example.com/u3)\n"},
	}, res.Links)

	wantDoc := "## 預算案\n\n預算摘要\n\n#### Links\n\n" + res.Links[0].Links + "\n\n" +
		"## 上訴被駁回\n\n法庭摘要\n\n#### Links\n\n" + res.Links[1].Links + "\n\n"
	if diff := cmp.Diff(wantDoc, res.Document); diff != "" {
		t.Errorf("Document mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, res.PreEdited, "## Budget\n\nSummary of Budget")

	// topics, assignment, 2 sanitise, 2 summaries, subedit
	assert.Equal(t, 7, backend.Calls())
	assert.Equal(t, res.Topics, sink.topics)
	assert.Equal(t, res.Assignment, sink.groups)
	assert.Equal(t, res.Edited, sink.edited)
	assert.Equal(t, res.Document, sink.document)
	assert.Equal(t, res.PreEdited, sink.preEdited)
}

func TestRun_NilSink(t *testing.T) {
	stages := New(newClient(scriptedPipeline(t)), Config{Topics: 2})

	res, err := stages.Run(context.Background(), testSet(t), nil)
	require.NoError(t, err)
	assert.Len(t, res.Edited, 2)
}
