package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yf-chau/news-summary/internal/artifacts"
	"github.com/yf-chau/news-summary/internal/config"
	"github.com/yf-chau/news-summary/internal/core"
	"github.com/yf-chau/news-summary/internal/feeds"
	"github.com/yf-chau/news-summary/internal/llm"
	"github.com/yf-chau/news-summary/internal/llm/llmtest"
	"github.com/yf-chau/news-summary/internal/publish"
	"github.com/yf-chau/news-summary/internal/retry"
	"github.com/yf-chau/news-summary/internal/store"
	"github.com/yf-chau/news-summary/internal/tui"
)

var fixedNow = time.Date(2025, 3, 14, 9, 0, 0, 0, time.Local)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Pipeline.Topics = 2
	cfg.Pipeline.BestOf = 3
	cfg.Pipeline.Language = "tc"
	cfg.Feeds.Sources = map[string]string{"集誌社": "https://example.com/feed"}
	cfg.Feeds.Window = "168h"
	cfg.Output.Directory = filepath.Join(dir, "output")
	cfg.Store.Enabled = true
	cfg.Store.DataDir = filepath.Join(dir, "data")
	cfg.Publish.Provider = publish.ProviderFile
	cfg.Publish.Directory = filepath.Join(dir, "digests")
	cfg.Publish.TitleSuffix = publish.DefaultTitleSuffix
	return cfg
}

type fakeIngester struct {
	calls    int
	articles []core.Article
}

func (f *fakeIngester) Ingest(context.Context, []feeds.Source) ([]core.Article, error) {
	f.calls++
	return f.articles, nil
}

func testArticles() []core.Article {
	base := fixedNow.Add(-48 * time.Hour)
	return []core.Article{
		{ID: "u1", Headline: "Budget unveiled", Summary: "Deficit narrows", Content: "Budget text.", Source: "集誌社", URL: "https://example.com/u1", Published: base},
		{ID: "u2", Headline: "Appeal dismissed", Summary: "Ruling", Content: "Court text.", Source: "法庭線", URL: "https://example.com/u2", Published: base},
		{ID: "old", Headline: "Last month", Summary: "Stale", Content: "Old text.", Source: "集誌社", URL: "https://example.com/old", Published: fixedNow.AddDate(0, -1, 0)},
	}
}

var (
	topicRe   = regexp.MustCompile(`news summary for the topic: ([^.]+)\.`)
	summaryRe = regexp.MustCompile(`\*\*summary_id: (\d+)\*\*`)
)

// scriptedModel answers every stage; candidate i scores scores[i-1].
func scriptedModel(t *testing.T, scores []int) *llmtest.Backend {
	return llmtest.Func(func(_ int, prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Identify the top"):
			return llmtest.JSON(`{"topics": ["Budget", "Courts"]}`), nil
		case strings.Contains(prompt, "Major Themes:"):
			return llmtest.JSON(`{"topics": [
				{"topic": "Budget", "articles": [{"headline": "Budget unveiled", "uuid": "u1"}]},
				{"topic": "Courts", "articles": [{"headline": "Appeal dismissed", "uuid": "u2"}]}
			]}`), nil
		case strings.Contains(prompt, "news summary for the topic"):
			m := topicRe.FindStringSubmatch(prompt)
			body, _ := json.Marshal(core.TopicSummary{Topic: m[1], Summary: m[1] + " summary"})
			return llmtest.JSON(string(body)), nil
		case strings.Contains(prompt, "news subeditor"):
			return llmtest.JSON(`{"topics": [{"id": 1, "topic": "預算", "summary": "預算摘要"}, {"id": 2, "topic": "法庭", "summary": "法庭摘要"}]}`), nil
		case strings.Contains(prompt, "chief editor"):
			var out []core.ScoreEntry
			for _, m := range summaryRe.FindAllStringSubmatch(prompt, -1) {
				id, _ := strconv.Atoi(m[1])
				out = append(out, core.ScoreEntry{AttemptID: id, Score: scores[id-1], Reason: fmt.Sprintf("reason %d", id)})
			}
			body, _ := json.Marshal(map[string]any{"scores": out})
			return llmtest.JSON(string(body)), nil
		}
		t.Errorf("unexpected prompt: %.80s", prompt)
		return "", fmt.Errorf("unexpected prompt")
	})
}

// stubSeams points the command seams at fakes for the duration of the test.
func stubSeams(t *testing.T, backend llm.Backend, ing *fakeIngester) {
	t.Helper()
	origClient, origIngester, origNow := newClient, newIngester, now
	t.Cleanup(func() { newClient, newIngester, now = origClient, origIngester, origNow })

	newClient = func(context.Context, *config.Config) (*llm.Client, error) {
		p := retry.Default()
		p.Sleep = retry.NoSleep
		return llm.NewClient(backend, llm.WithPolicy(p)), nil
	}
	newIngester = func(*config.Config) ingester { return ing }
	now = func() time.Time { return fixedNow }
}

func TestRunDigest_PublishesBestCandidate(t *testing.T) {
	cfg := testConfig(t)
	ing := &fakeIngester{articles: testArticles()}
	stubSeams(t, scriptedModel(t, []int{72, 91, 88}), ing)

	var out bytes.Buffer
	require.NoError(t, runDigest(context.Background(), &out, cfg, runOptions{}))

	assert.Contains(t, out.String(), "reason 2")
	assert.Contains(t, out.String(), "Published \"March 14, 2025 Hong Kong News Digest\"")

	page := filepath.Join(cfg.Publish.Directory, "march-14-2025-hong-kong-news-digest.md")
	md, err := os.ReadFile(page)
	require.NoError(t, err)
	assert.Contains(t, string(md), "## 預算")

	runDir := filepath.Join(cfg.Output.Directory, "20250314-090000")
	f, err := os.Open(filepath.Join(runDir, artifacts.ArticlesFile))
	require.NoError(t, err)
	defer f.Close()
	exported, err := store.ReadCSV(f)
	require.NoError(t, err)
	assert.Len(t, exported, 2, "articles outside the window are not exported")

	st, err := store.NewStore(cfg.Store.DataDir)
	require.NoError(t, err)
	defer st.Close()
	digests, err := st.LatestDigests(5)
	require.NoError(t, err)
	require.Len(t, digests, 1)
	assert.Equal(t, 2, digests[0].AttemptID)
	assert.Equal(t, 91, digests[0].Score)
	assert.Equal(t, runDir, digests[0].RunDir)
}

func TestRunDigest_FromArchiveWithoutPublishing(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.BestOf = 1
	cfg.Pipeline.SkipSingleEvaluation = true
	ing := &fakeIngester{articles: testArticles()}
	backend := scriptedModel(t, []int{50})
	stubSeams(t, backend, ing)

	var out bytes.Buffer
	require.NoError(t, fetchArticles(context.Background(), &out, cfg, filepath.Join(t.TempDir(), "news.csv")))
	assert.Contains(t, out.String(), "Wrote 2 articles")

	out.Reset()
	require.NoError(t, runDigest(context.Background(), &out, cfg, runOptions{fromArchive: true, noPublish: true}))
	assert.Equal(t, 1, ing.calls, "run --from-archive does not fetch")
	assert.Contains(t, out.String(), "Digest: ")
	assert.NoDirExists(t, cfg.Publish.Directory)

	for _, p := range backend.Prompts() {
		assert.NotContains(t, p, "chief editor", "single candidate is not evaluated")
	}
}

func TestRunDigest_DryRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.AI.Gemini.Model = "gemini-2.5-flash"
	backend := scriptedModel(t, nil)
	stubSeams(t, backend, &fakeIngester{articles: testArticles()})

	var out bytes.Buffer
	require.NoError(t, runDigest(context.Background(), &out, cfg, runOptions{dryRun: true}))
	assert.Contains(t, out.String(), "Cost Estimation for gemini-2.5-flash")
	assert.Contains(t, out.String(), "evaluation")
	assert.Zero(t, backend.Calls())
	assert.NoDirExists(t, cfg.Output.Directory)
}

func TestRunDigest_NoArticles(t *testing.T) {
	cfg := testConfig(t)
	stubSeams(t, scriptedModel(t, nil), &fakeIngester{})

	err := runDigest(context.Background(), &bytes.Buffer{}, cfg, runOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no articles")
}

func writeRun(t *testing.T, root string, scores []core.ScoreEntry) string {
	t.Helper()
	run, err := artifacts.NewRun(root, fixedNow)
	require.NoError(t, err)
	defer run.Close()

	require.NoError(t, run.WriteCandidates([]core.CandidateDocument{
		{AttemptID: 1, Text: "## 一\n\nfirst\n"},
		{AttemptID: 2, Text: "## 二\n\nsecond\n"},
	}))
	if scores != nil {
		require.NoError(t, run.WriteScores(scores))
		require.NoError(t, run.WriteDigest("## 二\n\nsecond\n"))
	}
	return run.Dir
}

func TestEvaluateRun(t *testing.T) {
	cfg := testConfig(t)
	stubSeams(t, scriptedModel(t, []int{80, 40}), nil)
	dir := writeRun(t, cfg.Output.Directory, nil)

	var out bytes.Buffer
	require.NoError(t, evaluateRun(context.Background(), &out, cfg, dir))
	assert.Contains(t, out.String(), "reason 1")

	run, err := artifacts.OpenRun(dir)
	require.NoError(t, err)
	defer run.Close()
	digest, err := run.ReadDigest()
	require.NoError(t, err)
	assert.Equal(t, "## 一\n\nfirst\n", digest)
}

func TestPublishRun_TitledByRunDate(t *testing.T) {
	cfg := testConfig(t)
	stubSeams(t, nil, nil)
	now = func() time.Time { return fixedNow.AddDate(0, 0, 3) }
	dir := writeRun(t, cfg.Output.Directory, []core.ScoreEntry{{AttemptID: 1, Score: 10}, {AttemptID: 2, Score: 90}})

	var out bytes.Buffer
	require.NoError(t, publishRun(context.Background(), &out, cfg, dir))

	md, err := os.ReadFile(filepath.Join(cfg.Publish.Directory, "march-14-2025-hong-kong-news-digest.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "second")
}

func TestPublishRun_NeedsDigest(t *testing.T) {
	cfg := testConfig(t)
	dir := writeRun(t, cfg.Output.Directory, nil)

	err := publishRun(context.Background(), &bytes.Buffer{}, cfg, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evaluate it first")
}

func TestReviewRun(t *testing.T) {
	tests := []struct {
		name   string
		chosen int
		want   string
		output string
	}{
		{"override", 1, "## 一\n\nfirst\n", "summary_id 1 is now"},
		{"quit", 0, "## 二\n\nsecond\n", "Selection unchanged"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeRun(t, t.TempDir(), []core.ScoreEntry{{AttemptID: 1, Score: 10}, {AttemptID: 2, Score: 90}})

			orig := runBrowser
			t.Cleanup(func() { runBrowser = orig })
			var shown []tui.Entry
			runBrowser = func(entries []tui.Entry) (int, error) {
				shown = entries
				return tt.chosen, nil
			}

			var out bytes.Buffer
			require.NoError(t, reviewRun(&out, dir))
			assert.Contains(t, out.String(), tt.output)
			require.Len(t, shown, 2)
			assert.Equal(t, 2, shown[0].Candidate.AttemptID)

			got, err := os.ReadFile(filepath.Join(dir, artifacts.DigestFile))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestBuildPublisher(t *testing.T) {
	cfg := testConfig(t)

	pub, err := buildPublisher(cfg)
	require.NoError(t, err)
	assert.IsType(t, &publish.FilePublisher{}, pub)

	cfg.Publish.Notify.Discord.WebhookURL = "https://discord.com/api/webhooks/1/abc"
	pub, err = buildPublisher(cfg)
	require.NoError(t, err)
	assert.Equal(t, "file+discord", pub.Name())

	cfg.Publish.Provider = publish.ProviderNone
	pub, err = buildPublisher(cfg)
	require.NoError(t, err)
	assert.Nil(t, pub)

	cfg.Publish.Provider = "medium"
	_, err = buildPublisher(cfg)
	assert.Error(t, err)
}

func TestScoreTable(t *testing.T) {
	got := scoreTable(
		[]core.CandidateDocument{{AttemptID: 1, Text: "## A\n\n* [s：h](https://example.com)\n"}, {AttemptID: 2, Text: "no headings"}},
		[]core.ScoreEntry{{AttemptID: 1, Score: 77, Reason: "tight"}},
		1,
	)
	assert.Contains(t, got, "summary_id")
	assert.Contains(t, got, "77")
	assert.Contains(t, got, "tight")
	assert.Contains(t, got, "no topic headings")
}

func TestRenderTable_HeadersVerbatim(t *testing.T) {
	got := renderTable([]column{col("Source"), num("summary_id")}, [][]string{{"集誌社"}})
	assert.Contains(t, got, "Source")
	assert.Contains(t, got, "summary_id")
	assert.NotContains(t, got, "SUMMARY_ID")
	assert.Contains(t, got, "集誌社")
}

func TestArchiveCommands(t *testing.T) {
	st, err := store.NewStore(t.TempDir())
	require.NoError(t, err)
	defer st.Close()

	var out bytes.Buffer
	require.NoError(t, archiveHistory(&out, st, 5))
	assert.Contains(t, out.String(), "No digests archived yet")

	require.NoError(t, st.SaveDigest(store.Digest{RunDir: "output/20250314-090000", Title: "March 14, 2025 Hong Kong News Digest", AttemptID: 2, Score: 91}))
	out.Reset()
	require.NoError(t, archiveHistory(&out, st, 5))
	assert.Contains(t, out.String(), "March 14, 2025 Hong Kong News Digest")

	out.Reset()
	require.NoError(t, archiveStats(&out, st))
	assert.Contains(t, out.String(), "Digests")
}
