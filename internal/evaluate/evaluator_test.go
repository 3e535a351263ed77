package evaluate

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yf-chau/news-summary/internal/core"
	"github.com/yf-chau/news-summary/internal/llm"
	"github.com/yf-chau/news-summary/internal/llm/llmtest"
	"github.com/yf-chau/news-summary/internal/pipeline"
	"github.com/yf-chau/news-summary/internal/retry"
)

func candidates(n int) []core.CandidateDocument {
	out := make([]core.CandidateDocument, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, core.CandidateDocument{AttemptID: i, Text: strings.Repeat("## T\n\nbody\n\n", i)})
	}
	return out
}

func newEvaluator(b llm.Backend) *Evaluator {
	p := retry.Default()
	p.Sleep = retry.NoSleep
	return New(llm.NewClient(b, llm.WithPolicy(p)), core.TraditionalChinese)
}

func TestSelectBest(t *testing.T) {
	tests := []struct {
		name   string
		scores []core.ScoreEntry
		want   int
	}{
		{"clear winner", []core.ScoreEntry{{AttemptID: 1, Score: 72}, {AttemptID: 2, Score: 91}, {AttemptID: 3, Score: 88}}, 2},
		{"single", []core.ScoreEntry{{AttemptID: 1, Score: 40}}, 1},
		{"tie goes to first in output", []core.ScoreEntry{{AttemptID: 3, Score: 90}, {AttemptID: 1, Score: 90}, {AttemptID: 2, Score: 10}}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			best, err := SelectBest(tt.scores)
			require.NoError(t, err)
			assert.Equal(t, tt.want, best.AttemptID)
		})
	}

	_, err := SelectBest(nil)
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestScore(t *testing.T) {
	backend := llmtest.Replies(llmtest.JSON(`{"scores": [
		{"summary_id": 1, "score": 72, "reason": "清晰"},
		{"summary_id": 2, "score": 91, "reason": "全面"},
		{"summary_id": 3, "score": 88, "reason": "良好"}
	]}`))
	ev := newEvaluator(backend)

	scores, err := ev.Score(context.Background(), candidates(3))
	require.NoError(t, err)
	require.Len(t, scores, 3)

	best, err := SelectBest(scores)
	require.NoError(t, err)
	assert.Equal(t, 2, best.AttemptID)

	prompt := backend.Prompts()[0]
	assert.Contains(t, prompt, "presented with 3 choices")
	assert.Contains(t, prompt, "**summary_id: 2**\n\nsummary_text:## T")
}

func TestScore_InvalidScoresRegenerated(t *testing.T) {
	backend := llmtest.Replies(
		llmtest.JSON(`{"scores": [{"summary_id": 1, "score": 150, "reason": "x"}, {"summary_id": 2, "score": 50, "reason": "y"}]}`),
		llmtest.JSON(`{"scores": [{"summary_id": 1, "score": 60, "reason": "x"}]}`),
		llmtest.JSON(`{"scores": [{"summary_id": 1, "score": 60, "reason": "x"}, {"summary_id": 2, "score": 70, "reason": "y"}]}`),
	)
	ev := newEvaluator(backend)

	scores, err := ev.Score(context.Background(), candidates(2))
	require.NoError(t, err)
	assert.Equal(t, 3, backend.Calls())
	assert.Equal(t, 70, scores[1].Score)
}

func TestScore_SingleCandidateStillCallsModel(t *testing.T) {
	backend := llmtest.Replies(llmtest.JSON(`{"scores": [{"summary_id": 1, "score": 80, "reason": "only one"}]}`))
	ev := newEvaluator(backend)

	scores, err := ev.Score(context.Background(), candidates(1))
	require.NoError(t, err)
	assert.Equal(t, 1, backend.Calls())
	assert.Equal(t, []core.ScoreEntry{{AttemptID: 1, Score: 80, Reason: "only one"}}, scores)
}

func TestScore_NoCandidates(t *testing.T) {
	backend := llmtest.Replies("unused")
	_, err := newEvaluator(backend).Score(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoCandidates)
	assert.Equal(t, 0, backend.Calls())
}

func TestCheckScores(t *testing.T) {
	cands := candidates(2)
	tests := []struct {
		name   string
		scores []core.ScoreEntry
		want   string
	}{
		{"unknown id", []core.ScoreEntry{{AttemptID: 1, Score: 5}, {AttemptID: 2, Score: 5}, {AttemptID: 9, Score: 5}}, "unknown summary_id 9"},
		{"duplicate", []core.ScoreEntry{{AttemptID: 1, Score: 5}, {AttemptID: 1, Score: 6}, {AttemptID: 2, Score: 5}}, "summary_id 1 scored twice"},
		{"missing", []core.ScoreEntry{{AttemptID: 2, Score: 5}}, "summary_id 1 not scored"},
		{"zero", []core.ScoreEntry{{AttemptID: 1, Score: 0}, {AttemptID: 2, Score: 5}}, "outside 1-100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckScores(tt.scores, cands)
			require.Error(t, err)
			assert.ErrorIs(t, err, pipeline.ErrInvalidOutput)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	assert.NoError(t, CheckScores([]core.ScoreEntry{{AttemptID: 2, Score: 1}, {AttemptID: 1, Score: 100}}, cands))
}

func TestFind(t *testing.T) {
	c, err := Find(candidates(3), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, c.AttemptID)

	_, err = Find(candidates(3), 7)
	assert.Error(t, err)
}

func TestMeasure(t *testing.T) {
	doc := "## 預算案\n\n政府公布預算 deficit narrows\n\n#### Links\n\n* [集誌社：預算](https://example.com/1)\n\n\n" +
		"## Courts\n\nAppeal ^^^^^ dismissed\n\n#### Links\n\n\n\n"

	m := Measure(doc)
	assert.Equal(t, 2, m.Topics)
	assert.Equal(t, 1, m.Links)
	assert.Equal(t, 1, m.RedactionMarks)
	assert.Contains(t, m.Warnings, "some topics have no source links")
	assert.Contains(t, m.Warnings, "redaction marks left in text")
	assert.Greater(t, m.Words, 10)

	assert.Contains(t, Measure("").Warnings, "no topic headings")
}
