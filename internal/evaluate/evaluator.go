// Package evaluate scores best-of-N candidate documents against each other with one model call
// and selects the winner.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yf-chau/news-summary/internal/core"
	"github.com/yf-chau/news-summary/internal/logger"
	"github.com/yf-chau/news-summary/internal/pipeline"
	"github.com/yf-chau/news-summary/internal/schema"
)

const (
	MinScore = 1
	MaxScore = 100
)

// ErrNoCandidates is returned when there is nothing to score or select.
var ErrNoCandidates = errors.New("no candidates")

// Evaluator asks the model to score candidates side by side.
type Evaluator struct {
	gen  pipeline.Generator
	lang core.Language
}

// New creates an evaluator that writes its reasons in lang.
func New(gen pipeline.Generator, lang core.Language) *Evaluator {
	if lang == "" {
		lang = core.TraditionalChinese
	}
	return &Evaluator{gen: gen, lang: lang}
}

// BuildPrompt lists every candidate under its summary_id and the scoring rubric.
func BuildPrompt(candidates []core.CandidateDocument) string {
	var sb strings.Builder
	sb.WriteString("You are the chief editor of a company that produces media summaries of the news. ")
	sb.WriteString(fmt.Sprintf("You will be presented with %d choices of news summary. Score them against each other. ", len(candidates)))
	sb.WriteString(fmt.Sprintf("Each score must be an integer between %d and %d.\n\n", MinScore, MaxScore))
	sb.WriteString("You can assume the style and formatting of the summaries are correct.\n\n")

	sb.WriteString("Score them using these criteria:\n")
	sb.WriteString("1. Consistency: Do the summaries share the same key points and structure?\n")
	sb.WriteString("2. Clarity: Is the summary easy to understand for a general audience without background knowledge of the issue?\n")
	sb.WriteString("3. Relevance: Does the summary give a clear overview of the main points and key takeaways of each topic?\n")
	sb.WriteString("4. Order of topics: Are the topics arranged by importance, considering their impact on society as a whole and on the economy?\n")
	sb.WriteString("5. Breadth: Are the topics independent of each other and do they cover a wide range of issues?\n\n")

	sb.WriteString("Score every summary exactly once, using its summary_id.\n\n")
	sb.WriteString("Here are the summaries:\n")
	for _, c := range candidates {
		sb.WriteString(fmt.Sprintf("**summary_id: %d**\n\nsummary_text:%s\n\n", c.AttemptID, c.Text))
	}

	sb.WriteString("Your output should be in JSON format, inside a single ```json fenced block.\n")
	sb.WriteString("Schema:\n")
	sb.WriteString(schema.Describe(schema.ScoreModel{}.Schema()))
	sb.WriteString("\n")
	return sb.String()
}

// Score returns one entry per candidate in the order the model gave them. A response that
// skips a candidate, scores one twice, names an unknown id or leaves the 1-100 range is
// regenerated under the client's retry budget.
func (e *Evaluator) Score(ctx context.Context, candidates []core.CandidateDocument) ([]core.ScoreEntry, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	logger.Info("Evaluating output", "candidates", len(candidates))

	var doc schema.ScoreModel
	err := e.gen.GenerateStructured(ctx, BuildPrompt(candidates), e.lang, &doc, func() error {
		return CheckScores(doc.Scores, candidates)
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate candidates: %w", err)
	}
	return doc.Scores, nil
}

// CheckScores verifies scores cover candidates exactly once within range.
func CheckScores(scores []core.ScoreEntry, candidates []core.CandidateDocument) error {
	want := make(map[int]bool, len(candidates))
	for _, c := range candidates {
		want[c.AttemptID] = true
	}

	seen := make(map[int]bool, len(scores))
	var problems []string
	for _, s := range scores {
		switch {
		case !want[s.AttemptID]:
			problems = append(problems, fmt.Sprintf("unknown summary_id %d", s.AttemptID))
		case seen[s.AttemptID]:
			problems = append(problems, fmt.Sprintf("summary_id %d scored twice", s.AttemptID))
		}
		seen[s.AttemptID] = true
		if s.Score < MinScore || s.Score > MaxScore {
			problems = append(problems, fmt.Sprintf("summary_id %d has score %d outside %d-%d", s.AttemptID, s.Score, MinScore, MaxScore))
		}
	}
	for _, c := range candidates {
		if !seen[c.AttemptID] {
			problems = append(problems, fmt.Sprintf("summary_id %d not scored", c.AttemptID))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", pipeline.ErrInvalidOutput, strings.Join(problems, "; "))
	}
	return nil
}

// SelectBest returns the highest score. Ties go to the entry that comes first in scores.
func SelectBest(scores []core.ScoreEntry) (core.ScoreEntry, error) {
	if len(scores) == 0 {
		return core.ScoreEntry{}, ErrNoCandidates
	}
	best := scores[0]
	for _, s := range scores[1:] {
		if s.Score > best.Score {
			best = s
		}
	}
	return best, nil
}

// Find returns the candidate with the given attempt id.
func Find(candidates []core.CandidateDocument, attemptID int) (core.CandidateDocument, error) {
	for _, c := range candidates {
		if c.AttemptID == attemptID {
			return c, nil
		}
	}
	return core.CandidateDocument{}, fmt.Errorf("no candidate with summary_id %d", attemptID)
}
