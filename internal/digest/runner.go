// Package digest runs the pipeline best-of-N times, scores the candidates against each other
// and picks the document to publish.
package digest

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/yf-chau/news-summary/internal/artifacts"
	"github.com/yf-chau/news-summary/internal/core"
	"github.com/yf-chau/news-summary/internal/evaluate"
	"github.com/yf-chau/news-summary/internal/llm"
	"github.com/yf-chau/news-summary/internal/logger"
	"github.com/yf-chau/news-summary/internal/pipeline"
)

// ErrAllAttemptsFailed is returned when no attempt produced a candidate.
var ErrAllAttemptsFailed = errors.New("all attempts failed")

// Options controls a best-of-N run.
type Options struct {
	BestOf               int  // number of attempts, at least 1
	Parallel             int  // attempts in flight at once; 1 runs them sequentially
	SkipSingleEvaluation bool // with one candidate, select it without asking the model
	Stages               pipeline.Config
}

// Outcome is the result of a complete run.
type Outcome struct {
	RunDir     string
	Candidates []core.CandidateDocument
	Scores     []core.ScoreEntry
	Best       core.CandidateDocument
	Failures   map[int]error // attempt id -> cause
	Usage      llm.Usage
}

// Runner drives the attempts. Each attempt gets its own client clone so diagnostics and token
// counts never mix between attempts.
type Runner struct {
	client *llm.Client
	opts   Options
}

// NewRunner creates a runner on top of client.
func NewRunner(client *llm.Client, opts Options) *Runner {
	if opts.BestOf < 1 {
		opts.BestOf = 1
	}
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}
	return &Runner{client: client, opts: opts}
}

type attemptResult struct {
	doc   core.CandidateDocument
	usage llm.Usage
	err   error
}

// Run generates BestOf candidates from set, scores them and writes every artifact into run.
func (r *Runner) Run(ctx context.Context, set *core.ArticleSet, run *artifacts.Run) (*Outcome, error) {
	if set.Len() == 0 {
		return nil, fmt.Errorf("no articles to digest")
	}
	logger.Info("Starting digest run",
		"articles", set.Len(),
		"best_of", r.opts.BestOf,
		"parallel", r.opts.Parallel,
		"dir", run.Dir)

	results := make([]attemptResult, r.opts.BestOf)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallel)
	for i := 1; i <= r.opts.BestOf; i++ {
		id := i
		g.Go(func() error {
			results[id-1] = r.attempt(gCtx, id, set, run)
			return nil
		})
	}
	_ = g.Wait() // failures are kept per attempt

	out := &Outcome{RunDir: run.Dir, Failures: map[int]error{}}
	var errs []error
	for i, res := range results {
		out.Usage = out.Usage.Add(res.usage)
		if res.err != nil {
			out.Failures[i+1] = res.err
			errs = append(errs, fmt.Errorf("attempt %d: %w", i+1, res.err))
			continue
		}
		out.Candidates = append(out.Candidates, res.doc)
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	if len(out.Candidates) == 0 {
		return out, fmt.Errorf("%w: %w", ErrAllAttemptsFailed, errors.Join(errs...))
	}

	if err := run.WriteCandidates(out.Candidates); err != nil {
		return out, err
	}

	scores, best, usage, err := r.Evaluate(ctx, run, out.Candidates)
	out.Usage = out.Usage.Add(usage)
	if err != nil {
		return out, err
	}
	out.Scores = scores
	out.Best = best

	logger.Info("Digest run complete",
		"candidates", len(out.Candidates),
		"failed", len(out.Failures),
		"best", best.AttemptID,
		"input_tokens", out.Usage.InputTokens,
		"output_tokens", out.Usage.OutputTokens)
	return out, nil
}

func (r *Runner) attempt(ctx context.Context, id int, set *core.ArticleSet, run *artifacts.Run) attemptResult {
	log := logger.With("attempt", id)
	log.Info().Msgf("Generating try %d of %d", id, r.opts.BestOf)

	att, err := run.Attempt(id)
	if err != nil {
		return attemptResult{err: err}
	}
	client := r.client.Clone(att.ErrorPath())
	stages := pipeline.New(client, r.opts.Stages)

	res, err := stages.Run(ctx, set, att)
	if err != nil {
		log.Error().Err(err).Msg("Attempt failed")
		return attemptResult{usage: client.Usage(), err: err}
	}
	return attemptResult{
		doc:   core.CandidateDocument{AttemptID: id, Text: res.Document},
		usage: client.Usage(),
	}
}

// Evaluate scores candidates, stores the scores and the winning document in run and returns
// the winner.
func (r *Runner) Evaluate(ctx context.Context, run *artifacts.Run, candidates []core.CandidateDocument) ([]core.ScoreEntry, core.CandidateDocument, llm.Usage, error) {
	if len(candidates) == 0 {
		return nil, core.CandidateDocument{}, llm.Usage{}, evaluate.ErrNoCandidates
	}

	var (
		scores []core.ScoreEntry
		usage  llm.Usage
	)
	if len(candidates) == 1 && r.opts.SkipSingleEvaluation {
		logger.Info("Single candidate, skipping evaluation")
		scores = []core.ScoreEntry{{AttemptID: candidates[0].AttemptID, Score: evaluate.MaxScore, Reason: "only candidate"}}
	} else {
		client := r.client.Clone(run.ErrorPath())
		var err error
		scores, err = evaluate.New(client, r.opts.Stages.Language).Score(ctx, candidates)
		usage = client.Usage()
		if err != nil {
			return nil, core.CandidateDocument{}, usage, err
		}
	}

	if err := run.WriteScores(scores); err != nil {
		return nil, core.CandidateDocument{}, usage, err
	}

	top, err := evaluate.SelectBest(scores)
	if err != nil {
		return nil, core.CandidateDocument{}, usage, err
	}
	best, err := evaluate.Find(candidates, top.AttemptID)
	if err != nil {
		return nil, core.CandidateDocument{}, usage, err
	}
	logger.Info("Best candidate selected", "summary_id", top.AttemptID, "score", top.Score)

	if err := run.WriteDigest(best.Text); err != nil {
		return nil, core.CandidateDocument{}, usage, err
	}
	return scores, best, usage, nil
}
