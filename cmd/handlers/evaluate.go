package handlers

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/yf-chau/news-summary/internal/artifacts"
	"github.com/yf-chau/news-summary/internal/config"
	"github.com/yf-chau/news-summary/internal/digest"
)

// NewEvaluateCmd creates the evaluate command
func NewEvaluateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate <run-dir>",
		Short: "Score the candidates of an existing run again",
		Long: `Re-read 05-final_text.json from a run directory, ask Gemini to score the
candidates against each other and rewrite 06-score.json and digest.md.

Examples:
  newsdigest evaluate output/20250304-090000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := validatedConfig(config.Needs{LLM: true})
			if err != nil {
				return err
			}
			return evaluateRun(cmd.Context(), cmd.OutOrStdout(), cfg, args[0])
		},
	}
}

func evaluateRun(ctx context.Context, w io.Writer, cfg *config.Config, dir string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	run, err := artifacts.OpenRun(dir)
	if err != nil {
		return err
	}
	defer func() { _ = run.Close() }()

	candidates, err := run.ReadCandidates()
	if err != nil {
		return err
	}

	client, err := newClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	opts := cfg.RunnerOptions()
	opts.SkipSingleEvaluation = false
	scores, best, usage, err := digest.NewRunner(client, opts).Evaluate(ctx, run, candidates)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	fmt.Fprintln(w, scoreTable(candidates, scores, best.AttemptID))
	fmt.Fprintf(w, "Tokens: %d in, %d out\n", usage.InputTokens, usage.OutputTokens)
	fmt.Fprintf(w, "Digest: %s\n", run.Path(artifacts.DigestFile))
	return nil
}
