package handlers

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/yf-chau/news-summary/internal/artifacts"
	"github.com/yf-chau/news-summary/internal/config"
	"github.com/yf-chau/news-summary/internal/core"
	"github.com/yf-chau/news-summary/internal/cost"
	"github.com/yf-chau/news-summary/internal/digest"
	"github.com/yf-chau/news-summary/internal/evaluate"
	"github.com/yf-chau/news-summary/internal/logger"
	"github.com/yf-chau/news-summary/internal/store"
)

type runOptions struct {
	fromArchive bool
	noPublish   bool
	dryRun      bool
}

// NewRunCmd creates the run command
func NewRunCmd() *cobra.Command {
	var opts runOptions

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Ingest feeds, generate candidate digests, pick the best and publish it",
		Long: `Run the whole pipeline once.

Articles from the configured feeds inside the recency window are grouped into topics,
summarized, subedited and assembled into a markdown digest. With --best-of N the pipeline
runs N times and Gemini scores the candidates against each other; the highest score wins.
Every intermediate output is kept in a timestamped directory under output.directory.

Examples:
  newsdigest run
  newsdigest run --best-of 3 --parallel 3
  newsdigest run --from-archive --language sc --no-publish
  newsdigest run --sanitize --topics 6
  newsdigest run --best-of 5 --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()
			if err := applyPipelineFlags(cmd, cfg); err != nil {
				return err
			}
			needs := config.Needs{LLM: !opts.dryRun, Publish: !opts.noPublish && !opts.dryRun}
			if err := cfg.Validate(needs); err != nil {
				return err
			}
			return runDigest(cmd.Context(), cmd.OutOrStdout(), cfg, opts)
		},
	}

	runCmd.Flags().Int("best-of", 0, "Number of candidate digests to generate (overrides pipeline.best_of)")
	runCmd.Flags().Int("topics", 0, "Number of topics per digest (overrides pipeline.topics)")
	runCmd.Flags().String("language", "", "Output language: tc, sc or en (overrides pipeline.language)")
	runCmd.Flags().Bool("sanitize", false, "Redact spans likely to trip content-safety filters before summarizing")
	runCmd.Flags().Int("parallel", 0, "Attempts generated at once (overrides pipeline.parallel_attempts)")
	runCmd.Flags().BoolVar(&opts.fromArchive, "from-archive", false, "Use archived articles instead of fetching feeds")
	runCmd.Flags().BoolVar(&opts.noPublish, "no-publish", false, "Stop after selecting the best candidate")
	runCmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Estimate the cost of the run without calling the model")

	return runCmd
}

// applyPipelineFlags copies explicitly set flags over the loaded configuration.
func applyPipelineFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error
	if flags.Changed("best-of") {
		cfg.Pipeline.BestOf, err = flags.GetInt("best-of")
	}
	if err == nil && flags.Changed("topics") {
		cfg.Pipeline.Topics, err = flags.GetInt("topics")
	}
	if err == nil && flags.Changed("language") {
		cfg.Pipeline.Language, err = flags.GetString("language")
	}
	if err == nil && flags.Changed("sanitize") {
		cfg.Pipeline.Sanitize, err = flags.GetBool("sanitize")
	}
	if err == nil && flags.Changed("parallel") {
		cfg.Pipeline.ParallelAttempts, err = flags.GetInt("parallel")
	}
	return err
}

func runDigest(ctx context.Context, w io.Writer, cfg *config.Config, opts runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	started := now()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)

	articles, err := collectArticles(ctx, cfg, st, opts.fromArchive)
	if err != nil {
		return err
	}
	set, err := core.NewArticleSet(articles)
	if err != nil {
		return err
	}
	if set.Len() == 0 {
		return fmt.Errorf("no articles published in the last %s", cfg.FeedWindow())
	}

	if opts.dryRun {
		est := cost.EstimateDigestCost(set, cost.Plan{
			Model:  cfg.AI.Gemini.Model,
			BestOf: cfg.Pipeline.BestOf,
			Stages: cfg.StageConfig(),
		})
		fmt.Fprint(w, est.FormatEstimate())
		return nil
	}

	run, err := artifacts.NewRun(cfg.Output.Directory, started)
	if err != nil {
		return err
	}
	defer func() { _ = run.Close() }()

	if err := store.ExportCSV(run.Path(artifacts.ArticlesFile), set.All()); err != nil {
		logger.Warn("Failed to export articles", "error", err.Error())
	}

	client, err := newClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	out, err := digest.NewRunner(client, cfg.RunnerOptions()).Run(ctx, set, run)
	if out != nil {
		reportFailures(w, out.Failures)
	}
	if err != nil {
		return fmt.Errorf("digest run failed (artifacts in %s): %w", run.Dir, err)
	}

	fmt.Fprintln(w, scoreTable(out.Candidates, out.Scores, out.Best.AttemptID))
	fmt.Fprintf(w, "Run directory: %s\n", run.Dir)
	fmt.Fprintf(w, "Tokens: %d in, %d out (~$%.4f)\n", out.Usage.InputTokens, out.Usage.OutputTokens, cost.Price(cfg.AI.Gemini.Model, out.Usage))

	top, err := evaluate.SelectBest(out.Scores)
	if err != nil {
		return err
	}

	if opts.noPublish {
		fmt.Fprintf(w, "Digest: %s\n", run.Path(artifacts.DigestFile))
		return nil
	}

	pub, err := buildPublisher(cfg)
	if err != nil {
		return err
	}
	res, err := publishDigest(ctx, cfg, pub, st, run.Dir, top, out.Best.Text, started)
	if err != nil {
		return err
	}
	printPublished(w, res)
	return nil
}

func reportFailures(w io.Writer, failures map[int]error) {
	ids := make([]int, 0, len(failures))
	for id := range failures {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "Attempt %d failed: %v\n", id, failures[id])
	}
}

func printPublished(w io.Writer, res *published) {
	if res.Location == "" {
		fmt.Fprintf(w, "%s (not published)\n", res.Title)
		return
	}
	fmt.Fprintf(w, "Published %q: %s\n", res.Title, res.Location)
}

