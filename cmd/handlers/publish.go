package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/yf-chau/news-summary/internal/artifacts"
	"github.com/yf-chau/news-summary/internal/config"
	"github.com/yf-chau/news-summary/internal/core"
	"github.com/yf-chau/news-summary/internal/evaluate"
	"github.com/yf-chau/news-summary/internal/logger"
)

// NewPublishCmd creates the publish command
func NewPublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish <run-dir>",
		Short: "Publish the selected digest of an existing run",
		Long: `Publish digest.md from a run directory with the configured provider. The title
carries the date the run started.

Examples:
  newsdigest publish output/20250304-090000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := validatedConfig(config.Needs{Publish: true})
			if err != nil {
				return err
			}
			return publishRun(cmd.Context(), cmd.OutOrStdout(), cfg, args[0])
		},
	}
}

func publishRun(ctx context.Context, w io.Writer, cfg *config.Config, dir string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	run, err := artifacts.OpenRun(dir)
	if err != nil {
		return err
	}
	defer func() { _ = run.Close() }()

	text, err := run.ReadDigest()
	if err != nil {
		return fmt.Errorf("run has no selected digest, evaluate it first: %w", err)
	}

	var top core.ScoreEntry
	scores, err := run.ReadScores()
	switch {
	case err == nil:
		if top, err = evaluate.SelectBest(scores); err != nil {
			return err
		}
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn("Run has no scores, publishing digest.md as is", "dir", run.Dir)
	default:
		return err
	}

	date, err := artifacts.RunTime(run.Dir)
	if err != nil {
		logger.Warn("Using today's date for the title", "error", err.Error())
		date = now()
	}

	pub, err := buildPublisher(cfg)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)

	res, err := publishDigest(ctx, cfg, pub, st, run.Dir, top, text, date)
	if err != nil {
		return err
	}
	printPublished(w, res)
	return nil
}
