package handlers

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/yf-chau/news-summary/internal/artifacts"
	"github.com/yf-chau/news-summary/internal/core"
	"github.com/yf-chau/news-summary/internal/evaluate"
	"github.com/yf-chau/news-summary/internal/logger"
	"github.com/yf-chau/news-summary/internal/tui"
)

// runBrowser is replaced in tests.
var runBrowser = func(entries []tui.Entry) (int, error) { return tui.Run(entries) }

// NewReviewCmd creates the review command
func NewReviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review <run-dir>",
		Short: "Browse the candidates of a run and optionally override the selection",
		Long: `Open a terminal browser over the candidates of a run, best score first, with the
evaluator's reasons and simple checks (topic count, links, words). Press enter on a candidate
to make it the run's digest.md; q leaves the selection unchanged.

Examples:
  newsdigest review output/20250304-090000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !logger.IsTerminal(cmd.OutOrStdout()) {
				return fmt.Errorf("review needs an interactive terminal")
			}
			return reviewRun(cmd.OutOrStdout(), args[0])
		},
	}
}

func reviewRun(w io.Writer, dir string) error {
	run, err := artifacts.OpenRun(dir)
	if err != nil {
		return err
	}
	defer func() { _ = run.Close() }()

	candidates, err := run.ReadCandidates()
	if err != nil {
		return err
	}
	scores, err := run.ReadScores()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	chosen, err := runBrowser(tui.Entries(candidates, scores))
	if err != nil {
		return err
	}
	if chosen == 0 {
		fmt.Fprintln(w, "Selection unchanged")
		return nil
	}
	return overrideSelection(w, run, candidates, chosen)
}

func overrideSelection(w io.Writer, run *artifacts.Run, candidates []core.CandidateDocument, chosen int) error {
	doc, err := evaluate.Find(candidates, chosen)
	if err != nil {
		return err
	}
	if err := run.WriteDigest(doc.Text); err != nil {
		return err
	}
	fmt.Fprintf(w, "summary_id %d is now %s\n", chosen, run.Path(artifacts.DigestFile))
	return nil
}
