package handlers

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/yf-chau/news-summary/internal/artifacts"
	"github.com/yf-chau/news-summary/internal/config"
	"github.com/yf-chau/news-summary/internal/core"
	"github.com/yf-chau/news-summary/internal/store"
)

// NewFetchCmd creates the fetch command
func NewFetchCmd() *cobra.Command {
	var csvPath string

	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the configured feeds into the archive and a CSV file",
		Long: `Fetch every configured feed, archive new articles and export the ones inside the
recency window as CSV. No model calls are made; a later "run --from-archive" works offline.

Examples:
  newsdigest fetch
  newsdigest fetch --csv /tmp/news_data.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := validatedConfig(config.Needs{})
			if err != nil {
				return err
			}
			if csvPath == "" {
				csvPath = filepath.Join(cfg.Output.Directory, artifacts.ArticlesFile)
			}
			return fetchArticles(cmd.Context(), cmd.OutOrStdout(), cfg, csvPath)
		},
	}

	fetchCmd.Flags().StringVar(&csvPath, "csv", "", "CSV output path (default <output.directory>/news_data.csv)")

	return fetchCmd
}

func fetchArticles(ctx context.Context, w io.Writer, cfg *config.Config, csvPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)

	articles, err := collectArticles(ctx, cfg, st, false)
	if err != nil {
		return err
	}
	if err := store.ExportCSV(csvPath, articles); err != nil {
		return err
	}

	fmt.Fprintln(w, sourceTable(articles))
	fmt.Fprintf(w, "Wrote %d articles to %s\n", len(articles), csvPath)
	return nil
}

func sourceTable(articles []core.Article) string {
	counts := map[string]int{}
	for _, a := range articles {
		counts[a.Source]++
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name, fmt.Sprintf("%d", counts[name])})
	}
	return renderTable([]column{col("Source"), num("Articles")}, rows)
}
