package handlers

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/yf-chau/news-summary/internal/config"
	"github.com/yf-chau/news-summary/internal/store"
)

// NewArchiveCmd creates the archive command and its subcommands
func NewArchiveCmd() *cobra.Command {
	archiveCmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect and maintain the article archive",
	}

	archiveCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show archive statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(func(st *store.Store) error { return archiveStats(cmd.OutOrStdout(), st) })
		},
	})

	var limit int
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List published digests, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(func(st *store.Store) error { return archiveHistory(cmd.OutOrStdout(), st, limit) })
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of digests to list")
	archiveCmd.AddCommand(historyCmd)

	var olderThan time.Duration
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete archived articles fetched before --older-than",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(func(st *store.Store) error {
				n, err := st.Prune(olderThan)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d articles\n", n)
				return nil
			})
		},
	}
	pruneCmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Age of the articles to delete")
	archiveCmd.AddCommand(pruneCmd)

	return archiveCmd
}

func withArchive(fn func(st *store.Store) error) error {
	cfg, err := validatedConfig(config.Needs{})
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	if st == nil {
		return fmt.Errorf("article archive is disabled (store.enabled)")
	}
	defer closeStore(st)
	return fn(st)
}

func archiveStats(w io.Writer, st *store.Store) error {
	stats, err := st.GetStats()
	if err != nil {
		return err
	}
	updated := "-"
	if !stats.LastUpdated.IsZero() {
		updated = stats.LastUpdated.Format("2006-01-02 15:04")
	}
	fmt.Fprintln(w, renderTable(
		[]column{num("Articles"), num("Digests"), num("Size (KB)"), col("Last updated")},
		[][]string{{
			fmt.Sprintf("%d", stats.ArticleCount),
			fmt.Sprintf("%d", stats.DigestCount),
			fmt.Sprintf("%.1f", float64(stats.Size)/1024),
			updated,
		}},
	))
	return nil
}

func archiveHistory(w io.Writer, st *store.Store, limit int) error {
	digests, err := st.LatestDigests(limit)
	if err != nil {
		return err
	}
	if len(digests) == 0 {
		fmt.Fprintln(w, "No digests archived yet")
		return nil
	}
	fmt.Fprintln(w, digestTable(digests))
	return nil
}
