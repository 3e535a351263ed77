package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yf-chau/news-summary/internal/core"
)

// CSVHeader is the column order of the ingested-news dump.
var CSVHeader = []string{"uuid", "headline", "summary", "content", "published", "source", "url", "categories"}

// WriteCSV writes articles as CSV with a header row. Categories are joined with "|".
func WriteCSV(w io.Writer, articles []core.Article) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, a := range articles {
		published := ""
		if !a.Published.IsZero() {
			published = a.Published.UTC().Format(time.RFC3339)
		}
		record := []string{a.ID, a.Headline, a.Summary, a.Content, published, a.Source, a.URL, strings.Join(a.Categories, "|")}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportCSV writes articles to path, creating parent directories.
func ExportCSV(path string, articles []core.Article) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteCSV(f, articles); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// ReadCSV parses a dump written by WriteCSV.
func ReadCSV(r io.Reader) ([]core.Article, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty csv")
	}
	if strings.Join(records[0], ",") != strings.Join(CSVHeader, ",") {
		return nil, fmt.Errorf("unexpected csv header %v", records[0])
	}

	articles := make([]core.Article, 0, len(records)-1)
	for i, rec := range records[1:] {
		a := core.Article{
			ID:       rec[0],
			Headline: rec[1],
			Summary:  rec[2],
			Content:  rec[3],
			Source:   rec[5],
			URL:      rec[6],
		}
		if rec[4] != "" {
			t, err := time.Parse(time.RFC3339, rec[4])
			if err != nil {
				return nil, fmt.Errorf("row %d: bad published time: %w", i+2, err)
			}
			a.Published = t
		}
		if rec[7] != "" {
			a.Categories = strings.Split(rec[7], "|")
		}
		articles = append(articles, a)
	}
	return articles, nil
}
