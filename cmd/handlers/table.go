package handlers

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/yf-chau/news-summary/internal/core"
	"github.com/yf-chau/news-summary/internal/evaluate"
	"github.com/yf-chau/news-summary/internal/store"
)

// column is one table column; numeric columns are right-aligned.
type column struct {
	title   string
	numeric bool
}

func col(title string) column { return column{title: title} }
func num(title string) column { return column{title: title, numeric: true} }

// renderTable draws rows in the rounded style. Header text is printed as given.
func renderTable(cols []column, rows [][]string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault

	header := make(table.Row, len(cols))
	configs := make([]table.ColumnConfig, len(cols))
	for i, c := range cols {
		header[i] = c.title
		configs[i] = table.ColumnConfig{Number: i + 1, AlignHeader: text.AlignLeft, WidthMax: 60}
		if c.numeric {
			configs[i].Align = text.AlignRight
		}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(cols))
		for i := range r {
			r[i] = ""
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}
	return tw.Render()
}

// scoreTable lists every candidate with its score and mechanical metrics. The selected
// candidate is starred; unscored candidates show a dash.
func scoreTable(candidates []core.CandidateDocument, scores []core.ScoreEntry, best int) string {
	byID := make(map[int]core.ScoreEntry, len(scores))
	for _, s := range scores {
		byID[s.AttemptID] = s
	}

	rows := make([][]string, 0, len(candidates))
	for _, c := range candidates {
		m := evaluate.Measure(c.Text)
		score, reason := "-", ""
		if s, ok := byID[c.AttemptID]; ok {
			score = fmt.Sprintf("%d", s.Score)
			reason = s.Reason
		}
		marker := ""
		if c.AttemptID == best {
			marker = "*"
		}
		rows = append(rows, []string{
			marker,
			fmt.Sprintf("%d", c.AttemptID),
			score,
			fmt.Sprintf("%d", m.Topics),
			fmt.Sprintf("%d", m.Links),
			fmt.Sprintf("%d", m.Words),
			strings.Join(m.Warnings, "; "),
			reason,
		})
	}

	return renderTable([]column{
		col(""), num("summary_id"), num("score"), num("topics"), num("links"), num("words"), col("warnings"), col("reason"),
	}, rows)
}

func digestTable(digests []store.Digest) string {
	rows := make([][]string, 0, len(digests))
	for _, d := range digests {
		rows = append(rows, []string{
			d.DateGenerated.Local().Format("2006-01-02 15:04"),
			d.Title,
			fmt.Sprintf("%d", d.AttemptID),
			fmt.Sprintf("%d", d.Score),
			d.RunDir,
		})
	}
	return renderTable([]column{col("Date"), col("Title"), num("summary_id"), num("score"), col("Run")}, rows)
}
