// Package tui is a terminal browser for the candidates of a run: their scores, the evaluator's
// reasons, mechanical metrics and the full text.
package tui

import (
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/yf-chau/news-summary/internal/core"
	"github.com/yf-chau/news-summary/internal/evaluate"
)

// Entry is one candidate shown in the browser.
type Entry struct {
	Candidate core.CandidateDocument
	Score     *core.ScoreEntry // nil when the run was never scored
	Metrics   evaluate.DocumentMetrics
}

// Entries pairs candidates with their scores, best score first. Unscored candidates keep
// their attempt order at the end.
func Entries(candidates []core.CandidateDocument, scores []core.ScoreEntry) []Entry {
	byID := make(map[int]core.ScoreEntry, len(scores))
	for _, s := range scores {
		byID[s.AttemptID] = s
	}

	out := make([]Entry, 0, len(candidates))
	for _, c := range candidates {
		e := Entry{Candidate: c, Metrics: evaluate.Measure(c.Text)}
		if s, ok := byID[c.AttemptID]; ok {
			e.Score = &s
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Score, out[j].Score
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Score > b.Score
	})
	return out
}

// Model is the review browser state.
type Model struct {
	entries  []Entry
	cursor   int
	offset   int // first visible line of the detail pane
	width    int
	height   int
	chosen   int // attempt id picked with enter, 0 when none
	quitting bool
}

// New creates the browser over entries.
func New(entries []Entry) Model {
	return Model{entries: entries, width: 100, height: 30}
}

// Chosen returns the attempt id picked with enter, or 0.
func (m Model) Chosen() int { return m.chosen }

// Cursor returns the index of the highlighted entry.
func (m Model) Cursor() int { return m.cursor }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages and updates the model accordingly.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
				m.offset = 0
			}
		case "down", "j":
			if m.cursor < len(m.entries)-1 {
				m.cursor++
				m.offset = 0
			}
		case "pgdown", "f", " ":
			m.offset = min(m.offset+m.pageSize(), m.maxOffset())
		case "pgup", "b":
			m.offset = max(m.offset-m.pageSize(), 0)
		case "enter":
			if len(m.entries) > 0 {
				m.chosen = m.entries[m.cursor].Candidate.AttemptID
				m.quitting = true
				return m, tea.Quit
			}
		}
	}

	return m, nil
}

func (m Model) pageSize() int {
	return max(m.height-8, 1)
}

func (m Model) detailLines() []string {
	if len(m.entries) == 0 {
		return nil
	}
	return strings.Split(m.entries[m.cursor].Candidate.Text, "\n")
}

func (m Model) maxOffset() int {
	return max(len(m.detailLines())-m.pageSize(), 0)
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	docStyle := lipgloss.NewStyle().Margin(1, 2)
	listWidth := max(m.width/3-4, 24)
	listStyle := lipgloss.NewStyle().Border(lipgloss.RoundedBorder(), true).Padding(0, 1).Width(listWidth)
	detailStyle := lipgloss.NewStyle().Border(lipgloss.RoundedBorder(), true).Padding(0, 1).Width(max(m.width-listWidth-10, 30))

	var list strings.Builder
	list.WriteString(titleStyle.Render("Candidates"))
	list.WriteString("\n\n")
	if len(m.entries) == 0 {
		list.WriteString("No candidates in this run.")
	}
	for i, e := range m.entries {
		line := fmt.Sprintf("#%d  %s", e.Candidate.AttemptID, scoreLabel(e.Score))
		if i == m.cursor {
			list.WriteString(selectedStyle.Render("> " + line))
		} else {
			list.WriteString("  " + line)
		}
		list.WriteString("\n")
	}

	var detail strings.Builder
	if len(m.entries) > 0 {
		e := m.entries[m.cursor]
		detail.WriteString(titleStyle.Render(fmt.Sprintf("summary_id %d", e.Candidate.AttemptID)))
		detail.WriteString("\n")
		if e.Score != nil && e.Score.Reason != "" {
			detail.WriteString(dimStyle.Render(e.Score.Reason))
			detail.WriteString("\n")
		}
		detail.WriteString(fmt.Sprintf("topics %d · links %d · words %d\n", e.Metrics.Topics, e.Metrics.Links, e.Metrics.Words))
		for _, w := range e.Metrics.Warnings {
			detail.WriteString(warnStyle.Render("! " + w))
			detail.WriteString("\n")
		}
		detail.WriteString("\n")

		lines := m.detailLines()
		end := min(m.offset+m.pageSize(), len(lines))
		detail.WriteString(strings.Join(lines[m.offset:end], "\n"))
	}

	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, listStyle.Render(list.String()), detailStyle.Render(detail.String()))
	help := dimStyle.Render("\n[↑/k] Up | [↓/j] Down | [pgup/pgdn] Scroll | [enter] Choose | [q] Quit")

	return docStyle.Render(mainContent + help)
}

func scoreLabel(s *core.ScoreEntry) string {
	if s == nil {
		return "unscored"
	}
	return fmt.Sprintf("%3d/100", s.Score)
}

// Run starts the browser and returns the attempt id chosen with enter, or 0 when the user quit.
func Run(entries []Entry, opts ...tea.ProgramOption) (int, error) {
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	final, err := tea.NewProgram(New(entries), opts...).Run()
	if err != nil {
		return 0, fmt.Errorf("error running TUI: %w", err)
	}
	return final.(Model).Chosen(), nil
}
