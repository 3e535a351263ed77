package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yf-chau/news-summary/internal/core"
)

func testEntries() []Entry {
	candidates := []core.CandidateDocument{
		{AttemptID: 1, Text: "## A\n\nalpha\n\n#### Links\n\n* [s：h](https://example.com)\n"},
		{AttemptID: 2, Text: "## B\n\nbeta\n"},
		{AttemptID: 3, Text: "## C\n\n" + strings.Repeat("line\n", 100)},
	}
	scores := []core.ScoreEntry{
		{AttemptID: 1, Score: 72, Reason: "clear"},
		{AttemptID: 2, Score: 91, Reason: "thorough"},
	}
	return Entries(candidates, scores)
}

func press(m tea.Model, keys ...tea.KeyMsg) tea.Model {
	for _, k := range keys {
		m, _ = m.Update(k)
	}
	return m
}

var (
	down  = tea.KeyMsg{Type: tea.KeyDown}
	up    = tea.KeyMsg{Type: tea.KeyUp}
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	pgdn  = tea.KeyMsg{Type: tea.KeyPgDown}
)

func TestEntries_SortedByScore(t *testing.T) {
	entries := testEntries()
	require.Len(t, entries, 3)

	var ids []int
	for _, e := range entries {
		ids = append(ids, e.Candidate.AttemptID)
	}
	assert.Equal(t, []int{2, 1, 3}, ids)
	assert.Nil(t, entries[2].Score)
	assert.Equal(t, 1, entries[1].Metrics.Links)
}

func TestNavigation(t *testing.T) {
	m := press(New(testEntries()), down, down, down, up)
	assert.Equal(t, 1, m.(Model).Cursor())

	m = press(m, up, up)
	assert.Equal(t, 0, m.(Model).Cursor())
}

func TestEnterChoosesHighlighted(t *testing.T) {
	m, cmd := press(New(testEntries()), down).Update(enter)
	require.NotNil(t, cmd)
	assert.Equal(t, 1, m.(Model).Chosen())
	assert.Empty(t, m.(Model).View())
}

func TestQuitChoosesNothing(t *testing.T) {
	m, cmd := New(testEntries()).Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, 0, m.(Model).Chosen())
}

func TestScrollStaysInBounds(t *testing.T) {
	m := press(New(testEntries()), down, down)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 20})
	for i := 0; i < 50; i++ {
		m = press(m, pgdn)
	}
	model := m.(Model)
	assert.Equal(t, model.maxOffset(), model.offset)
	assert.Contains(t, model.View(), "line")
}

func TestView(t *testing.T) {
	view := New(testEntries()).View()
	assert.Contains(t, view, "Candidates")
	assert.Contains(t, view, "#2   91/100")
	assert.Contains(t, view, "unscored")
	assert.Contains(t, view, "thorough")
	assert.Contains(t, view, "beta")

	assert.Contains(t, New(nil).View(), "No candidates in this run.")
}
