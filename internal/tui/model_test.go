package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docseek/internal/domain"
	"docseek/internal/query"
)

type fakeAsker struct {
	answer *query.Answer
	err    error
	multi  []bool
}

func (f *fakeAsker) Ask(_ context.Context, q string, multi bool, _ func(string) error) (*query.Answer, error) {
	f.multi = append(f.multi, multi)
	return f.answer, f.err
}

func source(path, content string) domain.SearchResult {
	return domain.SearchResult{Document: domain.Document{Content: content, Metadata: map[string]any{domain.MetaSource: path}}}
}

func sized(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	return next.(Model)
}

func TestEnterRunsQuestionAndShowsAnswer(t *testing.T) {
	svc := &fakeAsker{answer: &query.Answer{
		Text:    "It is in a.txt",
		Sources: []domain.SearchResult{source("a.txt", "Budget is approved. Lunch at noon."), source("b.txt", "Other.")},
	}}
	m := sized(t, New(context.Background(), svc, "2 chunks", false))
	m.input.SetValue("budget approved?")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.True(t, m.busy)
	assert.Empty(t, m.input.Value())

	// run the ask command directly; the batch also carries a spinner tick
	msg := m.ask("budget approved?")()
	next, _ = m.Update(msg)
	m = next.(Model)
	assert.False(t, m.busy)
	assert.Equal(t, []bool{false}, svc.multi)
	assert.Contains(t, m.render(), "It is in a.txt")
	assert.Contains(t, m.render(), "Source 1/2  a.txt")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(Model)
	assert.Equal(t, 1, m.cursor)
	assert.Contains(t, m.render(), "Source 2/2  b.txt")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	next, _ = next.(Model).Update(tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 1, next.(Model).cursor)
}

func TestTabTogglesMultiQuery(t *testing.T) {
	svc := &fakeAsker{answer: &query.Answer{Text: "ok"}}
	m := sized(t, New(context.Background(), svc, "", false))
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)
	assert.True(t, m.multi)
	assert.Contains(t, m.View(), "multi-query")

	m.ask("q")()
	assert.Equal(t, []bool{true}, svc.multi)
}

func TestErrorIsShownInStatus(t *testing.T) {
	m := sized(t, New(context.Background(), &fakeAsker{err: errors.New("store offline")}, "", false))
	next, _ := m.Update(m.ask("q")())
	m = next.(Model)
	assert.Equal(t, "Error: store offline", m.status)
	assert.Equal(t, "No answer yet.", m.render())
}

func TestHighlightBestSentence(t *testing.T) {
	text := "Budget is approved. Lunch at noon."
	out := highlightBestSentence(text, "when is lunch")
	assert.Contains(t, out, "Budget is approved.")
	assert.Contains(t, out, highlightStyle.Render("Lunch at noon."))
	assert.Equal(t, "", highlightBestSentence("", "q"))
}
