package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docseek/internal/domain"
	"docseek/internal/query"
	"docseek/internal/summarizer"
)

// Asker is the TUI-facing subset of the document service.
type Asker interface {
	Ask(ctx context.Context, question string, multi bool, fn func(string) error) (*query.Answer, error)
}

type answerMsg struct {
	question string
	answer   *query.Answer
	err      error
}

// Model is the Bubble Tea model for the question prompt.
type Model struct {
	ctx      context.Context
	service  Asker
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	answer   *query.Answer
	info     string
	status   string
	cursor   int
	ready    bool
	busy     bool
	multi    bool
	question string
}

// New creates a model; info is shown under the title.
func New(ctx context.Context, service Asker, info string, multi bool) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your files and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		ctx:      ctx,
		service:  service,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		info:     info,
		multi:    multi,
		status:   "Ready. Tab toggles multi-query, up/down browse sources.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) ask(q string) tea.Cmd {
	multi := m.multi
	return func() tea.Msg {
		ans, err := m.service.Ask(m.ctx, q, multi, nil)
		return answerMsg{question: q, answer: ans, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header+info, status, input frame, spacer
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.viewport.SetContent(m.render())
		return m, nil

	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.answer = nil
		} else {
			m.answer = msg.answer
			m.question = msg.question
			m.cursor = 0
			m.status = fmt.Sprintf("%d sources for %q", len(msg.answer.Sources), msg.question)
		}
		m.viewport.SetContent(m.render())
		m.viewport.GotoTop()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "Searching..."
			m.input.SetValue("")
			return m, tea.Batch(m.ask(q), m.spinner.Tick)
		case "tab":
			m.multi = !m.multi
			return m, nil
		case "down":
			if m.answer != nil && len(m.answer.Sources) > 0 {
				m.cursor = (m.cursor + 1) % len(m.answer.Sources)
				m.viewport.SetContent(m.render())
				return m, nil
			}
		case "up":
			if m.answer != nil && len(m.answer.Sources) > 0 {
				m.cursor = (m.cursor - 1 + len(m.answer.Sources)) % len(m.answer.Sources)
				m.viewport.SetContent(m.render())
				return m, nil
			}
		case "pgdown", "pgup":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	mode := "single query"
	if m.multi {
		mode = "multi-query"
	}
	header := titleStyle.Render("docseek")
	info := dimStyle.Render(fmt.Sprintf("%s · %s", m.info, mode))
	status := statusStyle.Render(m.status)
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + info + "\n" +
		resultBoxStyle.Render(m.viewport.View()) + "\n" +
		queryBoxStyle.Render(m.input.View()) + "\n" + status
}

func (m Model) render() string {
	if m.answer == nil {
		return "No answer yet."
	}
	var sb strings.Builder
	sb.WriteString(answerStyle.Render(m.answer.Text))
	if len(m.answer.Sources) == 0 {
		return sb.String()
	}
	r := m.answer.Sources[m.cursor]
	sb.WriteString("\n\n")
	sb.WriteString(dimStyle.Render(fmt.Sprintf("Source %d/%d  %s  score=%.3f",
		m.cursor+1, len(m.answer.Sources), location(r.Document), r.Score)))
	sb.WriteString("\n")
	sb.WriteString(highlightBestSentence(r.Document.Content, m.question))
	return sb.String()
}

func location(d domain.Document) string {
	if page, ok := d.Metadata[domain.MetaPage]; ok {
		return fmt.Sprintf("%s p.%v", d.Source(), page)
	}
	return d.Source()
}

var (
	titleStyle     = lipgloss.NewStyle().Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	answerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

func highlightBestSentence(text, query string) string {
	sentences := summarizer.Sentences(text)
	if len(sentences) == 0 {
		return text
	}
	if strings.TrimSpace(query) == "" {
		return strings.Join(sentences, " ")
	}
	best := summarizer.BestSentence(sentences, query)
	sentences[best] = highlightStyle.Render(sentences[best])
	return strings.Join(sentences, " ")
}
