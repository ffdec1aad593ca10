package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"diaryrag/internal/domain"
	"diaryrag/internal/service"
)

// DiaryPort is the TUI-facing subset of the diary service.
type DiaryPort interface {
	DiarySummary(ctx context.Context, req service.DiaryRequest) (service.DiarySummary, error)
}

type resultMsg struct {
	text   string
	result service.DiaryResult
}

type errMsg struct{ err error }

// Model is the Bubble Tea model for the diary console.
type Model struct {
	service  DiaryPort
	profile  *domain.Profile
	userID   string
	timeout  time.Duration
	input    textinput.Model
	viewport viewport.Model
	history  []resultMsg
	cursor   int
	status   string
	busy     bool
	ready    bool
}

// New creates a console bound to one user. A nil profile disables daily advice.
func New(svc DiaryPort, userID string, profile *domain.Profile, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "오늘의 일기를 입력하고 Enter"
	ti.Focus()
	ti.CharLimit = 0
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return Model{
		service:  svc,
		profile:  profile,
		userID:   userID,
		timeout:  timeout,
		input:    ti,
		viewport: viewport.New(0, 0),
		status:   "Ready. Write a diary entry.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) analyze(text string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		res, err := m.service.DiarySummary(ctx, service.DiaryRequest{
			UserID:  m.userID,
			Texts:   []string{text},
			Profile: m.profile,
		})
		if err != nil {
			return errMsg{err}
		}
		return resultMsg{text: text, result: res.Result}
	}
}

// Update handles key, window and analysis events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case resultMsg:
		m.busy = false
		m.history = append(m.history, msg)
		m.cursor = len(m.history) - 1
		m.status = fmt.Sprintf("Analyzed entry %d.", len(m.history))
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case errMsg:
		m.busy = false
		m.status = "Error: " + msg.err.Error()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "Analyzing..."
			m.input.SetValue("")
			return m, m.analyze(text)
		case "up":
			if len(m.history) > 0 {
				m.cursor = (m.cursor - 1 + len(m.history)) % len(m.history)
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		case "down":
			if len(m.history) > 0 {
				m.cursor = (m.cursor + 1) % len(m.history)
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the header, the selected analysis, the input box and status.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Diary")
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrent() string {
	if len(m.history) == 0 {
		return "No entries yet."
	}
	h := m.history[m.cursor]
	r := h.result
	var b strings.Builder
	fmt.Fprintf(&b, "Entry %d/%d  ", m.cursor+1, len(m.history))
	b.WriteString(scoreStyle(r.Score).Render(fmt.Sprintf("distress %.2f", r.Score)))
	b.WriteString("\n\n")
	b.WriteString(renderBars(r.Sentiment, 20))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("요약") + " " + r.ShortSummary + "\n")
	if r.LongSummary != "" && r.LongSummary != r.ShortSummary {
		b.WriteString(dimStyle.Render(r.LongSummary) + "\n")
	}
	if r.ShortAdvice != "" {
		b.WriteString("\n" + labelStyle.Render("조언") + " " + r.ShortAdvice + "\n")
	}
	return b.String()
}

// renderBars draws one bar per emotion, highest first; ties keep label order.
func renderBars(sentiment map[domain.Emotion]float64, width int) string {
	labels := append([]domain.Emotion(nil), domain.Emotions...)
	sort.SliceStable(labels, func(i, j int) bool { return sentiment[labels[i]] > sentiment[labels[j]] })
	var b strings.Builder
	for _, e := range labels {
		v := sentiment[e]
		n := int(v*float64(width) + 0.5)
		n = min(max(n, 0), width)
		fmt.Fprintf(&b, "%s %s%s %.4f\n", e, barStyle.Render(strings.Repeat("█", n)), strings.Repeat("·", width-n), v)
	}
	return b.String()
}

func scoreStyle(score float64) lipgloss.Style {
	color := "10"
	switch {
	case score >= 70:
		color = "9"
	case score >= 50:
		color = "11"
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true)
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	barStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
)
