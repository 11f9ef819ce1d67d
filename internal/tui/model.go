package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/katakuxiko/sasgpt/internal/model"
)

// ChatPort is the TUI-facing subset of the chat service.
type ChatPort interface {
	History(ctx context.Context, sid string) ([]model.ChatMessage, error)
	Ask(ctx context.Context, sid, chemicalID, message string) (string, []model.ChatMessage, error)
	Clear(ctx context.Context, sid string) ([]model.ChatMessage, error)
}

// Thinking is shown while a turn is in flight.
const Thinking = "思考中，請稍候..."

type Options struct {
	Title      string
	Caption    string
	Banner     string
	SessionID  string
	ChemicalID string
}

// answerMsg carries the result of one turn back to Update.
type answerMsg struct {
	history []model.ChatMessage
	err     error
}

type historyMsg answerMsg

// Model is the Bubble Tea model for the terminal chat.
type Model struct {
	ctx      context.Context
	chat     ChatPort
	opts     Options
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	history  []model.ChatMessage
	pending  string
	busy     bool
	status   string
	ready    bool
}

func New(ctx context.Context, chat ChatPort, opts Options) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "請輸入問題，Enter 送出"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return Model{
		ctx:      ctx,
		chat:     chat,
		opts:     opts,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   "Enter 送出 · ctrl+l 清除查詢記錄 · ctrl+c 離開",
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.loadHistory())
}

func (m Model) loadHistory() tea.Cmd {
	return func() tea.Msg {
		h, err := m.chat.History(m.ctx, m.opts.SessionID)
		return historyMsg{history: h, err: err}
	}
}

func (m Model) ask(message string) tea.Cmd {
	return func() tea.Msg {
		_, h, err := m.chat.Ask(m.ctx, m.opts.SessionID, m.opts.ChemicalID, message)
		return answerMsg{history: h, err: err}
	}
}

func (m Model) clear() tea.Cmd {
	return func() tea.Msg {
		h, err := m.chat.Clear(m.ctx, m.opts.SessionID)
		return historyMsg{history: h, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		reserved := lipgloss.Height(m.header(msg.Width)) + 1 + ih + 1
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.input.Width = max(10, msg.Width-6)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyCtrlL:
			if m.busy {
				return m, nil
			}
			return m, m.clear()
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.input.Reset()
			m.busy = true
			m.pending = q
			m.refresh()
			return m, tea.Batch(m.ask(q), m.spinner.Tick)
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case answerMsg:
		m.busy = false
		m.pending = ""
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.history = msg.history
		}
		m.refresh()
		return m, nil

	case historyMsg:
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.history = msg.history
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	width := max(10, m.viewport.Width-2)
	var b strings.Builder
	for _, msg := range m.history {
		b.WriteString(renderMessage(msg, width))
		b.WriteString("\n")
	}
	if m.busy {
		b.WriteString(renderMessage(model.ChatMessage{Role: model.RoleUser, Content: m.pending}, width))
		b.WriteString("\n")
		b.WriteString(m.spinner.View() + " " + Thinking)
	}
	return b.String()
}

func renderMessage(msg model.ChatMessage, width int) string {
	if msg.Role == model.RoleUser {
		return userStyle.Width(width).Render("🧑 " + msg.Content)
	}
	return assistantStyle.Width(width).Render("🤖 " + msg.Content)
}

func (m Model) header(width int) string {
	title := titleStyle.Render(m.opts.Title)
	caption := captionStyle.Render(m.opts.Caption)
	banner := bannerStyle.Width(max(20, width-2)).Render(m.opts.Banner)
	return lipgloss.JoinVertical(lipgloss.Left, title, caption, banner)
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.header(m.viewport.Width+2),
		transcriptStyle.Render(m.viewport.View()),
		inputStyle.Render(m.input.View()),
		statusStyle.Render(m.status),
	)
}

var (
	titleStyle      = lipgloss.NewStyle().Bold(true)
	captionStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	bannerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Border(lipgloss.NormalBorder(), false, false, false, true).PaddingLeft(1)
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder())
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	assistantStyle  = lipgloss.NewStyle()
	spinnerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)
