package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/katakuxiko/sasgpt/internal/model"
	"github.com/katakuxiko/sasgpt/internal/service"
	"github.com/katakuxiko/sasgpt/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cannedPipeline struct{ questions []string }

func (p *cannedPipeline) Answer(_ context.Context, q string) (*service.Answer, error) {
	p.questions = append(p.questions, q)
	return &service.Answer{Text: "苯具有致癌性"}, nil
}

type namer map[string]string

func (n namer) Name(_ context.Context, id string) string { return n[id] }

// run executes cmd and any batched commands, returning the first message of type T.
func run[T any](t *testing.T, cmd tea.Cmd) T {
	t.Helper()
	require.NotNil(t, cmd)
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch msg := c().(type) {
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case T:
			return msg
		}
	}
	var zero T
	t.Fatalf("no %T produced", zero)
	return zero
}

func newModel(t *testing.T) (Model, *cannedPipeline) {
	t.Helper()
	p := &cannedPipeline{}
	chat := service.NewChatService(p, session.NewMemory(), namer{"59": "苯"}, "59", nil)
	m := New(context.Background(), chat, Options{
		Title:      "🧪 SAS GPT 對談機器人",
		Banner:     "🤖 請詢問有關 🧪 苯的相關問題",
		SessionID:  "tty",
		ChemicalID: "59",
	})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	m = next.(Model)
	next, _ = m.Update(run[historyMsg](t, m.loadHistory()))
	return next.(Model), p
}

func typeText(m Model, s string) Model {
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return next.(Model)
}

func TestModel_InitialView(t *testing.T) {
	m, _ := newModel(t)
	view := m.View()
	assert.Contains(t, view, "SAS GPT")
	assert.Contains(t, view, service.Greeting)
}

func TestModel_AskShowsSpinnerThenAnswer(t *testing.T) {
	m, p := newModel(t)
	m = typeText(m, "有什麼危害")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	assert.True(t, m.busy)
	assert.Contains(t, m.renderTranscript(), Thinking)
	assert.Empty(t, m.input.Value())

	// a second Enter while busy is ignored
	_, again := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, again)

	next, _ = m.Update(run[answerMsg](t, cmd))
	m = next.(Model)
	assert.False(t, m.busy)
	assert.Equal(t, []string{"關於苯，有什麼危害"}, p.questions)
	require.Len(t, m.history, 3)
	assert.Equal(t, model.ChatMessage{Role: model.RoleAssistant, Content: "苯具有致癌性"}, m.history[2])
	assert.NotContains(t, m.renderTranscript(), Thinking)
}

func TestModel_EmptyInputDoesNothing(t *testing.T) {
	m, p := newModel(t)
	m = typeText(m, "   ")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Empty(t, p.questions)
}

func TestModel_CtrlLClearsHistory(t *testing.T) {
	m, _ := newModel(t)
	m = typeText(m, "有什麼危害")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	next, _ := m.Update(run[answerMsg](t, cmd))
	m = next.(Model)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	next, _ = m.Update(run[historyMsg](t, cmd))
	m = next.(Model)
	assert.Equal(t, []model.ChatMessage{{Role: model.RoleAssistant, Content: service.ClearedGreeting}}, m.history)
}

func TestModel_Quit(t *testing.T) {
	m, _ := newModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
