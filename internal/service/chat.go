package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/katakuxiko/sasgpt/internal/model"
	"github.com/katakuxiko/sasgpt/internal/session"
	"go.uber.org/zap"
)

const (
	Greeting        = "請提問化學物質相關問題"
	ClearedGreeting = "請輸入化學物質相關問題"
)

var ErrEmptyMessage = errors.New("message is empty")

type Answerer interface {
	Answer(ctx context.Context, question string) (*Answer, error)
}

// ChemicalNamer resolves a chemical id to its display name; "" when unknown.
type ChemicalNamer interface {
	Name(ctx context.Context, id string) string
}

// ChatService — граница между UI и конвейером: история сессии и текст ошибки
type ChatService struct {
	pipeline  Answerer
	sessions  session.Store
	chemicals ChemicalNamer
	defaultID string
	logger    *zap.Logger
}

func NewChatService(pipeline Answerer, sessions session.Store, chemicals ChemicalNamer, defaultID string, logger *zap.Logger) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		pipeline:  pipeline,
		sessions:  sessions,
		chemicals: chemicals,
		defaultID: defaultID,
		logger:    logger,
	}
}

// ChemicalName resolves id, falling back to the configured default id.
func (c *ChatService) ChemicalName(ctx context.Context, id string) string {
	if c.chemicals == nil {
		return ""
	}
	if id == "" {
		id = c.defaultID
	}
	return c.chemicals.Name(ctx, id)
}

// History returns the transcript, seeding a new session with the greeting.
func (c *ChatService) History(ctx context.Context, sid string) ([]model.ChatMessage, error) {
	h, err := c.sessions.History(ctx, sid)
	if err != nil {
		return nil, err
	}
	if len(h) > 0 {
		return h, nil
	}
	greeting := model.ChatMessage{Role: model.RoleAssistant, Content: Greeting}
	if err := c.sessions.Reset(ctx, sid, greeting); err != nil {
		return nil, err
	}
	return []model.ChatMessage{greeting}, nil
}

// Ask answers one message. Pipeline failures become the reply text; only
// session storage errors are returned.
func (c *ChatService) Ask(ctx context.Context, sid, chemicalID, message string) (string, []model.ChatMessage, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", nil, ErrEmptyMessage
	}
	if _, err := c.History(ctx, sid); err != nil {
		return "", nil, err
	}

	query := BuildQuery(c.ChemicalName(ctx, chemicalID), message)
	c.logger.Info("提問", zap.String("session", sid), zap.String("query", query))

	var reply string
	ans, err := c.pipeline.Answer(ctx, query)
	if err != nil {
		var pe *PipelineError
		if errors.As(err, &pe) {
			c.logger.Error("pipeline failed", zap.String("stage", string(pe.Stage)), zap.Error(pe.Err))
			err = pe.Err
		} else {
			c.logger.Error("pipeline failed", zap.Error(err))
		}
		reply = fmt.Sprintf("處理請求時出錯: %v", err)
	} else {
		reply = ans.Text
	}
	c.logger.Info("回覆", zap.String("session", sid), zap.String("response", reply))

	if err := c.sessions.Append(ctx, sid,
		model.ChatMessage{Role: model.RoleUser, Content: message},
		model.ChatMessage{Role: model.RoleAssistant, Content: reply},
	); err != nil {
		return reply, nil, err
	}
	h, err := c.sessions.History(ctx, sid)
	return reply, h, err
}

// Clear resets the transcript to the cleared greeting.
func (c *ChatService) Clear(ctx context.Context, sid string) ([]model.ChatMessage, error) {
	msg := model.ChatMessage{Role: model.RoleAssistant, Content: ClearedGreeting}
	if err := c.sessions.Reset(ctx, sid, msg); err != nil {
		return nil, err
	}
	return []model.ChatMessage{msg}, nil
}

// BuildQuery prefixes the question with the chemical name when it is known.
func BuildQuery(chemical, message string) string {
	if chemical == "" {
		return message
	}
	return fmt.Sprintf("關於%s，%s", chemical, message)
}

// Banner is the warning shown above the chat for the selected chemical.
func Banner(chemical string) string {
	return fmt.Sprintf("🤖 請詢問有關 🧪 %[1]s的相關問題，目前對談機器人基於SAS系統整理的危害資訊以及安全替代物回答問題，但仍建議您再次確認。您可嘗試提問：「%[1]s有什麼危害資訊」、「%[1]s有什麼安全替代物」", chemical)
}
