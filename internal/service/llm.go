package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/katakuxiko/sasgpt/internal/config"
	"github.com/sashabaranov/go-openai"
)

// Generation — результат генерации. Provenance заполняет конвейер
// идентификаторами коллекций, из которых взят контекст.
type Generation struct {
	Text       string   `json:"text"`
	Provenance []string `json:"provenance,omitempty"`
}

// Generator produces the answer for a composed prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (Generation, error)
}

// LLMClient — клиент для Ollama / LM Studio / OpenAI совместимых моделей
type LLMClient struct {
	client      *openai.Client
	embedName   string
	chatName    string
	temperature float32
}

// NewLLMClient создаёт новый клиент с настройками из config
func NewLLMClient(cfg config.LLMConfig) *LLMClient {
	oaiCfg := openai.DefaultConfig(cfg.APIKey)
	oaiCfg.BaseURL = cfg.BaseURL
	client := openai.NewClientWithConfig(oaiCfg)

	return &LLMClient{
		client:      client,
		embedName:   cfg.EmbedModel,
		chatName:    cfg.ChatModel,
		temperature: cfg.Temperature,
	}
}

// WithChatModel returns a copy that generates with another model (used for judges).
func (l *LLMClient) WithChatModel(name string) *LLMClient {
	cp := *l
	cp.chatName = name
	return &cp
}

func (l *LLMClient) ChatModel() string { return l.chatName }

// Embed получает embedding текста
func (l *LLMClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := l.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request, preserving input order.
func (l *LLMClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := l.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(l.embedName),
		Input: texts,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) {
			idx = i
		}
		out[idx] = d.Embedding
	}
	return out, nil
}

// Generate отправляет промпт одной user-репликой
func (l *LLMClient) Generate(ctx context.Context, prompt string) (Generation, error) {
	text, err := l.Complete(ctx, prompt)
	if err != nil {
		return Generation{}, err
	}
	return Generation{Text: text}, nil
}

// Complete returns the trimmed text of the first choice.
func (l *LLMClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: l.chatName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: l.temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// ListModels возвращает список моделей сервера
func (l *LLMClient) ListModels(ctx context.Context) ([]openai.Model, error) {
	resp, err := l.client.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	return resp.Models, nil
}
