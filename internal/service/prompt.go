package service

import (
	"fmt"
	"os"
	"strings"

	"github.com/katakuxiko/sasgpt/internal/model"
)

// DefaultTemplate — шаблон ответа эксперта по химической безопасности
const DefaultTemplate = `
你是一個專門回答化學領域問題的專家，你的任務是根據上下文的內容來回答使用者提出的問題。
所有回答都必須依據提供的資料來源。如果無法在資料來源中找到答案，請明確表示你不知道答案。注意以下幾點：

1. 你只能回答與化學物質或化學相關的問題，對於非化學相關的問題，請回答「此問題無法回答，請詢問化學相關問題」。
2. 僅回答當前的問題，並且不要重複之前已經回答過的問題。
3. 如果不知道答案，請明確回答「依據目前的資料，無法回答此問題」，不要生成任何不確定的或無關的答案。
4. 你的回答必須完全基於資料來源，不應推測或引入額外的資訊。
5. 所有回答都必須使用繁體中文。
6. 使用敘述的方式回答問題。

資料來源：{context}
問題：{question}
`

// Composer fills the template's {context} and {question} slots.
type Composer struct {
	template string
}

func NewComposer(template string) (*Composer, error) {
	if template == "" {
		template = DefaultTemplate
	}
	if !strings.Contains(template, "{context}") || !strings.Contains(template, "{question}") {
		return nil, fmt.Errorf("prompt template must contain {context} and {question}")
	}
	return &Composer{template: template}, nil
}

// LoadComposer reads the template from path, or uses the built-in one when path is empty.
func LoadComposer(path string) (*Composer, error) {
	if path == "" {
		return NewComposer("")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt template: %w", err)
	}
	return NewComposer(string(data))
}

// Compose substitutes both slots in a single pass so that text inside the
// context is never re-expanded.
func (c *Composer) Compose(context, question string) string {
	r := strings.NewReplacer("{context}", context, "{question}", question)
	return r.Replace(c.template)
}

// FormatContext joins chunk texts with a blank line, in order.
func FormatContext(chunks []model.DocumentChunk) string {
	parts := make([]string, len(chunks))
	for i, ch := range chunks {
		parts[i] = ch.Text
	}
	return strings.Join(parts, "\n\n")
}
