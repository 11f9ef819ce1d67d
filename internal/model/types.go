package model

import "time"

// DocumentChunk — фрагмент документа, возвращаемый векторным хранилищем
type DocumentChunk struct {
	Text               string `json:"text"`
	SourceCollectionID string `json:"source_collection_id"`
}

// RoutingCategory selects which store set answers a question.
type RoutingCategory int

const (
	General RoutingCategory = iota
	Alternative
)

func (c RoutingCategory) String() string {
	switch c {
	case Alternative:
		return "alternative"
	default:
		return "general"
	}
}

type QueryRequest struct {
	RawQuestion string
	Category    RoutingCategory
}

// ConversationRecord is one logged turn. RetrievedContexts are the chunk texts
// that produced Response.
type ConversationRecord struct {
	UserInput         string    `json:"user_input"`
	RetrievedContexts []string  `json:"retrieved_contexts"`
	Response          string    `json:"response"`
	Timestamp         time.Time `json:"timestamp"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type AskRequest struct {
	Message    string `json:"message"`
	ChemicalID string `json:"chemical_id,omitempty"`
}

type AskResponse struct {
	Answer  string        `json:"answer"`
	History []ChatMessage `json:"history"`
}
