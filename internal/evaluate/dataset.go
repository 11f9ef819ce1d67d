// Package evaluate scores logged or curated answers with an LLM judge and
// embedding similarity, and summarises result tables.
package evaluate

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/katakuxiko/sasgpt/internal/model"
)

// Sample is one evaluation row. Reference is the expected answer and may be
// empty for samples taken from the conversation log.
type Sample struct {
	UserInput         string   `json:"user_input"`
	RetrievedContexts []string `json:"retrieved_contexts"`
	Response          string   `json:"response"`
	Reference         string   `json:"reference"`
}

// LoadDataset reads a JSON list of samples.
func LoadDataset(path string) ([]Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	var out []Sample
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	return out, nil
}

// FromConversationLog turns logged turns into samples without references.
func FromConversationLog(recs []model.ConversationRecord) []Sample {
	out := make([]Sample, len(recs))
	for i, r := range recs {
		out[i] = Sample{
			UserInput:         r.UserInput,
			RetrievedContexts: r.RetrievedContexts,
			Response:          r.Response,
		}
	}
	return out
}
