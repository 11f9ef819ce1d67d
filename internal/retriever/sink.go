package retriever

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/katakuxiko/sasgpt/internal/model"
)

// ContextSink overwrites a JSON object file with the last merged retrieval,
// keyed context_1..context_N in emission order. The file is audit output; it
// is never read back.
type ContextSink struct {
	mu   sync.Mutex
	path string
}

func NewContextSink(path string) *ContextSink {
	return &ContextSink{path: path}
}

func (s *ContextSink) Path() string { return s.path }

func (s *ContextSink) Write(chunks []model.DocumentChunk) error {
	data, err := encodeContexts(chunks)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("context sink: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("context sink: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("context sink: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("context sink: %w", err)
	}
	return nil
}

// encodeContexts writes keys by hand; a Go map would sort context_10 before context_2.
func encodeContexts(chunks []model.DocumentChunk) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{")
	for i, ch := range chunks {
		if i > 0 {
			buf.WriteString(",")
		}
		val, err := marshalNoEscape(ch.Text)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&buf, "\n    \"context_%d\": %s", i+1, val)
	}
	if len(chunks) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
