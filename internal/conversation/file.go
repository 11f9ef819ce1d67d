package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/katakuxiko/sasgpt/internal/model"
)

// FileStore keeps the log as a pretty-printed JSON array. Append rewrites only
// the closing bracket and what follows it.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Append(_ context.Context, rec model.ConversationRecord) error {
	body, err := encodeRecord(normalize(rec))
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open conversation log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	var (
		at     int64
		prefix = "["
	)
	if info.Size() > 0 {
		at, prefix, err = tailOffset(f, info.Size())
		if err != nil {
			return fmt.Errorf("conversation log %s: %w", s.path, err)
		}
	}

	var buf bytes.Buffer
	buf.WriteString(prefix)
	buf.WriteString("\n    ")
	buf.Write(body)
	buf.WriteString("\n]\n")

	if _, err := f.WriteAt(buf.Bytes(), at); err != nil {
		return fmt.Errorf("append conversation log: %w", err)
	}
	if err := f.Truncate(at + int64(buf.Len())); err != nil {
		return fmt.Errorf("append conversation log: %w", err)
	}
	return f.Sync()
}

// tailOffset finds where the next record goes: just after the last
// non-space byte before the closing bracket. Only whitespace may follow the
// bracket. prefix is "," unless the array is empty.
func tailOffset(f *os.File, size int64) (int64, string, error) {
	errNotArray := errors.New("not a JSON array")
	window := int64(4096)
	for {
		start := max(size-window, 0)
		buf := make([]byte, size-start)
		if _, err := f.ReadAt(buf, start); err != nil && !errors.Is(err, io.EOF) {
			return 0, "", err
		}

		closing := lastNonSpace(buf)
		switch {
		case closing >= 0 && buf[closing] != ']':
			return 0, "", errNotArray
		case closing >= 0:
			prev := lastNonSpace(buf[:closing])
			if prev >= 0 {
				if buf[prev] == '[' {
					return start + int64(prev) + 1, "", nil
				}
				return start + int64(prev) + 1, ",", nil
			}
		}
		if start == 0 {
			return 0, "", errNotArray
		}
		window *= 2
	}
}

func lastNonSpace(b []byte) int {
	for i := len(b) - 1; i >= 0; i-- {
		switch b[i] {
		case ' ', '\n', '\r', '\t':
		default:
			return i
		}
	}
	return -1
}

// encodeRecord renders rec indented as an element of a top-level array.
func encodeRecord(rec model.ConversationRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("    ", "    ")
	if err := enc.Encode(rec); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (s *FileStore) Records(_ context.Context) ([]model.ConversationRecord, error) {
	s.mu.Lock()
	data, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if errors.Is(err, os.ErrNotExist) {
		return []model.ConversationRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	var recs []model.ConversationRecord
	if len(bytes.TrimSpace(data)) == 0 {
		return []model.ConversationRecord{}, nil
	}
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decode conversation log: %w", err)
	}
	return recs, nil
}

func (s *FileStore) Close() error { return nil }
