package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/katakuxiko/sasgpt/internal/model"
)

// collectionFile is the file name inside a collection directory.
const collectionFile = "collection.json"

type dirEntry struct {
	DocName string    `json:"doc_name"`
	ChunkID string    `json:"chunk_id"`
	Text    string    `json:"text"`
	Vector  []float32 `json:"vector"`
}

type dirFile struct {
	Name      string     `json:"name"`
	Model     string     `json:"model,omitempty"`
	Dimension int        `json:"dimension"`
	Entries   []dirEntry `json:"entries"`
}

// DirStore is a collection persisted as a directory and searched in memory by
// brute-force cosine similarity.
type DirStore struct {
	mu    sync.RWMutex
	path  string
	data  dirFile
	norms []float64
	dirty bool
}

// OpenDirStore loads a pre-built collection directory for searching.
func OpenDirStore(path string) (*DirStore, error) {
	raw, err := os.ReadFile(filepath.Join(path, collectionFile))
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", path, err)
	}
	s := &DirStore{path: path}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("decode collection %s: %w", path, err)
	}
	s.norms = make([]float64, len(s.data.Entries))
	for i, e := range s.data.Entries {
		if len(e.Vector) != s.data.Dimension {
			return nil, fmt.Errorf("collection %s: entry %d has dimension %d, want %d", path, i, len(e.Vector), s.data.Dimension)
		}
		s.norms[i] = norm(e.Vector)
	}
	return s, nil
}

// CreateDirStore starts an empty collection that is written to path on Close.
func CreateDirStore(path, name, embedModel string) *DirStore {
	return &DirStore{path: path, data: dirFile{Name: name, Model: embedModel}, dirty: true}
}

func (s *DirStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.Entries)
}

func (s *DirStore) Add(ctx context.Context, doc string, first int, texts []string, vectors [][]float32) error {
	if len(texts) != len(vectors) {
		return errors.New("texts and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range vectors {
		if s.data.Dimension == 0 {
			s.data.Dimension = len(v)
		}
		if len(v) != s.data.Dimension {
			return fmt.Errorf("vector dimension mismatch: got %d, want %d", len(v), s.data.Dimension)
		}
		s.data.Entries = append(s.data.Entries, dirEntry{
			DocName: doc,
			ChunkID: ChunkID(doc, first+i),
			Text:    texts[i],
			Vector:  v,
		})
		s.norms = append(s.norms, norm(v))
	}
	s.dirty = true
	return nil
}

func (s *DirStore) Search(ctx context.Context, vector []float32, k int) ([]model.DocumentChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k <= 0 {
		return nil, nil
	}
	if len(s.data.Entries) > 0 && len(vector) != s.data.Dimension {
		return nil, fmt.Errorf("query dimension %d does not match collection dimension %d", len(vector), s.data.Dimension)
	}

	qn := norm(vector)
	scores := make([]float64, len(s.data.Entries))
	for i, e := range s.data.Entries {
		scores[i] = cosine(e.Vector, vector, s.norms[i], qn)
	}
	idxs := make([]int, len(scores))
	for i := range idxs {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool { return scores[idxs[a]] > scores[idxs[b]] })

	k = min(k, len(idxs))
	out := make([]model.DocumentChunk, 0, k)
	for _, j := range idxs[:k] {
		out = append(out, model.DocumentChunk{Text: s.data.Entries[j].Text})
	}
	return out, nil
}

// Close writes a modified collection to disk; read-only stores are left untouched.
func (s *DirStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	if err := os.MkdirAll(s.path, 0o755); err != nil {
		return fmt.Errorf("create collection dir: %w", err)
	}
	raw, err := json.Marshal(s.data)
	if err != nil {
		return err
	}
	tmp := filepath.Join(s.path, collectionFile+".tmp")
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write collection: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.path, collectionFile)); err != nil {
		return fmt.Errorf("write collection: %w", err)
	}
	s.dirty = false
	return nil
}

func norm(v []float32) float64 {
	sum := 0.0
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32, na, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 0
	}
	dot := 0.0
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (na * nb)
}
