package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/katakuxiko/sasgpt/internal/model"
	"github.com/tidwall/gjson"
)

// QdrantStore is a minimal REST client for one Qdrant collection using cosine distance.
type QdrantStore struct {
	baseURL    string
	apiKey     string
	collection string
	client     *http.Client
	ready      bool
}

func NewQdrantStore(baseURL, apiKey, collection string, timeout time.Duration) *QdrantStore {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &QdrantStore{
		baseURL:    baseURL,
		apiKey:     apiKey,
		collection: collection,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *QdrantStore) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.baseURL, url.PathEscape(s.collection), suffix)
}

// ensureCollection creates the collection on first write if it does not exist.
func (s *QdrantStore) ensureCollection(ctx context.Context, dim int) error {
	if s.ready {
		return nil
	}
	status, _, err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil)
	if err != nil && status != http.StatusNotFound {
		return err
	}
	if status == http.StatusNotFound {
		body := map[string]any{
			"vectors": map[string]any{"size": dim, "distance": "Cosine"},
		}
		if _, _, err := s.do(ctx, http.MethodPut, s.collectionURL(""), body); err != nil {
			return err
		}
	}
	s.ready = true
	return nil
}

func (s *QdrantStore) Add(ctx context.Context, doc string, first int, texts []string, vectors [][]float32) error {
	if len(texts) != len(vectors) {
		return errors.New("texts and vectors length mismatch")
	}
	if len(texts) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}
	points := make([]map[string]any, len(texts))
	for i := range texts {
		chunkID := ChunkID(doc, first+i)
		points[i] = map[string]any{
			// Qdrant accepts only unsigned ints or UUIDs as point ids.
			"id":     uuid.NewSHA1(uuid.NameSpaceURL, []byte(s.collection+"/"+chunkID)).String(),
			"vector": vectors[i],
			"payload": map[string]any{
				"doc_name": doc,
				"chunk_id": chunkID,
				"text":     texts[i],
			},
		}
	}
	_, _, err := s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), map[string]any{"points": points})
	return err
}

func (s *QdrantStore) Search(ctx context.Context, vector []float32, k int) ([]model.DocumentChunk, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	_, body, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req)
	if err != nil {
		return nil, err
	}
	var out []model.DocumentChunk
	gjson.GetBytes(body, "result").ForEach(func(_, hit gjson.Result) bool {
		out = append(out, model.DocumentChunk{Text: hit.Get("payload.text").String()})
		return true
	})
	return out, nil
}

func (s *QdrantStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *QdrantStore) do(ctx context.Context, method, u string, body any) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	if resp.StatusCode >= 300 {
		return resp.StatusCode, data, fmt.Errorf("qdrant %s %s failed: %s", method, u, resp.Status)
	}
	return resp.StatusCode, data, nil
}
