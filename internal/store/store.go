// Package store holds the vector collections the assistant retrieves from.
// A Collection pairs an embedder with one persisted backend (a local
// collection directory, a pgvector table or a Qdrant collection).
package store

import (
	"context"
	"fmt"

	"github.com/katakuxiko/sasgpt/internal/model"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Backend answers nearest-neighbour queries over one collection.
type Backend interface {
	Search(ctx context.Context, vector []float32, k int) ([]model.DocumentChunk, error)
	Close() error
}

// Writer receives chunks during ingestion. first is the position of
// texts[0] within doc, so batches of one document get distinct chunk ids.
type Writer interface {
	Add(ctx context.Context, doc string, first int, texts []string, vectors [][]float32) error
	Close() error
}

// ChunkID names the n-th chunk of doc.
func ChunkID(doc string, n int) string {
	return fmt.Sprintf("%s_chunk_%d", doc, n)
}

// Collection embeds a query and searches its backend.
type Collection struct {
	name     string
	embedder Embedder
	backend  Backend
}

func NewCollection(name string, embedder Embedder, backend Backend) *Collection {
	return &Collection{name: name, embedder: embedder, backend: backend}
}

func (c *Collection) ID() string { return c.name }

// Search returns up to k chunks in rank order, tagged with this collection's name.
func (c *Collection) Search(ctx context.Context, query string, k int) ([]model.DocumentChunk, error) {
	vec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store %s: embedding error: %w", c.name, err)
	}
	chunks, err := c.backend.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("store %s: search error: %w", c.name, err)
	}
	for i := range chunks {
		chunks[i].SourceCollectionID = c.name
	}
	return chunks, nil
}

func (c *Collection) Close() error { return c.backend.Close() }
