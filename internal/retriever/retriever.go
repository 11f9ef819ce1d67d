// Package retriever fans a question out to several vector collections and
// merges the hits in collection order.
package retriever

import (
	"context"
	"errors"
	"fmt"

	"github.com/katakuxiko/sasgpt/internal/model"
	"github.com/katakuxiko/sasgpt/internal/util"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Handle is one searchable collection.
type Handle interface {
	ID() string
	Search(ctx context.Context, query string, k int) ([]model.DocumentChunk, error)
}

// Registry resolves store ids from routing into handles opened at startup.
type Registry struct {
	handles map[string]Handle
}

func NewRegistry(handles ...Handle) (*Registry, error) {
	r := &Registry{handles: make(map[string]Handle, len(handles))}
	for _, h := range handles {
		if _, dup := r.handles[h.ID()]; dup {
			return nil, fmt.Errorf("duplicate store %q", h.ID())
		}
		r.handles[h.ID()] = h
	}
	return r, nil
}

// Select returns the handles for ids in the given order.
func (r *Registry) Select(ids []string) ([]Handle, error) {
	out := make([]Handle, 0, len(ids))
	for _, id := range ids {
		h, ok := r.handles[id]
		if !ok {
			return nil, fmt.Errorf("unknown store %q", id)
		}
		out = append(out, h)
	}
	return out, nil
}

type Retriever struct {
	k      int
	sink   *ContextSink
	logger *zap.Logger
}

// New returns a retriever asking each store for k chunks. sink may be nil.
func New(k int, sink *ContextSink, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{k: k, sink: sink, logger: logger}
}

// Retrieve searches all stores concurrently and concatenates their results in
// store order, each store's hits in rank order. Duplicates across stores are
// kept. Any store failure fails the whole call.
func (r *Retriever) Retrieve(ctx context.Context, query string, stores []Handle) ([]model.DocumentChunk, error) {
	if len(stores) == 0 {
		return nil, errors.New("no stores selected")
	}

	slots := make([][]model.DocumentChunk, len(stores))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range stores {
		g.Go(func() error {
			hits, err := s.Search(gctx, query, r.k)
			if err != nil {
				return err
			}
			slots[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []model.DocumentChunk
	for i, hits := range slots {
		r.logger.Debug("retrieved documents",
			zap.String("store", stores[i].ID()),
			zap.Int("count", len(hits)),
		)
		for j, h := range hits {
			r.logger.Debug("document",
				zap.String("store", stores[i].ID()),
				zap.Int("rank", j+1),
				zap.String("preview", util.Preview(h.Text, 200)),
			)
		}
		merged = append(merged, hits...)
	}

	if r.sink != nil {
		if err := r.sink.Write(merged); err != nil {
			r.logger.Warn("write retrieved contexts", zap.Error(err))
		}
	}
	return merged, nil
}
