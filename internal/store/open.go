package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/katakuxiko/sasgpt/internal/config"
)

// Open connects the backend described by cfg for searching.
func Open(ctx context.Context, cfg config.StoreConfig, embedder Embedder) (*Collection, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Backend {
	case "dir", "":
		backend, err = OpenDirStore(cfg.Path)
	case "pgvector":
		backend, err = NewPgStore(ctx, cfg.PgConn, cfg.Collection, 0)
	case "qdrant":
		backend = NewQdrantStore(cfg.QdrantURL, cfg.QdrantKey, cfg.Collection, 0)
	default:
		err = fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Name, err)
	}
	return NewCollection(cfg.Name, embedder, backend), nil
}

// OpenWriter prepares a backend for ingestion. Dir collections live under
// outputDir/collection unless cfg.Path is set; an existing one is appended to.
func OpenWriter(ctx context.Context, cfg config.StoreConfig, outputDir, embedModel string, dim int) (Writer, error) {
	switch cfg.Backend {
	case "dir", "":
		path := cfg.Path
		if path == "" {
			path = filepath.Join(outputDir, cfg.Collection)
		}
		if _, err := os.Stat(filepath.Join(path, collectionFile)); err == nil {
			return OpenDirStore(path)
		}
		return CreateDirStore(path, cfg.Collection, embedModel), nil
	case "pgvector":
		return NewPgStore(ctx, cfg.PgConn, cfg.Collection, dim)
	case "qdrant":
		return NewQdrantStore(cfg.QdrantURL, cfg.QdrantKey, cfg.Collection, 0), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
