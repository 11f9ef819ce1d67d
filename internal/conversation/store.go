// Package conversation persists one record per answered turn.
package conversation

import (
	"context"
	"fmt"

	"github.com/katakuxiko/sasgpt/internal/config"
	"github.com/katakuxiko/sasgpt/internal/model"
)

// Store is an append-only conversation log.
type Store interface {
	Append(ctx context.Context, rec model.ConversationRecord) error
	Records(ctx context.Context) ([]model.ConversationRecord, error)
	Close() error
}

// Open returns the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.ConversationConfig) (Store, error) {
	switch cfg.Backend {
	case "json", "":
		return NewFileStore(cfg.Path), nil
	case "postgres":
		return NewSQLStore(ctx, Postgres, cfg.DSN)
	case "sqlite":
		return NewSQLStore(ctx, SQLite, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown conversation backend %q", cfg.Backend)
	}
}

func normalize(rec model.ConversationRecord) model.ConversationRecord {
	if rec.RetrievedContexts == nil {
		rec.RetrievedContexts = []string{}
	}
	return rec
}
