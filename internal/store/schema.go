package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ensureSchema создаёт расширение, таблицу чанков и индекс для pgvector.
// При dim <= 0 столбец остаётся без размерности, индекс не создаётся.
func ensureSchema(ctx context.Context, db *sql.DB, dim int) error {
	column := "vector"
	if dim > 0 {
		column = fmt.Sprintf("vector(%d)", dim)
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id SERIAL PRIMARY KEY,
			collection TEXT NOT NULL,
			doc_name TEXT,
			chunk_id TEXT,
			text TEXT,
			embedding %s
		)`, column),
		`CREATE INDEX IF NOT EXISTS chunks_collection_idx ON chunks (collection)`,
	}
	if dim > 0 {
		stmts = append(stmts, `DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM pg_class c
				JOIN pg_namespace n ON n.oid=c.relnamespace
				WHERE c.relname='chunks_embedding_ivfflat_idx'
			) THEN
				EXECUTE 'CREATE INDEX chunks_embedding_ivfflat_idx ON chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists=100)';
			END IF;
		END $$;`)
	}

	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	// ANALYZE для корректной работы ivfflat
	_, _ = db.ExecContext(ctx, `ANALYZE chunks`)
	return nil
}
