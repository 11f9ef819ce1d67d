package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/katakuxiko/sasgpt/internal/model"
	_ "github.com/lib/pq"
)

// PgStore — коллекция в таблице chunks (pgvector), строки разделены по collection.
type PgStore struct {
	db         *sql.DB
	collection string
}

// NewPgStore открывает соединение и проверяет схему. dim задаётся при
// загрузке документов; для поиска достаточно 0.
func NewPgStore(ctx context.Context, conn, collection string, dim int) (*PgStore, error) {
	db, err := sql.Open("postgres", conn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := ensureSchema(ctx, db, dim); err != nil {
		db.Close()
		return nil, err
	}
	return &PgStore{db: db, collection: collection}, nil
}

func (s *PgStore) Add(ctx context.Context, doc string, first int, texts []string, vectors [][]float32) error {
	rows, err := pgRows(s.collection, doc, first, texts, vectors)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range rows {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (collection, doc_name, chunk_id, text, embedding)
			VALUES ($1, $2, $3, $4, $5::vector)
		`, r...)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", r[2], err)
		}
	}
	return tx.Commit()
}

// pgRows builds the INSERT arguments for one batch.
func pgRows(collection, doc string, first int, texts []string, vectors [][]float32) ([][]any, error) {
	if len(texts) != len(vectors) {
		return nil, errors.New("texts and vectors length mismatch")
	}
	rows := make([][]any, len(texts))
	for i, t := range texts {
		rows[i] = []any{collection, doc, ChunkID(doc, first+i), t, floatsToPgVectorLiteral(vectors[i])}
	}
	return rows, nil
}

func (s *PgStore) Search(ctx context.Context, q []float32, k int) ([]model.DocumentChunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT text
		FROM chunks
		WHERE collection = $1
		ORDER BY embedding <=> $2::vector
		LIMIT $3
	`, s.collection, floatsToPgVectorLiteral(q), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []model.DocumentChunk
	for rows.Next() {
		var c model.DocumentChunk
		if err := rows.Scan(&c.Text); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (s *PgStore) Close() error { return s.db.Close() }

func floatsToPgVectorLiteral(v []float32) string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, f := range v {
		sb.WriteString(strconv.FormatFloat(float64(f), 'f', 6, 32))
		if i < len(v)-1 {
			sb.WriteString(",")
		}
	}
	sb.WriteString("]")
	return sb.String()
}
