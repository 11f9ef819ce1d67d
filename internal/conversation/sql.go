package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/katakuxiko/sasgpt/internal/model"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect holds the driver-specific SQL for the conversation_logs table.
type Dialect struct {
	Driver string
	schema string
	insert string
}

var (
	Postgres = Dialect{
		Driver: "postgres",
		schema: `CREATE TABLE IF NOT EXISTS conversation_logs (
			id BIGSERIAL PRIMARY KEY,
			user_input TEXT NOT NULL,
			retrieved_contexts TEXT NOT NULL,
			response TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		insert: `INSERT INTO conversation_logs (user_input, retrieved_contexts, response, created_at)
			VALUES ($1, $2, $3, $4)`,
	}
	SQLite = Dialect{
		Driver: "sqlite",
		schema: `CREATE TABLE IF NOT EXISTS conversation_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_input TEXT NOT NULL,
			retrieved_contexts TEXT NOT NULL,
			response TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		insert: `INSERT INTO conversation_logs (user_input, retrieved_contexts, response, created_at)
			VALUES (?, ?, ?, ?)`,
	}
)

// SQLStore writes records to a conversation_logs table. Contexts are stored
// as a JSON array.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(ctx context.Context, d Dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if d.Driver == SQLite.Driver {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, d.schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create conversation_logs: %w", err)
	}
	return &SQLStore{db: db, dialect: d}, nil
}

func (s *SQLStore) Append(ctx context.Context, rec model.ConversationRecord) error {
	rec = normalize(rec)
	contexts, err := json.Marshal(rec.RetrievedContexts)
	if err != nil {
		return err
	}
	var ts any = rec.Timestamp
	if s.dialect.Driver == SQLite.Driver {
		ts = rec.Timestamp.Format(time.RFC3339Nano)
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.insert, rec.UserInput, string(contexts), rec.Response, ts); err != nil {
		return fmt.Errorf("insert conversation log: %w", err)
	}
	return nil
}

func (s *SQLStore) Records(ctx context.Context) ([]model.ConversationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_input, retrieved_contexts, response, created_at
		FROM conversation_logs
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.ConversationRecord{}
	for rows.Next() {
		var (
			rec      model.ConversationRecord
			contexts string
			ts       any
		)
		if err := rows.Scan(&rec.UserInput, &contexts, &rec.Response, &ts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(contexts), &rec.RetrievedContexts); err != nil {
			return nil, fmt.Errorf("decode retrieved_contexts: %w", err)
		}
		if rec.Timestamp, err = scanTime(ts); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		return time.Parse(time.RFC3339Nano, t)
	case []byte:
		return time.Parse(time.RFC3339Nano, string(t))
	default:
		return time.Time{}, fmt.Errorf("unexpected timestamp type %T", v)
	}
}

func (s *SQLStore) Close() error { return s.db.Close() }
