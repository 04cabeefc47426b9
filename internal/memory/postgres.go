package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists transcripts in PostgreSQL as ordered append-only rows.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transcripts (
			id TEXT PRIMARY KEY,
			seq BIGSERIAL NOT NULL,
			conversation_id TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transcripts_conv_seq ON transcripts (conversation_id, seq);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Read(ctx context.Context, id string) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	var text string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(string_agg(content, '' ORDER BY seq), '')
		 FROM transcripts WHERE conversation_id=$1`,
		id,
	).Scan(&text)
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	return text, nil
}

func (s *PostgresStore) Append(ctx context.Context, id, text string) error {
	if err := checkID(id); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO transcripts (id, conversation_id, content, created_at)
		 VALUES ($1, $2, $3, $4)`,
		uuid.NewString(),
		id,
		text,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	return nil
}

func (s *PostgresStore) Reset(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM transcripts WHERE conversation_id=$1`, id); err != nil {
		return fmt.Errorf("reset transcript: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
