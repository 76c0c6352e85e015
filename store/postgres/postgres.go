// Package postgres implements the engine's recall and archival storage
// contracts using PostgreSQL with pgvector for native vector similarity
// search.
//
// Stores accept an externally-owned *pgxpool.Pool via constructor injection.
// The caller creates and closes the pool.
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store owns schema management for the recall and archival tables.
type Store struct {
	pool *pgxpool.Pool
	dim  int
}

// Option configures a PostgreSQL Store.
type Option func(*Store)

// WithEmbeddingDimension sets the vector column dimension. When set, CREATE
// TABLE uses vector(N) instead of untyped vector. Only affects new table
// creation.
func WithEmbeddingDimension(dim int) Option {
	return func(s *Store) { s.dim = dim }
}

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) vectorType() string {
	if s.dim > 0 {
		return fmt.Sprintf("vector(%d)", s.dim)
	}
	return "vector"
}

// Init creates the pgvector extension, tables, and indexes.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY,
			agent_id UUID NOT NULL,
			owner_id UUID NOT NULL,
			role TEXT NOT NULL,
			name TEXT,
			text TEXT NOT NULL,
			tool_calls JSONB,
			tool_call_id TEXT,
			model TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_agent ON messages(agent_id, created_at)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS passages (
			id UUID PRIMARY KEY,
			agent_id UUID NOT NULL,
			owner_id UUID NOT NULL,
			text TEXT NOT NULL,
			embedding %s,
			created_at TIMESTAMPTZ NOT NULL
		)`, s.vectorType()),
		`CREATE INDEX IF NOT EXISTS idx_passages_agent ON passages(agent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_passages_embedding ON passages
		 USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres init: %w", err)
		}
	}
	return nil
}

// Pool exposes the underlying pool for the per-agent stores.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// formatVector renders a vector in pgvector's text input format.
func formatVector(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// parseVector decodes pgvector's text output format.
func parseVector(text string) []float32 {
	text = strings.Trim(strings.TrimSpace(text), "[]")
	if text == "" {
		return nil
	}
	parts := strings.Split(text, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil
		}
		out = append(out, float32(f))
	}
	return out
}
