package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mnemonlabs/mnemon"
)

// PassageStore implements mnemon.PassageStore for one agent using pgvector's
// native cosine-distance ordering.
type PassageStore struct {
	pool    *pgxpool.Pool
	agentID uuid.UUID
}

var _ mnemon.PassageStore = (*PassageStore)(nil)

// NewPassageStore creates a PassageStore scoped to agentID.
func NewPassageStore(pool *pgxpool.Pool, agentID uuid.UUID) *PassageStore {
	return &PassageStore{pool: pool, agentID: agentID}
}

// Insert stores passages with their embeddings.
func (s *PassageStore) Insert(ctx context.Context, passages ...mnemon.Passage) error {
	for _, p := range passages {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO passages (id, agent_id, owner_id, text, embedding, created_at)
			 VALUES ($1,$2,$3,$4,$5::vector,$6)
			 ON CONFLICT (id) DO NOTHING`,
			p.ID, p.AgentID, p.OwnerID, p.Text, formatVector(p.Embedding), p.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert passage: %w", err)
		}
	}
	return nil
}

// Query returns the topK stored passages nearest to embedding.
func (s *PassageStore) Query(ctx context.Context, embedding []float32, topK int) ([]mnemon.Passage, error) {
	if topK <= 0 {
		topK = mnemon.RetrievalPageSize
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_id, owner_id, text, embedding::text, created_at
		 FROM passages WHERE agent_id = $1
		 ORDER BY embedding <=> $2::vector
		 LIMIT $3`,
		s.agentID, formatVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("query passages: %w", err)
	}
	defer rows.Close()

	var out []mnemon.Passage
	for rows.Next() {
		var (
			p         mnemon.Passage
			embText   string
			createdAt time.Time
		)
		if err := rows.Scan(&p.ID, &p.AgentID, &p.OwnerID, &p.Text, &embText, &createdAt); err != nil {
			return nil, fmt.Errorf("scan passage: %w", err)
		}
		p.Embedding = parseVector(embText)
		p.CreatedAt = createdAt.UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// Size reports the number of stored passages for the agent.
func (s *PassageStore) Size(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM passages WHERE agent_id = $1`, s.agentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count passages: %w", err)
	}
	return n, nil
}
