package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mnemonlabs/mnemon"
)

// PassageStore implements mnemon.PassageStore for one agent. Embeddings are
// stored as JSON text and similarity search is done in-process using
// brute-force cosine similarity, which is plenty for per-agent archives.
type PassageStore struct {
	db      *sql.DB
	agentID uuid.UUID
}

var _ mnemon.PassageStore = (*PassageStore)(nil)

// NewPassageStore creates a PassageStore scoped to agentID. Pass store.DB()
// so every store shares the same serialized connection.
func NewPassageStore(db *sql.DB, agentID uuid.UUID) *PassageStore {
	return &PassageStore{db: db, agentID: agentID}
}

// Insert stores passages with their embeddings.
func (s *PassageStore) Insert(ctx context.Context, passages ...mnemon.Passage) error {
	for _, p := range passages {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO passages (id, agent_id, owner_id, text, embedding, created_at)
			 VALUES (?,?,?,?,?,?)`,
			p.ID.String(), p.AgentID.String(), p.OwnerID.String(), p.Text,
			serializeEmbedding(p.Embedding), p.CreatedAt.UTC().UnixNano())
		if err != nil {
			return fmt.Errorf("insert passage: %w", err)
		}
	}
	return nil
}

// Query returns the topK stored passages nearest to embedding by cosine
// similarity.
func (s *PassageStore) Query(ctx context.Context, embedding []float32, topK int) ([]mnemon.Passage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, owner_id, text, embedding, created_at
		 FROM passages WHERE agent_id = ?`, s.agentID.String())
	if err != nil {
		return nil, fmt.Errorf("query passages: %w", err)
	}
	defer rows.Close()

	type scored struct {
		passage mnemon.Passage
		score   float64
	}
	var candidates []scored
	for rows.Next() {
		var (
			idStr, agentStr, ownerStr, embText string
			p                                  mnemon.Passage
			createdAt                          int64
		)
		if err := rows.Scan(&idStr, &agentStr, &ownerStr, &p.Text, &embText, &createdAt); err != nil {
			return nil, fmt.Errorf("scan passage: %w", err)
		}
		p.ID, _ = uuid.Parse(idStr)
		p.AgentID, _ = uuid.Parse(agentStr)
		p.OwnerID, _ = uuid.Parse(ownerStr)
		p.Embedding = parseEmbedding(embText)
		p.CreatedAt = time.Unix(0, createdAt).UTC()
		candidates = append(candidates, scored{passage: p, score: cosine(embedding, p.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	out := make([]mnemon.Passage, len(candidates))
	for i, c := range candidates {
		out[i] = c.passage
	}
	return out, nil
}

// Size reports the number of stored passages for the agent.
func (s *PassageStore) Size(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM passages WHERE agent_id = ?`, s.agentID.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count passages: %w", err)
	}
	return n, nil
}
