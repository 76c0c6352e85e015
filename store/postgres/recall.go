package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mnemonlabs/mnemon"
)

// RecallStore implements mnemon.RecallMemory for one agent on PostgreSQL.
type RecallStore struct {
	pool    *pgxpool.Pool
	agentID uuid.UUID
}

var _ mnemon.RecallMemory = (*RecallStore)(nil)

// NewRecallStore creates a RecallStore scoped to agentID.
func NewRecallStore(pool *pgxpool.Pool, agentID uuid.UUID) *RecallStore {
	return &RecallStore{pool: pool, agentID: agentID}
}

// Insert appends messages to the durable log in one transaction, so a step's
// batch commits or rolls back as a unit.
func (s *RecallStore) Insert(ctx context.Context, msgs ...mnemon.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, m := range msgs {
		var toolCalls any
		if len(m.ToolCalls) > 0 {
			b, err := json.Marshal(m.ToolCalls)
			if err != nil {
				return fmt.Errorf("marshal tool calls: %w", err)
			}
			toolCalls = string(b)
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO messages
			 (id, agent_id, owner_id, role, name, text, tool_calls, tool_call_id, model, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			 ON CONFLICT (id) DO NOTHING`,
			m.ID, m.AgentID, m.OwnerID, m.Role, m.Name, m.Text,
			toolCalls, m.ToolCallID, m.Model, m.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

// TextSearch finds user and assistant messages containing query,
// case-insensitively, newest first.
func (s *RecallStore) TextSearch(ctx context.Context, query string, offset, limit int) ([]mnemon.Message, int, error) {
	where := `agent_id = $1 AND role IN ('user','assistant') AND text ILIKE '%' || $2 || '%'`
	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE `+where, s.agentID, query).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_id, owner_id, role, name, text, tool_calls, tool_call_id, model, created_at
		 FROM messages WHERE `+where+` ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		s.agentID, query, clampLimit(limit), clampOffset(offset))
	if err != nil {
		return nil, 0, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

// DateSearch finds user and assistant messages in [start, end), newest first.
func (s *RecallStore) DateSearch(ctx context.Context, start, end time.Time, offset, limit int) ([]mnemon.Message, int, error) {
	where := `agent_id = $1 AND role IN ('user','assistant') AND created_at >= $2 AND created_at < $3`
	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE `+where, s.agentID, start.UTC(), end.UTC()).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_id, owner_id, role, name, text, tool_calls, tool_call_id, model, created_at
		 FROM messages WHERE `+where+` ORDER BY created_at DESC LIMIT $4 OFFSET $5`,
		s.agentID, start.UTC(), end.UTC(), clampLimit(limit), clampOffset(offset))
	if err != nil {
		return nil, 0, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

// Size reports the number of messages in the agent's durable log.
func (s *RecallStore) Size(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE agent_id = $1`, s.agentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// GetMessages loads messages by id, preserving the order of ids. Unknown ids
// are skipped.
func (s *RecallStore) GetMessages(ctx context.Context, ids []uuid.UUID) ([]mnemon.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_id, owner_id, role, name, text, tool_calls, tool_call_id, model, created_at
		 FROM messages WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]mnemon.Message, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
	}
	out := make([]mnemon.Message, 0, len(byID))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func scanMessages(rows pgx.Rows) ([]mnemon.Message, error) {
	var out []mnemon.Message
	for rows.Next() {
		var (
			m                       mnemon.Message
			name, toolCallID, model *string
			toolCalls               []byte
			createdAt               time.Time
		)
		err := rows.Scan(&m.ID, &m.AgentID, &m.OwnerID, &m.Role, &name, &m.Text,
			&toolCalls, &toolCallID, &model, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if name != nil {
			m.Name = *name
		}
		if toolCallID != nil {
			m.ToolCallID = *toolCallID
		}
		if model != nil {
			m.Model = *model
		}
		if len(toolCalls) > 0 {
			if err := json.Unmarshal(toolCalls, &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("unmarshal tool calls: %w", err)
			}
		}
		m.CreatedAt = createdAt.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return mnemon.RetrievalPageSize
	}
	return limit
}

func clampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
