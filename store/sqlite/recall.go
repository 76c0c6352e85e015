package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mnemonlabs/mnemon"
)

// RecallStore implements mnemon.RecallMemory for one agent, backed by the
// shared messages table.
type RecallStore struct {
	db      *sql.DB
	agentID uuid.UUID
	logger  *slog.Logger
}

var _ mnemon.RecallMemory = (*RecallStore)(nil)

// NewRecallStore creates a RecallStore scoped to agentID. Pass store.DB() so
// every store shares the same serialized connection.
func NewRecallStore(db *sql.DB, agentID uuid.UUID) *RecallStore {
	return &RecallStore{db: db, agentID: agentID, logger: nopLogger}
}

// Insert appends messages to the durable log in one transaction, so a step's
// batch commits or rolls back as a unit.
func (s *RecallStore) Insert(ctx context.Context, msgs ...mnemon.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	for _, m := range msgs {
		var toolCalls any
		if len(m.ToolCalls) > 0 {
			b, err := json.Marshal(m.ToolCalls)
			if err != nil {
				return fmt.Errorf("marshal tool calls: %w", err)
			}
			toolCalls = string(b)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO messages
			 (id, agent_id, owner_id, role, name, text, tool_calls, tool_call_id, model, created_at)
			 VALUES (?,?,?,?,?,?,?,?,?,?)`,
			m.ID.String(), m.AgentID.String(), m.OwnerID.String(), m.Role, m.Name, m.Text,
			toolCalls, m.ToolCallID, m.Model, m.CreatedAt.UTC().UnixNano())
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

// TextSearch finds user and assistant messages containing query,
// case-insensitively, newest first.
func (s *RecallStore) TextSearch(ctx context.Context, query string, offset, limit int) ([]mnemon.Message, int, error) {
	where := `agent_id = ? AND role IN ('user','assistant') AND text LIKE '%' || ? || '%'`
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE `+where, s.agentID.String(), query).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, owner_id, role, name, text, tool_calls, tool_call_id, model, created_at
		 FROM messages WHERE `+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		s.agentID.String(), query, clampLimit(limit), clampOffset(offset))
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
	where := `agent_id = ? AND role IN ('user','assistant') AND created_at >= ? AND created_at < ?`
	args := []any{s.agentID.String(), start.UTC().UnixNano(), end.UTC().UnixNano()}

	var total int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, owner_id, role, name, text, tool_calls, tool_call_id, model, created_at
		 FROM messages WHERE `+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, clampLimit(limit), clampOffset(offset))...)
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
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE agent_id = ?`, s.agentID.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// GetMessages loads messages by id, preserving the order of ids. Unknown ids
// are skipped.
func (s *RecallStore) GetMessages(ctx context.Context, ids []uuid.UUID) ([]mnemon.Message, error) {
	byID := make(map[uuid.UUID]mnemon.Message, len(ids))
	for _, id := range ids {
		row := s.db.QueryRowContext(ctx,
			`SELECT id, agent_id, owner_id, role, name, text, tool_calls, tool_call_id, model, created_at
			 FROM messages WHERE id = ?`, id.String())
		m, err := scanMessage(row)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (mnemon.Message, error) {
	var (
		m                         mnemon.Message
		idStr, agentStr, ownerStr string
		name, toolCalls           sql.NullString
		toolCallID, model         sql.NullString
		createdAt                 int64
	)
	err := row.Scan(&idStr, &agentStr, &ownerStr, &m.Role, &name, &m.Text,
		&toolCalls, &toolCallID, &model, &createdAt)
	if err != nil {
		return mnemon.Message{}, err
	}
	m.ID, _ = uuid.Parse(idStr)
	m.AgentID, _ = uuid.Parse(agentStr)
	m.OwnerID, _ = uuid.Parse(ownerStr)
	m.Name = name.String
	m.ToolCallID = toolCallID.String
	m.Model = model.String
	m.CreatedAt = time.Unix(0, createdAt).UTC()
	if toolCalls.Valid && toolCalls.String != "" {
		if err := json.Unmarshal([]byte(toolCalls.String), &m.ToolCalls); err != nil {
			return mnemon.Message{}, fmt.Errorf("unmarshal tool calls: %w", err)
		}
	}
	return m, nil
}

func scanMessages(rows *sql.Rows) ([]mnemon.Message, error) {
	var out []mnemon.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
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
