package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mnemonlabs/mnemon"
)

// ErrNotFound is returned when a metadata lookup misses. It wraps the shared
// sentinel so callers can match with errors.Is(err, mnemon.ErrNotFound).
var ErrNotFound = fmt.Errorf("sqlite: %w", mnemon.ErrNotFound)

// MetadataStore persists users, API tokens, and agent state blobs.
type MetadataStore struct {
	db *sql.DB
}

// NewMetadataStore creates a MetadataStore over an existing handle. Pass
// store.DB() so every store shares the same serialized connection.
func NewMetadataStore(db *sql.DB) *MetadataStore {
	return &MetadataStore{db: db}
}

// CreateUser registers a new user and returns its id.
func (s *MetadataStore) CreateUser(ctx context.Context) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, created_at) VALUES (?,?)`,
		id.String(), time.Now().UTC().UnixNano())
	if err != nil {
		return uuid.Nil, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// CreateToken mints an API token for userID.
func (s *MetadataStore) CreateToken(ctx context.Context, userID uuid.UUID) (string, error) {
	token := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tokens (token, user_id, created_at) VALUES (?,?,?)`,
		token, userID.String(), time.Now().UTC().UnixNano())
	if err != nil {
		return "", fmt.Errorf("create token: %w", err)
	}
	return token, nil
}

// UserForToken resolves an API token to its owner, or ErrNotFound.
func (s *MetadataStore) UserForToken(ctx context.Context, token string) (uuid.UUID, error) {
	var userStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM tokens WHERE token = ?`, token).Scan(&userStr)
	if err == sql.ErrNoRows {
		return uuid.Nil, ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("lookup token: %w", err)
	}
	id, err := uuid.Parse(userStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse user id: %w", err)
	}
	return id, nil
}

// SaveAgent upserts an agent's full state blob.
func (s *MetadataStore) SaveAgent(ctx context.Context, state mnemon.AgentState) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal agent state: %w", err)
	}
	now := time.Now().UTC().UnixNano()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agents (id, owner_id, name, state, created_at, updated_at)
		 VALUES (?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		state.ID.String(), state.OwnerID.String(), state.Name, string(blob),
		state.CreatedAt.UTC().UnixNano(), now)
	if err != nil {
		return fmt.Errorf("save agent: %w", err)
	}
	return nil
}

// GetAgent loads an agent's state blob by id, or ErrNotFound.
func (s *MetadataStore) GetAgent(ctx context.Context, id uuid.UUID) (mnemon.AgentState, error) {
	return s.loadAgent(ctx, `SELECT state FROM agents WHERE id = ?`, id.String())
}

// GetAgentByName loads an agent by owner and name, or ErrNotFound.
func (s *MetadataStore) GetAgentByName(ctx context.Context, ownerID uuid.UUID, name string) (mnemon.AgentState, error) {
	return s.loadAgent(ctx, `SELECT state FROM agents WHERE owner_id = ? AND name = ?`, ownerID.String(), name)
}

// ListAgents returns every agent owned by ownerID.
func (s *MetadataStore) ListAgents(ctx context.Context, ownerID uuid.UUID) ([]mnemon.AgentState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT state FROM agents WHERE owner_id = ? ORDER BY created_at`, ownerID.String())
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []mnemon.AgentState
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		var state mnemon.AgentState
		if err := json.Unmarshal([]byte(blob), &state); err != nil {
			return nil, fmt.Errorf("unmarshal agent state: %w", err)
		}
		out = append(out, state)
	}
	return out, rows.Err()
}

func (s *MetadataStore) loadAgent(ctx context.Context, query string, args ...any) (mnemon.AgentState, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&blob)
	if err == sql.ErrNoRows {
		return mnemon.AgentState{}, ErrNotFound
	}
	if err != nil {
		return mnemon.AgentState{}, fmt.Errorf("load agent: %w", err)
	}
	var state mnemon.AgentState
	if err := json.Unmarshal([]byte(blob), &state); err != nil {
		return mnemon.AgentState{}, fmt.Errorf("unmarshal agent state: %w", err)
	}
	return state, nil
}
