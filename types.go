package mnemon

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message roles. Position 0 of an agent's in-context log is always a system
// message; tool messages always follow the assistant message whose tool call
// they answer.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry in the durable conversation log. Messages are created
// by the step engine and never mutated; compaction only revokes their
// presence in the in-context window, they remain in recall memory.
type Message struct {
	ID         uuid.UUID  `json:"id"`
	AgentID    uuid.UUID  `json:"agent_id"`
	OwnerID    uuid.UUID  `json:"owner_id"`
	Role       string     `json:"role"`
	Text       string     `json:"text,omitempty"`
	Name       string     `json:"name,omitempty"` // tool name when Role == "tool"
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Model      string     `json:"model,omitempty"`
	CreatedAt  time.Time  `json:"created_at"` // always UTC
}

// ToolCall is an LLM-requested invocation of a named tool. Arguments arrive
// as a raw JSON string and are frequently malformed; see CleanJSON.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolSchema describes a callable tool: its name, description, and JSON
// Schema for parameters. The agent's schema registry is append-only.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ChatRequest is a completion request assembled by the step engine.
type ChatRequest struct {
	Messages []Message
	Tools    []ToolSchema
	// FirstMessage hints the provider's prompt formatter that this is the
	// agent's first turn, which uses a different preamble on some backends.
	FirstMessage bool
}

// Finish reasons accepted from the completion endpoint. "length" is treated
// as a context-overflow signal and triggers compaction.
const (
	FinishStop         = "stop"
	FinishFunctionCall = "function_call"
	FinishToolCalls    = "tool_calls"
	FinishLength       = "length"
)

// ChatResponse is a parsed completion reply.
type ChatResponse struct {
	Content string
	// ToolCalls carries tool invocation requests. Only index 0 is honored by
	// the engine; extras are dropped with a warning.
	ToolCalls []ToolCall
	// FunctionCall is the legacy single-call field some backends still emit.
	FunctionCall *ToolCall
	FinishReason string
	Usage        Usage
}

// Usage is the token accounting block of a completion reply.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// LLMConfig selects the completion endpoint for an agent.
type LLMConfig struct {
	Model         string `json:"model"`
	ModelEndpoint string `json:"model_endpoint"`
	ModelWrapper  string `json:"model_wrapper,omitempty"`
	ContextWindow int    `json:"context_window"`
}

// EmbeddingConfig selects the embedding endpoint for an agent.
type EmbeddingConfig struct {
	EmbeddingEndpoint  string `json:"embedding_endpoint"`
	EmbeddingModel     string `json:"embedding_model"`
	EmbeddingDim       int    `json:"embedding_dim"`
	EmbeddingChunkSize int    `json:"embedding_chunk_size"`
}

// StateBlob is the mutable, checkpointed portion of an agent: core memory,
// the static system preamble, the tool schema registry, and the ordered list
// of in-context message ids referencing the durable log.
type StateBlob struct {
	Persona   string       `json:"persona"`
	Human     string       `json:"human"`
	System    string       `json:"system"`
	Functions []ToolSchema `json:"functions"`
	Messages  []uuid.UUID  `json:"messages"`
}

// AgentState is the persisted identity and state of an agent. Identity
// fields are immutable after creation; only State changes, and it is
// checkpointed after every step.
type AgentState struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	OwnerID         uuid.UUID       `json:"owner_id"`
	Preset          string          `json:"preset"`
	LLMConfig       LLMConfig       `json:"llm_config"`
	EmbeddingConfig EmbeddingConfig `json:"embedding_config"`
	State           StateBlob       `json:"state"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Passage is a unit of archival memory: a text chunk with its embedding.
// Passages are content-addressed by embedding, created by insert, queried by
// similarity, never mutated.
type Passage struct {
	ID        uuid.UUID `json:"id"`
	AgentID   uuid.UUID `json:"agent_id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// ArchivalResult is one hit from an archival similarity search.
type ArchivalResult struct {
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
}

// Provider produces chat completions. Implementations live under provider/;
// the engine only depends on this contract.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// EmbeddingProvider produces text embeddings for archival memory.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NewUserMessage builds a user-role message stamped at UTC now.
func NewUserMessage(agentID, ownerID uuid.UUID, model, text string) Message {
	return Message{
		ID:        uuid.New(),
		AgentID:   agentID,
		OwnerID:   ownerID,
		Role:      RoleUser,
		Text:      text,
		Model:     model,
		CreatedAt: NowUTC(),
	}
}

// NewSystemMessage builds a system-role message stamped at UTC now.
func NewSystemMessage(agentID, ownerID uuid.UUID, model, text string) Message {
	return Message{
		ID:        uuid.New(),
		AgentID:   agentID,
		OwnerID:   ownerID,
		Role:      RoleSystem,
		Text:      text,
		Model:     model,
		CreatedAt: NowUTC(),
	}
}

// NowUTC returns the current time in UTC. Every persisted created_at must be
// UTC; non-UTC values read from storage are converted on load.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// NewToolCallID mints a fresh tool-call id bounded to ToolCallIDMaxLen,
// used when the provider omitted one or replied with a legacy function_call.
func NewToolCallID() string {
	id := uuid.New().String()
	if len(id) > ToolCallIDMaxLen {
		id = id[:ToolCallIDMaxLen]
	}
	return id
}
