// Package server hosts agents behind an HTTP surface: an in-memory agent
// registry with per-agent try-locks, the heartbeat chaining loop, and an SSE
// streaming endpoint for user messages.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/mnemonlabs/mnemon"
)

// DefaultMaxChainingSteps bounds heartbeat chains within one request.
const DefaultMaxChainingSteps = 20

// MetadataStore is the persistence surface the server needs for users,
// tokens, and agent state.
type MetadataStore interface {
	UserForToken(ctx context.Context, token string) (uuid.UUID, error)
	SaveAgent(ctx context.Context, state mnemon.AgentState) error
	GetAgent(ctx context.Context, id uuid.UUID) (mnemon.AgentState, error)
	ListAgents(ctx context.Context, ownerID uuid.UUID) ([]mnemon.AgentState, error)
}

// Deps wires the server to its collaborators. Recall and Passages build
// per-agent store views over shared storage; Restore loads a checkpointed
// in-context window by message id.
type Deps struct {
	Provider mnemon.Provider
	Embedder mnemon.EmbeddingProvider
	Metadata MetadataStore

	Recall   func(agentID uuid.UUID) mnemon.RecallMemory
	Passages func(agentID uuid.UUID) mnemon.PassageStore
	Restore  func(ctx context.Context, ids []uuid.UUID) ([]mnemon.Message, error)

	Counter mnemon.TokenCounter
	Tracer  mnemon.Tracer
	Logger  *slog.Logger

	MaxChainingSteps int
}

// Server owns the live agent registry. Each agent carries its own lock;
// requests that find the lock held are rejected immediately rather than
// queued.
type Server struct {
	deps Deps

	mu     sync.Mutex
	agents map[uuid.UUID]*managedAgent
}

type managedAgent struct {
	lock  sync.Mutex
	agent *mnemon.Agent
}

// New builds a server over deps.
func New(deps Deps) (*Server, error) {
	if deps.Provider == nil || deps.Metadata == nil || deps.Recall == nil || deps.Passages == nil {
		return nil, fmt.Errorf("server: missing required dependencies")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Tracer == nil {
		deps.Tracer = mnemon.NopTracer()
	}
	if deps.Counter == nil {
		deps.Counter = mnemon.EstimateCounter{}
	}
	if deps.MaxChainingSteps <= 0 {
		deps.MaxChainingSteps = DefaultMaxChainingSteps
	}
	return &Server{deps: deps, agents: make(map[uuid.UUID]*managedAgent)}, nil
}

// Authenticate resolves a bearer token to its owner.
func (s *Server) Authenticate(ctx context.Context, token string) (uuid.UUID, error) {
	return s.deps.Metadata.UserForToken(ctx, token)
}

// CreateAgent persists a fresh agent and loads it into the registry.
func (s *Server) CreateAgent(ctx context.Context, state mnemon.AgentState) (*mnemon.Agent, error) {
	if state.ID == uuid.Nil {
		state.ID = uuid.New()
	}
	agent, err := s.buildAgent(state, nil)
	if err != nil {
		return nil, err
	}
	if err := s.checkpoint(ctx, agent); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.agents[agent.ID()] = &managedAgent{agent: agent}
	s.mu.Unlock()
	return agent, nil
}

// ListAgents returns the persisted agents owned by ownerID.
func (s *Server) ListAgents(ctx context.Context, ownerID uuid.UUID) ([]mnemon.AgentState, error) {
	return s.deps.Metadata.ListAgents(ctx, ownerID)
}

func (s *Server) buildAgent(state mnemon.AgentState, messages []mnemon.Message) (*mnemon.Agent, error) {
	archival := mnemon.NewEmbeddingArchival(state.ID, state.OwnerID,
		s.deps.Passages(state.ID), s.deps.Embedder, state.EmbeddingConfig.EmbeddingChunkSize)
	return mnemon.NewAgent(mnemon.AgentConfig{
		State:    state,
		Provider: s.deps.Provider,
		Recall:   s.deps.Recall(state.ID),
		Archival: archival,
		Messages: messages,
	},
		mnemon.WithLogger(s.deps.Logger.With("agent_id", state.ID.String())),
		mnemon.WithTracer(s.deps.Tracer),
		mnemon.WithTokenCounter(s.deps.Counter),
	)
}

// managed returns the live registry entry for agentID, loading the agent
// from storage on first use.
func (s *Server) managed(ctx context.Context, agentID uuid.UUID) (*managedAgent, error) {
	s.mu.Lock()
	ma, ok := s.agents[agentID]
	s.mu.Unlock()
	if ok {
		return ma, nil
	}

	state, err := s.deps.Metadata.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	var messages []mnemon.Message
	if s.deps.Restore != nil && len(state.State.Messages) > 0 {
		messages, err = s.deps.Restore(ctx, state.State.Messages)
		if err != nil {
			return nil, fmt.Errorf("restore context window: %w", err)
		}
	}
	agent, err := s.buildAgent(state, messages)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.agents[agentID]; ok {
		// Lost a load race; the first loader wins.
		return existing, nil
	}
	ma = &managedAgent{agent: agent}
	s.agents[agentID] = ma
	return ma, nil
}

func (s *Server) checkpoint(ctx context.Context, agent *mnemon.Agent) error {
	if err := s.deps.Metadata.SaveAgent(ctx, agent.State()); err != nil {
		return fmt.Errorf("checkpoint agent: %w", err)
	}
	return nil
}

// UserMessage runs a full user turn against an agent: acquire the agent's
// lock without blocking, step, and keep chaining while the engine signals a
// follow-up is needed. Chaining priority is fixed: a memory warning first,
// then a failure heartbeat, then a requested heartbeat. The chain is bounded
// by MaxChainingSteps.
func (s *Server) UserMessage(ctx context.Context, agentID uuid.UUID, ownerID uuid.UUID, text string, emit mnemon.Emitter) error {
	ma, err := s.managed(ctx, agentID)
	if err != nil {
		return err
	}
	if ma.agent.OwnerID() != ownerID {
		return &mnemon.ErrInvalidInput{Reason: "agent does not belong to this user"}
	}
	if !ma.lock.TryLock() {
		return &mnemon.ErrAgentBusy{AgentID: agentID}
	}
	defer ma.lock.Unlock()

	agent := ma.agent
	if emit == nil {
		emit = mnemon.NopEmitter()
	}
	agent.SetEmitter(emit)
	defer agent.SetEmitter(mnemon.NopEmitter())

	now := mnemon.NowUTC()
	next := mnemon.NewUserMessage(agentID, ownerID, "", mnemon.PackageUserMessage(text, now))

	for step := 0; step < s.deps.MaxChainingSteps; step++ {
		res, err := agent.Step(ctx, next)
		if err != nil {
			return err
		}
		if err := s.checkpoint(ctx, agent); err != nil {
			s.deps.Logger.Error("checkpoint failed", "agent_id", agentID, "error", err)
		}

		now := mnemon.NowUTC()
		switch {
		case res.MemoryWarning:
			next = mnemon.NewUserMessage(agentID, ownerID, "", mnemon.PackageTokenLimitWarning(now))
		case res.ToolFailed:
			next = mnemon.NewUserMessage(agentID, ownerID, "", mnemon.PackageFailedHeartbeat(now))
		case res.HeartbeatRequest:
			next = mnemon.NewUserMessage(agentID, ownerID, "", mnemon.PackageRequestedHeartbeat(now))
		default:
			return nil
		}
	}
	s.deps.Logger.Warn("chaining step limit reached", "agent_id", agentID,
		"limit", s.deps.MaxChainingSteps)
	return nil
}

// TimerHeartbeat runs one timer-driven heartbeat step, honoring a
// pause_heartbeats window. Returns without stepping when heartbeats are
// paused or the agent is busy.
func (s *Server) TimerHeartbeat(ctx context.Context, agentID uuid.UUID) error {
	ma, err := s.managed(ctx, agentID)
	if err != nil {
		return err
	}
	if ma.agent.HeartbeatsPaused() {
		return nil
	}
	if !ma.lock.TryLock() {
		return &mnemon.ErrAgentBusy{AgentID: agentID}
	}
	defer ma.lock.Unlock()

	msg := mnemon.NewUserMessage(agentID, ma.agent.OwnerID(), "",
		mnemon.PackageHeartbeat(mnemon.NowUTC()))
	if _, err := ma.agent.Step(ctx, msg); err != nil {
		return err
	}
	return s.checkpoint(ctx, ma.agent)
}
