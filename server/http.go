package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mnemonlabs/mnemon"
)

// sseSentinel terminates every message stream.
const sseSentinel = "[DONE]"

// Defaults supply the agent configuration used when a create request leaves
// fields blank.
type Defaults struct {
	Preset    string
	System    string
	Persona   string
	Human     string
	LLM       mnemon.LLMConfig
	Embedding mnemon.EmbeddingConfig
}

// Handler returns the HTTP surface: bearer-token auth on every route, agent
// CRUD, and the SSE message endpoint.
func (s *Server) Handler(defaults Defaults) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /agents", s.withAuth(s.handleListAgents))
	mux.HandleFunc("POST /agents", s.withAuth(func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
		s.handleCreateAgent(w, r, userID, defaults)
	}))
	mux.HandleFunc("POST /agents/{id}/messages", s.withAuth(s.handleMessage))
	return mux
}

type authedHandler func(w http.ResponseWriter, r *http.Request, userID uuid.UUID)

// withAuth resolves the bearer token to a user id, rejecting unknown tokens
// with 403.
func (s *Server) withAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			http.Error(w, "missing bearer token", http.StatusForbidden)
			return
		}
		userID, err := s.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, mnemon.ErrNotFound) {
				http.Error(w, "invalid token", http.StatusForbidden)
				return
			}
			http.Error(w, "auth lookup failed", http.StatusInternalServerError)
			return
		}
		next(w, r, userID)
	}
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	states, err := s.ListAgents(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": states})
}

type createAgentRequest struct {
	Name    string `json:"name"`
	Preset  string `json:"preset,omitempty"`
	Persona string `json:"persona,omitempty"`
	Human   string `json:"human,omitempty"`
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request, userID uuid.UUID, defaults Defaults) {
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "agent name is required", http.StatusBadRequest)
		return
	}
	if req.Preset == "" {
		req.Preset = defaults.Preset
	}
	if req.Persona == "" {
		req.Persona = defaults.Persona
	}
	if req.Human == "" {
		req.Human = defaults.Human
	}

	agent, err := s.CreateAgent(r.Context(), mnemon.AgentState{
		Name:            req.Name,
		OwnerID:         userID,
		Preset:          req.Preset,
		LLMConfig:       defaults.LLM,
		EmbeddingConfig: defaults.Embedding,
		State: mnemon.StateBlob{
			Persona: req.Persona,
			Human:   req.Human,
			System:  defaults.System,
		},
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"agent_id": agent.ID()})
}

type messageRequest struct {
	Message string `json:"message"`
}

// handleMessage streams one user turn over SSE. Each event is a one-key JSON
// frame; the stream always ends with the sentinel, even after an error.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	agentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid agent id", http.StatusBadRequest)
		return
	}
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	emit := &sseEmitter{w: w, flusher: flusher}
	err = s.UserMessage(r.Context(), agentID, userID, req.Message, emit)
	if err != nil {
		var busy *mnemon.ErrAgentBusy
		switch {
		case errors.As(err, &busy):
			emit.frame(map[string]any{"internal_error": "agent is currently busy"})
		case errors.Is(err, mnemon.ErrNotFound):
			emit.frame(map[string]any{"internal_error": "agent not found"})
		default:
			s.deps.Logger.Error("message processing failed", "agent_id", agentID, "error", err)
			emit.frame(map[string]any{"internal_error": err.Error()})
		}
	}
	emit.sentinel()
}

// sseEmitter adapts an SSE response into a mnemon.Emitter. Writes are
// serialized; the engine may emit from tool code while the handler is mid
// frame.
type sseEmitter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

var _ mnemon.Emitter = (*sseEmitter)(nil)

func (e *sseEmitter) InternalMonologue(text string, id uuid.UUID, at time.Time) {
	e.frame(map[string]any{"internal_monologue": text, "id": id.String(), "date": mnemon.FormatTime(at)})
}

func (e *sseEmitter) AssistantMessage(text string, id uuid.UUID, at time.Time) {
	e.frame(map[string]any{"assistant_message": text, "id": id.String(), "date": mnemon.FormatTime(at)})
}

func (e *sseEmitter) FunctionCall(name, arguments string, id uuid.UUID, at time.Time) {
	e.frame(map[string]any{"function_call": fmt.Sprintf("%s(%s)", name, arguments), "id": id.String(), "date": mnemon.FormatTime(at)})
}

func (e *sseEmitter) FunctionReturn(ok bool, text string, id uuid.UUID, at time.Time) {
	status := "success"
	if !ok {
		status = "error"
	}
	e.frame(map[string]any{"function_return": text, "status": status, "id": id.String(), "date": mnemon.FormatTime(at)})
}

func (e *sseEmitter) frame(payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fmt.Fprintf(e.w, "data: %s\n\n", data)
	e.flusher.Flush()
}

func (e *sseEmitter) sentinel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	fmt.Fprintf(e.w, "data: %s\n\n", sseSentinel)
	e.flusher.Flush()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
