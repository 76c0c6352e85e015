package mnemon

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// chatReply is one queued provider response.
type chatReply struct {
	resp ChatResponse
	err  error
}

// stubProvider replays queued replies and records every request. When the
// queue runs dry the last reply repeats.
type stubProvider struct {
	replies []chatReply
	calls   []ChatRequest
}

func (p *stubProvider) Chat(_ context.Context, req ChatRequest) (ChatResponse, error) {
	p.calls = append(p.calls, req)
	if len(p.replies) == 0 {
		return ChatResponse{Content: "ok", FinishReason: FinishStop}, nil
	}
	r := p.replies[0]
	if len(p.replies) > 1 {
		p.replies = p.replies[1:]
	}
	return r.resp, r.err
}

func sendMessageReply(monologue, message string) chatReply {
	return chatReply{resp: ChatResponse{
		Content: monologue,
		ToolCalls: []ToolCall{{
			ID:        "call-0000",
			Name:      "send_message",
			Arguments: `{"message": "` + message + `"}`,
		}},
		FinishReason: FinishToolCalls,
		Usage:        Usage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120},
	}}
}

// memRecall is an in-memory RecallMemory.
type memRecall struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *memRecall) Insert(_ context.Context, msgs ...Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msgs...)
	return nil
}

func (r *memRecall) TextSearch(_ context.Context, query string, offset, limit int) ([]Message, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var hits []Message
	for _, m := range r.msgs {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			continue
		}
		if strings.Contains(strings.ToLower(m.Text), strings.ToLower(query)) {
			hits = append(hits, m)
		}
	}
	return pageMessages(hits, offset, limit), len(hits), nil
}

func (r *memRecall) DateSearch(_ context.Context, start, end time.Time, offset, limit int) ([]Message, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var hits []Message
	for _, m := range r.msgs {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			continue
		}
		if !m.CreatedAt.Before(start) && m.CreatedAt.Before(end) {
			hits = append(hits, m)
		}
	}
	return pageMessages(hits, offset, limit), len(hits), nil
}

func (r *memRecall) Size(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs), nil
}

func pageMessages(msgs []Message, offset, limit int) []Message {
	if offset >= len(msgs) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(msgs) {
		end = len(msgs)
	}
	return msgs[offset:end]
}

// memPassages is an in-memory PassageStore returning passages in insertion
// order.
type memPassages struct {
	passages []Passage
}

func (s *memPassages) Insert(_ context.Context, passages ...Passage) error {
	s.passages = append(s.passages, passages...)
	return nil
}

func (s *memPassages) Query(_ context.Context, _ []float32, topK int) ([]Passage, error) {
	out := s.passages
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (s *memPassages) Size(context.Context) (int, error) {
	return len(s.passages), nil
}

// stubEmbedder returns a deterministic vector derived from the text length.
type stubEmbedder struct {
	calls int
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	return []float32{float32(len(text)), 1, 0}, nil
}

// recordEmitter captures emitted events alongside the ids they carry.
type recordEmitter struct {
	monologues []string
	assistant  []string
	calls      []string
	returns    []string
	ids        []uuid.UUID
}

func (e *recordEmitter) InternalMonologue(text string, id uuid.UUID, _ time.Time) {
	e.monologues = append(e.monologues, text)
	e.ids = append(e.ids, id)
}

func (e *recordEmitter) AssistantMessage(text string, id uuid.UUID, _ time.Time) {
	e.assistant = append(e.assistant, text)
	e.ids = append(e.ids, id)
}

func (e *recordEmitter) FunctionCall(name, _ string, id uuid.UUID, _ time.Time) {
	e.calls = append(e.calls, name)
	e.ids = append(e.ids, id)
}

func (e *recordEmitter) FunctionReturn(_ bool, text string, id uuid.UUID, _ time.Time) {
	e.returns = append(e.returns, text)
	e.ids = append(e.ids, id)
}

// charCounter counts one token per byte, making token math exact in tests.
type charCounter struct{}

func (charCounter) Count(text string) int { return len(text) }

func testAgentState() AgentState {
	return AgentState{
		Name:   "tester",
		Preset: "memgpt_chat",
		LLMConfig: LLMConfig{
			Model:         "gpt-4",
			ContextWindow: 8192,
		},
		EmbeddingConfig: EmbeddingConfig{
			EmbeddingModel:     "text-embedding-ada-002",
			EmbeddingDim:       3,
			EmbeddingChunkSize: 300,
		},
		State: StateBlob{
			Persona: "I am a test persona.",
			Human:   "First name: Ada",
			System:  "You are a test agent.",
		},
	}
}

func newTestAgent(provider Provider, opts ...Option) (*Agent, *memRecall, *memPassages) {
	recall := &memRecall{}
	passages := &memPassages{}
	state := testAgentState()
	archival := NewEmbeddingArchival(state.ID, state.OwnerID, passages, &stubEmbedder{}, 300)
	agent, err := NewAgent(AgentConfig{
		State:    state,
		Provider: provider,
		Recall:   recall,
		Archival: archival,
	}, opts...)
	if err != nil {
		panic(err)
	}
	return agent, recall, passages
}
