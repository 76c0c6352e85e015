package mnemon

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Boot exemplar shown to the model as its own first turn, so every
// conversation opens with a worked example of the send_message tool.
const (
	bootMonologue   = "Bootup sequence complete. Persona activated. Testing messaging functionality."
	bootSendMessage = "More human than human is our motto."
)

// Agent is the step engine for one conversation. It owns the in-context
// working set and mediates between the user, the completion endpoint, layered
// memory, and the tool registry. An Agent is not safe for concurrent use;
// callers serialize through a per-agent lock (see the server package).
type Agent struct {
	id      uuid.UUID
	ownerID uuid.UUID
	name    string
	preset  string

	llmConfig   LLMConfig
	embedConfig EmbeddingConfig

	system   string
	core     *CoreMemory
	tools    *ToolRegistry
	messages []Message

	provider Provider
	recall   RecallMemory
	archival ArchivalMemory
	counter  TokenCounter
	tracer   Tracer
	logger   *slog.Logger
	emitter  Emitter
	now      func() time.Time

	firstMessage   bool
	pressureWarned bool
	pauseUntil     time.Time
	createdAt      time.Time
}

// AgentConfig carries the collaborators an Agent needs. Provider, Recall, and
// Archival are required; Tools defaults to the builtin set.
type AgentConfig struct {
	State    AgentState
	Provider Provider
	Recall   RecallMemory
	Archival ArchivalMemory
	Tools    *ToolRegistry

	// Messages restores the in-context window of a previously checkpointed
	// agent. Leave empty to boot fresh.
	Messages []Message
}

// Option configures optional Agent collaborators.
type Option func(*Agent)

// WithLogger sets the agent's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithTracer sets the agent's tracer.
func WithTracer(t Tracer) Option {
	return func(a *Agent) {
		if t != nil {
			a.tracer = t
		}
	}
}

// WithEmitter sets the event emitter for a step's observable output.
func WithEmitter(e Emitter) Option {
	return func(a *Agent) {
		if e != nil {
			a.emitter = e
		}
	}
}

// WithTokenCounter sets the token counter used for pressure detection and
// compaction.
func WithTokenCounter(tc TokenCounter) Option {
	return func(a *Agent) {
		if tc != nil {
			a.counter = tc
		}
	}
}

// WithClock overrides the agent's clock.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAgent builds an agent from persisted state. A fresh agent (no restored
// messages) gets the boot sequence: system message, the send_message
// exemplar, its OK tool response, and a first-login event.
func NewAgent(cfg AgentConfig, opts ...Option) (*Agent, error) {
	if cfg.Provider == nil {
		return nil, &ErrInvalidInput{Reason: "agent requires a completion provider"}
	}
	if cfg.Recall == nil || cfg.Archival == nil {
		return nil, &ErrInvalidInput{Reason: "agent requires recall and archival memory"}
	}

	core, err := NewCoreMemory(cfg.State.State.Persona, cfg.State.State.Human)
	if err != nil {
		return nil, err
	}

	tools := cfg.Tools
	if tools == nil {
		tools = NewToolRegistry()
		if err := RegisterBuiltins(tools); err != nil {
			return nil, err
		}
	}

	a := &Agent{
		id:          cfg.State.ID,
		ownerID:     cfg.State.OwnerID,
		name:        cfg.State.Name,
		preset:      cfg.State.Preset,
		llmConfig:   cfg.State.LLMConfig,
		embedConfig: cfg.State.EmbeddingConfig,
		system:      cfg.State.State.System,
		core:        core,
		tools:       tools,
		provider:    cfg.Provider,
		recall:      cfg.Recall,
		archival:    cfg.Archival,
		counter:     EstimateCounter{},
		tracer:      NopTracer(),
		logger:      nopLogger(),
		emitter:     NopEmitter(),
		now:         NowUTC,
		createdAt:   cfg.State.CreatedAt,
	}
	if a.id == uuid.Nil {
		a.id = uuid.New()
	}
	if a.createdAt.IsZero() {
		a.createdAt = NowUTC()
	}
	for _, opt := range opts {
		opt(a)
	}

	if len(cfg.Messages) > 0 {
		a.messages = normalizeRestored(cfg.Messages)
	} else {
		a.messages = a.bootSequence()
		a.firstMessage = true
	}
	return a, nil
}

// bootSequence builds the initial in-context window of a fresh agent.
func (a *Agent) bootSequence() []Message {
	now := a.now()
	model := a.llmConfig.Model

	sys := NewSystemMessage(a.id, a.ownerID, model, a.system)

	callID := NewToolCallID()
	boot := Message{
		ID:      uuid.New(),
		AgentID: a.id,
		OwnerID: a.ownerID,
		Role:    RoleAssistant,
		Text:    bootMonologue,
		ToolCalls: []ToolCall{{
			ID:        callID,
			Name:      "send_message",
			Arguments: fmt.Sprintf(`{"message": %q}`, bootSendMessage),
		}},
		Model:     model,
		CreatedAt: now,
	}
	bootReturn := Message{
		ID:         uuid.New(),
		AgentID:    a.id,
		OwnerID:    a.ownerID,
		Role:       RoleTool,
		Name:       "send_message",
		Text:       PackageFunctionResponse(true, "None", now),
		ToolCallID: callID,
		Model:      model,
		CreatedAt:  now,
	}
	login := NewUserMessage(a.id, a.ownerID, model, PackageLoginEvent("", now))

	return []Message{sys, boot, bootReturn, login}
}

// normalizeRestored enforces the load-time invariants on a checkpointed
// window: position 0 is a system message and every timestamp is UTC.
func normalizeRestored(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	for i := range out {
		out[i].CreatedAt = out[i].CreatedAt.UTC()
	}
	return out
}

func (a *Agent) ID() uuid.UUID      { return a.id }
func (a *Agent) OwnerID() uuid.UUID { return a.ownerID }
func (a *Agent) Name() string       { return a.name }

// Messages returns a copy of the in-context window.
func (a *Agent) Messages() []Message {
	out := make([]Message, len(a.messages))
	copy(out, a.messages)
	return out
}

// Core exposes core memory, primarily for inspection surfaces.
func (a *Agent) Core() *CoreMemory { return a.core }

// SetEmitter swaps the event emitter. Callers holding the agent's lock use
// this to route one request's events to its own stream.
func (a *Agent) SetEmitter(e Emitter) {
	if e == nil {
		e = NopEmitter()
	}
	a.emitter = e
}

// State snapshots the agent for checkpointing.
func (a *Agent) State() AgentState {
	ids := make([]uuid.UUID, len(a.messages))
	for i, m := range a.messages {
		ids[i] = m.ID
	}
	return AgentState{
		ID:              a.id,
		Name:            a.name,
		OwnerID:         a.ownerID,
		Preset:          a.preset,
		LLMConfig:       a.llmConfig,
		EmbeddingConfig: a.embedConfig,
		State: StateBlob{
			Persona:   a.core.Persona(),
			Human:     a.core.Human(),
			System:    a.system,
			Functions: a.tools.Schemas(),
			Messages:  ids,
		},
		CreatedAt: a.createdAt,
	}
}

// HeartbeatsPaused reports whether timed heartbeats are currently suspended
// by a pause_heartbeats call.
func (a *Agent) HeartbeatsPaused() bool {
	return a.now().Before(a.pauseUntil)
}

func (a *Agent) contextWindow() int {
	if a.llmConfig.ContextWindow > 0 {
		return a.llmConfig.ContextWindow
	}
	return DefaultContextWindow
}

// handle builds the capability surface tools run against. msgID and at name
// the assistant message whose tool call is being executed.
func (a *Agent) handle(msgID uuid.UUID, at time.Time) *Handle {
	return &Handle{
		Core:      a.core,
		Recall:    a.recall,
		Archival:  a.archival,
		Emitter:   a.emitter,
		MessageID: msgID,
		Time:      at,
		PauseHeartbeats: func(minutes int) {
			a.pauseUntil = a.now().Add(time.Duration(minutes) * time.Minute)
		},
	}
}

// StepResult is the outcome of one agent step.
type StepResult struct {
	// Messages created this step, in order: the ingested input, the
	// assistant reply, and the tool response when a tool ran.
	Messages []Message

	// HeartbeatRequest asks the caller to run a follow-up step immediately.
	HeartbeatRequest bool

	// ToolFailed reports that the step's tool call failed; callers force a
	// failure heartbeat so the model can recover.
	ToolFailed bool

	// MemoryWarning fires once when the prompt crosses the pressure
	// threshold; callers deliver a token-limit warning message next.
	MemoryWarning bool

	CompletionTokens int
}

// Step runs one full agent turn over the incoming message: ingest, prompt
// assembly, completion, reply handling, pressure check, and atomic commit.
// On context overflow it compacts and retries the completion exactly once.
// A failed step leaves the in-context window untouched.
func (a *Agent) Step(ctx context.Context, incoming Message) (StepResult, error) {
	ctx, span := a.tracer.Start(ctx, "agent.step", Attr("agent_id", a.id.String()))
	defer span.End()

	input, err := a.ingest(incoming)
	if err != nil {
		span.RecordError(err)
		return StepResult{}, err
	}

	a.refreshSystem(ctx)

	resp, err := a.complete(ctx, input)
	if err != nil && IsContextOverflow(err) {
		a.logger.Info("context overflow, compacting and retrying once")
		if sumErr := a.summarizeInPlace(ctx); sumErr != nil {
			span.RecordError(sumErr)
			return StepResult{}, sumErr
		}
		a.refreshSystem(ctx)
		resp, err = a.complete(ctx, input)
	}
	if err != nil {
		span.RecordError(err)
		return StepResult{}, err
	}

	newMessages, heartbeat, toolFailed := a.handleReply(ctx, input, resp)

	warning := false
	if used := a.usedTokens(resp, input); float64(used) > MessageSummaryWarningFrac*float64(a.contextWindow()) {
		if !a.pressureWarned {
			warning = true
			a.pressureWarned = true
			a.logger.Warn("context pressure threshold crossed",
				"total_tokens", used, "context_window", a.contextWindow())
		}
	}

	a.messages = append(a.messages, newMessages...)
	if err := a.recall.Insert(ctx, newMessages...); err != nil {
		a.logger.Warn("recall insert failed", "error", err)
	}
	a.firstMessage = false

	span.SetAttr(
		Attr("new_messages", len(newMessages)),
		Attr("completion_tokens", resp.Usage.CompletionTokens),
	)
	return StepResult{
		Messages:         newMessages,
		HeartbeatRequest: heartbeat,
		ToolFailed:       toolFailed,
		MemoryWarning:    warning,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// ingest validates and normalizes the incoming message: user or system role
// only, non-empty text, a lifted sender name from the envelope when present,
// and a fresh UTC timestamp when the caller left it zero.
func (a *Agent) ingest(incoming Message) (Message, error) {
	if strings.TrimSpace(incoming.Text) == "" {
		return Message{}, &ErrInvalidInput{Reason: "message text is empty"}
	}
	if strings.HasPrefix(strings.TrimSpace(incoming.Text), "/") {
		return Message{}, &ErrInvalidInput{Reason: "message text begins with a command prefix"}
	}
	switch incoming.Role {
	case RoleUser, RoleSystem:
	default:
		return Message{}, &ErrInvalidInput{Reason: fmt.Sprintf("unexpected incoming role %q", incoming.Role)}
	}

	msg := incoming
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	msg.AgentID = a.id
	msg.OwnerID = a.ownerID
	msg.Model = a.llmConfig.Model
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = a.now()
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	if msg.Role == RoleUser && msg.Name == "" {
		msg.Name, msg.Text = unpackUserEnvelope(msg.Text)
	}
	return msg, nil
}

// refreshSystem regenerates the position-0 system message so core memory
// edits and store growth are visible to the model immediately.
func (a *Agent) refreshSystem(ctx context.Context) {
	recallCount, err := a.recall.Size(ctx)
	if err != nil {
		a.logger.Warn("recall size unavailable", "error", err)
	}
	archivalCount, err := a.archival.Size(ctx)
	if err != nil {
		a.logger.Warn("archival size unavailable", "error", err)
	}
	text := ConstructSystem(a.system, a.core, recallCount, archivalCount, a.now())

	if len(a.messages) == 0 || a.messages[0].Role != RoleSystem {
		a.messages = append([]Message{NewSystemMessage(a.id, a.ownerID, a.llmConfig.Model, text)}, a.messages...)
		return
	}
	a.messages[0].Text = text
}

// complete dispatches the completion request. The agent's first turn retries
// until the model produces a tool call, bounded by FirstMessageAttempts.
func (a *Agent) complete(ctx context.Context, input Message) (ChatResponse, error) {
	req := ChatRequest{
		Messages:     append(a.Messages(), input),
		Tools:        a.tools.Schemas(),
		FirstMessage: a.firstMessage,
	}
	if !a.firstMessage {
		return a.checkFinish(a.provider.Chat(ctx, req))
	}

	var lastErr error
	for attempt := 0; attempt < FirstMessageAttempts; attempt++ {
		resp, err := a.provider.Chat(ctx, req)
		if err != nil {
			lastErr = err
			a.logger.Warn("retrying first message", "attempt", attempt+1, "error", err)
			continue
		}
		if pickToolCall(&resp) != nil {
			return a.checkFinish(resp, nil)
		}
		lastErr = &ErrLLM{Model: a.llmConfig.Model, Message: "first message did not include a function call"}
		a.logger.Warn("retrying first message", "attempt", attempt+1)
	}
	return ChatResponse{}, lastErr
}

// checkFinish validates the finish reason. "length" is folded into the
// overflow path; anything unrecognized is a provider protocol error.
func (a *Agent) checkFinish(resp ChatResponse, err error) (ChatResponse, error) {
	if err != nil {
		return resp, err
	}
	switch resp.FinishReason {
	case FinishStop, FinishFunctionCall, FinishToolCalls, "":
		return resp, nil
	case FinishLength:
		return resp, &ErrContextOverflow{Cause: &ErrLLM{Model: a.llmConfig.Model, Message: "completion hit max context length"}}
	default:
		return resp, &ErrLLM{Model: a.llmConfig.Model, Message: fmt.Sprintf("unexpected finish reason %q", resp.FinishReason)}
	}
}

// pickToolCall selects the single honored tool call from a reply: the legacy
// function_call field wins, then tool_calls[0]. A missing or overlong id is
// re-minted.
func pickToolCall(resp *ChatResponse) *ToolCall {
	var call *ToolCall
	switch {
	case resp.FunctionCall != nil:
		call = resp.FunctionCall
	case len(resp.ToolCalls) > 0:
		call = &resp.ToolCalls[0]
	default:
		return nil
	}
	if call.ID == "" || len(call.ID) > ToolCallIDMaxLen {
		call.ID = NewToolCallID()
	}
	return call
}

// handleReply turns the completion reply into committed messages: the
// assistant message always, plus the tool response when a tool call was
// honored. Tool failures surface as Failed tool messages, never as errors.
func (a *Agent) handleReply(ctx context.Context, input Message, resp ChatResponse) (msgs []Message, heartbeat, toolFailed bool) {
	now := a.now()
	model := a.llmConfig.Model

	call := pickToolCall(&resp)
	if call != nil && len(resp.ToolCalls) > 1 {
		a.logger.Warn("multiple tool calls in reply, honoring only the first",
			"dropped", len(resp.ToolCalls)-1)
	}

	assistant := Message{
		ID:        uuid.New(),
		AgentID:   a.id,
		OwnerID:   a.ownerID,
		Role:      RoleAssistant,
		Text:      resp.Content,
		Model:     model,
		CreatedAt: now,
	}
	if call != nil {
		assistant.ToolCalls = []ToolCall{*call}
	}

	if resp.Content != "" {
		a.emitter.InternalMonologue(resp.Content, assistant.ID, now)
	}
	msgs = append(msgs, input, assistant)

	if call == nil {
		return msgs, false, false
	}

	// function_call is emitted on both sides of execution, so stream
	// consumers see the running and completed transitions.
	a.emitter.FunctionCall(call.Name, call.Arguments, assistant.ID, now)
	outcome := runToolCall(ctx, a.tools, a.handle(assistant.ID, now), *call)
	a.emitter.FunctionCall(call.Name, call.Arguments, assistant.ID, now)

	display := outcome.message
	if display == "" {
		display = "None"
	}

	toolMsg := Message{
		ID:         uuid.New(),
		AgentID:    a.id,
		OwnerID:    a.ownerID,
		Role:       RoleTool,
		Name:       call.Name,
		Text:       PackageFunctionResponse(outcome.ok, display, now),
		ToolCallID: call.ID,
		Model:      model,
		CreatedAt:  now,
	}
	a.emitter.FunctionReturn(outcome.ok, display, toolMsg.ID, now)
	if !outcome.ok {
		a.logger.Warn("tool call failed", "tool", call.Name, "message", outcome.message)
	}

	msgs = append(msgs, toolMsg)
	return msgs, outcome.heartbeat, !outcome.ok
}

// usedTokens prefers the endpoint's own accounting of the whole exchange,
// falling back to a local estimate of the assembled prompt plus the reported
// completion.
func (a *Agent) usedTokens(resp ChatResponse, input Message) int {
	if resp.Usage.TotalTokens > 0 {
		return resp.Usage.TotalTokens
	}
	return countBufferTokens(a.counter, a.messages) + countMessageTokens(a.counter, input) +
		resp.Usage.CompletionTokens
}
