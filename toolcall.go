package mnemon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Handle is the capability surface tools run against. It exposes exactly the
// agent facilities tools are allowed to touch; tools never see the agent
// itself.
type Handle struct {
	Core     *CoreMemory
	Recall   RecallMemory
	Archival ArchivalMemory
	Emitter  Emitter

	// MessageID and Time identify the assistant message whose tool call is
	// running; tool-emitted events carry them.
	MessageID uuid.UUID
	Time      time.Time

	// PauseHeartbeats suspends timer heartbeats for the given number of
	// minutes. Set by the owning agent.
	PauseHeartbeats func(minutes int)
}

// ToolFunc executes a tool against the capability handle with schema-checked
// arguments. The returned string is shown to the model; a non-nil error marks
// the call failed and forces a follow-up heartbeat.
type ToolFunc func(ctx context.Context, h *Handle, args map[string]any) (string, error)

// Tool pairs a schema with its implementation.
type Tool struct {
	Schema ToolSchema
	Fn     ToolFunc

	compiled *jsonschema.Schema
}

// ToolRegistry holds the agent's callable tools. Registration order is
// preserved because the schema list is part of the prompt.
type ToolRegistry struct {
	order []string
	tools map[string]*Tool
}

// NewToolRegistry builds an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]*Tool)}
}

// Register adds a tool, compiling its parameter schema for argument
// validation. Re-registering a name replaces the implementation in place.
func (r *ToolRegistry) Register(schema ToolSchema, fn ToolFunc) error {
	t := &Tool{Schema: schema, Fn: fn}
	if len(schema.Parameters) > 0 {
		compiled, err := jsonschema.CompileString(schema.Name+".json", string(schema.Parameters))
		if err != nil {
			return fmt.Errorf("register %s: compile schema: %w", schema.Name, err)
		}
		t.compiled = compiled
	}
	if _, exists := r.tools[schema.Name]; !exists {
		r.order = append(r.order, schema.Name)
	}
	r.tools[schema.Name] = t
	return nil
}

// Get looks up a tool by name.
func (r *ToolRegistry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Schemas returns the tool schemas in registration order.
func (r *ToolRegistry) Schemas() []ToolSchema {
	out := make([]ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Schema)
	}
	return out
}

// toolOutcome is the shaped result of one tool call, before packaging into a
// tool-role message.
type toolOutcome struct {
	message   string
	ok        bool
	heartbeat bool
}

// runToolCall drives the staged execution pipeline for one tool call:
// lookup, lenient argument parse, heartbeat extraction, schema validation,
// invocation, and result shaping. Failures never escape as errors; they
// become Failed outcomes the model reads back.
func runToolCall(ctx context.Context, reg *ToolRegistry, h *Handle, call ToolCall) toolOutcome {
	tool, ok := reg.Get(call.Name)
	if !ok {
		return toolOutcome{message: fmt.Sprintf("No function named %s", call.Name), heartbeat: true}
	}

	args, err := DecodeArguments(call.Arguments)
	if err != nil {
		return toolOutcome{
			message:   fmt.Sprintf("Error parsing JSON for function '%s' arguments: %s", call.Name, call.Arguments),
			heartbeat: true,
		}
	}

	heartbeat := popHeartbeat(args)

	if tool.compiled != nil {
		if err := tool.compiled.Validate(anyMap(args)); err != nil {
			return toolOutcome{
				message:   fmt.Sprintf("Error validating arguments for function '%s': %v", call.Name, err),
				heartbeat: true,
			}
		}
	}

	result, err := invoke(ctx, tool, h, args)
	if err != nil {
		return toolOutcome{
			message:   fmt.Sprintf("Error calling function %s: %v", call.Name, err),
			heartbeat: true,
		}
	}

	return toolOutcome{message: shapeResult(call.Name, result), ok: true, heartbeat: heartbeat}
}

// invoke runs the tool, converting a panic inside tool code into an error so
// a misbehaving tool cannot take down the step engine.
func invoke(ctx context.Context, tool *Tool, h *Handle, args map[string]any) (result string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return tool.Fn(ctx, h, args)
}

// popHeartbeat removes the request_heartbeat argument, coercing the string
// spellings some models produce.
func popHeartbeat(args map[string]any) bool {
	raw, ok := args[RequestHeartbeatParam]
	if !ok {
		return false
	}
	delete(args, RequestHeartbeatParam)
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}

// shapeResult truncates oversized tool output unless the tool pages its own
// results.
func shapeResult(name, result string) string {
	if truncatePagingAllowList[name] || len(result) <= FunctionReturnCharLimit {
		return result
	}
	return fmt.Sprintf("%s... [NOTE: function output was truncated since it exceeded the character limit (%d > %d)]",
		result[:FunctionReturnCharLimit], len(result), FunctionReturnCharLimit)
}

// anyMap rebuilds args as plain any for the schema validator, which rejects
// map[string]any aliases created by permissive decoders.
func anyMap(args map[string]any) any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
