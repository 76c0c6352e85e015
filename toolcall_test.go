package mnemon

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func testRegistry(t *testing.T) *ToolRegistry {
	t.Helper()
	reg := NewToolRegistry()
	if err := RegisterBuiltins(reg); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	return reg
}

func testHandle() (*Handle, *recordEmitter) {
	core, _ := NewCoreMemory("persona", "human")
	emit := &recordEmitter{}
	return &Handle{
		Core:      core,
		Recall:    &memRecall{},
		Archival:  &EmbeddingArchival{},
		Emitter:   emit,
		MessageID: uuid.New(),
		Time:      NowUTC(),
	}, emit
}

func TestRegistryOrderAndSchemas(t *testing.T) {
	reg := testRegistry(t)
	schemas := reg.Schemas()
	if len(schemas) != 8 {
		t.Fatalf("builtin registry has %d schemas, want 8", len(schemas))
	}
	if schemas[0].Name != "send_message" {
		t.Errorf("first schema = %q, want send_message", schemas[0].Name)
	}
	for _, s := range schemas {
		var doc map[string]any
		if err := json.Unmarshal(s.Parameters, &doc); err != nil {
			t.Errorf("schema %s is not valid JSON: %v", s.Name, err)
		}
	}
}

func TestRunToolCallUnknownTool(t *testing.T) {
	reg := testRegistry(t)
	h, _ := testHandle()

	out := runToolCall(context.Background(), reg, h, ToolCall{Name: "teleport", Arguments: `{}`})
	if out.ok {
		t.Error("unknown tool should fail")
	}
	if !out.heartbeat {
		t.Error("failures force a heartbeat")
	}
	if out.message != "No function named teleport" {
		t.Errorf("message = %q", out.message)
	}
}

func TestRunToolCallSchemaValidation(t *testing.T) {
	reg := testRegistry(t)
	h, _ := testHandle()

	// message must be a string per the schema.
	out := runToolCall(context.Background(), reg, h, ToolCall{
		Name:      "send_message",
		Arguments: `{"message": 42}`,
	})
	if out.ok {
		t.Error("schema violation should fail the call")
	}
	if !strings.Contains(out.message, "send_message") {
		t.Errorf("message = %q", out.message)
	}
}

func TestRunToolCallPermissiveArguments(t *testing.T) {
	reg := testRegistry(t)
	h, emit := testHandle()

	out := runToolCall(context.Background(), reg, h, ToolCall{
		Name:      "send_message",
		Arguments: `{'message': 'loosely quoted'}`,
	})
	if !out.ok {
		t.Fatalf("permissive parse should succeed: %q", out.message)
	}
	if len(emit.assistant) != 1 || emit.assistant[0] != "loosely quoted" {
		t.Errorf("assistant events = %v", emit.assistant)
	}
}

func TestRunToolCallPanicRecovered(t *testing.T) {
	reg := NewToolRegistry()
	err := reg.Register(ToolSchema{Name: "explode"}, func(context.Context, *Handle, map[string]any) (string, error) {
		panic("kaboom")
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	h, _ := testHandle()

	out := runToolCall(context.Background(), reg, h, ToolCall{Name: "explode", Arguments: `{}`})
	if out.ok {
		t.Error("panicking tool should fail, not crash")
	}
	if !strings.Contains(out.message, "kaboom") {
		t.Errorf("message = %q", out.message)
	}
}

func TestShapeResultTruncation(t *testing.T) {
	long := strings.Repeat("z", FunctionReturnCharLimit+500)

	got := shapeResult("some_tool", long)
	if len(got) >= len(long) {
		t.Error("oversized output should be truncated")
	}
	if !strings.Contains(got, "truncated") {
		t.Errorf("truncation note missing: %q", got[len(got)-100:])
	}

	// Paging tools manage their own output size.
	if got := shapeResult("conversation_search", long); got != long {
		t.Error("paging tools must not be truncated")
	}
	if got := shapeResult("archival_memory_search", long); got != long {
		t.Error("archival search must not be truncated")
	}

	short := "fine"
	if got := shapeResult("some_tool", short); got != short {
		t.Errorf("short output changed: %q", got)
	}
}

func TestPopHeartbeat(t *testing.T) {
	cases := []struct {
		name string
		args map[string]any
		want bool
	}{
		{"absent", map[string]any{}, false},
		{"bool true", map[string]any{RequestHeartbeatParam: true}, true},
		{"bool false", map[string]any{RequestHeartbeatParam: false}, false},
		{"string true", map[string]any{RequestHeartbeatParam: "True"}, true},
		{"string false", map[string]any{RequestHeartbeatParam: "false"}, false},
		{"garbage", map[string]any{RequestHeartbeatParam: 3.5}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := popHeartbeat(tc.args)
			if got != tc.want {
				t.Errorf("popHeartbeat = %v, want %v", got, tc.want)
			}
			if _, still := tc.args[RequestHeartbeatParam]; still {
				t.Error("parameter should be removed from args")
			}
		})
	}
}

func TestConversationSearchFormatting(t *testing.T) {
	reg := testRegistry(t)
	h, _ := testHandle()
	recall := h.Recall.(*memRecall)
	for i := 0; i < 7; i++ {
		recall.msgs = append(recall.msgs, Message{
			Role: RoleUser, Text: "about golang", CreatedAt: NowUTC(),
		})
	}

	out := runToolCall(context.Background(), reg, h, ToolCall{
		Name:      "conversation_search",
		Arguments: `{"query": "golang"}`,
	})
	if !out.ok {
		t.Fatalf("conversation_search failed: %q", out.message)
	}
	if !strings.Contains(out.message, "Showing 5 of 7 results (page 0/1)") {
		t.Errorf("message = %q", out.message)
	}

	out = runToolCall(context.Background(), reg, h, ToolCall{
		Name:      "conversation_search",
		Arguments: `{"query": "nothing matches this"}`,
	})
	if out.message != "No results found." {
		t.Errorf("empty search message = %q", out.message)
	}
}

func TestCoreMemoryToolFailureSurfaces(t *testing.T) {
	reg := testRegistry(t)
	h, _ := testHandle()

	out := runToolCall(context.Background(), reg, h, ToolCall{
		Name:      "core_memory_replace",
		Arguments: `{"name": "human", "old_content": "missing", "new_content": "x"}`,
	})
	if out.ok {
		t.Error("replace of missing content should fail")
	}
	if !strings.Contains(out.message, "content not found in human") {
		t.Errorf("message = %q", out.message)
	}
}
