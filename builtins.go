package mnemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// The builtin tool set every preset starts from. Schemas are declared as raw
// JSON so they read the same as they go over the wire; every tool except
// send_message carries the injected request_heartbeat parameter.

const heartbeatProp = `"` + RequestHeartbeatParam + `":{"type":"boolean","description":"` + RequestHeartbeatDescription + `"}`

var builtinSchemas = map[string]json.RawMessage{
	"send_message": json.RawMessage(`{
		"type": "object",
		"properties": {
			"message": {"type": "string", "description": "Message contents. All unicode (including emojis) are supported."}
		},
		"required": ["message"]
	}`),
	"core_memory_append": json.RawMessage(`{
		"type": "object",
		"properties": {
			"name": {"type": "string", "description": "Section of the memory to be edited (persona or human)."},
			"content": {"type": "string", "description": "Content to write to the memory. All unicode (including emojis) are supported."},
			` + heartbeatProp + `
		},
		"required": ["name", "content"]
	}`),
	"core_memory_replace": json.RawMessage(`{
		"type": "object",
		"properties": {
			"name": {"type": "string", "description": "Section of the memory to be edited (persona or human)."},
			"old_content": {"type": "string", "description": "String to replace. Must be an exact match."},
			"new_content": {"type": "string", "description": "Content to write to the memory. All unicode (including emojis) are supported."},
			` + heartbeatProp + `
		},
		"required": ["name", "old_content", "new_content"]
	}`),
	"conversation_search": json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "String to search for."},
			"page": {"type": "integer", "description": "Allows you to page through results. Only use on a follow-up query. Defaults to 0 (first page)."},
			` + heartbeatProp + `
		},
		"required": ["query"]
	}`),
	"conversation_search_date": json.RawMessage(`{
		"type": "object",
		"properties": {
			"start_date": {"type": "string", "description": "The start of the date range to search, in the format 'YYYY-MM-DD'."},
			"end_date": {"type": "string", "description": "The end of the date range to search, in the format 'YYYY-MM-DD'."},
			"page": {"type": "integer", "description": "Allows you to page through results. Only use on a follow-up query. Defaults to 0 (first page)."},
			` + heartbeatProp + `
		},
		"required": ["start_date", "end_date"]
	}`),
	"archival_memory_insert": json.RawMessage(`{
		"type": "object",
		"properties": {
			"content": {"type": "string", "description": "Content to write to the memory. All unicode (including emojis) are supported."},
			` + heartbeatProp + `
		},
		"required": ["content"]
	}`),
	"archival_memory_search": json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "String to search for."},
			"page": {"type": "integer", "description": "Allows you to page through results. Only use on a follow-up query. Defaults to 0 (first page)."},
			` + heartbeatProp + `
		},
		"required": ["query"]
	}`),
	"pause_heartbeats": json.RawMessage(`{
		"type": "object",
		"properties": {
			"minutes": {"type": "integer", "description": "Number of minutes to ignore heartbeats for. Max value of 360 minutes (6 hours)."}
		},
		"required": ["minutes"]
	}`),
}

// RegisterBuiltins installs the builtin tool set into reg.
func RegisterBuiltins(reg *ToolRegistry) error {
	builtins := []struct {
		name, desc string
		fn         ToolFunc
	}{
		{"send_message", "Sends a message to the human user.", toolSendMessage},
		{"core_memory_append", "Append to the contents of core memory.", toolCoreMemoryAppend},
		{"core_memory_replace", "Replace the contents of core memory. To delete memories, use an empty string for new_content.", toolCoreMemoryReplace},
		{"conversation_search", "Search prior conversation history using case-insensitive string matching.", toolConversationSearch},
		{"conversation_search_date", "Search prior conversation history using a date range.", toolConversationSearchDate},
		{"archival_memory_insert", "Add to archival memory. Make sure to phrase the memory contents such that it can be easily queried later.", toolArchivalMemoryInsert},
		{"archival_memory_search", "Search archival memory using semantic (embedding-based) search.", toolArchivalMemorySearch},
		{"pause_heartbeats", "Temporarily ignore timed heartbeats. You may still receive messages from manual heartbeats and other events.", toolPauseHeartbeats},
	}
	for _, b := range builtins {
		err := reg.Register(ToolSchema{
			Name:        b.name,
			Description: b.desc,
			Parameters:  builtinSchemas[b.name],
		}, b.fn)
		if err != nil {
			return err
		}
	}
	return nil
}

func toolSendMessage(_ context.Context, h *Handle, args map[string]any) (string, error) {
	msg, err := argString(args, "message")
	if err != nil {
		return "", err
	}
	h.Emitter.AssistantMessage(msg, h.MessageID, h.Time)
	return "", nil
}

func toolCoreMemoryAppend(_ context.Context, h *Handle, args map[string]any) (string, error) {
	name, err := argString(args, "name")
	if err != nil {
		return "", err
	}
	content, err := argString(args, "content")
	if err != nil {
		return "", err
	}
	if _, err := h.Core.EditAppend(name, content, "\n"); err != nil {
		return "", err
	}
	return "", nil
}

func toolCoreMemoryReplace(_ context.Context, h *Handle, args map[string]any) (string, error) {
	name, err := argString(args, "name")
	if err != nil {
		return "", err
	}
	old, err := argString(args, "old_content")
	if err != nil {
		return "", err
	}
	new_, err := argString(args, "new_content")
	if err != nil {
		return "", err
	}
	if _, err := h.Core.EditReplace(name, old, new_); err != nil {
		return "", err
	}
	return "", nil
}

func toolConversationSearch(ctx context.Context, h *Handle, args map[string]any) (string, error) {
	query, err := argString(args, "query")
	if err != nil {
		return "", err
	}
	page := argIntDefault(args, "page", 0)
	results, total, err := h.Recall.TextSearch(ctx, query, page*RetrievalPageSize, RetrievalPageSize)
	if err != nil {
		return "", err
	}
	return formatMessageResults(results, total, page), nil
}

func toolConversationSearchDate(ctx context.Context, h *Handle, args map[string]any) (string, error) {
	startStr, err := argString(args, "start_date")
	if err != nil {
		return "", err
	}
	endStr, err := argString(args, "end_date")
	if err != nil {
		return "", err
	}
	start, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		return "", fmt.Errorf("start_date must be in the format 'YYYY-MM-DD': %w", err)
	}
	end, err := time.Parse("2006-01-02", endStr)
	if err != nil {
		return "", fmt.Errorf("end_date must be in the format 'YYYY-MM-DD': %w", err)
	}
	// The range is inclusive of the end date.
	end = end.AddDate(0, 0, 1)
	page := argIntDefault(args, "page", 0)
	results, total, err := h.Recall.DateSearch(ctx, start, end, page*RetrievalPageSize, RetrievalPageSize)
	if err != nil {
		return "", err
	}
	return formatMessageResults(results, total, page), nil
}

func toolArchivalMemoryInsert(ctx context.Context, h *Handle, args map[string]any) (string, error) {
	content, err := argString(args, "content")
	if err != nil {
		return "", err
	}
	if err := h.Archival.Insert(ctx, content); err != nil {
		return "", err
	}
	return "", nil
}

func toolArchivalMemorySearch(ctx context.Context, h *Handle, args map[string]any) (string, error) {
	query, err := argString(args, "query")
	if err != nil {
		return "", err
	}
	page := argIntDefault(args, "page", 0)
	results, total, err := h.Archival.Search(ctx, query, page*RetrievalPageSize, RetrievalPageSize)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "No results found.", nil
	}
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("timestamp: %s, memory: %s", FormatTime(r.Timestamp), r.Content))
	}
	return formatPagedResults(lines, total, page)
}

func toolPauseHeartbeats(_ context.Context, h *Handle, args map[string]any) (string, error) {
	minutes := argIntDefault(args, "minutes", 0)
	if minutes <= 0 {
		return "", errors.New("minutes must be a positive integer")
	}
	if minutes > MaxPauseHeartbeatsMinutes {
		minutes = MaxPauseHeartbeatsMinutes
	}
	if h.PauseHeartbeats != nil {
		h.PauseHeartbeats(minutes)
	}
	return fmt.Sprintf("Pausing timed heartbeats for %d min", minutes), nil
}

func formatMessageResults(results []Message, total, page int) string {
	if len(results) == 0 {
		return "No results found."
	}
	lines := make([]string, 0, len(results))
	for _, m := range results {
		lines = append(lines, fmt.Sprintf("timestamp: %s, %s - %s", FormatTime(m.CreatedAt), m.Role, m.Text))
	}
	out, err := formatPagedResults(lines, total, page)
	if err != nil {
		return "No results found."
	}
	return out
}

func formatPagedResults(lines []string, total, page int) (string, error) {
	numPages := int(math.Ceil(float64(total)/float64(RetrievalPageSize))) - 1
	if numPages < 0 {
		numPages = 0
	}
	body, err := json.Marshal(lines)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Showing %d of %d results (page %d/%d): %s", len(lines), total, page, numPages, body), nil
}

func argString(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	return s, nil
}

func argIntDefault(args map[string]any, key string, def int) int {
	raw, ok := args[key]
	if !ok || raw == nil {
		return def
	}
	switch v := raw.(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
