package mnemon

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is the shared sentinel storage backends wrap when a lookup
// misses, so callers can route misses without knowing the backend.
var ErrNotFound = errors.New("not found")

// ErrLLM wraps a completion-endpoint failure: bad finish reason, empty body,
// or a protocol-level surprise the engine cannot recover from locally.
type ErrLLM struct {
	Model   string
	Message string
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Model, e.Message)
}

// ErrHTTP carries a raw HTTP failure from a provider or embedding endpoint.
// Status 429 is retried with exponential backoff by the retry wrapper.
type ErrHTTP struct {
	Status int
	Body   string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ErrContextOverflow marks a completion failure caused by the prompt
// exceeding the model's context window. The engine compacts and retries the
// step exactly once; a second overflow within the same step is fatal.
type ErrContextOverflow struct {
	Cause error
}

func (e *ErrContextOverflow) Error() string {
	return "context window exceeded: " + e.Cause.Error()
}

func (e *ErrContextOverflow) Unwrap() error { return e.Cause }

// IsContextOverflow reports whether err signals context overflow, either as
// a typed ErrContextOverflow, the provider error code, or the conventional
// "maximum context length" message substring.
func IsContextOverflow(err error) bool {
	if err == nil {
		return false
	}
	var co *ErrContextOverflow
	if errors.As(err, &co) {
		return true
	}
	s := err.Error()
	if strings.Contains(s, "maximum context length") {
		return true
	}
	var he *ErrHTTP
	if errors.As(err, &he) {
		if strings.Contains(he.Body, "context_length_exceeded") ||
			strings.Contains(he.Body, "maximum context length") {
			return true
		}
	}
	return false
}

// ErrSummarize is the structured failure the compactor raises when fewer
// than two messages are eligible for summarization, preventing an infinite
// summarize loop over the same message.
type ErrSummarize struct {
	BufferLen int
	PreserveN int
}

func (e *ErrSummarize) Error() string {
	return fmt.Sprintf("summarize error: couldn't find enough messages to compress [len=%d, preserve_N=%d]",
		e.BufferLen, e.PreserveN)
}

// ErrJSONParse marks exhaustion of every JSON repair strategy over an LLM
// reply or tool-argument string.
type ErrJSONParse struct {
	Raw string
}

func (e *ErrJSONParse) Error() string {
	return "failed to decode valid JSON from LLM output:\n=====\n" + e.Raw + "\n====="
}

// ErrAgentBusy is returned when a caller hits an agent whose per-agent lock
// is held. The caller may retry; the engine never queues.
type ErrAgentBusy struct {
	AgentID uuid.UUID
}

func (e *ErrAgentBusy) Error() string {
	return fmt.Sprintf("agent %s is currently busy", e.AgentID)
}

// ErrInvalidInput rejects a message at ingest before any state mutation:
// empty text, a leading command slash, or an unknown role.
type ErrInvalidInput struct {
	Reason string
}

func (e *ErrInvalidInput) Error() string {
	return "invalid input: " + e.Reason
}
