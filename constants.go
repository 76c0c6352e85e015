package mnemon

// Core memory limits. Edits that would exceed these fail with an error the
// calling tool converts into a tool-error for the model to see.
const (
	DefaultPersonaCharLimit = 2000
	DefaultHumanCharLimit   = 2000
)

// Tool execution limits.
const (
	// FunctionReturnCharLimit caps tool return values before they are
	// packaged into a tool message. Tools on the paging allow-list are
	// exempt because their paging mechanism already bounds output.
	FunctionReturnCharLimit = 3000

	// ToolCallIDMaxLen bounds minted tool-call ids.
	ToolCallIDMaxLen = 29

	// RetrievalPageSize is the default page size for search tools.
	RetrievalPageSize = 5

	// MaxPauseHeartbeatsMinutes bounds the pause_heartbeats tool argument.
	MaxPauseHeartbeatsMinutes = 360
)

// Context-pressure and compaction tuning.
const (
	// MessageSummaryWarningFrac is the fraction of the context window at
	// which a one-shot memory warning fires.
	MessageSummaryWarningFrac = 0.75

	// SummaryTruncTokenFrac is the fraction of buffer tokens the compactor
	// tries to fold into the summary.
	SummaryTruncTokenFrac = 0.75

	// SummaryKeepNLast messages are never summarized; they anchor tool-call
	// exemplars for the next turn.
	SummaryKeepNLast = 3

	// DefaultContextWindow is used when the LLM config does not carry one.
	DefaultContextWindow = 8192
)

// FirstMessageAttempts bounds the retry loop around the agent's very first
// completion, which uses a different prompt preamble on some backends.
const FirstMessageAttempts = 10

// MaxEmbeddingDim is the fixed width query embeddings are padded to so that
// backends with fixed-width vector columns stay compatible across models.
// Changing it invalidates existing archival stores.
const MaxEmbeddingDim = 4096

const warnPrefix = "Warning: "

// RequestHeartbeatParam is the reserved tool argument the model sets to
// request an immediate follow-up step after the tool runs. It is stripped
// from the arguments before schema validation and invocation.
const RequestHeartbeatParam = "request_heartbeat"

// RequestHeartbeatDescription documents the injected parameter in every
// builtin tool schema.
const RequestHeartbeatDescription = "Request an immediate heartbeat after function execution. " +
	"Set to 'true' if you want to send a follow-up message or run a follow-up function."

// truncatePagingAllowList names the tools whose returns are not truncated:
// their paging mechanism handles overflow.
var truncatePagingAllowList = map[string]bool{
	"conversation_search":      true,
	"conversation_search_date": true,
	"archival_memory_search":   true,
}
