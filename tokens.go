package mnemon

import "unicode/utf8"

// TokenCounter measures text in model tokens. A real implementation lives in
// the tokenizer package; EstimateCounter is the dependency-free fallback.
type TokenCounter interface {
	Count(text string) int
}

// EstimateCounter approximates token counts at roughly four characters per
// token. It overestimates slightly for code-heavy text, which is the safe
// direction for pressure detection.
type EstimateCounter struct{}

var _ TokenCounter = EstimateCounter{}

func (EstimateCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return utf8.RuneCountInString(text)/4 + 1
}

// perMessageOverhead mirrors the chat-format framing cost the completion
// endpoint charges per message beyond its content.
const perMessageOverhead = 4

// countMessageTokens totals the token footprint of a message including role
// framing, name, and serialized tool calls.
func countMessageTokens(tc TokenCounter, msg Message) int {
	n := perMessageOverhead + tc.Count(msg.Text)
	if msg.Name != "" {
		n += tc.Count(msg.Name)
	}
	for _, call := range msg.ToolCalls {
		n += tc.Count(call.Name) + tc.Count(call.Arguments)
	}
	return n
}

func countBufferTokens(tc TokenCounter, msgs []Message) int {
	total := 0
	for _, m := range msgs {
		total += countMessageTokens(tc, m)
	}
	return total
}
