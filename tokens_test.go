package mnemon

import "testing"

func TestEstimateCounter(t *testing.T) {
	c := EstimateCounter{}
	if got := c.Count(""); got != 0 {
		t.Errorf("empty = %d", got)
	}
	if got := c.Count("abcd"); got != 2 {
		t.Errorf("four chars = %d, want 2", got)
	}
	// Multibyte runes count as runes, not bytes.
	if got := c.Count("日本語!"); got != 2 {
		t.Errorf("four runes = %d, want 2", got)
	}
}

func TestCountMessageTokens(t *testing.T) {
	tc := charCounter{}
	msg := Message{
		Role: RoleAssistant,
		Name: "sam",
		Text: "hello",
		ToolCalls: []ToolCall{{
			Name:      "send_message",
			Arguments: `{"message":"x"}`,
		}},
	}
	want := perMessageOverhead + len("hello") + len("sam") +
		len("send_message") + len(`{"message":"x"}`)
	if got := countMessageTokens(tc, msg); got != want {
		t.Errorf("countMessageTokens = %d, want %d", got, want)
	}
}

func TestCountBufferTokens(t *testing.T) {
	tc := charCounter{}
	msgs := []Message{
		{Role: RoleUser, Text: "ab"},
		{Role: RoleAssistant, Text: "cd"},
	}
	want := 2 * (perMessageOverhead + 2)
	if got := countBufferTokens(tc, msgs); got != want {
		t.Errorf("countBufferTokens = %d, want %d", got, want)
	}
}
