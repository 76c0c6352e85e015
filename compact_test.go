package mnemon

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func compactTestAgent(provider Provider, window []Message) *Agent {
	recall := &memRecall{}
	state := testAgentState()
	state.ID = uuid.New()
	archival := NewEmbeddingArchival(state.ID, state.OwnerID, &memPassages{}, &stubEmbedder{}, 300)
	agent, err := NewAgent(AgentConfig{
		State:    state,
		Provider: provider,
		Recall:   recall,
		Archival: archival,
		Messages: window,
	}, WithTokenCounter(charCounter{}))
	if err != nil {
		panic(err)
	}
	recall.msgs = append(recall.msgs, window...)
	return agent
}

func windowOf(roles ...string) []Message {
	msgs := make([]Message, 0, len(roles))
	for _, role := range roles {
		msgs = append(msgs, Message{
			ID:        uuid.New(),
			Role:      role,
			Text:      strings.Repeat("x", 20),
			CreatedAt: NowUTC(),
		})
	}
	return msgs
}

func TestSummarizeInPlaceShrinksWindow(t *testing.T) {
	provider := &stubProvider{replies: []chatReply{
		{resp: ChatResponse{Content: "we talked for a while", FinishReason: FinishStop}},
	}}
	window := windowOf(RoleSystem, RoleUser, RoleAssistant, RoleUser, RoleAssistant,
		RoleUser, RoleAssistant, RoleUser, RoleAssistant)
	agent := compactTestAgent(provider, window)
	before := len(agent.Messages())

	if err := agent.summarizeInPlace(context.Background()); err != nil {
		t.Fatalf("summarizeInPlace: %v", err)
	}

	msgs := agent.Messages()
	if len(msgs) >= before {
		t.Errorf("window did not shrink: %d -> %d", before, len(msgs))
	}
	if msgs[0].Role != RoleSystem {
		t.Errorf("position 0 role = %q, want system", msgs[0].Role)
	}
	if msgs[1].Role != RoleUser {
		t.Errorf("summary message role = %q, want user", msgs[1].Role)
	}
	if !strings.Contains(msgs[1].Text, "we talked for a while") {
		t.Errorf("summary message missing summary text: %q", msgs[1].Text)
	}
	if !strings.Contains(msgs[1].Text, "hidden from view") {
		t.Errorf("summary message missing packaging: %q", msgs[1].Text)
	}

	// The newest messages survive verbatim.
	for i, orig := range window[len(window)-SummaryKeepNLast:] {
		kept := msgs[len(msgs)-SummaryKeepNLast+i]
		if kept.ID != orig.ID {
			t.Errorf("preserved message %d was replaced", i)
		}
	}
}

func TestSummarizeTooFewMessages(t *testing.T) {
	provider := &stubProvider{}
	window := windowOf(RoleSystem, RoleUser, RoleAssistant)
	agent := compactTestAgent(provider, window)

	err := agent.summarizeInPlace(context.Background())
	var serr *ErrSummarize
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want ErrSummarize", err)
	}
	if len(provider.calls) != 0 {
		t.Error("summarizer should not be called when nothing is eligible")
	}
}

func TestSummaryCutoffSkipsToolBoundary(t *testing.T) {
	// A retained window must never start on a tool message; the cutoff walks
	// forward past them.
	window := windowOf(RoleSystem, RoleUser, RoleAssistant, RoleUser, RoleAssistant)
	window = append(window, windowOf(RoleTool, RoleUser, RoleAssistant, RoleUser)...)
	agent := compactTestAgent(&stubProvider{}, window)

	cutoff := agent.summaryCutoff()
	if cutoff < len(window) && window[cutoff].Role == RoleTool {
		t.Errorf("cutoff %d lands on a tool message", cutoff)
	}
}

func TestSummaryCutoffPreservesTail(t *testing.T) {
	window := windowOf(RoleSystem, RoleUser, RoleAssistant, RoleUser, RoleAssistant,
		RoleUser, RoleAssistant, RoleUser)
	agent := compactTestAgent(&stubProvider{}, window)

	cutoff := agent.summaryCutoff()
	if cutoff > len(window)-SummaryKeepNLast+1 {
		t.Errorf("cutoff %d eats into the preserved tail", cutoff)
	}
	if cutoff < 2 {
		t.Errorf("cutoff %d summarizes fewer than 2 messages", cutoff)
	}
}

func TestSummarizeResetsPressureLatch(t *testing.T) {
	provider := &stubProvider{replies: []chatReply{
		{resp: ChatResponse{Content: "summary", FinishReason: FinishStop}},
	}}
	window := windowOf(RoleSystem, RoleUser, RoleAssistant, RoleUser, RoleAssistant,
		RoleUser, RoleAssistant, RoleUser, RoleAssistant)
	agent := compactTestAgent(provider, window)
	agent.pressureWarned = true

	if err := agent.summarizeInPlace(context.Background()); err != nil {
		t.Fatalf("summarizeInPlace: %v", err)
	}
	if agent.pressureWarned {
		t.Error("compaction should re-arm the pressure warning")
	}
}

func TestRenderTranscript(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Text: "hello"},
		{Role: RoleAssistant, Text: "thinking", ToolCalls: []ToolCall{{Name: "send_message", Arguments: `{"message":"hi"}`}}},
	}
	got := renderTranscript(msgs)
	if !strings.Contains(got, "user: hello") {
		t.Errorf("transcript missing user line: %q", got)
	}
	if !strings.Contains(got, "send_message") {
		t.Errorf("transcript missing tool call: %q", got)
	}
}
