package mnemon

import (
	"context"
	"fmt"
	"strings"
)

const (
	summaryWordLimit = 100

	// summaryInputScale bounds the summarizer's own prompt; transcripts over
	// this fraction of the window are pre-summarized recursively.
	summaryInputScale = 0.8
)

var summarySystemPrompt = fmt.Sprintf("Your job is to summarize a history of previous messages in a conversation between an AI persona and a human. "+
	"The conversation you are given is a from a fixed context window and may not be complete. "+
	"Messages sent by the AI are marked with the 'assistant' role. "+
	"The AI 'assistant' can also make calls to functions, whose outputs can be seen in messages with the 'tool' role. "+
	"Things the AI says in the message content are considered inner monologue and are not seen by the user. "+
	"The only AI messages seen by the user are from when the AI uses 'send_message'. "+
	"Messages the user sends are in the 'user' role. "+
	"The 'user' role is also used for important system events, such as login events and heartbeat events (heartbeats run the AI's program without user action, allowing the AI to act without prompting from the user sending them a message). "+
	"Summarize what happened in the conversation from the perspective of the AI (use the first person). "+
	"Keep your summary less than %d words, do not exceed this word limit. "+
	"Only output the summary, do NOT include anything else in your output.", summaryWordLimit)

// summarizeInPlace folds the oldest in-context messages into a synthetic
// summary message, shrinking the working set while the durable log keeps
// everything. The system message at position 0 and the last SummaryKeepNLast
// messages are never summarized.
func (a *Agent) summarizeInPlace(ctx context.Context) error {
	ctx, span := a.tracer.Start(ctx, "agent.summarize", Attr("agent_id", a.id.String()))
	defer span.End()

	n := len(a.messages)
	if n <= 1+SummaryKeepNLast {
		err := &ErrSummarize{BufferLen: n, PreserveN: SummaryKeepNLast}
		span.RecordError(err)
		return err
	}

	cutoff := a.summaryCutoff()
	toSummarize := a.messages[1:cutoff]
	if len(toSummarize) < 2 {
		err := &ErrSummarize{BufferLen: n, PreserveN: SummaryKeepNLast}
		span.RecordError(err)
		return err
	}

	summary, err := a.summarizeMessages(ctx, toSummarize)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("summarize: %w", err)
	}

	total, sizeErr := a.recall.Size(ctx)
	if sizeErr != nil || total < n-1 {
		total = n - 1
	}
	retained := len(a.messages) - cutoff
	hidden := total - retained

	now := NowUTC()
	summaryMsg := NewUserMessage(a.id, a.ownerID, a.llmConfig.Model,
		PackageSummaryMessage(summary, len(toSummarize), hidden, total, now))

	rebuilt := make([]Message, 0, 2+retained)
	rebuilt = append(rebuilt, a.messages[0], summaryMsg)
	rebuilt = append(rebuilt, a.messages[cutoff:]...)
	a.messages = rebuilt

	if err := a.recall.Insert(ctx, summaryMsg); err != nil {
		a.logger.Warn("summary message not persisted to recall", "error", err)
	}

	// The working set shrank; re-arm the pressure warning.
	a.pressureWarned = false

	a.logger.Info("compacted context",
		"summarized", len(toSummarize), "retained", retained)
	span.SetAttr(Attr("summarized", len(toSummarize)))
	return nil
}

// summaryCutoff picks the index where the retained window begins: enough of
// the oldest messages to cover SummaryTruncTokenFrac of buffer tokens, never
// into the last SummaryKeepNLast, never starting the retained window on a
// message that cannot stand first. A user message is stepped over once so the
// summary boundary lands after it; tool messages are stepped over for as long
// as it takes, they must stay with their assistant call.
func (a *Agent) summaryCutoff() int {
	n := len(a.messages)
	counts := make([]int, n)
	buffer := 0
	for i := 1; i < n; i++ {
		counts[i] = countMessageTokens(a.counter, a.messages[i])
		buffer += counts[i]
	}
	desired := int(SummaryTruncTokenFrac * float64(buffer))

	cutoff := n - SummaryKeepNLast
	acc := 0
	for i := 1; i < n; i++ {
		acc += counts[i]
		if acc > desired {
			cutoff = i + 1
			break
		}
	}
	if limit := n - SummaryKeepNLast; cutoff > limit {
		cutoff = limit
	}

	if cutoff < n && a.messages[cutoff].Role == RoleUser {
		cutoff++
	}
	for cutoff < n && a.messages[cutoff].Role == RoleTool {
		cutoff++
	}
	return cutoff
}

// summarizeMessages asks the summarizer model for a first-person summary of
// msgs. Transcripts too large for the summarizer's own window are split: the
// head is summarized recursively and spliced back in as a system note.
func (a *Agent) summarizeMessages(ctx context.Context, msgs []Message) (string, error) {
	window := a.contextWindow()
	input := renderTranscript(msgs)

	if tokens := a.counter.Count(input); float64(tokens) > summaryInputScale*float64(window) {
		ratio := summaryInputScale * float64(window) / float64(tokens) * summaryInputScale
		cut := int(float64(len(msgs)) * ratio)
		if cut >= 1 && cut < len(msgs) {
			head, err := a.summarizeMessages(ctx, msgs[:cut])
			if err != nil {
				return "", err
			}
			spliced := make([]Message, 0, 1+len(msgs)-cut)
			spliced = append(spliced, Message{
				Role: RoleSystem,
				Text: "Summary of earlier messages: " + head,
			})
			spliced = append(spliced, msgs[cut:]...)
			input = renderTranscript(spliced)
		}
	}

	req := ChatRequest{Messages: []Message{
		{Role: RoleSystem, Text: summarySystemPrompt},
		{Role: RoleUser, Text: input},
	}}
	resp, err := a.provider.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", &ErrLLM{Model: a.llmConfig.Model, Message: "summarizer returned empty content"}
	}
	return strings.TrimSpace(resp.Content), nil
}

// renderTranscript flattens messages into the plain-text form the summarizer
// reads.
func renderTranscript(msgs []Message) string {
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Text)
		for _, call := range m.ToolCalls {
			fmt.Fprintf(&b, "%s calls %s(%s)\n", m.Role, call.Name, call.Arguments)
		}
	}
	return b.String()
}
