package mnemon

import (
	"encoding/json"
	"fmt"
	"time"
)

// Messages delivered to the model on the user role are JSON envelopes with a
// type discriminator, so the model can tell real user input from system
// events like logins, heartbeats, and alerts.

const (
	// NonUserMsgPrefix marks envelope text that did not originate from the
	// human user.
	NonUserMsgPrefix = "[This is an automated system message hidden from the user] "

	heartbeatReasonTimer     = "Automated timer"
	heartbeatReasonRequested = "Function called using request_heartbeat=true, returning control"
	heartbeatReasonFailed    = "Function call failed, returning control"

	tokenLimitWarningText = warnPrefix + "the conversation history will soon reach its maximum length and be trimmed. " +
		"Make sure to save any important information from the conversation to your memory before it is removed."

	firstLoginValue = "Never (first login)"
)

// timeLayout renders timestamps the way envelopes carry them.
const timeLayout = "2006-01-02 03:04:05 PM MST-0700"

// FormatTime renders t for inclusion in a message envelope.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func envelope(payload map[string]any) string {
	b, err := json.Marshal(payload)
	if err != nil {
		// Payloads are built from strings only; marshal cannot fail.
		panic(fmt.Sprintf("envelope marshal: %v", err))
	}
	return string(b)
}

// PackageUserMessage wraps raw user input in the user_message envelope.
func PackageUserMessage(text string, at time.Time) string {
	return envelope(map[string]any{
		"type":    "user_message",
		"message": text,
		"time":    FormatTime(at),
	})
}

// PackageLoginEvent builds the login envelope delivered when a session opens.
// lastLogin is a rendered timestamp, or empty for a first login.
func PackageLoginEvent(lastLogin string, at time.Time) string {
	if lastLogin == "" {
		lastLogin = firstLoginValue
	}
	return envelope(map[string]any{
		"type":       "login",
		"last_login": lastLogin,
		"time":       FormatTime(at),
	})
}

// PackageHeartbeat builds a timer-driven heartbeat envelope.
func PackageHeartbeat(at time.Time) string {
	return packageHeartbeat(heartbeatReasonTimer, at)
}

// PackageRequestedHeartbeat builds the envelope for a follow-up step the
// model asked for via request_heartbeat=true.
func PackageRequestedHeartbeat(at time.Time) string {
	return packageHeartbeat(heartbeatReasonRequested, at)
}

// PackageFailedHeartbeat builds the envelope for the forced follow-up step
// after a tool failure.
func PackageFailedHeartbeat(at time.Time) string {
	return packageHeartbeat(heartbeatReasonFailed, at)
}

func packageHeartbeat(reason string, at time.Time) string {
	return envelope(map[string]any{
		"type":   "heartbeat",
		"reason": NonUserMsgPrefix + reason,
		"time":   FormatTime(at),
	})
}

// PackageTokenLimitWarning builds the system_alert envelope sent once when
// the context window passes the pressure threshold.
func PackageTokenLimitWarning(at time.Time) string {
	return envelope(map[string]any{
		"type":    "system_alert",
		"message": tokenLimitWarningText,
		"time":    FormatTime(at),
	})
}

// PackageFunctionResponse wraps a tool result in the status envelope the
// model reads back on the tool role.
func PackageFunctionResponse(ok bool, message string, at time.Time) string {
	status := "OK"
	if !ok {
		status = "Failed"
	}
	return envelope(map[string]any{
		"status":  status,
		"message": message,
		"time":    FormatTime(at),
	})
}

// PackageSummaryMessage renders the synthetic user-role message that replaces
// evicted messages after compaction. summaryLen is how many messages the
// summary folds in, hidden and total count the whole durable log.
func PackageSummaryMessage(summary string, summaryLen, hidden, total int, at time.Time) string {
	text := fmt.Sprintf("Note: prior messages (%d of %d total messages) have been hidden from view due to conversation memory constraints.\n"+
		"The following is a summary of the previous %d messages:\n %s", hidden, total, summaryLen, summary)
	return envelope(map[string]any{
		"type":    "system_alert",
		"message": text,
		"time":    FormatTime(at),
	})
}

// unpackUserEnvelope lifts a sender name out of an incoming user-message
// envelope, when the caller provided one, and re-serializes the envelope
// without it. Non-JSON input and envelopes of other types pass through
// unchanged.
func unpackUserEnvelope(text string) (name, body string) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return "", text
	}
	if t, _ := payload["type"].(string); t != "user_message" {
		return "", text
	}
	name, _ = payload["name"].(string)
	if name == "" {
		return "", text
	}
	delete(payload, "name")
	return name, envelope(payload)
}
