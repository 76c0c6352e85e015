package mnemon

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

var packTime = time.Date(2024, 3, 15, 14, 30, 5, 0, time.UTC)

func decodeEnvelope(t *testing.T, raw string) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("envelope is not valid JSON: %v\n%s", err, raw)
	}
	return payload
}

func TestFormatTime(t *testing.T) {
	got := FormatTime(packTime)
	if got != "2024-03-15 02:30:05 PM UTC+0000" {
		t.Errorf("FormatTime = %q", got)
	}
}

func TestPackageUserMessage(t *testing.T) {
	payload := decodeEnvelope(t, PackageUserMessage("hi there", packTime))
	if payload["type"] != "user_message" {
		t.Errorf("type = %v", payload["type"])
	}
	if payload["message"] != "hi there" {
		t.Errorf("message = %v", payload["message"])
	}
	if payload["time"] != FormatTime(packTime) {
		t.Errorf("time = %v", payload["time"])
	}
}

func TestPackageLoginEvent(t *testing.T) {
	payload := decodeEnvelope(t, PackageLoginEvent("", packTime))
	if payload["type"] != "login" {
		t.Errorf("type = %v", payload["type"])
	}
	if payload["last_login"] != "Never (first login)" {
		t.Errorf("last_login = %v", payload["last_login"])
	}

	prev := FormatTime(packTime.Add(-24 * time.Hour))
	payload = decodeEnvelope(t, PackageLoginEvent(prev, packTime))
	if payload["last_login"] != prev {
		t.Errorf("last_login = %v, want %q", payload["last_login"], prev)
	}
}

func TestPackageHeartbeats(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		reason string
	}{
		{"timer", PackageHeartbeat(packTime), "Automated timer"},
		{"requested", PackageRequestedHeartbeat(packTime), "Function called using request_heartbeat=true, returning control"},
		{"failed", PackageFailedHeartbeat(packTime), "Function call failed, returning control"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := decodeEnvelope(t, tc.raw)
			if payload["type"] != "heartbeat" {
				t.Errorf("type = %v", payload["type"])
			}
			reason, _ := payload["reason"].(string)
			if !strings.HasPrefix(reason, NonUserMsgPrefix) {
				t.Errorf("reason missing prefix: %q", reason)
			}
			if !strings.HasSuffix(reason, tc.reason) {
				t.Errorf("reason = %q, want suffix %q", reason, tc.reason)
			}
		})
	}
}

func TestPackageTokenLimitWarning(t *testing.T) {
	payload := decodeEnvelope(t, PackageTokenLimitWarning(packTime))
	if payload["type"] != "system_alert" {
		t.Errorf("type = %v", payload["type"])
	}
	msg, _ := payload["message"].(string)
	if !strings.Contains(msg, "maximum length") {
		t.Errorf("message = %q", msg)
	}
}

func TestPackageFunctionResponse(t *testing.T) {
	payload := decodeEnvelope(t, PackageFunctionResponse(true, "None", packTime))
	if payload["status"] != "OK" {
		t.Errorf("status = %v", payload["status"])
	}
	payload = decodeEnvelope(t, PackageFunctionResponse(false, "boom", packTime))
	if payload["status"] != "Failed" {
		t.Errorf("status = %v", payload["status"])
	}
	if payload["message"] != "boom" {
		t.Errorf("message = %v", payload["message"])
	}
}

func TestPackageSummaryMessage(t *testing.T) {
	payload := decodeEnvelope(t, PackageSummaryMessage("we chatted", 12, 12, 40, packTime))
	msg, _ := payload["message"].(string)
	if !strings.Contains(msg, "prior messages (12 of 40 total messages) have been hidden from view") {
		t.Errorf("message = %q", msg)
	}
	if !strings.Contains(msg, "summary of the previous 12 messages") {
		t.Errorf("message = %q", msg)
	}
	if !strings.Contains(msg, "we chatted") {
		t.Errorf("message = %q", msg)
	}
}

func TestUnpackUserEnvelope(t *testing.T) {
	named := envelope(map[string]any{"type": "user_message", "message": "hi", "name": "Chad"})
	name, body := unpackUserEnvelope(named)
	if name != "Chad" {
		t.Errorf("name = %q, want Chad", name)
	}
	if strings.Contains(body, "Chad") {
		t.Errorf("lifted name still present in body: %q", body)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		t.Fatalf("re-serialized body is not JSON: %v", err)
	}
	if payload["message"] != "hi" || payload["type"] != "user_message" {
		t.Errorf("body lost fields: %v", payload)
	}

	if name, body := unpackUserEnvelope("plain text"); name != "" || body != "plain text" {
		t.Errorf("non-JSON input changed: name=%q body=%q", name, body)
	}
	other := envelope(map[string]any{"type": "heartbeat", "name": "x"})
	if name, body := unpackUserEnvelope(other); name != "" || body != other {
		t.Errorf("non-user envelope changed: name=%q body=%q", name, body)
	}
}
