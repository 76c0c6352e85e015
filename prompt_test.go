package mnemon

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestConstructSystem(t *testing.T) {
	core, err := NewCoreMemory("I am Sam.", "First name: Ada")
	if err != nil {
		t.Fatalf("NewCoreMemory: %v", err)
	}
	at := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

	got := ConstructSystem("Base instructions.", core, 42, 7, at)

	if !strings.HasPrefix(got, "Base instructions.") {
		t.Errorf("system preamble missing: %q", got[:40])
	}
	if !strings.Contains(got, "### Memory [last modified: "+FormatTime(at)+"]") {
		t.Error("memory header missing or mistimed")
	}
	if !strings.Contains(got, "42 previous messages") {
		t.Error("recall count missing")
	}
	if !strings.Contains(got, "7 total memories") {
		t.Error("archival count missing")
	}

	personaTag := fmt.Sprintf(`<persona characters="%d/%d">`, len("I am Sam."), DefaultPersonaCharLimit)
	if !strings.Contains(got, personaTag) {
		t.Errorf("persona tag missing: want %s", personaTag)
	}
	if !strings.Contains(got, "I am Sam.\n</persona>") {
		t.Error("persona block malformed")
	}
	humanTag := fmt.Sprintf(`<human characters="%d/%d">`, len("First name: Ada"), DefaultHumanCharLimit)
	if !strings.Contains(got, humanTag) {
		t.Errorf("human tag missing: want %s", humanTag)
	}
	if !strings.HasSuffix(got, "</human>") {
		t.Error("human block must close the prompt")
	}
}

func TestConstructSystemReflectsEdits(t *testing.T) {
	core, _ := NewCoreMemory("old persona", "h")
	at := NowUTC()
	before := ConstructSystem("sys", core, 0, 0, at)

	if _, err := core.Edit("persona", "brand new persona"); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	after := ConstructSystem("sys", core, 0, 0, at)
	if before == after {
		t.Error("prompt did not change after a core memory edit")
	}
	if !strings.Contains(after, "brand new persona") {
		t.Error("edited persona missing from prompt")
	}
}
