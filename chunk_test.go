package mnemon

import (
	"strings"
	"testing"
)

func TestSplitPassagesShortText(t *testing.T) {
	got := SplitPassages("short enough", 100)
	if len(got) != 1 || got[0] != "short enough" {
		t.Errorf("SplitPassages = %v", got)
	}
}

func TestSplitPassagesSentenceBoundaries(t *testing.T) {
	text := "First sentence here. Second sentence here. Third sentence here."
	got := SplitPassages(text, 45)
	if len(got) < 2 {
		t.Fatalf("expected a split, got %v", got)
	}
	for _, chunk := range got {
		if len(chunk) > 45 {
			t.Errorf("chunk exceeds limit: %q (%d)", chunk, len(chunk))
		}
	}
	if !strings.HasSuffix(got[0], ".") {
		t.Errorf("chunk does not end on a sentence boundary: %q", got[0])
	}
}

func TestSplitPassagesOversizedSentence(t *testing.T) {
	text := strings.Repeat("a", 120)
	got := SplitPassages(text, 50)
	if len(got) < 3 {
		t.Fatalf("oversized sentence should hard-split, got %d chunks", len(got))
	}
	var joined strings.Builder
	for _, chunk := range got {
		if len(chunk) > 50 {
			t.Errorf("chunk exceeds limit: %d", len(chunk))
		}
		joined.WriteString(chunk)
	}
	if joined.String() != text {
		t.Error("hard split lost content")
	}
}

func TestSplitPassagesEmpty(t *testing.T) {
	if got := SplitPassages("", 100); len(got) != 0 {
		t.Errorf("empty input produced %v", got)
	}
	if got := SplitPassages("   ", 100); len(got) != 0 {
		t.Errorf("blank input produced %v", got)
	}
}
