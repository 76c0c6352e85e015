package mnemon

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestCoreMemoryEdit(t *testing.T) {
	core, err := NewCoreMemory("persona text", "human text")
	if err != nil {
		t.Fatalf("NewCoreMemory: %v", err)
	}

	n, err := core.Edit("persona", "new persona")
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if n != len("new persona") {
		t.Errorf("Edit returned %d, want %d", n, len("new persona"))
	}
	if core.Persona() != "new persona" {
		t.Errorf("Persona = %q", core.Persona())
	}

	if _, err := core.Edit("mood", "x"); err == nil {
		t.Error("unknown field should fail")
	}
}

func TestCoreMemoryEditLimit(t *testing.T) {
	core, _ := NewCoreMemory("p", "h")
	huge := strings.Repeat("a", DefaultPersonaCharLimit+1)
	_, err := core.Edit("persona", huge)
	if err == nil {
		t.Fatal("over-limit edit should fail")
	}
	if !strings.Contains(err.Error(), "character limit") {
		t.Errorf("err = %v, want limit message", err)
	}
	if core.Persona() != "p" {
		t.Error("failed edit must not change contents")
	}
}

func TestCoreMemoryEditAppend(t *testing.T) {
	core, _ := NewCoreMemory("p", "h")
	if _, err := core.EditAppend("human", "more", ""); err != nil {
		t.Fatalf("EditAppend: %v", err)
	}
	if core.Human() != "h\nmore" {
		t.Errorf("Human = %q, want h\\nmore", core.Human())
	}
}

func TestCoreMemoryEditReplace(t *testing.T) {
	core, _ := NewCoreMemory("p", "First name: Chad")

	if _, err := core.EditReplace("human", "Chad", "Ada"); err != nil {
		t.Fatalf("EditReplace: %v", err)
	}
	if core.Human() != "First name: Ada" {
		t.Errorf("Human = %q", core.Human())
	}

	if _, err := core.EditReplace("human", "", "x"); err == nil {
		t.Error("empty old content should fail")
	}
	if _, err := core.EditReplace("human", "not there", "x"); err == nil {
		t.Error("missing old content should fail")
	}
}

func TestPadEmbedding(t *testing.T) {
	vec := []float32{1, 2, 3}
	padded := PadEmbedding(vec, 5)
	if len(padded) != 5 {
		t.Fatalf("padded length = %d, want 5", len(padded))
	}
	if padded[0] != 1 || padded[2] != 3 || padded[4] != 0 {
		t.Errorf("padded = %v", padded)
	}

	same := PadEmbedding(vec, 3)
	if len(same) != 3 {
		t.Errorf("exact-width vector changed length to %d", len(same))
	}

	trunc := PadEmbedding(vec, 2)
	if len(trunc) != 2 || trunc[1] != 2 {
		t.Errorf("truncated = %v", trunc)
	}
}

func TestEmbeddingArchivalInsertChunks(t *testing.T) {
	store := &memPassages{}
	embed := &stubEmbedder{}
	arch := NewEmbeddingArchival(uuid.New(), uuid.New(), store, embed, 40)

	text := "First sentence here. Second sentence here. Third sentence here."
	if err := arch.Insert(context.Background(), text); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if len(store.passages) < 2 {
		t.Fatalf("expected chunking into multiple passages, got %d", len(store.passages))
	}
	for _, p := range store.passages {
		if len(p.Embedding) != MaxEmbeddingDim {
			t.Errorf("stored embedding width = %d, want %d", len(p.Embedding), MaxEmbeddingDim)
		}
		if p.CreatedAt.IsZero() {
			t.Error("passage missing timestamp")
		}
	}
}

func TestEmbeddingArchivalSearchPagesAndCaches(t *testing.T) {
	store := &memPassages{}
	embed := &stubEmbedder{}
	arch := NewEmbeddingArchival(uuid.New(), uuid.New(), store, embed, 300)

	for _, text := range []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta"} {
		if err := arch.Insert(context.Background(), text); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	embedCallsBefore := embed.calls

	page0, total, err := arch.Search(context.Background(), "greek letters", 0, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 7 {
		t.Errorf("total = %d, want 7", total)
	}
	if len(page0) != 5 {
		t.Errorf("page 0 has %d results, want 5", len(page0))
	}

	page1, _, err := arch.Search(context.Background(), "greek letters", 5, 5)
	if err != nil {
		t.Fatalf("Search page 1: %v", err)
	}
	if len(page1) != 2 {
		t.Errorf("page 1 has %d results, want 2", len(page1))
	}
	if embed.calls != embedCallsBefore+1 {
		t.Errorf("paging re-embedded the query: %d extra calls", embed.calls-embedCallsBefore)
	}
}

func TestEmbeddingArchivalInsertInvalidatesCache(t *testing.T) {
	store := &memPassages{}
	embed := &stubEmbedder{}
	arch := NewEmbeddingArchival(uuid.New(), uuid.New(), store, embed, 300)

	if err := arch.Insert(context.Background(), "one"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, total, err := arch.Search(context.Background(), "q", 0, 5); err != nil || total != 1 {
		t.Fatalf("Search: total=%d err=%v", total, err)
	}
	if err := arch.Insert(context.Background(), "two"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, total, err := arch.Search(context.Background(), "q", 0, 5); err != nil || total != 2 {
		t.Errorf("post-insert search should see new passages: total=%d err=%v", total, err)
	}
}
