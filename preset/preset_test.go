package preset

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	p := Default()
	if p.Name != "memgpt_chat" {
		t.Errorf("Name = %q", p.Name)
	}
	if p.System == "" || p.Persona == "" || p.Human == "" {
		t.Error("default preset has empty blocks")
	}
	if len(p.Functions) != 8 {
		t.Errorf("Functions = %d, want 8", len(p.Functions))
	}
	if p.Functions[0] != "send_message" {
		t.Errorf("Functions[0] = %q", p.Functions[0])
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "focused.toml")
	content := `
name = "focused_chat"
system = "You are focused."
persona = "I am focused."
human = "First name: Ada"
functions = ["send_message", "conversation_search"]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write preset: %v", err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Name != "focused_chat" {
		t.Errorf("Name = %q", p.Name)
	}
	if p.System != "You are focused." {
		t.Errorf("System = %q", p.System)
	}
	if len(p.Functions) != 2 {
		t.Errorf("Functions = %v", p.Functions)
	}
}

func TestLoadFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "minimal.toml")
	if err := os.WriteFile(path, []byte(`persona = "just me"`), 0o600); err != nil {
		t.Fatalf("write preset: %v", err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Name != "minimal" {
		t.Errorf("Name = %q, want file base name", p.Name)
	}
	if p.System != DefaultSystem {
		t.Error("empty system should take the default")
	}
	if len(p.Functions) != 8 {
		t.Errorf("Functions = %d, want default set", len(p.Functions))
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"a.toml":  `name = "alpha"`,
		"b.toml":  `name = "beta"`,
		"skip.md": `not a preset`,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	got, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("LoadDir = %d presets, want 2", len(got))
	}
	if _, ok := got["alpha"]; !ok {
		t.Error("missing preset alpha")
	}
	if _, ok := got["beta"]; !ok {
		t.Error("missing preset beta")
	}
}
