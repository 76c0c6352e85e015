package mnemon

import (
	"errors"
	"testing"
)

func TestCleanJSON(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		wantKey string
		wantVal string
	}{
		{
			name:    "strict",
			raw:     `{"message": "hello"}`,
			wantKey: "message",
			wantVal: "hello",
		},
		{
			name:    "missing close brace",
			raw:     `{"message": "hello"`,
			wantKey: "message",
			wantVal: "hello",
		},
		{
			name:    "missing quote and braces",
			raw:     `{"outer": {"message": "hello`,
			wantKey: "outer",
		},
		{
			name:    "trailing comma",
			raw:     `{"message": "hello",}`,
			wantKey: "message",
			wantVal: "hello",
		},
		{
			name:    "truncated nested object after comma",
			raw:     `{"a": {"b": 1,`,
			wantKey: "a",
		},
		{
			name:    "truncated after comma",
			raw:     `{"message": "hello",`,
			wantKey: "message",
			wantVal: "hello",
		},
		{
			name:    "literal newline in string",
			raw:     "{\"message\": \"line one\nline two\"}",
			wantKey: "message",
			wantVal: "line one\nline two",
		},
		{
			name:    "object embedded in prose",
			raw:     `Sure! Here is the call: {"message": "hello"} hope that helps`,
			wantKey: "message",
			wantVal: "hello",
		},
		{
			name:    "escaped underscore key",
			raw:     `{"send\_count": "3"}`,
			wantKey: "send_count",
			wantVal: "3",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CleanJSON(tc.raw)
			if err != nil {
				t.Fatalf("CleanJSON(%q): %v", tc.raw, err)
			}
			val, ok := got[tc.wantKey]
			if !ok {
				t.Fatalf("result %v missing key %q", got, tc.wantKey)
			}
			if tc.wantVal != "" {
				if s, _ := val.(string); s != tc.wantVal {
					t.Errorf("got[%q] = %v, want %q", tc.wantKey, val, tc.wantVal)
				}
			}
		})
	}
}

func TestCleanJSONUnrecoverable(t *testing.T) {
	_, err := CleanJSON("complete nonsense with no braces")
	var perr *ErrJSONParse
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want ErrJSONParse", err)
	}
	if perr.Raw != "complete nonsense with no braces" {
		t.Errorf("ErrJSONParse.Raw = %q", perr.Raw)
	}
}

func TestCleanJSONMessageFallback(t *testing.T) {
	raw := `broken { "message": "still recoverable text`
	got, err := CleanJSON(raw)
	if err != nil {
		t.Fatalf("CleanJSON: %v", err)
	}
	if _, ok := got["message"]; !ok {
		t.Errorf("fallback did not recover the message value: %v", got)
	}
}

func TestDecodeArguments(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		key  string
		want any
	}{
		{"strict", `{"page": 2}`, "page", float64(2)},
		{"empty means no args", "", "", nil},
		{"single quotes", `{'query': 'hello'}`, "query", "hello"},
		{"single quotes with apostrophe", `{'message': 'it\'s fine'}`, "message", "it's fine"},
		{"trailing comma via json5", `{"query": "hello",}`, "query", "hello"},
		{"unquoted key via json5", `{query: "hello"}`, "query", "hello"},
		{"unquoted key with single-quoted value", `{message: 'loosely quoted'}`, "message", "loosely quoted"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeArguments(tc.raw)
			if err != nil {
				t.Fatalf("DecodeArguments(%q): %v", tc.raw, err)
			}
			if tc.key == "" {
				if len(got) != 0 {
					t.Errorf("got %v, want empty map", got)
				}
				return
			}
			if got[tc.key] != tc.want {
				t.Errorf("got[%q] = %v, want %v", tc.key, got[tc.key], tc.want)
			}
		})
	}
}

func TestNormalizeQuotes(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    string
		changed bool
	}{
		{"single quoted pair", `{'a': 'b'}`, `{"a": "b"}`, true},
		{"escaped apostrophe", `{'a': 'it\'s'}`, `{"a": "it's"}`, true},
		{"double quote inside single", `{'a': 'say "hi"'}`, `{"a": "say \"hi\""}`, true},
		{"apostrophe inside double quotes", `{"a": "it's fine"}`, `{"a": "it's fine"}`, false},
		{"already strict", `{"a": "b"}`, `{"a": "b"}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, changed := normalizeQuotes(tc.in)
			if got != tc.want || changed != tc.changed {
				t.Errorf("normalizeQuotes(%q) = %q, %v; want %q, %v",
					tc.in, got, changed, tc.want, tc.changed)
			}
		})
	}
}

func TestRepairStrategiesOrdered(t *testing.T) {
	// The chain starts with the strict pass so well-formed input never pays
	// for repairs.
	if RepairStrategies[0].Name != "strict" {
		t.Errorf("first strategy = %q, want strict", RepairStrategies[0].Name)
	}
}

func TestExtractFirstObject(t *testing.T) {
	got, ok := extractFirstObject(`noise {"a": {"b": 1}} trailing {"c": 2}`)
	if !ok {
		t.Fatal("extractFirstObject failed")
	}
	if got != `{"a": {"b": 1}}` {
		t.Errorf("got %q", got)
	}

	if _, ok := extractFirstObject("no braces at all"); ok {
		t.Error("input without an object should not extract")
	}
}
