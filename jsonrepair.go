package mnemon

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/yosuke-furukawa/json5/encoding/json5"
)

// Models truncate, under-escape, and over-quote their JSON output often
// enough that strict parsing alone loses usable replies. CleanJSON runs an
// ordered list of repair strategies over the raw text and returns the first
// candidate that parses. The list is data: strategies run in declared order,
// first on the raw text, then on a copy with the LaTeX-style "\_" escape
// collapsed to "_".

// RepairStrategy rewrites raw model output into a candidate JSON document.
// Returning ok=false skips the candidate.
type RepairStrategy struct {
	Name  string
	Apply func(raw string) (candidate string, ok bool)
}

// RepairStrategies is the ordered repair chain, cheapest first.
var RepairStrategies = []RepairStrategy{
	{"strict", func(s string) (string, bool) { return s, true }},
	{"close-brace", func(s string) (string, bool) { return s + "}", true }},
	{"close-double-brace", func(s string) (string, bool) { return s + "}}", true }},
	{"close-quote-braces", func(s string) (string, bool) { return s + "\"}}", true }},
	{"strip-trailing-comma", stripTrailingCommas},
	{"close-brace-strip-comma", func(s string) (string, bool) { return stripTrailingCommas(s + "}") }},
	{"close-double-brace-strip-comma", func(s string) (string, bool) { return stripTrailingCommas(s + "}}") }},
	{"close-quote-braces-strip-comma", func(s string) (string, bool) { return stripTrailingCommas(s + "\"}}") }},
	{"escape-inner-newlines", escapeInnerNewlines},
	{"rebuild-message-value", rebuildMessageValue},
	{"extract-first-object", extractFirstObject},
	{"send-message-fallback", sendMessageFallback},
}

// CleanJSON decodes a JSON object out of raw model output, repairing common
// damage on the way. Fails with ErrJSONParse once every strategy is spent.
func CleanJSON(raw string) (map[string]any, error) {
	variants := []string{raw}
	if strings.Contains(raw, `\_`) {
		variants = append(variants, strings.ReplaceAll(raw, `\_`, "_"))
	}
	for _, v := range variants {
		v = strings.TrimSpace(v)
		for _, strat := range RepairStrategies {
			candidate, ok := strat.Apply(v)
			if !ok {
				continue
			}
			var out map[string]any
			if err := json.Unmarshal([]byte(candidate), &out); err == nil {
				return out, nil
			}
		}
	}
	return nil, &ErrJSONParse{Raw: raw}
}

// DecodeArguments parses a tool-call argument string: strict JSON first, then
// a permissive JSON5 pass (unquoted keys, trailing commas), then both again
// with single-quoted strings rewritten as double-quoted, then the full repair
// chain.
func DecodeArguments(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(trimmed), &out); err == nil {
		return out, nil
	}
	if err := json5.Unmarshal([]byte(trimmed), &out); err == nil {
		return out, nil
	}
	if norm, ok := normalizeQuotes(trimmed); ok {
		if err := json.Unmarshal([]byte(norm), &out); err == nil {
			return out, nil
		}
		if err := json5.Unmarshal([]byte(norm), &out); err == nil {
			return out, nil
		}
	}
	return CleanJSON(trimmed)
}

// normalizeQuotes rewrites single-quoted string literals as double-quoted
// ones: the delimiters become double quotes, inner double quotes get escaped,
// and \' collapses to a bare apostrophe. Content inside double-quoted strings
// passes through untouched, so apostrophes there never open a string.
func normalizeQuotes(s string) (string, bool) {
	var b strings.Builder
	inDouble := false
	inSingle := false
	escaped := false
	changed := false
	for _, r := range s {
		if escaped {
			escaped = false
			if inSingle && r == '\'' {
				b.WriteRune('\'')
				continue
			}
			b.WriteByte('\\')
			b.WriteRune(r)
			continue
		}
		if (inDouble || inSingle) && r == '\\' {
			escaped = true
			continue
		}
		switch {
		case inDouble:
			if r == '"' {
				inDouble = false
			}
			b.WriteRune(r)
		case inSingle:
			switch r {
			case '\'':
				inSingle = false
				b.WriteByte('"')
			case '"':
				b.WriteString(`\"`)
			default:
				b.WriteRune(r)
			}
		case r == '"':
			inDouble = true
			b.WriteRune(r)
		case r == '\'':
			inSingle = true
			b.WriteByte('"')
			changed = true
		default:
			b.WriteRune(r)
		}
	}
	return b.String(), changed
}

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

func stripTrailingCommas(s string) (string, bool) {
	c := trailingCommaRe.ReplaceAllString(s, "$1")
	return c, c != s
}

// escapeInnerNewlines escapes literal newlines occurring inside string
// literals, a frequent failure mode when the model writes multi-line message
// bodies without escaping.
func escapeInnerNewlines(s string) (string, bool) {
	var b strings.Builder
	inString := false
	escaped := false
	changed := false
	for _, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			case r == '\n':
				b.WriteString(`\n`)
				changed = true
				continue
			}
		} else if r == '"' {
			inString = true
		}
		b.WriteRune(r)
	}
	return b.String(), changed
}

// rebuildMessageValue recovers objects whose "message" value contains
// unescaped quotes by re-escaping everything between the value's opening
// quote and the document's closing punctuation.
func rebuildMessageValue(s string) (string, bool) {
	key := `"message":`
	i := strings.Index(s, key)
	if i < 0 {
		return "", false
	}
	rest := s[i+len(key):]
	open := strings.IndexByte(rest, '"')
	if open < 0 {
		return "", false
	}
	body := rest[open+1:]
	// Trim the document's closing punctuation off the value.
	end := len(body)
	for end > 0 {
		switch body[end-1] {
		case '}', ']', ',', ' ', '\n', '\t', '"':
			end--
			continue
		}
		break
	}
	val := body[:end]
	val = strings.ReplaceAll(val, `\`, `\\`)
	val = strings.ReplaceAll(val, `"`, `\"`)
	val = strings.ReplaceAll(val, "\n", `\n`)
	return s[:i] + key + ` "` + val + `"}`, true
}

// extractFirstObject returns the first balanced top-level object in s,
// counting depth while skipping string literals. The input gets two closing
// braces appended first so truncated documents can still balance.
func extractFirstObject(s string) (string, bool) {
	s += "}}"
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

var (
	nonASCIIRe   = regexp.MustCompile(`[^\x20-\x7E\n\t]`)
	messageValRe = regexp.MustCompile(`"message"\s*:\s*"((?:[^"\\]|\\.)*)"?`)
)

// sendMessageFallback is the last resort for replies that name a "message"
// value but are otherwise unrecoverable: strip non-ASCII noise, capture the
// value, and emit a minimal object around it.
func sendMessageFallback(s string) (string, bool) {
	if !strings.Contains(s, `"message"`) {
		return "", false
	}
	cleaned := nonASCIIRe.ReplaceAllString(s, "")
	m := messageValRe.FindStringSubmatch(cleaned)
	if m == nil {
		return "", false
	}
	b, err := json.Marshal(map[string]string{"message": m[1]})
	if err != nil {
		return "", false
	}
	return string(b), true
}
