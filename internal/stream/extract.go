package stream

import (
	"encoding/json"
	"strings"
)

// ExtractJSONObject returns the first balanced JSON object embedded in
// text. When no balanced candidate is valid JSON it tries the span from the
// first '{' to the last '}'. Text is scanned once and each candidate is
// validated at most once, so the cost stays linear in len(text).
func ExtractJSONObject(text string) (string, bool) {
	for _, c := range objectCandidates(text) {
		if candidate := text[c[0] : c[1]+1]; json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}

	first, last := strings.IndexByte(text, '{'), strings.LastIndexByte(text, '}')
	if first >= 0 && last > first {
		if candidate := text[first : last+1]; json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}
	return "", false
}

// closedPair is a matched brace pair and the open brace enclosing it when
// it closed, or -1.
type closedPair struct {
	start, end, parent int
}

// objectCandidates returns the outermost balanced {...} spans in order.
// A span nested only inside braces that never close counts as outermost.
// Quotes are tracked inside braces only, so prose around an object cannot
// open a string. Candidates never overlap.
func objectCandidates(text string) [][2]int {
	var open []int
	var pairs []closedPair
	inString, escaped := false, false

	for i := 0; i < len(text); i++ {
		c := text[i]
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
			inString = len(open) > 0
		case '{':
			open = append(open, i)
		case '}':
			if len(open) == 0 {
				continue
			}
			start := open[len(open)-1]
			open = open[:len(open)-1]
			parent := -1
			if len(open) > 0 {
				parent = open[len(open)-1]
			}
			pairs = append(pairs, closedPair{start: start, end: i, parent: parent})
		}
	}

	// open now holds the braces that never closed
	unclosed := make(map[int]bool, len(open))
	for _, o := range open {
		unclosed[o] = true
	}

	var out [][2]int
	for _, p := range pairs {
		if p.parent < 0 || unclosed[p.parent] {
			out = append(out, [2]int{p.start, p.end})
		}
	}
	return out
}

// StripPrefix removes the first matching prefix and surrounding space.
func StripPrefix(text string, prefixes []string) string {
	trimmed := strings.TrimSpace(text)
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(trimmed, p) {
			return strings.TrimSpace(trimmed[len(p):])
		}
	}
	return trimmed
}
