package stream

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// CodeToolUseFailed is the error code OpenAI-compatible providers (Groq in
// particular) return when the model produced an unusable tool call.
const CodeToolUseFailed = "tool_use_failed"

var (
	functionTag    = regexp.MustCompile(`(?s)<function=([A-Za-z0-9_\-]+)>?\s*(.*?)\s*</function>`)
	failedGenField = regexp.MustCompile(`"failed_generation"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// ToolUseFailedError describes a provider rejection of a generated tool
// call.
type ToolUseFailedError struct {
	Tool      string
	Arguments string
	Missing   []string
	Malformed bool
	Message   string
}

func (e *ToolUseFailedError) Error() string {
	var b strings.Builder
	if e.Tool == "" {
		b.WriteString("The assistant tried to call a tool but generated an invalid call")
	} else {
		fmt.Fprintf(&b, "The assistant could not call the tool `%s`", e.Tool)
	}

	switch {
	case len(e.Missing) == 1:
		fmt.Fprintf(&b, ": the required parameter `%s` was missing or empty", e.Missing[0])
	case len(e.Missing) > 1:
		fmt.Fprintf(&b, ": the required parameters `%s` were missing or empty", strings.Join(e.Missing, "`, `"))
	case e.Malformed:
		b.WriteString(": its arguments were malformed")
	}
	b.WriteString(". Please rephrase your request and include the missing details.")
	return b.String()
}

// ParseToolUseFailed recognizes a tool_use_failed payload anywhere in text.
// required, when set, lists the required parameters of a tool and is used
// to work out which ones the model left out.
func ParseToolUseFailed(text string, required func(tool string) []string) (*ToolUseFailedError, bool) {
	generation, message, ok := findFailedGeneration(text)
	if !ok {
		return nil, false
	}

	tf := &ToolUseFailedError{Message: message}
	tf.Tool, tf.Arguments = parseGeneration(generation)

	args := strings.TrimSpace(tf.Arguments)
	if tf.Tool != "" && args == "" {
		args = "{}"
	}
	if args != "" && !gjson.Valid(args) {
		tf.Malformed = true
		return tf, true
	}
	if tf.Tool != "" && required != nil {
		parsed := gjson.Parse(args)
		for _, param := range required(tf.Tool) {
			v := parsed.Get(gjson.Escape(param))
			if !v.Exists() || v.Type == gjson.Null || (v.Type == gjson.String && strings.TrimSpace(v.Str) == "") {
				tf.Missing = append(tf.Missing, param)
			}
		}
	}
	return tf, true
}

// findFailedGeneration locates the provider error object and returns its
// failed_generation text.
func findFailedGeneration(text string) (generation, message string, ok bool) {
	if obj, found := ExtractJSONObject(text); found {
		root := gjson.Parse(obj)
		node := root.Get("error")
		if !node.IsObject() {
			node = root
		}
		if node.Get("code").String() == CodeToolUseFailed {
			return node.Get("failed_generation").String(), node.Get("message").String(), true
		}
	}

	if !strings.Contains(text, CodeToolUseFailed) {
		return "", "", false
	}
	// The error object is missing or truncated. Recover what we can.
	if m := failedGenField.FindStringSubmatch(text); m != nil {
		var unquoted string
		if err := json.Unmarshal([]byte(`"`+m[1]+`"`), &unquoted); err == nil {
			return unquoted, "", true
		}
		return m[1], "", true
	}
	if m := functionTag.FindString(text); m != "" {
		return strings.ReplaceAll(m, `\"`, `"`), "", true
	}
	return "", "", true
}

// parseGeneration splits a failed generation into tool name and argument
// JSON. Both the <function=NAME>{...}</function> form and JSON tool-call
// forms are understood.
func parseGeneration(gen string) (tool, args string) {
	if m := functionTag.FindStringSubmatch(gen); m != nil {
		tool = m[1]
		if obj, ok := ExtractJSONObject(m[2]); ok {
			return tool, obj
		}
		return tool, m[2]
	}

	trimmed := strings.TrimSpace(gen)
	if trimmed == "" {
		return "", ""
	}
	doc := gjson.Parse(trimmed)
	if doc.IsArray() {
		doc = doc.Get("0")
	}
	if doc.IsObject() {
		for _, path := range []string{"name", "function.name", "tool_name"} {
			if name := doc.Get(path).String(); name != "" {
				tool = name
				break
			}
		}
		for _, path := range []string{"arguments", "parameters", "function.arguments", "tool_input"} {
			if a := doc.Get(path); a.Exists() {
				if a.Type == gjson.String {
					return tool, a.Str
				}
				return tool, a.Raw
			}
		}
		if tool != "" {
			return tool, "{}"
		}
	}

	// Free text, e.g. `list_pull_requests{"author": null}`.
	if i := strings.IndexByte(trimmed, '{'); i > 0 {
		name := strings.Trim(strings.TrimSpace(trimmed[:i]), "<>=")
		if obj, ok := ExtractJSONObject(trimmed[i:]); ok {
			return name, obj
		}
	}
	return "", trimmed
}

// Humanize turns an upstream failure into the text shown to the user and
// reports whether a provider error shape was recognized.
func Humanize(err error, required func(tool string) []string) (string, bool) {
	if err == nil {
		return "", false
	}
	if tf, ok := ParseToolUseFailed(err.Error(), required); ok {
		return tf.Error(), true
	}
	return err.Error(), false
}
