package stream

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/lexiqai/gh-activity-agent/internal/agent"
)

// DefaultThought is used when the model gave no reasoning for a call.
const DefaultThought = "Deciding to use a tool."

// envelopeKeys are the members of a tool result envelope around the real
// output.
var envelopeKeys = map[string]bool{"tool_name": true, "tool_output": true, "tool_call_id": true}

// RecoverToolCall builds the client payload of one tool call. Some models
// write a {"thought", "tool_name", "tool_input"} document into their text;
// when it matches the call it supplies the thought and missing pieces.
// Prose without such a document becomes the thought.
func RecoverToolCall(content string, call agent.ToolCall) ToolCallContent {
	out := ToolCallContent{
		Thought:   DefaultThought,
		ToolName:  call.Name,
		ToolInput: decodeInput(call.Arguments),
	}

	text := strings.TrimSpace(content)
	if text == "" {
		return out
	}

	obj, ok := ExtractJSONObject(text)
	if !ok {
		out.Thought = text
		return out
	}

	payload := gjson.Parse(obj)
	name := payload.Get("tool_name").String()
	if name != "" && call.Name != "" && name != call.Name {
		return out
	}
	if thought := strings.TrimSpace(payload.Get("thought").String()); thought != "" {
		out.Thought = thought
	}
	if out.ToolName == "" {
		out.ToolName = name
	}
	if len(out.ToolInput) == 0 {
		if input, ok := payload.Get("tool_input").Value().(map[string]any); ok {
			out.ToolInput = input
		}
	}
	return out
}

func decodeInput(raw json.RawMessage) map[string]any {
	input := map[string]any{}
	if trimmed := strings.TrimSpace(string(raw)); trimmed == "" || trimmed == "null" {
		return input
	}
	if err := json.Unmarshal(raw, &input); err != nil || input == nil {
		// Arguments that are not an object are passed through as text.
		return map[string]any{"input": string(raw)}
	}
	return input
}

// RecoverToolOutput decodes a tool result best effort. The content may be
// plain JSON, JSON behind a provider prefix, or JSON embedded in prose.
// A {tool_name, tool_output} envelope is unwrapped. Anything that does not
// decode is returned as the original text.
func RecoverToolOutput(content string, prefixes []string) any {
	text := StripPrefix(content, prefixes)

	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		obj, ok := ExtractJSONObject(text)
		if !ok {
			return content
		}
		if err := json.Unmarshal([]byte(obj), &v); err != nil {
			return content
		}
	}
	return unwrapEnvelope(v)
}

func unwrapEnvelope(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	inner, ok := m["tool_output"]
	if !ok {
		return v
	}
	for k := range m {
		if !envelopeKeys[k] {
			return v
		}
	}
	if s, ok := inner.(string); ok && strings.HasPrefix(strings.TrimSpace(s), "{") {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			return decoded
		}
	}
	return inner
}
