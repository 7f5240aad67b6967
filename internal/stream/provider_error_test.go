package stream

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requiredByTool(tool string) []string {
	switch tool {
	case "list_pull_requests":
		return []string{"author"}
	case "get_user_contributions":
		return []string{"author", "repo", "since", "until"}
	}
	return nil
}

func TestParseToolUseFailed(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		tool      string
		missing   []string
		malformed bool
	}{
		{
			name:    "groq error envelope",
			text:    `groq API error (status 400): {"error":{"message":"Failed to call a function.","type":"invalid_request_error","code":"tool_use_failed","failed_generation":"<function=list_pull_requests>{\"author\": null}</function>"}}`,
			tool:    "list_pull_requests",
			missing: []string{"author"},
		},
		{
			name:    "bare error object without closing bracket on tag",
			text:    `POST "https://api.groq.com/openai/v1/chat/completions": 400 Bad Request {"message":"Failed","code":"tool_use_failed","failed_generation":"<function=get_user_contributions{\"author\": \"alice\", \"repo\": \"\", \"since\": \"2024-01-01\"}</function>"}`,
			tool:    "get_user_contributions",
			missing: []string{"repo", "until"},
		},
		{
			name: "json tool call generation",
			text: `{"error":{"code":"tool_use_failed","failed_generation":"[{\"name\": \"list_pull_requests\", \"parameters\": {\"author\": \"bob\"}}]"}}`,
			tool: "list_pull_requests",
		},
		{
			name:      "malformed arguments",
			text:      `{"error":{"code":"tool_use_failed","failed_generation":"<function=list_pull_requests>{author: bob</function>"}}`,
			tool:      "list_pull_requests",
			malformed: true,
		},
		{
			name:    "truncated error text",
			text:    `400 tool_use_failed "failed_generation":"<function=list_pull_requests>{\"author\": \"\"}</function>"`,
			tool:    "list_pull_requests",
			missing: []string{"author"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tf, ok := ParseToolUseFailed(tt.text, requiredByTool)
			require.True(t, ok)
			assert.Equal(t, tt.tool, tf.Tool)
			assert.Equal(t, tt.missing, tf.Missing)
			assert.Equal(t, tt.malformed, tf.Malformed)
		})
	}
}

func TestParseToolUseFailed_Unrecognized(t *testing.T) {
	for _, text := range []string{
		`groq API error (status 429): {"error":{"message":"Rate limit reached","code":"rate_limit_exceeded"}}`,
		`dial tcp: connection refused`,
		``,
	} {
		_, ok := ParseToolUseFailed(text, requiredByTool)
		assert.False(t, ok, text)
	}
}

func TestToolUseFailedError_Message(t *testing.T) {
	assert.Equal(t,
		"The assistant could not call the tool `list_pull_requests`: the required parameter `author` was missing or empty. Please rephrase your request and include the missing details.",
		(&ToolUseFailedError{Tool: "list_pull_requests", Missing: []string{"author"}}).Error())

	assert.Contains(t,
		(&ToolUseFailedError{Tool: "x", Missing: []string{"repo", "until"}}).Error(),
		"required parameters `repo`, `until` were missing")

	assert.Contains(t, (&ToolUseFailedError{Tool: "x", Malformed: true}).Error(), "arguments were malformed")
	assert.Contains(t, (&ToolUseFailedError{}).Error(), "generated an invalid call")
}

func TestHumanize(t *testing.T) {
	text, ok := Humanize(errors.New("plain failure"), requiredByTool)
	assert.False(t, ok)
	assert.Equal(t, "plain failure", text)

	text, ok = Humanize(nil, requiredByTool)
	assert.False(t, ok)
	assert.Empty(t, text)
}
