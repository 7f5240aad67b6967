package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/lexiqai/gh-activity-agent/internal/resilience"
)

func fastRetry() *resilience.RetryConfig {
	return &resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1}
}

func TestIsRetryableModelError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&ProviderError{Provider: "groq", StatusCode: 429}, true},
		{&ProviderError{Provider: "groq", StatusCode: 503}, true},
		{&ProviderError{Provider: "groq", StatusCode: 400}, false},
		{&ProviderError{Provider: "groq", StatusCode: 401}, false},
		{resilience.ErrCircuitOpen, false},
		{context.Canceled, false},
		{errors.New("dial tcp 1.2.3.4:443: connection refused"), true},
		{errors.New("json: cannot unmarshal"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRetryableModelError(tt.err), "%v", tt.err)
	}
}

func TestResilientModel_RetriesTransientFailures(t *testing.T) {
	model := &scriptedModel{
		errs:    []error{&ProviderError{Provider: "fake", StatusCode: 503}, nil},
		replies: []*Reply{nil, {Content: "ok"}},
	}
	rm := NewResilientModel(model, resilience.NewCircuitBreaker("model-retry", 5, time.Minute), fastRetry(), zerolog.Nop())

	reply, err := rm.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply.Content)
	assert.Equal(t, 2, model.calls())
}

func TestResilientModel_DoesNotRetryBadRequest(t *testing.T) {
	model := &scriptedModel{errs: []error{&ProviderError{Provider: "fake", StatusCode: 400, Body: `{"error":{}}`}}}
	rm := NewResilientModel(model, resilience.NewCircuitBreaker("model-400", 5, time.Minute), fastRetry(), zerolog.Nop())

	_, err := rm.Complete(context.Background(), Request{})
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 400, perr.StatusCode)
	assert.Equal(t, 1, model.calls())
}

func TestResilientModel_BreakerOpens(t *testing.T) {
	failing := make([]error, 10)
	for i := range failing {
		failing[i] = &ProviderError{Provider: "fake", StatusCode: 500}
	}
	model := &scriptedModel{errs: failing}
	breaker := resilience.NewCircuitBreaker("model-open", 2, time.Minute)
	rm := NewResilientModel(model, breaker, fastRetry(), zerolog.Nop())

	_, err := rm.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, resilience.StateOpen, breaker.GetState())

	_, err = rm.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 2, model.calls())
}

func TestResilientModel_ToolUseFailedKeepsBreakerClosed(t *testing.T) {
	const maxFailures = 5
	rejections := make([]error, maxFailures+1)
	for i := range rejections {
		rejections[i] = &ProviderError{
			Provider:   "groq",
			StatusCode: 400,
			Body:       `{"error":{"code":"tool_use_failed","failed_generation":"<function=list_pull_requests>{\"author\": null}</function>"}}`,
		}
	}
	model := &scriptedModel{errs: rejections}
	breaker := resilience.NewCircuitBreaker("model-tool-use", maxFailures, time.Minute)
	rm := NewResilientModel(model, breaker, fastRetry(), zerolog.Nop())

	for i := 0; i < maxFailures+1; i++ {
		_, err := rm.Complete(context.Background(), Request{})
		var perr *ProviderError
		require.ErrorAs(t, err, &perr, "call %d", i)
		assert.Equal(t, 400, perr.StatusCode)
	}
	assert.Equal(t, resilience.StateClosed, breaker.GetState())
	assert.Equal(t, maxFailures+1, model.calls())
}

func TestIsProviderOutage(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{&ProviderError{StatusCode: 400}, false},
		{&ProviderError{StatusCode: 401}, false},
		{&ProviderError{StatusCode: 404}, false},
		{&ProviderError{StatusCode: 408}, true},
		{&ProviderError{StatusCode: 429}, true},
		{&ProviderError{StatusCode: 502}, true},
		{errors.New("dial tcp: connection refused"), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsProviderOutage(tt.err), "%v", tt.err)
	}
}

func sampleRequest() Request {
	box := &echoToolbox{}
	return Request{
		System: "be helpful",
		Messages: []Message{
			{Role: RoleUser, Content: "PRs by alice?"},
			{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_1", Name: "list_pull_requests", Arguments: json.RawMessage(`{"author":"alice"}`)}}},
			{Role: RoleTool, ToolCallID: "call_1", ToolName: "list_pull_requests", Content: `{"success":true}`},
		},
		Tools: box.Definitions(),
	}
}

func TestOpenAIModel_Complete(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer gsk_test", r.Header.Get("Authorization"))
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
		  "id": "chatcmpl-1", "object": "chat.completion", "created": 1700000000, "model": "llama3-8b-8192",
		  "choices": [{"index": 0, "finish_reason": "tool_calls", "message": {
		    "role": "assistant", "content": "",
		    "tool_calls": [{"id": "call_2", "type": "function",
		      "function": {"name": "get_pr_details", "arguments": "{\"repo\":\"frontend\",\"pr_number\":7}"}}]
		  }}]
		}`)
	}))
	defer srv.Close()

	m := NewOpenAIModel(OpenAIOptions{Provider: "groq", APIKey: "gsk_test", BaseURL: srv.URL + "/openai/v1", Model: "llama3-8b-8192"})
	reply, err := m.Complete(context.Background(), sampleRequest())
	require.NoError(t, err)

	require.Len(t, reply.ToolCalls, 1)
	assert.Equal(t, "call_2", reply.ToolCalls[0].ID)
	assert.Equal(t, "get_pr_details", reply.ToolCalls[0].Name)
	assert.JSONEq(t, `{"repo":"frontend","pr_number":7}`, string(reply.ToolCalls[0].Arguments))

	sent := gjson.ParseBytes(body)
	assert.Equal(t, "llama3-8b-8192", sent.Get("model").String())
	assert.Equal(t, "system", sent.Get("messages.0.role").String())
	assert.Equal(t, "call_1", sent.Get("messages.2.tool_calls.0.id").String())
	assert.Equal(t, "tool", sent.Get("messages.3.role").String())
	assert.Equal(t, "call_1", sent.Get("messages.3.tool_call_id").String())
	assert.Equal(t, "list_pull_requests", sent.Get("tools.0.function.name").String())
	assert.Equal(t, "author", sent.Get("tools.0.function.parameters.required.0").String())
}

func TestOpenAIModel_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"Failed to call a function.","type":"invalid_request_error","code":"tool_use_failed","failed_generation":"<function=list_pull_requests>{\"author\": null}</function>"}}`)
	}))
	defer srv.Close()

	m := NewOpenAIModel(OpenAIOptions{Provider: "groq", APIKey: "k", BaseURL: srv.URL, Model: "m"})
	_, err := m.Complete(context.Background(), sampleRequest())

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusBadRequest, perr.StatusCode)
	assert.Contains(t, err.Error(), "tool_use_failed")
	assert.Contains(t, err.Error(), "failed_generation")
}

func TestAnthropicModel_Complete(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"), r.URL.Path)
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
		  "id": "msg_1", "type": "message", "role": "assistant", "model": "claude-sonnet-4-5",
		  "content": [
		    {"type": "text", "text": "Let me look."},
		    {"type": "tool_use", "id": "toolu_1", "name": "analyze_pr_complexity", "input": {"repo": "frontend", "pr_number": 3}}
		  ],
		  "stop_reason": "tool_use", "usage": {"input_tokens": 10, "output_tokens": 5}
		}`)
	}))
	defer srv.Close()

	m := NewAnthropicModel(AnthropicOptions{APIKey: "sk-ant", BaseURL: srv.URL, Model: "claude-sonnet-4-5"})
	reply, err := m.Complete(context.Background(), sampleRequest())
	require.NoError(t, err)

	assert.Equal(t, "Let me look.", reply.Content)
	require.Len(t, reply.ToolCalls, 1)
	assert.Equal(t, "toolu_1", reply.ToolCalls[0].ID)
	assert.JSONEq(t, `{"repo":"frontend","pr_number":3}`, string(reply.ToolCalls[0].Arguments))

	sent := gjson.ParseBytes(body)
	assert.Equal(t, "be helpful", sent.Get("system.0.text").String())
	assert.Equal(t, "tool_use", sent.Get("messages.1.content.0.type").String())
	assert.Equal(t, "tool_result", sent.Get("messages.2.content.0.type").String())
	assert.Equal(t, "call_1", sent.Get("messages.2.content.0.tool_use_id").String())
	assert.Equal(t, "list_pull_requests", sent.Get("tools.0.name").String())
}

func TestAnthropicMessages_FoldsToolResults(t *testing.T) {
	msgs := anthropicMessages([]Message{
		{Role: RoleUser, Content: "q"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "a", Name: "x"}, {ID: "b", Name: "y"}}},
		{Role: RoleTool, ToolCallID: "a", Content: `{"success":true}`},
		{Role: RoleTool, ToolCallID: "b", Content: `{"error":"boom"}`},
	})

	require.Len(t, msgs, 3)
	assert.Len(t, msgs[2].Content, 2)
}
