package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, s *Stream) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("stream did not finish")
		}
	}
}

func userThread(text string) Thread {
	return Thread{ID: "t1", Messages: []Message{{Role: RoleUser, Content: text}}}
}

func TestAgent_ToolThenAnswer(t *testing.T) {
	model := &scriptedModel{replies: []*Reply{
		{ToolCalls: []ToolCall{{ID: "call_1", Name: "list_pull_requests", Arguments: json.RawMessage(`{"author":"alice"}`)}}},
		{Content: "alice has no PRs"},
	}}
	box := &echoToolbox{}
	a := New(model, box, zerolog.Nop(), Options{MaxSteps: 5})

	s := a.Stream(context.Background(), userThread("PRs by alice?"))
	events := collect(t, s)
	require.NoError(t, s.Err())

	require.Len(t, events, 3)
	call := events[0].(ToolCallRaw)
	assert.Equal(t, "call_1", call.Calls[0].ID)

	result := events[1].(ToolResultRaw)
	assert.Equal(t, "list_pull_requests", result.ToolName)
	assert.Equal(t, "call_1", result.ToolCallID)
	assert.Equal(t, "call_1", result.Metadata["tool_call_id"])
	assert.JSONEq(t, `{"success":true,"count":0,"data":[]}`, result.Content)

	assert.Equal(t, FinalRaw{Content: "alice has no PRs"}, events[2])
	assert.Equal(t, []string{`list_pull_requests {"author":"alice"}`}, box.invoked)

	// The second request carries the tool turn and its result.
	require.Equal(t, 2, model.calls())
	second := model.requests[1]
	require.Len(t, second.Messages, 3)
	assert.Equal(t, RoleTool, second.Messages[2].Role)
	assert.Equal(t, "call_1", second.Messages[2].ToolCallID)
	assert.Contains(t, second.System, "- list_pull_requests: Lists pull requests")
	assert.Len(t, second.Tools, 1)
}

func TestAgent_StepLimit(t *testing.T) {
	loop := &Reply{ToolCalls: []ToolCall{{ID: "c", Name: "list_pull_requests"}}}
	model := &scriptedModel{replies: []*Reply{loop, loop, loop}}
	a := New(model, &echoToolbox{}, zerolog.Nop(), Options{MaxSteps: 2})

	s := a.Stream(context.Background(), userThread("loop"))
	events := collect(t, s)

	assert.ErrorIs(t, s.Err(), ErrStepLimit)
	assert.Len(t, events, 4)
	assert.Equal(t, 2, model.calls())
}

func TestAgent_ModelFailure(t *testing.T) {
	model := &scriptedModel{errs: []error{errors.New("groq API error (status 400): bad")}}
	a := New(model, &echoToolbox{}, zerolog.Nop(), Options{})

	s := a.Stream(context.Background(), userThread("hi"))
	events := collect(t, s)

	assert.Empty(t, events)
	require.Error(t, s.Err())
	assert.Contains(t, s.Err().Error(), "status 400")
}

func TestAgent_CancelStopsRun(t *testing.T) {
	model := &scriptedModel{replies: []*Reply{
		{ToolCalls: []ToolCall{{ID: "c1", Name: "list_pull_requests"}}},
	}}
	a := New(model, &echoToolbox{}, zerolog.Nop(), Options{})
	ctx, cancel := context.WithCancel(context.Background())

	s := a.Stream(ctx, userThread("hi"))
	first := <-s.Events()
	_, isCall := first.(ToolCallRaw)
	require.True(t, isCall)
	cancel()

	for range s.Events() {
	}
	assert.ErrorIs(t, s.Err(), context.Canceled)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want any
	}{
		{
			name: "tool calls win over content and tool name",
			msg:  Message{Content: "thinking", ToolName: "x", ToolCalls: []ToolCall{{ID: "1", Name: "x"}}},
			want: ToolCallRaw{},
		},
		{
			name: "tool name field",
			msg:  Message{Role: RoleTool, Content: "{}", ToolName: "x", ToolCallID: "1"},
			want: ToolResultRaw{},
		},
		{
			name: "tool name in metadata",
			msg:  Message{Content: "{}", Metadata: map[string]string{"tool_name": "x"}},
			want: ToolResultRaw{},
		},
		{
			name: "content only",
			msg:  Message{Content: "answer"},
			want: FinalRaw{},
		},
		{
			name: "whitespace only",
			msg:  Message{Content: "  \n"},
			want: Unknown{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.IsType(t, tt.want, Classify(tt.msg))
		})
	}
}

func TestSystemPrompt(t *testing.T) {
	prompt := SystemPrompt((&echoToolbox{}).Definitions())

	assert.Contains(t, prompt, "You are a GitHub CLI assistant")
	assert.Contains(t, prompt, "- list_pull_requests: Lists pull requests\n")
	assert.Contains(t, prompt, "4. If a tool returns an error, explain it to the user")
}
