package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/gh-activity-agent/internal/agent"
)

// replay is an EventSource over a fixed slice of events.
type replay struct {
	ch  chan agent.Event
	err error
}

func newReplay(err error, events ...agent.Event) *replay {
	ch := make(chan agent.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return &replay{ch: ch, err: err}
}

func (r *replay) Events() <-chan agent.Event { return r.ch }
func (r *replay) Err() error                 { return r.err }

// recorder is a Sink keeping decoded lines.
type recorder struct {
	lines []Line
	raw   []map[string]any
	fail  error
}

func (r *recorder) Emit(l Line) error {
	if r.fail != nil {
		return r.fail
	}
	b, err := json.Marshal(l)
	if err != nil {
		return &EncodeError{Err: err}
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	r.lines = append(r.lines, l)
	r.raw = append(r.raw, m["messages"].([]any)[0].(map[string]any))
	return nil
}

func (r *recorder) kinds() []Kind {
	out := make([]Kind, 0, len(r.lines))
	for _, l := range r.lines {
		out = append(out, l.Kind)
	}
	return out
}

func required(tool string) []string {
	if tool == "list_pull_requests" {
		return []string{"author"}
	}
	return nil
}

func newTranslator(steps bool) *Translator {
	return New(zerolog.Nop(), Options{ShowIntermediateSteps: steps, RequiredParams: required})
}

func toolTurn() []agent.Event {
	return []agent.Event{
		agent.ToolCallRaw{Calls: []agent.ToolCall{{ID: "call_1", Name: "list_pull_requests", Arguments: json.RawMessage(`{"author":"alice"}`)}}},
		agent.ToolResultRaw{ToolName: "list_pull_requests", ToolCallID: "call_1", Content: `{"success":true,"count":1}`},
	}
}

func TestRun_FullConversation(t *testing.T) {
	events := append(toolTurn(), agent.FinalRaw{Content: "alice opened 1 PR"})
	sink := &recorder{}

	sum, err := newTranslator(true).Run(context.Background(), newReplay(nil, events...), sink)
	require.NoError(t, err)

	assert.Equal(t, []Kind{KindToolCall, KindToolResult, KindFinal}, sink.kinds())
	assert.Equal(t, Summary{ToolCalls: 1, ToolResults: 1, Answered: true}, sum)

	call := sink.raw[0]
	assert.Equal(t, "assistant", call["role"])
	assert.Equal(t, "call_1", call["tool_call_id"])
	assert.Equal(t, "list_pull_requests", call["name"])
	content := call["content"].(map[string]any)
	assert.Equal(t, DefaultThought, content["thought"])
	assert.Equal(t, map[string]any{"author": "alice"}, content["tool_input"])

	result := sink.raw[1]
	assert.Equal(t, "tool", result["role"])
	assert.Equal(t, "call_1", result["tool_call_id"])
	assert.Equal(t, map[string]any{"success": true, "count": float64(1)}, result["content"].(map[string]any)["tool_output"])

	assert.Equal(t, map[string]any{"role": "assistant", "content": "alice opened 1 PR"}, sink.raw[2])
}

func TestRun_AtMostOneFinalAnswer(t *testing.T) {
	src := newReplay(nil,
		agent.FinalRaw{Content: "first"},
		agent.FinalRaw{Content: "second"},
		agent.ToolCallRaw{Calls: []agent.ToolCall{{ID: "late", Name: "x"}}},
	)
	sink := &recorder{}

	_, err := newTranslator(true).Run(context.Background(), src, sink)
	require.NoError(t, err)

	require.Len(t, sink.lines, 1)
	assert.Equal(t, "first", sink.raw[0]["content"])
	assert.Len(t, src.ch, 2, "events after the final answer stay unconsumed")
}

func TestRun_HiddenSteps(t *testing.T) {
	events := append(toolTurn(), toolTurn()...)
	events = append(events, agent.FinalRaw{Content: "done"})
	sink := &recorder{}

	sum, err := newTranslator(false).Run(context.Background(), newReplay(nil, events...), sink)
	require.NoError(t, err)

	assert.Equal(t, []Kind{KindFinal}, sink.kinds())
	assert.Equal(t, 4, sum.Skipped)
}

func TestRun_NeverFabricatesToolCallIDs(t *testing.T) {
	src := newReplay(nil,
		agent.ToolCallRaw{Calls: []agent.ToolCall{{Name: "list_pull_requests"}, {ID: "call_2", Name: "get_pr_details"}}},
		agent.ToolResultRaw{ToolName: "list_pull_requests", Content: `{}`},
		agent.ToolResultRaw{ToolName: "get_pr_details", Content: `{}`, Metadata: map[string]string{"tool_call_id": "call_2"}},
		agent.FinalRaw{Content: "ok"},
	)
	sink := &recorder{}

	sum, err := newTranslator(true).Run(context.Background(), src, sink)
	require.NoError(t, err)

	assert.Equal(t, []Kind{KindToolCall, KindToolResult, KindFinal}, sink.kinds())
	assert.Equal(t, "call_2", sink.raw[0]["tool_call_id"])
	assert.Equal(t, "call_2", sink.raw[1]["tool_call_id"])
	assert.Equal(t, 2, sum.Skipped)
}

func TestRun_RecoversOutputEmbeddedInProse(t *testing.T) {
	src := newReplay(nil,
		agent.ToolResultRaw{ToolName: "x", ToolCallID: "c1", Content: `I called the tool {"tool_name":"x","tool_output":{"a":1}}`},
	)
	sink := &recorder{}

	_, err := newTranslator(true).Run(context.Background(), src, sink)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(sink.raw), 1)
	content := sink.raw[0]["content"].(map[string]any)
	assert.Equal(t, map[string]any{"a": float64(1)}, content["tool_output"])
}

func TestRun_UpstreamToolUseFailed(t *testing.T) {
	upstream := errors.New(`model call failed: groq API error (status 400): {"error":{"message":"Failed to call a function. Please adjust your prompt.","type":"invalid_request_error","code":"tool_use_failed","failed_generation":"<function=list_pull_requests>{\"author\": null, \"repo\": \"frontend\"}</function>"}}`)
	sink := &recorder{}

	sum, err := newTranslator(true).Run(context.Background(), newReplay(upstream), sink)
	require.NoError(t, err)

	require.Equal(t, []Kind{KindError}, sink.kinds())
	assert.True(t, sum.Failed)
	msg := sink.raw[0]["content"].(string)
	assert.True(t, strings.HasPrefix(msg, ErrorPrefix))
	assert.Contains(t, msg, "list_pull_requests")
	assert.Contains(t, msg, "`author`")
	assert.NotContains(t, msg, "failed_generation")
}

func TestRun_UpstreamUnknownErrorForwarded(t *testing.T) {
	sink := &recorder{}
	_, err := newTranslator(true).Run(context.Background(), newReplay(errors.New("connection reset by peer"), toolTurn()...), sink)
	require.NoError(t, err)

	assert.Equal(t, []Kind{KindToolCall, KindToolResult, KindError}, sink.kinds())
	assert.Equal(t, ErrorPrefix+"connection reset by peer", sink.raw[2]["content"])
}

func TestRun_FallbackAnswer(t *testing.T) {
	sink := &recorder{}
	sum, err := newTranslator(true).Run(context.Background(), newReplay(nil, agent.Unknown{Reason: "empty"}), sink)
	require.NoError(t, err)

	assert.Equal(t, []Kind{KindFinal}, sink.kinds())
	assert.Equal(t, DefaultFallbackAnswer, sink.raw[0]["content"])
	assert.Equal(t, 1, sum.Skipped)
}

func TestRun_SinkFailureStops(t *testing.T) {
	src := newReplay(nil, append(toolTurn(), agent.FinalRaw{Content: "x"})...)
	sink := &recorder{fail: errors.New("broken pipe")}

	_, err := newTranslator(true).Run(context.Background(), src, sink)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
	assert.Len(t, src.ch, 2)
}

func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &replay{ch: make(chan agent.Event)}

	_, err := newTranslator(true).Run(ctx, src, &recorder{})
	assert.ErrorIs(t, err, context.Canceled)
}

// panicSink panics on the first line and records the rest.
type panicSink struct {
	recorder
	panicked bool
}

func (p *panicSink) Emit(l Line) error {
	if !p.panicked {
		p.panicked = true
		panic("boom")
	}
	return p.recorder.Emit(l)
}

func TestRun_PanicSkipsOneEvent(t *testing.T) {
	sink := &panicSink{}
	sum, err := newTranslator(true).Run(context.Background(), newReplay(nil, append(toolTurn(), agent.FinalRaw{Content: "ok"})...), sink)
	require.NoError(t, err)

	assert.Equal(t, []Kind{KindToolResult, KindFinal}, sink.kinds())
	assert.Equal(t, 1, sum.Skipped)
}

func TestNDJSONSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewNDJSONSink(&buf)

	require.NoError(t, sink.Emit(FinalLine("hello")))
	require.NoError(t, sink.Emit(ErrorLine("boom")))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"messages":[{"role":"assistant","content":"hello"}]}`, lines[0])
	assert.JSONEq(t, `{"messages":[{"role":"assistant","content":"An error occurred: boom"}]}`, lines[1])
}
