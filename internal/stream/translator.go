// Package stream translates agent events into the line-delimited JSON
// protocol consumed by chat clients.
package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lexiqai/gh-activity-agent/internal/agent"
	"github.com/lexiqai/gh-activity-agent/internal/observability"
)

// DefaultResultPrefixes are stripped from tool results before decoding.
// Some Groq-hosted models prepend this phrase to tool output.
var DefaultResultPrefixes = []string{"I called the tool"}

// DefaultFallbackAnswer is sent when a run ends cleanly without an answer.
const DefaultFallbackAnswer = "I was unable to process your request properly."

// EventSource is a running agent invocation.
type EventSource interface {
	Events() <-chan agent.Event
	Err() error
}

// Options control what a Translator emits.
type Options struct {
	ShowIntermediateSteps bool
	ResultPrefixes        []string
	RequiredParams        func(tool string) []string
	FallbackAnswer        string
}

// Summary reports what a run emitted.
type Summary struct {
	ToolCalls   int
	ToolResults int
	Answered    bool
	Failed      bool
	Skipped     int
}

// Outcome is a short label for metrics.
func (s Summary) Outcome() string {
	switch {
	case s.Failed:
		return "upstream_error"
	case s.Answered:
		return "answered"
	default:
		return "no_answer"
	}
}

// Translator converts one agent run into client lines. It holds no state
// between runs and may be shared.
type Translator struct {
	logger zerolog.Logger
	opts   Options
}

// New creates a Translator.
func New(logger zerolog.Logger, opts Options) *Translator {
	if opts.ResultPrefixes == nil {
		opts.ResultPrefixes = DefaultResultPrefixes
	}
	if opts.FallbackAnswer == "" {
		opts.FallbackAnswer = DefaultFallbackAnswer
	}
	return &Translator{
		logger: logger.With().Str("component", "stream").Logger(),
		opts:   opts,
	}
}

// WithSteps returns a copy with intermediate step visibility set.
func (t *Translator) WithSteps(show bool) *Translator {
	c := *t
	c.opts.ShowIntermediateSteps = show
	return &c
}

// sinkError marks a failure of the sink rather than of one event.
type sinkError struct{ err error }

func (e *sinkError) Error() string { return "sink: " + e.err.Error() }
func (e *sinkError) Unwrap() error { return e.err }

// Run consumes src in arrival order and writes lines to sink. It returns
// after the final answer, when src ends, when the sink fails, or when ctx
// is done. The returned error is non-nil only for sink failures and
// cancellation.
func (t *Translator) Run(ctx context.Context, src EventSource, sink Sink) (Summary, error) {
	var sum Summary
	events := src.Events()

	for {
		select {
		case <-ctx.Done():
			return sum, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return t.finish(ctx, src, sink, sum)
			}
			final, err := t.handle(ev, sink, &sum)
			if err != nil {
				t.logger.Warn().Err(err).Msg("Client stream closed")
				return sum, err
			}
			if final {
				return sum, nil
			}
		}
	}
}

// finish reports an upstream failure once, or sends the fallback answer
// when the run produced nothing to show.
func (t *Translator) finish(ctx context.Context, src EventSource, sink Sink, sum Summary) (Summary, error) {
	upstreamErr := src.Err()
	if ctx.Err() != nil {
		return sum, ctx.Err()
	}

	if upstreamErr != nil {
		sum.Failed = true
		text, recognized := Humanize(upstreamErr, t.opts.RequiredParams)
		observability.RecordUpstreamFailure(recognized)
		t.logger.Error().Err(upstreamErr).Bool("recognized", recognized).Msg("Agent run failed")
		if err := t.emit(sink, ErrorLine(text)); err != nil {
			return sum, err
		}
		return sum, nil
	}

	t.logger.Warn().Msg("Agent finished without a final answer")
	if err := t.emit(sink, FinalLine(t.opts.FallbackAnswer)); err != nil {
		return sum, err
	}
	sum.Answered = true
	return sum, nil
}

// handle processes one event. A panic or encoding problem skips the event;
// only sink failures are returned.
func (t *Translator) handle(ev agent.Event, sink Sink, sum *Summary) (final bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			sum.Skipped++
			observability.RecordStreamSkipped("panic")
			t.logger.Error().Interface("panic", p).Str("event", fmt.Sprintf("%T", ev)).Msg("Failed to translate event")
			final, err = false, nil
		}
	}()

	switch e := ev.(type) {
	case agent.ToolCallRaw:
		return false, t.toolCalls(e, sink, sum)
	case agent.ToolResultRaw:
		return false, t.toolResult(e, sink, sum)
	case agent.FinalRaw:
		if err := t.emit(sink, FinalLine(e.Content)); err != nil {
			return false, err
		}
		sum.Answered = true
		return true, nil
	case agent.Unknown:
		t.skip(sum, "unknown", e.Reason)
	default:
		t.skip(sum, "unknown", fmt.Sprintf("%T", ev))
	}
	return false, nil
}

func (t *Translator) toolCalls(e agent.ToolCallRaw, sink Sink, sum *Summary) error {
	if !t.opts.ShowIntermediateSteps {
		t.skip(sum, "hidden", "tool_call")
		return nil
	}
	for _, call := range e.Calls {
		if call.ID == "" {
			t.skip(sum, "missing_id", call.Name)
			continue
		}
		if err := t.emit(sink, ToolCallLine(call.ID, RecoverToolCall(e.Content, call))); err != nil {
			return err
		}
		sum.ToolCalls++
	}
	return nil
}

func (t *Translator) toolResult(e agent.ToolResultRaw, sink Sink, sum *Summary) error {
	if !t.opts.ShowIntermediateSteps {
		t.skip(sum, "hidden", "tool_result")
		return nil
	}
	id := e.ToolCallID
	if id == "" {
		id = e.Metadata["tool_call_id"]
	}
	if id == "" {
		t.skip(sum, "missing_id", e.ToolName)
		return nil
	}

	line := ToolResultLine(id, ToolResultContent{
		ToolName:   e.ToolName,
		ToolOutput: RecoverToolOutput(e.Content, t.opts.ResultPrefixes),
	})
	if err := t.emit(sink, line); err != nil {
		return err
	}
	sum.ToolResults++
	return nil
}

func (t *Translator) emit(sink Sink, l Line) error {
	if err := sink.Emit(l); err != nil {
		var encErr *EncodeError
		if errors.As(err, &encErr) {
			t.logger.Warn().Err(err).Str("kind", string(l.Kind)).Msg("Dropped line that could not be encoded")
			observability.RecordStreamSkipped("encode")
			return nil
		}
		return &sinkError{err: err}
	}
	observability.RecordStreamEvent(string(l.Kind))
	return nil
}

func (t *Translator) skip(sum *Summary, reason, detail string) {
	sum.Skipped++
	observability.RecordStreamSkipped(reason)
	t.logger.Debug().Str("reason", reason).Str("detail", detail).Msg("Skipped event")
}
