// Package agent runs a tool-calling loop over a chat model and reports its
// progress as a stream of events.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lexiqai/gh-activity-agent/internal/tools"
)

// ErrStepLimit is returned when a run exceeds its model call budget.
var ErrStepLimit = errors.New("agent stopped: step limit reached")

// Toolbox is the catalog the agent may call into.
type Toolbox interface {
	Definitions() []tools.Definition
	Invoke(ctx context.Context, name string, args json.RawMessage) string
}

// Options tune an Agent.
type Options struct {
	MaxSteps int
	System   string // overrides the rendered system prompt
}

// Agent alternates model calls and tool executions until the model
// answers without requesting tools.
type Agent struct {
	model    ChatModel
	toolbox  Toolbox
	system   string
	maxSteps int
	logger   zerolog.Logger
}

// New creates an agent.
func New(model ChatModel, toolbox Toolbox, logger zerolog.Logger, opts Options) *Agent {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = 25
	}
	system := opts.System
	if system == "" {
		system = SystemPrompt(toolbox.Definitions())
	}
	return &Agent{
		model:    model,
		toolbox:  toolbox,
		system:   system,
		maxSteps: opts.MaxSteps,
		logger:   logger.With().Str("component", "agent").Logger(),
	}
}

// Stream is one running agent invocation.
type Stream struct {
	events chan Event
	done   chan struct{}
	err    error
}

// Events yields events in the order they happened. It is closed when the
// run ends.
func (s *Stream) Events() <-chan Event { return s.events }

// Err blocks until the run ends and reports why it failed, if it did.
func (s *Stream) Err() error {
	<-s.done
	return s.err
}

func (s *Stream) send(ctx context.Context, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Stream starts a run over thread. Cancelling ctx stops the run; no
// events are sent after that.
func (a *Agent) Stream(ctx context.Context, thread Thread) *Stream {
	s := &Stream{
		events: make(chan Event),
		done:   make(chan struct{}),
	}

	go func() {
		err := a.run(ctx, thread, s)
		s.err = err
		close(s.events)
		close(s.done)
	}()

	return s
}

func (a *Agent) run(ctx context.Context, thread Thread, s *Stream) error {
	logger := a.logger.With().Str("thread_id", thread.ID).Logger()
	history := append([]Message(nil), thread.Messages...)
	defs := a.toolbox.Definitions()

	for step := 1; step <= a.maxSteps; step++ {
		reply, err := a.model.Complete(ctx, Request{System: a.system, Messages: history, Tools: defs})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error().Err(err).Int("step", step).Msg("Model call failed")
			return fmt.Errorf("model call failed: %w", err)
		}

		turn := Message{Role: RoleAssistant, Content: reply.Content, ToolCalls: reply.ToolCalls}
		history = append(history, turn)
		if !s.send(ctx, Classify(turn)) {
			return ctx.Err()
		}
		if len(reply.ToolCalls) == 0 {
			logger.Debug().Int("step", step).Msg("Model answered")
			return nil
		}

		for _, call := range reply.ToolCalls {
			logger.Info().Str("tool", call.Name).Str("tool_call_id", call.ID).Int("step", step).Msg("Calling tool")
			output := a.toolbox.Invoke(ctx, call.Name, call.Arguments)

			result := Message{
				Role:       RoleTool,
				Content:    output,
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Metadata:   map[string]string{"tool_call_id": call.ID},
			}
			history = append(history, result)
			if !s.send(ctx, Classify(result)) {
				return ctx.Err()
			}
		}
	}

	logger.Warn().Int("max_steps", a.maxSteps).Msg("Step limit reached")
	return fmt.Errorf("%w (%d model calls)", ErrStepLimit, a.maxSteps)
}
