package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// Kind names the four line types a client can receive.
type Kind string

const (
	KindToolCall   Kind = "tool_call"
	KindToolResult Kind = "tool_result"
	KindFinal      Kind = "final"
	KindError      Kind = "error"
)

// ErrorPrefix starts the content of every error line.
const ErrorPrefix = "An error occurred: "

// WireMessage is the chat-shaped message carried by a line.
type WireMessage struct {
	Role       string `json:"role"`
	Content    any    `json:"content"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`
}

// Line is one JSON object of the client stream.
type Line struct {
	Kind     Kind          `json:"-"`
	Messages []WireMessage `json:"messages"`
}

// ToolCallContent is the content of a tool call line.
type ToolCallContent struct {
	Thought   string         `json:"thought"`
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input"`
}

// ToolResultContent is the content of a tool result line.
type ToolResultContent struct {
	ToolName   string `json:"tool_name"`
	ToolOutput any    `json:"tool_output"`
}

// ToolCallLine builds a tool call line.
func ToolCallLine(id string, c ToolCallContent) Line {
	return Line{Kind: KindToolCall, Messages: []WireMessage{{
		Role: "assistant", Content: c, ToolCallID: id, Name: c.ToolName,
	}}}
}

// ToolResultLine builds a tool result line.
func ToolResultLine(id string, c ToolResultContent) Line {
	return Line{Kind: KindToolResult, Messages: []WireMessage{{
		Role: "tool", Content: c, ToolCallID: id, Name: c.ToolName,
	}}}
}

// FinalLine builds the final answer line.
func FinalLine(text string) Line {
	return Line{Kind: KindFinal, Messages: []WireMessage{{Role: "assistant", Content: text}}}
}

// ErrorLine builds the error line.
func ErrorLine(text string) Line {
	return Line{Kind: KindError, Messages: []WireMessage{{Role: "assistant", Content: ErrorPrefix + text}}}
}

// Sink receives translated lines.
type Sink interface {
	Emit(Line) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Line) error

func (f SinkFunc) Emit(l Line) error { return f(l) }

// EncodeError is returned by sinks for a line that cannot be serialized.
// The stream stays usable.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string { return fmt.Sprintf("encode line: %v", e.Err) }
func (e *EncodeError) Unwrap() error { return e.Err }

// NDJSONSink writes one JSON document per line and flushes after each
// one when the writer supports it.
type NDJSONSink struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
}

// NewNDJSONSink wraps w.
func NewNDJSONSink(w io.Writer) *NDJSONSink {
	s := &NDJSONSink{w: w}
	if f, ok := w.(http.Flusher); ok {
		s.flusher = f
	}
	return s
}

func (s *NDJSONSink) Emit(l Line) error {
	b, err := json.Marshal(l)
	if err != nil {
		return &EncodeError{Err: err}
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}
