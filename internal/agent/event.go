package agent

import (
	"encoding/json"
	"strings"
)

// Role of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Message is one entry of a conversation.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	ToolName   string
	Metadata   map[string]string
}

// Thread is the conversation an agent run works on.
type Thread struct {
	ID       string
	Messages []Message
}

// Event is the closed set of things an agent run emits.
type Event interface {
	event()
}

// ToolCallRaw is a model turn that requested tools. Content is whatever
// text the model produced alongside the calls.
type ToolCallRaw struct {
	Content string
	Calls   []ToolCall
}

// ToolResultRaw is the output of one executed tool.
type ToolResultRaw struct {
	ToolName   string
	ToolCallID string
	Content    string
	Metadata   map[string]string
}

// FinalRaw is a model turn without tool calls.
type FinalRaw struct {
	Content string
}

// Unknown is a message that matched no other shape.
type Unknown struct {
	Reason string
}

func (ToolCallRaw) event()   {}
func (ToolResultRaw) event() {}
func (FinalRaw) event()      {}
func (Unknown) event()       {}

// Classify maps a message onto an Event. Structured tool calls win over
// a tool name, which wins over plain content.
func Classify(m Message) Event {
	toolName := m.ToolName
	if toolName == "" {
		toolName = m.Metadata["tool_name"]
	}

	switch {
	case len(m.ToolCalls) > 0:
		return ToolCallRaw{Content: m.Content, Calls: m.ToolCalls}
	case toolName != "":
		return ToolResultRaw{
			ToolName:   toolName,
			ToolCallID: m.ToolCallID,
			Content:    m.Content,
			Metadata:   m.Metadata,
		}
	case strings.TrimSpace(m.Content) != "":
		return FinalRaw{Content: m.Content}
	default:
		return Unknown{Reason: "message carries neither tool data nor content"}
	}
}
