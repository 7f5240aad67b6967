package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/lexiqai/gh-activity-agent/internal/agent"
)

// MaxRequestBytes bounds a chat request body.
const MaxRequestBytes = 1 << 20

var (
	ErrEmptyBody     = errors.New("request body is empty")
	ErrEmptyMessages = errors.New("messages must contain at least one message")
	ErrBlankMessage  = errors.New("the last message has no content")
	ErrNoUserMessage = errors.New("the conversation must end with a user message")
)

// ChatMessage is a message as sent by the client. Content is either a
// string or a structured payload echoed back from an earlier stream.
type ChatMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Name       string          `json:"name,omitempty"`
}

// Text returns the content as text. Structured content is returned as
// its JSON encoding.
func (m ChatMessage) Text() string {
	raw := strings.TrimSpace(string(m.Content))
	if raw == "" || raw == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return s
	}
	return raw
}

func (m ChatMessage) structured() bool {
	raw := strings.TrimSpace(string(m.Content))
	return strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[")
}

// RunConfig carries LangGraph-style run settings some clients send.
type RunConfig struct {
	Configurable map[string]any `json:"configurable,omitempty"`
}

// ChatRequest is the body of a chat request.
type ChatRequest struct {
	Messages              []ChatMessage `json:"messages"`
	SessionID             string        `json:"session_id"`
	ShowIntermediateSteps bool          `json:"show_intermediate_steps"`
	Config                *RunConfig    `json:"config,omitempty"`
}

// DecodeChatRequest reads and validates a request body.
func DecodeChatRequest(r io.Reader) (*ChatRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxRequestBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if len(body) > MaxRequestBytes {
		return nil, fmt.Errorf("request body exceeds %d bytes", MaxRequestBytes)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, ErrEmptyBody
	}

	var req ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("malformed request body: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// Validate checks the request can start a run.
func (r *ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return ErrEmptyMessages
	}
	if strings.TrimSpace(r.Messages[len(r.Messages)-1].Text()) == "" {
		return ErrBlankMessage
	}
	for i, m := range r.Messages {
		switch m.Role {
		case "user", "assistant", "tool", "system":
		default:
			return fmt.Errorf("message %d has unsupported role %q", i, m.Role)
		}
	}

	// Validate what the agent will actually see.
	kept := r.Thread("").Messages
	if len(kept) == 0 || kept[len(kept)-1].Role != agent.RoleUser {
		return ErrNoUserMessage
	}
	return nil
}

// ResolveSessionID returns session_id, falling back to
// config.configurable.thread_id and then to a fresh id.
func (r *ChatRequest) ResolveSessionID() string {
	if id := strings.TrimSpace(r.SessionID); id != "" {
		return id
	}
	if r.Config != nil {
		if id, ok := r.Config.Configurable["thread_id"].(string); ok && strings.TrimSpace(id) != "" {
			return strings.TrimSpace(id)
		}
	}
	return uuid.NewString()
}

// Thread converts the conversation for the agent. Tool lines and
// structured assistant payloads from earlier streams are UI state and are
// dropped; so are client-supplied system messages.
func (r *ChatRequest) Thread(sessionID string) agent.Thread {
	thread := agent.Thread{ID: sessionID}
	for _, m := range r.Messages {
		text := m.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		switch m.Role {
		case "user":
			thread.Messages = append(thread.Messages, agent.Message{Role: agent.RoleUser, Content: text})
		case "assistant":
			if m.structured() {
				continue
			}
			thread.Messages = append(thread.Messages, agent.Message{Role: agent.RoleAssistant, Content: text})
		}
	}
	return thread
}
