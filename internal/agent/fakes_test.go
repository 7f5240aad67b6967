package agent

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/lexiqai/gh-activity-agent/internal/tools"
)

// scriptedModel replays canned replies and records every request.
type scriptedModel struct {
	mu       sync.Mutex
	replies  []*Reply
	errs     []error
	requests []Request
}

func (m *scriptedModel) Provider() string { return "fake" }

func (m *scriptedModel) Complete(ctx context.Context, req Request) (*Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := len(m.requests)
	m.requests = append(m.requests, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i < len(m.replies) {
		return m.replies[i], nil
	}
	return &Reply{Content: "done"}, nil
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// echoToolbox returns a fixed JSON document per tool.
type echoToolbox struct {
	invoked []string
}

func (e *echoToolbox) Definitions() []tools.Definition {
	return []tools.Definition{{
		Name:        "list_pull_requests",
		Description: "Lists pull requests",
		Schema:      json.RawMessage(`{"type":"object","properties":{"author":{"type":"string"}},"required":["author"]}`),
		Required:    []string{"author"},
	}}
}

func (e *echoToolbox) Invoke(ctx context.Context, name string, args json.RawMessage) string {
	e.invoked = append(e.invoked, name+" "+string(args))
	return `{"success":true,"count":0,"data":[]}`
}
