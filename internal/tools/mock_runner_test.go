package tools

import (
	"context"
	"errors"
	"strings"

	"github.com/lexiqai/gh-activity-agent/internal/ghcli"
)

// mockRunner answers gh invocations by their joined argv. A prefix match
// is used when no exact key exists so tests need not spell out every flag.
type mockRunner struct {
	Results map[string]*ghcli.Result
	Errors  map[string]error
	Calls   [][]string
}

func newMockRunner() *mockRunner {
	return &mockRunner{
		Results: make(map[string]*ghcli.Result),
		Errors:  make(map[string]error),
	}
}

func (m *mockRunner) Run(ctx context.Context, args []string) (*ghcli.Result, error) {
	m.Calls = append(m.Calls, args)
	key := strings.Join(args, " ")

	if err, ok := m.Errors[key]; ok {
		return &ghcli.Result{ExitCode: -1}, err
	}
	if res, ok := m.Results[key]; ok {
		return res, nil
	}
	for prefix, err := range m.Errors {
		if strings.HasPrefix(key, prefix) {
			return &ghcli.Result{ExitCode: -1}, err
		}
	}
	for prefix, res := range m.Results {
		if strings.HasPrefix(key, prefix) {
			return res, nil
		}
	}
	return nil, errors.New("unexpected gh call: " + key)
}

func ok(stdout string) *ghcli.Result {
	return &ghcli.Result{Stdout: stdout}
}

func exit(code int, stderr string) *ghcli.Result {
	return &ghcli.Result{ExitCode: code, Stderr: stderr}
}
