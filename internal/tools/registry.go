// Package tools implements the GitHub CLI tools offered to the chat model
// and the catalog that describes and dispatches them.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/lexiqai/gh-activity-agent/internal/ghcli"
	"github.com/lexiqai/gh-activity-agent/internal/observability"
)

// Tool names as seen by the model.
const (
	ToolListPullRequests     = "list_pull_requests"
	ToolGetPRDetails         = "get_pr_details"
	ToolGetUserContributions = "get_user_contributions"
	ToolAnalyzePRComplexity  = "analyze_pr_complexity"
)

// Definition describes one tool to a chat model.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"input_schema"`
	Required    []string        `json:"required,omitempty"`
}

// Properties returns the schema's properties object.
func (d Definition) Properties() map[string]any {
	props, _ := gjson.GetBytes(d.Schema, "properties").Value().(map[string]any)
	if props == nil {
		props = map[string]any{}
	}
	return props
}

// Parameters returns the full schema as a generic map.
func (d Definition) Parameters() map[string]any {
	params, _ := gjson.ParseBytes(d.Schema).Value().(map[string]any)
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return params
}

type registration struct {
	def    Definition
	invoke func(context.Context, json.RawMessage) Result
}

// Registry holds the tool catalog.
type Registry struct {
	tools  map[string]*registration
	order  []string
	logger zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]*registration),
		logger: logger,
	}
}

// Register adds a typed tool. The JSON Schema of T is generated from its
// json and jsonschema struct tags. Registering a name twice replaces the
// earlier tool.
func Register[T any](r *Registry, name, description string, handler func(context.Context, T) Result) *Registry {
	schema := generateSchema[T]()

	invoke := func(ctx context.Context, raw json.RawMessage) Result {
		var args T
		if err := json.Unmarshal(raw, &args); err != nil {
			return Failure("Invalid arguments for "+name, map[string]any{"details": err.Error()})
		}
		return handler(ctx, args)
	}

	var required []string
	for _, v := range gjson.GetBytes(schema, "required").Array() {
		required = append(required, v.String())
	}

	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = &registration{
		def: Definition{
			Name:        name,
			Description: description,
			Schema:      schema,
			Required:    required,
		},
		invoke: invoke,
	}
	return r
}

func generateSchema[T any]() json.RawMessage {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}

	var zero T
	schema := reflector.Reflect(zero)
	schema.Version = ""

	b, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("failed to generate schema for type %T: %v", zero, err))
	}
	return json.RawMessage(b)
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Definitions returns the catalog in registration order.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].def)
	}
	return defs
}

// Required returns the required parameters of a tool, sorted.
func (r *Registry) Required(name string) []string {
	reg, ok := r.tools[name]
	if !ok {
		return nil
	}
	req := append([]string(nil), reg.def.Required...)
	sort.Strings(req)
	return req
}

// Invoke runs a tool and returns its result as JSON text. Failures of any
// kind are returned as error-tagged results.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) string {
	start := time.Now()
	result := r.invoke(ctx, name, args)
	elapsed := time.Since(start)

	observability.RecordToolInvocation(name, result.OK(), elapsed)
	var event *zerolog.Event
	if result.OK() {
		event = r.logger.Info()
	} else {
		event = r.logger.Warn().Str("error", result.Message())
	}
	event.Str("tool", name).Dur("elapsed", elapsed).Msg("Tool invoked")

	return result.String()
}

func (r *Registry) invoke(ctx context.Context, name string, args json.RawMessage) (result Result) {
	reg, ok := r.tools[name]
	if !ok {
		return Failure("Unknown tool: "+name, map[string]any{"available_tools": r.Names()})
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Interface("panic", p).Str("tool", name).Msg("Tool panicked")
			result = Failuref("Error running %s: %v", name, p)
		}
	}()

	if trimmed := bytes.TrimSpace(args); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		args = json.RawMessage("{}")
	}
	return reg.invoke(ctx, args)
}

// NewGitHubRegistry returns the catalog of the four GitHub tools.
func NewGitHubRegistry(runner ghcli.Runner, settings Settings, logger zerolog.Logger) *Registry {
	gh := NewGitHub(runner, settings, logger)
	r := NewRegistry(logger.With().Str("component", "tools").Logger())

	org := settings.Org
	Register(r, ToolListPullRequests,
		fmt.Sprintf("Lists pull requests from a specific author in a %s repository. Use this when asked to show PRs by a specific user.", org),
		gh.ListPullRequests)
	Register(r, ToolGetPRDetails,
		fmt.Sprintf("Gets detailed information about a specific PR in a %s repository", org),
		gh.GetPRDetails)
	Register(r, ToolGetUserContributions,
		fmt.Sprintf("Gets contribution statistics (commits and pull requests) for a user in a %s repository for a specific time period", org),
		gh.GetUserContributions)
	Register(r, ToolAnalyzePRComplexity,
		fmt.Sprintf("Analyzes PR complexity in a %s repository based on number of files, lines changed, and file types", org),
		gh.AnalyzePRComplexity)

	return r
}
