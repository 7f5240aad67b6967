package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tidwall/gjson"
)

// AnthropicOptions configure the Anthropic backend.
type AnthropicOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int64
}

// AnthropicModel talks to the Anthropic Messages API.
type AnthropicModel struct {
	client anthropic.Client
	opts   AnthropicOptions
}

// NewAnthropicModel creates the client. Retries are left to ResilientModel.
func NewAnthropicModel(opts AnthropicOptions) *AnthropicModel {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &AnthropicModel{
		client: anthropic.NewClient(reqOpts...),
		opts:   opts,
	}
}

func (m *AnthropicModel) Provider() string { return "anthropic" }

func (m *AnthropicModel) Complete(ctx context.Context, req Request) (*Reply, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(m.opts.Model),
		MaxTokens:   m.opts.MaxTokens,
		Messages:    anthropicMessages(req.Messages),
		Temperature: anthropic.Float(m.opts.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	for _, def := range req.Tools {
		tool := anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
			Properties: def.Properties(),
			Required:   def.Required,
		}, def.Name)
		if tool.OfTool != nil {
			tool.OfTool.Description = anthropic.String(def.Description)
		}
		params.Tools = append(params.Tools, tool)
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, &ProviderError{
				Provider:   "anthropic",
				StatusCode: apiErr.StatusCode,
				Body:       apiErr.RawJSON(),
				Err:        err,
			}
		}
		return nil, err
	}

	reply := &Reply{}
	var text []string
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text = append(text, block.Text)
		case "tool_use":
			reply.ToolCalls = append(reply.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: append(json.RawMessage(nil), block.Input...),
			})
		}
	}
	reply.Content = strings.Join(text, "\n")
	return reply, nil
}

// anthropicMessages converts the history. Consecutive tool results are
// folded into a single user turn.
func anthropicMessages(history []Message) []anthropic.MessageParam {
	var msgs []anthropic.MessageParam
	var results []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(results) > 0 {
			msgs = append(msgs, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, msg := range history {
		if msg.Role == RoleTool {
			isError := gjson.Get(msg.Content, "error").Exists()
			results = append(results, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, isError))
			continue
		}
		flush()

		switch msg.Role {
		case RoleUser, RoleSystem:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				var input any = map[string]any{}
				if len(call.Arguments) > 0 {
					input = json.RawMessage(call.Arguments)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}
			if len(blocks) > 0 {
				msgs = append(msgs, anthropic.NewAssistantMessage(blocks...))
			}
		}
	}
	flush()
	return msgs
}
