package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIOptions configure an OpenAI-compatible chat backend.
type OpenAIOptions struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int64
}

// OpenAIModel talks to any OpenAI-compatible chat completions API,
// Groq included.
type OpenAIModel struct {
	client openai.Client
	opts   OpenAIOptions
}

// NewOpenAIModel creates the client. Retries are left to ResilientModel.
func NewOpenAIModel(opts OpenAIOptions) *OpenAIModel {
	if opts.Provider == "" {
		opts.Provider = "openai"
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &OpenAIModel{
		client: openai.NewClient(reqOpts...),
		opts:   opts,
	}
}

func (m *OpenAIModel) Provider() string { return m.opts.Provider }

func (m *OpenAIModel) Complete(ctx context.Context, req Request) (*Reply, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(m.opts.Model),
		Messages:    openAIMessages(req),
		Temperature: openai.Float(m.opts.Temperature),
	}
	if m.opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(m.opts.MaxTokens)
	}
	for _, def := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        def.Name,
			Description: openai.String(def.Description),
			Parameters:  openai.FunctionParameters(def.Parameters()),
		}))
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &ProviderError{
				Provider:   m.opts.Provider,
				StatusCode: apiErr.StatusCode,
				Body:       apiErr.RawJSON(),
				Err:        err,
			}
		}
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", m.opts.Provider)
	}

	msg := resp.Choices[0].Message
	reply := &Reply{Content: msg.Content}
	for _, call := range msg.ToolCalls {
		reply.ToolCalls = append(reply.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: []byte(call.Function.Arguments),
		})
	}
	return reply, nil
}

func openAIMessages(req Request) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(msg.Content))
		case RoleUser:
			msgs = append(msgs, openai.UserMessage(msg.Content))
		case RoleTool:
			msgs = append(msgs, openai.ToolMessage(msg.Content, msg.ToolCallID))
		case RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				msgs = append(msgs, openai.AssistantMessage(msg.Content))
				continue
			}
			asst := openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				asst.Content.OfString = openai.String(msg.Content)
			}
			for _, call := range msg.ToolCalls {
				args := string(call.Arguments)
				if args == "" {
					args = "{}"
				}
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: call.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      call.Name,
							Arguments: args,
						},
					},
				})
			}
			msgs = append(msgs, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		}
	}
	return msgs
}
