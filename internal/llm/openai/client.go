package openai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"based-agent/internal/llm"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	defaultModelName = "gpt-4o-mini"
	defaultTimeout   = 120 * time.Second
)

// Config 描述了调用 OpenAI Chat Completions API 所需的信息。
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client 通过 openai-go 调用兼容 OpenAI 协议的大模型。
type Client struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// NewClient 根据配置创建 OpenAI 客户端。
func NewClient(cfg Config, opts ...option.RequestOption) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供 OpenAI API Key")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	requestOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	requestOpts = append(requestOpts, opts...)

	return &Client{
		client:  openai.NewClient(requestOpts...),
		model:   model,
		timeout: timeout,
	}, nil
}

// StreamChat 以流式方式请求对话补全，并把每个 chunk 转换为 llm.Delta。
func (c *Client) StreamChat(ctx context.Context, req llm.ChatRequest) iter.Seq2[llm.Delta, error] {
	return func(yield func(llm.Delta, error) bool) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		stream := c.client.Chat.Completions.NewStreaming(ctx, c.buildParams(req))
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta, ok := convertDelta(chunk.Choices[0].Delta)
			if !ok {
				continue
			}
			if !yield(delta, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield(llm.Delta{}, fmt.Errorf("请求 OpenAI 失败: %w", err))
		}
	}
}

func (c *Client) buildParams(req llm.ChatRequest) openai.ChatCompletionNewParams {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: convertMessages(req.Messages),
	}

	if tools := convertTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
		params.ParallelToolCalls = openai.Bool(req.ParallelToolCalls)
		if choice := strings.TrimSpace(req.ToolChoice); choice != "" {
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
				OfAuto: openai.String(choice),
			}
		}
	}
	return params
}

func convertMessages(messages []llm.Message) []openai.ChatCompletionMessageParamUnion {
	converted := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			converted = append(converted, openai.SystemMessage(msg.Content))
		case llm.RoleUser:
			converted = append(converted, openai.UserMessage(msg.Content))
		case llm.RoleTool:
			converted = append(converted, openai.ToolMessage(msg.Content, msg.ToolCallID))
		case llm.RoleAssistant:
			converted = append(converted, convertAssistant(msg))
		}
	}
	return converted
}

func convertAssistant(msg llm.Message) openai.ChatCompletionMessageParamUnion {
	if len(msg.ToolCalls) == 0 {
		return openai.AssistantMessage(msg.Content)
	}

	calls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(msg.ToolCalls))
	for _, call := range msg.ToolCalls {
		calls = append(calls, openai.ChatCompletionMessageToolCallParam{
			ID: call.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			},
		})
	}

	assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
	if msg.Content != "" {
		assistant.Content.OfString = openai.String(msg.Content)
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

func convertTools(specs []llm.ToolSpec) []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, 0, len(specs))
	for _, spec := range specs {
		if spec.Name == "" {
			continue
		}
		parameters := openai.FunctionParameters{"type": "object", "properties": map[string]any{}}
		for k, v := range spec.Parameters {
			parameters[k] = v
		}
		tools = append(tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        spec.Name,
				Description: openai.String(spec.Description),
				Parameters:  parameters,
			},
		})
	}
	return tools
}

func convertDelta(d openai.ChatCompletionChunkChoiceDelta) (llm.Delta, bool) {
	delta := llm.Delta{Role: string(d.Role)}
	if d.Content != "" {
		content := d.Content
		delta.Content = &content
	}
	for _, call := range d.ToolCalls {
		delta.ToolCalls = append(delta.ToolCalls, llm.ToolCallDelta{
			Index: int(call.Index),
			ID:    call.ID,
			Type:  string(call.Type),
			Function: llm.FunctionCall{
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			},
		})
	}
	if delta.Role == "" && delta.Content == nil && len(delta.ToolCalls) == 0 {
		return delta, false
	}
	return delta, true
}
