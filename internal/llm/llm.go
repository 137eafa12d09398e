package llm

import (
	"context"
	"iter"
)

// 消息角色。
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message 是对话记录中的一条消息，顺序即展示顺序。
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Sender     string     `json:"sender,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
}

// UserMessage 构造一条用户消息。
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// ToolCall 描述大模型请求的一次工具调用。
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall 包含工具名称与 JSON 编码的参数。
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolSpec 是暴露给大模型的工具声明。
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ChatRequest 描述一次流式对话补全请求。
type ChatRequest struct {
	Model             string
	Messages          []Message
	Tools             []ToolSpec
	ToolChoice        string
	ParallelToolCalls bool
}

// Delta 是流式响应中的一个增量片段。
// Content 为 nil 表示该片段不携带文本。
type Delta struct {
	Role      string          `json:"role,omitempty"`
	Content   *string         `json:"content,omitempty"`
	ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`
}

// ToolCallDelta 是工具调用的增量，同一调用通过 Index 关联。
// 名称只出现在该调用的第一个增量中，后续增量名称为空。
type ToolCallDelta struct {
	Index    int          `json:"index"`
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// StreamingClient 定义了流式调用大模型的统一接口。
type StreamingClient interface {
	StreamChat(ctx context.Context, req ChatRequest) iter.Seq2[Delta, error]
}
