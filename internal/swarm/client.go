package swarm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"time"

	xerrors "based-agent/internal/errors"
	"based-agent/internal/llm"
	"based-agent/internal/observability/metrics"
	"based-agent/pkg/logger"

	jsoniter "github.com/json-iterator/go"
)

var (
	json = jsoniter.ConfigCompatibleWithStandardLibrary
	// argsJSON 保留数字原文，金额等参数不经过 float64。
	argsJSON = jsoniter.Config{
		EscapeHTML:             true,
		SortMapKeys:            true,
		ValidateJsonRawMessage: true,
		UseNumber:              true,
	}.Froze()
)

// ErrStreamConsumed is yielded when a fragment sequence is iterated twice.
var ErrStreamConsumed = errors.New("swarm: fragment stream already consumed")

// Client drives agents against a streaming model.
type Client struct {
	model llm.StreamingClient
	log   *slog.Logger
}

// NewClient creates an orchestration client over the given model client.
func NewClient(model llm.StreamingClient) *Client {
	return &Client{model: model, log: logger.Named("swarm")}
}

type runConfig struct {
	vars          ContextVariables
	modelOverride string
	maxTurns      int
	executeTools  bool
}

// RunOption customises a single run.
type RunOption func(*runConfig)

// WithContextVariables seeds the variables visible to tools.
func WithContextVariables(vars ContextVariables) RunOption {
	return func(c *runConfig) { c.vars = vars.clone() }
}

// WithModelOverride replaces the agent's model for this run.
func WithModelOverride(model string) RunOption {
	return func(c *runConfig) { c.modelOverride = model }
}

// WithMaxTurns bounds how many assistant messages one run may produce.
// Values <= 0 mean no limit.
func WithMaxTurns(n int) RunOption {
	return func(c *runConfig) {
		if n <= 0 {
			n = math.MaxInt
		}
		c.maxTurns = n
	}
}

// WithExecuteTools controls whether requested tool calls are executed. When
// disabled the run ends after the first assistant message.
func WithExecuteTools(enabled bool) RunOption {
	return func(c *runConfig) { c.executeTools = enabled }
}

// Stream runs agent over messages and returns the fragments lazily. The
// sequence may be ranged over once; the last fragment carries the Response.
// Model errors are yielded and end the sequence.
func (c *Client) Stream(ctx context.Context, agent *Agent, messages []llm.Message, opts ...RunOption) iter.Seq2[Fragment, error] {
	cfg := runConfig{vars: ContextVariables{}, maxTurns: math.MaxInt, executeTools: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	history := append([]llm.Message(nil), messages...)

	var used atomic.Bool
	return func(yield func(Fragment, error) bool) {
		if used.Swap(true) {
			yield(Fragment{}, ErrStreamConsumed)
			return
		}
		if agent == nil {
			yield(Fragment{}, errors.New("swarm: agent is nil"))
			return
		}

		active := agent
		vars := cfg.vars.clone()
		initLen := len(history)

		for len(history)-initLen < cfg.maxTurns {
			message, ok := c.streamTurn(ctx, active, history, vars, cfg, yield)
			if !ok {
				return
			}
			history = append(history, message)

			if len(message.ToolCalls) == 0 || !cfg.executeTools {
				break
			}

			partial := c.handleToolCalls(ctx, active, message.ToolCalls, vars)
			history = append(history, partial.Messages...)
			vars.merge(partial.ContextVariables)
			if partial.Agent != nil {
				c.log.Info("agent hand-off", "from", active.Name, "to", partial.Agent.Name)
				active = partial.Agent
			}
		}

		yield(Fragment{Response: &Response{
			Messages:         history[initLen:],
			Agent:            active,
			ContextVariables: vars,
		}}, nil)
	}
}

// Run executes agent without streaming and returns the terminal response.
func (c *Client) Run(ctx context.Context, agent *Agent, messages []llm.Message, opts ...RunOption) (*Response, error) {
	for fragment, err := range c.Stream(ctx, agent, messages, opts...) {
		if err != nil {
			return nil, err
		}
		if fragment.Response != nil {
			return fragment.Response, nil
		}
	}
	return nil, errors.New("swarm: run ended without a response")
}

// streamTurn streams one completion, forwarding each delta as a fragment, and
// returns the merged assistant message. ok is false when the caller stopped
// iterating or the model failed.
func (c *Client) streamTurn(ctx context.Context, agent *Agent, history []llm.Message, vars ContextVariables, cfg runConfig, yield func(Fragment, error) bool) (llm.Message, bool) {
	if !yield(Fragment{Delim: DelimStart}, nil) {
		return llm.Message{}, false
	}

	acc := accumulator{sender: agent.Name}
	for delta, err := range c.model.StreamChat(ctx, c.buildRequest(agent, history, vars, cfg)) {
		if err != nil {
			yield(Fragment{}, fmt.Errorf("swarm: agent %q: %w", agent.Name, err))
			return llm.Message{}, false
		}
		fragment := Fragment{Content: delta.Content, ToolCalls: delta.ToolCalls}
		if delta.Role == llm.RoleAssistant {
			fragment.Sender = agent.Name
		}
		if !yield(fragment, nil) {
			return llm.Message{}, false
		}
		acc.add(delta)
	}

	if !yield(Fragment{Delim: DelimEnd}, nil) {
		return llm.Message{}, false
	}
	return acc.message(), true
}

func (c *Client) buildRequest(agent *Agent, history []llm.Message, vars ContextVariables, cfg runConfig) llm.ChatRequest {
	messages := make([]llm.Message, 0, len(history)+1)
	if instructions := agent.instructions(vars); instructions != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: instructions})
	}
	messages = append(messages, history...)

	tools := make([]llm.ToolSpec, 0, len(agent.Functions))
	for _, fn := range agent.Functions {
		tools = append(tools, llm.ToolSpec{Name: fn.Name, Description: fn.Description, Parameters: fn.Parameters})
	}

	model := agent.Model
	if cfg.modelOverride != "" {
		model = cfg.modelOverride
	}

	return llm.ChatRequest{
		Model:             model,
		Messages:          messages,
		Tools:             tools,
		ToolChoice:        agent.ToolChoice,
		ParallelToolCalls: agent.ParallelToolCalls,
	}
}

// handleToolCalls executes calls in order. Tool failures become tool
// messages so the model can react to them; they never abort the run.
func (c *Client) handleToolCalls(ctx context.Context, agent *Agent, calls []llm.ToolCall, vars ContextVariables) Response {
	partial := Response{ContextVariables: ContextVariables{}}

	for _, call := range calls {
		name := call.Function.Name
		fn, ok := agent.function(name)
		if !ok {
			c.log.Warn("tool not found", "agent", agent.Name, "tool", name)
			partial.Messages = append(partial.Messages, toolMessage(call, fmt.Sprintf("Error: Tool %s not found.", name)))
			continue
		}

		args, err := DecodeArguments(call.Function.Arguments)
		if err != nil {
			c.log.Warn("invalid tool arguments", "tool", name, "error", err)
			partial.Messages = append(partial.Messages, toolMessage(call, fmt.Sprintf("Error: invalid arguments for %s: %v", name, err)))
			continue
		}

		started := time.Now()
		result, err := fn.Call(ctx, args, vars.clone())
		metrics.ObserveToolCall(name, err, time.Since(started))
		if err != nil {
			c.log.Log(ctx, xerrors.LogLevel(err), "tool failed", "tool", name, "code", xerrors.CodeOf(err), "error", err)
			partial.Messages = append(partial.Messages, toolMessage(call, "Error: "+err.Error()))
			continue
		}
		c.log.Debug("tool finished", "tool", name, "duration", time.Since(started))

		value := result.Value
		if result.Agent != nil {
			partial.Agent = result.Agent
			if value == "" {
				encoded, _ := json.Marshal(map[string]string{"assistant": result.Agent.Name})
				value = string(encoded)
			}
		}
		partial.Messages = append(partial.Messages, toolMessage(call, value))
		partial.ContextVariables.merge(result.ContextVariables)
	}
	return partial
}

// DecodeArguments parses the JSON arguments of a tool call. Numbers are kept
// as json.Number so their exact text reaches the tool.
func DecodeArguments(raw string) (map[string]any, error) {
	args := map[string]any{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return args, nil
	}
	if err := argsJSON.UnmarshalFromString(raw, &args); err != nil {
		return nil, err
	}
	return args, nil
}

func toolMessage(call llm.ToolCall, content string) llm.Message {
	return llm.Message{
		Role:       llm.RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		ToolName:   call.Function.Name,
	}
}

// accumulator merges streamed deltas into one assistant message.
type accumulator struct {
	sender  string
	content strings.Builder
	calls   []llm.ToolCall
}

func (a *accumulator) add(delta llm.Delta) {
	if delta.Content != nil {
		a.content.WriteString(*delta.Content)
	}
	for _, d := range delta.ToolCalls {
		if d.Index < 0 {
			continue
		}
		for len(a.calls) <= d.Index {
			a.calls = append(a.calls, llm.ToolCall{Type: "function"})
		}
		call := &a.calls[d.Index]
		if d.ID != "" {
			call.ID = d.ID
		}
		if d.Type != "" {
			call.Type = d.Type
		}
		call.Function.Name += d.Function.Name
		call.Function.Arguments += d.Function.Arguments
	}
}

func (a *accumulator) message() llm.Message {
	msg := llm.Message{
		Role:    llm.RoleAssistant,
		Content: a.content.String(),
		Sender:  a.sender,
	}
	for _, call := range a.calls {
		if call.Function.Name == "" {
			continue
		}
		msg.ToolCalls = append(msg.ToolCalls, call)
	}
	return msg
}
