package swarm

import (
	"context"
	"maps"

	"based-agent/internal/llm"
)

// Fragment delimiters.
const (
	DelimStart = "start"
	DelimEnd   = "end"
)

// ContextVariables are string values shared between tools during a run.
type ContextVariables map[string]string

func (v ContextVariables) clone() ContextVariables {
	out := make(ContextVariables, len(v))
	maps.Copy(out, v)
	return out
}

func (v ContextVariables) merge(other ContextVariables) {
	maps.Copy(v, other)
}

// Agent is a named system prompt plus the tools the model may call.
type Agent struct {
	Name         string
	Model        string
	Instructions string
	// InstructionsFunc, when set, builds the system prompt from the current
	// context variables and takes precedence over Instructions.
	InstructionsFunc  func(vars ContextVariables) string
	Functions         []Function
	ToolChoice        string
	ParallelToolCalls bool
}

func (a *Agent) instructions(vars ContextVariables) string {
	if a.InstructionsFunc != nil {
		return a.InstructionsFunc(vars)
	}
	return a.Instructions
}

func (a *Agent) function(name string) (Function, bool) {
	for _, fn := range a.Functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return Function{}, false
}

// Function is a tool the model can invoke. Args holds the decoded JSON
// arguments sent by the model.
type Function struct {
	Name        string
	Description string
	Parameters  map[string]any
	Call        func(ctx context.Context, args map[string]any, vars ContextVariables) (Result, error)
}

// Result is what a tool hands back to the loop. A non-nil Agent switches the
// active agent for the following turns.
type Result struct {
	Value            string
	Agent            *Agent
	ContextVariables ContextVariables
}

// Response is the terminal result of one run.
type Response struct {
	Messages         []llm.Message    `json:"messages"`
	Agent            *Agent           `json:"-"`
	ContextVariables ContextVariables `json:"context_variables,omitempty"`
}

// Fragment is one incremental unit of a streamed run. Every field is optional.
type Fragment struct {
	Sender    string              `json:"sender,omitempty"`
	Content   *string             `json:"content,omitempty"`
	ToolCalls []llm.ToolCallDelta `json:"tool_calls,omitempty"`
	Delim     string              `json:"delim,omitempty"`
	Response  *Response           `json:"response,omitempty"`
}
