package stream

import (
	"fmt"
	"iter"

	"based-agent/internal/swarm"
)

// Block is one display region that is re-rendered in place as text grows.
type Block interface {
	Render(text string)
}

// Renderer receives display updates for one chat surface.
type Renderer interface {
	User(text string)
	NewBlock() Block
	Notice(text string)
}

// Process consumes fragments in order, rendering each assistant message into
// its own block. It returns as soon as a terminal response arrives; a
// sequence that ends without one yields (nil, nil). Errors produced by the
// sequence stop processing and are returned unchanged.
func Process(fragments iter.Seq2[swarm.Fragment, error], r Renderer) (*swarm.Response, error) {
	var (
		lastSender string
		content    string
		block      = r.NewBlock()
	)

	for fragment, err := range fragments {
		if err != nil {
			return nil, err
		}

		if fragment.Sender != "" {
			lastSender = fragment.Sender
		}

		if fragment.Content != nil {
			content += *fragment.Content
			block.Render(FormatMessage(lastSender, content))
		}

		for _, call := range fragment.ToolCalls {
			if call.Function.Name == "" {
				continue
			}
			r.Notice(FormatInvocation(lastSender, call.Function.Name))
		}

		if fragment.Delim == swarm.DelimEnd && content != "" {
			content = ""
			block = r.NewBlock()
		}

		if fragment.Response != nil {
			return fragment.Response, nil
		}
	}
	return nil, nil
}

// FormatMessage renders an assistant message with its sender prefix. An
// unknown sender renders the bare content.
func FormatMessage(sender, content string) string {
	if sender == "" {
		return content
	}
	return sender + ": " + content
}

// FormatInvocation renders the notice shown when an agent calls a tool.
func FormatInvocation(sender, tool string) string {
	if sender == "" {
		return fmt.Sprintf("invoked %s()", tool)
	}
	return fmt.Sprintf("%s invoked %s()", sender, tool)
}
