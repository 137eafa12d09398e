package stream

import (
	"bytes"
	"errors"
	"iter"
	"testing"

	"based-agent/internal/llm"
	"based-agent/internal/swarm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func text(s string) *string { return &s }

func sequence(fragments ...swarm.Fragment) (iter.Seq2[swarm.Fragment, error], *int) {
	consumed := 0
	return func(yield func(swarm.Fragment, error) bool) {
		for _, f := range fragments {
			consumed++
			if !yield(f, nil) {
				return
			}
		}
	}, &consumed
}

func TestProcessRendersBlocksPerSender(t *testing.T) {
	final := &swarm.Response{Messages: []llm.Message{
		{Role: llm.RoleAssistant, Content: "Hi there", Sender: "A"},
		{Role: llm.RoleAssistant, Content: "Yo", Sender: "B"},
	}}
	seq, _ := sequence(
		swarm.Fragment{Sender: "A"},
		swarm.Fragment{Content: text("Hi")},
		swarm.Fragment{Content: text(" there")},
		swarm.Fragment{Delim: swarm.DelimEnd},
		swarm.Fragment{Sender: "B"},
		swarm.Fragment{Content: text("Yo")},
		swarm.Fragment{Response: final},
	)
	rec := NewRecorder()

	resp, err := Process(seq, rec)
	require.NoError(t, err)
	assert.Same(t, final, resp)

	renders := rec.Renders()
	require.Len(t, renders, 3)
	assert.Equal(t, Event{Kind: EventRender, Block: 1, Text: "A: Hi"}, renders[0])
	assert.Equal(t, Event{Kind: EventRender, Block: 1, Text: "A: Hi there"}, renders[1])
	assert.Equal(t, Event{Kind: EventRender, Block: 2, Text: "B: Yo"}, renders[2])
}

func TestProcessWithoutResponse(t *testing.T) {
	seq, _ := sequence(
		swarm.Fragment{Delim: swarm.DelimStart},
		swarm.Fragment{Sender: "A", Content: text("partial")},
	)
	resp, err := Process(seq, NewRecorder())
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestProcessToolCallNotices(t *testing.T) {
	seq, _ := sequence(
		swarm.Fragment{Sender: "Based Agent", ToolCalls: []llm.ToolCallDelta{
			{Index: 0, Function: llm.FunctionCall{Name: "transfer_eth"}},
		}},
		swarm.Fragment{ToolCalls: []llm.ToolCallDelta{
			{Index: 0, Function: llm.FunctionCall{Arguments: `{"amount":1}`}},
		}},
	)
	rec := NewRecorder()
	_, err := Process(seq, rec)
	require.NoError(t, err)

	notices := rec.Notices()
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0], "transfer_eth()")
	assert.Equal(t, "Based Agent invoked transfer_eth()", notices[0])
}

func TestProcessStopsAtResponse(t *testing.T) {
	first := &swarm.Response{}
	seq, consumed := sequence(
		swarm.Fragment{Sender: "A", Content: text("no end delimiter")},
		swarm.Fragment{Response: first},
		swarm.Fragment{Content: text("ignored")},
		swarm.Fragment{Response: &swarm.Response{}},
	)
	rec := NewRecorder()

	resp, err := Process(seq, rec)
	require.NoError(t, err)
	assert.Same(t, first, resp)
	assert.Equal(t, 2, *consumed)
	assert.Len(t, rec.Renders(), 1)
}

func TestProcessEndWithoutContentKeepsBlock(t *testing.T) {
	seq, _ := sequence(
		swarm.Fragment{Delim: swarm.DelimStart},
		swarm.Fragment{Delim: swarm.DelimEnd},
		swarm.Fragment{Sender: "A", Content: text("ok")},
	)
	rec := NewRecorder()
	_, err := Process(seq, rec)
	require.NoError(t, err)

	renders := rec.Renders()
	require.Len(t, renders, 1)
	assert.Equal(t, 1, renders[0].Block)
}

func TestProcessEmptySender(t *testing.T) {
	seq, _ := sequence(swarm.Fragment{Content: text("anonymous")})
	rec := NewRecorder()
	_, err := Process(seq, rec)
	require.NoError(t, err)
	assert.Equal(t, "anonymous", rec.Renders()[0].Text)
}

func TestProcessReturnsSequenceError(t *testing.T) {
	boom := errors.New("boom")
	seq := func(yield func(swarm.Fragment, error) bool) {
		if !yield(swarm.Fragment{Sender: "A", Content: text("x")}, nil) {
			return
		}
		yield(swarm.Fragment{}, boom)
	}
	resp, err := Process(seq, NewRecorder())
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, resp)
}

func TestTerminalRenderer(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf)

	term.User("hello")
	block := term.NewBlock()
	block.Render("A: Hi")
	block.Render("A: Hi there")
	term.Notice("A invoked get_balance()")
	next := term.NewBlock()
	next.Render("B: Yo")
	next.Render("B: Yes")
	term.Finish()

	assert.Equal(t, "You: hello\nA: Hi there\n  > A invoked get_balance()\nB: Yo\nB: Yes\n", buf.String())
}
