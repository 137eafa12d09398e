package main

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "based-agent/internal/errors"
	"based-agent/internal/llm"
	"based-agent/internal/session"
	"based-agent/internal/stream"
	"based-agent/internal/swarm"
)

type nopOrchestrator struct{}

func (nopOrchestrator) Stream(context.Context, *swarm.Agent, []llm.Message, ...swarm.RunOption) iter.Seq2[swarm.Fragment, error] {
	return func(func(swarm.Fragment, error) bool) {}
}

type fixedAddress string

func (a fixedAddress) DefaultAddress(context.Context) (string, error) { return string(a), nil }

func TestREPLCommands(t *testing.T) {
	store := session.NewStore(func() session.Orchestrator { return nopOrchestrator{} }, fixedAddress("0xabc"))
	sess, err := store.Open(context.Background())
	require.NoError(t, err)

	var prompts []string
	submit := func(_ context.Context, text string, r *stream.Terminal) error {
		prompts = append(prompts, text)
		sess.Append(llm.UserMessage(text))
		if text == "fail" {
			return xerrors.Wrap(xerrors.CodeOrchestrationFailure, errors.New("boom"), "")
		}
		r.User(text)
		r.NewBlock().Render("Based Agent: ok")
		return nil
	}

	in := strings.NewReader("hello\n\n/address\nfail\n/clear\n/quit\nignored\n")
	var out bytes.Buffer
	require.NoError(t, repl(context.Background(), in, &out, sess, submit))

	assert.Equal(t, []string{"hello", "fail"}, prompts)
	assert.Empty(t, sess.Messages())

	text := out.String()
	assert.Contains(t, text, "You: hello\nBased Agent: ok\n")
	assert.Contains(t, text, "0xabc\n")
	assert.Contains(t, text, "Error: agent request failed\n")
	assert.Contains(t, text, "Chat history cleared.")
}

func TestREPLEndsAtEOF(t *testing.T) {
	store := session.NewStore(func() session.Orchestrator { return nopOrchestrator{} }, fixedAddress("0xabc"))
	sess, err := store.Open(context.Background())
	require.NoError(t, err)

	var out bytes.Buffer
	err = repl(context.Background(), strings.NewReader(""), &out, sess, func(context.Context, string, *stream.Terminal) error {
		t.Fatal("no prompt expected")
		return nil
	})
	assert.NoError(t, err)
}
