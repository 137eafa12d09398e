package session

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "based-agent/internal/errors"
	"based-agent/internal/llm"
	"based-agent/internal/swarm"
)

type stubWallet struct {
	address string
	err     error
	calls   int
}

func (w *stubWallet) DefaultAddress(context.Context) (string, error) {
	w.calls++
	return w.address, w.err
}

type nopOrchestrator struct{}

func (nopOrchestrator) Stream(context.Context, *swarm.Agent, []llm.Message, ...swarm.RunOption) iter.Seq2[swarm.Fragment, error] {
	return func(func(swarm.Fragment, error) bool) {}
}

func countingFactory(n *int) func() Orchestrator {
	return func() Orchestrator {
		*n++
		return nopOrchestrator{}
	}
}

func TestEnsureInitializedIsIdempotent(t *testing.T) {
	wallet := &stubWallet{address: "0xabc"}
	var built int
	store := NewStore(countingFactory(&built), wallet)

	first, err := store.EnsureInitialized(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, first.Messages())
	assert.Equal(t, "0xabc", first.AgentAddress())
	assert.NotNil(t, first.Client())

	first.Append(llm.UserMessage("hello"))

	second, err := store.EnsureInitialized(context.Background(), "s1")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Len(t, second.Messages(), 1)
	assert.Equal(t, 1, built)
	assert.Equal(t, 1, wallet.calls)
	assert.Equal(t, 1, store.Len())
}

func TestEnsureInitializedAddressFailure(t *testing.T) {
	store := NewStore(func() Orchestrator { return nopOrchestrator{} }, &stubWallet{err: errors.New("no key")})

	sess, err := store.EnsureInitialized(context.Background(), "s1")
	require.Error(t, err)
	assert.Nil(t, sess)
	assert.Equal(t, xerrors.CodeInitializationFailure, xerrors.CodeOf(err))
	assert.Equal(t, 0, store.Len())

	_, ok := store.Get("s1")
	assert.False(t, ok)
}

func TestEnsureInitializedRejectsEmptyID(t *testing.T) {
	store := NewStore(func() Orchestrator { return nopOrchestrator{} }, &stubWallet{address: "0x1"})
	_, err := store.EnsureInitialized(context.Background(), "")
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
}

func TestSessionsAreIndependent(t *testing.T) {
	var built int
	store := NewStore(countingFactory(&built), &stubWallet{address: "0x1"})

	a, err := store.Open(context.Background())
	require.NoError(t, err)
	b, err := store.Open(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())

	a.Append(llm.UserMessage("only in a"))
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 2, built)

	store.Discard(a.ID())
	store.Discard("unknown")
	assert.Equal(t, 1, store.Len())
}

func TestSessionMutations(t *testing.T) {
	sess := &Session{id: "s"}
	sess.Append(llm.UserMessage("one"))
	sess.Extend([]llm.Message{
		{Role: llm.RoleAssistant, Content: "two"},
		{Role: llm.RoleAssistant, Content: "three"},
	})
	sess.Extend(nil)

	msgs := sess.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"one", "two", "three"}, []string{msgs[0].Content, msgs[1].Content, msgs[2].Content})

	msgs[0].Content = "mutated"
	assert.Equal(t, "one", sess.Messages()[0].Content)

	sess.Clear()
	assert.Empty(t, sess.Messages())
}

func TestStoreConcurrentInitialization(t *testing.T) {
	var (
		mu    sync.Mutex
		built int
	)
	store := NewStore(func() Orchestrator {
		mu.Lock()
		built++
		mu.Unlock()
		return nopOrchestrator{}
	}, &stubWallet{address: "0x1"})

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.EnsureInitialized(context.Background(), "shared")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, built)
}
