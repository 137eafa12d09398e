package session

import (
	"context"
	"iter"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	xerrors "based-agent/internal/errors"
	"based-agent/internal/llm"
	"based-agent/internal/observability/metrics"
	"based-agent/internal/swarm"
	"based-agent/pkg/logger"
)

// Orchestrator 是会话持有的编排客户端。
type Orchestrator interface {
	Stream(ctx context.Context, agent *swarm.Agent, messages []llm.Message, opts ...swarm.RunOption) iter.Seq2[swarm.Fragment, error]
}

// AddressResolver 返回代理钱包的默认地址。
type AddressResolver interface {
	DefaultAddress(ctx context.Context) (string, error)
}

// Session 是单个会话的状态。client 与 address 初始化后不再变化，
// messages 只允许追加或整体清空。
type Session struct {
	id      string
	client  Orchestrator
	address string

	mu       sync.Mutex
	messages []llm.Message
}

// ID 返回会话标识。
func (s *Session) ID() string { return s.id }

// Client 返回会话创建时构造的编排客户端。
func (s *Session) Client() Orchestrator { return s.client }

// AgentAddress 返回代理钱包地址。
func (s *Session) AgentAddress() string { return s.address }

// Messages 返回对话记录的副本。
func (s *Session) Messages() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Message(nil), s.messages...)
}

// Len 返回当前消息数量。
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Append 追加一条消息。
func (s *Session) Append(msg llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// Extend 按顺序追加多条消息。
func (s *Session) Extend(msgs []llm.Message) {
	if len(msgs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msgs...)
}

// Clear 清空对话记录，客户端与地址保持不变。
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}

// Store 管理进程内的所有会话。
type Store struct {
	newClient func() Orchestrator
	wallet    AddressResolver
	log       *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore 创建会话存储。newClient 在每个会话首次初始化时调用一次。
func NewStore(newClient func() Orchestrator, wallet AddressResolver) *Store {
	return &Store{
		newClient: newClient,
		wallet:    wallet,
		log:       logger.Named("session"),
		sessions:  make(map[string]*Session),
	}
}

// Open 以新的随机标识初始化一个会话。
func (s *Store) Open(ctx context.Context) (*Session, error) {
	return s.EnsureInitialized(ctx, uuid.NewString())
}

// EnsureInitialized 保证 id 对应的会话已初始化并返回它。重复调用返回同一个会话且不修改其状态。
// 钱包地址无法解析时返回 INITIALIZATION_FAILURE，且不保存会话。
func (s *Store) EnsureInitialized(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "会话标识不能为空")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}

	if s.wallet == nil || s.newClient == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "会话存储未配置钱包或编排客户端")
	}

	address, err := s.wallet.DefaultAddress(ctx)
	if err != nil {
		s.log.Error("解析代理钱包地址失败", "session", id, "error", err)
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "无法获取代理钱包地址",
			xerrors.WithMetadata("session", id))
	}

	sess := &Session{id: id, client: s.newClient(), address: address}
	s.sessions[id] = sess
	metrics.SetSessions(len(s.sessions))
	s.log.Info("会话已初始化", "session", id, "address", address)
	return sess, nil
}

// Get 返回已初始化的会话。
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Discard 结束会话并释放其状态。
func (s *Store) Discard(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return
	}
	delete(s.sessions, id)
	metrics.SetSessions(len(s.sessions))
	s.log.Info("会话已结束", "session", id)
}

// Len 返回活跃会话数。
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
