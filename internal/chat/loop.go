package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	xerrors "based-agent/internal/errors"
	"based-agent/internal/llm"
	"based-agent/internal/observability/metrics"
	"based-agent/internal/session"
	"based-agent/internal/stream"
	"based-agent/internal/swarm"
	"based-agent/pkg/logger"
)

// Loop 驱动某个代理的对话轮次。
type Loop struct {
	agent   *swarm.Agent
	runOpts []swarm.RunOption
	log     *slog.Logger
}

// Option 定义可选的 Loop 配置。
type Option func(*Loop)

// WithRunOptions 为每次编排调用附加参数。
func WithRunOptions(opts ...swarm.RunOption) Option {
	return func(l *Loop) {
		l.runOpts = append(l.runOpts, opts...)
	}
}

// NewLoop 创建对话循环。
func NewLoop(agent *swarm.Agent, opts ...Option) *Loop {
	l := &Loop{agent: agent, log: logger.Named("chat")}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Agent 返回当前代理。
func (l *Loop) Agent() *swarm.Agent { return l.agent }

// Submit 处理一次用户输入。用户消息先渲染并写入对话记录，随后以完整记录调用编排客户端；
// 若得到终止结果，其中的消息按顺序追加到记录中。没有终止结果时返回 (nil, nil)。
// 编排失败时记录保留用户消息，错误以 ORCHESTRATION_FAILURE 返回。
func (l *Loop) Submit(ctx context.Context, sess *session.Session, text string, r stream.Renderer) (*swarm.Response, error) {
	if sess == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "会话未初始化")
	}
	if strings.TrimSpace(text) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "消息内容不能为空")
	}

	started := time.Now()
	r.User(text)
	sess.Append(llm.UserMessage(text))

	resp, err := stream.Process(sess.Client().Stream(ctx, l.agent, sess.Messages(), l.runOpts...), r)
	elapsed := time.Since(started)
	if err != nil {
		metrics.ObserveChatTurn(metrics.OutcomeError, elapsed)
		opts := []xerrors.Option{xerrors.WithMetadata("session", sess.ID())}
		if errors.Is(err, context.Canceled) {
			// 连接关闭导致的取消不是故障。
			opts = append(opts, xerrors.WithSeverity(xerrors.SeverityInfo))
		}
		wrapped := xerrors.Wrap(xerrors.CodeOrchestrationFailure, err, "代理调用失败", opts...)
		l.log.Log(ctx, xerrors.LogLevel(wrapped), "对话编排失败",
			"session", sess.ID(), "duration", elapsed, "severity", wrapped.Severity(), "error", err)
		return nil, wrapped
	}

	if resp == nil {
		metrics.ObserveChatTurn(metrics.OutcomeNoResult, elapsed)
		l.log.Warn("编排未返回终止结果", "session", sess.ID(), "duration", elapsed)
		return nil, nil
	}

	sess.Extend(resp.Messages)
	metrics.ObserveChatTurn(metrics.OutcomeReply, elapsed)
	l.log.Info("对话轮次完成", "session", sess.ID(), "messages", len(resp.Messages), "duration", elapsed)
	return resp, nil
}
