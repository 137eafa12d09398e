// Package app 根据配置组装运行时依赖：日志、链客户端、代理钱包、工具集、编排客户端、
// 会话存储与对话循环，供服务端与命令行入口共用。
package app

import (
	"context"
	"fmt"

	"based-agent/internal/agent"
	"based-agent/internal/chat"
	"based-agent/internal/config"
	xerrors "based-agent/internal/errors"
	"based-agent/internal/llm"
	"based-agent/internal/llm/openai"
	"based-agent/internal/session"
	"based-agent/internal/swarm"
	"based-agent/internal/wallet"
	"based-agent/internal/web3/provider"
	"based-agent/pkg/logger"
)

// App 持有一次进程生命周期内的全部组件。
type App struct {
	Config   *config.Config
	Registry *provider.Registry
	Wallet   *wallet.Wallet
	Agent    *swarm.Agent
	Store    *session.Store
	Loop     *chat.Loop
}

// InitLogging 按配置初始化全局日志。
func InitLogging(cfg *config.Config) error {
	return logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	})
}

// Build 校验配置并组装组件。返回错误时已创建的资源均已释放。
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "配置校验失败")
	}

	model, err := newModelClient(cfg)
	if err != nil {
		return nil, err
	}

	registry, err := provider.NewRegistry(ctx, cfg.Web3)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "初始化链客户端失败")
	}

	app, err := assemble(cfg, registry, model)
	if err != nil {
		registry.Close()
		return nil, err
	}
	return app, nil
}

func assemble(cfg *config.Config, registry *provider.Registry, model llm.StreamingClient) (*App, error) {
	chain, err := registry.DefaultClient()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "获取默认链失败")
	}

	w, err := wallet.New(cfg.Web3.ResolvePrivateKey(), chain)
	if err != nil {
		return nil, err
	}

	opts := []agent.Option{
		agent.WithFaucet(cfg.Web3.FaucetURL, nil),
		agent.WithReceiptTimeout(cfg.Web3.ReceiptTimeout()),
		agent.WithChainDefinition(registry.DefaultDefinition()),
	}
	if path := cfg.Web3.Artifacts.ERC20; path != "" {
		artifact, err := agent.LoadArtifact(path)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, fmt.Sprintf("加载 ERC-20 合约产物 %s 失败", path))
		}
		opts = append(opts, agent.WithERC20Artifact(artifact))
	}
	if path := cfg.Web3.Artifacts.ERC721; path != "" {
		artifact, err := agent.LoadArtifact(path)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, fmt.Sprintf("加载 ERC-721 合约产物 %s 失败", path))
		}
		opts = append(opts, agent.WithERC721Artifact(artifact))
	}

	based := agent.New(agent.Config{
		Name:         cfg.Agent.Name,
		Model:        cfg.Agent.Model,
		Instructions: cfg.Agent.Instructions,
	}, agent.NewToolkit(w, opts...))

	store := session.NewStore(func() session.Orchestrator { return swarm.NewClient(model) }, w)
	loop := chat.NewLoop(based, chat.WithRunOptions(swarm.WithMaxTurns(cfg.Agent.MaxTurns)))

	logger.Named("app").Info("组件初始化完成",
		"chain", registry.DefaultName(),
		"address", w.Address().Hex(),
		"model", based.Model,
		"tools", len(based.Functions),
	)
	return &App{Config: cfg, Registry: registry, Wallet: w, Agent: based, Store: store, Loop: loop}, nil
}

func newModelClient(cfg *config.Config) (llm.StreamingClient, error) {
	client, err := openai.NewClient(openai.Config{
		APIKey:  cfg.LLM.OpenAI.ResolveAPIKey(),
		BaseURL: cfg.LLM.OpenAI.BaseURL,
		Model:   cfg.LLM.OpenAI.Model,
		Timeout: cfg.LLM.OpenAI.Timeout(),
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "初始化大模型客户端失败")
	}
	return client, nil
}

// Close 释放链连接并刷新日志。
func (a *App) Close() {
	if a == nil {
		return
	}
	a.Registry.Close()
	_ = logger.Sync()
}
