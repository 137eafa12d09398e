package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"based-agent/internal/api"
	"based-agent/internal/app"
	"based-agent/internal/config"
	"based-agent/pkg/logger"
)

// main 是 Based Agent 聊天服务的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("basedagentd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Resolve()
	if err != nil {
		return err
	}
	if err := app.InitLogging(cfg); err != nil {
		return err
	}

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var opts []api.Option
	if chain, err := a.Registry.DefaultClient(); err == nil {
		opts = append(opts, api.WithChainProbe(chain))
	}
	server := api.NewServer(cfg.Server.Address, a.Store, a.Loop, opts...)

	logger.L().Info("Based Agent 服务已就绪", "addr", cfg.Server.Address, "address", a.Wallet.Address().Hex())
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.L().Info("Based Agent 服务已停止")
	return nil
}
