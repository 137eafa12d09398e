package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"based-agent/internal/app"
	"based-agent/internal/config"
	xerrors "based-agent/internal/errors"
	"based-agent/internal/session"
	"based-agent/internal/stream"
)

// main 在终端中与 Based Agent 对话，进程即一个会话。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdin, os.Stdout); err != nil {
		log.Fatalf("basedchat 运行失败: %v", err)
	}
}

func run(ctx context.Context, in io.Reader, out io.Writer) error {
	cfg, err := config.Resolve()
	if err != nil {
		return err
	}
	if len(cfg.Logging.OutputPaths) == 0 {
		cfg.Logging.OutputPaths = []string{"logs/basedchat.log"}
	}
	if err := app.InitLogging(cfg); err != nil {
		return err
	}

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.Store.Open(ctx)
	if err != nil {
		return err
	}
	defer a.Store.Discard(sess.ID())

	fmt.Fprintf(out, "%s (wallet %s). Commands: /clear /address /quit\n", a.Agent.Name, sess.AgentAddress())
	return repl(ctx, in, out, sess, func(ctx context.Context, text string, r *stream.Terminal) error {
		_, err := a.Loop.Submit(ctx, sess, text, r)
		return err
	})
}

type submitFunc func(ctx context.Context, text string, r *stream.Terminal) error

func repl(ctx context.Context, in io.Reader, out io.Writer, sess *session.Session, submit submitFunc) error {
	term := stream.NewTerminal(out)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			sess.Clear()
			fmt.Fprintln(out, "Chat history cleared.")
			continue
		case "/address":
			fmt.Fprintln(out, sess.AgentAddress())
			continue
		}

		err := submit(ctx, line, term)
		term.Finish()
		if err != nil {
			fmt.Fprintf(out, "Error: %s\n", xerrors.OperatorMessage(err))
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
