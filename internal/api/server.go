package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"based-agent/internal/chat"
	"based-agent/internal/observability/metrics"
	"based-agent/internal/session"
	"based-agent/internal/web3"
	"based-agent/pkg/logger"
)

// Server 负责提供聊天页面与 websocket 通道。
type Server struct {
	addr     string
	store    *session.Store
	loop     *chat.Loop
	catalog  Catalog
	chain    web3.Client
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// Option 定义可选的 Server 配置。
type Option func(*Server)

// WithCatalog 替换内置的能力目录。
func WithCatalog(c Catalog) Option {
	return func(s *Server) { s.catalog = c }
}

// WithChainProbe 让健康检查同时探测链节点。
func WithChainProbe(client web3.Client) Option {
	return func(s *Server) { s.chain = client }
}

// WithCheckOrigin 自定义 websocket 来源校验。
func WithCheckOrigin(check func(*http.Request) bool) Option {
	return func(s *Server) { s.upgrader.CheckOrigin = check }
}

// NewServer 构造服务实例。
func NewServer(addr string, store *session.Store, loop *chat.Loop, opts ...Option) *Server {
	s := &Server{
		addr:    addr,
		store:   store,
		loop:    loop,
		catalog: DefaultCatalog(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		log: logger.Named("api"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回挂载了全部路由的处理器。
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.log))

	r.With(metrics.Middleware("page")).Get("/", s.handleIndex)
	r.With(metrics.Middleware("ws")).Get("/ws", s.handleWebSocket)
	r.With(metrics.Middleware("capabilities")).Get("/api/capabilities", s.handleCapabilities)
	r.With(metrics.Middleware("healthz")).Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP 服务启动", "addr", s.addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("HTTP 服务关闭超时", "error", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleCapabilities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok", "sessions": s.store.Len()}
	if s.chain == nil {
		writeJSON(w, http.StatusOK, body)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	snapshot, err := s.chain.FetchChainSnapshot(ctx)
	if err != nil {
		body["status"] = "degraded"
		body["chain_error"] = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	body["chain"] = snapshot
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
