package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"

	"MultiModel-Chat/internal/conversation"
	"MultiModel-Chat/internal/executor"
	"MultiModel-Chat/internal/llm"
	"MultiModel-Chat/internal/observability/metrics"
	"MultiModel-Chat/internal/transcript"
	"MultiModel-Chat/pkg/logger"
)

const (
	defaultCodeTimeout = 30 * time.Second
	maxBodyBytes       = 4 << 20
)

// Conversations 是 /chat 依赖的对话调度能力。
type Conversations interface {
	Run(ctx context.Context, req conversation.Request) (*conversation.Result, error)
}

// Config 汇总 Server 的依赖与参数。
type Config struct {
	Address           string
	AllowedOrigins    []string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	CodeTimeout       time.Duration

	Conversations Conversations
	Runner        executor.Runner
	Archive       transcript.Store

	// DefaultEndpoints 与 MissingEnv 只用于健康检查的展示。
	DefaultEndpoints []llm.Endpoint
	MissingEnv       []string

	Logger *slog.Logger
}

// Server 负责暴露 REST 接口。
type Server struct {
	cfg    Config
	logger *slog.Logger
}

// NewServer 构造 API 服务实例。
func NewServer(cfg Config) *Server {
	if cfg.Address == "" {
		cfg.Address = ":8000"
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
	if cfg.CodeTimeout <= 0 {
		cfg.CodeTimeout = defaultCodeTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Named("api")
	}
	return &Server{cfg: cfg, logger: log}
}

// Handler 返回带有 CORS、指标与审计中间件的完整路由。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /execute-code", s.handleExecuteCode)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/conversations", s.handleListConversations)
	mux.HandleFunc("GET /api/v1/conversations/{id}", s.handleConversationDetail)
	mux.Handle("GET /metrics", metrics.Handler())

	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
			http.MethodDelete, http.MethodHead, http.MethodOptions,
		},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(instrument(mux))
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "address", s.cfg.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Detail: "service is shutting down", Code: "UNAVAILABLE"})
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
